package formats

import (
	"testing"

	"mediasync/internal/store"
)

func testMetadata() *store.Metadata {
	return &store.Metadata{
		Formats: []store.Format{
			{ID: "248", Height: 1080, VCodec: "vp9", ACodec: "none", Bitrate: 2500},
			{ID: "137", Height: 1080, VCodec: "avc1.640028", ACodec: "none", Bitrate: 4000},
			{ID: "136", Height: 720, VCodec: "avc1.4d401f", ACodec: "none", Bitrate: 2000},
			{ID: "140", Height: 0, VCodec: "none", ACodec: "mp4a.40.2", Bitrate: 129},
			{ID: "251", Height: 0, VCodec: "none", ACodec: "opus", Bitrate: 160},
			{ID: "22", Height: 720, VCodec: "avc1.64001F", ACodec: "mp4a.40.2", Bitrate: 1800},
		},
	}
}

func TestResolutionHeight(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"1080p", 1080},
		{"720P", 720},
		{"2160p", 2160},
		{"", 0},
		{"best", 0},
	}
	for _, tc := range tests {
		if got := ResolutionHeight(tc.in); got != tc.want {
			t.Errorf("ResolutionHeight(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestMatchExact(t *testing.T) {
	source := &store.Source{Resolution: "1080p", VideoCodec: "avc1", AudioCodec: "mp4a"}
	selection, ok := Match(source, testMetadata())
	if !ok {
		t.Fatal("expected a match")
	}
	if !selection.Exact {
		t.Fatal("expected an exact match")
	}
	if selection.VideoFormatID != "137" || selection.AudioFormatID != "140" {
		t.Fatalf("selection = %+v", selection)
	}
	if selection.CombinedID() != "137+140" {
		t.Fatalf("CombinedID() = %q", selection.CombinedID())
	}
}

func TestMatchCombinedFormatNeedsNoAudio(t *testing.T) {
	source := &store.Source{Resolution: "720p", VideoCodec: "avc1"}
	md := &store.Metadata{Formats: []store.Format{
		{ID: "22", Height: 720, VCodec: "avc1.64001F", ACodec: "mp4a.40.2", Bitrate: 1800},
	}}

	selection, ok := Match(source, md)
	if !ok {
		t.Fatal("expected a match")
	}
	if selection.AudioFormatID != "" {
		t.Fatalf("combined format should not pair an audio stream, got %+v", selection)
	}
	if selection.CombinedID() != "22" {
		t.Fatalf("CombinedID() = %q", selection.CombinedID())
	}
}

func TestMatchFallbackNextBest(t *testing.T) {
	source := &store.Source{Resolution: "1440p", VideoCodec: "avc1", Fallback: FallbackNextBest}
	selection, ok := Match(source, testMetadata())
	if !ok {
		t.Fatal("expected a fallback match")
	}
	if selection.Exact {
		t.Fatal("fallback match reported as exact")
	}
	if selection.VideoFormatID != "137" {
		t.Fatalf("video = %q, want the tallest format at or below 1440p", selection.VideoFormatID)
	}
}

func TestMatchFallbackFail(t *testing.T) {
	source := &store.Source{Resolution: "1440p", VideoCodec: "avc1", Fallback: FallbackFail}
	if _, ok := Match(source, testMetadata()); ok {
		t.Fatal("fail fallback must not fall back")
	}
}

func TestHasUsableFormat(t *testing.T) {
	source := &store.Source{Resolution: "1080p", Fallback: FallbackNextBest}
	if !HasUsableFormat(source, testMetadata()) {
		t.Fatal("expected usable format")
	}
	if HasUsableFormat(source, &store.Metadata{}) {
		t.Fatal("no formats should not be usable")
	}
	if HasUsableFormat(source, nil) {
		t.Fatal("nil metadata should not be usable")
	}
}
