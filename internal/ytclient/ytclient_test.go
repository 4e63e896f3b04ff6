package ytclient

import (
	"errors"
	"testing"

	"mediasync/internal/services"
	"mediasync/internal/store"
)

func TestUploadsPlaylistID(t *testing.T) {
	tests := []struct {
		name    string
		source  *store.Source
		want    string
		wantErr bool
	}{
		{
			name:   "playlist is its own key",
			source: &store.Source{Type: store.SourceTypePlaylist, Key: "PLexample"},
			want:   "PLexample",
		},
		{
			name:   "channel id maps to uploads playlist",
			source: &store.Source{Type: store.SourceTypeChannelID, Key: "UCabc123"},
			want:   "UUabc123",
		},
		{
			name:    "channel id without UC prefix",
			source:  &store.Source{Type: store.SourceTypeChannelID, Key: "abc123"},
			wantErr: true,
		},
		{
			name:    "channel name is unresolvable",
			source:  &store.Source{Type: store.SourceTypeChannel, Key: "somecreator"},
			wantErr: true,
		},
		{
			name:    "empty key",
			source:  &store.Source{Type: store.SourceTypePlaylist},
			wantErr: true,
		},
		{
			name:    "nil source",
			wantErr: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := UploadsPlaylistID(tc.source)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected an error")
				}
				if !errors.Is(err, services.ErrValidation) {
					t.Fatalf("error = %v, want validation classification", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("playlist = %q, want %q", got, tc.want)
			}
		})
	}
}
