// Package formats matches a source's requested media quality against the
// stream formats reported in a media item's metadata.
package formats

import (
	"sort"
	"strconv"
	"strings"

	"mediasync/internal/store"
)

// Fallback behaviors when no format matches the source's request exactly.
const (
	FallbackFail     = "fail"
	FallbackNextBest = "next-best"
)

// Selection is the outcome of matching a source's quality request against a
// media item's available formats.
type Selection struct {
	VideoFormatID string
	AudioFormatID string
	// Exact is false when the selection came from fallback.
	Exact bool
}

// CombinedID returns the selection in yt-dlp format syntax.
func (s Selection) CombinedID() string {
	switch {
	case s.VideoFormatID != "" && s.AudioFormatID != "":
		return s.VideoFormatID + "+" + s.AudioFormatID
	case s.VideoFormatID != "":
		return s.VideoFormatID
	default:
		return s.AudioFormatID
	}
}

// ResolutionHeight parses resolution strings such as "1080p" or "720P" into
// a pixel height. Returns 0 when unparseable or unset.
func ResolutionHeight(resolution string) int {
	trimmed := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(resolution)), "p")
	if trimmed == "" {
		return 0
	}
	height, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0
	}
	return height
}

// Match selects formats for a source's quality request. Exact matching
// requires the requested height and codec prefixes; when that fails and the
// source allows next-best fallback, the closest lower-or-equal height wins.
// The second return is false when nothing usable was found.
func Match(source *store.Source, md *store.Metadata) (Selection, bool) {
	if md == nil || len(md.Formats) == 0 {
		return Selection{}, false
	}

	wantHeight := ResolutionHeight(source.Resolution)

	video := pickVideo(md.Formats, wantHeight, source.VideoCodec, true)
	exact := video != nil
	if video == nil && fallbackAllowed(source) {
		video = pickVideo(md.Formats, wantHeight, source.VideoCodec, false)
	}
	if video == nil {
		return Selection{}, false
	}

	selection := Selection{VideoFormatID: video.ID, Exact: exact}
	if video.HasAudio() {
		return selection, true
	}

	audio := pickAudio(md.Formats, source.AudioCodec)
	if audio == nil {
		return Selection{}, false
	}
	selection.AudioFormatID = audio.ID
	return selection, true
}

// HasUsableFormat reports whether the source's quality request can be
// satisfied from the metadata, honoring the fallback setting.
func HasUsableFormat(source *store.Source, md *store.Metadata) bool {
	_, ok := Match(source, md)
	return ok
}

func fallbackAllowed(source *store.Source) bool {
	return source.Fallback != FallbackFail
}

// pickVideo returns the best video format. In strict mode the height must
// equal the request; otherwise the tallest format at or below it wins, or
// the shortest overall when everything is taller.
func pickVideo(available []store.Format, wantHeight int, codec string, strict bool) *store.Format {
	var candidates []store.Format
	for _, format := range available {
		if !format.HasVideo() {
			continue
		}
		if !codecMatches(format.VCodec, codec) {
			continue
		}
		if strict && wantHeight > 0 && format.Height != wantHeight {
			continue
		}
		candidates = append(candidates, format)
	}
	if len(candidates) == 0 {
		return nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Height != candidates[j].Height {
			return candidates[i].Height > candidates[j].Height
		}
		return candidates[i].Bitrate > candidates[j].Bitrate
	})

	if !strict && wantHeight > 0 {
		for _, candidate := range candidates {
			if candidate.Height <= wantHeight {
				return &candidate
			}
		}
		// Everything is taller than requested; take the closest.
		shortest := candidates[len(candidates)-1]
		return &shortest
	}
	best := candidates[0]
	return &best
}

func pickAudio(available []store.Format, codec string) *store.Format {
	var best *store.Format
	for _, format := range available {
		if format.HasVideo() || !format.HasAudio() {
			continue
		}
		if !codecMatches(format.ACodec, codec) {
			continue
		}
		if best == nil || format.Bitrate > best.Bitrate {
			candidate := format
			best = &candidate
		}
	}
	return best
}

// codecMatches compares on prefix so "avc1.64002a" satisfies "avc1".
func codecMatches(actual, requested string) bool {
	if requested == "" {
		return true
	}
	return strings.HasPrefix(strings.ToLower(actual), strings.ToLower(requested))
}
