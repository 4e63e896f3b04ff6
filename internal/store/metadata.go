package store

import (
	"encoding/json"
	"fmt"
	"time"
)

// Metadata is the parsed subset of the opaque metadata descriptor fetched for
// a media item. Only the fields the reconciler and format matcher care about
// are modelled; the raw JSON is preserved verbatim on the Media row.
type Metadata struct {
	Title      string      `json:"title"`
	Thumbnail  string      `json:"thumbnail"`
	Thumbnails []Thumbnail `json:"thumbnails"`
	Duration   float64     `json:"duration"`
	UploadDate string      `json:"upload_date"`
	Formats    []Format    `json:"formats"`
}

// Thumbnail is one entry of the metadata thumbnails list.
type Thumbnail struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Format is one downloadable stream described by the metadata.
type Format struct {
	ID         string  `json:"format_id"`
	Height     int     `json:"height"`
	Width      int     `json:"width"`
	VCodec     string  `json:"vcodec"`
	ACodec     string  `json:"acodec"`
	Bitrate    float64 `json:"tbr"`
	Note       string  `json:"format_note"`
	Resolution string  `json:"resolution"`
}

// HasVideo reports whether the format carries a video stream.
func (f Format) HasVideo() bool {
	return f.VCodec != "" && f.VCodec != "none"
}

// HasAudio reports whether the format carries an audio stream.
func (f Format) HasAudio() bool {
	return f.ACodec != "" && f.ACodec != "none"
}

// Metadata parses the stored metadata descriptor. Returns nil when absent.
func (m *Media) Metadata() (*Metadata, error) {
	if !m.HasMetadata() {
		return nil, nil
	}
	var meta Metadata
	if err := json.Unmarshal([]byte(m.MetadataJSON), &meta); err != nil {
		return nil, fmt.Errorf("parse media metadata: %w", err)
	}
	return &meta, nil
}

// ThumbnailURL picks the best thumbnail address from the descriptor: the
// top-level field when set, otherwise the largest entry of the thumbnails list.
func (md *Metadata) ThumbnailURL() string {
	if md.Thumbnail != "" {
		return md.Thumbnail
	}
	best := ""
	bestArea := 0
	for _, t := range md.Thumbnails {
		area := t.Width * t.Height
		if t.URL != "" && area >= bestArea {
			best = t.URL
			bestArea = area
		}
	}
	return best
}

// PublishedTime parses the descriptor upload date (YYYYMMDD). Nil when absent
// or malformed.
func (md *Metadata) PublishedTime() *time.Time {
	if md.UploadDate == "" {
		return nil
	}
	t, err := time.Parse("20060102", md.UploadDate)
	if err != nil {
		return nil
	}
	return &t
}
