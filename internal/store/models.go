package store

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SourceType identifies the variant of an upstream content origin.
type SourceType string

const (
	SourceTypeChannel   SourceType = "channel"
	SourceTypeChannelID SourceType = "channel-id"
	SourceTypePlaylist  SourceType = "playlist"
)

// ParseSourceType converts a string into a known SourceType.
func ParseSourceType(value string) (SourceType, bool) {
	normalized := SourceType(strings.ToLower(strings.TrimSpace(value)))
	switch normalized {
	case SourceTypeChannel, SourceTypeChannelID, SourceTypePlaylist:
		return normalized, true
	}
	return "", false
}

// Source is a configured upstream content origin owning zero or more media items.
type Source struct {
	ID                uuid.UUID
	Name              string
	Key               string
	Type              SourceType
	Directory         string
	IndexSchedule     int // seconds between index runs, 0 disables
	DownloadMedia     bool
	CopyChannelImages bool
	DeleteFilesOnDisk bool
	FilterText        string
	DownloadCapDays   int
	MinDuration       int // seconds, 0 = no bound
	MaxDuration       int // seconds, 0 = no bound
	Resolution        string
	VideoCodec        string
	AudioCodec        string
	Fallback          string
	AvatarURL         string
	BannerURL         string
	HasFailed         bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// URL returns the upstream address for the source.
func (s *Source) URL() string {
	switch s.Type {
	case SourceTypeChannel:
		return fmt.Sprintf("https://www.youtube.com/%s", s.Key)
	case SourceTypeChannelID:
		return fmt.Sprintf("https://www.youtube.com/channel/%s", s.Key)
	case SourceTypePlaylist:
		return fmt.Sprintf("https://www.youtube.com/playlist?list=%s", s.Key)
	default:
		return s.Key
	}
}

// IsPlaylist reports whether the source is the playlist-only variant.
func (s *Source) IsPlaylist() bool {
	return s.Type == SourceTypePlaylist
}

// Media is a single content item with a multi-stage acquisition lifecycle.
type Media struct {
	ID           uuid.UUID
	SourceID     uuid.UUID
	Key          string
	Title        string
	Published    *time.Time
	Duration     int // seconds
	MetadataJSON string
	Skip         bool
	ManualSkip   bool
	CanDownload  bool
	Downloaded   bool
	MediaFile    string
	ThumbFile    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// URL returns the upstream address for the media item.
func (m *Media) URL() string {
	return fmt.Sprintf("https://www.youtube.com/watch?v=%s", m.Key)
}

// HasMetadata reports whether a fetched metadata descriptor is present.
func (m *Media) HasMetadata() bool {
	return strings.TrimSpace(m.MetadataJSON) != ""
}

// ThumbnailURL returns the source URL for the item's thumbnail, derived from
// metadata. Empty when metadata is absent or carries no thumbnail.
func (m *Media) ThumbnailURL() string {
	meta, err := m.Metadata()
	if err != nil || meta == nil {
		return ""
	}
	return meta.ThumbnailURL()
}

// FileStem returns the extension-stripped base path shared by the item's
// downloaded artifacts, preferring the media file over the thumbnail.
// Empty when neither file reference is set.
func (m *Media) FileStem() string {
	path := m.MediaFile
	if path == "" {
		path = m.ThumbFile
	}
	if path == "" {
		return ""
	}
	return strings.TrimSuffix(path, filepath.Ext(path))
}

// ServerType identifies the media server implementation.
type ServerType string

const (
	ServerTypePlex     ServerType = "plex"
	ServerTypeJellyfin ServerType = "jellyfin"
)

// ParseServerType converts a string into a known ServerType.
func ParseServerType(value string) (ServerType, bool) {
	normalized := ServerType(strings.ToLower(strings.TrimSpace(value)))
	switch normalized {
	case ServerTypePlex, ServerTypeJellyfin:
		return normalized, true
	}
	return "", false
}

// MediaServer is an external library-indexing service notified after deletions.
type MediaServer struct {
	ID        uuid.UUID
	Type      ServerType
	URL       string
	Token     string
	CreatedAt time.Time
	UpdatedAt time.Time
}
