// Package ytclient lists the upstream items of a source so the indexing
// executor can create media rows for anything new.
package ytclient

import (
	"context"
	"strings"
	"time"

	"github.com/ytget/ytdlp/v2"

	"mediasync/internal/config"
	"mediasync/internal/services"
	"mediasync/internal/store"
)

const defaultIndexTimeout = 120 * time.Second

// Entry is one upstream item discovered during indexing. Only identity and
// title are known at this stage; everything else arrives with metadata.
type Entry struct {
	Key   string
	Title string
}

// Indexer lists a source's current upstream items.
type Indexer interface {
	Index(ctx context.Context, source *store.Source) ([]Entry, error)
}

// Client indexes sources through their uploads playlist.
type Client struct {
	timeout time.Duration
}

func New(cfg *config.Config) *Client {
	timeout := time.Duration(cfg.Downloads.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = defaultIndexTimeout
	}
	return &Client{timeout: timeout}
}

// Index lists every item currently visible in the source's playlist.
func (c *Client) Index(ctx context.Context, source *store.Source) ([]Entry, error) {
	playlistID, err := UploadsPlaylistID(source)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	items, err := ytdlp.New().GetPlaylistItemsAll(ctx, playlistID, 0)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "ytclient", "index",
			"list playlist "+playlistID, err)
	}

	entries := make([]Entry, 0, len(items))
	for _, item := range items {
		if item.VideoID == "" {
			continue
		}
		entries = append(entries, Entry{Key: item.VideoID, Title: item.Title})
	}
	return entries, nil
}

// UploadsPlaylistID resolves the playlist that enumerates a source's items.
// Channel IDs map onto their uploads playlist by swapping the UC prefix for
// UU; playlists are their own key. Name-only channel sources cannot be
// resolved without a remote lookup and must be registered by channel ID.
func UploadsPlaylistID(source *store.Source) (string, error) {
	if source == nil {
		return "", services.Wrap(services.ErrValidation, "ytclient", "resolve playlist", "source is nil", nil)
	}
	key := strings.TrimSpace(source.Key)
	if key == "" {
		return "", services.Wrap(services.ErrValidation, "ytclient", "resolve playlist", "source key is empty", nil)
	}

	switch source.Type {
	case store.SourceTypePlaylist:
		return key, nil
	case store.SourceTypeChannelID:
		if strings.HasPrefix(key, "UC") && len(key) > 2 {
			return "UU" + key[2:], nil
		}
		return "", services.Wrap(services.ErrValidation, "ytclient", "resolve playlist",
			"channel ID must start with UC", nil)
	case store.SourceTypeChannel:
		return "", services.Wrap(services.ErrValidation, "ytclient", "resolve playlist",
			"channel-name sources cannot be indexed, register the channel ID instead", nil)
	default:
		return "", services.Wrap(services.ErrValidation, "ytclient", "resolve playlist",
			"unknown source type "+string(source.Type), nil)
	}
}
