// Package mediaserver notifies external library services that archive
// content changed. Plex and Jellyfin are supported; both expose a cheap
// whole-library refresh endpoint, which is all a rescan needs.
package mediaserver

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"mediasync/internal/services"
	"mediasync/internal/store"
)

const userAgent = "MediaSync-Go/0.1.0"

// Client triggers a library rescan on one external media server.
type Client interface {
	Name() string
	Rescan(ctx context.Context) error
}

// NewClient builds the rescan client for a registered server.
func NewClient(server *store.MediaServer, timeout time.Duration) (Client, error) {
	if server == nil {
		return nil, services.Wrap(services.ErrValidation, "mediaserver", "new client", "server is nil", nil)
	}
	base := strings.TrimRight(strings.TrimSpace(server.URL), "/")
	if base == "" {
		return nil, services.Wrap(services.ErrValidation, "mediaserver", "new client", "server URL is empty", nil)
	}
	if _, err := url.Parse(base); err != nil {
		return nil, services.Wrap(services.ErrValidation, "mediaserver", "new client", "invalid server URL", err)
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	httpClient := &http.Client{Timeout: timeout}

	switch server.Type {
	case store.ServerTypePlex:
		return &plexClient{base: base, token: server.Token, client: httpClient}, nil
	case store.ServerTypeJellyfin:
		return &jellyfinClient{base: base, token: server.Token, client: httpClient}, nil
	default:
		return nil, services.Wrap(services.ErrValidation, "mediaserver", "new client",
			fmt.Sprintf("unsupported server type %q", server.Type), nil)
	}
}

type plexClient struct {
	base   string
	token  string
	client *http.Client
}

func (p *plexClient) Name() string { return "plex" }

func (p *plexClient) Rescan(ctx context.Context) error {
	endpoint := p.base + "/library/sections/all/refresh"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "mediaserver", "plex rescan", "build request", err)
	}
	req.Header.Set("User-Agent", userAgent)
	if p.token != "" {
		req.Header.Set("X-Plex-Token", p.token)
	}
	return do(p.client, req, "plex rescan")
}

type jellyfinClient struct {
	base   string
	token  string
	client *http.Client
}

func (j *jellyfinClient) Name() string { return "jellyfin" }

func (j *jellyfinClient) Rescan(ctx context.Context) error {
	endpoint := j.base + "/Library/Refresh"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "mediaserver", "jellyfin rescan", "build request", err)
	}
	req.Header.Set("User-Agent", userAgent)
	if j.token != "" {
		req.Header.Set("X-Emby-Token", j.token)
	}
	return do(j.client, req, "jellyfin rescan")
}

func do(client *http.Client, req *http.Request, operation string) error {
	resp, err := client.Do(req)
	if err != nil {
		return services.Wrap(services.ErrTransient, "mediaserver", operation, "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return services.Wrap(services.ErrExternalTool, "mediaserver", operation,
			fmt.Sprintf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body))), nil)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
