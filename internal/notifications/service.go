package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"mediasync/internal/config"
)

const userAgent = "MediaSync-Go/0.1.0"

// Service defines the notification surface exposed to the dispatcher and
// executors.
type Service interface {
	NotifySourceAdded(ctx context.Context, name string) error
	NotifySourceFailed(ctx context.Context, name string) error
	NotifyDownloadCompleted(ctx context.Context, title, file string) error
	NotifyMediaSkipped(ctx context.Context, title, reason string) error
	NotifyError(ctx context.Context, err error, context string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:  topic,
		client:    &http.Client{Timeout: timeout},
		downloads: cfg.Notifications.Downloads,
		errors:    cfg.Notifications.Errors,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint  string
	client    *http.Client
	downloads bool
	errors    bool
}

func (n *ntfyService) NotifySourceAdded(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	data := payload{
		title:   "MediaSync - Source Added",
		message: fmt.Sprintf("Now archiving: %s", name),
		tags:    []string{"mediasync", "source", "added"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifySourceFailed(ctx context.Context, name string) error {
	if !n.errors {
		return nil
	}
	name = strings.TrimSpace(name)
	data := payload{
		title:    "MediaSync - Source Failed",
		message:  fmt.Sprintf("Indexing permanently failed: %s\nManual review required", name),
		tags:     []string{"mediasync", "source", "failed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyDownloadCompleted(ctx context.Context, title, file string) error {
	if !n.downloads {
		return nil
	}
	title = strings.TrimSpace(title)
	file = strings.TrimSpace(file)
	message := fmt.Sprintf("Downloaded: %s", title)
	if file != "" {
		message = fmt.Sprintf("%s\nFile: %s", message, file)
	}
	data := payload{
		title:   "MediaSync - Download Complete",
		message: message,
		tags:    []string{"mediasync", "download", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyMediaSkipped(ctx context.Context, title, reason string) error {
	if !n.downloads {
		return nil
	}
	title = strings.TrimSpace(title)
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "metadata could not be fetched"
	}
	data := payload{
		title:   "MediaSync - Item Skipped",
		message: fmt.Sprintf("Skipped: %s\nReason: %s", title, reason),
		tags:    []string{"mediasync", "media", "skipped"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	if !n.errors {
		return nil
	}
	var builder strings.Builder
	builder.WriteString("Error")
	if contextLabel = strings.TrimSpace(contextLabel); contextLabel != "" {
		builder.WriteString(" with ")
		builder.WriteString(contextLabel)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}

	data := payload{
		title:    "MediaSync - Error",
		message:  builder.String(),
		tags:     []string{"mediasync", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "MediaSync - Test",
		message:  "Notification system test",
		tags:     []string{"mediasync", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifySourceAdded(context.Context, string) error               { return nil }
func (noopService) NotifySourceFailed(context.Context, string) error              { return nil }
func (noopService) NotifyDownloadCompleted(context.Context, string, string) error { return nil }
func (noopService) NotifyMediaSkipped(context.Context, string, string) error      { return nil }
func (noopService) NotifyError(context.Context, error, string) error              { return nil }
func (noopService) TestNotification(context.Context) error                        { return nil }
