package workers

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"

	"mediasync/internal/config"
	"mediasync/internal/downloader"
	"mediasync/internal/fileutil"
	"mediasync/internal/formats"
	"mediasync/internal/logging"
	"mediasync/internal/mediaserver"
	"mediasync/internal/notifications"
	"mediasync/internal/services"
	"mediasync/internal/store"
	"mediasync/internal/tasks"
	"mediasync/internal/ytclient"
)

// Executor runs the body of one task kind.
type Executor func(ctx context.Context, task *tasks.Task) error

// ExecutorSet binds every task kind to its implementation against the shared
// collaborators.
type ExecutorSet struct {
	cfg        *config.Config
	store      *store.Store
	indexer    ytclient.Indexer
	downloader *downloader.Downloader
	notifier   notifications.Service
	fs         afero.Fs
	client     *http.Client
	logger     *slog.Logger
}

func NewExecutorSet(cfg *config.Config, entities *store.Store, indexer ytclient.Indexer, dl *downloader.Downloader, notifier notifications.Service, fs afero.Fs, logger *slog.Logger) *ExecutorSet {
	if logger == nil {
		logger = logging.NewNop()
	}
	if fs == nil {
		fs = afero.NewOsFs()
	}
	timeout := time.Duration(cfg.Downloads.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ExecutorSet{
		cfg:        cfg,
		store:      entities,
		indexer:    indexer,
		downloader: dl,
		notifier:   notifier,
		fs:         fs,
		client:     &http.Client{Timeout: timeout},
		logger:     logger.With(logging.String(logging.FieldComponent, "workers")),
	}
}

// Executors returns the kind-to-executor table the dispatcher runs from.
func (e *ExecutorSet) Executors() map[tasks.Kind]Executor {
	return map[tasks.Kind]Executor{
		tasks.KindIndexSource:          e.indexSource,
		tasks.KindCheckSourceDirectory: e.checkSourceDirectory,
		tasks.KindCopySourceImages:     e.copySourceImages,
		tasks.KindReconcileSourceMedia: e.reconcileSourceMedia,
		tasks.KindFetchMediaMetadata:   e.fetchMediaMetadata,
		tasks.KindFetchMediaThumbnail:  e.fetchMediaThumbnail,
		tasks.KindDownloadMedia:        e.downloadMedia,
		tasks.KindRescanServer:         e.rescanServer,
	}
}

// indexSource lists the source's upstream items and creates rows for
// anything new. Each created row's own save rules schedule the follow-up
// work, so indexing itself stays cheap.
func (e *ExecutorSet) indexSource(ctx context.Context, task *tasks.Task) error {
	source, err := e.store.GetSource(ctx, task.TargetID)
	if err != nil {
		return err
	}
	if source == nil {
		return services.Wrap(services.ErrNotFound, "workers", "index source", task.TargetID.String(), nil)
	}

	entries, err := e.indexer.Index(ctx, source)
	if err != nil {
		return err
	}

	created := 0
	for _, entry := range entries {
		existing, err := e.store.GetMediaByKey(ctx, source.ID, entry.Key)
		if err != nil {
			return err
		}
		if existing != nil {
			continue
		}
		media := &store.Media{
			SourceID: source.ID,
			Key:      entry.Key,
			Title:    entry.Title,
		}
		if _, err := e.store.SaveMedia(ctx, media); err != nil {
			return err
		}
		created++
	}
	e.logger.Info("source indexed",
		logging.String(logging.FieldSourceID, source.ID.String()),
		logging.Int("upstream", len(entries)),
		logging.Int("created", created))
	return nil
}

// checkSourceDirectory ensures the source's download directory exists,
// creating it when missing.
func (e *ExecutorSet) checkSourceDirectory(ctx context.Context, task *tasks.Task) error {
	source, err := e.store.GetSource(ctx, task.TargetID)
	if err != nil {
		return err
	}
	if source == nil {
		return services.Wrap(services.ErrNotFound, "workers", "check directory", task.TargetID.String(), nil)
	}

	dir := filepath.Join(e.cfg.Paths.DownloadDir, source.Directory)
	exists, err := fileutil.IsDir(e.fs, dir)
	if err != nil {
		return fmt.Errorf("check source directory: %w", err)
	}
	if !exists {
		if err := fileutil.EnsureDir(e.fs, dir); err != nil {
			return fmt.Errorf("create source directory: %w", err)
		}
		e.logger.Info("source directory created",
			logging.String(logging.FieldSourceID, source.ID.String()),
			logging.String("dir", dir))
	}
	return nil
}

// copySourceImages fetches the channel avatar and banner into the source
// directory.
func (e *ExecutorSet) copySourceImages(ctx context.Context, task *tasks.Task) error {
	source, err := e.store.GetSource(ctx, task.TargetID)
	if err != nil {
		return err
	}
	if source == nil {
		return services.Wrap(services.ErrNotFound, "workers", "copy images", task.TargetID.String(), nil)
	}

	images := map[string]string{
		"avatar": source.AvatarURL,
		"banner": source.BannerURL,
	}
	for name, imageURL := range images {
		if strings.TrimSpace(imageURL) == "" {
			continue
		}
		if err := e.fetchImage(ctx, source, name, imageURL); err != nil {
			return err
		}
	}
	return nil
}

func (e *ExecutorSet) fetchImage(ctx context.Context, source *store.Source, name, imageURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return services.Wrap(services.ErrValidation, "workers", "copy images", "build request", err)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return services.Wrap(services.ErrTransient, "workers", "copy images", imageURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return services.Wrap(services.ErrExternalTool, "workers", "copy images",
			fmt.Sprintf("server returned %d for %s", resp.StatusCode, imageURL), nil)
	}

	ext := path.Ext(strings.SplitN(imageURL, "?", 2)[0])
	if ext == "" {
		ext = ".jpg"
	}
	target := filepath.Join(e.cfg.Paths.DownloadDir, source.Directory, name+ext)
	if err := fileutil.EnsureDir(e.fs, filepath.Dir(target)); err != nil {
		return err
	}
	out, err := e.fs.Create(target)
	if err != nil {
		return err
	}
	defer out.Close()
	if _, err := io.Copy(out, resp.Body); err != nil {
		_ = e.fs.Remove(target)
		return services.Wrap(services.ErrTransient, "workers", "copy images", "write image", err)
	}
	return out.Close()
}

// reconcileSourceMedia re-saves every media item owned by the source so each
// item's save rules re-run under current source settings.
func (e *ExecutorSet) reconcileSourceMedia(ctx context.Context, task *tasks.Task) error {
	source, err := e.store.GetSource(ctx, task.TargetID)
	if err != nil {
		return err
	}
	if source == nil {
		return services.Wrap(services.ErrNotFound, "workers", "reconcile media", task.TargetID.String(), nil)
	}

	items, err := e.store.ListMediaBySource(ctx, source.ID)
	if err != nil {
		return err
	}
	for _, media := range items {
		if _, err := e.store.SaveMedia(ctx, media); err != nil {
			return err
		}
	}
	e.logger.Info("source media reconciled",
		logging.String(logging.FieldSourceID, source.ID.String()),
		logging.Int("count", len(items)))
	return nil
}

// fetchMediaMetadata enriches the item with the yt-dlp info JSON. The save
// re-triggers the item's rules, which schedule the thumbnail and download.
func (e *ExecutorSet) fetchMediaMetadata(ctx context.Context, task *tasks.Task) error {
	media, err := e.store.GetMedia(ctx, task.TargetID)
	if err != nil {
		return err
	}
	if media == nil {
		return services.Wrap(services.ErrNotFound, "workers", "fetch metadata", task.TargetID.String(), nil)
	}

	payload, err := e.downloader.FetchMetadata(ctx, media)
	if err != nil {
		return err
	}
	media.MetadataJSON = payload

	if md, err := media.Metadata(); err == nil && md != nil {
		if md.Title != "" {
			media.Title = md.Title
		}
		if md.Duration > 0 {
			media.Duration = int(md.Duration)
		}
		if published := md.PublishedTime(); published != nil {
			media.Published = published
		}
	}

	_, err = e.store.SaveMedia(ctx, media)
	return err
}

func (e *ExecutorSet) fetchMediaThumbnail(ctx context.Context, task *tasks.Task) error {
	media, err := e.store.GetMedia(ctx, task.TargetID)
	if err != nil {
		return err
	}
	if media == nil {
		return services.Wrap(services.ErrNotFound, "workers", "fetch thumbnail", task.TargetID.String(), nil)
	}
	source, err := e.store.GetSource(ctx, media.SourceID)
	if err != nil {
		return err
	}
	if source == nil {
		return services.Wrap(services.ErrNotFound, "workers", "fetch thumbnail", "owning source missing", nil)
	}

	thumbURL := task.Args
	if thumbURL == "" {
		thumbURL = media.ThumbnailURL()
	}
	relative, err := e.downloader.FetchThumbnail(ctx, source, media, thumbURL)
	if err != nil {
		return err
	}

	media.ThumbFile = relative
	_, err = e.store.SaveMedia(ctx, media)
	return err
}

func (e *ExecutorSet) downloadMedia(ctx context.Context, task *tasks.Task) error {
	media, err := e.store.GetMedia(ctx, task.TargetID)
	if err != nil {
		return err
	}
	if media == nil {
		return services.Wrap(services.ErrNotFound, "workers", "download media", task.TargetID.String(), nil)
	}
	if media.Skip || media.Downloaded {
		return nil
	}
	source, err := e.store.GetSource(ctx, media.SourceID)
	if err != nil {
		return err
	}
	if source == nil {
		return services.Wrap(services.ErrNotFound, "workers", "download media", "owning source missing", nil)
	}

	formatID := ""
	if md, err := media.Metadata(); err == nil && md != nil {
		if selection, ok := formats.Match(source, md); ok {
			formatID = selection.CombinedID()
		}
	}

	relative, err := e.downloader.Download(ctx, source, media, formatID)
	if err != nil {
		return err
	}

	media.MediaFile = relative
	media.Downloaded = true
	if _, err := e.store.SaveMedia(ctx, media); err != nil {
		return err
	}

	if e.notifier != nil {
		if err := e.notifier.NotifyDownloadCompleted(ctx, media.Title, relative); err != nil {
			e.logger.Warn("download notification failed", logging.Error(err))
		}
	}
	return nil
}

func (e *ExecutorSet) rescanServer(ctx context.Context, task *tasks.Task) error {
	server, err := e.store.GetMediaServer(ctx, task.TargetID)
	if err != nil {
		return err
	}
	if server == nil {
		// Server unregistered after enqueue; nothing to notify.
		return nil
	}

	timeout := time.Duration(e.cfg.Downloads.RequestTimeout) * time.Second
	client, err := mediaserver.NewClient(server, timeout)
	if err != nil {
		return err
	}
	if err := client.Rescan(ctx); err != nil {
		return err
	}
	e.logger.Info("media server rescan triggered",
		logging.String("server", client.Name()),
		logging.String("url", server.URL))
	return nil
}
