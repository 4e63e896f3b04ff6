package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"mediasync/internal/config"
	"mediasync/internal/filtering"
	"mediasync/internal/formats"
	"mediasync/internal/logging"
	"mediasync/internal/store"
	"mediasync/internal/tasks"
)

// Reconciler reacts to entity lifecycle events by recomputing derived media
// flags and converging the task registry to the outstanding work each entity
// implies. It is attached to the store's hook points and runs synchronously
// on the mutating call.
type Reconciler struct {
	store       *store.Store
	registry    *tasks.Registry
	filter      *filtering.Engine
	fs          afero.Fs
	downloadDir string
	logger      *slog.Logger
}

func New(cfg *config.Config, entities *store.Store, registry *tasks.Registry, filter *filtering.Engine, fs afero.Fs, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = logging.NewNop()
	}
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Reconciler{
		store:       entities,
		registry:    registry,
		filter:      filter,
		fs:          fs,
		downloadDir: cfg.Paths.DownloadDir,
		logger:      logger.With(logging.String(logging.FieldComponent, "reconcile")),
	}
}

// Attach registers the reconciler on the store's lifecycle hook points.
func (r *Reconciler) Attach() {
	r.store.SetSourceHooks(store.SourceHooks{
		BeforeUpdate: r.sourceBeforeUpdate,
		AfterSave:    r.sourceAfterSave,
		BeforeDelete: r.sourceBeforeDelete,
		AfterDelete:  r.sourceAfterDelete,
	})
	r.store.SetMediaHooks(store.MediaHooks{
		AfterSave:    r.mediaAfterSave,
		BeforeDelete: r.mediaBeforeDelete,
		AfterDelete:  r.mediaAfterDelete,
	})
}

// sourceQueue is the queue partition for a source's work, so each source's
// jobs serialize independently.
func sourceQueue(id fmt.Stringer) string {
	return id.String()
}

// sourceBeforeUpdate fires before an existing source's new values commit.
// An index schedule change atomically replaces the recurring indexing task
// so the new interval and the new task land together.
func (r *Reconciler) sourceBeforeUpdate(ctx context.Context, old, updated *store.Source) error {
	if old == nil || old.IndexSchedule == updated.IndexSchedule {
		return nil
	}

	if _, err := r.registry.Cancel(ctx, tasks.KindIndexSource, updated.ID); err != nil {
		return fmt.Errorf("cancel indexing task: %w", err)
	}
	if updated.IndexSchedule <= 0 {
		r.logger.Info("source indexing disabled",
			logging.String(logging.FieldSourceID, updated.ID.String()))
		return nil
	}
	if err := r.enqueueIndex(ctx, updated); err != nil {
		return err
	}
	r.logger.Info("source index schedule replaced",
		logging.String(logging.FieldSourceID, updated.ID.String()),
		logging.Int("interval_seconds", updated.IndexSchedule))
	return nil
}

// sourceAfterSave fires after every source create or update.
func (r *Reconciler) sourceAfterSave(ctx context.Context, source *store.Source, created bool) error {
	if created {
		if err := r.enqueue(ctx, &tasks.Task{
			Kind:     tasks.KindCheckSourceDirectory,
			TargetID: source.ID,
			Queue:    sourceQueue(source.ID),
		}); err != nil {
			return err
		}

		if !source.IsPlaylist() && source.CopyChannelImages {
			if err := r.enqueue(ctx, &tasks.Task{
				Kind:     tasks.KindCopySourceImages,
				TargetID: source.ID,
				Queue:    sourceQueue(source.ID),
			}); err != nil {
				return err
			}
		}

		if source.IndexSchedule > 0 {
			if _, err := r.registry.Cancel(ctx, tasks.KindIndexSource, source.ID); err != nil {
				return fmt.Errorf("cancel stale indexing task: %w", err)
			}
			if err := r.enqueueIndex(ctx, source); err != nil {
				return err
			}
		}
	}

	// Every save, created or not, schedules a bulk sweep so rule changes
	// propagate to owned media without saving each item individually.
	// Enqueue replaces any pending instance of the same key.
	return r.enqueue(ctx, &tasks.Task{
		Kind:     tasks.KindReconcileSourceMedia,
		TargetID: source.ID,
		Queue:    sourceQueue(source.ID),
	})
}

// sourceBeforeDelete deletes owned media one at a time so each item's own
// delete rules release its tasks and files. Storage-layer cascade would
// leak both.
func (r *Reconciler) sourceBeforeDelete(ctx context.Context, source *store.Source) error {
	items, err := r.store.ListMediaBySource(ctx, source.ID)
	if err != nil {
		return fmt.Errorf("list media for deletion: %w", err)
	}
	for _, media := range items {
		if err := r.store.DeleteMedia(ctx, media); err != nil {
			return fmt.Errorf("cascade delete media %s: %w", media.ID, err)
		}
	}
	r.logger.Info("source media cascade deleted",
		logging.String(logging.FieldSourceID, source.ID.String()),
		logging.Int("count", len(items)))
	return nil
}

func (r *Reconciler) sourceAfterDelete(ctx context.Context, source *store.Source) error {
	if _, err := r.registry.Cancel(ctx, tasks.KindIndexSource, source.ID); err != nil {
		return fmt.Errorf("cancel indexing task: %w", err)
	}
	if _, err := r.registry.CancelByQueue(ctx, sourceQueue(source.ID)); err != nil {
		return fmt.Errorf("cancel source queue: %w", err)
	}
	return nil
}

// mediaAfterSave fires after every media create or update. All derived state
// is computed up front and persisted in a single hook-bypassing write, so
// the rule never re-enters itself; task decisions follow from the computed
// state.
func (r *Reconciler) mediaAfterSave(ctx context.Context, media *store.Media, created bool) error {
	// Manual skip is authoritative and suppresses all automatic
	// recomputation for this item.
	if media.ManualSkip {
		return nil
	}

	source, err := r.store.GetSource(ctx, media.SourceID)
	if err != nil {
		return fmt.Errorf("load owning source: %w", err)
	}
	if source == nil {
		return nil
	}

	md, mdErr := media.Metadata()
	hasMetadata := mdErr == nil && media.HasMetadata()

	changed := false

	if !media.Downloaded && hasMetadata {
		verdict, reason := r.filter.ShouldSkip(source, media, time.Now().UTC())
		if verdict != media.Skip {
			media.Skip = verdict
			changed = true
			if verdict {
				r.logger.Info("media skipped by filter",
					logging.String(logging.FieldMediaID, media.ID.String()),
					logging.String("reason", reason))
			}
		}
	}

	if hasMetadata {
		usable := formats.HasUsableFormat(source, md)
		if usable != media.CanDownload {
			media.CanDownload = usable
			changed = true
		}
	}

	// Self-heal stale file references before any scheduling decision.
	if media.ThumbFile != "" {
		exists, err := r.fileExists(media.ThumbFile)
		if err != nil {
			return err
		}
		if !exists {
			media.ThumbFile = ""
			changed = true
		}
	}
	if media.MediaFile != "" {
		exists, err := r.fileExists(media.MediaFile)
		if err != nil {
			return err
		}
		if !exists {
			media.MediaFile = ""
			if media.Downloaded {
				media.Downloaded = false
			}
			changed = true
			r.logger.Warn("media file missing on disk, reference cleared",
				logging.String(logging.FieldMediaID, media.ID.String()))
		}
	}

	if changed {
		if err := r.store.UpdateMediaDerived(ctx, media); err != nil {
			return err
		}
	}

	if !hasMetadata && !media.Skip {
		pending, err := r.registry.ExistsPending(ctx, tasks.KindFetchMediaMetadata, media.ID)
		if err != nil {
			return fmt.Errorf("check pending metadata task: %w", err)
		}
		if !pending {
			if err := r.enqueue(ctx, &tasks.Task{
				Kind:     tasks.KindFetchMediaMetadata,
				TargetID: media.ID,
			}); err != nil {
				return err
			}
		}
	}

	if media.ThumbFile == "" && !media.Skip {
		if thumbURL := media.ThumbnailURL(); thumbURL != "" {
			if err := r.enqueue(ctx, &tasks.Task{
				Kind:     tasks.KindFetchMediaThumbnail,
				TargetID: media.ID,
				Args:     thumbURL,
				Queue:    sourceQueue(source.ID),
			}); err != nil {
				return err
			}
		}
	}

	if !media.Downloaded && media.CanDownload && !media.Skip && source.DownloadMedia {
		if _, err := r.registry.Cancel(ctx, tasks.KindDownloadMedia, media.ID); err != nil {
			return fmt.Errorf("cancel stale download task: %w", err)
		}
		if err := r.enqueue(ctx, &tasks.Task{
			Kind:     tasks.KindDownloadMedia,
			TargetID: media.ID,
			Queue:    sourceQueue(source.ID),
		}); err != nil {
			return err
		}
	}

	return nil
}

// mediaBeforeDelete releases the item's pending tasks and, when the source
// wants on-disk cleanup, removes the file and every sibling artifact sharing
// its stem.
func (r *Reconciler) mediaBeforeDelete(ctx context.Context, media *store.Media) error {
	if _, err := r.registry.Cancel(ctx, tasks.KindDownloadMedia, media.ID); err != nil {
		return fmt.Errorf("cancel download task: %w", err)
	}
	if media.ThumbnailURL() != "" {
		if _, err := r.registry.Cancel(ctx, tasks.KindFetchMediaThumbnail, media.ID); err != nil {
			return fmt.Errorf("cancel thumbnail task: %w", err)
		}
	}

	source, err := r.store.GetSource(ctx, media.SourceID)
	if err != nil {
		return fmt.Errorf("load owning source: %w", err)
	}
	if source == nil || !source.DeleteFilesOnDisk {
		return nil
	}

	stem := media.FileStem()
	if stem == "" {
		return nil
	}
	removed, err := r.removeSiblings(stem)
	if err != nil {
		return err
	}
	if len(removed) > 0 {
		r.logger.Info("media files deleted",
			logging.String(logging.FieldMediaID, media.ID.String()),
			logging.Int("count", len(removed)))
	}
	return nil
}

// mediaAfterDelete asks every registered media server to rescan. Replace
// semantics collapse a bulk deletion into one rescan per server.
func (r *Reconciler) mediaAfterDelete(ctx context.Context, media *store.Media) error {
	servers, err := r.store.ListMediaServers(ctx)
	if err != nil {
		return fmt.Errorf("list media servers: %w", err)
	}
	for _, server := range servers {
		if err := r.enqueue(ctx, &tasks.Task{
			Kind:     tasks.KindRescanServer,
			TargetID: server.ID,
		}); err != nil {
			return err
		}
	}
	return nil
}

// TaskFailed handles a task that exhausted its retry budget, escalating the
// failure to a persistent entity flag where the rules call for one. The
// target is decoded from the task's kind; unknown targets and unescalated
// kinds are no-ops.
func (r *Reconciler) TaskFailed(ctx context.Context, task *tasks.Task) error {
	target := task.Target()
	switch target.Type {
	case tasks.TargetSource:
		source, err := r.store.GetSource(ctx, target.ID)
		if err != nil {
			return err
		}
		if source == nil || source.HasFailed {
			return nil
		}
		source.HasFailed = true
		if _, err := r.store.SaveSource(ctx, source); err != nil {
			return fmt.Errorf("persist source failure flag: %w", err)
		}
		r.logger.Error("source marked failed",
			logging.String(logging.FieldSourceID, source.ID.String()),
			logging.String(logging.FieldTaskKind, string(task.Kind)))
		return nil

	case tasks.TargetMedia:
		if task.Kind != tasks.KindFetchMediaMetadata {
			// Thumbnail and download failures stay with retry policy.
			return nil
		}
		media, err := r.store.GetMedia(ctx, target.ID)
		if err != nil {
			return err
		}
		if media == nil || media.Skip {
			return nil
		}
		media.Skip = true
		if _, err := r.store.SaveMedia(ctx, media); err != nil {
			return fmt.Errorf("persist media skip flag: %w", err)
		}
		r.logger.Error("media skipped after metadata failure",
			logging.String(logging.FieldMediaID, media.ID.String()))
		return nil

	default:
		return nil
	}
}

func (r *Reconciler) enqueue(ctx context.Context, task *tasks.Task) error {
	if err := r.registry.Enqueue(ctx, task); err != nil {
		return fmt.Errorf("enqueue %s: %w", task.Kind, err)
	}
	return nil
}

func (r *Reconciler) enqueueIndex(ctx context.Context, source *store.Source) error {
	return r.enqueue(ctx, &tasks.Task{
		Kind:     tasks.KindIndexSource,
		TargetID: source.ID,
		Queue:    sourceQueue(source.ID),
		Repeat:   time.Duration(source.IndexSchedule) * time.Second,
	})
}

func (r *Reconciler) fileExists(relative string) (bool, error) {
	_, err := r.fs.Stat(filepath.Join(r.downloadDir, relative))
	if err == nil {
		return true, nil
	}
	if isNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("stat %s: %w", relative, err)
}
