package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/gofrs/flock"

	"mediasync/internal/config"
	"mediasync/internal/deps"
	"mediasync/internal/logging"
	"mediasync/internal/notifications"
	"mediasync/internal/store"
	"mediasync/internal/tasks"
	"mediasync/internal/workers"
)

// Daemon coordinates the background services and enforces single-instance
// execution through a lock file in the state directory.
type Daemon struct {
	cfg        *config.Config
	logger     *slog.Logger
	entities   *store.Store
	registry   *tasks.Registry
	dispatcher *workers.Dispatcher
	logPath    string

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	Tasks        map[tasks.Status]int
	StateDBPath  string
	LockFilePath string
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, entities *store.Store, registry *tasks.Registry, dispatcher *workers.Dispatcher, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || entities == nil || registry == nil || dispatcher == nil {
		return nil, errors.New("daemon requires config, stores, and dispatcher")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	lockPath := filepath.Join(cfg.Paths.StateDir, "mediasyncd.lock")
	return &Daemon{
		cfg:        cfg,
		logger:     logger.With(logging.String(logging.FieldComponent, "daemon")),
		entities:   entities,
		registry:   registry,
		dispatcher: dispatcher,
		logPath:    filepath.Join(cfg.Paths.LogDir, "mediasync.log"),
		lockPath:   lockPath,
		lock:       flock.New(lockPath),
	}, nil
}

// Start acquires the instance lock and launches the dispatcher.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another mediasync daemon instance is already running")
	}

	for _, status := range deps.CheckBinaries(deps.Defaults()) {
		if !status.Available && !status.Optional {
			d.logger.Warn("required dependency unavailable",
				logging.String("dependency", status.Name),
				logging.String("detail", status.Detail))
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.dispatcher.Start(runCtx); err != nil {
		_ = d.lock.Unlock()
		cancel()
		return fmt.Errorf("start dispatcher: %w", err)
	}
	d.cancel = cancel

	d.running.Store(true)
	d.logger.Info("daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop stops background processing and releases the instance lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.dispatcher.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("daemon stopped")
}

// Close stops the daemon and releases the underlying stores.
func (d *Daemon) Close() error {
	d.Stop()
	var errs []error
	if err := d.registry.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := d.entities.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// TestNotification triggers a test notification using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	notifier := notifications.NewService(d.cfg)
	if err := notifier.TestNotification(ctx); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

// LogPath returns the path to the daemon log file.
func (d *Daemon) LogPath() string {
	return d.logPath
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) (Status, error) {
	stats, err := d.registry.Stats(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("task stats: %w", err)
	}
	return Status{
		Running:      d.running.Load(),
		Tasks:        stats,
		StateDBPath:  filepath.Join(d.cfg.Paths.StateDir, "entities.db"),
		LockFilePath: d.lockPath,
	}, nil
}
