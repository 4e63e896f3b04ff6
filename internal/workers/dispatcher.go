package workers

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"mediasync/internal/config"
	"mediasync/internal/logging"
	"mediasync/internal/notifications"
	"mediasync/internal/services"
	"mediasync/internal/tasks"
)

// FailureHandler receives a task whose final attempt failed, so the entity
// lifecycle can react (marking sources failed, skipping items).
type FailureHandler interface {
	TaskFailed(ctx context.Context, task *tasks.Task) error
}

// Dispatcher pulls pending tasks from the registry and runs them across a
// fixed pool of workers. Tasks sharing a queue partition never run
// concurrently; the claim path excludes partitions with a running task.
type Dispatcher struct {
	registry  *tasks.Registry
	executors map[tasks.Kind]Executor
	onFailure FailureHandler
	notifier  notifications.Service
	logger    *slog.Logger

	workers            int
	pollInterval       time.Duration
	errorRetryInterval time.Duration

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	busy    map[string]int
}

func NewDispatcher(cfg *config.Config, registry *tasks.Registry, executors map[tasks.Kind]Executor, onFailure FailureHandler, notifier notifications.Service, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.NewNop()
	}
	workers := cfg.Workflow.Workers
	if workers <= 0 {
		workers = 1
	}
	return &Dispatcher{
		registry:           registry,
		executors:          executors,
		onFailure:          onFailure,
		notifier:           notifier,
		logger:             logger.With(logging.String(logging.FieldComponent, "dispatcher")),
		workers:            workers,
		pollInterval:       time.Duration(cfg.Workflow.PollInterval) * time.Second,
		errorRetryInterval: time.Duration(cfg.Workflow.ErrorRetryInterval) * time.Second,
		busy:               make(map[string]int),
	}
}

// Start launches the worker pool. Tasks left in the running state by an
// earlier process are reset to pending first.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return fmt.Errorf("dispatcher already running")
	}

	reset, err := d.registry.ResetRunning(ctx)
	if err != nil {
		return fmt.Errorf("reset interrupted tasks: %w", err)
	}
	if reset > 0 {
		d.logger.Info("interrupted tasks requeued", logging.Int("count", int(reset)))
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.running = true

	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go func(worker int) {
			defer d.wg.Done()
			d.run(runCtx, worker)
		}(i)
	}
	d.logger.Info("dispatcher started", logging.Int("workers", d.workers))
	return nil
}

// Stop cancels the pool and waits for in-flight tasks to finish.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.running = false
	cancel := d.cancel
	d.cancel = nil
	d.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	d.wg.Wait()
	d.logger.Info("dispatcher stopped")
}

func (d *Dispatcher) run(ctx context.Context, worker int) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		task, err := d.claim(ctx)
		if err != nil {
			d.logger.Error("claim next task", logging.Int("worker", worker), logging.Error(err))
			if !d.sleep(ctx, d.errorRetryInterval) {
				return
			}
			continue
		}
		if task == nil {
			if !d.sleep(ctx, d.pollInterval) {
				return
			}
			continue
		}

		d.process(ctx, worker, task)
		d.release(task.Queue)
	}
}

// claim serializes the pending lookup so two workers cannot race into the
// same queue partition between the read and the busy mark.
func (d *Dispatcher) claim(ctx context.Context) (*tasks.Task, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	busyQueues := make([]string, 0, len(d.busy))
	for queue := range d.busy {
		busyQueues = append(busyQueues, queue)
	}
	task, err := d.registry.NextPending(ctx, busyQueues)
	if err != nil || task == nil {
		return nil, err
	}
	d.busy[task.Queue]++
	return task, nil
}

func (d *Dispatcher) release(queue string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.busy[queue]--
	if d.busy[queue] <= 0 {
		delete(d.busy, queue)
	}
}

func (d *Dispatcher) process(ctx context.Context, worker int, task *tasks.Task) {
	taskCtx := services.WithTaskKind(services.WithTaskID(ctx, task.ID), string(task.Kind))
	log := d.logger.With(
		logging.Int("worker", worker),
		logging.String(logging.FieldTaskKind, string(task.Kind)),
		logging.Int("task_id", int(task.ID)),
	)

	executor, ok := d.executors[task.Kind]
	if !ok {
		log.Error("no executor for task kind")
		task.Attempts = task.MaxAttempts
		d.fail(taskCtx, log, task, fmt.Errorf("unknown task kind %q", task.Kind))
		return
	}

	log.Debug("task started", logging.Int("attempt", task.Attempts))
	start := time.Now()
	err := executor(taskCtx, task)
	if err == nil {
		if completeErr := d.registry.Complete(taskCtx, task); completeErr != nil {
			log.Error("mark task complete", logging.Error(completeErr))
			return
		}
		log.Debug("task finished", logging.Duration("elapsed", time.Since(start)))
		return
	}

	if taskCtx.Err() != nil {
		// Shutdown interrupted the attempt; startup recovery requeues it.
		log.Debug("task interrupted by shutdown")
		return
	}

	if !services.IsRetryable(err) {
		task.Attempts = task.MaxAttempts
	}
	d.fail(taskCtx, log, task, err)
}

func (d *Dispatcher) fail(ctx context.Context, log *slog.Logger, task *tasks.Task, taskErr error) {
	permanent, err := d.registry.Fail(ctx, task, taskErr)
	if err != nil {
		log.Error("mark task failed", logging.Error(err))
		return
	}
	if !permanent {
		log.Warn("task attempt failed, will retry",
			logging.Int("attempt", task.Attempts),
			logging.Error(taskErr))
		return
	}

	log.Error("task permanently failed", logging.Error(taskErr))
	if d.onFailure != nil {
		if handlerErr := d.onFailure.TaskFailed(ctx, task); handlerErr != nil {
			log.Error("failure escalation", logging.Error(handlerErr))
		}
	}
	if d.notifier != nil {
		label := fmt.Sprintf("%s (target %s)", task.Kind, task.TargetID)
		if notifyErr := d.notifier.NotifyError(ctx, taskErr, label); notifyErr != nil {
			log.Warn("failure notification", logging.Error(notifyErr))
		}
	}
}

func (d *Dispatcher) sleep(ctx context.Context, interval time.Duration) bool {
	if interval <= 0 {
		interval = time.Second
	}
	timer := time.NewTimer(interval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
