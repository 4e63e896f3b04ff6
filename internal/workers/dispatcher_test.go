package workers

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"mediasync/internal/config"
	"mediasync/internal/services"
	"mediasync/internal/tasks"
	"mediasync/internal/testsupport"
)

type recordingHandler struct {
	mu    sync.Mutex
	tasks []*tasks.Task
}

func (r *recordingHandler) TaskFailed(ctx context.Context, task *tasks.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks = append(r.tasks, task)
	return nil
}

func (r *recordingHandler) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks)
}

func newDispatcherConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithWorkers(2))
	cfg.Workflow.ErrorRetryInterval = 1
	cfg.Workflow.TaskMaxAttempts = 3
	cfg.Workflow.TaskRetryBackoff = 0
	return cfg
}

func waitFor(t *testing.T, timeout time.Duration, check func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if check() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not reached before timeout")
}

func TestDispatcherRunsTaskToCompletion(t *testing.T) {
	cfg := newDispatcherConfig(t)
	registry, err := tasks.Open(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer registry.Close()

	done := make(chan int64, 1)
	executors := map[tasks.Kind]Executor{
		tasks.KindCheckSourceDirectory: func(ctx context.Context, task *tasks.Task) error {
			done <- task.ID
			return nil
		},
	}

	task := &tasks.Task{Kind: tasks.KindCheckSourceDirectory, TargetID: uuid.New()}
	if err := registry.Enqueue(context.Background(), task); err != nil {
		t.Fatal(err)
	}

	d := NewDispatcher(cfg, registry, executors, nil, nil, nil)
	if err := d.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer d.Stop()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("task never executed")
	}

	waitFor(t, 5*time.Second, func() bool {
		stored, err := registry.Get(context.Background(), task.ID)
		return err == nil && stored != nil && stored.Status == tasks.StatusSucceeded
	})
}

func TestDispatcherEscalatesPermanentFailure(t *testing.T) {
	cfg := newDispatcherConfig(t)
	cfg.Workflow.TaskMaxAttempts = 1
	registry, err := tasks.Open(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer registry.Close()

	executors := map[tasks.Kind]Executor{
		tasks.KindIndexSource: func(ctx context.Context, task *tasks.Task) error {
			return errors.New("upstream unreachable")
		},
	}
	handler := &recordingHandler{}

	task := &tasks.Task{Kind: tasks.KindIndexSource, TargetID: uuid.New()}
	if err := registry.Enqueue(context.Background(), task); err != nil {
		t.Fatal(err)
	}

	d := NewDispatcher(cfg, registry, executors, handler, nil, nil)
	if err := d.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer d.Stop()

	waitFor(t, 5*time.Second, func() bool { return handler.count() == 1 })

	stored, err := registry.Get(context.Background(), task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status != tasks.StatusFailed {
		t.Fatalf("status = %s, want failed", stored.Status)
	}
}

func TestDispatcherFailsNonRetryableImmediately(t *testing.T) {
	cfg := newDispatcherConfig(t)
	cfg.Workflow.TaskMaxAttempts = 5
	registry, err := tasks.Open(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer registry.Close()

	var attempts int
	var mu sync.Mutex
	executors := map[tasks.Kind]Executor{
		tasks.KindFetchMediaMetadata: func(ctx context.Context, task *tasks.Task) error {
			mu.Lock()
			attempts++
			mu.Unlock()
			return services.Wrap(services.ErrValidation, "workers", "fetch metadata", "bad key", nil)
		},
	}
	handler := &recordingHandler{}

	task := &tasks.Task{Kind: tasks.KindFetchMediaMetadata, TargetID: uuid.New()}
	if err := registry.Enqueue(context.Background(), task); err != nil {
		t.Fatal(err)
	}

	d := NewDispatcher(cfg, registry, executors, handler, nil, nil)
	if err := d.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer d.Stop()

	waitFor(t, 5*time.Second, func() bool { return handler.count() == 1 })

	mu.Lock()
	got := attempts
	mu.Unlock()
	if got != 1 {
		t.Fatalf("attempts = %d, want 1", got)
	}
}

func TestDispatcherKeepsQueuePartitionSerial(t *testing.T) {
	cfg := newDispatcherConfig(t)
	registry, err := tasks.Open(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer registry.Close()

	var mu sync.Mutex
	inFlight := 0
	maxInFlight := 0
	executors := map[tasks.Kind]Executor{
		tasks.KindDownloadMedia: func(ctx context.Context, task *tasks.Task) error {
			mu.Lock()
			inFlight++
			if inFlight > maxInFlight {
				maxInFlight = inFlight
			}
			mu.Unlock()
			time.Sleep(50 * time.Millisecond)
			mu.Lock()
			inFlight--
			mu.Unlock()
			return nil
		},
	}

	queue := uuid.New().String()
	for i := 0; i < 4; i++ {
		task := &tasks.Task{
			Kind:     tasks.KindDownloadMedia,
			TargetID: uuid.New(),
			Queue:    queue,
		}
		if err := registry.Enqueue(context.Background(), task); err != nil {
			t.Fatal(err)
		}
	}

	d := NewDispatcher(cfg, registry, executors, nil, nil, nil)
	if err := d.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer d.Stop()

	waitFor(t, 10*time.Second, func() bool {
		stats, err := registry.Stats(context.Background())
		return err == nil && stats[tasks.StatusSucceeded] == 4
	})

	mu.Lock()
	got := maxInFlight
	mu.Unlock()
	if got != 1 {
		t.Fatalf("max in-flight for one queue = %d, want 1", got)
	}
}

func TestDispatcherStartResetsInterruptedTasks(t *testing.T) {
	cfg := newDispatcherConfig(t)
	registry, err := tasks.Open(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer registry.Close()

	task := &tasks.Task{Kind: tasks.KindIndexSource, TargetID: uuid.New()}
	if err := registry.Enqueue(context.Background(), task); err != nil {
		t.Fatal(err)
	}
	claimed, err := registry.NextPending(context.Background(), nil)
	if err != nil || claimed == nil {
		t.Fatalf("claim: %v", err)
	}

	executed := make(chan struct{}, 1)
	executors := map[tasks.Kind]Executor{
		tasks.KindIndexSource: func(ctx context.Context, task *tasks.Task) error {
			executed <- struct{}{}
			return nil
		},
	}

	d := NewDispatcher(cfg, registry, executors, nil, nil, nil)
	if err := d.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer d.Stop()

	select {
	case <-executed:
	case <-time.After(5 * time.Second):
		t.Fatal("interrupted task never requeued and executed")
	}
}

func TestDispatcherDoubleStartRejected(t *testing.T) {
	cfg := newDispatcherConfig(t)
	registry, err := tasks.Open(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer registry.Close()

	d := NewDispatcher(cfg, registry, map[tasks.Kind]Executor{}, nil, nil, nil)
	if err := d.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer d.Stop()

	if err := d.Start(context.Background()); err == nil {
		t.Fatal("second Start should fail")
	}
}
