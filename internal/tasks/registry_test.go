package tasks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"mediasync/internal/config"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()

	cfg := config.Default()
	cfg.Paths.StateDir = t.TempDir()
	cfg.Paths.DownloadDir = t.TempDir()
	cfg.Paths.LogDir = t.TempDir()
	cfg.Workflow.TaskMaxAttempts = 3
	cfg.Workflow.TaskRetryBackoff = 60

	r, err := Open(&cfg)
	if err != nil {
		t.Fatalf("open registry: %v", err)
	}
	t.Cleanup(func() {
		if err := r.Close(); err != nil {
			t.Errorf("close registry: %v", err)
		}
	})
	return r
}

func TestEnqueueReplacesPendingDuplicate(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()
	target := uuid.New()

	first := &Task{Kind: KindDownloadMedia, TargetID: target, Queue: "source-a"}
	if err := r.Enqueue(ctx, first); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	second := &Task{Kind: KindDownloadMedia, TargetID: target, Queue: "source-a"}
	if err := r.Enqueue(ctx, second); err != nil {
		t.Fatalf("enqueue duplicate: %v", err)
	}

	pending, err := r.List(ctx, StatusPending)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("len(pending) = %d, want 1 after replace", len(pending))
	}
	if pending[0].ID != second.ID {
		t.Fatalf("surviving task id = %d, want the replacement %d", pending[0].ID, second.ID)
	}
}

func TestEnqueueDistinctArgsCoexist(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()
	target := uuid.New()

	if err := r.Enqueue(ctx, &Task{Kind: KindRescanServer, TargetID: target, Args: "section=1"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := r.Enqueue(ctx, &Task{Kind: KindRescanServer, TargetID: target, Args: "section=2"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	pending, err := r.List(ctx, StatusPending)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("len(pending) = %d, want 2 for distinct args", len(pending))
	}
}

func TestPriorityOrderWithinQueue(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	thumb := &Task{Kind: KindFetchMediaThumbnail, TargetID: uuid.New(), Queue: "source-a"}
	download := &Task{Kind: KindDownloadMedia, TargetID: uuid.New(), Queue: "source-a"}
	dirCheck := &Task{Kind: KindCheckSourceDirectory, TargetID: uuid.New(), Queue: "source-a"}
	for _, task := range []*Task{thumb, download, dirCheck} {
		if err := r.Enqueue(ctx, task); err != nil {
			t.Fatalf("enqueue %s: %v", task.Kind, err)
		}
	}

	var got []Kind
	for {
		task, err := r.NextPending(ctx, nil)
		if err != nil {
			t.Fatalf("next pending: %v", err)
		}
		if task == nil {
			break
		}
		got = append(got, task.Kind)
		if err := r.Complete(ctx, task); err != nil {
			t.Fatalf("complete: %v", err)
		}
	}

	want := []Kind{KindCheckSourceDirectory, KindFetchMediaThumbnail, KindDownloadMedia}
	if len(got) != len(want) {
		t.Fatalf("dispatched %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("dispatched %v, want %v", got, want)
		}
	}
}

func TestBusyQueueExcludedFromclaim(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	busy := &Task{Kind: KindDownloadMedia, TargetID: uuid.New(), Queue: "source-a"}
	other := &Task{Kind: KindFetchMediaThumbnail, TargetID: uuid.New(), Queue: "source-b"}
	for _, task := range []*Task{busy, other} {
		if err := r.Enqueue(ctx, task); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	task, err := r.NextPending(ctx, []string{"source-a"})
	if err != nil {
		t.Fatalf("next pending: %v", err)
	}
	if task == nil {
		t.Fatal("expected a claim from the free partition")
	}
	if task.Queue != "source-b" {
		t.Fatalf("claimed queue %q, want source-b", task.Queue)
	}

	task, err = r.NextPending(ctx, []string{"source-a", "source-b"})
	if err != nil {
		t.Fatalf("next pending: %v", err)
	}
	if task != nil {
		t.Fatalf("expected no claim with all partitions busy, got %s", task.Kind)
	}
}

func TestCancelPendingOnly(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()
	target := uuid.New()

	running := &Task{Kind: KindDownloadMedia, TargetID: target, Queue: "source-a"}
	if err := r.Enqueue(ctx, running); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	claimed, err := r.NextPending(ctx, nil)
	if err != nil {
		t.Fatalf("next pending: %v", err)
	}
	if claimed == nil {
		t.Fatal("expected a claim")
	}

	pending := &Task{Kind: KindFetchMediaThumbnail, TargetID: target, Queue: "source-a"}
	if err := r.Enqueue(ctx, pending); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	removed, err := r.CancelByTarget(ctx, target)
	if err != nil {
		t.Fatalf("cancel by target: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want 1 (running task untouched)", removed)
	}

	loaded, err := r.Get(ctx, claimed.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if loaded == nil || loaded.Status != StatusRunning {
		t.Fatalf("running task status = %v, want running", loaded)
	}
}

func TestFailRetriesThenGoesPermanent(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	task := &Task{Kind: KindFetchMediaMetadata, TargetID: uuid.New(), MaxAttempts: 2}
	if err := r.Enqueue(ctx, task); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	claimed, err := r.NextPending(ctx, nil)
	if err != nil {
		t.Fatalf("next pending: %v", err)
	}
	permanent, err := r.Fail(ctx, claimed, errors.New("network down"))
	if err != nil {
		t.Fatalf("fail: %v", err)
	}
	if permanent {
		t.Fatal("first failure should not be permanent")
	}
	if claimed.Status != StatusPending {
		t.Fatalf("status = %s, want pending for retry", claimed.Status)
	}
	if !claimed.RunAt.After(time.Now().UTC()) {
		t.Fatal("expected retry to be deferred by backoff")
	}

	// Second attempt exhausts max_attempts.
	claimed.Attempts = claimed.MaxAttempts
	permanent, err = r.Fail(ctx, claimed, errors.New("network still down"))
	if err != nil {
		t.Fatalf("fail: %v", err)
	}
	if !permanent {
		t.Fatal("exhausted task should fail permanently")
	}

	loaded, err := r.Get(ctx, claimed.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if loaded.Status != StatusFailed {
		t.Fatalf("status = %s, want failed", loaded.Status)
	}
	if loaded.LastError == "" {
		t.Fatal("expected last_error to be recorded")
	}
}

func TestCompleteReschedulesRepeatingTask(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	task := &Task{Kind: KindIndexSource, TargetID: uuid.New(), Repeat: time.Hour}
	if err := r.Enqueue(ctx, task); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	claimed, err := r.NextPending(ctx, nil)
	if err != nil {
		t.Fatalf("next pending: %v", err)
	}
	if err := r.Complete(ctx, claimed); err != nil {
		t.Fatalf("complete: %v", err)
	}

	loaded, err := r.Get(ctx, claimed.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if loaded.Status != StatusPending {
		t.Fatalf("status = %s, want pending after repeat reschedule", loaded.Status)
	}
	if !loaded.RunAt.After(time.Now().UTC().Add(30 * time.Minute)) {
		t.Fatalf("run_at = %v, want deferred by repeat interval", loaded.RunAt)
	}
}

func TestTaskTargetDecoding(t *testing.T) {
	id := uuid.New()
	tests := []struct {
		kind Kind
		want TargetType
	}{
		{KindIndexSource, TargetSource},
		{KindCheckSourceDirectory, TargetSource},
		{KindFetchMediaMetadata, TargetMedia},
		{KindDownloadMedia, TargetMedia},
		{KindRescanServer, TargetServer},
		{Kind("bogus"), TargetUnknown},
	}
	for _, tc := range tests {
		task := &Task{Kind: tc.kind, TargetID: id}
		target := task.Target()
		if target.Type != tc.want {
			t.Errorf("Target() for %s = %s, want %s", tc.kind, target.Type, tc.want)
		}
		if target.ID != id {
			t.Errorf("Target().ID mismatch for %s", tc.kind)
		}
	}
}

func TestResetRunning(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	if err := r.Enqueue(ctx, &Task{Kind: KindDownloadMedia, TargetID: uuid.New()}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := r.NextPending(ctx, nil); err != nil {
		t.Fatalf("next pending: %v", err)
	}

	reset, err := r.ResetRunning(ctx)
	if err != nil {
		t.Fatalf("reset running: %v", err)
	}
	if reset != 1 {
		t.Fatalf("reset = %d, want 1", reset)
	}

	stats, err := r.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats[StatusPending] != 1 || stats[StatusRunning] != 0 {
		t.Fatalf("stats = %v", stats)
	}
}
