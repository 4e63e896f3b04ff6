package logs_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"mediasync/internal/logs"
)

func TestLastLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mediasync.log")
	if err := os.WriteFile(path, []byte("a\nb\nc\n"), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}

	lines, offset, err := logs.Last(path, 2)
	if err != nil {
		t.Fatalf("last returned error: %v", err)
	}
	if len(lines) != 2 || lines[0] != "b" || lines[1] != "c" {
		t.Fatalf("unexpected lines: %#v", lines)
	}
	if offset == 0 {
		t.Fatal("expected offset to advance")
	}
}

func TestLastMissingFile(t *testing.T) {
	lines, offset, err := logs.Last(filepath.Join(t.TempDir(), "absent.log"), 10)
	if err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if len(lines) != 0 || offset != 0 {
		t.Fatalf("lines=%v offset=%d", lines, offset)
	}
}

func TestReadSince(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mediasync.log")
	if err := os.WriteFile(path, []byte("start\n"), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}

	_, offset, err := logs.Last(path, 1)
	if err != nil {
		t.Fatal(err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString("later\n"); err != nil {
		t.Fatal(err)
	}
	_ = f.Close()

	lines, newOffset, err := logs.ReadSince(path, offset)
	if err != nil {
		t.Fatalf("read since: %v", err)
	}
	if len(lines) != 1 || lines[0] != "later" {
		t.Fatalf("unexpected lines: %#v", lines)
	}
	if newOffset <= offset {
		t.Fatalf("offset did not advance: %d -> %d", offset, newOffset)
	}
}

func TestFollowDeliversAppendedLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mediasync.log")
	if err := os.WriteFile(path, []byte("start\n"), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	_, offset, err := logs.Last(path, 1)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	var mu sync.Mutex
	var got []string
	done := make(chan struct{})
	go func() {
		_ = logs.Follow(ctx, path, offset, func(lines []string) {
			mu.Lock()
			got = append(got, lines...)
			mu.Unlock()
			cancel()
		})
		close(done)
	}()

	time.Sleep(100 * time.Millisecond)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString("later\n"); err != nil {
		t.Fatal(err)
	}
	_ = f.Close()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("follow did not observe appended line")
	}
	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || got[0] != "later" {
		t.Fatalf("unexpected lines: %#v", got)
	}
}
