package services

import (
	"errors"
	"strings"
	"testing"
)

func TestWrapTagsMarker(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(ErrValidation, "reconciler", "resolve source", "missing row", cause)
	if !errors.Is(err, ErrValidation) {
		t.Fatal("expected wrapped error to match ErrValidation")
	}
	if !errors.Is(err, cause) {
		t.Fatal("expected wrapped error to match cause")
	}
	if !strings.Contains(err.Error(), "reconciler: resolve source: missing row") {
		t.Fatalf("unexpected message: %v", err)
	}
}

func TestWrapDefaultsToTransient(t *testing.T) {
	err := Wrap(nil, "worker", "", "", nil)
	if !errors.Is(err, ErrTransient) {
		t.Fatal("expected nil marker to default to ErrTransient")
	}
}

func TestIsRetryable(t *testing.T) {
	if IsRetryable(nil) {
		t.Fatal("nil error is not retryable")
	}
	if IsRetryable(Wrap(ErrValidation, "x", "y", "z", nil)) {
		t.Fatal("validation errors must not retry")
	}
	if IsRetryable(Wrap(ErrNotFound, "x", "y", "z", nil)) {
		t.Fatal("not-found errors must not retry")
	}
	if !IsRetryable(Wrap(ErrExternalTool, "x", "y", "z", nil)) {
		t.Fatal("external tool errors should retry")
	}
	if !IsRetryable(errors.New("plain")) {
		t.Fatal("untagged errors should retry")
	}
}
