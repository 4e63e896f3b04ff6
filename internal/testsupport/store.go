package testsupport

import (
	"context"
	"testing"

	"mediasync/internal/config"
	"mediasync/internal/store"
	"mediasync/internal/tasks"
)

// MustOpenStore opens the entity store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	entities, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = entities.Close()
	})
	return entities
}

// MustOpenRegistry opens the task registry for tests and registers cleanup.
func MustOpenRegistry(t testing.TB, cfg *config.Config) *tasks.Registry {
	t.Helper()

	registry, err := tasks.Open(cfg)
	if err != nil {
		t.Fatalf("tasks.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = registry.Close()
	})
	return registry
}

// NewSource persists a minimal source for tests using the provided store.
func NewSource(t testing.TB, entities *store.Store, name, key string) *store.Source {
	t.Helper()

	source := &store.Source{
		Name:      name,
		Key:       key,
		Type:      store.SourceTypeChannelID,
		Directory: name,
	}
	if _, err := entities.SaveSource(context.Background(), source); err != nil {
		t.Fatalf("store.SaveSource: %v", err)
	}
	return source
}
