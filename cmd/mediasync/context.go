package main

import (
	"strings"
	"sync"

	"github.com/spf13/afero"

	"mediasync/internal/config"
	"mediasync/internal/filtering"
	"mediasync/internal/reconcile"
	"mediasync/internal/store"
	"mediasync/internal/tasks"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// withStores opens the entity store and task registry with the lifecycle
// rules attached, so CLI mutations schedule follow-up work the same way
// daemon mutations do. Both stores share the daemon's database files; SQLite
// WAL mode keeps concurrent access safe.
func (c *commandContext) withStores(fn func(*store.Store, *tasks.Registry) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}

	entities, err := store.Open(cfg)
	if err != nil {
		return err
	}
	defer entities.Close()

	registry, err := tasks.Open(cfg)
	if err != nil {
		return err
	}
	defer registry.Close()

	reconciler := reconcile.New(cfg, entities, registry, filtering.NewEngine(nil), afero.NewOsFs(), nil)
	reconciler.Attach()

	return fn(entities, registry)
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
