package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rendis/flowgraph/internal/activities"
	"github.com/rendis/flowgraph/internal/definitions"
	"github.com/rendis/flowgraph/internal/engine"
	"github.com/rendis/flowgraph/internal/expressions"
	"github.com/rendis/flowgraph/internal/logging"
	"github.com/rendis/flowgraph/internal/serialization"
	"github.com/rendis/flowgraph/internal/store"
	"github.com/rendis/flowgraph/internal/streaming"
	"github.com/rendis/flowgraph/internal/validation"
)

// app is the wired engine shared by every command.
type app struct {
	cfg       Config
	logger    *slog.Logger
	store     *store.LibSQLStore
	defs      store.DefinitionStore
	catalog   *activities.Catalog
	validator *validation.WorkflowValidator
	hub       *streaming.WatermillHub
	manager   *engine.WorkflowManager
	closers   []func() error
}

// openApp opens the store and builds the manager. Activity output goes to
// out; logs go to stderr so stdout stays usable for the stdio transport.
func openApp(ctx context.Context, cfg Config, out io.Writer) (*app, error) {
	logger := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	a := &app{cfg: cfg, logger: logger}
	ok := false
	defer func() {
		if !ok {
			_ = a.Close()
		}
	}()

	var sealedKey []byte
	if cfg.SealedKey != "" {
		key, err := serialization.DeriveKey(cfg.SealedKey, []byte(cfg.SealedSalt), 0)
		if err != nil {
			return nil, err
		}
		sealedKey = key
	}
	registry, err := serialization.DefaultRegistry(sealedKey)
	if err != nil {
		return nil, err
	}

	if path := strings.TrimPrefix(cfg.DBPath, "file:"); path != cfg.DBPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	st, err := store.NewLibSQLStore(cfg.DBPath, store.NewCodec(registry))
	if err != nil {
		return nil, err
	}
	a.store = st
	a.closers = append(a.closers, st.Close)
	if err := st.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	a.defs = store.NewCachedDefinitions(st, cfg.DefinitionCacheTTL)

	var locker store.Locker = store.NewMemoryLocker()
	if addrs := cfg.redisAddrs(); len(addrs) > 0 {
		client := store.NewRedisClient(addrs...)
		a.closers = append(a.closers, client.Close)
		locker = store.NewRedisLocker(client, "flowgraph")
	}

	a.catalog, err = activities.NewDefaultCatalog(activities.BuiltinOptions{Output: out})
	if err != nil {
		return nil, err
	}
	resolver, err := expressions.DefaultResolver()
	if err != nil {
		return nil, err
	}
	a.validator, err = validation.NewWorkflowValidator(a.catalog, resolver)
	if err != nil {
		return nil, err
	}

	a.hub = streaming.NewWatermillHub(logger)
	a.closers = append(a.closers, a.hub.Close)

	a.manager, err = engine.NewWorkflowManager(engine.Options{
		Catalog:     a.catalog,
		Evaluators:  resolver,
		Definitions: a.defs,
		Instances:   st,
		Locker:      locker,
		Validator:   a.validator,
		Logger:      logger,
		MaxSteps:    cfg.MaxSteps,
		Handlers: []engine.ContextHandler{
			engine.LoggingHandler{Logger: logger},
			engine.EventLogHandler{Log: store.NewEventLog(st), Logger: logger},
			&streaming.Handler{Hub: a.hub, Logger: logger, Now: time.Now},
		},
	})
	if err != nil {
		return nil, err
	}

	ok = true
	return a, nil
}

// publishDir validates and stores every definition file in dir.
func (a *app) publishDir(ctx context.Context, dir string) (int, error) {
	defs, err := definitions.LoadDir(dir)
	if err != nil {
		return 0, err
	}
	for _, def := range defs {
		if err := definitions.Publish(ctx, a.defs, a.validator, def); err != nil {
			return 0, err
		}
	}
	return len(defs), nil
}

// Close releases everything openApp acquired, last first.
func (a *app) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}
