package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/document"
	"github.com/starford/raido/internal/index"
	"github.com/starford/raido/internal/loadctx"
	"github.com/starford/raido/internal/manager"
	"github.com/starford/raido/internal/metrics"
	"github.com/starford/raido/internal/projectservice"
	"github.com/starford/raido/internal/projectstore"
	"github.com/starford/raido/internal/publish"
	"github.com/starford/raido/internal/reload"
	"github.com/starford/raido/internal/sse"
	"github.com/starford/raido/internal/storage"
)

// runtime is the wired object graph shared by the HTTP and MCP front ends.
type runtime struct {
	cfg    *Config
	logger *slog.Logger
	host   reload.HostHandle

	fs      *storage.FS
	db      *index.DB
	store   *projectstore.Store
	broker  *sse.Broker
	gate    *publish.Gate
	exec    *reload.Executor
	mgr     *manager.Manager
	svc     *projectservice.Service
	metrics *metrics.Metrics

	mu         sync.Mutex
	components map[string]*reload.Component
}

func newRuntime(ctx context.Context, cfg *Config, logger *slog.Logger, host reload.HostHandle) (*runtime, error) {
	if err := os.MkdirAll(cfg.Workspace.Root, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace dir: %w", err)
	}
	fs, err := storage.NewFS(cfg.Workspace.Root)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}
	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init index: %w", err)
	}

	rt := &runtime{
		cfg:        cfg,
		logger:     logger,
		host:       host,
		fs:         fs,
		db:         db,
		metrics:    metrics.New(),
		components: make(map[string]*reload.Component),
	}
	rt.store = projectstore.New(fs,
		projectstore.WithMaxReaders(cfg.Reload.MaxReaders),
		projectstore.WithLogger(logger))
	rt.broker = sse.NewBroker()
	rt.gate = publish.NewGate(rt.store, db, rt.broker, logger,
		publish.WithPassObserver(rt.metrics))
	rt.exec = reload.NewExecutor(
		reload.StoreLocks(rt.store),
		reload.Namespaces(loadctx.NewRegistry(fs)),
		rt.gate,
		reload.WithObserver(rt.metrics),
		reload.WithLogger(logger))
	rt.mgr = manager.New(
		manager.WithLogger(logger),
		manager.WithFallback(rt.fallback))
	rt.svc = projectservice.NewService(rt.store, db, rt.gate, rt.mgr)

	paths := cfg.Workspace.Projects
	if cfg.Workspace.Discover() {
		files, err := fs.List("")
		if err != nil {
			rt.close()
			return nil, fmt.Errorf("scan workspace: %w", err)
		}
		paths = paths[:0:0]
		for _, f := range files {
			paths = append(paths, f.Path)
		}
	}
	for _, p := range paths {
		if err := rt.openProject(ctx, p); err != nil {
			logger.Warn("project not opened", slog.String("path", p), slog.String("error", err.Error()))
		}
	}
	rt.gate.PublishLatest(true)

	logger.Info("workspace loaded",
		slog.String("root", fs.Root()),
		slog.Int("projects", len(rt.store.Paths())),
		slog.Uint64("generation", rt.gate.Generation()))
	return rt, nil
}

// openProject loads path into the store and makes it reloadable.
func (rt *runtime) openProject(ctx context.Context, path string) error {
	if err := rt.store.Open(ctx, path); err != nil {
		return err
	}
	c := reload.NewComponent(path, rt.host, rt.exec, rt.mgr)
	if err := c.Activate(); err != nil {
		return err
	}
	rt.mu.Lock()
	rt.components[path] = c
	rt.mu.Unlock()
	return nil
}

// onFileChanged handles a debounced watcher trigger.
func (rt *runtime) onFileChanged(ctx context.Context, path string) {
	ctx, cancel := context.WithTimeout(ctx, rt.cfg.Reload.LockTimeout)
	defer cancel()

	outcome, err := rt.mgr.Dispatch(ctx, path)
	switch {
	case errors.Is(err, apperr.ErrNotFound) && rt.cfg.Workspace.Discover() && document.IsProjectFile(path):
		if err := rt.openProject(ctx, path); err != nil {
			rt.logger.Warn("new project not opened", slog.String("path", path), slog.String("error", err.Error()))
			return
		}
		rt.logger.Info("new project opened", slog.String("path", path))
		rt.gate.PublishLatest(false)
	case err != nil:
		rt.logger.Warn("reload not attempted", slog.String("path", path), slog.String("error", err.Error()))
	case outcome == reload.Completed:
		rt.broker.PublishProjectEvent(sse.KindReloaded, path, rt.gate.Generation())
	}
}

// fallback runs for reloads that did not complete. f is the failure of
// that attempt, not whatever attempt on the path finished last.
func (rt *runtime) fallback(ctx context.Context, u reload.Unit, outcome reload.Outcome, f *reload.Failure) {
	path := u.Path()
	if outcome == reload.FailedProjectDirty {
		rt.broker.PublishProjectEvent(sse.KindBlocked, path, 0)
		return
	}

	rt.broker.PublishProjectEvent(sse.KindFailed, path, 0)
	if f == nil || f.LiveUntouched() || !rt.cfg.Reload.ReopenOnFailure {
		return
	}
	if err := rt.store.Reopen(ctx, path); err != nil {
		rt.logger.Error("reopen after failed reload", slog.String("path", path), slog.String("error", err.Error()))
		return
	}
	rt.gate.PublishLatest(true)
	rt.broker.PublishProjectEvent(sse.KindReopened, path, rt.gate.Generation())
}

func (rt *runtime) close() {
	rt.mu.Lock()
	for _, c := range rt.components {
		_ = c.Close()
	}
	clear(rt.components)
	rt.mu.Unlock()

	if rt.mgr != nil {
		rt.mgr.Close()
	}
	if rt.gate != nil {
		rt.gate.Close()
	}
	if rt.store != nil {
		rt.store.Close()
	}
	if rt.broker != nil {
		rt.broker.Close()
	}
	if err := rt.db.Close(); err != nil {
		rt.logger.Warn("close index", slog.String("error", err.Error()))
	}
}
