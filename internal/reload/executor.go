package reload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/starford/raido/internal/document"
	"github.com/starford/raido/internal/parser"
)

// ScopedLock is exclusive write access to the project store. Every call
// made while reloading goes through the lock.
type ScopedLock interface {
	Checkout(path string) error
	Document(path string) (*document.Document, error)
	Release()
}

// LockService hands out the exclusive write lock.
type LockService interface {
	AcquireWriteLock(ctx context.Context) (ScopedLock, error)
}

// Namespace is an isolated load context.
type Namespace interface {
	Open(path string) (*document.Document, error)
	NewScratch(path string) (*document.Document, error)
	Unload()
}

// Loader creates isolated load contexts.
type Loader interface {
	New() Namespace
}

// Publisher re-evaluates and publishes the project tree.
type Publisher interface {
	PublishLatest(blockUntilDone bool)
}

// Observer is told how every reload attempt ended. kind is empty unless
// the outcome is Failed.
type Observer interface {
	ObserveReload(outcome, kind string, took time.Duration)
}

// ReplaceFunc installs src's content into live.
type ReplaceFunc func(live, src *document.Document) error

// Executor performs reload attempts.
type Executor struct {
	locks     LockService
	loader    Loader
	publisher Publisher
	replace   ReplaceFunc
	observer  Observer
	logger    *slog.Logger

	mu       sync.Mutex
	last     *Failure
	failures map[string]*Failure
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithReplace overrides how content is installed into the live document.
func WithReplace(fn ReplaceFunc) ExecutorOption {
	return func(e *Executor) {
		e.replace = fn
	}
}

// WithObserver reports every terminal outcome to o.
func WithObserver(o Observer) ExecutorOption {
	return func(e *Executor) {
		e.observer = o
	}
}

// WithLogger sets the executor logger.
func WithLogger(l *slog.Logger) ExecutorOption {
	return func(e *Executor) {
		e.logger = l
	}
}

// NewExecutor creates an executor over the given collaborators.
func NewExecutor(locks LockService, loader Loader, publisher Publisher, opts ...ExecutorOption) *Executor {
	e := &Executor{
		locks:     locks,
		loader:    loader,
		publisher: publisher,
		replace:   (*document.Document).ReplaceContent,
		logger:    slog.Default(),
		failures:  make(map[string]*Failure),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// AttemptReload replaces the live document at path with the file on disk.
//
// ctx only bounds lock acquisition; once the lock is held the attempt runs
// to a terminal outcome. A non-nil error means the store could not be
// locked or did not know path, and the outcome is meaningless. Publication
// happens after the lock is released and only for Completed.
func (e *Executor) AttemptReload(ctx context.Context, path string) (Outcome, error) {
	outcome, _, err := e.Attempt(ctx, path)
	return outcome, err
}

// Attempt is AttemptReload that also returns the failure of this attempt
// (nil unless the outcome is Failed). Unlike FailureOf it cannot be
// overwritten by a later attempt on the same path.
func (e *Executor) Attempt(ctx context.Context, path string) (Outcome, *Failure, error) {
	start := time.Now()

	lock, err := e.locks.AcquireWriteLock(ctx)
	if err != nil {
		return Failed, nil, fmt.Errorf("reload: %s: %w", path, err)
	}

	outcome, failure, err := e.reloadLocked(lock, path)
	if err != nil {
		return Failed, nil, fmt.Errorf("reload: %s: %w", path, err)
	}
	e.record(path, failure)
	e.observe(outcome, failure, time.Since(start))

	switch outcome {
	case Completed:
		e.publisher.PublishLatest(true)
		e.logger.Info("reload: completed",
			slog.String("path", path),
			slog.Duration("took", time.Since(start)))
	case FailedProjectDirty:
		e.logger.Info("reload: live document has unsaved changes", slog.String("path", path))
	case Failed:
		e.logger.Warn("reload: failed",
			slog.String("path", path),
			slog.String("kind", failure.Kind.String()),
			slog.Bool("live_untouched", failure.LiveUntouched()),
			slog.String("error", failure.Err.Error()))
	}
	return outcome, failure, nil
}

func (e *Executor) observe(outcome Outcome, f *Failure, took time.Duration) {
	if e.observer == nil {
		return
	}
	kind := ""
	if f != nil {
		kind = f.Kind.String()
	}
	e.observer.ObserveReload(outcome.String(), kind, took)
}

// reloadLocked runs every step that needs the lock and releases it before
// returning. The isolated namespace is unloaded first.
func (e *Executor) reloadLocked(lock ScopedLock, path string) (Outcome, *Failure, error) {
	defer lock.Release()

	if err := lock.Checkout(path); err != nil {
		return Failed, nil, err
	}
	live, err := lock.Document(path)
	if err != nil {
		return Failed, nil, err
	}
	if live.IsDirty() {
		return FailedProjectDirty, nil, nil
	}

	ns := e.loader.New()
	defer ns.Unload()

	fresh, err := ns.Open(path)
	if err != nil {
		kind := KindRead
		var pe *parser.ParseError
		if errors.As(err, &pe) {
			kind = KindParse
		}
		return Failed, &Failure{Path: path, Kind: kind, Err: err}, nil
	}

	// Surface copy-time failures before the live document is touched.
	scratch, err := ns.NewScratch(path)
	if err != nil {
		return Failed, &Failure{Path: path, Kind: KindValidate, Err: err}, nil
	}
	if err := scratch.CopyFrom(fresh); err != nil {
		return Failed, &Failure{Path: path, Kind: KindValidate, Err: err}, nil
	}

	if err := e.safeReplace(live, fresh); err != nil {
		return Failed, &Failure{Path: path, Kind: KindReplace, Err: err}, nil
	}

	// Content now equals the file on disk; encoding to a discard sink is
	// the document's way of marking itself clean.
	if err := live.Save(io.Discard); err != nil {
		return Failed, &Failure{Path: path, Kind: KindReplace, Err: err}, nil
	}
	return Completed, nil, nil
}

func (e *Executor) safeReplace(live, src *document.Document) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during replace: %v", r)
		}
	}()
	return e.replace(live, src)
}

func (e *Executor) record(path string, f *Failure) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.last = f
	if f == nil {
		delete(e.failures, path)
		return
	}
	e.failures[path] = f
}

// LastFailure returns the failure of the most recent attempt that reached a
// terminal outcome, or nil if it did not end in Failed.
func (e *Executor) LastFailure() *Failure {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last
}

// FailureOf returns the failure of the most recent attempt for path, or nil
// if that attempt did not end in Failed.
func (e *Executor) FailureOf(path string) *Failure {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.failures[path]
}
