// Package manager routes reload requests to the registered project units.
package manager

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/reload"
)

// FallbackFunc handles an attempt that did not complete. failure belongs to
// that attempt and is nil for FailedProjectDirty.
type FallbackFunc func(ctx context.Context, u reload.Unit, outcome reload.Outcome, failure *reload.Failure)

// Manager keeps one unit per project path.
type Manager struct {
	logger   *slog.Logger
	fallback FallbackFunc

	mu     sync.Mutex
	units  map[string]reload.Unit
	closed bool
}

var _ reload.Registrar = (*Manager)(nil)

// Option configures a Manager.
type Option func(*Manager)

// WithFallback sets the handler run after a FailedProjectDirty or Failed outcome.
func WithFallback(fn FallbackFunc) Option {
	return func(m *Manager) {
		m.fallback = fn
	}
}

// WithLogger sets the manager logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = l
	}
}

// New creates an empty manager.
func New(opts ...Option) *Manager {
	m := &Manager{
		logger: slog.Default(),
		units:  make(map[string]reload.Unit),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// RegisterUnit makes u the target for reloads of u.Path().
func (m *Manager) RegisterUnit(u reload.Unit) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return apperr.ErrManagerClosed
	}
	if _, ok := m.units[u.Path()]; ok {
		return fmt.Errorf("manager: register %s: %w", u.Path(), apperr.ErrAlreadyExists)
	}
	m.units[u.Path()] = u
	m.logger.Debug("manager: registered",
		slog.String("path", u.Path()),
		slog.String("host", string(u.Host())))
	return nil
}

// UnregisterUnit removes u. Unknown units are ignored.
func (m *Manager) UnregisterUnit(u reload.Unit) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cur, ok := m.units[u.Path()]; ok && cur == u {
		delete(m.units, u.Path())
		m.logger.Debug("manager: unregistered", slog.String("path", u.Path()))
	}
	return nil
}

// Dispatch reloads the unit registered for path.
func (m *Manager) Dispatch(ctx context.Context, path string) (reload.Outcome, error) {
	m.mu.Lock()
	u, ok := m.units[path]
	closed := m.closed
	m.mu.Unlock()

	if closed {
		return reload.Failed, apperr.ErrManagerClosed
	}
	if !ok {
		return reload.Failed, fmt.Errorf("manager: dispatch %s: %w", path, apperr.ErrNotFound)
	}

	outcome, failure, err := u.Reload(ctx)
	if err != nil {
		return outcome, err
	}
	if outcome != reload.Completed && m.fallback != nil {
		m.fallback(ctx, u, outcome, failure)
	}
	return outcome, nil
}

// Units returns the registered project paths, sorted.
func (m *Manager) Units() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.units))
	for p := range m.units {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Close drops every unit and rejects further registrations and dispatches.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	clear(m.units)
}
