package reload

import (
	"context"
	"fmt"
	"sync"

	"github.com/starford/raido/internal/apperr"
)

// HostHandle identifies the host view a project is presented in.
type HostHandle string

// Unit is a reloadable project registered with a manager.
type Unit interface {
	Path() string
	Host() HostHandle
	Reload(ctx context.Context) (Outcome, *Failure, error)
}

// Registrar is the part of the reload manager a Component needs.
type Registrar interface {
	RegisterUnit(u Unit) error
	UnregisterUnit(u Unit) error
}

// Attempter runs reload attempts.
type Attempter interface {
	Attempt(ctx context.Context, path string) (Outcome, *Failure, error)
}

type componentState int

const (
	stateIdle componentState = iota
	stateActive
	stateDisposed
)

// Component binds one project file to a host view and makes it reloadable
// through the manager for as long as it is active.
type Component struct {
	path string
	host HostHandle
	exec Attempter
	reg  Registrar

	mu    sync.Mutex
	state componentState
}

var _ Unit = (*Component)(nil)

// NewComponent creates an inactive component.
func NewComponent(path string, host HostHandle, exec Attempter, reg Registrar) *Component {
	return &Component{path: path, host: host, exec: exec, reg: reg}
}

// Path returns the project file path.
func (c *Component) Path() string { return c.path }

// Host returns the host view handle.
func (c *Component) Host() HostHandle { return c.host }

// Activate registers the component with the manager. A registration failure
// leaves the component disposed.
func (c *Component) Activate() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case stateActive:
		return apperr.ErrAlreadyActivated
	case stateDisposed:
		return apperr.ErrDisposed
	}
	if err := c.reg.RegisterUnit(c); err != nil {
		c.state = stateDisposed
		return fmt.Errorf("reload: activate %s: %w", c.path, err)
	}
	c.state = stateActive
	return nil
}

// Close unregisters the component. Reloads already running are not
// cancelled.
func (c *Component) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	prev := c.state
	if prev == stateDisposed {
		return apperr.ErrDisposed
	}
	c.state = stateDisposed
	if prev == stateActive {
		if err := c.reg.UnregisterUnit(c); err != nil {
			return fmt.Errorf("reload: close %s: %w", c.path, err)
		}
	}
	return nil
}

// Reload runs one reload attempt for the component's project.
func (c *Component) Reload(ctx context.Context) (Outcome, *Failure, error) {
	c.mu.Lock()
	disposed := c.state == stateDisposed
	c.mu.Unlock()
	if disposed {
		return Failed, nil, fmt.Errorf("reload: %s: %w", c.path, apperr.ErrDisposed)
	}
	return c.exec.Attempt(ctx, c.path)
}
