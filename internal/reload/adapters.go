package reload

import (
	"context"

	"github.com/starford/raido/internal/loadctx"
	"github.com/starford/raido/internal/projectstore"
)

// StoreLocks exposes a project store as a LockService.
func StoreLocks(s *projectstore.Store) LockService {
	return storeLocks{s: s}
}

type storeLocks struct {
	s *projectstore.Store
}

func (l storeLocks) AcquireWriteLock(ctx context.Context) (ScopedLock, error) {
	lock, err := l.s.AcquireWriteLock(ctx)
	if err != nil {
		return nil, err
	}
	return lock, nil
}

// Namespaces exposes a load context registry as a Loader.
func Namespaces(r *loadctx.Registry) Loader {
	return namespaces{r: r}
}

type namespaces struct {
	r *loadctx.Registry
}

func (n namespaces) New() Namespace {
	return n.r.New()
}
