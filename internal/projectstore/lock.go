package projectstore

import (
	"fmt"
	"sync"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/document"
)

// WriteLock is exclusive access to a Store. All document access made on
// behalf of the holder goes through the lock's methods, which fail with
// apperr.ErrLockReleased once Release has been called.
type WriteLock struct {
	store *Store
	id    uint64

	mu         sync.Mutex
	released   bool
	checkedOut []string
}

// ID returns a number identifying this acquisition, increasing per store.
func (l *WriteLock) ID() uint64 { return l.id }

// Checkout records that the holder is about to write the document at path.
func (l *WriteLock) Checkout(path string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.released {
		return apperr.ErrLockReleased
	}
	if _, ok := l.store.lookup(path); !ok {
		return fmt.Errorf("projectstore: checkout %s: %w", path, apperr.ErrNotFound)
	}
	l.store.mu.Lock()
	l.store.checkouts[path]++
	l.store.mu.Unlock()
	l.checkedOut = append(l.checkedOut, path)
	return nil
}

// Document returns the live document at path.
func (l *WriteLock) Document(path string) (*document.Document, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.released {
		return nil, apperr.ErrLockReleased
	}
	doc, ok := l.store.lookup(path)
	if !ok {
		return nil, fmt.Errorf("projectstore: document %s: %w", path, apperr.ErrNotFound)
	}
	return doc, nil
}

// Release ends exclusive access and drops the lock's checkouts. Calling it
// again is a no-op.
func (l *WriteLock) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.released {
		return
	}
	l.released = true

	l.store.mu.Lock()
	for _, p := range l.checkedOut {
		if l.store.checkouts[p]--; l.store.checkouts[p] <= 0 {
			delete(l.store.checkouts, p)
		}
	}
	l.store.mu.Unlock()
	l.checkedOut = nil

	l.store.sem.Release(l.store.maxReaders)
}
