// Package projectstore holds the live project documents shared by the
// editing host and guards them with a readers/writer lock.
//
// The lock is a weighted semaphore: readers take one unit and the writer
// takes all of them. Acquisition is FIFO and honours context cancellation,
// so a waiting writer holds back readers that arrive after it.
package projectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/document"
	"github.com/starford/raido/internal/parser"
	"github.com/starford/raido/internal/storage"
)

// DefaultMaxReaders is the number of concurrent readers admitted by default.
const DefaultMaxReaders = 64

// Store is the shared project-state store.
type Store struct {
	source     storage.Provider
	logger     *slog.Logger
	maxReaders int64
	sem        *semaphore.Weighted

	// mu guards the maps below. Holding the semaphore decides who may touch
	// documents; mu only protects the bookkeeping itself.
	mu        sync.Mutex
	docs      map[string]*document.Document
	checkouts map[string]int

	closed atomic.Bool
	lockID atomic.Uint64
}

// Option configures a Store.
type Option func(*Store)

// WithMaxReaders sets the number of concurrent readers.
func WithMaxReaders(n int64) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxReaders = n
		}
	}
}

// WithLogger sets the store logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// New creates an empty store reading and writing through source.
func New(source storage.Provider, opts ...Option) *Store {
	s := &Store{
		source:     source,
		logger:     slog.Default(),
		maxReaders: DefaultMaxReaders,
		docs:       make(map[string]*document.Document),
		checkouts:  make(map[string]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.sem = semaphore.NewWeighted(s.maxReaders)
	return s
}

// AcquireWriteLock blocks until the caller holds exclusive access to the
// store or ctx is done.
func (s *Store) AcquireWriteLock(ctx context.Context) (*WriteLock, error) {
	if s.closed.Load() {
		return nil, apperr.ErrLockUnavailable
	}
	if err := s.sem.Acquire(ctx, s.maxReaders); err != nil {
		return nil, fmt.Errorf("projectstore: acquire write lock: %w", err)
	}
	if s.closed.Load() {
		s.sem.Release(s.maxReaders)
		return nil, apperr.ErrLockUnavailable
	}
	return &WriteLock{store: s, id: s.lockID.Add(1)}, nil
}

func (s *Store) acquireRead(ctx context.Context) error {
	if s.closed.Load() {
		return apperr.ErrLockUnavailable
	}
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("projectstore: acquire read lock: %w", err)
	}
	return nil
}

// Read runs fn with shared access to the live document at path. fn must not
// retain doc or call mutating methods on it.
func (s *Store) Read(ctx context.Context, path string, fn func(doc *document.Document) error) error {
	if err := s.acquireRead(ctx); err != nil {
		return err
	}
	defer s.sem.Release(1)

	doc, ok := s.lookup(path)
	if !ok {
		return fmt.Errorf("projectstore: %s: %w", path, apperr.ErrNotFound)
	}
	return fn(doc)
}

// Edit runs fn with exclusive access to the live document at path.
func (s *Store) Edit(ctx context.Context, path string, fn func(doc *document.Document) error) error {
	lock, err := s.AcquireWriteLock(ctx)
	if err != nil {
		return err
	}
	defer lock.Release()

	if err := lock.Checkout(path); err != nil {
		return err
	}
	doc, err := lock.Document(path)
	if err != nil {
		return err
	}
	return fn(doc)
}

// Open loads the project file at path into the store. Opening a path that is
// already open returns apperr.ErrAlreadyExists.
func (s *Store) Open(ctx context.Context, path string) error {
	lock, err := s.AcquireWriteLock(ctx)
	if err != nil {
		return err
	}
	defer lock.Release()

	if _, ok := s.lookup(path); ok {
		return fmt.Errorf("projectstore: open %s: %w", path, apperr.ErrAlreadyExists)
	}
	doc, err := s.load(path)
	if err != nil {
		return err
	}
	s.put(path, doc)
	s.logger.Info("store: opened", slog.String("path", path))
	return nil
}

// Reopen discards the live document object for path and replaces it with a
// fresh parse of the file on disk. Unsaved changes are lost. This is the full
// reload the host falls back to when an in-place reload cannot be trusted.
func (s *Store) Reopen(ctx context.Context, path string) error {
	lock, err := s.AcquireWriteLock(ctx)
	if err != nil {
		return err
	}
	defer lock.Release()

	if _, ok := s.lookup(path); !ok {
		return fmt.Errorf("projectstore: reopen %s: %w", path, apperr.ErrNotFound)
	}
	doc, err := s.load(path)
	if err != nil {
		return err
	}
	s.put(path, doc)
	s.logger.Info("store: reopened", slog.String("path", path))
	return nil
}

// Save persists the live document at path and clears its dirty flag. The
// flag is only cleared once the bytes are on disk.
func (s *Store) Save(ctx context.Context, path string) error {
	return s.Edit(ctx, path, func(doc *document.Document) error {
		var buf bytes.Buffer
		if err := document.Encode(&buf, doc.Format(), doc.Snapshot()); err != nil {
			return fmt.Errorf("projectstore: encode %s: %w", path, err)
		}
		if err := s.source.Write(path, buf.Bytes()); err != nil {
			return fmt.Errorf("projectstore: save %s: %w", path, err)
		}
		return doc.Save(io.Discard)
	})
}

// Close makes every further lock acquisition fail with apperr.ErrLockUnavailable.
func (s *Store) Close() {
	s.closed.Store(true)
}

// Paths returns the paths of every open document, sorted.
func (s *Store) Paths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.docs))
	for p := range s.docs {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Checkouts returns the number of checkouts recorded for path by locks
// that are still held.
func (s *Store) Checkouts(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checkouts[path]
}

func (s *Store) load(path string) (*document.Document, error) {
	data, err := s.source.Read(path)
	if err != nil {
		return nil, fmt.Errorf("projectstore: load %s: %w", path, err)
	}
	doc, err := parser.Parse(path, data)
	if err != nil {
		return nil, err
	}
	if err := doc.Validate(); err != nil {
		return nil, fmt.Errorf("projectstore: load %s: %w", path, err)
	}
	return doc, nil
}

func (s *Store) lookup(path string) (*document.Document, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[path]
	return doc, ok
}

func (s *Store) put(path string, doc *document.Document) {
	s.mu.Lock()
	s.docs[path] = doc
	s.mu.Unlock()
}
