// Package publish implements the tree publication gate: after a project tree
// changes, it re-evaluates every open project, persists the results and
// notifies clients, and lets the caller wait until all of that is visible.
package publish

import (
	"bytes"
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/starford/raido/internal/checksum"
	"github.com/starford/raido/internal/document"
	"github.com/starford/raido/internal/evaluate"
	"github.com/starford/raido/internal/index"
	"github.com/starford/raido/internal/sse"
)

// Reader gives shared access to live project documents.
type Reader interface {
	Paths() []string
	Read(ctx context.Context, path string, fn func(doc *document.Document) error) error
}

// Sink stores evaluation results.
type Sink interface {
	UpsertEvaluation(row index.ProjectRow, res *evaluate.Result) error
	DeleteProject(path string) error
	AllPaths() (map[string]struct{}, error)
}

// Notifier is told about every published project.
type Notifier interface {
	PublishProjectEvent(kind, path string, generation uint64)
}

// PassObserver is told about every completed pass.
type PassObserver interface {
	ObservePass(projects int, took time.Duration)
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithPassObserver reports every completed pass to o.
func WithPassObserver(o PassObserver) GateOption {
	return func(g *Gate) {
		g.observer = o
	}
}

type request struct {
	done chan struct{}
}

// Gate runs evaluation passes on a single goroutine. Requests that arrive
// while a pass is running are coalesced into the next pass, so one pass may
// satisfy many callers.
type Gate struct {
	store    Reader
	sink     Sink
	notifier Notifier
	observer PassObserver
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	requests chan request
	stopCh   chan struct{}
	stopped  chan struct{}
	closed   atomic.Bool

	generation atomic.Uint64
}

// NewGate starts a gate. notifier may be nil.
func NewGate(store Reader, sink Sink, notifier Notifier, logger *slog.Logger, opts ...GateOption) *Gate {
	ctx, cancel := context.WithCancel(context.Background())
	g := &Gate{
		store:    store,
		sink:     sink,
		notifier: notifier,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		requests: make(chan request, 64),
		stopCh:   make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(g)
	}
	go g.run()
	return g
}

func (g *Gate) run() {
	defer close(g.stopped)

	for {
		select {
		case <-g.stopCh:
			return

		case req := <-g.requests:
			batch := []request{req}
		drain:
			for {
				select {
				case r := <-g.requests:
					batch = append(batch, r)
				default:
					break drain
				}
			}

			g.pass()
			for _, r := range batch {
				close(r.done)
			}
		}
	}
}

// pass evaluates and persists every open project once.
func (g *Gate) pass() {
	start := time.Now()
	gen := g.generation.Load() + 1
	open := make(map[string]struct{})
	published := 0

	for _, path := range g.store.Paths() {
		open[path] = struct{}{}

		var (
			snap   *document.Node
			format document.Format
		)
		err := g.store.Read(g.ctx, path, func(doc *document.Document) error {
			snap = doc.Snapshot()
			format = doc.Format()
			return nil
		})
		if err != nil {
			g.logger.Warn("publish: read failed", slog.String("path", path), slog.String("error", err.Error()))
			continue
		}

		var buf bytes.Buffer
		if err := document.Encode(&buf, format, snap); err != nil {
			g.logger.Warn("publish: encode failed", slog.String("path", path), slog.String("error", err.Error()))
			continue
		}
		res := evaluate.Evaluate(path, snap)

		row := index.ProjectRow{Path: path, Checksum: checksum.Sum(buf.Bytes()), Generation: gen}
		if err := g.sink.UpsertEvaluation(row, res); err != nil {
			g.logger.Warn("publish: persist failed", slog.String("path", path), slog.String("error", err.Error()))
			continue
		}
		published++
		g.logger.Debug("publish: evaluated",
			slog.String("path", path),
			slog.String("checksum", checksum.Short(buf.Bytes())),
			slog.Int("properties", len(res.Properties)),
			slog.Int("items", len(res.Items)))
		if g.notifier != nil {
			g.notifier.PublishProjectEvent(sse.KindPublished, path, gen)
		}
	}

	indexed, err := g.sink.AllPaths()
	if err != nil {
		g.logger.Warn("publish: list indexed failed", slog.String("error", err.Error()))
	}
	for p := range indexed {
		if _, ok := open[p]; ok {
			continue
		}
		if err := g.sink.DeleteProject(p); err != nil {
			g.logger.Warn("publish: delete stale failed", slog.String("path", p), slog.String("error", err.Error()))
		}
	}

	g.generation.Store(gen)
	if g.observer != nil {
		g.observer.ObservePass(published, time.Since(start))
	}
}

// PublishLatest asks for an evaluation pass covering the current tree
// state. With blockUntilDone it returns only after that pass has completed,
// at which point every reader of the index sees the new state. After Close
// there is nothing to publish to and it returns immediately.
func (g *Gate) PublishLatest(blockUntilDone bool) {
	if g.closed.Load() {
		return
	}
	req := request{done: make(chan struct{})}
	select {
	case g.requests <- req:
	case <-g.stopped:
		return
	}
	if !blockUntilDone {
		return
	}
	select {
	case <-req.done:
	case <-g.stopped:
	}
}

// Generation returns the number of completed evaluation passes.
func (g *Gate) Generation() uint64 {
	return g.generation.Load()
}

// Close stops the evaluation loop and releases every waiter.
func (g *Gate) Close() {
	if g.closed.CompareAndSwap(false, true) {
		g.cancel()
		close(g.stopCh)
	}
	<-g.stopped
}
