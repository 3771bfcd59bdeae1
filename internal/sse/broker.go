// Package sse streams project lifecycle events (reloaded, published,
// blocked, failed, reopened) to editing clients as Server-Sent Events.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"
)

// Project event kinds. The wire event name is "project.<kind>".
const (
	KindReloaded  = "reloaded"
	KindPublished = "published"
	KindBlocked   = "blocked"
	KindFailed    = "failed"
	KindReopened  = "reopened"
)

// WorkspaceUpdated is sent at most once per throttle window after
// publications.
const WorkspaceUpdated = "workspace.updated"

// Event is one message for subscribers. Events with a Path only reach
// subscribers watching that path or all paths.
type Event struct {
	Type string
	Path string
	Data any
}

type subscriber struct {
	path string
	out  chan []byte
}

type subscribeReq struct {
	sub  *subscriber
	done chan struct{}
}

// Broker fans events out to subscribers. One goroutine owns the
// subscriber set, the event sequence and the throttle clock; every public
// method talks to it over channels.
type Broker struct {
	throttle  time.Duration
	heartbeat time.Duration
	buffer    int

	subscribe   chan subscribeReq
	unsubscribe chan chan []byte
	events      chan Event
	count       chan chan int

	dropped atomic.Uint64
	stop    chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// Option configures a Broker.
type Option func(*Broker)

// WithWorkspaceThrottle bounds how often WorkspaceUpdated is sent.
func WithWorkspaceThrottle(d time.Duration) Option {
	return func(b *Broker) {
		if d > 0 {
			b.throttle = d
		}
	}
}

// WithHeartbeat makes ServeHTTP write a comment line every d so idle
// proxies keep the stream open. Zero disables it.
func WithHeartbeat(d time.Duration) Option {
	return func(b *Broker) {
		b.heartbeat = d
	}
}

// WithBuffer sets how many undelivered messages a subscriber may queue
// before new ones are dropped for it.
func WithBuffer(n int) Option {
	return func(b *Broker) {
		if n > 0 {
			b.buffer = n
		}
	}
}

// NewBroker starts a broker.
func NewBroker(opts ...Option) *Broker {
	b := &Broker{
		throttle:    2 * time.Second,
		heartbeat:   15 * time.Second,
		buffer:      64,
		subscribe:   make(chan subscribeReq),
		unsubscribe: make(chan chan []byte),
		events:      make(chan Event, 256),
		count:       make(chan chan int),
		stop:        make(chan struct{}),
		stopped:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	go b.loop()
	return b
}

func (b *Broker) loop() {
	defer close(b.stopped)

	subs := make(map[chan []byte]*subscriber)
	var (
		seq           uint64
		lastWorkspace time.Time
	)

	send := func(ev Event) {
		payload, err := json.Marshal(ev.Data)
		if err != nil {
			return
		}
		seq++
		frame := []byte(fmt.Sprintf("id: %d\nevent: %s\ndata: %s\n\n", seq, ev.Type, payload))
		for _, s := range subs {
			if ev.Path != "" && s.path != "" && s.path != ev.Path {
				continue
			}
			select {
			case s.out <- frame:
			default:
				b.dropped.Add(1)
			}
		}
	}

	for {
		select {
		case <-b.stop:
			for ch := range subs {
				close(ch)
			}
			return

		case req := <-b.subscribe:
			subs[req.sub.out] = req.sub
			close(req.done)

		case ch := <-b.unsubscribe:
			if _, ok := subs[ch]; ok {
				delete(subs, ch)
				close(ch)
			}

		case ev := <-b.events:
			send(ev)
			if ev.Type != "project."+KindPublished {
				continue
			}
			if now := time.Now(); now.Sub(lastWorkspace) >= b.throttle {
				lastWorkspace = now
				send(Event{Type: WorkspaceUpdated, Data: struct{}{}})
			}

		case resp := <-b.count:
			resp <- len(subs)
		}
	}
}

// Subscribe registers a subscriber for path ("" for every path) and
// returns its message channel. The channel is closed by Unsubscribe or
// Close.
func (b *Broker) Subscribe(path string) chan []byte {
	ch := make(chan []byte, b.buffer)
	if b.closed.Load() {
		close(ch)
		return ch
	}
	req := subscribeReq{sub: &subscriber{path: path, out: ch}, done: make(chan struct{})}
	select {
	case b.subscribe <- req:
		<-req.done
	case <-b.stopped:
		close(ch)
	}
	return ch
}

// Unsubscribe removes the subscriber and closes ch.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribe <- ch:
	case <-b.stopped:
	}
}

// Publish queues ev for delivery.
func (b *Broker) Publish(ev Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.events <- ev:
	case <-b.stopped:
	}
}

// PublishProjectEvent sends project.<kind> for path. generation is
// included when non-zero.
func (b *Broker) PublishProjectEvent(kind, path string, generation uint64) {
	data := map[string]any{"path": path}
	if generation > 0 {
		data["generation"] = generation
	}
	b.Publish(Event{Type: "project." + kind, Path: path, Data: data})
}

// ClientCount returns the number of subscribers.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}
	resp := make(chan int, 1)
	select {
	case b.count <- resp:
	case <-b.stopped:
		return 0
	}
	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Dropped returns how many messages were discarded for slow subscribers.
func (b *Broker) Dropped() uint64 {
	return b.dropped.Load()
}

// Close stops the broker and closes every subscriber channel.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stop)
	}
	<-b.stopped
}

// ServeHTTP streams events to one client. The optional "path" query
// parameter limits project events to that project.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "retry: %s\n\n", strconv.FormatInt(b.throttle.Milliseconds(), 10))
	flusher.Flush()

	ch := b.Subscribe(r.URL.Query().Get("path"))
	defer b.Unsubscribe(ch)

	var tick <-chan time.Time
	if b.heartbeat > 0 {
		t := time.NewTicker(b.heartbeat)
		defer t.Stop()
		tick = t.C
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case <-tick:
			_, _ = w.Write([]byte(": ping\n\n"))
			flusher.Flush()
		case frame, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(frame)
			flusher.Flush()
		}
	}
}
