package manager

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/reload"
	"github.com/starford/raido/internal/testutil"
)

type stubAttempter struct {
	outcome reload.Outcome
	failure *reload.Failure
	err     error
	started chan struct{}
	gate    chan struct{}

	mu    sync.Mutex
	paths []string
}

func (s *stubAttempter) Attempt(_ context.Context, path string) (reload.Outcome, *reload.Failure, error) {
	if s.started != nil {
		close(s.started)
	}
	if s.gate != nil {
		<-s.gate
	}
	s.mu.Lock()
	s.paths = append(s.paths, path)
	s.mu.Unlock()
	return s.outcome, s.failure, s.err
}

func newManager(opts ...Option) *Manager {
	return New(append([]Option{WithLogger(testutil.Logger())}, opts...)...)
}

func TestDispatchRoutesToUnit(t *testing.T) {
	m := newManager()
	exec := &stubAttempter{outcome: reload.Completed}
	a := reload.NewComponent("a/a.proj", "w1", exec, m)
	b := reload.NewComponent("b/b.proj", "w1", exec, m)
	for _, c := range []*reload.Component{a, b} {
		if err := c.Activate(); err != nil {
			t.Fatal(err)
		}
	}

	if got := m.Units(); len(got) != 2 || got[0] != "a/a.proj" || got[1] != "b/b.proj" {
		t.Fatalf("Units = %v", got)
	}
	outcome, err := m.Dispatch(context.Background(), "b/b.proj")
	if err != nil || outcome != reload.Completed {
		t.Fatalf("Dispatch = %s, %v", outcome, err)
	}
	if len(exec.paths) != 1 || exec.paths[0] != "b/b.proj" {
		t.Errorf("attempted = %v", exec.paths)
	}
}

func TestDispatchUnknown(t *testing.T) {
	m := newManager()
	_, err := m.Dispatch(context.Background(), "nope.proj")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestRegisterDuplicatePath(t *testing.T) {
	m := newManager()
	exec := &stubAttempter{}
	if err := reload.NewComponent("a.proj", "w1", exec, m).Activate(); err != nil {
		t.Fatal(err)
	}
	err := reload.NewComponent("a.proj", "w2", exec, m).Activate()
	if !errors.Is(err, apperr.ErrAlreadyExists) {
		t.Fatalf("err = %v, want ErrAlreadyExists", err)
	}
}

func TestUnregisterStopsRouting(t *testing.T) {
	m := newManager()
	c := reload.NewComponent("a.proj", "w1", &stubAttempter{}, m)
	if err := c.Activate(); err != nil {
		t.Fatal(err)
	}
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Dispatch(context.Background(), "a.proj"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	// A unit that is not registered is ignored.
	if err := m.UnregisterUnit(c); err != nil {
		t.Fatal(err)
	}
}

func TestUnregisterDuringReload(t *testing.T) {
	m := newManager()
	exec := &stubAttempter{outcome: reload.Completed, started: make(chan struct{}), gate: make(chan struct{})}
	c := reload.NewComponent("a.proj", "w1", exec, m)
	if err := c.Activate(); err != nil {
		t.Fatal(err)
	}

	done := make(chan reload.Outcome, 1)
	go func() {
		outcome, _ := m.Dispatch(context.Background(), "a.proj")
		done <- outcome
	}()
	<-exec.started

	// Closing must not wait for, or cancel, the running attempt.
	closed := make(chan struct{})
	go func() {
		c.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("Close blocked on an in-flight reload")
	}

	close(exec.gate)
	select {
	case outcome := <-done:
		if outcome != reload.Completed {
			t.Errorf("outcome = %s, want completed", outcome)
		}
	case <-time.After(time.Second):
		t.Fatal("in-flight reload did not finish")
	}
}

func TestFallbackOnIncompleteOutcome(t *testing.T) {
	for _, outcome := range []reload.Outcome{reload.Failed, reload.FailedProjectDirty, reload.Completed} {
		t.Run(outcome.String(), func(t *testing.T) {
			var got []reload.Outcome
			m := newManager(WithFallback(func(_ context.Context, u reload.Unit, o reload.Outcome, _ *reload.Failure) {
				if u.Path() != "a.proj" {
					t.Errorf("fallback unit = %s", u.Path())
				}
				got = append(got, o)
			}))
			if err := reload.NewComponent("a.proj", "w1", &stubAttempter{outcome: outcome}, m).Activate(); err != nil {
				t.Fatal(err)
			}
			if _, err := m.Dispatch(context.Background(), "a.proj"); err != nil {
				t.Fatal(err)
			}

			want := 1
			if outcome == reload.Completed {
				want = 0
			}
			if len(got) != want {
				t.Fatalf("fallback calls = %d, want %d", len(got), want)
			}
		})
	}
}

func TestFallbackReceivesAttemptFailure(t *testing.T) {
	want := &reload.Failure{Path: "a.proj", Kind: reload.KindReplace, Err: errors.New("interrupted")}
	var got *reload.Failure
	m := newManager(WithFallback(func(_ context.Context, _ reload.Unit, _ reload.Outcome, f *reload.Failure) {
		got = f
	}))
	exec := &stubAttempter{outcome: reload.Failed, failure: want}
	if err := reload.NewComponent("a.proj", "w1", exec, m).Activate(); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Dispatch(context.Background(), "a.proj"); err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Errorf("fallback failure = %v, want %v", got, want)
	}
}

func TestFallbackSkippedOnError(t *testing.T) {
	called := false
	m := newManager(WithFallback(func(context.Context, reload.Unit, reload.Outcome, *reload.Failure) { called = true }))
	exec := &stubAttempter{outcome: reload.Failed, err: apperr.ErrLockUnavailable}
	if err := reload.NewComponent("a.proj", "w1", exec, m).Activate(); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Dispatch(context.Background(), "a.proj"); !errors.Is(err, apperr.ErrLockUnavailable) {
		t.Fatalf("err = %v, want ErrLockUnavailable", err)
	}
	if called {
		t.Error("fallback ran for a lock failure")
	}
}

func TestClose(t *testing.T) {
	m := newManager()
	if err := reload.NewComponent("a.proj", "w1", &stubAttempter{}, m).Activate(); err != nil {
		t.Fatal(err)
	}
	m.Close()

	if len(m.Units()) != 0 {
		t.Error("units survived Close")
	}
	err := reload.NewComponent("b.proj", "w1", &stubAttempter{}, m).Activate()
	if !errors.Is(err, apperr.ErrManagerClosed) {
		t.Errorf("register err = %v, want ErrManagerClosed", err)
	}
	if _, err := m.Dispatch(context.Background(), "a.proj"); !errors.Is(err, apperr.ErrManagerClosed) {
		t.Errorf("dispatch err = %v, want ErrManagerClosed", err)
	}
}
