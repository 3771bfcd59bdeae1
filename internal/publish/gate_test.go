package publish

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/starford/raido/internal/document"
	"github.com/starford/raido/internal/evaluate"
	"github.com/starford/raido/internal/index"
	"github.com/starford/raido/internal/projectstore"
	"github.com/starford/raido/internal/testutil"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *recordingNotifier) PublishProjectEvent(kind, path string, _ uint64) {
	n.mu.Lock()
	n.events = append(n.events, kind+":"+path)
	n.mu.Unlock()
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.events)
}

// slowSink delays every write so that callers racing the gate would notice.
type slowSink struct {
	delay time.Duration

	mu    sync.Mutex
	rows  map[string]index.ProjectRow
	calls int
}

func (s *slowSink) UpsertEvaluation(row index.ProjectRow, _ *evaluate.Result) error {
	time.Sleep(s.delay)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rows == nil {
		s.rows = make(map[string]index.ProjectRow)
	}
	s.rows[row.Path] = row
	s.calls++
	return nil
}

func (s *slowSink) DeleteProject(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, path)
	return nil
}

func (s *slowSink) AllPaths() (map[string]struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]struct{}, len(s.rows))
	for p := range s.rows {
		out[p] = struct{}{}
	}
	return out, nil
}

func openedStore(t *testing.T, files map[string]string) *projectstore.Store {
	t.Helper()
	_, fs := testutil.TestWorkspace(t)
	store := projectstore.New(fs, projectstore.WithLogger(testutil.Logger()))
	for path, content := range files {
		testutil.WriteFile(t, fs, path, content)
		if err := store.Open(context.Background(), path); err != nil {
			t.Fatalf("Open %s: %v", path, err)
		}
	}
	return store
}

func TestPublishLatest_PersistsEvaluation(t *testing.T) {
	store := openedStore(t, map[string]string{
		"app.proj": `<project><properties><Name>app</Name><Out>bin/$(Name)</Out></properties></project>`,
	})
	db := testutil.TestDB(t)
	notifier := &recordingNotifier{}
	g := NewGate(store, db, notifier, testutil.Logger())
	defer g.Close()

	g.PublishLatest(true)

	res, err := db.Evaluation("app.proj")
	if err != nil {
		t.Fatalf("Evaluation: %v", err)
	}
	if v, _ := res.Property("Out"); v != "bin/app" {
		t.Errorf("Out = %q, want bin/app", v)
	}
	row, _ := db.GetProject("app.proj")
	if row.Generation != 1 || row.Checksum == "" {
		t.Errorf("row = %+v", row)
	}
	if g.Generation() != 1 {
		t.Errorf("generation = %d, want 1", g.Generation())
	}
	if notifier.count() != 1 {
		t.Errorf("notifications = %d, want 1", notifier.count())
	}
}

func TestPublishLatest_BlocksUntilVisible(t *testing.T) {
	store := openedStore(t, map[string]string{"a.proj": "<project/>", "b.proj": "<project/>"})
	sink := &slowSink{delay: 30 * time.Millisecond}
	g := NewGate(store, sink, nil, testutil.Logger())
	defer g.Close()

	g.PublishLatest(true)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.rows) != 2 {
		t.Errorf("rows visible after PublishLatest = %d, want 2", len(sink.rows))
	}
}

func TestPublishLatest_SeesEditsMadeBeforeCall(t *testing.T) {
	store := openedStore(t, map[string]string{"app.proj": "<project><properties><V>1</V></properties></project>"})
	db := testutil.TestDB(t)
	g := NewGate(store, db, nil, testutil.Logger())
	defer g.Close()

	g.PublishLatest(true)
	_ = store.Edit(context.Background(), "app.proj", func(doc *document.Document) error {
		return doc.SetProperty("V", "2")
	})
	g.PublishLatest(true)

	res, _ := db.Evaluation("app.proj")
	if v, _ := res.Property("V"); v != "2" {
		t.Errorf("V = %q, want 2", v)
	}
}

func TestPublishLatest_Coalesces(t *testing.T) {
	store := openedStore(t, map[string]string{"a.proj": "<project/>"})
	sink := &slowSink{delay: 20 * time.Millisecond}
	g := NewGate(store, sink, nil, testutil.Logger())
	defer g.Close()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			g.PublishLatest(true)
		}()
	}
	wg.Wait()

	if g.Generation() == 0 || g.Generation() > 10 {
		t.Errorf("generation = %d", g.Generation())
	}
	sink.mu.Lock()
	calls := sink.calls
	sink.mu.Unlock()
	if uint64(calls) != g.Generation() {
		t.Errorf("sink calls = %d, generation = %d", calls, g.Generation())
	}
}

func TestPublishLatest_RemovesStaleProjects(t *testing.T) {
	store := openedStore(t, map[string]string{"a.proj": "<project/>"})
	db := testutil.TestDB(t)
	_ = db.UpsertEvaluation(index.ProjectRow{Path: "gone.proj"}, &evaluate.Result{Path: "gone.proj"})
	g := NewGate(store, db, nil, testutil.Logger())
	defer g.Close()

	g.PublishLatest(true)

	paths, _ := db.AllPaths()
	if _, ok := paths["gone.proj"]; ok {
		t.Error("stale project not removed")
	}
	if _, ok := paths["a.proj"]; !ok {
		t.Error("open project not indexed")
	}
}

func TestClose_ReleasesAndNoops(t *testing.T) {
	store := openedStore(t, map[string]string{"a.proj": "<project/>"})
	g := NewGate(store, &slowSink{}, nil, testutil.Logger())
	g.Close()
	g.Close()

	done := make(chan struct{})
	go func() {
		g.PublishLatest(true)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("PublishLatest blocked after Close")
	}
}

type passCounter struct {
	passes   atomic.Int64
	projects atomic.Int64
}

func (c *passCounter) ObservePass(projects int, _ time.Duration) {
	c.passes.Add(1)
	c.projects.Add(int64(projects))
}

func TestPublishLatest_ReportsPasses(t *testing.T) {
	store := openedStore(t, map[string]string{"a.proj": "<project/>", "b.proj": "<project/>"})
	obs := &passCounter{}
	g := NewGate(store, testutil.TestDB(t), nil, testutil.Logger(), WithPassObserver(obs))
	defer g.Close()

	g.PublishLatest(true)

	if obs.passes.Load() != 1 || obs.projects.Load() != 2 {
		t.Errorf("observed passes=%d projects=%d, want 1 and 2", obs.passes.Load(), obs.projects.Load())
	}
}

// fixedReader serves prebuilt documents without a store.
type fixedReader struct {
	docs map[string]*document.Document
}

func (r *fixedReader) Paths() []string {
	out := make([]string, 0, len(r.docs))
	for p := range r.docs {
		out = append(out, p)
	}
	return out
}

func (r *fixedReader) Read(_ context.Context, path string, fn func(doc *document.Document) error) error {
	return fn(r.docs[path])
}

func TestPublishLatest_SkipsUnencodableProjects(t *testing.T) {
	reader := &fixedReader{docs: map[string]*document.Document{
		"good.proj": document.New("good.proj", document.FormatXML, &document.Node{Name: "Project"}),
		"bad.proj":  document.New("bad.proj", document.Format(99), &document.Node{Name: "Project"}),
	}}
	sink := &slowSink{}
	obs := &passCounter{}
	g := NewGate(reader, sink, nil, testutil.Logger(), WithPassObserver(obs))
	defer g.Close()

	g.PublishLatest(true)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if _, ok := sink.rows["bad.proj"]; ok {
		t.Error("project with failed encoding was persisted")
	}
	if row, ok := sink.rows["good.proj"]; !ok || row.Checksum == "" {
		t.Errorf("good project row = %+v, %v", row, ok)
	}
	if obs.projects.Load() != 1 {
		t.Errorf("published projects = %d, want 1", obs.projects.Load())
	}
}
