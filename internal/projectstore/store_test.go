package projectstore

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/document"
	"github.com/starford/raido/internal/storage"
	"github.com/starford/raido/internal/testutil"
)

const appProj = "<project><properties><Version>1.0</Version></properties></project>"

func openStore(t *testing.T) (*Store, storage.Provider) {
	t.Helper()
	_, fs := testutil.TestWorkspace(t)
	testutil.WriteFile(t, fs, "app.proj", appProj)
	s := New(fs, WithLogger(testutil.Logger()), WithMaxReaders(4))
	if err := s.Open(context.Background(), "app.proj"); err != nil {
		t.Fatalf("Open: %v", err)
	}
	return s, fs
}

func TestOpenAndRead(t *testing.T) {
	s, _ := openStore(t)
	err := s.Read(context.Background(), "app.proj", func(doc *document.Document) error {
		if doc.IsDirty() {
			t.Error("freshly opened document should be clean")
		}
		if doc.Namespace() != "" {
			t.Errorf("namespace = %q, want shared", doc.Namespace())
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got := s.Paths(); len(got) != 1 || got[0] != "app.proj" {
		t.Errorf("paths = %v", got)
	}
}

func TestOpenTwiceFails(t *testing.T) {
	s, _ := openStore(t)
	if err := s.Open(context.Background(), "app.proj"); !errors.Is(err, apperr.ErrAlreadyExists) {
		t.Errorf("err = %v, want ErrAlreadyExists", err)
	}
}

func TestReadMissing(t *testing.T) {
	s, _ := openStore(t)
	err := s.Read(context.Background(), "nope.proj", func(*document.Document) error { return nil })
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestEditAndSave(t *testing.T) {
	s, fs := openStore(t)
	ctx := context.Background()
	if err := s.Edit(ctx, "app.proj", func(doc *document.Document) error {
		return doc.SetProperty("Version", "2.0")
	}); err != nil {
		t.Fatalf("Edit: %v", err)
	}
	_ = s.Read(ctx, "app.proj", func(doc *document.Document) error {
		if !doc.IsDirty() {
			t.Error("edit should mark dirty")
		}
		return nil
	})

	if err := s.Save(ctx, "app.proj"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	data, _ := fs.Read("app.proj")
	if !strings.Contains(string(data), "<Version>2.0</Version>") {
		t.Errorf("saved content = %s", data)
	}
	_ = s.Read(ctx, "app.proj", func(doc *document.Document) error {
		if doc.IsDirty() {
			t.Error("save should clear dirty")
		}
		return nil
	})
}

func TestSaveFailureKeepsDirty(t *testing.T) {
	dir, fs := testutil.TestWorkspace(t)
	testutil.WriteFile(t, fs, "app.proj", appProj)
	s := New(fs, WithLogger(testutil.Logger()))
	ctx := context.Background()
	if err := s.Open(ctx, "app.proj"); err != nil {
		t.Fatal(err)
	}
	_ = s.Edit(ctx, "app.proj", func(doc *document.Document) error { return doc.SetProperty("X", "1") })

	if err := os.Chmod(dir, 0o500); err != nil {
		t.Skip("cannot restrict workspace permissions")
	}
	defer os.Chmod(dir, 0o755)
	if os.Geteuid() == 0 {
		t.Skip("root ignores directory permissions")
	}

	if err := s.Save(ctx, "app.proj"); err == nil {
		t.Fatal("expected save error")
	}
	_ = s.Read(ctx, "app.proj", func(doc *document.Document) error {
		if !doc.IsDirty() {
			t.Error("failed save must leave the document dirty")
		}
		return nil
	})
}

func TestReopenReplacesDocument(t *testing.T) {
	s, fs := openStore(t)
	ctx := context.Background()
	_ = s.Edit(ctx, "app.proj", func(doc *document.Document) error { return doc.SetProperty("Version", "local") })
	testutil.WriteFile(t, fs, "app.proj", "<project><properties><Version>disk</Version></properties></project>")

	if err := s.Reopen(ctx, "app.proj"); err != nil {
		t.Fatalf("Reopen: %v", err)
	}
	_ = s.Read(ctx, "app.proj", func(doc *document.Document) error {
		if doc.IsDirty() {
			t.Error("reopened document should be clean")
		}
		if got := doc.Snapshot().Children[0].Children[0].Text; got != "disk" {
			t.Errorf("Version = %q, want disk", got)
		}
		return nil
	})
}

func TestWriteLockExcludesReaders(t *testing.T) {
	s, _ := openStore(t)
	lock, err := s.AcquireWriteLock(context.Background())
	if err != nil {
		t.Fatalf("AcquireWriteLock: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err = s.Read(ctx, "app.proj", func(*document.Document) error { return nil })
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("read under write lock: err = %v, want deadline exceeded", err)
	}

	lock.Release()
	if err := s.Read(context.Background(), "app.proj", func(*document.Document) error { return nil }); err != nil {
		t.Errorf("read after release: %v", err)
	}
}

func TestReadersBlockWriter(t *testing.T) {
	s, _ := openStore(t)
	inRead := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_ = s.Read(context.Background(), "app.proj", func(*document.Document) error {
			close(inRead)
			<-done
			return nil
		})
	}()
	<-inRead

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := s.AcquireWriteLock(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
	close(done)

	lock, err := s.AcquireWriteLock(context.Background())
	if err != nil {
		t.Fatalf("AcquireWriteLock after reader: %v", err)
	}
	lock.Release()
}

func TestAcquireCancelled(t *testing.T) {
	s, _ := openStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.AcquireWriteLock(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestClosedStore(t *testing.T) {
	s, _ := openStore(t)
	s.Close()
	if _, err := s.AcquireWriteLock(context.Background()); !errors.Is(err, apperr.ErrLockUnavailable) {
		t.Errorf("err = %v, want ErrLockUnavailable", err)
	}
	err := s.Read(context.Background(), "app.proj", func(*document.Document) error { return nil })
	if !errors.Is(err, apperr.ErrLockUnavailable) {
		t.Errorf("read err = %v", err)
	}
}

func TestLockAfterReleaseFails(t *testing.T) {
	s, _ := openStore(t)
	lock, err := s.AcquireWriteLock(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	lock.Release()
	lock.Release()
	if err := lock.Checkout("app.proj"); !errors.Is(err, apperr.ErrLockReleased) {
		t.Errorf("Checkout err = %v", err)
	}
	if _, err := lock.Document("app.proj"); !errors.Is(err, apperr.ErrLockReleased) {
		t.Errorf("Document err = %v", err)
	}
}

func TestCheckoutBookkeeping(t *testing.T) {
	s, _ := openStore(t)
	lock, err := s.AcquireWriteLock(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if err := lock.Checkout("app.proj"); err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	if s.Checkouts("app.proj") != 1 {
		t.Errorf("checkouts = %d, want 1", s.Checkouts("app.proj"))
	}
	if err := lock.Checkout("missing.proj"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("checkout missing: %v", err)
	}
	lock.Release()
	if s.Checkouts("app.proj") != 0 {
		t.Errorf("checkouts after release = %d", s.Checkouts("app.proj"))
	}
}

func TestLockIDsIncrease(t *testing.T) {
	s, _ := openStore(t)
	a, _ := s.AcquireWriteLock(context.Background())
	a.Release()
	b, _ := s.AcquireWriteLock(context.Background())
	b.Release()
	if b.ID() <= a.ID() {
		t.Errorf("ids %d then %d", a.ID(), b.ID())
	}
}

func TestOpenAcceptsUnicodeNames(t *testing.T) {
	_, fs := testutil.TestWorkspace(t)
	testutil.WriteFile(t, fs, "intl.proj", "<project><properties><Größe>10</Größe></properties></project>")
	s := New(fs, WithLogger(testutil.Logger()))
	if err := s.Open(context.Background(), "intl.proj"); err != nil {
		t.Fatalf("Open: %v", err)
	}
}

func TestOpenRejectsDocumentsThatCannotBeCopied(t *testing.T) {
	_, fs := testutil.TestWorkspace(t)
	testutil.WriteFile(t, fs, "dup.proj", `<project><properties><Version a="1" a="2">3</Version></properties></project>`)
	s := New(fs, WithLogger(testutil.Logger()))

	err := s.Open(context.Background(), "dup.proj")
	var ce *document.CopyError
	if !errors.As(err, &ce) {
		t.Fatalf("err = %v, want CopyError", err)
	}
	if len(s.Paths()) != 0 {
		t.Errorf("invalid document was registered: %v", s.Paths())
	}
}

func TestReopenValidatesLikeOpen(t *testing.T) {
	s, fs := openStore(t)
	testutil.WriteFile(t, fs, "app.proj", `<project><properties><Version a="1" a="2">3</Version></properties></project>`)

	var ce *document.CopyError
	if err := s.Reopen(context.Background(), "app.proj"); !errors.As(err, &ce) {
		t.Fatalf("err = %v, want CopyError", err)
	}
	_ = s.Read(context.Background(), "app.proj", func(doc *document.Document) error {
		if v := doc.Snapshot().Children[0].Children[0].Text; v != "1.0" {
			t.Errorf("Version = %q, live document replaced by invalid file", v)
		}
		return nil
	})
}
