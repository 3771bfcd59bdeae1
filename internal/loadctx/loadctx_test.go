package loadctx

import (
	"errors"
	"strings"
	"testing"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/parser"
	"github.com/starford/raido/internal/testutil"
)

func TestOpen_InIsolatedNamespace(t *testing.T) {
	_, store := testutil.TestWorkspace(t)
	_ = store.Write("app.proj", []byte("<project><properties><A>1</A></properties></project>"))

	reg := NewRegistry(store)
	c := reg.New()
	defer c.Unload()

	doc, err := c.Open("app.proj")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if doc.Namespace() != c.Namespace() || !strings.HasPrefix(doc.Namespace(), "iso-") {
		t.Errorf("doc namespace = %q, context = %q", doc.Namespace(), c.Namespace())
	}
	if reg.Active() != 1 {
		t.Errorf("active = %d, want 1", reg.Active())
	}
}

func TestNamespacesAreDistinct(t *testing.T) {
	_, store := testutil.TestWorkspace(t)
	reg := NewRegistry(store)
	a, b := reg.New(), reg.New()
	defer a.Unload()
	defer b.Unload()
	if a.Namespace() == b.Namespace() {
		t.Fatal("namespaces should be unique")
	}
	if got := reg.Namespaces(); len(got) != 2 {
		t.Errorf("namespaces = %v", got)
	}
}

func TestOpen_ParseErrorIsStructured(t *testing.T) {
	_, store := testutil.TestWorkspace(t)
	_ = store.Write("bad.proj", []byte("<project>"))

	reg := NewRegistry(store)
	c := reg.New()
	defer c.Unload()

	_, err := c.Open("bad.proj")
	var pe *parser.ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v, want *parser.ParseError", err)
	}
}

func TestUnload_ReleasesNamespace(t *testing.T) {
	_, store := testutil.TestWorkspace(t)
	_ = store.Write("app.proj", []byte("<project/>"))

	reg := NewRegistry(store)
	c := reg.New()
	if _, err := c.Open("app.proj"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.NewScratch("app.proj"); err != nil {
		t.Fatal(err)
	}
	if c.Len() != 2 {
		t.Errorf("len = %d, want 2", c.Len())
	}

	c.Unload()
	c.Unload()

	if reg.Active() != 0 {
		t.Errorf("active = %d after unload", reg.Active())
	}
	if c.Len() != 0 {
		t.Errorf("context still holds %d documents", c.Len())
	}
	if _, err := c.Open("app.proj"); !errors.Is(err, apperr.ErrUnloaded) {
		t.Errorf("Open after unload: err = %v", err)
	}
	if _, err := c.NewScratch("app.proj"); !errors.Is(err, apperr.ErrUnloaded) {
		t.Errorf("NewScratch after unload: err = %v", err)
	}
}
