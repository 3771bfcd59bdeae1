// Package loadctx provides isolated load contexts: throwaway namespaces in
// which project definitions are parsed without becoming visible to the
// shared project store.
package loadctx

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/document"
	"github.com/starford/raido/internal/parser"
)

// Source reads raw project definition bytes.
type Source interface {
	Read(path string) ([]byte, error)
}

// Registry hands out load contexts and tracks the ones not yet unloaded.
type Registry struct {
	source Source

	mu     sync.Mutex
	active map[string]*Context
}

// NewRegistry creates a registry reading through source.
func NewRegistry(source Source) *Registry {
	return &Registry{
		source: source,
		active: make(map[string]*Context),
	}
}

// New creates a fresh context with its own namespace.
func (r *Registry) New() *Context {
	c := &Context{
		ns:   "iso-" + uuid.NewString(),
		reg:  r,
		docs: make(map[string]*document.Document),
	}
	r.mu.Lock()
	r.active[c.ns] = c
	r.mu.Unlock()
	return c
}

// Active returns the number of contexts that have not been unloaded.
func (r *Registry) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}

// Namespaces returns the namespaces of all live contexts, sorted.
func (r *Registry) Namespaces() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.active))
	for ns := range r.active {
		out = append(out, ns)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) release(ns string) {
	r.mu.Lock()
	delete(r.active, ns)
	r.mu.Unlock()
}

// Context is one isolated namespace. Documents opened in it are owned by
// the context and dropped by Unload. A Context is used by one goroutine.
type Context struct {
	ns       string
	reg      *Registry
	docs     map[string]*document.Document
	unloaded bool
}

// Namespace returns the context's namespace identifier.
func (c *Context) Namespace() string { return c.ns }

// Open reads and parses the project file at path into this namespace.
// Parse failures are returned as *parser.ParseError.
func (c *Context) Open(path string) (*document.Document, error) {
	if c.unloaded {
		return nil, apperr.ErrUnloaded
	}
	data, err := c.reg.source.Read(path)
	if err != nil {
		return nil, fmt.Errorf("loadctx: open %s: %w", path, err)
	}
	doc, err := parser.ParseIn(c.ns, path, data)
	if err != nil {
		return nil, err
	}
	c.docs[path] = doc
	return doc, nil
}

// NewScratch returns an empty document in this namespace with the format of
// the file at path.
func (c *Context) NewScratch(path string) (*document.Document, error) {
	if c.unloaded {
		return nil, apperr.ErrUnloaded
	}
	format, ok := document.FormatFor(path)
	if !ok {
		return nil, fmt.Errorf("loadctx: scratch %s: unrecognised project file extension", path)
	}
	doc := document.New(path, format, nil, document.InNamespace(c.ns))
	c.docs["scratch:"+path] = doc
	return doc, nil
}

// Len returns the number of documents held by the context.
func (c *Context) Len() int { return len(c.docs) }

// Unload drops every document and removes the namespace from the registry.
// It is safe to call more than once.
func (c *Context) Unload() {
	if c.unloaded {
		return
	}
	c.unloaded = true
	clear(c.docs)
	c.reg.release(c.ns)
}
