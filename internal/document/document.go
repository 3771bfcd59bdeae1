package document

import (
	"errors"
	"fmt"
	"io"

	"github.com/starford/raido/internal/apperr"
)

// RootName is the element name of an empty project document.
const RootName = "project"

// Element names recognised as property groups.
var propertyGroups = map[string]struct{}{"properties": {}, "PropertyGroup": {}}

// IsPropertyGroup reports whether name denotes a property group element.
func IsPropertyGroup(name string) bool {
	_, ok := propertyGroups[name]
	return ok
}

// Document is the in-memory model of one project definition file.
//
// A Document is not safe for concurrent use; callers serialize access
// through the project store lock. Every exported mutator marks the document
// dirty and only Save clears the flag.
type Document struct {
	path      string
	namespace string
	format    Format
	root      *Node
	dirty     bool
}

// Option configures a new Document.
type Option func(*Document)

// InNamespace places the document in the given namespace instead of the shared one.
func InNamespace(ns string) Option {
	return func(d *Document) {
		d.namespace = ns
	}
}

// New creates a clean document. A nil root yields an empty project element.
func New(path string, format Format, root *Node, opts ...Option) *Document {
	if root == nil {
		root = &Node{Name: RootName}
	}
	d := &Document{path: path, format: format, root: root}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Path returns the workspace-relative path identifying the document.
func (d *Document) Path() string { return d.path }

// Namespace returns the namespace the document lives in; empty means shared.
func (d *Document) Namespace() string { return d.namespace }

// Format returns the on-disk encoding of the document.
func (d *Document) Format() Format { return d.format }

// IsDirty reports whether the in-memory content diverges from the last save.
func (d *Document) IsDirty() bool { return d.dirty }

// Snapshot returns a deep copy of the tree that callers may keep.
func (d *Document) Snapshot() *Node { return clone(d.root) }

// Equal reports whether d and other have structurally equal trees.
func (d *Document) Equal(other *Document) bool {
	if other == nil {
		return false
	}
	return Equal(d.root, other.root)
}

// Walk calls fn for every node in document order. fn must not retain or
// modify the nodes it receives.
func (d *Document) Walk(fn func(path NodePath, n *Node) bool) {
	walk(d.root, nil, fn)
}

func walk(n *Node, path NodePath, fn func(NodePath, *Node) bool) bool {
	if !fn(path, n) {
		return false
	}
	for i, c := range n.Children {
		if !walk(c, appendPath(path, i), fn) {
			return false
		}
	}
	return true
}

func (d *Document) nodeAt(p NodePath) (*Node, error) {
	n := d.root
	for depth, idx := range p {
		if idx < 0 || idx >= len(n.Children) {
			return nil, fmt.Errorf("document: no node at %s (depth %d)", p, depth)
		}
		n = n.Children[idx]
	}
	return n, nil
}

// SetAttr sets or adds an attribute on the node at p.
func (d *Document) SetAttr(p NodePath, name, value string) error {
	n, err := d.nodeAt(p)
	if err != nil {
		return err
	}
	if !nameRe.MatchString(name) {
		return fmt.Errorf("document: invalid attribute name %q", name)
	}
	for i := range n.Attrs {
		if n.Attrs[i].Name == name {
			n.Attrs[i].Value = value
			d.dirty = true
			return nil
		}
	}
	n.Attrs = append(n.Attrs, Attr{Name: name, Value: value})
	d.dirty = true
	return nil
}

// SetText replaces the text of the node at p.
func (d *Document) SetText(p NodePath, text string) error {
	n, err := d.nodeAt(p)
	if err != nil {
		return err
	}
	n.Text = text
	d.dirty = true
	return nil
}

// AppendChild appends a copy of child to the node at p.
func (d *Document) AppendChild(p NodePath, child *Node) error {
	parent, err := d.nodeAt(p)
	if err != nil {
		return err
	}
	cp, err := CopyTree(child)
	if err != nil {
		return err
	}
	parent.Children = append(parent.Children, cp)
	d.dirty = true
	return nil
}

// RemoveChild removes the node at p. The root cannot be removed.
func (d *Document) RemoveChild(p NodePath) error {
	if len(p) == 0 {
		return errors.New("document: cannot remove root")
	}
	parent, err := d.nodeAt(p[:len(p)-1])
	if err != nil {
		return err
	}
	idx := p[len(p)-1]
	if idx < 0 || idx >= len(parent.Children) {
		return fmt.Errorf("document: no node at %s", p)
	}
	parent.Children = append(parent.Children[:idx], parent.Children[idx+1:]...)
	d.dirty = true
	return nil
}

// SetProperty sets the value of a property, updating the last definition if
// one exists and otherwise appending it to the first property group
// (created when absent).
func (d *Document) SetProperty(name, value string) error {
	if !nameRe.MatchString(name) {
		return fmt.Errorf("document: property name %q: %w", name, apperr.ErrInvalid)
	}
	var target, group *Node
	for _, c := range d.root.Children {
		if !IsPropertyGroup(c.Name) {
			continue
		}
		if group == nil {
			group = c
		}
		for _, p := range c.Children {
			if p.Name == name {
				target = p
			}
		}
	}
	switch {
	case target != nil:
		target.Text = value
	case group != nil:
		group.Children = append(group.Children, &Node{Name: name, Text: value})
	default:
		d.root.Children = append(d.root.Children, &Node{
			Name:     "properties",
			Children: []*Node{{Name: name, Text: value}},
		})
	}
	d.dirty = true
	return nil
}

// ClearChildren removes every child of the root.
func (d *Document) ClearChildren() {
	d.root.Children = nil
	d.dirty = true
}

// CopyFrom clears the root and copies src's tree into d in place, child by
// child. A failure part way leaves d partially copied; use it only on
// documents nobody else can observe.
func (d *Document) CopyFrom(src *Document) error {
	if src == nil {
		return errors.New("document: copy from nil document")
	}
	if err := src.root.Validate(); err != nil {
		return &CopyError{Err: err}
	}
	d.ClearChildren()
	d.root.Name = src.root.Name
	d.root.Text = src.root.Text
	d.root.Attrs = append([]Attr(nil), src.root.Attrs...)
	for i, c := range src.root.Children {
		cp, err := CopyTree(c)
		if err != nil {
			var ce *CopyError
			if errors.As(err, &ce) {
				ce.Path = append(NodePath{i}, ce.Path...)
			}
			return err
		}
		d.root.Children = append(d.root.Children, cp)
	}
	return nil
}

// Validate runs the copy checks over the whole tree, so a document that
// passes can later be copied or replaced without a validation failure.
func (d *Document) Validate() error {
	_, err := CopyTree(d.root)
	return err
}

// ReplaceContent replaces d's tree with a copy of src's. The copy is built
// completely before the single assignment that installs it, so on error d is
// left exactly as it was.
func (d *Document) ReplaceContent(src *Document) error {
	if src == nil {
		return errors.New("document: replace from nil document")
	}
	next, err := CopyTree(src.root)
	if err != nil {
		return err
	}
	d.root = next
	d.dirty = true
	return nil
}

// Save encodes the document to w and clears the dirty flag on success.
func (d *Document) Save(w io.Writer) error {
	if err := Encode(w, d.format, d.root); err != nil {
		return fmt.Errorf("document: save %s: %w", d.path, err)
	}
	d.dirty = false
	return nil
}
