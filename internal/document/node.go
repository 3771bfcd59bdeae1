// Package document implements the in-memory model of a project definition:
// a tree of elements with ordered attributes, optional text and ordered
// children, plus a dirty flag tracking divergence from the persisted copy.
package document

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// nameRe follows XML Name without colons: a letter or underscore, then
// letters, digits, marks, '_', '.', '-' or U+00B7.
var nameRe = regexp.MustCompile(`^[\p{L}_][\p{L}\p{M}\p{N}_.\-\x{00B7}]*$`)

// Attr is a single element attribute.
type Attr struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Node is one element of a project definition tree.
type Node struct {
	Name     string  `json:"name"`
	Attrs    []Attr  `json:"attrs,omitempty"`
	Text     string  `json:"text,omitempty"`
	Children []*Node `json:"children,omitempty"`
}

// Attr returns the value of the named attribute.
func (n *Node) Attr(name string) (string, bool) {
	for _, a := range n.Attrs {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// Validate checks the element name and attribute names of n (not its children).
func (n *Node) Validate() error {
	if err := validation.ValidateStruct(n,
		validation.Field(&n.Name, validation.Required, validation.Match(nameRe)),
	); err != nil {
		return err
	}
	seen := make(map[string]struct{}, len(n.Attrs))
	for _, a := range n.Attrs {
		if !nameRe.MatchString(a.Name) {
			return fmt.Errorf("attribute %q: invalid name", a.Name)
		}
		if _, dup := seen[a.Name]; dup {
			return fmt.Errorf("attribute %q: duplicate", a.Name)
		}
		seen[a.Name] = struct{}{}
	}
	return nil
}

// NodePath addresses a node by child indices from the root. The empty path is the root.
type NodePath []int

func (p NodePath) String() string {
	if len(p) == 0 {
		return "/"
	}
	parts := make([]string, len(p))
	for i, idx := range p {
		parts[i] = strconv.Itoa(idx)
	}
	return "/" + strings.Join(parts, "/")
}

// ErrSharedNode means the same node is reachable more than once in a tree.
var ErrSharedNode = errors.New("node reachable more than once")

// CopyError reports a failure of the copy algorithm at a given node.
type CopyError struct {
	Path NodePath
	Err  error
}

func (e *CopyError) Error() string {
	return fmt.Sprintf("document: copy %s: %v", e.Path, e.Err)
}

func (e *CopyError) Unwrap() error { return e.Err }

// CopyTree returns a deep copy of src. Every node is validated during the
// walk and a node that appears twice (shared subtree or cycle) fails the copy.
func CopyTree(src *Node) (*Node, error) {
	if src == nil {
		return nil, &CopyError{Err: errors.New("nil root")}
	}
	seen := make(map[*Node]struct{})
	return copyNode(src, nil, seen)
}

func copyNode(n *Node, path NodePath, seen map[*Node]struct{}) (*Node, error) {
	if _, ok := seen[n]; ok {
		return nil, &CopyError{Path: path, Err: ErrSharedNode}
	}
	seen[n] = struct{}{}
	if err := n.Validate(); err != nil {
		return nil, &CopyError{Path: path, Err: err}
	}

	out := &Node{
		Name: n.Name,
		Text: n.Text,
	}
	if len(n.Attrs) > 0 {
		out.Attrs = append([]Attr(nil), n.Attrs...)
	}
	if len(n.Children) > 0 {
		out.Children = make([]*Node, 0, len(n.Children))
	}
	for i, c := range n.Children {
		if c == nil {
			return nil, &CopyError{Path: appendPath(path, i), Err: errors.New("nil child")}
		}
		cp, err := copyNode(c, appendPath(path, i), seen)
		if err != nil {
			return nil, err
		}
		out.Children = append(out.Children, cp)
	}
	return out, nil
}

func appendPath(p NodePath, i int) NodePath {
	out := make(NodePath, len(p), len(p)+1)
	copy(out, p)
	return append(out, i)
}

// clone is a plain deep copy for trees already known to be well formed.
func clone(n *Node) *Node {
	if n == nil {
		return nil
	}
	out := &Node{Name: n.Name, Text: n.Text}
	if len(n.Attrs) > 0 {
		out.Attrs = append([]Attr(nil), n.Attrs...)
	}
	for _, c := range n.Children {
		out.Children = append(out.Children, clone(c))
	}
	return out
}

// Equal reports whether a and b are structurally equal.
func Equal(a, b *Node) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Name != b.Name || a.Text != b.Text {
		return false
	}
	if len(a.Attrs) != len(b.Attrs) || len(a.Children) != len(b.Children) {
		return false
	}
	for i := range a.Attrs {
		if a.Attrs[i] != b.Attrs[i] {
			return false
		}
	}
	for i := range a.Children {
		if !Equal(a.Children[i], b.Children[i]) {
			return false
		}
	}
	return true
}
