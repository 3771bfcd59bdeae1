// Package parser decodes on-disk project definitions (XML or YAML) into
// document trees. It checks syntax and shape only; element and attribute
// naming rules are enforced by document.Validate and when a tree is copied.
//
// XML character data is trimmed of surrounding whitespace and the pieces of
// mixed content are concatenated into the element's Text, so text split by
// child elements or comments is joined without a separator. Whitespace-only
// text is dropped. Re-encoding such a document is therefore not byte-exact.
package parser

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/starford/raido/internal/document"
)

// ParseError reports a malformed project definition.
type ParseError struct {
	Path string
	Line int // 0 when unknown
	Err  error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("parser: %s:%d: %v", e.Path, e.Line, e.Err)
	}
	return fmt.Sprintf("parser: %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

var (
	errEmpty         = errors.New("empty document")
	errMultipleRoots = errors.New("multiple root elements")
)

// Parse decodes data as the project definition stored at path, in the
// shared namespace.
func Parse(path string, data []byte) (*document.Document, error) {
	return ParseIn("", path, data)
}

// ParseIn decodes data into a document placed in namespace ns.
func ParseIn(ns, path string, data []byte) (*document.Document, error) {
	format, ok := document.FormatFor(path)
	if !ok {
		return nil, &ParseError{Path: path, Err: fmt.Errorf("unrecognised project file extension")}
	}

	var (
		root *document.Node
		err  error
	)
	switch format {
	case document.FormatXML:
		root, err = decodeXML(path, data)
	case document.FormatYAML:
		root, err = decodeYAML(path, data)
	}
	if err != nil {
		return nil, err
	}
	return document.New(path, format, root, document.InNamespace(ns)), nil
}

func decodeXML(path string, data []byte) (*document.Node, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))

	var (
		root  *document.Node
		stack []*document.Node
	)
	fail := func(err error) error {
		line, _ := dec.InputPos()
		var se *xml.SyntaxError
		if errors.As(err, &se) {
			line = se.Line
		}
		return &ParseError{Path: path, Line: line, Err: err}
	}

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fail(err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			n := &document.Node{Name: t.Name.Local}
			for _, a := range t.Attr {
				// Namespace-qualified attributes carry no project semantics.
				if a.Name.Space != "" {
					continue
				}
				n.Attrs = append(n.Attrs, document.Attr{Name: a.Name.Local, Value: a.Value})
			}
			if len(stack) == 0 {
				if root != nil {
					return nil, fail(errMultipleRoots)
				}
				root = n
			} else {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, n)
			}
			stack = append(stack, n)

		case xml.EndElement:
			stack = stack[:len(stack)-1]

		case xml.CharData:
			text := strings.TrimSpace(string(t))
			if text == "" {
				continue
			}
			if len(stack) == 0 {
				return nil, fail(fmt.Errorf("text outside root element"))
			}
			cur := stack[len(stack)-1]
			cur.Text += text
		}
	}

	if root == nil {
		return nil, &ParseError{Path: path, Err: errEmpty}
	}
	return root, nil
}

func decodeYAML(path string, data []byte) (*document.Node, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, &ParseError{Path: path, Err: errEmpty}
	}
	return decodeYAMLElement(path, doc.Content[0])
}

func decodeYAMLElement(path string, y *yaml.Node) (*document.Node, error) {
	if y.Kind != yaml.MappingNode {
		return nil, &ParseError{Path: path, Line: y.Line, Err: fmt.Errorf("element must be a mapping")}
	}
	n := &document.Node{}
	hasName := false
	for i := 0; i+1 < len(y.Content); i += 2 {
		key, val := y.Content[i], y.Content[i+1]
		switch key.Value {
		case "name":
			if val.Kind != yaml.ScalarNode {
				return nil, &ParseError{Path: path, Line: val.Line, Err: fmt.Errorf("name must be a scalar")}
			}
			n.Name = val.Value
			hasName = true
		case "text":
			if val.Kind != yaml.ScalarNode {
				return nil, &ParseError{Path: path, Line: val.Line, Err: fmt.Errorf("text must be a scalar")}
			}
			n.Text = val.Value
		case "attrs":
			if val.Kind != yaml.MappingNode {
				return nil, &ParseError{Path: path, Line: val.Line, Err: fmt.Errorf("attrs must be a mapping")}
			}
			for j := 0; j+1 < len(val.Content); j += 2 {
				k, v := val.Content[j], val.Content[j+1]
				if v.Kind != yaml.ScalarNode {
					return nil, &ParseError{Path: path, Line: v.Line, Err: fmt.Errorf("attribute %q must be a scalar", k.Value)}
				}
				n.Attrs = append(n.Attrs, document.Attr{Name: k.Value, Value: v.Value})
			}
		case "children":
			if val.Kind != yaml.SequenceNode {
				return nil, &ParseError{Path: path, Line: val.Line, Err: fmt.Errorf("children must be a sequence")}
			}
			for _, c := range val.Content {
				child, err := decodeYAMLElement(path, c)
				if err != nil {
					return nil, err
				}
				n.Children = append(n.Children, child)
			}
		default:
			return nil, &ParseError{Path: path, Line: key.Line, Err: fmt.Errorf("unknown element key %q", key.Value)}
		}
	}
	if !hasName {
		return nil, &ParseError{Path: path, Line: y.Line, Err: fmt.Errorf("element has no name")}
	}
	return n, nil
}
