package document

import (
	"encoding/xml"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format is the on-disk encoding of a project definition.
type Format int

const (
	FormatXML Format = iota
	FormatYAML
)

func (f Format) String() string {
	switch f {
	case FormatXML:
		return "xml"
	case FormatYAML:
		return "yaml"
	default:
		return "unknown"
	}
}

// FormatFor returns the format implied by the file extension of path.
func FormatFor(path string) (Format, bool) {
	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case ext == ".yaml" || ext == ".yml":
		return FormatYAML, true
	case ext == ".xml" || ext == ".props" || ext == ".targets":
		return FormatXML, true
	case len(ext) > len("proj") && strings.HasSuffix(ext, "proj"):
		return FormatXML, true
	}
	return 0, false
}

// IsProjectFile reports whether path has a recognised project definition extension.
func IsProjectFile(path string) bool {
	_, ok := FormatFor(path)
	return ok
}

// Encode writes root to w in the given format.
func Encode(w io.Writer, f Format, root *Node) error {
	switch f {
	case FormatXML:
		return encodeXML(w, root)
	case FormatYAML:
		return encodeYAML(w, root)
	default:
		return fmt.Errorf("unsupported format %d", f)
	}
}

func encodeXML(w io.Writer, root *Node) error {
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := encodeXMLNode(enc, root); err != nil {
		return err
	}
	if err := enc.Flush(); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n")
	return err
}

func encodeXMLNode(enc *xml.Encoder, n *Node) error {
	start := xml.StartElement{Name: xml.Name{Local: n.Name}}
	for _, a := range n.Attrs {
		start.Attr = append(start.Attr, xml.Attr{Name: xml.Name{Local: a.Name}, Value: a.Value})
	}
	if err := enc.EncodeToken(start); err != nil {
		return err
	}
	if n.Text != "" {
		if err := enc.EncodeToken(xml.CharData(n.Text)); err != nil {
			return err
		}
	}
	for _, c := range n.Children {
		if err := encodeXMLNode(enc, c); err != nil {
			return err
		}
	}
	return enc.EncodeToken(start.End())
}

func encodeYAML(w io.Writer, root *Node) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(yamlNode(root)); err != nil {
		return err
	}
	return enc.Close()
}

func yamlNode(n *Node) *yaml.Node {
	m := &yaml.Node{Kind: yaml.MappingNode}
	m.Content = append(m.Content, scalar("name"), scalar(n.Name))
	if len(n.Attrs) > 0 {
		attrs := &yaml.Node{Kind: yaml.MappingNode}
		for _, a := range n.Attrs {
			attrs.Content = append(attrs.Content, scalar(a.Name), scalar(a.Value))
		}
		m.Content = append(m.Content, scalar("attrs"), attrs)
	}
	if n.Text != "" {
		m.Content = append(m.Content, scalar("text"), scalar(n.Text))
	}
	if len(n.Children) > 0 {
		seq := &yaml.Node{Kind: yaml.SequenceNode}
		for _, c := range n.Children {
			seq.Content = append(seq.Content, yamlNode(c))
		}
		m.Content = append(m.Content, scalar("children"), seq)
	}
	return m
}

func scalar(v string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v}
}
