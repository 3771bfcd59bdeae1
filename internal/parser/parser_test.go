package parser

import (
	"bytes"
	"errors"
	"testing"

	"github.com/starford/raido/internal/document"
)

const sampleXML = `<?xml version="1.0" encoding="UTF-8"?>
<project sdk="go">
  <!-- build settings -->
  <properties>
    <Version>1.0</Version>
  </properties>
  <items>
    <Compile include="main.go" />
  </items>
</project>
`

const sampleYAML = `name: project
attrs:
  sdk: go
children:
  - name: properties
    children:
      - name: Version
        text: "1.0"
  - name: items
    children:
      - name: Compile
        attrs:
          include: main.go
`

func TestParse_XML(t *testing.T) {
	d, err := Parse("app.proj", []byte(sampleXML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	root := d.Snapshot()
	if root.Name != "project" {
		t.Errorf("root = %q", root.Name)
	}
	if v, _ := root.Attr("sdk"); v != "go" {
		t.Errorf("sdk = %q, want go", v)
	}
	if len(root.Children) != 2 {
		t.Fatalf("children = %d, want 2", len(root.Children))
	}
	if got := root.Children[0].Children[0].Text; got != "1.0" {
		t.Errorf("Version = %q", got)
	}
	if d.Format() != document.FormatXML || d.IsDirty() {
		t.Errorf("format = %v dirty = %v", d.Format(), d.IsDirty())
	}
}

func TestParse_XMLTextTrimmedAndJoined(t *testing.T) {
	src := "<project>\n  <Note>  first <!-- c -->  second\n  </Note>\n  <Empty>   </Empty>\n</project>"
	d, err := Parse("a.proj", []byte(src))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	root := d.Snapshot()
	if root.Text != "" {
		t.Errorf("root text = %q, want whitespace dropped", root.Text)
	}
	if got := root.Children[0].Text; got != "firstsecond" {
		t.Errorf("mixed text = %q, want firstsecond", got)
	}
	if got := root.Children[1].Text; got != "" {
		t.Errorf("whitespace-only text = %q, want empty", got)
	}
}

func TestParse_YAMLMatchesXML(t *testing.T) {
	x, err := Parse("app.proj", []byte(sampleXML))
	if err != nil {
		t.Fatal(err)
	}
	y, err := Parse("app.yaml", []byte(sampleYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !document.Equal(x.Snapshot(), y.Snapshot()) {
		t.Errorf("yaml tree differs from xml tree:\n%+v\n%+v", x.Snapshot(), y.Snapshot())
	}
}

func TestParseIn_Namespace(t *testing.T) {
	d, err := ParseIn("iso-1", "app.proj", []byte(sampleXML))
	if err != nil {
		t.Fatal(err)
	}
	if d.Namespace() != "iso-1" {
		t.Errorf("namespace = %q", d.Namespace())
	}
}

func TestParse_Malformed(t *testing.T) {
	cases := map[string]struct {
		path string
		data string
	}{
		"truncated xml":    {"a.proj", "<project><properties>"},
		"mismatched tags":  {"a.proj", "<project></items>"},
		"empty xml":        {"a.proj", "   \n"},
		"two roots":        {"a.proj", "<a></a><b></b>"},
		"text outside":     {"a.proj", "<a></a>junk"},
		"empty yaml":       {"a.yaml", ""},
		"yaml syntax":      {"a.yaml", "name: [unclosed"},
		"yaml scalar root": {"a.yaml", "just a string"},
		"yaml no name":     {"a.yaml", "text: hi"},
		"yaml unknown key": {"a.yaml", "name: a\ncolour: red"},
		"yaml bad child":   {"a.yaml", "name: a\nchildren: nope"},
		"unknown ext":      {"a.md", "<project/>"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(tc.path, []byte(tc.data))
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("err = %v, want *ParseError", err)
			}
			if pe.Path != tc.path {
				t.Errorf("path = %q", pe.Path)
			}
		})
	}
}

func TestParse_XMLSyntaxErrorLine(t *testing.T) {
	_, err := Parse("a.proj", []byte("<project>\n<a>\n</b>\n</project>"))
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v", err)
	}
	if pe.Line != 3 {
		t.Errorf("line = %d, want 3", pe.Line)
	}
}

func TestParse_YAMLUnknownKeyLine(t *testing.T) {
	_, err := Parse("a.yaml", []byte("name: a\nchildren:\n  - name: b\n    oops: 1\n"))
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v", err)
	}
	if pe.Line != 4 {
		t.Errorf("line = %d, want 4", pe.Line)
	}
}

func TestParse_RoundTrip(t *testing.T) {
	for _, path := range []string{"a.proj", "a.yaml"} {
		src := sampleXML
		if path == "a.yaml" {
			src = sampleYAML
		}
		d, err := Parse(path, []byte(src))
		if err != nil {
			t.Fatal(err)
		}
		var buf bytes.Buffer
		if err := d.Save(&buf); err != nil {
			t.Fatalf("Save: %v", err)
		}
		again, err := Parse(path, buf.Bytes())
		if err != nil {
			t.Fatalf("reparse %s: %v\n%s", path, err, buf.Bytes())
		}
		if !d.Equal(again) {
			t.Errorf("%s: round trip changed tree", path)
		}
	}
}
