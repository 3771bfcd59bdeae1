// Package evaluate computes the derived state of a project definition:
// the final property values and the expanded item lists.
package evaluate

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/starford/raido/internal/document"
)

var refRe = regexp.MustCompile(`\$\(([A-Za-z_][A-Za-z0-9_.\-]*)\)`)

// Property is a computed property value.
type Property struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Item is one entry of an item list.
type Item struct {
	Type     string            `json:"type"`
	Include  string            `json:"include"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Result is the evaluation of one project.
type Result struct {
	Path       string     `json:"path"`
	Properties []Property `json:"properties"`
	Items      []Item     `json:"items"`
	Warnings   []string   `json:"warnings,omitempty"`
}

// Property returns the value of the named property.
func (r *Result) Property(name string) (string, bool) {
	for _, p := range r.Properties {
		if p.Name == name {
			return p.Value, true
		}
	}
	return "", false
}

// ItemsOf returns the items of the given type in document order.
func (r *Result) ItemsOf(itemType string) []Item {
	var out []Item
	for _, it := range r.Items {
		if it.Type == itemType {
			out = append(out, it)
		}
	}
	return out
}

func isItemGroup(name string) bool {
	return name == "items" || name == "ItemGroup"
}

// Evaluate walks the top-level groups of root in document order. Properties
// are expanded against the values defined before them; items see every
// property, matching a two-pass evaluation.
func Evaluate(path string, root *document.Node) *Result {
	res := &Result{Path: path, Properties: []Property{}, Items: []Item{}}
	if root == nil {
		return res
	}

	values := make(map[string]string)
	order := make([]string, 0)
	for _, group := range root.Children {
		if !document.IsPropertyGroup(group.Name) {
			continue
		}
		for _, p := range group.Children {
			if _, seen := values[p.Name]; !seen {
				order = append(order, p.Name)
			}
			values[p.Name] = expand(p.Text, values)
		}
	}
	for _, name := range order {
		res.Properties = append(res.Properties, Property{Name: name, Value: values[name]})
	}

	for gi, group := range root.Children {
		if !isItemGroup(group.Name) {
			continue
		}
		for ii, n := range group.Children {
			include, ok := n.Attr("include")
			if !ok {
				include, ok = n.Attr("Include")
			}
			if !ok || strings.TrimSpace(include) == "" {
				res.Warnings = append(res.Warnings,
					fmt.Sprintf("item %s at /%d/%d has no include", n.Name, gi, ii))
				continue
			}
			it := Item{Type: n.Name, Include: expand(include, values)}
			for _, a := range n.Attrs {
				if a.Name == "include" || a.Name == "Include" {
					continue
				}
				if it.Metadata == nil {
					it.Metadata = make(map[string]string)
				}
				it.Metadata[a.Name] = expand(a.Value, values)
			}
			res.Items = append(res.Items, it)
		}
	}
	return res
}

// expand substitutes $(Name) references once; unknown names expand to the
// empty string. Values never re-expand, so self references terminate.
func expand(s string, values map[string]string) string {
	if !strings.Contains(s, "$(") {
		return s
	}
	return refRe.ReplaceAllStringFunc(s, func(m string) string {
		return values[m[2:len(m)-1]]
	})
}

// PropertyNames returns the sorted property names of r.
func (r *Result) PropertyNames() []string {
	out := make([]string, len(r.Properties))
	for i, p := range r.Properties {
		out[i] = p.Name
	}
	sort.Strings(out)
	return out
}
