package markdown

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/goliatone/go-contentpack/internal/schema"
)

// ContentType is the media type of a serialized Document.
const ContentType = "application/json"

// NodeType discriminates the three node shapes.
type NodeType string

const (
	NodeText    NodeType = "text"
	NodeElement NodeType = "element"
	NodeKeep    NodeType = "keep"
)

// ErrInvalidBody is returned when a stored body cannot be decoded.
var ErrInvalidBody = errors.New("markdown: invalid document body")

// Tag used for footnote definitions nobody references.
const TagFootnoteDefinition = "footnote_definition"

// Node is one node of a compiled markdown tree.
type Node struct {
	Type     NodeType
	Value    string
	Tag      string
	Attrs    map[string]string
	Keep     *Keep
	Children []*Node
}

// Keep is the payload of a keep node. Props holds the variant's properties;
// missing ones serialize as null.
type Keep struct {
	Kind  schema.KeepKind
	Props map[string]any
}

// Text creates a text node.
func Text(value string) *Node {
	return &Node{Type: NodeText, Value: value}
}

// Element creates an element node.
func Element(tag string, attrs map[string]string, children ...*Node) *Node {
	return &Node{Type: NodeElement, Tag: tag, Attrs: attrs, Children: children}
}

// KeepNode creates a keep node.
func KeepNode(kind schema.KeepKind, props map[string]any, children ...*Node) *Node {
	if props == nil {
		props = map[string]any{}
	}
	return &Node{Type: NodeKeep, Keep: &Keep{Kind: kind, Props: props}, Children: children}
}

// Is reports whether n is a keep node of kind.
func (n *Node) Is(kind schema.KeepKind) bool {
	return n != nil && n.Type == NodeKeep && n.Keep != nil && n.Keep.Kind == kind
}

func (n *Node) MarshalJSON() ([]byte, error) {
	switch n.Type {
	case NodeText:
		return encode(struct {
			Type  NodeType `json:"type"`
			Value string   `json:"value"`
		}{NodeText, n.Value})
	case NodeKeep:
		return encode(struct {
			Type     NodeType `json:"type"`
			Keep     *Keep    `json:"keep"`
			Children []*Node  `json:"children"`
		}{NodeKeep, n.Keep, nonNil(n.Children)})
	default:
		return encode(struct {
			Type     NodeType          `json:"type"`
			Tag      string            `json:"tag"`
			Attrs    map[string]string `json:"attrs,omitempty"`
			Children []*Node           `json:"children"`
		}{NodeElement, n.Tag, n.Attrs, nonNil(n.Children)})
	}
}

// MarshalJSON writes the discriminator followed by every property of the
// variant in declaration order.
func (k *Keep) MarshalJSON() ([]byte, error) {
	variant, _ := schema.KeepVariantOf(k.Kind)
	var buf bytes.Buffer
	buf.WriteString(`{"type":`)
	kind, err := encode(string(k.Kind))
	if err != nil {
		return nil, err
	}
	buf.Write(kind)
	for _, p := range variant.Properties {
		buf.WriteByte(',')
		name, _ := encode(p.Name)
		buf.Write(name)
		buf.WriteByte(':')
		value, err := encode(k.Props[p.Name])
		if err != nil {
			return nil, err
		}
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads the form written by MarshalJSON. Null keep properties
// are dropped.
func (n *Node) UnmarshalJSON(raw []byte) error {
	var wire struct {
		Type     NodeType          `json:"type"`
		Value    string            `json:"value"`
		Tag      string            `json:"tag"`
		Attrs    map[string]string `json:"attrs"`
		Keep     map[string]any    `json:"keep"`
		Children []*Node           `json:"children"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return err
	}
	*n = Node{Type: wire.Type, Value: wire.Value, Tag: wire.Tag, Attrs: wire.Attrs, Children: wire.Children}
	switch wire.Type {
	case NodeText, NodeElement:
		return nil
	case NodeKeep:
		kind, _ := wire.Keep["type"].(string)
		if _, ok := schema.KeepVariantOf(schema.KeepKind(kind)); !ok {
			return fmt.Errorf("unknown keep kind %q", kind)
		}
		props := map[string]any{}
		for k, v := range wire.Keep {
			if k != "type" && v != nil {
				props[k] = v
			}
		}
		n.Keep = &Keep{Kind: schema.KeepKind(kind), Props: props}
		return nil
	default:
		return fmt.Errorf("unknown node type %q", wire.Type)
	}
}

// DecodeDocument parses a body produced by Document.Body.
func DecodeDocument(raw []byte) (*Document, error) {
	var d Document
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBody, err)
	}
	return &d, nil
}

// Footnote is a referenced footnote definition.
type Footnote struct {
	Label    string  `json:"label"`
	Number   int     `json:"number"`
	Children []*Node `json:"children"`
}

// Section is one entry of the heading outline.
type Section struct {
	Slug  string `json:"slug"`
	Level int    `json:"level"`
	Title string `json:"title"`
}

// Document is a compiled markdown body.
type Document struct {
	Root      []*Node    `json:"root"`
	Footnotes []Footnote `json:"footnotes"`
	Sections  []Section  `json:"sections"`
}

// Body serializes the document as stored behind a markdown column.
func (d *Document) Body() ([]byte, error) {
	out := struct {
		Root      []*Node    `json:"root"`
		Footnotes []Footnote `json:"footnotes"`
		Sections  []Section  `json:"sections"`
	}{nonNil(d.Root), d.Footnotes, d.Sections}
	if out.Footnotes == nil {
		out.Footnotes = []Footnote{}
	}
	for i := range out.Footnotes {
		out.Footnotes[i].Children = nonNil(out.Footnotes[i].Children)
	}
	if out.Sections == nil {
		out.Sections = []Section{}
	}
	return encode(out)
}

// Walk visits every node of the document depth-first, footnote contents
// included. Returning false skips the node's children.
func (d *Document) Walk(fn func(*Node) bool) {
	walk(d.Root, fn)
	for _, f := range d.Footnotes {
		walk(f.Children, fn)
	}
}

func walk(nodes []*Node, fn func(*Node) bool) {
	for _, n := range nodes {
		if n == nil {
			continue
		}
		if fn(n) {
			walk(n.Children, fn)
		}
	}
}

// KeepNodes returns the keep nodes of kind in document order.
func (d *Document) KeepNodes(kind schema.KeepKind) []*Node {
	var out []*Node
	d.Walk(func(n *Node) bool {
		if n.Is(kind) {
			out = append(out, n)
		}
		return true
	})
	return out
}

// CountKeep tallies keep nodes per kind.
func CountKeep(d *Document) map[schema.KeepKind]int {
	counts := map[schema.KeepKind]int{}
	d.Walk(func(n *Node) bool {
		if n.Type == NodeKeep && n.Keep != nil {
			counts[n.Keep.Kind]++
		}
		return true
	})
	return counts
}

func nonNil(nodes []*Node) []*Node {
	if nodes == nil {
		return []*Node{}
	}
	return nodes
}

func encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
