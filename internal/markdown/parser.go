package markdown

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/goliatone/go-slug"
	"github.com/yuin/goldmark"
	gast "github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"

	"github.com/goliatone/go-contentpack/internal/schema"
)

var (
	alertPattern       = regexp.MustCompile(`^\[!(?i:(note|tip|important|warning|caution))\]`)
	unresolvedRef      = regexp.MustCompile(`\[\^([^\]\s]+)\]`)
	footnoteDefinition = regexp.MustCompile(`^ {0,3}\[\^([^\]\s]+)\]:[ \t]?(.*)$`)
	infoTitle          = regexp.MustCompile(`title=(?:"([^"]*)"|'([^']*)'|(\S+))`)
)

// Parser turns markdown bodies into Documents. It is stateless and safe for
// concurrent use.
type Parser struct {
	engine goldmark.Markdown
}

// NewParser builds a parser with GFM, footnotes and heading attributes
// enabled.
func NewParser() *Parser {
	return &Parser{
		engine: goldmark.New(
			goldmark.WithExtensions(extension.GFM, extension.Footnote),
			goldmark.WithParserOptions(parser.WithAttribute()),
		),
	}
}

// Parse compiles body into a Document with unresolved images and link
// cards.
func (p *Parser) Parse(body []byte) *Document {
	root := p.engine.Parser().Parse(text.NewReader(body))
	c := newConverter(body)
	c.collectFootnotes(root)

	doc := &Document{}
	for n := root.FirstChild(); n != nil; n = n.NextSibling() {
		if list, ok := n.(*east.FootnoteList); ok {
			doc.Footnotes = c.footnotes(list)
			continue
		}
		doc.Root = append(doc.Root, c.block(n)...)
	}
	doc.Root = append(doc.Root, p.unreferenced(body, c.referenced)...)
	doc.Sections = c.sections
	return doc
}

// unreferenced recovers footnote definitions that no reference points to.
// They are dropped by the footnote extension, so they are found in the
// source and kept as pass-through elements at the end of the body.
func (p *Parser) unreferenced(body []byte, referenced map[string]bool) []*Node {
	lines := strings.Split(string(body), "\n")
	seen := map[string]bool{}
	var out []*Node
	inFence := false
	for i := 0; i < len(lines); i++ {
		trimmed := strings.TrimSpace(lines[i])
		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}
		m := footnoteDefinition.FindStringSubmatch(lines[i])
		if m == nil {
			continue
		}
		label := strings.ToLower(m[1])
		if referenced[label] || seen[label] {
			continue
		}
		seen[label] = true

		content := []string{m[2]}
		for i+1 < len(lines) && (strings.HasPrefix(lines[i+1], "    ") || strings.HasPrefix(lines[i+1], "\t")) {
			i++
			content = append(content, strings.TrimPrefix(strings.TrimPrefix(lines[i], "\t"), "    "))
		}
		out = append(out, Element(TagFootnoteDefinition, map[string]string{"label": m[1]}, p.fragment(strings.Join(content, "\n"))...))
	}
	return out
}

func (p *Parser) fragment(source string) []*Node {
	src := []byte(source)
	root := p.engine.Parser().Parse(text.NewReader(src))
	c := newConverter(src)
	var out []*Node
	for n := root.FirstChild(); n != nil; n = n.NextSibling() {
		if _, ok := n.(*east.FootnoteList); ok {
			continue
		}
		out = append(out, c.block(n)...)
	}
	return out
}

type converter struct {
	source     []byte
	labels     map[int]string
	referenced map[string]bool
	slugs      map[string]int
	sections   []Section
}

func newConverter(source []byte) *converter {
	return &converter{
		source:     source,
		labels:     map[int]string{},
		referenced: map[string]bool{},
		slugs:      map[string]int{},
	}
}

func (c *converter) collectFootnotes(root gast.Node) {
	_ = gast.Walk(root, func(n gast.Node, entering bool) (gast.WalkStatus, error) {
		if fn, ok := n.(*east.Footnote); ok && entering && fn.Index > 0 {
			c.labels[fn.Index] = string(fn.Ref)
			c.referenced[strings.ToLower(string(fn.Ref))] = true
		}
		return gast.WalkContinue, nil
	})
}

func (c *converter) footnotes(list *east.FootnoteList) []Footnote {
	var out []Footnote
	for n := list.FirstChild(); n != nil; n = n.NextSibling() {
		fn, ok := n.(*east.Footnote)
		if !ok || fn.Index <= 0 {
			continue
		}
		out = append(out, Footnote{Label: string(fn.Ref), Number: fn.Index, Children: c.blocks(fn)})
	}
	return out
}

func (c *converter) blocks(parent gast.Node) []*Node {
	var out []*Node
	for n := parent.FirstChild(); n != nil; n = n.NextSibling() {
		out = append(out, c.block(n)...)
	}
	return out
}

func (c *converter) block(n gast.Node) []*Node {
	switch node := n.(type) {
	case *gast.Paragraph:
		if card := c.linkCard(node); card != nil {
			return []*Node{card}
		}
		return []*Node{Element("p", nil, c.inlines(node)...)}
	case *gast.TextBlock:
		return c.inlines(node)
	case *gast.Heading:
		return []*Node{c.heading(node)}
	case *gast.ThematicBreak:
		return []*Node{Element("hr", nil)}
	case *gast.FencedCodeBlock:
		return []*Node{c.codeblock(node, node.Info)}
	case *gast.CodeBlock:
		return []*Node{c.codeblock(node, nil)}
	case *gast.Blockquote:
		return []*Node{c.blockquote(node)}
	case *gast.List:
		if node.IsOrdered() {
			var attrs map[string]string
			if node.Start != 1 {
				attrs = map[string]string{"start": strconv.Itoa(node.Start)}
			}
			return []*Node{Element("ol", attrs, c.blocks(node)...)}
		}
		return []*Node{Element("ul", nil, c.blocks(node)...)}
	case *gast.ListItem:
		return []*Node{Element("li", nil, c.blocks(node)...)}
	case *gast.HTMLBlock:
		var raw strings.Builder
		c.writeLines(&raw, node)
		if node.HasClosure() {
			raw.Write(node.ClosureLine.Value(c.source))
		}
		return []*Node{Element("html", nil, Text(raw.String()))}
	case *east.Table:
		return []*Node{c.table(node)}
	case *east.FootnoteList:
		return nil
	default:
		return []*Node{Element(strings.ToLower(n.Kind().String()), nil, c.blocks(n)...)}
	}
}

func (c *converter) inlines(parent gast.Node) []*Node {
	var out []*Node
	for n := parent.FirstChild(); n != nil; n = n.NextSibling() {
		out = append(out, c.inline(n)...)
	}
	return splitUnresolved(mergeText(out))
}

func (c *converter) inline(n gast.Node) []*Node {
	switch node := n.(type) {
	case *gast.Text:
		out := []*Node{Text(string(node.Segment.Value(c.source)))}
		if node.HardLineBreak() {
			out = append(out, Element("br", nil))
		} else if node.SoftLineBreak() {
			out[0].Value += "\n"
		}
		return out
	case *gast.String:
		return []*Node{Text(string(node.Value))}
	case *gast.CodeSpan:
		return []*Node{Element("code", nil, Text(c.plain(node)))}
	case *gast.Emphasis:
		tag := "em"
		if node.Level >= 2 {
			tag = "strong"
		}
		return []*Node{Element(tag, nil, c.inlines(node)...)}
	case *gast.Link:
		attrs := map[string]string{"href": string(node.Destination)}
		if len(node.Title) > 0 {
			attrs["title"] = string(node.Title)
		}
		return []*Node{Element("a", attrs, c.inlines(node)...)}
	case *gast.AutoLink:
		href := string(node.URL(c.source))
		if node.AutoLinkType == gast.AutoLinkEmail && !strings.HasPrefix(href, "mailto:") {
			href = "mailto:" + href
		}
		return []*Node{Element("a", map[string]string{"href": href}, Text(string(node.Label(c.source))))}
	case *gast.Image:
		props := map[string]any{
			schema.PropSrc: string(node.Destination),
			schema.PropAlt: c.plain(node),
		}
		if len(node.Title) > 0 {
			props[schema.PropTitle] = string(node.Title)
		}
		return []*Node{KeepNode(schema.KeepImage, props)}
	case *gast.RawHTML:
		var raw strings.Builder
		for i := 0; i < node.Segments.Len(); i++ {
			seg := node.Segments.At(i)
			raw.Write(seg.Value(c.source))
		}
		return []*Node{Element("html", nil, Text(raw.String()))}
	case *east.Strikethrough:
		return []*Node{Element("del", nil, c.inlines(node)...)}
	case *east.TaskCheckBox:
		attrs := map[string]string{"type": "checkbox"}
		if node.IsChecked {
			attrs["checked"] = "checked"
		}
		return []*Node{Element("input", attrs)}
	case *east.FootnoteLink:
		return []*Node{KeepNode(schema.KeepFootnoteReference, map[string]any{
			schema.PropLabel:  c.labels[node.Index],
			schema.PropNumber: node.Index,
		})}
	case *east.FootnoteBacklink:
		return nil
	default:
		return c.inlines(n)
	}
}

func (c *converter) heading(node *gast.Heading) *Node {
	title := strings.TrimSpace(c.plain(node))
	id := ""
	if v, ok := node.AttributeString("id"); ok {
		switch typed := v.(type) {
		case []byte:
			id = string(typed)
		case string:
			id = typed
		}
	}
	if id == "" {
		id = c.slugFor(title)
	} else {
		c.slugs[id]++
	}
	c.sections = append(c.sections, Section{Slug: id, Level: node.Level, Title: title})
	return KeepNode(schema.KeepHeading, map[string]any{
		schema.PropLevel: node.Level,
		schema.PropSlug:  id,
	}, c.inlines(node)...)
}

func (c *converter) slugFor(title string) string {
	base, err := slug.Normalize(title)
	if err != nil || base == "" {
		base = "section"
	}
	n := c.slugs[base]
	c.slugs[base]++
	if n == 0 {
		return base
	}
	return fmt.Sprintf("%s-%d", base, n)
}

func (c *converter) codeblock(n gast.Node, info *gast.Text) *Node {
	var code strings.Builder
	c.writeLines(&code, n)
	props := map[string]any{schema.PropCode: code.String()}
	if info != nil {
		meta := strings.TrimSpace(string(info.Segment.Value(c.source)))
		if fields := strings.Fields(meta); len(fields) > 0 && !strings.Contains(fields[0], "=") {
			props[schema.PropLang] = fields[0]
		}
		if m := infoTitle.FindStringSubmatch(meta); m != nil {
			props[schema.PropTitle] = m[1] + m[2] + m[3]
		}
	}
	return KeepNode(schema.KeepCodeblock, props)
}

func (c *converter) blockquote(node *gast.Blockquote) *Node {
	children := c.blocks(node)
	if len(children) == 0 {
		return Element("blockquote", nil)
	}
	first := children[0]
	if first.Type != NodeElement || first.Tag != "p" || len(first.Children) == 0 || first.Children[0].Type != NodeText {
		return Element("blockquote", nil, children...)
	}
	m := alertPattern.FindStringSubmatch(first.Children[0].Value)
	if m == nil {
		return Element("blockquote", nil, children...)
	}

	rest := strings.TrimLeft(first.Children[0].Value[len(m[0]):], " \t")
	rest = strings.TrimPrefix(rest, "\n")
	if rest == "" {
		first.Children = first.Children[1:]
	} else {
		first.Children[0].Value = rest
	}
	if len(first.Children) > 0 && first.Children[0].Type == NodeElement && first.Children[0].Tag == "br" {
		first.Children = first.Children[1:]
	}
	if len(first.Children) == 0 {
		children = children[1:]
	}
	return KeepNode(schema.KeepAlert, map[string]any{schema.PropVariant: strings.ToLower(m[1])}, children...)
}

// linkCard recognises a paragraph made of a single bare URL.
func (c *converter) linkCard(p *gast.Paragraph) *Node {
	var link *gast.AutoLink
	for n := p.FirstChild(); n != nil; n = n.NextSibling() {
		switch node := n.(type) {
		case *gast.AutoLink:
			if link != nil || node.AutoLinkType != gast.AutoLinkURL {
				return nil
			}
			link = node
		case *gast.Text:
			if strings.TrimSpace(string(node.Segment.Value(c.source))) != "" {
				return nil
			}
		default:
			return nil
		}
	}
	if link == nil {
		return nil
	}
	href := string(link.URL(c.source))
	u, err := url.Parse(href)
	if err != nil || u.Hostname() == "" {
		return nil
	}
	return KeepNode(schema.KeepLinkCard, map[string]any{
		schema.PropHref: href,
		schema.PropHost: u.Hostname(),
	}, Text(href))
}

func (c *converter) table(node *east.Table) *Node {
	var head, body []*Node
	for row := node.FirstChild(); row != nil; row = row.NextSibling() {
		_, header := row.(*east.TableHeader)
		cellTag := "td"
		if header {
			cellTag = "th"
		}
		tr := Element("tr", nil)
		for cell := row.FirstChild(); cell != nil; cell = cell.NextSibling() {
			var attrs map[string]string
			if tc, ok := cell.(*east.TableCell); ok && tc.Alignment != east.AlignNone {
				attrs = map[string]string{"align": tc.Alignment.String()}
			}
			tr.Children = append(tr.Children, Element(cellTag, attrs, c.inlines(cell)...))
		}
		if header {
			head = append(head, tr)
		} else {
			body = append(body, tr)
		}
	}
	table := Element("table", nil)
	if len(head) > 0 {
		table.Children = append(table.Children, Element("thead", nil, head...))
	}
	if len(body) > 0 {
		table.Children = append(table.Children, Element("tbody", nil, body...))
	}
	return table
}

func (c *converter) writeLines(b *strings.Builder, n gast.Node) {
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		b.Write(seg.Value(c.source))
	}
}

// plain flattens the text content of n.
func (c *converter) plain(n gast.Node) string {
	var b strings.Builder
	var visit func(gast.Node)
	visit = func(n gast.Node) {
		for child := n.FirstChild(); child != nil; child = child.NextSibling() {
			switch node := child.(type) {
			case *gast.Text:
				b.Write(node.Segment.Value(c.source))
				if node.SoftLineBreak() || node.HardLineBreak() {
					b.WriteByte(' ')
				}
			case *gast.String:
				b.Write(node.Value)
			case *gast.AutoLink:
				b.Write(node.Label(c.source))
			default:
				visit(child)
			}
		}
	}
	visit(n)
	return b.String()
}

func mergeText(nodes []*Node) []*Node {
	out := nodes[:0:0]
	for _, n := range nodes {
		if n.Type == NodeText && len(out) > 0 && out[len(out)-1].Type == NodeText {
			out[len(out)-1].Value += n.Value
			continue
		}
		out = append(out, n)
	}
	return out
}

// splitUnresolved turns footnote references without a definition into
// reference nodes carrying only the raw label.
func splitUnresolved(nodes []*Node) []*Node {
	var out []*Node
	for _, n := range nodes {
		if n.Type != NodeText {
			out = append(out, n)
			continue
		}
		matches := unresolvedRef.FindAllStringSubmatchIndex(n.Value, -1)
		if matches == nil {
			out = append(out, n)
			continue
		}
		last := 0
		for _, m := range matches {
			if m[0] > last {
				out = append(out, Text(n.Value[last:m[0]]))
			}
			out = append(out, KeepNode(schema.KeepFootnoteReference, map[string]any{
				schema.PropLabel: n.Value[m[2]:m[3]],
			}))
			last = m[1]
		}
		if last < len(n.Value) {
			out = append(out, Text(n.Value[last:]))
		}
	}
	return out
}
