package codegen

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-contentpack/internal/schema"
	"github.com/goliatone/go-contentpack/internal/storage"
)

const tsHeader = "// Code generated by contentpack. DO NOT EDIT.\n"

const tsContentTypes = `export interface StoragePointer {
  hash: string;
  size: number;
  content_type: string;
  pointer: string;
}

export interface InlineContent<T = string> {
  hash: string;
  size: number;
  content_type: string;
  content: T;
  encoding?: "base64";
}

export type ContentColumn = StoragePointer | InlineContent;
`

const tsMarkdownTypes = `export type MarkdownNode =
  | { type: "text"; value: string }
  | { type: "element"; tag: string; attrs?: Record<string, string>; children: MarkdownNode[] }
  | { type: "keep"; keep: Keep; children: MarkdownNode[] };

export interface Footnote {
  label: string;
  number: number;
  children: MarkdownNode[];
}

export interface Section {
  slug: string;
  level: number;
  title: string;
}

export interface MarkdownDocument {
  root: MarkdownNode[];
  footnotes: Footnote[];
  sections: Section[];
}
`

// TypeScript renders row interfaces for every table of c, plus the content
// and markdown types they reference.
func TypeScript(c *schema.Collection) string {
	var b strings.Builder
	b.WriteString(tsHeader)
	b.WriteString("\n")
	b.WriteString(tsContentTypes)
	b.WriteString("\n")
	writeKeepTypes(&b)
	b.WriteString("\n")
	b.WriteString(tsMarkdownTypes)

	for _, t := range c.Tables {
		b.WriteString("\n")
		fmt.Fprintf(&b, "/**\n * Row of table %s.\n * @primaryKey %s\n */\n", t.Name, strings.Join(t.PrimaryKey(), ", "))
		fmt.Fprintf(&b, "export interface %s {\n", TypeName(t.Name))
		for _, col := range t.Columns() {
			typ := tsType(col)
			if !col.NonNull {
				typ += " | null"
			}
			fmt.Fprintf(&b, "  %s: %s;\n", col.Name, typ)
		}
		b.WriteString("}\n")
	}

	for _, t := range c.Tables {
		if len(t.Children) == 0 {
			continue
		}
		b.WriteString("\n")
		fmt.Fprintf(&b, "export interface %sTree extends %s {\n", TypeName(t.Name), TypeName(t.Name))
		for _, idx := range t.Children {
			child := c.Tables[idx]
			name := TypeName(child.Name)
			if len(child.Children) > 0 {
				name += "Tree"
			}
			fmt.Fprintf(&b, "  %s: %s[];\n", childKey(child), name)
		}
		b.WriteString("}\n")
	}
	return b.String()
}

// TypeName converts a snake_case table name into a PascalCase type name.
func TypeName(table string) string {
	parts := strings.FieldsFunc(table, func(r rune) bool { return r == '_' || r == '-' })
	var b strings.Builder
	for _, p := range parts {
		b.WriteString(strings.ToUpper(p[:1]))
		b.WriteString(p[1:])
	}
	return b.String()
}

func childKey(t *schema.Table) string {
	if t.Origin == schema.OriginImages {
		return t.Owner + "_images"
	}
	return t.Owner
}

func tsType(col schema.Column) string {
	switch col.Kind {
	case schema.KindInteger, schema.KindReal:
		return "number"
	case schema.KindBoolean:
		return "boolean"
	case schema.KindImage, schema.KindFile:
		if inline(col) {
			return "InlineContent"
		}
		return "StoragePointer"
	case schema.KindMarkdown:
		if inline(col) {
			return "InlineContent<MarkdownDocument>"
		}
		return "StoragePointer"
	default:
		return "string"
	}
}

func inline(col schema.Column) bool {
	return col.Field != nil && col.Field.Storage != nil && col.Field.Storage.Scheme == storage.SchemeInline
}

func writeKeepTypes(b *strings.Builder) {
	var names []string
	for _, v := range schema.KeepVariants() {
		name := "Keep" + TypeName(string(v.Kind))
		names = append(names, name)
		fmt.Fprintf(b, "export interface %s {\n  type: %q;\n", name, string(v.Kind))
		for _, p := range v.Properties {
			typ := tsPropertyType(p)
			if p.Nullable {
				typ += " | null"
			}
			fmt.Fprintf(b, "  %s: %s;\n", p.Name, typ)
		}
		b.WriteString("}\n\n")
	}
	fmt.Fprintf(b, "export type Keep = %s;\n", strings.Join(names, " | "))
}

func tsPropertyType(p schema.KeepProperty) string {
	if len(p.Enum) > 0 {
		quoted := make([]string, len(p.Enum))
		for i, v := range p.Enum {
			quoted[i] = fmt.Sprintf("%q", v)
		}
		return strings.Join(quoted, " | ")
	}
	switch p.Type {
	case schema.PropTypeInteger:
		return "number"
	case schema.PropTypeContent:
		return "ContentColumn"
	default:
		return "string"
	}
}
