package codegen

import (
	"encoding/json"

	"github.com/goliatone/go-contentpack/internal/schema"
	"github.com/goliatone/go-contentpack/internal/storage"
)

const (
	jsonSchemaDraft = "https://json-schema.org/draft/2020-12/schema"

	DefPointer          = "pointer"
	DefInlineContent    = "inline_content"
	DefInlineMarkdown   = "inline_markdown"
	DefContent          = "content"
	DefMarkdownDocument = "markdown_document"
	DefMarkdownNode     = "markdown_node"
	DefKeep             = "keep"
	DefFootnote         = "footnote"
	DefSection          = "section"

	// PrimaryKeyKeyword annotates each table schema with its composite key.
	PrimaryKeyKeyword = "x-primary-key"
)

// DefRef returns the JSON pointer reference of a definition.
func DefRef(name string) string {
	return "#/$defs/" + name
}

// KeepDef returns the definition name of a keep variant.
func KeepDef(kind schema.KeepKind) string {
	return "keep_" + string(kind)
}

// JSONSchema renders a Draft 2020-12 document whose $defs hold one object
// schema per table plus the shared content and markdown shapes.
func JSONSchema(c *schema.Collection) map[string]any {
	defs := sharedDefs()
	for _, t := range c.Tables {
		defs[t.Name] = tableSchema(t)
	}
	return map[string]any{
		"$schema": jsonSchemaDraft,
		"title":   c.Name,
		"$ref":    DefRef(c.Root().Name),
		"$defs":   defs,
	}
}

// ValidatorJSON is JSONSchema serialized with stable key order.
func ValidatorJSON(c *schema.Collection) ([]byte, error) {
	return json.MarshalIndent(JSONSchema(c), "", "  ")
}

func tableSchema(t *schema.Table) map[string]any {
	props := map[string]any{}
	required := []string{}
	for _, col := range t.Columns() {
		props[col.Name] = columnSchema(col)
		required = append(required, col.Name)
	}
	return map[string]any{
		"type":                 "object",
		"properties":           props,
		"required":             required,
		"additionalProperties": false,
		PrimaryKeyKeyword:      t.PrimaryKey(),
	}
}

func columnSchema(col schema.Column) map[string]any {
	var base map[string]any
	switch col.Kind {
	case schema.KindID:
		base = map[string]any{"type": "string", "minLength": 1}
	case schema.KindInteger:
		base = map[string]any{"type": "integer"}
	case schema.KindReal:
		base = map[string]any{"type": "number"}
	case schema.KindBoolean:
		base = map[string]any{"type": "boolean"}
	case schema.KindDate:
		base = map[string]any{"type": "string", "format": "date"}
	case schema.KindDatetime:
		base = map[string]any{"type": "string", "format": "date-time"}
	case schema.KindImage, schema.KindFile:
		if inline(col) {
			base = ref(DefInlineContent)
		} else {
			base = ref(DefPointer)
		}
	case schema.KindMarkdown:
		if inline(col) {
			base = ref(DefInlineMarkdown)
		} else {
			base = ref(DefPointer)
		}
	default:
		base = map[string]any{"type": "string"}
	}
	if col.NonNull {
		return base
	}
	return nullable(base)
}

// nullable widens a schema to accept null.
func nullable(base map[string]any) map[string]any {
	_, enum := base["enum"]
	if typ, ok := base["type"].(string); ok && !enum {
		widened := map[string]any{}
		for k, v := range base {
			widened[k] = v
		}
		widened["type"] = []any{typ, "null"}
		return widened
	}
	return map[string]any{"anyOf": []any{base, map[string]any{"type": "null"}}}
}

func ref(name string) map[string]any {
	return map[string]any{"$ref": DefRef(name)}
}

func contentEnvelope(content map[string]any) map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"hash":         map[string]any{"type": "string"},
			"size":         map[string]any{"type": "integer", "minimum": 0},
			"content_type": map[string]any{"type": "string"},
			"content":      content,
			"encoding":     map[string]any{"enum": []any{"base64"}},
		},
		"required":             []any{"hash", "size", "content_type", "content"},
		"additionalProperties": false,
	}
}

func sharedDefs() map[string]any {
	defs := map[string]any{
		DefPointer: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"hash":         map[string]any{"type": "string"},
				"size":         map[string]any{"type": "integer", "minimum": 0},
				"content_type": map[string]any{"type": "string"},
				"pointer": map[string]any{
					"type":    "string",
					"pattern": "^(" + string(storage.SchemeR2) + "|" + string(storage.SchemeKV) + "|" + string(storage.SchemeAsset) + ")://",
				},
			},
			"required":             []any{"hash", "size", "content_type", "pointer"},
			"additionalProperties": false,
		},
		DefInlineContent:  contentEnvelope(map[string]any{"type": "string"}),
		DefInlineMarkdown: contentEnvelope(ref(DefMarkdownDocument)),
		DefContent:        map[string]any{"oneOf": []any{ref(DefPointer), ref(DefInlineContent)}},
		DefMarkdownDocument: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"root":      nodeList(),
				"footnotes": map[string]any{"type": "array", "items": ref(DefFootnote)},
				"sections":  map[string]any{"type": "array", "items": ref(DefSection)},
			},
			"required":             []any{"root", "footnotes", "sections"},
			"additionalProperties": false,
		},
		DefMarkdownNode: map[string]any{
			"oneOf": []any{
				map[string]any{
					"type": "object",
					"properties": map[string]any{
						"type":  map[string]any{"const": "text"},
						"value": map[string]any{"type": "string"},
					},
					"required":             []any{"type", "value"},
					"additionalProperties": false,
				},
				map[string]any{
					"type": "object",
					"properties": map[string]any{
						"type":     map[string]any{"const": "element"},
						"tag":      map[string]any{"type": "string", "minLength": 1},
						"attrs":    map[string]any{"type": "object", "additionalProperties": map[string]any{"type": "string"}},
						"children": nodeList(),
					},
					"required":             []any{"type", "tag", "children"},
					"additionalProperties": false,
				},
				map[string]any{
					"type": "object",
					"properties": map[string]any{
						"type":     map[string]any{"const": "keep"},
						"keep":     ref(DefKeep),
						"children": nodeList(),
					},
					"required":             []any{"type", "keep", "children"},
					"additionalProperties": false,
				},
			},
		},
		DefFootnote: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"label":    map[string]any{"type": "string"},
				"number":   map[string]any{"type": "integer", "minimum": 1},
				"children": nodeList(),
			},
			"required":             []any{"label", "number", "children"},
			"additionalProperties": false,
		},
		DefSection: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"slug":  map[string]any{"type": "string"},
				"level": map[string]any{"type": "integer", "minimum": 1, "maximum": 6},
				"title": map[string]any{"type": "string"},
			},
			"required":             []any{"slug", "level", "title"},
			"additionalProperties": false,
		},
	}

	var variants []any
	for _, v := range schema.KeepVariants() {
		defs[KeepDef(v.Kind)] = keepSchema(v)
		variants = append(variants, ref(KeepDef(v.Kind)))
	}
	defs[DefKeep] = map[string]any{"oneOf": variants}
	return defs
}

func keepSchema(v schema.KeepVariant) map[string]any {
	props := map[string]any{"type": map[string]any{"const": string(v.Kind)}}
	required := []any{"type"}
	for _, p := range v.Properties {
		props[p.Name] = keepPropertySchema(p)
		required = append(required, p.Name)
	}
	return map[string]any{
		"type":                 "object",
		"properties":           props,
		"required":             required,
		"additionalProperties": false,
	}
}

func keepPropertySchema(p schema.KeepProperty) map[string]any {
	var base map[string]any
	switch {
	case len(p.Enum) > 0:
		values := make([]any, len(p.Enum))
		for i, e := range p.Enum {
			values[i] = e
		}
		base = map[string]any{"type": "string", "enum": values}
	case p.Type == schema.PropTypeInteger:
		base = map[string]any{"type": "integer"}
	case p.Type == schema.PropTypeContent:
		base = ref(DefContent)
	default:
		base = map[string]any{"type": "string"}
	}
	if !p.Nullable {
		return base
	}
	return nullable(base)
}

func nodeList() map[string]any {
	return map[string]any{"type": "array", "items": ref(DefMarkdownNode)}
}
