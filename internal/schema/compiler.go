package schema

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/goliatone/go-contentpack/internal/config"
	"github.com/goliatone/go-contentpack/internal/storage"
)

// MaxDepth bounds table nesting.
const MaxDepth = 16

// Columns of the implicit table recording a markdown field's images.
const (
	ImageIDColumn    = "id"
	ImageValueColumn = "image"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

type compiler struct {
	tables []*Table
	names  map[string]int
	// lineage holds the names of the tables currently being compiled, root
	// first.
	lineage []string
}

// Compile validates a collection's field tree and builds its table arena.
func Compile(def config.Collection) (*Collection, error) {
	c := &compiler{names: map[string]int{}}
	if _, err := c.table(def.Table, -1, "", nil, def.Schema, 0, OriginRoot); err != nil {
		return nil, err
	}

	col := &Collection{
		Name:              def.Name,
		Glob:              def.Glob,
		BaseDir:           def.BaseDir,
		Syntax:            strings.ToLower(def.Syntax.Type),
		BodyColumn:        def.Syntax.Column,
		DatabaseID:        def.DatabaseID,
		PreviewDatabaseID: def.PreviewDatabaseID,
		Tables:            c.tables,
	}
	if col.Syntax == "" {
		col.Syntax = config.SyntaxMarkdown
	}
	if col.Syntax == config.SyntaxMarkdown {
		f, ok := col.Root().Field(col.BodyColumn)
		if !ok || f.Kind != KindMarkdown {
			return nil, schemaErr(InvalidFieldOption, def.Table, col.BodyColumn, "markdown syntax column must name a markdown field of the root table")
		}
	}
	return col, nil
}

func (c *compiler) table(name string, parent int, owner string, inherit []string, fields config.FieldMap, depth int, origin Origin) (int, error) {
	if depth > MaxDepth {
		return 0, schemaErr(CyclicSchema, name, owner, "nesting deeper than %d tables", MaxDepth)
	}
	if !identifierPattern.MatchString(name) {
		return 0, schemaErr(InvalidFieldOption, name, owner, "invalid table name")
	}
	if slices.Contains(c.lineage, name) {
		return 0, schemaErr(CyclicSchema, name, owner, "table nests itself (%s)", strings.Join(append(c.lineage, name), " > "))
	}
	if _, dup := c.names[name]; dup {
		return 0, schemaErr(DuplicateTable, name, owner, "table name already declared")
	}

	t := &Table{
		Index:      len(c.tables),
		Name:       name,
		Origin:     origin,
		Parent:     parent,
		Owner:      owner,
		Depth:      depth,
		InheritIDs: append([]string(nil), inherit...),
	}
	c.names[name] = t.Index
	c.tables = append(c.tables, t)

	if err := c.inheritance(t); err != nil {
		return 0, err
	}

	seen := map[string]bool{}
	for _, id := range t.InheritIDs {
		seen[id] = true
	}
	for _, nf := range fields {
		if !identifierPattern.MatchString(nf.Name) {
			return 0, schemaErr(InvalidFieldOption, name, nf.Name, "invalid field name")
		}
		if seen[nf.Name] {
			return 0, schemaErr(InvalidFieldOption, name, nf.Name, "field name duplicates another field or inherited id")
		}
		seen[nf.Name] = true

		f, err := c.field(name, nf)
		if err != nil {
			return 0, err
		}
		t.Fields = append(t.Fields, f)
	}
	if len(t.IDFields()) == 0 {
		return 0, schemaErr(InvalidFieldOption, name, "", "table declares no id field")
	}

	c.lineage = append(c.lineage, name)
	defer func() { c.lineage = c.lineage[:len(c.lineage)-1] }()

	// Children are compiled once the table's own key is known.
	for i, nf := range fields {
		f := &t.Fields[i]
		switch f.Kind {
		case KindRecords:
			child, err := c.table(nf.Field.Table, t.Index, f.Name, nf.Field.InheritIDs, nf.Field.Schema, depth+1, OriginRecords)
			if err != nil {
				return 0, err
			}
			f.Child = child
			t.Children = append(t.Children, child)
		case KindMarkdown:
			if nf.Field.Image == nil || nf.Field.Image.Table == "" {
				continue
			}
			img := nf.Field.Image
			imageFields := config.FieldMap{
				{Name: ImageIDColumn, Field: config.Field{Type: KindID.String()}},
				{Name: ImageValueColumn, Field: config.Field{Type: KindImage.String(), Required: true, Storage: img.Storage}},
			}
			child, err := c.table(img.Table, t.Index, f.Name, img.InheritIDs, imageFields, depth+1, OriginImages)
			if err != nil {
				return 0, err
			}
			f.Image.Table = child
			t.Children = append(t.Children, child)
		}
	}
	return t.Index, nil
}

func (c *compiler) inheritance(t *Table) error {
	if t.Parent < 0 {
		if len(t.InheritIDs) > 0 {
			return schemaErr(InvalidFieldOption, t.Name, "", "the root table cannot inherit ids")
		}
		return nil
	}
	parent := c.tables[t.Parent]
	parentKey := parent.PrimaryKey()
	if len(t.InheritIDs) != len(parentKey) {
		return schemaErr(InvalidFieldOption, t.Name, t.Owner,
			"inherit_ids %v must name one column per parent key column %v", t.InheritIDs, parentKey)
	}
	seen := map[string]bool{}
	for _, id := range t.InheritIDs {
		if !identifierPattern.MatchString(id) || seen[id] {
			return schemaErr(InvalidFieldOption, t.Name, t.Owner, "invalid or repeated inherited id %q", id)
		}
		seen[id] = true
	}
	return nil
}

func (c *compiler) field(table string, nf config.NamedField) (Field, error) {
	def := nf.Field
	kind, ok := ParseKind(def.Type)
	if !ok {
		return Field{}, schemaErr(UnknownFieldType, table, nf.Name, "unknown type %q", def.Type)
	}
	f := Field{Name: nf.Name, Kind: kind, Required: def.Required, Indexed: def.Index, Child: -1}
	invalid := func(format string, args ...any) (Field, error) {
		return Field{}, schemaErr(InvalidFieldOption, table, nf.Name, format, args...)
	}

	if kind != KindRecords && (def.Table != "" || len(def.InheritIDs) > 0 || len(def.Schema) > 0) {
		return invalid("table, inherit_ids and schema only apply to records fields")
	}
	if !kind.IsContent() && def.Storage != nil {
		return invalid("storage only applies to markdown, image and file fields")
	}
	if kind != KindMarkdown && def.Image != nil {
		return invalid("image only applies to markdown fields")
	}
	if def.Index && !kind.indexable() {
		return invalid("%s fields cannot be indexed", kind)
	}

	switch kind {
	case KindID:
		if def.Required {
			return invalid("id fields are always required and cannot set required")
		}
		f.Indexed = true
	case KindHash:
		if def.Required {
			return invalid("hash fields are computed and cannot be required")
		}
		f.Indexed = true
	case KindImage, KindFile, KindMarkdown:
		spec, err := storageSpec(def.Storage)
		if err != nil {
			return invalid("%v", err)
		}
		if kind == KindMarkdown && spec.Scheme == storage.SchemeAsset {
			return invalid("markdown bodies cannot use asset storage")
		}
		f.Storage = &spec
		if kind != KindMarkdown {
			break
		}
		if def.Image == nil {
			// Body images still resolve; they share the body's storage and
			// are never embedded.
			f.Image = &ImageSpec{Table: -1, Storage: spec}
			break
		}
		img, err := imageSpec(def.Image)
		if err != nil {
			return invalid("%v", err)
		}
		f.Image = img
	case KindRecords:
		if def.Required {
			return invalid("records fields cannot be required")
		}
		if def.Table == "" {
			return invalid("records fields require a table")
		}
		if len(def.Schema) == 0 {
			return invalid("records fields require a schema")
		}
		if len(def.InheritIDs) == 0 {
			return invalid("records fields require inherit_ids")
		}
	}
	return f, nil
}

func storageSpec(def *config.Storage) (storage.Spec, error) {
	if def == nil {
		return storage.Spec{}, fmt.Errorf("storage is required")
	}
	scheme, ok := storage.ParseScheme(def.Type)
	if !ok {
		return storage.Spec{}, fmt.Errorf("unknown storage type %q", def.Type)
	}
	spec := storage.Spec{
		Scheme:    scheme,
		Bucket:    def.Bucket,
		Namespace: def.Namespace,
		Prefix:    def.Prefix,
		Dir:       def.Dir,
	}
	if err := spec.Validate(); err != nil {
		return storage.Spec{}, err
	}
	return spec, nil
}

func imageSpec(def *config.Image) (*ImageSpec, error) {
	if def.EmbedSVGThreshold < 0 {
		return nil, fmt.Errorf("embed_svg_threshold cannot be negative")
	}
	spec, err := storageSpec(def.Storage)
	if err != nil {
		return nil, fmt.Errorf("image %v", err)
	}
	return &ImageSpec{Table: -1, EmbedSVGThreshold: def.EmbedSVGThreshold, Storage: spec}, nil
}
