package schema

import (
	"strings"

	"github.com/goliatone/go-contentpack/internal/storage"
)

// Origin records why a table exists.
type Origin uint8

const (
	OriginRoot Origin = iota
	OriginRecords
	OriginImages
)

// Field is a compiled field declaration.
type Field struct {
	Name     string
	Kind     Kind
	Required bool
	Indexed  bool
	Storage  *storage.Spec
	Image    *ImageSpec
	// Child is the arena index of the table owned by a records field, or -1.
	Child int
}

// ImageSpec configures images embedded in a markdown field.
type ImageSpec struct {
	// Table is the arena index of the image table, or -1 when image rows are
	// not recorded.
	Table             int
	EmbedSVGThreshold int
	Storage           storage.Spec
}

// NonNull reports whether the field's column can never be null.
func (f *Field) NonNull() bool {
	return f.Required || f.Kind == KindID || f.Kind == KindHash
}

// Column is one column of a table as seen by every emitter and by the sink.
type Column struct {
	Name       string
	Kind       Kind
	NonNull    bool
	Indexed    bool
	Inherited  bool
	PrimaryKey bool
	// Field is nil for inherited id columns.
	Field *Field
}

// Table is a node of the collection's table tree.
type Table struct {
	Index  int
	Name   string
	Origin Origin
	// Parent is the arena index of the parent table, -1 for the root.
	Parent int
	// Owner is the parent field that owns this table.
	Owner      string
	Depth      int
	InheritIDs []string
	Fields     []Field
	Children   []int
}

// Field returns the named field.
func (t *Table) Field(name string) (*Field, bool) {
	for i := range t.Fields {
		if t.Fields[i].Name == name {
			return &t.Fields[i], true
		}
	}
	return nil, false
}

// IDFields returns the names of the table's own id fields in order.
func (t *Table) IDFields() []string {
	var out []string
	for _, f := range t.Fields {
		if f.Kind == KindID {
			out = append(out, f.Name)
		}
	}
	return out
}

// PrimaryKey is the inherited id columns followed by the table's own ids.
func (t *Table) PrimaryKey() []string {
	pk := append([]string(nil), t.InheritIDs...)
	return append(pk, t.IDFields()...)
}

// IDOnly reports whether records of this table may be written as bare
// scalars: a single id field and nothing the author must supply besides it.
func (t *Table) IDOnly() bool {
	ids := 0
	for _, f := range t.Fields {
		switch f.Kind {
		case KindID:
			ids++
		case KindHash:
		default:
			return false
		}
	}
	return ids == 1
}

// Columns lists the stored columns in DDL order: inherited ids first, then
// the table's own fields except records.
func (t *Table) Columns() []Column {
	cols := make([]Column, 0, len(t.InheritIDs)+len(t.Fields))
	for _, name := range t.InheritIDs {
		cols = append(cols, Column{Name: name, Kind: KindID, NonNull: true, Inherited: true, PrimaryKey: true})
	}
	for i := range t.Fields {
		f := &t.Fields[i]
		if !f.Kind.HasColumn() {
			continue
		}
		cols = append(cols, Column{
			Name:       f.Name,
			Kind:       f.Kind,
			NonNull:    f.NonNull(),
			Indexed:    f.Indexed,
			PrimaryKey: f.Kind == KindID,
			Field:      f,
		})
	}
	return cols
}

// Collection is the compiled schema of a content collection. Tables are
// stored in an arena in pre-order, so a parent always precedes its children.
type Collection struct {
	Name              string
	Glob              string
	BaseDir           string
	Syntax            string
	BodyColumn        string
	DatabaseID        string
	PreviewDatabaseID string
	Tables            []*Table
}

// Root returns the collection's main table.
func (c *Collection) Root() *Table {
	return c.Tables[0]
}

// Table finds a table by name.
func (c *Collection) Table(name string) (*Table, bool) {
	for _, t := range c.Tables {
		if t.Name == name {
			return t, true
		}
	}
	return nil, false
}

// Parent returns t's parent or nil for the root.
func (c *Collection) Parent(t *Table) *Table {
	if t.Parent < 0 {
		return nil
	}
	return c.Tables[t.Parent]
}

// Fingerprint hashes the shape of every table. It changes whenever a
// column, key or storage target changes.
func (c *Collection) Fingerprint() string {
	var b strings.Builder
	for _, t := range c.Tables {
		b.WriteString(t.Name)
		b.WriteByte('(')
		for _, col := range t.Columns() {
			b.WriteString(col.Name)
			b.WriteByte(':')
			b.WriteString(col.Kind.String())
			if col.NonNull {
				b.WriteByte('!')
			}
			if col.Field != nil && col.Field.Storage != nil {
				b.WriteByte('@')
				b.WriteString(string(col.Field.Storage.Scheme))
				b.WriteString(col.Field.Storage.Bucket + col.Field.Storage.Namespace + col.Field.Storage.Prefix + col.Field.Storage.Dir)
			}
			b.WriteByte(',')
		}
		b.WriteString(")pk=")
		b.WriteString(strings.Join(t.PrimaryKey(), ","))
		b.WriteByte(';')
	}
	return storage.HashString(b.String())
}
