package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"
)

const (
	SyntaxMarkdown = "markdown"
	SyntaxYAML     = "yaml"
)

var (
	ErrConfigNotFound = errors.New("config: file not found")
	ErrConfigInvalid  = errors.New("config: invalid collection")
)

// Collection is the declarative description of one content collection: where
// its documents live, how they are written and the field tree they map onto.
type Collection struct {
	Name              string   `yaml:"name"`
	Glob              string   `yaml:"glob"`
	Table             string   `yaml:"table"`
	DatabaseID        string   `yaml:"database_id"`
	PreviewDatabaseID string   `yaml:"preview_database_id"`
	Syntax            Syntax   `yaml:"syntax"`
	Schema            FieldMap `yaml:"schema"`

	// BaseDir anchors Glob. Load sets it to the config file's directory.
	BaseDir string `yaml:"-"`
}

// Syntax selects how documents are decoded.
type Syntax struct {
	Type   string `yaml:"type"`
	Column string `yaml:"column"`
}

// Field is a single field declaration. Table, InheritIDs and Schema only
// apply to records fields.
type Field struct {
	Type       string   `yaml:"type"`
	Required   bool     `yaml:"required"`
	Index      bool     `yaml:"index"`
	Storage    *Storage `yaml:"storage"`
	Image      *Image   `yaml:"image"`
	Table      string   `yaml:"table"`
	InheritIDs []string `yaml:"inherit_ids"`
	Schema     FieldMap `yaml:"schema"`
}

// Storage names the backend a content field is written to.
type Storage struct {
	Type      string `yaml:"type"`
	Bucket    string `yaml:"bucket"`
	Namespace string `yaml:"namespace"`
	Prefix    string `yaml:"prefix"`
	Dir       string `yaml:"dir"`
}

// Image configures how images embedded in a markdown body are stored.
type Image struct {
	Table             string   `yaml:"table"`
	InheritIDs        []string `yaml:"inherit_ids"`
	EmbedSVGThreshold int      `yaml:"embed_svg_threshold"`
	Storage           *Storage `yaml:"storage"`
}

// NamedField pairs a field name with its declaration.
type NamedField struct {
	Name  string
	Field Field
}

// FieldMap keeps field declarations in document order.
type FieldMap []NamedField

// UnmarshalYAML decodes a mapping while preserving key order.
func (m *FieldMap) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.AliasNode && node.Alias != nil {
		node = node.Alias
	}
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("config: schema must be a mapping (line %d)", node.Line)
	}
	out := make(FieldMap, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		var field Field
		if err := value.Decode(&field); err != nil {
			return fmt.Errorf("config: field %q: %w", key.Value, err)
		}
		out = append(out, NamedField{Name: key.Value, Field: field})
	}
	*m = out
	return nil
}

// Lookup returns the named field declaration.
func (m FieldMap) Lookup(name string) (Field, bool) {
	for _, f := range m {
		if f.Name == name {
			return f.Field, true
		}
	}
	return Field{}, false
}

// Validate checks the collection envelope. Field-level rules are enforced by
// the schema compiler, which reports them as schema errors.
func (c Collection) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Name, validation.Required),
		validation.Field(&c.Glob, validation.Required),
		validation.Field(&c.Table, validation.Required),
		validation.Field(&c.Syntax),
		validation.Field(&c.Schema, validation.Required),
	)
}

// Validate checks the document syntax block.
func (s Syntax) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Type, validation.Required, validation.In(SyntaxMarkdown, SyntaxYAML)),
		validation.Field(&s.Column, validation.When(s.Type == SyntaxMarkdown, validation.Required)),
	)
}

// Parse decodes and validates a collection from raw YAML.
func Parse(raw []byte) (Collection, error) {
	var c Collection
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return Collection{}, fmt.Errorf("%w: %v", ErrConfigInvalid, err)
	}
	c.Syntax.Type = strings.ToLower(strings.TrimSpace(c.Syntax.Type))
	if err := c.Validate(); err != nil {
		return Collection{}, fmt.Errorf("%w: %v", ErrConfigInvalid, err)
	}
	return c, nil
}

// Load reads the collection config at path.
func Load(path string) (Collection, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Collection{}, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return Collection{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	c, err := Parse(raw)
	if err != nil {
		return Collection{}, err
	}
	abs, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return Collection{}, fmt.Errorf("config: resolve base dir: %w", err)
	}
	c.BaseDir = abs
	return c, nil
}

// DatabaseFor returns the database identifier for a deploy, honouring the
// preview database when requested and configured.
func (c Collection) DatabaseFor(preview bool) string {
	if preview && strings.TrimSpace(c.PreviewDatabaseID) != "" {
		return c.PreviewDatabaseID
	}
	return c.DatabaseID
}
