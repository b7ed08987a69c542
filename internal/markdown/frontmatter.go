package markdown

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/adrg/frontmatter"
)

var (
	ErrNoFrontmatter      = errors.New("markdown: document has no frontmatter block")
	ErrInvalidFrontmatter = errors.New("markdown: invalid frontmatter")
)

// SplitFrontmatter separates the frontmatter block from the markdown body.
// A document without a block is rejected.
func SplitFrontmatter(source []byte) (map[string]any, []byte, error) {
	var meta map[string]any
	body, err := frontmatter.MustParse(bytes.NewReader(source), &meta)
	if err != nil {
		if errors.Is(err, frontmatter.ErrNotFound) {
			return nil, nil, ErrNoFrontmatter
		}
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidFrontmatter, err)
	}
	if meta == nil {
		meta = map[string]any{}
	}
	normalized, ok := Normalize(meta).(map[string]any)
	if !ok {
		return nil, nil, fmt.Errorf("%w: frontmatter must be a mapping", ErrInvalidFrontmatter)
	}
	return normalized, body, nil
}

// Normalize converts decoded YAML values into JSON-compatible ones: nested
// maps become map[string]any and sequences []any.
func Normalize(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(typed))
		for k, v := range typed {
			out[k] = Normalize(v)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(typed))
		for k, v := range typed {
			out[fmt.Sprint(k)] = Normalize(v)
		}
		return out
	case []any:
		out := make([]any, len(typed))
		for i, v := range typed {
			out[i] = Normalize(v)
		}
		return out
	default:
		return value
	}
}
