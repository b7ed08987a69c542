package document

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-contentpack/internal/schema"
)

const dateLayout = "2006-01-02"

var datetimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// coerceScalar converts a decoded frontmatter value to the column value of
// kind. Content and records kinds are handled by the compiler.
func coerceScalar(kind schema.Kind, raw any) (any, error) {
	switch kind {
	case schema.KindID:
		switch v := raw.(type) {
		case string:
			if strings.TrimSpace(v) == "" {
				return nil, fmt.Errorf("id cannot be empty")
			}
			return v, nil
		default:
			if n, ok := asInt(raw); ok {
				return strconv.FormatInt(n, 10), nil
			}
		}
	case schema.KindString:
		if v, ok := raw.(string); ok {
			return v, nil
		}
	case schema.KindInteger:
		if n, ok := asInt(raw); ok {
			return n, nil
		}
	case schema.KindReal:
		if f, ok := asFloat(raw); ok {
			return f, nil
		}
	case schema.KindBoolean:
		if v, ok := raw.(bool); ok {
			return v, nil
		}
	case schema.KindDate:
		switch v := raw.(type) {
		case time.Time:
			return v.Format(dateLayout), nil
		case string:
			t, err := time.Parse(dateLayout, strings.TrimSpace(v))
			if err != nil {
				return nil, fmt.Errorf("expected a YYYY-MM-DD date, got %q", v)
			}
			return t.Format(dateLayout), nil
		}
	case schema.KindDatetime:
		switch v := raw.(type) {
		case time.Time:
			return v.UTC().Format(time.RFC3339Nano), nil
		case string:
			for _, layout := range datetimeLayouts {
				if t, err := time.Parse(layout, strings.TrimSpace(v)); err == nil {
					return t.UTC().Format(time.RFC3339Nano), nil
				}
			}
			return nil, fmt.Errorf("expected an RFC 3339 datetime, got %q", v)
		}
	}
	return nil, fmt.Errorf("expected %s, got %T", kind, raw)
}

func asInt(raw any) (int64, bool) {
	switch v := raw.(type) {
	case int:
		return int64(v), true
	case int64:
		return v, true
	case uint64:
		if v > math.MaxInt64 {
			return 0, false
		}
		return int64(v), true
	case float64:
		if v == math.Trunc(v) && !math.IsInf(v, 0) && math.Abs(v) < 1<<53 {
			return int64(v), true
		}
	}
	return 0, false
}

func asFloat(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint64:
		return float64(v), true
	}
	return 0, false
}
