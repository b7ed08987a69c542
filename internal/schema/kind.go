package schema

import "strings"

// Kind is the closed set of field types a collection can declare.
type Kind uint8

const (
	KindID Kind = iota + 1
	KindHash
	KindString
	KindInteger
	KindReal
	KindBoolean
	KindDate
	KindDatetime
	KindImage
	KindFile
	KindMarkdown
	KindRecords
)

var kindNames = map[Kind]string{
	KindID:       "id",
	KindHash:     "hash",
	KindString:   "string",
	KindInteger:  "integer",
	KindReal:     "real",
	KindBoolean:  "boolean",
	KindDate:     "date",
	KindDatetime: "datetime",
	KindImage:    "image",
	KindFile:     "file",
	KindMarkdown: "markdown",
	KindRecords:  "records",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// ParseKind resolves a config type name.
func ParseKind(name string) (Kind, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for kind, candidate := range kindNames {
		if candidate == name {
			return kind, true
		}
	}
	return 0, false
}

// HasColumn reports whether the kind is stored as a column of its table.
// Records live in child tables instead.
func (k Kind) HasColumn() bool {
	return k != KindRecords
}

// IsContent reports whether values of the kind are stored through a storage
// backend and persisted as pointer columns.
func (k Kind) IsContent() bool {
	switch k {
	case KindImage, KindFile, KindMarkdown:
		return true
	default:
		return false
	}
}

func (k Kind) indexable() bool {
	switch k {
	case KindID, KindHash, KindString, KindInteger, KindReal, KindBoolean, KindDate, KindDatetime:
		return true
	default:
		return false
	}
}
