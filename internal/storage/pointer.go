package storage

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Pointer references bytes held by a storage backend. Hash is always the
// content hash of exactly the bytes addressed by the pointer.
type Pointer struct {
	Scheme      Scheme
	Location    string
	Key         string
	ContentType string
	Size        int64
	Hash        string
}

// URI renders the pointer as scheme://location/key. Inline pointers have no
// URI.
func (p Pointer) URI() string {
	switch p.Scheme {
	case SchemeInline, "":
		return ""
	case SchemeAsset:
		return string(SchemeAsset) + "://" + strings.Trim(p.Location+"/"+p.Key, "/")
	default:
		return string(p.Scheme) + "://" + p.Location + "/" + p.Key
	}
}

// ParsePointer decodes a pointer URI. Asset URIs carry their whole path in
// Key.
func ParsePointer(uri string) (Pointer, error) {
	scheme, rest, ok := strings.Cut(uri, "://")
	if !ok {
		return Pointer{}, fmt.Errorf("%w: %q", ErrPointerInvalid, uri)
	}
	s, ok := ParseScheme(scheme)
	if !ok || s == SchemeInline {
		return Pointer{}, fmt.Errorf("%w: unsupported scheme in %q", ErrPointerInvalid, uri)
	}
	if s == SchemeAsset {
		return Pointer{Scheme: s, Key: rest}, nil
	}
	location, key, ok := strings.Cut(rest, "/")
	if !ok || location == "" || key == "" {
		return Pointer{}, fmt.Errorf("%w: %q", ErrPointerInvalid, uri)
	}
	return Pointer{Scheme: s, Location: location, Key: key}, nil
}

// Column is the persisted JSON form of a content field. Pointer is set for
// externally stored bytes, Content for inline values.
type Column struct {
	Hash        string          `json:"hash"`
	Size        int64           `json:"size"`
	ContentType string          `json:"content_type"`
	Pointer     string          `json:"pointer,omitempty"`
	Content     json.RawMessage `json:"content,omitempty"`
	Encoding    string          `json:"encoding,omitempty"`
}

// Column converts an external pointer to its column form.
func (p Pointer) Column() Column {
	return Column{Hash: p.Hash, Size: p.Size, ContentType: p.ContentType, Pointer: p.URI()}
}

// InlineColumn embeds body directly. JSON bodies are embedded as values,
// valid UTF-8 text as a string and everything else as base64.
func InlineColumn(body []byte, contentType string) Column {
	col := Column{Hash: Hash(body), Size: int64(len(body)), ContentType: contentType}
	switch {
	case isJSON(contentType) && json.Valid(body):
		col.Content = json.RawMessage(body)
	case isText(contentType) && utf8.Valid(body):
		col.Content = marshalString(string(body))
	default:
		col.Content = marshalString(base64.StdEncoding.EncodeToString(body))
		col.Encoding = "base64"
	}
	return col
}

// Bytes recovers the raw bytes of an inline column.
func (c Column) Bytes() ([]byte, error) {
	if len(c.Content) == 0 {
		return nil, fmt.Errorf("%w: column has no inline content", ErrPointerInvalid)
	}
	if isJSON(c.ContentType) && c.Encoding == "" {
		return []byte(c.Content), nil
	}
	var s string
	if err := json.Unmarshal(c.Content, &s); err != nil {
		return nil, err
	}
	if c.Encoding == "base64" {
		return base64.StdEncoding.DecodeString(s)
	}
	return []byte(s), nil
}

func marshalString(s string) json.RawMessage {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(s)
	return json.RawMessage(bytes.TrimRight(buf.Bytes(), "\n"))
}

func isJSON(contentType string) bool {
	ct := strings.ToLower(contentType)
	return strings.HasPrefix(ct, "application/json") || strings.HasSuffix(strings.SplitN(ct, ";", 2)[0], "+json")
}

func isText(contentType string) bool {
	ct := strings.ToLower(contentType)
	return strings.HasPrefix(ct, "text/") || strings.HasPrefix(ct, "image/svg+xml") ||
		strings.HasPrefix(ct, "application/xml")
}
