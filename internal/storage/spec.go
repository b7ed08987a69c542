package storage

import (
	"fmt"
	"path"
	"strings"
)

// Scheme identifies a storage backend variant.
type Scheme string

const (
	SchemeR2     Scheme = "r2"
	SchemeKV     Scheme = "kv"
	SchemeInline Scheme = "inline"
	SchemeAsset  Scheme = "asset"
)

// ParseScheme resolves a config storage type.
func ParseScheme(value string) (Scheme, bool) {
	switch Scheme(strings.ToLower(strings.TrimSpace(value))) {
	case SchemeR2:
		return SchemeR2, true
	case SchemeKV:
		return SchemeKV, true
	case SchemeInline:
		return SchemeInline, true
	case SchemeAsset:
		return SchemeAsset, true
	default:
		return "", false
	}
}

// Spec is the storage target configured for a content field.
type Spec struct {
	Scheme    Scheme
	Bucket    string
	Namespace string
	Prefix    string
	Dir       string
}

// Validate checks that the options required by the scheme are present.
func (s Spec) Validate() error {
	switch s.Scheme {
	case SchemeR2:
		if strings.TrimSpace(s.Bucket) == "" {
			return fmt.Errorf("%w: r2 storage requires a bucket", ErrSpecInvalid)
		}
	case SchemeKV:
		if strings.TrimSpace(s.Namespace) == "" {
			return fmt.Errorf("%w: kv storage requires a namespace", ErrSpecInvalid)
		}
	case SchemeAsset:
		if strings.TrimSpace(s.Dir) == "" {
			return fmt.Errorf("%w: asset storage requires a dir", ErrSpecInvalid)
		}
	case SchemeInline:
	default:
		return fmt.Errorf("%w: unknown scheme %q", ErrSpecInvalid, s.Scheme)
	}
	return nil
}

// Deferred reports whether bytes bound for this spec must be written to an
// external store before rows referencing them are committed.
func (s Spec) Deferred() bool {
	return s.Scheme == SchemeR2 || s.Scheme == SchemeKV || s.Scheme == SchemeAsset
}

// Locator carries the naming hints used to place bytes. Ext is appended to
// content-addressed keys, Key names key-value entries and static assets.
type Locator struct {
	Ext string
	Key string
}

// Locate computes the pointer for body under s without performing I/O.
func (s Spec) Locate(body []byte, contentType string, loc Locator) Pointer {
	p := Pointer{
		Scheme:      s.Scheme,
		ContentType: contentType,
		Size:        int64(len(body)),
		Hash:        Hash(body),
	}
	switch s.Scheme {
	case SchemeR2:
		p.Location = s.Bucket
		p.Key = joinKey(s.Prefix, p.Hash+loc.Ext)
	case SchemeKV:
		p.Location = s.Namespace
		p.Key = joinKey(s.Prefix, loc.Key)
	case SchemeAsset:
		p.Location = strings.Trim(path.Clean("/"+s.Dir), "/")
		p.Key = strings.TrimPrefix(path.Clean("/"+loc.Key), "/")
	}
	return p
}

func joinKey(prefix, key string) string {
	prefix = strings.Trim(prefix, "/")
	key = strings.TrimLeft(key, "/")
	if prefix == "" {
		return key
	}
	return prefix + "/" + key
}
