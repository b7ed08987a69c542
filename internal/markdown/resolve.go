package markdown

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"path"
	"strings"

	"github.com/goliatone/go-contentpack/internal/schema"
	"github.com/goliatone/go-contentpack/internal/storage"
)

var ErrImageUnresolved = errors.New("markdown: image could not be resolved")

const svgContentType = "image/svg+xml"

// ImageOptions controls where body images go.
type ImageOptions struct {
	Storage storage.Spec
	// EmbedSVGThreshold embeds SVG images strictly smaller than this many
	// bytes into the node. Zero disables embedding.
	EmbedSVGThreshold int
	// Owner prefixes asset keys so documents referencing equally named
	// files do not overwrite each other.
	Owner string
}

// StoredImage is a body image that resolved to a storage pointer.
type StoredImage struct {
	Src     string
	Pointer storage.Pointer
	Column  storage.Column
	Body    []byte
}

// ResolveImages loads every image of doc, records its dimensions and either
// embeds it (small SVGs) or points it at storage. Stored images are returned
// once per distinct content hash.
func ResolveImages(ctx context.Context, doc *Document, fetcher Fetcher, opts ImageOptions) ([]StoredImage, error) {
	loaded := map[string]Resource{}
	seen := map[string]bool{}
	var stored []StoredImage

	for _, n := range doc.KeepNodes(schema.KeepImage) {
		src, _ := n.Keep.Props[schema.PropSrc].(string)
		if strings.TrimSpace(src) == "" {
			return nil, fmt.Errorf("%w: empty src", ErrImageUnresolved)
		}
		res, ok := loaded[src]
		if !ok {
			var err error
			res, err = fetcher.Fetch(ctx, src)
			if err != nil {
				return nil, fmt.Errorf("%w: %s: %w", ErrImageUnresolved, src, err)
			}
			loaded[src] = res
		}

		if cfg, _, err := image.DecodeConfig(bytes.NewReader(res.Body)); err == nil {
			n.Keep.Props[schema.PropWidth] = cfg.Width
			n.Keep.Props[schema.PropHeight] = cfg.Height
		}

		if res.ContentType == svgContentType && len(res.Body) < opts.EmbedSVGThreshold {
			n.Keep.Props[schema.PropSVG] = string(res.Body)
			continue
		}

		p := opts.Storage.Locate(res.Body, res.ContentType, storage.Locator{Ext: res.Ext, Key: ResourceKey(opts.Storage, opts.Owner, res)})
		col := p.Column()
		if opts.Storage.Scheme == storage.SchemeInline {
			col = storage.InlineColumn(res.Body, res.ContentType)
		}
		n.Keep.Props[schema.PropContent] = col

		if seen[p.Hash] {
			continue
		}
		seen[p.Hash] = true
		stored = append(stored, StoredImage{Src: src, Pointer: p, Column: col, Body: res.Body})
	}
	return stored, nil
}

// ResourceKey names key-value and asset entries for a loaded resource.
// Assets are published under owner, keeping the path local files are
// referenced by. Everything else is content addressed.
func ResourceKey(spec storage.Spec, owner string, res Resource) string {
	key := storage.Hash(res.Body) + res.Ext
	if spec.Scheme != storage.SchemeAsset {
		return key
	}
	if !res.Remote && !IsDataURL(res.Ref) {
		key = strings.TrimPrefix(path.Clean("/"+pathOnly(res.Ref)), "/")
	}
	return path.Join(owner, key)
}
