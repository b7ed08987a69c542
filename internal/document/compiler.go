package document

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/goliatone/go-contentpack/internal/config"
	"github.com/goliatone/go-contentpack/internal/logging"
	"github.com/goliatone/go-contentpack/internal/markdown"
	"github.com/goliatone/go-contentpack/internal/schema"
	"github.com/goliatone/go-contentpack/internal/storage"
	"github.com/goliatone/go-contentpack/internal/validation"
	"github.com/goliatone/go-contentpack/pkg/interfaces"
)

// Source is one document file as read from disk.
type Source struct {
	// Path is the document path relative to the collection base directory.
	Path string
	// Dir is the directory relative references are resolved against.
	Dir string
	Raw []byte
}

// Row is one table row keyed by column name.
type Row map[string]any

// Compiled is a document turned into rows and the objects those rows point
// to.
type Compiled struct {
	Path string
	// ID is the root primary key joined with "/".
	ID  string
	Key []any
	// Rows holds the rows of each table, indexed like Collection.Tables.
	Rows    [][]Row
	Objects []storage.Object
	Hash    string
	Keep    map[schema.KeepKind]int
	// Warnings are non-fatal problems, such as link cards whose metadata
	// could not be fetched.
	Warnings []error
}

// Root returns the document's root row.
func (c *Compiled) Root() Row {
	return c.Rows[0][0]
}

// FetcherFactory returns the fetcher used to resolve references of a
// document located in dir.
type FetcherFactory func(dir string) markdown.Fetcher

// Compiler turns document sources into Compiled documents for one
// collection. It is safe for concurrent use.
type Compiler struct {
	collection *schema.Collection
	parser     *markdown.Parser
	cards      markdown.LinkCardResolver
	fetchers   FetcherFactory
	validator  *validation.Validator
	logger     interfaces.Logger
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithLinkCardResolver sets how link cards are decorated.
func WithLinkCardResolver(r markdown.LinkCardResolver) Option {
	return func(c *Compiler) {
		if r != nil {
			c.cards = r
		}
	}
}

// WithFetcherFactory replaces the filesystem/HTTP fetcher.
func WithFetcherFactory(f FetcherFactory) Option {
	return func(c *Compiler) {
		if f != nil {
			c.fetchers = f
		}
	}
}

// WithHTTPClient sets the client used for remote images and files.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Compiler) {
		c.fetchers = func(dir string) markdown.Fetcher {
			return markdown.NewFileFetcher(dir, client)
		}
	}
}

// WithValidator checks every produced row against the generated validators.
func WithValidator(v *validation.Validator) Option {
	return func(c *Compiler) { c.validator = v }
}

// WithLogger sets the logger.
func WithLogger(logger interfaces.Logger) Option {
	return func(c *Compiler) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewCompiler returns a compiler for collection.
func NewCompiler(collection *schema.Collection, opts ...Option) *Compiler {
	c := &Compiler{
		collection: collection,
		parser:     markdown.NewParser(),
		cards:      markdown.StaticLinkCards{},
		logger:     logging.NoOp(),
	}
	c.fetchers = func(dir string) markdown.Fetcher {
		return markdown.NewFileFetcher(dir, nil)
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Collection returns the compiled schema the compiler works against.
func (c *Compiler) Collection() *schema.Collection {
	return c.collection
}

// run carries the mutable state of one Compile call.
type run struct {
	*Compiler
	ctx     context.Context
	src     Source
	fetcher markdown.Fetcher
	out     *Compiled
	objects map[string]bool
}

// Compile turns src into rows, pending objects and a content hash.
func (c *Compiler) Compile(ctx context.Context, src Source) (*Compiled, error) {
	values, body, err := c.decode(src)
	if err != nil {
		return nil, err
	}

	r := &run{
		Compiler: c,
		ctx:      ctx,
		src:      src,
		fetcher:  c.fetchers(src.Dir),
		out: &Compiled{
			Path: src.Path,
			Rows: make([][]Row, len(c.collection.Tables)),
			Keep: map[schema.KeepKind]int{},
		},
		objects: map[string]bool{},
	}

	root := c.collection.Root()
	if body != nil {
		if _, authored := values[c.collection.BodyColumn]; authored {
			return nil, r.invalid(root.Name+"."+c.collection.BodyColumn, "the body column is filled from the markdown body and cannot be set in frontmatter", nil)
		}
		values[c.collection.BodyColumn] = *body
	}

	key, err := r.table(root, values, nil, root.Name)
	if err != nil {
		return nil, err
	}
	r.out.Key = key
	r.out.ID = JoinKey(key)

	if err := r.hash(root); err != nil {
		return nil, err
	}
	if c.validator != nil {
		if err := r.validate(); err != nil {
			return nil, err
		}
	}
	return r.out, nil
}

// decode returns the frontmatter or yaml mapping and, for markdown syntax,
// the body text.
func (c *Compiler) decode(src Source) (map[string]any, *string, error) {
	if c.collection.Syntax == config.SyntaxYAML {
		var decoded any
		if err := yaml.Unmarshal(src.Raw, &decoded); err != nil {
			return nil, nil, &ParseError{Path: src.Path, Err: err}
		}
		values, ok := markdown.Normalize(decoded).(map[string]any)
		if !ok {
			return nil, nil, &ParseError{Path: src.Path, Err: errors.New("document must be a mapping")}
		}
		return values, nil, nil
	}
	values, body, err := markdown.SplitFrontmatter(src.Raw)
	if err != nil {
		return nil, nil, &ParseError{Path: src.Path, Err: err}
	}
	text := string(body)
	return values, &text, nil
}

func (r *run) invalid(location, reason string, err error) error {
	return &ValidationError{Path: r.src.Path, Location: location, Reason: reason, Err: err}
}

// table builds the row of t from values and recurses into its records.
// parentKey holds the parent's primary key values. It returns the row's own
// primary key.
func (r *run) table(t *schema.Table, values map[string]any, parentKey []any, loc string) ([]any, error) {
	row := Row{}
	for i, name := range t.InheritIDs {
		row[name] = parentKey[i]
	}

	// Scalars first so the key is known before content and records.
	for i := range t.Fields {
		f := &t.Fields[i]
		if f.Kind.IsContent() || f.Kind == schema.KindRecords {
			continue
		}
		raw, present := values[f.Name]
		if f.Kind == schema.KindHash {
			if present {
				return nil, r.invalid(loc+"."+f.Name, "hash fields are computed and cannot be authored", nil)
			}
			continue
		}
		if !present || raw == nil {
			if f.NonNull() {
				return nil, r.invalid(loc+"."+f.Name, "required field is missing", nil)
			}
			row[f.Name] = nil
			continue
		}
		v, err := coerceScalar(f.Kind, raw)
		if err != nil {
			return nil, r.invalid(loc+"."+f.Name, err.Error(), nil)
		}
		row[f.Name] = v
	}

	key := make([]any, 0, len(t.InheritIDs)+1)
	for _, name := range t.PrimaryKey() {
		key = append(key, row[name])
	}

	for i := range t.Fields {
		f := &t.Fields[i]
		if !f.Kind.IsContent() {
			continue
		}
		raw, present := values[f.Name]
		if !present || raw == nil {
			if f.NonNull() {
				return nil, r.invalid(loc+"."+f.Name, "required field is missing", nil)
			}
			row[f.Name] = nil
			continue
		}
		col, err := r.content(t, f, raw, key, loc+"."+f.Name)
		if err != nil {
			return nil, err
		}
		row[f.Name] = col
	}

	r.out.Rows[t.Index] = append(r.out.Rows[t.Index], row)

	for i := range t.Fields {
		f := &t.Fields[i]
		if f.Kind != schema.KindRecords {
			continue
		}
		if err := r.records(r.collection.Tables[f.Child], values[f.Name], key, loc+"."+f.Name); err != nil {
			return nil, err
		}
	}
	return key, nil
}

func (r *run) records(child *schema.Table, raw any, parentKey []any, loc string) error {
	if raw == nil {
		return nil
	}
	items, ok := raw.([]any)
	if !ok {
		return r.invalid(loc, fmt.Sprintf("expected a list of records, got %T", raw), nil)
	}
	seen := map[string]bool{}
	ids := child.IDFields()
	for i, item := range items {
		itemLoc := fmt.Sprintf("%s[%d]", loc, i)
		values, ok := item.(map[string]any)
		if !ok {
			if !child.IDOnly() {
				return r.invalid(itemLoc, fmt.Sprintf("expected a record mapping, got %T", item), nil)
			}
			values = map[string]any{ids[0]: item}
		}
		key, err := r.table(child, values, parentKey, itemLoc)
		if err != nil {
			return err
		}
		id := JoinKey(key)
		if seen[id] {
			return r.invalid(itemLoc, fmt.Sprintf("duplicate record id %q", id), nil)
		}
		seen[id] = true
	}
	return nil
}

// content resolves an image, file or markdown value into its column.
func (r *run) content(t *schema.Table, f *schema.Field, raw any, key []any, loc string) (storage.Column, error) {
	if f.Kind == schema.KindMarkdown {
		text, ok := raw.(string)
		if !ok {
			return storage.Column{}, r.invalid(loc, fmt.Sprintf("expected markdown text, got %T", raw), nil)
		}
		return r.markdownColumn(t, f, text, key, loc)
	}

	ref, ok := raw.(string)
	if !ok || strings.TrimSpace(ref) == "" {
		return storage.Column{}, r.invalid(loc, fmt.Sprintf("expected a file reference, got %T", raw), nil)
	}
	res, err := r.fetcher.Fetch(r.ctx, ref)
	if err != nil {
		return storage.Column{}, r.invalid(loc, "referenced file could not be loaded", err)
	}
	return r.place(*f.Storage, res.Body, res.ContentType, storage.Locator{Ext: res.Ext, Key: markdown.ResourceKey(*f.Storage, JoinKey(key), res)}), nil
}

func (r *run) markdownColumn(t *schema.Table, f *schema.Field, text string, key []any, loc string) (storage.Column, error) {
	doc := r.parser.Parse([]byte(text))

	if f.Image != nil {
		stored, err := markdown.ResolveImages(r.ctx, doc, r.fetcher, markdown.ImageOptions{
			Storage:           f.Image.Storage,
			EmbedSVGThreshold: f.Image.EmbedSVGThreshold,
			Owner:             JoinKey(key),
		})
		if err != nil {
			return storage.Column{}, r.invalid(loc, "image could not be resolved", err)
		}
		for _, img := range stored {
			if f.Image.Storage.Deferred() {
				r.enqueue(img.Pointer, img.Body)
			}
			if f.Image.Table >= 0 {
				r.imageRow(r.collection.Tables[f.Image.Table], key, img)
			}
		}
	}
	if err := markdown.ResolveLinkCards(r.ctx, doc, r.cards); err != nil {
		r.out.Warnings = append(r.out.Warnings, err)
		logging.Scoped(r.logger, r.ctx).Warn("link card lookup failed", "document_path", r.src.Path, "error", err)
	}
	for kind, n := range markdown.CountKeep(doc) {
		r.out.Keep[kind] += n
	}

	body, err := doc.Body()
	if err != nil {
		return storage.Column{}, r.invalid(loc, "markdown body could not be serialized", err)
	}
	locator := storage.Locator{Ext: ".json", Key: bodyKey(t, f, key, r.collection)}
	return r.place(*f.Storage, body, markdown.ContentType, locator), nil
}

func (r *run) imageRow(t *schema.Table, ownerKey []any, img markdown.StoredImage) {
	row := Row{}
	for i, name := range t.InheritIDs {
		row[name] = ownerKey[i]
	}
	row[schema.ImageIDColumn] = img.Pointer.Hash
	row[schema.ImageValueColumn] = img.Column
	r.out.Rows[t.Index] = append(r.out.Rows[t.Index], row)
}

// place computes the column for body under spec and queues deferred bytes.
func (r *run) place(spec storage.Spec, body []byte, contentType string, loc storage.Locator) storage.Column {
	if spec.Scheme == storage.SchemeInline {
		return storage.InlineColumn(body, contentType)
	}
	p := spec.Locate(body, contentType, loc)
	if spec.Deferred() {
		r.enqueue(p, body)
	}
	return p.Column()
}

func (r *run) enqueue(p storage.Pointer, body []byte) {
	id := p.URI() + "#" + p.Hash
	if r.objects[id] {
		return
	}
	r.objects[id] = true
	r.out.Objects = append(r.out.Objects, storage.Object{Pointer: p, Body: body})
}

// hash computes the document hash over the schema fingerprint and every
// row, then stores it in every hash field.
func (r *run) hash(root *schema.Table) error {
	tables := make(map[string][]Row, len(r.out.Rows))
	for i, rows := range r.out.Rows {
		if len(rows) > 0 {
			tables[r.collection.Tables[i].Name] = rows
		}
	}
	canonical, err := json.Marshal(struct {
		Schema string           `json:"schema"`
		Rows   map[string][]Row `json:"rows"`
	}{r.collection.Fingerprint(), tables})
	if err != nil {
		return r.invalid(root.Name, "rows could not be serialized", err)
	}
	r.out.Hash = storage.Hash(canonical)
	for i, rows := range r.out.Rows {
		for _, f := range r.collection.Tables[i].Fields {
			if f.Kind != schema.KindHash {
				continue
			}
			for _, row := range rows {
				row[f.Name] = r.out.Hash
			}
		}
	}
	return nil
}

func (r *run) validate() error {
	for i, rows := range r.out.Rows {
		t := r.collection.Tables[i]
		for j, row := range rows {
			if err := r.validator.ValidateRow(t.Name, row); err != nil {
				return r.invalid(fmt.Sprintf("%s[%d]", t.Name, j), "row does not match the generated validator", err)
			}
		}
	}
	return nil
}

// bodyKey names the key-value entry of a markdown field: the row key, plus
// the field name unless it is the collection's body column.
func bodyKey(t *schema.Table, f *schema.Field, key []any, c *schema.Collection) string {
	k := JoinKey(key)
	if t.Parent < 0 && f.Name == c.BodyColumn {
		return k
	}
	if t.Parent >= 0 {
		k = t.Name + "/" + k
	}
	return k + "/" + f.Name
}

// JoinKey renders a primary key as the document id.
func JoinKey(key []any) string {
	parts := make([]string, len(key))
	for i, v := range key {
		parts[i] = fmt.Sprint(v)
	}
	return strings.Join(parts, "/")
}
