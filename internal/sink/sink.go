package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/goliatone/go-contentpack/internal/codegen"
	"github.com/goliatone/go-contentpack/internal/document"
	"github.com/goliatone/go-contentpack/internal/logging"
	"github.com/goliatone/go-contentpack/internal/schema"
	"github.com/goliatone/go-contentpack/internal/storage"
	"github.com/goliatone/go-contentpack/pkg/interfaces"
)

// ManifestTable records the content hash last written for each document.
const ManifestTable = "_content_hashes"

var (
	ErrUnknownTable = errors.New("sink: unknown table")
	ErrNoRows       = errors.New("sink: compiled document has no root row")
)

// Sink replaces the rows of compiled documents in a SQL store.
type Sink struct {
	provider   interfaces.StorageProvider
	collection *schema.Collection
	dialect    codegen.Dialect
	logger     interfaces.Logger
}

// Option configures a Sink.
type Option func(*Sink)

// WithDialect overrides the dialect reported by the provider.
func WithDialect(d codegen.Dialect) Option {
	return func(s *Sink) { s.dialect = d }
}

// WithLogger sets the logger.
func WithLogger(logger interfaces.Logger) Option {
	return func(s *Sink) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func New(provider interfaces.StorageProvider, collection *schema.Collection, opts ...Option) *Sink {
	s := &Sink{
		provider:   provider,
		collection: collection,
		dialect:    codegen.DialectSQLite,
		logger:     logging.NoOp(),
	}
	if reporter, ok := provider.(interfaces.StorageCapabilityReporter); ok {
		if d := reporter.Capabilities().Dialect; d != "" {
			s.dialect = codegen.Dialect(d)
		}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EnsureSchema creates every table, index and the hash manifest.
func (s *Sink) EnsureSchema(ctx context.Context) error {
	statements := append(codegen.Statements(s.collection, s.dialect), manifestDDL)
	return s.provider.Transaction(ctx, func(tx interfaces.Transaction) error {
		for _, stmt := range statements {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("sink: apply schema: %w", err)
			}
		}
		return nil
	})
}

const manifestDDL = `CREATE TABLE IF NOT EXISTS ` + ManifestTable + ` (
  table_name TEXT NOT NULL,
  id TEXT NOT NULL,
  hash TEXT NOT NULL,
  PRIMARY KEY (table_name, id)
);`

// StoredHash returns the hash recorded for the document id, if any.
func (s *Sink) StoredHash(ctx context.Context, id string) (string, bool, error) {
	rows, err := s.provider.Query(ctx,
		"SELECT hash FROM "+ManifestTable+" WHERE table_name = ? AND id = ?",
		s.collection.Root().Name, id)
	if err != nil {
		return "", false, fmt.Errorf("sink: read hash: %w", err)
	}
	defer rows.Close()
	if !rows.Next() {
		return "", false, rows.Err()
	}
	var hash string
	if err := rows.Scan(&hash); err != nil {
		return "", false, fmt.Errorf("sink: read hash: %w", err)
	}
	return hash, true, nil
}

// Write replaces the document's rows in one transaction: child rows are
// deleted deepest first, the root row is upserted, children are inserted
// and the manifest entry is updated last.
func (s *Sink) Write(ctx context.Context, c *document.Compiled) error {
	if len(c.Rows) == 0 || len(c.Rows[0]) == 0 {
		return ErrNoRows
	}
	root := s.collection.Root()
	key := c.Key
	err := s.provider.Transaction(ctx, func(tx interfaces.Transaction) error {
		for i := len(s.collection.Tables) - 1; i > 0; i-- {
			t := s.collection.Tables[i]
			if err := s.deleteChildren(ctx, tx, t, key); err != nil {
				return err
			}
		}
		if err := s.upsert(ctx, tx, root, c.Root()); err != nil {
			return err
		}
		for i := 1; i < len(s.collection.Tables) && i < len(c.Rows); i++ {
			t := s.collection.Tables[i]
			for _, row := range c.Rows[i] {
				if err := s.insert(ctx, tx, t, row); err != nil {
					return err
				}
			}
		}
		_, err := tx.Exec(ctx,
			"INSERT INTO "+ManifestTable+" (table_name, id, hash) VALUES (?, ?, ?)"+
				" ON CONFLICT (table_name, id) DO UPDATE SET hash = excluded.hash",
			root.Name, c.ID, c.Hash)
		if err != nil {
			return fmt.Errorf("sink: record hash: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	logging.Scoped(s.logger, ctx).Debug("sink.document.written", "id", c.ID, "hash", c.Hash)
	return nil
}

// deleteChildren removes t's rows that belong to the root key. The leading
// inherited columns of every descendant mirror the root primary key.
func (s *Sink) deleteChildren(ctx context.Context, tx interfaces.Transaction, t *schema.Table, key []any) error {
	if len(t.InheritIDs) < len(key) {
		return fmt.Errorf("sink: table %s does not carry the root key", t.Name)
	}
	conds := make([]string, len(key))
	for i := range key {
		conds[i] = t.InheritIDs[i] + " = ?"
	}
	if _, err := tx.Exec(ctx, "DELETE FROM "+t.Name+" WHERE "+strings.Join(conds, " AND "), key...); err != nil {
		return fmt.Errorf("sink: clear %s: %w", t.Name, err)
	}
	return nil
}

func (s *Sink) upsert(ctx context.Context, tx interfaces.Transaction, t *schema.Table, row document.Row) error {
	query, args, err := insertStatement(t, row)
	if err != nil {
		return err
	}
	var sets []string
	for _, col := range t.Columns() {
		if !col.PrimaryKey {
			sets = append(sets, col.Name+" = excluded."+col.Name)
		}
	}
	conflict := " ON CONFLICT (" + strings.Join(t.PrimaryKey(), ", ") + ")"
	if len(sets) == 0 {
		query += conflict + " DO NOTHING"
	} else {
		query += conflict + " DO UPDATE SET " + strings.Join(sets, ", ")
	}
	if _, err := tx.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("sink: upsert %s: %w", t.Name, err)
	}
	return nil
}

func (s *Sink) insert(ctx context.Context, tx interfaces.Transaction, t *schema.Table, row document.Row) error {
	query, args, err := insertStatement(t, row)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("sink: insert %s: %w", t.Name, err)
	}
	return nil
}

func insertStatement(t *schema.Table, row document.Row) (string, []any, error) {
	cols := t.Columns()
	names := make([]string, len(cols))
	marks := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, col := range cols {
		v, err := encodeValue(row[col.Name])
		if err != nil {
			return "", nil, fmt.Errorf("sink: encode %s.%s: %w", t.Name, col.Name, err)
		}
		names[i] = col.Name
		marks[i] = "?"
		args[i] = v
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", t.Name, strings.Join(names, ", "), strings.Join(marks, ", "))
	return query, args, nil
}

func encodeValue(v any) (any, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case bool:
		if val {
			return int64(1), nil
		}
		return int64(0), nil
	case storage.Column:
		return marshalColumn(val)
	case *storage.Column:
		if val == nil {
			return nil, nil
		}
		return marshalColumn(*val)
	default:
		return v, nil
	}
}

func marshalColumn(col storage.Column) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(col); err != nil {
		return "", err
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}

// ReadRows returns every row of table ordered by primary key, with boolean
// columns as bool and content columns decoded into storage.Column.
func (s *Sink) ReadRows(ctx context.Context, table string) ([]document.Row, error) {
	t, ok := s.collection.Table(table)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	cols := t.Columns()
	names := make([]string, len(cols))
	for i, col := range cols {
		names[i] = col.Name
	}
	rows, err := s.provider.Query(ctx, fmt.Sprintf("SELECT %s FROM %s ORDER BY %s",
		strings.Join(names, ", "), t.Name, strings.Join(t.PrimaryKey(), ", ")))
	if err != nil {
		return nil, fmt.Errorf("sink: read %s: %w", table, err)
	}
	defer rows.Close()

	var out []document.Row
	for rows.Next() {
		values := make([]any, len(cols))
		dest := make([]any, len(cols))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("sink: read %s: %w", table, err)
		}
		row := document.Row{}
		for i, col := range cols {
			v, err := decodeValue(col, values[i])
			if err != nil {
				return nil, fmt.Errorf("sink: decode %s.%s: %w", table, col.Name, err)
			}
			row[col.Name] = v
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sink: read %s: %w", table, err)
	}
	return out, nil
}

func decodeValue(col schema.Column, v any) (any, error) {
	if b, ok := v.([]byte); ok {
		v = string(b)
	}
	if v == nil {
		return nil, nil
	}
	switch {
	case col.Kind == schema.KindBoolean:
		switch val := v.(type) {
		case int64:
			return val != 0, nil
		case bool:
			return val, nil
		case string:
			return val == "1" || val == "true", nil
		}
		return nil, fmt.Errorf("unexpected boolean value %T", v)
	case col.Kind.IsContent():
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected content value %T", v)
		}
		var out storage.Column
		if err := json.Unmarshal([]byte(s), &out); err != nil {
			return nil, err
		}
		return out, nil
	default:
		return v, nil
	}
}

// Prune deletes every stored document whose id is not in keep, children
// first, and returns the removed ids in key order.
func (s *Sink) Prune(ctx context.Context, keep []string) ([]string, error) {
	root := s.collection.Root()
	stale, err := s.staleKeys(ctx, root, keep)
	if err != nil || len(stale) == 0 {
		return nil, err
	}
	pk := root.PrimaryKey()
	conds := make([]string, len(pk))
	for i, name := range pk {
		conds[i] = name + " = ?"
	}
	var removed []string
	err = s.provider.Transaction(ctx, func(tx interfaces.Transaction) error {
		for _, key := range stale {
			for i := len(s.collection.Tables) - 1; i > 0; i-- {
				if err := s.deleteChildren(ctx, tx, s.collection.Tables[i], key); err != nil {
					return err
				}
			}
			if _, err := tx.Exec(ctx, "DELETE FROM "+root.Name+" WHERE "+strings.Join(conds, " AND "), key...); err != nil {
				return fmt.Errorf("sink: prune %s: %w", root.Name, err)
			}
			id := document.JoinKey(key)
			if _, err := tx.Exec(ctx, "DELETE FROM "+ManifestTable+" WHERE table_name = ? AND id = ?", root.Name, id); err != nil {
				return fmt.Errorf("sink: prune hash: %w", err)
			}
			removed = append(removed, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	logging.Scoped(s.logger, ctx).Info("sink.documents.pruned", "count", len(removed))
	return removed, nil
}

func (s *Sink) staleKeys(ctx context.Context, root *schema.Table, keep []string) ([][]any, error) {
	keepSet := make(map[string]struct{}, len(keep))
	for _, id := range keep {
		keepSet[id] = struct{}{}
	}
	pk := root.PrimaryKey()
	rows, err := s.provider.Query(ctx, fmt.Sprintf("SELECT %s FROM %s ORDER BY %s",
		strings.Join(pk, ", "), root.Name, strings.Join(pk, ", ")))
	if err != nil {
		return nil, fmt.Errorf("sink: list %s: %w", root.Name, err)
	}
	defer rows.Close()

	var stale [][]any
	for rows.Next() {
		key := make([]any, len(pk))
		dest := make([]any, len(pk))
		for i := range key {
			dest[i] = &key[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("sink: list %s: %w", root.Name, err)
		}
		for i, v := range key {
			if b, ok := v.([]byte); ok {
				key[i] = string(b)
			}
		}
		if _, ok := keepSet[document.JoinKey(key)]; !ok {
			stale = append(stale, key)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sink: list %s: %w", root.Name, err)
	}
	return stale, nil
}
