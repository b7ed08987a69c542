package storage

import "context"

// Provider is the SQL surface the table sink writes through. Queries use
// `?` placeholders regardless of the underlying dialect.
type Provider interface {
	Query(ctx context.Context, query string, args ...any) (Rows, error)
	Exec(ctx context.Context, query string, args ...any) (Result, error)
	Transaction(ctx context.Context, fn func(tx Transaction) error) error
}

// CapabilityReporter exposes provider features the sink needs to pick
// dialect specific SQL.
type CapabilityReporter interface {
	Capabilities() Capabilities
}

// Closer is implemented by providers that own their connection pool.
type Closer interface {
	Close() error
}

// Config captures how a provider connects to its database.
type Config struct {
	Name     string
	Driver   string
	DSN      string
	ReadOnly bool
	Options  map[string]any
}

// Capabilities documents optional behaviours supported by a provider.
type Capabilities struct {
	// Dialect is "sqlite" or "postgres".
	Dialect  string
	ReadOnly bool
	Metadata map[string]any
}

type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

type Result interface {
	RowsAffected() (int64, error)
	LastInsertId() (int64, error)
}

type Transaction interface {
	Query(ctx context.Context, query string, args ...any) (Rows, error)
	Exec(ctx context.Context, query string, args ...any) (Result, error)
	Commit() error
	Rollback() error
}
