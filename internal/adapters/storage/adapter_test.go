package storage_test

import (
	"context"
	"errors"
	"testing"

	adapter "github.com/goliatone/go-contentpack/internal/adapters/storage"
	"github.com/goliatone/go-contentpack/pkg/interfaces"
	"github.com/goliatone/go-contentpack/pkg/storage"
)

func newProvider(t *testing.T, name string) *adapter.BunStorageAdapter {
	t.Helper()
	provider, err := adapter.NewProvider(storage.Config{
		Driver: "sqlite3",
		DSN:    "file:" + name + "?mode=memory&cache=shared&_fk=1",
	})
	if err != nil {
		t.Fatalf("open provider: %v", err)
	}
	t.Cleanup(func() { _ = provider.Close() })
	return provider
}

func TestProvidersImplementInterface(t *testing.T) {
	var (
		_ interfaces.StorageProvider = adapter.NewNoOpProvider()
		_ interfaces.StorageProvider = newProvider(t, "adapter_iface")
	)

	if err := adapter.NewNoOpProvider().Transaction(context.Background(), func(tx interfaces.Transaction) error {
		_, err := tx.Exec(context.Background(), "SELECT 1")
		return err
	}); err != nil {
		t.Fatalf("unexpected transaction error: %v", err)
	}
}

func TestBunAdapterTransactionCommitsAndRollsBack(t *testing.T) {
	ctx := context.Background()
	provider := newProvider(t, "adapter_tx")

	if got := provider.Capabilities().Dialect; got != adapter.DriverSQLite {
		t.Fatalf("expected sqlite dialect, got %q", got)
	}
	if _, err := provider.Exec(ctx, "CREATE TABLE items (id TEXT PRIMARY KEY, n INTEGER)"); err != nil {
		t.Fatalf("create table: %v", err)
	}

	if err := provider.Transaction(ctx, func(tx interfaces.Transaction) error {
		_, err := tx.Exec(ctx, "INSERT INTO items (id, n) VALUES (?, ?)", "a", 1)
		return err
	}); err != nil {
		t.Fatalf("commit: %v", err)
	}

	boom := errors.New("boom")
	err := provider.Transaction(ctx, func(tx interfaces.Transaction) error {
		if _, err := tx.Exec(ctx, "INSERT INTO items (id, n) VALUES (?, ?)", "b", 2); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected rollback error to wrap cause, got %v", err)
	}

	rows, err := provider.Query(ctx, "SELECT id, n FROM items ORDER BY id")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		var n int64
		if err := rows.Scan(&id, &n); err != nil {
			t.Fatalf("scan: %v", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("rows: %v", err)
	}
	if len(ids) != 1 || ids[0] != "a" {
		t.Fatalf("expected only committed row, got %v", ids)
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	if _, err := adapter.Open(storage.Config{Driver: "oracle"}); !errors.Is(err, adapter.ErrUnknownDriver) {
		t.Fatalf("expected ErrUnknownDriver, got %v", err)
	}
}
