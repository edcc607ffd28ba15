package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/sundayezeilo/shortlink/internal/errx"
	"github.com/sundayezeilo/shortlink/internal/linkstore"
	"github.com/sundayezeilo/shortlink/internal/linkstore/storetest"
)

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T, opts ...linkstore.Option) linkstore.Store {
		t.Helper()
		return openTemp(t, opts...)
	})
}

func openTemp(t *testing.T, opts ...linkstore.Option) *Store {
	t.Helper()

	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "links.db"), opts...)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("Close() error: %v", err)
		}
	})
	return store
}

func TestOpen_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "links.db")

	first, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	link, err := first.Create(ctx, linkstore.CreateParams{TargetURL: "https://example.com", Secret: "1234"})
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	second, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("second Open() error: %v", err)
	}
	defer second.Close()

	target, err := second.ResolveAndTrack(ctx, link.ShortCode, "1234")
	if err != nil {
		t.Fatalf("ResolveAndTrack() after reopen error: %v", err)
	}
	if target != "https://example.com" {
		t.Errorf("target = %q, want %q", target, "https://example.com")
	}

	next, err := second.Create(ctx, linkstore.CreateParams{TargetURL: "https://example.org"})
	if err != nil {
		t.Fatalf("Create() after reopen error: %v", err)
	}
	if next.ID <= link.ID {
		t.Errorf("id after reopen = %d, want greater than %d", next.ID, link.ID)
	}
}

func TestStore_ClosedDatabase(t *testing.T) {
	ctx := context.Background()
	store := openTemp(t)

	db := store.db
	if err := db.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	closed := New(db)

	if _, err := closed.Create(ctx, linkstore.CreateParams{TargetURL: "https://example.com"}); errx.KindOf(err) != errx.Unavailable {
		t.Errorf("Create() error = %v, want Unavailable", err)
	}
	if _, err := closed.ResolveAndTrack(ctx, "abc123", ""); errx.KindOf(err) != errx.Unavailable {
		t.Errorf("ResolveAndTrack() error = %v, want Unavailable", err)
	}
	if _, err := closed.Stats(ctx, 1); errx.KindOf(err) != errx.Unavailable {
		t.Errorf("Stats() error = %v, want Unavailable", err)
	}
}

func TestDriverFor(t *testing.T) {
	tests := []struct {
		dsn  string
		want string
	}{
		{"links.db", "sqlite"},
		{"file:links.db?cache=shared", "sqlite"},
		{":memory:", "sqlite"},
		{"libsql://links-org.turso.io?authToken=x", "libsql"},
		{"wss://links-org.turso.io", "libsql"},
		{"https://links-org.turso.io", "libsql"},
		{"http://127.0.0.1:8080", "libsql"},
	}

	for _, tt := range tests {
		t.Run(tt.dsn, func(t *testing.T) {
			if got := driverFor(tt.dsn); got != tt.want {
				t.Errorf("driverFor(%q) = %q, want %q", tt.dsn, got, tt.want)
			}
		})
	}
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantKind errx.Kind
	}{
		{"no rows", sql.ErrNoRows, errx.NotFound},
		{"libsql unique violation", errors.New("SQLITE_CONSTRAINT: UNIQUE constraint failed: links.short_code"), errx.Conflict},
		{"other unique violation", errors.New("UNIQUE constraint failed: other.name"), errx.Unavailable},
		{"io failure", errors.New("disk I/O error"), errx.Unavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := mapError("sqlitestore.test", tt.err)
			if got := errx.KindOf(err); got != tt.wantKind {
				t.Errorf("KindOf() = %v, want %v", got, tt.wantKind)
			}
			if !errors.Is(err, tt.err) {
				t.Error("mapped error does not wrap the original")
			}
		})
	}
}

func TestUnixNano(t *testing.T) {
	if nullUnixNano(nil).Valid {
		t.Error("nullUnixNano(nil) should be NULL")
	}

	at := time.Date(2030, 1, 1, 10, 0, 0, 123456789, time.UTC)
	n := nullUnixNano(&at)
	if !n.Valid || !fromUnixNano(n.Int64).Equal(at) {
		t.Errorf("round trip of %v gave %v", at, fromUnixNano(n.Int64))
	}

	if nullString("").Valid {
		t.Error("nullString(\"\") should be NULL")
	}
}
