// Package sqlitestore is a SQLite-backed linkstore.Store. Local files go through
// the modernc driver; libsql:// and remote http(s)/ws(s) DSNs go through libsql.
//
// The pool is capped at one connection, so every transaction runs alone and the
// validity checks see a stable row.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/sundayezeilo/shortlink/internal/db/migrations"
	"github.com/sundayezeilo/shortlink/internal/errx"
	"github.com/sundayezeilo/shortlink/internal/linkstore"
)

const linkColumns = `id, target_url, short_code, clicks, created_at, valid, secret, expires_at`

const (
	insertLink = `INSERT INTO links (target_url, short_code, created_at, secret, expires_at)
VALUES (?, ?, ?, ?, ?)
RETURNING ` + linkColumns

	selectLinkByID   = `SELECT ` + linkColumns + ` FROM links WHERE id = ?`
	selectLinkByCode = `SELECT ` + linkColumns + ` FROM links WHERE short_code = ?`

	incrementClicks = `UPDATE links SET clicks = clicks + 1 WHERE id = ?`
	invalidateLink  = `UPDATE links SET valid = 0 WHERE id = ? RETURNING ` + linkColumns
)

type Store struct {
	db   *sql.DB
	opts linkstore.Options
}

var _ linkstore.Store = (*Store)(nil)

// Open connects to dsn, applies pending migrations and returns a ready Store.
// The Store owns the connection; release it with Close.
func Open(ctx context.Context, dsn string, opts ...linkstore.Option) (*Store, error) {
	db, err := sql.Open(driverFor(dsn), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}
	if err := migrations.SQLite(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return New(db, opts...), nil
}

// New returns a Store over an already migrated db.
func New(db *sql.DB, opts ...linkstore.Option) *Store {
	return &Store{db: db, opts: linkstore.NewOptions(opts...)}
}

func (s *Store) Close() error {
	return s.db.Close()
}

func driverFor(dsn string) string {
	for _, scheme := range []string{"libsql://", "wss://", "ws://", "https://", "http://"} {
		if strings.HasPrefix(dsn, scheme) {
			return "libsql"
		}
	}
	return "sqlite"
}

func (s *Store) Create(ctx context.Context, p linkstore.CreateParams) (linkstore.Link, error) {
	const op = "sqlitestore.Store.Create"

	if err := linkstore.CheckCreate(op, p); err != nil {
		return linkstore.Link{}, err
	}

	createdAt := s.opts.Clock.Now()

	for {
		code, err := s.opts.NewCode()
		if err != nil {
			return linkstore.Link{}, errx.E(op, errx.Internal, err)
		}

		row := s.db.QueryRowContext(ctx, insertLink,
			p.TargetURL, code, createdAt.UnixNano(), nullString(p.Secret), nullUnixNano(p.ExpiresAt))
		link, err := scanLink(row)
		if err == nil {
			return link, nil
		}
		if !isShortCodeUniqueViolation(err) {
			return linkstore.Link{}, mapError(op, err)
		}
		if ctx.Err() != nil {
			return linkstore.Link{}, errx.E(op, errx.Unavailable, ctx.Err())
		}
	}
}

func (s *Store) ResolveAndTrack(ctx context.Context, shortCode, secret string) (string, error) {
	const op = "sqlitestore.Store.ResolveAndTrack"

	var target string
	err := s.inTx(ctx, op, func(tx *sql.Tx) error {
		link, err := getByCode(ctx, tx, op, shortCode)
		if err != nil {
			return err
		}
		if err := linkstore.CheckResolvable(op, link, s.opts.Clock.Now(), secret); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, incrementClicks, link.ID); err != nil {
			return mapError(op, err)
		}
		target = link.TargetURL
		return nil
	})
	if err != nil {
		return "", err
	}
	return target, nil
}

func (s *Store) Invalidate(ctx context.Context, shortCode string) (linkstore.Link, error) {
	const op = "sqlitestore.Store.Invalidate"

	var out linkstore.Link
	err := s.inTx(ctx, op, func(tx *sql.Tx) error {
		link, err := getByCode(ctx, tx, op, shortCode)
		if err != nil {
			return err
		}
		if err := linkstore.CheckInvalidatable(op, link); err != nil {
			return err
		}

		out, err = scanLink(tx.QueryRowContext(ctx, invalidateLink, link.ID))
		if err != nil {
			return mapError(op, err)
		}
		return nil
	})
	if err != nil {
		return linkstore.Link{}, err
	}
	return out, nil
}

func (s *Store) Stats(ctx context.Context, id int64) (linkstore.Stats, error) {
	const op = "sqlitestore.Store.Stats"

	link, err := scanLink(s.db.QueryRowContext(ctx, selectLinkByID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return linkstore.Stats{}, linkstore.IDNotFound(op, id)
	}
	if err != nil {
		return linkstore.Stats{}, mapError(op, err)
	}
	return link.Stats(s.opts.Clock.Now()), nil
}

// inTx runs fn in a transaction, committing when it returns nil.
func (s *Store) inTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errx.E(op, errx.Unavailable, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return errx.E(op, errx.Unavailable, err)
	}
	return nil
}

func getByCode(ctx context.Context, tx *sql.Tx, op, shortCode string) (linkstore.Link, error) {
	link, err := scanLink(tx.QueryRowContext(ctx, selectLinkByCode, shortCode))
	if errors.Is(err, sql.ErrNoRows) {
		return linkstore.Link{}, linkstore.CodeNotFound(op, shortCode)
	}
	if err != nil {
		return linkstore.Link{}, mapError(op, err)
	}
	return link, nil
}

/***************
 * Mapping
 ***************/

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLink(row rowScanner) (linkstore.Link, error) {
	var (
		link      linkstore.Link
		createdAt int64
		valid     int64
		secret    sql.NullString
		expiresAt sql.NullInt64
	)
	err := row.Scan(&link.ID, &link.TargetURL, &link.ShortCode, &link.Clicks,
		&createdAt, &valid, &secret, &expiresAt)
	if err != nil {
		return linkstore.Link{}, err
	}

	link.CreatedAt = fromUnixNano(createdAt)
	link.Valid = valid != 0
	link.Secret = secret.String
	if expiresAt.Valid {
		t := fromUnixNano(expiresAt.Int64)
		link.ExpiresAt = &t
	}
	return link, nil
}

func fromUnixNano(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func nullUnixNano(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func isShortCodeUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		// Code may be the primary or the extended result code.
		code := sqliteErr.Code()
		return (code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code&0xff == sqlite3.SQLITE_CONSTRAINT) &&
			strings.Contains(sqliteErr.Error(), "links.short_code")
	}
	// libsql reports constraint failures as plain text.
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") &&
		strings.Contains(msg, "links.short_code")
}

func mapError(op string, err error) error {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return errx.E(op, errx.NotFound, err)

	case isShortCodeUniqueViolation(err):
		return errx.E(op, errx.Conflict, err)

	default:
		return errx.E(op, errx.Unavailable, err)
	}
}
