// Package pgstore is a PostgreSQL-backed linkstore.Store.
//
// Ids come from an identity column, code uniqueness from the links_short_code_unique
// constraint, and per-link atomicity from row locks taken with SELECT ... FOR UPDATE.
// Because a rejected insert still consumes an identity value, ids are strictly
// increasing but may skip.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	db "github.com/sundayezeilo/shortlink/internal/db/sqlc"
	"github.com/sundayezeilo/shortlink/internal/errx"
	"github.com/sundayezeilo/shortlink/internal/linkstore"
)

// querier is an internal interface that abstracts *db.Queries
type querier interface {
	CreateLink(ctx context.Context, arg db.CreateLinkParams) (db.Link, error)
	GetLinkByID(ctx context.Context, id int64) (db.Link, error)
	GetLinkByShortCodeForUpdate(ctx context.Context, shortCode string) (db.Link, error)
	IncrementClicks(ctx context.Context, id int64) (db.Link, error)
	InvalidateLink(ctx context.Context, id int64) (db.Link, error)
}

// TxBeginner starts transactions. *pgxpool.Pool and *pgx.Conn satisfy it.
type TxBeginner interface {
	db.DBTX
	Begin(ctx context.Context) (pgx.Tx, error)
}

type Store struct {
	conn TxBeginner
	q    *db.Queries
	opts linkstore.Options
}

var _ linkstore.Store = (*Store)(nil)

// New returns a Store over conn. The links table must already exist
// (see internal/db/migrations).
func New(conn TxBeginner, opts ...linkstore.Option) *Store {
	return &Store{
		conn: conn,
		q:    db.New(conn),
		opts: linkstore.NewOptions(opts...),
	}
}

func (s *Store) Create(ctx context.Context, p linkstore.CreateParams) (linkstore.Link, error) {
	const op = "pgstore.Store.Create"

	if err := linkstore.CheckCreate(op, p); err != nil {
		return linkstore.Link{}, err
	}

	createdAt := s.opts.Clock.Now()

	// The unique constraint is the uniqueness check; a collision just draws again.
	for {
		code, err := s.opts.NewCode()
		if err != nil {
			return linkstore.Link{}, errx.E(op, errx.Internal, err)
		}

		row, err := s.q.CreateLink(ctx, db.CreateLinkParams{
			TargetUrl: p.TargetURL,
			ShortCode: code,
			CreatedAt: timestamptz(&createdAt),
			Secret:    text(p.Secret),
			ExpiresAt: timestamptz(p.ExpiresAt),
		})
		if err == nil {
			link, err := toDomainLink(row)
			if err != nil {
				return linkstore.Link{}, errx.E(op, errx.Internal, err)
			}
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
	const op = "pgstore.Store.ResolveAndTrack"

	var target string
	err := pgx.BeginFunc(ctx, s.conn, func(tx pgx.Tx) error {
		q := s.q.WithTx(tx)

		link, err := lockByCode(ctx, q, op, shortCode)
		if err != nil {
			return err
		}
		if err := linkstore.CheckResolvable(op, link, s.opts.Clock.Now(), secret); err != nil {
			return err
		}

		row, err := q.IncrementClicks(ctx, link.ID)
		if err != nil {
			return mapError(op, err)
		}
		target = row.TargetUrl
		return nil
	})
	if err != nil {
		return "", wrapTxError(op, err)
	}
	return target, nil
}

func (s *Store) Invalidate(ctx context.Context, shortCode string) (linkstore.Link, error) {
	const op = "pgstore.Store.Invalidate"

	var out linkstore.Link
	err := pgx.BeginFunc(ctx, s.conn, func(tx pgx.Tx) error {
		q := s.q.WithTx(tx)

		link, err := lockByCode(ctx, q, op, shortCode)
		if err != nil {
			return err
		}
		if err := linkstore.CheckInvalidatable(op, link); err != nil {
			return err
		}

		row, err := q.InvalidateLink(ctx, link.ID)
		if err != nil {
			return mapError(op, err)
		}
		out, err = toDomainLink(row)
		if err != nil {
			return errx.E(op, errx.Internal, err)
		}
		return nil
	})
	if err != nil {
		return linkstore.Link{}, wrapTxError(op, err)
	}
	return out, nil
}

func (s *Store) Stats(ctx context.Context, id int64) (linkstore.Stats, error) {
	const op = "pgstore.Store.Stats"

	row, err := s.q.GetLinkByID(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return linkstore.Stats{}, linkstore.IDNotFound(op, id)
	}
	if err != nil {
		return linkstore.Stats{}, mapError(op, err)
	}

	link, err := toDomainLink(row)
	if err != nil {
		return linkstore.Stats{}, errx.E(op, errx.Internal, err)
	}
	return link.Stats(s.opts.Clock.Now()), nil
}

// lockByCode loads the link for shortCode and holds its row lock until the
// surrounding transaction ends.
func lockByCode(ctx context.Context, q querier, op, shortCode string) (linkstore.Link, error) {
	row, err := q.GetLinkByShortCodeForUpdate(ctx, shortCode)
	if errors.Is(err, pgx.ErrNoRows) {
		return linkstore.Link{}, linkstore.CodeNotFound(op, shortCode)
	}
	if err != nil {
		return linkstore.Link{}, mapError(op, err)
	}

	link, err := toDomainLink(row)
	if err != nil {
		return linkstore.Link{}, errx.E(op, errx.Internal, err)
	}
	return link, nil
}

/***************
 * Mapping
 ***************/

func toDomainLink(x db.Link) (linkstore.Link, error) {
	if !x.CreatedAt.Valid {
		return linkstore.Link{}, fmt.Errorf("link %d: created_at unexpectedly NULL", x.ID)
	}

	link := linkstore.Link{
		ID:        x.ID,
		TargetURL: x.TargetUrl,
		ShortCode: x.ShortCode,
		Clicks:    x.Clicks,
		CreatedAt: x.CreatedAt.Time,
		Valid:     x.Valid,
	}
	if x.Secret.Valid {
		link.Secret = x.Secret.String
	}
	if x.ExpiresAt.Valid {
		t := x.ExpiresAt.Time
		link.ExpiresAt = &t
	}
	return link, nil
}

func timestamptz(t *time.Time) pgtype.Timestamptz {
	if t == nil {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: *t, Valid: true}
}

func text(s string) pgtype.Text {
	if s == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: s, Valid: true}
}

func isShortCodeUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23505" &&
		pgErr.ConstraintName == "links_short_code_unique"
}

func mapError(op string, err error) error {
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return errx.E(op, errx.NotFound, err)

	case isShortCodeUniqueViolation(err):
		return errx.E(op, errx.Conflict, err)

	default:
		return errx.E(op, errx.Unavailable, err)
	}
}

// wrapTxError keeps errx errors raised inside a transaction as they are and
// classifies failures of begin/commit themselves.
func wrapTxError(op string, err error) error {
	var e *errx.Error
	if errors.As(err, &e) {
		return err
	}
	return errx.E(op, errx.Unavailable, err)
}
