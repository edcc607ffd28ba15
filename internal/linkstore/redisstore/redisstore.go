// Package redisstore is a Redis-backed linkstore.Store.
//
// Each link is a hash under <prefix>link:<id>, looked up through <prefix>code:<code>.
// Ids come from INCR on <prefix>seq. Changes to a link run in WATCH/MULTI
// transactions that are retried when another client touched the watched key.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sundayezeilo/shortlink/internal/errx"
	"github.com/sundayezeilo/shortlink/internal/linkstore"
)

var errCodeTaken = errors.New("short code already in use")

// Client is the subset of go-redis the store needs. *redis.Client and
// *redis.ClusterClient satisfy it.
type Client interface {
	redis.Cmdable
	Watch(ctx context.Context, fn func(*redis.Tx) error, keys ...string) error
}

type Store struct {
	client Client
	keys   keys
	opts   linkstore.Options
}

var _ linkstore.Store = (*Store)(nil)

// New returns a Store writing keys under prefix. An empty prefix means DefaultKeyPrefix.
func New(client Client, prefix string, opts ...linkstore.Option) *Store {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &Store{
		client: client,
		keys:   keys{prefix: prefix},
		opts:   linkstore.NewOptions(opts...),
	}
}

func (s *Store) Create(ctx context.Context, p linkstore.CreateParams) (linkstore.Link, error) {
	const op = "redisstore.Store.Create"

	if err := linkstore.CheckCreate(op, p); err != nil {
		return linkstore.Link{}, err
	}

	createdAt := s.opts.Clock.Now()

	for {
		code, err := s.opts.NewCode()
		if err != nil {
			return linkstore.Link{}, errx.E(op, errx.Internal, err)
		}

		var link linkstore.Link
		codeKey := s.keys.code(code)
		err = s.client.Watch(ctx, func(tx *redis.Tx) error {
			n, err := tx.Exists(ctx, codeKey).Result()
			if err != nil {
				return err
			}
			if n > 0 {
				return errCodeTaken
			}

			id, err := tx.Incr(ctx, s.keys.seq()).Result()
			if err != nil {
				return err
			}
			link = linkstore.NewLink(id, code, p, createdAt)

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.HSet(ctx, s.keys.link(id), encodeLink(link))
				pipe.Set(ctx, codeKey, id, 0)
				return nil
			})
			return err
		}, codeKey)

		switch {
		case err == nil:
			return link, nil
		case errors.Is(err, errCodeTaken), errors.Is(err, redis.TxFailedErr):
			if ctx.Err() != nil {
				return linkstore.Link{}, errx.E(op, errx.Unavailable, ctx.Err())
			}
		default:
			return linkstore.Link{}, errx.E(op, errx.Unavailable, err)
		}
	}
}

func (s *Store) ResolveAndTrack(ctx context.Context, shortCode, secret string) (string, error) {
	const op = "redisstore.Store.ResolveAndTrack"

	var target string
	err := s.update(ctx, op, shortCode, func(tx *redis.Tx, link linkstore.Link) error {
		if err := linkstore.CheckResolvable(op, link, s.opts.Clock.Now(), secret); err != nil {
			return err
		}

		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HIncrBy(ctx, s.keys.link(link.ID), fieldClicks, 1)
			return nil
		})
		target = link.TargetURL
		return err
	})
	if err != nil {
		return "", err
	}
	return target, nil
}

func (s *Store) Invalidate(ctx context.Context, shortCode string) (linkstore.Link, error) {
	const op = "redisstore.Store.Invalidate"

	var out linkstore.Link
	err := s.update(ctx, op, shortCode, func(tx *redis.Tx, link linkstore.Link) error {
		if err := linkstore.CheckInvalidatable(op, link); err != nil {
			return err
		}

		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, s.keys.link(link.ID), fieldValid, "0")
			return nil
		})
		link.Valid = false
		out = link
		return err
	})
	if err != nil {
		return linkstore.Link{}, err
	}
	return out, nil
}

func (s *Store) Stats(ctx context.Context, id int64) (linkstore.Stats, error) {
	const op = "redisstore.Store.Stats"

	fields, err := s.client.HGetAll(ctx, s.keys.link(id)).Result()
	if err != nil {
		return linkstore.Stats{}, errx.E(op, errx.Unavailable, err)
	}
	if len(fields) == 0 {
		return linkstore.Stats{}, linkstore.IDNotFound(op, id)
	}

	link, err := decodeLink(fields)
	if err != nil {
		return linkstore.Stats{}, errx.E(op, errx.Internal, err)
	}
	return link.Stats(s.opts.Clock.Now()), nil
}

// update loads the link for shortCode under WATCH and hands it to fn, which
// queues its writes with tx.TxPipelined. The whole attempt is repeated when the
// link changed before EXEC.
func (s *Store) update(ctx context.Context, op, shortCode string, fn func(*redis.Tx, linkstore.Link) error) error {
	for {
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			id, err := tx.Get(ctx, s.keys.code(shortCode)).Int64()
			if errors.Is(err, redis.Nil) {
				return linkstore.CodeNotFound(op, shortCode)
			}
			if err != nil {
				return err
			}

			linkKey := s.keys.link(id)
			if err := tx.Watch(ctx, linkKey).Err(); err != nil {
				return err
			}
			fields, err := tx.HGetAll(ctx, linkKey).Result()
			if err != nil {
				return err
			}
			if len(fields) == 0 {
				return linkstore.CodeNotFound(op, shortCode)
			}

			link, err := decodeLink(fields)
			if err != nil {
				return errx.E(op, errx.Internal, err)
			}
			return fn(tx, link)
		})

		var e *errx.Error
		switch {
		case err == nil:
			return nil
		case errors.As(err, &e):
			return err
		case errors.Is(err, redis.TxFailedErr):
			if ctx.Err() != nil {
				return errx.E(op, errx.Unavailable, ctx.Err())
			}
		default:
			return errx.E(op, errx.Unavailable, err)
		}
	}
}

/***************
 * Encoding
 ***************/

const (
	fieldID        = "id"
	fieldTargetURL = "target_url"
	fieldShortCode = "short_code"
	fieldClicks    = "clicks"
	fieldCreatedAt = "created_at"
	fieldValid     = "valid"
	fieldSecret    = "secret"
	fieldExpiresAt = "expires_at"
)

// encodeLink renders l as hash fields. Times are unix nanoseconds; an absent
// secret or expiration is stored as an empty string.
func encodeLink(l linkstore.Link) map[string]any {
	valid := "0"
	if l.Valid {
		valid = "1"
	}
	expiresAt := ""
	if l.ExpiresAt != nil {
		expiresAt = strconv.FormatInt(l.ExpiresAt.UnixNano(), 10)
	}

	return map[string]any{
		fieldID:        l.ID,
		fieldTargetURL: l.TargetURL,
		fieldShortCode: l.ShortCode,
		fieldClicks:    l.Clicks,
		fieldCreatedAt: l.CreatedAt.UnixNano(),
		fieldValid:     valid,
		fieldSecret:    l.Secret,
		fieldExpiresAt: expiresAt,
	}
}

func decodeLink(fields map[string]string) (linkstore.Link, error) {
	var (
		link linkstore.Link
		err  error
	)

	if link.ID, err = strconv.ParseInt(fields[fieldID], 10, 64); err != nil {
		return linkstore.Link{}, fmt.Errorf("decode %s: %w", fieldID, err)
	}
	if link.Clicks, err = strconv.ParseInt(fields[fieldClicks], 10, 64); err != nil {
		return linkstore.Link{}, fmt.Errorf("decode %s: %w", fieldClicks, err)
	}
	createdAt, err := strconv.ParseInt(fields[fieldCreatedAt], 10, 64)
	if err != nil {
		return linkstore.Link{}, fmt.Errorf("decode %s: %w", fieldCreatedAt, err)
	}
	link.CreatedAt = time.Unix(0, createdAt).UTC()

	if raw := fields[fieldExpiresAt]; raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return linkstore.Link{}, fmt.Errorf("decode %s: %w", fieldExpiresAt, err)
		}
		t := time.Unix(0, n).UTC()
		link.ExpiresAt = &t
	}

	link.TargetURL = fields[fieldTargetURL]
	link.ShortCode = fields[fieldShortCode]
	link.Secret = fields[fieldSecret]
	link.Valid = fields[fieldValid] == "1"
	return link, nil
}
