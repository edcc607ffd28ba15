package linkstore

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/sundayezeilo/shortlink/internal/errx"
)

// Sentinels wrapped inside the errx errors returned by every Store, so callers
// can tell the two Gone causes apart with errors.Is.
var (
	ErrNotFound       = errors.New("link not found")
	ErrInvalidated    = errors.New("link has been invalidated")
	ErrExpired        = errors.New("link has expired")
	ErrSecretMismatch = errors.New("secret missing or incorrect")
	ErrAlreadyInvalid = errors.New("link is already invalid")
	ErrEmptyTarget    = errors.New("target url cannot be empty")
)

// CheckResolvable applies the ordered resolve checks to l. Invalidation and
// expiration are reported before a missing or wrong secret.
func CheckResolvable(op string, l Link, now time.Time, secret string) error {
	if !l.Valid {
		return errx.E(op, errx.Gone, fmt.Errorf("short code %q: %w", l.ShortCode, ErrInvalidated))
	}
	if l.ExpiredAt(now) {
		return errx.E(op, errx.Gone, fmt.Errorf("short code %q: %w", l.ShortCode, ErrExpired))
	}
	if l.HasSecret() && subtle.ConstantTimeCompare([]byte(secret), []byte(l.Secret)) != 1 {
		return errx.E(op, errx.Unauthorized, fmt.Errorf("short code %q: %w", l.ShortCode, ErrSecretMismatch))
	}
	return nil
}

// CheckInvalidatable fails with AlreadyInvalid when l has been invalidated before.
func CheckInvalidatable(op string, l Link) error {
	if !l.Valid {
		return errx.E(op, errx.AlreadyInvalid, fmt.Errorf("short code %q: %w", l.ShortCode, ErrAlreadyInvalid))
	}
	return nil
}

// CheckCreate validates create input that the store itself depends on.
func CheckCreate(op string, p CreateParams) error {
	if p.TargetURL == "" {
		return errx.E(op, errx.Invalid, ErrEmptyTarget)
	}
	return nil
}

// CodeNotFound is the NotFound failure for a short code lookup.
func CodeNotFound(op, shortCode string) error {
	return errx.E(op, errx.NotFound, fmt.Errorf("short code %q: %w", shortCode, ErrNotFound))
}

// IDNotFound is the NotFound failure for an id lookup.
func IDNotFound(op string, id int64) error {
	return errx.E(op, errx.NotFound, fmt.Errorf("id %d: %w", id, ErrNotFound))
}

// NewLink builds the record for a freshly created link.
func NewLink(id int64, code string, p CreateParams, now time.Time) Link {
	return Link{
		ID:        id,
		TargetURL: p.TargetURL,
		ShortCode: code,
		CreatedAt: now,
		Valid:     true,
		Secret:    p.Secret,
		ExpiresAt: cloneTime(p.ExpiresAt),
	}
}
