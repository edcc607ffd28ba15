// Package linkstore owns short links: it issues sequential ids, generates unique
// short codes and exposes the create, resolve, invalidate and stats operations.
//
// Memory is the reference implementation. Durable backends live in sibling
// packages and implement Store with the same observable semantics, reusing the
// validity rules in this package.
package linkstore

import (
	"context"
	"time"
)

// Link is a short code bound to a target.
type Link struct {
	ID        int64
	TargetURL string
	ShortCode string
	Clicks    int64
	CreatedAt time.Time
	Valid     bool
	Secret    string     // empty means the link is unprotected
	ExpiresAt *time.Time // nil means the link never expires
}

// HasSecret reports whether resolving the link requires a secret.
func (l Link) HasSecret() bool { return l.Secret != "" }

// ExpiredAt reports whether the link is past its expiration at now.
// A link is still usable at exactly its expiration instant.
func (l Link) ExpiredAt(now time.Time) bool {
	return l.ExpiresAt != nil && now.After(*l.ExpiresAt)
}

// Stats projects the link for reporting. The secret itself is never included.
func (l Link) Stats(now time.Time) Stats {
	return Stats{
		ID:        l.ID,
		TargetURL: l.TargetURL,
		ShortCode: l.ShortCode,
		Clicks:    l.Clicks,
		CreatedAt: l.CreatedAt,
		Valid:     l.Valid,
		ExpiresAt: cloneTime(l.ExpiresAt),
		HasSecret: l.HasSecret(),
		Expired:   l.ExpiredAt(now),
	}
}

func (l Link) clone() Link {
	l.ExpiresAt = cloneTime(l.ExpiresAt)
	return l
}

// Stats is the read projection returned by Store.Stats.
type Stats struct {
	ID        int64
	TargetURL string
	ShortCode string
	Clicks    int64
	CreatedAt time.Time
	Valid     bool
	ExpiresAt *time.Time
	HasSecret bool
	Expired   bool // computed against the store clock when the stats were read
}

// CreateParams are the inputs to Store.Create.
type CreateParams struct {
	TargetURL string
	Secret    string
	ExpiresAt *time.Time
}

// Store is the link lifecycle contract every backend implements.
type Store interface {
	// Create stores a new link under a freshly generated, unique short code.
	Create(ctx context.Context, p CreateParams) (Link, error)

	// ResolveAndTrack returns the target of shortCode and counts the access.
	// Checks run in order: existence, invalidation, expiration, secret.
	ResolveAndTrack(ctx context.Context, shortCode, secret string) (string, error)

	// Invalidate marks the link unusable. It fails if the link is already invalid.
	Invalidate(ctx context.Context, shortCode string) (Link, error)

	// Stats returns the read projection of the link with the given id.
	Stats(ctx context.Context, id int64) (Stats, error)
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
