package shortener

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/sundayezeilo/shortlink/internal/errx"
	"github.com/sundayezeilo/shortlink/internal/linkstore"
	"github.com/sundayezeilo/shortlink/sluggen"
)

const (
	MaxURLLength       = 2048
	MaxShortCodeLength = linkstore.MaxCodeLength
)

// CreateLinkRequest represents the parameters for creating a new link.
type CreateLinkRequest struct {
	TargetURL string
	Secret    string // Optional: empty leaves the link unprotected
	ExpiresAt string // Optional: RFC 3339, empty means the link never expires
}

// Service defines the business logic operations for short links.
type Service interface {
	Create(ctx context.Context, req CreateLinkRequest) (linkstore.Link, error)
	Resolve(ctx context.Context, shortCode, secret string) (string, error)
	Invalidate(ctx context.Context, shortCode string) (linkstore.Link, error)
	Stats(ctx context.Context, id int64) (linkstore.Stats, error)
}

// service implements the Service interface.
type service struct {
	store linkstore.Store
}

// NewService creates a new service over store.
func NewService(store linkstore.Store) Service {
	return &service{store: store}
}

// Create validates the request and stores a new short link.
func (s *service) Create(ctx context.Context, req CreateLinkRequest) (linkstore.Link, error) {
	const op = "shortener.service.Create"

	if err := validateURL(req.TargetURL); err != nil {
		return linkstore.Link{}, errx.E(op, errx.Invalid, err)
	}

	expiresAt, err := parseExpiresAt(req.ExpiresAt)
	if err != nil {
		return linkstore.Link{}, errx.E(op, errx.Invalid, err)
	}

	link, err := s.store.Create(ctx, linkstore.CreateParams{
		TargetURL: req.TargetURL,
		Secret:    req.Secret,
		ExpiresAt: expiresAt,
	})
	if err != nil {
		return linkstore.Link{}, errx.E(op, errx.KindOf(err), err)
	}
	return link, nil
}

func (s *service) Resolve(ctx context.Context, shortCode, secret string) (string, error) {
	const op = "shortener.service.Resolve"

	if !wellFormedShortCode(shortCode) {
		return "", linkstore.CodeNotFound(op, shortCode)
	}

	target, err := s.store.ResolveAndTrack(ctx, shortCode, secret)
	if err != nil {
		return "", errx.E(op, errx.KindOf(err), err)
	}
	return target, nil
}

func (s *service) Invalidate(ctx context.Context, shortCode string) (linkstore.Link, error) {
	const op = "shortener.service.Invalidate"

	if !wellFormedShortCode(shortCode) {
		return linkstore.Link{}, linkstore.CodeNotFound(op, shortCode)
	}

	link, err := s.store.Invalidate(ctx, shortCode)
	if err != nil {
		return linkstore.Link{}, errx.E(op, errx.KindOf(err), err)
	}
	return link, nil
}

func (s *service) Stats(ctx context.Context, id int64) (linkstore.Stats, error) {
	const op = "shortener.service.Stats"

	if id <= 0 {
		return linkstore.Stats{}, linkstore.IDNotFound(op, id)
	}

	stats, err := s.store.Stats(ctx, id)
	if err != nil {
		return linkstore.Stats{}, errx.E(op, errx.KindOf(err), err)
	}
	return stats, nil
}

func validateURL(rawURL string) error {
	if rawURL == "" {
		return errors.New("url cannot be empty")
	}
	if len(rawURL) > MaxURLLength {
		return errors.New("url too long (max 2048 characters)")
	}

	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return errors.New("invalid url format")
	}
	if parsedURL.Scheme == "" {
		return errors.New("url must include scheme (http or https)")
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return errors.New("url scheme must be http or https")
	}
	if parsedURL.Host == "" {
		return errors.New("url must include host")
	}
	return nil
}

// parseExpiresAt accepts RFC 3339 with either a "T" or a single space between
// date and time. An empty value means no expiration.
func parseExpiresAt(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}

	normalized := raw
	if len(raw) > 10 && raw[10] == ' ' {
		normalized = raw[:10] + "T" + raw[11:]
	}

	t, err := time.Parse(time.RFC3339Nano, normalized)
	if err != nil {
		return nil, errors.New("expires_at must be RFC 3339 with a time zone (e.g. 2030-07-10T23:59:59Z)")
	}
	return &t, nil
}

// wellFormedShortCode reports whether shortCode could have been issued. Anything
// else cannot exist in the store and is reported as not found without a lookup.
func wellFormedShortCode(shortCode string) bool {
	if shortCode == "" || len(shortCode) > MaxShortCodeLength {
		return false
	}
	return strings.Trim(shortCode, sluggen.Alphabet) == ""
}
