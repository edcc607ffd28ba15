package shortener

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sundayezeilo/shortlink/internal/errx"
	"github.com/sundayezeilo/shortlink/internal/httpx"
	"github.com/sundayezeilo/shortlink/internal/linkstore"
)

// HTTPCreateLinkRequest represents the JSON request body for creating a link.
// password and expiredAt are accepted as aliases of secret and expires_at.
type HTTPCreateLinkRequest struct {
	URL       string `json:"url"`
	Secret    string `json:"secret,omitempty"`
	Password  string `json:"password,omitempty"`
	ExpiresAt string `json:"expires_at,omitempty"`
	ExpiredAt string `json:"expiredAt,omitempty"`
}

// CreateLinkResponse represents the JSON response for a created link.
type CreateLinkResponse struct {
	ID        int64   `json:"id"`
	ShortCode string  `json:"short_code"`
	Target    string  `json:"target"`
	Link      string  `json:"link"`
	Valid     bool    `json:"valid"`
	CreatedAt string  `json:"created_at"`
	ExpiresAt *string `json:"expires_at"`
	HasSecret bool    `json:"has_secret"`
}

// InvalidateLinkResponse represents the JSON response for an invalidated link.
type InvalidateLinkResponse struct {
	Message   string `json:"message"`
	ShortCode string `json:"short_code"`
	Valid     bool   `json:"valid"`
}

// LinkStatsResponse represents the JSON response for link statistics.
type LinkStatsResponse struct {
	ID        int64   `json:"id"`
	TargetURL string  `json:"target_url"`
	ShortCode string  `json:"short_code"`
	Clicks    int64   `json:"clicks"`
	CreatedAt string  `json:"created_at"`
	Valid     bool    `json:"valid"`
	ExpiresAt *string `json:"expires_at"`
	HasSecret bool    `json:"has_secret"`
	Expired   bool    `json:"expired"`
}

// Handler provides HTTP handlers for the short link service.
type Handler struct {
	service Service
	logger  *slog.Logger
	baseURL string
}

// HandlerConfig holds configuration for the handler.
type HandlerConfig struct {
	Service Service
	Logger  *slog.Logger
	BaseURL string // Base URL for constructing short links (e.g., "https://short.ly")
}

// NewHandler creates a new Handler instance.
func NewHandler(cfg HandlerConfig) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Handler{
		service: cfg.Service,
		logger:  logger,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
	}
}

// CreateLink handles POST /create.
func (h *Handler) CreateLink(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.requestLogger(r)

	req, err := httpx.DecodeJSON[HTTPCreateLinkRequest](w, r)
	if err != nil {
		logger.WarnContext(ctx, "failed to decode request",
			"error", err.Error(),
		)
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", clientMessage(errx.Invalid, err), nil)
		return
	}

	if err := validateCreateRequest(req); err != nil {
		logger.WarnContext(ctx, "request validation failed",
			"error", err.Error(),
			"url", req.URL,
		)
		httpx.WriteError(w, http.StatusBadRequest, "validation_failed", err.Error(), nil)
		return
	}

	link, err := h.service.Create(ctx, CreateLinkRequest{
		TargetURL: req.URL,
		Secret:    firstNonEmpty(req.Secret, req.Password),
		ExpiresAt: firstNonEmpty(req.ExpiresAt, req.ExpiredAt),
	})
	if err != nil {
		h.handleError(ctx, logger, w, err)
		return
	}

	logger.InfoContext(ctx, "link created successfully",
		"link_id", link.ID,
		"short_code", link.ShortCode,
		"has_secret", link.HasSecret(),
		"expires", link.ExpiresAt != nil,
	)

	httpx.WriteJSON(w, http.StatusCreated, CreateLinkResponse{
		ID:        link.ID,
		ShortCode: link.ShortCode,
		Target:    link.TargetURL,
		Link:      h.shortLink(link.ShortCode),
		Valid:     link.Valid,
		CreatedAt: formatTime(link.CreatedAt),
		ExpiresAt: formatOptionalTime(link.ExpiresAt),
		HasSecret: link.HasSecret(),
	})
}

// ResolveLink handles GET /l/{shortCode}, redirecting to the target and counting the click.
// The secret is read from the secret query parameter, or password as a fallback.
func (h *Handler) ResolveLink(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.requestLogger(r)

	shortCode := chi.URLParam(r, "shortCode")
	query := r.URL.Query()
	secret := firstNonEmpty(query.Get("secret"), query.Get("password"))

	target, err := h.service.Resolve(ctx, shortCode, secret)
	if err != nil {
		h.handleError(ctx, logger.With("short_code", shortCode), w, err)
		return
	}

	logger.InfoContext(ctx, "short code resolved successfully",
		"short_code", shortCode,
		"target", target,
		"user_agent", r.UserAgent(),
		"referer", r.Referer(),
	)

	httpx.Redirect(w, r, target)
}

// InvalidateLink handles PUT /l/{shortCode}.
func (h *Handler) InvalidateLink(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.requestLogger(r)

	shortCode := chi.URLParam(r, "shortCode")

	link, err := h.service.Invalidate(ctx, shortCode)
	if err != nil {
		h.handleError(ctx, logger.With("short_code", shortCode), w, err)
		return
	}

	logger.InfoContext(ctx, "link invalidated",
		"link_id", link.ID,
		"short_code", link.ShortCode,
	)

	httpx.WriteJSON(w, http.StatusOK, InvalidateLinkResponse{
		Message:   fmt.Sprintf("link with short code %q invalidated", link.ShortCode),
		ShortCode: link.ShortCode,
		Valid:     link.Valid,
	})
}

// LinkStats handles GET /{id}/stats. An id that is not a positive integer is
// reported as not found.
func (h *Handler) LinkStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.requestLogger(r)

	rawID := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		logger.WarnContext(ctx, "non-numeric link id", "id", rawID)
		httpx.WriteError(w, http.StatusNotFound, "not_found", "link id must be a number", nil)
		return
	}

	stats, err := h.service.Stats(ctx, id)
	if err != nil {
		h.handleError(ctx, logger.With("link_id", id), w, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, LinkStatsResponse{
		ID:        stats.ID,
		TargetURL: stats.TargetURL,
		ShortCode: stats.ShortCode,
		Clicks:    stats.Clicks,
		CreatedAt: formatTime(stats.CreatedAt),
		Valid:     stats.Valid,
		ExpiresAt: formatOptionalTime(stats.ExpiresAt),
		HasSecret: stats.HasSecret,
		Expired:   stats.Expired,
	})
}

func (h *Handler) requestLogger(r *http.Request) *slog.Logger {
	return h.logger.With(
		"request_id", httpx.GetRequestID(r.Context()),
		"method", r.Method,
		"path", r.URL.Path,
	)
}

func (h *Handler) shortLink(shortCode string) string {
	return fmt.Sprintf("%s/l/%s", h.baseURL, shortCode)
}

// handleError maps a service error to its HTTP response. Client errors are
// logged as warnings, everything else as errors.
func (h *Handler) handleError(ctx context.Context, logger *slog.Logger, w http.ResponseWriter, err error) {
	kind := errx.KindOf(err)
	status := httpx.ErrorKindToStatus(kind)

	logAttrs := []any{
		"error", err.Error(),
		"error_kind", kind.String(),
		"operation", errx.OpOf(err),
	}
	if status >= http.StatusInternalServerError {
		logger.ErrorContext(ctx, "request failed", logAttrs...)
	} else {
		logger.WarnContext(ctx, "request rejected", logAttrs...)
	}

	httpx.WriteKindError(w, kind, clientMessage(kind, err))
}

// clientMessage is the message shown to API clients. It never leaks operation
// names or backend details.
func clientMessage(kind errx.Kind, err error) string {
	switch kind {
	case errx.NotFound:
		return "short link doesn't exist"
	case errx.Gone:
		if errors.Is(err, linkstore.ErrExpired) {
			return "short link has expired"
		}
		return "short link has been invalidated"
	case errx.Unauthorized:
		return "secret missing or incorrect for this link"
	case errx.AlreadyInvalid:
		return "short link is already invalid"
	case errx.Invalid:
		var e *errx.Error
		inner := err
		for errors.As(inner, &e) && e.Err != nil {
			inner = e.Err
		}
		return inner.Error()
	case errx.Unavailable:
		return "service temporarily unavailable, please try again"
	default:
		return "an unexpected error occurred"
	}
}

// validateCreateRequest validates the HTTPCreateLinkRequest.
func validateCreateRequest(req HTTPCreateLinkRequest) error {
	if req.URL == "" {
		return errors.New("url is required")
	}
	if req.Secret != "" && req.Password != "" && req.Secret != req.Password {
		return errors.New("secret and password disagree")
	}
	if req.ExpiresAt != "" && req.ExpiredAt != "" && req.ExpiresAt != req.ExpiredAt {
		return errors.New("expires_at and expiredAt disagree")
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatOptionalTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}
