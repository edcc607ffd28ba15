package httpx

import (
	"net/http"

	"github.com/sundayezeilo/shortlink/internal/errx"
)

// ErrorKindToStatus maps errx.Kind to HTTP status codes.
// Gone is reported as 404: an invalidated or expired link looks missing to clients.
func ErrorKindToStatus(kind errx.Kind) int {
	switch kind {
	case errx.NotFound, errx.Gone:
		return http.StatusNotFound
	case errx.Unauthorized:
		return http.StatusUnauthorized
	case errx.AlreadyInvalid, errx.Invalid:
		return http.StatusBadRequest
	case errx.Conflict:
		return http.StatusConflict
	case errx.Unavailable:
		return http.StatusServiceUnavailable
	case errx.Internal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// ErrorKindToCode maps errx.Kind to error codes for JSON responses.
func ErrorKindToCode(kind errx.Kind) string {
	switch kind {
	case errx.NotFound:
		return "not_found"
	case errx.Gone:
		return "gone"
	case errx.Unauthorized:
		return "unauthorized"
	case errx.AlreadyInvalid:
		return "already_invalid"
	case errx.Conflict:
		return "conflict"
	case errx.Invalid:
		return "invalid_input"
	case errx.Unavailable:
		return "unavailable"
	case errx.Internal:
		return "internal_error"
	default:
		return "internal_error"
	}
}
