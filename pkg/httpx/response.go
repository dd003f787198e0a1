package httpx

import (
	"log/slog"
	"net/http"

	json "github.com/json-iterator/go"

	"github.com/dmehra2102/Trust-Settlement-System/pkg/apperr"
)

// Problem is an RFC 7807 error payload.
type Problem struct {
	Type     string         `json:"type"`
	Title    string         `json:"title"`
	Status   int            `json:"status"`
	Detail   string         `json:"detail,omitempty"`
	Instance string         `json:"instance,omitempty"`
	Extra    map[string]any `json:"extra,omitempty"`
}

func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func WriteProblem(w http.ResponseWriter, p Problem) {
	if p.Type == "" {
		p.Type = "about:blank"
	}
	if p.Title == "" {
		p.Title = http.StatusText(p.Status)
	}
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

// StatusOf maps an error to its HTTP status.
func StatusOf(err error) int {
	switch apperr.Kind(err) {
	case apperr.ErrInvalid:
		return http.StatusBadRequest
	case apperr.ErrUnauthorized:
		return http.StatusUnauthorized
	case apperr.ErrNotFound:
		return http.StatusNotFound
	case apperr.ErrConflict:
		return http.StatusConflict
	case apperr.ErrLimitExceeded:
		return http.StatusTooManyRequests
	case apperr.ErrValidationUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Error writes err as a problem. Internal errors are logged and their detail
// is hidden from the caller.
func Error(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	status := StatusOf(err)
	detail := err.Error()
	if status == http.StatusInternalServerError {
		log.Error("request failed", "path", r.URL.Path, "err", err)
		detail = "an unexpected error occurred"
	}
	WriteProblem(w, Problem{
		Status:   status,
		Detail:   detail,
		Instance: r.URL.Path,
	})
}
