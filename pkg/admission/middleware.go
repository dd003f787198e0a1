package admission

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/dmehra2102/Trust-Settlement-System/pkg/httpx"
	"github.com/dmehra2102/Trust-Settlement-System/pkg/identity"
)

// PartitionKey picks the rate limit bucket for r: the authenticated company,
// then the first forwarded-for address, then the peer address, then the
// anonymous key.
func PartitionKey(r *http.Request, anonymousKey string) (key string, authenticated bool) {
	if id, ok := identity.CompanyFrom(r.Context()); ok {
		return id, true
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first, false
		}
	}
	if r.RemoteAddr != "" {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		if host != "" {
			return host, false
		}
	}
	return anonymousKey, false
}

type rejection struct {
	Error      string    `json:"error"`
	Limit      int       `json:"limit"`
	RetryAfter time.Time `json:"retryAfter"`
	Details    string    `json:"details"`
}

// RequestKeyFunc picks the partition for a request and reports whether the
// caller is authenticated. An empty key falls back to PartitionKey.
type RequestKeyFunc func(r *http.Request) (key string, authenticated bool)

// Middleware admits, queues or rejects each request.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return l.MiddlewareFunc(nil)(next)
}

// MiddlewareFunc is Middleware with a custom partition key.
func (l *Limiter) MiddlewareFunc(keyFn RequestKeyFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return l.admit(keyFn, next)
	}
}

func (l *Limiter) admit(keyFn RequestKeyFunc, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var (
			key           string
			authenticated bool
		)
		if keyFn != nil {
			key, authenticated = keyFn(r)
		}
		if key == "" {
			key, authenticated = PartitionKey(r, l.cfg.AnonymousKey)
		}
		res := l.Reserve(key, authenticated)

		if !res.Allowed {
			l.reject(w, r, key, res)
			return
		}
		if res.Wait > 0 {
			t := time.NewTimer(res.Wait)
			select {
			case <-r.Context().Done():
				t.Stop()
				res.Cancel()
				return
			case <-t.C:
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (l *Limiter) reject(w http.ResponseWriter, r *http.Request, key string, res Reservation) {
	endpoint := r.Method + " " + r.URL.Path
	l.log.Warn("rate limit exceeded",
		"partition", key,
		"endpoint", endpoint,
		"retry_at", res.RetryAt,
		"banned", res.Banned,
	)

	details := fmt.Sprintf("rate limit of %d requests per %s exceeded", res.Limit, l.cfg.Window)
	if res.Banned {
		details = "too many rate limit violations; temporarily blocked"
	}
	w.Header().Set("Retry-After", res.RetryAt.UTC().Format(http.TimeFormat))
	httpx.JSON(w, http.StatusTooManyRequests, rejection{
		Error:      "Too many requests",
		Limit:      res.Limit,
		RetryAfter: res.RetryAt.UTC(),
		Details:    details,
	})
}
