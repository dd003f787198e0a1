package credentials

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dmehra2102/Trust-Settlement-System/pkg/apperr"
	"github.com/dmehra2102/Trust-Settlement-System/pkg/httpx"
	"github.com/dmehra2102/Trust-Settlement-System/pkg/identity"
)

const (
	HeaderAPIKey    = "X-Api-Key"
	HeaderAPISecret = "X-Api-Secret"
)

// FromRequest reads the credential pair from the X-Api-* headers, falling
// back to the bare ApiKey/ApiSecret headers older clients send.
func FromRequest(r *http.Request) (apiKey, apiSecret string, ok bool) {
	apiKey = firstHeader(r, HeaderAPIKey, "ApiKey")
	apiSecret = firstHeader(r, HeaderAPISecret, "ApiSecret")
	return apiKey, apiSecret, apiKey != "" && apiSecret != ""
}

func firstHeader(r *http.Request, names ...string) string {
	for _, n := range names {
		if v := strings.TrimSpace(r.Header.Get(n)); v != "" {
			return v
		}
	}
	return ""
}

// Authenticate resolves the company behind r. A bearer identity already on the
// context wins; otherwise the API credentials are checked with v.
func Authenticate(v Validator, r *http.Request, scope string) (string, error) {
	if id, ok := identity.CompanyFrom(r.Context()); ok {
		if scope != "" && scope != id {
			return "", fmt.Errorf("%w: token does not belong to company %s", apperr.ErrUnauthorized, scope)
		}
		return id, nil
	}

	apiKey, apiSecret, ok := FromRequest(r)
	if !ok {
		return "", fmt.Errorf("%w: missing API key or secret", apperr.ErrUnauthorized)
	}
	res, err := v.Validate(r.Context(), apiKey, apiSecret, scope)
	if err != nil {
		return "", err
	}
	if !res.Valid {
		return "", fmt.Errorf("%w: invalid API key or secret", apperr.ErrUnauthorized)
	}
	return res.CompanyID, nil
}

// Require rejects requests that carry no valid credentials and stores the
// authenticated company id on the request context.
func Require(v Validator, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			companyID, err := Authenticate(v, r, "")
			if err != nil {
				httpx.Error(w, r, log, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(identity.WithCompany(r.Context(), companyID)))
		})
	}
}
