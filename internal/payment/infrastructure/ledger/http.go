package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	json "github.com/json-iterator/go"
	"github.com/sony/gobreaker"
)

type HTTPClient struct {
	baseURL string
	http    *http.Client
	cb      *gobreaker.CircuitBreaker
}

// NewHTTPClient talks to the ledger's REST API rooted at baseURL, e.g.
// http://order-service:8080/api.
func NewHTTPClient(log *slog.Logger, baseURL string, timeout time.Duration, opts BreakerOptions) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		cb:      NewBreaker(log, "ledger-http", opts),
	}
}

type existsResp struct {
	Exists bool `json:"exists"`
}

func (c *HTTPClient) OrderExists(ctx context.Context, orderID, companyID string) (bool, error) {
	if c.baseURL == "" {
		return false, fmt.Errorf("ledger base url is not configured")
	}
	return execute(c.cb, func() (bool, error) {
		u := fmt.Sprintf("%s/orders/%s/exists?companyId=%s", c.baseURL, url.PathEscape(orderID), url.QueryEscape(companyID))
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return false, err
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return false, err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK:
			var body existsResp
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				return false, fmt.Errorf("decode ledger response: %w", err)
			}
			return body.Exists, nil
		case resp.StatusCode >= 500:
			return false, fmt.Errorf("ledger returned status %d", resp.StatusCode)
		default:
			// A client error from the ledger means the order cannot be confirmed.
			return false, nil
		}
	})
}
