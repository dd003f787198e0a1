// Package credentials is the client side of the authority: it validates
// company API credentials against the authority service and caches positive
// results. Every dependent service embeds one Client.
package credentials

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jellydator/ttlcache/v3"
	json "github.com/json-iterator/go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/Trust-Settlement-System/pkg/apperr"
	"github.com/dmehra2102/Trust-Settlement-System/pkg/config"
)

// Result of a credential check. CompanyID is set only when Valid.
type Result struct {
	Valid     bool
	CompanyID string
}

// Validator authenticates API credentials. scope, when non-empty, is the
// company id the caller claims to act for; a mismatch is reported as invalid.
type Validator interface {
	Validate(ctx context.Context, apiKey, apiSecret, scope string) (Result, error)
}

type Options struct {
	// Endpoint is the authority's validate URL. Empty means misconfigured and
	// every validation fails closed.
	Endpoint             string
	Timeout              time.Duration
	RetryCount           int
	RetryInitialInterval time.Duration
	CacheTTL             time.Duration
	CacheMaxAge          time.Duration
	HTTPClient           *http.Client
}

func DefaultOptions(endpoint string) Options {
	return Options{
		Endpoint:             endpoint,
		Timeout:              3 * time.Second,
		RetryCount:           3,
		RetryInitialInterval: 500 * time.Millisecond,
		CacheTTL:             5 * time.Minute,
		CacheMaxAge:          15 * time.Minute,
	}
}

// OptionsFrom builds client options from the service configuration, keeping
// defaults for zero values.
func OptionsFrom(cfg config.Authority) Options {
	opts := DefaultOptions(cfg.ValidateURL)
	if cfg.Timeout > 0 {
		opts.Timeout = cfg.Timeout
	}
	if cfg.RetryCount >= 0 {
		opts.RetryCount = cfg.RetryCount
	}
	if cfg.CacheTTL > 0 {
		opts.CacheTTL = cfg.CacheTTL
	}
	if cfg.CacheMaxAge > 0 {
		opts.CacheMaxAge = cfg.CacheMaxAge
	}
	return opts
}

type Stats struct {
	Hits           int64
	Misses         int64
	AuthorityCalls int64
	Invalid        int64
	Unavailable    int64
}

type entry struct {
	companyID string
	expiresAt time.Time
}

var errRejected = errors.New("authority rejected credentials")

type Client struct {
	log    *slog.Logger
	opts   Options
	http   *http.Client
	cache  *ttlcache.Cache[string, entry]
	tracer trace.Tracer
	now    func() time.Time

	hits, misses, calls, invalid, unavailable atomic.Int64
}

var _ Validator = (*Client)(nil)

func NewClient(log *slog.Logger, opts Options) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 5 * time.Minute
	}
	if opts.CacheMaxAge < opts.CacheTTL {
		opts.CacheMaxAge = opts.CacheTTL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 3 * time.Second
	}
	return &Client{
		log:    log,
		opts:   opts,
		http:   hc,
		cache:  ttlcache.New[string, entry](ttlcache.WithTTL[string, entry](opts.CacheTTL)),
		tracer: otel.Tracer("credentials"),
		now:    time.Now,
	}
}

// Start runs cache eviction until Stop is called. Stop must only follow Start.
func (c *Client) Start() { go c.cache.Start() }

func (c *Client) Stop() { c.cache.Stop() }

func (c *Client) Stats() Stats {
	return Stats{
		Hits:           c.hits.Load(),
		Misses:         c.misses.Load(),
		AuthorityCalls: c.calls.Load(),
		Invalid:        c.invalid.Load(),
		Unavailable:    c.unavailable.Load(),
	}
}

// CacheKey hashes the credential triple so secrets are never held as map keys.
func CacheKey(apiKey, apiSecret, scope string) string {
	sum := sha256.Sum256([]byte(apiKey + ":" + apiSecret + ":" + scope))
	return base64.StdEncoding.EncodeToString(sum[:])
}

func (c *Client) Validate(ctx context.Context, apiKey, apiSecret, scope string) (Result, error) {
	ctx, span := c.tracer.Start(ctx, "credentials.Validate")
	defer span.End()

	key := CacheKey(apiKey, apiSecret, scope)
	// Get slides the item's TTL; the absolute age cap is checked here.
	if item := c.cache.Get(key); item != nil {
		e := item.Value()
		if c.now().Before(e.expiresAt) {
			c.hits.Add(1)
			span.SetAttributes(attribute.String("outcome", "hit"))
			return Result{Valid: true, CompanyID: e.companyID}, nil
		}
		c.cache.Delete(key)
	}
	c.misses.Add(1)

	companyID, err := c.callAuthority(ctx, apiKey, apiSecret, scope)
	switch {
	case errors.Is(err, errRejected):
		c.invalid.Add(1)
		span.SetAttributes(attribute.String("outcome", "invalid"))
		c.log.Warn("credential validation rejected")
		return Result{}, nil
	case err != nil:
		c.unavailable.Add(1)
		span.SetAttributes(attribute.String("outcome", "unavailable"))
		c.log.Error("credential validation unavailable", "err", err)
		return Result{}, fmt.Errorf("%w: %v", apperr.ErrValidationUnavailable, err)
	}

	if scope != "" && scope != companyID {
		c.invalid.Add(1)
		span.SetAttributes(attribute.String("outcome", "invalid"))
		c.log.Warn("credentials belong to another company", "scope", scope)
		return Result{}, nil
	}

	c.cache.Set(key, entry{companyID: companyID, expiresAt: c.now().Add(c.opts.CacheMaxAge)}, ttlcache.DefaultTTL)
	span.SetAttributes(attribute.String("outcome", "valid"))
	c.log.Debug("credential validation succeeded", "company_id", companyID)
	return Result{Valid: true, CompanyID: companyID}, nil
}

type validateRequest struct {
	APIKey    string `json:"apiKey"`
	APISecret string `json:"apiSecret"`
	CompanyID string `json:"companyId,omitempty"`
}

type validateResponse struct {
	CompanyID string `json:"companyId"`
}

func (c *Client) callAuthority(ctx context.Context, apiKey, apiSecret, scope string) (string, error) {
	if c.opts.Endpoint == "" {
		return "", errors.New("authority validate URL is not configured")
	}
	body, err := json.Marshal(validateRequest{APIKey: apiKey, APISecret: apiSecret, CompanyID: scope})
	if err != nil {
		return "", err
	}

	var companyID string
	op := func() error {
		c.calls.Add(1)
		reqCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()

		req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.opts.Endpoint, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK:
			var out validateResponse
			if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
				return backoff.Permanent(fmt.Errorf("decode authority response: %w", err))
			}
			if out.CompanyID == "" {
				return backoff.Permanent(errors.New("authority response without company id"))
			}
			companyID = out.CompanyID
			return nil
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return backoff.Permanent(errRejected)
		case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
			return fmt.Errorf("authority returned status %d", resp.StatusCode)
		default:
			return backoff.Permanent(fmt.Errorf("authority returned status %d", resp.StatusCode))
		}
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.opts.RetryInitialInterval
	b.Multiplier = 2
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(max(c.opts.RetryCount, 0))), ctx)

	err = backoff.RetryNotify(op, policy, func(err error, wait time.Duration) {
		c.log.Warn("retrying authority validation", "err", err, "wait", wait)
	})
	return companyID, err
}
