// Package oracle contains HTTP clients for the external collaborators of the
// payment core: the currency-rate lookup and the settlement network. Each call
// is a single synchronous request with no retry or backoff; retries belong to
// the HTTP-layer caller, not here.
package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/nostrhub/relaypay/pkg/relaypay"
)

const defaultHTTPTimeout = 10 * time.Second

// RateCache is an optional read-through cache in front of the rate
// endpoint. Implemented by the Redis adapter in this package.
type RateCache interface {
	Get(ctx context.Context) (float64, bool)
	Set(ctx context.Context, rate float64)
}

// RateClient fetches the current conversion rate (currency units per
// settlement unit) from an external price service.
type RateClient struct {
	httpClient *http.Client
	url        string
	cache      RateCache
}

// RateClientConfig holds rate client configuration
type RateClientConfig struct {
	// URL is the full rate endpoint, expected to answer
	// {"rate": <number>}
	URL string

	// HTTPClient overrides the default client (10s timeout)
	HTTPClient *http.Client

	// Cache is an optional read-through cache; nil disables caching
	Cache RateCache
}

// NewRateClient creates a new rate oracle client
func NewRateClient(config RateClientConfig) (*RateClient, error) {
	if config.URL == "" {
		return nil, fmt.Errorf("rate endpoint URL is required")
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}

	return &RateClient{
		httpClient: httpClient,
		url:        config.URL,
		cache:      config.Cache,
	}, nil
}

// CurrentRate implements relaypay.RateSource
func (c *RateClient) CurrentRate(ctx context.Context) (float64, error) {
	if c.cache != nil {
		if rate, ok := c.cache.Get(ctx); ok {
			return rate, nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to build rate request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", relaypay.ErrRateUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("%w: unexpected status %d", relaypay.ErrRateUnavailable, resp.StatusCode)
	}

	// json.Number tolerates both quoted and bare numbers; anything else
	// is a malformed payload.
	var body struct {
		Rate json.Number `json:"rate"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("%w: malformed payload: %v", relaypay.ErrRateUnavailable, err)
	}
	if body.Rate == "" {
		return 0, fmt.Errorf("%w: rate missing from payload", relaypay.ErrRateUnavailable)
	}

	rate, err := body.Rate.Float64()
	if err != nil {
		return 0, fmt.Errorf("%w: non-numeric rate %q", relaypay.ErrRateUnavailable, body.Rate)
	}
	if rate <= 0 {
		return 0, fmt.Errorf("%w: non-positive rate %v", relaypay.ErrRateUnavailable, rate)
	}

	if c.cache != nil {
		c.cache.Set(ctx, rate)
	}
	return rate, nil
}
