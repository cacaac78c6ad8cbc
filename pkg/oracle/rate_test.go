package oracle

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nostrhub/relaypay/pkg/relaypay"
)

func rateServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRateClient_CurrentRate(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		want    float64
		wantErr bool
	}{
		{name: "bare number", status: 200, body: `{"rate": 45000.5}`, want: 45000.5},
		{name: "quoted number", status: 200, body: `{"rate": "45000"}`, want: 45000},
		{name: "missing rate", status: 200, body: `{}`, wantErr: true},
		{name: "non-numeric rate", status: 200, body: `{"rate": "abc"}`, wantErr: true},
		{name: "zero rate", status: 200, body: `{"rate": 0}`, wantErr: true},
		{name: "negative rate", status: 200, body: `{"rate": -5}`, wantErr: true},
		{name: "not json", status: 200, body: `oops`, wantErr: true},
		{name: "server error", status: 500, body: `{}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := rateServer(t, tt.status, tt.body)
			client, err := NewRateClient(RateClientConfig{URL: srv.URL})
			require.NoError(t, err)

			rate, err := client.CurrentRate(context.Background())
			if tt.wantErr {
				assert.ErrorIs(t, err, relaypay.ErrRateUnavailable)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, rate)
		})
	}
}

// mapCache is a trivial in-process RateCache for tests
type mapCache struct {
	mu   sync.Mutex
	rate float64
	set  bool
}

func (c *mapCache) Get(ctx context.Context) (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rate, c.set
}

func (c *mapCache) Set(ctx context.Context, rate float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rate, c.set = rate, true
}

func TestRateClient_CacheShortCircuits(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		_, _ = w.Write([]byte(`{"rate": 45000}`))
	}))
	t.Cleanup(srv.Close)

	cache := &mapCache{}
	client, err := NewRateClient(RateClientConfig{URL: srv.URL, Cache: cache})
	require.NoError(t, err)

	rate, err := client.CurrentRate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, float64(45000), rate)
	assert.Equal(t, 1, hits)

	// Second lookup is served from the cache
	rate, err = client.CurrentRate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, float64(45000), rate)
	assert.Equal(t, 1, hits)
}

func TestNewRateClient_RequiresURL(t *testing.T) {
	_, err := NewRateClient(RateClientConfig{})
	assert.Error(t, err)
}
