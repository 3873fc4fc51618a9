package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"trading-desk-go/internal/config"
)

// setupTestServer creates a new test server and a Client configured to use it.
func setupTestServer(handler http.Handler) (*Client, *httptest.Server) {
	server := httptest.NewServer(handler)

	c := &Client{
		client:  resty.New().SetBaseURL(server.URL),
		logger:  zap.NewNop(),
		limiter: rate.NewLimiter(rate.Inf, 1), // Allow all requests in tests
		backoff: func(int) time.Duration { return time.Millisecond },
	}
	return c, server
}

func TestLatestRate(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/latest", r.URL.Path)
			assert.Equal(t, "EUR", r.URL.Query().Get("from"))
			assert.Equal(t, "USD", r.URL.Query().Get("to"))
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"amount":1.0,"base":"EUR","date":"2026-10-14","rates":{"USD":1.0812}}`))
		})

		c, server := setupTestServer(handler)
		defer server.Close()

		r, err := c.LatestRate(context.Background(), "EUR", "USD")
		require.NoError(t, err)
		assert.True(t, r.Equal(decimal.RequireFromString("1.0812")))
	})

	t.Run("MissingQuote", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"amount":1.0,"base":"EUR","rates":{}}`))
		})

		c, server := setupTestServer(handler)
		defer server.Close()

		_, err := c.LatestRate(context.Background(), "EUR", "USD")
		assert.ErrorContains(t, err, "no USD rate")
	})

	t.Run("RetriesServerErrors", func(t *testing.T) {
		var calls int32
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if atomic.AddInt32(&calls, 1) < 3 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"base":"USD","rates":{"JPY":157.5}}`))
		})

		c, server := setupTestServer(handler)
		defer server.Close()

		r, err := c.LatestRate(context.Background(), "USD", "JPY")
		require.NoError(t, err)
		assert.True(t, r.Equal(decimal.RequireFromString("157.5")))
		assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	})

	t.Run("GivesUpAfterRetries", func(t *testing.T) {
		var calls int32
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			w.WriteHeader(http.StatusServiceUnavailable)
		})

		c, server := setupTestServer(handler)
		defer server.Close()

		_, err := c.LatestRate(context.Background(), "EUR", "USD")
		assert.ErrorContains(t, err, "after 3 attempts")
		assert.Equal(t, int32(maxRetries), atomic.LoadInt32(&calls))
	})

	t.Run("ClientErrorIsNotRetried", func(t *testing.T) {
		var calls int32
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"message":"not found"}`))
		})

		c, server := setupTestServer(handler)
		defer server.Close()

		_, err := c.LatestRate(context.Background(), "EUR", "XXX")
		assert.ErrorContains(t, err, "404")
		assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	})
}

func TestNewClient(t *testing.T) {
	cfg := &config.Feed{BaseURL: "https://example.test", Timeout: time.Second, RateLimit: 5, RateLimitBurst: 1}
	c := NewClient(cfg, zap.NewNop())
	require.NotNil(t, c)
	assert.Equal(t, "https://example.test", c.client.BaseURL)
	assert.Equal(t, rate.Limit(5), c.limiter.Limit())
}

func TestSplitSymbol(t *testing.T) {
	base, quote, err := SplitSymbol("EUR/USD")
	require.NoError(t, err)
	assert.Equal(t, "EUR", base)
	assert.Equal(t, "USD", quote)

	for _, bad := range []string{"EURUSD", "EU/USD", "", "EUR/"} {
		_, _, err := SplitSymbol(bad)
		assert.Error(t, err, bad)
	}
}
