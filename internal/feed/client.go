package feed

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"trading-desk-go/internal/config"
)

const maxRetries = 3

// RateSource returns the latest reference rate for a currency pair.
type RateSource interface {
	LatestRate(ctx context.Context, base, quote string) (decimal.Decimal, error)
}

// Client fetches reference FX rates from a Frankfurter-compatible API.
// It implements the RateSource interface.
type Client struct {
	client  *resty.Client
	logger  *zap.Logger
	limiter *rate.Limiter
	backoff func(attempt int) time.Duration
}

// ensure Client implements the interface
var _ RateSource = (*Client)(nil)

// NewClient creates a new reference-rate client.
func NewClient(cfg *config.Feed, logger *zap.Logger) *Client {
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json")

	return &Client{
		client:  client,
		logger:  logger.Named("feed"),
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimitBurst),
		backoff: exponentialBackoff,
	}
}

// exponentialBackoff waits 1s, 2s, 4s.
func exponentialBackoff(attempt int) time.Duration {
	return time.Duration(math.Pow(2, float64(attempt))) * time.Second
}

// latestResponse is the body of GET /latest.
type latestResponse struct {
	Amount float64            `json:"amount"`
	Base   string             `json:"base"`
	Date   string             `json:"date"`
	Rates  map[string]float64 `json:"rates"`
}

// LatestRate fetches the latest rate of one unit of base in quote.
func (c *Client) LatestRate(ctx context.Context, base, quote string) (decimal.Decimal, error) {
	req := c.client.R().
		SetContext(ctx).
		SetQueryParam("from", base).
		SetQueryParam("to", quote).
		SetResult(&latestResponse{})

	resp, err := c.doRequest(ctx, http.MethodGet, "/latest", req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get rate %s/%s: %w", base, quote, err)
	}

	result := resp.Result().(*latestResponse)
	r, ok := result.Rates[quote]
	if !ok || r <= 0 {
		return decimal.Zero, fmt.Errorf("no %s rate in response for base %s", quote, base)
	}
	return decimal.NewFromFloat(r), nil
}

// doRequest handles the actual request execution with rate limiting and retry logic.
func (c *Client) doRequest(ctx context.Context, method, url string, req *resty.Request) (*resty.Response, error) {
	var resp *resty.Response
	var err error

	for i := 0; i < maxRetries; i++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait failed: %w", err)
		}

		c.logger.Debug("Executing request", zap.String("method", method), zap.String("url", c.client.BaseURL+url))
		resp, err = req.Execute(method, url)

		if err == nil && !resp.IsError() {
			return resp, nil
		}

		shouldRetry := false
		var retryAfter time.Duration

		if resp != nil && resp.RawResponse != nil {
			statusCode := resp.StatusCode()
			if statusCode == http.StatusTooManyRequests {
				shouldRetry = true
				if seconds, err := strconv.Atoi(resp.Header().Get("Retry-After")); err == nil {
					retryAfter = time.Duration(seconds) * time.Second
				}
			} else if statusCode >= 500 {
				shouldRetry = true
			}
			if err == nil {
				err = fmt.Errorf("status %s: %s", resp.Status(), strings.TrimSpace(resp.String()))
			}
		} else {
			shouldRetry = !errors.Is(err, context.Canceled)
		}

		if !shouldRetry {
			return nil, fmt.Errorf("request failed: %w", err)
		}

		if retryAfter == 0 {
			retryAfter = c.backoff(i)
		}

		c.logger.Warn("Request failed, retrying...",
			zap.Int("attempt", i+1),
			zap.Duration("retry_after", retryAfter),
			zap.Error(err),
		)

		select {
		case <-time.After(retryAfter):
			continue
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("request failed after %d attempts: %w", maxRetries, err)
}

// SplitSymbol splits "EUR/USD" into its base and quote currencies.
func SplitSymbol(symbol string) (base, quote string, err error) {
	base, quote, ok := strings.Cut(symbol, "/")
	if !ok || len(base) != 3 || len(quote) != 3 {
		return "", "", fmt.Errorf("symbol %q is not of the form AAA/BBB", symbol)
	}
	return base, quote, nil
}
