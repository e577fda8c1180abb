package marketdata

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/jyron/tradershub/internal/config"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const defaultBaseURL = "https://data.alpaca.markets"

// BarSource is the price-oracle surface consumed by the pricing cache:
// daily closing bars for a set of symbols on a single calendar day.
type BarSource interface {
	DailyCloses(ctx context.Context, symbols []string, day time.Time) (map[string]float64, error)
}

// Client is a rate-limited client for the daily-bars market data API.
// It implements the BarSource interface.
type Client struct {
	client    *resty.Client
	apiKey    string
	secretKey string
	logger    *zap.Logger
	limiter   *rate.Limiter
}

// ensure Client implements the interface
var _ BarSource = (*Client)(nil)

// NewClient creates a new market data API client. The provider's published
// ceiling (calls per minute) is converted into a limiter that spaces calls
// evenly, so every external call is followed by the mandatory delay.
func NewClient(cfg config.MarketData, logger *zap.Logger) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	client := resty.New().SetBaseURL(baseURL)

	callsPerMinute := cfg.CallsPerMinute
	if callsPerMinute <= 0 {
		callsPerMinute = 200
	}
	// Burst of 1 keeps the spacing fixed at 60/N seconds between calls.
	limiter := rate.NewLimiter(rate.Limit(callsPerMinute/60.0), 1)

	return &Client{
		client:    client,
		apiKey:    cfg.ApiKey,
		secretKey: cfg.SecretKey,
		logger:    logger,
		limiter:   limiter,
	}
}

// barsResponse represents the response from the /v2/stocks/bars endpoint.
type barsResponse struct {
	Bars map[string][]bar `json:"bars"`
}

type bar struct {
	Timestamp time.Time `json:"t"`
	Open      float64   `json:"o"`
	High      float64   `json:"h"`
	Low       float64   `json:"l"`
	Close     float64   `json:"c"`
	Volume    uint64    `json:"v"`
}

// doRequest handles the actual request execution with rate limiting and retry logic.
func (c *Client) doRequest(ctx context.Context, method, url string, req *resty.Request) (*resty.Response, error) {
	var resp *resty.Response
	var err error
	const maxRetries = 3

	for i := 0; i < maxRetries; i++ {
		// Wait for the rate limiter
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait failed: %w", err)
		}

		c.logger.Debug("Executing request", zap.String("method", method), zap.String("url", c.client.BaseURL+url))
		resp, err = req.Execute(method, url)

		if err == nil && !resp.IsError() {
			return resp, nil // Success
		}

		// Analyze error and decide whether to retry
		shouldRetry := false
		var retryAfter time.Duration

		if resp != nil {
			statusCode := resp.StatusCode()
			if statusCode == http.StatusTooManyRequests {
				shouldRetry = true
				retryAfterHeader := resp.Header().Get("Retry-After")
				if seconds, err := strconv.Atoi(retryAfterHeader); err == nil {
					retryAfter = time.Duration(seconds) * time.Second
				}
			} else if statusCode >= 500 { // Server errors
				shouldRetry = true
			}
		} else { // Network or other client-side errors
			shouldRetry = true
		}

		if !shouldRetry {
			return nil, fmt.Errorf("request failed with status %s: %s", resp.Status(), resp.String())
		}

		if retryAfter == 0 {
			// Exponential backoff: 1s, 2s, 4s
			retryAfter = time.Duration(math.Pow(2, float64(i))) * time.Second
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

// DailyCloses fetches the daily closing price for every symbol that traded on
// the given calendar day, in one batched call. Symbols with no bar that day
// are simply absent from the result.
func (c *Client) DailyCloses(ctx context.Context, symbols []string, day time.Time) (map[string]float64, error) {
	if len(symbols) == 0 {
		return map[string]float64{}, nil
	}

	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	end := time.Date(day.Year(), day.Month(), day.Day(), 23, 59, 59, 0, day.Location())

	var result barsResponse
	req := c.client.R().
		SetHeader("APCA-API-KEY-ID", c.apiKey).
		SetHeader("APCA-API-SECRET-KEY", c.secretKey).
		SetQueryParams(map[string]string{
			"symbols":   strings.Join(symbols, ","),
			"timeframe": "1Day",
			"start":     start.Format(time.RFC3339),
			"end":       end.Format(time.RFC3339),
			"feed":      "iex",
		}).
		SetResult(&result)

	resp, err := c.doRequest(ctx, "GET", "/v2/stocks/bars", req)
	if err != nil {
		return nil, fmt.Errorf("failed to get daily bars for %s: %w", day.Format("2006-01-02"), err)
	}

	bars := resp.Result().(*barsResponse)
	closes := make(map[string]float64, len(bars.Bars))
	for symbol, symbolBars := range bars.Bars {
		if len(symbolBars) > 0 {
			closes[symbol] = symbolBars[0].Close
		}
	}

	return closes, nil
}
