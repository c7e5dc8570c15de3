// Package marketdata provides OHLCV series retrieval from the Yahoo Finance
// chart API.
package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/quantrail/trendscan/internal/models"
)

// Sentinel results for a fetch: a series, no usable series, or a transient
// failure (anything else). Callers treat the last two differently from an
// examined no-crossover result.
var (
	ErrInsufficientData    = errors.New("insufficient market data")
	ErrUnsupportedInterval = errors.New("unsupported interval")
)

// Provider retrieves a time-ordered OHLCV series for one symbol and
// timeframe. minBars is the shortest series the caller can use; shorter
// responses yield ErrInsufficientData.
type Provider interface {
	Fetch(ctx context.Context, symbol string, tf models.Timeframe, minBars int) (models.Series, error)
}

// supportedIntervals is the set of bar intervals the chart API accepts.
var supportedIntervals = map[models.Timeframe]bool{
	"1m": true, "2m": true, "5m": true, "15m": true,
	"30m": true, "60m": true, "1h": true, "1d": true,
}

// ClientConfig holds HTTP client tuning parameters.
type ClientConfig struct {
	MaxRetries          int
	RetryDelayBase      time.Duration
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	IdleConnTimeout     time.Duration
}

// Client fetches candle series from the Yahoo Finance v8 chart endpoint.
type Client struct {
	baseURL        string
	httpClient     *http.Client
	maxRetries     int
	retryDelayBase time.Duration
}

// NewClient creates a chart API client.
func NewClient(baseURL string, timeout time.Duration, cfg ClientConfig) *Client {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelayBase <= 0 {
		cfg.RetryDelayBase = time.Second
	}
	transport := &http.Transport{
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		maxRetries:     cfg.MaxRetries,
		retryDelayBase: cfg.RetryDelayBase,
	}
}

// chartResponse mirrors the subset of the v8 chart payload the scanner
// consumes. Quote arrays may contain nulls for halted bars.
type chartResponse struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// Fetch downloads the candle series for symbol at tf. Short intraday
// timeframes use a 5-day range, longer ones 10 days.
func (c *Client) Fetch(ctx context.Context, symbol string, tf models.Timeframe, minBars int) (models.Series, error) {
	if !supportedIntervals[tf] {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedInterval, tf)
	}

	u, err := url.Parse(fmt.Sprintf("%s/v8/finance/chart/%s", c.baseURL, url.PathEscape(symbol)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}
	q := u.Query()
	q.Set("interval", string(tf))
	q.Set("range", rangeFor(tf))
	u.RawQuery = q.Encode()

	body, err := c.doRequest(ctx, u.String())
	if err != nil {
		return nil, err
	}

	var parsed chartResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode chart response: %w", err)
	}
	if parsed.Chart.Error != nil {
		return nil, fmt.Errorf("chart API error for %s: %s (%s)",
			symbol, parsed.Chart.Error.Description, parsed.Chart.Error.Code)
	}
	if len(parsed.Chart.Result) == 0 || len(parsed.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, fmt.Errorf("%w: empty result for %s %s", ErrInsufficientData, symbol, tf)
	}

	result := parsed.Chart.Result[0]
	quote := result.Indicators.Quote[0]

	series := make(models.Series, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		if i >= len(quote.Close) || quote.Close[i] == nil {
			continue // halted or incomplete bar
		}
		series = append(series, models.Candle{
			Timestamp: time.Unix(ts, 0).UTC(),
			Open:      deref(at(quote.Open, i)),
			High:      deref(at(quote.High, i)),
			Low:       deref(at(quote.Low, i)),
			Close:     *quote.Close[i],
			Volume:    deref(at(quote.Volume, i)),
		})
	}

	if len(series) < minBars {
		return nil, fmt.Errorf("%w: %d bars for %s %s, need %d",
			ErrInsufficientData, len(series), symbol, tf, minBars)
	}
	return series, nil
}

// doRequest performs a GET with linear-backoff retry on transport errors and
// retryable status codes.
func (c *Client) doRequest(ctx context.Context, rawURL string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.retryDelayBase * time.Duration(attempt)):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("User-Agent", "trendscan/1.0")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			continue
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			return body, nil
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			lastErr = fmt.Errorf("chart API returned status %d", resp.StatusCode)
		default:
			return nil, fmt.Errorf("chart API returned status %d", resp.StatusCode)
		}
	}
	return nil, fmt.Errorf("request failed after %d attempts: %w", c.maxRetries, lastErr)
}

func rangeFor(tf models.Timeframe) string {
	switch tf {
	case "1m", "2m", "5m", "15m":
		return "5d"
	default:
		return "10d"
	}
}

func at(xs []*float64, i int) *float64 {
	if i < len(xs) {
		return xs[i]
	}
	return nil
}

func deref(x *float64) float64 {
	if x == nil {
		return 0
	}
	return *x
}
