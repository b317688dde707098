// Package coinmarketcap is a minimal CoinMarketCap Pro API client for the
// latest and historical quotes of one token, looked up by contract address.
package coinmarketcap

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/alim08/market_pulse/pkg/logger"
	"github.com/alim08/market_pulse/pkg/metrics"
	"github.com/alim08/market_pulse/pkg/models"
	"go.uber.org/zap"
)

const (
	DefaultBaseURL = "https://pro-api.coinmarketcap.com"

	latestPath     = "/v2/cryptocurrency/quotes/latest"
	historicalPath = "/v2/cryptocurrency/quotes/historical"

	maxBodyBytes = 4 << 20
)

var (
	ErrUpstreamStatus   = errors.New("upstream returned non-success status")
	ErrEmptyPayload     = errors.New("upstream returned no data")
	ErrMalformedPayload = errors.New("upstream payload malformed")
)

// Config holds the client settings. APIKey must come from configuration.
type Config struct {
	BaseURL         string
	APIKey          string
	ContractAddress string
	Convert         string
	Timeout         time.Duration
}

// Client talks to the CoinMarketCap Pro API.
type Client struct {
	httpClient *http.Client
	cfg        Config
}

// NewClient builds a client whose every request is bounded by cfg.Timeout.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Convert == "" {
		cfg.Convert = "USD"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     30 * time.Second,
			},
		},
		cfg: cfg,
	}
}

// LatestQuote fetches the current price, 24h volume and market cap.
func (c *Client) LatestQuote(ctx context.Context) (models.PriceSnapshot, error) {
	params := url.Values{}
	params.Set("address", c.cfg.ContractAddress)
	params.Set("convert", c.cfg.Convert)

	var snap models.PriceSnapshot
	data, err := c.get(ctx, "latest", latestPath, params)
	if err != nil {
		return snap, err
	}

	raw, err := firstEntry(data)
	if err != nil {
		return snap, err
	}
	var entry latestEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return snap, fmt.Errorf("%w: decode latest entry: %v", ErrMalformedPayload, err)
	}

	q := entry.Quote[c.cfg.Convert]
	if q == nil || q.Price == nil || q.Volume24h == nil {
		return snap, fmt.Errorf("%w: missing quote.%s price or volume", ErrMalformedPayload, c.cfg.Convert)
	}

	snap = models.PriceSnapshot{
		Price:     *q.Price,
		Volume:    *q.Volume24h,
		MarketCap: q.MarketCap,
		Source:    models.SourceProvider,
	}
	if err := snap.Validate(); err != nil {
		return models.PriceSnapshot{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return snap, nil
}

// HistoricalQuotes fetches daily closes for the days ending at end. The
// returned quotes are in the order the provider sent them.
func (c *Client) HistoricalQuotes(ctx context.Context, days int, end time.Time) (models.HistoricalSeries, error) {
	params := url.Values{}
	params.Set("address", c.cfg.ContractAddress)
	params.Set("convert", c.cfg.Convert)
	params.Set("interval", "daily")
	params.Set("count", strconv.Itoa(days))
	params.Set("time_end", strconv.FormatInt(end.Unix(), 10))

	var series models.HistoricalSeries
	data, err := c.get(ctx, "historical", historicalPath, params)
	if err != nil {
		return series, err
	}

	raw, err := firstEntry(data)
	if err != nil {
		return series, err
	}
	var entry historicalEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return series, fmt.Errorf("%w: decode historical entry: %v", ErrMalformedPayload, err)
	}
	if len(entry.Quotes) == 0 {
		return series, fmt.Errorf("%w: no historical quotes", ErrEmptyPayload)
	}

	quotes := make([]models.Quote, 0, len(entry.Quotes))
	for i, p := range entry.Quotes {
		q := p.Quote[c.cfg.Convert]
		if q == nil || q.Price == nil {
			return series, fmt.Errorf("%w: quote %d missing %s price", ErrMalformedPayload, i, c.cfg.Convert)
		}
		ts, err := parseTimestamp(p.Timestamp)
		if err != nil {
			return series, fmt.Errorf("%w: quote %d: %v", ErrMalformedPayload, i, err)
		}
		quotes = append(quotes, models.Quote{Date: ts, Close: *q.Price})
	}

	series = models.HistoricalSeries{Quotes: quotes, Source: models.SourceProvider}
	if err := series.Validate(); err != nil {
		return models.HistoricalSeries{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return series, nil
}

// get performs one GET and returns the envelope's data member.
func (c *Client) get(ctx context.Context, endpoint, path string, params url.Values) (data json.RawMessage, err error) {
	start := time.Now()
	defer func() {
		metrics.UpstreamLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
		metrics.UpstreamRequests.WithLabelValues(endpoint, metrics.Status(err)).Inc()
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", endpoint, err)
	}
	req.Header.Set("X-CMC_PRO_API_KEY", c.cfg.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s quotes: %w", endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", endpoint, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logger.Log.Debug("upstream non-2xx",
			zap.String("endpoint", endpoint),
			zap.Int("code", resp.StatusCode),
			zap.ByteString("body", truncate(body, 256)))
		return nil, fmt.Errorf("%w: %s returned %d", ErrUpstreamStatus, endpoint, resp.StatusCode)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: decode %s envelope: %v", ErrMalformedPayload, endpoint, err)
	}
	if env.Status.ErrorCode != 0 {
		msg := ""
		if env.Status.ErrorMessage != nil {
			msg = *env.Status.ErrorMessage
		}
		return nil, fmt.Errorf("%w: error_code %d: %s", ErrUpstreamStatus, env.Status.ErrorCode, msg)
	}
	return env.Data, nil
}

// firstEntry picks the first asset out of a data member that may be an
// object keyed by id or an array, where each value may itself be an array.
func firstEntry(data json.RawMessage) (json.RawMessage, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, ErrEmptyPayload
	}

	switch data[0] {
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(data, &items); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		if len(items) == 0 {
			return nil, ErrEmptyPayload
		}
		return firstEntry(items[0])
	case '{':
		var byID map[string]json.RawMessage
		if err := json.Unmarshal(data, &byID); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		if len(byID) == 0 {
			return nil, ErrEmptyPayload
		}
		// an object with a "quote" or "quotes" member is already an entry
		if _, ok := byID["quote"]; ok {
			return data, nil
		}
		if _, ok := byID["quotes"]; ok {
			return data, nil
		}
		keys := make([]string, 0, len(byID))
		for k := range byID {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return firstEntry(byID[keys[0]])
	default:
		return nil, fmt.Errorf("%w: unexpected data member", ErrMalformedPayload)
	}
}

func parseTimestamp(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, errors.New("missing timestamp")
	}
	ts, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("timestamp parse error: %w", err)
	}
	return ts.UTC(), nil
}

func truncate(b []byte, n int) []byte {
	if len(b) > n {
		return b[:n]
	}
	return b
}
