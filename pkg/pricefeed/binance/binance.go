package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"investsim-api/pkg/pricefeed"
)

const (
	defaultBaseURL          = "https://api.binance.com/api/v3"
	defaultHTTPTimeout      = 10 * time.Second
	defaultMaxRetries       = 3
	defaultRetryBackoffBase = 150 * time.Millisecond

	// Binance serves at most 1000 candles per klines call; longer ranges
	// are paginated.
	maxCandlesPerRequest = 1000
)

// Provider fetches crypto quotes and daily candles from the Binance
// public REST API. Symbols are Binance pairs, e.g. BTCUSDT.
type Provider struct {
	name       string
	baseURL    string
	httpClient *http.Client
	maxRetries int
}

// Option configures a new Provider.
type Option func(*Provider)

// WithHTTPClient injects a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(p *Provider) {
		if hc != nil {
			p.httpClient = hc
		}
	}
}

// WithBaseURL overrides the default API base URL.
func WithBaseURL(u string) Option {
	return func(p *Provider) {
		if u != "" {
			p.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithMaxRetries adjusts the retry budget.
func WithMaxRetries(max int) Option {
	return func(p *Provider) {
		if max >= 0 {
			p.maxRetries = max
		}
	}
}

// NewProvider constructs a Binance provider.
func NewProvider(opts ...Option) *Provider {
	p := &Provider{
		name:       "binance",
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
		maxRetries: defaultMaxRetries,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func init() {
	pricefeed.RegisterProvider("binance", func(name string, cfg *pricefeed.ProviderConfig) (pricefeed.Provider, error) {
		opts := []Option{}
		if cfg.BaseURL != "" {
			opts = append(opts, WithBaseURL(cfg.BaseURL))
		}
		if cfg.HTTPTimeout > 0 {
			opts = append(opts, WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout}))
		}
		if cfg.MaxRetries > 0 {
			opts = append(opts, WithMaxRetries(cfg.MaxRetries))
		}
		p := NewProvider(opts...)
		p.name = name
		return p, nil
	})
}

// Name implements pricefeed.Provider.
func (p *Provider) Name() string { return p.name }

type ticker24h struct {
	Symbol             string `json:"symbol"`
	LastPrice          string `json:"lastPrice"`
	PriceChangePercent string `json:"priceChangePercent"`
	Volume             string `json:"volume"`
}

// FetchLatest loads the full 24h ticker list once and filters it down to
// the requested symbol set. One malformed ticker entry drops only that
// symbol from the result.
func (p *Provider) FetchLatest(ctx context.Context, symbols []string) (map[string]pricefeed.Quote, error) {
	results := make(map[string]pricefeed.Quote, len(symbols))
	if len(symbols) == 0 {
		return results, nil
	}

	var tickers []ticker24h
	if err := p.doGet(ctx, "/ticker/24hr", nil, &tickers); err != nil {
		return nil, err
	}

	wanted := make(map[string]string, len(symbols))
	for _, s := range symbols {
		wanted[strings.ToUpper(strings.TrimSpace(s))] = s
	}

	for _, t := range tickers {
		requested, ok := wanted[strings.ToUpper(t.Symbol)]
		if !ok {
			continue
		}
		price, err := strconv.ParseFloat(t.LastPrice, 64)
		if err != nil || price <= 0 {
			continue
		}
		quote := pricefeed.Quote{Price: price}
		if change, err := strconv.ParseFloat(t.PriceChangePercent, 64); err == nil {
			quote.Change24h = &change
		}
		if vol, err := strconv.ParseFloat(t.Volume, 64); err == nil {
			quote.Volume24h = &vol
		}
		results[requested] = quote
	}
	return results, nil
}

// FetchHistory returns daily candles for [from, to], paginating in
// 1000-candle chunks.
func (p *Provider) FetchHistory(ctx context.Context, symbol string, from, to time.Time) ([]pricefeed.Candle, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, fmt.Errorf("%w: empty symbol", pricefeed.ErrParse)
	}

	candles := make([]pricefeed.Candle, 0, 365)
	start := from.UnixMilli()
	end := to.UnixMilli()

	for start < end {
		query := url.Values{}
		query.Set("symbol", symbol)
		query.Set("interval", "1d")
		query.Set("startTime", strconv.FormatInt(start, 10))
		query.Set("endTime", strconv.FormatInt(end, 10))
		query.Set("limit", strconv.Itoa(maxCandlesPerRequest))

		var raw [][]json.RawMessage
		if err := p.doGet(ctx, "/klines", query, &raw); err != nil {
			return nil, err
		}
		if len(raw) == 0 {
			break
		}

		var lastOpenTime int64
		for _, k := range raw {
			candle, openTime, ok := parseKline(k)
			if !ok {
				continue
			}
			lastOpenTime = openTime
			candles = append(candles, candle)
		}
		if lastOpenTime <= start {
			break
		}
		// Next page starts one day after the last candle received.
		start = lastOpenTime + int64(24*time.Hour/time.Millisecond)
		if len(raw) < maxCandlesPerRequest {
			break
		}
	}

	sort.Slice(candles, func(i, j int) bool { return candles[i].Date.Before(candles[j].Date) })
	return candles, nil
}

// parseKline decodes one klines array entry:
// [openTime, open, high, low, close, volume, ...].
func parseKline(k []json.RawMessage) (pricefeed.Candle, int64, bool) {
	if len(k) < 6 {
		return pricefeed.Candle{}, 0, false
	}
	var openTime int64
	if err := json.Unmarshal(k[0], &openTime); err != nil {
		return pricefeed.Candle{}, 0, false
	}
	values := make([]float64, 0, 5)
	for _, rawField := range k[1:6] {
		var s string
		if err := json.Unmarshal(rawField, &s); err != nil {
			return pricefeed.Candle{}, 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return pricefeed.Candle{}, 0, false
		}
		values = append(values, f)
	}
	return pricefeed.Candle{
		Date:   time.UnixMilli(openTime).UTC().Truncate(24 * time.Hour),
		Open:   values[0],
		High:   values[1],
		Low:    values[2],
		Close:  values[3],
		Volume: values[4],
	}, openTime, true
}

func (p *Provider) doGet(ctx context.Context, path string, query url.Values, result interface{}) error {
	endpoint := p.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var lastErr error
	backoff := defaultRetryBackoffBase
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return fmt.Errorf("binance: build request: %w", err)
		}

		resp, err := p.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("%w: %v", pricefeed.ErrUnavailable, ctx.Err())
			}
			lastErr = fmt.Errorf("%w: %v", pricefeed.ErrUnavailable, err)
		} else {
			body, readErr := io.ReadAll(resp.Body)
			resp.Body.Close()
			switch {
			case readErr != nil:
				lastErr = fmt.Errorf("%w: read response: %v", pricefeed.ErrUnavailable, readErr)
			case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
				return fmt.Errorf("%w: http status %d", pricefeed.ErrAuth, resp.StatusCode)
			case resp.StatusCode < 200 || resp.StatusCode >= 300:
				lastErr = fmt.Errorf("%w: http status %d", pricefeed.ErrUnavailable, resp.StatusCode)
			default:
				if result != nil {
					if err := json.Unmarshal(body, result); err != nil {
						return fmt.Errorf("%w: decode response: %v", pricefeed.ErrParse, err)
					}
				}
				return nil
			}
		}

		if attempt < p.maxRetries {
			select {
			case <-ctx.Done():
				return fmt.Errorf("%w: %v", pricefeed.ErrUnavailable, ctx.Err())
			case <-time.After(backoff):
				backoff *= 2
			}
		}
	}
	return lastErr
}
