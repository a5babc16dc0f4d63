package finnhub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"investsim-api/pkg/pricefeed"
)

const (
	defaultBaseURL     = "https://finnhub.io/api/v1"
	defaultHTTPTimeout = 10 * time.Second

	// Finnhub has no batch quote endpoint; quotes are fetched per symbol
	// with a small concurrent fan-out. The free tier allows 60 calls/min.
	quoteConcurrency = 4
)

// Provider fetches stock and ETF quotes from the Finnhub REST API.
// Authentication is a token query parameter.
type Provider struct {
	name       string
	baseURL    string
	apiKey     string
	httpClient *http.Client
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

// NewProvider constructs a Finnhub provider.
func NewProvider(apiKey string, opts ...Option) *Provider {
	p := &Provider{
		name:       "finnhub",
		baseURL:    defaultBaseURL,
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func init() {
	pricefeed.RegisterProvider("finnhub", func(name string, cfg *pricefeed.ProviderConfig) (pricefeed.Provider, error) {
		opts := []Option{}
		if cfg.BaseURL != "" {
			opts = append(opts, WithBaseURL(cfg.BaseURL))
		}
		if cfg.HTTPTimeout > 0 {
			opts = append(opts, WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout}))
		}
		p := NewProvider(cfg.APIKey, opts...)
		p.name = name
		return p, nil
	})
}

// Name implements pricefeed.Provider.
func (p *Provider) Name() string { return p.name }

// quoteResponse mirrors Finnhub's /quote payload: c=current, dp=percent
// change, pc=previous close. A zero current price means "no data".
type quoteResponse struct {
	Current       float64 `json:"c"`
	PercentChange float64 `json:"dp"`
	PreviousClose float64 `json:"pc"`
}

// FetchLatest fans out one /quote call per symbol. A failed or empty quote
// drops that symbol only.
func (p *Provider) FetchLatest(ctx context.Context, symbols []string) (map[string]pricefeed.Quote, error) {
	results := make(map[string]pricefeed.Quote, len(symbols))
	if len(symbols) == 0 {
		return results, nil
	}
	if p.apiKey == "" {
		return nil, fmt.Errorf("%w: finnhub api key not configured", pricefeed.ErrAuth)
	}

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, quoteConcurrency)
	)
	authErr := make(chan error, 1)

	for _, symbol := range symbols {
		symbol := strings.ToUpper(strings.TrimSpace(symbol))
		if symbol == "" {
			continue
		}
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			var quote quoteResponse
			query := url.Values{}
			query.Set("symbol", symbol)
			if err := p.doGet(ctx, "/quote", query, &quote); err != nil {
				if errors.Is(err, pricefeed.ErrAuth) {
					select {
					case authErr <- err:
					default:
					}
				}
				return
			}
			if quote.Current <= 0 {
				return
			}
			change := quote.PercentChange
			mu.Lock()
			results[symbol] = pricefeed.Quote{Price: quote.Current, Change24h: &change}
			mu.Unlock()
		}()
	}
	wg.Wait()

	// A rejected key fails the whole call; partial transport failures do not.
	select {
	case err := <-authErr:
		return nil, err
	default:
	}
	return results, nil
}

// candleResponse mirrors Finnhub's /stock/candle payload. Status "ok" is
// required; anything else means no data for the range.
type candleResponse struct {
	Status     string    `json:"s"`
	Timestamps []int64   `json:"t"`
	Opens      []float64 `json:"o"`
	Highs      []float64 `json:"h"`
	Lows       []float64 `json:"l"`
	Closes     []float64 `json:"c"`
	Volumes    []float64 `json:"v"`
}

// FetchHistory returns daily candles from the /stock/candle endpoint.
func (p *Provider) FetchHistory(ctx context.Context, symbol string, from, to time.Time) ([]pricefeed.Candle, error) {
	if p.apiKey == "" {
		return nil, fmt.Errorf("%w: finnhub api key not configured", pricefeed.ErrAuth)
	}
	symbol = strings.ToUpper(strings.TrimSpace(symbol))

	query := url.Values{}
	query.Set("symbol", symbol)
	query.Set("resolution", "D")
	query.Set("from", strconv.FormatInt(from.Unix(), 10))
	query.Set("to", strconv.FormatInt(to.Unix(), 10))

	var payload candleResponse
	if err := p.doGet(ctx, "/stock/candle", query, &payload); err != nil {
		return nil, err
	}
	if payload.Status != "ok" || len(payload.Timestamps) == 0 {
		return nil, nil
	}
	if len(payload.Opens) != len(payload.Timestamps) ||
		len(payload.Highs) != len(payload.Timestamps) ||
		len(payload.Lows) != len(payload.Timestamps) ||
		len(payload.Closes) != len(payload.Timestamps) {
		return nil, fmt.Errorf("%w: candle arrays length mismatch", pricefeed.ErrParse)
	}

	candles := make([]pricefeed.Candle, 0, len(payload.Timestamps))
	for i, ts := range payload.Timestamps {
		candle := pricefeed.Candle{
			Date:  time.Unix(ts, 0).UTC().Truncate(24 * time.Hour),
			Open:  payload.Opens[i],
			High:  payload.Highs[i],
			Low:   payload.Lows[i],
			Close: payload.Closes[i],
		}
		if i < len(payload.Volumes) {
			candle.Volume = payload.Volumes[i]
		}
		candles = append(candles, candle)
	}
	return candles, nil
}

func (p *Provider) doGet(ctx context.Context, path string, query url.Values, result interface{}) error {
	if query == nil {
		query = url.Values{}
	}
	query.Set("token", p.apiKey)
	endpoint := p.baseURL + path + "?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("finnhub: build request: %w", err)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", pricefeed.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read response: %v", pricefeed.ErrUnavailable, err)
	}
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: http status %d", pricefeed.ErrAuth, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("%w: http status %d", pricefeed.ErrUnavailable, resp.StatusCode)
	}
	if result != nil {
		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("%w: decode response: %v", pricefeed.ErrParse, err)
		}
	}
	return nil
}
