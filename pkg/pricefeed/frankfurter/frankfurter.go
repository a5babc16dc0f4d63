package frankfurter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"investsim-api/pkg/pricefeed"
)

const (
	defaultBaseURL     = "https://api.frankfurter.app"
	defaultHTTPTimeout = 10 * time.Second
)

// Provider fetches foreign-exchange rates from the Frankfurter API (ECB
// reference rates, no credential required). One /latest call answers every
// requested pair; individual pairs are derived from the USD-based rate
// table.
type Provider struct {
	name       string
	baseURL    string
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

// NewProvider constructs a Frankfurter provider.
func NewProvider(opts ...Option) *Provider {
	p := &Provider{
		name:       "frankfurter",
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func init() {
	pricefeed.RegisterProvider("frankfurter", func(name string, cfg *pricefeed.ProviderConfig) (pricefeed.Provider, error) {
		opts := []Option{}
		if cfg.BaseURL != "" {
			opts = append(opts, WithBaseURL(cfg.BaseURL))
		}
		if cfg.HTTPTimeout > 0 {
			opts = append(opts, WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout}))
		}
		p := NewProvider(opts...)
		p.name = name
		return p, nil
	})
}

// Name implements pricefeed.Provider.
func (p *Provider) Name() string { return p.name }

type latestResponse struct {
	Base  string             `json:"base"`
	Date  string             `json:"date"`
	Rates map[string]float64 `json:"rates"`
}

// FetchLatest answers every requested pair from a single USD-based rate
// table. Pairs the table cannot express are absent from the result.
// Frankfurter publishes no 24h change figure.
func (p *Provider) FetchLatest(ctx context.Context, symbols []string) (map[string]pricefeed.Quote, error) {
	results := make(map[string]pricefeed.Quote, len(symbols))
	if len(symbols) == 0 {
		return results, nil
	}

	var payload latestResponse
	if err := p.doGet(ctx, "/latest?from=USD", &payload); err != nil {
		return nil, err
	}
	if len(payload.Rates) == 0 {
		return nil, fmt.Errorf("%w: empty rate table", pricefeed.ErrParse)
	}

	for _, symbol := range symbols {
		if rate, ok := deriveRate(symbol, payload.Rates); ok {
			results[symbol] = pricefeed.Quote{Price: rate}
		}
	}
	return results, nil
}

// deriveRate maps a pair symbol onto the USD-based rate table:
// a bare currency code or USDxxx reads directly, xxxUSD inverts, and
// crosses like EURTRY divide through the USD leg.
func deriveRate(symbol string, rates map[string]float64) (float64, bool) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	switch {
	case symbol == "":
		return 0, false
	case len(symbol) == 3:
		rate, ok := rates[symbol]
		return rate, ok && rate > 0
	case strings.HasPrefix(symbol, "USD") && len(symbol) == 6:
		rate, ok := rates[symbol[3:]]
		return rate, ok && rate > 0
	case strings.HasSuffix(symbol, "USD") && len(symbol) == 6:
		rate, ok := rates[symbol[:3]]
		if !ok || rate <= 0 {
			return 0, false
		}
		return 1 / rate, true
	case len(symbol) == 6:
		base, quote := rates[symbol[:3]], rates[symbol[3:]]
		if base <= 0 || quote <= 0 {
			return 0, false
		}
		return quote / base, true
	default:
		return 0, false
	}
}

type rangeResponse struct {
	Base  string                        `json:"base"`
	Rates map[string]map[string]float64 `json:"rates"`
}

// FetchHistory returns one candle per business day from the date-range
// endpoint. The API publishes a single reference rate per day, so OHLC
// all carry that rate.
func (p *Provider) FetchHistory(ctx context.Context, symbol string, from, to time.Time) ([]pricefeed.Candle, error) {
	base, quote := splitPair(symbol)

	path := fmt.Sprintf("/%s..%s?from=%s&to=%s",
		from.UTC().Format("2006-01-02"), to.UTC().Format("2006-01-02"), base, quote)

	var payload rangeResponse
	if err := p.doGet(ctx, path, &payload); err != nil {
		return nil, err
	}

	candles := make([]pricefeed.Candle, 0, len(payload.Rates))
	for day, dayRates := range payload.Rates {
		rate, ok := dayRates[quote]
		if !ok || rate <= 0 {
			continue
		}
		date, err := time.ParseInLocation("2006-01-02", day, time.UTC)
		if err != nil {
			continue
		}
		candles = append(candles, pricefeed.Candle{
			Date: date, Open: rate, High: rate, Low: rate, Close: rate,
		})
	}
	sort.Slice(candles, func(i, j int) bool { return candles[i].Date.Before(candles[j].Date) })
	return candles, nil
}

// splitPair decomposes a pair symbol into base and quote currencies; a bare
// code is quoted against USD.
func splitPair(symbol string) (base, quote string) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if len(symbol) == 6 {
		return symbol[:3], symbol[3:]
	}
	return "USD", symbol
}

func (p *Provider) doGet(ctx context.Context, path string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("frankfurter: build request: %w", err)
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
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: http status %d", pricefeed.ErrUnavailable, resp.StatusCode)
	}
	if result != nil {
		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("%w: decode response: %v", pricefeed.ErrParse, err)
		}
	}
	return nil
}
