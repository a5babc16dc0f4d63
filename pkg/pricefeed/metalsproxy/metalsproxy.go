package metalsproxy

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"investsim-api/pkg/pricefeed"
	"investsim-api/pkg/pricefeed/finnhub"
)

// proxy names the tracked fund standing in for a metal and the factor
// converting the fund price to an approximate spot price. GLD holds about
// 1/10 oz of gold per share, SLV about 1 oz of silver.
type proxy struct {
	fund   string
	factor float64
}

var defaultProxies = map[string]proxy{
	"XAUUSD": {fund: "GLD", factor: 10},
	"XAGUSD": {fund: "SLV", factor: 1},
	"GOLD":   {fund: "GLD", factor: 10},
	"SILVER": {fund: "SLV", factor: 1},
}

// Provider answers metal symbols by quoting a tracked ETF through an inner
// provider and multiplying by a fixed conversion factor. No metals-native
// API is involved; freshness and failure behaviour are the inner
// provider's.
type Provider struct {
	name    string
	inner   pricefeed.Provider
	proxies map[string]proxy
}

// NewProvider constructs a metals proxy over the given quote source.
func NewProvider(inner pricefeed.Provider) *Provider {
	return &Provider{
		name:    "metalsproxy",
		inner:   inner,
		proxies: defaultProxies,
	}
}

func init() {
	pricefeed.RegisterProvider("metalsproxy", func(name string, cfg *pricefeed.ProviderConfig) (pricefeed.Provider, error) {
		opts := []finnhub.Option{}
		if cfg.BaseURL != "" {
			opts = append(opts, finnhub.WithBaseURL(cfg.BaseURL))
		}
		if cfg.HTTPTimeout > 0 {
			opts = append(opts, finnhub.WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout}))
		}
		p := NewProvider(finnhub.NewProvider(cfg.APIKey, opts...))
		p.name = name
		return p, nil
	})
}

// Name implements pricefeed.Provider.
func (p *Provider) Name() string { return p.name }

// FetchLatest resolves each metal symbol to its fund, quotes all funds in
// one inner call, and scales the prices back. Unknown metal symbols are
// omitted.
func (p *Provider) FetchLatest(ctx context.Context, symbols []string) (map[string]pricefeed.Quote, error) {
	results := make(map[string]pricefeed.Quote, len(symbols))
	if len(symbols) == 0 {
		return results, nil
	}

	funds := make([]string, 0, len(symbols))
	seen := make(map[string]struct{}, len(symbols))
	for _, symbol := range symbols {
		mapping, ok := p.lookup(symbol)
		if !ok {
			continue
		}
		if _, dup := seen[mapping.fund]; dup {
			continue
		}
		seen[mapping.fund] = struct{}{}
		funds = append(funds, mapping.fund)
	}
	if len(funds) == 0 {
		return results, nil
	}

	quotes, err := p.inner.FetchLatest(ctx, funds)
	if err != nil {
		return nil, err
	}

	for _, symbol := range symbols {
		mapping, ok := p.lookup(symbol)
		if !ok {
			continue
		}
		quote, ok := quotes[mapping.fund]
		if !ok {
			continue
		}
		scaled := pricefeed.Quote{Price: quote.Price * mapping.factor}
		// Percent change is scale-invariant; volume is fund volume and is
		// not meaningful for spot metal, so it is dropped.
		scaled.Change24h = quote.Change24h
		results[symbol] = scaled
	}
	return results, nil
}

// FetchHistory returns the fund's daily candles scaled by the conversion
// factor.
func (p *Provider) FetchHistory(ctx context.Context, symbol string, from, to time.Time) ([]pricefeed.Candle, error) {
	mapping, ok := p.lookup(symbol)
	if !ok {
		return nil, fmt.Errorf("%w: no fund proxy for metal %q", pricefeed.ErrParse, symbol)
	}
	candles, err := p.inner.FetchHistory(ctx, mapping.fund, from, to)
	if err != nil {
		return nil, err
	}
	scaled := make([]pricefeed.Candle, len(candles))
	for i, c := range candles {
		scaled[i] = pricefeed.Candle{
			Date:  c.Date,
			Open:  c.Open * mapping.factor,
			High:  c.High * mapping.factor,
			Low:   c.Low * mapping.factor,
			Close: c.Close * mapping.factor,
		}
	}
	return scaled, nil
}

func (p *Provider) lookup(symbol string) (proxy, bool) {
	mapping, ok := p.proxies[strings.ToUpper(strings.TrimSpace(symbol))]
	return mapping, ok
}
