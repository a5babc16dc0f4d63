package pricefeed

import (
	"context"
	"time"
)

// Provider exposes a single upstream price source behind a normalized
// contract. Implementations are stateless and safe for concurrent use.
type Provider interface {
	// Name returns the provider instance name as configured.
	Name() string
	// FetchLatest returns the latest quote for each requested
	// provider-native symbol. Symbols the upstream cannot answer (or whose
	// payload fails to parse) are simply absent from the result map; only
	// whole-call failures return an error.
	FetchLatest(ctx context.Context, symbols []string) (map[string]Quote, error)
	// FetchHistory returns daily candles for one symbol, ordered ascending
	// by date, covering [from, to].
	FetchHistory(ctx context.Context, symbol string, from, to time.Time) ([]Candle, error)
}

// Quote is a normalized latest-price observation.
type Quote struct {
	Price     float64
	Change24h *float64 // 24h percent change when the upstream reports one
	Volume24h *float64
}

// Candle is a normalized daily OHLCV point. Date is the period start at
// UTC midnight. Sources that only publish a single rate per day carry it
// in all four price fields.
type Candle struct {
	Date   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}
