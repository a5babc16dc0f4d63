package cache

import (
	"strings"
	"time"

	"investsim-api/internal/config"
)

// Namespace is the Redis key prefix for the InvestSim application.
const Namespace = "investsim"

// TTLSet normalises cache TTLs from config into time.Duration values.
// Each asset class carries its own freshness window; Registry covers the
// cached asset metadata.
type TTLSet struct {
	Crypto   time.Duration
	Stock    time.Duration
	ETF      time.Duration
	FX       time.Duration
	Metal    time.Duration
	Registry time.Duration
}

// NewTTLSet converts config TTLs (in seconds) into durations.
func NewTTLSet(cfg config.CacheTTL) TTLSet {
	return TTLSet{
		Crypto:   durationOrDefault(cfg.Crypto, 10*time.Second),
		Stock:    durationOrDefault(cfg.Stock, time.Minute),
		ETF:      durationOrDefault(cfg.Etf, time.Minute),
		FX:       durationOrDefault(cfg.Fx, 5*time.Minute),
		Metal:    durationOrDefault(cfg.Metal, 15*time.Minute),
		Registry: durationOrDefault(cfg.Registry, time.Minute),
	}
}

func durationOrDefault(seconds int, fallback time.Duration) time.Duration {
	if seconds < 0 {
		return 0
	}
	if seconds == 0 {
		return fallback
	}
	return time.Duration(seconds) * time.Second
}

// ForClass returns the freshness window for an asset class. Unknown classes
// fall back to the stock TTL, the most conservative of the slow classes.
func (t TTLSet) ForClass(class string) time.Duration {
	switch strings.ToLower(strings.TrimSpace(class)) {
	case "crypto":
		return t.Crypto
	case "stock":
		return t.Stock
	case "etf":
		return t.ETF
	case "fx":
		return t.FX
	case "metal":
		return t.Metal
	default:
		return t.Stock
	}
}

func formatKey(parts ...string) string {
	values := make([]string, 0, len(parts)+1)
	values = append(values, Namespace)
	for _, part := range parts {
		clean := strings.TrimSpace(part)
		if clean == "" {
			continue
		}
		values = append(values, clean)
	}
	return strings.Join(values, ":")
}

// --- Price Keys -------------------------------------------------------------

// PriceLatestKey returns the latest price key for an asset code.
func PriceLatestKey(code string) string {
	return formatKey("price", "latest", code)
}

// PriceStreamKey is the capped Redis list mirroring price update events.
func PriceStreamKey() string {
	return formatKey("price", "stream")
}

// --- Registry Keys ----------------------------------------------------------

// AssetKey stores registry metadata for one asset code.
func AssetKey(code string) string {
	return formatKey("asset", code)
}
