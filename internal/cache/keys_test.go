package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"investsim-api/internal/config"
)

func TestNewTTLSetDefaults(t *testing.T) {
	ttl := NewTTLSet(config.CacheTTL{})
	require.Equal(t, 10*time.Second, ttl.Crypto)
	require.Equal(t, time.Minute, ttl.Stock)
	require.Equal(t, time.Minute, ttl.ETF)
	require.Equal(t, 5*time.Minute, ttl.FX)
	require.Equal(t, 15*time.Minute, ttl.Metal)
	require.Equal(t, time.Minute, ttl.Registry)
}

func TestForClass(t *testing.T) {
	ttl := NewTTLSet(config.CacheTTL{Crypto: 5, Stock: 30, Etf: 45, Fx: 120, Metal: 600, Registry: 60})

	require.Equal(t, 5*time.Second, ttl.ForClass("crypto"))
	require.Equal(t, 45*time.Second, ttl.ForClass(" ETF "))
	require.Equal(t, 2*time.Minute, ttl.ForClass("fx"))
	require.Equal(t, 10*time.Minute, ttl.ForClass("metal"))
	// Unknown classes get the stock window.
	require.Equal(t, 30*time.Second, ttl.ForClass("bond"))
}

func TestKeyFormat(t *testing.T) {
	require.Equal(t, "investsim:price:latest:BTC", PriceLatestKey("BTC"))
	require.Equal(t, "investsim:price:stream", PriceStreamKey())
	require.Equal(t, "investsim:asset:AAPL", AssetKey("AAPL"))
	// Blank segments collapse.
	require.Equal(t, "investsim:price:latest", PriceLatestKey(" "))
}
