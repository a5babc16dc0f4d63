package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"investsim-api/pkg/pricefeed"
)

func TestFetchLatestFiltersAndSkipsMalformed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/ticker/24hr", r.URL.Path)
		fmt.Fprint(w, `[
			{"symbol":"BTCUSDT","lastPrice":"97123.45","priceChangePercent":"2.1","volume":"12345.6"},
			{"symbol":"ETHUSDT","lastPrice":"not-a-number","priceChangePercent":"1.0","volume":"99"},
			{"symbol":"SOLUSDT","lastPrice":"151.2","priceChangePercent":"bad","volume":"500"},
			{"symbol":"DOGEUSDT","lastPrice":"0.21","priceChangePercent":"-3.3","volume":"1"}
		]`)
	}))
	defer server.Close()

	p := NewProvider(WithBaseURL(server.URL), WithHTTPClient(server.Client()))
	quotes, err := p.FetchLatest(context.Background(), []string{"btcusdt", "ETHUSDT", "SOLUSDT"})
	require.NoError(t, err)

	// ETHUSDT has an unparseable price and is dropped; DOGEUSDT was not
	// requested.
	require.Len(t, quotes, 2)
	require.InDelta(t, 97123.45, quotes["btcusdt"].Price, 1e-9)
	require.NotNil(t, quotes["btcusdt"].Change24h)
	require.InDelta(t, 2.1, *quotes["btcusdt"].Change24h, 1e-9)

	// A bad change percent keeps the quote but without the change field.
	sol := quotes["SOLUSDT"]
	require.InDelta(t, 151.2, sol.Price, 1e-9)
	require.Nil(t, sol.Change24h)
}

func TestFetchLatestAuthError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	p := NewProvider(WithBaseURL(server.URL), WithHTTPClient(server.Client()))
	_, err := p.FetchLatest(context.Background(), []string{"BTCUSDT"})
	require.ErrorIs(t, err, pricefeed.ErrAuth)
}

func TestFetchLatestMalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"not":"an array"}`)
	}))
	defer server.Close()

	p := NewProvider(WithBaseURL(server.URL), WithHTTPClient(server.Client()))
	_, err := p.FetchLatest(context.Background(), []string{"BTCUSDT"})
	require.ErrorIs(t, err, pricefeed.ErrParse)
}

func TestFetchHistoryPaginates(t *testing.T) {
	const pageSize = 1000
	day := int64(24 * time.Hour / time.Millisecond)
	base := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli()

	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/klines", r.URL.Path)
		require.Equal(t, "1d", r.URL.Query().Get("interval"))
		calls++

		start, err := strconv.ParseInt(r.URL.Query().Get("startTime"), 10, 64)
		require.NoError(t, err)

		count := pageSize
		if calls == 2 {
			count = 200
		}
		page := make([][]interface{}, 0, count)
		for i := 0; i < count; i++ {
			open := start + int64(i)*day
			page = append(page, []interface{}{
				open, "100.0", "110.0", "90.0", "105.0", "42.0",
			})
		}
		require.NoError(t, json.NewEncoder(w).Encode(page))
	}))
	defer server.Close()

	p := NewProvider(WithBaseURL(server.URL), WithHTTPClient(server.Client()))
	from := time.UnixMilli(base).UTC()
	to := from.AddDate(0, 0, pageSize+200)

	candles, err := p.FetchHistory(context.Background(), "BTCUSDT", from, to)
	require.NoError(t, err)
	require.Equal(t, 2, calls)
	require.Len(t, candles, pageSize+200)

	// Ascending, no duplicate dates across the page boundary.
	for i := 1; i < len(candles); i++ {
		require.True(t, candles[i].Date.After(candles[i-1].Date),
			"candle %d not after %d", i, i-1)
	}
}

func TestFetchHistorySkipsMalformedKline(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[
			[1672531200000, "100.0", "110.0", "90.0", "105.0", "42.0"],
			[1672617600000, "oops", "1", "1", "1", "1"],
			[1672704000000, "101.0", "111.0", "91.0", "106.0", "43.0"]
		]`)
	}))
	defer server.Close()

	p := NewProvider(WithBaseURL(server.URL), WithHTTPClient(server.Client()))
	candles, err := p.FetchHistory(context.Background(), "BTCUSDT",
		time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2023, 1, 4, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, candles, 2)
	require.InDelta(t, 105.0, candles[0].Close, 1e-9)
	require.InDelta(t, 106.0, candles[1].Close, 1e-9)
}
