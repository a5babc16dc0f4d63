package finnhub

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"investsim-api/pkg/pricefeed"
)

func TestFetchLatestRequiresKey(t *testing.T) {
	p := NewProvider("")
	_, err := p.FetchLatest(context.Background(), []string{"AAPL"})
	require.ErrorIs(t, err, pricefeed.ErrAuth)
}

func TestFetchLatestFanOut(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/quote", r.URL.Path)
		require.Equal(t, "test-key", r.URL.Query().Get("token"))
		atomic.AddInt32(&calls, 1)

		switch r.URL.Query().Get("symbol") {
		case "AAPL":
			fmt.Fprint(w, `{"c":231.5,"dp":1.2,"pc":228.7}`)
		case "MSFT":
			fmt.Fprint(w, `{"c":0,"dp":0,"pc":0}`)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer server.Close()

	p := NewProvider("test-key", WithBaseURL(server.URL), WithHTTPClient(server.Client()))
	quotes, err := p.FetchLatest(context.Background(), []string{"aapl", "MSFT", "VOO"})
	require.NoError(t, err)
	require.EqualValues(t, 3, atomic.LoadInt32(&calls))

	// MSFT reported no data, VOO errored; both drop without failing AAPL.
	require.Len(t, quotes, 1)
	require.InDelta(t, 231.5, quotes["AAPL"].Price, 1e-9)
	require.NotNil(t, quotes["AAPL"].Change24h)
	require.InDelta(t, 1.2, *quotes["AAPL"].Change24h, 1e-9)
}

func TestFetchLatestRejectedKeyFailsCall(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	p := NewProvider("bad-key", WithBaseURL(server.URL), WithHTTPClient(server.Client()))
	_, err := p.FetchLatest(context.Background(), []string{"AAPL", "MSFT"})
	require.ErrorIs(t, err, pricefeed.ErrAuth)
}

func TestFetchHistoryNoData(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"s":"no_data"}`)
	}))
	defer server.Close()

	p := NewProvider("test-key", WithBaseURL(server.URL), WithHTTPClient(server.Client()))
	candles, err := p.FetchHistory(context.Background(), "AAPL",
		time.Now().AddDate(0, -1, 0), time.Now())
	require.NoError(t, err)
	require.Empty(t, candles)
}

func TestFetchHistoryParsesCandles(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/stock/candle", r.URL.Path)
		require.Equal(t, "D", r.URL.Query().Get("resolution"))
		fmt.Fprint(w, `{
			"s":"ok",
			"t":[1672531200,1672617600],
			"o":[130.2,131.0],
			"h":[132.4,133.1],
			"l":[129.9,130.5],
			"c":[131.8,132.2],
			"v":[1000,1100]
		}`)
	}))
	defer server.Close()

	p := NewProvider("test-key", WithBaseURL(server.URL), WithHTTPClient(server.Client()))
	candles, err := p.FetchHistory(context.Background(), "AAPL",
		time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2023, 1, 3, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, candles, 2)
	require.Equal(t, time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), candles[0].Date)
	require.InDelta(t, 131.8, candles[0].Close, 1e-9)
	require.InDelta(t, 1100.0, candles[1].Volume, 1e-9)
}

func TestFetchHistoryLengthMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"s":"ok","t":[1672531200,1672617600],"o":[130.2],"h":[132.4],"l":[129.9],"c":[131.8]}`)
	}))
	defer server.Close()

	p := NewProvider("test-key", WithBaseURL(server.URL), WithHTTPClient(server.Client()))
	_, err := p.FetchHistory(context.Background(), "AAPL",
		time.Now().AddDate(0, -1, 0), time.Now())
	require.ErrorIs(t, err, pricefeed.ErrParse)
}
