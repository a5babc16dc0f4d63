package metalsproxy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"investsim-api/pkg/pricefeed"
)

type fakeSource struct {
	quotes  map[string]pricefeed.Quote
	candles map[string][]pricefeed.Candle
	asked   [][]string
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) FetchLatest(_ context.Context, symbols []string) (map[string]pricefeed.Quote, error) {
	f.asked = append(f.asked, symbols)
	out := make(map[string]pricefeed.Quote)
	for _, s := range symbols {
		if q, ok := f.quotes[s]; ok {
			out[s] = q
		}
	}
	return out, nil
}

func (f *fakeSource) FetchHistory(_ context.Context, symbol string, _, _ time.Time) ([]pricefeed.Candle, error) {
	return f.candles[symbol], nil
}

func TestFetchLatestScalesFundQuotes(t *testing.T) {
	change := 0.8
	inner := &fakeSource{quotes: map[string]pricefeed.Quote{
		"GLD": {Price: 245.3, Change24h: &change},
		"SLV": {Price: 28.1},
	}}

	p := NewProvider(inner)
	quotes, err := p.FetchLatest(context.Background(), []string{"XAUUSD", "xagusd", "PLATINUM"})
	require.NoError(t, err)

	// One inner call covers both funds; platinum has no proxy and is
	// omitted.
	require.Len(t, inner.asked, 1)
	require.ElementsMatch(t, []string{"GLD", "SLV"}, inner.asked[0])
	require.Len(t, quotes, 2)

	require.InDelta(t, 2453.0, quotes["XAUUSD"].Price, 1e-9)
	require.NotNil(t, quotes["XAUUSD"].Change24h)
	require.InDelta(t, 0.8, *quotes["XAUUSD"].Change24h, 1e-9)
	require.InDelta(t, 28.1, quotes["xagusd"].Price, 1e-9)
}

func TestFetchLatestDedupesFunds(t *testing.T) {
	inner := &fakeSource{quotes: map[string]pricefeed.Quote{"GLD": {Price: 245.3}}}

	p := NewProvider(inner)
	quotes, err := p.FetchLatest(context.Background(), []string{"XAUUSD", "GOLD"})
	require.NoError(t, err)
	require.Len(t, inner.asked, 1)
	require.Equal(t, []string{"GLD"}, inner.asked[0])

	require.Len(t, quotes, 2)
	require.InDelta(t, 2453.0, quotes["XAUUSD"].Price, 1e-9)
	require.InDelta(t, 2453.0, quotes["GOLD"].Price, 1e-9)
}

func TestFetchHistoryScalesCandles(t *testing.T) {
	day := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	inner := &fakeSource{candles: map[string][]pricefeed.Candle{
		"GLD": {{Date: day, Open: 180, High: 182, Low: 179, Close: 181}},
	}}

	p := NewProvider(inner)
	candles, err := p.FetchHistory(context.Background(), "XAUUSD", day.AddDate(0, -1, 0), day)
	require.NoError(t, err)
	require.Len(t, candles, 1)
	require.InDelta(t, 1800.0, candles[0].Open, 1e-9)
	require.InDelta(t, 1820.0, candles[0].High, 1e-9)
	require.InDelta(t, 1790.0, candles[0].Low, 1e-9)
	require.InDelta(t, 1810.0, candles[0].Close, 1e-9)
}

func TestFetchHistoryUnknownMetal(t *testing.T) {
	p := NewProvider(&fakeSource{})
	_, err := p.FetchHistory(context.Background(), "PLATINUM", time.Now().AddDate(0, -1, 0), time.Now())
	require.ErrorIs(t, err, pricefeed.ErrParse)
}
