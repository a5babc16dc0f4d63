package engine

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"investsim-api/internal/model"
	"investsim-api/pkg/pricefeed"
)

type candleProvider struct {
	fakeProvider
	candles  []pricefeed.Candle
	lastFrom time.Time
	lastTo   time.Time
}

func (p *candleProvider) FetchHistory(_ context.Context, _ string, from, to time.Time) ([]pricefeed.Candle, error) {
	p.lastFrom = from
	p.lastTo = to
	if p.err != nil {
		return nil, p.err
	}
	var out []pricefeed.Candle
	for _, c := range p.candles {
		if !c.Date.Before(from) && !c.Date.After(to) {
			out = append(out, c)
		}
	}
	return out, nil
}

func dailyCandles(start time.Time, n int) []pricefeed.Candle {
	out := make([]pricefeed.Candle, 0, n)
	for i := 0; i < n; i++ {
		day := start.AddDate(0, 0, i)
		out = append(out, pricefeed.Candle{
			Date:   day,
			Open:   100 + float64(i),
			High:   110 + float64(i),
			Low:    90 + float64(i),
			Close:  105 + float64(i),
			Volume: 1000 + 10*float64(i),
		})
	}
	return out
}

func TestBackfillFirstRunUsesLookback(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC) // a Monday
	today := now.Truncate(24 * time.Hour)

	provider := &candleProvider{candles: dailyCandles(today.AddDate(0, 0, -14), 14)}
	assets := &fakeAssets{byCode: map[string]*model.Asset{
		"BTC": asset(1, "BTC", "crypto", "binance", "BTCUSDT"),
	}}
	history := newFakeHistory()

	backfiller := NewBackfiller(assets, history, map[string]pricefeed.Provider{"binance": provider}, "", 0,
		func() time.Time { return now })

	stats, err := backfiller.Run(context.Background(), "")
	require.NoError(t, err)
	require.Zero(t, stats.Errored)

	// No stored history: the window opens a year back.
	require.Equal(t, today.AddDate(0, 0, -defaultLookback), provider.lastFrom)
	require.Equal(t, today, provider.lastTo)

	require.Len(t, history.rows[model.GranularityDaily][1], 14)

	// Fourteen days spanning a Monday boundary fold into three ISO weeks
	// and at most two months.
	weekly := history.rows[model.GranularityWeekly][1]
	require.NotEmpty(t, weekly)
	for _, point := range weekly {
		require.Equal(t, time.Monday, point.PeriodStart.Weekday())
	}
	monthly := history.rows[model.GranularityMonthly][1]
	require.NotEmpty(t, monthly)
	for _, point := range monthly {
		require.Equal(t, 1, point.PeriodStart.Day())
	}
}

func TestBackfillResumesFromLastPeriod(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	today := now.Truncate(24 * time.Hour)
	last := today.AddDate(0, 0, -5)

	provider := &candleProvider{candles: dailyCandles(today.AddDate(0, 0, -30), 30)}
	assets := &fakeAssets{byCode: map[string]*model.Asset{
		"BTC": asset(1, "BTC", "crypto", "binance", "BTCUSDT"),
	}}
	history := newFakeHistory()
	_, err := history.Upsert(context.Background(), model.GranularityDaily, &model.HistoryPoint{
		AssetId:     1,
		PeriodStart: last,
		Close:       97000,
	})
	require.NoError(t, err)

	backfiller := NewBackfiller(assets, history, map[string]pricefeed.Provider{"binance": provider}, "", 0,
		func() time.Time { return now })

	_, err = backfiller.Run(context.Background(), "crypto")
	require.NoError(t, err)

	// Resume the day after the newest stored candle.
	require.Equal(t, last.AddDate(0, 0, 1), provider.lastFrom)
}

func TestBackfillRollupFoldsOHLCV(t *testing.T) {
	// One full ISO week, Monday through Sunday.
	monday := time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)
	now := monday.AddDate(0, 0, 7).Add(10 * time.Hour)

	provider := &candleProvider{candles: dailyCandles(monday, 7)}
	assets := &fakeAssets{byCode: map[string]*model.Asset{
		"BTC": asset(1, "BTC", "crypto", "binance", "BTCUSDT"),
	}}
	history := newFakeHistory()

	backfiller := NewBackfiller(assets, history, map[string]pricefeed.Provider{"binance": provider}, "", 0,
		func() time.Time { return now })
	_, err := backfiller.Run(context.Background(), "")
	require.NoError(t, err)

	weekly := history.rows[model.GranularityWeekly][1]
	require.Len(t, weekly, 1)

	week := weekly[0]
	require.Equal(t, monday, week.PeriodStart)
	require.InDelta(t, 100.0, week.Open, 1e-9)  // Monday's open
	require.InDelta(t, 116.0, week.High, 1e-9)  // Sunday's high
	require.InDelta(t, 90.0, week.Low, 1e-9)    // Monday's low
	require.InDelta(t, 111.0, week.Close, 1e-9) // Sunday's close
	require.True(t, week.Volume.Valid)
	require.InDelta(t, 7210.0, week.Volume.Float64, 1e-9) // sum over the week
}

func TestBackfillResumeMidWeekKeepsEarlierDays(t *testing.T) {
	// A previous run stored Monday through Wednesday and the weekly row
	// folded from them. This run resumes on Thursday; the rebuilt weekly
	// row must still carry Monday's open and the week-wide extremes.
	monday := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	now := monday.AddDate(0, 0, 5).Add(10 * time.Hour) // Saturday

	history := newFakeHistory()
	for i := 0; i < 3; i++ {
		_, err := history.Upsert(context.Background(), model.GranularityDaily, &model.HistoryPoint{
			AssetId:     1,
			PeriodStart: monday.AddDate(0, 0, i),
			Open:        100 + float64(i),
			High:        110 + float64(i),
			Low:         90 + float64(i),
			Close:       105 + float64(i),
			Volume:      sql.NullFloat64{Float64: 1000, Valid: true},
		})
		require.NoError(t, err)
	}
	_, err := history.Upsert(context.Background(), model.GranularityWeekly, &model.HistoryPoint{
		AssetId:     1,
		PeriodStart: monday,
		Open:        100,
		High:        112,
		Low:         90,
		Close:       107,
		Volume:      sql.NullFloat64{Float64: 3000, Valid: true},
	})
	require.NoError(t, err)

	provider := &candleProvider{candles: []pricefeed.Candle{
		{Date: monday.AddDate(0, 0, 3), Open: 200, High: 215, Low: 195, Close: 210, Volume: 500},
		{Date: monday.AddDate(0, 0, 4), Open: 201, High: 216, Low: 196, Close: 211, Volume: 600},
	}}
	assets := &fakeAssets{byCode: map[string]*model.Asset{
		"BTC": asset(1, "BTC", "crypto", "binance", "BTCUSDT"),
	}}

	backfiller := NewBackfiller(assets, history, map[string]pricefeed.Provider{"binance": provider}, "", 0,
		func() time.Time { return now })
	_, err = backfiller.Run(context.Background(), "crypto")
	require.NoError(t, err)

	// Resumed on Thursday.
	require.Equal(t, monday.AddDate(0, 0, 3), provider.lastFrom)

	weekly := history.rows[model.GranularityWeekly][1]
	require.Len(t, weekly, 1)

	week := weekly[0]
	require.Equal(t, monday, week.PeriodStart)
	require.InDelta(t, 100.0, week.Open, 1e-9)  // Monday's open survives
	require.InDelta(t, 216.0, week.High, 1e-9)  // Friday's high
	require.InDelta(t, 90.0, week.Low, 1e-9)    // Monday's low survives
	require.InDelta(t, 211.0, week.Close, 1e-9) // Friday's close
	require.True(t, week.Volume.Valid)
	require.InDelta(t, 3100.0, week.Volume.Float64, 1e-9) // all five days
}

func TestBackfillUpToDateAssetSkipped(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	today := now.Truncate(24 * time.Hour)

	provider := &candleProvider{}
	assets := &fakeAssets{byCode: map[string]*model.Asset{
		"BTC": asset(1, "BTC", "crypto", "binance", "BTCUSDT"),
	}}
	history := newFakeHistory()
	_, err := history.Upsert(context.Background(), model.GranularityDaily, &model.HistoryPoint{
		AssetId:     1,
		PeriodStart: today,
		Close:       97000,
	})
	require.NoError(t, err)

	backfiller := NewBackfiller(assets, history, map[string]pricefeed.Provider{"binance": provider}, "", 0,
		func() time.Time { return now })

	stats, err := backfiller.Run(context.Background(), "")
	require.NoError(t, err)
	require.Equal(t, BackfillStats{Skipped: 1}, stats)
}

func TestBackfillMissingProviderErrors(t *testing.T) {
	assets := &fakeAssets{byCode: map[string]*model.Asset{
		"BTC": asset(1, "BTC", "crypto", "binance", "BTCUSDT"),
	}}
	backfiller := NewBackfiller(assets, newFakeHistory(), map[string]pricefeed.Provider{}, "", 0, nil)

	stats, err := backfiller.Run(context.Background(), "")
	require.NoError(t, err)
	require.Equal(t, 1, stats.Errored)
}
