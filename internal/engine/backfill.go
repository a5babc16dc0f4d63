package engine

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"investsim-api/internal/model"
	"investsim-api/pkg/pricefeed"
)

// defaultLookback is how far back a first-time backfill reaches when the
// asset has no stored history.
const defaultLookback = 365

// BackfillStats summarises one backfill run.
type BackfillStats struct {
	Inserted int
	Skipped  int
	Errored  int
}

// Backfiller populates the history rollup tables from provider candles.
// Runs are idempotent: rows are upserts keyed by (asset, period).
type Backfiller struct {
	assets    model.AssetsModel
	history   model.PriceHistoryModel
	providers map[string]pricefeed.Provider
	def       string

	timeout time.Duration
	now     func() time.Time
}

// NewBackfiller wires a backfiller. Clock defaults to time.Now.
func NewBackfiller(assets model.AssetsModel, history model.PriceHistoryModel, providers map[string]pricefeed.Provider, def string, timeout time.Duration, clock func() time.Time) *Backfiller {
	if clock == nil {
		clock = time.Now
	}
	return &Backfiller{
		assets:    assets,
		history:   history,
		providers: providers,
		def:       def,
		timeout:   timeout,
		now:       clock,
	}
}

// Run backfills every active asset, or only one class when class is
// non-empty. An asset resumes from the day after its newest stored candle.
func (b *Backfiller) Run(ctx context.Context, class string) (BackfillStats, error) {
	var (
		assets []*model.Asset
		err    error
	)
	if class != "" {
		assets, err = b.assets.FindActiveByClass(ctx, class)
	} else {
		assets, err = b.assets.FindActive(ctx)
	}
	if err != nil {
		return BackfillStats{}, err
	}

	var total BackfillStats
	for _, asset := range assets {
		if ctx.Err() != nil {
			return total, ctx.Err()
		}
		stats := b.backfillAsset(ctx, asset)
		total.Inserted += stats.Inserted
		total.Skipped += stats.Skipped
		total.Errored += stats.Errored
	}
	return total, nil
}

func (b *Backfiller) backfillAsset(ctx context.Context, asset *model.Asset) BackfillStats {
	var stats BackfillStats

	name := asset.Provider
	if name == "" {
		name = b.def
	}
	provider, ok := b.providers[name]
	if !ok {
		logx.WithContext(ctx).Errorf("backfill %s: provider %q not configured", asset.Code, name)
		stats.Errored++
		return stats
	}

	to := b.now().UTC().Truncate(24 * time.Hour)
	from := b.resumeFrom(ctx, asset, to)
	if !from.Before(to) {
		stats.Skipped++
		return stats
	}

	fetchCtx := ctx
	if b.timeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}
	candles, err := provider.FetchHistory(fetchCtx, asset.ProviderSymbol, from, to)
	if err != nil {
		logx.WithContext(ctx).Errorf("backfill %s: fetch history: %v", asset.Code, err)
		stats.Errored++
		return stats
	}
	if len(candles) == 0 {
		stats.Skipped++
		return stats
	}

	for _, candle := range candles {
		point := &model.HistoryPoint{
			AssetId:     asset.Id,
			PeriodStart: candle.Date.UTC().Truncate(24 * time.Hour),
			Open:        candle.Open,
			High:        candle.High,
			Low:         candle.Low,
			Close:       candle.Close,
		}
		if candle.Volume > 0 {
			point.Volume = sql.NullFloat64{Float64: candle.Volume, Valid: true}
		}
		if _, err := b.history.Upsert(ctx, model.GranularityDaily, point); err != nil {
			logx.WithContext(ctx).Errorf("backfill %s: upsert daily %s: %v", asset.Code, point.PeriodStart.Format("2006-01-02"), err)
			stats.Errored++
			continue
		}
		stats.Inserted++
	}

	stats.Inserted += b.rollup(ctx, asset, candles)
	return stats
}

// resumeFrom picks the backfill window start: the day after the newest
// stored daily candle, or a fixed lookback when none exists.
func (b *Backfiller) resumeFrom(ctx context.Context, asset *model.Asset, to time.Time) time.Time {
	last, err := b.history.LastPeriod(ctx, model.GranularityDaily, asset.Id)
	if errors.Is(err, model.ErrNotFound) {
		return to.AddDate(0, 0, -defaultLookback)
	}
	if err != nil {
		logx.WithContext(ctx).Errorf("backfill %s: read last period: %v", asset.Code, err)
		return to.AddDate(0, 0, -defaultLookback)
	}
	return last.UTC().Truncate(24 * time.Hour).AddDate(0, 0, 1)
}

// rollup rebuilds every weekly and monthly row whose period the fetched
// candles touch. Each period is re-folded from the stored daily table, not
// from the fetched candles alone, so a run that resumes mid-period keeps
// the days written by earlier runs. Weeks open on Monday, months on the
// first.
func (b *Backfiller) rollup(ctx context.Context, asset *model.Asset, candles []pricefeed.Candle) int {
	inserted := 0
	for _, g := range []model.Granularity{model.GranularityWeekly, model.GranularityMonthly} {
		for _, period := range touchedPeriods(candles, g) {
			days, err := b.history.FindRange(ctx, model.GranularityDaily, asset.Id, period, periodEnd(g, period))
			if err != nil {
				logx.WithContext(ctx).Errorf("backfill %s: read daily rows for %s %s: %v", asset.Code, g, period.Format("2006-01-02"), err)
				continue
			}
			if len(days) == 0 {
				continue
			}
			point := foldDaily(days)
			point.AssetId = asset.Id
			point.PeriodStart = period
			if _, err := b.history.Upsert(ctx, g, point); err != nil {
				logx.WithContext(ctx).Errorf("backfill %s: upsert %s %s: %v", asset.Code, g, point.PeriodStart.Format("2006-01-02"), err)
				continue
			}
			inserted++
		}
	}
	return inserted
}

// touchedPeriods lists the distinct period starts the candles fall into,
// in first-seen order.
func touchedPeriods(candles []pricefeed.Candle, g model.Granularity) []time.Time {
	periodOf := weekStart
	if g == model.GranularityMonthly {
		periodOf = monthStart
	}
	var out []time.Time
	seen := make(map[time.Time]struct{})
	for _, candle := range candles {
		period := periodOf(candle.Date.UTC())
		if _, dup := seen[period]; dup {
			continue
		}
		seen[period] = struct{}{}
		out = append(out, period)
	}
	return out
}

func periodEnd(g model.Granularity, period time.Time) time.Time {
	if g == model.GranularityMonthly {
		return period.AddDate(0, 1, -1)
	}
	return period.AddDate(0, 0, 6)
}

// foldDaily folds daily rows into one candle: first open, max high, min
// low, last close, summed volume. Rows are ascending by period.
func foldDaily(days []*model.HistoryPoint) *model.HistoryPoint {
	point := &model.HistoryPoint{
		Open:  days[0].Open,
		High:  days[0].High,
		Low:   days[0].Low,
		Close: days[len(days)-1].Close,
	}
	var volume float64
	var hasVolume bool
	for _, day := range days {
		if day.High > point.High {
			point.High = day.High
		}
		if day.Low < point.Low {
			point.Low = day.Low
		}
		if day.Volume.Valid {
			volume += day.Volume.Float64
			hasVolume = true
		}
	}
	if hasVolume {
		point.Volume = sql.NullFloat64{Float64: volume, Valid: true}
	}
	return point
}

func weekStart(t time.Time) time.Time {
	day := t.Truncate(24 * time.Hour)
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}

func monthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
