package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"investsim-api/internal/model"
)

// rangeDays maps a requested history range to its lookback window.
var rangeDays = map[string]int{
	"1d":  1,
	"7d":  7,
	"1m":  30,
	"3m":  90,
	"6m":  180,
	"1y":  365,
	"2y":  730,
	"3y":  1095,
	"5y":  1825,
	"10y": 3650,
	"all": 3650,
}

// ErrUnknownRange means the requested range keyword is not in the table.
var ErrUnknownRange = errors.New("unknown history range")

// HistoryPoint is one aggregated candle returned to callers. Volume is nil
// for sources that report none.
type HistoryPoint struct {
	Date   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume *float64
}

// HistoryAggregator answers range queries against the pre-aggregated
// rollup tables. It never talks to providers; backfill jobs own writes.
type HistoryAggregator struct {
	assets  model.AssetsModel
	history model.PriceHistoryModel
	now     func() time.Time
}

// NewHistoryAggregator wires an aggregator. Clock defaults to time.Now.
func NewHistoryAggregator(assets model.AssetsModel, history model.PriceHistoryModel, clock func() time.Time) *HistoryAggregator {
	if clock == nil {
		clock = time.Now
	}
	return &HistoryAggregator{assets: assets, history: history, now: clock}
}

// GranularityFor selects the rollup table by lookback length: daily up to a
// year, weekly up to three years, monthly beyond.
func GranularityFor(days int) model.Granularity {
	switch {
	case days <= 365:
		return model.GranularityDaily
	case days <= 1095:
		return model.GranularityWeekly
	default:
		return model.GranularityMonthly
	}
}

// LookbackDays resolves a range keyword.
func LookbackDays(rng string) (int, error) {
	days, ok := rangeDays[strings.ToLower(strings.TrimSpace(rng))]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownRange, rng)
	}
	return days, nil
}

// GetHistory returns candles ascending by date for the requested range.
func (a *HistoryAggregator) GetHistory(ctx context.Context, code, rng string) ([]HistoryPoint, error) {
	days, err := LookbackDays(rng)
	if err != nil {
		return nil, err
	}

	asset, err := a.assets.FindOneByCode(ctx, strings.ToUpper(strings.TrimSpace(code)))
	if errors.Is(err, model.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrAssetNotFound, code)
	}
	if err != nil {
		return nil, err
	}
	if !asset.IsActive {
		return nil, fmt.Errorf("%w: %s", ErrAssetNotFound, code)
	}

	to := a.now().UTC().Truncate(24 * time.Hour)
	from := to.AddDate(0, 0, -days)
	rows, err := a.history.FindRange(ctx, GranularityFor(days), asset.Id, from, to)
	if err != nil {
		return nil, err
	}

	points := make([]HistoryPoint, 0, len(rows))
	for _, row := range rows {
		point := HistoryPoint{
			Date:  row.PeriodStart,
			Open:  row.Open,
			High:  row.High,
			Low:   row.Low,
			Close: row.Close,
		}
		if row.Volume.Valid {
			v := row.Volume.Float64
			point.Volume = &v
		}
		points = append(points, point)
	}
	return points, nil
}
