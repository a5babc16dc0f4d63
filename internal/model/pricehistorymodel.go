package model

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/zeromicro/go-zero/core/stores/sqlx"
)

// Granularity selects which rollup table a history query reads or writes.
type Granularity string

const (
	GranularityDaily   Granularity = "daily"
	GranularityWeekly  Granularity = "weekly"
	GranularityMonthly Granularity = "monthly"
)

func (g Granularity) table() (string, error) {
	switch g {
	case GranularityDaily:
		return "public.price_history_daily", nil
	case GranularityWeekly:
		return "public.price_history_weekly", nil
	case GranularityMonthly:
		return "public.price_history_monthly", nil
	default:
		return "", fmt.Errorf("unknown granularity %q", string(g))
	}
}

var _ PriceHistoryModel = (*customPriceHistoryModel)(nil)

type (
	// PriceHistoryModel is an interface to be customized, add more methods here,
	// and implement the added methods in customPriceHistoryModel.
	PriceHistoryModel interface {
		Upsert(ctx context.Context, g Granularity, data *HistoryPoint) (sql.Result, error)
		FindRange(ctx context.Context, g Granularity, assetId int64, from, to time.Time) ([]*HistoryPoint, error)
		LastPeriod(ctx context.Context, g Granularity, assetId int64) (time.Time, error)
	}

	customPriceHistoryModel struct {
		conn sqlx.SqlConn
	}

	// HistoryPoint is one aggregated candle keyed by the period it opens.
	// Volume is null for sources that report none, such as FX rates.
	HistoryPoint struct {
		AssetId     int64           `db:"asset_id"`
		PeriodStart time.Time       `db:"period_start"`
		Open        float64         `db:"open"`
		High        float64         `db:"high"`
		Low         float64         `db:"low"`
		Close       float64         `db:"close"`
		Volume      sql.NullFloat64 `db:"volume"`
	}
)

const historyRows = "asset_id, period_start, open, high, low, close, volume"

// NewPriceHistoryModel returns a model over the price_history rollup tables.
func NewPriceHistoryModel(conn sqlx.SqlConn) PriceHistoryModel {
	return &customPriceHistoryModel{conn: conn}
}

func (m *customPriceHistoryModel) Upsert(ctx context.Context, g Granularity, data *HistoryPoint) (sql.Result, error) {
	table, err := g.table()
	if err != nil {
		return nil, err
	}
	stmt := `
INSERT INTO ` + table + ` (asset_id, period_start, open, high, low, close, volume)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (asset_id, period_start) DO UPDATE SET
    open = EXCLUDED.open,
    high = EXCLUDED.high,
    low = EXCLUDED.low,
    close = EXCLUDED.close,
    volume = EXCLUDED.volume;`
	return m.conn.ExecCtx(ctx, stmt,
		data.AssetId,
		data.PeriodStart,
		data.Open,
		data.High,
		data.Low,
		data.Close,
		data.Volume,
	)
}

func (m *customPriceHistoryModel) FindRange(ctx context.Context, g Granularity, assetId int64, from, to time.Time) ([]*HistoryPoint, error) {
	table, err := g.table()
	if err != nil {
		return nil, err
	}
	stmt := `SELECT ` + historyRows + ` FROM ` + table + `
WHERE asset_id = $1 AND period_start >= $2 AND period_start <= $3
ORDER BY period_start ASC;`
	var resp []*HistoryPoint
	if err := m.conn.QueryRowsCtx(ctx, &resp, stmt, assetId, from, to); err != nil {
		return nil, err
	}
	return resp, nil
}

// LastPeriod reports the newest stored period start, or ErrNotFound when the
// asset has no history yet.
func (m *customPriceHistoryModel) LastPeriod(ctx context.Context, g Granularity, assetId int64) (time.Time, error) {
	table, err := g.table()
	if err != nil {
		return time.Time{}, err
	}
	stmt := `SELECT period_start FROM ` + table + ` WHERE asset_id = $1 ORDER BY period_start DESC LIMIT 1;`
	var last time.Time
	qerr := m.conn.QueryRowCtx(ctx, &last, stmt, assetId)
	switch qerr {
	case nil:
		return last, nil
	case sqlx.ErrNotFound:
		return time.Time{}, ErrNotFound
	default:
		return time.Time{}, qerr
	}
}
