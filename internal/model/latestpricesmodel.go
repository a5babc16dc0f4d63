package model

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"
	"github.com/zeromicro/go-zero/core/stores/sqlx"
)

var _ LatestPricesModel = (*customLatestPricesModel)(nil)

type (
	// LatestPricesModel is an interface to be customized, add more methods here,
	// and implement the added methods in customLatestPricesModel.
	LatestPricesModel interface {
		Upsert(ctx context.Context, data *LatestPrice) (sql.Result, error)
		FindOne(ctx context.Context, assetId int64) (*LatestPrice, error)
		FindByAssetIds(ctx context.Context, assetIds []int64) ([]*LatestPrice, error)
	}

	customLatestPricesModel struct {
		conn sqlx.SqlConn
	}

	// LatestPrice stores the most recent quote persisted for an asset.
	LatestPrice struct {
		AssetId         int64           `db:"asset_id"`
		Price           float64         `db:"price"`
		PercentChange24 sql.NullFloat64 `db:"percent_change_24h"`
		Source          string          `db:"source"`
		UpdatedAt       time.Time       `db:"updated_at"`
	}
)

const latestPriceRows = "asset_id, price, percent_change_24h, source, updated_at"

// NewLatestPricesModel returns a model for the latest_prices table.
func NewLatestPricesModel(conn sqlx.SqlConn) LatestPricesModel {
	return &customLatestPricesModel{conn: conn}
}

// Upsert writes a quote but never moves a row backwards in time: a write
// carrying an older updated_at than the stored row leaves the row alone.
func (m *customLatestPricesModel) Upsert(ctx context.Context, data *LatestPrice) (sql.Result, error) {
	stmt := `
INSERT INTO public.latest_prices (asset_id, price, percent_change_24h, source, updated_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (asset_id) DO UPDATE SET
    price = EXCLUDED.price,
    percent_change_24h = EXCLUDED.percent_change_24h,
    source = EXCLUDED.source,
    updated_at = EXCLUDED.updated_at
WHERE latest_prices.updated_at <= EXCLUDED.updated_at;`
	return m.conn.ExecCtx(ctx, stmt,
		data.AssetId,
		data.Price,
		data.PercentChange24,
		data.Source,
		data.UpdatedAt,
	)
}

func (m *customLatestPricesModel) FindOne(ctx context.Context, assetId int64) (*LatestPrice, error) {
	stmt := `SELECT ` + latestPriceRows + ` FROM public.latest_prices WHERE asset_id = $1 LIMIT 1;`
	var resp LatestPrice
	err := m.conn.QueryRowCtx(ctx, &resp, stmt, assetId)
	switch err {
	case nil:
		return &resp, nil
	case sqlx.ErrNotFound:
		return nil, ErrNotFound
	default:
		return nil, err
	}
}

func (m *customLatestPricesModel) FindByAssetIds(ctx context.Context, assetIds []int64) ([]*LatestPrice, error) {
	if len(assetIds) == 0 {
		return nil, nil
	}
	stmt := `SELECT ` + latestPriceRows + ` FROM public.latest_prices WHERE asset_id = ANY($1);`
	var resp []*LatestPrice
	if err := m.conn.QueryRowsCtx(ctx, &resp, stmt, pq.Array(assetIds)); err != nil {
		return nil, err
	}
	return resp, nil
}
