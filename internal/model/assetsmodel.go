package model

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"
	"github.com/zeromicro/go-zero/core/stores/sqlx"
)

var _ AssetsModel = (*customAssetsModel)(nil)

type (
	// AssetsModel is an interface to be customized, add more methods here,
	// and implement the added methods in customAssetsModel.
	AssetsModel interface {
		Insert(ctx context.Context, data *Asset) (sql.Result, error)
		FindOne(ctx context.Context, id int64) (*Asset, error)
		FindOneByCode(ctx context.Context, code string) (*Asset, error)
		FindByCodes(ctx context.Context, codes []string) ([]*Asset, error)
		FindActive(ctx context.Context) ([]*Asset, error)
		FindActiveByClass(ctx context.Context, class string) ([]*Asset, error)
	}

	customAssetsModel struct {
		conn sqlx.SqlConn
	}

	// Asset describes one tradable instrument in the registry.
	Asset struct {
		Id             int64          `db:"id"`
		Code           string         `db:"code"`
		Name           string         `db:"name"`
		Class          string         `db:"class"`
		ProviderSymbol string         `db:"provider_symbol"`
		Provider       string         `db:"provider"`
		Currency       sql.NullString `db:"currency"`
		IsActive       bool           `db:"is_active"`
		CreatedAt      time.Time      `db:"created_at"`
		UpdatedAt      time.Time      `db:"updated_at"`
	}
)

const assetRows = "id, code, name, class, provider_symbol, provider, currency, is_active, created_at, updated_at"

// NewAssetsModel returns a model for the assets table.
func NewAssetsModel(conn sqlx.SqlConn) AssetsModel {
	return &customAssetsModel{conn: conn}
}

func (m *customAssetsModel) Insert(ctx context.Context, data *Asset) (sql.Result, error) {
	stmt := `
INSERT INTO public.assets (code, name, class, provider_symbol, provider, currency, is_active, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
ON CONFLICT (code) DO UPDATE SET
    name = EXCLUDED.name,
    class = EXCLUDED.class,
    provider_symbol = EXCLUDED.provider_symbol,
    provider = EXCLUDED.provider,
    currency = EXCLUDED.currency,
    is_active = EXCLUDED.is_active,
    updated_at = NOW();`
	return m.conn.ExecCtx(ctx, stmt,
		data.Code,
		data.Name,
		data.Class,
		data.ProviderSymbol,
		data.Provider,
		data.Currency,
		data.IsActive,
	)
}

func (m *customAssetsModel) FindOne(ctx context.Context, id int64) (*Asset, error) {
	stmt := `SELECT ` + assetRows + ` FROM public.assets WHERE id = $1 LIMIT 1;`
	var resp Asset
	err := m.conn.QueryRowCtx(ctx, &resp, stmt, id)
	switch err {
	case nil:
		return &resp, nil
	case sqlx.ErrNotFound:
		return nil, ErrNotFound
	default:
		return nil, err
	}
}

func (m *customAssetsModel) FindOneByCode(ctx context.Context, code string) (*Asset, error) {
	stmt := `SELECT ` + assetRows + ` FROM public.assets WHERE code = $1 LIMIT 1;`
	var resp Asset
	err := m.conn.QueryRowCtx(ctx, &resp, stmt, code)
	switch err {
	case nil:
		return &resp, nil
	case sqlx.ErrNotFound:
		return nil, ErrNotFound
	default:
		return nil, err
	}
}

func (m *customAssetsModel) FindByCodes(ctx context.Context, codes []string) ([]*Asset, error) {
	if len(codes) == 0 {
		return nil, nil
	}
	stmt := `SELECT ` + assetRows + ` FROM public.assets WHERE code = ANY($1);`
	var resp []*Asset
	if err := m.conn.QueryRowsCtx(ctx, &resp, stmt, pq.Array(codes)); err != nil {
		return nil, err
	}
	return resp, nil
}

func (m *customAssetsModel) FindActive(ctx context.Context) ([]*Asset, error) {
	stmt := `SELECT ` + assetRows + ` FROM public.assets WHERE is_active ORDER BY code;`
	var resp []*Asset
	if err := m.conn.QueryRowsCtx(ctx, &resp, stmt); err != nil {
		return nil, err
	}
	return resp, nil
}

func (m *customAssetsModel) FindActiveByClass(ctx context.Context, class string) ([]*Asset, error) {
	stmt := `SELECT ` + assetRows + ` FROM public.assets WHERE is_active AND class = $1 ORDER BY code;`
	var resp []*Asset
	if err := m.conn.QueryRowsCtx(ctx, &resp, stmt, class); err != nil {
		return nil, err
	}
	return resp, nil
}
