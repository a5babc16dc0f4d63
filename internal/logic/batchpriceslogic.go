package logic

import (
	"context"

	"github.com/zeromicro/go-zero/core/logx"

	"investsim-api/internal/svc"
	"investsim-api/internal/types"
)

type BatchPricesLogic struct {
	logx.Logger
	ctx    context.Context
	svcCtx *svc.ServiceContext
}

func NewBatchPricesLogic(ctx context.Context, svcCtx *svc.ServiceContext) *BatchPricesLogic {
	return &BatchPricesLogic{
		Logger: logx.WithContext(ctx),
		ctx:    ctx,
		svcCtx: svcCtx,
	}
}

func (l *BatchPricesLogic) BatchPrices(req *types.BatchPricesReq) (*types.BatchPricesResp, error) {
	batch, err := l.svcCtx.Orchestrator.BatchPrices(l.ctx, req.Symbols)
	if err != nil {
		return nil, err
	}

	resp := &types.BatchPricesResp{
		Prices:  make(map[string]types.PriceResp, len(batch.Prices)),
		Cached:  batch.Cached,
		Fetched: batch.Fetched,
		Skipped: batch.Skipped,
	}
	for code, res := range batch.Prices {
		resp.Prices[code] = priceResp(res)
	}
	return resp, nil
}
