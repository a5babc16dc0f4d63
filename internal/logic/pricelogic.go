package logic

import (
	"context"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"investsim-api/internal/engine"
	"investsim-api/internal/svc"
	"investsim-api/internal/types"
)

type PriceLogic struct {
	logx.Logger
	ctx    context.Context
	svcCtx *svc.ServiceContext
}

func NewPriceLogic(ctx context.Context, svcCtx *svc.ServiceContext) *PriceLogic {
	return &PriceLogic{
		Logger: logx.WithContext(ctx),
		ctx:    ctx,
		svcCtx: svcCtx,
	}
}

func (l *PriceLogic) Price(req *types.PriceReq) (*types.PriceResp, error) {
	res, err := l.svcCtx.Orchestrator.Price(l.ctx, req.Symbol)
	if err != nil {
		return nil, err
	}
	resp := priceResp(res)
	return &resp, nil
}

func priceResp(res *engine.PriceResult) types.PriceResp {
	return types.PriceResp{
		Symbol:          res.Code,
		Class:           res.Class,
		Price:           res.Price,
		PercentChange24: res.PercentChange24,
		UpdatedAt:       res.UpdatedAt.UTC().Format(time.RFC3339),
		Source:          res.Source,
	}
}
