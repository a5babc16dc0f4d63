package logic

import (
	"context"
	"strings"

	"github.com/zeromicro/go-zero/core/logx"

	"investsim-api/internal/engine"
	"investsim-api/internal/svc"
	"investsim-api/internal/types"
)

type HistoryLogic struct {
	logx.Logger
	ctx    context.Context
	svcCtx *svc.ServiceContext
}

func NewHistoryLogic(ctx context.Context, svcCtx *svc.ServiceContext) *HistoryLogic {
	return &HistoryLogic{
		Logger: logx.WithContext(ctx),
		ctx:    ctx,
		svcCtx: svcCtx,
	}
}

func (l *HistoryLogic) History(req *types.HistoryReq) (*types.HistoryResp, error) {
	points, err := l.svcCtx.History.GetHistory(l.ctx, req.Symbol, req.Range)
	if err != nil {
		return nil, err
	}

	rng := strings.ToLower(strings.TrimSpace(req.Range))
	days, _ := engine.LookbackDays(rng)
	resp := &types.HistoryResp{
		Symbol:      strings.ToUpper(strings.TrimSpace(req.Symbol)),
		Range:       rng,
		Granularity: string(engine.GranularityFor(days)),
		Points:      make([]types.HistoryPoint, 0, len(points)),
	}
	for _, point := range points {
		resp.Points = append(resp.Points, types.HistoryPoint{
			Date:   point.Date.UTC().Format("2006-01-02"),
			Open:   point.Open,
			High:   point.High,
			Low:    point.Low,
			Close:  point.Close,
			Volume: point.Volume,
		})
	}
	return resp, nil
}
