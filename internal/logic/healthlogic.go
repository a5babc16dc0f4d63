package logic

import (
	"context"

	"github.com/zeromicro/go-zero/core/logx"

	"investsim-api/internal/svc"
	"investsim-api/internal/types"
)

type HealthLogic struct {
	logx.Logger
	ctx    context.Context
	svcCtx *svc.ServiceContext
}

func NewHealthLogic(ctx context.Context, svcCtx *svc.ServiceContext) *HealthLogic {
	return &HealthLogic{
		Logger: logx.WithContext(ctx),
		ctx:    ctx,
		svcCtx: svcCtx,
	}
}

func (l *HealthLogic) Health() (*types.HealthResp, error) {
	return &types.HealthResp{
		Status: "ok",
		Env:    l.svcCtx.Config.Env,
	}, nil
}
