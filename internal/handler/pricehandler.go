package handler

import (
	"net/http"

	"github.com/zeromicro/go-zero/rest/httpx"

	"investsim-api/internal/logic"
	"investsim-api/internal/svc"
	"investsim-api/internal/types"
)

func PriceHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.PriceReq
		if err := httpx.Parse(r, &req); err != nil {
			httpx.ErrorCtx(r.Context(), w, err)
			return
		}

		l := logic.NewPriceLogic(r.Context(), svcCtx)
		resp, err := l.Price(&req)
		if err != nil {
			writeEngineError(w, r, err)
			return
		}
		httpx.OkJsonCtx(r.Context(), w, resp)
	}
}
