package handler

import (
	"errors"
	"net/http"

	"github.com/zeromicro/go-zero/rest/httpx"

	"investsim-api/internal/engine"
)

// writeEngineError maps orchestrator sentinels onto HTTP statuses. Only
// registry misses and exhausted fallbacks reach callers; upstream flakiness
// is absorbed before this point.
func writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, engine.ErrAssetNotFound):
		httpx.WriteJsonCtx(r.Context(), w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, engine.ErrNoProvider):
		httpx.WriteJsonCtx(r.Context(), w, http.StatusBadGateway, map[string]string{"error": err.Error()})
	case errors.Is(err, engine.ErrUnknownRange):
		httpx.WriteJsonCtx(r.Context(), w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	default:
		httpx.ErrorCtx(r.Context(), w, err)
	}
}
