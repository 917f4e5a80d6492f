// Package handler はワーカーモードのステータスHTTPサーバー（/health, /metrics）を提供する。
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/rssroll/internal/middleware"
	"github.com/hitoshi/rssroll/internal/model"
)

// HealthChecker はデータベースの疎通確認のインターフェース。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Health  HealthChecker
	Metrics http.Handler // nilの場合は/metricsを公開しない
	Logger  *slog.Logger
	// PingTimeout はヘルスチェック時のデータベース疎通確認の上限時間。0の場合は2秒。
	PingTimeout time.Duration
}

// NewRouter はステータスエンドポイントを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RecoveryMiddleware → LoggingMiddleware
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewLoggingMiddleware(logger))

	h := &HealthHandler{checker: deps.Health, logger: logger, timeout: deps.PingTimeout}
	if h.timeout <= 0 {
		h.timeout = 2 * time.Second
	}
	r.Get("/health", h.Health)

	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	return r
}

// HealthHandler は/healthを処理する。
type HealthHandler struct {
	checker HealthChecker
	logger  *slog.Logger
	timeout time.Duration
}

type healthResponse struct {
	Status string `json:"status"`
}

// Health はデータベースに疎通できれば200、できなければ503を返す。
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	if h.checker != nil {
		ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
		defer cancel()

		if err := h.checker.PingContext(ctx); err != nil {
			h.logger.Warn("ヘルスチェックでデータベースに接続できません", slog.String("error", err.Error()))
			middleware.WriteErrorResponse(w, http.StatusServiceUnavailable, model.NewUnavailableError(err.Error()))
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(healthResponse{Status: "ok"})
}
