package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/doorman/internal/metrics"
	"github.com/hitoshi/doorman/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger       *slog.Logger
	GatewayToken string
	RateLimiter  *middleware.RateLimiter

	CommandRouter CommandRouter
	Replier       Replier
	DB            Pinger
	Gatherer      prometheus.Gatherer
	Recorder      metrics.Recorder
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → Metrics →（/gateway/* のみ）GatewayAuth → RateLimit
//
// /health と /metrics は認証の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	r.Use(middleware.NewMetricsMiddleware(deps.Recorder))

	healthHandler := NewHealthHandler(deps.DB)
	gatewayHandler := NewGatewayHandler(deps.CommandRouter, deps.Replier, deps.Logger)

	// --- 認証不要のルート ---
	r.Get("/health", healthHandler.Check)
	r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))

	// --- ゲートウェイトークンが必要なルート ---
	r.Route("/gateway", func(r chi.Router) {
		r.Use(middleware.NewGatewayAuthMiddleware(deps.GatewayToken))
		r.Use(deps.RateLimiter.Middleware())

		r.Post("/events", gatewayHandler.HandleEvent)
	})

	return r
}
