// Package handler はHTTPハンドラーとルーティングを提供する。
package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/storefront/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger *slog.Logger

	// ミドルウェア依存
	TokenVerifier     middleware.TokenVerifier
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	CSRF              middleware.CSRFConfig

	// ヘルスチェック・メトリクス
	HealthChecker  HealthChecker
	MetricsHandler http.Handler

	// Webhook
	WebhookHandler *WebhookHandler

	// ログイン中ユーザー（nilの場合は常にuser: null）
	SessionUsers SessionUserService
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → Recovery → Logging → SecurityHeaders → CORS → Session
//
// /api/users 以下にはさらに RateLimit → CSRF を適用する。
// Webhookはサーバー間通信のため、署名検証のみで保護する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(middleware.NewRecoveryMiddleware(deps.Logger))
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewSessionMiddleware(deps.TokenVerifier, deps.Logger))

	userHandler := NewUserHandler(deps.SessionUsers)

	// --- 運用系 ---
	if deps.HealthChecker != nil {
		r.Method(http.MethodGet, "/health", NewHealthHandler(deps.HealthChecker, 0))
	}
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// --- Webhook ---
	if deps.WebhookHandler != nil {
		r.Route("/api/webhooks/user", func(r chi.Router) {
			r.Post("/", deps.WebhookHandler.Receive)
			r.Get("/", deps.WebhookHandler.Probe)
		})
	}

	// --- ブラウザ向けAPI ---
	r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRF))

	r.Route("/api/users", func(r chi.Router) {
		if deps.RateLimiter != nil {
			r.Use(deps.RateLimiter.Middleware())
		}
		r.Use(middleware.NewCSRFMiddleware(deps.CSRF))

		r.Get("/me", userHandler.Me)
		r.Post("/me/sync", userHandler.Sync)
	})

	return r
}
