package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/storefront/internal/middleware"
	"github.com/hitoshi/storefront/internal/model"
)

// HealthChecker はストアの疎通を確認するインターフェース。
// database.Connectorが実装する。
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// defaultHealthTimeout はヘルスチェック1回あたりのタイムアウト。
const defaultHealthTimeout = 5 * time.Second

// HealthHandler はヘルスチェックのHTTPハンドラー。
type HealthHandler struct {
	checker HealthChecker
	timeout time.Duration
}

// NewHealthHandler はHealthHandlerを生成する。
func NewHealthHandler(checker HealthChecker, timeout time.Duration) *HealthHandler {
	if timeout <= 0 {
		timeout = defaultHealthTimeout
	}
	return &HealthHandler{checker: checker, timeout: timeout}
}

// ServeHTTP はストアに疎通できれば200、できなければ503を返す。
// GET /health
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if err := h.checker.Ping(ctx); err != nil {
		slog.Warn("health check failed", slog.String("error", err.Error()))
		middleware.WriteErrorResponse(w, http.StatusServiceUnavailable, model.NewStoreUnavailableError())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
