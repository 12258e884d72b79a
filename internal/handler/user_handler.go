package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/storefront/internal/middleware"
	"github.com/hitoshi/storefront/internal/session"
)

// SessionUserService はログイン中ユーザーの同期・取得を行うインターフェース。
// session.Adapterが実装する。
type SessionUserService interface {
	SyncCurrentSession(ctx context.Context, externalID string) session.Outcome
	GetCurrentUser(ctx context.Context, externalID string) session.Outcome
}

// UserHandler はログイン中ユーザーのHTTPハンドラー。
// 同期はベストエフォートのため、失敗しても200でuser: nullを返す。
type UserHandler struct {
	service SessionUserService
}

// NewUserHandler はUserHandlerを生成する。
// serviceがnilの場合（セッション同期が無効）は常にuser: nullを返す。
func NewUserHandler(service SessionUserService) *UserHandler {
	return &UserHandler{
		service: service,
	}
}

// Me はログイン中ユーザーのローカルレコードを返す。
// GET /api/users/me
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	var outcome session.Outcome
	if h.service != nil {
		outcome = h.service.GetCurrentUser(r.Context(), middleware.ExternalIDFromContext(r.Context()))
	}
	writeJSON(w, http.StatusOK, currentUserResponse{User: toUserResponse(outcome.User)})
}

// Sync はログイン中ユーザーをIdPから取得してローカルレコードに反映する。
// POST /api/users/me/sync
func (h *UserHandler) Sync(w http.ResponseWriter, r *http.Request) {
	var outcome session.Outcome
	if h.service != nil {
		outcome = h.service.SyncCurrentSession(r.Context(), middleware.ExternalIDFromContext(r.Context()))
	}
	writeJSON(w, http.StatusOK, currentUserResponse{User: toUserResponse(outcome.User)})
}
