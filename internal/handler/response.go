package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/storefront/internal/model"
)

// userResponse はユーザー情報のAPIレスポンス。
type userResponse struct {
	ID              string    `json:"id"`
	ExternalID      string    `json:"external_id"`
	Email           string    `json:"email"`
	DisplayName     string    `json:"display_name"`
	ProfileImageURL string    `json:"profile_image_url"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// currentUserResponse はログイン中ユーザーのレスポンス。未ログイン・同期失敗時はuserがnull。
type currentUserResponse struct {
	User *userResponse `json:"user"`
}

// messageResponse はWebhookの受領応答。
type messageResponse struct {
	Message string `json:"message"`
}

// probeResponse はWebhookエンドポイントの疎通確認レスポンス。
type probeResponse struct {
	Message      string `json:"message"`
	Instructions string `json:"instructions"`
}

// toUserResponse はmodel.UserからAPIレスポンスに変換する。nilはnilのまま返す。
func toUserResponse(u *model.User) *userResponse {
	if u == nil {
		return nil
	}
	return &userResponse{
		ID:              u.ID,
		ExternalID:      u.ExternalID,
		Email:           u.Email,
		DisplayName:     u.DisplayName,
		ProfileImageURL: u.ProfileImageURL,
		CreatedAt:       u.CreatedAt,
		UpdatedAt:       u.UpdatedAt,
	}
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}
