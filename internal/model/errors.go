// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// エラー分類。呼び出し元はerrors.Isで判定する。
var (
	// ErrConfiguration は必須のシークレットや接続文字列が未設定であることを示す。
	ErrConfiguration = errors.New("configuration error")
	// ErrConnection はストアにタイムアウト内で接続できなかったことを示す。
	ErrConnection = errors.New("connection error")
	// ErrAuthentication はWebhookのヘッダー欠落または署名検証失敗を示す。
	ErrAuthentication = errors.New("authentication error")
	// ErrInvalidPayload は署名検証済みのペイロードを解釈できなかったことを示す。
	ErrInvalidPayload = errors.New("invalid payload")
	// ErrPersistence はUPSERT・削除中のストアレベルの失敗を示す。
	ErrPersistence = errors.New("persistence error")
	// ErrValidation は保存前の入力検証エラー。
	ErrValidation = errors.New("validation error")
	// ErrEmailConflict は別ユーザーが同じメールアドレスを保持していることを示す。
	// ErrPersistenceとしても判定される。
	ErrEmailConflict = fmt.Errorf("%w: email already belongs to another user", ErrPersistence)
)

// APIError は統一エラーフォーマットを表す。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, webhook, system
	Action   string // 呼び出し元向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeWebhookNotConfigured = "WEBHOOK_NOT_CONFIGURED"
	ErrCodeMissingHeaders       = "WEBHOOK_MISSING_HEADERS"
	ErrCodeInvalidSignature     = "WEBHOOK_INVALID_SIGNATURE"
	ErrCodeInvalidPayload       = "WEBHOOK_INVALID_PAYLOAD"
	ErrCodeSyncFailed           = "USER_SYNC_FAILED"
	ErrCodeStoreUnavailable     = "STORE_UNAVAILABLE"
)

// NewWebhookNotConfiguredError は署名シークレット未設定エラーを生成する。
func NewWebhookNotConfiguredError() *APIError {
	return &APIError{
		Code:     ErrCodeWebhookNotConfigured,
		Message:  "Webhook secret is not configured.",
		Category: "system",
		Action:   "Set CLERK_WEBHOOK_SECRET and restart the service.",
	}
}

// NewMissingHeadersError はWebhookヘッダー欠落エラーを生成する。
func NewMissingHeadersError() *APIError {
	return &APIError{
		Code:     ErrCodeMissingHeaders,
		Message:  "Webhook headers are missing.",
		Category: "webhook",
		Action:   "Send svix-id, svix-timestamp and svix-signature headers.",
	}
}

// NewInvalidSignatureError は署名検証失敗エラーを生成する。
func NewInvalidSignatureError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidSignature,
		Message:  "Invalid webhook signature.",
		Category: "webhook",
		Action:   "Check that the endpoint's signing secret matches the provider dashboard.",
	}
}

// NewInvalidPayloadError は不正なペイロードのエラーを生成する。
func NewInvalidPayloadError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidPayload,
		Message:  "Webhook payload could not be processed.",
		Category: "validation",
		Action:   "Send a well-formed event payload.",
	}
}

// NewSyncFailedError はユーザー同期失敗エラーを生成する。
func NewSyncFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeSyncFailed,
		Message:  "Failed to process user in the database.",
		Category: "system",
		Action:   "The provider will redeliver the event; check the service logs.",
	}
}

// NewStoreUnavailableError はストア接続失敗エラーを生成する。
func NewStoreUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeStoreUnavailable,
		Message:  "Database is unavailable.",
		Category: "system",
		Action:   "Retry after a while.",
	}
}
