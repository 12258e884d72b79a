package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/hitoshi/storefront/internal/middleware"
	"github.com/hitoshi/storefront/internal/model"
	"github.com/hitoshi/storefront/internal/usersync"
	"github.com/hitoshi/storefront/internal/webhook"
)

// EventVerifier はWebhookの署名を検証するインターフェース。
// webhook.Verifierが実装する。
type EventVerifier interface {
	Configured() bool
	Verify(payload []byte, h webhook.Headers) (*model.WebhookEvent, error)
}

// EventApplier は検証済みイベントをストアに反映するインターフェース。
// usersync.Engineが実装する。
type EventApplier interface {
	ApplyEvent(ctx context.Context, event *model.WebhookEvent) (*usersync.SyncResult, error)
}

// WebhookEventRecorder はWebhookの処理結果を記録するインターフェース。
type WebhookEventRecorder interface {
	RecordWebhookEvent(eventType, outcome string)
}

// Webhook処理結果のメトリクスラベル
const (
	outcomeProcessed = "processed"
	outcomeIgnored   = "ignored"
	outcomeRejected  = "rejected"
	outcomeFailed    = "failed"
)

// DefaultMaxPayloadBytes はWebhookボディの既定の上限サイズ。
const DefaultMaxPayloadBytes int64 = 1 << 20

// WebhookHandler はIdPからのユーザーイベントWebhookを受け付けるHTTPハンドラー。
type WebhookHandler struct {
	verifier        EventVerifier
	engine          EventApplier
	metrics         WebhookEventRecorder
	logger          *slog.Logger
	maxPayloadBytes int64
}

// NewWebhookHandler はWebhookHandlerを生成する。
// recorderとloggerはnilでもよい。maxPayloadBytesが0以下の場合は既定値を使う。
func NewWebhookHandler(verifier EventVerifier, engine EventApplier, recorder WebhookEventRecorder, logger *slog.Logger, maxPayloadBytes int64) *WebhookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if maxPayloadBytes <= 0 {
		maxPayloadBytes = DefaultMaxPayloadBytes
	}
	return &WebhookHandler{
		verifier:        verifier,
		engine:          engine,
		metrics:         recorder,
		logger:          logger,
		maxPayloadBytes: maxPayloadBytes,
	}
}

// Receive は署名付きイベントを検証して同期エンジンに渡す。
// POST /api/webhooks/user
//
// シークレット未設定は500、ヘッダー欠落・署名不正・解釈不能なペイロードは400、
// ストア障害は500を返す。400の場合はストアに一切触れない。
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	headers := webhook.HeadersFromRequest(r)

	if !h.verifier.Configured() {
		h.logger.Error("webhook secret is not configured")
		h.record("", outcomeFailed)
		middleware.WriteErrorResponse(w, http.StatusInternalServerError, model.NewWebhookNotConfiguredError())
		return
	}

	if !headers.Complete() {
		h.logger.Warn("webhook headers missing",
			slog.Bool("has_id", headers.ID != ""),
			slog.Bool("has_timestamp", headers.Timestamp != ""),
			slog.Bool("has_signature", headers.Signature != ""),
		)
		h.record("", outcomeRejected)
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewMissingHeadersError())
		return
	}

	// 署名は受信したバイト列そのものに対して検証する
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxPayloadBytes))
	if err != nil {
		status := http.StatusBadRequest
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			status = http.StatusRequestEntityTooLarge
		}
		h.logger.Warn("failed to read webhook body",
			slog.String("webhook_id", headers.ID),
			slog.String("error", err.Error()),
		)
		h.record("", outcomeRejected)
		middleware.WriteErrorResponse(w, status, model.NewInvalidPayloadError())
		return
	}

	event, err := h.verifier.Verify(payload, headers)
	if err != nil {
		h.writeVerifyError(w, headers, err)
		return
	}

	result, err := h.engine.ApplyEvent(r.Context(), event)
	if err != nil {
		h.writeSyncError(r.Context(), w, headers, event, err)
		return
	}

	outcome := outcomeProcessed
	if result.Action == usersync.ActionIgnored {
		outcome = outcomeIgnored
	}
	h.record(string(event.Type), outcome)

	h.logger.Info("webhook processed",
		slog.String("webhook_id", headers.ID),
		slog.String("event_type", string(event.Type)),
		slog.String("action", string(result.Action)),
		slog.String("external_id", result.ExternalID),
	)

	writeJSON(w, http.StatusOK, messageResponse{Message: "Webhook processed successfully."})
}

// Probe はダッシュボードから疎通を確認するための固定レスポンスを返す。
// GET /api/webhooks/user
func (h *WebhookHandler) Probe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, probeResponse{
		Message:      "Webhook endpoint is up.",
		Instructions: "Register this URL in the Clerk Dashboard under Webhooks and subscribe to user.created, user.updated and user.deleted.",
	})
}

func (h *WebhookHandler) writeVerifyError(w http.ResponseWriter, headers webhook.Headers, err error) {
	h.logger.Warn("webhook verification failed",
		slog.String("webhook_id", headers.ID),
		slog.String("error", err.Error()),
	)

	switch {
	case errors.Is(err, model.ErrConfiguration):
		h.record("", outcomeFailed)
		middleware.WriteErrorResponse(w, http.StatusInternalServerError, model.NewWebhookNotConfiguredError())
	case errors.Is(err, model.ErrInvalidPayload):
		h.record("", outcomeRejected)
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidPayloadError())
	default:
		h.record("", outcomeRejected)
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidSignatureError())
	}
}

func (h *WebhookHandler) writeSyncError(ctx context.Context, w http.ResponseWriter, headers webhook.Headers, event *model.WebhookEvent, err error) {
	eventType := string(event.Type)

	level := slog.LevelError
	if errors.Is(err, model.ErrInvalidPayload) {
		level = slog.LevelWarn
	}
	h.logger.Log(ctx, level, "webhook event not applied",
		slog.String("webhook_id", headers.ID),
		slog.String("event_type", eventType),
		slog.String("error", err.Error()),
	)

	switch {
	case errors.Is(err, model.ErrInvalidPayload):
		h.record(eventType, outcomeRejected)
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidPayloadError())
	case errors.Is(err, model.ErrConnection):
		h.record(eventType, outcomeFailed)
		middleware.WriteErrorResponse(w, http.StatusInternalServerError, model.NewStoreUnavailableError())
	default:
		h.record(eventType, outcomeFailed)
		middleware.WriteErrorResponse(w, http.StatusInternalServerError, model.NewSyncFailedError())
	}
}

func (h *WebhookHandler) record(eventType, outcome string) {
	if h.metrics != nil {
		h.metrics.RecordWebhookEvent(eventType, outcome)
	}
}
