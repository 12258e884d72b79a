package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/storefront/internal/model"
	"github.com/hitoshi/storefront/internal/usersync"
	"github.com/hitoshi/storefront/internal/webhook"
)

// --- モック定義 ---

// mockVerifier はEventVerifierのモック実装。
type mockVerifier struct {
	configured bool
	verifyFn   func(payload []byte, h webhook.Headers) (*model.WebhookEvent, error)
	calls      int
}

func (m *mockVerifier) Configured() bool { return m.configured }

func (m *mockVerifier) Verify(payload []byte, h webhook.Headers) (*model.WebhookEvent, error) {
	m.calls++
	if m.verifyFn != nil {
		return m.verifyFn(payload, h)
	}
	return &model.WebhookEvent{Type: model.EventUserCreated}, nil
}

// mockApplier はEventApplierのモック実装。
type mockApplier struct {
	applyFn func(ctx context.Context, event *model.WebhookEvent) (*usersync.SyncResult, error)
	calls   int
}

func (m *mockApplier) ApplyEvent(ctx context.Context, event *model.WebhookEvent) (*usersync.SyncResult, error) {
	m.calls++
	if m.applyFn != nil {
		return m.applyFn(ctx, event)
	}
	return &usersync.SyncResult{Action: usersync.ActionCreated, EventType: event.Type, ExternalID: "user_1"}, nil
}

// mockWebhookRecorder はWebhookEventRecorderのモック実装。
type mockWebhookRecorder struct {
	events []string
}

func (m *mockWebhookRecorder) RecordWebhookEvent(eventType, outcome string) {
	m.events = append(m.events, eventType+"/"+outcome)
}

// --- ヘルパー ---

func newWebhookRequest(body string, headers map[string]string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/user", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return req
}

func fullSvixHeaders() map[string]string {
	return map[string]string{
		webhook.HeaderID:        "msg_1",
		webhook.HeaderTimestamp: "1700000000",
		webhook.HeaderSignature: "v1,c2lnbmF0dXJl",
	}
}

// parseAPIErrorResponse はレスポンスボディからAPIErrorレスポンスをパースするヘルパー。
func parseAPIErrorResponse(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var result map[string]string
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return result
}

// --- POST /api/webhooks/user テスト ---

func TestWebhookHandler_Receive_Success(t *testing.T) {
	const body = `{"type":"user.created","data":{"id":"user_1"}}`

	verifier := &mockVerifier{
		configured: true,
		verifyFn: func(payload []byte, h webhook.Headers) (*model.WebhookEvent, error) {
			if string(payload) != body {
				t.Errorf("payload = %q, want raw body %q", payload, body)
			}
			if h.ID != "msg_1" {
				t.Errorf("headers.ID = %q, want %q", h.ID, "msg_1")
			}
			return &model.WebhookEvent{Type: model.EventUserCreated, Data: json.RawMessage(`{"id":"user_1"}`)}, nil
		},
	}
	applier := &mockApplier{}
	recorder := &mockWebhookRecorder{}
	h := NewWebhookHandler(verifier, applier, recorder, nil, 0)

	w := httptest.NewRecorder()
	h.Receive(w, newWebhookRequest(body, fullSvixHeaders()))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp messageResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Message == "" {
		t.Error("expected acknowledgment message")
	}
	if applier.calls != 1 {
		t.Errorf("ApplyEvent calls = %d, want 1", applier.calls)
	}
	if len(recorder.events) != 1 || recorder.events[0] != "user.created/processed" {
		t.Errorf("recorded events = %v, want [user.created/processed]", recorder.events)
	}
}

func TestWebhookHandler_Receive_UnknownEventIsAcknowledged(t *testing.T) {
	verifier := &mockVerifier{
		configured: true,
		verifyFn: func(payload []byte, h webhook.Headers) (*model.WebhookEvent, error) {
			return &model.WebhookEvent{Type: "session.created"}, nil
		},
	}
	applier := &mockApplier{
		applyFn: func(ctx context.Context, event *model.WebhookEvent) (*usersync.SyncResult, error) {
			return &usersync.SyncResult{Action: usersync.ActionIgnored, EventType: event.Type}, nil
		},
	}
	recorder := &mockWebhookRecorder{}
	h := NewWebhookHandler(verifier, applier, recorder, nil, 0)

	w := httptest.NewRecorder()
	h.Receive(w, newWebhookRequest(`{}`, fullSvixHeaders()))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if len(recorder.events) != 1 || recorder.events[0] != "session.created/ignored" {
		t.Errorf("recorded events = %v, want [session.created/ignored]", recorder.events)
	}
}

func TestWebhookHandler_Receive_SecretNotConfigured_Returns500(t *testing.T) {
	verifier := &mockVerifier{configured: false}
	applier := &mockApplier{}
	h := NewWebhookHandler(verifier, applier, nil, nil, 0)

	w := httptest.NewRecorder()
	h.Receive(w, newWebhookRequest(`{}`, fullSvixHeaders()))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	if body := parseAPIErrorResponse(t, w); body["code"] != model.ErrCodeWebhookNotConfigured {
		t.Errorf("code = %q, want %q", body["code"], model.ErrCodeWebhookNotConfigured)
	}
	if verifier.calls != 0 || applier.calls != 0 {
		t.Errorf("verifier calls = %d, applier calls = %d, want 0 and 0", verifier.calls, applier.calls)
	}
}

func TestWebhookHandler_Receive_MissingHeaders_Returns400WithoutVerifying(t *testing.T) {
	for _, missing := range []string{webhook.HeaderID, webhook.HeaderTimestamp, webhook.HeaderSignature} {
		t.Run(missing, func(t *testing.T) {
			headers := fullSvixHeaders()
			delete(headers, missing)

			verifier := &mockVerifier{configured: true}
			applier := &mockApplier{}
			recorder := &mockWebhookRecorder{}
			h := NewWebhookHandler(verifier, applier, recorder, nil, 0)

			w := httptest.NewRecorder()
			h.Receive(w, newWebhookRequest(`{}`, headers))

			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
			}
			if body := parseAPIErrorResponse(t, w); body["code"] != model.ErrCodeMissingHeaders {
				t.Errorf("code = %q, want %q", body["code"], model.ErrCodeMissingHeaders)
			}
			if verifier.calls != 0 {
				t.Errorf("verifier calls = %d, want 0", verifier.calls)
			}
			if applier.calls != 0 {
				t.Errorf("applier calls = %d, want 0", applier.calls)
			}
			if len(recorder.events) != 1 || recorder.events[0] != "/rejected" {
				t.Errorf("recorded events = %v, want [/rejected]", recorder.events)
			}
		})
	}
}

func TestWebhookHandler_Receive_VerificationErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "invalid signature",
			err:        fmt.Errorf("%w: signature mismatch", model.ErrAuthentication),
			wantStatus: http.StatusBadRequest,
			wantCode:   model.ErrCodeInvalidSignature,
		},
		{
			name:       "undecodable payload",
			err:        fmt.Errorf("%w: unexpected end of JSON input", model.ErrInvalidPayload),
			wantStatus: http.StatusBadRequest,
			wantCode:   model.ErrCodeInvalidPayload,
		},
		{
			name:       "malformed secret",
			err:        fmt.Errorf("%w: bad secret", model.ErrConfiguration),
			wantStatus: http.StatusInternalServerError,
			wantCode:   model.ErrCodeWebhookNotConfigured,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verifier := &mockVerifier{
				configured: true,
				verifyFn: func(payload []byte, h webhook.Headers) (*model.WebhookEvent, error) {
					return nil, tt.err
				},
			}
			applier := &mockApplier{}
			h := NewWebhookHandler(verifier, applier, nil, nil, 0)

			w := httptest.NewRecorder()
			h.Receive(w, newWebhookRequest(`{"type":"user.created"}`, fullSvixHeaders()))

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if body := parseAPIErrorResponse(t, w); body["code"] != tt.wantCode {
				t.Errorf("code = %q, want %q", body["code"], tt.wantCode)
			}
			if applier.calls != 0 {
				t.Errorf("applier calls = %d, want 0", applier.calls)
			}
		})
	}
}

func TestWebhookHandler_Receive_SyncErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
		wantLevel  string
	}{
		{
			name:       "missing user id",
			err:        fmt.Errorf("%w: user id is empty", model.ErrInvalidPayload),
			wantStatus: http.StatusBadRequest,
			wantCode:   model.ErrCodeInvalidPayload,
			wantLevel:  "WARN",
		},
		{
			name:       "store unreachable",
			err:        fmt.Errorf("%w: timeout", model.ErrConnection),
			wantStatus: http.StatusInternalServerError,
			wantCode:   model.ErrCodeStoreUnavailable,
			wantLevel:  "ERROR",
		},
		{
			name:       "email conflict",
			err:        model.ErrEmailConflict,
			wantStatus: http.StatusInternalServerError,
			wantCode:   model.ErrCodeSyncFailed,
			wantLevel:  "ERROR",
		},
		{
			name:       "unclassified",
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   model.ErrCodeSyncFailed,
			wantLevel:  "ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verifier := &mockVerifier{configured: true}
			applier := &mockApplier{
				applyFn: func(ctx context.Context, event *model.WebhookEvent) (*usersync.SyncResult, error) {
					return nil, tt.err
				},
			}
			recorder := &mockWebhookRecorder{}
			var logBuf bytes.Buffer
			logger := slog.New(slog.NewJSONHandler(&logBuf, nil))
			h := NewWebhookHandler(verifier, applier, recorder, logger, 0)

			w := httptest.NewRecorder()
			h.Receive(w, newWebhookRequest(`{}`, fullSvixHeaders()))

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if body := parseAPIErrorResponse(t, w); body["code"] != tt.wantCode {
				t.Errorf("code = %q, want %q", body["code"], tt.wantCode)
			}

			var entry map[string]any
			if err := json.Unmarshal(logBuf.Bytes(), &entry); err != nil {
				t.Fatalf("expected one JSON log entry: %v\nraw: %s", err, logBuf.String())
			}
			want := map[string]any{
				"level":      tt.wantLevel,
				"msg":        "webhook event not applied",
				"webhook_id": "msg_1",
				"event_type": "user.created",
				"error":      tt.err.Error(),
			}
			for k, v := range want {
				if entry[k] != v {
					t.Errorf("log %s = %v, want %v", k, entry[k], v)
				}
			}
			if len(recorder.events) != 1 || !strings.HasPrefix(recorder.events[0], "user.created/") {
				t.Errorf("recorded events = %v, want one user.created entry", recorder.events)
			}
		})
	}
}

func TestWebhookHandler_Receive_PayloadTooLarge(t *testing.T) {
	verifier := &mockVerifier{configured: true}
	applier := &mockApplier{}
	h := NewWebhookHandler(verifier, applier, nil, nil, 16)

	w := httptest.NewRecorder()
	h.Receive(w, newWebhookRequest(strings.Repeat("x", 64), fullSvixHeaders()))

	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want %d", w.Code, http.StatusRequestEntityTooLarge)
	}
	if verifier.calls != 0 {
		t.Errorf("verifier calls = %d, want 0", verifier.calls)
	}
}

// --- GET /api/webhooks/user テスト ---

func TestWebhookHandler_Probe(t *testing.T) {
	h := NewWebhookHandler(&mockVerifier{}, &mockApplier{}, nil, nil, 0)

	w := httptest.NewRecorder()
	h.Probe(w, httptest.NewRequest(http.MethodGet, "/api/webhooks/user", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp probeResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Message == "" || resp.Instructions == "" {
		t.Errorf("probe response = %+v, want message and instructions", resp)
	}
}
