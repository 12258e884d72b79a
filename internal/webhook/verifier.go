// Package webhook はIdPから配信されるWebhookの署名検証を提供する。
package webhook

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	svix "github.com/svix/svix-webhooks/go"

	"github.com/hitoshi/storefront/internal/model"
)

// 署名検証に使用するヘッダー名
const (
	HeaderID        = "svix-id"
	HeaderTimestamp = "svix-timestamp"
	HeaderSignature = "svix-signature"
)

// Headers は署名検証に必要な3つのヘッダー値。
type Headers struct {
	ID        string
	Timestamp string
	Signature string
}

// HeadersFromRequest はリクエストから署名検証用ヘッダーを取り出す。
func HeadersFromRequest(r *http.Request) Headers {
	return Headers{
		ID:        strings.TrimSpace(r.Header.Get(HeaderID)),
		Timestamp: strings.TrimSpace(r.Header.Get(HeaderTimestamp)),
		Signature: strings.TrimSpace(r.Header.Get(HeaderSignature)),
	}
}

// Complete は3つのヘッダーがすべて揃っているかを返す。
func (h Headers) Complete() bool {
	return h.ID != "" && h.Timestamp != "" && h.Signature != ""
}

func (h Headers) httpHeader() http.Header {
	header := http.Header{}
	header.Set(HeaderID, h.ID)
	header.Set(HeaderTimestamp, h.Timestamp)
	header.Set(HeaderSignature, h.Signature)
	return header
}

// Verifier はWebhookペイロードの真正性を検証する。
// 署名とタイムスタンプの許容範囲の判定はsvixライブラリに委ねる。
type Verifier struct {
	configErr error
	check     func(payload []byte, header http.Header) error
}

// NewVerifier はVerifierを生成する。
// シークレットが空または不正な場合もエラーにはせず、Verify時にErrConfigurationを返す。
// シークレット未設定でもサーバー自体は起動できるようにするため。
func NewVerifier(secret string) *Verifier {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return &Verifier{configErr: fmt.Errorf("%w: webhook signing secret is not set", model.ErrConfiguration)}
	}

	wh, err := svix.NewWebhook(secret)
	if err != nil {
		return &Verifier{configErr: fmt.Errorf("%w: webhook signing secret is malformed: %w", model.ErrConfiguration, err)}
	}

	return &Verifier{check: wh.Verify}
}

// Configured はシークレットが有効に設定されているかを返す。
func (v *Verifier) Configured() bool {
	return v.configErr == nil
}

// Verify は受信したままのペイロードとヘッダーを検証し、イベントを返す。
// 判定順序: シークレット設定 → ヘッダーの有無 → 署名 → JSONデコード。
// ヘッダーが欠けている場合は署名の計算を行わない。
func (v *Verifier) Verify(payload []byte, h Headers) (*model.WebhookEvent, error) {
	if v.configErr != nil {
		return nil, v.configErr
	}

	if !h.Complete() {
		return nil, fmt.Errorf("%w: missing webhook headers", model.ErrAuthentication)
	}

	if err := v.check(payload, h.httpHeader()); err != nil {
		return nil, fmt.Errorf("%w: signature verification failed: %w", model.ErrAuthentication, err)
	}

	var event model.WebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrInvalidPayload, err)
	}

	return &event, nil
}
