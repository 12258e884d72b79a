// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/storefront/internal/session"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// externalIDContextKey はリクエストコンテキストに外部ユーザーIDを格納するためのキー。
var externalIDContextKey = contextKey("external_id")

// TokenVerifier はセッショントークンを検証して外部ユーザーIDを返すインターフェース。
// session.TokenVerifierが実装する。
type TokenVerifier interface {
	Verify(token string) (string, error)
}

// NewSessionMiddleware は__session Cookie（またはBearerトークン）を検証し、
// 外部ユーザーIDをリクエストコンテキストに注入するミドルウェアを返す。
// トークンがない・検証できない場合は未ログインとして後続に渡す（401は返さない）。
// verifierがnilの場合は全リクエストを未ログインとして扱う。
func NewSessionMiddleware(verifier TokenVerifier, logger *slog.Logger) func(next http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if verifier == nil {
				next.ServeHTTP(w, r)
				return
			}

			token := session.TokenFromRequest(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			externalID, err := verifier.Verify(token)
			if err != nil {
				logger.Debug("session token rejected",
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
				next.ServeHTTP(w, r)
				return
			}

			if h := externalIDHolderFrom(r.Context()); h != nil {
				h.externalID = externalID
			}
			ctx := ContextWithExternalID(r.Context(), externalID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ExternalIDFromContext はリクエストコンテキストから外部ユーザーIDを取得する。
// 未ログインの場合は空文字を返す。
func ExternalIDFromContext(ctx context.Context) string {
	externalID, _ := ctx.Value(externalIDContextKey).(string)
	return externalID
}

// ContextWithExternalID はコンテキストに外部ユーザーIDを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithExternalID(ctx context.Context, externalID string) context.Context {
	return context.WithValue(ctx, externalIDContextKey, externalID)
}
