package middleware

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hitoshi/storefront/internal/model"
)

const (
	// csrfCookieName はCSRFトークンのCookie名。フロントエンドが読み取ってヘッダーに載せる。
	csrfCookieName = "csrf_token"
	csrfHeaderName = "X-CSRF-Token"
	csrfTokenTTL   = 24 * time.Hour
)

// CSRFConfig はCSRFトークンCookieの属性。
type CSRFConfig struct {
	CookieSecure bool
	CookieDomain string
}

// NewCSRFMiddleware はダブルサブミット方式のCSRF対策ミドルウェアを返す。
//
// 状態を変更しないメソッドはトークンCookieを発行して通す。
// Authorization: Bearer のリクエストはブラウザが自動送信しないため対象外。
// それ以外はCookieとX-CSRF-Tokenヘッダーの一致を求め、不一致なら403を返す。
func NewCSRFMiddleware(config CSRFConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch {
			case isSafeMethod(r.Method):
				if existingCSRFToken(r) == "" {
					if _, err := issueCSRFToken(w, config); err != nil {
						slog.Error("failed to issue CSRF token", slog.String("error", err.Error()))
					}
				}
			case strings.HasPrefix(r.Header.Get("Authorization"), "Bearer "):
			default:
				if reason := csrfFailure(r); reason != "" {
					slog.Warn("CSRF validation failed",
						slog.String("reason", reason),
						slog.String("method", r.Method),
						slog.String("path", r.URL.Path),
					)
					WriteErrorResponse(w, http.StatusForbidden, &model.APIError{
						Code:     "CSRF_VALIDATION_FAILED",
						Message:  "CSRF token validation failed.",
						Category: "auth",
						Action:   "Fetch /api/csrf-token and send the token in the X-CSRF-Token header.",
					})
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// NewCSRFTokenHandler はCSRFトークンを返すハンドラー。
// GET /api/csrf-token
func NewCSRFTokenHandler(config CSRFConfig) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := existingCSRFToken(r)
		if token == "" {
			var err error
			if token, err = issueCSRFToken(w, config); err != nil {
				slog.Error("failed to issue CSRF token", slog.String("error", err.Error()))
				WriteInternalServerError(w)
				return
			}
		}
		writeJSONBody(w, http.StatusOK, map[string]string{"token": token})
	})
}

func csrfFailure(r *http.Request) string {
	cookieToken := existingCSRFToken(r)
	if cookieToken == "" {
		return "missing cookie token"
	}
	headerToken := r.Header.Get(csrfHeaderName)
	if headerToken == "" {
		return "missing header token"
	}
	if subtle.ConstantTimeCompare([]byte(cookieToken), []byte(headerToken)) != 1 {
		return "token mismatch"
	}
	return ""
}

func isSafeMethod(method string) bool {
	return method == http.MethodGet || method == http.MethodHead || method == http.MethodOptions
}

func existingCSRFToken(r *http.Request) string {
	c, err := r.Cookie(csrfCookieName)
	if err != nil {
		return ""
	}
	return c.Value
}

// issueCSRFToken は新しいトークンを生成してCookieに設定する。
func issueCSRFToken(w http.ResponseWriter, config CSRFConfig) (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	token := hex.EncodeToString(b)

	http.SetCookie(w, &http.Cookie{
		Name:     csrfCookieName,
		Value:    token,
		Path:     "/",
		Domain:   config.CookieDomain,
		MaxAge:   int(csrfTokenTTL.Seconds()),
		HttpOnly: false,
		Secure:   config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	return token, nil
}
