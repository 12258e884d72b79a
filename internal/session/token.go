// Package session はIdPのセッションを起点としたユーザー同期を提供する。
package session

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/storefront/internal/model"
)

// CookieName はIdPのフロントエンドSDKがセッショントークンを格納するCookie名。
const CookieName = "__session"

// ErrInvalidToken はセッショントークンが検証できなかったことを示す。
var ErrInvalidToken = errors.New("invalid session token")

// TokenVerifier はIdPが発行したRS256署名のセッショントークンを検証する。
type TokenVerifier struct {
	key    *rsa.PublicKey
	leeway time.Duration
}

// NewTokenVerifier はPEM形式のRSA公開鍵からTokenVerifierを生成する。
// 環境変数で渡された場合に備え、エスケープされた改行（\n）も受け付ける。
func NewTokenVerifier(publicKeyPEM string) (*TokenVerifier, error) {
	publicKeyPEM = strings.TrimSpace(strings.ReplaceAll(publicKeyPEM, `\n`, "\n"))
	if publicKeyPEM == "" {
		return nil, fmt.Errorf("%w: session public key is not set", model.ErrConfiguration)
	}

	key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(publicKeyPEM))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse session public key: %w", model.ErrConfiguration, err)
	}

	return &TokenVerifier{key: key, leeway: 5 * time.Second}, nil
}

// Verify はトークンを検証し、subクレーム（外部ユーザーID）を返す。
func (v *TokenVerifier) Verify(tokenString string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return v.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !token.Valid {
		return "", ErrInvalidToken
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: missing sub claim", ErrInvalidToken)
	}

	return claims.Subject, nil
}

// TokenFromRequest はリクエストからセッショントークンを取り出す。
// __session Cookieを優先し、なければAuthorization: Bearerを使う。
func TokenFromRequest(r *http.Request) string {
	if cookie, err := r.Cookie(CookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	auth := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}
