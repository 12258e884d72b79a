// Package model はドメインモデルを定義する。
package model

import (
	"fmt"
	"strings"
	"time"
)

// User は外部IdPと同期されたローカルのユーザーレコードを表す。
// ExternalIDとEmailはそれぞれ最大1件のレコードを一意に識別する。
type User struct {
	ID              string
	ExternalID      string
	Email           string
	DisplayName     string
	ProfileImageURL string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// UserProfile はユーザーレコードのUPSERTに渡す入力値。
// ID・タイムスタンプはストア側で管理するため含まない。
type UserProfile struct {
	ExternalID      string
	Email           string
	DisplayName     string
	ProfileImageURL string
}

// Normalize はストアに保存する形式へ値を正規化したコピーを返す。
// メールアドレスは前後の空白を除去して小文字化し、表示名は前後の空白を除去する。
func (p UserProfile) Normalize() UserProfile {
	return UserProfile{
		ExternalID:      strings.TrimSpace(p.ExternalID),
		Email:           strings.ToLower(strings.TrimSpace(p.Email)),
		DisplayName:     strings.TrimSpace(p.DisplayName),
		ProfileImageURL: strings.TrimSpace(p.ProfileImageURL),
	}
}

// Validate は必須項目を検証する。
func (p UserProfile) Validate() error {
	if p.ExternalID == "" {
		return fmt.Errorf("%w: external id is required", ErrValidation)
	}
	if p.Email == "" {
		return fmt.Errorf("%w: email is required", ErrValidation)
	}
	return nil
}
