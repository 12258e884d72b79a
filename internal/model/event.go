package model

import "encoding/json"

// EventType はIdPから配信されるWebhookイベントの種類。
type EventType string

const (
	EventUserCreated EventType = "user.created"
	EventUserUpdated EventType = "user.updated"
	EventUserDeleted EventType = "user.deleted"
)

// WebhookEvent は署名検証済みのWebhookイベントを表す。
// Dataはイベント種別ごとに形が異なるため、解釈は同期エンジンに委ねる。
type WebhookEvent struct {
	Type   EventType       `json:"type"`
	Object string          `json:"object"`
	Data   json.RawMessage `json:"data"`
}

// ProviderEmail はIdPのユーザーが持つメールアドレスの1件。
type ProviderEmail struct {
	ID           string `json:"id"`
	EmailAddress string `json:"email_address"`
}

// ProviderUser はIdPが提供するユーザー情報。
// user.created / user.updated のdataとセッション同期時のユーザー取得で同じ形をとる。
type ProviderUser struct {
	ID                    string          `json:"id"`
	FirstName             string          `json:"first_name"`
	LastName              string          `json:"last_name"`
	EmailAddresses        []ProviderEmail `json:"email_addresses"`
	PrimaryEmailAddressID string          `json:"primary_email_address_id"`
	ImageURL              string          `json:"image_url"`
}

// DeletedObject は user.deleted のdata。
type DeletedObject struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Deleted bool   `json:"deleted"`
}
