package usersync

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/storefront/internal/model"
	"github.com/hitoshi/storefront/internal/repository"
)

// Action は同期処理の結果種別。
type Action string

const (
	ActionCreated  Action = "created"
	ActionUpdated  Action = "updated"
	ActionDeleted  Action = "deleted"
	ActionNotFound Action = "not_found"
	ActionIgnored  Action = "ignored"
)

// 同期の起点
const (
	SourceWebhook = "webhook"
	SourceSession = "session"
)

// Recorder は同期結果のメトリクスを記録するインターフェース。
type Recorder interface {
	RecordUserSync(source, action string)
	ObserveSyncDuration(source string, d time.Duration)
}

// SyncResult はイベント適用の結果。
// Userは作成・更新時のみ設定される。
type SyncResult struct {
	Action     Action
	EventType  model.EventType
	ExternalID string
	User       *model.User
}

// Engine はWebhookイベントやセッション由来のユーザー情報をストアに反映する。
// 呼び出し間で状態を持たず、同じイベントを何度適用しても結果は変わらない。
type Engine struct {
	users   repository.UserRepository
	logger  *slog.Logger
	metrics Recorder
	now     func() time.Time
}

// NewEngine はEngineを生成する。recorderはnilでもよい。
func NewEngine(users repository.UserRepository, logger *slog.Logger, recorder Recorder) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		users:   users,
		logger:  logger,
		metrics: recorder,
		now:     time.Now,
	}
}

// ApplyEvent は署名検証済みのイベントを1件適用する。
// user.created / user.updated はUPSERT、user.deleted は削除、それ以外は何もしない。
func (e *Engine) ApplyEvent(ctx context.Context, event *model.WebhookEvent) (*SyncResult, error) {
	start := e.now()
	defer e.observe(SourceWebhook, start)

	switch event.Type {
	case model.EventUserCreated, model.EventUserUpdated:
		var pu model.ProviderUser
		if err := json.Unmarshal(event.Data, &pu); err != nil {
			return nil, fmt.Errorf("%w: decode %s data: %w", model.ErrInvalidPayload, event.Type, err)
		}
		if pu.ID == "" {
			return nil, fmt.Errorf("%w: %s data has no user id", model.ErrInvalidPayload, event.Type)
		}

		user, action, err := e.upsert(ctx, pu, SourceWebhook, event.Type)
		if err != nil {
			return nil, err
		}
		return &SyncResult{Action: action, EventType: event.Type, ExternalID: pu.ID, User: user}, nil

	case model.EventUserDeleted:
		var obj model.DeletedObject
		if err := json.Unmarshal(event.Data, &obj); err != nil {
			return nil, fmt.Errorf("%w: decode %s data: %w", model.ErrInvalidPayload, event.Type, err)
		}
		if obj.ID == "" {
			return nil, fmt.Errorf("%w: %s data has no user id", model.ErrInvalidPayload, event.Type)
		}
		return e.delete(ctx, obj.ID, event.Type)

	default:
		e.logger.Info("ignoring webhook event",
			slog.String("event_type", string(event.Type)),
		)
		e.record(SourceWebhook, ActionIgnored)
		return &SyncResult{Action: ActionIgnored, EventType: event.Type}, nil
	}
}

// SyncProviderUser はIdPから取得したユーザー情報をUPSERTする。
// セッション同期から呼ばれ、Webhookと同じ手順で保存する。
func (e *Engine) SyncProviderUser(ctx context.Context, pu model.ProviderUser) (*model.User, error) {
	start := e.now()
	defer e.observe(SourceSession, start)

	if pu.ID == "" {
		return nil, fmt.Errorf("%w: provider user has no id", model.ErrValidation)
	}
	user, _, err := e.upsert(ctx, pu, SourceSession, "")
	return user, err
}

func (e *Engine) upsert(ctx context.Context, pu model.ProviderUser, source string, eventType model.EventType) (*model.User, Action, error) {
	profile := ProfileFromProviderUser(pu)

	user, inserted, err := e.users.UpsertByExternalID(ctx, profile)
	if err != nil {
		e.logger.Error("failed to upsert user",
			slog.String("source", source),
			slog.String("event_type", string(eventType)),
			slog.String("external_id", pu.ID),
			slog.String("error", err.Error()),
		)
		e.record(source, "error")
		return nil, "", err
	}

	action := ActionUpdated
	if inserted {
		action = ActionCreated
	}

	e.logger.Info("user synchronized",
		slog.String("source", source),
		slog.String("event_type", string(eventType)),
		slog.String("external_id", user.ExternalID),
		slog.String("action", string(action)),
	)
	e.record(source, action)
	return user, action, nil
}

func (e *Engine) delete(ctx context.Context, externalID string, eventType model.EventType) (*SyncResult, error) {
	deleted, err := e.users.DeleteByExternalID(ctx, externalID)
	if err != nil {
		e.logger.Error("failed to delete user",
			slog.String("event_type", string(eventType)),
			slog.String("external_id", externalID),
			slog.String("error", err.Error()),
		)
		e.record(SourceWebhook, "error")
		return nil, err
	}

	action := ActionNotFound
	if deleted {
		action = ActionDeleted
		e.logger.Info("user deleted",
			slog.String("event_type", string(eventType)),
			slog.String("external_id", externalID),
		)
	} else {
		e.logger.Info("user to delete not found",
			slog.String("event_type", string(eventType)),
			slog.String("external_id", externalID),
		)
	}

	e.record(SourceWebhook, action)
	return &SyncResult{Action: action, EventType: eventType, ExternalID: externalID}, nil
}

func (e *Engine) record(source string, action Action) {
	if e.metrics != nil {
		e.metrics.RecordUserSync(source, string(action))
	}
}

func (e *Engine) observe(source string, start time.Time) {
	if e.metrics != nil {
		e.metrics.ObserveSyncDuration(source, e.now().Sub(start))
	}
}
