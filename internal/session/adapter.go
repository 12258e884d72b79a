package session

import (
	"context"
	"log/slog"

	"github.com/hitoshi/storefront/internal/model"
)

// UserFetcher はIdPからユーザー情報を取得するインターフェース。
type UserFetcher interface {
	GetUser(ctx context.Context, externalID string) (*model.ProviderUser, error)
}

// UserSyncer はIdPのユーザー情報をUPSERTするインターフェース。
// usersync.Engineが実装する。
type UserSyncer interface {
	SyncProviderUser(ctx context.Context, pu model.ProviderUser) (*model.User, error)
}

// UserFinder はローカルのユーザーレコードを検索するインターフェース。
type UserFinder interface {
	FindByExternalID(ctx context.Context, externalID string) (*model.User, error)
}

// FailureRecorder はセッション同期の失敗を記録するインターフェース。
type FailureRecorder interface {
	RecordSessionSyncFailure(operation string)
}

// Outcome はベストエフォート処理の結果。
// 失敗時はUserがnilでErrに原因が入る。未ログインの場合はどちらもnil。
type Outcome struct {
	User *model.User
	Err  error
}

// Adapter はログイン中のユーザーをローカルのレコードと同期する。
// 失敗は記録して結果に載せるだけで、呼び出し元の処理は止めない。
type Adapter struct {
	provider UserFetcher
	syncer   UserSyncer
	users    UserFinder
	logger   *slog.Logger
	metrics  FailureRecorder
}

// NewAdapter はAdapterを生成する。recorderはnilでもよい。
func NewAdapter(provider UserFetcher, syncer UserSyncer, users UserFinder, logger *slog.Logger, recorder FailureRecorder) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		provider: provider,
		syncer:   syncer,
		users:    users,
		logger:   logger,
		metrics:  recorder,
	}
}

// SyncCurrentSession はセッションのユーザーをIdPから取得してUPSERTする。
// externalIDが空（未ログイン）の場合は何もしない。
func (a *Adapter) SyncCurrentSession(ctx context.Context, externalID string) Outcome {
	if externalID == "" {
		return Outcome{}
	}

	pu, err := a.provider.GetUser(ctx, externalID)
	if err != nil {
		return a.fail("sync", externalID, "failed to fetch session user from provider", err)
	}

	user, err := a.syncer.SyncProviderUser(ctx, *pu)
	if err != nil {
		return a.fail("sync", externalID, "failed to sync session user", err)
	}

	return Outcome{User: user}
}

// GetCurrentUser はセッションのユーザーに対応するローカルのレコードを返す。
// レコードが存在しない場合はUserもErrもnil。
func (a *Adapter) GetCurrentUser(ctx context.Context, externalID string) Outcome {
	if externalID == "" {
		return Outcome{}
	}

	user, err := a.users.FindByExternalID(ctx, externalID)
	if err != nil {
		return a.fail("lookup", externalID, "failed to find session user", err)
	}

	return Outcome{User: user}
}

func (a *Adapter) fail(operation, externalID, msg string, err error) Outcome {
	a.logger.Warn(msg,
		slog.String("operation", operation),
		slog.String("external_id", externalID),
		slog.String("error", err.Error()),
	)
	if a.metrics != nil {
		a.metrics.RecordSessionSyncFailure(operation)
	}
	return Outcome{Err: err}
}
