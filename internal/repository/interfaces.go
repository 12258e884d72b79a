// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/hitoshi/storefront/internal/model"
)

// DBProvider は接続済みのDBハンドルを提供するインターフェース。
// database.Connectorが実装する。接続確認前のハンドルは返さない。
type DBProvider interface {
	Ensure(ctx context.Context) (*sql.DB, error)
	OperationTimeout() time.Duration
}

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// UpsertByExternalID はexternal_idをキーにユーザーを挿入または更新し、更新後のレコードを返す。
	// 存在しなければ挿入（ID・作成日時はこのとき採番）し、存在すれば同じ行を上書きする。
	// insertedは新規挿入だった場合にtrue。
	// 別ユーザーが同じメールアドレスを持つ場合はmodel.ErrEmailConflictを返す。
	UpsertByExternalID(ctx context.Context, profile model.UserProfile) (user *model.User, inserted bool, err error)

	// FindByExternalID はexternal_idでユーザーを取得する。見つからない場合はnilを返す。
	FindByExternalID(ctx context.Context, externalID string) (*model.User, error)

	// DeleteByExternalID はexternal_idに一致するユーザーを物理削除する。
	// 一致する行がなかった場合はfalseを返し、エラーにはしない。
	DeleteByExternalID(ctx context.Context, externalID string) (deleted bool, err error)
}
