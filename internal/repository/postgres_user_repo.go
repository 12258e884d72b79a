package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/hitoshi/storefront/internal/model"
)

const (
	// uniqueViolation はPostgreSQLの一意制約違反のSQLSTATE。
	uniqueViolation = "23505"
	// emailConstraint はemailの一意制約名。マイグレーションで定義する。
	emailConstraint = "users_email_key"
)

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db  DBProvider
	now func() time.Time
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db DBProvider) *PostgresUserRepo {
	return &PostgresUserRepo{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// UpsertByExternalID はexternal_idをキーにユーザーを挿入または更新する。
// UNIQUE(external_id)制約を利用したINSERT ON CONFLICTで1文のアトミックな操作として実行するため、
// 同じexternal_idへの同時呼び出しでもレコードは1件に保たれる。
// xmax = 0 は今回のINSERTで作られた行であることを示す。
func (r *PostgresUserRepo) UpsertByExternalID(ctx context.Context, profile model.UserProfile) (*model.User, bool, error) {
	profile = profile.Normalize()
	if err := profile.Validate(); err != nil {
		return nil, false, fmt.Errorf("%w: %w", model.ErrPersistence, err)
	}

	db, err := r.db.Ensure(ctx)
	if err != nil {
		return nil, false, err
	}

	ctx, cancel := context.WithTimeout(ctx, r.db.OperationTimeout())
	defer cancel()

	now := r.now()
	user := &model.User{}
	var inserted bool

	err = db.QueryRowContext(ctx,
		`INSERT INTO users (id, external_id, email, display_name, profile_image_url, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $6)
		 ON CONFLICT (external_id) DO UPDATE SET
		     email = EXCLUDED.email,
		     display_name = EXCLUDED.display_name,
		     profile_image_url = EXCLUDED.profile_image_url,
		     updated_at = EXCLUDED.updated_at
		 RETURNING id, external_id, email, display_name, profile_image_url, created_at, updated_at, (xmax = 0)`,
		uuid.New().String(), profile.ExternalID, profile.Email, profile.DisplayName, profile.ProfileImageURL, now,
	).Scan(
		&user.ID, &user.ExternalID, &user.Email, &user.DisplayName, &user.ProfileImageURL,
		&user.CreatedAt, &user.UpdatedAt, &inserted,
	)
	if err != nil {
		return nil, false, classifyStoreError("failed to upsert user", err)
	}

	return user, inserted, nil
}

// FindByExternalID はexternal_idでユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByExternalID(ctx context.Context, externalID string) (*model.User, error) {
	db, err := r.db.Ensure(ctx)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, r.db.OperationTimeout())
	defer cancel()

	user := &model.User{}
	err = db.QueryRowContext(ctx,
		`SELECT id, external_id, email, display_name, profile_image_url, created_at, updated_at
		 FROM users WHERE external_id = $1`,
		externalID,
	).Scan(
		&user.ID, &user.ExternalID, &user.Email, &user.DisplayName, &user.ProfileImageURL,
		&user.CreatedAt, &user.UpdatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classifyStoreError("failed to find user by external id", err)
	}

	return user, nil
}

// DeleteByExternalID はexternal_idに一致するユーザーを削除する。
// 存在しない場合もエラーにせずfalseを返す（冪等）。
func (r *PostgresUserRepo) DeleteByExternalID(ctx context.Context, externalID string) (bool, error) {
	db, err := r.db.Ensure(ctx)
	if err != nil {
		return false, err
	}

	ctx, cancel := context.WithTimeout(ctx, r.db.OperationTimeout())
	defer cancel()

	result, err := db.ExecContext(ctx,
		`DELETE FROM users WHERE external_id = $1`,
		externalID,
	)
	if err != nil {
		return false, classifyStoreError("failed to delete user", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, classifyStoreError("failed to get rows affected", err)
	}

	return rowsAffected > 0, nil
}

// classifyStoreError はストアのエラーをエラー分類に対応付ける。
// メールアドレスの一意制約違反はErrEmailConflict、それ以外はErrPersistenceとする。
func classifyStoreError(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation && pqErr.Constraint == emailConstraint {
		return fmt.Errorf("%s: %w: %w", op, model.ErrEmailConflict, err)
	}
	return fmt.Errorf("%s: %w: %w", op, model.ErrPersistence, err)
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
