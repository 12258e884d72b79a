// Package database はストア接続の確立とスキーマ移行を扱う。
package database

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/hitoshi/storefront/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// MigrationStatus は移行後のスキーマバージョン。
type MigrationStatus struct {
	Version uint
	// Changed は今回の実行で1つ以上のマイグレーションを適用したかどうか。
	Changed bool
}

// NewMigrator は埋め込みSQLを移行元とするmigrateインスタンスを生成する。
// この時点でストアへ接続するため、到達できない場合はmodel.ErrConnectionを返す。
func NewMigrator(databaseURL string) (*migrate.Migrate, error) {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("%w: migration source: %w", model.ErrConfiguration, err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: migrator: %w", model.ErrConnection, err)
	}
	return m, nil
}

// RunMigrations は未適用のマイグレーションを全て適用する。
// 既に最新なら Changed=false で成功する。dirty状態のスキーマは手動復旧が必要なためエラーにする。
func RunMigrations(databaseURL string) (MigrationStatus, error) {
	m, err := NewMigrator(databaseURL)
	if err != nil {
		return MigrationStatus{}, err
	}
	defer m.Close()

	before, _, err := schemaVersion(m)
	if err != nil {
		return MigrationStatus{}, err
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return MigrationStatus{}, fmt.Errorf("%w: apply migrations: %w", model.ErrPersistence, err)
	}

	after, dirty, err := schemaVersion(m)
	if err != nil {
		return MigrationStatus{}, err
	}
	if dirty {
		return MigrationStatus{}, fmt.Errorf("%w: schema version %d is dirty", model.ErrPersistence, after)
	}

	return MigrationStatus{Version: after, Changed: after != before}, nil
}

func schemaVersion(m *migrate.Migrate) (uint, bool, error) {
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("%w: read schema version: %w", model.ErrPersistence, err)
	}
	return version, dirty, nil
}
