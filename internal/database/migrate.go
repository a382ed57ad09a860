// Package database はデータベース接続とマイグレーション管理を提供する。
package database

import (
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrDirtySchema は前回のマイグレーションが途中で失敗したままの場合のエラー。
// 手動で修正してから migrate force でバージョンを確定させる必要がある。
var ErrDirtySchema = errors.New("database schema is dirty")

// MigrationResult はRunMigrationsの適用結果。Versionが0の場合は未適用を表す。
type MigrationResult struct {
	FromVersion uint
	ToVersion   uint
}

// Applied は新たに適用したマイグレーションがあるかを返す。
func (r MigrationResult) Applied() bool {
	return r.ToVersion != r.FromVersion
}

// NewMigrator は埋め込みSQLを読み込むmigrateインスタンスを生成する。
func NewMigrator(databaseURL string) (*migrate.Migrate, error) {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("マイグレーションソースの生成に失敗しました: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("マイグレーターの生成に失敗しました: %w", err)
	}
	return m, nil
}

// RunMigrations は未適用のマイグレーションを全て適用し、前後のバージョンを返す。
// 最新の場合もエラーにはならない。logger がnilの場合は進捗を出力しない。
func RunMigrations(databaseURL string, logger *slog.Logger) (MigrationResult, error) {
	var res MigrationResult

	m, err := NewMigrator(databaseURL)
	if err != nil {
		return res, err
	}
	defer m.Close()
	if logger != nil {
		m.Log = &migrateLogger{logger: logger}
	}

	from, err := currentVersion(m)
	if err != nil {
		return res, err
	}
	res.FromVersion, res.ToVersion = from, from

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			return res, nil
		}
		return res, fmt.Errorf("マイグレーションの適用に失敗しました: %w", err)
	}

	to, err := currentVersion(m)
	if err != nil {
		return res, err
	}
	res.ToVersion = to
	return res, nil
}

// currentVersion は適用済みのバージョンを返す。dirtyな場合は ErrDirtySchema を返す。
func currentVersion(m *migrate.Migrate) (uint, error) {
	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("マイグレーションバージョンの取得に失敗しました: %w", err)
	}
	if dirty {
		return v, fmt.Errorf("%w: version %d", ErrDirtySchema, v)
	}
	return v, nil
}

// migrateLogger はgolang-migrateのログをslogに流す。
type migrateLogger struct {
	logger *slog.Logger
}

func (l *migrateLogger) Printf(format string, v ...interface{}) {
	l.logger.Info("migrate", slog.String("detail", strings.TrimSpace(fmt.Sprintf(format, v...))))
}

func (l *migrateLogger) Verbose() bool {
	return false
}

// compile-time interface check
var _ migrate.Logger = (*migrateLogger)(nil)
