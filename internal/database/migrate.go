// Package database はデータベース接続とマイグレーション管理を提供する。
package database

import (
	"context"
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

// ErrDirtySchema は前回のマイグレーションが途中で失敗したままであることを示す。
// 手動で修復してから migrate force で版を確定させる必要がある。
var ErrDirtySchema = errors.New("database schema is dirty")

// MigrationResult はRunMigrationsの前後のスキーマバージョン。0は未適用。
type MigrationResult struct {
	From uint
	To   uint
}

// Applied は今回新しいマイグレーションが適用されたかどうか。
func (r MigrationResult) Applied() bool { return r.To != r.From }

// NewMigrator は埋め込みSQLを読むmigrateインスタンスを生成する。
// 進捗はslogに出力される。
func NewMigrator(databaseURL string) (*migrate.Migrate, error) {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}
	m.Log = migrateLogger{}
	return m, nil
}

// RunMigrations は未適用のマイグレーションをすべて適用する。
// 最新であれば何もしない。スキーマがdirtyな場合は適用せずErrDirtySchemaを返す。
func RunMigrations(databaseURL string) (MigrationResult, error) {
	m, err := NewMigrator(databaseURL)
	if err != nil {
		return MigrationResult{}, err
	}
	defer m.Close()

	from, err := schemaVersion(m)
	if err != nil {
		return MigrationResult{}, err
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return MigrationResult{From: from}, fmt.Errorf("failed to run migrations: %w", err)
	}

	to, err := schemaVersion(m)
	if err != nil {
		return MigrationResult{From: from}, err
	}
	return MigrationResult{From: from, To: to}, nil
}

func schemaVersion(m *migrate.Migrate) (uint, error) {
	version, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		return 0, nil
	case err != nil:
		return 0, fmt.Errorf("failed to read migration version: %w", err)
	case dirty:
		return version, fmt.Errorf("%w at version %d", ErrDirtySchema, version)
	}
	return version, nil
}

// migrateLogger はgolang-migrateのログをslogへ流す。
type migrateLogger struct{}

func (migrateLogger) Printf(format string, v ...any) {
	slog.Info(strings.TrimSpace(fmt.Sprintf(format, v...)), slog.String("component", "migrate"))
}

func (migrateLogger) Verbose() bool {
	return slog.Default().Enabled(context.Background(), slog.LevelDebug)
}
