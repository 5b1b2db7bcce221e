package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/pressly/goose/v3"
	"gorm.io/gorm"
)

// schemaMigration 是一次只增不删的结构变更，每个版本在独立事务中执行一次。
type schemaMigration struct {
	version int64
	name    string
	up      func(ctx context.Context, tx *sql.Tx) error
}

var schemaMigrations = []schemaMigration{
	{version: 1, name: "initial_schema", up: migrateInitialSchema},
	{version: 2, name: "add_posts_tags", up: addColumnIfMissing("posts", "tags", "TEXT NOT NULL DEFAULT ''")},
	{version: 3, name: "add_posts_updated_at", up: migrateAddUpdatedAt},
	{version: 4, name: "add_posts_reading_time", up: addColumnIfMissing("posts", "reading_time", "INTEGER NOT NULL DEFAULT 0")},
	{version: 5, name: "index_posts_category", up: migrateIndexPostsCategory},
	{version: 6, name: "add_posts_search_text", up: migrateAddSearchText},
}

// MigrationRecord 描述一个迁移版本在账本中的状态。
type MigrationRecord struct {
	Version   int64
	Name      string
	Applied   bool
	AppliedAt time.Time
}

// MigrationState 汇总当前数据库版本与全部迁移。
type MigrationState struct {
	CurrentVersion int64
	Migrations     []MigrationRecord
}

func migrationName(version int64) string {
	for _, m := range schemaMigrations {
		if m.version == version {
			return m.name
		}
	}
	return ""
}

func newProvider(gdb *gorm.DB) (*goose.Provider, error) {
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}

	migrations := make([]*goose.Migration, 0, len(schemaMigrations))
	for _, m := range schemaMigrations {
		migrations = append(migrations, goose.NewGoMigration(m.version, &goose.GoFunc{RunTx: m.up}, nil))
	}

	return goose.NewProvider(goose.DialectSQLite3, sqlDB, nil, goose.WithGoMigrations(migrations...))
}

// Migrate applies pending migrations in ascending order and returns the names it ran.
// 已记录在 goose_db_version 中的版本不会再执行。
func Migrate(ctx context.Context, gdb *gorm.DB) ([]string, error) {
	provider, err := newProvider(gdb)
	if err != nil {
		return nil, fmt.Errorf("init migrations: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return nil, fmt.Errorf("apply migrations: %w", err)
	}

	applied := make([]string, 0, len(results))
	for _, result := range results {
		if result.Source == nil {
			continue
		}
		applied = append(applied, migrationName(result.Source.Version))
	}
	return applied, nil
}

// Status reports every known migration and whether the ledger marks it applied.
func Status(ctx context.Context, gdb *gorm.DB) (MigrationState, error) {
	provider, err := newProvider(gdb)
	if err != nil {
		return MigrationState{}, fmt.Errorf("init migrations: %w", err)
	}

	statuses, err := provider.Status(ctx)
	if err != nil {
		return MigrationState{}, fmt.Errorf("migration status: %w", err)
	}

	version, err := provider.GetDBVersion(ctx)
	if err != nil {
		return MigrationState{}, fmt.Errorf("migration version: %w", err)
	}

	state := MigrationState{CurrentVersion: version, Migrations: make([]MigrationRecord, 0, len(statuses))}
	for _, status := range statuses {
		if status.Source == nil {
			continue
		}
		state.Migrations = append(state.Migrations, MigrationRecord{
			Version:   status.Source.Version,
			Name:      migrationName(status.Source.Version),
			Applied:   status.State == goose.StateApplied,
			AppliedAt: status.AppliedAt,
		})
	}
	return state, nil
}

func migrateInitialSchema(ctx context.Context, tx *sql.Tx) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS categories (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			slug TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			sort_order INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS posts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			category_slug TEXT NOT NULL,
			slug TEXT NOT NULL,
			title TEXT NOT NULL,
			date TEXT NOT NULL,
			views INTEGER NOT NULL DEFAULT 0,
			likes INTEGER NOT NULL DEFAULT 0,
			author TEXT NOT NULL DEFAULT '',
			summary TEXT NOT NULL DEFAULT '',
			content_path TEXT NOT NULL,
			UNIQUE (category_slug, slug),
			FOREIGN KEY (category_slug) REFERENCES categories(slug) ON DELETE CASCADE ON UPDATE CASCADE
		)`,
	}
	for _, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func migrateAddUpdatedAt(ctx context.Context, tx *sql.Tx) error {
	if err := addColumnIfMissing("posts", "updated_at", "TEXT NOT NULL DEFAULT ''")(ctx, tx); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, `UPDATE posts SET updated_at = date WHERE updated_at = ''`)
	return err
}

func migrateIndexPostsCategory(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_posts_category_slug ON posts (category_slug)`)
	return err
}

// migrateAddSearchText 回填小写后的标题与标签；SQLite 的 LOWER 只处理 ASCII，所以在 Go 里转换。
func migrateAddSearchText(ctx context.Context, tx *sql.Tx) error {
	if err := addColumnIfMissing("posts", "search_text", "TEXT NOT NULL DEFAULT ''")(ctx, tx); err != nil {
		return err
	}

	rows, err := tx.QueryContext(ctx, `SELECT id, title, tags FROM posts`)
	if err != nil {
		return err
	}
	texts := map[int64]string{}
	for rows.Next() {
		var (
			id          int64
			title, tags string
		)
		if err := rows.Scan(&id, &title, &tags); err != nil {
			rows.Close()
			return err
		}
		texts[id] = searchText(title, tags)
	}
	if err := rows.Close(); err != nil {
		return err
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for id, text := range texts {
		if _, err := tx.ExecContext(ctx, `UPDATE posts SET search_text = ? WHERE id = ?`, text, id); err != nil {
			return err
		}
	}
	return nil
}

// searchText 用换行分隔，避免搜索词跨越标题和标签拼接处命中。
func searchText(title, tags string) string {
	return strings.ToLower(title) + "\n" + strings.ToLower(tags)
}

// addColumnIfMissing 先查 PRAGMA table_info，库中已有该列时跳过。
func addColumnIfMissing(table, column, definition string) func(context.Context, *sql.Tx) error {
	return func(ctx context.Context, tx *sql.Tx) error {
		exists, err := hasColumn(ctx, tx, table, column)
		if err != nil {
			return err
		}
		if exists {
			return nil
		}
		_, err = tx.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, definition))
		return err
	}
}

func hasColumn(ctx context.Context, tx *sql.Tx, table, column string) (bool, error) {
	rows, err := tx.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid       int
			name      string
			ctype     string
			notNull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dfltValue, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}
