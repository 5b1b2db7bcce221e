package db

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	// 纯 Go 驱动，注册名为 "sqlite"，供无 CGO 环境使用
	_ "modernc.org/sqlite"
)

const (
	// DriverCGO 使用 mattn/go-sqlite3（gorm sqlite 驱动默认）。
	DriverCGO = "sqlite3"
	// DriverPureGo 使用 modernc.org/sqlite。
	DriverPureGo = "sqlite"

	defaultDatabasePath = "content/db.sqlite3"
)

// Options 描述打开索引数据库所需的参数。
type Options struct {
	Path   string
	Driver string
	Logger logger.Interface
}

// Open 打开（或创建）SQLite 索引数据库。
// Path 为空时回退到 content/db.sqlite3，Driver 为空时使用 sqlite3。
// Open 不执行迁移，调用方需要再调用 Index.EnsureSchema。
func Open(opts Options) (*gorm.DB, error) {
	path := strings.TrimSpace(opts.Path)
	if path == "" {
		path = defaultDatabasePath
	}

	if path != ":memory:" {
		if err := ensureParentDir(path); err != nil {
			return nil, err
		}
	}

	dialector, err := dialectorFor(strings.TrimSpace(opts.Driver), path)
	if err != nil {
		return nil, err
	}

	gormLogger := opts.Logger
	if gormLogger == nil {
		gormLogger = logger.Default.LogMode(logger.Warn)
	}

	gdb, err := gorm.Open(dialector, &gorm.Config{Logger: gormLogger})
	if err != nil {
		return nil, fmt.Errorf("open index database: %w", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("index database handle: %w", err)
	}
	// SQLite 写入本来就是串行的；内存库每个连接各有一份，也只能保留一个连接
	sqlDB.SetMaxOpenConns(1)

	return gdb, nil
}

// Close releases the underlying connection pool.
func Close(gdb *gorm.DB) error {
	if gdb == nil {
		return nil
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func dialectorFor(driver, path string) (gorm.Dialector, error) {
	switch driver {
	case "", DriverCGO:
		return sqlite.Open(withParams(path, "_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL")), nil
	case DriverPureGo:
		return sqlite.New(sqlite.Config{
			DriverName: DriverPureGo,
			DSN:        withParams(path, "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"),
		}), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

func withParams(path, params string) string {
	if path == ":memory:" {
		return "file::memory:?" + params
	}
	if strings.Contains(path, "?") {
		return path + "&" + params
	}
	return "file:" + path + "?" + params
}

func ensureParentDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}

	info, err := os.Stat(dir)
	if err == nil {
		if !info.IsDir() {
			return errors.New("database path parent is not a directory")
		}
		return nil
	}

	if os.IsNotExist(err) {
		return os.MkdirAll(dir, 0o755)
	}

	return err
}
