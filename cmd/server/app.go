package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sitelog/internal/db"
	"github.com/sitelog/internal/filestore"
	"github.com/sitelog/internal/service"
	"gorm.io/gorm"
)

// app 持有一次进程运行所需的存储与服务。
type app struct {
	gdb    *gorm.DB
	index  *db.Index
	store  *filestore.FileStore
	engine *service.SyncEngine
	blog   *service.BlogService
}

// openApp 打开索引数据库与内容目录。migrate 为 true 时先执行待应用的迁移。
func openApp(ctx context.Context, migrate bool) (*app, error) {
	gdb, err := db.Open(db.Options{Path: cfg.DatabasePath, Driver: cfg.DatabaseDriver})
	if err != nil {
		return nil, err
	}

	index := db.NewIndex(gdb)
	if migrate {
		if err := index.EnsureSchema(ctx); err != nil {
			_ = db.Close(gdb)
			return nil, fmt.Errorf("migrate index: %w", err)
		}
	}

	store := filestore.New(cfg.ContentRoot)
	if err := store.EnsureRoot(); err != nil {
		_ = db.Close(gdb)
		return nil, err
	}

	engine := service.NewSyncEngine(store, index, slog.Default())
	return &app{
		gdb:    gdb,
		index:  index,
		store:  store,
		engine: engine,
		blog:   service.NewBlogService(store, index, engine),
	}, nil
}

func (a *app) Close() {
	if err := db.Close(a.gdb); err != nil {
		slog.Warn("close index", "error", err)
	}
}
