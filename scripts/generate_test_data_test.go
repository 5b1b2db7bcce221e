package main

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/sitelog/internal/db"
	"github.com/sitelog/internal/filestore"
	"github.com/sitelog/internal/service"
	"gorm.io/gorm/logger"
)

func setupSeedTestBlog(t *testing.T) *service.BlogService {
	t.Helper()
	dir := t.TempDir()

	gdb, err := db.Open(db.Options{
		Path:   filepath.Join(dir, "seed.sqlite3"),
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close(gdb) })

	index := db.NewIndex(gdb)
	if err := index.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("failed to migrate test db: %v", err)
	}

	store := filestore.New(filepath.Join(dir, "blog"))
	engine := service.NewSyncEngine(store, index, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return service.NewBlogService(store, index, engine)
}

func TestSeedContentIsRepeatable(t *testing.T) {
	blog := setupSeedTestBlog(t)

	categories, posts, err := seedContent(blog)
	if err != nil {
		t.Fatalf("seed content: %v", err)
	}
	if categories != len(seedCategories) || posts != len(seedPosts) {
		t.Fatalf("unexpected seed counts %d/%d", categories, posts)
	}

	if _, err := blog.IncrementViews("tech", "gorm-tips"); err != nil {
		t.Fatalf("increment views: %v", err)
	}

	categories, _, err = seedContent(blog)
	if err != nil {
		t.Fatalf("second seed: %v", err)
	}
	if categories != 0 {
		t.Fatalf("expected existing categories skipped, got %d", categories)
	}

	page, err := blog.GetAllPosts(service.PostListOptions{PageSize: 100})
	if err != nil {
		t.Fatalf("list posts: %v", err)
	}
	if page.Total != int64(len(seedPosts)) {
		t.Fatalf("expected %d posts, got %d", len(seedPosts), page.Total)
	}

	tech, err := blog.GetPostsByCategory("tech", service.PostListOptions{SortBy: "views"})
	if err != nil {
		t.Fatalf("list tech posts: %v", err)
	}
	if tech.Posts[0].Slug != "gorm-tips" || tech.Posts[0].Views != 1 {
		t.Fatalf("expected reseeding to keep view counts, got %+v", tech.Posts[0])
	}
}
