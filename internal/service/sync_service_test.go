package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sitelog/internal/blogerr"
	"github.com/sitelog/internal/db"
	"github.com/sitelog/internal/filestore"
	"gorm.io/gorm/logger"
)

type testEnv struct {
	store  *filestore.FileStore
	index  *db.Index
	engine *SyncEngine
	svc    *BlogService
}

func setupServiceTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()

	gdb, err := db.Open(db.Options{
		Path:   filepath.Join(dir, "index.sqlite3"),
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close(gdb) })

	index := db.NewIndex(gdb)
	if err := index.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	store := filestore.New(filepath.Join(dir, "blog"))
	engine := NewSyncEngine(store, index, slog.New(slog.NewTextHandler(io.Discard, nil)))
	fixed := func() time.Time { return time.Date(2025, 6, 1, 8, 30, 0, 0, time.UTC) }
	engine.now = fixed

	svc := NewBlogService(store, index, engine)
	svc.now = fixed

	return &testEnv{store: store, index: index, engine: engine, svc: svc}
}

func (env *testEnv) writeCategory(t *testing.T, slug, name string) {
	t.Helper()
	if err := env.store.WriteCategoryDescriptor(slug, filestore.CategoryDescriptor{Name: name}); err != nil {
		t.Fatalf("write category %s: %v", slug, err)
	}
}

func (env *testEnv) writePost(t *testing.T, category, slug string, meta *filestore.PostMetadata, body string) {
	t.Helper()
	if meta != nil {
		if err := env.store.WritePostMetadata(category, slug, *meta); err != nil {
			t.Fatalf("write metadata %s/%s: %v", category, slug, err)
		}
	}
	if err := env.store.WritePostBody(category, slug, body); err != nil {
		t.Fatalf("write body %s/%s: %v", category, slug, err)
	}
}

func (env *testEnv) runSync(t *testing.T) SyncReport {
	t.Helper()
	report, err := env.engine.Run(context.Background())
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	return report
}

func countRows(t *testing.T, index *db.Index) (int64, int64) {
	t.Helper()
	var categories, posts int64
	if err := index.DB().Model(&db.Category{}).Count(&categories).Error; err != nil {
		t.Fatalf("count categories: %v", err)
	}
	if err := index.DB().Model(&db.Post{}).Count(&posts).Error; err != nil {
		t.Fatalf("count posts: %v", err)
	}
	return categories, posts
}

func TestSyncBootstrapsDefaultCategory(t *testing.T) {
	env := setupServiceTestEnv(t)

	report := env.runSync(t)
	if !report.Bootstrapped {
		t.Fatalf("expected bootstrap on empty root")
	}
	if report.RunID == "" {
		t.Fatalf("expected run id")
	}

	descriptor, err := env.store.ReadCategoryDescriptor(DefaultCategorySlug)
	if err != nil {
		t.Fatalf("read default descriptor: %v", err)
	}
	if descriptor.Name != DefaultCategoryName {
		t.Fatalf("expected descriptor name %q, got %q", DefaultCategoryName, descriptor.Name)
	}

	category, err := env.index.GetCategory(DefaultCategorySlug)
	if err != nil {
		t.Fatalf("get default category: %v", err)
	}
	if category.Name != DefaultCategoryName || category.PostCount != 0 {
		t.Fatalf("unexpected default category: %+v", category)
	}

	second := env.runSync(t)
	if second.Bootstrapped {
		t.Fatalf("expected second run to walk the existing default category")
	}
	categories, posts := countRows(t, env.index)
	if categories != 1 || posts != 0 {
		t.Fatalf("expected 1 category and 0 posts, got %d and %d", categories, posts)
	}
}

func TestSyncIsIdempotent(t *testing.T) {
	env := setupServiceTestEnv(t)
	env.writeCategory(t, "tech", "Tech")
	env.writeCategory(t, "life", "Life")

	views := int64(3)
	env.writePost(t, "tech", "go", &filestore.PostMetadata{Title: "Go", Date: "2024-2-1", Views: &views, Tags: "go,backend"}, "# Go\n\nfirst paragraph")
	env.writePost(t, "tech", "rust", &filestore.PostMetadata{Title: "Rust", Date: "2024-03-01"}, "body")
	env.writePost(t, "life", "walk", nil, "# A Walk\n\noutside")

	first := env.runSync(t)
	if first.Categories != 2 || first.Posts != 3 || first.Failed != 0 {
		t.Fatalf("unexpected first report: %+v", first)
	}

	if _, err := env.index.IncrementViews("tech", "go"); err != nil {
		t.Fatalf("increment views: %v", err)
	}
	if _, err := env.index.IncrementLikes("life", "walk"); err != nil {
		t.Fatalf("increment likes: %v", err)
	}

	catsBefore, postsBefore := countRows(t, env.index)
	second := env.runSync(t)
	if second.Pruned != 0 {
		t.Fatalf("expected nothing pruned, got %d", second.Pruned)
	}
	catsAfter, postsAfter := countRows(t, env.index)
	if catsBefore != catsAfter || postsBefore != postsAfter {
		t.Fatalf("row counts changed: %d/%d -> %d/%d", catsBefore, postsBefore, catsAfter, postsAfter)
	}

	goPost, err := env.index.GetPost("tech", "go")
	if err != nil {
		t.Fatalf("get tech/go: %v", err)
	}
	if goPost.Views != 4 {
		t.Fatalf("expected views 4 after resync, got %d", goPost.Views)
	}
	if goPost.Date != "2024-02-01" {
		t.Fatalf("expected normalized date, got %q", goPost.Date)
	}
	if goPost.ContentPath != "tech/go/index.md" {
		t.Fatalf("unexpected content path %q", goPost.ContentPath)
	}
	if goPost.Summary != "first paragraph" {
		t.Fatalf("expected derived summary, got %q", goPost.Summary)
	}
	if goPost.Author != DefaultAuthor {
		t.Fatalf("expected default author, got %q", goPost.Author)
	}

	walk, err := env.index.GetPost("life", "walk")
	if err != nil {
		t.Fatalf("get life/walk: %v", err)
	}
	if walk.Likes != 1 {
		t.Fatalf("expected likes preserved, got %d", walk.Likes)
	}
	if walk.Title != "A Walk" {
		t.Fatalf("expected title from heading, got %q", walk.Title)
	}
	if walk.Date != "2025-06-01" {
		t.Fatalf("expected today's date for post without metadata, got %q", walk.Date)
	}
}

func TestSyncUsesFrontMatterWhenMetadataMissing(t *testing.T) {
	env := setupServiceTestEnv(t)
	env.writeCategory(t, "notes", "Notes")
	env.writePost(t, "notes", "fm", nil, "---\ntitle: From Front Matter\ndate: 2024-03-01\nauthor: Jane\ntags: [a, b]\n---\n# Heading\nBody line\n")

	env.runSync(t)

	post, err := env.index.GetPost("notes", "fm")
	if err != nil {
		t.Fatalf("get post: %v", err)
	}
	if post.Title != "From Front Matter" {
		t.Fatalf("expected front matter title, got %q", post.Title)
	}
	if post.Date != "2024-03-01" || post.Author != "Jane" || post.Tags != "a,b" {
		t.Fatalf("unexpected front matter fields: %+v", post)
	}
	if post.Summary != "Body line" {
		t.Fatalf("expected summary from body after front matter, got %q", post.Summary)
	}
}

func TestSyncSkipsCorruptMetadata(t *testing.T) {
	env := setupServiceTestEnv(t)
	env.writeCategory(t, "tech", "Tech")
	env.writePost(t, "tech", "good", &filestore.PostMetadata{Title: "Good", Date: "2024-01-01"}, "ok")
	env.writePost(t, "tech", "bad", &filestore.PostMetadata{Title: "Bad", Date: "2024-01-01"}, "ok")

	env.runSync(t)
	if _, err := env.index.GetPost("tech", "bad"); err != nil {
		t.Fatalf("expected bad post indexed before corruption: %v", err)
	}

	corrupt := filepath.Join(env.store.Root(), "tech", "bad", filestore.PostMetadataFile)
	if err := os.WriteFile(corrupt, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("corrupt metadata: %v", err)
	}
	env.writePost(t, "tech", "fresh", &filestore.PostMetadata{Title: "Fresh", Date: "2024-01-02"}, "new")

	report := env.runSync(t)
	if report.Failed != 1 {
		t.Fatalf("expected one failure, got %+v", report)
	}
	if report.Posts != 2 {
		t.Fatalf("expected the walk to continue past the corrupt post, got %+v", report)
	}
	if _, err := env.index.GetPost("tech", "fresh"); err != nil {
		t.Fatalf("expected post after the corrupt one indexed: %v", err)
	}
	if _, err := env.index.GetPost("tech", "bad"); err != nil {
		t.Fatalf("expected corrupt post kept in index, got %v", err)
	}
}

func TestSyncSkipsPostWithoutBody(t *testing.T) {
	env := setupServiceTestEnv(t)
	env.writeCategory(t, "tech", "Tech")
	if err := env.store.WritePostMetadata("tech", "draft", filestore.PostMetadata{Title: "Draft"}); err != nil {
		t.Fatalf("write metadata: %v", err)
	}

	report := env.runSync(t)
	if report.Failed != 1 || report.Posts != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if _, err := env.index.GetPost("tech", "draft"); !errors.Is(err, blogerr.ErrNotFound) {
		t.Fatalf("expected post without body to stay unindexed, got %v", err)
	}
}

func TestSyncPrunesOrphans(t *testing.T) {
	env := setupServiceTestEnv(t)
	env.writeCategory(t, "tech", "Tech")
	env.writeCategory(t, "gone", "Gone")
	env.writePost(t, "tech", "keep", nil, "# Keep")
	env.writePost(t, "tech", "drop", nil, "# Drop")
	env.writePost(t, "gone", "inside", nil, "# Inside")

	env.runSync(t)

	if err := env.store.DeletePostDir("tech", "drop"); err != nil {
		t.Fatalf("remove post dir: %v", err)
	}
	if err := env.store.DeleteCategoryDir("gone"); err != nil {
		t.Fatalf("remove category dir: %v", err)
	}

	report := env.runSync(t)
	if report.Pruned != 2 {
		t.Fatalf("expected 2 pruned entries, got %+v", report)
	}
	if _, err := env.index.GetPost("tech", "drop"); !errors.Is(err, blogerr.ErrNotFound) {
		t.Fatalf("expected tech/drop pruned, got %v", err)
	}
	if _, err := env.index.GetCategory("gone"); !errors.Is(err, blogerr.ErrNotFound) {
		t.Fatalf("expected category gone pruned, got %v", err)
	}
	if _, err := env.index.GetPost("tech", "keep"); err != nil {
		t.Fatalf("expected tech/keep to remain: %v", err)
	}
}

func TestSyncRederivesAutoSummary(t *testing.T) {
	env := setupServiceTestEnv(t)
	env.writeCategory(t, "tech", "Tech")
	env.writePost(t, "tech", "auto", &filestore.PostMetadata{
		Title: "Auto", Date: "2025-01-01", Summary: "Old text.", AutoSummary: true,
	}, "Edited outside the app.")
	env.writePost(t, "tech", "manual", &filestore.PostMetadata{
		Title: "Manual", Date: "2025-01-01", Summary: "Curated text.",
	}, "Edited outside the app.")

	env.runSync(t)

	tests := []struct {
		slug string
		want string
	}{
		{slug: "auto", want: "Edited outside the app."},
		{slug: "manual", want: "Curated text."},
	}
	for _, tt := range tests {
		t.Run(tt.slug, func(t *testing.T) {
			post, err := env.index.GetPost("tech", tt.slug)
			if err != nil {
				t.Fatalf("get post: %v", err)
			}
			if post.Summary != tt.want {
				t.Fatalf("expected summary %q, got %q", tt.want, post.Summary)
			}
		})
	}
}

func TestSyncIndexWinsForCategoryDisplay(t *testing.T) {
	env := setupServiceTestEnv(t)
	env.writeCategory(t, "tech", "Disk Name")
	if err := env.index.UpsertCategory("tech", "Index Name", "index description", 7); err != nil {
		t.Fatalf("seed category: %v", err)
	}

	env.runSync(t)

	category, err := env.index.GetCategory("tech")
	if err != nil {
		t.Fatalf("get category: %v", err)
	}
	if category.Name != "Index Name" || category.Description != "index description" || category.SortOrder != 7 {
		t.Fatalf("expected index values to win, got %+v", category)
	}
}

func TestSyncGuardSkipsOverlappingRun(t *testing.T) {
	env := setupServiceTestEnv(t)
	env.writeCategory(t, "tech", "Tech")

	env.engine.running.Store(true)
	report, err := env.engine.Run(context.Background())
	if err != nil {
		t.Fatalf("expected overlapping run to be a no-op, got %v", err)
	}
	if !report.Skipped {
		t.Fatalf("expected Skipped report")
	}
	if _, err := env.index.GetCategory("tech"); !errors.Is(err, blogerr.ErrNotFound) {
		t.Fatalf("expected skipped run to leave the index untouched, got %v", err)
	}

	env.engine.running.Store(false)
	report = env.runSync(t)
	if report.Skipped || report.Categories != 1 {
		t.Fatalf("expected normal run after release, got %+v", report)
	}
	if env.engine.Running() {
		t.Fatalf("expected guard released after run")
	}
}

func TestSyncReleasesGuardOnError(t *testing.T) {
	env := setupServiceTestEnv(t)
	env.writeCategory(t, "tech", "Tech")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := env.engine.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if env.engine.Running() {
		t.Fatalf("expected guard released after a failed run")
	}
}
