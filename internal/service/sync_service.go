package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sitelog/internal/blogerr"
	"github.com/sitelog/internal/db"
	"github.com/sitelog/internal/filestore"
)

const (
	// DefaultCategorySlug 是内容目录为空时自动创建的分类。
	DefaultCategorySlug        = "default"
	DefaultCategoryName        = "Uncategorized"
	DefaultCategoryDescription = "Default category"

	// DefaultAuthor 用于元数据缺少作者的文章。
	DefaultAuthor = "Admin"
)

// SyncReport 汇总一次同步的结果。
type SyncReport struct {
	RunID        string
	Bootstrapped bool
	Skipped      bool
	Categories   int
	Posts        int
	Failed       int
	Pruned       int
	Duration     time.Duration
}

// SyncEngine reconciles the content tree on disk into the index.
// Only one run may be in flight; an overlapping trigger returns a report with Skipped set.
type SyncEngine struct {
	store   *filestore.FileStore
	index   *db.Index
	logger  *slog.Logger
	now     func() time.Time
	running atomic.Bool
}

// NewSyncEngine creates a SyncEngine. A nil logger falls back to slog.Default().
func NewSyncEngine(store *filestore.FileStore, index *db.Index, logger *slog.Logger) *SyncEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &SyncEngine{store: store, index: index, logger: logger, now: time.Now}
}

// Running reports whether a sync is currently in flight.
func (e *SyncEngine) Running() bool {
	return e.running.Load()
}

// syncState 记录本轮在磁盘上看到的条目，用于清理索引中的孤儿行。
type syncState struct {
	categories map[string]struct{}
	posts      map[db.PostKey]struct{}
	// 解析失败的分类不做清理
	unparsed map[string]struct{}
}

// Run walks the content root and upserts every category and post into the index.
func (e *SyncEngine) Run(ctx context.Context) (report SyncReport, err error) {
	report.RunID = uuid.NewString()
	if !e.running.CompareAndSwap(false, true) {
		e.logger.Info("sync: already running, skipped", slog.String("run_id", report.RunID))
		report.Skipped = true
		return report, nil
	}
	defer e.running.Store(false)

	started := e.now()
	defer func() { report.Duration = e.now().Sub(started) }()

	logger := e.logger.With(slog.String("run_id", report.RunID))

	if err := e.store.EnsureRoot(); err != nil {
		return report, err
	}

	categories, err := e.store.ListCategoryDirs()
	if err != nil {
		return report, err
	}

	if len(categories) == 0 {
		if err := e.EnsureDefaultCategory(); err != nil {
			return report, err
		}
		report.Bootstrapped = true
		report.Categories = 1
		logger.Info("sync: bootstrapped default category", slog.String("category", DefaultCategorySlug))
		return report, nil
	}

	state := syncState{
		categories: make(map[string]struct{}, len(categories)),
		posts:      make(map[db.PostKey]struct{}),
		unparsed:   make(map[string]struct{}),
	}

	for _, slug := range categories {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		state.categories[slug] = struct{}{}

		if err := e.syncCategory(slug); err != nil {
			report.Failed++
			state.unparsed[slug] = struct{}{}
			logger.Warn("sync: skip category", slog.String("category", slug), slog.String("error", err.Error()))
			continue
		}
		report.Categories++

		posts, err := e.store.ListPostDirs(slug)
		if err != nil {
			report.Failed++
			state.unparsed[slug] = struct{}{}
			logger.Warn("sync: list posts failed", slog.String("category", slug), slog.String("error", err.Error()))
			continue
		}

		for _, postSlug := range posts {
			key := db.PostKey{CategorySlug: slug, Slug: postSlug}
			// 失败的文章也算“在磁盘上”，避免被当作孤儿删除
			state.posts[key] = struct{}{}

			if err := e.syncPost(slug, postSlug); err != nil {
				report.Failed++
				logger.Warn("sync: skip post",
					slog.String("category", slug),
					slog.String("post", postSlug),
					slog.String("error", err.Error()))
				continue
			}
			report.Posts++
			logger.Debug("sync: indexed", slog.String("category", slug), slog.String("post", postSlug))
		}
	}

	if err := ctx.Err(); err != nil {
		return report, err
	}

	pruned, err := e.prune(state, logger)
	report.Pruned = pruned
	if err != nil {
		return report, err
	}

	logger.Info("sync: finished",
		slog.Int("categories", report.Categories),
		slog.Int("posts", report.Posts),
		slog.Int("failed", report.Failed),
		slog.Int("pruned", report.Pruned))
	return report, nil
}

// EnsureDefaultCategory creates the default category on disk and in the index when missing.
func (e *SyncEngine) EnsureDefaultCategory() error {
	if err := e.store.EnsureRoot(); err != nil {
		return err
	}

	exists, err := e.store.CategoryExists(DefaultCategorySlug)
	if err != nil {
		return err
	}
	descriptor := filestore.CategoryDescriptor{Name: DefaultCategoryName, Description: DefaultCategoryDescription}
	if exists {
		if existing, err := e.store.ReadCategoryDescriptor(DefaultCategorySlug); err == nil {
			descriptor = existing
		}
	} else {
		order := 0
		descriptor.Order = &order
		if err := e.store.WriteCategoryDescriptor(DefaultCategorySlug, descriptor); err != nil {
			return err
		}
	}

	if _, err := e.index.GetCategory(DefaultCategorySlug); err == nil {
		return nil
	} else if !errors.Is(err, blogerr.ErrNotFound) {
		return err
	}

	name := strings.TrimSpace(descriptor.Name)
	if name == "" {
		name = DefaultCategoryName
	}
	return e.index.UpsertCategory(DefaultCategorySlug, name, descriptor.Description, descriptorOrder(descriptor))
}

func (e *SyncEngine) syncCategory(slug string) error {
	if err := filestore.ValidateSlug(slug); err != nil {
		return err
	}

	if _, err := e.index.GetCategory(slug); err == nil {
		// 索引中已有的名称、描述、排序优先，避免被磁盘上过期的描述文件覆盖
		return nil
	} else if !errors.Is(err, blogerr.ErrNotFound) {
		return err
	}

	descriptor, err := e.store.ReadCategoryDescriptor(slug)
	if err != nil {
		if !errors.Is(err, blogerr.ErrNotFound) {
			e.logger.Warn("sync: unreadable category descriptor, using defaults",
				slog.String("category", slug), slog.String("error", err.Error()))
		}
		descriptor = filestore.CategoryDescriptor{}
	}

	name := strings.TrimSpace(descriptor.Name)
	if name == "" {
		name = slug
	}
	return e.index.UpsertCategory(slug, name, descriptor.Description, descriptorOrder(descriptor))
}

func (e *SyncEngine) syncPost(categorySlug, postSlug string) error {
	if err := filestore.ValidateSlug(postSlug); err != nil {
		return err
	}

	raw, err := e.store.ReadPostBody(categorySlug, postSlug)
	if err != nil {
		return err
	}

	meta, body, err := e.loadMetadata(categorySlug, postSlug, raw)
	if err != nil {
		return err
	}

	existing, err := e.index.GetPost(categorySlug, postSlug)
	if err != nil && !errors.Is(err, blogerr.ErrNotFound) {
		return err
	}

	fields := buildSyncFields(meta, body, existing)
	contentPath := filestore.PostContentPath(categorySlug, postSlug)
	fields.ContentPath = &contentPath

	if existing == nil {
		title := firstNonEmpty(meta.Title, DeriveTitle(body), postSlug)
		author := firstNonEmpty(meta.Author, DefaultAuthor)
		views := int64Value(meta.Views)
		likes := int64Value(meta.Likes)
		fields.Title = &title
		fields.Author = &author
		fields.Views = &views
		fields.Likes = &likes
		if fields.Date == nil {
			date := today(e.now)
			fields.Date = &date
		}
		if fields.UpdatedAt == nil {
			updated := *fields.Date
			fields.UpdatedAt = &updated
		}
	}

	_, err = e.index.UpsertPost(categorySlug, postSlug, fields)
	return err
}

// loadMetadata 优先读 _index.json，缺失时退回到正文的 YAML 前置元数据。
// 损坏的 JSON 直接返回错误，由调用方跳过该文章。
func (e *SyncEngine) loadMetadata(categorySlug, postSlug, raw string) (filestore.PostMetadata, string, error) {
	meta, err := e.store.ReadPostMetadata(categorySlug, postSlug)
	switch {
	case err == nil:
		if _, body, found, fmErr := filestore.ParseFrontMatter(raw); found && fmErr == nil {
			return meta, body, nil
		}
		return meta, raw, nil
	case errors.Is(err, blogerr.ErrNotFound):
	default:
		return filestore.PostMetadata{}, "", err
	}

	fm, body, found, err := filestore.ParseFrontMatter(raw)
	if err != nil {
		e.logger.Warn("sync: invalid front matter, using defaults",
			slog.String("category", categorySlug),
			slog.String("post", postSlug),
			slog.String("error", err.Error()))
		return filestore.PostMetadata{}, raw, nil
	}
	if !found {
		return filestore.PostMetadata{}, raw, nil
	}
	return fm, body, nil
}

// buildSyncFields 生成磁盘可以覆盖的字段；标题、作者与计数器由调用方按是否已入索引决定。
func buildSyncFields(meta filestore.PostMetadata, body string, existing *db.Post) db.PostFields {
	var fields db.PostFields

	if date := strings.TrimSpace(meta.Date); date != "" {
		if normalized, ok := NormalizeDate(date); ok {
			date = normalized
		}
		fields.Date = &date
	}

	summary := strings.TrimSpace(meta.Summary)
	if summary == "" || meta.AutoSummary {
		summary = ExtractSummary(body)
	}
	fields.Summary = &summary

	tags := meta.Tags
	fields.Tags = &tags

	if updated := strings.TrimSpace(meta.UpdatedAt); updated != "" {
		fields.UpdatedAt = &updated
	} else if existing != nil && existing.UpdatedAt == "" && fields.Date != nil {
		backfill := *fields.Date
		fields.UpdatedAt = &backfill
	}

	readingTime := calculateReadingTime(body)
	fields.ReadingTime = &readingTime

	return fields
}

func (e *SyncEngine) prune(state syncState, logger *slog.Logger) (int, error) {
	pruned := 0

	slugs, err := e.index.CategorySlugs()
	if err != nil {
		return pruned, err
	}
	for _, slug := range slugs {
		if _, onDisk := state.categories[slug]; onDisk {
			continue
		}
		if err := e.index.DeleteCategory(slug); err != nil && !errors.Is(err, blogerr.ErrNotFound) {
			logger.Warn("sync: prune category failed", slog.String("category", slug), slog.String("error", err.Error()))
			continue
		}
		pruned++
		logger.Debug("sync: removed stale category", slog.String("category", slug))
	}

	keys, err := e.index.PostKeys()
	if err != nil {
		return pruned, err
	}
	for _, key := range keys {
		if _, onDisk := state.posts[key]; onDisk {
			continue
		}
		if _, failed := state.unparsed[key.CategorySlug]; failed {
			continue
		}
		if err := e.index.DeletePost(key.CategorySlug, key.Slug); err != nil && !errors.Is(err, blogerr.ErrNotFound) {
			logger.Warn("sync: prune post failed",
				slog.String("category", key.CategorySlug),
				slog.String("post", key.Slug),
				slog.String("error", err.Error()))
			continue
		}
		pruned++
		logger.Debug("sync: removed stale post", slog.String("category", key.CategorySlug), slog.String("post", key.Slug))
	}

	return pruned, nil
}

func descriptorOrder(d filestore.CategoryDescriptor) int {
	if d.Order == nil {
		return 0
	}
	return *d.Order
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func int64Value(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}
