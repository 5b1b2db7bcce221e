package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sitelog/internal/blogerr"
	"github.com/sitelog/internal/db"
	"github.com/sitelog/internal/filestore"
)

// CategoryInput 是创建分类所需的数据，SortOrder 为空时排在最后。
type CategoryInput struct {
	Slug        string
	Name        string
	Description string
	SortOrder   *int
}

// CategoryUpdate 仅包含需要修改的字段。
type CategoryUpdate struct {
	Slug        *string
	Name        *string
	Description *string
	SortOrder   *int
}

// PostInput 描述一次文章保存，nil 字段保留原值，Content 为空时不改写正文。
type PostInput struct {
	Title   *string
	Date    *string
	Author  *string
	Summary *string
	Tags    *string
	Views   *int64
	Likes   *int64
	Content *string
}

// PostListOptions 对应列表接口的查询参数。
type PostListOptions struct {
	Page      int
	PageSize  int
	Query     string
	SortBy    string
	SortOrder string
}

// PostDetail 是索引行加上正文。
type PostDetail struct {
	Post    db.Post
	Content string
}

// BlogService is the facade used by route handlers.
// Writes go to the file tree first and then to the index.
type BlogService struct {
	store *filestore.FileStore
	index *db.Index
	sync  *SyncEngine
	now   func() time.Time
}

// NewBlogService creates a BlogService instance.
func NewBlogService(store *filestore.FileStore, index *db.Index, engine *SyncEngine) *BlogService {
	return &BlogService{store: store, index: index, sync: engine, now: time.Now}
}

// ListCategories 返回全部分类；索引为空时先同步一次，仍为空则创建默认分类。
func (s *BlogService) ListCategories(ctx context.Context) ([]db.Category, error) {
	categories, err := s.index.ListCategories()
	if err != nil || len(categories) > 0 {
		return categories, err
	}

	report, err := s.sync.Run(ctx)
	if err != nil {
		return nil, err
	}
	categories, err = s.index.ListCategories()
	if err != nil || len(categories) > 0 || report.Skipped {
		// 另一轮同步尚未结束时不能断定磁盘为空，交给那一轮处理。
		return categories, err
	}

	if err := s.sync.EnsureDefaultCategory(); err != nil {
		return nil, err
	}
	return s.index.ListCategories()
}

// GetCategory returns one category with its post count.
func (s *BlogService) GetCategory(slug string) (*db.Category, error) {
	return s.index.GetCategory(strings.TrimSpace(slug))
}

// CreateCategory writes the descriptor and then inserts the index row.
func (s *BlogService) CreateCategory(input CategoryInput) (*db.Category, error) {
	slug := strings.TrimSpace(input.Slug)
	if err := filestore.ValidateSlug(slug); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, blogerr.Invalid("category name is required")
	}

	if _, err := s.index.GetCategory(slug); err == nil {
		return nil, blogerr.Conflict("category %s", slug)
	} else if !errors.Is(err, blogerr.ErrNotFound) {
		return nil, err
	}

	sortOrder := 0
	if input.SortOrder != nil {
		sortOrder = *input.SortOrder
	} else {
		next, err := s.index.NextSortOrder()
		if err != nil {
			return nil, err
		}
		sortOrder = next
	}

	descriptor := s.readDescriptor(slug)
	descriptor.Name = name
	descriptor.Description = strings.TrimSpace(input.Description)
	descriptor.Order = &sortOrder
	if err := s.store.WriteCategoryDescriptor(slug, descriptor); err != nil {
		return nil, err
	}

	if err := s.index.UpsertCategory(slug, name, descriptor.Description, sortOrder); err != nil {
		return nil, err
	}
	return s.index.GetCategory(slug)
}

// UpdateCategory applies a partial update. A slug change renames the directory first;
// a Conflict there aborts before the index is touched.
func (s *BlogService) UpdateCategory(slug string, update CategoryUpdate) (*db.Category, error) {
	slug = strings.TrimSpace(slug)
	if _, err := s.index.GetCategory(slug); err != nil {
		return nil, err
	}

	target := slug
	if update.Slug != nil {
		target = strings.TrimSpace(*update.Slug)
		if err := filestore.ValidateSlug(target); err != nil {
			return nil, err
		}
	}

	patch := db.CategoryPatch{SortOrder: update.SortOrder}
	if update.Name != nil {
		name := strings.TrimSpace(*update.Name)
		if name == "" {
			return nil, blogerr.Invalid("category name is required")
		}
		patch.Name = &name
	}
	if update.Description != nil {
		description := strings.TrimSpace(*update.Description)
		patch.Description = &description
	}

	if target != slug {
		if _, err := s.index.GetCategory(target); err == nil {
			return nil, blogerr.Conflict("category %s", target)
		} else if !errors.Is(err, blogerr.ErrNotFound) {
			return nil, err
		}
		if err := s.store.RenameCategoryDir(slug, target); err != nil {
			return nil, err
		}
		// 目录已改名；索引失败时两边暂时不一致，等下一次同步修复
		if err := s.index.RenameCategorySlug(slug, target); err != nil {
			return nil, err
		}
	}

	if patch.Name != nil || patch.Description != nil || patch.SortOrder != nil {
		descriptor := s.readDescriptor(target)
		if patch.Name != nil {
			descriptor.Name = *patch.Name
		}
		if patch.Description != nil {
			descriptor.Description = *patch.Description
		}
		if patch.SortOrder != nil {
			order := *patch.SortOrder
			descriptor.Order = &order
		}
		if err := s.store.WriteCategoryDescriptor(target, descriptor); err != nil {
			return nil, err
		}
		if err := s.index.UpdateCategory(target, patch); err != nil {
			return nil, err
		}
	}

	return s.index.GetCategory(target)
}

// DeleteCategory removes the directory tree and then the index rows.
func (s *BlogService) DeleteCategory(slug string) error {
	slug = strings.TrimSpace(slug)
	if err := filestore.ValidateSlug(slug); err != nil {
		return err
	}

	_, indexErr := s.index.GetCategory(slug)
	if indexErr != nil && !errors.Is(indexErr, blogerr.ErrNotFound) {
		return indexErr
	}
	onDisk, err := s.store.CategoryExists(slug)
	if err != nil {
		return err
	}
	if indexErr != nil && !onDisk {
		return blogerr.NotFound("category %s", slug)
	}

	if err := s.store.DeleteCategoryDir(slug); err != nil {
		return err
	}
	if err := s.index.DeleteCategory(slug); err != nil && !errors.Is(err, blogerr.ErrNotFound) {
		return err
	}
	return nil
}

// ReorderCategories 按给定顺序重写 sort_order，同时更新磁盘描述文件。
func (s *BlogService) ReorderCategories(slugs []string) error {
	if len(slugs) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(slugs))
	cleaned := make([]string, 0, len(slugs))
	for _, raw := range slugs {
		slug := strings.TrimSpace(raw)
		if slug == "" {
			return blogerr.Invalid("category order contains an empty slug")
		}
		if _, ok := seen[slug]; ok {
			return blogerr.Invalid("category %s listed twice", slug)
		}
		seen[slug] = struct{}{}
		cleaned = append(cleaned, slug)
	}

	if err := s.index.ReorderCategories(cleaned); err != nil {
		return err
	}

	for idx, slug := range cleaned {
		descriptor := s.readDescriptor(slug)
		order := idx
		descriptor.Order = &order
		if err := s.store.WriteCategoryDescriptor(slug, descriptor); err != nil {
			return err
		}
	}
	return nil
}

// SavePost 创建或更新文章：先写磁盘（正文、_index.json），再 upsert 索引。
// 未提供的字段保持原值，views/likes 以索引中的计数为准。
func (s *BlogService) SavePost(categorySlug, postSlug string, input PostInput) (*db.Post, error) {
	categorySlug = strings.TrimSpace(categorySlug)
	postSlug = strings.TrimSpace(postSlug)
	if err := filestore.ValidateSlug(categorySlug); err != nil {
		return nil, err
	}
	if err := filestore.ValidateSlug(postSlug); err != nil {
		return nil, err
	}
	if _, err := s.index.GetCategory(categorySlug); err != nil {
		return nil, err
	}

	existing, err := s.index.GetPost(categorySlug, postSlug)
	if err != nil && !errors.Is(err, blogerr.ErrNotFound) {
		return nil, err
	}

	meta, err := s.store.ReadPostMetadata(categorySlug, postSlug)
	if err != nil {
		if !errors.Is(err, blogerr.ErrNotFound) && !errors.Is(err, filestore.ErrCorruptMetadata) {
			return nil, err
		}
		meta = filestore.PostMetadata{}
	}

	previous, err := s.store.ReadPostBody(categorySlug, postSlug)
	if err != nil && !errors.Is(err, blogerr.ErrNotFound) {
		return nil, err
	}
	body := previous
	if input.Content != nil {
		body = *input.Content
	}
	_, plainBody, _, fmErr := filestore.ParseFrontMatter(body)
	if fmErr != nil {
		plainBody = body
	}

	title := meta.Title
	if existing != nil && title == "" {
		title = existing.Title
	}
	if input.Title != nil {
		title = strings.TrimSpace(*input.Title)
		if title == "" {
			return nil, blogerr.Invalid("title is required")
		}
	}
	if title == "" {
		title = DeriveTitle(plainBody)
	}
	if title == "" {
		return nil, blogerr.Invalid("title is required")
	}
	meta.Title = title

	if input.Date != nil {
		normalized, ok := NormalizeDate(*input.Date)
		if !ok {
			return nil, blogerr.Invalid("invalid date %q", *input.Date)
		}
		meta.Date = normalized
	}
	if meta.Date == "" {
		if existing != nil && existing.Date != "" {
			meta.Date = existing.Date
		} else {
			meta.Date = today(s.now)
		}
	}

	if input.Author != nil {
		meta.Author = strings.TrimSpace(*input.Author)
	}
	if meta.Author == "" {
		if existing != nil && existing.Author != "" {
			meta.Author = existing.Author
		} else {
			meta.Author = DefaultAuthor
		}
	}

	if input.Tags != nil {
		meta.Tags = filestore.JoinTags(strings.Split(*input.Tags, ","))
	}

	switch {
	case input.Summary != nil:
		meta.Summary = strings.TrimSpace(*input.Summary)
		meta.AutoSummary = false
		if meta.Summary == "" && input.Content != nil {
			meta.Summary = ExtractSummary(plainBody)
			meta.AutoSummary = true
		}
	case input.Content != nil && summaryFollowsBody(meta, previous):
		meta.Summary = ExtractSummary(plainBody)
		meta.AutoSummary = true
	}

	views, likes := int64Value(meta.Views), int64Value(meta.Likes)
	if existing != nil {
		views, likes = existing.Views, existing.Likes
	}
	if input.Views != nil {
		views = *input.Views
	}
	if input.Likes != nil {
		likes = *input.Likes
	}
	if views < 0 || likes < 0 {
		return nil, blogerr.Invalid("counters must not be negative")
	}
	meta.Views = &views
	meta.Likes = &likes

	meta.UpdatedAt = s.now().UTC().Format(time.RFC3339)

	if input.Content != nil || existing == nil {
		if err := s.store.WritePostBody(categorySlug, postSlug, body); err != nil {
			return nil, err
		}
	}
	if err := s.store.WritePostMetadata(categorySlug, postSlug, meta); err != nil {
		return nil, err
	}

	contentPath := filestore.PostContentPath(categorySlug, postSlug)
	readingTime := calculateReadingTime(plainBody)
	fields := db.PostFields{
		Title:       &meta.Title,
		Date:        &meta.Date,
		Author:      &meta.Author,
		Summary:     &meta.Summary,
		Tags:        &meta.Tags,
		ContentPath: &contentPath,
		UpdatedAt:   &meta.UpdatedAt,
		ReadingTime: &readingTime,
	}
	// 计数器只在新建或显式修改时写入，避免覆盖并发的浏览计数
	if existing == nil || input.Views != nil {
		fields.Views = &views
	}
	if existing == nil || input.Likes != nil {
		fields.Likes = &likes
	}

	if _, err := s.index.UpsertPost(categorySlug, postSlug, fields); err != nil {
		return nil, err
	}
	return s.index.GetPost(categorySlug, postSlug)
}

// summaryFollowsBody 判断已有摘要是否由正文提取：有标记、为空，或与旧正文的提取结果一致。
func summaryFollowsBody(meta filestore.PostMetadata, previousBody string) bool {
	if meta.AutoSummary || strings.TrimSpace(meta.Summary) == "" {
		return true
	}
	_, plain, _, err := filestore.ParseFrontMatter(previousBody)
	if err != nil {
		plain = previousBody
	}
	return meta.Summary == ExtractSummary(plain)
}

// DeletePost removes the post directory and then the index row.
func (s *BlogService) DeletePost(categorySlug, postSlug string) error {
	categorySlug = strings.TrimSpace(categorySlug)
	postSlug = strings.TrimSpace(postSlug)
	if err := filestore.ValidateSlug(categorySlug); err != nil {
		return err
	}
	if err := filestore.ValidateSlug(postSlug); err != nil {
		return err
	}

	_, indexErr := s.index.GetPost(categorySlug, postSlug)
	if indexErr != nil && !errors.Is(indexErr, blogerr.ErrNotFound) {
		return indexErr
	}
	_, bodyErr := s.store.ReadPostBody(categorySlug, postSlug)
	if indexErr != nil && errors.Is(bodyErr, blogerr.ErrNotFound) {
		return blogerr.NotFound("post %s/%s", categorySlug, postSlug)
	}

	if err := s.store.DeletePostDir(categorySlug, postSlug); err != nil {
		return err
	}
	if err := s.index.DeletePost(categorySlug, postSlug); err != nil && !errors.Is(err, blogerr.ErrNotFound) {
		return err
	}
	return nil
}

// GetAllPosts lists posts across every category.
func (s *BlogService) GetAllPosts(opts PostListOptions) (*db.PostPage, error) {
	return s.index.QueryPosts(opts.query(""))
}

// GetPostsByCategory lists posts of one category. An unknown category yields an empty page.
func (s *BlogService) GetPostsByCategory(categorySlug string, opts PostListOptions) (*db.PostPage, error) {
	return s.index.QueryPosts(opts.query(strings.TrimSpace(categorySlug)))
}

func (o PostListOptions) query(categorySlug string) db.PostQuery {
	return db.PostQuery{
		CategorySlug: categorySlug,
		Search:       o.Query,
		SortBy:       o.SortBy,
		SortOrder:    o.SortOrder,
		Page:         o.Page,
		PageSize:     o.PageSize,
	}
}

// GetPostDetail 返回索引行和正文，任一缺失都视为 NotFound。
func (s *BlogService) GetPostDetail(categorySlug, postSlug string) (*PostDetail, error) {
	post, err := s.index.GetPost(categorySlug, postSlug)
	if err != nil {
		return nil, err
	}

	raw, err := s.store.ReadPostBody(categorySlug, postSlug)
	if err != nil {
		return nil, err
	}
	content := raw
	if _, stripped, found, fmErr := filestore.ParseFrontMatter(raw); found && fmErr == nil {
		content = stripped
	}

	return &PostDetail{Post: *post, Content: content}, nil
}

// GetPost 只查索引行，不读正文。
func (s *BlogService) GetPost(categorySlug, postSlug string) (*db.Post, error) {
	return s.index.GetPost(categorySlug, postSlug)
}

// IncrementViews bumps the view counter and returns the new value.
func (s *BlogService) IncrementViews(categorySlug, postSlug string) (int64, error) {
	return s.index.IncrementViews(categorySlug, postSlug)
}

// IncrementLikes bumps the like counter and returns the new value.
func (s *BlogService) IncrementLikes(categorySlug, postSlug string) (int64, error) {
	return s.index.IncrementLikes(categorySlug, postSlug)
}

// Sync runs the sync engine on demand.
func (s *BlogService) Sync(ctx context.Context) (SyncReport, error) {
	return s.sync.Run(ctx)
}

// OpenAsset reads a file stored next to a post body.
func (s *BlogService) OpenAsset(categorySlug, postSlug, name string) ([]byte, error) {
	return s.store.ReadAsset(categorySlug, postSlug, name)
}

// MigrationStatus reports the schema migration ledger.
func (s *BlogService) MigrationStatus(ctx context.Context) (db.MigrationState, error) {
	return s.index.MigrationStatus(ctx)
}

// RunMigrations applies pending migrations and returns their names.
func (s *BlogService) RunMigrations(ctx context.Context) ([]string, error) {
	return db.Migrate(ctx, s.index.DB())
}

// readDescriptor 读取磁盘描述文件，缺失或损坏时用索引中的值补齐。
func (s *BlogService) readDescriptor(slug string) filestore.CategoryDescriptor {
	descriptor, err := s.store.ReadCategoryDescriptor(slug)
	if err == nil {
		return descriptor
	}
	descriptor = filestore.CategoryDescriptor{}
	if category, err := s.index.GetCategory(slug); err == nil {
		descriptor.Name = category.Name
		descriptor.Description = category.Description
		order := category.SortOrder
		descriptor.Order = &order
	}
	return descriptor
}
