package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/sitelog/internal/blogerr"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	// DefaultPageSize 是未指定 pageSize 时的每页条数。
	DefaultPageSize = 10
	// MaxPageSize 限制单页最多返回的条数。
	MaxPageSize = 100
)

// 排序字段白名单
var sortColumns = map[string]string{
	"date":  "posts.date",
	"views": "posts.views",
	"likes": "posts.likes",
}

// PostQuery 描述列表查询条件，Page 从 1 开始。
type PostQuery struct {
	CategorySlug string
	Search       string
	SortBy       string
	SortOrder    string
	Page         int
	PageSize     int
}

// PostPage 是一页查询结果。
type PostPage struct {
	Posts      []Post
	Total      int64
	Page       int
	PageSize   int
	TotalPages int
}

// Index is the SQLite-backed lookup structure over the content tree.
// It can always be rebuilt from disk.
type Index struct {
	db *gorm.DB
}

// NewIndex wraps an open gorm connection.
func NewIndex(gdb *gorm.DB) *Index {
	return &Index{db: gdb}
}

// DB exposes the underlying connection.
func (ix *Index) DB() *gorm.DB {
	return ix.db
}

// EnsureSchema runs pending migrations.
func (ix *Index) EnsureSchema(ctx context.Context) error {
	_, err := Migrate(ctx, ix.db)
	return err
}

// MigrationStatus reports the migration ledger.
func (ix *Index) MigrationStatus(ctx context.Context) (MigrationState, error) {
	return Status(ctx, ix.db)
}

func (ix *Index) categoryQuery(tx *gorm.DB) *gorm.DB {
	return tx.Model(&Category{}).
		Select("categories.*, COUNT(posts.id) AS post_count").
		Joins("LEFT JOIN posts ON posts.category_slug = categories.slug").
		Group("categories.id")
}

// ListCategories returns categories ordered by sort_order then slug, with post counts.
func (ix *Index) ListCategories() ([]Category, error) {
	var categories []Category
	if err := ix.categoryQuery(ix.db).
		Order("categories.sort_order asc").
		Order("categories.slug asc").
		Find(&categories).Error; err != nil {
		return nil, err
	}
	return categories, nil
}

// GetCategory returns a single category with its post count.
func (ix *Index) GetCategory(slug string) (*Category, error) {
	var category Category
	if err := ix.categoryQuery(ix.db).
		Where("categories.slug = ?", slug).
		Take(&category).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, blogerr.NotFound("category %s", slug)
		}
		return nil, err
	}
	return &category, nil
}

// CountCategories returns the number of category rows.
func (ix *Index) CountCategories() (int64, error) {
	var total int64
	if err := ix.db.Model(&Category{}).Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

// CategorySlugs lists every indexed category slug.
func (ix *Index) CategorySlugs() ([]string, error) {
	var slugs []string
	if err := ix.db.Model(&Category{}).Order("slug asc").Pluck("slug", &slugs).Error; err != nil {
		return nil, err
	}
	return slugs, nil
}

// UpsertCategory inserts the row or overwrites name, description and sort order.
func (ix *Index) UpsertCategory(slug, name, description string, sortOrder int) error {
	category := Category{Slug: slug, Name: name, Description: description, SortOrder: sortOrder}
	return ix.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "slug"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "description", "sort_order"}),
	}).Create(&category).Error
}

// UpdateCategory applies a partial update.
func (ix *Index) UpdateCategory(slug string, patch CategoryPatch) error {
	updates := map[string]any{}
	if patch.Name != nil {
		updates["name"] = *patch.Name
	}
	if patch.Description != nil {
		updates["description"] = *patch.Description
	}
	if patch.SortOrder != nil {
		updates["sort_order"] = *patch.SortOrder
	}

	if len(updates) == 0 {
		_, err := ix.GetCategory(slug)
		return err
	}

	result := ix.db.Model(&Category{}).Where("slug = ?", slug).Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return blogerr.NotFound("category %s", slug)
	}
	return nil
}

// RenameCategorySlug moves a category and all of its posts to a new slug.
// content_path 的前缀一并改写，整个过程在一个事务内完成。
func (ix *Index) RenameCategorySlug(oldSlug, newSlug string) error {
	if oldSlug == newSlug {
		return nil
	}

	return ix.db.Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&Category{}).Where("slug = ?", newSlug).Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return blogerr.Conflict("category %s", newSlug)
		}

		result := tx.Model(&Category{}).Where("slug = ?", oldSlug).Update("slug", newSlug)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return blogerr.NotFound("category %s", oldSlug)
		}

		// 外键开启时 ON UPDATE CASCADE 已经改过 category_slug，这里保证关闭外键时也一致
		if err := tx.Model(&Post{}).
			Where("category_slug = ?", oldSlug).
			Update("category_slug", newSlug).Error; err != nil {
			return err
		}

		prefix := oldSlug + "/"
		return tx.Model(&Post{}).
			Where("category_slug = ? AND substr(content_path, 1, ?) = ?", newSlug, utf8.RuneCountInString(prefix), prefix).
			Update("content_path", gorm.Expr("? || substr(content_path, ?)", newSlug, utf8.RuneCountInString(oldSlug)+1)).Error
	})
}

// ReorderCategories assigns sort_order by position in slugs.
func (ix *Index) ReorderCategories(slugs []string) error {
	return ix.db.Transaction(func(tx *gorm.DB) error {
		for idx, slug := range slugs {
			result := tx.Model(&Category{}).Where("slug = ?", slug).Update("sort_order", idx)
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				return blogerr.NotFound("category %s", slug)
			}
		}
		return nil
	})
}

// NextSortOrder returns one past the largest sort_order in use.
func (ix *Index) NextSortOrder() (int, error) {
	var maxSort int
	if err := ix.db.Model(&Category{}).Select("COALESCE(MAX(sort_order), -1)").Scan(&maxSort).Error; err != nil {
		return 0, err
	}
	return maxSort + 1, nil
}

// DeleteCategory removes the category and its posts in one transaction.
func (ix *Index) DeleteCategory(slug string) error {
	return ix.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("category_slug = ?", slug).Delete(&Post{}).Error; err != nil {
			return err
		}
		result := tx.Where("slug = ?", slug).Delete(&Category{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return blogerr.NotFound("category %s", slug)
		}
		return nil
	})
}

// UpsertPost creates the row when absent, otherwise overwrites only the non-nil fields.
func (ix *Index) UpsertPost(categorySlug, postSlug string, fields PostFields) (*Post, error) {
	var saved Post
	err := ix.db.Transaction(func(tx *gorm.DB) error {
		var post Post
		err := tx.Where("category_slug = ? AND slug = ?", categorySlug, postSlug).First(&post).Error
		switch {
		case err == nil:
			fields.apply(&post)
			if err := tx.Save(&post).Error; err != nil {
				return err
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			post = Post{CategorySlug: categorySlug, Slug: postSlug}
			fields.apply(&post)
			if err := tx.Create(&post).Error; err != nil {
				return translateWriteError(err, "post %s/%s", categorySlug, postSlug)
			}
		default:
			return err
		}
		saved = post
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &saved, nil
}

// GetPost returns a post row including its category name.
func (ix *Index) GetPost(categorySlug, postSlug string) (*Post, error) {
	var post Post
	if err := ix.postQuery(ix.db).
		Where("posts.category_slug = ? AND posts.slug = ?", categorySlug, postSlug).
		Take(&post).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, blogerr.NotFound("post %s/%s", categorySlug, postSlug)
		}
		return nil, err
	}
	return &post, nil
}

// DeletePost removes a post row.
func (ix *Index) DeletePost(categorySlug, postSlug string) error {
	result := ix.db.Where("category_slug = ? AND slug = ?", categorySlug, postSlug).Delete(&Post{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return blogerr.NotFound("post %s/%s", categorySlug, postSlug)
	}
	return nil
}

// PostKeys lists the identity of every indexed post.
func (ix *Index) PostKeys() ([]PostKey, error) {
	var keys []PostKey
	if err := ix.db.Model(&Post{}).
		Select("category_slug, slug").
		Order("category_slug asc").
		Order("slug asc").
		Scan(&keys).Error; err != nil {
		return nil, err
	}
	return keys, nil
}

func (ix *Index) postQuery(tx *gorm.DB) *gorm.DB {
	return tx.Model(&Post{}).
		Select("posts.*, categories.name AS category_name").
		Joins("LEFT JOIN categories ON categories.slug = posts.category_slug")
}

// QueryPosts filters, sorts and paginates posts.
// 排序相同时按 category_slug、slug 升序，保证分页稳定。
func (ix *Index) QueryPosts(q PostQuery) (*PostPage, error) {
	page := q.Page
	if page < 1 {
		page = 1
	}
	perPage := q.PageSize
	if perPage <= 0 {
		perPage = DefaultPageSize
	}
	if perPage > MaxPageSize {
		perPage = MaxPageSize
	}

	column, ok := sortColumns[strings.ToLower(strings.TrimSpace(q.SortBy))]
	if !ok {
		column = sortColumns["date"]
	}
	direction := "desc"
	if strings.EqualFold(strings.TrimSpace(q.SortOrder), "asc") {
		direction = "asc"
	}

	filter := func(tx *gorm.DB) *gorm.DB {
		if slug := strings.TrimSpace(q.CategorySlug); slug != "" {
			tx = tx.Where("posts.category_slug = ?", slug)
		}
		if search := strings.TrimSpace(q.Search); search != "" {
			pattern := "%" + escapeLike(strings.ToLower(search)) + "%"
			tx = tx.Where(`posts.search_text LIKE ? ESCAPE '\'`, pattern)
		}
		return tx
	}

	var total int64
	if err := filter(ix.db.Model(&Post{})).Count(&total).Error; err != nil {
		return nil, err
	}

	posts := []Post{}
	if total > 0 {
		if err := filter(ix.postQuery(ix.db)).
			Order(fmt.Sprintf("%s %s", column, direction)).
			Order("posts.category_slug asc").
			Order("posts.slug asc").
			Limit(perPage).
			Offset((page - 1) * perPage).
			Find(&posts).Error; err != nil {
			return nil, err
		}
	}

	totalPages := int((total + int64(perPage) - 1) / int64(perPage))

	return &PostPage{
		Posts:      posts,
		Total:      total,
		Page:       page,
		PageSize:   perPage,
		TotalPages: totalPages,
	}, nil
}

// IncrementViews adds one view and returns the new count.
func (ix *Index) IncrementViews(categorySlug, postSlug string) (int64, error) {
	return ix.incrementCounter(categorySlug, postSlug, "views")
}

// IncrementLikes adds one like and returns the new count.
func (ix *Index) IncrementLikes(categorySlug, postSlug string) (int64, error) {
	return ix.incrementCounter(categorySlug, postSlug, "likes")
}

func (ix *Index) incrementCounter(categorySlug, postSlug, column string) (int64, error) {
	var value int64
	err := ix.db.Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&Post{}).
			Where("category_slug = ? AND slug = ?", categorySlug, postSlug).
			UpdateColumn(column, gorm.Expr(column+" + 1"))
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return blogerr.NotFound("post %s/%s", categorySlug, postSlug)
		}
		return tx.Model(&Post{}).
			Where("category_slug = ? AND slug = ?", categorySlug, postSlug).
			Select(column).
			Scan(&value).Error
	})
	if err != nil {
		return 0, err
	}
	return value, nil
}

func escapeLike(s string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(s)
}

func translateWriteError(err error, format string, args ...any) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed"):
		return blogerr.Conflict(format, args...)
	case strings.Contains(msg, "FOREIGN KEY constraint failed"):
		return blogerr.NotFound("category for "+format, args...)
	default:
		return err
	}
}
