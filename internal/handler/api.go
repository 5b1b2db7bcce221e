package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/sitelog/internal/db"
	"github.com/sitelog/internal/service"
)

// Options 配置 API 的可选依赖。
type Options struct {
	AdminUsername     string
	AdminPasswordHash string
	// Deduper 为空时每次浏览都计数。
	Deduper  service.ViewDeduper
	PageSize int
}

// API bundles shared dependencies for HTTP handlers.
type API struct {
	blog          *service.BlogService
	deduper       service.ViewDeduper
	adminUsername string
	passwordHash  []byte
	pageSize      int
}

// NewAPI constructs a handler set around the blog facade.
func NewAPI(blog *service.BlogService, opts Options) *API {
	deduper := opts.Deduper
	if deduper == nil {
		deduper = service.NewViewDeduper(0, nil)
	}
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = db.DefaultPageSize
	}
	return &API{
		blog:          blog,
		deduper:       deduper,
		adminUsername: opts.AdminUsername,
		passwordHash:  []byte(opts.AdminPasswordHash),
		pageSize:      pageSize,
	}
}

func categoryJSON(category db.Category) gin.H {
	return gin.H{
		"slug":        category.Slug,
		"name":        category.Name,
		"description": category.Description,
		"order":       category.SortOrder,
		"postCount":   category.PostCount,
	}
}

func postJSON(post db.Post) gin.H {
	return gin.H{
		"categorySlug": post.CategorySlug,
		"categoryName": post.CategoryName,
		"slug":         post.Slug,
		"title":        post.Title,
		"date":         post.Date,
		"author":       post.Author,
		"summary":      post.Summary,
		"tags":         splitTags(post.Tags),
		"views":        post.Views,
		"likes":        post.Likes,
		"contentPath":  post.ContentPath,
		"updatedAt":    post.UpdatedAt,
		"readingTime":  post.ReadingTime,
	}
}

func pageJSON(page *db.PostPage) gin.H {
	posts := make([]gin.H, 0, len(page.Posts))
	for _, post := range page.Posts {
		posts = append(posts, postJSON(post))
	}
	return gin.H{
		"posts":      posts,
		"total":      page.Total,
		"page":       page.Page,
		"pageSize":   page.PageSize,
		"totalPages": page.TotalPages,
	}
}
