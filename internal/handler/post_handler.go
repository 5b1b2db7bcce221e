package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sitelog/internal/blogerr"
	"github.com/sitelog/internal/filestore"
	"github.com/sitelog/internal/service"
)

type postRequest struct {
	Category string    `json:"category"`
	Slug     string    `json:"slug"`
	Title    *string   `json:"title"`
	Date     *string   `json:"date"`
	Author   *string   `json:"author"`
	Summary  *string   `json:"summary"`
	Tags     *[]string `json:"tags"`
	Views    *int64    `json:"views"`
	Likes    *int64    `json:"likes"`
	Content  *string   `json:"content"`
}

func (r postRequest) input() service.PostInput {
	input := service.PostInput{
		Title:   r.Title,
		Date:    r.Date,
		Author:  r.Author,
		Summary: r.Summary,
		Views:   r.Views,
		Likes:   r.Likes,
		Content: r.Content,
	}
	if r.Tags != nil {
		joined := filestore.JoinTags(*r.Tags)
		input.Tags = &joined
	}
	return input
}

func (a *API) listOptions(c *gin.Context) (service.PostListOptions, bool) {
	page, ok := parseIntQuery(c, "page")
	if !ok {
		respondError(c, http.StatusBadRequest, "invalid page")
		return service.PostListOptions{}, false
	}
	pageSize, ok := parseIntQuery(c, "pageSize")
	if !ok {
		respondError(c, http.StatusBadRequest, "invalid pageSize")
		return service.PostListOptions{}, false
	}
	if pageSize == 0 {
		pageSize = a.pageSize
	}
	return service.PostListOptions{
		Page:      page,
		PageSize:  pageSize,
		Query:     c.Query("q"),
		SortBy:    c.Query("sortBy"),
		SortOrder: c.Query("sortOrder"),
	}, true
}

// ListPosts 跨分类分页查询文章。
func (a *API) ListPosts(c *gin.Context) {
	opts, ok := a.listOptions(c)
	if !ok {
		return
	}
	page, err := a.blog.GetAllPosts(opts)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, pageJSON(page))
}

// ListCategoryPosts 分页查询单个分类下的文章，分类不存在时返回空页。
func (a *API) ListCategoryPosts(c *gin.Context) {
	opts, ok := a.listOptions(c)
	if !ok {
		return
	}
	page, err := a.blog.GetPostsByCategory(c.Param("category"), opts)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, pageJSON(page))
}

// GetPost 返回文章元数据和去掉 front matter 的正文。
func (a *API) GetPost(c *gin.Context) {
	detail, err := a.blog.GetPostDetail(c.Param("category"), c.Param("id"))
	if err != nil {
		respondServiceError(c, err)
		return
	}

	payload := postJSON(detail.Post)
	payload["content"] = detail.Content
	c.JSON(http.StatusOK, gin.H{"post": payload})
}

// CreatePost 新建文章。slug 缺省时由标题生成，已存在则返回 409。
func (a *API) CreatePost(c *gin.Context) {
	var req postRequest
	if !bindJSON(c, &req, "invalid post payload") {
		return
	}

	slug := strings.TrimSpace(req.Slug)
	if slug == "" {
		title := ""
		if req.Title != nil {
			title = strings.TrimSpace(*req.Title)
		}
		if title == "" && req.Content != nil {
			title = service.DeriveTitle(*req.Content)
		}
		if title == "" {
			respondError(c, http.StatusBadRequest, "title or slug is required")
			return
		}
		slug = service.SlugFromTitle(title)
	}

	if _, err := a.blog.GetPostDetail(req.Category, slug); err == nil {
		respondError(c, http.StatusConflict, "already exists")
		return
	} else if !errors.Is(err, blogerr.ErrNotFound) {
		respondServiceError(c, err)
		return
	}

	post, err := a.blog.SavePost(req.Category, slug, req.input())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"post": postJSON(*post)})
}

// SavePost 以 upsert 语义保存文章，未提交的字段保留原值。
func (a *API) SavePost(c *gin.Context) {
	var req postRequest
	if !bindJSON(c, &req, "invalid post payload") {
		return
	}
	if strings.TrimSpace(req.Slug) == "" {
		respondError(c, http.StatusBadRequest, "slug is required")
		return
	}

	post, err := a.blog.SavePost(req.Category, req.Slug, req.input())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"post": postJSON(*post)})
}

// DeletePost 删除文章目录和索引行。
func (a *API) DeletePost(c *gin.Context) {
	category := strings.TrimSpace(c.Query("category"))
	slug := strings.TrimSpace(c.Query("slug"))
	if category == "" || slug == "" {
		respondError(c, http.StatusBadRequest, "category and slug are required")
		return
	}
	if err := a.blog.DeletePost(category, slug); err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": category + "/" + slug})
}

// RecordView 记录一次浏览，同一访客在去重窗口内重复访问不计数。
func (a *API) RecordView(c *gin.Context) {
	category, slug := c.Param("category"), c.Param("id")

	// 先确认文章存在，不存在的文章不能占用访客的去重窗口
	post, err := a.blog.GetPost(category, slug)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	visitorID := a.ensureVisitorID(c)
	count, err := a.deduper.ShouldCount(c.Request.Context(), visitorID, category+"/"+slug)
	if err != nil {
		slog.Warn("view dedup unavailable, counting view", "error", err)
		count = true
	}

	if !count {
		c.JSON(http.StatusOK, gin.H{"views": post.Views, "counted": false})
		return
	}

	views, err := a.blog.IncrementViews(category, slug)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"views": views, "counted": true})
}

// RecordLike 点赞计数加一。
func (a *API) RecordLike(c *gin.Context) {
	likes, err := a.blog.IncrementLikes(c.Param("category"), c.Param("id"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"likes": likes})
}
