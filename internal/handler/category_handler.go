package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sitelog/internal/service"
)

type categoryRequest struct {
	Slug        string `json:"slug"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Order       *int   `json:"order"`
}

type categoryUpdateRequest struct {
	Slug        string  `json:"slug"`
	NewSlug     *string `json:"newSlug"`
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Order       *int    `json:"order"`
}

type categoryOrderRequest struct {
	Slugs []string `json:"slugs"`
}

// ListCategories 返回全部分类及文章数，按 order 排序。
func (a *API) ListCategories(c *gin.Context) {
	categories, err := a.blog.ListCategories(c.Request.Context())
	if err != nil {
		respondServiceError(c, err)
		return
	}

	items := make([]gin.H, 0, len(categories))
	for _, category := range categories {
		items = append(items, categoryJSON(category))
	}
	c.JSON(http.StatusOK, gin.H{"categories": items})
}

// CreateCategory 创建分类目录与索引行。slug 缺省时由名称生成。
func (a *API) CreateCategory(c *gin.Context) {
	var req categoryRequest
	if !bindJSON(c, &req, "invalid category payload") {
		return
	}

	slug := strings.TrimSpace(req.Slug)
	if slug == "" && strings.TrimSpace(req.Name) != "" {
		slug = service.SlugFromTitle(req.Name)
	}

	category, err := a.blog.CreateCategory(service.CategoryInput{
		Slug:        slug,
		Name:        req.Name,
		Description: req.Description,
		SortOrder:   req.Order,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"category": categoryJSON(*category)})
}

// UpdateCategory 修改分类，newSlug 会连带重命名目录和文章索引。
func (a *API) UpdateCategory(c *gin.Context) {
	var req categoryUpdateRequest
	if !bindJSON(c, &req, "invalid category payload") {
		return
	}

	category, err := a.blog.UpdateCategory(strings.TrimSpace(req.Slug), service.CategoryUpdate{
		Slug:        req.NewSlug,
		Name:        req.Name,
		Description: req.Description,
		SortOrder:   req.Order,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"category": categoryJSON(*category)})
}

// DeleteCategory 删除分类及其下所有文章。
func (a *API) DeleteCategory(c *gin.Context) {
	slug := strings.TrimSpace(c.Query("slug"))
	if slug == "" {
		respondError(c, http.StatusBadRequest, "slug is required")
		return
	}
	if err := a.blog.DeleteCategory(slug); err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": slug})
}

// ReorderCategories 按给定顺序重写分类的 order。
func (a *API) ReorderCategories(c *gin.Context) {
	var req categoryOrderRequest
	if !bindJSON(c, &req, "invalid order payload") {
		return
	}
	if err := a.blog.ReorderCategories(req.Slugs); err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"slugs": req.Slugs})
}
