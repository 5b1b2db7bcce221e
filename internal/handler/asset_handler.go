package handler

import (
	"mime"
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"
)

// ServeAsset 返回文章目录下的静态资源，例如正文中引用的图片。
func (a *API) ServeAsset(c *gin.Context) {
	name := c.Param("filename")
	data, err := a.blog.OpenAsset(c.Param("category"), c.Param("id"), name)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	contentType := mime.TypeByExtension(filepath.Ext(name))
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	c.Header("Cache-Control", "public, max-age=3600")
	c.Data(http.StatusOK, contentType, data)
}
