package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sitelog/internal/blogerr"
)

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": message})
}

// respondServiceError 把内容层的错误类别映射为状态码，响应中只给出通用信息。
func respondServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, blogerr.ErrValidation):
		respondError(c, http.StatusBadRequest, "invalid request")
	case errors.Is(err, blogerr.ErrNotFound):
		respondError(c, http.StatusNotFound, "not found")
	case errors.Is(err, blogerr.ErrConflict):
		respondError(c, http.StatusConflict, "already exists")
	default:
		slog.Error("request failed", "method", c.Request.Method, "path", c.FullPath(), "error", err)
		respondError(c, http.StatusInternalServerError, "internal error")
	}
}

func bindJSON(c *gin.Context, dst interface{}, message string) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		respondError(c, http.StatusBadRequest, message)
		return false
	}
	return true
}

// parseIntQuery 读取正整数查询参数，缺省时返回 0。
func parseIntQuery(c *gin.Context, key string) (int, bool) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return 0, true
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 1 {
		return 0, false
	}
	return value, true
}

func splitTags(raw string) []string {
	tags := []string{}
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			tags = append(tags, trimmed)
		}
	}
	return tags
}
