package handler

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

const sessionUserKey = "username"

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login 校验管理员账号并写入会话。未配置密码哈希时一律拒绝。
func (a *API) Login(c *gin.Context) {
	var req loginRequest
	if !bindJSON(c, &req, "invalid login payload") {
		return
	}

	username := strings.TrimSpace(req.Username)
	if len(a.passwordHash) == 0 ||
		subtle.ConstantTimeCompare([]byte(username), []byte(a.adminUsername)) != 1 ||
		bcrypt.CompareHashAndPassword(a.passwordHash, []byte(req.Password)) != nil {
		respondError(c, http.StatusUnauthorized, "invalid username or password")
		return
	}

	session := sessions.Default(c)
	session.Set(sessionUserKey, username)
	if err := session.Save(); err != nil {
		respondError(c, http.StatusInternalServerError, "failed to save session")
		return
	}
	c.JSON(http.StatusOK, gin.H{"username": username})
}

// Logout 清空会话。
func (a *API) Logout(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()
	session.Options(sessions.Options{Path: "/", MaxAge: -1})
	if err := session.Save(); err != nil {
		respondError(c, http.StatusInternalServerError, "failed to clear session")
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Me 返回当前登录的管理员。
func (a *API) Me(c *gin.Context) {
	username, ok := sessions.Default(c).Get(sessionUserKey).(string)
	if !ok || username == "" {
		respondError(c, http.StatusUnauthorized, "unauthorized")
		return
	}
	c.JSON(http.StatusOK, gin.H{"username": username})
}

// AuthRequired 拦截未登录的写操作请求
func AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if sessions.Default(c).Get(sessionUserKey) == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}
