package router

import (
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/sitelog/internal/handler"
)

const sessionName = "sitelog_session"

// SetupRouter 配置 Gin 引擎和路由
func SetupRouter(api *handler.API, sessionSecret string) *gin.Engine {
	r := gin.Default()

	// 配置会话中间件
	store := cookie.NewStore([]byte(sessionSecret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   7 * 24 * 60 * 60,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	r.Use(sessions.Sessions(sessionName, store))

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	r.GET("/blog/assets/:category/:id/:filename", api.ServeAsset)

	auth := r.Group("/api/auth")
	{
		auth.POST("/login", api.Login)
		auth.POST("/logout", api.Logout)
		auth.GET("/me", api.Me)
	}

	blog := r.Group("/api/blog")
	{
		blog.GET("/categories", api.ListCategories)
		blog.GET("/categories/:category/posts", api.ListCategoryPosts)
		blog.GET("/posts", api.ListPosts)
		blog.GET("/posts/:category/:id", api.GetPost)
		blog.POST("/posts/:category/:id/views", api.RecordView)
		blog.POST("/posts/:category/:id/likes", api.RecordLike)

		// 需要登录的写操作
		admin := blog.Group("")
		admin.Use(handler.AuthRequired())
		{
			admin.POST("/categories", api.CreateCategory)
			admin.PATCH("/categories", api.UpdateCategory)
			admin.DELETE("/categories", api.DeleteCategory)
			admin.PUT("/categories/order", api.ReorderCategories)

			admin.POST("/posts", api.CreatePost)
			admin.PUT("/posts", api.SavePost)
			admin.DELETE("/posts", api.DeletePost)

			admin.POST("/sync", api.TriggerSync)
		}
	}

	migrations := r.Group("/api/db/migrations")
	migrations.Use(handler.AuthRequired())
	{
		migrations.GET("", api.MigrationStatus)
		migrations.POST("", api.RunMigrations)
	}

	return r
}
