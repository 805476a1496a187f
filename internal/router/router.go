package router

import (
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"

	"github.com/kbcore/internal/db"
	"github.com/kbcore/internal/handler"
)

// SetupRouter 配置 Gin 引擎和路由
func SetupRouter(api *handler.API, sessionSecret string) *gin.Engine {
	r := gin.Default()

	// 配置会话中间件
	store := cookie.NewStore([]byte(sessionSecret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 7,
		HttpOnly: true,
	})
	r.Use(sessions.Sessions("kbcore_session", store))
	r.Use(api.LoadUser())

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{"message": "pong"})
	})

	// 公开路由：已发布内容、检索、反馈与登录注册
	public := r.Group("/api")
	{
		public.POST("/auth/login", api.Login)
		public.POST("/auth/logout", api.Logout)
		public.POST("/auth/register", api.Register)
		public.GET("/auth/me", api.Me)

		public.GET("/site", api.GetPublicSiteInfo)

		// :id 同时接受数字 ID 与 slug，避免与 /articles/slug/:slug 的
		// 通配冲突
		public.GET("/articles", api.GetArticles)
		public.GET("/articles/:id", api.GetArticle)
		public.GET("/articles/:id/comments", api.GetArticleComments)
		public.POST("/articles/:id/comments", api.CreateComment)
		public.GET("/articles/:id/feedback", api.GetArticleFeedback)
		public.POST("/articles/:id/feedback", api.VoteArticleFeedback)

		public.GET("/search", api.SearchArticles)
		public.GET("/categories", api.GetCategoryTree)
		public.GET("/tags", api.GetTags)
	}

	// 编辑路由：editor 及以上
	editor := r.Group("/api")
	editor.Use(handler.AuthRequired(), handler.RoleRequired(db.RoleEditor, db.RoleAdmin))
	{
		editor.POST("/articles", api.CreateArticle)
		editor.PUT("/articles/:id", api.UpdateArticle)
		editor.PUT("/articles/:id/status", api.SetArticleStatus)
		editor.DELETE("/articles/:id", api.DeleteArticle)

		editor.GET("/articles/:id/versions", api.GetArticleVersions)
		editor.GET("/articles/:id/versions/:versionId", api.GetArticleVersion)
		editor.POST("/articles/:id/versions/:versionId/restore", api.RestoreArticleVersion)

		// 标签补全发生在写文章时，建标签对编辑开放；删除仍是管理操作。
		editor.POST("/tags", api.CreateTag)

		editor.POST("/import/docx", api.ImportDocx)
		editor.POST("/import/markdown", api.ImportMarkdown)
		editor.POST("/import/cloud", api.ImportCloudDoc)
		editor.GET("/import/cloud-folder", api.PreviewCloudFolder)
		editor.POST("/import/cloud-folder", api.ImportCloudFolder)
	}

	// 管理路由：仅 admin
	admin := r.Group("/api")
	admin.Use(handler.AuthRequired(), handler.RoleRequired(db.RoleAdmin))
	{
		admin.POST("/categories", api.CreateCategory)
		admin.PUT("/categories/:id", api.UpdateCategory)
		admin.DELETE("/categories/:id", api.DeleteCategory)

		admin.DELETE("/tags/:id", api.DeleteTag)

		admin.GET("/comments/pending", api.GetPendingComments)
		admin.PUT("/comments/:id/moderate", api.ModerateComment)
		admin.DELETE("/comments/:id", api.DeleteComment)

		admin.GET("/users", api.GetUsers)
		admin.POST("/users", api.CreateUser)
		admin.PUT("/users/:id/role", api.SetUserRole)
		admin.DELETE("/users/:id", api.DeleteUser)

		admin.GET("/config", api.GetSiteConfig)
		admin.PUT("/config", api.UpdateSiteConfig)
	}

	return r
}
