package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/kbcore/internal/db"
	"github.com/kbcore/internal/docsource"
	"github.com/kbcore/internal/service"
)

// API bundles shared dependencies for HTTP handlers.
type API struct {
	db         *gorm.DB
	log        zerolog.Logger
	articles   *service.ArticleService
	search     *service.SearchService
	categories *service.CategoryService
	tags       *service.TagService
	comments   *service.CommentService
	feedback   *service.FeedbackService
	users      *service.UserService
	siteConfig *service.SiteConfigService
	imports    *service.ImportService
	cloud      *docsource.CloudClient
}

// NewAPI constructs a handler set with shared services.
func NewAPI(gdb *gorm.DB, log zerolog.Logger) *API {
	searchService := service.NewSearchService(gdb)
	articleService := service.NewArticleService(gdb, searchService, log)
	configService := service.NewSiteConfigService(gdb)
	cloud := docsource.NewCloudClient(configService)

	return &API{
		db:         gdb,
		log:        log,
		articles:   articleService,
		search:     searchService,
		categories: service.NewCategoryService(gdb),
		tags:       service.NewTagService(gdb),
		comments:   service.NewCommentService(gdb),
		feedback:   service.NewFeedbackService(gdb),
		users:      service.NewUserService(gdb),
		siteConfig: configService,
		imports:    service.NewImportService(gdb, articleService, cloud, log),
		cloud:      cloud,
	}
}

// ConfigureDocumentSource 覆盖云端文档服务的接口与令牌端点，
// 空值保持内置默认。用于私有化部署或联调环境。
func (a *API) ConfigureDocumentSource(baseURL, tokenEndpoint string) {
	if baseURL != "" {
		a.cloud.SetBaseURL(baseURL)
	}
	if tokenEndpoint != "" {
		a.cloud.SetTokenEndpoint(tokenEndpoint)
	}
}

// DB exposes the underlying gorm instance.
func (a *API) DB() *gorm.DB {
	return a.db
}

// SetDocumentSource 替换云端文档来源，测试用。
func (a *API) SetDocumentSource(source docsource.Source) {
	a.imports = service.NewImportService(a.db, a.articles, source, a.log)
}

// siteConfigOrDefault 读取站点配置；读取失败时退回默认值，
// 评论与注册门槛宁可收紧也不放开。
func (a *API) siteConfigOrDefault(c *gin.Context) db.SiteConfig {
	cfg, err := a.siteConfig.Get()
	if err != nil {
		a.log.Error().Err(err).Msg("读取站点配置失败")
		return db.SiteConfig{
			SiteName:        "Knowledge Base",
			DefaultRole:     db.RoleViewer,
			ArticlesPerPage: 10,
		}
	}
	return cfg
}
