package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kbcore/internal/db"
	"github.com/kbcore/internal/service"
)

// configView 构造对外的配置视图：凭据本身永不回显，
// 只暴露是否已配置与服务账号邮箱。
func configView(cfg db.SiteConfig) gin.H {
	return gin.H{
		"siteName":                 cfg.SiteName,
		"siteDescription":          cfg.SiteDescription,
		"allowRegistration":        cfg.AllowRegistration,
		"defaultRole":              cfg.DefaultRole,
		"commentsEnabled":          cfg.CommentsEnabled,
		"commentsRequireApproval":  cfg.CommentsRequireApproval,
		"anonymousCommentsEnabled": cfg.AnonymousCommentsEnabled,
		"articlesPerPage":          cfg.ArticlesPerPage,
		"showAuthor":               cfg.ShowAuthor,
		"docSourceConfigured":      cfg.ServiceAccountKey != "",
		"docSourceAccount":         service.ServiceAccountEmail(cfg),
	}
}

// GetSiteConfig 获取站点配置
func (a *API) GetSiteConfig(c *gin.Context) {
	cfg, err := a.siteConfig.Get()
	if err != nil {
		respondError(c, http.StatusInternalServerError, "获取站点配置失败")
		return
	}
	c.JSON(http.StatusOK, gin.H{"config": configView(cfg)})
}

type configPatchRequest struct {
	SiteName                 *string `json:"siteName"`
	SiteDescription          *string `json:"siteDescription"`
	AllowRegistration        *bool   `json:"allowRegistration"`
	DefaultRole              *string `json:"defaultRole"`
	CommentsEnabled          *bool   `json:"commentsEnabled"`
	CommentsRequireApproval  *bool   `json:"commentsRequireApproval"`
	AnonymousCommentsEnabled *bool   `json:"anonymousCommentsEnabled"`
	ArticlesPerPage          *int    `json:"articlesPerPage"`
	ShowAuthor               *bool   `json:"showAuthor"`
	ServiceAccountKey        *string `json:"serviceAccountKey"`
}

// UpdateSiteConfig 增量更新站点配置
func (a *API) UpdateSiteConfig(c *gin.Context) {
	var req configPatchRequest
	if !bindJSON(c, &req, "请求格式不正确") {
		return
	}

	cfg, err := a.siteConfig.Update(service.SiteConfigPatch{
		SiteName:                 req.SiteName,
		SiteDescription:          req.SiteDescription,
		AllowRegistration:        req.AllowRegistration,
		DefaultRole:              req.DefaultRole,
		CommentsEnabled:          req.CommentsEnabled,
		CommentsRequireApproval:  req.CommentsRequireApproval,
		AnonymousCommentsEnabled: req.AnonymousCommentsEnabled,
		ArticlesPerPage:          req.ArticlesPerPage,
		ShowAuthor:               req.ShowAuthor,
		ServiceAccountKey:        req.ServiceAccountKey,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidServiceKey):
			respondError(c, http.StatusBadRequest, "服务账号凭据格式不正确")
		case errors.Is(err, service.ErrInvalidConfigValue):
			respondError(c, http.StatusBadRequest, "配置取值不合法")
		default:
			respondError(c, http.StatusInternalServerError, "更新站点配置失败")
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "站点配置已更新", "config": configView(cfg)})
}

// GetPublicSiteInfo 公开的站点信息，供前台渲染
func (a *API) GetPublicSiteInfo(c *gin.Context) {
	cfg := a.siteConfigOrDefault(c)
	c.JSON(http.StatusOK, gin.H{
		"siteName":                 cfg.SiteName,
		"siteDescription":          cfg.SiteDescription,
		"allowRegistration":        cfg.AllowRegistration,
		"commentsEnabled":          cfg.CommentsEnabled,
		"anonymousCommentsEnabled": cfg.AnonymousCommentsEnabled,
		"showAuthor":               cfg.ShowAuthor,
	})
}
