package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/kbcore/internal/db"
	"github.com/kbcore/internal/service"
)

type articleCreateRequest struct {
	Title      string `json:"title" binding:"required"`
	Content    string `json:"content"`
	Excerpt    string `json:"excerpt"`
	Status     string `json:"status"`
	CategoryID *uint  `json:"categoryId"`
	TagIDs     []uint `json:"tagIds"`
}

type articleUpdateRequest struct {
	Title      *string `json:"title"`
	Content    *string `json:"content"`
	Excerpt    *string `json:"excerpt"`
	Status     *string `json:"status"`
	CategoryID *uint   `json:"categoryId"`
	TagIDs     []uint  `json:"tagIds"`
	ChangeNote string  `json:"changeNote"`
}

// GetArticles 获取文章列表，可见性随操作者角色收敛
func (a *API) GetArticles(c *gin.Context) {
	cfg := a.siteConfigOrDefault(c)
	page, perPage := parsePagination(c, cfg.ArticlesPerPage)

	filter := service.ArticleFilter{
		Status:     strings.TrimSpace(c.Query("status")),
		CategoryID: parseUintQuery(c, "categoryId"),
		AuthorID:   parseUintQuery(c, "authorId"),
		Page:       page,
		PerPage:    perPage,
	}
	filter = service.NormalizeArticleFilter(filter, currentUser(c))

	result, err := a.articles.List(filter)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "获取文章列表失败")
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetArticle 按数字 ID 或 slug 获取单篇文章
func (a *API) GetArticle(c *gin.Context) {
	key := c.Param("id")
	actor := currentUser(c)

	var err error
	var article *db.Article
	if id, parseErr := strconv.ParseUint(key, 10, 32); parseErr == nil {
		article, err = a.articles.Get(uint(id), actor)
	} else {
		article, err = a.articles.GetBySlug(key, actor)
	}
	if err != nil {
		if errors.Is(err, service.ErrArticleNotFound) {
			respondError(c, http.StatusNotFound, "文章不存在")
			return
		}
		respondError(c, http.StatusInternalServerError, "获取文章失败")
		return
	}
	c.JSON(http.StatusOK, gin.H{"article": article})
}

// CreateArticle 创建新文章
func (a *API) CreateArticle(c *gin.Context) {
	var req articleCreateRequest
	if !bindJSON(c, &req, "文章标题不能为空") {
		return
	}

	article, err := a.articles.Create(service.ArticleInput{
		Title:      req.Title,
		Content:    req.Content,
		Excerpt:    req.Excerpt,
		Status:     req.Status,
		CategoryID: req.CategoryID,
		TagIDs:     req.TagIDs,
	}, *currentUser(c))
	if err != nil {
		a.respondArticleError(c, err, "创建文章失败")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "文章创建成功", "article": article})
}

// UpdateArticle 增量更新文章并生成版本快照
func (a *API) UpdateArticle(c *gin.Context) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的文章ID")
		return
	}

	var req articleUpdateRequest
	if !bindJSON(c, &req, "请求格式不正确") {
		return
	}

	article, err := a.articles.Update(id, service.ArticlePatch{
		Title:      req.Title,
		Content:    req.Content,
		Excerpt:    req.Excerpt,
		Status:     req.Status,
		CategoryID: req.CategoryID,
		TagIDs:     req.TagIDs,
		ChangeNote: req.ChangeNote,
	}, *currentUser(c))
	if err != nil {
		a.respondArticleError(c, err, "更新文章失败")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "文章更新成功", "article": article})
}

type articleStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// SetArticleStatus 单独切换文章状态，不产生版本快照
func (a *API) SetArticleStatus(c *gin.Context) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的文章ID")
		return
	}

	var req articleStatusRequest
	if !bindJSON(c, &req, "状态不能为空") {
		return
	}

	article, err := a.articles.SetStatus(id, req.Status, *currentUser(c))
	if err != nil {
		a.respondArticleError(c, err, "更新文章状态失败")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "状态更新成功", "article": article})
}

// DeleteArticle 删除文章及其全部关联数据
func (a *API) DeleteArticle(c *gin.Context) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的文章ID")
		return
	}

	if err := a.articles.Delete(id, *currentUser(c)); err != nil {
		a.respondArticleError(c, err, "删除文章失败")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "文章删除成功"})
}

// GetArticleVersions 获取文章的版本历史
func (a *API) GetArticleVersions(c *gin.Context) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的文章ID")
		return
	}

	versions, err := a.articles.Versions(id, *currentUser(c))
	if err != nil {
		a.respondArticleError(c, err, "获取版本历史失败")
		return
	}
	c.JSON(http.StatusOK, gin.H{"versions": versions})
}

// GetArticleVersion 获取单个版本快照
func (a *API) GetArticleVersion(c *gin.Context) {
	versionID, err := parseUintParam(c, "versionId")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的版本ID")
		return
	}

	version, err := a.articles.GetVersion(versionID, *currentUser(c))
	if err != nil {
		a.respondArticleError(c, err, "获取版本失败")
		return
	}
	c.JSON(http.StatusOK, gin.H{"version": version})
}

type restoreRequest struct {
	ChangeNote string `json:"changeNote"`
}

// RestoreArticleVersion 把历史版本内容前滚为最新版本
func (a *API) RestoreArticleVersion(c *gin.Context) {
	articleID, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的文章ID")
		return
	}
	versionID, err := parseUintParam(c, "versionId")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的版本ID")
		return
	}

	var req restoreRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req, "请求格式不正确") {
		return
	}

	article, err := a.articles.Restore(articleID, versionID, req.ChangeNote, *currentUser(c))
	if err != nil {
		if errors.Is(err, service.ErrVersionNotFound) {
			respondError(c, http.StatusNotFound, "版本不存在")
			return
		}
		a.respondArticleError(c, err, "还原版本失败")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "版本还原成功", "article": article})
}

func (a *API) respondArticleError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, service.ErrArticleNotFound):
		respondError(c, http.StatusNotFound, "文章不存在")
	case errors.Is(err, service.ErrVersionNotFound):
		respondError(c, http.StatusNotFound, "版本不存在")
	case errors.Is(err, service.ErrTitleRequired):
		respondError(c, http.StatusBadRequest, "文章标题不能为空")
	case errors.Is(err, service.ErrInvalidStatus):
		respondError(c, http.StatusBadRequest, "无效的文章状态")
	case errors.Is(err, service.ErrCategoryNotFound):
		respondError(c, http.StatusBadRequest, "分类不存在")
	case errors.Is(err, service.ErrForbidden):
		respondError(c, http.StatusForbidden, "没有权限操作该文章")
	default:
		respondError(c, http.StatusInternalServerError, fallback)
	}
}
