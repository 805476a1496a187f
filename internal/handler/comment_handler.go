package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kbcore/internal/service"
)

type commentRequest struct {
	Content     string `json:"content" binding:"required"`
	ParentID    *uint  `json:"parentId"`
	AuthorName  string `json:"authorName"`
	AuthorEmail string `json:"authorEmail"`
}

// GetArticleComments 获取文章下已批准的评论树
func (a *API) GetArticleComments(c *gin.Context) {
	articleID, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的文章ID")
		return
	}

	comments, err := a.comments.ListForArticle(articleID)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "获取评论失败")
		return
	}
	c.JSON(http.StatusOK, gin.H{"comments": comments})
}

// CreateComment 在文章下发表评论，匿名与审核门槛由站点配置决定
func (a *API) CreateComment(c *gin.Context) {
	articleID, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的文章ID")
		return
	}

	var req commentRequest
	if !bindJSON(c, &req, "评论内容不能为空") {
		return
	}

	comment, err := a.comments.Create(service.CommentInput{
		Content:     req.Content,
		ArticleID:   articleID,
		ParentID:    req.ParentID,
		AuthorName:  req.AuthorName,
		AuthorEmail: req.AuthorEmail,
	}, currentUser(c), a.siteConfigOrDefault(c))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrCommentsDisabled):
			respondError(c, http.StatusForbidden, "评论功能已关闭")
		case errors.Is(err, service.ErrAnonymousComments):
			respondError(c, http.StatusForbidden, "匿名评论未开放，请先登录")
		case errors.Is(err, service.ErrArticleNotFound):
			respondError(c, http.StatusNotFound, "文章不存在")
		case errors.Is(err, service.ErrCommentNotFound):
			respondError(c, http.StatusBadRequest, "被回复的评论不存在")
		case errors.Is(err, service.ErrCommentContent):
			respondError(c, http.StatusBadRequest, "评论内容不能为空")
		default:
			respondError(c, http.StatusInternalServerError, "发表评论失败")
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "评论提交成功", "comment": comment})
}

// GetPendingComments 获取待审核评论队列
func (a *API) GetPendingComments(c *gin.Context) {
	page, perPage := parsePagination(c, 20)

	result, err := a.comments.ListPending(page, perPage)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "获取待审评论失败")
		return
	}
	c.JSON(http.StatusOK, result)
}

type moderateRequest struct {
	Approved *bool `json:"approved" binding:"required"`
}

// ModerateComment 批准或驳回一条评论
func (a *API) ModerateComment(c *gin.Context) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的评论ID")
		return
	}

	var req moderateRequest
	if !bindJSON(c, &req, "缺少审核结论") {
		return
	}

	comment, err := a.comments.Moderate(id, *req.Approved)
	if err != nil {
		if errors.Is(err, service.ErrCommentNotFound) {
			respondError(c, http.StatusNotFound, "评论不存在")
			return
		}
		respondError(c, http.StatusInternalServerError, "审核评论失败")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "审核完成", "comment": comment})
}

// DeleteComment 删除评论及其回复
func (a *API) DeleteComment(c *gin.Context) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的评论ID")
		return
	}

	if err := a.comments.Delete(id); err != nil {
		if errors.Is(err, service.ErrCommentNotFound) {
			respondError(c, http.StatusNotFound, "评论不存在")
			return
		}
		respondError(c, http.StatusInternalServerError, "删除评论失败")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "评论删除成功"})
}
