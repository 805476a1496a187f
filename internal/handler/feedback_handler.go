package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kbcore/internal/service"
)

// feedbackIdentity 组装投票身份：登录用户按 ID 去重，匿名访客按客户端 IP。
func feedbackIdentity(c *gin.Context) service.FeedbackIdentity {
	if user := currentUser(c); user != nil {
		id := user.ID
		return service.FeedbackIdentity{UserID: &id}
	}
	return service.FeedbackIdentity{IPAddress: c.ClientIP()}
}

type feedbackRequest struct {
	Helpful *bool `json:"helpful" binding:"required"`
}

// VoteArticleFeedback 对文章投"有帮助/没帮助"一票
func (a *API) VoteArticleFeedback(c *gin.Context) {
	articleID, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的文章ID")
		return
	}

	var req feedbackRequest
	if !bindJSON(c, &req, "缺少投票结论") {
		return
	}

	tally, err := a.feedback.Vote(articleID, feedbackIdentity(c), *req.Helpful)
	if err != nil {
		if errors.Is(err, service.ErrArticleNotFound) {
			respondError(c, http.StatusNotFound, "文章不存在")
			return
		}
		respondError(c, http.StatusInternalServerError, "提交反馈失败")
		return
	}
	c.JSON(http.StatusOK, tally)
}

// GetArticleFeedback 获取文章的反馈计数与当前身份的投票
func (a *API) GetArticleFeedback(c *gin.Context) {
	articleID, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的文章ID")
		return
	}

	tally, err := a.feedback.Tally(articleID, feedbackIdentity(c))
	if err != nil {
		respondError(c, http.StatusInternalServerError, "获取反馈失败")
		return
	}
	c.JSON(http.StatusOK, tally)
}
