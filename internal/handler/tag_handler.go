package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kbcore/internal/service"
)

type tagRequest struct {
	Name string `json:"name" binding:"required"`
}

// GetTags 获取标签列表及各标签的文章数
func (a *API) GetTags(c *gin.Context) {
	tags, err := a.tags.List()
	if err != nil {
		respondError(c, http.StatusInternalServerError, "获取标签列表失败")
		return
	}
	c.JSON(http.StatusOK, gin.H{"tags": tags})
}

// CreateTag 创建新标签
func (a *API) CreateTag(c *gin.Context) {
	var req tagRequest
	if !bindJSON(c, &req, "标签名称不能为空") {
		return
	}

	tag, err := a.tags.Create(req.Name)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrTagName):
			respondError(c, http.StatusBadRequest, "标签名称不能为空")
		default:
			respondError(c, http.StatusInternalServerError, "创建标签失败")
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "标签创建成功", "tag": tag})
}

// DeleteTag 删除标签并解除与文章的关联
func (a *API) DeleteTag(c *gin.Context) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的标签ID")
		return
	}

	if err := a.tags.Delete(id); err != nil {
		switch {
		case errors.Is(err, service.ErrTagNotFound):
			respondError(c, http.StatusNotFound, "标签不存在")
		default:
			respondError(c, http.StatusInternalServerError, "删除标签失败")
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "标签删除成功"})
}
