package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kbcore/internal/service"
)

type categoryRequest struct {
	Name      string `json:"name" binding:"required"`
	ParentID  *uint  `json:"parentId"`
	SortOrder int    `json:"sortOrder"`
}

type categoryPatchRequest struct {
	Name      *string `json:"name"`
	ParentID  *uint   `json:"parentId"`
	SortOrder *int    `json:"sortOrder"`
}

// GetCategoryTree 获取完整的分类树
func (a *API) GetCategoryTree(c *gin.Context) {
	tree, err := a.categories.Tree()
	if err != nil {
		respondError(c, http.StatusInternalServerError, "获取分类列表失败")
		return
	}
	c.JSON(http.StatusOK, gin.H{"categories": tree})
}

// CreateCategory 创建新分类
func (a *API) CreateCategory(c *gin.Context) {
	var req categoryRequest
	if !bindJSON(c, &req, "分类名称不能为空") {
		return
	}

	category, err := a.categories.Create(service.CategoryInput{
		Name:      req.Name,
		ParentID:  req.ParentID,
		SortOrder: req.SortOrder,
	})
	if err != nil {
		a.respondCategoryError(c, err, "创建分类失败")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "分类创建成功", "category": category})
}

// UpdateCategory 更新分类
func (a *API) UpdateCategory(c *gin.Context) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的分类ID")
		return
	}

	var req categoryPatchRequest
	if !bindJSON(c, &req, "请求格式不正确") {
		return
	}

	category, err := a.categories.Update(id, service.CategoryPatch{
		Name:      req.Name,
		ParentID:  req.ParentID,
		SortOrder: req.SortOrder,
	})
	if err != nil {
		a.respondCategoryError(c, err, "更新分类失败")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "分类更新成功", "category": category})
}

// DeleteCategory 删除分类，关联文章与子分类脱离而非删除
func (a *API) DeleteCategory(c *gin.Context) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的分类ID")
		return
	}

	if err := a.categories.Delete(id); err != nil {
		a.respondCategoryError(c, err, "删除分类失败")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "分类删除成功"})
}

func (a *API) respondCategoryError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, service.ErrCategoryNotFound):
		respondError(c, http.StatusNotFound, "分类不存在")
	case errors.Is(err, service.ErrCategoryName):
		respondError(c, http.StatusBadRequest, "分类名称不能为空")
	case errors.Is(err, service.ErrCategoryParent):
		respondError(c, http.StatusBadRequest, "无效的父分类")
	default:
		respondError(c, http.StatusInternalServerError, fallback)
	}
}
