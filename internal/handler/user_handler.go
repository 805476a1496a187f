package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kbcore/internal/service"
)

// GetUsers 获取用户列表
func (a *API) GetUsers(c *gin.Context) {
	page, perPage := parsePagination(c, 20)

	result, err := a.users.List(page, perPage)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "获取用户列表失败")
		return
	}
	c.JSON(http.StatusOK, result)
}

type userCreateRequest struct {
	Email    string `json:"email" binding:"required"`
	Name     string `json:"name"`
	Password string `json:"password" binding:"required"`
	Role     string `json:"role" binding:"required"`
}

// CreateUser 管理员直接创建用户
func (a *API) CreateUser(c *gin.Context) {
	var req userCreateRequest
	if !bindJSON(c, &req, "邮箱、密码和角色不能为空") {
		return
	}

	user, err := a.users.Create(service.UserInput{
		Email:    req.Email,
		Name:     req.Name,
		Password: req.Password,
		Role:     req.Role,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrEmailTaken):
			respondError(c, http.StatusBadRequest, "邮箱已被注册")
		case errors.Is(err, service.ErrInvalidRole):
			respondError(c, http.StatusBadRequest, "无效的用户角色")
		default:
			respondError(c, http.StatusInternalServerError, "创建用户失败")
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "用户创建成功", "user": userView(user)})
}

type userRoleRequest struct {
	Role string `json:"role" binding:"required"`
}

// SetUserRole 调整用户角色，管理员不能降级自己
func (a *API) SetUserRole(c *gin.Context) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的用户ID")
		return
	}
	if actor := currentUser(c); actor != nil && actor.ID == id {
		respondError(c, http.StatusBadRequest, "不能修改自己的角色")
		return
	}

	var req userRoleRequest
	if !bindJSON(c, &req, "角色不能为空") {
		return
	}

	user, err := a.users.SetRole(id, req.Role)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUserNotFound):
			respondError(c, http.StatusNotFound, "用户不存在")
		case errors.Is(err, service.ErrInvalidRole):
			respondError(c, http.StatusBadRequest, "无效的用户角色")
		default:
			respondError(c, http.StatusInternalServerError, "更新角色失败")
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "角色更新成功", "user": userView(user)})
}

// DeleteUser 删除用户，管理员不能删除自己
func (a *API) DeleteUser(c *gin.Context) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的用户ID")
		return
	}
	if actor := currentUser(c); actor != nil && actor.ID == id {
		respondError(c, http.StatusBadRequest, "不能删除自己")
		return
	}

	if err := a.users.Delete(id); err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			respondError(c, http.StatusNotFound, "用户不存在")
			return
		}
		respondError(c, http.StatusInternalServerError, "删除用户失败")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "用户删除成功"})
}
