package handler

import (
	"errors"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"

	"github.com/kbcore/internal/db"
	"github.com/kbcore/internal/service"
)

const (
	sessionUserKey = "user_id"
	userContextKey = "__current_user"
)

// LoadUser 从会话恢复当前用户并放入请求上下文。会话指向的用户
// 已不存在时静默清除会话。
func (a *API) LoadUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		raw := session.Get(sessionUserKey)
		if raw == nil {
			c.Next()
			return
		}

		id, ok := raw.(uint)
		if !ok {
			c.Next()
			return
		}

		user, err := a.users.Get(id)
		if err != nil {
			session.Clear()
			_ = session.Save()
			c.Next()
			return
		}

		c.Set(userContextKey, user)
		c.Next()
	}
}

// currentUser 返回上下文中的登录用户，匿名时为 nil。
func currentUser(c *gin.Context) *db.User {
	if raw, exists := c.Get(userContextKey); exists {
		if user, ok := raw.(*db.User); ok {
			return user
		}
	}
	return nil
}

// AuthRequired 拦截未登录请求。
func AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if currentUser(c) == nil {
			respondError(c, http.StatusUnauthorized, "请先登录")
			c.Abort()
			return
		}
		c.Next()
	}
}

// RoleRequired 拦截角色不在白名单内的请求。
func RoleRequired(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := currentUser(c)
		if user == nil {
			respondError(c, http.StatusUnauthorized, "请先登录")
			c.Abort()
			return
		}
		for _, role := range roles {
			if user.Role == role {
				c.Next()
				return
			}
		}
		respondError(c, http.StatusForbidden, "没有权限执行该操作")
		c.Abort()
	}
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login 校验凭据并建立会话
func (a *API) Login(c *gin.Context) {
	var req loginRequest
	if !bindJSON(c, &req, "邮箱和密码不能为空") {
		return
	}

	user, err := a.users.Authenticate(req.Email, req.Password)
	if err != nil {
		respondError(c, http.StatusUnauthorized, "邮箱或密码错误")
		return
	}

	session := sessions.Default(c)
	session.Set(sessionUserKey, user.ID)
	if err := session.Save(); err != nil {
		respondError(c, http.StatusInternalServerError, "会话保存失败")
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": userView(user)})
}

// Logout 清除会话
func (a *API) Logout(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()
	if err := session.Save(); err != nil {
		respondError(c, http.StatusInternalServerError, "会话保存失败")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "已退出登录"})
}

type registerRequest struct {
	Email    string `json:"email" binding:"required"`
	Name     string `json:"name"`
	Password string `json:"password" binding:"required"`
}

// Register 开放注册入口，受站点配置开关控制
func (a *API) Register(c *gin.Context) {
	var req registerRequest
	if !bindJSON(c, &req, "邮箱和密码不能为空") {
		return
	}

	user, err := a.users.Register(service.UserInput{
		Email:    req.Email,
		Name:     req.Name,
		Password: req.Password,
	}, a.siteConfigOrDefault(c))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrRegistrationClosed):
			respondError(c, http.StatusForbidden, "当前未开放注册")
		case errors.Is(err, service.ErrEmailTaken):
			respondError(c, http.StatusBadRequest, "邮箱已被注册")
		case errors.Is(err, service.ErrInvalidCredentials):
			respondError(c, http.StatusBadRequest, "邮箱或密码不符合要求")
		default:
			respondError(c, http.StatusInternalServerError, "注册失败")
		}
		return
	}

	session := sessions.Default(c)
	session.Set(sessionUserKey, user.ID)
	if err := session.Save(); err != nil {
		respondError(c, http.StatusInternalServerError, "会话保存失败")
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": userView(user)})
}

// Me 返回当前登录用户
func (a *API) Me(c *gin.Context) {
	user := currentUser(c)
	if user == nil {
		respondError(c, http.StatusUnauthorized, "请先登录")
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": userView(user)})
}

func userView(user *db.User) gin.H {
	return gin.H{
		"id":    user.ID,
		"email": user.Email,
		"name":  user.Name,
		"role":  user.Role,
	}
}
