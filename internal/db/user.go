package db

import (
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	// RoleViewer 只能浏览已发布内容。
	RoleViewer = "viewer"
	// RoleEditor 可以创建并管理自己的文章。
	RoleEditor = "editor"
	// RoleAdmin 拥有全部管理权限。
	RoleAdmin = "admin"
)

// User 定义了用户模型
type User struct {
	gorm.Model
	Email    string `gorm:"uniqueIndex;not null" json:"email"`
	Name     string `json:"name"`
	Password string `gorm:"not null" json:"-"`
	Role     string `gorm:"size:20;not null;default:viewer" json:"role"`
}

// IsPrivileged 判断用户是否具备编辑及以上权限。
func (u *User) IsPrivileged() bool {
	if u == nil {
		return false
	}
	return u.Role == RoleEditor || u.Role == RoleAdmin
}

// ValidRole 校验角色取值。
func ValidRole(role string) bool {
	switch role {
	case RoleViewer, RoleEditor, RoleAdmin:
		return true
	}
	return false
}

// EnsureAdmin 存在性检查：若提供的邮箱与密码均非空且不存在对应账号，
// 则创建一个 bcrypt 哈希的管理员用户，用于初始引导。
func EnsureAdmin(gdb *gorm.DB, email, password string) error {
	trimmedEmail := strings.TrimSpace(email)
	trimmedPassword := strings.TrimSpace(password)
	if trimmedEmail == "" || trimmedPassword == "" {
		return nil
	}

	if gdb == nil {
		return errors.New("database not initialized")
	}

	var existing User
	if err := gdb.Where("email = ?", trimmedEmail).First(&existing).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		hashed, err := bcrypt.GenerateFromPassword([]byte(trimmedPassword), bcrypt.DefaultCost)
		if err != nil {
			return err
		}

		return gdb.Create(&User{Email: trimmedEmail, Password: string(hashed), Role: RoleAdmin}).Error
	}

	return nil
}
