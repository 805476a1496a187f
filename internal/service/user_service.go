package service

import (
	"errors"
	"strings"

	"github.com/kbcore/internal/db"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	ErrEmailTaken         = errors.New("email already in use")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrRegistrationClosed = errors.New("registration is closed")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidRole        = errors.New("invalid user role")
)

const bcryptCost = 12

// UserService wraps user account operations.
type UserService struct {
	db *gorm.DB
}

// NewUserService creates a UserService instance.
func NewUserService(gdb *gorm.DB) *UserService {
	return &UserService{db: gdb}
}

// UserInput represents fields accepted when creating a user.
type UserInput struct {
	Email    string
	Name     string
	Password string
	Role     string
}

// UserListResult aggregates paginated user rows.
type UserListResult struct {
	Users      []db.User `json:"data"`
	Total      int64     `json:"total"`
	TotalPages int       `json:"totalPages"`
	Page       int       `json:"page"`
	PerPage    int       `json:"perPage"`
}

// Register 开放注册入口。角色取站点配置的默认角色，
// 但永远不会通过注册产生管理员。
func (s *UserService) Register(input UserInput, cfg db.SiteConfig) (*db.User, error) {
	if !cfg.AllowRegistration {
		return nil, ErrRegistrationClosed
	}

	role := cfg.DefaultRole
	if !db.ValidRole(role) || role == db.RoleAdmin {
		role = db.RoleViewer
	}
	input.Role = role

	return s.Create(input)
}

// Create inserts a user with a bcrypt-hashed password.
func (s *UserService) Create(input UserInput) (*db.User, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if !db.ValidRole(input.Role) {
		return nil, ErrInvalidRole
	}

	var existing db.User
	if err := s.db.Where("email = ?", email).First(&existing).Error; err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcryptCost)
	if err != nil {
		return nil, err
	}

	user := db.User{
		Email:    email,
		Name:     strings.TrimSpace(input.Name),
		Password: string(hashed),
		Role:     input.Role,
	}
	if err := s.db.Create(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// Authenticate 验证邮箱与密码，两类失败返回同一错误以避免枚举账号。
func (s *UserService) Authenticate(email, password string) (*db.User, error) {
	var user db.User
	if err := s.db.Where("email = ?", strings.ToLower(strings.TrimSpace(email))).
		First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return &user, nil
}

// Get fetches a user by id.
func (s *UserService) Get(id uint) (*db.User, error) {
	var user db.User
	if err := s.db.First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// SetRole 调整用户角色。
func (s *UserService) SetRole(id uint, role string) (*db.User, error) {
	if !db.ValidRole(role) {
		return nil, ErrInvalidRole
	}

	user, err := s.Get(id)
	if err != nil {
		return nil, err
	}

	if err := s.db.Model(user).Update("role", role).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// Delete 彻底移除用户。其文章与评论保留，作者关联悬空由展示层兜底。
func (s *UserService) Delete(id uint) error {
	user, err := s.Get(id)
	if err != nil {
		return err
	}
	return s.db.Unscoped().Delete(user).Error
}

// List provides paginated users ordered by creation time descending.
func (s *UserService) List(page, perPage int) (*UserListResult, error) {
	result := &UserListResult{Page: page, PerPage: perPage}
	if result.Page <= 0 {
		result.Page = 1
	}
	if result.PerPage <= 0 {
		result.PerPage = 20
	}

	if err := s.db.Model(&db.User{}).Count(&result.Total).Error; err != nil {
		return nil, err
	}

	offset := (result.Page - 1) * result.PerPage
	var users []db.User
	if err := s.db.Order("created_at desc, id desc").
		Limit(result.PerPage).
		Offset(offset).
		Find(&users).Error; err != nil {
		return nil, err
	}

	if result.Total == 0 {
		result.TotalPages = 1
	} else {
		result.TotalPages = int((result.Total + int64(result.PerPage) - 1) / int64(result.PerPage))
	}

	result.Users = users
	return result, nil
}
