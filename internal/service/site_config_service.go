package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/kbcore/internal/db"
	"gorm.io/gorm"
)

var (
	ErrInvalidConfigValue = errors.New("invalid configuration value")
	ErrInvalidServiceKey  = errors.New("invalid service account key")
)

// SiteConfigService 管理唯一的站点配置行。
// 读侧走显式的进程内缓存，每次写入立即失效并回填，
// 不依赖任何按请求的隐式记忆。
type SiteConfigService struct {
	db *gorm.DB

	mu     sync.RWMutex
	cached *db.SiteConfig
}

// NewSiteConfigService creates a SiteConfigService instance.
func NewSiteConfigService(gdb *gorm.DB) *SiteConfigService {
	return &SiteConfigService{db: gdb}
}

// SiteConfigPatch 描述配置更新的增量字段；nil 表示保持现值。
// ServiceAccountKey 指向空串表示清除凭据。
type SiteConfigPatch struct {
	SiteName                 *string
	SiteDescription          *string
	AllowRegistration        *bool
	DefaultRole              *string
	CommentsEnabled          *bool
	CommentsRequireApproval  *bool
	AnonymousCommentsEnabled *bool
	ArticlesPerPage          *int
	ShowAuthor               *bool
	ServiceAccountKey        *string
}

// ServiceAccountKey 是外部文档服务凭据的必需形状。
type ServiceAccountKey struct {
	Type        string `json:"type"`
	ProjectID   string `json:"project_id"`
	PrivateKey  string `json:"private_key"`
	ClientEmail string `json:"client_email"`
	TokenURI    string `json:"token_uri"`
}

func defaultSiteConfig() db.SiteConfig {
	return db.SiteConfig{
		SiteName:                 "Knowledge Base",
		AllowRegistration:        true,
		DefaultRole:              db.RoleViewer,
		CommentsEnabled:          true,
		CommentsRequireApproval:  true,
		AnonymousCommentsEnabled: true,
		ArticlesPerPage:          10,
		ShowAuthor:               true,
	}
}

// Get 返回站点配置，首次读取时惰性创建唯一行。
func (s *SiteConfigService) Get() (db.SiteConfig, error) {
	s.mu.RLock()
	if s.cached != nil {
		cfg := *s.cached
		s.mu.RUnlock()
		return cfg, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cached != nil {
		return *s.cached, nil
	}

	var cfg db.SiteConfig
	err := s.db.First(&cfg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		cfg = defaultSiteConfig()
		if err := s.db.Create(&cfg).Error; err != nil {
			return cfg, err
		}
	} else if err != nil {
		return cfg, err
	}

	s.cached = &cfg
	return cfg, nil
}

// Update 应用增量修改并使缓存失效。并发写采用 last-writer-wins。
func (s *SiteConfigService) Update(patch SiteConfigPatch) (db.SiteConfig, error) {
	cfg, err := s.Get()
	if err != nil {
		return cfg, err
	}

	if patch.SiteName != nil {
		name := strings.TrimSpace(*patch.SiteName)
		if name == "" {
			return cfg, fmt.Errorf("%w: site name must not be empty", ErrInvalidConfigValue)
		}
		cfg.SiteName = name
	}
	if patch.SiteDescription != nil {
		cfg.SiteDescription = strings.TrimSpace(*patch.SiteDescription)
	}
	if patch.AllowRegistration != nil {
		cfg.AllowRegistration = *patch.AllowRegistration
	}
	if patch.DefaultRole != nil {
		if !db.ValidRole(*patch.DefaultRole) {
			return cfg, fmt.Errorf("%w: unknown role %q", ErrInvalidConfigValue, *patch.DefaultRole)
		}
		cfg.DefaultRole = *patch.DefaultRole
	}
	if patch.CommentsEnabled != nil {
		cfg.CommentsEnabled = *patch.CommentsEnabled
	}
	if patch.CommentsRequireApproval != nil {
		cfg.CommentsRequireApproval = *patch.CommentsRequireApproval
	}
	if patch.AnonymousCommentsEnabled != nil {
		cfg.AnonymousCommentsEnabled = *patch.AnonymousCommentsEnabled
	}
	if patch.ArticlesPerPage != nil {
		if *patch.ArticlesPerPage < 1 || *patch.ArticlesPerPage > 100 {
			return cfg, fmt.Errorf("%w: articles per page must be between 1 and 100", ErrInvalidConfigValue)
		}
		cfg.ArticlesPerPage = *patch.ArticlesPerPage
	}
	if patch.ShowAuthor != nil {
		cfg.ShowAuthor = *patch.ShowAuthor
	}
	if patch.ServiceAccountKey != nil {
		raw := strings.TrimSpace(*patch.ServiceAccountKey)
		if raw == "" {
			cfg.ServiceAccountKey = ""
		} else {
			if _, err := ParseServiceAccountKey(raw); err != nil {
				return cfg, err
			}
			cfg.ServiceAccountKey = raw
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.Save(&cfg).Error; err != nil {
		s.cached = nil
		return cfg, err
	}

	s.cached = &cfg
	return cfg, nil
}

// Invalidate 丢弃缓存，下一次 Get 重新读库。
func (s *SiteConfigService) Invalidate() {
	s.mu.Lock()
	s.cached = nil
	s.mu.Unlock()
}

// Credential 实现文档源的凭据提供方，返回原始凭据 JSON。
func (s *SiteConfigService) Credential() (string, error) {
	cfg, err := s.Get()
	if err != nil {
		return "", err
	}
	return cfg.ServiceAccountKey, nil
}

// ParseServiceAccountKey 校验凭据 JSON 的必需字段并解析。
func ParseServiceAccountKey(raw string) (*ServiceAccountKey, error) {
	var key ServiceAccountKey
	if err := json.Unmarshal([]byte(raw), &key); err != nil {
		return nil, fmt.Errorf("%w: not valid JSON", ErrInvalidServiceKey)
	}

	var missing []string
	if key.Type == "" {
		missing = append(missing, "type")
	}
	if key.ProjectID == "" {
		missing = append(missing, "project_id")
	}
	if key.PrivateKey == "" {
		missing = append(missing, "private_key")
	}
	if key.ClientEmail == "" {
		missing = append(missing, "client_email")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing fields: %s", ErrInvalidServiceKey, strings.Join(missing, ", "))
	}

	return &key, nil
}

// ServiceAccountEmail 返回已配置凭据的身份标识，凭据本身永不回显。
func ServiceAccountEmail(cfg db.SiteConfig) string {
	if strings.TrimSpace(cfg.ServiceAccountKey) == "" {
		return ""
	}
	key, err := ParseServiceAccountKey(cfg.ServiceAccountKey)
	if err != nil {
		return ""
	}
	return key.ClientEmail
}
