package db

import "gorm.io/gorm"

// SiteConfig 是唯一的站点配置行，首次读取时由服务层惰性创建。
type SiteConfig struct {
	gorm.Model
	SiteName                 string `gorm:"size:100;not null" json:"siteName"`
	SiteDescription          string `gorm:"size:500" json:"siteDescription"`
	AllowRegistration        bool   `gorm:"not null" json:"allowRegistration"`
	DefaultRole              string `gorm:"size:20;not null" json:"defaultRole"`
	CommentsEnabled          bool   `gorm:"not null" json:"commentsEnabled"`
	CommentsRequireApproval  bool   `gorm:"not null" json:"commentsRequireApproval"`
	AnonymousCommentsEnabled bool   `gorm:"not null" json:"anonymousCommentsEnabled"`
	ArticlesPerPage          int    `gorm:"not null" json:"articlesPerPage"`
	ShowAuthor               bool   `gorm:"not null" json:"showAuthor"`
	// ServiceAccountKey 保存外部文档服务的凭据 JSON，永不回显给客户端。
	ServiceAccountKey string `gorm:"type:text" json:"-"`
}

// TableName 指定自定义表名。
func (SiteConfig) TableName() string {
	return "site_config"
}
