package db

import (
	"time"

	"gorm.io/gorm"
)

const (
	// StatusDraft 草稿，仅作者与管理员可见。
	StatusDraft = "draft"
	// StatusPublished 已发布，对外可见并进入检索。
	StatusPublished = "published"
	// StatusArchived 已归档，对外隐藏但保留历史。
	StatusArchived = "archived"
)

// Article 定义了知识库文章模型
type Article struct {
	gorm.Model
	Title       string     `gorm:"not null" json:"title"`
	Slug        string     `gorm:"uniqueIndex;not null" json:"slug"`
	Content     string     `gorm:"type:text" json:"content"`
	Excerpt     string     `gorm:"size:500" json:"excerpt"`
	Status      string     `gorm:"size:20;not null;default:draft;index" json:"status"`
	PublishedAt *time.Time `json:"publishedAt"`
	UserID      uint       `json:"authorId"`
	User        User       `json:"author"`
	CategoryID  *uint      `json:"categoryId"`
	Category    *Category  `json:"category,omitempty"`
	Tags        []Tag      `gorm:"many2many:article_tags;" json:"tags"`

	// ApprovedComments 由列表查询填充,不落库。
	ApprovedComments int64 `gorm:"-" json:"approvedComments"`
}

// ValidStatus 校验文章状态取值。
func ValidStatus(status string) bool {
	switch status {
	case StatusDraft, StatusPublished, StatusArchived:
		return true
	}
	return false
}

// ArticleVersion 记录文章的不可变历史版本快照。
type ArticleVersion struct {
	gorm.Model
	ArticleID     uint   `gorm:"uniqueIndex:idx_article_version,priority:1;not null" json:"articleId"`
	VersionNumber int    `gorm:"uniqueIndex:idx_article_version,priority:2;not null" json:"versionNumber"`
	Title         string `gorm:"not null" json:"title"`
	Content       string `gorm:"type:text" json:"content"`
	Excerpt       string `gorm:"size:500" json:"excerpt"`
	UserID        uint   `json:"authorId"`
	User          User   `json:"author"`
	ChangeNote    string `json:"changeNote"`
}

// TableName 指定自定义表名。
func (ArticleVersion) TableName() string {
	return "article_versions"
}
