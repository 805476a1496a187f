package db

import "gorm.io/gorm"

// Category 定义了文章分类模型，支持一级父子层级。
type Category struct {
	gorm.Model
	Name      string `gorm:"not null" json:"name"`
	Slug      string `gorm:"uniqueIndex;not null" json:"slug"`
	ParentID  *uint  `json:"parentId"`
	SortOrder int    `gorm:"not null;default:0" json:"order"`

	// Children 与 ArticleCount 由服务层的树构建填充，不落库。
	Children     []*Category `gorm:"-" json:"children,omitempty"`
	ArticleCount int64       `gorm:"-" json:"articleCount"`
}
