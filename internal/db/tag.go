package db

import "gorm.io/gorm"

// Tag 定义了标签模型
type Tag struct {
	gorm.Model
	Name     string    `gorm:"not null" json:"name"`
	Slug     string    `gorm:"uniqueIndex;not null" json:"slug"`
	Articles []Article `gorm:"many2many:article_tags;" json:"-"`

	// ArticleCount 由列表查询填充，不落库。
	ArticleCount int64 `gorm:"-" json:"articleCount"`
}
