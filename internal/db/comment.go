package db

import "gorm.io/gorm"

// Comment 定义了文章评论模型，支持一层回复嵌套与审核门槛。
type Comment struct {
	gorm.Model
	Content     string    `gorm:"type:text;not null" json:"content"`
	ArticleID   uint      `gorm:"index;not null" json:"articleId"`
	UserID      *uint     `json:"authorId"`
	User        *User     `json:"author,omitempty"`
	AuthorName  string    `gorm:"size:100" json:"authorName"`
	AuthorEmail string    `json:"authorEmail"`
	ParentID    *uint     `gorm:"index" json:"parentId"`
	Replies     []Comment `gorm:"foreignKey:ParentID" json:"replies,omitempty"`
	IsApproved  bool      `gorm:"not null;default:false;index" json:"isApproved"`
}
