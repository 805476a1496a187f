package db

import "gorm.io/gorm"

// ArticleFeedback 记录一条"是否有帮助"投票。
// 身份优先取登录用户，匿名访客退化为客户端 IP；
// UserID 与 IPAddress 恰好一个非空。两个复合唯一索引
// 保证同一身份对同一文章至多一行。
type ArticleFeedback struct {
	gorm.Model
	ArticleID uint    `gorm:"not null;uniqueIndex:idx_feedback_article_user;uniqueIndex:idx_feedback_article_ip" json:"articleId"`
	UserID    *uint   `gorm:"uniqueIndex:idx_feedback_article_user" json:"userId"`
	IPAddress *string `gorm:"size:64;uniqueIndex:idx_feedback_article_ip" json:"-"`
	IsHelpful bool    `gorm:"not null" json:"isHelpful"`
}

// TableName 指定自定义表名。
func (ArticleFeedback) TableName() string {
	return "article_feedback"
}
