package service

import (
	"errors"

	"github.com/kbcore/internal/db"
	"gorm.io/gorm"
)

// FeedbackIdentity 标识一次投票的归属：优先登录用户，
// 匿名访客退化为客户端 IP。
type FeedbackIdentity struct {
	UserID    *uint
	IPAddress string
}

// FeedbackTally 汇总一篇文章的投票计数与调用方自己的投票。
type FeedbackTally struct {
	Helpful    int64 `json:"helpful"`
	NotHelpful int64 `json:"notHelpful"`
	UserVoted  *bool `json:"userVoted"`
}

// FeedbackService wraps helpfulness vote operations.
type FeedbackService struct {
	db *gorm.DB
}

// NewFeedbackService creates a FeedbackService instance.
func NewFeedbackService(gdb *gorm.DB) *FeedbackService {
	return &FeedbackService{db: gdb}
}

// Vote 以 upsert 语义记录投票：同一身份重复投票只改写既有行。
// 没有撤票路径，换边是唯一的修改方式。并发首投由
// (article_id, user_id) / (article_id, ip_address) 唯一索引兜底，
// 冲突后重试会走到改写分支。
func (s *FeedbackService) Vote(articleID uint, identity FeedbackIdentity, isHelpful bool) (*FeedbackTally, error) {
	var article db.Article
	if err := s.db.First(&article, articleID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrArticleNotFound
		}
		return nil, err
	}

	err := withWriteRetry(func() error {
		return s.db.Transaction(func(tx *gorm.DB) error {
			var existing db.ArticleFeedback
			err := identityScope(tx.Where("article_id = ?", articleID), identity).
				First(&existing).Error
			if err == nil {
				return tx.Model(&db.ArticleFeedback{}).
					Where("id = ?", existing.ID).
					Update("is_helpful", isHelpful).Error
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}

			feedback := db.ArticleFeedback{
				ArticleID: articleID,
				UserID:    identity.UserID,
				IsHelpful: isHelpful,
			}
			if identity.UserID == nil {
				ip := identity.IPAddress
				feedback.IPAddress = &ip
			}
			return tx.Create(&feedback).Error
		})
	})
	if err != nil {
		return nil, err
	}

	return s.Tally(articleID, identity)
}

// Tally 返回最新的计数与调用方当前的投票。
func (s *FeedbackService) Tally(articleID uint, identity FeedbackIdentity) (*FeedbackTally, error) {
	tally := &FeedbackTally{}

	if err := s.db.Model(&db.ArticleFeedback{}).
		Where("article_id = ? AND is_helpful = ?", articleID, true).
		Count(&tally.Helpful).Error; err != nil {
		return nil, err
	}
	if err := s.db.Model(&db.ArticleFeedback{}).
		Where("article_id = ? AND is_helpful = ?", articleID, false).
		Count(&tally.NotHelpful).Error; err != nil {
		return nil, err
	}

	var own db.ArticleFeedback
	err := identityScope(s.db.Where("article_id = ?", articleID), identity).
		First(&own).Error
	if err == nil {
		voted := own.IsHelpful
		tally.UserVoted = &voted
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	return tally, nil
}

func identityScope(query *gorm.DB, identity FeedbackIdentity) *gorm.DB {
	if identity.UserID != nil {
		return query.Where("user_id = ?", *identity.UserID)
	}
	return query.Where("user_id IS NULL AND ip_address = ?", identity.IPAddress)
}
