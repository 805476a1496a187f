package service

import (
	"errors"
	"strings"

	"github.com/kbcore/internal/db"
	"gorm.io/gorm"
)

var (
	ErrCommentsDisabled  = errors.New("comments are disabled")
	ErrAnonymousComments = errors.New("sign in required to comment")
	ErrCommentNotFound   = errors.New("comment not found")
	ErrCommentContent    = errors.New("comment content is required")
)

// ShouldAutoApprove 是审核门槛：特权作者即刻通过，
// 其余取决于站点配置是否要求人工审核。仅在创建评论时应用一次。
func ShouldAutoApprove(authorRole string, cfg db.SiteConfig) bool {
	if authorRole == db.RoleEditor || authorRole == db.RoleAdmin {
		return true
	}
	return !cfg.CommentsRequireApproval
}

// CommentService wraps comment related operations.
type CommentService struct {
	db *gorm.DB
}

// NewCommentService creates a CommentService instance.
func NewCommentService(gdb *gorm.DB) *CommentService {
	return &CommentService{db: gdb}
}

// CommentInput represents fields accepted when creating a comment.
type CommentInput struct {
	Content     string
	ArticleID   uint
	ParentID    *uint
	AuthorName  string
	AuthorEmail string
}

// CommentListResult aggregates a paginated moderation queue.
type CommentListResult struct {
	Comments   []db.Comment `json:"data"`
	Total      int64        `json:"total"`
	TotalPages int          `json:"totalPages"`
	Page       int          `json:"page"`
	PerPage    int          `json:"perPage"`
}

// Create 依站点配置与审核门槛创建评论。文章必须存在且已发布。
// actor 为 nil 表示匿名访客。
func (s *CommentService) Create(input CommentInput, actor *db.User, cfg db.SiteConfig) (*db.Comment, error) {
	if !cfg.CommentsEnabled {
		return nil, ErrCommentsDisabled
	}
	if actor == nil && !cfg.AnonymousCommentsEnabled {
		return nil, ErrAnonymousComments
	}

	content := strings.TrimSpace(input.Content)
	if content == "" {
		return nil, ErrCommentContent
	}

	var article db.Article
	if err := s.db.Where("id = ? AND status = ?", input.ArticleID, db.StatusPublished).
		First(&article).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrArticleNotFound
		}
		return nil, err
	}

	comment := db.Comment{
		Content:   content,
		ArticleID: article.ID,
	}

	if input.ParentID != nil && *input.ParentID != 0 {
		var parent db.Comment
		if err := s.db.First(&parent, *input.ParentID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrCommentNotFound
			}
			return nil, err
		}
		if parent.ArticleID != article.ID {
			return nil, ErrCommentNotFound
		}
		comment.ParentID = input.ParentID
	}

	role := ""
	if actor != nil {
		userID := actor.ID
		comment.UserID = &userID
		role = actor.Role
	} else {
		comment.AuthorName = strings.TrimSpace(input.AuthorName)
		if comment.AuthorName == "" {
			comment.AuthorName = "Anonymous"
		}
		comment.AuthorEmail = strings.TrimSpace(input.AuthorEmail)
	}

	comment.IsApproved = ShouldAutoApprove(role, cfg)

	if err := s.db.Create(&comment).Error; err != nil {
		return nil, err
	}
	return &comment, nil
}

// ListForArticle 返回已审核的顶层评论及其已审核回复，均按时间升序。
func (s *CommentService) ListForArticle(articleID uint) ([]db.Comment, error) {
	var comments []db.Comment
	if err := s.db.
		Preload("User").
		Preload("Replies", func(tx *gorm.DB) *gorm.DB {
			return tx.Where("is_approved = ?", true).Order("created_at asc")
		}).
		Preload("Replies.User").
		Where("article_id = ? AND is_approved = ? AND parent_id IS NULL", articleID, true).
		Order("created_at asc").
		Find(&comments).Error; err != nil {
		return nil, err
	}
	return comments, nil
}

// ListPending 返回待审核队列，供管理员处理。
func (s *CommentService) ListPending(page, perPage int) (*CommentListResult, error) {
	result := &CommentListResult{Page: page, PerPage: perPage}
	if result.Page <= 0 {
		result.Page = 1
	}
	if result.PerPage <= 0 {
		result.PerPage = 20
	}

	base := s.db.Model(&db.Comment{}).Where("is_approved = ?", false)
	if err := base.Count(&result.Total).Error; err != nil {
		return nil, err
	}

	offset := (result.Page - 1) * result.PerPage
	var comments []db.Comment
	if err := s.db.Preload("User").
		Where("is_approved = ?", false).
		Order("created_at asc").
		Limit(result.PerPage).
		Offset(offset).
		Find(&comments).Error; err != nil {
		return nil, err
	}

	if result.Total == 0 {
		result.TotalPages = 1
	} else {
		result.TotalPages = int((result.Total + int64(result.PerPage) - 1) / int64(result.PerPage))
	}

	result.Comments = comments
	return result, nil
}

// Moderate 显式翻转审核状态，这是创建之后唯一的审核入口。
func (s *CommentService) Moderate(id uint, approved bool) (*db.Comment, error) {
	var comment db.Comment
	if err := s.db.First(&comment, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCommentNotFound
		}
		return nil, err
	}

	if err := s.db.Model(&db.Comment{}).
		Where("id = ?", id).
		Update("is_approved", approved).Error; err != nil {
		return nil, err
	}

	comment.IsApproved = approved
	return &comment, nil
}

// Delete 硬删除评论及其回复。
func (s *CommentService) Delete(id uint) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var comment db.Comment
		if err := tx.First(&comment, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrCommentNotFound
			}
			return err
		}

		if err := tx.Unscoped().Where("parent_id = ?", id).Delete(&db.Comment{}).Error; err != nil {
			return err
		}
		return tx.Unscoped().Delete(&db.Comment{}, id).Error
	})
}
