package service

import (
	"errors"
	"strings"

	"github.com/kbcore/internal/db"
	"gorm.io/gorm"
)

var (
	ErrTagNotFound = errors.New("tag not found")
	ErrTagName     = errors.New("tag name is required")
)

// TagService wraps tag related operations.
type TagService struct {
	db *gorm.DB
}

// NewTagService creates a TagService instance.
func NewTagService(gdb *gorm.DB) *TagService {
	return &TagService{db: gdb}
}

// List returns tags ordered by name with per-tag article counts.
func (s *TagService) List() ([]db.Tag, error) {
	var tags []db.Tag
	if err := s.db.
		Model(&db.Tag{}).
		Select("tags.*, COUNT(article_tags.article_id) AS article_count").
		Joins("LEFT JOIN article_tags ON article_tags.tag_id = tags.id").
		Group("tags.id").
		Order("tags.name asc").
		Order("tags.id asc").
		Find(&tags).Error; err != nil {
		return nil, err
	}
	return tags, nil
}

// Create inserts a tag with a collision-resolved unique slug.
func (s *TagService) Create(name string) (*db.Tag, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrTagName
	}

	var tag db.Tag
	err := withWriteRetry(func() error {
		tag = db.Tag{Name: name}

		return s.db.Transaction(func(tx *gorm.DB) error {
			slug, err := resolveSlug(tx, &db.Tag{}, name, 0)
			if err != nil {
				return err
			}
			tag.Slug = slug
			return tx.Create(&tag).Error
		})
	})
	if err != nil {
		return nil, err
	}
	return &tag, nil
}

// Delete 删除标签并清理其文章关联，文章本身不受影响。
func (s *TagService) Delete(id uint) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var tag db.Tag
		if err := tx.First(&tag, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrTagNotFound
			}
			return err
		}

		if err := tx.Exec("DELETE FROM article_tags WHERE tag_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Unscoped().Delete(&db.Tag{}, id).Error
	})
}
