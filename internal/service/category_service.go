package service

import (
	"errors"
	"strings"

	"github.com/kbcore/internal/db"
	"gorm.io/gorm"
)

var (
	ErrCategoryNotFound = errors.New("category not found")
	ErrCategoryName     = errors.New("category name is required")
	ErrCategoryParent   = errors.New("invalid category parent")
)

// 树构建时的最大嵌套深度，超出的层级被丢弃。
const maxCategoryDepth = 5

// CategoryService wraps category related operations.
type CategoryService struct {
	db *gorm.DB
}

// NewCategoryService creates a CategoryService instance.
func NewCategoryService(gdb *gorm.DB) *CategoryService {
	return &CategoryService{db: gdb}
}

// CategoryInput represents fields accepted when creating a category.
type CategoryInput struct {
	Name      string
	ParentID  *uint
	SortOrder int
}

// CategoryPatch 描述分类更新的增量字段；nil 表示保持现值。
// ParentID 指向 0 表示提升为根分类。
type CategoryPatch struct {
	Name      *string
	ParentID  *uint
	SortOrder *int
}

// Tree 返回按排序键组织的分类树，根节点在外层，
// 每个节点带已发布文章计数。显式按父 ID 分组构建，深度有界。
func (s *CategoryService) Tree() ([]*db.Category, error) {
	var categories []db.Category
	if err := s.db.Order("sort_order asc, name asc, id asc").Find(&categories).Error; err != nil {
		return nil, err
	}

	var rows []struct {
		CategoryID uint
		Count      int64
	}
	if err := s.db.Model(&db.Article{}).
		Select("category_id, COUNT(*) AS count").
		Where("category_id IS NOT NULL AND status = ?", db.StatusPublished).
		Group("category_id").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	counts := make(map[uint]int64, len(rows))
	for _, row := range rows {
		counts[row.CategoryID] = row.Count
	}

	nodes := make([]*db.Category, len(categories))
	byParent := make(map[uint][]*db.Category)
	for i := range categories {
		node := &categories[i]
		node.ArticleCount = counts[node.ID]
		nodes[i] = node

		parent := uint(0)
		if node.ParentID != nil {
			parent = *node.ParentID
		}
		byParent[parent] = append(byParent[parent], node)
	}

	roots := byParent[0]
	attachChildren(roots, byParent, 1)
	if roots == nil {
		roots = []*db.Category{}
	}
	return roots, nil
}

func attachChildren(parents []*db.Category, byParent map[uint][]*db.Category, depth int) {
	if depth >= maxCategoryDepth {
		return
	}
	for _, parent := range parents {
		parent.Children = byParent[parent.ID]
		attachChildren(parent.Children, byParent, depth+1)
	}
}

// Create inserts a category with a collision-resolved unique slug.
func (s *CategoryService) Create(input CategoryInput) (*db.Category, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, ErrCategoryName
	}

	var category db.Category
	err := withWriteRetry(func() error {
		category = db.Category{Name: name, SortOrder: input.SortOrder}

		return s.db.Transaction(func(tx *gorm.DB) error {
			if input.ParentID != nil && *input.ParentID != 0 {
				if err := categoryMustExist(tx, *input.ParentID); err != nil {
					return ErrCategoryParent
				}
				category.ParentID = input.ParentID
			}

			slug, err := resolveSlug(tx, &db.Category{}, name, 0)
			if err != nil {
				return err
			}
			category.Slug = slug

			return tx.Create(&category).Error
		})
	})
	if err != nil {
		return nil, err
	}
	return &category, nil
}

// Update applies partial updates to a category. The slug is kept stable
// across renames.
func (s *CategoryService) Update(id uint, patch CategoryPatch) (*db.Category, error) {
	var category db.Category
	if err := s.db.First(&category, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCategoryNotFound
		}
		return nil, err
	}

	updates := map[string]interface{}{}
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return nil, ErrCategoryName
		}
		updates["name"] = name
	}
	if patch.SortOrder != nil {
		updates["sort_order"] = *patch.SortOrder
	}
	if patch.ParentID != nil {
		if *patch.ParentID == 0 {
			updates["parent_id"] = nil
		} else {
			if *patch.ParentID == id {
				return nil, ErrCategoryParent
			}
			if err := categoryMustExist(s.db, *patch.ParentID); err != nil {
				return nil, ErrCategoryParent
			}
			updates["parent_id"] = *patch.ParentID
		}
	}

	if len(updates) > 0 {
		if err := s.db.Model(&db.Category{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			return nil, err
		}
	}

	if err := s.db.First(&category, id).Error; err != nil {
		return nil, err
	}
	return &category, nil
}

// Delete 删除分类但保留其文章：文章的 categoryId 置空，
// 子分类提升为根分类。
func (s *CategoryService) Delete(id uint) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var category db.Category
		if err := tx.First(&category, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrCategoryNotFound
			}
			return err
		}

		if err := tx.Model(&db.Article{}).
			Where("category_id = ?", id).
			Update("category_id", nil).Error; err != nil {
			return err
		}
		if err := tx.Model(&db.Category{}).
			Where("parent_id = ?", id).
			Update("parent_id", nil).Error; err != nil {
			return err
		}

		return tx.Unscoped().Delete(&db.Category{}, id).Error
	})
}

// resolveSlug 针对带唯一 slug 的模型计算候选并解决冲突。
func resolveSlug(tx *gorm.DB, model interface{}, name string, excludeID uint) (string, error) {
	base := Slugify(name)
	if base == "" {
		base = "item"
	}

	query := tx.Model(model).Where("slug = ?", base)
	if excludeID != 0 {
		query = query.Where("id <> ?", excludeID)
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return "", err
	}
	if count == 0 {
		return base, nil
	}
	return slugWithSuffix(base), nil
}
