package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kbcore/internal/db"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

var (
	ErrArticleNotFound = errors.New("article not found")
	ErrVersionNotFound = errors.New("article version not found")
	ErrTitleRequired   = errors.New("article title is required")
	ErrInvalidStatus   = errors.New("invalid article status")
	ErrForbidden       = errors.New("operation not allowed for this user")
)

// 写入重试上限。版本号与 slug 的唯一约束冲突都是瞬时的：
// 每次重试会在新事务里重新计算。
const maxWriteAttempts = 10

// ArticleService 负责文章聚合的全部生命周期操作，
// 在单个事务内完成净化后的正文写入、版本快照与标签关联。
type ArticleService struct {
	db     *gorm.DB
	search *SearchService
	log    zerolog.Logger
}

// NewArticleService creates an ArticleService instance.
func NewArticleService(gdb *gorm.DB, search *SearchService, log zerolog.Logger) *ArticleService {
	return &ArticleService{
		db:     gdb,
		search: search,
		log:    log.With().Str("service", "article").Logger(),
	}
}

// ArticleInput represents fields accepted when creating an article.
type ArticleInput struct {
	Title      string
	Content    string
	Excerpt    string
	Status     string
	CategoryID *uint
	TagIDs     []uint
	ChangeNote string
}

// ArticlePatch 描述更新操作的增量字段；nil 表示保持现值。
// CategoryID 指向 0 表示清除分类；TagIDs 为非 nil 时整体替换关联。
type ArticlePatch struct {
	Title      *string
	Content    *string
	Excerpt    *string
	Status     *string
	CategoryID *uint
	TagIDs     []uint
	ChangeNote string
}

// ArticleFilter describes filters for listing articles.
type ArticleFilter struct {
	Status     string
	CategoryID uint
	AuthorID   uint
	Page       int
	PerPage    int
}

// ArticleListResult aggregates paginated list data.
type ArticleListResult struct {
	Articles   []db.Article `json:"data"`
	Total      int64        `json:"total"`
	TotalPages int          `json:"totalPages"`
	Page       int          `json:"page"`
	PerPage    int          `json:"perPage"`
}

// NormalizeArticleFilter 根据操作者角色收敛过滤条件：
// 匿名与 viewer 只看已发布，editor 只看自己，admin 不受限。纯函数。
func NormalizeArticleFilter(filter ArticleFilter, actor *db.User) ArticleFilter {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PerPage <= 0 {
		filter.PerPage = 10
	}

	switch {
	case actor == nil || !actor.IsPrivileged():
		filter.Status = db.StatusPublished
	case actor.Role == db.RoleEditor:
		filter.AuthorID = actor.ID
	}

	return filter
}

// Create 净化正文、解析唯一 slug，并在一个事务里写入文章、版本 1、
// 标签关联与检索索引。
func (s *ArticleService) Create(input ArticleInput, actor db.User) (*db.Article, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, ErrTitleRequired
	}

	status := input.Status
	if status == "" {
		status = db.StatusDraft
	}
	if !db.ValidStatus(status) {
		return nil, ErrInvalidStatus
	}

	content := SanitizeHTML(input.Content)
	excerpt := strings.TrimSpace(input.Excerpt)

	var article db.Article
	err := withWriteRetry(func() error {
		article = db.Article{
			Title:   title,
			Content: content,
			Excerpt: excerpt,
			Status:  status,
			UserID:  actor.ID,
		}
		if status == db.StatusPublished {
			now := time.Now()
			article.PublishedAt = &now
		}

		return s.db.Transaction(func(tx *gorm.DB) error {
			if input.CategoryID != nil && *input.CategoryID != 0 {
				if err := categoryMustExist(tx, *input.CategoryID); err != nil {
					return err
				}
				article.CategoryID = input.CategoryID
			}

			slug, err := resolveArticleSlug(tx, title, 0)
			if err != nil {
				return err
			}
			article.Slug = slug

			if err := tx.Create(&article).Error; err != nil {
				return err
			}

			if len(input.TagIDs) > 0 {
				if err := replaceTags(tx, &article, input.TagIDs); err != nil {
					return err
				}
			}

			note := strings.TrimSpace(input.ChangeNote)
			if note == "" {
				note = "Initial version"
			}
			version := db.ArticleVersion{
				ArticleID:     article.ID,
				VersionNumber: 1,
				Title:         title,
				Content:       content,
				Excerpt:       excerpt,
				UserID:        actor.ID,
				ChangeNote:    note,
			}
			if err := tx.Create(&version).Error; err != nil {
				return err
			}

			return s.search.Index(tx, &article)
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Uint("article_id", article.ID).Str("slug", article.Slug).Msg("article created")
	return s.Get(article.ID, &actor)
}

// Update 在一个事务内计算下一个版本号、写入快照并应用增量修改。
// 快照取补丁值，未提供的字段回退到当前值。
func (s *ArticleService) Update(id uint, patch ArticlePatch, actor db.User) (*db.Article, error) {
	if patch.Status != nil && !db.ValidStatus(*patch.Status) {
		return nil, ErrInvalidStatus
	}
	if patch.Title != nil && strings.TrimSpace(*patch.Title) == "" {
		return nil, ErrTitleRequired
	}

	err := withWriteRetry(func() error {
		return s.db.Transaction(func(tx *gorm.DB) error {
			var existing db.Article
			if err := tx.First(&existing, id).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return ErrArticleNotFound
				}
				return err
			}
			if !canModify(actor, existing) {
				return ErrForbidden
			}

			title := existing.Title
			if patch.Title != nil {
				title = strings.TrimSpace(*patch.Title)
			}
			content := existing.Content
			if patch.Content != nil {
				content = SanitizeHTML(*patch.Content)
			}
			excerpt := existing.Excerpt
			if patch.Excerpt != nil {
				excerpt = strings.TrimSpace(*patch.Excerpt)
			}

			next, err := nextVersionNumber(tx, existing.ID)
			if err != nil {
				return err
			}

			note := strings.TrimSpace(patch.ChangeNote)
			if note == "" {
				note = fmt.Sprintf("Version %d", next)
			}
			version := db.ArticleVersion{
				ArticleID:     existing.ID,
				VersionNumber: next,
				Title:         title,
				Content:       content,
				Excerpt:       excerpt,
				UserID:        actor.ID,
				ChangeNote:    note,
			}
			if err := tx.Create(&version).Error; err != nil {
				return err
			}

			updates := map[string]interface{}{
				"title":   title,
				"content": content,
				"excerpt": excerpt,
			}

			if patch.Title != nil && title != existing.Title {
				slug, err := resolveArticleSlug(tx, title, existing.ID)
				if err != nil {
					return err
				}
				updates["slug"] = slug
			}

			if patch.Status != nil {
				updates["status"] = *patch.Status
				// publishedAt 只在首次进入 published 时落章，此后不再改写。
				if *patch.Status == db.StatusPublished && existing.PublishedAt == nil {
					updates["published_at"] = time.Now()
				}
			}

			if patch.CategoryID != nil {
				if *patch.CategoryID == 0 {
					updates["category_id"] = nil
				} else {
					if err := categoryMustExist(tx, *patch.CategoryID); err != nil {
						return err
					}
					updates["category_id"] = *patch.CategoryID
				}
			}

			if err := tx.Model(&db.Article{}).Where("id = ?", existing.ID).Updates(updates).Error; err != nil {
				return err
			}

			if patch.TagIDs != nil {
				if err := replaceTags(tx, &existing, patch.TagIDs); err != nil {
					return err
				}
			}

			indexed := existing
			indexed.Title = title
			indexed.Content = content
			indexed.Excerpt = excerpt
			return s.search.Index(tx, &indexed)
		})
	})
	if err != nil {
		return nil, err
	}

	return s.Get(id, &actor)
}

// SetStatus 只做状态迁移，沿用与 Update 相同的 publishedAt 落章规则。
// 不产生版本快照。
func (s *ArticleService) SetStatus(id uint, status string, actor db.User) (*db.Article, error) {
	if !db.ValidStatus(status) {
		return nil, ErrInvalidStatus
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var existing db.Article
		if err := tx.First(&existing, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrArticleNotFound
			}
			return err
		}
		if !canModify(actor, existing) {
			return ErrForbidden
		}

		updates := map[string]interface{}{"status": status}
		if status == db.StatusPublished && existing.PublishedAt == nil {
			updates["published_at"] = time.Now()
		}

		return tx.Model(&db.Article{}).Where("id = ?", existing.ID).Updates(updates).Error
	})
	if err != nil {
		return nil, err
	}

	return s.Get(id, &actor)
}

// Restore 将历史版本拷贝为一条新快照并回写文章现值。
// 只追加、从不删改中间版本，历史保持单调递增。
func (s *ArticleService) Restore(articleID, versionID uint, changeNote string, actor db.User) (*db.Article, error) {
	err := withWriteRetry(func() error {
		return s.db.Transaction(func(tx *gorm.DB) error {
			var existing db.Article
			if err := tx.First(&existing, articleID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return ErrArticleNotFound
				}
				return err
			}
			if !canModify(actor, existing) {
				return ErrForbidden
			}

			var target db.ArticleVersion
			if err := tx.First(&target, versionID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return ErrVersionNotFound
				}
				return err
			}
			if target.ArticleID != articleID {
				return ErrVersionNotFound
			}

			next, err := nextVersionNumber(tx, articleID)
			if err != nil {
				return err
			}

			note := strings.TrimSpace(changeNote)
			if note == "" {
				note = fmt.Sprintf("Restored from version %d", target.VersionNumber)
			}
			version := db.ArticleVersion{
				ArticleID:     articleID,
				VersionNumber: next,
				Title:         target.Title,
				Content:       target.Content,
				Excerpt:       target.Excerpt,
				UserID:        actor.ID,
				ChangeNote:    note,
			}
			if err := tx.Create(&version).Error; err != nil {
				return err
			}

			updates := map[string]interface{}{
				"title":   target.Title,
				"content": target.Content,
				"excerpt": target.Excerpt,
			}
			if err := tx.Model(&db.Article{}).Where("id = ?", articleID).Updates(updates).Error; err != nil {
				return err
			}

			indexed := existing
			indexed.Title = target.Title
			indexed.Content = target.Content
			indexed.Excerpt = target.Excerpt
			return s.search.Index(tx, &indexed)
		})
	})
	if err != nil {
		return nil, err
	}

	return s.Get(articleID, &actor)
}

// Delete 硬删除文章并级联清理版本、评论、反馈、标签关联与检索索引。
func (s *ArticleService) Delete(id uint, actor db.User) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var existing db.Article
		if err := tx.First(&existing, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrArticleNotFound
			}
			return err
		}
		if !canModify(actor, existing) {
			return ErrForbidden
		}

		if err := tx.Exec("DELETE FROM article_tags WHERE article_id = ?", id).Error; err != nil {
			return err
		}
		if err := tx.Unscoped().Where("article_id = ?", id).Delete(&db.ArticleVersion{}).Error; err != nil {
			return err
		}
		if err := tx.Unscoped().Where("article_id = ?", id).Delete(&db.Comment{}).Error; err != nil {
			return err
		}
		if err := tx.Unscoped().Where("article_id = ?", id).Delete(&db.ArticleFeedback{}).Error; err != nil {
			return err
		}
		if err := s.search.Remove(tx, id); err != nil {
			return err
		}

		return tx.Unscoped().Delete(&db.Article{}, id).Error
	})
}

// Get 按 ID 获取文章。未发布内容对非特权用户表现为不存在。
func (s *ArticleService) Get(id uint, actor *db.User) (*db.Article, error) {
	return s.getBy("articles.id = ?", id, actor)
}

// GetBySlug 按 slug 获取文章，可见性规则与 Get 相同。
func (s *ArticleService) GetBySlug(slug string, actor *db.User) (*db.Article, error) {
	return s.getBy("articles.slug = ?", slug, actor)
}

func (s *ArticleService) getBy(cond string, value interface{}, actor *db.User) (*db.Article, error) {
	var article db.Article
	if err := s.db.Preload("Tags").Preload("User").Preload("Category").
		Where(cond, value).First(&article).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrArticleNotFound
		}
		return nil, err
	}

	if article.Status != db.StatusPublished && !actor.IsPrivileged() {
		return nil, ErrArticleNotFound
	}

	counts, err := s.approvedCommentCounts([]uint{article.ID})
	if err != nil {
		return nil, err
	}
	article.ApprovedComments = counts[article.ID]

	return &article, nil
}

// List provides paginated articles for the given (already normalized) filter.
func (s *ArticleService) List(filter ArticleFilter) (*ArticleListResult, error) {
	result := &ArticleListResult{Page: filter.Page, PerPage: filter.PerPage}
	if result.Page <= 0 {
		result.Page = 1
	}
	if result.PerPage <= 0 {
		result.PerPage = 10
	}

	countQuery := applyArticleFilters(s.db.Model(&db.Article{}), filter)
	if err := countQuery.Count(&result.Total).Error; err != nil {
		return nil, err
	}

	offset := (result.Page - 1) * result.PerPage

	var articles []db.Article
	dataQuery := applyArticleFilters(
		s.db.Model(&db.Article{}).Preload("Tags").Preload("User").Preload("Category"),
		filter,
	)
	if err := dataQuery.
		Order("articles.updated_at desc, articles.id desc").
		Limit(result.PerPage).
		Offset(offset).
		Find(&articles).Error; err != nil {
		return nil, err
	}

	ids := make([]uint, 0, len(articles))
	for i := range articles {
		ids = append(ids, articles[i].ID)
	}
	counts, err := s.approvedCommentCounts(ids)
	if err != nil {
		return nil, err
	}
	for i := range articles {
		articles[i].ApprovedComments = counts[articles[i].ID]
	}

	if result.Total == 0 {
		result.TotalPages = 1
	} else {
		result.TotalPages = int((result.Total + int64(result.PerPage) - 1) / int64(result.PerPage))
	}

	result.Articles = articles
	return result, nil
}

// Versions 返回文章的版本历史，按版本号倒序。仅作者与管理员可见。
func (s *ArticleService) Versions(articleID uint, actor db.User) ([]db.ArticleVersion, error) {
	var article db.Article
	if err := s.db.First(&article, articleID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrArticleNotFound
		}
		return nil, err
	}
	if !canModify(actor, article) {
		return nil, ErrForbidden
	}

	var versions []db.ArticleVersion
	if err := s.db.Preload("User").
		Where("article_id = ?", articleID).
		Order("version_number desc").
		Find(&versions).Error; err != nil {
		return nil, err
	}
	return versions, nil
}

// GetVersion 返回单个完整版本快照，权限规则与 Versions 相同。
func (s *ArticleService) GetVersion(versionID uint, actor db.User) (*db.ArticleVersion, error) {
	var version db.ArticleVersion
	if err := s.db.Preload("User").First(&version, versionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrVersionNotFound
		}
		return nil, err
	}

	var article db.Article
	if err := s.db.First(&article, version.ArticleID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrVersionNotFound
		}
		return nil, err
	}
	if !canModify(actor, article) {
		return nil, ErrForbidden
	}

	return &version, nil
}

func (s *ArticleService) approvedCommentCounts(articleIDs []uint) (map[uint]int64, error) {
	counts := make(map[uint]int64, len(articleIDs))
	if len(articleIDs) == 0 {
		return counts, nil
	}

	var rows []struct {
		ArticleID uint
		Count     int64
	}
	if err := s.db.Model(&db.Comment{}).
		Select("article_id, COUNT(*) AS count").
		Where("article_id IN ? AND is_approved = ?", articleIDs, true).
		Group("article_id").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	for _, row := range rows {
		counts[row.ArticleID] = row.Count
	}
	return counts, nil
}

func canModify(actor db.User, article db.Article) bool {
	if actor.Role == db.RoleAdmin {
		return true
	}
	return actor.Role == db.RoleEditor && article.UserID == actor.ID
}

func applyArticleFilters(query *gorm.DB, filter ArticleFilter) *gorm.DB {
	if filter.Status != "" {
		query = query.Where("articles.status = ?", filter.Status)
	}
	if filter.CategoryID != 0 {
		query = query.Where("articles.category_id = ?", filter.CategoryID)
	}
	if filter.AuthorID != 0 {
		query = query.Where("articles.user_id = ?", filter.AuthorID)
	}
	return query
}

// nextVersionNumber 取当前最大版本号加一。必须与消费它的写入处于同一事务，
// 配合 (article_id, version_number) 唯一索引与外层重试消除并发重号。
func nextVersionNumber(tx *gorm.DB, articleID uint) (int, error) {
	var current int
	if err := tx.Model(&db.ArticleVersion{}).
		Where("article_id = ?", articleID).
		Select("COALESCE(MAX(version_number), 0)").
		Scan(&current).Error; err != nil {
		return 0, err
	}
	return current + 1, nil
}

func resolveArticleSlug(tx *gorm.DB, title string, excludeID uint) (string, error) {
	return resolveSlug(tx, &db.Article{}, title, excludeID)
}

func replaceTags(tx *gorm.DB, article *db.Article, tagIDs []uint) error {
	var tags []db.Tag
	if len(tagIDs) > 0 {
		if err := tx.Where("id IN ?", tagIDs).Find(&tags).Error; err != nil {
			return err
		}
		if len(tags) != len(tagIDs) {
			return ErrTagNotFound
		}
	}
	return tx.Model(article).Association("Tags").Replace(tags)
}

func categoryMustExist(tx *gorm.DB, id uint) error {
	var count int64
	if err := tx.Model(&db.Category{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return ErrCategoryNotFound
	}
	return nil
}

func withWriteRetry(op func() error) error {
	var err error
	for attempt := 1; attempt <= maxWriteAttempts; attempt++ {
		err = op()
		if !isRetryableWriteError(err) {
			return err
		}
		time.Sleep(time.Duration(attempt) * 2 * time.Millisecond)
	}
	return err
}

func isRetryableWriteError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}
