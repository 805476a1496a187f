package service

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/kbcore/internal/db"
	"gorm.io/gorm"
)

const (
	// 防御性上限：原始查询截断到 256 字节、32 个词元。
	maxSearchQueryBytes  = 256
	maxSearchQueryTokens = 32
	// snippet 的最大词数，对应原型里 20–50 词的 headline 约束。
	headlineMaxTokens = 40
)

// 对底层查询语法有意义的字符，构造 MATCH 前全部剥除。
var searchStripPattern = regexp.MustCompile(`[&|!():*\\'"<>@]`)

// SearchService 维护文章的全文检索影子表并回答排序分页查询。
// 影子表 article_search 的 rowid 与 articles.id 对齐，
// 在每次标题或正文变更的同一事务内重写。
type SearchService struct {
	db *gorm.DB
}

// NewSearchService creates a SearchService instance.
func NewSearchService(gdb *gorm.DB) *SearchService {
	return &SearchService{db: gdb}
}

// SearchHit 是一条命中结果，Headline 含 <mark> 高亮与 " ... " 片段分隔。
type SearchHit struct {
	ID          uint       `json:"id"`
	Title       string     `json:"title"`
	Slug        string     `json:"slug"`
	Excerpt     string     `json:"excerpt"`
	PublishedAt *time.Time `json:"publishedAt"`
	Rank        float64    `json:"rank"`
	Headline    string     `json:"headline"`
	AuthorName  string     `json:"authorName"`
}

// SearchResult aggregates one page of hits plus the total match count.
type SearchResult struct {
	Hits    []SearchHit `json:"results"`
	Total   int64       `json:"total"`
	Page    int         `json:"page"`
	PerPage int         `json:"perPage"`
}

// BuildMatchQuery 将原始输入转换为 FTS5 MATCH 表达式：
// 剥除语法字符、按空白分词、每个词元加前缀通配并以 AND 连接。
// 没有剩余词元时返回空串。
func BuildMatchQuery(raw string) string {
	if len(raw) > maxSearchQueryBytes {
		raw = strings.ToValidUTF8(raw[:maxSearchQueryBytes], "")
	}

	cleaned := searchStripPattern.ReplaceAllString(raw, " ")
	tokens := strings.Fields(cleaned)
	if len(tokens) == 0 {
		return ""
	}
	if len(tokens) > maxSearchQueryTokens {
		tokens = tokens[:maxSearchQueryTokens]
	}

	terms := make([]string, 0, len(tokens))
	for _, token := range tokens {
		terms = append(terms, fmt.Sprintf(`"%s"*`, token))
	}
	return strings.Join(terms, " AND ")
}

// Search 对已发布文章执行排序分页的全文检索。
// 查询折叠为空时直接返回空结果，不触达索引。
func (s *SearchService) Search(rawQuery string, page, perPage int) (*SearchResult, error) {
	if page <= 0 {
		page = 1
	}
	if perPage <= 0 {
		perPage = 10
	}

	result := &SearchResult{Hits: []SearchHit{}, Page: page, PerPage: perPage}

	match := BuildMatchQuery(rawQuery)
	if match == "" {
		return result, nil
	}

	if err := s.db.Raw(`
		SELECT COUNT(*)
		  FROM article_search
		  JOIN articles a ON a.id = article_search.rowid AND a.deleted_at IS NULL
		 WHERE article_search MATCH ? AND a.status = ?`,
		match, db.StatusPublished,
	).Scan(&result.Total).Error; err != nil {
		return nil, err
	}

	if result.Total == 0 {
		return result, nil
	}

	offset := (page - 1) * perPage

	// bm25 返回值越小相关度越高，故按 rank 升序。
	if err := s.db.Raw(fmt.Sprintf(`
		SELECT a.id, a.title, a.slug, a.excerpt, a.published_at,
		       bm25(article_search) AS rank,
		       snippet(article_search, -1, '<mark>', '</mark>', ' ... ', %d) AS headline,
		       u.name AS author_name
		  FROM article_search
		  JOIN articles a ON a.id = article_search.rowid AND a.deleted_at IS NULL
		  JOIN users u ON u.id = a.user_id
		 WHERE article_search MATCH ? AND a.status = ?
		 ORDER BY rank, a.id
		 LIMIT ? OFFSET ?`, headlineMaxTokens),
		match, db.StatusPublished, perPage, offset,
	).Scan(&result.Hits).Error; err != nil {
		return nil, err
	}

	return result, nil
}

// Index 重写一篇文章的检索行，正文以纯文本入索引。
// 调用方负责将其纳入与文章写入相同的事务。
func (s *SearchService) Index(tx *gorm.DB, article *db.Article) error {
	if err := s.Remove(tx, article.ID); err != nil {
		return err
	}
	return tx.Exec(
		`INSERT INTO article_search(rowid, title, body, excerpt) VALUES (?, ?, ?, ?)`,
		article.ID, article.Title, StripHTML(article.Content), article.Excerpt,
	).Error
}

// Remove 删除一篇文章的检索行。
func (s *SearchService) Remove(tx *gorm.DB, articleID uint) error {
	return tx.Exec(`DELETE FROM article_search WHERE rowid = ?`, articleID).Error
}
