package service

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/kbcore/internal/db"
	"github.com/kbcore/internal/docsource"
)

// 批量导入时摘要的截断长度（字符）。
const importExcerptRunes = 300

// ImportService 把外部文档落成知识库文章。单篇导入同步执行；
// 文件夹批量导入逐篇处理，单篇失败不拖累其余文档。
type ImportService struct {
	db       *gorm.DB
	articles *ArticleService
	cloud    docsource.Source
	log      zerolog.Logger
}

// NewImportService creates an ImportService instance.
func NewImportService(gdb *gorm.DB, articles *ArticleService, cloud docsource.Source, log zerolog.Logger) *ImportService {
	return &ImportService{db: gdb, articles: articles, cloud: cloud, log: log}
}

// ImportOptions 控制导入落地时的文章属性。
type ImportOptions struct {
	Status     string
	CategoryID *uint
	TagIDs     []uint
}

// ImportItemResult 是批量导入中单篇文档的结论。
type ImportItemResult struct {
	DocumentID string `json:"documentId,omitempty"`
	Title      string `json:"title"`
	ArticleID  uint   `json:"articleId,omitempty"`
	Slug       string `json:"slug,omitempty"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
}

// ImportBatchResult 汇总一次文件夹导入。
type ImportBatchResult struct {
	BatchID   string             `json:"batchId"`
	Total     int                `json:"total"`
	Succeeded int                `json:"succeeded"`
	Failed    int                `json:"failed"`
	Items     []ImportItemResult `json:"items"`
}

// FolderPreviewItem 是预览清单里的候选文档。
type FolderPreviewItem struct {
	DocumentID          string   `json:"documentId"`
	Name                string   `json:"name"`
	FolderPath          []string `json:"folderPath,omitempty"`
	SuggestedCategoryID *uint    `json:"suggestedCategoryId,omitempty"`
}

// FolderPreview 是文件夹导入前的清点结果。
type FolderPreview struct {
	FolderID   string              `json:"folderId"`
	FolderName string              `json:"folderName"`
	Documents  []FolderPreviewItem `json:"documents"`
}

// ImportDocx 导入一份 .docx 文件。
func (s *ImportService) ImportDocx(data []byte, filename string, opts ImportOptions, actor db.User) (*db.Article, error) {
	name := strings.TrimSuffix(filename, ".docx")
	doc, err := docsource.ConvertDocx(data, name)
	if err != nil {
		return nil, err
	}
	return s.saveDocument(doc, "Imported from docx", opts, actor)
}

// ImportMarkdown 导入一段 Markdown 文本。
func (s *ImportService) ImportMarkdown(source, fallbackTitle string, opts ImportOptions, actor db.User) (*db.Article, error) {
	doc, err := docsource.ConvertMarkdown(source, fallbackTitle)
	if err != nil {
		return nil, err
	}
	return s.saveDocument(doc, "Imported from markdown", opts, actor)
}

// ImportCloudDoc 按链接抓取并导入一份云端文档。
func (s *ImportService) ImportCloudDoc(ctx context.Context, sourceURL string, opts ImportOptions, actor db.User) (*db.Article, error) {
	docID, err := docsource.ExtractDocID(sourceURL)
	if err != nil {
		return nil, err
	}
	doc, err := s.cloud.Fetch(ctx, docID)
	if err != nil {
		return nil, err
	}
	return s.saveDocument(doc, "Imported from cloud document", opts, actor)
}

// PreviewFolder 清点云端文件夹并为每份文档按路径猜测分类。
// 只用第一层子文件夹名匹配分类，匹配不区分大小写。
func (s *ImportService) PreviewFolder(ctx context.Context, sourceURL string) (*FolderPreview, error) {
	folderID, err := docsource.ExtractFolderID(sourceURL)
	if err != nil {
		return nil, err
	}
	folder, err := s.cloud.ListFolder(ctx, folderID)
	if err != nil {
		return nil, err
	}

	var categories []db.Category
	if err := s.db.Find(&categories).Error; err != nil {
		return nil, err
	}
	byName := make(map[string]uint, len(categories))
	for _, category := range categories {
		byName[strings.ToLower(category.Name)] = category.ID
	}

	preview := &FolderPreview{FolderID: folder.ID, FolderName: folder.Name}
	for _, doc := range folder.Documents {
		item := FolderPreviewItem{DocumentID: doc.ID, Name: doc.Name, FolderPath: doc.FolderPath}
		if len(doc.FolderPath) > 0 {
			if id, ok := byName[strings.ToLower(doc.FolderPath[0])]; ok {
				item.SuggestedCategoryID = &id
			}
		}
		preview.Documents = append(preview.Documents, item)
	}
	return preview, nil
}

// 一次文件夹导入最多接受的文档数。
const MaxFolderImportItems = 50

// FolderImportItem 指定批量导入中一份文档的落地参数。
// Title、Status、CategoryID 为空时沿用文档标题与批量默认值。
type FolderImportItem struct {
	DocumentID string `json:"documentId" binding:"required"`
	Title      string `json:"title"`
	Status     string `json:"status"`
	CategoryID *uint  `json:"categoryId"`
}

// ImportFolder 逐篇导入文件夹中选定的文档。任何一篇失败都只记录在
// 对应条目上，汇总计数反映全貌。
func (s *ImportService) ImportFolder(ctx context.Context, items []FolderImportItem, opts ImportOptions, actor db.User) *ImportBatchResult {
	result := &ImportBatchResult{
		BatchID: uuid.NewString(),
		Total:   len(items),
	}

	for _, item := range items {
		entry := ImportItemResult{DocumentID: item.DocumentID}

		doc, err := s.cloud.Fetch(ctx, item.DocumentID)
		if err != nil {
			entry.Status = "failed"
			entry.Error = err.Error()
			result.Failed++
			result.Items = append(result.Items, entry)
			s.log.Warn().Str("batch", result.BatchID).Str("document", item.DocumentID).Err(err).Msg("文档抓取失败")
			continue
		}
		if item.Title != "" {
			doc.Title = item.Title
		}
		entry.Title = doc.Title

		itemOpts := opts
		if item.Status != "" {
			itemOpts.Status = item.Status
		}
		if item.CategoryID != nil {
			itemOpts.CategoryID = item.CategoryID
		}

		article, err := s.saveDocument(doc, "Imported from folder", itemOpts, actor)
		if err != nil {
			entry.Status = "failed"
			entry.Error = err.Error()
			result.Failed++
		} else {
			entry.Status = "imported"
			entry.ArticleID = article.ID
			entry.Slug = article.Slug
			result.Succeeded++
		}
		result.Items = append(result.Items, entry)
	}

	s.log.Info().Str("batch", result.BatchID).Int("total", result.Total).
		Int("succeeded", result.Succeeded).Int("failed", result.Failed).Msg("文件夹导入完成")
	return result
}

// saveDocument 统一落库入口：净化与版本快照复用文章服务的创建流程。
func (s *ImportService) saveDocument(doc *docsource.Document, note string, opts ImportOptions, actor db.User) (*db.Article, error) {
	status := opts.Status
	if status == "" {
		status = db.StatusDraft
	}

	return s.articles.Create(ArticleInput{
		Title:      doc.Title,
		Content:    doc.HTML,
		Excerpt:    truncateRunes(StripHTML(doc.HTML), importExcerptRunes),
		Status:     status,
		CategoryID: opts.CategoryID,
		TagIDs:     opts.TagIDs,
		ChangeNote: note,
	}, actor)
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return strings.TrimSpace(string(runes[:limit])) + "..."
}
