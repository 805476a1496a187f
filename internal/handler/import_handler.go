package handler

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/kbcore/internal/docsource"
	"github.com/kbcore/internal/service"
)

// 上传 docx 的大小上限。
const maxDocxUploadBytes = 20 << 20

type importOptions struct {
	Status     string `json:"status" form:"status"`
	CategoryID *uint  `json:"categoryId" form:"categoryId"`
	TagIDs     []uint `json:"tagIds" form:"tagIds"`
}

func (o importOptions) toService() service.ImportOptions {
	return service.ImportOptions{
		Status:     o.Status,
		CategoryID: o.CategoryID,
		TagIDs:     o.TagIDs,
	}
}

// ImportDocx 上传并导入一份 .docx 文件
func (a *API) ImportDocx(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		respondError(c, http.StatusBadRequest, "缺少上传文件")
		return
	}
	defer file.Close()

	if !strings.HasSuffix(strings.ToLower(header.Filename), ".docx") {
		respondError(c, http.StatusBadRequest, "仅支持 .docx 文件")
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, maxDocxUploadBytes+1))
	if err != nil {
		respondError(c, http.StatusInternalServerError, "读取上传文件失败")
		return
	}
	if len(data) > maxDocxUploadBytes {
		respondError(c, http.StatusBadRequest, "文件超出大小限制")
		return
	}

	var opts importOptions
	_ = c.ShouldBind(&opts)

	article, err := a.imports.ImportDocx(data, header.Filename, opts.toService(), *currentUser(c))
	if err != nil {
		a.respondImportError(c, err, "导入 docx 失败")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "导入成功", "article": article})
}

type markdownImportRequest struct {
	Content string `json:"content" binding:"required"`
	Title   string `json:"title"`
	importOptions
}

// ImportMarkdown 导入一段 Markdown 文本
func (a *API) ImportMarkdown(c *gin.Context) {
	var req markdownImportRequest
	if !bindJSON(c, &req, "Markdown 内容不能为空") {
		return
	}

	article, err := a.imports.ImportMarkdown(req.Content, req.Title, req.toService(), *currentUser(c))
	if err != nil {
		a.respondImportError(c, err, "导入 Markdown 失败")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "导入成功", "article": article})
}

type cloudImportRequest struct {
	URL string `json:"url" binding:"required"`
	importOptions
}

// ImportCloudDoc 按链接导入一份云端文档
func (a *API) ImportCloudDoc(c *gin.Context) {
	var req cloudImportRequest
	if !bindJSON(c, &req, "文档链接不能为空") {
		return
	}

	article, err := a.imports.ImportCloudDoc(c.Request.Context(), req.URL, req.toService(), *currentUser(c))
	if err != nil {
		a.respondImportError(c, err, "导入云端文档失败")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "导入成功", "article": article})
}

// PreviewCloudFolder 清点云端文件夹，返回候选文档与分类建议
func (a *API) PreviewCloudFolder(c *gin.Context) {
	url := strings.TrimSpace(c.Query("url"))
	if url == "" {
		respondError(c, http.StatusBadRequest, "文件夹链接不能为空")
		return
	}

	preview, err := a.imports.PreviewFolder(c.Request.Context(), url)
	if err != nil {
		a.respondImportError(c, err, "读取文件夹失败")
		return
	}
	c.JSON(http.StatusOK, preview)
}

type folderImportRequest struct {
	Documents []service.FolderImportItem `json:"documents" binding:"required"`
	importOptions
}

// ImportCloudFolder 批量导入文件夹中选定的文档
func (a *API) ImportCloudFolder(c *gin.Context) {
	var req folderImportRequest
	if !bindJSON(c, &req, "请选择要导入的文档") {
		return
	}
	if len(req.Documents) == 0 {
		respondError(c, http.StatusBadRequest, "请选择要导入的文档")
		return
	}
	if len(req.Documents) > service.MaxFolderImportItems {
		respondError(c, http.StatusBadRequest, "单次最多导入 50 份文档")
		return
	}

	result := a.imports.ImportFolder(c.Request.Context(), req.Documents, req.toService(), *currentUser(c))
	c.JSON(http.StatusOK, result)
}

func (a *API) respondImportError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, docsource.ErrNotConfigured):
		respondError(c, http.StatusBadRequest, "尚未配置文档服务凭据")
	case errors.Is(err, docsource.ErrInvalidSourceURL):
		respondError(c, http.StatusBadRequest, "无法识别的文档链接")
	case errors.Is(err, docsource.ErrDocumentNotFound):
		respondError(c, http.StatusNotFound, "文档不存在或未对服务账号共享")
	case errors.Is(err, service.ErrTitleRequired):
		respondError(c, http.StatusBadRequest, "文档缺少标题")
	case errors.Is(err, service.ErrInvalidStatus):
		respondError(c, http.StatusBadRequest, "无效的文章状态")
	case errors.Is(err, service.ErrCategoryNotFound):
		respondError(c, http.StatusBadRequest, "分类不存在")
	default:
		a.log.Error().Err(err).Msg("文档导入失败")
		respondError(c, http.StatusInternalServerError, fallback)
	}
}
