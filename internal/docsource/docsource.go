// Package docsource 抽象外部文档来源：云端文档服务、.docx 文件与 Markdown。
// 所有来源统一产出 {标题, HTML 正文}，净化与入库由上层负责。
package docsource

import (
	"context"
	"errors"
	"regexp"
)

var (
	// ErrNotConfigured 表示尚未配置文档服务凭据。
	ErrNotConfigured = errors.New("document source is not configured")
	// ErrDocumentNotFound 表示文档不存在或未对服务账号共享。
	ErrDocumentNotFound = errors.New("document not found or not shared")
	// ErrInvalidSourceURL 表示无法从链接中解析出文档标识。
	ErrInvalidSourceURL = errors.New("invalid document source url")
)

// Document 是一份抓取完成的外部文档。
type Document struct {
	ID    string
	Title string
	HTML  string
}

// FolderDocument 是文件夹清单里的一个候选文档。
type FolderDocument struct {
	ID         string
	Name       string
	FolderPath []string
}

// Folder 是一次文件夹清点的结果。
type Folder struct {
	ID        string
	Name      string
	Documents []FolderDocument
}

// Source 是核心依赖的外部文档来源契约。
type Source interface {
	Fetch(ctx context.Context, docID string) (*Document, error)
	ListFolder(ctx context.Context, folderID string) (*Folder, error)
}

// CredentialSource 提供服务账号凭据 JSON，空串表示未配置。
type CredentialSource interface {
	Credential() (string, error)
}

var (
	docIDPattern    = regexp.MustCompile(`/document/d/([a-zA-Z0-9_-]+)`)
	folderIDPattern = regexp.MustCompile(`/folders/([a-zA-Z0-9_-]+)`)
)

// ExtractDocID 从文档链接中解析文档标识。
func ExtractDocID(url string) (string, error) {
	if match := docIDPattern.FindStringSubmatch(url); match != nil {
		return match[1], nil
	}
	return "", ErrInvalidSourceURL
}

// ExtractFolderID 从文件夹链接中解析文件夹标识。
func ExtractFolderID(url string) (string, error) {
	if match := folderIDPattern.FindStringSubmatch(url); match != nil {
		return match[1], nil
	}
	return "", ErrInvalidSourceURL
}
