package docsource

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

var markdownConverter = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithRendererOptions(html.WithUnsafe()),
)

// ConvertMarkdown 将 Markdown 渲染为 HTML。标题优先取第一行一级标题，
// 否则退回给定的默认标题。输出未净化，由上层统一处理。
func ConvertMarkdown(source, fallbackTitle string) (*Document, error) {
	title := strings.TrimSpace(fallbackTitle)
	body := source

	lines := strings.SplitN(strings.TrimLeft(source, "\n\r \t"), "\n", 2)
	if len(lines) > 0 && strings.HasPrefix(lines[0], "# ") {
		title = strings.TrimSpace(strings.TrimPrefix(lines[0], "# "))
		if len(lines) > 1 {
			body = lines[1]
		} else {
			body = ""
		}
	}
	if title == "" {
		title = "Untitled"
	}

	var buf bytes.Buffer
	if err := markdownConverter.Convert([]byte(body), &buf); err != nil {
		return nil, fmt.Errorf("渲染 Markdown 失败: %w", err)
	}
	return &Document{Title: title, HTML: buf.String()}, nil
}
