package service

import (
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var (
	contentPolicy = buildContentPolicy()
	strictPolicy  = bluemonday.StrictPolicy()

	anchorTagPattern = regexp.MustCompile(`<a(\s[^>]*)?>`)
)

// buildContentPolicy 构建富文本内容的白名单策略。
// target 与 rel 不在白名单内，统一由 SanitizeHTML 强制覆盖。
func buildContentPolicy() *bluemonday.Policy {
	policy := bluemonday.NewPolicy()

	policy.AllowElements(
		"h1", "h2", "h3", "h4", "h5", "h6",
		"p", "br", "hr",
		"strong", "em", "u", "s", "del", "ins",
		"ul", "ol", "li",
		"blockquote", "pre", "code",
		"a", "img",
		"table", "thead", "tbody", "tr", "th", "td",
		"div", "span",
		"mark",
	)

	// 无属性的元素也要保留，否则裸 <a>、<td> 会被整体剥除。
	policy.AllowNoAttrs().OnElements(
		"h1", "h2", "h3", "h4", "h5", "h6",
		"p", "br", "hr",
		"strong", "em", "u", "s", "del", "ins",
		"ul", "ol", "li",
		"blockquote", "pre", "code",
		"a",
		"table", "thead", "tbody", "tr", "th", "td",
		"div", "span",
		"mark",
	)

	policy.AllowAttrs("class", "id").Globally()
	policy.AllowAttrs("href", "title").OnElements("a")
	policy.AllowAttrs("src", "alt", "title", "width", "height").OnElements("img")
	policy.AllowAttrs("colspan", "rowspan").OnElements("td", "th")

	// data 方案用于文档导入产生的内联 base64 图片。
	policy.AllowURLSchemes("http", "https", "data")

	return policy
}

// SanitizeHTML 对富文本做白名单净化。纯函数，必须且仅在持久化前调用一次。
// 所有锚标签强制 target="_blank" rel="noopener noreferrer"。
func SanitizeHTML(input string) string {
	cleaned := contentPolicy.Sanitize(input)
	return anchorTagPattern.ReplaceAllString(cleaned, `<a$1 target="_blank" rel="noopener noreferrer">`)
}

// StripHTML 提取纯文本，用于检索索引与摘要生成。
func StripHTML(input string) string {
	text := strictPolicy.Sanitize(input)
	text = html.UnescapeString(text)
	return strings.Join(strings.Fields(text), " ")
}

// excerptFromHTML 从正文截取给定字符数内的纯文本摘要。
func excerptFromHTML(input string, max int) string {
	text := StripHTML(input)
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return strings.TrimSpace(string(runes[:max]))
}
