package service

import (
	"fmt"
	"strings"
	"time"
)

// 常见拉丁附加符号的 ASCII 转写表。命中之外的非字母数字字符一律折叠为连字符。
var slugTransliterations = map[rune]string{
	'à': "a", 'á': "a", 'â': "a", 'ã': "a", 'ä': "a", 'å': "a", 'æ': "ae",
	'ç': "c",
	'è': "e", 'é': "e", 'ê': "e", 'ë': "e",
	'ì': "i", 'í': "i", 'î': "i", 'ï': "i",
	'ñ': "n",
	'ò': "o", 'ó': "o", 'ô': "o", 'õ': "o", 'ö': "o", 'ø': "o", 'œ': "oe",
	'ß': "ss",
	'ù': "u", 'ú': "u", 'û': "u", 'ü': "u",
	'ý': "y", 'ÿ': "y",
}

// Slugify 将任意文本转换为小写 URL slug：仅保留 [a-z0-9-]，
// 空白与标点折叠为单个连字符。变换是确定且幂等的。
func Slugify(text string) string {
	var b strings.Builder
	pendingHyphen := false

	for _, r := range strings.ToLower(text) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
		default:
			if mapped, ok := slugTransliterations[r]; ok {
				if pendingHyphen && b.Len() > 0 {
					b.WriteByte('-')
				}
				pendingHyphen = false
				b.WriteString(mapped)
				continue
			}
			pendingHyphen = true
		}
	}

	return b.String()
}

// slugWithSuffix 在 slug 冲突时追加毫秒时间戳后缀。
// 同一毫秒内的并发冲突由写入重试循环兜底（见 article_service 的唯一约束重试）。
func slugWithSuffix(base string) string {
	return fmt.Sprintf("%s-%d", base, time.Now().UnixMilli())
}
