package docsource

import (
	"archive/zip"
	"bytes"
	"encoding/base64"
	"encoding/xml"
	"errors"
	"fmt"
	"html"
	"io"
	"mime"
	"path"
	"strings"
)

// ConvertDocx 解开 .docx 包（OOXML），把 WordprocessingML 正文转换为 HTML。
// 覆盖段落、标题样式、粗斜体下划线、列表、表格与内嵌图片；
// 图片以 data URI 形式内联。标题优先取首个一级标题。
func ConvertDocx(data []byte, fallbackTitle string) (*Document, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("读取 docx 包失败: %w", err)
	}

	docXML, err := readZipFile(reader, "word/document.xml")
	if err != nil {
		return nil, fmt.Errorf("docx 缺少正文: %w", err)
	}

	images, err := loadDocxImages(reader)
	if err != nil {
		return nil, err
	}

	conv := &docxConverter{images: images}
	if err := conv.run(docXML); err != nil {
		return nil, err
	}

	title := strings.TrimSpace(conv.title)
	if title == "" {
		title = strings.TrimSpace(fallbackTitle)
	}
	if title == "" {
		title = "Untitled"
	}
	return &Document{Title: title, HTML: conv.out.String()}, nil
}

func readZipFile(reader *zip.Reader, name string) ([]byte, error) {
	for _, file := range reader.File {
		if file.Name != name {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}
	return nil, errors.New(name + " not found")
}

// loadDocxImages 读取关系表，把每个图片关系 ID 映射成 data URI。
func loadDocxImages(reader *zip.Reader) (map[string]string, error) {
	images := map[string]string{}

	relsXML, err := readZipFile(reader, "word/_rels/document.xml.rels")
	if err != nil {
		return images, nil
	}

	var rels struct {
		Relationships []struct {
			ID     string `xml:"Id,attr"`
			Type   string `xml:"Type,attr"`
			Target string `xml:"Target,attr"`
		} `xml:"Relationship"`
	}
	if err := xml.Unmarshal(relsXML, &rels); err != nil {
		return nil, fmt.Errorf("解析 docx 关系表失败: %w", err)
	}

	for _, rel := range rels.Relationships {
		if !strings.HasSuffix(rel.Type, "/image") {
			continue
		}
		target := path.Clean("word/" + strings.TrimPrefix(rel.Target, "/"))
		data, err := readZipFile(reader, target)
		if err != nil {
			continue
		}
		mimeType := mime.TypeByExtension(path.Ext(target))
		if mimeType == "" {
			mimeType = "image/png"
		}
		images[rel.ID] = "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
	}
	return images, nil
}

type docxConverter struct {
	images map[string]string
	out    strings.Builder
	title  string

	listOpen bool
}

type docxRun struct {
	bold      bool
	italic    bool
	underline bool
	text      strings.Builder
	imageRef  string
}

func (c *docxConverter) run(docXML []byte) error {
	decoder := xml.NewDecoder(bytes.NewReader(docXML))
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("解析 docx 正文失败: %w", err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch start.Name.Local {
		case "p":
			if err := c.paragraph(decoder, &start); err != nil {
				return err
			}
		case "tbl":
			if err := c.table(decoder, &start); err != nil {
				return err
			}
		}
	}
	c.closeList()
	return nil
}

// paragraph 消费一个 w:p 元素并输出对应的 HTML 块。
func (c *docxConverter) paragraph(decoder *xml.Decoder, start *xml.StartElement) error {
	var (
		style  string
		isList bool
		runs   []docxRun
		cur    *docxRun
	)

	depth := 1
	for depth > 0 {
		tok, err := decoder.Token()
		if err != nil {
			return fmt.Errorf("解析 docx 段落失败: %w", err)
		}
		switch el := tok.(type) {
		case xml.StartElement:
			depth++
			switch el.Name.Local {
			case "pStyle":
				style = attrValue(el, "val")
			case "numPr":
				isList = true
			case "r":
				runs = append(runs, docxRun{})
				cur = &runs[len(runs)-1]
			case "b":
				if cur != nil && attrValue(el, "val") != "false" {
					cur.bold = true
				}
			case "i":
				if cur != nil && attrValue(el, "val") != "false" {
					cur.italic = true
				}
			case "u":
				if cur != nil && attrValue(el, "val") != "none" {
					cur.underline = true
				}
			case "t":
				text, err := collectText(decoder)
				if err != nil {
					return err
				}
				depth--
				if cur != nil {
					cur.text.WriteString(text)
				}
			case "br":
				if cur != nil {
					cur.text.WriteString("\n")
				}
			case "blip":
				if cur != nil {
					cur.imageRef = attrValue(el, "embed")
				}
			}
		case xml.EndElement:
			depth--
		}
	}

	body := c.renderRuns(runs)
	tag := headingTag(style)

	switch {
	case tag != "":
		c.closeList()
		if c.title == "" && tag == "h1" {
			c.title = plainRunText(runs)
			return nil
		}
		c.out.WriteString("<" + tag + ">" + body + "</" + tag + ">\n")
	case isList:
		if !c.listOpen {
			c.out.WriteString("<ul>\n")
			c.listOpen = true
		}
		c.out.WriteString("<li>" + body + "</li>\n")
	default:
		c.closeList()
		if strings.TrimSpace(body) == "" {
			return nil
		}
		c.out.WriteString("<p>" + body + "</p>\n")
	}
	return nil
}

func (c *docxConverter) table(decoder *xml.Decoder, start *xml.StartElement) error {
	c.closeList()
	c.out.WriteString("<table>\n")

	depth := 1
	for depth > 0 {
		tok, err := decoder.Token()
		if err != nil {
			return fmt.Errorf("解析 docx 表格失败: %w", err)
		}
		switch el := tok.(type) {
		case xml.StartElement:
			depth++
			switch el.Name.Local {
			case "tr":
				c.out.WriteString("<tr>")
			case "tc":
				c.out.WriteString("<td>")
			case "t":
				text, err := collectText(decoder)
				if err != nil {
					return err
				}
				depth--
				c.out.WriteString(html.EscapeString(text))
			}
		case xml.EndElement:
			depth--
			switch el.Name.Local {
			case "tr":
				c.out.WriteString("</tr>\n")
			case "tc":
				c.out.WriteString("</td>")
			}
		}
	}
	c.out.WriteString("</table>\n")
	return nil
}

func (c *docxConverter) renderRuns(runs []docxRun) string {
	var buf strings.Builder
	for _, run := range runs {
		if run.imageRef != "" {
			if src, ok := c.images[run.imageRef]; ok {
				buf.WriteString(`<img src="` + src + `" alt="">`)
			}
			continue
		}
		text := html.EscapeString(run.text.String())
		text = strings.ReplaceAll(text, "\n", "<br>")
		if text == "" {
			continue
		}
		if run.bold {
			text = "<strong>" + text + "</strong>"
		}
		if run.italic {
			text = "<em>" + text + "</em>"
		}
		if run.underline {
			text = "<u>" + text + "</u>"
		}
		buf.WriteString(text)
	}
	return buf.String()
}

func (c *docxConverter) closeList() {
	if c.listOpen {
		c.out.WriteString("</ul>\n")
		c.listOpen = false
	}
}

func collectText(decoder *xml.Decoder) (string, error) {
	var buf strings.Builder
	for {
		tok, err := decoder.Token()
		if err != nil {
			return "", fmt.Errorf("解析 docx 文本失败: %w", err)
		}
		switch el := tok.(type) {
		case xml.CharData:
			buf.Write(el)
		case xml.EndElement:
			return buf.String(), nil
		}
	}
}

func plainRunText(runs []docxRun) string {
	var buf strings.Builder
	for _, run := range runs {
		buf.WriteString(run.text.String())
	}
	return strings.TrimSpace(buf.String())
}

func headingTag(style string) string {
	switch style {
	case "Heading1", "Title":
		return "h1"
	case "Heading2":
		return "h2"
	case "Heading3":
		return "h3"
	case "Heading4":
		return "h4"
	case "Heading5":
		return "h5"
	case "Heading6":
		return "h6"
	}
	return ""
}

func attrValue(el xml.StartElement, name string) string {
	for _, attr := range el.Attr {
		if attr.Name.Local == name {
			return attr.Value
		}
	}
	return ""
}
