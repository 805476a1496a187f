package docsource

import (
	"strings"
	"testing"
)

func TestConvertMarkdownUsesFirstHeading(t *testing.T) {
	doc, err := ConvertMarkdown("# My Title\n\nSome *emphasis* here.\n", "fallback")
	if err != nil {
		t.Fatalf("convert: %v", err)
	}

	if doc.Title != "My Title" {
		t.Errorf("expected heading title, got %q", doc.Title)
	}
	if strings.Contains(doc.HTML, "My Title") {
		t.Errorf("title heading must be stripped from body: %q", doc.HTML)
	}
	if !strings.Contains(doc.HTML, "<em>emphasis</em>") {
		t.Errorf("markdown not rendered: %q", doc.HTML)
	}
}

func TestConvertMarkdownFallbackTitle(t *testing.T) {
	doc, err := ConvertMarkdown("plain text only", "Imported Notes")
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if doc.Title != "Imported Notes" {
		t.Errorf("expected fallback title, got %q", doc.Title)
	}

	doc, err = ConvertMarkdown("no heading", "")
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if doc.Title != "Untitled" {
		t.Errorf("expected Untitled, got %q", doc.Title)
	}
}

func TestConvertMarkdownGFMTable(t *testing.T) {
	source := "| a | b |\n| --- | --- |\n| 1 | 2 |\n"
	doc, err := ConvertMarkdown(source, "Table")
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if !strings.Contains(doc.HTML, "<table>") {
		t.Errorf("GFM table not rendered: %q", doc.HTML)
	}
}
