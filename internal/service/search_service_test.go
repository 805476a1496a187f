package service

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/kbcore/internal/db"
)

func setupSearchServiceTestDB(t *testing.T) (*gorm.DB, func()) {
	t.Helper()

	dsn := fmt.Sprintf("file:search-service-%d?mode=memory&cache=shared&_busy_timeout=5000", time.Now().UnixNano())
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}

	if err := db.Migrate(gdb); err != nil {
		t.Fatalf("failed to migrate test db: %v", err)
	}

	return gdb, func() {
		sqlDB, err := gdb.DB()
		if err == nil {
			_ = sqlDB.Close()
		}
	}
}

func TestBuildMatchQuery(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"password reset", `"password"* AND "reset"*`},
		{"", ""},
		{"    ", ""},
		{`test & (bad`, `"test"* AND "bad"*`},
		{`"quoted" | or * wild`, `"quoted"* AND "or"* AND "wild"*`},
		{"café", `"café"*`},
	}

	for _, tc := range cases {
		if got := BuildMatchQuery(tc.in); got != tc.want {
			t.Errorf("BuildMatchQuery(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestBuildMatchQueryCapsTokens(t *testing.T) {
	long := strings.Repeat("aa ", 64)
	got := BuildMatchQuery(long)
	if n := strings.Count(got, " AND ") + 1; n > maxSearchQueryTokens {
		t.Fatalf("token cap not applied, got %d terms", n)
	}
}

func TestSearchReturnsOnlyPublished(t *testing.T) {
	gdb, cleanup := setupSearchServiceTestDB(t)
	defer cleanup()

	articles := newArticleService(gdb)
	admin := seedUser(t, gdb, "admin@test.local", db.RoleAdmin)

	if _, err := articles.Create(ArticleInput{
		Title:   "Security checklist",
		Content: "<p>Rotate credentials regularly.</p>",
		Status:  db.StatusPublished,
	}, admin); err != nil {
		t.Fatalf("create published: %v", err)
	}
	if _, err := articles.Create(ArticleInput{
		Title:   "Security draft",
		Content: "<p>Not public yet.</p>",
	}, admin); err != nil {
		t.Fatalf("create draft: %v", err)
	}

	search := NewSearchService(gdb)
	result, err := search.Search("security", 1, 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}

	if result.Total != 1 || len(result.Hits) != 1 {
		t.Fatalf("expected only the published article, got total=%d hits=%d", result.Total, len(result.Hits))
	}
	if result.Hits[0].Title != "Security checklist" {
		t.Errorf("unexpected hit %q", result.Hits[0].Title)
	}
}

func TestSearchPrefixMatches(t *testing.T) {
	gdb, cleanup := setupSearchServiceTestDB(t)
	defer cleanup()

	articles := newArticleService(gdb)
	admin := seedUser(t, gdb, "admin@test.local", db.RoleAdmin)

	if _, err := articles.Create(ArticleInput{
		Title:   "Security basics",
		Content: "<p>Start with strong passwords.</p>",
		Status:  db.StatusPublished,
	}, admin); err != nil {
		t.Fatalf("create: %v", err)
	}

	search := NewSearchService(gdb)
	result, err := search.Search("secur", 1, 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if result.Total != 1 {
		t.Fatalf("prefix query must match, got total=%d", result.Total)
	}
	if !strings.Contains(result.Hits[0].Headline, "<mark>") {
		t.Errorf("headline missing highlight: %q", result.Hits[0].Headline)
	}
}

func TestSearchHeadlineHighlightsTitleOnlyMatch(t *testing.T) {
	gdb, cleanup := setupSearchServiceTestDB(t)
	defer cleanup()

	articles := newArticleService(gdb)
	admin := seedUser(t, gdb, "admin@test.local", db.RoleAdmin)

	// 命中词只出现在标题，正文完全不含该词。
	if _, err := articles.Create(ArticleInput{
		Title:   "Kubernetes deployment guide",
		Content: "<p>Roll out containers with confidence.</p>",
		Status:  db.StatusPublished,
	}, admin); err != nil {
		t.Fatalf("create: %v", err)
	}

	search := NewSearchService(gdb)
	result, err := search.Search("kubernetes", 1, 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if result.Total != 1 {
		t.Fatalf("title-only query must match, got total=%d", result.Total)
	}
	if !strings.Contains(result.Hits[0].Headline, "<mark>Kubernetes</mark>") {
		t.Errorf("headline must highlight the title term: %q", result.Hits[0].Headline)
	}
}

func TestSearchEmptyQueryShortCircuits(t *testing.T) {
	gdb, cleanup := setupSearchServiceTestDB(t)
	defer cleanup()

	search := NewSearchService(gdb)
	for _, q := range []string{"", "   ", `&|!()`} {
		result, err := search.Search(q, 1, 10)
		if err != nil {
			t.Fatalf("search %q: %v", q, err)
		}
		if result.Total != 0 || len(result.Hits) != 0 {
			t.Errorf("expected empty result for %q, got %+v", q, result)
		}
	}
}

func TestSearchPagination(t *testing.T) {
	gdb, cleanup := setupSearchServiceTestDB(t)
	defer cleanup()

	articles := newArticleService(gdb)
	admin := seedUser(t, gdb, "admin@test.local", db.RoleAdmin)

	for i := 0; i < 5; i++ {
		if _, err := articles.Create(ArticleInput{
			Title:   fmt.Sprintf("Troubleshooting part %d", i),
			Content: "<p>Troubleshooting steps.</p>",
			Status:  db.StatusPublished,
		}, admin); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}

	search := NewSearchService(gdb)
	page2, err := search.Search("troubleshooting", 2, 2)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if page2.Total != 5 || len(page2.Hits) != 2 {
		t.Fatalf("unexpected page: total=%d hits=%d", page2.Total, len(page2.Hits))
	}
}

func TestSearchIndexFollowsUpdates(t *testing.T) {
	gdb, cleanup := setupSearchServiceTestDB(t)
	defer cleanup()

	articles := newArticleService(gdb)
	admin := seedUser(t, gdb, "admin@test.local", db.RoleAdmin)

	article, err := articles.Create(ArticleInput{
		Title:   "Billing overview",
		Content: "<p>Invoices explained.</p>",
		Status:  db.StatusPublished,
	}, admin)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	content := "<p>Refunds explained.</p>"
	if _, err := articles.Update(article.ID, ArticlePatch{Content: &content}, admin); err != nil {
		t.Fatalf("update: %v", err)
	}

	search := NewSearchService(gdb)
	if result, err := search.Search("refunds", 1, 10); err != nil || result.Total != 1 {
		t.Fatalf("new content must be findable: total=%d err=%v", result.Total, err)
	}
	if result, err := search.Search("invoices", 1, 10); err != nil || result.Total != 0 {
		t.Fatalf("stale content must be gone: total=%d err=%v", result.Total, err)
	}
}
