package service

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/kbcore/internal/db"
)

func setupCategoryServiceTestDB(t *testing.T) (*gorm.DB, func()) {
	t.Helper()

	dsn := fmt.Sprintf("file:category-service-%d?mode=memory&cache=shared&_busy_timeout=5000", time.Now().UnixNano())
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

func TestCategoryTreeNestingAndCounts(t *testing.T) {
	gdb, cleanup := setupCategoryServiceTestDB(t)
	defer cleanup()

	svc := NewCategoryService(gdb)
	admin := seedUser(t, gdb, "admin@test.local", db.RoleAdmin)

	root, err := svc.Create(CategoryInput{Name: "Guides", SortOrder: 1})
	if err != nil {
		t.Fatalf("create root: %v", err)
	}
	child, err := svc.Create(CategoryInput{Name: "Install", ParentID: &root.ID})
	if err != nil {
		t.Fatalf("create child: %v", err)
	}

	articles := newArticleService(gdb)
	if _, err := articles.Create(ArticleInput{Title: "Setup", Status: db.StatusPublished, CategoryID: &child.ID}, admin); err != nil {
		t.Fatalf("create published article: %v", err)
	}
	if _, err := articles.Create(ArticleInput{Title: "WIP", CategoryID: &child.ID}, admin); err != nil {
		t.Fatalf("create draft article: %v", err)
	}

	tree, err := svc.Tree()
	if err != nil {
		t.Fatalf("tree: %v", err)
	}

	if len(tree) != 1 || tree[0].ID != root.ID {
		t.Fatalf("expected single root, got %+v", tree)
	}
	if len(tree[0].Children) != 1 || tree[0].Children[0].ID != child.ID {
		t.Fatalf("child not attached: %+v", tree[0].Children)
	}
	if got := tree[0].Children[0].ArticleCount; got != 1 {
		t.Errorf("count must include published articles only, got %d", got)
	}
}

func TestCategoryCreateValidation(t *testing.T) {
	gdb, cleanup := setupCategoryServiceTestDB(t)
	defer cleanup()

	svc := NewCategoryService(gdb)

	if _, err := svc.Create(CategoryInput{Name: "  "}); !errors.Is(err, ErrCategoryName) {
		t.Errorf("expected ErrCategoryName, got %v", err)
	}

	missing := uint(999)
	if _, err := svc.Create(CategoryInput{Name: "Orphan", ParentID: &missing}); !errors.Is(err, ErrCategoryParent) {
		t.Errorf("expected ErrCategoryParent, got %v", err)
	}
}

func TestCategorySlugStableAcrossRename(t *testing.T) {
	gdb, cleanup := setupCategoryServiceTestDB(t)
	defer cleanup()

	svc := NewCategoryService(gdb)

	category, err := svc.Create(CategoryInput{Name: "Old Name"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	name := "New Name"
	renamed, err := svc.Update(category.ID, CategoryPatch{Name: &name})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	if renamed.Name != "New Name" {
		t.Errorf("name not applied: %q", renamed.Name)
	}
	if renamed.Slug != category.Slug {
		t.Errorf("slug must survive renames: %q -> %q", category.Slug, renamed.Slug)
	}
}

func TestCategoryUpdateRejectsSelfParent(t *testing.T) {
	gdb, cleanup := setupCategoryServiceTestDB(t)
	defer cleanup()

	svc := NewCategoryService(gdb)

	category, err := svc.Create(CategoryInput{Name: "Loop"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := svc.Update(category.ID, CategoryPatch{ParentID: &category.ID}); !errors.Is(err, ErrCategoryParent) {
		t.Fatalf("expected ErrCategoryParent, got %v", err)
	}
}

func TestCategoryDeleteOrphansInsteadOfCascading(t *testing.T) {
	gdb, cleanup := setupCategoryServiceTestDB(t)
	defer cleanup()

	svc := NewCategoryService(gdb)
	admin := seedUser(t, gdb, "admin@test.local", db.RoleAdmin)

	parent, err := svc.Create(CategoryInput{Name: "Parent"})
	if err != nil {
		t.Fatalf("create parent: %v", err)
	}
	child, err := svc.Create(CategoryInput{Name: "Child", ParentID: &parent.ID})
	if err != nil {
		t.Fatalf("create child: %v", err)
	}

	articles := newArticleService(gdb)
	article, err := articles.Create(ArticleInput{Title: "Filed", CategoryID: &parent.ID}, admin)
	if err != nil {
		t.Fatalf("create article: %v", err)
	}

	if err := svc.Delete(parent.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	var orphan db.Article
	if err := gdb.First(&orphan, article.ID).Error; err != nil {
		t.Fatalf("article must survive category delete: %v", err)
	}
	if orphan.CategoryID != nil {
		t.Errorf("article category must be cleared, got %v", *orphan.CategoryID)
	}

	var promoted db.Category
	if err := gdb.First(&promoted, child.ID).Error; err != nil {
		t.Fatalf("child must survive: %v", err)
	}
	if promoted.ParentID != nil {
		t.Errorf("child must be promoted to root, got parent %v", *promoted.ParentID)
	}
}
