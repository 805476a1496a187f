package db

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// DB 是一个全局的数据库连接实例
var DB *gorm.DB

// Init 初始化数据库连接并执行自动迁移。
// databasePath 为空时将回退到默认值 kbcore.db。
func Init(databasePath string) error {
	path := strings.TrimSpace(databasePath)
	if path == "" {
		path = "kbcore.db"
	}

	if err := ensureParentDir(path); err != nil {
		return err
	}

	var err error
	DB, err = Open(path)
	return err
}

// Open 打开指定路径的数据库并完成迁移，便于测试注入独立实例。
func Open(path string) (*gorm.DB, error) {
	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn = fmt.Sprintf("file:%s?_busy_timeout=5000", path)
	}

	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	if err := Migrate(gdb); err != nil {
		return nil, err
	}

	return gdb, nil
}

// Migrate 为核心模型创建表并准备全文检索结构。
func Migrate(gdb *gorm.DB) error {
	if err := gdb.AutoMigrate(
		&User{},
		&Article{},
		&ArticleVersion{},
		&Category{},
		&Tag{},
		&Comment{},
		&ArticleFeedback{},
		&SiteConfig{},
	); err != nil {
		return err
	}

	// 全文检索影子表，rowid 与 articles.id 对齐。
	// 需要以 -tags sqlite_fts5 构建。
	if err := gdb.Exec(
		`CREATE VIRTUAL TABLE IF NOT EXISTS article_search USING fts5(title, body, excerpt)`,
	).Error; err != nil {
		return err
	}

	return nil
}

func ensureParentDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}

	info, err := os.Stat(dir)
	if err == nil {
		if !info.IsDir() {
			return errors.New("database path parent is not a directory")
		}
		return nil
	}

	if os.IsNotExist(err) {
		return os.MkdirAll(dir, 0o755)
	}

	return err
}
