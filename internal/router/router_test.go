package router

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/kbcore/internal/db"
	"github.com/kbcore/internal/handler"
)

func setupRouterTest(t *testing.T) (*gin.Engine, *gorm.DB, func()) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:router-%d?mode=memory&cache=shared&_busy_timeout=5000", time.Now().UnixNano())
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	if err := db.Migrate(gdb); err != nil {
		t.Fatalf("failed to migrate test db: %v", err)
	}

	api := handler.NewAPI(gdb, zerolog.Nop())
	r := SetupRouter(api, "test-secret")

	return r, gdb, func() {
		sqlDB, err := gdb.DB()
		if err == nil {
			_ = sqlDB.Close()
		}
	}
}

func seedRouterUser(t *testing.T, gdb *gorm.DB, email, password, role string) db.User {
	t.Helper()
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	user := db.User{Email: email, Password: string(hashed), Role: role}
	if err := gdb.Create(&user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user
}

func routerLoginAs(t *testing.T, r *gin.Engine, email, password string) string {
	t.Helper()
	body := fmt.Sprintf(`{"email":%q,"password":%q}`, email, password)
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("login failed: %d %s", w.Code, w.Body.String())
	}
	cookies := w.Result().Cookies()
	if len(cookies) == 0 {
		t.Fatalf("login did not set a session cookie")
	}
	return cookies[0].Name + "=" + cookies[0].Value
}

func doJSON(r *gin.Engine, method, path, session, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if session != "" {
		req.Header.Set("Cookie", session)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestEditorCanCreateTags(t *testing.T) {
	r, gdb, cleanup := setupRouterTest(t)
	defer cleanup()

	seedRouterUser(t, gdb, "editor@test.local", "pw123456", db.RoleEditor)
	session := routerLoginAs(t, r, "editor@test.local", "pw123456")

	w := doJSON(r, http.MethodPost, "/api/tags", session, `{"name":"networking"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("editor tag create: expected 200, got %d %s", w.Code, w.Body.String())
	}

	var count int64
	if err := gdb.Model(&db.Tag{}).Where("name = ?", "networking").Count(&count).Error; err != nil {
		t.Fatalf("count tags: %v", err)
	}
	if count != 1 {
		t.Errorf("expected the tag to be persisted, got %d rows", count)
	}
}

func TestImportCloudFolderRejectsOversizedBatch(t *testing.T) {
	r, gdb, cleanup := setupRouterTest(t)
	defer cleanup()

	seedRouterUser(t, gdb, "editor@test.local", "pw123456", db.RoleEditor)
	session := routerLoginAs(t, r, "editor@test.local", "pw123456")

	items := make([]string, 51)
	for i := range items {
		items[i] = fmt.Sprintf(`{"documentId":"doc-%d"}`, i)
	}
	body := `{"documents":[` + strings.Join(items, ",") + `]}`

	w := doJSON(r, http.MethodPost, "/api/import/cloud-folder", session, body)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for oversized batch, got %d %s", w.Code, w.Body.String())
	}
}

func TestTagMutationRoles(t *testing.T) {
	r, gdb, cleanup := setupRouterTest(t)
	defer cleanup()

	seedRouterUser(t, gdb, "viewer@test.local", "pw123456", db.RoleViewer)
	seedRouterUser(t, gdb, "editor@test.local", "pw123456", db.RoleEditor)

	viewer := routerLoginAs(t, r, "viewer@test.local", "pw123456")
	if w := doJSON(r, http.MethodPost, "/api/tags", viewer, `{"name":"nope"}`); w.Code != http.StatusForbidden {
		t.Errorf("viewer tag create: expected 403, got %d", w.Code)
	}

	// 删除仍是管理操作
	editor := routerLoginAs(t, r, "editor@test.local", "pw123456")
	if w := doJSON(r, http.MethodDelete, "/api/tags/1", editor, ""); w.Code != http.StatusForbidden {
		t.Errorf("editor tag delete: expected 403, got %d", w.Code)
	}
}
