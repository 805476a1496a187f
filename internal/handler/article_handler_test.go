package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/kbcore/internal/db"
	"github.com/kbcore/internal/service"
)

func serviceArticleInput(title, status string) service.ArticleInput {
	return service.ArticleInput{Title: title, Status: status}
}

func setupHandlerTest(t *testing.T) (*gin.Engine, *API, *gorm.DB, func()) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:handler-%d?mode=memory&cache=shared&_busy_timeout=5000", time.Now().UnixNano())
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	if err := db.Migrate(gdb); err != nil {
		t.Fatalf("failed to migrate test db: %v", err)
	}

	api := NewAPI(gdb, zerolog.Nop())

	r := gin.New()
	r.Use(sessions.Sessions("test_session", cookie.NewStore([]byte("test-secret"))))
	r.Use(api.LoadUser())

	r.POST("/api/auth/login", api.Login)
	r.GET("/api/auth/me", api.Me)
	r.GET("/api/articles", api.GetArticles)
	r.GET("/api/articles/:id", api.GetArticle)

	editor := r.Group("/api")
	editor.Use(AuthRequired(), RoleRequired(db.RoleEditor, db.RoleAdmin))
	editor.POST("/articles", api.CreateArticle)

	return r, api, gdb, func() {
		sqlDB, err := gdb.DB()
		if err == nil {
			_ = sqlDB.Close()
		}
	}
}

func seedHandlerUser(t *testing.T, gdb *gorm.DB, email, password, role string) db.User {
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

func loginAs(t *testing.T, r *gin.Engine, email, password string) string {
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

func TestLoginAndMe(t *testing.T) {
	r, _, gdb, cleanup := setupHandlerTest(t)
	defer cleanup()

	seedHandlerUser(t, gdb, "editor@test.local", "pw123456", db.RoleEditor)
	session := loginAs(t, r, "editor@test.local", "pw123456")

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.Header.Set("Cookie", session)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("me: %d %s", w.Code, w.Body.String())
	}
	var resp struct {
		User struct {
			Email string `json:"email"`
			Role  string `json:"role"`
		} `json:"user"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.User.Email != "editor@test.local" || resp.User.Role != db.RoleEditor {
		t.Errorf("unexpected user payload: %+v", resp.User)
	}
}

func TestLoginRejectsBadPassword(t *testing.T) {
	r, _, gdb, cleanup := setupHandlerTest(t)
	defer cleanup()

	seedHandlerUser(t, gdb, "user@test.local", "right", db.RoleViewer)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login",
		strings.NewReader(`{"email":"user@test.local","password":"wrong"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestCreateArticleRequiresPrivilege(t *testing.T) {
	r, _, gdb, cleanup := setupHandlerTest(t)
	defer cleanup()

	payload := `{"title":"New Article"}`

	// 未登录
	req := httptest.NewRequest(http.MethodPost, "/api/articles", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous: expected 401, got %d", w.Code)
	}

	// viewer 登录
	seedHandlerUser(t, gdb, "viewer@test.local", "pw123456", db.RoleViewer)
	session := loginAs(t, r, "viewer@test.local", "pw123456")
	req = httptest.NewRequest(http.MethodPost, "/api/articles", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Cookie", session)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("viewer: expected 403, got %d", w.Code)
	}

	// editor 登录
	seedHandlerUser(t, gdb, "editor@test.local", "pw123456", db.RoleEditor)
	session = loginAs(t, r, "editor@test.local", "pw123456")
	req = httptest.NewRequest(http.MethodPost, "/api/articles", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Cookie", session)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("editor: expected 200, got %d %s", w.Code, w.Body.String())
	}
}

func TestGetArticleByIDAndSlug(t *testing.T) {
	r, api, gdb, cleanup := setupHandlerTest(t)
	defer cleanup()

	admin := seedHandlerUser(t, gdb, "admin@test.local", "pw123456", db.RoleAdmin)
	article, err := api.articles.Create(serviceArticleInput("Published Piece", db.StatusPublished), admin)
	if err != nil {
		t.Fatalf("seed article: %v", err)
	}
	draft, err := api.articles.Create(serviceArticleInput("Hidden Draft", db.StatusDraft), admin)
	if err != nil {
		t.Fatalf("seed draft: %v", err)
	}

	for _, key := range []string{fmt.Sprint(article.ID), article.Slug} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/articles/"+key, nil))
		if w.Code != http.StatusOK {
			t.Errorf("get by %q: expected 200, got %d", key, w.Code)
		}
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/articles/"+draft.Slug, nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("draft must be hidden from anonymous, got %d", w.Code)
	}
}
