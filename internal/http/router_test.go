package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-course-api/internal/config"
	"github.com/tbourn/go-course-api/internal/domain"
	"github.com/tbourn/go-course-api/internal/http/middleware"
	"github.com/tbourn/go-course-api/internal/repo"
)

// --- test DB helper (pure-Go sqlite, no CGO, one file per test) ---
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), fmt.Sprintf("router_%s.db", uuid.NewString()))
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func testConfig() config.Config {
	return config.Config{
		APIBasePath:    "/api",
		MaxBodyBytes:   1 << 20,
		DefaultPerPage: 10,
		MaxPerPage:     100,
		RateRPS:        1000,
		RateBurst:      1000,
		IdempotencyTTL: time.Hour,
		OTEL:           config.OTELConfig{ServiceName: "test-svc"},
	}
}

func newRouter(t *testing.T, cfg config.Config) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	db := newTestDB(t)
	RegisterRoutes(r, db, cfg)
	return r, db
}

func serve(r *gin.Engine, method, path, body string, hdr map[string]string) *httptest.ResponseRecorder {
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRegisterRoutes_CORSAllowAll_Health_Metrics_Fallbacks(t *testing.T) {
	r, _ := newRouter(t, testConfig())

	w := serve(r, http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("AllowAllOrigins expected '*', got %q", got)
	}

	w = serve(r, http.MethodGet, "/metrics", "", nil)
	if w.Code != http.StatusOK || w.Body.Len() == 0 {
		t.Fatalf("GET /metrics bad: code=%d len=%d", w.Code, w.Body.Len())
	}

	w = serve(r, http.MethodGet, "/nope", "", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("GET /nope expected 404, got %d", w.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil || body["code"] != "not_found" {
		t.Fatalf("unexpected 404 body: %s (err=%v)", w.Body.String(), err)
	}

	w = serve(r, http.MethodPost, "/health", "", nil)
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST /health expected 405, got %d", w.Code)
	}

	// PATCH is not part of the course API.
	w = serve(r, http.MethodPatch, "/api/courses/1", `{"name":"x"}`, nil)
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("PATCH /api/courses/1 expected 405, got %d", w.Code)
	}
}

func TestRegisterRoutes_CORSWithOrigins_HeaderEcho(t *testing.T) {
	cfg := testConfig()
	cfg.CORS = config.CORSConfig{AllowedOrigins: []string{"http://example.com"}}
	r, _ := newRouter(t, cfg)

	w := serve(r, http.MethodGet, "/health", "", map[string]string{"Origin": "http://example.com"})
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://example.com" {
		t.Fatalf("expected ACAO echo, got %q", got)
	}

	w = serve(r, http.MethodGet, "/health", "", map[string]string{"Origin": "http://evil.example"})
	if got := w.Header().Get("Access-Control-Allow-Origin"); got == "http://evil.example" {
		t.Fatalf("foreign origin must not be echoed")
	}
}

func TestCourseLifecycle_EndToEnd(t *testing.T) {
	r, _ := newRouter(t, testConfig())

	w := serve(r, http.MethodPost, "/api/courses", `{"name":"Algorithms"}`, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("create = %d body=%s", w.Code, w.Body.String())
	}
	if got := strings.TrimSpace(w.Body.String()); got != `{"id":1,"name":"Algorithms"}` {
		t.Fatalf("create body = %s", got)
	}

	w = serve(r, http.MethodPost, "/api/courses", `{"name":"Algorithms"}`, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("duplicate create = %d", w.Code)
	}
	var dup map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &dup)
	if dup["message"] != "Course already exist." {
		t.Fatalf("duplicate body = %s", w.Body.String())
	}

	w = serve(r, http.MethodGet, "/api/courses/1", "", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"Algorithms"`) {
		t.Fatalf("get = %d %s", w.Code, w.Body.String())
	}
	etag := w.Header().Get("ETag")
	if etag == "" {
		t.Fatalf("expected ETag on GET")
	}
	if cc := w.Header().Get("Cache-Control"); cc != "private, no-cache" {
		t.Fatalf("Cache-Control = %q", cc)
	}

	w = serve(r, http.MethodGet, "/api/courses/1", "", map[string]string{"If-None-Match": etag})
	if w.Code != http.StatusNotModified {
		t.Fatalf("conditional get = %d", w.Code)
	}

	w = serve(r, http.MethodPut, "/api/courses/1", `{"name":"Data Structures"}`, nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"Data Structures"`) {
		t.Fatalf("update = %d %s", w.Code, w.Body.String())
	}

	w = serve(r, http.MethodDelete, "/api/courses/1", "", nil)
	if w.Code != http.StatusNoContent || w.Body.Len() != 0 {
		t.Fatalf("delete = %d body=%q", w.Code, w.Body.String())
	}
	w = serve(r, http.MethodDelete, "/api/courses/1", "", nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("second delete = %d", w.Code)
	}
	w = serve(r, http.MethodGet, "/api/courses/1", "", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("get after delete = %d", w.Code)
	}
}

func TestCoursePaging_EndToEnd(t *testing.T) {
	r, _ := newRouter(t, testConfig())
	for _, n := range []string{"A", "B", "C", "D", "E"} {
		if w := serve(r, http.MethodPost, "/api/courses", fmt.Sprintf(`{"name":%q}`, n), nil); w.Code != http.StatusCreated {
			t.Fatalf("seed %s = %d", n, w.Code)
		}
	}

	var page struct {
		Page    int               `json:"page"`
		PerPage int               `json:"per_page"`
		Total   int64             `json:"total"`
		Items   []json.RawMessage `json:"items"`
	}

	w := serve(r, http.MethodGet, "/api/courses?per_page=2", "", nil)
	if err := json.Unmarshal(w.Body.Bytes(), &page); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if page.Total != 5 || len(page.Items) != 2 || page.Page != 1 || page.PerPage != 2 {
		t.Fatalf("page 1 = %+v", page)
	}

	w = serve(r, http.MethodGet, "/api/courses?per_page=2&page=3", "", nil)
	if err := json.Unmarshal(w.Body.Bytes(), &page); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(page.Items) != 1 || page.Page != 3 {
		t.Fatalf("page 3 = %+v", page)
	}
}

func TestConcurrentCreates_KeepNamesUnique(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db, err := repo.OpenSQLite(filepath.Join(t.TempDir(), "concurrent.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	r := gin.New()
	RegisterRoutes(r, db, testConfig())

	const workers = 40
	post := func(name func(i int) string) map[int]int {
		var (
			mu    sync.Mutex
			wg    sync.WaitGroup
			codes = map[int]int{}
		)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				w := serve(r, http.MethodPost, "/api/courses", fmt.Sprintf(`{"name":%q}`, name(i)), nil)
				mu.Lock()
				codes[w.Code]++
				mu.Unlock()
			}(i)
		}
		wg.Wait()
		return codes
	}

	same := post(func(int) string { return "Operating Systems" })
	if same[http.StatusCreated] != 1 || same[http.StatusBadRequest] != workers-1 {
		t.Fatalf("same name: codes = %v", same)
	}

	distinct := post(func(i int) string { return fmt.Sprintf("Seminar %02d", i) })
	if distinct[http.StatusCreated] != workers {
		t.Fatalf("distinct names: codes = %v", distinct)
	}

	var n int64
	db.Model(&domain.Course{}).Count(&n)
	if n != workers+1 {
		t.Fatalf("courses = %d; want %d", n, workers+1)
	}
	var dup int64
	db.Model(&domain.Course{}).Where("name = ?", "Operating Systems").Count(&dup)
	if dup != 1 {
		t.Fatalf("duplicate rows for contested name: %d", dup)
	}
}

func TestRegisterRoutes_IdempotentCreate_ReplaysViaLookup(t *testing.T) {
	r, db := newRouter(t, testConfig())
	hdr := map[string]string{middleware.HeaderIdempotencyKey: "create-algos-1"}

	w1 := serve(r, http.MethodPost, "/api/courses", `{"name":"Algorithms"}`, hdr)
	if w1.Code != http.StatusCreated {
		t.Fatalf("first create = %d %s", w1.Code, w1.Body.String())
	}

	rec, err := repo.GetIdempotency(context.Background(), db, "create-algos-1", time.Now())
	if err != nil || rec == nil {
		t.Fatalf("idempotency record not stored: rec=%v err=%v", rec, err)
	}

	w2 := serve(r, http.MethodPost, "/api/courses", `{"name":"Algorithms"}`, hdr)
	if w2.Code != http.StatusCreated {
		t.Fatalf("replay = %d %s", w2.Code, w2.Body.String())
	}
	if w2.Header().Get("Idempotency-Replayed") != "true" {
		t.Fatalf("expected Idempotency-Replayed header")
	}
	if w1.Body.String() != w2.Body.String() {
		t.Fatalf("replay body differs: %s vs %s", w1.Body.String(), w2.Body.String())
	}

	var n int64
	db.Model(&domain.Course{}).Count(&n)
	if n != 1 {
		t.Fatalf("expected exactly one course, got %d", n)
	}

	w3 := serve(r, http.MethodPost, "/api/courses", `{"name":"X"}`, map[string]string{middleware.HeaderIdempotencyKey: "bad key!"})
	if w3.Code != http.StatusBadRequest || !strings.Contains(w3.Body.String(), "bad_idempotency_key") {
		t.Fatalf("invalid key = %d %s", w3.Code, w3.Body.String())
	}
}

func TestRegisterRoutes_IdempotencyLookupError_TreatedAsMiss(t *testing.T) {
	r, db := newRouter(t, testConfig())

	// Force queries to fail by closing the underlying connection.
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB(): %v", err)
	}
	_ = sqlDB.Close()

	w := serve(r, http.MethodPost, "/health", "{}", map[string]string{middleware.HeaderIdempotencyKey: "force-error"})
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", w.Code)
	}

	w = serve(r, http.MethodGet, "/api/courses/1", "", nil)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("closed DB should surface as 500, got %d", w.Code)
	}
}

func TestRegisterRoutes_BodyLimit(t *testing.T) {
	cfg := testConfig()
	cfg.MaxBodyBytes = 32
	r, _ := newRouter(t, cfg)

	big := fmt.Sprintf(`{"name":%q}`, strings.Repeat("x", 100))
	w := serve(r, http.MethodPost, "/api/courses", big, nil)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d %s", w.Code, w.Body.String())
	}
}

func TestRegisterRoutes_RateLimited(t *testing.T) {
	cfg := testConfig()
	cfg.RateRPS = 0.001
	cfg.RateBurst = 1
	r, _ := newRouter(t, cfg)

	if w := serve(r, http.MethodGet, "/api/courses", "", nil); w.Code != http.StatusOK {
		t.Fatalf("first request = %d", w.Code)
	}
	w := serve(r, http.MethodGet, "/api/courses", "", nil)
	if w.Code != http.StatusTooManyRequests || w.Header().Get("Retry-After") == "" {
		t.Fatalf("second request = %d retry-after=%q", w.Code, w.Header().Get("Retry-After"))
	}
}

func TestRegisterRoutes_Swagger(t *testing.T) {
	cfg := testConfig()
	cfg.SwaggerEnabled = true
	r, _ := newRouter(t, cfg)

	w := serve(r, http.MethodGet, "/swagger/doc.json", "", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "/courses/{id}") {
		t.Fatalf("swagger doc = %d", w.Code)
	}

	r2, _ := newRouter(t, testConfig())
	if w := serve(r2, http.MethodGet, "/swagger/doc.json", "", nil); w.Code != http.StatusNotFound {
		t.Fatalf("swagger disabled should 404, got %d", w.Code)
	}
}

func TestRegisterRoutes_RootBasePath(t *testing.T) {
	cfg := testConfig()
	cfg.APIBasePath = "/"
	r, _ := newRouter(t, cfg)

	if w := serve(r, http.MethodGet, "/courses", "", nil); w.Code != http.StatusOK {
		t.Fatalf("GET /courses at root = %d", w.Code)
	}
}

func TestNewCourseService_AppliesPagingConfig(t *testing.T) {
	db := newTestDB(t)
	cfg := testConfig()
	cfg.DefaultPerPage, cfg.MaxPerPage = 3, 7

	svc := NewCourseService(db, cfg)
	if svc.DefaultPerPage != 3 || svc.MaxPerPage != 7 {
		t.Fatalf("paging = %d/%d", svc.DefaultPerPage, svc.MaxPerPage)
	}

	svc = NewCourseService(db, config.Config{})
	if svc.DefaultPerPage != 10 || svc.MaxPerPage != 100 {
		t.Fatalf("zero config should keep service defaults, got %d/%d", svc.DefaultPerPage, svc.MaxPerPage)
	}
}

func Test_limitBody_Middleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(limitBody(10))
	r.POST("/echo", func(c *gin.Context) {
		if _, err := io.ReadAll(c.Request.Body); err != nil {
			c.String(http.StatusRequestEntityTooLarge, "too big")
			return
		}
		c.String(http.StatusOK, "ok")
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/echo", bytes.NewBufferString("0123456789AB")) // 12 bytes
	r.ServeHTTP(w, req)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413 from limitBody, got %d", w.Code)
	}
}

func Test_groupWithPrefix(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	groupWithPrefix(r, "/").GET("/one", func(c *gin.Context) { c.String(http.StatusOK, "one") })
	groupWithPrefix(r, "").GET("/two", func(c *gin.Context) { c.String(http.StatusOK, "two") })
	groupWithPrefix(r, "/api").GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	for path, want := range map[string]string{"/one": "one", "/two": "two", "/api/ping": "pong"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != http.StatusOK || w.Body.String() != want {
			t.Fatalf("GET %s got %d %q", path, w.Code, w.Body.String())
		}
	}
}
