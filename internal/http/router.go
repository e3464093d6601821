// Package httpapi wires the HTTP transport (Gin) to the course service,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging, panic recovery, compression, metrics,
// idempotency, rate limiting, CORS, and security headers.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/go-course-api/docs"
	"github.com/tbourn/go-course-api/internal/config"
	"github.com/tbourn/go-course-api/internal/domain"
	"github.com/tbourn/go-course-api/internal/http/handlers"
	"github.com/tbourn/go-course-api/internal/http/middleware"
	"github.com/tbourn/go-course-api/internal/repo"
	"github.com/tbourn/go-course-api/internal/services"
)

// courseRepoShim adapts the repository free functions to services.CourseRepo.
type courseRepoShim struct{}

func (courseRepoShim) GetCourse(ctx context.Context, db *gorm.DB, id uint) (*domain.Course, error) {
	return repo.GetCourse(ctx, db, id)
}

func (courseRepoShim) FindCourseByName(ctx context.Context, db *gorm.DB, name string) (*domain.Course, error) {
	return repo.FindCourseByName(ctx, db, name)
}

func (courseRepoShim) CountCourses(ctx context.Context, db *gorm.DB) (int64, error) {
	return repo.CountCourses(ctx, db)
}

func (courseRepoShim) ListCoursesPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.Course, error) {
	return repo.ListCoursesPage(ctx, db, offset, limit)
}

func (courseRepoShim) CreateCourse(ctx context.Context, db *gorm.DB, name string) (*domain.Course, error) {
	return repo.CreateCourse(ctx, db, name)
}

func (courseRepoShim) UpdateCourseName(ctx context.Context, db *gorm.DB, id uint, name string) error {
	return repo.UpdateCourseName(ctx, db, id, name)
}

func (courseRepoShim) DeleteCourse(ctx context.Context, db *gorm.DB, id uint) error {
	return repo.DeleteCourse(ctx, db, id)
}

// NewCourseService builds the course service over db with the paging limits
// from cfg.
func NewCourseService(db *gorm.DB, cfg config.Config) *services.CourseService {
	svc := services.NewCourseService(db, courseRepoShim{})
	if cfg.DefaultPerPage > 0 {
		svc.DefaultPerPage = cfg.DefaultPerPage
	}
	if cfg.MaxPerPage > 0 {
		svc.MaxPerPage = cfg.MaxPerPage
	}
	return svc
}

// RegisterRoutes attaches all middleware and HTTP endpoints to r and mounts
// the course API under cfg.APIBasePath.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. Logger: structured access logs with scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Gzip (optional)
//  7. Metrics
//  8. Idempotency validator (before rate limiter to allow bypass on replay)
//  9. Rate limiter (per IP, bypass on replay)
//  10. CORS and security headers
func RegisterRoutes(r *gin.Engine, db *gorm.DB, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	serviceName := cfg.OTEL.ServiceName
	if serviceName == "" {
		serviceName = "go-course-api"
	}
	r.Use(otelgin.Middleware(serviceName))

	r.Use(middleware.RequestID())

	r.Use(middleware.Logger(middleware.LogOptions{
		MaskHeaders: []string{"X-API-Key"},
		SkipPaths:   []string{"/health", "/metrics"},
	}))

	r.Use(middleware.Recovery())

	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 1 << 20
	}
	r.Use(limitBody(maxBody))

	if cfg.GzipEnabled {
		r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))
	}

	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{MaxLen: 200},
		func(ctx context.Context, key string, now time.Time) (bool, error) {
			rec, err := repo.GetIdempotency(ctx, db, key, now)
			if err != nil || rec == nil {
				return false, nil
			}
			return true, nil
		},
	))

	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByClientIP())
	r.Use(rl.Handler())

	allowHeaders := []string{"Origin", "Content-Type", "Accept", "Authorization", "If-None-Match", middleware.HeaderIdempotencyKey}
	exposeHeaders := []string{"X-Request-ID", "Content-Length", "ETag", "Retry-After", "Idempotency-Replayed"}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even without an Origin header (simple health checks).
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		Revalidate:   true,
		EnablePolicy: true,
	}))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	if cfg.SwaggerEnabled {
		docs.SwaggerInfo.BasePath = cfg.APIBasePath
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	svc := NewCourseService(db, cfg)
	h := handlers.New(svc, svc, cfg.IdempotencyTTL)

	api := groupWithPrefix(r, cfg.APIBasePath)
	{
		api.GET("/courses", h.ListCourses)
		api.POST("/courses", h.CreateCourse)
		api.GET("/courses/:id", h.GetCourse)
		api.PUT("/courses/:id", h.UpdateCourse)
		api.DELETE("/courses/:id", h.DeleteCourse)
	}
}

// limitBody caps the request body at maxBytes; reads past the cap fail with
// *http.MaxBytesError.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
