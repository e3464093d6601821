// Course HTTP handlers.
//
// This file exposes REST endpoints for the course resource:
//   - GET    /courses        (list, paginated, ETag support)
//   - GET    /courses/{id}   (read one, ETag support)
//   - POST   /courses        (create, Idempotency-Key support)
//   - PUT    /courses/{id}   (rename)
//   - DELETE /courses/{id}   (delete, idempotent)
//
// Handlers are transport-thin: they parse the path and body, call the course
// service, and hand every error to writeError.
package handlers

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-course-api/internal/domain"
	"github.com/tbourn/go-course-api/internal/http/middleware"
	"github.com/tbourn/go-course-api/internal/schema"
	"github.com/tbourn/go-course-api/internal/services"
	"github.com/tbourn/go-course-api/internal/utils"
)

//
// Service contracts (context-aware)
//

// CourseService defines course lifecycle operations consumed by HTTP handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type CourseService interface {
	// Get returns a course or services.ErrCourseNotFound.
	Get(ctx context.Context, id uint) (*domain.Course, error)
	// ListPage returns a clamped page of courses and the total count.
	ListPage(ctx context.Context, page, perPage int) (services.Page, error)
	// Create inserts a course or returns services.ErrCourseAlreadyExist.
	Create(ctx context.Context, name string) (*domain.Course, error)
	// Update renames a course.
	Update(ctx context.Context, id uint, name string) (*domain.Course, error)
	// Delete removes a course; missing ids are not an error.
	Delete(ctx context.Context, id uint) error
}

// IdempotencyStore persists the outcome of keyed creates so retries can be
// answered with the original result.
type IdempotencyStore interface {
	// Replay returns the course previously created under key, if any.
	Replay(ctx context.Context, key string) (*domain.Course, bool, error)
	// Remember records that key produced courseID.
	Remember(ctx context.Context, key string, courseID uint, status int, ttl time.Duration) error
}

//
// Handler wiring
//

// Handlers groups the HTTP endpoints for courses.
type Handlers struct {
	courses CourseService
	idem    IdempotencyStore
	idemTTL time.Duration
	schema  *schema.CourseSchema
}

// New constructs Handlers bound to the given services. idem may be nil, in
// which case Idempotency-Key headers are validated but not honored.
func New(courses CourseService, idem IdempotencyStore, idemTTL time.Duration) *Handlers {
	if idemTTL <= 0 {
		idemTTL = 24 * time.Hour
	}
	return &Handlers{
		courses: courses,
		idem:    idem,
		idemTTL: idemTTL,
		schema:  schema.NewCourseSchema(),
	}
}

//
// DTOs
//

// CourseRequest is the JSON payload for creating or renaming a course.
// Unknown fields and id are ignored.
type CourseRequest struct {
	// Name is the course name (1–255 characters, unique).
	Name string `json:"name" example:"Algorithms"`
}

// ListCoursesResponse wraps a page of courses and pagination information.
type ListCoursesResponse struct {
	Page    int                `json:"page" example:"1"`
	PerPage int                `json:"per_page" example:"10"`
	Total   int64              `json:"total" example:"42"`
	Items   []schema.CourseOut `json:"items"`
}

//
// Helpers
//

// courseID reads the :id path parameter. Anything other than a positive
// integer is answered with 404, matching a route that only accepts integers.
func courseID(c *gin.Context) (uint, bool) {
	id, valid := utils.ParseID(c.Param("id"))
	if !valid {
		fail(c, http.StatusNotFound, ErrCodeNotFound, msgCourseNotFound)
		return 0, false
	}
	return id, true
}

// loadBody reads the request body and runs it through the course schema.
func (h *Handlers) loadBody(c *gin.Context) (schema.CourseInput, error) {
	var raw []byte
	if c.Request.Body != nil {
		b, err := io.ReadAll(c.Request.Body)
		if err != nil {
			return schema.CourseInput{}, err
		}
		raw = b
	}
	return h.schema.Load(raw)
}

//
// Handlers
//

// ListCourses godoc
// @ID          listCourses
// @Summary     List courses (paginated)
// @Description Returns a page of courses ordered by id. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Courses
// @Produce     json
//
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"  example(W/\"abc123\")
// @Param       page           query   int     false "Page number"     minimum(1) default(1)
// @Param       per_page       query   int     false "Items per page"  minimum(1) maximum(100) default(10)
//
// @Success     200  {object} handlers.ListCoursesResponse
// @Header      200  {string} ETag  "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /courses [get]
func (h *Handlers) ListCourses(c *gin.Context) {
	page := utils.AtoiDefault(c.Query("page"), 1)
	perPage := utils.AtoiDefault(c.Query("per_page"), 0)

	p, err := h.courses.ListPage(c.Request.Context(), page, perPage)
	if err != nil {
		writeError(c, err)
		return
	}

	okCacheable(c, ListCoursesResponse{
		Page:    p.Page,
		PerPage: p.PerPage,
		Total:   p.Total,
		Items:   h.schema.DumpMany(p.Items),
	})
}

// GetCourse godoc
// @ID          getCourse
// @Summary     Get a course
// @Description Returns a single course by id. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Courses
// @Produce     json
//
// @Param       id             path    int     true  "Course ID"  minimum(1) example(1)
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"
//
// @Success     200  {object} schema.CourseOut
// @Header      200  {string} ETag  "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     404  {object} handlers.ErrorResponse "Course not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /courses/{id} [get]
func (h *Handlers) GetCourse(c *gin.Context) {
	id, valid := courseID(c)
	if !valid {
		return
	}

	course, err := h.courses.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	okCacheable(c, h.schema.Dump(*course))
}

// CreateCourse godoc
// @ID          createCourse
// @Summary     Create a course
// @Description Creates a course with a unique name. Supports idempotency via the Idempotency-Key header (same key → same result).
// @Tags        Courses
// @Accept      json
// @Produce     json
//
// @Param       Idempotency-Key  header  string  false "Idempotency key for safe retries (UUID recommended)"  example(7a8d9f4c-1b2a-4c3d-8e9f-0123456789ab)
// @Param       body             body    handlers.CourseRequest  true  "Course payload"
//
// @Success     201  {object} schema.CourseOut
// @Header      201  {string} Idempotency-Replayed  "true when served from a previous identical request"
// @Failure     400  {object} handlers.ErrorResponse "No data, invalid JSON, field errors, or duplicate name"
// @Failure     413  {object} handlers.ErrorResponse "Body too large"
// @Failure     429  {object} handlers.ErrorResponse "Rate limited"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /courses [post]
func (h *Handlers) CreateCourse(c *gin.Context) {
	ctx := c.Request.Context()

	// Idempotency (replay path).
	key, hasKey := middleware.GetIdempotencyKey(c)
	if hasKey && h.idem != nil {
		prev, found, err := h.idem.Replay(ctx, key)
		if err != nil {
			writeError(c, err)
			return
		}
		if found {
			c.Header("Idempotency-Replayed", "true")
			ok(c, http.StatusCreated, h.schema.Dump(*prev))
			return
		}
	}

	in, err := h.loadBody(c)
	if err != nil {
		writeError(c, err)
		return
	}

	course, err := h.courses.Create(ctx, in.Name)
	if err != nil {
		writeError(c, err)
		return
	}

	// Idempotency (store path), best effort.
	if hasKey && h.idem != nil {
		if err := h.idem.Remember(ctx, key, course.ID, http.StatusCreated, h.idemTTL); err != nil {
			lg := middleware.LoggerFrom(c)
			lg.Warn().Err(err).Uint("course_id", course.ID).Msg("idempotency record not stored")
		}
	}

	ok(c, http.StatusCreated, h.schema.Dump(*course))
}

// UpdateCourse godoc
// @ID          updateCourse
// @Summary     Rename a course
// @Description Replaces the name of an existing course. The id is checked before the body.
// @Tags        Courses
// @Accept      json
// @Produce     json
//
// @Param       id    path  int                     true  "Course ID"  minimum(1) example(1)
// @Param       body  body  handlers.CourseRequest  true  "Course payload"
//
// @Success     200  {object} schema.CourseOut
// @Failure     400  {object} handlers.ErrorResponse "No data, invalid JSON, field errors, or duplicate name"
// @Failure     404  {object} handlers.ErrorResponse "Course not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /courses/{id} [put]
func (h *Handlers) UpdateCourse(c *gin.Context) {
	ctx := c.Request.Context()
	id, valid := courseID(c)
	if !valid {
		return
	}

	if _, err := h.courses.Get(ctx, id); err != nil {
		writeError(c, err)
		return
	}

	in, err := h.loadBody(c)
	if err != nil {
		writeError(c, err)
		return
	}

	course, err := h.courses.Update(ctx, id, in.Name)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, h.schema.Dump(*course))
}

// DeleteCourse godoc
// @ID          deleteCourse
// @Summary     Delete a course
// @Description Permanently removes a course. Deleting a missing id also returns 204.
// @Tags        Courses
//
// @Param       id  path  int  true  "Course ID"  minimum(1) example(1)
//
// @Success     204  {string} string "No Content"
// @Failure     404  {object} handlers.ErrorResponse "Malformed id"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /courses/{id} [delete]
func (h *Handlers) DeleteCourse(c *gin.Context) {
	id, valid := courseID(c)
	if !valid {
		return
	}

	if err := h.courses.Delete(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	noContent(c)
}
