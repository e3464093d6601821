// Package services – CourseService
//
// This file implements CourseService, which owns the lifecycle of courses.
// It enforces the unique-name rule, clamps pagination, and runs every
// check-then-write sequence inside a single database transaction so that the
// existence check and the write observe the same state. The unique index on
// courses.name remains the final arbiter: a concurrent writer that loses the
// race surfaces as ErrCourseAlreadyExist rather than a raw driver error.
//
// Observability: public methods are OpenTelemetry-instrumented and write
// operations increment courses_mutations_total{op,outcome}.
package services

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-course-api/internal/domain"
	"github.com/tbourn/go-course-api/internal/repo"
)

const tracerName = "services/CourseService"

// Mutation outcomes recorded on courses_mutations_total.
const (
	outcomeOK       = "ok"
	outcomeConflict = "conflict"
	outcomeNotFound = "not_found"
	outcomeError    = "error"
)

var courseMutations = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "courses_mutations_total",
		Help: "Course write operations by operation and outcome.",
	},
	[]string{"op", "outcome"},
)

func init() {
	prometheus.MustRegister(courseMutations)
}

// CourseRepo defines the repository contract required by CourseService.
// Every method accepts the handle to run on so the service can pass a
// transaction-bound *gorm.DB.
type CourseRepo interface {
	// GetCourse fetches a course by primary key.
	GetCourse(ctx context.Context, db *gorm.DB, id uint) (*domain.Course, error)

	// FindCourseByName fetches the course with exactly this name.
	FindCourseByName(ctx context.Context, db *gorm.DB, name string) (*domain.Course, error)

	// CountCourses returns the total number of courses for pagination.
	CountCourses(ctx context.Context, db *gorm.DB) (int64, error)

	// ListCoursesPage returns a page of courses ordered by id.
	ListCoursesPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.Course, error)

	// CreateCourse inserts a new course and returns it with its id.
	CreateCourse(ctx context.Context, db *gorm.DB, name string) (*domain.Course, error)

	// UpdateCourseName renames an existing course.
	UpdateCourseName(ctx context.Context, db *gorm.DB, id uint, name string) error

	// DeleteCourse removes a course; a missing id is not an error.
	DeleteCourse(ctx context.Context, db *gorm.DB, id uint) error
}

// CourseService provides course CRUD on top of a CourseRepo.
type CourseService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Repo is the course repository used by this service.
	Repo CourseRepo

	// DefaultPerPage applies when the caller gives no positive page size.
	DefaultPerPage int
	// MaxPerPage caps the page size.
	MaxPerPage int
}

// Page is one slice of the course listing plus its pagination metadata.
type Page struct {
	Items   []domain.Course
	Total   int64
	Page    int
	PerPage int
}

// NewCourseService constructs a CourseService with the default page sizes.
func NewCourseService(db *gorm.DB, r CourseRepo) *CourseService {
	return &CourseService{
		DB:             db,
		Repo:           r,
		DefaultPerPage: 10,
		MaxPerPage:     100,
	}
}

// Get returns the course with the given id, or ErrCourseNotFound.
func (s *CourseService) Get(ctx context.Context, id uint) (*domain.Course, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "Get",
		trace.WithAttributes(attribute.Int64("course.id", int64(id))),
	)
	defer span.End()

	c, err := s.Repo.GetCourse(ctx, s.DB, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrCourseNotFound
		}
		span.RecordError(err)
		return nil, err
	}
	return c, nil
}

// ListPage returns the requested page of courses ordered by id.
// page < 1 becomes 1; a non-positive perPage becomes DefaultPerPage and
// anything above MaxPerPage is capped. A page past the end is empty.
func (s *CourseService) ListPage(ctx context.Context, page, perPage int) (Page, error) {
	page, perPage = s.clampPagination(page, perPage)

	ctx, span := otel.Tracer(tracerName).Start(ctx, "ListPage",
		trace.WithAttributes(
			attribute.Int("page", page),
			attribute.Int("per_page", perPage),
		),
	)
	defer span.End()

	out := Page{Items: []domain.Course{}, Page: page, PerPage: perPage}

	total, err := s.Repo.CountCourses(ctx, s.DB)
	if err != nil {
		span.RecordError(err)
		return out, err
	}
	out.Total = total

	// Compare in page units so huge page numbers cannot overflow the offset.
	pages := (total + int64(perPage) - 1) / int64(perPage)
	if int64(page) > pages {
		return out, nil
	}

	items, err := s.Repo.ListCoursesPage(ctx, s.DB, (page-1)*perPage, perPage)
	if err != nil {
		span.RecordError(err)
		return out, err
	}
	if items != nil {
		out.Items = items
	}
	return out, nil
}

// Create inserts a course named name. A name already in use yields
// ErrCourseAlreadyExist and nothing is written.
func (s *CourseService) Create(ctx context.Context, name string) (*domain.Course, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "Create")
	defer span.End()

	var created *domain.Course
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.Repo.FindCourseByName(ctx, tx, name); err == nil {
			return ErrCourseAlreadyExist
		} else if !errors.Is(err, repo.ErrNotFound) {
			return err
		}

		c, err := s.Repo.CreateCourse(ctx, tx, name)
		if err != nil {
			if errors.Is(err, repo.ErrDuplicate) {
				return ErrCourseAlreadyExist
			}
			return err
		}
		created = c
		return nil
	})
	s.observe(span, "create", err)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int64("course.id", int64(created.ID)))
	return created, nil
}

// Update renames course id. It returns ErrCourseNotFound when id does not
// exist and ErrCourseAlreadyExist when another course already has name.
// Renaming a course to its current name succeeds.
func (s *CourseService) Update(ctx context.Context, id uint, name string) (*domain.Course, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "Update",
		trace.WithAttributes(attribute.Int64("course.id", int64(id))),
	)
	defer span.End()

	var updated *domain.Course
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		c, err := s.Repo.GetCourse(ctx, tx, id)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return ErrCourseNotFound
			}
			return err
		}

		other, err := s.Repo.FindCourseByName(ctx, tx, name)
		switch {
		case err == nil && other.ID != id:
			return ErrCourseAlreadyExist
		case err != nil && !errors.Is(err, repo.ErrNotFound):
			return err
		}

		if err := s.Repo.UpdateCourseName(ctx, tx, id, name); err != nil {
			switch {
			case errors.Is(err, repo.ErrDuplicate):
				return ErrCourseAlreadyExist
			case errors.Is(err, repo.ErrNotFound):
				return ErrCourseNotFound
			}
			return err
		}
		c.Name = name
		updated = c
		return nil
	})
	s.observe(span, "update", err)
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes course id. Deleting an id that does not exist succeeds.
func (s *CourseService) Delete(ctx context.Context, id uint) error {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "Delete",
		trace.WithAttributes(attribute.Int64("course.id", int64(id))),
	)
	defer span.End()

	err := s.Repo.DeleteCourse(ctx, s.DB, id)
	s.observe(span, "delete", err)
	return err
}

// Replay looks up a prior create recorded under an idempotency key. It
// reports false when the key is unknown, expired, or its course has since
// been deleted.
func (s *CourseService) Replay(ctx context.Context, key string) (*domain.Course, bool, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "Replay")
	defer span.End()

	rec, err := repo.GetIdempotency(ctx, s.DB, key, time.Now().UTC())
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, false, nil
		}
		span.RecordError(err)
		return nil, false, err
	}

	c, err := s.Repo.GetCourse(ctx, s.DB, rec.CourseID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, false, nil
		}
		span.RecordError(err)
		return nil, false, err
	}
	span.SetAttributes(attribute.Bool("idempotency.replayed", true))
	return c, true, nil
}

// Remember records that key produced courseID, valid for ttl. A key that was
// recorded concurrently by another request is not an error.
func (s *CourseService) Remember(ctx context.Context, key string, courseID uint, status int, ttl time.Duration) error {
	if _, err := repo.CreateIdempotency(ctx, s.DB, key, courseID, status, ttl); err != nil && !errors.Is(err, repo.ErrDuplicate) {
		return err
	}
	return nil
}

// PurgeIdempotency deletes expired idempotency records.
func (s *CourseService) PurgeIdempotency(ctx context.Context) (int64, error) {
	return repo.PurgeExpiredIdempotency(ctx, s.DB, time.Now().UTC())
}

// clampPagination normalizes page and perPage against the service limits.
func (s *CourseService) clampPagination(page, perPage int) (int, int) {
	def, limit := s.DefaultPerPage, s.MaxPerPage
	if def <= 0 {
		def = 10
	}
	if limit <= 0 {
		limit = 100
	}
	if def > limit {
		def = limit
	}
	if page < 1 {
		page = 1
	}
	if perPage <= 0 {
		perPage = def
	}
	if perPage > limit {
		perPage = limit
	}
	return page, perPage
}

// observe records the outcome of a write on the span and the mutations counter.
func (s *CourseService) observe(span trace.Span, op string, err error) {
	outcome := outcomeOK
	switch {
	case err == nil:
	case errors.Is(err, ErrCourseAlreadyExist):
		outcome = outcomeConflict
	case errors.Is(err, ErrCourseNotFound):
		outcome = outcomeNotFound
	default:
		outcome = outcomeError
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(attribute.String("outcome", outcome))
	courseMutations.WithLabelValues(op, outcome).Inc()
}
