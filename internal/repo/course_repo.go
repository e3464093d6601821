// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Course model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a course is not found, functions return ErrNotFound
//     (an alias of gorm.ErrRecordNotFound).
//   - When an insert or update would violate the unique name index, functions
//     return ErrDuplicate regardless of driver.
//   - On other DB errors (connectivity, missing tables, etc.), the raw gorm
//     error is propagated.
//
// Usage:
//
//	// Within a service layer
//	c, err := repo.GetCourse(ctx, db, 42)
//	if errors.Is(err, repo.ErrNotFound) {
//	    // handle missing
//	} else if err != nil {
//	    // handle DB failure
//	}
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/tbourn/go-course-api/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// GetCourse fetches a single course by its primary key.
func GetCourse(ctx context.Context, db *gorm.DB, id uint) (*domain.Course, error) {
	var c domain.Course
	if err := db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// FindCourseByName fetches the course whose name matches exactly
// (case-sensitive), or ErrNotFound.
func FindCourseByName(ctx context.Context, db *gorm.DB, name string) (*domain.Course, error) {
	var c domain.Course
	if err := db.WithContext(ctx).Where("name = ?", name).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// CountCourses returns the total number of courses.
func CountCourses(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Model(&domain.Course{}).Count(&total).Error
	return total, err
}

// ListCoursesPage returns a slice of courses ordered by id ascending. Use
// CountCourses to obtain the total for pagination metadata.
//
// The caller is responsible for computing offset and limit (e.g., (page-1)*perPage).
func ListCoursesPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.Course, error) {
	out := []domain.Course{}
	err := db.WithContext(ctx).
		Order("id ASC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// CreateCourse inserts a new course; the store assigns the id.
func CreateCourse(ctx context.Context, db *gorm.DB, name string) (*domain.Course, error) {
	c := &domain.Course{Name: name}
	if err := db.WithContext(ctx).Create(c).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return c, nil
}

// UpdateCourseName overwrites the name of course id. It returns ErrNotFound
// when no row matched.
func UpdateCourseName(ctx context.Context, db *gorm.DB, id uint, name string) error {
	res := db.WithContext(ctx).
		Model(&domain.Course{}).
		Where("id = ?", id).
		Update("name", name)
	if res.Error != nil {
		if isUniqueViolation(res.Error) {
			return ErrDuplicate
		}
		return res.Error
	}
	if res.RowsAffected == 0 {
		// Some drivers report 0 rows when the value is unchanged; confirm existence.
		var n int64
		if err := db.WithContext(ctx).Model(&domain.Course{}).Where("id = ?", id).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
	}
	return nil
}

// DeleteCourse permanently removes course id. Deleting a missing id is not
// an error.
func DeleteCourse(ctx context.Context, db *gorm.DB, id uint) error {
	return db.WithContext(ctx).Where("id = ?", id).Delete(&domain.Course{}).Error
}
