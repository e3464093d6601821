// Package services defines the business logic for courses.
// This file centralizes service-level error values so that they can be
// consistently returned by service methods and checked by callers.
//
// Translation into user-facing messages or HTTP status codes is performed at
// the handler layer.
package services

import "errors"

// Course-related errors.
var (
	// ErrCourseNotFound indicates that no course exists with the requested id.
	ErrCourseNotFound = errors.New("course not found")

	// ErrCourseAlreadyExist is returned when a create or rename would give a
	// course the same name as another existing course.
	ErrCourseAlreadyExist = errors.New("course already exist")
)
