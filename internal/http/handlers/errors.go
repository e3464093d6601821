// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// This file centralizes symbolic error code constants that are mapped to HTTP
// responses (via the fail() helper and writeError in this package). These
// codes give clients a stable, machine-readable error taxonomy that
// supplements human-readable messages.
//
// Conventions:
//   - Codes are lowercase snake_case.
//   - Generic codes (bad_request, not_found, ...) mirror HTTP status semantics.
//   - Domain-specific codes name the business rule that rejected the request.
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "course_already_exist",
//	  "message": "Course already exist."
//	}
package handlers

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeNotFound         = "not_found"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodePayloadTooLarge  = "payload_too_large"
	ErrCodeRateLimited      = "too_many_requests"
	ErrCodeInternal         = "internal_error"

	// Domain-specific:
	ErrCodeNoDataProvided     = "no_data_provided"
	ErrCodeCourseAlreadyExist = "course_already_exist"
)

// User-facing messages for domain errors.
const (
	msgNoDataProvided     = "No data provided."
	msgCourseAlreadyExist = "Course already exist."
	msgCourseNotFound     = "course not found"
	msgInvalidJSON        = "invalid JSON body"
	msgInternal           = "internal server error"
)
