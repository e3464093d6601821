// Error mapping for course handlers.
//
// This file holds writeError, which turns schema, service and transport
// errors into responses:
//   - schema.ErrNoDataProvided and services.ErrCourseAlreadyExist → 400 envelope
//   - *schema.ValidationError → 400 with the field-keyed message map as the body
//   - *schema.SyntaxError → 400 bad_request
//   - *http.MaxBytesError → 413
//   - services.ErrCourseNotFound → 404
//   - anything else → 500, logged with the request-scoped logger
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-course-api/internal/http/middleware"
	"github.com/tbourn/go-course-api/internal/schema"
	"github.com/tbourn/go-course-api/internal/services"
)

// writeError translates a domain or transport error into its HTTP response.
// It is the only place where error kinds are mapped to status codes.
func writeError(c *gin.Context, err error) {
	var (
		verr   *schema.ValidationError
		synErr *schema.SyntaxError
		tooBig *http.MaxBytesError
	)

	switch {
	case errors.Is(err, schema.ErrNoDataProvided):
		fail(c, http.StatusBadRequest, ErrCodeNoDataProvided, msgNoDataProvided)
	case errors.Is(err, services.ErrCourseAlreadyExist):
		fail(c, http.StatusBadRequest, ErrCodeCourseAlreadyExist, msgCourseAlreadyExist)
	case errors.As(err, &verr):
		c.AbortWithStatusJSON(http.StatusBadRequest, verr.Fields)
	case errors.As(err, &synErr):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, msgInvalidJSON)
	case errors.As(err, &tooBig):
		fail(c, http.StatusRequestEntityTooLarge, ErrCodePayloadTooLarge, "request body too large")
	case errors.Is(err, services.ErrCourseNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, msgCourseNotFound)
	default:
		lg := middleware.LoggerFrom(c)
		lg.Error().Err(err).Str("path", c.FullPath()).Msg("unhandled error")
		fail(c, http.StatusInternalServerError, ErrCodeInternal, msgInternal)
	}
}
