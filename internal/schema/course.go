// Package schema converts between the JSON representation of a course and
// the domain model. Load turns a raw request body into validated input or a
// field-keyed error map; Dump and DumpMany produce the {id, name} output shape.
//
// Field rules are declared as go-playground/validator tags on an internal
// rules struct, and validator failures are translated into human-readable
// messages keyed by JSON field name:
//
//	{"name": ["Missing data for required field."]}
//
// The id field is output-only: it is never read from input.
package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/tbourn/go-course-api/internal/domain"
)

// Messages emitted in field error maps.
const (
	MsgMissing      = "Missing data for required field."
	MsgNull         = "Field may not be null."
	MsgNotString    = "Not a valid string."
	MsgInvalidInput = "Invalid input type."

	// SchemaKey holds errors that concern the payload as a whole.
	SchemaKey = "_schema"
)

// MaxNameLength is the longest accepted course name, in runes.
const MaxNameLength = 255

// ErrNoDataProvided is returned when the request carries no usable payload:
// an empty body, or a JSON value that is empty or false-like (null, {}, [],
// "", 0, false).
var ErrNoDataProvided = errors.New("no data provided")

// ValidationError carries per-field messages for a rejected payload.
type ValidationError struct {
	Fields map[string][]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(keys, ", "))
}

func (e *ValidationError) add(field, msg string) {
	if e.Fields == nil {
		e.Fields = map[string][]string{}
	}
	e.Fields[field] = append(e.Fields[field], msg)
}

// SyntaxError wraps a body that is not valid JSON.
type SyntaxError struct {
	Err error
}

func (e *SyntaxError) Error() string { return "invalid JSON body: " + e.Err.Error() }
func (e *SyntaxError) Unwrap() error { return e.Err }

// CourseInput is a validated write payload.
type CourseInput struct {
	Name string
}

// CourseOut is the serialized form of a course.
type CourseOut struct {
	ID   uint   `json:"id" example:"1"`
	Name string `json:"name" example:"Algorithms"`
}

// courseRules declares the constraints checked after type coercion.
type courseRules struct {
	Name string `json:"name" validate:"max=255"`
}

// CourseSchema loads and dumps courses. It is safe for concurrent use.
type CourseSchema struct {
	validate *validator.Validate
}

// NewCourseSchema builds a schema whose validator reports JSON field names.
func NewCourseSchema() *CourseSchema {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return &CourseSchema{validate: v}
}

// Load parses and validates a raw JSON body.
//
// Returns ErrNoDataProvided, *SyntaxError, or *ValidationError on rejection.
// Accepted names are returned byte for byte as sent, the empty string
// included; uniqueness is an exact comparison in the store.
func (s *CourseSchema) Load(raw []byte) (CourseInput, error) {
	body := bytes.TrimSpace(raw)
	if len(body) == 0 {
		return CourseInput{}, ErrNoDataProvided
	}

	var payload any
	if err := json.Unmarshal(body, &payload); err != nil {
		return CourseInput{}, &SyntaxError{Err: err}
	}
	if isEmptyValue(payload) {
		return CourseInput{}, ErrNoDataProvided
	}

	obj, ok := payload.(map[string]any)
	if !ok {
		verr := &ValidationError{}
		verr.add(SchemaKey, MsgInvalidInput)
		return CourseInput{}, verr
	}

	verr := &ValidationError{}
	rawName, present := obj["name"]
	var name string
	switch v := rawName.(type) {
	case string:
		name = v
	case nil:
		if present {
			verr.add("name", MsgNull)
		} else {
			verr.add("name", MsgMissing)
		}
	default:
		verr.add("name", MsgNotString)
	}
	if len(verr.Fields) > 0 {
		return CourseInput{}, verr
	}

	if err := s.validate.Struct(courseRules{Name: name}); err != nil {
		var ves validator.ValidationErrors
		if !errors.As(err, &ves) {
			return CourseInput{}, err
		}
		for _, fe := range ves {
			verr.add(fe.Field(), describe(fe))
		}
		return CourseInput{}, verr
	}
	return CourseInput{Name: name}, nil
}

// Dump serializes a single course.
func (s *CourseSchema) Dump(c domain.Course) CourseOut {
	return CourseOut{ID: c.ID, Name: c.Name}
}

// DumpMany serializes a sequence of courses; the result is never nil.
func (s *CourseSchema) DumpMany(cs []domain.Course) []CourseOut {
	out := make([]CourseOut, 0, len(cs))
	for _, c := range cs {
		out = append(out, s.Dump(c))
	}
	return out
}

// describe renders a validator failure as a user-facing message.
func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "max":
		return "Longer than maximum length " + fe.Param() + "."
	case "required":
		return MsgMissing
	default:
		return "Invalid value."
	}
}

// isEmptyValue reports whether a decoded JSON value carries no data.
func isEmptyValue(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case bool:
		return !t
	case float64:
		return t == 0
	case string:
		return t == ""
	case map[string]any:
		return len(t) == 0
	case []any:
		return len(t) == 0
	default:
		return false
	}
}
