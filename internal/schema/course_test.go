package schema

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbourn/go-course-api/internal/domain"
)

func TestLoad_Valid(t *testing.T) {
	s := NewCourseSchema()

	in, err := s.Load([]byte(`{"name":"Algorithms","id":99,"extra":true}`))
	require.NoError(t, err)
	assert.Equal(t, "Algorithms", in.Name)
}

func TestLoad_KeepsNameAsSent(t *testing.T) {
	s := NewCourseSchema()

	cases := []string{
		"  Algorithms  ",
		"   ",
		"",
		// "e" followed by a combining acute accent stays decomposed.
		"Cafe\u0301",
	}
	for _, want := range cases {
		body, err := json.Marshal(map[string]string{"name": want})
		require.NoError(t, err)

		in, err := s.Load(body)
		require.NoError(t, err, "name %q", want)
		assert.Equal(t, want, in.Name)
	}
}

func TestLoad_NoDataProvided(t *testing.T) {
	s := NewCourseSchema()

	for _, body := range []string{"", "   ", "null", "{}", "[]", `""`, "false", "0"} {
		_, err := s.Load([]byte(body))
		assert.ErrorIs(t, err, ErrNoDataProvided, "body %q", body)
	}
}

func TestLoad_MalformedJSON(t *testing.T) {
	s := NewCourseSchema()

	_, err := s.Load([]byte(`{"name":`))
	var syn *SyntaxError
	require.True(t, errors.As(err, &syn), "got %v", err)
	assert.Contains(t, syn.Error(), "invalid JSON body")
}

func TestLoad_NonObject(t *testing.T) {
	s := NewCourseSchema()

	for _, body := range []string{`[1,2]`, `"Algorithms"`, `42`, `true`} {
		_, err := s.Load([]byte(body))
		var verr *ValidationError
		require.True(t, errors.As(err, &verr), "body %q: got %v", body, err)
		assert.Equal(t, map[string][]string{SchemaKey: {MsgInvalidInput}}, verr.Fields)
	}
}

func TestLoad_FieldErrors(t *testing.T) {
	s := NewCourseSchema()

	cases := map[string]struct {
		body string
		want string
	}{
		"missing":  {`{"title":"x"}`, MsgMissing},
		"null":     {`{"name":null}`, MsgNull},
		"number":   {`{"name":5}`, MsgNotString},
		"object":   {`{"name":{"a":1}}`, MsgNotString},
		"too long": {`{"name":"` + strings.Repeat("a", MaxNameLength+1) + `"}`, "Longer than maximum length 255."},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := s.Load([]byte(tc.body))
			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "got %v", err)
			assert.Equal(t, []string{tc.want}, verr.Fields["name"])
			assert.Contains(t, verr.Error(), "name")
		})
	}
}

func TestLoad_LengthCountsRunes(t *testing.T) {
	s := NewCourseSchema()

	// 255 multi-byte runes is exactly at the limit.
	name := strings.Repeat("é", MaxNameLength)
	in, err := s.Load([]byte(`{"name":"` + name + `"}`))
	require.NoError(t, err)
	assert.Equal(t, name, in.Name)
}

func TestDump_And_DumpMany(t *testing.T) {
	s := NewCourseSchema()

	out := s.Dump(domain.Course{ID: 3, Name: "Databases"})
	assert.Equal(t, CourseOut{ID: 3, Name: "Databases"}, out)

	many := s.DumpMany(nil)
	assert.NotNil(t, many)
	assert.Empty(t, many)

	many = s.DumpMany([]domain.Course{{ID: 1, Name: "A"}, {ID: 2, Name: "B"}})
	assert.Equal(t, []CourseOut{{ID: 1, Name: "A"}, {ID: 2, Name: "B"}}, many)
}
