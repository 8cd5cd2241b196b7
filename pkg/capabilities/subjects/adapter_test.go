package subjects_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autocrm/journey/pkg/capabilities/subjects"
	"github.com/autocrm/journey/pkg/log"
)

func TestAdapter_Field(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/subjects/subject-1/fields/plan", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		_ = json.NewEncoder(w).Encode(map[string]any{"value": "premium"})
	}))
	defer server.Close()

	adapter := subjects.NewAdapter(server.URL, "test-key", log.WithModule("test"))

	value, err := adapter.Field(t.Context(), "subject-1", "plan")
	require.NoError(t, err)
	assert.Equal(t, "premium", value)
}

func TestAdapter_Field_NumericValue(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"value": 42})
	}))
	defer server.Close()

	adapter := subjects.NewAdapter(server.URL, "test-key", log.WithModule("test"))

	value, err := adapter.Field(t.Context(), "subject-1", "score")
	require.NoError(t, err)
	assert.InEpsilon(t, 42.0, value, 0.0001)
}

func TestAdapter_Field_SubjectNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	adapter := subjects.NewAdapter(server.URL, "test-key", log.WithModule("test"))

	_, err := adapter.Field(t.Context(), "subject-1", "plan")
	assert.ErrorIs(t, err, subjects.ErrSubjectNotFound)
}

func TestAdapter_Field_EscapesPathSegments(t *testing.T) {
	var requestedPath string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestedPath = r.URL.EscapedPath()
		_ = json.NewEncoder(w).Encode(map[string]any{"value": true})
	}))
	defer server.Close()

	adapter := subjects.NewAdapter(server.URL, "test-key", log.WithModule("test"))

	_, err := adapter.Field(t.Context(), "subject/1", "last seen")
	require.NoError(t, err)
	assert.Equal(t, "/subjects/subject%2F1/fields/last%20seen", requestedPath)
}

func TestAdapter_Field_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	adapter := subjects.NewAdapter(server.URL, "test-key", log.WithModule("test"))

	_, err := adapter.Field(t.Context(), "subject-1", "plan")
	assert.Error(t, err)
}
