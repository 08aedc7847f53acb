package client

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIClient_Get(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/graph/stale", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data": {"count": 0, "relationships": []}}`))
	}))
	defer srv.Close()

	t.Setenv(envAPIURL, srv.URL)
	api, err := NewAPIClientWithCmd(nil)
	require.NoError(t, err)

	resp, err := api.Get("/graph/stale")
	require.NoError(t, err)
	assert.Contains(t, string(resp.Data), `"count": 0`)
}

func TestAPIClient_Post_ErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": "text is required"}`))
	}))
	defer srv.Close()

	t.Setenv(envAPIURL, srv.URL)
	api, err := NewAPIClientWithCmd(nil)
	require.NoError(t, err)

	_, err = api.Post("/ingest", IngestRequest{})
	require.Error(t, err)

	apiErr, ok := err.(*APIError)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "text is required", apiErr.Message)
}

func TestAPIClient_DefaultURL(t *testing.T) {
	t.Setenv(envAPIURL, "")
	api, err := NewAPIClientWithCmd(nil)
	require.NoError(t, err)
	assert.Equal(t, defaultAPIURL, api.baseURL)
}

func TestResolveText_Argument(t *testing.T) {
	text, err := resolveText([]string{"a note"}, "")
	require.NoError(t, err)
	assert.Equal(t, "a note", text)
}

func TestResolveText_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "note.txt")
	require.NoError(t, os.WriteFile(path, []byte("Sarah asked Mike to review the budget"), 0o644))

	text, err := resolveText(nil, path)
	require.NoError(t, err)
	assert.Equal(t, "Sarah asked Mike to review the budget", text)
}

func TestResolveText_MissingFile(t *testing.T) {
	_, err := resolveText(nil, "/nonexistent/note.txt")
	assert.Error(t, err)
}
