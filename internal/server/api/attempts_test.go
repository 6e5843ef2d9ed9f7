package api

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/fastcheck/internal/store"
)

// newTestStore creates a new Store with a temporary database for testing.
func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedAttempts(t *testing.T, s *store.Store) {
	t.Helper()
	base := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)

	arm := &store.Attempt{
		ID: "arm-1", Flow: "arm", Outcome: "success", ResultText: "No arm drift detected",
		Response:  []byte(`{"id":42,"label":"normal","confidence":0.91}`),
		StartedAt: base, FinishedAt: base.Add(11 * time.Second),
	}
	require.NoError(t, s.Attempts().Create(arm, []store.Frame{
		{Filename: "t025.png", ContentType: "image/png", Width: 2, Height: 2, Data: []byte("\x89PNG-start")},
		{Filename: "t105.png", ContentType: "image/png", Width: 2, Height: 2, Data: []byte("\x89PNG-end")},
	}))

	face := &store.Attempt{
		ID: "face-1", Flow: "face", Outcome: "failure", Error: "face not detected",
		StartedAt: base.Add(time.Minute), FinishedAt: base.Add(time.Minute + time.Second),
	}
	require.NoError(t, s.Attempts().Create(face, nil))
}

func TestAttemptsHandler_List(t *testing.T) {
	s := newTestStore(t)
	seedAttempts(t, s)
	handler := NewAttemptsHandler(s)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/attempts", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp struct {
		Attempts []struct {
			ID        string              `json:"id"`
			Flow      string              `json:"flow"`
			Outcome   string              `json:"outcome"`
			Error     string              `json:"error"`
			Response  jsoniter.RawMessage `json:"response"`
			Frames    int                 `json:"frames"`
			FrameURLs []string            `json:"frame_urls"`
		} `json:"attempts"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Attempts, 2)

	// Newest first.
	assert.Equal(t, "face-1", resp.Attempts[0].ID)
	assert.Equal(t, "face not detected", resp.Attempts[0].Error)
	assert.Empty(t, resp.Attempts[0].FrameURLs)

	arm := resp.Attempts[1]
	assert.Equal(t, "success", arm.Outcome)
	assert.JSONEq(t, `{"id":42,"label":"normal","confidence":0.91}`, string(arm.Response))
	assert.Equal(t, 2, arm.Frames)
	assert.Equal(t, []string{"/api/attempts/arm-1/frames/0", "/api/attempts/arm-1/frames/1"}, arm.FrameURLs)
}

func TestAttemptsHandler_ListFilters(t *testing.T) {
	s := newTestStore(t)
	seedAttempts(t, s)
	handler := NewAttemptsHandler(s)

	tests := []struct {
		query string
		code  int
		count int
	}{
		{"?flow=arm", http.StatusOK, 1},
		{"?flow=face&limit=5", http.StatusOK, 1},
		{"?limit=1", http.StatusOK, 1},
		{"?flow=speech", http.StatusBadRequest, 0},
		{"?limit=-2", http.StatusBadRequest, 0},
		{"?limit=many", http.StatusBadRequest, 0},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/attempts"+tt.query, nil))
			require.Equal(t, tt.code, rec.Code)
			if tt.code != http.StatusOK {
				return
			}
			var resp listAttemptsResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			assert.Len(t, resp.Attempts, tt.count)
		})
	}
}

func TestAttemptsHandler_Get(t *testing.T) {
	s := newTestStore(t)
	seedAttempts(t, s)
	handler := NewAttemptsHandler(s)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/attempts/arm-1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var got map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, "arm-1", got["id"])
	assert.Equal(t, "No arm drift detected", got["result_text"])

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/attempts/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAttemptsHandler_Frame(t *testing.T) {
	s := newTestStore(t)
	seedAttempts(t, s)
	handler := NewAttemptsHandler(s)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/attempts/arm-1/frames/1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "t105.png")
	assert.Equal(t, "\x89PNG-end", rec.Body.String())

	for path, code := range map[string]int{
		"/api/attempts/arm-1/frames/7":  http.StatusNotFound,
		"/api/attempts/arm-1/frames/x":  http.StatusBadRequest,
		"/api/attempts/arm-1/frames":    http.StatusNotFound,
		"/api/attempts/face-1/frames/0": http.StatusNotFound,
	} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, code, rec.Code, path)
	}
}

func TestAttemptsHandler_Delete(t *testing.T) {
	s := newTestStore(t)
	seedAttempts(t, s)
	handler := NewAttemptsHandler(s)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/attempts/arm-1", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/attempts/arm-1", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	_, err := s.Attempts().Frame("arm-1", 0)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestAttemptsHandler_MethodNotAllowed(t *testing.T) {
	handler := NewAttemptsHandler(newTestStore(t))

	for _, tc := range []struct{ method, path string }{
		{http.MethodPost, "/api/attempts"},
		{http.MethodPut, "/api/attempts/arm-1"},
		{http.MethodDelete, "/api/attempts/arm-1/frames/0"},
	} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(tc.method, tc.path, nil))
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code, "%s %s", tc.method, tc.path)
	}
}
