package e2e

import (
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/ayusman/fastcheck/internal/app"
	"github.com/ayusman/fastcheck/internal/backend"
	"github.com/ayusman/fastcheck/internal/capture"
	"github.com/ayusman/fastcheck/internal/config"
	"github.com/ayusman/fastcheck/internal/detector"
	"github.com/ayusman/fastcheck/internal/pose"
	"github.com/ayusman/fastcheck/internal/server"
	"github.com/ayusman/fastcheck/internal/store"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	frameW = 640
	frameH = 480
)

// fakeBackend records the multipart uploads of the face endpoints.
type fakeBackend struct {
	mu      sync.Mutex
	fields  map[string][]string
	uploads int
}

func (b *fakeBackend) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(backend.PathFacePredict, func(w http.ResponseWriter, r *http.Request) {
		b.record(t, r)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"modality":"face","pred_proba":0.12,"pred_label":0,"features":{"roll":0.4}}`)
	})
	mux.HandleFunc(backend.PathFaceUpload, func(w http.ResponseWriter, r *http.Request) {
		b.record(t, r)
		b.mu.Lock()
		b.uploads++
		b.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"face_id":42,"user_id":"nurse01","result_text":"normal","created_at":"2026-01-01T00:00:00Z"}`)
	})
	return mux
}

func (b *fakeBackend) record(t *testing.T, r *http.Request) {
	mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if !assert.NoError(t, err) || !assert.Equal(t, "multipart/form-data", mediaType) {
		return
	}
	mr := multipart.NewReader(r.Body, params["boundary"])
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fields == nil {
		b.fields = map[string][]string{}
	}
	for {
		p, err := mr.NextPart()
		if err != nil {
			return
		}
		b.fields[r.URL.Path] = append(b.fields[r.URL.Path], p.FormName())
	}
}

func (b *fakeBackend) snapshot() (map[string][]string, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string][]string, len(b.fields))
	for k, v := range b.fields {
		out[k] = append([]string(nil), v...)
	}
	return out, b.uploads
}

func TestE2E_FaceScreening(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test")
	}

	fb := &fakeBackend{}
	backendSrv := httptest.NewServer(fb.handler(t))
	defer backendSrv.Close()

	client, err := backend.New(backend.Config{
		BaseURL:     backendSrv.URL,
		Timeout:     5 * time.Second,
		SessionPath: "/api/v1/auth/me",
	}, zerolog.Nop())
	require.NoError(t, err)

	st, err := store.New(filepath.Join(t.TempDir(), "data.db"))
	require.NoError(t, err)
	defer st.Close()

	frame := gocv.NewMatWithSize(frameH, frameW, gocv.MatTypeCV8UC3)
	defer frame.Close()
	camera := capture.NewMockCamera([]*gocv.Mat{&frame}, true)

	application := app.New(app.Config{
		Camera:   capture.Config{FPS: 30},
		Detector: detector.DefaultConfig(detector.ModeFace),
		Screening: config.ScreeningConfig{
			Mirrored:  true,
			ArmDwell:  100 * time.Millisecond,
			FaceDwell: 100 * time.Millisecond,
			Cooldown:  time.Hour,
			Guides:    pose.DefaultGuides(),
			Face: config.FaceConfig{
				Tolerances: pose.DefaultTolerances(),
				Smoothing:  pose.DefaultSmoothing,
			},
		},
		HistoryKeep: 10,
	}, app.Deps{
		Store:     st,
		Submitter: client,
		NewCamera: func(capture.Config) capture.Camera { return camera },
		NewDetector: func(cfg detector.Config, _ zerolog.Logger) (detector.Detector, error) {
			d := detector.NewMockDetector()
			d.SetSets([]detector.LandmarkSet{detector.FaceWithRoll(0.5, frameW, frameH)})
			return d, nil
		},
	}, zerolog.Nop())
	defer application.Stop()

	srv := server.New(server.Config{Store: st, App: application, Log: zerolog.Nop()})
	ts := httptest.NewServer(srv)
	defer ts.Close()
	httpClient := ts.Client()

	t.Run("StartFaceScreening", func(t *testing.T) {
		resp, err := httpClient.Post(ts.URL+"/api/screening/face/start", "application/json", nil)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var status struct {
			Running bool   `json:"running"`
			Flow    string `json:"flow"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
		assert.True(t, status.Running)
		assert.Equal(t, "face", status.Flow)
	})

	type listed struct {
		Attempts []struct {
			ID         string   `json:"id"`
			Flow       string   `json:"flow"`
			Outcome    string   `json:"outcome"`
			ResultText string   `json:"result_text"`
			FrameURLs  []string `json:"frame_urls"`
		} `json:"attempts"`
	}
	var history listed

	t.Run("HeldPoseRecordsAttempt", func(t *testing.T) {
		require.Eventually(t, func() bool {
			resp, err := httpClient.Get(ts.URL + "/api/attempts?flow=face")
			if err != nil {
				return false
			}
			defer resp.Body.Close()
			history = listed{}
			return json.NewDecoder(resp.Body).Decode(&history) == nil && len(history.Attempts) > 0
		}, 10*time.Second, 50*time.Millisecond)

		got := history.Attempts[0]
		assert.Equal(t, "face", got.Flow)
		assert.Equal(t, "success", got.Outcome)
		assert.Equal(t, "normal", got.ResultText)
		require.NotEmpty(t, got.FrameURLs)

		fields, uploads := fb.snapshot()
		assert.Equal(t, 1, uploads)
		assert.Contains(t, fields[backend.PathFacePredict], "file")
		assert.Contains(t, fields[backend.PathFaceUpload], "image")
		assert.Contains(t, fields[backend.PathFaceUpload], "pred_label")
	})

	t.Run("StoredFrameIsJPEG", func(t *testing.T) {
		require.NotEmpty(t, history.Attempts)
		resp, err := httpClient.Get(ts.URL + history.Attempts[0].FrameURLs[0])
		require.NoError(t, err)
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "image/jpeg", resp.Header.Get("Content-Type"))
		require.Greater(t, len(body), 2)
		assert.Equal(t, []byte{0xff, 0xd8}, body[:2])
	})

	t.Run("TriggerDuringCooldown", func(t *testing.T) {
		resp, err := httpClient.Post(ts.URL+"/api/screening/trigger", "application/json", nil)
		require.NoError(t, err)
		resp.Body.Close()
		// Manual trigger bypasses cooldown.
		assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	})

	t.Run("StopScreening", func(t *testing.T) {
		resp, err := httpClient.Post(ts.URL+"/api/screening/stop", "application/json", nil)
		require.NoError(t, err)
		defer resp.Body.Close()

		var status struct {
			Running bool `json:"running"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
		assert.False(t, status.Running)
		assert.False(t, camera.IsOpen())
	})
}
