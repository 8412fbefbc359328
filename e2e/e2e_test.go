package e2e

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/ayusman/doccapture/internal/app"
	"github.com/ayusman/doccapture/internal/capture"
	"github.com/ayusman/doccapture/internal/config"
	"github.com/ayusman/doccapture/internal/geometry"
	"github.com/ayusman/doccapture/internal/metrics"
	"github.com/ayusman/doccapture/internal/server"
	"github.com/ayusman/doccapture/internal/store"
	"github.com/ayusman/doccapture/testdata"
)

type env struct {
	app   *app.App
	store *store.Store
	ts    *httptest.Server
}

func newEnv(t *testing.T, frame gocv.Mat) *env {
	t.Helper()

	tmpDir := t.TempDir()
	s, err := store.New(filepath.Join(tmpDir, "data.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	cfg := config.Default()
	cfg.Detection.FPS = 100
	cfg.Plugins.Dir = filepath.Join(tmpDir, "plugins")

	a := app.New(app.Config{
		Settings: cfg,
		Store:    s,
		Metrics:  metrics.New(),
		CameraFactory: func(string) capture.Camera {
			m := frame.Clone()
			return capture.NewMockCamera([]*gocv.Mat{&m}, true)
		},
		Devices: func() ([]capture.Device, error) {
			return []capture.Device{{ID: "0", Label: "Back Camera"}}, nil
		},
	})
	t.Cleanup(a.Close)

	srv := server.New(server.Config{App: a})
	t.Cleanup(srv.Close)

	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	return &env{app: a, store: s, ts: ts}
}

func near(a, b geometry.Point, tol float64) bool {
	return math.Abs(a.X-b.X) <= tol && math.Abs(a.Y-b.Y) <= tol
}

func TestE2E_DetectAndCapture(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test")
	}

	frame := testdata.DocumentFrame(1000, 800, testdata.StandardDocument)
	defer frame.Close()

	e := newEnv(t, frame)
	require.NoError(t, e.app.Start())
	client := e.ts.Client()

	t.Run("LocksOnDocument", func(t *testing.T) {
		require.Eventually(t, func() bool {
			return e.app.State().Stable
		}, 3*time.Second, 10*time.Millisecond)

		state := e.app.State()
		require.NotNil(t, state.StableQuad)
		want := testdata.StandardQuad()
		for i, p := range state.StableQuad {
			assert.Truef(t, near(p, want[i], 4), "corner %d = %+v, want near %+v", i, p, want[i])
		}
	})

	t.Run("StreamServesFrames", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		req, _ := http.NewRequestWithContext(ctx, http.MethodGet, e.ts.URL+"/api/stream", nil)
		resp, err := client.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "multipart/x-mixed-replace"))

		r := bufio.NewReader(resp.Body)
		found := false
		for !found {
			line, err := r.ReadString('\n')
			require.NoError(t, err)
			found = strings.HasPrefix(strings.ToLower(line), "content-type: image/jpeg")
		}
	})

	t.Run("CaptureProducesDocument", func(t *testing.T) {
		resp, err := client.Post(e.ts.URL+"/api/capture", "application/x-www-form-urlencoded", nil)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusCreated, resp.StatusCode)

		var created struct {
			Document struct {
				ID     string `json:"id"`
				Mode   string `json:"mode"`
				Width  int    `json:"width"`
				Height int    `json:"height"`
				URL    string `json:"url"`
			} `json:"document"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
		assert.Equal(t, "auto", created.Document.Mode)
		assert.InDelta(t, 800, created.Document.Width, 8)
		assert.InDelta(t, 600, created.Document.Height, 8)

		img, err := client.Get(e.ts.URL + created.Document.URL)
		require.NoError(t, err)
		data, _ := io.ReadAll(img.Body)
		img.Body.Close()
		require.Equal(t, http.StatusOK, img.StatusCode)

		mat, err := gocv.IMDecode(data, gocv.IMReadColor)
		require.NoError(t, err)
		defer mat.Close()
		assert.Equal(t, created.Document.Width, mat.Cols())
		assert.Equal(t, created.Document.Height, mat.Rows())

		// The corrected page is paper white.
		mean := mat.Mean()
		assert.Greater(t, mean.Val1, 200.0)
	})

	t.Run("HealthReportsLock", func(t *testing.T) {
		resp, err := client.Get(e.ts.URL + "/api/health")
		require.NoError(t, err)
		defer resp.Body.Close()

		var health struct {
			Running bool   `json:"running"`
			Stable  bool   `json:"stable"`
			Device  string `json:"device"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
		assert.True(t, health.Running)
		assert.True(t, health.Stable)
		assert.Equal(t, "0", health.Device)
	})

	docs, err := e.store.Documents().List(10)
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestE2E_ManualFallback(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test")
	}

	frame := testdata.BlankFrame(640, 480)
	defer frame.Close()

	e := newEnv(t, frame)
	require.NoError(t, e.app.Start())
	client := e.ts.Client()

	require.Eventually(t, func() bool {
		return e.app.State().FrameWidth > 0
	}, 3*time.Second, 10*time.Millisecond)

	resp, err := client.Post(e.ts.URL+"/api/capture", "application/x-www-form-urlencoded", strings.NewReader("viewport=480"))
	require.NoError(t, err)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var pending struct {
		Session struct {
			ID     string `json:"id"`
			State  string `json:"state"`
			Width  int    `json:"width"`
			Height int    `json:"height"`
		} `json:"session"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&pending))
	resp.Body.Close()
	assert.Equal(t, 640, pending.Session.Width)
	assert.Equal(t, 480, pending.Session.Height)

	resp, err = client.Post(e.ts.URL+"/api/crop/"+pending.Session.ID+"/confirm", "application/json", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp, err = client.Get(e.ts.URL + "/api/crop/" + pending.Session.ID)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	docs, err := e.store.Documents().List(10)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "manual", string(docs[0].Mode))
}
