package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zsiec/tsingest/internal/config"
	"github.com/zsiec/tsingest/internal/ingestion/pipeline"
	"github.com/zsiec/tsingest/internal/ingestion/registry"
	"github.com/zsiec/tsingest/internal/logger"
	"github.com/zsiec/tsingest/pkg/version"
)

type staticProgress pipeline.Progress

func (p staticProgress) Progress() pipeline.Progress { return pipeline.Progress(p) }

func testConfig() *config.ServerConfig {
	return &config.ServerConfig{
		Enabled:      true,
		Port:         0,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	}
}

func newTestServer(t *testing.T, progress ProgressSource, ledger registry.Registry) *Server {
	t.Helper()
	return New(testConfig(), logger.NewNullLogger(), progress, ledger)
}

func serve(t *testing.T, s *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestHandleVersion(t *testing.T) {
	s := newTestServer(t, nil, nil)

	rec := serve(t, s, http.MethodGet, "/version")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var info version.Info
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, version.Version, info.Version)
	assert.NotEmpty(t, info.GoVersion)
}

func TestHandleProgress(t *testing.T) {
	s := newTestServer(t, staticProgress{
		RunID:           "run-1",
		Status:          pipeline.StatusRunning,
		VideoPID:        0x100,
		ChunksPersisted: 3,
	}, nil)

	rec := serve(t, s, http.MethodGet, "/api/v1/progress")
	require.Equal(t, http.StatusOK, rec.Code)

	var got pipeline.Progress
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "run-1", got.RunID)
	assert.Equal(t, pipeline.StatusRunning, got.Status)
	assert.Equal(t, uint16(0x100), got.VideoPID)
	assert.Equal(t, uint64(3), got.ChunksPersisted)
}

func TestHandleProgress_NoPipeline(t *testing.T) {
	s := newTestServer(t, nil, nil)
	rec := serve(t, s, http.MethodGet, "/api/v1/progress")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLedgerRoutes(t *testing.T) {
	ctx := context.Background()
	ledger := registry.NewMemoryRegistry()
	require.NoError(t, ledger.RegisterRun(ctx, &registry.Run{
		ID:        "run-1",
		URL:       "http://origin/object.ts",
		Status:    registry.RunStatusRunning,
		StartedAt: time.Now(),
	}))
	for _, off := range []int64{376, 0} {
		require.NoError(t, ledger.RecordChunk(ctx, &registry.ChunkRecord{
			RunID:     "run-1",
			Offset:    off,
			Requested: 188,
			Bytes:     188,
			Status:    registry.ChunkStatusPersisted,
		}))
	}
	s := newTestServer(t, nil, ledger)

	t.Run("get run", func(t *testing.T) {
		rec := serve(t, s, http.MethodGet, "/api/v1/runs/run-1")
		require.Equal(t, http.StatusOK, rec.Code)
		var run registry.Run
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
		assert.Equal(t, "run-1", run.ID)
		assert.Equal(t, registry.RunStatusRunning, run.Status)
	})

	t.Run("unknown run", func(t *testing.T) {
		rec := serve(t, s, http.MethodGet, "/api/v1/runs/nope")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("list chunks in offset order", func(t *testing.T) {
		rec := serve(t, s, http.MethodGet, "/api/v1/runs/run-1/chunks")
		require.Equal(t, http.StatusOK, rec.Code)
		var body struct {
			Chunks []registry.ChunkRecord `json:"chunks"`
			Count  int                    `json:"count"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.Equal(t, 2, body.Count)
		assert.Equal(t, int64(0), body.Chunks[0].Offset)
		assert.Equal(t, int64(376), body.Chunks[1].Offset)
	})

	t.Run("get chunk", func(t *testing.T) {
		rec := serve(t, s, http.MethodGet, "/api/v1/runs/run-1/chunks/376")
		require.Equal(t, http.StatusOK, rec.Code)
		var chunk registry.ChunkRecord
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &chunk))
		assert.Equal(t, int64(376), chunk.Offset)
	})

	t.Run("unknown chunk", func(t *testing.T) {
		rec := serve(t, s, http.MethodGet, "/api/v1/runs/run-1/chunks/188")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("non numeric offset is unrouted", func(t *testing.T) {
		rec := serve(t, s, http.MethodGet, "/api/v1/runs/run-1/chunks/abc")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestLedgerRoutes_NoLedger(t *testing.T) {
	s := newTestServer(t, nil, nil)
	rec := serve(t, s, http.MethodGet, "/api/v1/runs/run-1")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthRoutes(t *testing.T) {
	s := newTestServer(t, nil, nil)

	assert.Equal(t, http.StatusOK, serve(t, s, http.MethodGet, "/live").Code)
	// No checkers have run yet.
	assert.Equal(t, http.StatusServiceUnavailable, serve(t, s, http.MethodGet, "/ready").Code)
}

func TestRequestIDPropagation(t *testing.T) {
	s := newTestServer(t, nil, nil)

	rec := serve(t, s, http.MethodGet, "/live")
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/live", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec = httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))
}

func TestNotFoundAndMethod(t *testing.T) {
	s := newTestServer(t, nil, nil)
	assert.Equal(t, http.StatusNotFound, serve(t, s, http.MethodGet, "/nope").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, serve(t, s, http.MethodPost, "/version").Code)
}

func TestRecoveryMiddleware(t *testing.T) {
	s := newTestServer(t, nil, nil)
	h := s.recoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	s := newTestServer(t, staticProgress{RunID: "run-1"}, nil)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	url := fmt.Sprintf("http://%s/api/v1/progress", ln.Addr().String())
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not shut down")
	}
}
