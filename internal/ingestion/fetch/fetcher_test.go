package fetch

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/zsiec/tsingest/internal/errors"
	"github.com/zsiec/tsingest/internal/ingestion/types"
	"github.com/zsiec/tsingest/internal/logger"
)

func objectServer(t *testing.T, object []byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeContent(w, r, "stream.ts", time.Time{}, bytes.NewReader(object))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testObject(n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = byte(i % 251)
	}
	return out
}

// flakyDoer fails the first failures calls, then delegates.
type flakyDoer struct {
	failures int32
	calls    atomic.Int32
	next     Doer
}

func (d *flakyDoer) Do(req *http.Request) (*http.Response, error) {
	if n := d.calls.Add(1); n <= d.failures {
		return nil, errors.New("connection reset by peer")
	}
	return d.next.Do(req)
}

func TestRangeFetcher_FullRange(t *testing.T) {
	object := testObject(188 * 100)
	srv := objectServer(t, object)
	f := NewRangeFetcher(srv.Client(), Options{}, logger.NewNullLogger())

	chunk := types.NewChunk(188*10, 188*20)
	require.NoError(t, f.Fetch(context.Background(), srv.URL, chunk))

	assert.True(t, chunk.Downloaded)
	assert.False(t, chunk.ShortRead())
	assert.Equal(t, object[188*10:188*30], chunk.Data)
}

func TestRangeFetcher_ShortReadAtEnd(t *testing.T) {
	object := testObject(188 * 50)
	srv := objectServer(t, object)
	f := NewRangeFetcher(srv.Client(), Options{}, logger.NewNullLogger())

	chunk := types.NewChunk(188*40, 188*20)
	require.NoError(t, f.Fetch(context.Background(), srv.URL, chunk))

	assert.True(t, chunk.Downloaded)
	assert.True(t, chunk.ShortRead())
	assert.Equal(t, object[188*40:], chunk.Data)
}

func TestRangeFetcher_PastEnd(t *testing.T) {
	srv := objectServer(t, testObject(188*5))
	f := NewRangeFetcher(srv.Client(), Options{}, logger.NewNullLogger())

	chunk, err := f.Probe(context.Background(), srv.URL, 188*10, 188*20)
	require.NoError(t, err)
	assert.True(t, chunk.Downloaded)
	assert.Empty(t, chunk.Data)
}

func TestRangeFetcher_RetriesThenSucceeds(t *testing.T) {
	object := testObject(188 * 10)
	srv := objectServer(t, object)
	doer := &flakyDoer{failures: 2, next: srv.Client()}
	f := NewRangeFetcher(doer, Options{MaxAttempts: 3, RetryDelay: time.Millisecond}, logger.NewNullLogger())

	chunk := types.NewChunk(0, 188*5)
	require.NoError(t, f.Fetch(context.Background(), srv.URL, chunk))

	assert.Equal(t, int32(3), doer.calls.Load())
	assert.True(t, chunk.Downloaded)
	assert.Equal(t, object[:188*5], chunk.Data)
}

func TestRangeFetcher_ExhaustsRetries(t *testing.T) {
	srv := objectServer(t, testObject(188*10))
	doer := &flakyDoer{failures: 10, next: srv.Client()}
	f := NewRangeFetcher(doer, Options{}, logger.NewNullLogger())

	chunk := types.NewChunk(188, 188)
	err := f.Fetch(context.Background(), srv.URL, chunk)

	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeFetchFailed))
	assert.ErrorIs(t, err, ErrFetchFailed)
	assert.Equal(t, int32(DefaultMaxAttempts), doer.calls.Load())
	assert.False(t, chunk.Downloaded)
	assert.Empty(t, chunk.Data)
}

func TestRangeFetcher_RangeHeaderAndStatus(t *testing.T) {
	var ranges []string
	status := http.StatusOK
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ranges = append(ranges, r.Header.Get("Range"))
		assert.Contains(t, r.Header.Get("User-Agent"), "tsingest/")
		w.WriteHeader(status)
		_, _ = w.Write(testObject(188 * 4))
	}))
	defer srv.Close()

	f := NewRangeFetcher(srv.Client(), Options{MaxAttempts: 1}, logger.NewNullLogger())

	// 200 is acceptable for a prefix request; the body is capped to size.
	chunk := types.NewChunk(0, 188*2)
	require.NoError(t, f.Fetch(context.Background(), srv.URL, chunk))
	assert.Len(t, chunk.Data, 188*2)

	// 200 for a non-zero offset means the range was ignored.
	chunk = types.NewChunk(188, 188)
	assert.Error(t, f.Fetch(context.Background(), srv.URL, chunk))

	status = http.StatusInternalServerError
	chunk = types.NewChunk(0, 188)
	assert.Error(t, f.Fetch(context.Background(), srv.URL, chunk))

	assert.Equal(t, []string{"bytes=0-375", "bytes=188-375", "bytes=0-187"}, ranges)
}

func TestRangeFetcher_DiscardsFailedAttemptBytes(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			// Promise more than is sent so the client sees an unexpected EOF.
			w.Header().Set("Content-Length", "376")
			w.WriteHeader(http.StatusPartialContent)
			_, _ = w.Write([]byte{0xEE, 0xEE, 0xEE})
			return
		}
		w.WriteHeader(http.StatusPartialContent)
		_, _ = w.Write(bytes.Repeat([]byte{0x47}, 376))
	}))
	defer srv.Close()

	f := NewRangeFetcher(srv.Client(), Options{}, logger.NewNullLogger())
	chunk := types.NewChunk(0, 376)
	require.NoError(t, f.Fetch(context.Background(), srv.URL, chunk))

	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, bytes.Repeat([]byte{0x47}, 376), chunk.Data)
}

func TestRangeFetcher_ContextCancelled(t *testing.T) {
	srv := objectServer(t, testObject(188))
	f := NewRangeFetcher(srv.Client(), Options{RetryDelay: time.Hour}, logger.NewNullLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	chunk := types.NewChunk(0, 188)
	assert.Error(t, f.Fetch(ctx, srv.URL, chunk))
	assert.False(t, chunk.Downloaded)
}
