package fetch

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/zsiec/tsingest/internal/errors"
	"github.com/zsiec/tsingest/internal/ingestion/retry"
	"github.com/zsiec/tsingest/internal/ingestion/types"
	"github.com/zsiec/tsingest/internal/logger"
	"github.com/zsiec/tsingest/internal/metrics"
	"github.com/zsiec/tsingest/pkg/version"
)

// DefaultMaxAttempts is the total number of tries per range.
const DefaultMaxAttempts = 3

// ErrFetchFailed is wrapped into the error returned once every attempt of a
// range has failed.
var ErrFetchFailed = stderrors.New("range fetch failed")

// Doer performs one HTTP request. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Options tunes a RangeFetcher.
type Options struct {
	MaxAttempts    int
	RetryDelay     time.Duration
	RequestTimeout time.Duration
}

// RangeFetcher downloads byte ranges of one object with retries. It owns
// the range and retry policy only; the transport is the Doer.
type RangeFetcher struct {
	client Doer
	opts   Options
	logger logger.Logger
}

// NewRangeFetcher creates a fetcher over client.
func NewRangeFetcher(client Doer, opts Options, log logger.Logger) *RangeFetcher {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	return &RangeFetcher{
		client: client,
		opts:   opts,
		logger: logger.WithComponent(log, "range_fetcher"),
	}
}

// Fetch fills chunk.Data with the bytes [chunk.Offset, chunk.End()) of url.
// chunk.Downloaded is set when an attempt succeeds at the transport level,
// even if the server returned fewer bytes than requested. Bytes from a
// failed attempt never carry over into the next one. A FETCH_FAILED error
// is returned once every attempt has failed.
func (f *RangeFetcher) Fetch(ctx context.Context, url string, chunk *types.Chunk) error {
	policy := retry.Policy{
		MaxAttempts: f.opts.MaxAttempts,
		NewStrategy: func() retry.Strategy {
			return retry.NewLinearBackoff(f.opts.RetryDelay, 0)
		},
		OnFailure: func(attempt int, err error) {
			f.logger.WithError(err).WithFields(map[string]interface{}{
				"attempt": attempt,
				"offset":  chunk.Offset,
				"size":    chunk.Size,
			}).Warn("Range request failed")
		},
	}

	err := policy.Do(ctx, func(ctx context.Context, _ int) error {
		return f.attempt(ctx, url, chunk)
	})
	if err != nil {
		chunk.Reset()
		return errors.WrapFetchError(fmt.Errorf("%w: %w", ErrFetchFailed, err), chunk.Offset)
	}
	return nil
}

// Probe fetches size bytes at offset into a fresh chunk.
func (f *RangeFetcher) Probe(ctx context.Context, url string, offset, size int64) (*types.Chunk, error) {
	chunk := types.NewChunk(offset, size)
	if err := f.Fetch(ctx, url, chunk); err != nil {
		return nil, err
	}
	return chunk, nil
}

func (f *RangeFetcher) attempt(ctx context.Context, url string, chunk *types.Chunk) error {
	chunk.Reset()
	start := time.Now()

	if f.opts.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.opts.RequestTimeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Range", chunk.RangeHeader())
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := f.client.Do(req)
	if err != nil {
		metrics.RecordFetchAttempt(metrics.ResultFailure, 0, time.Since(start).Seconds())
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusPartialContent:
	case resp.StatusCode == http.StatusOK && chunk.Offset == 0:
		// Origin ignored the range; the prefix is still what was asked for.
	case resp.StatusCode == http.StatusRequestedRangeNotSatisfiable:
		// Range starts past the end of the object.
		_, _ = io.Copy(io.Discard, resp.Body)
		chunk.Downloaded = true
		metrics.RecordFetchAttempt(metrics.ResultSuccess, 0, time.Since(start).Seconds())
		return nil
	default:
		metrics.RecordFetchAttempt(metrics.ResultFailure, 0, time.Since(start).Seconds())
		return fmt.Errorf("unexpected status %d for range %s", resp.StatusCode, chunk.RangeHeader())
	}

	buf := bytes.NewBuffer(make([]byte, 0, chunk.Size))
	n, err := io.Copy(buf, io.LimitReader(resp.Body, chunk.Size))
	if err != nil {
		metrics.RecordFetchAttempt(metrics.ResultFailure, int(n), time.Since(start).Seconds())
		return fmt.Errorf("read body after %d bytes: %w", n, err)
	}

	chunk.Data = buf.Bytes()
	chunk.Downloaded = true
	metrics.RecordFetchAttempt(metrics.ResultSuccess, int(n), time.Since(start).Seconds())
	return nil
}
