package fetcher

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ngly1/mentionwatch/internal/config"
	"github.com/ngly1/mentionwatch/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

func testConfig() config.FetcherConfig {
	cfg := config.DefaultConfig().Fetcher
	cfg.RetryDelay = time.Millisecond
	cfg.RequestsPerSecond = 0
	cfg.MaxRetries = 2
	return cfg
}

func newRequest(t *testing.T, url string) *types.Request {
	t.Helper()
	req, err := types.NewRequest(url, "test")
	require.NoError(t, err)
	return req
}

func TestHTTPFetcherSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		assert.Equal(t, "gzip, deflate, br", r.Header.Get("Accept-Encoding"))
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><body>NGLY1</body></html>"))
	}))
	defer srv.Close()

	f, err := NewHTTPFetcher(testConfig(), testLogger)
	require.NoError(t, err)
	defer f.Close()

	resp, err := f.Fetch(context.Background(), newRequest(t, srv.URL+"/page"))
	require.NoError(t, err)
	assert.True(t, resp.IsSuccess())
	assert.Equal(t, "text/html", resp.ContentType)
	assert.Contains(t, string(resp.Body), "NGLY1")
	assert.Equal(t, srv.URL+"/page", resp.FinalURL)
	assert.Equal(t, "http", f.Type())
}

func TestHTTPFetcherDecompresses(t *testing.T) {
	var br bytes.Buffer
	bw := brotli.NewWriter(&br)
	_, _ = bw.Write([]byte("brotli body"))
	require.NoError(t, bw.Close())

	var gz bytes.Buffer
	gw := gzip.NewWriter(&gz)
	_, _ = gw.Write([]byte("gzip body"))
	require.NoError(t, gw.Close())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/br":
			w.Header().Set("Content-Encoding", "br")
			_, _ = w.Write(br.Bytes())
		case "/gz":
			w.Header().Set("Content-Encoding", "gzip")
			_, _ = w.Write(gz.Bytes())
		}
	}))
	defer srv.Close()

	f, err := NewHTTPFetcher(testConfig(), testLogger)
	require.NoError(t, err)

	resp, err := f.Fetch(context.Background(), newRequest(t, srv.URL+"/br"))
	require.NoError(t, err)
	assert.Equal(t, "brotli body", string(resp.Body))

	resp, err = f.Fetch(context.Background(), newRequest(t, srv.URL+"/gz"))
	require.NoError(t, err)
	assert.Equal(t, "gzip body", string(resp.Body))
}

func TestHTTPFetcherRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "try later", http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f, err := NewHTTPFetcher(testConfig(), testLogger)
	require.NoError(t, err)

	resp, err := f.Fetch(context.Background(), newRequest(t, srv.URL))
	require.NoError(t, err)
	assert.Equal(t, "ok", string(resp.Body))
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTPFetcherGivesUp(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Retry-After", "0")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	f, err := NewHTTPFetcher(testConfig(), testLogger)
	require.NoError(t, err)

	_, err = f.Fetch(context.Background(), newRequest(t, srv.URL))
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrMaxRetries)

	var fetchErr *types.FetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, http.StatusTooManyRequests, fetchErr.StatusCode)
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTPFetcherNoRetryOnClientError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	f, err := NewHTTPFetcher(testConfig(), testLogger)
	require.NoError(t, err)

	req := newRequest(t, srv.URL)
	req.MaxRetries = 5
	_, err = f.Fetch(context.Background(), req)

	var fetchErr *types.FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, http.StatusNotFound, fetchErr.StatusCode)
	assert.False(t, fetchErr.IsRetryable())
	assert.Equal(t, int32(1), calls.Load())
}

func TestHTTPFetcherRespectsCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.RetryDelay = time.Hour
	f, err := NewHTTPFetcher(cfg, testLogger)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = f.Fetch(ctx, newRequest(t, srv.URL))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestUserAgentRotation(t *testing.T) {
	cfg := testConfig()
	cfg.UserAgents = []string{"a", "b"}
	f, err := NewHTTPFetcher(cfg, testLogger)
	require.NoError(t, err)

	seen := map[string]bool{f.nextUserAgent(): true, f.nextUserAgent(): true}
	assert.Len(t, seen, 2)

	cfg.UserAgents = nil
	f, err = NewHTTPFetcher(cfg, testLogger)
	require.NoError(t, err)
	assert.Equal(t, "MentionWatch/"+config.Version, f.nextUserAgent())
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, 5*time.Second, parseRetryAfter(""))
	assert.Equal(t, 7*time.Second, parseRetryAfter("7"))
	assert.Equal(t, 120*time.Second, parseRetryAfter("9999"))
	assert.Equal(t, 5*time.Second, parseRetryAfter("soon"))
	assert.Equal(t, time.Second, parseRetryAfter(time.Now().Add(-time.Hour).UTC().Format(http.TimeFormat)))
}

func TestRandomBetween(t *testing.T) {
	for i := 0; i < 100; i++ {
		d := RandomBetween(time.Second, 2*time.Second)
		assert.GreaterOrEqual(t, d, time.Second)
		assert.LessOrEqual(t, d, 2*time.Second)
	}
	assert.Equal(t, time.Second, RandomBetween(time.Second, time.Second))
}

func TestNewUnknownFetcher(t *testing.T) {
	_, err := New("carrier-pigeon", testConfig(), testLogger)
	assert.Error(t, err)
}
