package downloader

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coursevault/pkg/config"
	errs "coursevault/pkg/errors"
	"coursevault/pkg/logger"
)

func newTestFetcher(t *testing.T) *Fetcher {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Download.RetryAttempts = 2
	cfg.RateLimit.RequestsPerMinute = 1000
	return New(cfg, logger.NewNopLogger())
}

func TestFetchSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		assert.NotEmpty(t, r.Header.Get("Referer"))
		w.Write([]byte("#EXTM3U\n"))
	}))
	defer server.Close()

	f := newTestFetcher(t)
	body, err := f.Fetch(context.Background(), server.URL+"/manifest.m3u8")
	require.NoError(t, err)
	assert.Equal(t, "#EXTM3U\n", string(body))
}

func TestFetchForbiddenSurfacesTypedError(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	f := newTestFetcher(t)
	_, err := f.Fetch(context.Background(), server.URL)
	require.Error(t, err)

	var typedErr *errs.Error
	require.True(t, errors.As(err, &typedErr))
	assert.Equal(t, errs.ErrorTypeForbidden, typedErr.Type)
	assert.Equal(t, 1, attempts, "forbidden is not retried, it escalates")
}

func TestFetchRetriesServerErrors(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	cfg := config.DefaultConfig()
	cfg.RateLimit.RequestsPerMinute = 1000
	cfg.Download.RetryAttempts = 3
	f := New(cfg, logger.NewNopLogger())

	body, err := f.Fetch(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
	assert.Equal(t, 2, attempts)
}

func TestDownloadWritesFile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("subtitle content"))
	}))
	defer server.Close()

	f := newTestFetcher(t)
	dest := filepath.Join(t.TempDir(), "sub", "01.vtt")
	require.NoError(t, f.Download(context.Background(), server.URL, dest))

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "subtitle content", string(data))

	_, err = os.Stat(dest + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file must not linger")
}

func TestDownloadNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	f := newTestFetcher(t)
	dest := filepath.Join(t.TempDir(), "missing.vtt")
	err := f.Download(context.Background(), server.URL, dest)
	require.Error(t, err)

	var typedErr *errs.Error
	require.True(t, errors.As(err, &typedErr))
	assert.Equal(t, errs.ErrorTypeNotFound, typedErr.Type)
	_, statErr := os.Stat(dest)
	assert.True(t, os.IsNotExist(statErr))
}

func TestFetchRespectsContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := newTestFetcher(t)
	_, err := f.Fetch(ctx, server.URL)
	assert.Error(t, err)
}
