package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureArchiveLocalPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jitendex.zip")
	got, err := EnsureArchive(context.Background(), path, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, path, got)
}

func TestEnsureArchiveDownloadsOnce(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, userAgent, r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte("PK-archive"))
	}))
	defer srv.Close()

	cache := filepath.Join(t.TempDir(), "cache")
	ref := srv.URL + "/dicts/kanjidic.zip?token=abc"

	path, err := EnsureArchive(context.Background(), ref, cache)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(cache, "kanjidic.zip"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "PK-archive", string(data))

	again, err := EnsureArchive(context.Background(), ref, cache)
	require.NoError(t, err)
	assert.Equal(t, path, again)
	assert.Equal(t, int32(1), hits.Load())
}

func TestEnsureArchiveHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	cache := t.TempDir()
	_, err := EnsureArchive(context.Background(), srv.URL+"/missing.zip", cache)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")

	entries, err := os.ReadDir(cache)
	require.NoError(t, err)
	assert.Empty(t, entries, "failed download must not leave files behind")
}

func TestEnsureArchiveNoFileName(t *testing.T) {
	_, err := EnsureArchive(context.Background(), "https://example.com/", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no file name")
}

func TestEnsureArchiveCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("PK"))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := EnsureArchive(ctx, srv.URL+"/a.zip", t.TempDir())
	require.ErrorIs(t, err, context.Canceled)
}

func TestIsRemote(t *testing.T) {
	assert.True(t, IsRemote("https://example.com/a.zip"))
	assert.True(t, IsRemote("http://example.com/a.zip"))
	assert.False(t, IsRemote("/tmp/a.zip"))
	assert.False(t, IsRemote("ftp://example.com/a.zip"))
}
