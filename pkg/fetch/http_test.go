package fetch

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/mediagrab/pkg/downloader"
)

func TestHTTPFetchStagesFile(t *testing.T) {
	body := bytes.Repeat([]byte("v"), 64*1024)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	workDir := t.TempDir()
	f := NewHTTP(srv.Client())

	var updates []int
	staged, err := f.Fetch(context.Background(), downloader.FetchRequest{
		URL:      srv.URL,
		WorkDir:  workDir,
		BaseName: "clip_abc",
	}, func(pct int) { updates = append(updates, pct) })
	require.NoError(t, err)

	assert.Equal(t, int64(len(body)), staged.Size)
	assert.Equal(t, "mp4", staged.Format)

	got, err := os.ReadFile(staged.Path)
	require.NoError(t, err)
	assert.Equal(t, body, got)

	// Progress only ever moves forward and ends at 100.
	require.NotEmpty(t, updates)
	for i := 1; i < len(updates); i++ {
		assert.GreaterOrEqual(t, updates[i], updates[i-1])
	}
	assert.Equal(t, 100, updates[len(updates)-1])
}

func TestHTTPFetchErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	f := NewHTTP(srv.Client())
	_, err := f.Fetch(context.Background(), downloader.FetchRequest{
		URL:      srv.URL,
		WorkDir:  t.TempDir(),
		BaseName: "clip",
	}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 403")
}

func TestHTTPFetchCancelledRemovesPartial(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Length", "1000000")
		_, _ = w.Write(bytes.Repeat([]byte("x"), 1024))
		if fl, ok := w.(http.Flusher); ok {
			fl.Flush()
		}
		cancel()
		<-ctx.Done()
	}))
	defer srv.Close()

	workDir := t.TempDir()
	f := NewHTTP(srv.Client())
	_, err := f.Fetch(ctx, downloader.FetchRequest{
		URL:      srv.URL,
		WorkDir:  workDir,
		BaseName: "clip",
	}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	entries, err := os.ReadDir(workDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFormatFromResponseFallsBackToURL(t *testing.T) {
	resp := &http.Response{Header: http.Header{}}
	assert.Equal(t, "webm", formatFromResponse(resp, "https://cdn.example.com/media/clip.webm"))

	resp.Header.Set("Content-Type", "application/octet-stream")
	assert.Equal(t, "mp4", formatFromResponse(resp, "https://cdn.example.com/media/clip"))
}
