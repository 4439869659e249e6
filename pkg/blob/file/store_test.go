package file

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/mediagrab/pkg/blob"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(Config{BaseDir: t.TempDir()})
	require.NoError(t, err)
	return s
}

func TestSaveOpenRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	body := "some video bytes"
	require.NoError(t, s.Save(ctx, "youtube/clip.mp4", strings.NewReader(body), int64(len(body))))

	r, size, err := s.Open(ctx, "youtube/clip.mp4")
	require.NoError(t, err)
	defer func() { _ = r.Close() }()

	assert.Equal(t, int64(len(body)), size)
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, body, string(got))

	n, err := s.Stat(ctx, "youtube/clip.mp4")
	require.NoError(t, err)
	assert.Equal(t, int64(len(body)), n)
}

func TestSaveShortWriteFails(t *testing.T) {
	s := newTestStore(t)

	err := s.Save(context.Background(), "k", strings.NewReader("abc"), 10)
	require.Error(t, err)

	_, err = s.Stat(context.Background(), "k")
	assert.True(t, blob.IsNotFound(err))
}

func TestOpenMissingKey(t *testing.T) {
	s := newTestStore(t)

	_, _, err := s.Open(context.Background(), "nope/missing.mp4")
	assert.True(t, blob.IsNotFound(err))
}

func TestDeleteIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "k", strings.NewReader("x"), 1))
	require.NoError(t, s.Delete(ctx, "k"))
	require.NoError(t, s.Delete(ctx, "k"))

	_, err := s.Stat(ctx, "k")
	assert.True(t, blob.IsNotFound(err))
}

func TestKeyTraversalIsContained(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Path cleaning anchors the key under the base dir; the write must
	// not escape it.
	require.NoError(t, s.Save(ctx, "../../etc/passwd", strings.NewReader("x"), 1))
	_, err := s.Stat(ctx, "etc/passwd")
	assert.NoError(t, err)
}
