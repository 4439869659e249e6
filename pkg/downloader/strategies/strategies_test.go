package strategies

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/mediagrab/pkg/downloader"
)

// captureFetcher records the request it was handed and returns a fixed
// staged artifact.
type captureFetcher struct {
	got    downloader.FetchRequest
	staged *downloader.StagedArtifact
	err    error
}

func (f *captureFetcher) Fetch(_ context.Context, req downloader.FetchRequest, progress downloader.ProgressFunc) (*downloader.StagedArtifact, error) {
	f.got = req
	if f.err != nil {
		return nil, f.err
	}
	if progress != nil {
		progress(100)
	}
	return f.staged, nil
}

func testOptions(f downloader.MediaFetcher) Options {
	return Options{Fetcher: f, WorkDir: "/tmp/work"}
}

func TestYouTubeResolveID(t *testing.T) {
	s := NewYouTube(testOptions(&captureFetcher{}))

	tests := []struct {
		name    string
		url     string
		want    string
		wantErr bool
	}{
		{name: "watch URL", url: "https://www.youtube.com/watch?v=dQw4w9WgXcQ", want: "dQw4w9WgXcQ"},
		{name: "short link", url: "https://youtu.be/dQw4w9WgXcQ", want: "dQw4w9WgXcQ"},
		{name: "embed URL", url: "https://www.youtube.com/embed/dQw4w9WgXcQ", want: "dQw4w9WgXcQ"},
		{name: "watch URL with extra params", url: "https://www.youtube.com/watch?list=x&v=dQw4w9WgXcQ", want: "dQw4w9WgXcQ"},
		{name: "unrelated host", url: "https://example.com/watch?v=dQw4w9WgXcQ1", wantErr: true},
		{name: "short ID", url: "https://youtu.be/short", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ResolveID(tt.url)
			if tt.wantErr {
				assert.ErrorIs(t, err, downloader.ErrNoIdentifier)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestYouTubeTransferSelectsFormatByQuality(t *testing.T) {
	tests := []struct {
		quality downloader.Quality
		want    string
	}{
		{downloader.QualityLow, "worst[ext=mp4]"},
		{downloader.QualityMedium, "worst[height<=720][ext=mp4]"},
		{downloader.QualityHigh, "best[height<=1080][ext=mp4]"},
		{downloader.QualityHighest, "best[ext=mp4]/best"},
		// Unmapped tiers fall back to the high policy.
		{downloader.Quality("ultra"), "best[height<=1080][ext=mp4]"},
	}
	for _, tt := range tests {
		t.Run(string(tt.quality), func(t *testing.T) {
			f := &captureFetcher{staged: &downloader.StagedArtifact{Path: "/tmp/work/x.mp4", Size: 1, Format: "mp4"}}
			s := NewYouTube(testOptions(f))

			_, err := s.Transfer(context.Background(), "dQw4w9WgXcQ", tt.quality, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, f.got.FormatSelector)
			assert.Equal(t, "https://www.youtube.com/watch?v=dQw4w9WgXcQ", f.got.URL)
			assert.Equal(t, "/tmp/work", f.got.WorkDir)
			assert.Contains(t, f.got.BaseName, "youtube_dQw4w9WgXcQ_")
		})
	}
}

func TestTikTokResolveID(t *testing.T) {
	s := NewTikTok(testOptions(&captureFetcher{}))

	tests := []struct {
		name    string
		url     string
		want    string
		wantErr bool
	}{
		{name: "canonical video", url: "https://www.tiktok.com/@someuser/video/7123456789012345678", want: "7123456789012345678"},
		{name: "vm short link", url: "https://vm.tiktok.com/ZMabc123/", want: "ZMabc123"},
		{name: "t short link", url: "https://www.tiktok.com/t/ZTabc987/", want: "ZTabc987"},
		{name: "unrelated host", url: "https://example.com/not-tiktok", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ResolveID(tt.url)
			if tt.wantErr {
				assert.ErrorIs(t, err, downloader.ErrNoIdentifier)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTikTokTransferURLReconstruction(t *testing.T) {
	f := &captureFetcher{staged: &downloader.StagedArtifact{Path: "/tmp/work/x.mp4", Size: 1, Format: "mp4"}}
	s := NewTikTok(testOptions(f))

	_, err := s.Transfer(context.Background(), "7123456789012345678", downloader.QualityHigh, nil)
	require.NoError(t, err)
	assert.Equal(t, "https://www.tiktok.com/@_/video/7123456789012345678", f.got.URL)

	_, err = s.Transfer(context.Background(), "ZMabc123", downloader.QualityHigh, nil)
	require.NoError(t, err)
	assert.Equal(t, "https://vm.tiktok.com/ZMabc123", f.got.URL)
}

func TestInstagramResolveID(t *testing.T) {
	s := NewInstagram(testOptions(&captureFetcher{}))

	got, err := s.ResolveID("https://www.instagram.com/p/Cabc123XYZ_/")
	require.NoError(t, err)
	assert.Equal(t, "Cabc123XYZ_", got)

	got, err = s.ResolveID("https://www.instagram.com/reel/Creel456/")
	require.NoError(t, err)
	assert.Equal(t, "Creel456", got)

	_, err = s.ResolveID("https://www.instagram.com/someuser/")
	assert.ErrorIs(t, err, downloader.ErrNoIdentifier)
}

func TestInstagramMetadataAlwaysUnavailable(t *testing.T) {
	s := NewInstagram(testOptions(&captureFetcher{}))

	_, err := s.FetchMetadata(context.Background(), "Cabc123")
	assert.ErrorIs(t, err, downloader.ErrMetadataUnavailable)
}

func TestFetchOEmbedMapsPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "json", r.URL.Query().Get("format"))
		assert.Equal(t, "https://www.youtube.com/watch?v=dQw4w9WgXcQ", r.URL.Query().Get("url"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"title":"Never Gonna Give You Up","author_name":"Rick Astley","thumbnail_url":"https://i.ytimg.com/vi/x/hq.jpg"}`))
	}))
	defer srv.Close()

	opts := Options{
		Fetcher:    &captureFetcher{},
		WorkDir:    "/tmp/work",
		HTTPClient: srv.Client(),
	}.withDefaults()

	md, err := fetchOEmbed(context.Background(), opts, srv.URL, "https://www.youtube.com/watch?v=dQw4w9WgXcQ")
	require.NoError(t, err)
	assert.Equal(t, "Never Gonna Give You Up", md.Title)
	assert.Equal(t, "Rick Astley", md.Description)
	assert.Equal(t, "https://i.ytimg.com/vi/x/hq.jpg", md.ThumbnailURL)
}

func TestFetchOEmbedNon200IsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	opts := Options{
		Fetcher:    &captureFetcher{},
		WorkDir:    "/tmp/work",
		HTTPClient: srv.Client(),
	}.withDefaults()

	_, err := fetchOEmbed(context.Background(), opts, srv.URL, "https://www.youtube.com/watch?v=x")
	assert.ErrorIs(t, err, downloader.ErrMetadataUnavailable)
}
