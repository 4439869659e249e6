package strategies

import (
	"context"
	"fmt"
	"regexp"

	"github.com/3leaps/mediagrab/pkg/downloader"
)

// instagramIDPatterns match post and reel shortcodes.
var instagramIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`instagram\.com/p/([a-zA-Z0-9_-]+)`),
	regexp.MustCompile(`instagram\.com/reel/([a-zA-Z0-9_-]+)`),
}

// Instagram implements the strategy for instagram.com post and reel
// URLs.
type Instagram struct {
	opts Options
}

func NewInstagram(opts Options) *Instagram {
	return &Instagram{opts: opts.withDefaults()}
}

func (s *Instagram) Platform() downloader.Platform { return downloader.PlatformInstagram }

func (s *Instagram) ResolveID(rawURL string) (string, error) {
	for _, p := range instagramIDPatterns {
		if m := p.FindStringSubmatch(rawURL); m != nil {
			return m[1], nil
		}
	}
	return "", &downloader.Error{
		Op:       "ResolveID",
		Platform: downloader.PlatformInstagram,
		Err:      downloader.ErrNoIdentifier,
	}
}

// FetchMetadata always reports unavailable: Instagram's oEmbed endpoint
// requires an app token. Jobs proceed without metadata.
func (s *Instagram) FetchMetadata(ctx context.Context, id string) (*downloader.Metadata, error) {
	return nil, fmt.Errorf("%w: instagram oembed requires an app token", downloader.ErrMetadataUnavailable)
}

func (s *Instagram) Transfer(ctx context.Context, id string, quality downloader.Quality, progress downloader.ProgressFunc) (*downloader.StagedArtifact, error) {
	req := downloader.FetchRequest{
		URL:            "https://www.instagram.com/p/" + id + "/",
		FormatSelector: "best[ext=mp4]/best",
		WorkDir:        s.opts.WorkDir,
		BaseName:       fmt.Sprintf("instagram_%s_%s", id, shortID()),
	}
	return s.opts.Fetcher.Fetch(ctx, req, progress)
}
