package strategies

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/3leaps/mediagrab/pkg/downloader"
)

// youtubeIDPatterns match the watch, short-link, and embed URL forms.
// Video IDs are always 11 characters.
var youtubeIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?:youtube\.com/watch\?v=|youtu\.be/|youtube\.com/embed/)([a-zA-Z0-9_-]{11})`),
	regexp.MustCompile(`youtube\.com/watch\?.*v=([a-zA-Z0-9_-]{11})`),
}

// youtubeSelectors maps quality tiers to format selection expressions.
var youtubeSelectors = map[downloader.Quality]string{
	downloader.QualityLow:     "worst[ext=mp4]",
	downloader.QualityMedium:  "worst[height<=720][ext=mp4]",
	downloader.QualityHigh:    "best[height<=1080][ext=mp4]",
	downloader.QualityHighest: "best[ext=mp4]/best",
}

// YouTube implements the strategy for youtube.com and youtu.be URLs.
type YouTube struct {
	opts Options
}

func NewYouTube(opts Options) *YouTube {
	return &YouTube{opts: opts.withDefaults()}
}

func (s *YouTube) Platform() downloader.Platform { return downloader.PlatformYouTube }

// ResolveID extracts the 11-character video ID from a source URL.
func (s *YouTube) ResolveID(rawURL string) (string, error) {
	for _, p := range youtubeIDPatterns {
		if m := p.FindStringSubmatch(rawURL); m != nil {
			return m[1], nil
		}
	}
	return "", &downloader.Error{
		Op:       "ResolveID",
		Platform: downloader.PlatformYouTube,
		Err:      downloader.ErrNoIdentifier,
	}
}

func (s *YouTube) FetchMetadata(ctx context.Context, id string) (*downloader.Metadata, error) {
	return fetchOEmbed(ctx, s.opts, "https://www.youtube.com/oembed", watchURL(id))
}

func (s *YouTube) Transfer(ctx context.Context, id string, quality downloader.Quality, progress downloader.ProgressFunc) (*downloader.StagedArtifact, error) {
	req := downloader.FetchRequest{
		URL:            watchURL(id),
		FormatSelector: selectorFor(youtubeSelectors, quality),
		WorkDir:        s.opts.WorkDir,
		BaseName:       fmt.Sprintf("youtube_%s_%s", id, shortID()),
	}
	return s.opts.Fetcher.Fetch(ctx, req, progress)
}

func watchURL(id string) string {
	return "https://www.youtube.com/watch?v=" + id
}

// shortID returns an 8-character random suffix for staging file names.
func shortID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
}
