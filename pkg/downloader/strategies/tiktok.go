package strategies

import (
	"context"
	"fmt"
	"regexp"

	"github.com/3leaps/mediagrab/pkg/downloader"
)

// tiktokIDPatterns match the canonical video URL plus the two
// short-link forms. Canonical IDs are numeric; short-link codes are
// alphanumeric.
var tiktokIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`tiktok\.com/@[^/]+/video/(\d+)`),
	regexp.MustCompile(`vm\.tiktok\.com/([a-zA-Z0-9]+)`),
	regexp.MustCompile(`tiktok\.com/t/([a-zA-Z0-9]+)`),
}

var tiktokNumericID = regexp.MustCompile(`^\d+$`)

// TikTok implements the strategy for tiktok.com URLs. All quality tiers
// map to the single best-available selector; TikTok does not expose
// tiered formats.
type TikTok struct {
	opts Options
}

func NewTikTok(opts Options) *TikTok {
	return &TikTok{opts: opts.withDefaults()}
}

func (s *TikTok) Platform() downloader.Platform { return downloader.PlatformTikTok }

func (s *TikTok) ResolveID(rawURL string) (string, error) {
	for _, p := range tiktokIDPatterns {
		if m := p.FindStringSubmatch(rawURL); m != nil {
			return m[1], nil
		}
	}
	return "", &downloader.Error{
		Op:       "ResolveID",
		Platform: downloader.PlatformTikTok,
		Err:      downloader.ErrNoIdentifier,
	}
}

func (s *TikTok) FetchMetadata(ctx context.Context, id string) (*downloader.Metadata, error) {
	return fetchOEmbed(ctx, s.opts, "https://www.tiktok.com/oembed", tiktokURL(id))
}

func (s *TikTok) Transfer(ctx context.Context, id string, quality downloader.Quality, progress downloader.ProgressFunc) (*downloader.StagedArtifact, error) {
	req := downloader.FetchRequest{
		URL:            tiktokURL(id),
		FormatSelector: "best[ext=mp4]/best",
		WorkDir:        s.opts.WorkDir,
		BaseName:       fmt.Sprintf("tiktok_%s", shortID()),
	}
	return s.opts.Fetcher.Fetch(ctx, req, progress)
}

// tiktokURL reconstructs a fetchable URL from a resolved identifier.
// Numeric IDs address the video directly (the username segment is not
// significant); short-link codes go back through the redirector.
func tiktokURL(id string) string {
	if tiktokNumericID.MatchString(id) {
		return "https://www.tiktok.com/@_/video/" + id
	}
	return "https://vm.tiktok.com/" + id
}
