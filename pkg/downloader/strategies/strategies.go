// Package strategies provides the built-in platform strategy
// implementations.
//
// Each strategy owns its URL patterns and quality policy and delegates
// the raw byte transfer to an injected MediaFetcher, so extraction
// logic stays testable without network access or external tooling.
package strategies

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/3leaps/mediagrab/pkg/downloader"
)

// Options carries the collaborators shared by all built-in strategies.
type Options struct {
	// Fetcher performs raw transfers into the working area. Required.
	Fetcher downloader.MediaFetcher

	// WorkDir is the working-area directory staged files are created in.
	// Required.
	WorkDir string

	// HTTPClient is used for metadata lookups. Defaults to a client with
	// a 10s timeout.
	HTTPClient *http.Client

	// Limiter throttles outbound metadata requests across strategies.
	// Defaults to 2 requests/second.
	Limiter *rate.Limiter
}

func (o Options) withDefaults() Options {
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if o.Limiter == nil {
		o.Limiter = rate.NewLimiter(rate.Limit(2), 2)
	}
	return o
}

// oembedResponse is the subset of the oEmbed payload the strategies use.
type oembedResponse struct {
	Title        string `json:"title"`
	AuthorName   string `json:"author_name"`
	ThumbnailURL string `json:"thumbnail_url"`
}

// fetchOEmbed performs a rate-limited oEmbed lookup and maps the payload
// into Metadata. Any failure is reported as ErrMetadataUnavailable.
func fetchOEmbed(ctx context.Context, o Options, endpoint, mediaURL string) (*downloader.Metadata, error) {
	if err := o.Limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", downloader.ErrMetadataUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		endpoint+"?format=json&url="+url.QueryEscape(mediaURL), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", downloader.ErrMetadataUnavailable, err)
	}

	resp, err := o.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", downloader.ErrMetadataUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: oembed status %d", downloader.ErrMetadataUnavailable, resp.StatusCode)
	}

	var payload oembedResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: decode oembed: %v", downloader.ErrMetadataUnavailable, err)
	}

	return &downloader.Metadata{
		Title:        payload.Title,
		Description:  payload.AuthorName,
		ThumbnailURL: payload.ThumbnailURL,
	}, nil
}

// selectorFor resolves a quality tier against a platform's selector map,
// falling back to the high-tier policy for unmapped tiers.
func selectorFor(selectors map[downloader.Quality]string, q downloader.Quality) string {
	if sel, ok := selectors[q]; ok {
		return sel
	}
	return selectors[downloader.QualityHigh]
}
