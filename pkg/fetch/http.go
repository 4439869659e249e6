package fetch

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/3leaps/mediagrab/pkg/downloader"
)

// HTTP fetches directly addressable media over plain HTTP. The format
// selector is ignored; the server decides what it serves. Used for
// platforms whose resolved identifier is itself a media URL, and in
// tests.
type HTTP struct {
	client *http.Client
}

func NewHTTP(client *http.Client) *HTTP {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTP{client: client}
}

func (f *HTTP) Fetch(ctx context.Context, req downloader.FetchRequest, progress downloader.ProgressFunc) (*downloader.StagedArtifact, error) {
	if err := os.MkdirAll(req.WorkDir, 0o755); err != nil {
		return nil, fmt.Errorf("create working dir: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := f.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", req.URL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: status %d", req.URL, resp.StatusCode)
	}

	format := formatFromResponse(resp, req.URL)
	path := filepath.Join(req.WorkDir, req.BaseName+"."+format)
	out, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create staged file: %w", err)
	}

	n, err := io.Copy(out, &progressReader{
		r:        resp.Body,
		total:    resp.ContentLength,
		progress: progress,
	})
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(path)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("stream %s: %w", req.URL, err)
	}

	if progress != nil {
		progress(100)
	}
	return &downloader.StagedArtifact{Path: path, Size: n, Format: format}, nil
}

// progressReader reports percent read against a known content length.
// With an unknown length no intermediate progress is emitted.
type progressReader struct {
	r        io.Reader
	total    int64
	read     int64
	last     int
	progress downloader.ProgressFunc
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.read += int64(n)
	if p.progress != nil && p.total > 0 {
		pct := int(p.read * 100 / p.total)
		if pct > p.last {
			p.last = pct
			p.progress(pct)
		}
	}
	return n, err
}

func formatFromResponse(resp *http.Response, rawURL string) string {
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		if mt, _, err := mime.ParseMediaType(ct); err == nil {
			if idx := strings.IndexByte(mt, '/'); idx > 0 && mt[:idx] == "video" {
				return mt[idx+1:]
			}
		}
	}
	if ext := filepath.Ext(rawURL); len(ext) > 1 && len(ext) <= 5 {
		return strings.ToLower(ext[1:])
	}
	return "mp4"
}
