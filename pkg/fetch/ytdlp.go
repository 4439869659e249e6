// Package fetch provides MediaFetcher implementations: an external
// yt-dlp runner for the real platforms and a plain HTTP streamer for
// directly addressable media.
package fetch

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/3leaps/mediagrab/pkg/downloader"
)

// DefaultBinary is the yt-dlp executable looked up on PATH.
const DefaultBinary = "yt-dlp"

// ytdlpProgress matches the percentage on yt-dlp's per-line progress
// output (enabled with --newline).
var ytdlpProgress = regexp.MustCompile(`\[download\]\s+(\d+(?:\.\d+)?)%`)

// YTDLP fetches media by shelling out to yt-dlp. The staged file is
// written under the request's working directory; every failure path
// removes whatever partial output was produced.
type YTDLP struct {
	binary string
	logger *zap.Logger
}

func NewYTDLP(binary string, logger *zap.Logger) *YTDLP {
	if binary == "" {
		binary = DefaultBinary
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &YTDLP{binary: binary, logger: logger}
}

func (f *YTDLP) Fetch(ctx context.Context, req downloader.FetchRequest, progress downloader.ProgressFunc) (*downloader.StagedArtifact, error) {
	if err := os.MkdirAll(req.WorkDir, 0o755); err != nil {
		return nil, fmt.Errorf("create working dir: %w", err)
	}

	outTemplate := filepath.Join(req.WorkDir, req.BaseName+".%(ext)s")
	args := []string{
		"--newline",
		"--no-warnings",
		"--no-playlist",
		"-f", req.FormatSelector,
		"-o", outTemplate,
		req.URL,
	}

	cmd := exec.CommandContext(ctx, f.binary, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("pipe %s output: %w", f.binary, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", f.binary, err)
	}

	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		line := scanner.Text()
		if m := ytdlpProgress.FindStringSubmatch(line); m != nil && progress != nil {
			if pct, err := strconv.ParseFloat(m[1], 64); err == nil {
				progress(int(pct))
			}
		}
	}

	if err := cmd.Wait(); err != nil {
		f.removePartial(req)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%s failed: %w: %s", f.binary, err, tail(stderr.String(), 512))
	}

	staged, err := f.findStaged(req)
	if err != nil {
		f.removePartial(req)
		return nil, err
	}
	if progress != nil {
		progress(100)
	}
	return staged, nil
}

// findStaged locates the output file. yt-dlp substitutes the real
// extension into the template, so the name is known only by prefix.
func (f *YTDLP) findStaged(req downloader.FetchRequest) (*downloader.StagedArtifact, error) {
	matches, err := filepath.Glob(filepath.Join(req.WorkDir, req.BaseName+".*"))
	if err != nil {
		return nil, fmt.Errorf("locate staged file: %w", err)
	}
	for _, path := range matches {
		if strings.HasSuffix(path, ".part") || strings.HasSuffix(path, ".ytdl") {
			continue
		}
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		return &downloader.StagedArtifact{
			Path:   path,
			Size:   info.Size(),
			Format: strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), "."),
		}, nil
	}
	return nil, fmt.Errorf("%s produced no output file for %s", f.binary, req.URL)
}

func (f *YTDLP) removePartial(req downloader.FetchRequest) {
	matches, err := filepath.Glob(filepath.Join(req.WorkDir, req.BaseName+".*"))
	if err != nil {
		return
	}
	for _, path := range matches {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			f.logger.Warn("remove partial download failed",
				zap.String("path", path),
				zap.Error(err))
		}
	}
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
