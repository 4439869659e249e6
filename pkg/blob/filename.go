package blob

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	unsafeChars = regexp.MustCompile(`[^\w\s-]`)
	dashRuns    = regexp.MustCompile(`[-\s]+`)
)

// maxTitleLen bounds the sanitized title portion of generated filenames.
const maxTitleLen = 50

// SafeFilename generates a collision-resistant filename for a completed
// artifact: sanitized title, timestamp, and a random suffix, joined with
// the platform name and the format extension.
//
//	youtube_never-gonna-give-you-up_20260115_093045_a1b2c3d4.mp4
func SafeFilename(platform, title, ext string, now time.Time) string {
	safe := unsafeChars.ReplaceAllString(title, "")
	safe = dashRuns.ReplaceAllString(safe, "-")
	safe = strings.Trim(safe, "-")
	if len(safe) > maxTitleLen {
		safe = safe[:maxTitleLen]
	}

	suffix := uuid.New().String()[:8]
	stamp := now.UTC().Format("20060102_150405")

	if ext == "" {
		ext = "mp4"
	}
	if safe == "" {
		return fmt.Sprintf("%s_%s_%s.%s", platform, stamp, suffix, ext)
	}
	return fmt.Sprintf("%s_%s_%s_%s.%s", platform, safe, stamp, suffix, ext)
}

// ContentKey derives the storage key for a completed artifact. Artifacts
// are grouped by platform; working files never use this layout and are
// never exposed externally.
func ContentKey(platform, filename string) string {
	return platform + "/" + filename
}
