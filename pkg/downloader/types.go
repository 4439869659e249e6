// Package downloader defines the core domain model for media fetch jobs:
// the job lifecycle, the platform strategy contract, and the error taxonomy.
//
// The package is persistence- and transport-agnostic. Stores, strategies,
// and the orchestrator build on these types without depending on each other.
package downloader

import "time"

// Platform identifies an external source site with its own extraction
// rules and limits.
type Platform string

const (
	PlatformYouTube   Platform = "youtube"
	PlatformFacebook  Platform = "facebook"
	PlatformTikTok    Platform = "tiktok"
	PlatformInstagram Platform = "instagram"
	PlatformTwitter   Platform = "twitter"
)

// Platforms returns the closed set of known platforms, in display order.
func Platforms() []Platform {
	return []Platform{
		PlatformYouTube,
		PlatformFacebook,
		PlatformTikTok,
		PlatformInstagram,
		PlatformTwitter,
	}
}

// Valid reports whether p is a member of the known platform set.
func (p Platform) Valid() bool {
	switch p {
	case PlatformYouTube, PlatformFacebook, PlatformTikTok, PlatformInstagram, PlatformTwitter:
		return true
	}
	return false
}

func (p Platform) String() string { return string(p) }

// Quality is the requested quality tier for a transfer. Tiers map to
// platform-specific selection policies; unmapped tiers fall back to
// the QualityHigh policy.
type Quality string

const (
	QualityLow     Quality = "low"
	QualityMedium  Quality = "medium"
	QualityHigh    Quality = "high"
	QualityHighest Quality = "highest"
)

// DefaultQuality is applied when a request omits the quality tier.
const DefaultQuality = QualityHigh

// Valid reports whether q is a known quality tier.
func (q Quality) Valid() bool {
	switch q {
	case QualityLow, QualityMedium, QualityHigh, QualityHighest:
		return true
	}
	return false
}

func (q Quality) String() string { return string(q) }

// State is the lifecycle state of a job.
//
// NOTE: These values are persisted and are part of the stable on-disk
// contract.
type State string

const (
	StatePending     State = "pending"
	StateDownloading State = "downloading"
	StateCompleted   State = "completed"
	StateFailed      State = "failed"
)

// Terminal reports whether the state admits no further transitions.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

func (s State) String() string { return string(s) }

// MaxSourceURLLen bounds the accepted source URL length.
const MaxSourceURLLen = 2048

// Job is one media-fetch request and its lifecycle record.
//
// State transitions are owned exclusively by the orchestrator; the
// retrieval path only touches AccessCount.
type Job struct {
	ID        string
	Platform  Platform
	SourceURL string
	Quality   Quality

	State       State
	Progress    int // 0-100, monotone while downloading, 100 iff completed
	ErrorDetail string

	// Media metadata, populated once available, never before.
	Title           string
	Description     string
	DurationSeconds int64
	ThumbnailURL    string

	// Artifact reference, populated only on success.
	ArtifactKey string
	FileSize    int64
	Format      string

	AccessCount int64

	// RequesterID is empty for anonymous requests.
	RequesterID   string
	RequesterAddr string
	UserAgent     string

	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
}

// HasArtifact reports whether the job has a committed artifact reference.
func (j *Job) HasArtifact() bool {
	return j.ArtifactKey != ""
}

// PlatformConfig is the administrative configuration for one platform.
// At most one configuration exists per platform identifier. It is owned
// by provisioning and read-only everywhere else.
type PlatformConfig struct {
	Platform         Platform
	Active           bool
	MaxFileSizeBytes int64
	Formats          []string
	RateLimitPerHour int
	APIKeyRequired   bool
	APIKey           string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// RetrievalRecord is an append-only log entry recording one successful
// artifact retrieval. Records are never mutated and are deleted only by
// cascading job deletion.
type RetrievalRecord struct {
	ID            int64
	JobID         string
	RequesterID   string
	RequesterAddr string
	RetrievedAt   time.Time
}

// Metadata is the best-effort descriptive information a strategy fetches
// for a resolved media identifier.
type Metadata struct {
	Title           string
	Description     string
	DurationSeconds int64
	ThumbnailURL    string
}

// StagedArtifact is the product of a strategy transfer: a fully
// downloaded file in the working area, not yet committed to content
// storage. The orchestrator promotes it and removes the staging file.
type StagedArtifact struct {
	// Path is the absolute path of the staged file in the working area.
	Path string

	// Size is the staged file size in bytes.
	Size int64

	// Format is the file format extension without the dot (e.g. "mp4").
	Format string
}
