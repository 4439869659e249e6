// Package sweeper implements retention: removing old terminal jobs
// together with their artifacts, and clearing abandoned files from the
// working area.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"

	"github.com/3leaps/mediagrab/pkg/blob"
	"github.com/3leaps/mediagrab/pkg/downloader"
)

// ErrSweepInProgress is returned when a sweep is requested while another
// one is still running. Runs never overlap.
var ErrSweepInProgress = errors.New("sweep already in progress")

// Store is the persistence surface the sweeper needs. Implemented by
// jobstore.Store.
type Store interface {
	SweepCandidates(ctx context.Context, cutoff time.Time, keepCompleted bool) ([]downloader.Job, error)
	DeleteJob(ctx context.Context, id string) error
}

// Params controls one sweep run.
type Params struct {
	// MaxAge is the minimum age of a terminal job before it is eligible
	// for removal, measured from CreatedAt.
	MaxAge time.Duration

	// KeepCompleted restricts the sweep to failed jobs.
	KeepCompleted bool

	// DryRun reports what would be removed without removing anything.
	DryRun bool
}

// Report summarizes one sweep run. A sweep that removed some items and
// failed on others reports both; per-item failures never abort the run.
type Report struct {
	Scanned    int      `json:"scanned"`
	Removed    int      `json:"removed"`
	BytesFreed int64    `json:"bytes_freed"`
	DryRun     bool     `json:"dry_run"`
	Errors     []string `json:"errors,omitempty"`
}

// Sweeper removes expired terminal jobs and their artifacts. Safe for
// concurrent use; overlapping runs are rejected rather than queued.
type Sweeper struct {
	store     Store
	artifacts blob.Store
	logger    *zap.Logger
	now       func() time.Time

	mu sync.Mutex
}

// Option configures a Sweeper.
type Option func(*Sweeper)

// WithClock overrides the wall clock, for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) { s.now = now }
}

func New(store Store, artifacts blob.Store, logger *zap.Logger, opts ...Option) *Sweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Sweeper{
		store:     store,
		artifacts: artifacts,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sweep removes terminal jobs older than MaxAge along with their
// artifacts. Non-terminal jobs are never candidates regardless of age.
// BytesFreed counts artifact sizes of successfully removed jobs.
func (s *Sweeper) Sweep(ctx context.Context, p Params) (*Report, error) {
	if !s.mu.TryLock() {
		return nil, ErrSweepInProgress
	}
	defer s.mu.Unlock()

	cutoff := s.now().UTC().Add(-p.MaxAge)
	jobs, err := s.store.SweepCandidates(ctx, cutoff, p.KeepCompleted)
	if err != nil {
		return nil, fmt.Errorf("list sweep candidates: %w", err)
	}

	report := &Report{Scanned: len(jobs), DryRun: p.DryRun}
	for i := range jobs {
		job := &jobs[i]
		if p.DryRun {
			report.Removed++
			report.BytesFreed += job.FileSize
			continue
		}
		if err := s.remove(ctx, job); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", job.ID, err))
			s.logger.Warn("sweep item failed",
				zap.String("job_id", job.ID),
				zap.Error(err))
			continue
		}
		report.Removed++
		report.BytesFreed += job.FileSize
	}

	s.logger.Info("sweep finished",
		zap.Int("scanned", report.Scanned),
		zap.Int("removed", report.Removed),
		zap.Int64("bytes_freed", report.BytesFreed),
		zap.Bool("dry_run", report.DryRun),
		zap.Int("errors", len(report.Errors)))
	return report, nil
}

// remove deletes the artifact first, then the record. A missing
// artifact is not an error; an undeletable one leaves the record in
// place so a later sweep retries.
func (s *Sweeper) remove(ctx context.Context, job *downloader.Job) error {
	if job.HasArtifact() {
		if err := s.artifacts.Delete(ctx, job.ArtifactKey); err != nil && !blob.IsNotFound(err) {
			return fmt.Errorf("delete artifact %s: %w", job.ArtifactKey, err)
		}
	}
	if err := s.store.DeleteJob(ctx, job.ID); err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	return nil
}

// CleanWorkingArea removes staging files older than maxAge from workDir.
// Abandoned partial downloads accumulate there when transfers are
// interrupted hard (process kill, host crash).
func (s *Sweeper) CleanWorkingArea(workDir string, maxAge time.Duration) (*Report, error) {
	matches, err := doublestar.FilepathGlob(filepath.Join(workDir, "**"))
	if err != nil {
		return nil, fmt.Errorf("scan working area: %w", err)
	}

	cutoff := s.now().Add(-maxAge)
	report := &Report{}
	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			continue
		}
		report.Scanned++
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(path); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", path, err))
			continue
		}
		report.Removed++
		report.BytesFreed += info.Size()
	}
	return report, nil
}
