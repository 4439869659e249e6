// Package ratelimit implements the per-platform admission gate.
//
// The gate admits a job by handing it to the store together with the
// trailing-window cutoff (not aligned to clock boundaries) and the
// configured ceiling; the store counts and inserts in one transaction,
// so admission cannot race with a concurrent insert for the same
// origin/platform. A ceiling of zero or a missing configuration means
// "no limit": the gate fails open, and strict denial-by-default
// requires an explicit positive ceiling.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/3leaps/mediagrab/pkg/downloader"
)

// DefaultWindow is the trailing window jobs are counted over.
const DefaultWindow = time.Hour

// Creator persists an admitted job, denying with
// downloader.ErrRateLimited when the origin/platform pair already has
// ceiling jobs since the cutoff. Implemented by jobstore.Store.
type Creator interface {
	CreateJobWithinLimit(ctx context.Context, job *downloader.Job, ceiling int, since time.Time) error
}

// Limiter is the admission gate.
type Limiter struct {
	creator Creator
	window  time.Duration
	now     func() time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithWindow overrides the trailing counting window.
func WithWindow(d time.Duration) Option {
	return func(l *Limiter) { l.window = d }
}

// WithClock overrides the wall clock, for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

func New(creator Creator, opts ...Option) *Limiter {
	l := &Limiter{
		creator: creator,
		window:  DefaultWindow,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Admit persists the job if its origin/platform pair is under the
// hourly ceiling. Returns nil once the job is stored, or an error
// wrapping downloader.ErrRateLimited when the ceiling is reached, in
// which case nothing is written.
func (l *Limiter) Admit(ctx context.Context, job *downloader.Job, ceiling int) error {
	if ceiling <= 0 {
		return l.creator.CreateJobWithinLimit(ctx, job, 0, time.Time{})
	}

	since := l.now().Add(-l.window)
	err := l.creator.CreateJobWithinLimit(ctx, job, ceiling, since)
	if errors.Is(err, downloader.ErrRateLimited) {
		return &downloader.Error{
			Op:       "Admit",
			Platform: job.Platform,
			Err:      fmt.Errorf("%w: %d downloads per hour", downloader.ErrRateLimited, ceiling),
		}
	}
	return err
}
