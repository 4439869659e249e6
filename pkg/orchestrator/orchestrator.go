// Package orchestrator drives download jobs through their lifecycle.
//
// A job enters as a creation request, passes the admission gate
// (validation + rate limit), and is persisted in the pending state.
// Workers pick pending jobs up, invoke the platform strategy, stream
// progress into the job record, and finalize the job in exactly one
// terminal state. The orchestrator never leaves a job non-terminal
// after processing returns, even on panics inside a strategy.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/3leaps/mediagrab/pkg/blob"
	"github.com/3leaps/mediagrab/pkg/downloader"
)

// Store is the job persistence surface the orchestrator depends on.
// Implemented by jobstore.Store.
type Store interface {
	GetJob(ctx context.Context, id string) (*downloader.Job, error)
	MarkDownloading(ctx context.Context, id string, now time.Time) error
	SetProgress(ctx context.Context, id string, percent int, now time.Time) error
	SetMetadata(ctx context.Context, id string, md *downloader.Metadata, now time.Time) error
	CompleteJob(ctx context.Context, id, artifactKey string, size int64, format string, now time.Time) error
	FailJob(ctx context.Context, id, detail string, now time.Time) error
	DeleteJob(ctx context.Context, id string) error
}

// Registry resolves platforms to configuration and strategy.
// Implemented by platform.Registry.
type Registry interface {
	Lookup(ctx context.Context, p downloader.Platform) (*downloader.PlatformConfig, downloader.Strategy, error)
}

// Gate admits and persists a new job in one step, so the rate-limit
// check and the insert it guards cannot interleave with a concurrent
// submission. Implemented by ratelimit.Limiter.
type Gate interface {
	Admit(ctx context.Context, job *downloader.Job, ceiling int) error
}

// Config tunes the worker pool and transfer bounds.
type Config struct {
	// Workers is the number of concurrent job processors. Default: 4.
	Workers int

	// QueueDepth is the submission channel buffer. Default: 64.
	QueueDepth int

	// TransferTimeout bounds a single job's processing time.
	// Zero disables the timeout. Default: 30m.
	TransferTimeout time.Duration
}

// DefaultConfig returns the default orchestrator configuration.
func DefaultConfig() Config {
	return Config{
		Workers:         4,
		QueueDepth:      64,
		TransferTimeout: 30 * time.Minute,
	}
}

// Orchestrator owns job state transitions. At most one worker processes
// a given job; unrelated jobs proceed independently.
type Orchestrator struct {
	store     Store
	registry  Registry
	gate      Gate
	artifacts blob.Store
	logger    *zap.Logger
	now       func() time.Time
	cfg       Config

	queue chan string
	wg    sync.WaitGroup

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClock overrides the wall clock, for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New creates an orchestrator. Call Start to launch the worker pool;
// Process may also be called directly for synchronous one-shot runs.
func New(store Store, registry Registry, gate Gate, artifacts blob.Store, logger *zap.Logger, cfg Config, opts ...Option) *Orchestrator {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultConfig().Workers
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = DefaultConfig().QueueDepth
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	o := &Orchestrator{
		store:     store,
		registry:  registry,
		gate:      gate,
		artifacts: artifacts,
		logger:    logger,
		now:       time.Now,
		cfg:       cfg,
		queue:     make(chan string, cfg.QueueDepth),
		cancels:   make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Start launches the worker pool. Workers exit when ctx is cancelled;
// Wait blocks until they have drained.
func (o *Orchestrator) Start(ctx context.Context) {
	for i := 0; i < o.cfg.Workers; i++ {
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case jobID := <-o.queue:
					if err := o.Process(ctx, jobID); err != nil {
						o.logger.Warn("job processing ended with error",
							zap.String("job_id", jobID),
							zap.Error(err))
					}
				}
			}
		}()
	}
}

// Wait blocks until all workers have stopped.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Request is a job creation request.
type Request struct {
	Platform      downloader.Platform
	SourceURL     string
	Quality       downloader.Quality
	RequesterID   string
	RequesterAddr string
	UserAgent     string
}

// Submit validates the request, admits the job through the rate gate
// (which persists it in the pending state), and hands it to the worker
// pool. It returns immediately with the created record; progress and
// state are observed by polling the store.
//
// Validation and rate-limit failures never create a job record.
func (o *Orchestrator) Submit(ctx context.Context, req Request) (*downloader.Job, error) {
	if err := validateRequest(&req); err != nil {
		return nil, err
	}

	cfg, _, err := o.registry.Lookup(ctx, req.Platform)
	if err != nil {
		return nil, err
	}

	now := o.now().UTC()
	job := &downloader.Job{
		ID:            uuid.New().String(),
		Platform:      req.Platform,
		SourceURL:     req.SourceURL,
		Quality:       req.Quality,
		State:         downloader.StatePending,
		RequesterID:   req.RequesterID,
		RequesterAddr: req.RequesterAddr,
		UserAgent:     req.UserAgent,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := o.gate.Admit(ctx, job, cfg.RateLimitPerHour); err != nil {
		return nil, err
	}

	select {
	case o.queue <- job.ID:
	case <-ctx.Done():
		// The record exists but no worker will pick it up in this
		// process; fail it so it cannot linger in pending forever.
		_ = o.store.FailJob(context.WithoutCancel(ctx), job.ID, "submission aborted", o.now().UTC())
		return nil, ctx.Err()
	}

	o.logger.Info("job submitted",
		zap.String("job_id", job.ID),
		zap.String("platform", job.Platform.String()),
		zap.String("quality", job.Quality.String()))

	return job, nil
}

func validateRequest(req *Request) error {
	raw := strings.TrimSpace(req.SourceURL)
	if raw == "" || len(raw) > downloader.MaxSourceURLLen {
		return &downloader.Error{Op: "Submit", Platform: req.Platform, Err: downloader.ErrInvalidURL}
	}
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return &downloader.Error{Op: "Submit", Platform: req.Platform, Err: downloader.ErrInvalidURL}
	}
	req.SourceURL = raw

	if req.Quality == "" {
		req.Quality = downloader.DefaultQuality
	}
	if !req.Quality.Valid() {
		return &downloader.Error{Op: "Submit", Platform: req.Platform, Err: downloader.ErrInvalidQuality}
	}
	return nil
}

// Process runs one job to a terminal state. It is safe to call directly
// for synchronous one-shot execution. The job must be pending.
func (o *Orchestrator) Process(ctx context.Context, jobID string) (err error) {
	job, err := o.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.State != downloader.StatePending {
		return fmt.Errorf("job %s is %s, not pending", jobID, job.State)
	}

	cfg, strat, lookupErr := o.registry.Lookup(ctx, job.Platform)
	if lookupErr != nil {
		o.failJob(jobID, lookupErr.Error())
		return lookupErr
	}

	if err := o.store.MarkDownloading(ctx, jobID, o.now().UTC()); err != nil {
		return fmt.Errorf("claim job: %w", err)
	}

	var jobCtx context.Context
	var cancel context.CancelFunc
	if o.cfg.TransferTimeout > 0 {
		jobCtx, cancel = context.WithTimeout(ctx, o.cfg.TransferTimeout)
	} else {
		jobCtx, cancel = context.WithCancel(ctx)
	}
	o.registerCancel(jobID, cancel)

	finalized := false
	defer func() {
		o.unregisterCancel(jobID)
		cancel()
		if r := recover(); r != nil {
			o.failJob(jobID, fmt.Sprintf("internal error: %v", r))
			err = fmt.Errorf("panic during processing: %v", r)
			return
		}
		if !finalized {
			// Belt and braces: no exit path should reach here without
			// a terminal transition, but a job must never stay stuck.
			o.failJob(jobID, "processing ended without result")
		}
	}()

	finalized = o.run(jobCtx, job, cfg, strat)
	return nil
}

// run executes the resolve/metadata/transfer/commit sequence and always
// drives the job to a terminal state. It returns true once the job is
// terminal.
func (o *Orchestrator) run(ctx context.Context, job *downloader.Job, cfg *downloader.PlatformConfig, strat downloader.Strategy) bool {
	log := o.logger.With(
		zap.String("job_id", job.ID),
		zap.String("platform", job.Platform.String()))

	id, err := strat.ResolveID(job.SourceURL)
	if err != nil {
		o.failJob(job.ID, fmt.Sprintf("%v: %s", downloader.ErrNoIdentifier, job.SourceURL))
		return true
	}

	if err := o.checkCancelled(ctx, job.ID); err != nil {
		return true
	}

	// Metadata is cosmetic: its absence never fails the job.
	md, err := strat.FetchMetadata(ctx, id)
	if err != nil {
		log.Warn("metadata fetch failed", zap.Error(err))
	} else if md != nil {
		job.Title = md.Title
		if err := o.store.SetMetadata(ctx, job.ID, md, o.now().UTC()); err != nil {
			log.Warn("persist metadata failed", zap.Error(err))
		}
	}

	if err := o.checkCancelled(ctx, job.ID); err != nil {
		return true
	}

	staged, err := strat.Transfer(ctx, id, job.Quality, o.progressSink(job.ID))
	if err != nil {
		o.failJob(job.ID, classifyTransferError(ctx, err))
		return true
	}
	if staged == nil {
		o.failJob(job.ID, fmt.Sprintf("%v: no file returned from %s", downloader.ErrTransferFailed, job.Platform))
		return true
	}
	defer func() { _ = os.Remove(staged.Path) }()

	if cfg.MaxFileSizeBytes > 0 && staged.Size > cfg.MaxFileSizeBytes {
		o.failJob(job.ID, fmt.Sprintf("file size %d exceeds platform limit %d", staged.Size, cfg.MaxFileSizeBytes))
		return true
	}

	key, err := o.commitArtifact(ctx, job, staged)
	if err != nil {
		o.failJob(job.ID, fmt.Sprintf("%v: %v", downloader.ErrStorage, err))
		return true
	}

	if err := o.store.CompleteJob(ctx, job.ID, key, staged.Size, staged.Format, o.now().UTC()); err != nil {
		// The artifact is durable but the record is not finalized; the
		// reconcile pass can pick it up. Still force a terminal state.
		log.Error("finalize completed job failed", zap.Error(err))
		o.failJob(job.ID, fmt.Sprintf("%v: finalize: %v", downloader.ErrStorage, err))
		return true
	}

	log.Info("job completed",
		zap.String("artifact_key", key),
		zap.Int64("file_size", staged.Size),
		zap.String("format", staged.Format))
	return true
}

// commitArtifact promotes a staged working-area file into content
// storage and returns the content key. The staged file is left in place
// for the caller to remove.
func (o *Orchestrator) commitArtifact(ctx context.Context, job *downloader.Job, staged *downloader.StagedArtifact) (string, error) {
	f, err := os.Open(staged.Path)
	if err != nil {
		return "", fmt.Errorf("open staged artifact: %w", err)
	}
	defer func() { _ = f.Close() }()

	filename := blob.SafeFilename(job.Platform.String(), job.Title, staged.Format, o.now())
	key := blob.ContentKey(job.Platform.String(), filename)

	if err := o.artifacts.Save(ctx, key, f, staged.Size); err != nil {
		return "", err
	}
	return key, nil
}

// progressSink returns a ProgressFunc that clamps values into [0, 100],
// drops non-monotonic updates, and writes the rest to the job record.
func (o *Orchestrator) progressSink(jobID string) downloader.ProgressFunc {
	var mu sync.Mutex
	last := -1
	return func(percent int) {
		if percent < 0 {
			percent = 0
		}
		if percent > 100 {
			percent = 100
		}
		mu.Lock()
		if percent <= last {
			mu.Unlock()
			return
		}
		last = percent
		mu.Unlock()

		if err := o.store.SetProgress(context.Background(), jobID, percent, o.now().UTC()); err != nil {
			o.logger.Warn("progress update failed",
				zap.String("job_id", jobID),
				zap.Error(err))
		}
	}
}

// checkCancelled fails the job with a cancellation- or timeout-specific
// detail when the job context is done. Strategies also observe the
// context; this check covers the boundaries between discrete steps.
func (o *Orchestrator) checkCancelled(ctx context.Context, jobID string) error {
	if err := ctx.Err(); err != nil {
		o.failJob(jobID, classifyTransferError(ctx, err))
		return err
	}
	return nil
}

func classifyTransferError(ctx context.Context, err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return downloader.ErrTimeout.Error()
	case errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled):
		return downloader.ErrCancelled.Error()
	case errors.Is(err, downloader.ErrCancelled):
		return downloader.ErrCancelled.Error()
	default:
		return fmt.Sprintf("%v: %v", downloader.ErrTransferFailed, err)
	}
}

// failJob forces a terminal failed state. The store ignores the write
// if the job is already terminal. Uses a background context so
// finalization survives the job context being cancelled.
func (o *Orchestrator) failJob(jobID, detail string) {
	if err := o.store.FailJob(context.Background(), jobID, detail, o.now().UTC()); err != nil && !downloader.IsNotFound(err) {
		o.logger.Error("failed to finalize job",
			zap.String("job_id", jobID),
			zap.String("detail", detail),
			zap.Error(err))
	}
}

// Cancel requests cancellation of an in-flight job. The transfer stops
// promptly, partial artifacts are cleaned up, and the job finalizes as
// failed with a cancellation-specific detail.
func (o *Orchestrator) Cancel(jobID string) error {
	o.mu.Lock()
	cancel, ok := o.cancels[jobID]
	o.mu.Unlock()
	if !ok {
		return &downloader.Error{Op: "Cancel", JobID: jobID, Err: downloader.ErrNotFound}
	}
	cancel()
	return nil
}

func (o *Orchestrator) registerCancel(jobID string, cancel context.CancelFunc) {
	o.mu.Lock()
	o.cancels[jobID] = cancel
	o.mu.Unlock()
}

func (o *Orchestrator) unregisterCancel(jobID string) {
	o.mu.Lock()
	delete(o.cancels, jobID)
	o.mu.Unlock()
}

// Finalize applies an out-of-band completion signal for a job whose
// transfer ran outside the worker pool. Only terminal states are
// accepted.
func (o *Orchestrator) Finalize(ctx context.Context, jobID string, state downloader.State, errDetail string) error {
	if !state.Terminal() {
		return fmt.Errorf("state %q is not terminal", state)
	}
	job, err := o.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}

	now := o.now().UTC()
	if state == downloader.StateCompleted {
		return o.store.CompleteJob(ctx, jobID, job.ArtifactKey, job.FileSize, job.Format, now)
	}
	return o.store.FailJob(ctx, jobID, errDetail, now)
}

// Delete removes a job and releases its artifact storage.
func (o *Orchestrator) Delete(ctx context.Context, jobID string) error {
	job, err := o.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.HasArtifact() {
		if err := o.artifacts.Delete(ctx, job.ArtifactKey); err != nil && !blob.IsNotFound(err) {
			return fmt.Errorf("release artifact: %w", err)
		}
	}
	return o.store.DeleteJob(ctx, jobID)
}
