package jobstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/3leaps/mediagrab/pkg/downloader"
)

const jobColumns = `id, platform, source_url, quality, state, progress, error_detail,
	title, description, duration_seconds, thumbnail_url,
	artifact_key, file_size, format, access_count,
	requester_id, requester_addr, user_agent,
	created_at, updated_at, completed_at`

// CreateJob inserts a new job record as given.
func (s *Store) CreateJob(ctx context.Context, job *downloader.Job) error {
	if job == nil || job.ID == "" {
		return errors.New("job id is required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, platform, source_url, quality, state, progress,
			requester_id, requester_addr, user_agent, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, string(job.Platform), job.SourceURL, string(job.Quality),
		string(job.State), job.Progress,
		job.RequesterID, job.RequesterAddr, job.UserAgent,
		job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// GetJob retrieves a job by ID. Returns downloader.ErrNotFound if absent.
func (s *Store) GetJob(ctx context.Context, id string) (*downloader.Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	return scanJob(row)
}

// ListFilter selects jobs for listing.
type ListFilter struct {
	// RequesterID limits results to one requester when non-empty.
	RequesterID string

	// State limits results to one lifecycle state when non-empty.
	State downloader.State

	// Limit bounds the result size. Zero means no limit.
	Limit int
}

// ListJobs returns jobs ordered by recency (newest first).
func (s *Store) ListJobs(ctx context.Context, f ListFilter) ([]downloader.Job, error) {
	q := `SELECT ` + jobColumns + ` FROM jobs WHERE 1=1`
	var args []any
	if f.RequesterID != "" {
		q += ` AND requester_id = ?`
		args = append(args, f.RequesterID)
	}
	if f.State != "" {
		q += ` AND state = ?`
		args = append(args, string(f.State))
	}
	q += ` ORDER BY created_at DESC`
	if f.Limit > 0 {
		q += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []downloader.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *j)
	}
	return out, rows.Err()
}

// MarkDownloading transitions a pending job to downloading.
//
// The WHERE clause makes the claim atomic: a job already claimed or
// already terminal is left untouched and ErrNotFound is returned.
func (s *Store) MarkDownloading(ctx context.Context, id string, now time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET state = ?, updated_at = ?
		WHERE id = ? AND state = ?`,
		string(downloader.StateDownloading), now, id, string(downloader.StatePending),
	)
	if err != nil {
		return fmt.Errorf("mark downloading: %w", err)
	}
	return requireAffected(res)
}

// SetProgress writes a progress percentage for a downloading job.
// Values never decrease; a stale lower value is ignored in SQL.
func (s *Store) SetProgress(ctx context.Context, id string, percent int, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET progress = MAX(progress, ?), updated_at = ?
		WHERE id = ? AND state = ?`,
		percent, now, id, string(downloader.StateDownloading),
	)
	if err != nil {
		return fmt.Errorf("set progress: %w", err)
	}
	return nil
}

// SetMetadata merges fetched media metadata into the job record.
func (s *Store) SetMetadata(ctx context.Context, id string, md *downloader.Metadata, now time.Time) error {
	if md == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET title = ?, description = ?, duration_seconds = ?, thumbnail_url = ?, updated_at = ?
		WHERE id = ?`,
		md.Title, md.Description, md.DurationSeconds, md.ThumbnailURL, now, id,
	)
	if err != nil {
		return fmt.Errorf("set metadata: %w", err)
	}
	return nil
}

// CompleteJob finalizes a successful job: artifact reference, progress
// 100, completed state, and the completion timestamp (written exactly
// once, guarded by the non-terminal state check).
func (s *Store) CompleteJob(ctx context.Context, id, artifactKey string, size int64, format string, now time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET state = ?, progress = 100,
			artifact_key = ?, file_size = ?, format = ?,
			completed_at = COALESCE(completed_at, ?), updated_at = ?
		WHERE id = ? AND state IN (?, ?)`,
		string(downloader.StateCompleted),
		artifactKey, size, format, now, now,
		id, string(downloader.StatePending), string(downloader.StateDownloading),
	)
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	return requireAffected(res)
}

// FailJob finalizes a failed job with a human-readable cause. Jobs
// already in a terminal state are left untouched. Progress is clamped
// below 100 in the same write: a transfer may have reported full
// progress before a late check (size limit, commit) failed the job,
// and 100 is reserved for the completed state.
func (s *Store) FailJob(ctx context.Context, id, detail string, now time.Time) error {
	if detail == "" {
		detail = "unknown error"
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET state = ?, error_detail = ?,
			progress = MIN(progress, 99),
			completed_at = COALESCE(completed_at, ?), updated_at = ?
		WHERE id = ? AND state IN (?, ?)`,
		string(downloader.StateFailed), detail, now, now,
		id, string(downloader.StatePending), string(downloader.StateDownloading),
	)
	if err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	return requireAffected(res)
}

// RecordRetrieval increments the job's access counter and appends a
// retrieval record in one transaction.
func (s *Store) RecordRetrieval(ctx context.Context, jobID, requesterID, requesterAddr string, now time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE jobs SET access_count = access_count + 1, updated_at = ? WHERE id = ?`,
		now, jobID,
	)
	if err != nil {
		return fmt.Errorf("increment access count: %w", err)
	}
	if err := requireAffected(res); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO retrievals (job_id, requester_id, requester_addr, retrieved_at)
		VALUES (?, ?, ?, ?)`,
		jobID, requesterID, requesterAddr, now,
	); err != nil {
		return fmt.Errorf("insert retrieval: %w", err)
	}

	return tx.Commit()
}

// ListRetrievals returns the retrieval log for a job, newest first.
func (s *Store) ListRetrievals(ctx context.Context, jobID string) ([]downloader.RetrievalRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, job_id, requester_id, requester_addr, retrieved_at
		FROM retrievals WHERE job_id = ? ORDER BY retrieved_at DESC, id DESC`, jobID)
	if err != nil {
		return nil, fmt.Errorf("list retrievals: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []downloader.RetrievalRecord
	for rows.Next() {
		var r downloader.RetrievalRecord
		if err := rows.Scan(&r.ID, &r.JobID, &r.RequesterID, &r.RequesterAddr, &r.RetrievedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// DeleteJob removes a job and its retrieval records. Artifact bytes are
// the caller's responsibility; the store only owns rows.
func (s *Store) DeleteJob(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM retrievals WHERE job_id = ?`, id); err != nil {
		return fmt.Errorf("delete retrievals: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	if err := requireAffected(res); err != nil {
		return err
	}
	return tx.Commit()
}

// CreateJobWithinLimit inserts the job only if fewer than ceiling jobs
// exist for the same network origin and platform since the given
// instant. Count and insert share one transaction, so two concurrent
// admissions at the ceiling cannot both pass. A ceiling of zero or less
// disables the check and inserts unconditionally.
//
// Returns downloader.ErrRateLimited (wrapped) on denial.
func (s *Store) CreateJobWithinLimit(ctx context.Context, job *downloader.Job, ceiling int, since time.Time) error {
	if ceiling <= 0 {
		return s.CreateJob(ctx, job)
	}
	if job == nil || job.ID == "" {
		return errors.New("job id is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var n int
	if err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM jobs
		WHERE requester_addr = ? AND platform = ? AND created_at >= ?`,
		job.RequesterAddr, string(job.Platform), since,
	).Scan(&n); err != nil {
		return fmt.Errorf("count recent jobs: %w", err)
	}
	if n >= ceiling {
		return fmt.Errorf("%w: %d of %d recent downloads", downloader.ErrRateLimited, n, ceiling)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO jobs (id, platform, source_url, quality, state, progress,
			requester_id, requester_addr, user_agent, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, string(job.Platform), job.SourceURL, string(job.Quality),
		string(job.State), job.Progress,
		job.RequesterID, job.RequesterAddr, job.UserAgent,
		job.CreatedAt, job.UpdatedAt,
	); err != nil {
		return fmt.Errorf("insert job: %w", err)
	}

	return tx.Commit()
}

// SweepCandidates selects terminal jobs created before the cutoff.
// Non-terminal jobs are always excluded so a job mid-transfer can never
// be selected. With keepCompleted, only failed jobs are returned.
func (s *Store) SweepCandidates(ctx context.Context, cutoff time.Time, keepCompleted bool) ([]downloader.Job, error) {
	q := `SELECT ` + jobColumns + ` FROM jobs
		WHERE created_at < ? AND state IN (?, ?)`
	args := []any{cutoff, string(downloader.StateCompleted), string(downloader.StateFailed)}
	if keepCompleted {
		q = `SELECT ` + jobColumns + ` FROM jobs
			WHERE created_at < ? AND state = ?`
		args = []any{cutoff, string(downloader.StateFailed)}
	}
	q += ` ORDER BY created_at ASC`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("select sweep candidates: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []downloader.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *j)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (*downloader.Job, error) {
	var (
		j                        downloader.Job
		platform, quality, state string
		completedAt              sql.NullTime
	)
	err := row.Scan(
		&j.ID, &platform, &j.SourceURL, &quality, &state, &j.Progress, &j.ErrorDetail,
		&j.Title, &j.Description, &j.DurationSeconds, &j.ThumbnailURL,
		&j.ArtifactKey, &j.FileSize, &j.Format, &j.AccessCount,
		&j.RequesterID, &j.RequesterAddr, &j.UserAgent,
		&j.CreatedAt, &j.UpdatedAt, &completedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, downloader.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan job: %w", err)
	}
	j.Platform = downloader.Platform(platform)
	j.Quality = downloader.Quality(quality)
	j.State = downloader.State(state)
	if completedAt.Valid {
		t := completedAt.Time
		j.CompletedAt = &t
	}
	return &j, nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return downloader.ErrNotFound
	}
	return nil
}
