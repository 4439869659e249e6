package jobstore

import (
	"context"
	"fmt"

	"github.com/3leaps/mediagrab/pkg/downloader"
)

// Stats aggregates job counts and storage usage across the store.
type Stats struct {
	Total     int64
	Pending   int64
	Active    int64
	Completed int64
	Failed    int64

	// StorageUsedBytes sums artifact sizes of completed jobs.
	StorageUsedBytes int64

	// ByPlatform maps platform name to job count (platforms with zero
	// jobs are omitted).
	ByPlatform map[string]int64
}

// Stats computes aggregate statistics over all jobs.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	out := &Stats{ByPlatform: make(map[string]int64)}

	rows, err := s.db.QueryContext(ctx, `SELECT state, COUNT(*) FROM jobs GROUP BY state`)
	if err != nil {
		return nil, fmt.Errorf("count by state: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var state string
		var n int64
		if err := rows.Scan(&state, &n); err != nil {
			return nil, err
		}
		out.Total += n
		switch downloader.State(state) {
		case downloader.StatePending:
			out.Pending = n
		case downloader.StateDownloading:
			out.Active = n
		case downloader.StateCompleted:
			out.Completed = n
		case downloader.StateFailed:
			out.Failed = n
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(file_size), 0) FROM jobs WHERE state = ?`,
		string(downloader.StateCompleted),
	).Scan(&out.StorageUsedBytes); err != nil {
		return nil, fmt.Errorf("sum storage used: %w", err)
	}

	prows, err := s.db.QueryContext(ctx, `SELECT platform, COUNT(*) FROM jobs GROUP BY platform`)
	if err != nil {
		return nil, fmt.Errorf("count by platform: %w", err)
	}
	defer func() { _ = prows.Close() }()
	for prows.Next() {
		var platform string
		var n int64
		if err := prows.Scan(&platform, &n); err != nil {
			return nil, err
		}
		out.ByPlatform[platform] = n
	}
	return out, prows.Err()
}
