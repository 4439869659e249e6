package jobstore

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/mediagrab/pkg/downloader"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), Config{Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newTestJob(id string, created time.Time) *downloader.Job {
	return &downloader.Job{
		ID:            id,
		Platform:      downloader.PlatformYouTube,
		SourceURL:     "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		Quality:       downloader.QualityHigh,
		State:         downloader.StatePending,
		RequesterAddr: "203.0.113.7",
		CreatedAt:     created,
		UpdatedAt:     created,
	}
}

func TestCreateAndGetJob(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.CreateJob(ctx, newTestJob("job-1", now)))

	got, err := s.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, downloader.PlatformYouTube, got.Platform)
	assert.Equal(t, downloader.StatePending, got.State)
	assert.Equal(t, 0, got.Progress)
	assert.Nil(t, got.CompletedAt)
}

func TestGetJobNotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.GetJob(context.Background(), "missing")
	assert.True(t, downloader.IsNotFound(err))
}

func TestMarkDownloadingClaimsOnce(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.CreateJob(ctx, newTestJob("job-1", now)))
	require.NoError(t, s.MarkDownloading(ctx, "job-1", now))

	// Second claim must fail: the job is no longer pending.
	err := s.MarkDownloading(ctx, "job-1", now)
	assert.True(t, downloader.IsNotFound(err))
}

func TestSetProgressIsMonotone(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.CreateJob(ctx, newTestJob("job-1", now)))
	require.NoError(t, s.MarkDownloading(ctx, "job-1", now))

	require.NoError(t, s.SetProgress(ctx, "job-1", 40, now))
	require.NoError(t, s.SetProgress(ctx, "job-1", 25, now))

	got, err := s.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, 40, got.Progress)
}

func TestSetProgressIgnoredWhenNotDownloading(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.CreateJob(ctx, newTestJob("job-1", now)))
	require.NoError(t, s.SetProgress(ctx, "job-1", 40, now))

	got, err := s.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, 0, got.Progress)
}

func TestCompleteJobSetsCompletedAtOnce(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	later := now.Add(time.Hour)

	require.NoError(t, s.CreateJob(ctx, newTestJob("job-1", now)))
	require.NoError(t, s.MarkDownloading(ctx, "job-1", now))
	require.NoError(t, s.CompleteJob(ctx, "job-1", "youtube/video.mp4", 1024, "mp4", now))

	got, err := s.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, downloader.StateCompleted, got.State)
	assert.Equal(t, 100, got.Progress)
	assert.Equal(t, "youtube/video.mp4", got.ArtifactKey)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, got.CompletedAt.Equal(now))

	// Terminal states admit no further transitions.
	err = s.CompleteJob(ctx, "job-1", "other", 1, "mp4", later)
	assert.True(t, downloader.IsNotFound(err))
	err = s.FailJob(ctx, "job-1", "too late", later)
	assert.True(t, downloader.IsNotFound(err))

	got, err = s.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, downloader.StateCompleted, got.State)
	assert.True(t, got.CompletedAt.Equal(now))
}

func TestFailJobDefaultsDetail(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.CreateJob(ctx, newTestJob("job-1", now)))
	require.NoError(t, s.FailJob(ctx, "job-1", "", now))

	got, err := s.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, downloader.StateFailed, got.State)
	assert.Equal(t, "unknown error", got.ErrorDetail)
	require.NotNil(t, got.CompletedAt)
}

func TestListJobsFiltersAndOrders(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	for i, id := range []string{"job-1", "job-2", "job-3"} {
		j := newTestJob(id, base.Add(time.Duration(i)*time.Minute))
		if id == "job-2" {
			j.RequesterID = "user-a"
		}
		require.NoError(t, s.CreateJob(ctx, j))
	}

	all, err := s.ListJobs(ctx, ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "job-3", all[0].ID)

	mine, err := s.ListJobs(ctx, ListFilter{RequesterID: "user-a"})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "job-2", mine[0].ID)

	limited, err := s.ListJobs(ctx, ListFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestRecordRetrievalIncrementsAndLogs(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.CreateJob(ctx, newTestJob("job-1", now)))

	require.NoError(t, s.RecordRetrieval(ctx, "job-1", "user-a", "203.0.113.7", now))
	require.NoError(t, s.RecordRetrieval(ctx, "job-1", "user-a", "203.0.113.7", now.Add(time.Minute)))

	got, err := s.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.AccessCount)

	records, err := s.ListRetrievals(ctx, "job-1")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "user-a", records[0].RequesterID)
}

func TestRecordRetrievalUnknownJob(t *testing.T) {
	s := openTestStore(t)

	err := s.RecordRetrieval(context.Background(), "missing", "", "203.0.113.7", time.Now())
	assert.True(t, downloader.IsNotFound(err))
}

func TestDeleteJobCascadesRetrievals(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.CreateJob(ctx, newTestJob("job-1", now)))
	require.NoError(t, s.RecordRetrieval(ctx, "job-1", "", "203.0.113.7", now))

	require.NoError(t, s.DeleteJob(ctx, "job-1"))

	_, err := s.GetJob(ctx, "job-1")
	assert.True(t, downloader.IsNotFound(err))
	records, err := s.ListRetrievals(ctx, "job-1")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestFailJobClampsProgress(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.CreateJob(ctx, newTestJob("job-1", now)))
	require.NoError(t, s.MarkDownloading(ctx, "job-1", now))
	require.NoError(t, s.SetProgress(ctx, "job-1", 100, now))
	require.NoError(t, s.FailJob(ctx, "job-1", "commit failed", now))

	got, err := s.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, downloader.StateFailed, got.State)
	assert.Equal(t, 99, got.Progress)

	// Progress below the clamp is left as reported.
	require.NoError(t, s.CreateJob(ctx, newTestJob("job-2", now)))
	require.NoError(t, s.MarkDownloading(ctx, "job-2", now))
	require.NoError(t, s.SetProgress(ctx, "job-2", 40, now))
	require.NoError(t, s.FailJob(ctx, "job-2", "origin closed the stream", now))

	got, err = s.GetJob(ctx, "job-2")
	require.NoError(t, err)
	assert.Equal(t, 40, got.Progress)
}

func TestCreateJobWithinLimitScopesOriginPlatformWindow(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	// None of these count against job-new: too old, other origin, other
	// platform.
	require.NoError(t, s.CreateJob(ctx, newTestJob("job-old", now.Add(-2*time.Hour))))

	otherAddr := newTestJob("job-other-addr", now.Add(-5*time.Minute))
	otherAddr.RequesterAddr = "198.51.100.9"
	require.NoError(t, s.CreateJob(ctx, otherAddr))

	otherPlatform := newTestJob("job-other-platform", now.Add(-5*time.Minute))
	otherPlatform.Platform = downloader.PlatformTikTok
	require.NoError(t, s.CreateJob(ctx, otherPlatform))

	since := now.Add(-time.Hour)
	require.NoError(t, s.CreateJobWithinLimit(ctx, newTestJob("job-new", now), 1, since))

	// The ceiling is now reached for this origin/platform pair.
	err := s.CreateJobWithinLimit(ctx, newTestJob("job-denied", now), 1, since)
	require.Error(t, err)
	assert.ErrorIs(t, err, downloader.ErrRateLimited)

	_, err = s.GetJob(ctx, "job-denied")
	assert.True(t, downloader.IsNotFound(err))
}

func TestCreateJobWithinLimitZeroCeilingBypassesCheck(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		j := newTestJob(fmt.Sprintf("job-%d", i), now)
		require.NoError(t, s.CreateJobWithinLimit(ctx, j, 0, time.Time{}))
	}

	all, err := s.ListJobs(ctx, ListFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestCreateJobWithinLimitConcurrentAdmissions(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	since := now.Add(-time.Hour)

	// With a ceiling of one, exactly one of the racing admissions may
	// land; the rest must be denied, not inserted.
	const racers = 8
	errs := make(chan error, racers)
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- s.CreateJobWithinLimit(ctx, newTestJob(fmt.Sprintf("job-%d", i), now), 1, since)
		}(i)
	}
	wg.Wait()
	close(errs)

	var admitted, denied int
	for err := range errs {
		switch {
		case err == nil:
			admitted++
		case errors.Is(err, downloader.ErrRateLimited):
			denied++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, admitted)
	assert.Equal(t, racers-1, denied)

	all, err := s.ListJobs(ctx, ListFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestSweepCandidatesExcludesNonTerminal(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	old := now.Add(-48 * time.Hour)

	require.NoError(t, s.CreateJob(ctx, newTestJob("pending-old", old)))

	completed := newTestJob("completed-old", old)
	require.NoError(t, s.CreateJob(ctx, completed))
	require.NoError(t, s.CompleteJob(ctx, "completed-old", "k", 10, "mp4", old))

	failed := newTestJob("failed-old", old)
	require.NoError(t, s.CreateJob(ctx, failed))
	require.NoError(t, s.FailJob(ctx, "failed-old", "boom", old))

	recent := newTestJob("failed-recent", now)
	require.NoError(t, s.CreateJob(ctx, recent))
	require.NoError(t, s.FailJob(ctx, "failed-recent", "boom", now))

	cutoff := now.Add(-24 * time.Hour)

	both, err := s.SweepCandidates(ctx, cutoff, false)
	require.NoError(t, err)
	require.Len(t, both, 2)

	failedOnly, err := s.SweepCandidates(ctx, cutoff, true)
	require.NoError(t, err)
	require.Len(t, failedOnly, 1)
	assert.Equal(t, "failed-old", failedOnly[0].ID)
}

func TestOpenCreatesStoreDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "jobs.db")

	s, err := Open(context.Background(), Config{Path: path})
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	require.NoError(t, s.CreateJob(context.Background(), newTestJob("job-1", time.Now().UTC())))
}
