package jobstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/mediagrab/pkg/downloader"
)

func TestUpsertPlatformConfigUpdatesInPlace(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	cfg := &downloader.PlatformConfig{
		Platform:         downloader.PlatformYouTube,
		Active:           true,
		MaxFileSizeBytes: 500 << 20,
		Formats:          []string{"mp4", "webm"},
		RateLimitPerHour: 10,
	}
	require.NoError(t, s.UpsertPlatformConfig(ctx, cfg, now))

	cfg.Active = false
	cfg.RateLimitPerHour = 3
	require.NoError(t, s.UpsertPlatformConfig(ctx, cfg, now.Add(time.Hour)))

	got, err := s.GetPlatformConfig(ctx, downloader.PlatformYouTube)
	require.NoError(t, err)
	assert.False(t, got.Active)
	assert.Equal(t, 3, got.RateLimitPerHour)
	assert.Equal(t, []string{"mp4", "webm"}, got.Formats)

	all, err := s.ListPlatformConfigs(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestGetPlatformConfigNotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.GetPlatformConfig(context.Background(), downloader.PlatformTikTok)
	assert.True(t, downloader.IsNotFound(err))
}

func TestStatsAggregates(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.CreateJob(ctx, newTestJob("pending", now)))

	completed := newTestJob("completed", now)
	completed.Platform = downloader.PlatformTikTok
	require.NoError(t, s.CreateJob(ctx, completed))
	require.NoError(t, s.CompleteJob(ctx, "completed", "k", 2048, "mp4", now))

	failed := newTestJob("failed", now)
	require.NoError(t, s.CreateJob(ctx, failed))
	require.NoError(t, s.FailJob(ctx, "failed", "boom", now))

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Total)
	assert.Equal(t, int64(1), stats.Pending)
	assert.Equal(t, int64(1), stats.Completed)
	assert.Equal(t, int64(1), stats.Failed)
	assert.Equal(t, int64(2048), stats.StorageUsedBytes)
	assert.Equal(t, int64(2), stats.ByPlatform["youtube"])
	assert.Equal(t, int64(1), stats.ByPlatform["tiktok"])
}
