package platform

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/mediagrab/pkg/downloader"
)

type stubConfigSource struct {
	configs map[downloader.Platform]*downloader.PlatformConfig
	err     error
}

func (s *stubConfigSource) GetPlatformConfig(_ context.Context, p downloader.Platform) (*downloader.PlatformConfig, error) {
	if s.err != nil {
		return nil, s.err
	}
	cfg, ok := s.configs[p]
	if !ok {
		return nil, downloader.ErrNotFound
	}
	return cfg, nil
}

type stubStrategy struct {
	platform downloader.Platform
}

func (s *stubStrategy) Platform() downloader.Platform { return s.platform }
func (s *stubStrategy) ResolveID(string) (string, error) {
	return "id", nil
}
func (s *stubStrategy) FetchMetadata(context.Context, string) (*downloader.Metadata, error) {
	return nil, downloader.ErrMetadataUnavailable
}
func (s *stubStrategy) Transfer(context.Context, string, downloader.Quality, downloader.ProgressFunc) (*downloader.StagedArtifact, error) {
	return nil, downloader.ErrTransferFailed
}

func newTestRegistry(configs map[downloader.Platform]*downloader.PlatformConfig) *Registry {
	r := NewRegistry(&stubConfigSource{configs: configs})
	r.Register(&stubStrategy{platform: downloader.PlatformYouTube})
	r.Register(&stubStrategy{platform: downloader.PlatformTikTok})
	return r
}

func activeConfig(p downloader.Platform) *downloader.PlatformConfig {
	return &downloader.PlatformConfig{
		Platform:  p,
		Active:    true,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
}

func TestLookupActivePlatform(t *testing.T) {
	r := newTestRegistry(map[downloader.Platform]*downloader.PlatformConfig{
		downloader.PlatformYouTube: activeConfig(downloader.PlatformYouTube),
	})

	cfg, strat, err := r.Lookup(context.Background(), downloader.PlatformYouTube)
	require.NoError(t, err)
	assert.Equal(t, downloader.PlatformYouTube, cfg.Platform)
	assert.Equal(t, downloader.PlatformYouTube, strat.Platform())
}

func TestLookupUnknownIdentifier(t *testing.T) {
	r := newTestRegistry(nil)

	_, _, err := r.Lookup(context.Background(), downloader.Platform("vimeo"))
	assert.ErrorIs(t, err, downloader.ErrUnsupportedPlatform)
	assert.NotErrorIs(t, err, downloader.ErrPlatformInactive)
}

func TestLookupKnownPlatformWithoutStrategy(t *testing.T) {
	r := newTestRegistry(nil)

	// facebook is in the known set but has no registered strategy.
	_, _, err := r.Lookup(context.Background(), downloader.PlatformFacebook)
	assert.ErrorIs(t, err, downloader.ErrUnsupportedPlatform)
}

func TestLookupInactiveDistinctFromUnsupported(t *testing.T) {
	inactive := activeConfig(downloader.PlatformYouTube)
	inactive.Active = false
	r := newTestRegistry(map[downloader.Platform]*downloader.PlatformConfig{
		downloader.PlatformYouTube: inactive,
	})

	_, _, err := r.Lookup(context.Background(), downloader.PlatformYouTube)
	assert.ErrorIs(t, err, downloader.ErrPlatformInactive)
	assert.NotErrorIs(t, err, downloader.ErrUnsupportedPlatform)

	// Registered strategy but no configuration row: also inactive.
	_, _, err = r.Lookup(context.Background(), downloader.PlatformTikTok)
	assert.ErrorIs(t, err, downloader.ErrPlatformInactive)
}

func TestLookupPropagatesStoreError(t *testing.T) {
	r := NewRegistry(&stubConfigSource{err: errors.New("db down")})
	r.Register(&stubStrategy{platform: downloader.PlatformYouTube})

	_, _, err := r.Lookup(context.Background(), downloader.PlatformYouTube)
	require.Error(t, err)
	assert.False(t, downloader.IsValidation(err))
}

func TestStrategyAccessorIgnoresConfig(t *testing.T) {
	r := newTestRegistry(nil)

	s, ok := r.Strategy(downloader.PlatformYouTube)
	require.True(t, ok)
	assert.Equal(t, downloader.PlatformYouTube, s.Platform())

	_, ok = r.Strategy(downloader.PlatformTwitter)
	assert.False(t, ok)
}

func TestPlatformsSorted(t *testing.T) {
	r := newTestRegistry(nil)

	assert.Equal(t, []downloader.Platform{
		downloader.PlatformTikTok,
		downloader.PlatformYouTube,
	}, r.Platforms())
}
