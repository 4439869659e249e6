package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"go.uber.org/zap"

	"github.com/3leaps/mediagrab/internal/config"
	"github.com/3leaps/mediagrab/internal/observability"
	"github.com/3leaps/mediagrab/pkg/blob"
	blobfile "github.com/3leaps/mediagrab/pkg/blob/file"
	blobs3 "github.com/3leaps/mediagrab/pkg/blob/s3"
	"github.com/3leaps/mediagrab/pkg/downloader"
	"github.com/3leaps/mediagrab/pkg/downloader/strategies"
	"github.com/3leaps/mediagrab/pkg/fetch"
	"github.com/3leaps/mediagrab/pkg/jobstore"
	"github.com/3leaps/mediagrab/pkg/orchestrator"
	"github.com/3leaps/mediagrab/pkg/platform"
	"github.com/3leaps/mediagrab/pkg/ratelimit"
)

// app bundles the wired application components shared by subcommands.
type app struct {
	cfg       *config.Config
	store     *jobstore.Store
	artifacts blob.Store
	registry  *platform.Registry
	orch      *orchestrator.Orchestrator
}

func (a *app) close() {
	_ = a.artifacts.Close()
	_ = a.store.Close()
}

// buildApp opens the job store and artifact storage and wires the
// registry and orchestrator from configuration. CLI one-shots log to
// the console logger; serve passes its structured logger instead.
func buildApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
	}
	return buildAppFrom(ctx, cfg, observability.CLILogger)
}

func buildAppFrom(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	store, err := jobstore.Open(ctx, jobstore.Config{Path: cfg.Store.Path})
	if err != nil {
		return nil, exitError(foundry.ExitExternalServiceUnavailable, "Failed to open job store", err)
	}

	artifacts, err := openArtifacts(ctx, cfg)
	if err != nil {
		_ = store.Close()
		return nil, exitError(foundry.ExitExternalServiceUnavailable, "Failed to open artifact storage", err)
	}

	fetcher := fetch.NewYTDLP(cfg.Download.FetcherBinary, logger)
	opts := strategies.Options{Fetcher: fetcher, WorkDir: cfg.Storage.WorkDir}

	registry := platform.NewRegistry(store)
	registry.Register(strategies.NewYouTube(opts))
	registry.Register(strategies.NewTikTok(opts))
	registry.Register(strategies.NewInstagram(opts))

	orch := orchestrator.New(store, registry, ratelimit.New(store), artifacts,
		logger, orchestrator.Config{
			Workers:         cfg.Download.Workers,
			QueueDepth:      cfg.Download.QueueDepth,
			TransferTimeout: cfg.Download.TransferTimeout,
		})

	return &app{
		cfg:       cfg,
		store:     store,
		artifacts: artifacts,
		registry:  registry,
		orch:      orch,
	}, nil
}

func openArtifacts(ctx context.Context, cfg *config.Config) (blob.Store, error) {
	switch strings.ToLower(cfg.Storage.Backend) {
	case "s3":
		return blobs3.New(ctx, blobs3.Config{
			Bucket:          cfg.Storage.S3.Bucket,
			Prefix:          cfg.Storage.S3.Prefix,
			Region:          cfg.Storage.S3.Region,
			Profile:         cfg.Storage.S3.Profile,
			Endpoint:        cfg.Storage.S3.Endpoint,
			AccessKeyID:     cfg.Storage.S3.AccessKeyID,
			SecretAccessKey: cfg.Storage.S3.SecretAccessKey,
			ForcePathStyle:  cfg.Storage.S3.ForcePathStyle,
		})
	default:
		return blobfile.New(blobfile.Config{BaseDir: cfg.Storage.Dir})
	}
}

// detectPlatform finds the registered platform whose patterns match the
// URL.
func detectPlatform(registry *platform.Registry, rawURL string) (downloader.Platform, string, error) {
	for _, p := range registry.Platforms() {
		strat, ok := registry.Strategy(p)
		if !ok {
			continue
		}
		if id, err := strat.ResolveID(rawURL); err == nil {
			return p, id, nil
		}
	}
	return "", "", fmt.Errorf("%w: URL matches no registered platform", downloader.ErrNoIdentifier)
}

// parseDuration parses a duration that may use a day suffix (e.g.
// "30d", "720h").
func parseDuration(s string) (time.Duration, error) {
	if len(s) > 0 && s[len(s)-1] == 'd' {
		var days int
		if _, err := fmt.Sscanf(s, "%dd", &days); err != nil {
			return 0, fmt.Errorf("invalid duration: %s", s)
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
