package jobstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/3leaps/mediagrab/pkg/downloader"
)

// UpsertPlatformConfig creates or updates the configuration for one
// platform (update-or-create provisioning semantics).
func (s *Store) UpsertPlatformConfig(ctx context.Context, cfg *downloader.PlatformConfig, now time.Time) error {
	if cfg == nil || cfg.Platform == "" {
		return errors.New("platform is required")
	}
	formats, err := json.Marshal(cfg.Formats)
	if err != nil {
		return fmt.Errorf("marshal formats: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO platform_configs
			(platform, active, max_file_size_bytes, formats, rate_limit_per_hour,
			 api_key_required, api_key, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(platform) DO UPDATE SET
			active = excluded.active,
			max_file_size_bytes = excluded.max_file_size_bytes,
			formats = excluded.formats,
			rate_limit_per_hour = excluded.rate_limit_per_hour,
			api_key_required = excluded.api_key_required,
			api_key = excluded.api_key,
			updated_at = excluded.updated_at`,
		string(cfg.Platform), cfg.Active, cfg.MaxFileSizeBytes, string(formats),
		cfg.RateLimitPerHour, cfg.APIKeyRequired, cfg.APIKey, now, now,
	)
	if err != nil {
		return fmt.Errorf("upsert platform config: %w", err)
	}
	return nil
}

// GetPlatformConfig returns the configuration for one platform.
// Returns downloader.ErrNotFound when the platform has no row.
func (s *Store) GetPlatformConfig(ctx context.Context, platform downloader.Platform) (*downloader.PlatformConfig, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT platform, active, max_file_size_bytes, formats, rate_limit_per_hour,
			api_key_required, api_key, created_at, updated_at
		FROM platform_configs WHERE platform = ?`, string(platform))
	return scanPlatformConfig(row)
}

// ListPlatformConfigs returns all platform configurations ordered by
// platform name.
func (s *Store) ListPlatformConfigs(ctx context.Context) ([]downloader.PlatformConfig, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT platform, active, max_file_size_bytes, formats, rate_limit_per_hour,
			api_key_required, api_key, created_at, updated_at
		FROM platform_configs ORDER BY platform ASC`)
	if err != nil {
		return nil, fmt.Errorf("list platform configs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []downloader.PlatformConfig
	for rows.Next() {
		cfg, err := scanPlatformConfig(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *cfg)
	}
	return out, rows.Err()
}

func scanPlatformConfig(row scanner) (*downloader.PlatformConfig, error) {
	var (
		cfg        downloader.PlatformConfig
		platform   string
		formatsRaw string
	)
	err := row.Scan(&platform, &cfg.Active, &cfg.MaxFileSizeBytes, &formatsRaw,
		&cfg.RateLimitPerHour, &cfg.APIKeyRequired, &cfg.APIKey,
		&cfg.CreatedAt, &cfg.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, downloader.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan platform config: %w", err)
	}
	cfg.Platform = downloader.Platform(platform)
	if err := json.Unmarshal([]byte(formatsRaw), &cfg.Formats); err != nil {
		return nil, fmt.Errorf("parse formats: %w", err)
	}
	return &cfg, nil
}
