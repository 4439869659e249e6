package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	return v
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(newTestViper())
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)

	assert.Equal(t, "file", cfg.Storage.Backend)
	assert.Equal(t, "data/media", cfg.Storage.Dir)
	assert.Equal(t, "data/work", cfg.Storage.WorkDir)

	assert.Equal(t, 4, cfg.Download.Workers)
	assert.Equal(t, 30*time.Minute, cfg.Download.TransferTimeout)
	assert.Equal(t, "yt-dlp", cfg.Download.FetcherBinary)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "structured", cfg.Logging.Profile)
	assert.Empty(t, cfg.Admin.Token)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mediagrab.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9000
download:
  workers: 8
  transfer_timeout: 45m
storage:
  backend: s3
  s3:
    bucket: media-artifacts
    region: us-east-1
`), 0o644))

	v := newTestViper()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 8, cfg.Download.Workers)
	assert.Equal(t, 45*time.Minute, cfg.Download.TransferTimeout)
	assert.Equal(t, "s3", cfg.Storage.Backend)
	assert.Equal(t, "media-artifacts", cfg.Storage.S3.Bucket)
}

func TestValidateRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*viper.Viper)
		want   string
	}{
		{"unknown backend", func(v *viper.Viper) { v.Set("storage.backend", "ftp") }, "unknown storage backend"},
		{"s3 without bucket", func(v *viper.Viper) { v.Set("storage.backend", "s3") }, "bucket is required"},
		{"zero workers", func(v *viper.Viper) { v.Set("download.workers", 0) }, "workers must be positive"},
		{"empty store path", func(v *viper.Viper) { v.Set("store.path", "") }, "store.path is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newTestViper()
			tt.mutate(v)
			_, err := Load(v)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
