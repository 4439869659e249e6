// Package config loads the typed application configuration from a YAML
// file, environment variables, and flag bindings via viper.
//
// Precedence: flags > environment (MEDIAGRAB_*) > config file > defaults.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Config is the full application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Store    StoreConfig    `mapstructure:"store"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Download DownloadConfig `mapstructure:"download"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Admin    AdminConfig    `mapstructure:"admin"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type StoreConfig struct {
	// Path is the SQLite database path.
	Path string `mapstructure:"path"`
}

type StorageConfig struct {
	// Backend selects the artifact store: "file" or "s3".
	Backend string `mapstructure:"backend"`

	// Dir is the content directory for the file backend.
	Dir string `mapstructure:"dir"`

	// WorkDir is the staging area for in-flight transfers.
	WorkDir string `mapstructure:"work_dir"`

	S3 S3Config `mapstructure:"s3"`
}

type S3Config struct {
	Bucket          string `mapstructure:"bucket"`
	Prefix          string `mapstructure:"prefix"`
	Region          string `mapstructure:"region"`
	Profile         string `mapstructure:"profile"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	ForcePathStyle  bool   `mapstructure:"force_path_style"`
}

type DownloadConfig struct {
	Workers         int           `mapstructure:"workers"`
	QueueDepth      int           `mapstructure:"queue_depth"`
	TransferTimeout time.Duration `mapstructure:"transfer_timeout"`

	// FetcherBinary is the yt-dlp executable name or path.
	FetcherBinary string `mapstructure:"fetcher_binary"`
}

type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	Profile string `mapstructure:"profile"`
}

type AdminConfig struct {
	// Token guards administrative endpoints. Empty disables them.
	Token string `mapstructure:"token"`
}

// SetDefaults registers default values on the given viper instance.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("store.path", "data/mediagrab.db")

	v.SetDefault("storage.backend", "file")
	v.SetDefault("storage.dir", "data/media")
	v.SetDefault("storage.work_dir", "data/work")

	v.SetDefault("download.workers", 4)
	v.SetDefault("download.queue_depth", 64)
	v.SetDefault("download.transfer_timeout", "30m")
	v.SetDefault("download.fetcher_binary", "yt-dlp")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.profile", "structured")

	v.SetDefault("admin.token", "")
}

// Load decodes the viper state into a validated Config.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	decodeHook := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
	if err := v.Unmarshal(&cfg, viper.DecodeHook(decodeHook)); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Storage.Backend) {
	case "file":
		if strings.TrimSpace(c.Storage.Dir) == "" {
			return fmt.Errorf("storage.dir is required for the file backend")
		}
	case "s3":
		if strings.TrimSpace(c.Storage.S3.Bucket) == "" {
			return fmt.Errorf("storage.s3.bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("unknown storage backend %q (expected file or s3)", c.Storage.Backend)
	}

	if c.Download.Workers <= 0 {
		return fmt.Errorf("download.workers must be positive")
	}
	if strings.TrimSpace(c.Store.Path) == "" {
		return fmt.Errorf("store.path is required")
	}
	return nil
}
