// Package cmd implements the mediagrab CLI.
package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/3leaps/mediagrab/internal/config"
	"github.com/3leaps/mediagrab/internal/observability"
)

var (
	cfgFile  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "mediagrab",
	Short: "Media download job service",
	Long: `mediagrab fetches media from external platforms (YouTube, TikTok,
Instagram, ...) through per-platform strategies, tracking each download
as a job with progress, rate limits, and durable artifact storage.

Run "mediagrab serve" for the HTTP API, or "mediagrab get" for a
one-shot download.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		return observability.SetCLILevel(logLevel)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default: ./mediagrab.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug|info|warn|error)")
}

// Execute runs the CLI and exits the process with the command's
// resolved exit code.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		observability.CLILogger.Error(err.Error())
		var coded *codedError
		if errors.As(err, &coded) {
			os.Exit(coded.code)
		}
		os.Exit(1)
	}
}

// codedError carries a process exit code alongside the error chain.
type codedError struct {
	code    int
	message string
	err     error
}

func (e *codedError) Error() string {
	if e.err == nil {
		return e.message
	}
	return fmt.Sprintf("%s: %v", e.message, e.err)
}

func (e *codedError) Unwrap() error { return e.err }

// exitError creates an error that causes the CLI to exit with the given
// foundry code.
func exitError(code int, message string, err error) error {
	return &codedError{code: code, message: message, err: err}
}

// loadConfig builds the viper state (defaults, optional config file,
// MEDIAGRAB_* environment) and decodes it.
func loadConfig() (*config.Config, error) {
	v := viper.New()
	config.SetDefaults(v)

	v.SetEnvPrefix("MEDIAGRAB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", cfgFile, err)
		}
	} else {
		v.SetConfigName("mediagrab")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg, err := config.Load(v)
	if err != nil {
		return nil, err
	}
	observability.CLILogger.Debug("configuration loaded",
		zap.String("store", cfg.Store.Path),
		zap.String("storage_backend", cfg.Storage.Backend))
	return cfg, nil
}
