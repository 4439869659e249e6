package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/3leaps/mediagrab/internal/observability"
	"github.com/3leaps/mediagrab/pkg/downloader"
)

var platformsCmd = &cobra.Command{
	Use:   "platforms",
	Short: "Manage platform configurations",
}

var platformsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List platform configurations",
	RunE:  runPlatformsList,
}

var platformsSeedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Provision platform configurations",
	Long: `Write platform configurations to the job store. Without --file the
built-in defaults are applied. Existing configurations for the same
platform are updated in place.

The seed file is YAML:

  platforms:
    - platform: youtube
      active: true
      max_file_size_mb: 500
      formats: [mp4, webm, mp3]
      rate_limit_per_hour: 100`,
	RunE: runPlatformsSeed,
}

func init() {
	platformsListCmd.Flags().Bool("json", false, "Output as JSON")
	platformsSeedCmd.Flags().String("file", "", "Seed file (YAML); built-in defaults when empty")
	platformsCmd.AddCommand(platformsListCmd)
	platformsCmd.AddCommand(platformsSeedCmd)
	rootCmd.AddCommand(platformsCmd)
}

func runPlatformsList(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	jsonOutput, _ := cmd.Flags().GetBool("json")

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	configs, err := a.store.ListPlatformConfigs(ctx)
	if err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Failed to list platform configurations", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{"platforms": configs})
	}

	if len(configs) == 0 {
		_, _ = fmt.Fprintln(os.Stderr, "No platforms configured; run \"mediagrab platforms seed\"")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "PLATFORM\tACTIVE\tMAX SIZE\tFORMATS\tRATE/HOUR")
	for i := range configs {
		c := &configs[i]
		_, _ = fmt.Fprintf(w, "%s\t%t\t%s\t%s\t%d\n",
			c.Platform,
			c.Active,
			formatBytes(c.MaxFileSizeBytes),
			strings.Join(c.Formats, ","),
			c.RateLimitPerHour,
		)
	}
	return w.Flush()
}

type seedFile struct {
	Platforms []seedEntry `yaml:"platforms"`
}

type seedEntry struct {
	Platform         string   `yaml:"platform"`
	Active           bool     `yaml:"active"`
	MaxFileSizeMB    int64    `yaml:"max_file_size_mb"`
	Formats          []string `yaml:"formats"`
	RateLimitPerHour int      `yaml:"rate_limit_per_hour"`
	APIKeyRequired   bool     `yaml:"api_key_required"`
}

func defaultSeed() []seedEntry {
	return []seedEntry{
		{Platform: "youtube", Active: true, MaxFileSizeMB: 500, Formats: []string{"mp4", "webm", "mp3"}, RateLimitPerHour: 100},
		{Platform: "facebook", Active: true, MaxFileSizeMB: 200, Formats: []string{"mp4"}, RateLimitPerHour: 50},
		{Platform: "tiktok", Active: true, MaxFileSizeMB: 100, Formats: []string{"mp4"}, RateLimitPerHour: 60},
		{Platform: "instagram", Active: true, MaxFileSizeMB: 150, Formats: []string{"mp4"}, RateLimitPerHour: 50},
		{Platform: "twitter", Active: true, MaxFileSizeMB: 100, Formats: []string{"mp4"}, RateLimitPerHour: 50},
	}
}

func runPlatformsSeed(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	file, _ := cmd.Flags().GetString("file")

	entries := defaultSeed()
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return exitError(foundry.ExitFileReadError, "Failed to read seed file", err)
		}
		var sf seedFile
		if err := yaml.Unmarshal(data, &sf); err != nil {
			return exitError(foundry.ExitInvalidArgument, "Invalid seed file", err)
		}
		if len(sf.Platforms) == 0 {
			return exitError(foundry.ExitInvalidArgument, "Invalid seed file",
				fmt.Errorf("%s: no platforms defined", file))
		}
		entries = sf.Platforms
	}

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	now := time.Now().UTC()
	for _, e := range entries {
		p := downloader.Platform(e.Platform)
		if !p.Valid() {
			return exitError(foundry.ExitInvalidArgument, "Invalid seed entry",
				fmt.Errorf("unknown platform %q", e.Platform))
		}
		cfg := &downloader.PlatformConfig{
			Platform:         p,
			Active:           e.Active,
			MaxFileSizeBytes: e.MaxFileSizeMB * 1024 * 1024,
			Formats:          e.Formats,
			RateLimitPerHour: e.RateLimitPerHour,
			APIKeyRequired:   e.APIKeyRequired,
		}
		if err := a.store.UpsertPlatformConfig(ctx, cfg, now); err != nil {
			return exitError(foundry.ExitExternalServiceUnavailable, "Failed to write platform configuration", err)
		}
		observability.CLILogger.Info("platform configured",
			zap.String("platform", e.Platform),
			zap.Bool("active", e.Active),
			zap.Int("rate_limit_per_hour", e.RateLimitPerHour))
	}

	_, _ = fmt.Fprintf(os.Stderr, "Seeded %d platform(s)\n", len(entries))
	return nil
}
