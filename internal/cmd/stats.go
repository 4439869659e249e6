package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate job statistics",
	RunE:  runStats,
}

func init() {
	statsCmd.Flags().Bool("json", false, "Output as JSON")
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	jsonOutput, _ := cmd.Flags().GetBool("json")

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	stats, err := a.store.Stats(ctx)
	if err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Failed to compute statistics", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	}

	_, _ = fmt.Fprintf(os.Stderr, "Jobs: %d total (%d pending, %d active, %d completed, %d failed)\n",
		stats.Total, stats.Pending, stats.Active, stats.Completed, stats.Failed)
	_, _ = fmt.Fprintf(os.Stderr, "Storage used: %s\n", formatBytes(stats.StorageUsedBytes))

	if len(stats.ByPlatform) == 0 {
		return nil
	}
	_, _ = fmt.Fprintln(os.Stderr)

	platforms := make([]string, 0, len(stats.ByPlatform))
	for p := range stats.ByPlatform {
		platforms = append(platforms, p)
	}
	sort.Strings(platforms)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "PLATFORM\tJOBS")
	for _, p := range platforms {
		_, _ = fmt.Fprintf(w, "%s\t%d\n", p, stats.ByPlatform[p])
	}
	return w.Flush()
}
