package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"

	"github.com/3leaps/mediagrab/internal/observability"
	"github.com/3leaps/mediagrab/pkg/sweeper"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Remove expired download jobs and artifacts",
	Long: `Remove terminal jobs older than --max-age together with their stored
artifacts and retrieval records, then clear stale files from the
staging area.

Examples:
  # Preview what would be removed
  mediagrab sweep --max-age 30d --dry-run

  # Remove failed jobs older than 7 days, keep completed ones
  mediagrab sweep --max-age 7d --keep-completed

  # Remove everything terminal older than 90 days
  mediagrab sweep --max-age 90d`,
	RunE: runSweep,
}

func init() {
	sweepCmd.Flags().String("max-age", "", "Remove terminal jobs older than this duration (e.g., 30d, 720h)")
	sweepCmd.Flags().Bool("keep-completed", false, "Only remove failed jobs")
	sweepCmd.Flags().Bool("dry-run", false, "Preview what would be removed without removing")
	sweepCmd.Flags().Bool("skip-workdir", false, "Do not clean the staging area")
	sweepCmd.Flags().Bool("json", false, "Output as JSON")
	rootCmd.AddCommand(sweepCmd)
}

func runSweep(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	maxAgeStr, _ := cmd.Flags().GetString("max-age")
	keepCompleted, _ := cmd.Flags().GetBool("keep-completed")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	skipWorkdir, _ := cmd.Flags().GetBool("skip-workdir")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	if maxAgeStr == "" {
		return exitError(foundry.ExitInvalidArgument, "Missing required flag",
			fmt.Errorf("--max-age must be specified"))
	}
	maxAge, err := parseDuration(maxAgeStr)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid --max-age", err)
	}

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	sw := sweeper.New(a.store, a.artifacts, observability.CLILogger)
	report, err := sw.Sweep(ctx, sweeper.Params{
		MaxAge:        maxAge,
		KeepCompleted: keepCompleted,
		DryRun:        dryRun,
	})
	if err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Sweep failed", err)
	}

	var workReport *sweeper.Report
	if !skipWorkdir && !dryRun {
		workReport, err = sw.CleanWorkingArea(a.cfg.Storage.WorkDir, maxAge)
		if err != nil {
			return exitError(foundry.ExitFileWriteError, "Failed to clean staging area", err)
		}
	}

	if jsonOutput {
		out := map[string]any{"jobs": report}
		if workReport != nil {
			out["staging"] = workReport
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	return printSweepTable(report, workReport)
}

func printSweepTable(report, workReport *sweeper.Report) error {
	action := "Removed"
	if report.DryRun {
		action = "Would remove"
		_, _ = fmt.Fprintln(os.Stderr, "DRY RUN - no changes made")
		_, _ = fmt.Fprintln(os.Stderr)
	}

	_, _ = fmt.Fprintf(os.Stderr, "%s %d of %d expired job(s)\n", action, report.Removed, report.Scanned)
	_, _ = fmt.Fprintf(os.Stderr, "Space freed: %s\n", formatBytes(report.BytesFreed))
	if workReport != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Staging files removed: %d (%s)\n",
			workReport.Removed, formatBytes(workReport.BytesFreed))
	}

	if len(report.Errors) > 0 {
		_, _ = fmt.Fprintln(os.Stderr)
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "ERROR")
		for _, e := range report.Errors {
			_, _ = fmt.Fprintf(w, "%s\n", e)
		}
		_ = w.Flush()
		return fmt.Errorf("sweep completed with %d error(s)", len(report.Errors))
	}
	return nil
}
