package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"

	"github.com/3leaps/mediagrab/pkg/downloader"
	"github.com/3leaps/mediagrab/pkg/jobstore"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List download jobs",
	Long: `List download jobs from the job store, newest first.

Examples:
  # All recent jobs
  mediagrab jobs

  # Only failed jobs
  mediagrab jobs --state failed

  # Machine-readable output
  mediagrab jobs --json --limit 500`,
	RunE: runJobs,
}

func init() {
	jobsCmd.Flags().String("state", "", "Filter by state (pending|downloading|completed|failed)")
	jobsCmd.Flags().String("requester", "", "Filter by requester identity")
	jobsCmd.Flags().Int("limit", 100, "Maximum number of jobs to list")
	jobsCmd.Flags().Bool("json", false, "Output as JSON")
	rootCmd.AddCommand(jobsCmd)
}

func runJobs(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	state, _ := cmd.Flags().GetString("state")
	requester, _ := cmd.Flags().GetString("requester")
	limit, _ := cmd.Flags().GetInt("limit")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	jobs, err := a.store.ListJobs(ctx, jobstore.ListFilter{
		RequesterID: requester,
		State:       downloader.State(state),
		Limit:       limit,
	})
	if err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Failed to list jobs", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{"downloads": jobs})
	}

	if len(jobs) == 0 {
		_, _ = fmt.Fprintln(os.Stderr, "No jobs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tPLATFORM\tSTATE\tPROGRESS\tSIZE\tTITLE\tCREATED")
	for i := range jobs {
		j := &jobs[i]
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d%%\t%s\t%s\t%s\n",
			j.ID,
			j.Platform,
			j.State,
			j.Progress,
			formatBytes(j.FileSize),
			truncate(j.Title, 40),
			j.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	return w.Flush()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
