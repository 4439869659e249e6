package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/mediagrab/internal/observability"
	"github.com/3leaps/mediagrab/pkg/downloader"
	"github.com/3leaps/mediagrab/pkg/orchestrator"
)

var (
	getPlatform string
	getQuality  string
	getOutput   string
	getJSON     bool
)

var getCmd = &cobra.Command{
	Use:   "get URL",
	Short: "Download a single media URL synchronously",
	Long: `Submit and run one download job in the foreground. The platform is
detected from the URL unless --platform is given. With --output the
artifact is copied out of content storage to the given path.`,
	Args: cobra.ExactArgs(1),
	RunE: runGet,
}

func init() {
	getCmd.Flags().StringVar(&getPlatform, "platform", "", "Platform (youtube|facebook|tiktok|instagram|twitter); detected from URL when empty")
	getCmd.Flags().StringVar(&getQuality, "quality", "", "Quality (low|medium|high|highest); default high")
	getCmd.Flags().StringVarP(&getOutput, "output", "o", "", "Copy the artifact to this path after completion")
	getCmd.Flags().BoolVar(&getJSON, "json", false, "Emit the final job record as JSON")
	rootCmd.AddCommand(getCmd)
}

func runGet(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	rawURL := args[0]
	platform := downloader.Platform(getPlatform)
	if getPlatform == "" {
		detected, id, err := detectPlatform(a.registry, rawURL)
		if err != nil {
			return exitError(foundry.ExitInvalidArgument, "Unrecognized URL", err)
		}
		platform = detected
		observability.CLILogger.Debug("platform detected",
			zap.String("platform", platform.String()),
			zap.String("identifier", id))
	}

	job, err := a.orch.Submit(ctx, orchestrator.Request{
		Platform:    platform,
		SourceURL:   rawURL,
		Quality:     downloader.Quality(getQuality),
		RequesterID: "cli",
	})
	if err != nil {
		if downloader.IsValidation(err) {
			return exitError(foundry.ExitInvalidArgument, "Download rejected", err)
		}
		return exitError(foundry.ExitExternalServiceUnavailable, "Download rejected", err)
	}

	observability.CLILogger.Info("download started",
		zap.String("job_id", job.ID),
		zap.String("platform", platform.String()))

	if err := a.orch.Process(ctx, job.ID); err != nil {
		if ctx.Err() != nil {
			return exitError(foundry.ExitSignalInt, "Download cancelled", ctx.Err())
		}
		return exitError(foundry.ExitExternalServiceUnavailable, "Download failed", err)
	}

	final, err := a.store.GetJob(ctx, job.ID)
	if err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Failed to read job record", err)
	}
	if final.State != downloader.StateCompleted {
		return exitError(foundry.ExitExternalServiceUnavailable, "Download failed",
			fmt.Errorf("job %s: %s", final.ID, final.ErrorDetail))
	}

	if getOutput != "" {
		if err := copyArtifact(ctx, a, final); err != nil {
			return err
		}
	}

	if getJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(final)
	}

	observability.CLILogger.Info("download complete",
		zap.String("job_id", final.ID),
		zap.String("artifact", final.ArtifactKey),
		zap.String("size", formatBytes(final.FileSize)))
	fmt.Fprintln(cmd.OutOrStdout(), final.ArtifactKey)
	return nil
}

func copyArtifact(ctx context.Context, a *app, job *downloader.Job) error {
	body, _, err := a.artifacts.Open(ctx, job.ArtifactKey)
	if err != nil {
		return exitError(foundry.ExitFileReadError, "Failed to open artifact", err)
	}
	defer func() { _ = body.Close() }()

	dest := getOutput
	if info, err := os.Stat(dest); err == nil && info.IsDir() {
		dest = filepath.Join(dest, filepath.Base(job.ArtifactKey))
	}

	out, err := os.Create(dest)
	if err != nil {
		return exitError(foundry.ExitFileWriteError, "Failed to create output file", err)
	}
	if _, err := io.Copy(out, body); err != nil {
		_ = out.Close()
		_ = os.Remove(dest)
		return exitError(foundry.ExitFileWriteError, "Failed to write output file", err)
	}
	if err := out.Close(); err != nil {
		return exitError(foundry.ExitFileWriteError, "Failed to write output file", err)
	}
	observability.CLILogger.Info("artifact copied", zap.String("path", dest))
	return nil
}
