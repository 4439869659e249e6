package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"

	"github.com/3leaps/mediagrab/pkg/downloader"
	"github.com/3leaps/mediagrab/pkg/downloader/strategies"
)

var validateCmd = &cobra.Command{
	Use:   "validate URL",
	Short: "Check whether a URL is recognized",
	Long: `Check a URL against the platform URL patterns without creating a job
or touching the job store. Prints the detected platform and media
identifier.`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().String("platform", "", "Restrict matching to one platform")
	validateCmd.Flags().Bool("json", false, "Output as JSON")
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	platformFlag, _ := cmd.Flags().GetString("platform")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	rawURL := args[0]

	// Pattern matching needs no fetcher or storage.
	var opts strategies.Options
	candidates := []downloader.Strategy{
		strategies.NewYouTube(opts),
		strategies.NewTikTok(opts),
		strategies.NewInstagram(opts),
	}

	var matched downloader.Strategy
	var identifier string
	for _, s := range candidates {
		if platformFlag != "" && s.Platform().String() != platformFlag {
			continue
		}
		if id, err := s.ResolveID(rawURL); err == nil {
			matched = s
			identifier = id
			break
		}
	}

	if matched == nil {
		if jsonOutput {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			_ = enc.Encode(map[string]any{"valid": false, "url": rawURL})
		}
		return exitError(foundry.ExitInvalidArgument, "URL not recognized",
			fmt.Errorf("%q matches no platform pattern", rawURL))
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"valid":      true,
			"url":        rawURL,
			"platform":   matched.Platform().String(),
			"identifier": identifier,
		})
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", matched.Platform(), identifier)
	return nil
}
