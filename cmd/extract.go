package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// newExtractCmd creates the 'extract' subcommand, which performs one run.
func newExtractCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Fetches the feed and writes the blocklist",
		Long: `Fetches the urlsec risk list, cleans and deduplicates the reported URLs and
overwrites the output file. Exits non-zero without touching the output when no
entries could be extracted.`,
		Annotations: map[string]string{annotationNeedsApp: "true"},
		RunE:        runExtractCommand,
	}

	cmd.Flags().String("output", "", "output file (overrides output.path)")
	cmd.Flags().Int("concurrency", 0, "maximum concurrent requests (overrides fetch.max_concurrent_requests)")
	_ = viper.BindPFlag("output.path", cmd.Flags().Lookup("output"))
	_ = viper.BindPFlag("fetch.max_concurrent_requests", cmd.Flags().Lookup("concurrency"))

	return cmd
}

func runExtractCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	// PersistentPostRun is skipped when RunE fails, so close here.
	defer appInstance.Close()

	report, err := appInstance.Run(cmd.Context())
	if err != nil {
		return fmt.Errorf("extract: %w", err)
	}

	appInstance.Logger().Info("Extract command finished.",
		zap.String("run_id", report.RunID),
		zap.Int("entries", report.Entries),
		zap.String("sha256", report.SHA256),
		zap.Strings("uris", report.URIs),
	)
	return nil
}
