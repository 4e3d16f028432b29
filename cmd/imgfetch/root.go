package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/nao1215/imgfetch/internal/log"
)

// NewRootCmd creates the root command for imgfetch.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "imgfetch",
		Short: "Deduplicating image downloader",
		Long: `imgfetch downloads images from a list of URLs into an output directory.

Every saved image is remembered by the SHA-256 of its content, so the same
image is never saved twice, no matter which URL or file name it comes from.
Responses that are not images, are empty, or exceed the size limit are
skipped with a reason.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().Bool("log-json", false, "Write log records to stderr as JSON")

	cmd.AddCommand(NewFetchCmd())
	cmd.AddCommand(NewExportCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command. Only run-fatal conditions exit non-zero.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "imgfetch:", err)
		os.Exit(1)
	}
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// setupLogger creates the secure structured logger on stderr.
func setupLogger(cmd *cobra.Command) *slog.Logger {
	asJSON, err := cmd.Flags().GetBool("log-json")
	if err != nil {
		asJSON, _ = cmd.Root().PersistentFlags().GetBool("log-json") //nolint:errcheck // defined on root
	}
	if asJSON {
		return log.NewSecureJSONLogger(cmd.ErrOrStderr(), getVerboseFlag(cmd))
	}
	return log.NewSecureLogger(cmd.ErrOrStderr(), getVerboseFlag(cmd))
}
