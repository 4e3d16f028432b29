package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nao1215/imgfetch/internal/config"
	"github.com/nao1215/imgfetch/internal/database"
	"github.com/nao1215/imgfetch/internal/model"
	"github.com/nao1215/imgfetch/internal/report"
)

// defaultHistoryLimit is how many runs are listed without --limit.
const defaultHistoryLimit = 20

// NewHistoryCmd creates the history command.
// This command reads the runs recorded by fetch from the history database.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "Show past fetch runs",
		Long: `History lists the runs recorded by 'imgfetch fetch'.

With a run ID (or a unique prefix of one) it shows every URL of that run
and what happened to it. With --fingerprint it shows every time a given
content hash was fetched, across all runs.

The history is informational. Deduplication always uses the hash index
file inside each output directory.

Examples:
  # List the 20 most recent runs
  imgfetch history

  # Show one run
  imgfetch history 0b9e7a8c

  # Where did this image come from?
  imgfetch history --fingerprint e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855

  # Output in JSON format
  imgfetch history --json`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHistoryCmd,
	}

	cmd.Flags().IntP("limit", "n", defaultHistoryLimit,
		"Maximum number of runs to list (0 lists all)")
	cmd.Flags().StringP("fingerprint", "f", "",
		"Show every fetch of this SHA-256 content fingerprint")
	cmd.Flags().BoolP("json", "j", false,
		"Output in JSON format")
	cmd.Flags().String("db-dir", "",
		"History database directory (default: XDG data directory)")

	return cmd
}

// runHistoryCmd executes the history command.
func runHistoryCmd(cmd *cobra.Command, args []string) error {
	limit, err := cmd.Flags().GetInt("limit")
	if err != nil {
		return err
	}
	if limit < 0 {
		return errors.New("--limit must be non-negative")
	}

	rawFingerprint, err := cmd.Flags().GetString("fingerprint")
	if err != nil {
		return err
	}
	if rawFingerprint != "" && len(args) > 0 {
		return errors.New("--fingerprint cannot be combined with a run ID")
	}

	// Validate arguments before opening the database
	var fp model.Fingerprint
	if rawFingerprint != "" {
		if fp, err = model.ParseFingerprint(rawFingerprint); err != nil {
			return fmt.Errorf("invalid fingerprint: %w", err)
		}
	}

	asJSON, err := cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}

	dbDir, err := cmd.Flags().GetString("db-dir")
	if err != nil {
		return err
	}
	if dbDir == "" {
		dbDir = config.XDGDataDir()
	}

	db, err := database.Open(dbDir, database.DefaultOptions())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	text := report.NewHistoryWriter(out)
	js := report.NewJSONWriter(out, report.WithPrettyPrint())

	switch {
	case rawFingerprint != "":
		fetches, err := db.FindByFingerprint(ctx, fp)
		if err != nil {
			return err
		}
		if asJSON {
			_, err = js.WriteValue(fetches)
			return err
		}
		return text.WriteMatches(fetches)

	case len(args) == 1:
		run, err := db.GetRun(ctx, args[0])
		if err != nil {
			return err
		}
		fetches, err := db.ListFetches(ctx, run.ID)
		if err != nil {
			return err
		}
		if asJSON {
			_, err = js.WriteValue(struct {
				*database.Run
				Fetches []database.FetchRecord `json:"fetches"`
			}{run, fetches})
			return err
		}
		return text.WriteRun(run, fetches)

	default:
		runs, err := db.ListRuns(ctx, limit)
		if err != nil {
			return err
		}
		if asJSON {
			_, err = js.WriteValue(runs)
			return err
		}
		return text.WriteRuns(runs)
	}
}
