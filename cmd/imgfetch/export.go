package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nao1215/imgfetch/internal/config"
	"github.com/nao1215/imgfetch/internal/store"
)

// ErrArchiveInsideOutput is returned when the archive would be written into
// the directory being archived.
var ErrArchiveInsideOutput = errors.New("archive must be written outside the output directory")

// NewExportCmd creates the export command.
func NewExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <archive>",
		Short: "Pack an output directory into an archive",
		Long: `Export writes the images of an output directory, together with its hash
index, into a .tar, .tar.gz (.tgz) or .zip archive. The format follows the
archive's extension.

Unpacking the archive into an empty directory and fetching into it again
keeps skipping the content that was already saved.

Examples:
  # Archive ./Fetched_Images
  imgfetch export images.tar.gz

  # Archive another directory as zip
  imgfetch export -d pics pics.zip`,
		Args: cobra.ExactArgs(1),
		RunE: runExportCmd,
	}

	cmd.Flags().StringP("output-dir", "d", config.DefaultOutputDir,
		"Output directory to archive")
	cmd.Flags().BoolP("force", "f", false,
		"Overwrite an existing archive")

	return cmd
}

// runExportCmd executes the export command.
func runExportCmd(cmd *cobra.Command, args []string) error {
	dir, err := cmd.Flags().GetString("output-dir")
	if err != nil {
		return err
	}
	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return err
	}
	archivePath := args[0]

	if err := store.ValidateArchiveName(archivePath); err != nil {
		return err
	}

	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("output directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("output path %s is not a directory", dir)
	}
	st, err := store.Open(dir)
	if err != nil {
		return err
	}
	if st.Contains(archivePath) {
		return fmt.Errorf("%w: %s", ErrArchiveInsideOutput, archivePath)
	}

	if !force {
		if _, err := os.Lstat(archivePath); err == nil {
			return fmt.Errorf("archive already exists: %s (use -f to overwrite)", archivePath)
		}
	}

	parent := filepath.Dir(archivePath)
	if err := os.MkdirAll(parent, 0750); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	// The archive is built next to its target and only moved into place
	// once complete.
	tmp, err := os.CreateTemp(parent, "."+filepath.Base(archivePath)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }() //nolint:errcheck // gone after a successful rename

	n, err := st.Archive(cmd.Context(), tmp, archivePath)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return err
	}
	if err := os.Chmod(tmpPath, 0600); err != nil {
		return fmt.Errorf("failed to set archive permissions: %w", err)
	}

	if force {
		err = os.Rename(tmpPath, archivePath)
	} else {
		// Link fails instead of replacing a file created meanwhile.
		err = os.Link(tmpPath, archivePath)
	}
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("archive already exists: %s (use -f to overwrite)", archivePath)
		}
		return fmt.Errorf("failed to write archive: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "archived %d images from %s to %s\n", n, dir, archivePath)
	return nil
}
