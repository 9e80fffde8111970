// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"hfmirror/pkg/gdrive"
)

func newGdriveCmd(ctx context.Context, ro *RootOpts) *cobra.Command {
	cfg := &gdrive.Settings{}
	var folder bool

	cmd := &cobra.Command{
		Use:   "gdrive URL",
		Short: "Mirror a Google Drive file or folder to a local directory",
		Long: `Mirror a Google Drive file or folder.

Folder mirroring requires a Drive API key (--api-key or GDRIVE_API_KEY env).
Public single files work without one.

Examples:
  hfmirror gdrive "https://drive.google.com/file/d/FILE_ID/view" -o ./data
  hfmirror gdrive "https://drive.google.com/drive/folders/FOLDER_ID" --api-key KEY`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.APIKey == "" {
				cfg.APIKey = strings.TrimSpace(os.Getenv("GDRIVE_API_KEY"))
			}

			loc, err := gdrive.ParseURL(args[0])
			if err != nil {
				return err
			}
			if folder {
				loc.IsFolder = true
			}

			var progress = quietProgress()
			if ro.JSONOut {
				progress = jsonProgress(os.Stdout)
			}

			sum, err := gdrive.MirrorLocator(ctx, loc, *cfg, progress)
			if err != nil {
				return err
			}
			if !sum.OK() {
				return fmt.Errorf("%w: %d failed, %d folders abandoned",
					ErrIncomplete, sum.Failed, sum.ListingShortfalls)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&cfg.OutputDir, "output", "o", ".", "Destination base directory")
	cmd.Flags().StringVar(&cfg.APIKey, "api-key", "", "Drive API key (also reads GDRIVE_API_KEY env)")
	cmd.Flags().BoolVar(&folder, "folder", false, "Treat the URL as a folder even if the shape is ambiguous")
	cmd.Flags().IntVar(&cfg.Retries, "retries", 3, "Max retry attempts per request or transfer")
	cmd.Flags().DurationVar(&cfg.Backoff, "backoff", 0, "Base delay for exponential retry backoff (default 1s)")
	cmd.Flags().IntVarP(&cfg.Workers, "workers", "w", 4, "Concurrent file transfers per folder")

	return cmd
}
