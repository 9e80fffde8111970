// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"hfmirror/internal/tui"
	"hfmirror/pkg/hfmirror"
)

// RootOpts holds global CLI options.
type RootOpts struct {
	Token   string
	JSONOut bool
	Quiet   bool
	Config  string
}

// ErrIncomplete is returned when a run finishes with failed downloads or
// abandoned subtrees, so the process exits nonzero.
var ErrIncomplete = fmt.Errorf("mirror incomplete")

// Execute runs the CLI with the given version string.
func Execute(version string) error {
	ro := &RootOpts{}
	ctx, cancel := signalContext(context.Background())
	defer cancel()

	root := &cobra.Command{
		Use:           "hfmirror",
		Short:         "Mirror Hugging Face repositories and Google Drive folders to local storage",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
	}

	root.PersistentFlags().StringVarP(&ro.Token, "token", "t", "", "Hugging Face access token (also reads HF_TOKEN env)")
	root.PersistentFlags().BoolVar(&ro.JSONOut, "json", false, "Emit machine-readable JSON events")
	root.PersistentFlags().BoolVarP(&ro.Quiet, "quiet", "q", false, "Quiet mode (minimal output)")
	root.PersistentFlags().StringVar(&ro.Config, "config", "", "Path to config file (JSON or YAML)")

	mirrorCmd := newMirrorCmd(ctx, ro)
	root.AddCommand(mirrorCmd)
	root.AddCommand(newGdriveCmd(ctx, ro))
	root.AddCommand(newVersionCmd(version))
	root.AddCommand(newServeCmd(ro))
	root.AddCommand(newConfigCmd())

	// Make mirror the default command when no subcommand is given
	root.RunE = mirrorCmd.RunE
	root.PreRunE = mirrorCmd.PreRunE
	root.Args = cobra.ArbitraryArgs
	root.Flags().AddFlagSet(mirrorCmd.Flags())
	root.SetHelpCommand(&cobra.Command{Use: "help", Hidden: true})

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return err
	}
	return nil
}

func newMirrorCmd(ctx context.Context, ro *RootOpts) *cobra.Command {
	cfg := &hfmirror.Settings{}
	var dryRun bool
	var planFmt string

	cmd := &cobra.Command{
		Use:   "mirror URL",
		Short: "Mirror a Hugging Face repository path to a local directory",
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return applySettingsDefaults(cmd, ro, cfg)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return cmd.Help()
			}
			finalCfg, loc, err := finalize(ro, args[0], cfg)
			if err != nil {
				return err
			}

			// Plan-only mode: walk the tree and print the manifest.
			if dryRun {
				return runPlan(ctx, loc, finalCfg, ro, planFmt)
			}

			progress, closeUI := selectProgress(ro, loc)
			defer closeUI()

			sum, err := hfmirror.MirrorLocator(ctx, loc, finalCfg, progress)
			if err != nil {
				return err
			}
			if !sum.OK() {
				return fmt.Errorf("%w: %d failed, %d subtrees abandoned",
					ErrIncomplete, sum.Failed, sum.ListingShortfalls)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&cfg.OutputDir, "output", "o", ".", "Destination base directory")
	cmd.Flags().BoolVar(&cfg.ForceFile, "file", false, "Treat the URL as a single file even if it looks like a directory")
	cmd.Flags().IntVar(&cfg.Retries, "retries", 3, "Max retry attempts per request or transfer")
	cmd.Flags().DurationVar(&cfg.Backoff, "backoff", 0, "Base delay for exponential retry backoff (default 1s)")
	cmd.Flags().DurationVar(&cfg.Timeout, "timeout", 0, "Per-request timeout (default 60s)")
	cmd.Flags().IntVarP(&cfg.Workers, "workers", "w", 1, "Concurrent file transfers")
	cmd.Flags().IntVar(&cfg.MaxPages, "max-pages", 0, "Listing pages allowed per directory (default 1000)")
	cmd.Flags().StringVar(&cfg.Endpoint, "endpoint", "", "Hub endpoint override")

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Plan only: print the file list and exit")
	cmd.Flags().StringVar(&planFmt, "plan-format", "table", "Plan output format for --dry-run: table|json")

	return cmd
}

func runPlan(ctx context.Context, loc hfmirror.Locator, cfg hfmirror.Settings, ro *RootOpts, planFmt string) error {
	man, err := hfmirror.Plan(ctx, loc, cfg)
	if err != nil {
		return err
	}
	if strings.ToLower(planFmt) == "json" || ro.JSONOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(man)
	}
	fmt.Printf("Plan for %s@%s (%d files):\n", loc.RepoID, loc.Ref, len(man.Items))
	for _, it := range man.Items {
		fmt.Printf("  %s  %10d\n", it.RelPath, it.Size)
	}
	if man.Shortfalls > 0 {
		fmt.Printf("warning: %d subtrees could not be listed\n", man.Shortfalls)
	}
	return nil
}

// selectProgress picks the progress sink for the run. The returned closer is
// a no-op except for the live renderer.
func selectProgress(ro *RootOpts, loc hfmirror.Locator) (hfmirror.ProgressFunc, func()) {
	switch {
	case ro.JSONOut:
		return jsonProgress(os.Stdout), func() {}
	case ro.Quiet:
		return quietProgress(), func() {}
	default:
		ui := tui.NewRenderer(loc.RepoID, loc.Ref)
		return ui.Handler(), ui.Close
	}
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-ch:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

func finalize(ro *RootOpts, rawURL string, cfg *hfmirror.Settings) (hfmirror.Settings, hfmirror.Locator, error) {
	c := *cfg

	tok := strings.TrimSpace(ro.Token)
	if tok == "" {
		tok = strings.TrimSpace(os.Getenv("HF_TOKEN"))
	}
	c.Token = tok

	loc, err := hfmirror.ParseURL(rawURL)
	if err != nil {
		return c, loc, err
	}
	return c, loc, nil
}

// quietProgress prints only errors and the final summary.
func quietProgress() hfmirror.ProgressFunc {
	return func(ev hfmirror.ProgressEvent) {
		switch ev.Event {
		case "error":
			fmt.Fprintf(os.Stderr, "error: %s\n", ev.Message)
		case "done":
			fmt.Println(ev.Message)
		}
	}
}

// jsonProgress returns a JSON-lines progress handler.
func jsonProgress(w io.Writer) hfmirror.ProgressFunc {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	var mu sync.Mutex
	return func(ev hfmirror.ProgressEvent) {
		mu.Lock()
		_ = enc.Encode(ev)
		mu.Unlock()
	}
}
