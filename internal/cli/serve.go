// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"hfmirror/internal/server"
)

func newServeCmd(ro *RootOpts) *cobra.Command {
	cfg := server.DefaultConfig()

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server for remote-controlled mirroring",
		Long: `Start an HTTP server that provides:
  - REST API for managing mirror jobs
  - WebSocket feed with live progress updates

The output path is configured server-side only (not via API).

Example:
  hfmirror serve
  hfmirror serve --port 3000 --output ./Mirror`,
		RunE: func(cmd *cobra.Command, args []string) error {
			token := strings.TrimSpace(ro.Token)
			if token == "" {
				token = strings.TrimSpace(os.Getenv("HF_TOKEN"))
			}
			cfg.Token = token

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			return server.New(cfg).ListenAndServe(ctx)
		},
	}

	cmd.Flags().StringVar(&cfg.Addr, "addr", cfg.Addr, "Address to bind to")
	cmd.Flags().IntVarP(&cfg.Port, "port", "p", cfg.Port, "Port to listen on")
	cmd.Flags().StringVarP(&cfg.OutputDir, "output", "o", cfg.OutputDir, "Mirror destination root")
	cmd.Flags().IntVarP(&cfg.Workers, "workers", "w", cfg.Workers, "Concurrent file transfers per job")
	cmd.Flags().IntVar(&cfg.Retries, "retries", cfg.Retries, "Max retry attempts per request")
	cmd.Flags().StringVar(&cfg.Endpoint, "endpoint", "", "Hub endpoint override")

	return cmd
}
