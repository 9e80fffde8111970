// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"hfmirror/pkg/hfmirror"
)

// DefaultConfig returns the default configuration.
func DefaultConfig() map[string]any {
	return map[string]any{
		"output":    ".",
		"retries":   3,
		"backoff":   "1s",
		"timeout":   "60s",
		"workers":   1,
		"max-pages": 1000,
		"endpoint":  "",
		"token":     "",
	}
}

func configBase() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "hfmirror")
}

// findConfig returns the first existing config file, preferring JSON.
func findConfig() string {
	for _, ext := range []string{".json", ".yaml", ".yml"} {
		p := configBase() + ext
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// applySettingsDefaults layers config-file values under flag values. A flag
// the user set on the command line always wins.
func applySettingsDefaults(cmd *cobra.Command, ro *RootOpts, dst *hfmirror.Settings) error {
	path := ro.Config
	if path == "" {
		path = findConfig()
	}
	if path == "" {
		return nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var cfg map[string]any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return fmt.Errorf("invalid YAML config file: %w", err)
		}
	default:
		if err := json.Unmarshal(b, &cfg); err != nil {
			return fmt.Errorf("invalid JSON config file: %w", err)
		}
	}

	setStr := func(flagName string, set func(string)) {
		if cmd.Flags().Changed(flagName) {
			return
		}
		if v, ok := cfg[flagName]; ok && v != nil {
			set(fmt.Sprint(v))
		}
	}
	setInt := func(flagName string, set func(int)) {
		setStr(flagName, func(s string) {
			var x int
			fmt.Sscan(s, &x)
			set(x)
		})
	}
	setDur := func(flagName string, set func(time.Duration)) {
		setStr(flagName, func(s string) {
			if d, err := time.ParseDuration(s); err == nil {
				set(d)
			}
		})
	}

	setStr("output", func(v string) { dst.OutputDir = v })
	setInt("retries", func(v int) { dst.Retries = v })
	setDur("backoff", func(v time.Duration) { dst.Backoff = v })
	setDur("timeout", func(v time.Duration) { dst.Timeout = v })
	setInt("workers", func(v int) { dst.Workers = v })
	setInt("max-pages", func(v int) { dst.MaxPages = v })
	setStr("endpoint", func(v string) { dst.Endpoint = v })

	if !cmd.Flags().Changed("token") && os.Getenv("HF_TOKEN") == "" {
		if v, ok := cfg["token"]; ok && v != nil {
			ro.Token = fmt.Sprint(v)
		}
	}

	return nil
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigPathCmd())

	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var (
		force   bool
		useYAML bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a default configuration file",
		Long: `Creates a default configuration file at ~/.config/hfmirror.json (or .yaml)

The configuration file sets default values for all command flags.
CLI flags always override config file values.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ext := ".json"
			if useYAML {
				ext = ".yaml"
			}
			configPath := configBase() + ext

			if _, err := os.Stat(configPath); err == nil && !force {
				return fmt.Errorf("config file already exists: %s\nUse --force to overwrite", configPath)
			}
			if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
				return fmt.Errorf("could not create config directory: %w", err)
			}

			cfg := DefaultConfig()
			var data []byte
			var err error
			if useYAML {
				data, err = yaml.Marshal(cfg)
			} else {
				data, err = json.MarshalIndent(cfg, "", "  ")
			}
			if err != nil {
				return err
			}

			if err := os.WriteFile(configPath, data, 0o644); err != nil {
				return fmt.Errorf("could not write config file: %w", err)
			}

			fmt.Printf("Created config file: %s\n", configPath)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite existing config file")
	cmd.Flags().BoolVar(&useYAML, "yaml", false, "Create YAML config instead of JSON")

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := findConfig()
			if path == "" {
				fmt.Println("No config file found.")
				fmt.Printf("Run 'hfmirror config init' to create one at:\n  %s.json\n", configBase())
				return nil
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			fmt.Printf("Config file: %s\n\n", path)
			fmt.Println(string(data))
			return nil
		},
	}
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the config file path",
		Run: func(cmd *cobra.Command, args []string) {
			if p := findConfig(); p != "" {
				fmt.Println(p)
				return
			}
			fmt.Println(configBase() + ".json")
		},
	}
}
