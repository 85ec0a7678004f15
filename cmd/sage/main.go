// Package main provides the CLI entry point for Sage: an interactive REPL
// that drives the execution loop, plus subcommands
// for config and session management.
//
// Start the REPL:
//
//	sage
//
// Inspect the active configuration:
//
//	sage config show
//
// Resume a previous session:
//
//	sage session resume <id>
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/sagerun/sage/internal/config"
	"github.com/spf13/cobra"
)

// Build information, populated by ldflags during build.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

var configPath string

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "sage",
		Short:   "Sage - an agentic assistant runtime",
		Version: fmt.Sprintf("%s (commit: %s)", version, commit),
		Long: `Sage converses with an LLM, lets the model invoke local tools against a
workspace, records every exchange durably, and surfaces progress to an
interactive terminal.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runREPL(cmd, resolveConfigPath())
		},
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to the Sage config file (default: "+config.DefaultConfigPath()+")")

	rootCmd.AddCommand(
		buildConfigCmd(),
		buildSessionCmd(),
	)
	return rootCmd
}

func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	if env := os.Getenv("SAGE_CONFIG"); env != "" {
		return env
	}
	return config.DefaultConfigPath()
}
