// Package main provides the sage-edge daemon: a headless runner that
// connects out to a control plane and drives a detached execution loop
// against the local workspace.
//
// Usage:
//
//	sage-edge --server wss://plane.example.com/edge --edge-id build-box --secret $SAGE_EDGE_SECRET
//
// Tasks arrive as JSON frames over the WebSocket; each one is run through
// the execution loop and its outcome is posted back on the same
// connection.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sagerun/sage/internal/auth"
	"github.com/sagerun/sage/internal/backoff"
	"github.com/sagerun/sage/internal/config"
)

// Build information, populated by ldflags during build.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("sage-edge failed", "error", err)
		os.Exit(1)
	}
}

type edgeFlags struct {
	configPath string
	serverURL  string
	edgeID     string
	name       string
	secret     string
	token      string
	workdir    string
}

func buildRootCmd() *cobra.Command {
	flags := &edgeFlags{}

	rootCmd := &cobra.Command{
		Use:          "sage-edge",
		Short:        "Sage edge runner - executes tasks from a control plane",
		Version:      fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runEdge(cmd, flags)
		},
	}

	hostname, _ := os.Hostname()
	rootCmd.Flags().StringVar(&flags.configPath, "config", "", "Path to the Sage config file")
	rootCmd.Flags().StringVar(&flags.serverURL, "server", "", "Control plane WebSocket URL (ws:// or wss://)")
	rootCmd.Flags().StringVar(&flags.edgeID, "edge-id", hostname, "Unique identifier for this edge")
	rootCmd.Flags().StringVar(&flags.name, "name", hostname, "Human-readable name for this edge")
	rootCmd.Flags().StringVar(&flags.secret, "secret", os.Getenv("SAGE_EDGE_SECRET"), "Shared secret for minting edge JWTs")
	rootCmd.Flags().StringVar(&flags.token, "token", os.Getenv("SAGE_EDGE_TOKEN"), "Static bearer token (overrides --secret)")
	rootCmd.Flags().StringVar(&flags.workdir, "workdir", "", "Workspace directory (defaults to config or cwd)")
	return rootCmd
}

func runEdge(cmd *cobra.Command, flags *edgeFlags) error {
	if flags.serverURL == "" {
		return fmt.Errorf("--server is required")
	}

	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	workdir := flags.workdir
	if workdir == "" {
		workdir = cfg.Workspace.Path
	}
	if workdir == "" {
		workdir, _ = os.Getwd()
	}

	secret := flags.secret
	if secret == "" {
		secret = cfg.Auth.JWTSecret
	}
	expiry := cfg.Auth.TokenExpiry
	if expiry <= 0 {
		expiry = 15 * time.Minute
	}

	var tokens auth.TokenProvider
	switch {
	case flags.token != "":
		tokens = auth.StaticTokenProvider(flags.token)
	case secret != "":
		tokens = &auth.JWTTokenProvider{
			Service:  auth.NewJWTService(secret, expiry),
			Identity: auth.EdgeIdentity{EdgeID: flags.edgeID, Workspace: workdir, Name: flags.name},
		}
	default:
		return fmt.Errorf("either --token, --secret, or auth.jwt_secret in config is required")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	daemon, err := newDaemon(cfg, workdir, flags.serverURL, flags.edgeID, tokens)
	if err != nil {
		return err
	}
	defer daemon.Close()

	// Reconnect forever on the slow redial schedule; a clean shutdown is
	// the only way out.
	redial := backoff.New(backoff.Reconnect())
	attempt := 0
	for {
		err := daemon.ConnectAndServe(ctx)
		if ctx.Err() != nil {
			return nil
		}
		attempt++
		slog.Warn("control plane connection lost", "error", err, "attempt", attempt)
		if serr := backoff.Sleep(ctx, redial.Next()); serr != nil {
			return nil
		}
	}
}
