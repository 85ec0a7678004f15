package main

import (
	"context"
	"fmt"
	"path/filepath"
	"text/tabwriter"

	"github.com/sagerun/sage/internal/config"
	"github.com/sagerun/sage/internal/sessions"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// buildConfigCmd implements the "config show|validate|init" surface.
func buildConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or scaffold the Sage configuration file",
	}
	cmd.AddCommand(buildConfigShowCmd(), buildConfigValidateCmd(), buildConfigInitCmd())
	return cmd
}

func buildConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the resolved configuration as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			out, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("marshal config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}

func buildConfigValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Load the configuration and run its validation rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := resolveConfigPath()
			cfg, err := config.Load(path)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := config.Validate(cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is valid\n", path)
			return nil
		},
	}
}

func buildConfigInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := resolveConfigPath()
			if err := config.WriteDefault(path, force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config file")
	return cmd
}

// buildSessionCmd implements the "session resume|list|delete" surface,
// driven off the same FileStore the REPL records into.
func buildSessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect recorded sessions",
	}
	cmd.AddCommand(buildSessionListCmd(), buildSessionDeleteCmd(), buildSessionResumeCmd())
	return cmd
}

func openSessionStore() (*sessions.FileStore, error) {
	return sessions.NewFileStore(filepath.Join(stateDir(), "sessions"))
}

func buildSessionListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List recorded sessions, most recently updated first",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openSessionStore()
			if err != nil {
				return err
			}
			summaries, err := store.List()
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 2, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSTATE\tMODEL\tMESSAGES\tUPDATED")
			for _, s := range summaries {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", s.ID, s.State, s.Model, s.MessageCount, s.UpdatedAt.Format("2006-01-02 15:04:05"))
			}
			return w.Flush()
		},
	}
}

func buildSessionDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <session-id>",
		Short: "Delete a recorded session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openSessionStore()
			if err != nil {
				return err
			}
			if err := store.Delete(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	}
}

func buildSessionResumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resume <session-id>",
		Short: "Reopen a recorded session in the interactive REPL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runREPLResume(cmd, resolveConfigPath(), args[0])
		},
	}
}

// resumableSession loads a session file's prior state just far enough to
// confirm it exists and is resumable; runREPLResume does the actual reuse.
func resumableSession(ctx context.Context, store *sessions.FileStore, id string) error {
	if !store.Exists(id) {
		return fmt.Errorf("session %s not found", id)
	}
	sf, err := store.Load(id)
	if err != nil {
		return fmt.Errorf("load session %s: %w", id, err)
	}
	if sf.Session.State == "failed" {
		return fmt.Errorf("session %s ended in a failed state and cannot be resumed", id)
	}
	return nil
}
