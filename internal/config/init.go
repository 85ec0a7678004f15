package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// starterConfig is a minimal, human-editable config.yaml: enough to pass
// Validate once an API key is filled in, following the same shape Load
// expects (YAML, the documented dual-format convention).
const starterConfig = `# Sage configuration. See config show for the fully-resolved defaults.
llm:
  default_provider: anthropic
  providers:
    anthropic:
      api_key: ${ANTHROPIC_API_KEY}
      default_model: claude-sonnet-4-5

workspace:
  path: .

tools:
  execution:
    parallelism: 1
`

// WriteDefault scaffolds path with starterConfig, creating parent
// directories as needed. It refuses to overwrite an existing file unless
// force is set.
func WriteDefault(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(starterConfig), 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// DefaultStateDir returns the directory Sage keeps its own state in
// (sessions, trajectories, embedding caches): $HOME/.sage, falling back to
// the working directory if the home directory can't be resolved.
func DefaultStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".sage"
	}
	return filepath.Join(home, ".sage")
}

// DefaultConfigPath returns the config file path used when neither --config
// nor SAGE_CONFIG is set: <DefaultStateDir>/config.yaml.
func DefaultConfigPath() string {
	return filepath.Join(DefaultStateDir(), "config.yaml")
}
