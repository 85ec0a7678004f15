package config

// CommandsConfig configures REPL slash-command handling.
type CommandsConfig struct {
	// Enabled toggles slash-command handling. Defaults to true.
	Enabled *bool `yaml:"enabled"`

	// Prefix is the command prefix. Defaults to "/".
	Prefix string `yaml:"prefix"`
}
