package config

import (
	"time"
)

// ServerConfig holds the small local-listener surface Sage has: a
// Prometheus metrics endpoint. Zero disables it.
type ServerConfig struct {
	MetricsPort int `yaml:"metrics_port"`
}

// DatabaseConfig configures the optional SQL session-store backend. An
// empty URL keeps sessions on the file store.
type DatabaseConfig struct {
	URL             string        `yaml:"url"`
	MaxConnections  int           `yaml:"max_connections"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}
