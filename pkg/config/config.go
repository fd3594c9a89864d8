package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file read when none is given
const DefaultPath = "config.toml"

// Config represents the ingestion configuration
type Config struct {
	DatabasePath        string            `yaml:"database" toml:"database"`
	IgnoredRepositories []string          `yaml:"ignored_repositories" toml:"ignored_repositories"`
	AuthorMap           map[string]string `yaml:"author_map" toml:"author_map"`
	Workers             int               `yaml:"workers" toml:"workers"`
	MaxConnections      int               `yaml:"max_connections" toml:"max_connections"` // 0 sizes the pool from Workers
	FirstParent         bool              `yaml:"first_parent" toml:"first_parent"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		DatabasePath: "repositories.db",
		Workers:      8,
	}
}

// Load loads configuration from path and environment variables. An empty
// path falls back to GetConfigPath. A missing file is not an error.
// Priority: environment variables > config file > defaults
func Load(path string) (*Config, error) {
	if path == "" {
		path = GetConfigPath()
	}

	cfg, err := LoadFile(path)
	if err != nil {
		return nil, err
	}

	// Override with environment variables
	if db := os.Getenv("GITLOGDB_DB"); db != "" {
		cfg.DatabasePath = db
	}
	if workers := os.Getenv("GITLOGDB_WORKERS"); workers != "" {
		n, err := strconv.Atoi(workers)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("invalid GITLOGDB_WORKERS %q: must be a positive integer", workers)
		}
		cfg.Workers = n
	}

	return cfg, nil
}

// LoadFile loads the defaults and the file at path, ignoring environment
// overrides. Use it to edit a file without persisting GITLOGDB_DB or
// GITLOGDB_WORKERS into it. A missing file is not an error.
func LoadFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	if err := loadFromFile(cfg, path); err != nil {
		// Config file is optional, so we just skip if not found
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	return cfg, nil
}

// isYAML reports whether path names a YAML file. Everything else is TOML.
func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// loadFromFile loads configuration from a TOML or YAML file
func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	if isYAML(path) {
		err = yaml.Unmarshal(data, cfg)
	} else {
		err = toml.Unmarshal(data, cfg)
	}
	if err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return nil
}

// Save saves the configuration to a file, in YAML or TOML depending on its
// extension
func (cfg *Config) Save(path string) error {
	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(cfg)
	} else {
		data, err = toml.Marshal(cfg)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Create directory if it doesn't exist
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// GetConfigPath returns the path to the config file
func GetConfigPath() string {
	if configPath := os.Getenv("GITLOGDB_CONFIG"); configPath != "" {
		return configPath
	}
	return DefaultPath
}

// IsPostgres returns true if the database setting is a PostgreSQL URL
func (cfg *Config) IsPostgres() bool {
	return strings.HasPrefix(cfg.DatabasePath, "postgres://") ||
		strings.HasPrefix(cfg.DatabasePath, "postgresql://")
}

// GetDatabasePath returns the database path, expanding ~/ if needed
func (cfg *Config) GetDatabasePath() string {
	if strings.HasPrefix(cfg.DatabasePath, "~/") {
		homeDir, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(homeDir, cfg.DatabasePath[2:])
		}
	}
	return cfg.DatabasePath
}

// PoolSize returns the number of database connections to open. The pool
// never has fewer connections than there are workers.
func (cfg *Config) PoolSize() int {
	return max(cfg.MaxConnections, cfg.Workers, 1)
}

// ValidateDatabase checks the database setting and creates the parent
// directory of a SQLite file if needed
func (cfg *Config) ValidateDatabase() error {
	if cfg.DatabasePath == "" {
		return fmt.Errorf("database path is empty")
	}
	if cfg.IsPostgres() {
		return nil
	}

	dir := filepath.Dir(cfg.GetDatabasePath())
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}

	return nil
}

// Validate checks every setting
func (cfg *Config) Validate() error {
	if cfg.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", cfg.Workers)
	}
	if cfg.MaxConnections < 0 {
		return fmt.Errorf("max_connections must not be negative, got %d", cfg.MaxConnections)
	}
	return cfg.ValidateDatabase()
}
