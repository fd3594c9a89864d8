package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg == nil {
		t.Fatal("DefaultConfig returned nil")
	}

	if cfg.DatabasePath != "repositories.db" {
		t.Errorf("Expected DatabasePath='repositories.db', got '%s'", cfg.DatabasePath)
	}

	if cfg.Workers != 8 {
		t.Errorf("Expected Workers=8, got %d", cfg.Workers)
	}

	if cfg.FirstParent {
		t.Error("FirstParent should be false by default")
	}
}

func TestLoadTOML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.toml")
	content := `
ignored_repositories = ["vendor", "archive"]
workers = 4

[author_map]
"alice@example.com" = "Alice Smith"
"bob@corp.example" = "Bob"
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	t.Setenv("GITLOGDB_DB", "")
	t.Setenv("GITLOGDB_WORKERS", "")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if !reflect.DeepEqual(cfg.IgnoredRepositories, []string{"vendor", "archive"}) {
		t.Errorf("IgnoredRepositories = %v", cfg.IgnoredRepositories)
	}
	if cfg.AuthorMap["alice@example.com"] != "Alice Smith" {
		t.Errorf("AuthorMap = %v", cfg.AuthorMap)
	}
	if cfg.Workers != 4 {
		t.Errorf("Workers = %d, want 4", cfg.Workers)
	}
	// Unset keys keep their defaults
	if cfg.DatabasePath != "repositories.db" {
		t.Errorf("DatabasePath = %s, want default", cfg.DatabasePath)
	}
}

func TestConfigSaveAndLoad(t *testing.T) {
	for _, name := range []string{"config.toml", "config.yaml", "config.yml"} {
		t.Run(name, func(t *testing.T) {
			configPath := filepath.Join(t.TempDir(), name)

			cfg := &Config{
				DatabasePath:        "/tmp/test.db",
				IgnoredRepositories: []string{"vendor"},
				AuthorMap:           map[string]string{"a@b.c": "A"},
				Workers:             3,
				MaxConnections:      6,
				FirstParent:         true,
			}

			if err := cfg.Save(configPath); err != nil {
				t.Fatalf("Failed to save config: %v", err)
			}

			loadedCfg := DefaultConfig()
			if err := loadFromFile(loadedCfg, configPath); err != nil {
				t.Fatalf("Failed to load config: %v", err)
			}

			if !reflect.DeepEqual(cfg, loadedCfg) {
				t.Errorf("Round trip mismatch: saved %+v, loaded %+v", cfg, loadedCfg)
			}
		})
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("GITLOGDB_DB", "")
	t.Setenv("GITLOGDB_WORKERS", "")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("Missing config file should not fail: %v", err)
	}

	if !reflect.DeepEqual(cfg, DefaultConfig()) {
		t.Errorf("Expected defaults, got %+v", cfg)
	}
}

func TestLoadInvalidFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(configPath, []byte("workers = [unterminated"), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	if _, err := Load(configPath); err == nil {
		t.Error("Expected error for malformed config")
	}
}

func TestLoadWithEnvironmentOverrides(t *testing.T) {
	t.Setenv("GITLOGDB_DB", "/env/test.db")
	t.Setenv("GITLOGDB_WORKERS", "12")
	t.Setenv("GITLOGDB_CONFIG", "/nonexistent/config.toml")

	// Load config (will use defaults + env overrides)
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.DatabasePath != "/env/test.db" {
		t.Errorf("Expected DatabasePath from env '/env/test.db', got '%s'", cfg.DatabasePath)
	}
	if cfg.Workers != 12 {
		t.Errorf("Expected Workers from env 12, got %d", cfg.Workers)
	}
}

func TestLoadFileIgnoresEnvironment(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(configPath, []byte("database = \"file.db\"\nworkers = 3\n"), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	t.Setenv("GITLOGDB_DB", "/env/test.db")
	t.Setenv("GITLOGDB_WORKERS", "12")

	cfg, err := LoadFile(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.DatabasePath != "file.db" {
		t.Errorf("Expected DatabasePath='file.db', got '%s'", cfg.DatabasePath)
	}
	if cfg.Workers != 3 {
		t.Errorf("Expected Workers=3, got %d", cfg.Workers)
	}

	// An edit saved after LoadFile keeps the environment out of the file
	cfg.FirstParent = true
	if err := cfg.Save(configPath); err != nil {
		t.Fatalf("Failed to save config: %v", err)
	}

	t.Setenv("GITLOGDB_DB", "")
	t.Setenv("GITLOGDB_WORKERS", "")

	saved, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to reload config: %v", err)
	}
	if saved.DatabasePath != "file.db" || saved.Workers != 3 {
		t.Errorf("Environment leaked into file: database=%q workers=%d", saved.DatabasePath, saved.Workers)
	}
	if !saved.FirstParent {
		t.Error("Expected the edit to be saved")
	}
}

func TestLoadFileMissingUsesDefaults(t *testing.T) {
	t.Setenv("GITLOGDB_WORKERS", "not a number")

	cfg, err := LoadFile(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("LoadFile should not read GITLOGDB_WORKERS: %v", err)
	}
	if !reflect.DeepEqual(cfg, DefaultConfig()) {
		t.Errorf("Expected defaults, got %+v", cfg)
	}
}

func TestLoadInvalidWorkersEnv(t *testing.T) {
	t.Setenv("GITLOGDB_WORKERS", "zero")

	if _, err := Load(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Error("Expected error for non-numeric GITLOGDB_WORKERS")
	}
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv("GITLOGDB_CONFIG", "/custom/config/path")
	if path := GetConfigPath(); path != "/custom/config/path" {
		t.Errorf("GetConfigPath() with env = %v, want /custom/config/path", path)
	}

	t.Setenv("GITLOGDB_CONFIG", "")
	if path := GetConfigPath(); path != DefaultPath {
		t.Errorf("GetConfigPath() = %v, want %v", path, DefaultPath)
	}
}

func TestGetDatabasePath(t *testing.T) {
	home, _ := os.UserHomeDir()

	tests := []struct {
		name     string
		dbPath   string
		expected string
	}{
		{"absolute path", "/absolute/path/to/db", "/absolute/path/to/db"},
		{"relative path", "repositories.db", "repositories.db"},
		{"home directory expansion", "~/git/history.db", filepath.Join(home, "git/history.db")},
		{"postgres url", "postgres://localhost/git", "postgres://localhost/git"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{DatabasePath: tt.dbPath}
			if got := cfg.GetDatabasePath(); got != tt.expected {
				t.Errorf("GetDatabasePath() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestPoolSize(t *testing.T) {
	tests := []struct {
		workers, maxConns, want int
	}{
		{8, 0, 8},
		{8, 4, 8},
		{2, 10, 10},
		{0, 0, 1},
	}

	for _, tt := range tests {
		cfg := &Config{Workers: tt.workers, MaxConnections: tt.maxConns}
		if got := cfg.PoolSize(); got != tt.want {
			t.Errorf("PoolSize() with workers=%d max=%d = %d, want %d", tt.workers, tt.maxConns, got, tt.want)
		}
	}
}

func TestValidateDatabase_CreatesDirectory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "dir", "test.db")
	cfg := &Config{DatabasePath: dbPath}

	// Validation should create the directory
	if err := cfg.ValidateDatabase(); err != nil {
		t.Fatalf("ValidateDatabase() failed: %v", err)
	}

	if _, err := os.Stat(filepath.Dir(dbPath)); os.IsNotExist(err) {
		t.Error("ValidateDatabase() did not create database directory")
	}
}

func TestValidate(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name      string
		cfg       Config
		wantError bool
	}{
		{"valid", Config{DatabasePath: filepath.Join(dir, "x.db"), Workers: 1}, false},
		{"postgres", Config{DatabasePath: "postgres://localhost/git", Workers: 4}, false},
		{"empty database", Config{Workers: 1}, true},
		{"no workers", Config{DatabasePath: "x.db"}, true},
		{"negative pool", Config{DatabasePath: "x.db", Workers: 1, MaxConnections: -1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantError && err == nil {
				t.Error("Validate() expected error, got nil")
			}
			if !tt.wantError && err != nil {
				t.Errorf("Validate() unexpected error: %v", err)
			}
		})
	}
}
