package main

import (
	"fmt"
	"os"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/pflag"

	"github.com/mslinn/gitlogdb/pkg/config"
)

var version = "dev" // Set by -ldflags during build

const validKeys = "database, workers, max_connections, first_parent"

func main() {
	// Define flags
	var (
		showVersion bool
		showHelp    bool
		configPath  string
	)

	pflag.BoolVarP(&showVersion, "version", "V", false, "Show version and exit")
	pflag.BoolVarP(&showHelp, "help", "h", false, "Show this help message")
	pflag.StringVarP(&configPath, "config", "f", "", "Path to config file (default "+config.DefaultPath+")")

	pflag.CommandLine.SetInterspersed(false)
	pflag.Parse()

	if showVersion {
		fmt.Printf("gitlogdb-config version %s\n", version)
		os.Exit(0)
	}

	if showHelp {
		printHelp()
		os.Exit(0)
	}

	args := pflag.Args()
	if len(args) == 0 {
		fmt.Fprintf(os.Stderr, "Error: subcommand required\n\n")
		printUsage()
		os.Exit(1)
	}

	// Override config path if specified
	if configPath != "" {
		os.Setenv("GITLOGDB_CONFIG", configPath)
	}

	subcommand := args[0]
	switch subcommand {
	case "init":
		handleInit(args[1:])
	case "set":
		handleSet(args[1:])
	case "get":
		handleGet(args[1:])
	case "ignore":
		handleIgnore(args[1:])
	case "author":
		handleAuthor(args[1:])
	case "show":
		handleShow()
	case "path":
		fmt.Println(config.GetConfigPath())
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown subcommand '%s'\n\n", subcommand)
		printUsage()
		os.Exit(1)
	}
}

// loadOrExit reads the config file alone. Environment overrides are left
// out so that saving an edit does not write them into the file.
func loadOrExit() *config.Config {
	cfg, err := config.LoadFile(config.GetConfigPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to load config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func saveOrExit(cfg *config.Config) {
	if err := cfg.Save(config.GetConfigPath()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to save config: %v\n", err)
		os.Exit(1)
	}
}

func handleInit(args []string) {
	var force bool
	flags := pflag.NewFlagSet("init", pflag.ExitOnError)
	flags.BoolVar(&force, "force", false, "Overwrite existing config file")
	flags.Parse(args)

	configPath := config.GetConfigPath()

	if _, err := os.Stat(configPath); err == nil && !force {
		fmt.Fprintf(os.Stderr, "Error: config file already exists at %s\n", configPath)
		fmt.Fprintf(os.Stderr, "Use --force to overwrite\n")
		os.Exit(1)
	}

	cfg := config.DefaultConfig()
	saveOrExit(cfg)

	fmt.Printf("✓ Created config file at %s\n", configPath)
	fmt.Println("\nDefault configuration:")
	fmt.Printf("  database: %s\n", cfg.DatabasePath)
	fmt.Printf("  workers:  %d\n", cfg.Workers)
	fmt.Println("\nEdit the file or use 'gitlogdb-config set' to customize.")
}

func parseBool(key, value string) bool {
	switch value {
	case "true", "1":
		return true
	case "false", "0":
		return false
	}
	fmt.Fprintf(os.Stderr, "Error: invalid value for %s (use true/false or 1/0)\n", key)
	os.Exit(1)
	return false
}

func parseCount(key, value string, minimum int) int {
	n, err := strconv.Atoi(value)
	if err != nil || n < minimum {
		fmt.Fprintf(os.Stderr, "Error: invalid value for %s (need an integer >= %d)\n", key, minimum)
		os.Exit(1)
	}
	return n
}

func handleSet(args []string) {
	if len(args) < 2 {
		fmt.Fprintf(os.Stderr, "Error: 'set' requires KEY and VALUE arguments\n\n")
		fmt.Fprintf(os.Stderr, "Usage: gitlogdb-config set KEY VALUE\n")
		fmt.Fprintf(os.Stderr, "\nValid keys: %s\n", validKeys)
		os.Exit(1)
	}

	key, value := args[0], args[1]
	cfg := loadOrExit()

	switch key {
	case "database":
		cfg.DatabasePath = value
	case "workers":
		cfg.Workers = parseCount(key, value, 1)
	case "max_connections":
		cfg.MaxConnections = parseCount(key, value, 0)
	case "first_parent":
		cfg.FirstParent = parseBool(key, value)
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown config key '%s'\n", key)
		fmt.Fprintf(os.Stderr, "Valid keys: %s\n", validKeys)
		os.Exit(1)
	}

	saveOrExit(cfg)
	fmt.Printf("✓ Set %s = %v\n", key, value)
}

func handleGet(args []string) {
	if len(args) < 1 {
		fmt.Fprintf(os.Stderr, "Error: 'get' requires KEY argument\n\n")
		fmt.Fprintf(os.Stderr, "Usage: gitlogdb-config get KEY\n")
		fmt.Fprintf(os.Stderr, "\nValid keys: %s\n", validKeys)
		os.Exit(1)
	}

	cfg := loadOrExit()

	switch key := args[0]; key {
	case "database":
		fmt.Println(cfg.DatabasePath)
	case "workers":
		fmt.Println(cfg.Workers)
	case "max_connections":
		fmt.Println(cfg.MaxConnections)
	case "first_parent":
		fmt.Println(cfg.FirstParent)
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown config key '%s'\n", key)
		fmt.Fprintf(os.Stderr, "Valid keys: %s\n", validKeys)
		os.Exit(1)
	}
}

// handleIgnore adds names to ignored_repositories, or removes them with --remove
func handleIgnore(args []string) {
	var remove bool
	flags := pflag.NewFlagSet("ignore", pflag.ExitOnError)
	flags.BoolVar(&remove, "remove", false, "Stop ignoring the given names")
	flags.Parse(args)

	if flags.NArg() == 0 {
		fmt.Fprintf(os.Stderr, "Error: 'ignore' requires at least one directory name\n")
		os.Exit(1)
	}

	cfg := loadOrExit()
	for _, name := range flags.Args() {
		i := slices.Index(cfg.IgnoredRepositories, name)
		switch {
		case remove && i >= 0:
			cfg.IgnoredRepositories = slices.Delete(cfg.IgnoredRepositories, i, i+1)
		case !remove && i < 0:
			cfg.IgnoredRepositories = append(cfg.IgnoredRepositories, name)
		}
	}
	saveOrExit(cfg)

	fmt.Printf("✓ Ignored repositories: %s\n", strings.Join(cfg.IgnoredRepositories, ", "))
}

// handleAuthor maps an email address to a display name
func handleAuthor(args []string) {
	if len(args) != 2 {
		fmt.Fprintf(os.Stderr, "Error: 'author' requires EMAIL and NAME arguments\n\n")
		fmt.Fprintf(os.Stderr, "Usage: gitlogdb-config author EMAIL NAME\n")
		os.Exit(1)
	}

	cfg := loadOrExit()
	if cfg.AuthorMap == nil {
		cfg.AuthorMap = make(map[string]string)
	}
	email := strings.ToLower(strings.TrimSpace(args[0]))
	cfg.AuthorMap[email] = args[1]
	saveOrExit(cfg)

	fmt.Printf("✓ %s is now shown as %s\n", email, args[1])
}

func handleShow() {
	cfg := loadOrExit()

	fmt.Printf("Configuration from: %s\n\n", config.GetConfigPath())
	fmt.Printf("database:             %s\n", cfg.GetDatabasePath())
	fmt.Printf("workers:              %d\n", cfg.Workers)
	fmt.Printf("max_connections:      %d (pool size %d)\n", cfg.MaxConnections, cfg.PoolSize())
	fmt.Printf("first_parent:         %v\n", cfg.FirstParent)
	fmt.Printf("ignored_repositories: %s\n", strings.Join(cfg.IgnoredRepositories, ", "))

	if len(cfg.AuthorMap) > 0 {
		fmt.Println("author_map:")
		emails := make([]string, 0, len(cfg.AuthorMap))
		for email := range cfg.AuthorMap {
			emails = append(emails, email)
		}
		sort.Strings(emails)
		for _, email := range emails {
			fmt.Printf("  %s = %s\n", email, cfg.AuthorMap[email])
		}
	}

	fmt.Println("\nEnvironment variable overrides:")
	if db := os.Getenv("GITLOGDB_DB"); db != "" {
		fmt.Printf("  GITLOGDB_DB=%s (overrides database)\n", db)
	}
	if workers := os.Getenv("GITLOGDB_WORKERS"); workers != "" {
		fmt.Printf("  GITLOGDB_WORKERS=%s (overrides workers)\n", workers)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "Usage: gitlogdb-config [OPTIONS] SUBCOMMAND\n\n")
	fmt.Fprintf(os.Stderr, "Subcommands:\n")
	fmt.Fprintf(os.Stderr, "  init               Create default config file\n")
	fmt.Fprintf(os.Stderr, "  set KEY VAL        Set configuration value\n")
	fmt.Fprintf(os.Stderr, "  get KEY            Get configuration value\n")
	fmt.Fprintf(os.Stderr, "  ignore NAME...     Add directory names to the ignore list\n")
	fmt.Fprintf(os.Stderr, "  author EMAIL NAME  Map an author email to a name\n")
	fmt.Fprintf(os.Stderr, "  show               Show all configuration\n")
	fmt.Fprintf(os.Stderr, "  path               Show config file path\n\n")
	pflag.PrintDefaults()
}

func printHelp() {
	fmt.Printf("gitlogdb-config - Manage gitlogdb configuration\n\n")
	fmt.Printf("Version: %s\n\n", version)

	fmt.Printf("DESCRIPTION:\n")
	fmt.Printf("  Configuration is stored in %s in the current directory by default.\n", config.DefaultPath)
	fmt.Printf("  Files ending in .yaml or .yml are written as YAML, anything else as TOML.\n\n")

	fmt.Printf("USAGE:\n")
	fmt.Printf("  gitlogdb-config [OPTIONS] SUBCOMMAND\n\n")

	fmt.Printf("SUBCOMMANDS:\n")
	fmt.Printf("  init [--force]            Create default configuration file\n")
	fmt.Printf("  set KEY VAL               Set a configuration value\n")
	fmt.Printf("  get KEY                   Get a configuration value\n")
	fmt.Printf("  ignore [--remove] NAME... Edit the list of ignored directory names\n")
	fmt.Printf("  author EMAIL NAME         Show commits by EMAIL under NAME\n")
	fmt.Printf("  show                      Display all configuration values\n")
	fmt.Printf("  path                      Show the config file path\n\n")

	fmt.Printf("CONFIGURATION KEYS:\n")
	fmt.Printf("  database          SQLite file or postgres:// URL (default repositories.db)\n")
	fmt.Printf("  workers           Repositories ingested in parallel (default 8)\n")
	fmt.Printf("  max_connections   Database pool size, 0 to match workers\n")
	fmt.Printf("  first_parent      Follow first parents only (default false)\n\n")

	fmt.Printf("ENVIRONMENT VARIABLES:\n")
	fmt.Printf("  GITLOGDB_CONFIG    Path to config file\n")
	fmt.Printf("  GITLOGDB_DB        Override database\n")
	fmt.Printf("  GITLOGDB_WORKERS   Override workers\n\n")

	fmt.Printf("OPTIONS:\n")
	pflag.PrintDefaults()

	fmt.Printf("\nEXAMPLES:\n")
	fmt.Printf("  gitlogdb-config init\n")
	fmt.Printf("  gitlogdb-config set database ~/history.db\n")
	fmt.Printf("  gitlogdb-config ignore vendor node_modules\n")
	fmt.Printf("  gitlogdb-config author jdoe@users.noreply.github.com \"Jane Doe\"\n\n")
}
