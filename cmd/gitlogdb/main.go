package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/spf13/pflag"

	"github.com/mslinn/gitlogdb/pkg/config"
	"github.com/mslinn/gitlogdb/pkg/database"
	"github.com/mslinn/gitlogdb/pkg/git"
	"github.com/mslinn/gitlogdb/pkg/ingest"
	"github.com/mslinn/gitlogdb/pkg/locator"
	"github.com/mslinn/gitlogdb/pkg/metrics"
)

var version = "dev" // Set by -ldflags during build

type options struct {
	recursive   bool
	maxDepth    int
	dbPath      string
	configPath  string
	clear       bool
	workers     int
	firstParent bool
	metricsFile string
	verbose     bool
}

func main() {
	os.Exit(run())
}

func run() int {
	var (
		showVersion bool
		showHelp    bool
		opts        options
	)

	pflag.BoolVarP(&showVersion, "version", "V", false, "Show version and exit")
	pflag.BoolVarP(&showHelp, "help", "h", false, "Show this help message")
	pflag.BoolVarP(&opts.verbose, "verbose", "v", false, "Log each repository as it is ingested")
	pflag.BoolVarP(&opts.recursive, "recursive", "r", false, "Search below the direct children of ROOT")
	pflag.IntVarP(&opts.maxDepth, "max-depth", "m", 1, "Levels below ROOT to search with --recursive")
	pflag.StringVarP(&opts.dbPath, "database", "d", "", "SQLite file or postgres:// URL (default from config)")
	pflag.StringVarP(&opts.configPath, "config", "f", "", "Config file (default "+config.DefaultPath+")")
	pflag.BoolVarP(&opts.clear, "clear", "c", false, "Delete all stored data before ingesting")
	pflag.IntVarP(&opts.workers, "num-threads", "n", 0, "Repositories ingested in parallel (default from config)")
	pflag.BoolVar(&opts.firstParent, "first-parent", false, "Follow first parents only")
	pflag.StringVar(&opts.metricsFile, "metrics-file", "", "Write Prometheus metrics to this file when done")

	pflag.Parse()

	if showVersion {
		fmt.Printf("gitlogdb version %s\n", version)
		return 0
	}

	if showHelp {
		printHelp()
		return 0
	}

	args := pflag.Args()
	if len(args) > 1 {
		fmt.Fprintf(os.Stderr, "Error: expected at most one ROOT argument, got %d\n\n", len(args))
		printUsage()
		return 1
	}
	root := "."
	if len(args) == 1 {
		root = args[0]
	}

	level := slog.LevelWarn
	if opts.verbose {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	// Load configuration; flags override it
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		return 1
	}
	if opts.dbPath != "" {
		cfg.DatabasePath = opts.dbPath
	}
	if opts.workers > 0 {
		cfg.Workers = opts.workers
	}
	cfg.FirstParent = cfg.FirstParent || opts.firstParent

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid configuration: %v\n", err)
		return 1
	}

	found, err := locator.New(root, locator.Options{
		Recursive: opts.recursive,
		MaxDepth:  opts.maxDepth,
		Ignored:   cfg.IgnoredRepositories,
		Logger:    logger,
	}).Locate()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	dbPath := cfg.GetDatabasePath()
	db, err := database.Open(dbPath, database.Options{
		MaxConns: cfg.PoolSize(),
		Logger:   logger,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
		return 1
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.clear {
		if err := db.ClearAll(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error clearing database: %v\n", err)
			return 1
		}
		logger.Info("cleared database", "database", dbPath)
	}

	m := metrics.New()
	extractor := git.NewExtractor(cfg.AuthorMap, cfg.FirstParent)

	var onProgress func(ingest.Progress)
	if isatty.IsTerminal(os.Stderr.Fd()) && !opts.verbose {
		onProgress = printProgress
	}

	summary, runErr := ingest.Run(ctx, found.Repositories, db, extractor, ingest.Options{
		Workers:    cfg.Workers,
		Logger:     logger,
		Metrics:    m,
		OnProgress: onProgress,
	})
	if onProgress != nil {
		fmt.Fprint(os.Stderr, "\r\033[K")
	}

	printSummary(ctx, db, dbPath, found, summary, runErr)

	if opts.metricsFile != "" {
		if err := m.WriteTextfile(opts.metricsFile); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
	}

	if runErr != nil || summary.Failed() {
		return 1
	}
	return 0
}

func printProgress(p ingest.Progress) {
	fmt.Fprintf(os.Stderr, "\r\033[K[%d/%d] repositories, %s commits",
		p.RepositoriesDone, p.RepositoriesTotal, humanize.Comma(p.CommitsWritten))
}

func printSummary(ctx context.Context, db *database.DB, dbPath string, found *locator.Result, s *ingest.Summary, runErr error) {
	headline := fmt.Sprintf("Ingested %s of %s repositories, %s new commits in %s",
		humanize.Comma(int64(s.RepositoriesProcessed)),
		humanize.Comma(int64(len(found.Repositories))),
		humanize.Comma(s.CommitsWritten),
		s.Duration.Round(time.Millisecond))

	switch {
	case runErr != nil:
		color.New(color.FgRed, color.Bold).Printf("✗ %s, stopped: %v\n", headline, runErr)
	case s.Failed():
		color.New(color.FgYellow, color.Bold).Printf("! %s, %d failed\n", headline, len(s.Errors))
	default:
		color.New(color.FgGreen, color.Bold).Printf("✓ %s\n", headline)
	}

	if s.CommitsSkipped > 0 {
		fmt.Printf("  Already stored:    %s commits\n", humanize.Comma(s.CommitsSkipped))
	}

	// Background context: the totals are worth printing even after an interrupt
	if counts, err := db.Counts(context.WithoutCancel(ctx)); err == nil {
		fmt.Printf("  Database:          %s", dbPath)
		if info, err := os.Stat(dbPath); err == nil {
			fmt.Printf(" (%s)", humanize.Bytes(uint64(info.Size())))
		}
		fmt.Println()
		fmt.Printf("  Repositories:      %s\n", humanize.Comma(counts.Repositories))
		fmt.Printf("  Commits:           %s\n", humanize.Comma(counts.Logs))
		fmt.Printf("  Changed files:     %s\n", humanize.Comma(counts.ChangedFiles))
	}

	if len(found.Ignored) > 0 {
		fmt.Printf("  Ignored:           %s\n", strings.Join(found.Ignored, ", "))
	}
	if len(found.Unreadable) > 0 {
		fmt.Printf("  Unreadable:        %s\n", strings.Join(found.Unreadable, ", "))
	}
	if len(s.Empty) > 0 {
		fmt.Printf("  No commits:        %s\n", strings.Join(s.Empty, ", "))
	}
	if len(s.NotStarted) > 0 {
		fmt.Printf("  Not started:       %d repositories\n", len(s.NotStarted))
	}

	if len(s.Errors) > 0 {
		fmt.Println("\nFailed repositories:")
		for _, e := range s.Errors {
			fmt.Printf("  %s [%s]: %v\n", e.Path, e.Kind, e.Err)
		}
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "Usage: gitlogdb [OPTIONS] [ROOT]\n\n")
	pflag.PrintDefaults()
}

func printHelp() {
	fmt.Printf("gitlogdb - Load git commit history into a SQL database\n\n")
	fmt.Printf("Version: %s\n\n", version)
	fmt.Printf("DESCRIPTION:\n")
	fmt.Printf("  Finds git repositories under ROOT and stores every non-merge commit,\n")
	fmt.Printf("  with its line statistics and changed files, in the tables\n")
	fmt.Printf("  repositories, logs and changed_files. Running again only adds\n")
	fmt.Printf("  commits that are not stored yet.\n\n")

	fmt.Printf("USAGE:\n")
	fmt.Printf("  gitlogdb [OPTIONS] [ROOT]\n\n")

	fmt.Printf("OPTIONS:\n")
	pflag.PrintDefaults()

	fmt.Printf("\nEXAMPLES:\n")
	fmt.Printf("  # Ingest every repository directly inside ~/src\n")
	fmt.Printf("  gitlogdb ~/src\n\n")

	fmt.Printf("  # Search three levels deep with 16 workers\n")
	fmt.Printf("  gitlogdb -r -m 3 -n 16 ~/src\n\n")

	fmt.Printf("  # Start over in a PostgreSQL database\n")
	fmt.Printf("  gitlogdb -c -d postgres://localhost/history ~/src\n\n")

	fmt.Printf("CONFIGURATION:\n")
	fmt.Printf("  Settings are read from %s (TOML) or a .yaml file given with -f.\n", config.DefaultPath)
	fmt.Printf("  Flags override environment variables, which override the file:\n")
	fmt.Printf("    GITLOGDB_CONFIG    Config file path\n")
	fmt.Printf("    GITLOGDB_DB        Database path or URL\n")
	fmt.Printf("    GITLOGDB_WORKERS   Number of workers\n\n")

	fmt.Printf("  Example config.toml:\n")
	fmt.Printf("    ignored_repositories = [\"vendor\"]\n\n")
	fmt.Printf("    [author_map]\n")
	fmt.Printf("    \"jdoe@users.noreply.github.com\" = \"Jane Doe\"\n\n")

	fmt.Printf("EXIT STATUS:\n")
	fmt.Printf("  0 when every repository was ingested, 1 otherwise.\n\n")
}
