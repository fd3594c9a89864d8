package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"github.com/mslinn/gitlogdb/pkg/config"
	"github.com/mslinn/gitlogdb/pkg/database"
)

var version = "dev" // Set by -ldflags during build

func main() {
	// Define global flags
	var (
		showVersion bool
		showHelp    bool
		debug       bool
		dbPath      string
		configPath  string
	)

	pflag.BoolVarP(&showVersion, "version", "V", false, "Show version and exit")
	pflag.BoolVarP(&showHelp, "help", "h", false, "Show this help message")
	pflag.BoolVarP(&debug, "verbose", "v", false, "Enable verbose output")
	pflag.StringVarP(&dbPath, "database", "d", "", "SQLite file or postgres:// URL (default from config)")
	pflag.StringVarP(&configPath, "config", "f", "", "Config file (default "+config.DefaultPath+")")

	// Stop parsing at first non-flag argument (the subcommand)
	pflag.CommandLine.SetInterspersed(false)
	pflag.Parse()

	// Handle version
	if showVersion {
		fmt.Printf("gitlogdb-query version %s\n", version)
		os.Exit(0)
	}

	// Get subcommand
	args := pflag.Args()
	if len(args) == 0 || showHelp {
		printHelp()
		os.Exit(0)
	}

	subcommand := args[0]

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	// Use config database if not overridden
	if dbPath == "" {
		dbPath = cfg.GetDatabasePath()
	}

	// Open database
	db, err := database.Open(dbPath, database.Options{MaxConns: 2})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx := context.Background()

	var cmdErr error
	switch subcommand {
	case "repos":
		cmdErr = handleRepos(ctx, db)
	case "commits":
		cmdErr = handleCommits(ctx, db, args[1:], debug)
	case "files":
		cmdErr = handleFiles(ctx, db, args[1:])
	case "authors":
		cmdErr = handleAuthors(ctx, db, args[1:])
	case "stats":
		cmdErr = handleStats(ctx, db, dbPath)
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown subcommand '%s'\n\n", subcommand)
		printUsage()
		db.Close()
		os.Exit(1)
	}

	if cmdErr != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", cmdErr)
		db.Close()
		os.Exit(1)
	}
}

func handleRepos(ctx context.Context, db *database.DB) error {
	repos, err := db.ListRepositories(ctx)
	if err != nil {
		return err
	}

	if len(repos) == 0 {
		fmt.Println("No repositories stored")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tName")
	fmt.Fprintln(w, "--\t----")
	for _, r := range repos {
		fmt.Fprintf(w, "%d\t%s\n", r.ID, r.Name)
	}
	return w.Flush()
}

func handleCommits(ctx context.Context, db *database.DB, args []string, debug bool) error {
	fs := pflag.NewFlagSet("commits", pflag.ExitOnError)
	repo := fs.String("repo", "", "Repository name (default all repositories)")
	limit := fs.Int("limit", 20, "Maximum number of commits to display")

	fs.Parse(args)

	logs, err := db.ListLogs(ctx, *repo, *limit)
	if err != nil {
		return err
	}

	if len(logs) == 0 {
		fmt.Println("No commits found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "Commit\tDate\tAuthor\t+/-\tMessage")
	fmt.Fprintln(w, "------\t----\t------\t---\t-------")

	for _, l := range logs {
		message, _, _ := strings.Cut(l.Message, "\n")

		fmt.Fprintf(w, "%s\t%s\t%s\t+%d -%d\t%s\n",
			l.CommitHash[:min(12, len(l.CommitHash))],
			l.CommitDatetime.Format("2006-01-02 15:04 -0700"),
			l.AuthorName,
			l.Insertions, l.Deletions,
			truncate(message, 60),
		)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if debug {
		fmt.Printf("\nShowing %d commits\n", len(logs))
	}
	return nil
}

// truncate shortens s to at most width runes, marking the cut with "..."
func truncate(s string, width int) string {
	if utf8.RuneCountInString(s) <= width {
		return s
	}
	runes := []rune(s)
	return string(runes[:width-3]) + "..."
}

func handleFiles(ctx context.Context, db *database.DB, args []string) error {
	fs := pflag.NewFlagSet("files", pflag.ExitOnError)
	commit := fs.String("commit", "", "Full commit hash (required)")

	fs.Parse(args)

	if *commit == "" {
		return errors.New("--commit is required")
	}

	l, err := db.GetLog(ctx, *commit)
	if err != nil {
		return err
	}

	files, err := db.ListChangedFiles(ctx, *commit)
	if err != nil {
		return err
	}

	fmt.Printf("Commit %s by %s <%s>\n", l.CommitHash, l.AuthorName, l.AuthorEmail)
	fmt.Printf("%s, +%d -%d\n\n", l.CommitDatetime.Format("2006-01-02 15:04:05 -0700"), l.Insertions, l.Deletions)
	for _, f := range files {
		fmt.Printf("  %s\n", f.FilePath)
	}
	fmt.Printf("\nTotal files: %d\n", len(files))
	return nil
}

func handleAuthors(ctx context.Context, db *database.DB, args []string) error {
	fs := pflag.NewFlagSet("authors", pflag.ExitOnError)
	limit := fs.Int("limit", 20, "Maximum number of authors to display")

	fs.Parse(args)

	authors, err := db.TopAuthors(ctx, *limit)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "Commits\tInsertions\tDeletions\tAuthor\t")
	for _, a := range authors {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t\n",
			humanize.Comma(a.Commits),
			humanize.Comma(a.Insertions),
			humanize.Comma(a.Deletions),
			a.AuthorName)
	}
	return w.Flush()
}

func handleStats(ctx context.Context, db *database.DB, dbPath string) error {
	counts, err := db.Counts(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Database: %s", dbPath)
	if info, err := os.Stat(dbPath); err == nil {
		fmt.Printf(" (%s)", humanize.Bytes(uint64(info.Size())))
	}
	fmt.Printf("\n\n")
	fmt.Printf("  Repositories:   %s\n", humanize.Comma(counts.Repositories))
	fmt.Printf("  Commits:        %s\n", humanize.Comma(counts.Logs))
	fmt.Printf("  Changed files:  %s\n", humanize.Comma(counts.ChangedFiles))

	latest, err := db.ListLogs(ctx, "", 1)
	if err != nil {
		return err
	}
	if len(latest) == 1 {
		fmt.Printf("  Latest commit:  %s (%s)\n",
			latest[0].CommitDatetime.Format("2006-01-02"),
			humanize.Time(latest[0].CommitDatetime))
	}
	return nil
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "Usage: gitlogdb-query [OPTIONS] COMMAND [ARGS...]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  repos      List stored repositories\n")
	fmt.Fprintf(os.Stderr, "  commits    List recent commits\n")
	fmt.Fprintf(os.Stderr, "  files      Show the files changed by one commit\n")
	fmt.Fprintf(os.Stderr, "  authors    Rank authors by commit count\n")
	fmt.Fprintf(os.Stderr, "  stats      Show table sizes\n")
}

func printHelp() {
	fmt.Printf("gitlogdb-query - Report on ingested git history\n\n")
	fmt.Printf("Version: %s\n\n", version)

	fmt.Printf("USAGE:\n")
	fmt.Printf("  gitlogdb-query [OPTIONS] COMMAND [ARGS...]\n\n")

	fmt.Printf("COMMANDS:\n")
	fmt.Printf("  repos                          List stored repositories\n")
	fmt.Printf("  commits [--repo N] [--limit N] List recent commits, newest first\n")
	fmt.Printf("  files --commit HASH            Show the files changed by one commit\n")
	fmt.Printf("  authors [--limit N]            Rank authors by commit count\n")
	fmt.Printf("  stats                          Show table sizes\n\n")

	fmt.Printf("GLOBAL OPTIONS:\n")
	pflag.PrintDefaults()

	fmt.Printf("\nEXAMPLES:\n")
	fmt.Printf("  # Last 10 commits of one repository\n")
	fmt.Printf("  gitlogdb-query commits --repo myproject --limit 10\n\n")

	fmt.Printf("  # Top authors in a PostgreSQL store\n")
	fmt.Printf("  gitlogdb-query -d postgres://localhost/history authors\n\n")
}
