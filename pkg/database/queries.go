package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Counts returns the number of rows in each table
func (db *DB) Counts(ctx context.Context) (*Counts, error) {
	var c Counts
	err := db.conn.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM repositories),
			(SELECT COUNT(*) FROM logs),
			(SELECT COUNT(*) FROM changed_files)`,
	).Scan(&c.Repositories, &c.Logs, &c.ChangedFiles)
	if err != nil {
		return nil, fmt.Errorf("failed to count rows: %w", err)
	}
	return &c, nil
}

// ListRepositories lists all repositories ordered by name
func (db *DB) ListRepositories(ctx context.Context) ([]*Repository, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT id, name FROM repositories ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list repositories: %w", err)
	}
	defer rows.Close()

	var repos []*Repository
	for rows.Next() {
		var r Repository
		if err := rows.Scan(&r.ID, &r.Name); err != nil {
			return nil, fmt.Errorf("failed to scan repository: %w", err)
		}
		repos = append(repos, &r)
	}

	return repos, rows.Err()
}

const logColumns = `commit_hash, parent_hash, author_name, author_email, message,
	commit_datetime, insertions, deletions, repository_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLog(row rowScanner) (*Log, error) {
	var (
		l       Log
		parent  sql.NullString
		message sql.NullString
		when    timeScanner
		ins     sql.NullInt64
		del     sql.NullInt64
		repoID  sql.NullInt64
	)

	err := row.Scan(&l.CommitHash, &parent, &l.AuthorName, &l.AuthorEmail, &message,
		&when, &ins, &del, &repoID)
	if err != nil {
		return nil, err
	}

	l.ParentHash = parent.String
	l.Message = message.String
	l.CommitDatetime = when.Time
	l.Insertions = int(ins.Int64)
	l.Deletions = int(del.Int64)
	l.RepositoryID = repoID.Int64
	return &l, nil
}

// GetLog retrieves a log by commit hash
func (db *DB) GetLog(ctx context.Context, commitHash string) (*Log, error) {
	row := db.conn.QueryRowContext(ctx,
		db.rebind(`SELECT `+logColumns+` FROM logs WHERE commit_hash = ?`), commitHash)

	l, err := scanLog(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("log %s: %w", commitHash, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get log: %w", err)
	}
	return l, nil
}

// ListLogs lists the logs of one repository, newest first. An empty
// repository name lists every repository; limit <= 0 means no limit.
func (db *DB) ListLogs(ctx context.Context, repositoryName string, limit int) ([]*Log, error) {
	query := `SELECT ` + logColumns + ` FROM logs`
	var args []any

	if repositoryName != "" {
		query += ` WHERE repository_id = (SELECT id FROM repositories WHERE name = ?)`
		args = append(args, repositoryName)
	}
	query += ` ORDER BY ` + db.instant("commit_datetime") + ` DESC, commit_hash`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := db.conn.QueryContext(ctx, db.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list logs: %w", err)
	}
	defer rows.Close()

	var logs []*Log
	for rows.Next() {
		l, err := scanLog(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan log: %w", err)
		}
		logs = append(logs, l)
	}

	return logs, rows.Err()
}

// ListChangedFiles lists the files changed by one commit in insertion order
func (db *DB) ListChangedFiles(ctx context.Context, commitHash string) ([]*ChangedFile, error) {
	rows, err := db.conn.QueryContext(ctx, db.rebind(`
		SELECT id, commit_hash, file_path FROM changed_files
		WHERE commit_hash = ? ORDER BY id`), commitHash,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list changed files: %w", err)
	}
	defer rows.Close()

	var files []*ChangedFile
	for rows.Next() {
		var f ChangedFile
		var path sql.NullString
		if err := rows.Scan(&f.ID, &f.CommitHash, &path); err != nil {
			return nil, fmt.Errorf("failed to scan changed file: %w", err)
		}
		f.FilePath = path.String
		files = append(files, &f)
	}

	return files, rows.Err()
}

// TopAuthors ranks authors by commit count
func (db *DB) TopAuthors(ctx context.Context, limit int) ([]*AuthorStat, error) {
	query := `
		SELECT author_name, COUNT(*), COALESCE(SUM(insertions), 0), COALESCE(SUM(deletions), 0)
		FROM logs GROUP BY author_name ORDER BY COUNT(*) DESC, author_name`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := db.conn.QueryContext(ctx, db.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list authors: %w", err)
	}
	defer rows.Close()

	var stats []*AuthorStat
	for rows.Next() {
		var s AuthorStat
		if err := rows.Scan(&s.AuthorName, &s.Commits, &s.Insertions, &s.Deletions); err != nil {
			return nil, fmt.Errorf("failed to scan author: %w", err)
		}
		stats = append(stats, &s)
	}

	return stats, rows.Err()
}

// timeScanner reads commit_datetime whether the driver hands back a
// time.Time (PostgreSQL, SQLite DATETIME columns) or raw text.
type timeScanner struct {
	time.Time
}

func (t *timeScanner) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		t.Time = time.Time{}
	case time.Time:
		t.Time = v
	case string:
		return t.parse(v)
	case []byte:
		return t.parse(string(v))
	default:
		return fmt.Errorf("unsupported time value %T", src)
	}
	return nil
}

func (t *timeScanner) parse(s string) error {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999999-07:00", "2006-01-02 15:04:05"} {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("failed to parse time %q", s)
}
