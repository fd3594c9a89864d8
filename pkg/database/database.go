package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Options configures the connection pool and retry policy
type Options struct {
	MaxConns       int           // Size of the connection pool
	AcquireTimeout time.Duration // How long to wait for a pooled connection
	MaxAttempts    int           // Attempts per operation on transient failure
	RetryDelay     time.Duration // Base delay, multiplied by the attempt number
	Logger         *slog.Logger
}

// DefaultOptions returns the default pool configuration
func DefaultOptions() Options {
	return Options{
		MaxConns:       16,
		AcquireTimeout: 10 * time.Second,
		MaxAttempts:    5,
		RetryDelay:     200 * time.Millisecond,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.MaxConns <= 0 {
		o.MaxConns = def.MaxConns
	}
	if o.AcquireTimeout <= 0 {
		o.AcquireTimeout = def.AcquireTimeout
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = def.MaxAttempts
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = def.RetryDelay
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
	return o
}

type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

func (d dialect) String() string {
	if d == dialectPostgres {
		return "postgres"
	}
	return "sqlite3"
}

// DB is a pooled handle on the destination store. It is safe for
// concurrent use by multiple goroutines.
type DB struct {
	conn    *sql.DB
	dialect dialect
	opts    Options
	logger  *slog.Logger
}

// Open opens or creates the database named by dsn and initializes the
// schema. DSNs starting with postgres:// or postgresql:// select
// PostgreSQL; anything else is treated as a SQLite file path.
func Open(dsn string, opts Options) (*DB, error) {
	opts = opts.withDefaults()

	d := dialectFor(dsn)
	source := dsn
	if d == dialectSQLite {
		source = sqliteSource(dsn)
	}

	conn, err := sql.Open(d.String(), source)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(opts.MaxConns)
	conn.SetMaxIdleConns(opts.MaxConns)
	conn.SetConnMaxLifetime(30 * time.Minute)

	db := &DB{conn: conn, dialect: d, opts: opts, logger: opts.Logger}

	ctx, cancel := context.WithTimeout(context.Background(), opts.AcquireTimeout)
	defer cancel()

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	schema := sqliteSchema
	if d == dialectPostgres {
		schema = postgresSchema
	}
	if _, err := conn.ExecContext(ctx, schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	if err := db.runMigrations(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return db, nil
}

func dialectFor(dsn string) dialect {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return dialectPostgres
	}
	return dialectSQLite
}

// sqliteSource appends per-connection settings to a SQLite path. They are
// passed in the DSN rather than as PRAGMA statements so that every
// connection the pool opens gets them.
// Immediate transactions take the write lock at BEGIN, which lets
// busy_timeout arbitrate between concurrent writers.
func sqliteSource(path string) string {
	params := "_busy_timeout=5000&_foreign_keys=on&_journal_mode=WAL&_txlock=immediate"
	if strings.Contains(path, "?") {
		return path + "&" + params
	}
	return path + "?" + params
}

// Close closes every pooled connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// rebind rewrites ? placeholders into $n for PostgreSQL
func (db *DB) rebind(query string) string {
	if db.dialect != dialectPostgres {
		return query
	}

	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// timeValue converts t into the representation the dialect stores.
// SQLite keeps RFC 3339 text so the author's UTC offset survives.
func (db *DB) timeValue(t time.Time) any {
	if db.dialect == dialectPostgres {
		return t
	}
	return t.Format(time.RFC3339)
}

// instant wraps a commit_datetime column so that it orders by point in
// time. SQLite text with mixed UTC offsets does not sort chronologically.
func (db *DB) instant(column string) string {
	if db.dialect == dialectPostgres {
		return column
	}
	return "julianday(" + column + ")"
}

// ClearAll deletes every row from changed_files, logs and repositories,
// in that order, in one transaction.
func (db *DB) ClearAll(ctx context.Context) error {
	return db.InTx(ctx, func(tx *Tx) error {
		for _, table := range []string{"changed_files", "logs", "repositories"} {
			if _, err := tx.tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("failed to clear %s: %w", table, err)
			}
		}
		return nil
	})
}

// UpsertRepository returns the id of the repository called name, inserting
// it first if needed. Concurrent callers with the same name always get the
// same id because the unique index arbitrates the insert.
func (db *DB) UpsertRepository(ctx context.Context, name string) (int64, error) {
	var id int64

	err := db.withConn(ctx, "upsert repository", func(conn *sql.Conn) error {
		return conn.QueryRowContext(ctx, db.rebind(`
			INSERT INTO repositories (name) VALUES (?)
			ON CONFLICT (name) DO UPDATE SET name = excluded.name
			RETURNING id`), name,
		).Scan(&id)
	})
	if err != nil {
		return 0, err
	}

	return id, nil
}

// Tx is one transaction on a pooled connection
type Tx struct {
	tx *sql.Tx
	db *DB
}

// InTx runs fn in a transaction on a dedicated pooled connection. The
// transaction commits when fn returns nil and rolls back otherwise.
// Transient failures re-run fn from the start in a fresh transaction.
func (db *DB) InTx(ctx context.Context, fn func(tx *Tx) error) error {
	return db.withConn(ctx, "transaction", func(conn *sql.Conn) error {
		sqlTx, err := conn.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}

		if err := fn(&Tx{tx: sqlTx, db: db}); err != nil {
			sqlTx.Rollback()
			return err
		}

		if err := sqlTx.Commit(); err != nil {
			return fmt.Errorf("failed to commit transaction: %w", err)
		}
		return nil
	})
}

// UpsertCommit inserts the log row. It reports false without error when a
// row with the same commit hash already exists.
func (tx *Tx) UpsertCommit(ctx context.Context, log *Log) (bool, error) {
	var parent sql.NullString
	if log.ParentHash != "" {
		parent = sql.NullString{String: log.ParentHash, Valid: true}
	}

	result, err := tx.tx.ExecContext(ctx, tx.db.rebind(`
		INSERT INTO logs (commit_hash, parent_hash, author_name, author_email, message,
			commit_datetime, insertions, deletions, repository_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (commit_hash) DO NOTHING`),
		log.CommitHash, parent, log.AuthorName, log.AuthorEmail, log.Message,
		tx.db.timeValue(log.CommitDatetime), log.Insertions, log.Deletions, log.RepositoryID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert log %s: %w", log.CommitHash, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return n > 0, nil
}

// InsertChangedFiles inserts one changed_files row per path
func (tx *Tx) InsertChangedFiles(ctx context.Context, commitHash string, paths []string) error {
	if len(paths) == 0 {
		return nil
	}

	stmt, err := tx.tx.PrepareContext(ctx, tx.db.rebind(
		`INSERT INTO changed_files (commit_hash, file_path) VALUES (?, ?)`))
	if err != nil {
		return fmt.Errorf("failed to prepare changed file insert: %w", err)
	}
	defer stmt.Close()

	for _, path := range paths {
		if _, err := stmt.ExecContext(ctx, commitHash, path); err != nil {
			return fmt.Errorf("failed to insert changed file %s: %w", path, err)
		}
	}

	return nil
}

// WriteCommit stores a log row and its changed files atomically. File rows
// are only written when the log row was new, so re-ingesting a commit
// never duplicates them. It reports whether the commit was inserted.
func (db *DB) WriteCommit(ctx context.Context, log *Log, paths []string) (bool, error) {
	var inserted bool

	err := db.InTx(ctx, func(tx *Tx) error {
		var err error
		inserted, err = tx.UpsertCommit(ctx, log)
		if err != nil || !inserted {
			return err
		}
		return tx.InsertChangedFiles(ctx, log.CommitHash, paths)
	})
	if err != nil {
		return false, err
	}

	return inserted, nil
}

// runMigrations applies schema migrations for databases created by older
// versions of the tool
func (db *DB) runMigrations(ctx context.Context) error {
	// Early databases had no parent_hash column
	parentExists, err := db.columnExists(ctx, "logs", "parent_hash")
	if err != nil {
		return fmt.Errorf("failed to check for parent_hash column: %w", err)
	}

	if !parentExists {
		if _, err := db.conn.ExecContext(ctx, `ALTER TABLE logs ADD COLUMN parent_hash TEXT`); err != nil {
			return fmt.Errorf("failed to add parent_hash column: %w", err)
		}
	}

	if _, err := db.conn.ExecContext(ctx, repositoriesNameIndex); err != nil {
		return fmt.Errorf("repositories table contains duplicate names, clear the database and re-run: %w", err)
	}

	return nil
}

func (db *DB) columnExists(ctx context.Context, table, column string) (bool, error) {
	query := `SELECT COUNT(*) > 0 FROM pragma_table_info(?) WHERE name = ?`
	if db.dialect == dialectPostgres {
		query = `SELECT COUNT(*) > 0 FROM information_schema.columns WHERE table_name = $1 AND column_name = $2`
	}

	var exists bool
	if err := db.conn.QueryRowContext(ctx, query, table, column).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}
