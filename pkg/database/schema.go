package database

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS repositories (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS logs (
    commit_hash TEXT PRIMARY KEY,
    author_name TEXT NOT NULL,
    author_email TEXT NOT NULL,
    message TEXT,
    commit_datetime DATETIME NOT NULL,
    insertions INTEGER,
    deletions INTEGER,
    repository_id INTEGER,
    parent_hash TEXT,
    FOREIGN KEY (repository_id) REFERENCES repositories (id)
);

CREATE TABLE IF NOT EXISTS changed_files (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    commit_hash TEXT NOT NULL,
    file_path TEXT,
    FOREIGN KEY (commit_hash) REFERENCES logs (commit_hash)
);

CREATE INDEX IF NOT EXISTS idx_logs_repository ON logs(repository_id);
CREATE INDEX IF NOT EXISTS idx_changed_files_commit ON changed_files(commit_hash);
`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS repositories (
    id BIGSERIAL PRIMARY KEY,
    name TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS logs (
    commit_hash TEXT PRIMARY KEY,
    author_name TEXT NOT NULL,
    author_email TEXT NOT NULL,
    message TEXT,
    commit_datetime TIMESTAMPTZ NOT NULL,
    insertions INTEGER,
    deletions INTEGER,
    repository_id BIGINT REFERENCES repositories (id),
    parent_hash TEXT
);

CREATE TABLE IF NOT EXISTS changed_files (
    id BIGSERIAL PRIMARY KEY,
    commit_hash TEXT NOT NULL REFERENCES logs (commit_hash),
    file_path TEXT
);

CREATE INDEX IF NOT EXISTS idx_logs_repository ON logs(repository_id);
CREATE INDEX IF NOT EXISTS idx_changed_files_commit ON changed_files(commit_hash);
`

// The unique index is created by runMigrations so that databases written by
// older versions, which allowed duplicate names, fail with a clear message.
const repositoriesNameIndex = `CREATE UNIQUE INDEX IF NOT EXISTS idx_repositories_name ON repositories(name)`
