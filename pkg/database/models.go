package database

import "time"

// Repository is one ingested git repository, identified by its directory name
type Repository struct {
	ID   int64
	Name string
}

// Log is one non-merge commit
type Log struct {
	CommitHash     string
	ParentHash     string // empty for root commits, stored as NULL
	AuthorName     string
	AuthorEmail    string
	Message        string
	CommitDatetime time.Time
	Insertions     int
	Deletions      int
	RepositoryID   int64
}

// ChangedFile is one path touched by a commit
type ChangedFile struct {
	ID         int64
	CommitHash string
	FilePath   string
}

// Counts holds the row count of every table
type Counts struct {
	Repositories int64
	Logs         int64
	ChangedFiles int64
}

// AuthorStat aggregates commits per author name
type AuthorStat struct {
	AuthorName string
	Commits    int64
	Insertions int64
	Deletions  int64
}
