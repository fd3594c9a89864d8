package ingest

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mslinn/gitlogdb/pkg/database"
	"github.com/mslinn/gitlogdb/pkg/git"
	"github.com/mslinn/gitlogdb/pkg/metrics"
	"github.com/mslinn/gitlogdb/pkg/timing"
)

// DefaultWorkers is the worker count used when Options.Workers is unset
const DefaultWorkers = 8

// Sink stores repositories and commits. *database.DB implements it.
type Sink interface {
	UpsertRepository(ctx context.Context, name string) (int64, error)
	WriteCommit(ctx context.Context, log *database.Log, paths []string) (bool, error)
}

// Extractor streams the commits of one repository. *git.Extractor
// implements it.
type Extractor interface {
	Extract(ctx context.Context, path string, fn func(*git.Commit) error) error
}

// Options configures a run
type Options struct {
	Workers    int
	Logger     *slog.Logger
	Metrics    *metrics.Metrics // optional
	OnProgress func(Progress)   // called after each repository, never concurrently
}

// Progress is reported after each repository completes. Both counters only
// grow during a run.
type Progress struct {
	RepositoriesDone  int
	RepositoriesTotal int
	CommitsWritten    int64
}

// Summary is the outcome of a run
type Summary struct {
	RepositoriesProcessed int
	CommitsWritten        int64
	CommitsSkipped        int64    // already stored by an earlier run
	Errors                []RepoError
	Empty                 []string // repositories that had no commits to store
	NotStarted            []string // repositories never dispatched after a fatal error
	Names                 []string // repository names written to the store
	Duration              time.Duration
}

// Failed returns true if any repository could not be ingested
func (s *Summary) Failed() bool {
	return len(s.Errors) > 0 || len(s.NotStarted) > 0
}

// Runner fans repositories out to a bounded pool of workers
type Runner struct {
	sink      Sink
	extractor Extractor
	opts      Options
	logger    *slog.Logger

	stopped atomic.Bool
	written atomic.Int64

	mu       sync.Mutex
	summary  *Summary
	done     int
	total    int
	fatalErr error
}

// NewRunner creates a runner writing to sink
func NewRunner(sink Sink, extractor Extractor, opts Options) *Runner {
	if opts.Workers < 1 {
		opts.Workers = DefaultWorkers
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Runner{
		sink:      sink,
		extractor: extractor,
		opts:      opts,
		logger:    logger,
	}
}

// Run ingests every repository in paths and blocks until all workers are
// done. Per-repository failures are recorded in the summary. The returned
// error is non-nil only when the sink failed or ctx was canceled; in that
// case no further repositories are started and the summary covers the
// ones that were.
func Run(ctx context.Context, paths []string, sink Sink, extractor Extractor, opts Options) (*Summary, error) {
	return NewRunner(sink, extractor, opts).Run(ctx, paths)
}

// Run is the method form of the package-level Run. A Runner is good for
// one run only.
func (r *Runner) Run(ctx context.Context, paths []string) (*Summary, error) {
	start := time.Now()
	r.summary = &Summary{}
	r.total = len(paths)

	r.logger.Info("starting ingestion", "repositories", len(paths), "workers", r.opts.Workers)

	var g errgroup.Group
	g.SetLimit(r.opts.Workers)

	for i, path := range paths {
		if r.stopped.Load() || ctx.Err() != nil {
			r.notStarted(paths[i:])
			break
		}
		g.Go(func() error {
			r.ingest(ctx, path)
			return nil
		})
	}
	g.Wait()

	r.summary.Duration = time.Since(start)

	err := r.fatalErr
	if err == nil {
		err = ctx.Err()
	}

	r.logger.Info("ingestion finished",
		"processed", r.summary.RepositoriesProcessed,
		"commits_written", r.summary.CommitsWritten,
		"commits_skipped", r.summary.CommitsSkipped,
		"errors", len(r.summary.Errors),
		"duration", r.summary.Duration)

	return r.summary, err
}

type repoStats struct {
	name       string
	registered bool
	written    int64
	skipped    int64
}

func (r *Runner) ingest(ctx context.Context, path string) {
	// The run may have been stopped while this worker waited for a slot
	if r.stopped.Load() || ctx.Err() != nil {
		r.notStarted([]string{path})
		return
	}

	stats := &repoStats{name: git.RepositoryName(path)}
	var repoID int64

	res := timing.Track(path, func() error {
		return r.extractor.Extract(ctx, path, func(c *git.Commit) error {
			if !stats.registered {
				id, err := r.sink.UpsertRepository(ctx, stats.name)
				if err != nil {
					return asStorageError("upsert repository", err)
				}
				repoID = id
				stats.registered = true
			}

			inserted, err := r.sink.WriteCommit(ctx, toLog(c, repoID), c.ChangedFiles)
			if err != nil {
				return asStorageError("write commit", err)
			}
			if inserted {
				stats.written++
				r.written.Add(1)
			} else {
				stats.skipped++
			}
			return nil
		})
	})

	r.finish(path, stats, res)
}

func (r *Runner) finish(path string, stats *repoStats, res *timing.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.summary
	s.CommitsWritten += stats.written
	s.CommitsSkipped += stats.skipped
	if stats.registered {
		s.Names = append(s.Names, stats.name)
	}

	m := r.opts.Metrics
	if m != nil {
		m.CommitsWritten.Add(float64(stats.written))
		m.CommitsSkipped.Add(float64(stats.skipped))
		m.RepositoryDuration.Observe(res.Seconds())
	}

	if res.Success() {
		s.RepositoriesProcessed++
		if !stats.registered {
			s.Empty = append(s.Empty, path)
		}
		if m != nil {
			m.RepositoriesProcessed.Inc()
		}
		r.logger.Info("ingested repository",
			"path", path, "name", stats.name,
			"written", stats.written, "skipped", stats.skipped, "duration_ms", res.DurationMs)
	} else {
		kind := Kind(res.Error)
		s.Errors = append(s.Errors, RepoError{Path: path, Kind: kind, Err: res.Error})
		if m != nil {
			m.RepositoryErrors.WithLabelValues(kind).Inc()
		}

		if IsFatal(res.Error) {
			r.stopped.Store(true)
			if r.fatalErr == nil {
				r.fatalErr = res.Error
			}
			r.logger.Error("storage failure, no further repositories will be started",
				"path", path, "error", res.Error)
		} else if kind == KindCanceled {
			r.logger.Warn("interrupted repository", "path", path, "error", res.Error)
		} else {
			r.logger.Warn("skipping repository", "path", path, "kind", kind, "error", res.Error)
		}
	}

	r.done++
	if r.opts.OnProgress != nil {
		r.opts.OnProgress(Progress{
			RepositoriesDone:  r.done,
			RepositoriesTotal: r.total,
			CommitsWritten:    r.written.Load(),
		})
	}
}

func (r *Runner) notStarted(paths []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.summary.NotStarted = append(r.summary.NotStarted, paths...)
}

func toLog(c *git.Commit, repoID int64) *database.Log {
	return &database.Log{
		CommitHash:     c.Hash,
		ParentHash:     c.ParentHash,
		AuthorName:     c.AuthorName,
		AuthorEmail:    c.AuthorEmail,
		Message:        c.Message,
		CommitDatetime: c.When,
		Insertions:     c.Insertions,
		Deletions:      c.Deletions,
		RepositoryID:   repoID,
	}
}

// asStorageError marks any sink failure as fatal, except the context
// ending under it
func asStorageError(op string, err error) error {
	if IsFatal(err) || isContextErr(err) {
		return err
	}
	return &database.StorageError{Op: op, Err: err}
}
