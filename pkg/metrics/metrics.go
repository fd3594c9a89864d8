package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the ingestion counters. Each instance owns its registry so
// several runs in one process do not share state.
type Metrics struct {
	registry *prometheus.Registry

	RepositoriesProcessed prometheus.Counter
	CommitsWritten        prometheus.Counter
	CommitsSkipped        prometheus.Counter
	RepositoryErrors      *prometheus.CounterVec
	RepositoryDuration    prometheus.Histogram
}

// New creates a Metrics with a fresh registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		// repositories whose history was read to the end
		RepositoriesProcessed: factory.NewCounter(prometheus.CounterOpts{
			Name: "gitlogdb_repositories_processed_total",
			Help: "Repositories whose history was fully ingested",
		}),

		CommitsWritten: factory.NewCounter(prometheus.CounterOpts{
			Name: "gitlogdb_commits_written_total",
			Help: "Commits inserted into the logs table",
		}),

		// commits already present from an earlier run
		CommitsSkipped: factory.NewCounter(prometheus.CounterOpts{
			Name: "gitlogdb_commits_skipped_total",
			Help: "Commits that were already stored",
		}),

		RepositoryErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gitlogdb_repository_errors_total",
			Help: "Repositories that failed, by error kind",
		}, []string{"kind"}),

		RepositoryDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "gitlogdb_repository_duration_seconds",
			Help:    "Time spent ingesting one repository",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 10), // 10ms to ~43min
		}),
	}
}

// Registry returns the registry the metrics are registered with
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile writes a snapshot in the Prometheus text format, suitable
// for the node exporter textfile collector
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}
