package obs

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
)

// Metrics tracks application metrics using atomic counters.
type Metrics struct {
	requests       atomic.Int64
	cacheHits      atomic.Int64
	runs           atomic.Int64
	sourceFailures atomic.Int64
	sourceTimeouts atomic.Int64
	rejections     atomic.Int64
	merges         atomic.Int64
	sinkErrors     atomic.Int64
	logger         *slog.Logger
}

// NewMetrics creates a new Metrics instance.
func NewMetrics(logger *slog.Logger) *Metrics {
	return &Metrics{
		logger: logger,
	}
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	m.requests.Add(1)
}

// IncCacheHits increments the cache hits counter.
func (m *Metrics) IncCacheHits() {
	m.cacheHits.Add(1)
}

// IncRuns increments the pipeline run counter.
func (m *Metrics) IncRuns() {
	m.runs.Add(1)
}

// IncSourceFailures counts a source run that ended Failed.
func (m *Metrics) IncSourceFailures() {
	m.sourceFailures.Add(1)
}

// IncSourceTimeouts counts a source run that ended TimedOut.
func (m *Metrics) IncSourceTimeouts() {
	m.sourceTimeouts.Add(1)
}

// AddRejections adds n rejected listings.
func (m *Metrics) AddRejections(n int) {
	m.rejections.Add(int64(n))
}

// AddMerges adds n duplicate classes merged by fusion.
func (m *Metrics) AddMerges(n int) {
	m.merges.Add(int64(n))
}

// IncSinkErrors counts a failed bundle sink write.
func (m *Metrics) IncSinkErrors() {
	m.sinkErrors.Add(1)
}

// Snapshot returns current metric values.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Requests:       m.requests.Load(),
		CacheHits:      m.cacheHits.Load(),
		Runs:           m.runs.Load(),
		SourceFailures: m.sourceFailures.Load(),
		SourceTimeouts: m.sourceTimeouts.Load(),
		Rejections:     m.rejections.Load(),
		Merges:         m.merges.Load(),
		SinkErrors:     m.sinkErrors.Load(),
	}
}

// MetricsSnapshot represents a point-in-time snapshot of metrics.
type MetricsSnapshot struct {
	Requests       int64
	CacheHits      int64
	Runs           int64
	SourceFailures int64
	SourceTimeouts int64
	Rejections     int64
	Merges         int64
	SinkErrors     int64
}

type counter struct {
	name  string
	help  string
	value int64
}

func (s MetricsSnapshot) counters() []counter {
	return []counter{
		{"requests_total", "Total number of search requests", s.Requests},
		{"cache_hits_total", "Total number of cache hits", s.CacheHits},
		{"pipeline_runs_total", "Total number of pipeline runs", s.Runs},
		{"source_failures_total", "Total number of failed source runs", s.SourceFailures},
		{"source_timeouts_total", "Total number of timed out source runs", s.SourceTimeouts},
		{"listing_rejections_total", "Total number of rejected raw listings", s.Rejections},
		{"fusion_merges_total", "Total number of merged duplicate flights", s.Merges},
		{"sink_errors_total", "Total number of failed bundle sink writes", s.SinkErrors},
	}
}

// HealthHandler returns a handler for /healthz requests.
func HealthHandler(logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			logger.Error("failed to write health response", "error", err)
		}
	}
}

// MetricsHandler returns a handler for /metrics requests in Prometheus format.
func (m *Metrics) MetricsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snapshot := m.Snapshot()

		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		w.WriteHeader(http.StatusOK)

		for _, c := range snapshot.counters() {
			if _, err := fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s counter\n%s %d\n", c.name, c.help, c.name, c.name, c.value); err != nil {
				m.logger.Error("failed to write metrics", "error", err)
				return
			}
		}
	}
}
