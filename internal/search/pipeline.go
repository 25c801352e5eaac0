// Package search runs the fare pipeline for one query: collect raw listings
// from every source, normalize them, fuse duplicates, compute metrics, and
// package everything into an immutable ResultBundle.
package search

import (
	"context"
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/alex-user-go/fares/internal/obs"
	"github.com/alex-user-go/fares/internal/search/analytics"
	"github.com/alex-user-go/fares/internal/search/collect"
	"github.com/alex-user-go/fares/internal/search/fusion"
	"github.com/alex-user-go/fares/internal/search/normalize"
	"github.com/alex-user-go/fares/internal/search/types"
	"github.com/alex-user-go/fares/internal/sources"
)

// ErrAllSourcesFailed is returned alongside the bundle when results are
// required and no source completed even partially.
var ErrAllSourcesFailed = errors.New("all sources failed")

// Sink receives every finished bundle, e.g. to keep a run history.
type Sink interface {
	SaveBundle(ctx context.Context, b *types.ResultBundle) error
}

// Pipeline is safe for concurrent use; each Run works on its own data.
type Pipeline struct {
	adapters       []sources.Adapter
	perSource      time.Duration
	overall        time.Duration
	grace          time.Duration
	normalizeOpts  normalize.Options
	priority       []string
	requireResults bool
	sinks          []Sink
	metrics        *obs.Metrics
	logger         *slog.Logger

	collector  *collect.Collector
	normalizer *normalize.Normalizer
	fuser      *fusion.Engine
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithTimeouts sets the per-source timeout and the overall collection
// deadline. Zero or negative leaves that level unbounded.
func WithTimeouts(perSource, overall time.Duration) Option {
	return func(p *Pipeline) {
		p.perSource = perSource
		p.overall = overall
	}
}

// WithGracePeriod sets how long a cancelled source may take to return.
func WithGracePeriod(d time.Duration) Option {
	return func(p *Pipeline) { p.grace = d }
}

// WithNormalizeOptions sets price bounds and the default cabin.
func WithNormalizeOptions(opts normalize.Options) Option {
	return func(p *Pipeline) { p.normalizeOpts = opts }
}

// WithPriority sets the source order used to pick representative fields
// when merging duplicates. It defaults to adapter order.
func WithPriority(ids []string) Option {
	return func(p *Pipeline) { p.priority = ids }
}

// WithRequireResults makes Run report ErrAllSourcesFailed when every
// source failed or timed out.
func WithRequireResults(require bool) Option {
	return func(p *Pipeline) { p.requireResults = require }
}

// WithSinks adds bundle sinks.
func WithSinks(sinks ...Sink) Option {
	return func(p *Pipeline) { p.sinks = append(p.sinks, sinks...) }
}

// WithMetrics sets the process counters to update.
func WithMetrics(m *obs.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// New creates a Pipeline over adapters. Adapter ids must be unique.
func New(adapters []sources.Adapter, opts ...Option) (*Pipeline, error) {
	seen := make(map[string]bool, len(adapters))
	ids := make([]string, 0, len(adapters))
	for _, a := range adapters {
		if seen[a.ID()] {
			return nil, errors.Newf("duplicate source id %q", a.ID())
		}
		seen[a.ID()] = true
		ids = append(ids, a.ID())
	}

	p := &Pipeline{
		adapters: adapters,
		grace:    collect.DefaultGracePeriod,
		priority: ids,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.metrics == nil {
		p.metrics = obs.NewMetrics(p.logger)
	}

	p.collector = collect.New(p.grace, p.logger)
	p.normalizer = normalize.New(p.normalizeOpts, p.logger)
	p.fuser = fusion.New(p.priority)
	return p, nil
}

// Sources returns the number of configured sources.
func (p *Pipeline) Sources() int {
	return len(p.adapters)
}

// Run executes one query. The bundle is returned whenever collection ran to
// completion, even if every source failed. If ctx was cancelled, Run
// returns its cause and no bundle.
func (p *Pipeline) Run(ctx context.Context, q types.Query) (*types.ResultBundle, error) {
	start := time.Now()
	runID := uuid.NewString()
	logger := p.logger.With("run_id", runID, "query", q.String())
	p.metrics.IncRuns()

	collection := p.collector.Collect(ctx, q, p.adapters, p.perSource, p.overall)
	if err := context.Cause(ctx); err != nil {
		logger.Warn("run interrupted", "error", err)
		return nil, errors.Wrap(err, "run interrupted")
	}

	usable := 0
	for _, r := range collection.Runs {
		switch r.Status {
		case types.StatusFailed:
			p.metrics.IncSourceFailures()
		case types.StatusTimedOut:
			p.metrics.IncSourceTimeouts()
		}
		if r.Usable() {
			usable++
		}
	}

	normalized := p.normalizer.ForQuery(q).NormalizeAll(collection.Listings)
	p.metrics.AddRejections(len(normalized.Rejections))

	fused := p.fuser.Fuse(normalized.Records)
	p.metrics.AddMerges(len(fused.Events))
	for _, v := range fused.Violations {
		logger.Warn("record violates invariants", "source", v.SourceID, "flight_id", v.FlightID, "reason", v.Reason)
	}

	bundle := types.NewResultBundle(types.BundleParts{
		RunID:         runID,
		Query:         q,
		Records:       fused.Records,
		Runs:          collection.Runs,
		Metrics:       analytics.Compute(fused.Records),
		DedupEvents:   fused.Events,
		Rejections:    normalized.Rejections,
		QualityEvents: normalized.QualityEvents,
		Violations:    fused.Violations,
		GeneratedAt:   time.Now().UTC(),
	})

	logger.Info("run completed",
		"outcome", bundle.Outcome(),
		"flights", bundle.Len(),
		"listings", len(collection.Listings),
		"rejected", len(normalized.Rejections),
		"merged", len(fused.Events),
		"usable_sources", usable,
		"duration", time.Since(start),
	)

	for _, s := range p.sinks {
		if err := s.SaveBundle(ctx, bundle); err != nil {
			p.metrics.IncSinkErrors()
			logger.Error("bundle sink failed", "error", err)
		}
	}

	if p.requireResults && usable == 0 {
		return bundle, ErrAllSourcesFailed
	}
	return bundle, nil
}
