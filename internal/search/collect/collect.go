// Package collect runs fare source adapters concurrently under per-source
// and overall deadlines and gathers whatever they produced.
package collect

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/alex-user-go/fares/internal/search/types"
	"github.com/alex-user-go/fares/internal/sources"
)

// DefaultGracePeriod is how long a cancelled adapter may keep running
// before it is abandoned.
const DefaultGracePeriod = 250 * time.Millisecond

// Collection is the raw output of one collection round.
type Collection struct {
	// Listings are sorted by (source id, emission order).
	Listings []types.TaggedListing
	// Runs has one entry per adapter, in adapter order.
	Runs []types.SourceRunResult
}

// Collector coordinates adapters for one query at a time. It holds no
// per-run state and is safe for concurrent use.
type Collector struct {
	grace  time.Duration
	logger *slog.Logger
}

// New creates a Collector. A negative grace period is treated as zero.
func New(grace time.Duration, logger *slog.Logger) *Collector {
	return &Collector{
		grace:  max(grace, 0),
		logger: logger,
	}
}

// Collect invokes every adapter concurrently. Each adapter gets its own
// context bounded by perAdapterTimeout; the whole round is bounded by
// overallDeadline. Zero or negative durations leave that level unbounded.
//
// Collect never fails: every adapter is accounted for in Runs, and any
// listings an adapter emitted before failing or being abandoned are kept.
func (c *Collector) Collect(ctx context.Context, q types.Query, adapters []sources.Adapter, perAdapterTimeout, overallDeadline time.Duration) Collection {
	roundCtx, cancel := withOptionalTimeout(ctx, overallDeadline)
	defer cancel()

	var wg sync.WaitGroup
	slots := make([]*slot, len(adapters))

	for i, adapter := range adapters {
		s := &slot{sourceID: adapter.ID(), started: time.Now()}
		slots[i] = s

		wg.Go(func() {
			adapterCtx, cancelAdapter := withOptionalTimeout(roundCtx, perAdapterTimeout)
			defer cancelAdapter()

			finished := make(chan struct{})
			go func() {
				defer close(finished)
				c.drive(adapterCtx, adapter, q, s)
			}()

			select {
			case <-finished:
			case <-adapterCtx.Done():
				grace := time.NewTimer(c.grace)
				defer grace.Stop()
				select {
				case <-finished:
				case <-grace.C:
				}
			}
			s.seal(adapterCtx)
		})
	}

	wg.Wait()

	var out Collection
	out.Runs = make([]types.SourceRunResult, len(slots))
	for i, s := range slots {
		out.Runs[i] = s.result
		for seq, raw := range s.listings {
			out.Listings = append(out.Listings, types.TaggedListing{SourceID: s.sourceID, Seq: seq, Raw: raw})
		}
		c.logRun(q, s.result, s.err)
	}

	slices.SortStableFunc(out.Listings, func(a, b types.TaggedListing) int {
		return cmp.Or(cmp.Compare(a.SourceID, b.SourceID), cmp.Compare(a.Seq, b.Seq))
	})
	return out
}

// drive consumes one adapter's sequence into its slot.
func (c *Collector) drive(ctx context.Context, adapter sources.Adapter, q types.Query, s *slot) {
	defer func() {
		if r := recover(); r != nil {
			s.finish(types.StatusFailed, errors.Mark(errors.Newf("adapter panicked: %v", r), types.ErrAdapterFailure))
		}
	}()

	for raw, err := range adapter.Run(ctx, q) {
		if err != nil {
			s.finish(classify(ctx, err, s.count()))
			return
		}
		if raw == nil {
			continue
		}
		if !s.add(raw) {
			return
		}
	}
	// An adapter may answer cancellation by ending its sequence quietly.
	if ctx.Err() != nil {
		s.finish(types.StatusTimedOut, errors.Mark(errors.Wrap(context.Cause(ctx), "stopped at deadline"), types.ErrAdapterTimeout))
		return
	}
	s.finish(types.StatusSuccess, nil)
}

// classify maps an adapter error to a status.
func classify(ctx context.Context, err error, emitted int) (types.Status, error) {
	switch {
	case ctx.Err() != nil:
		return types.StatusTimedOut, errors.Mark(err, types.ErrAdapterTimeout)
	case sources.IsRecoverable(err) && emitted > 0:
		return types.StatusPartialSuccess, err
	default:
		return types.StatusFailed, errors.Mark(err, types.ErrAdapterFailure)
	}
}

func (c *Collector) logRun(q types.Query, r types.SourceRunResult, err error) {
	attrs := []any{
		"source", r.SourceID,
		"query", q.String(),
		"status", r.Status,
		"records", r.RecordCount,
		"elapsed", r.Elapsed,
	}
	switch r.Status {
	case types.StatusSuccess:
		c.logger.Info("source completed", attrs...)
	case types.StatusPartialSuccess:
		c.logger.Warn("source partially completed", append(attrs, "error", err)...)
	default:
		c.logger.Warn("source failed", append(attrs, "error", err)...)
	}
}

// slot is one adapter's private output buffer. Once sealed it ignores
// further writes, so an abandoned adapter cannot change collected output.
type slot struct {
	sourceID string
	started  time.Time

	mu       sync.Mutex
	sealed   bool
	done     bool
	status   types.Status
	err      error
	listings []types.RawListing
	result   types.SourceRunResult
}

func (s *slot) add(raw types.RawListing) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sealed {
		return false
	}
	s.listings = append(s.listings, raw)
	return true
}

func (s *slot) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.listings)
}

func (s *slot) finish(status types.Status, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sealed || s.done {
		return
	}
	s.done = true
	s.status = status
	s.err = err
}

// seal freezes the slot. An adapter that has not finished by now was
// abandoned and is reported as timed out.
func (s *slot) seal(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sealed = true
	if !s.done {
		s.status = types.StatusTimedOut
		s.err = errors.Mark(errors.Newf("abandoned: %v", context.Cause(ctx)), types.ErrAdapterTimeout)
	}

	s.result = types.SourceRunResult{
		SourceID:    s.sourceID,
		Status:      s.status,
		RecordCount: len(s.listings),
		Elapsed:     time.Since(s.started),
	}
	if s.err != nil {
		s.result.ErrorDetail = s.err.Error()
	}
}

func withOptionalTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
