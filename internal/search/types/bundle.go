package types

import (
	"encoding/json"
	"time"
)

// Outcome classifies a finished run.
type Outcome string

const (
	// OutcomeComplete means every source succeeded.
	OutcomeComplete Outcome = "complete"
	// OutcomeDegraded means at least one source did not succeed fully.
	OutcomeDegraded Outcome = "degraded"
	// OutcomeEmpty means no flight survived collection and fusion.
	OutcomeEmpty Outcome = "empty"
)

// BundleParts carries everything a ResultBundle is built from.
type BundleParts struct {
	RunID         string
	Query         Query
	Records       []FlightRecord
	Runs          []SourceRunResult
	Metrics       MetricsSnapshot
	DedupEvents   []DedupEvent
	Rejections    []Rejection
	QualityEvents []QualityEvent
	Violations    []Violation
	GeneratedAt   time.Time
}

// ResultBundle is the immutable output of one pipeline run. All accessors
// return copies; re-running the pipeline produces a new bundle.
type ResultBundle struct {
	p       BundleParts
	outcome Outcome
}

// NewResultBundle builds a bundle, taking ownership of a deep copy of parts.
func NewResultBundle(parts BundleParts) *ResultBundle {
	p := parts
	p.Records = make([]FlightRecord, len(parts.Records))
	for i, r := range parts.Records {
		p.Records[i] = r.Clone()
	}
	p.Runs = append([]SourceRunResult(nil), parts.Runs...)
	p.Metrics = parts.Metrics.Clone()
	p.DedupEvents = append([]DedupEvent(nil), parts.DedupEvents...)
	p.Rejections = append([]Rejection(nil), parts.Rejections...)
	p.QualityEvents = append([]QualityEvent(nil), parts.QualityEvents...)
	p.Violations = append([]Violation(nil), parts.Violations...)

	return &ResultBundle{p: p, outcome: classify(p.Records, p.Runs)}
}

func classify(records []FlightRecord, runs []SourceRunResult) Outcome {
	if len(records) == 0 {
		return OutcomeEmpty
	}
	for _, r := range runs {
		if r.Status != StatusSuccess {
			return OutcomeDegraded
		}
	}
	return OutcomeComplete
}

func (b *ResultBundle) RunID() string          { return b.p.RunID }
func (b *ResultBundle) Query() Query           { return b.p.Query }
func (b *ResultBundle) GeneratedAt() time.Time { return b.p.GeneratedAt }
func (b *ResultBundle) Outcome() Outcome       { return b.outcome }
func (b *ResultBundle) Len() int               { return len(b.p.Records) }

// Records returns the fused flights, price ascending.
func (b *ResultBundle) Records() []FlightRecord {
	out := make([]FlightRecord, len(b.p.Records))
	for i, r := range b.p.Records {
		out[i] = r.Clone()
	}
	return out
}

// Record resolves a reference from the metrics snapshot.
func (b *ResultBundle) Record(ref RecordRef) (FlightRecord, bool) {
	if !ref.Defined() || ref.Index >= len(b.p.Records) {
		return FlightRecord{}, false
	}
	return b.p.Records[ref.Index].Clone(), true
}

func (b *ResultBundle) Runs() []SourceRunResult {
	return append([]SourceRunResult(nil), b.p.Runs...)
}

func (b *ResultBundle) Metrics() MetricsSnapshot { return b.p.Metrics.Clone() }

func (b *ResultBundle) DedupEvents() []DedupEvent {
	return append([]DedupEvent(nil), b.p.DedupEvents...)
}

func (b *ResultBundle) Rejections() []Rejection {
	return append([]Rejection(nil), b.p.Rejections...)
}

func (b *ResultBundle) QualityEvents() []QualityEvent {
	return append([]QualityEvent(nil), b.p.QualityEvents...)
}

func (b *ResultBundle) Violations() []Violation {
	return append([]Violation(nil), b.p.Violations...)
}

// RunCounts returns how many sources ended in each status.
func (b *ResultBundle) RunCounts() map[Status]int {
	counts := make(map[Status]int, 4)
	for _, r := range b.p.Runs {
		counts[r.Status]++
	}
	return counts
}

type bundleJSON struct {
	RunID         string            `json:"run_id"`
	Query         Query             `json:"query"`
	Outcome       Outcome           `json:"outcome"`
	GeneratedAt   time.Time         `json:"generated_at"`
	Flights       []FlightRecord    `json:"flights"`
	Sources       []SourceRunResult `json:"sources"`
	Metrics       MetricsSnapshot   `json:"metrics"`
	DedupEvents   []DedupEvent      `json:"dedup_events"`
	Rejections    []Rejection       `json:"rejections"`
	QualityEvents []QualityEvent    `json:"quality_events"`
	Violations    []Violation       `json:"violations,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (b *ResultBundle) MarshalJSON() ([]byte, error) {
	return json.Marshal(bundleJSON{
		RunID:         b.p.RunID,
		Query:         b.p.Query,
		Outcome:       b.outcome,
		GeneratedAt:   b.p.GeneratedAt,
		Flights:       nonNil(b.p.Records),
		Sources:       nonNil(b.p.Runs),
		Metrics:       b.p.Metrics,
		DedupEvents:   nonNil(b.p.DedupEvents),
		Rejections:    nonNil(b.p.Rejections),
		QualityEvents: nonNil(b.p.QualityEvents),
		Violations:    b.p.Violations,
	})
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
