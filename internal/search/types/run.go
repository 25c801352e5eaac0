package types

import (
	"time"

	"github.com/cockroachdb/errors"
)

// Status is the outcome of one adapter invocation.
type Status string

const (
	StatusSuccess        Status = "success"
	StatusPartialSuccess Status = "partial_success"
	StatusFailed         Status = "failed"
	StatusTimedOut       Status = "timed_out"
)

// Sentinel errors for per-source outcomes. Neither is fatal to a run.
var (
	ErrAdapterFailure = errors.New("adapter failure")
	ErrAdapterTimeout = errors.New("adapter timed out")
)

// SourceRunResult records how one adapter invocation ended.
type SourceRunResult struct {
	SourceID    string        `json:"source_id"`
	Status      Status        `json:"status"`
	RecordCount int           `json:"record_count"`
	ErrorDetail string        `json:"error_detail,omitempty"`
	Elapsed     time.Duration `json:"elapsed_ns"`
}

// Usable reports whether the source contributed data it completed or
// partially completed.
func (r SourceRunResult) Usable() bool {
	return r.Status == StatusSuccess || r.Status == StatusPartialSuccess
}

// Rejection explains why a raw listing did not become a FlightRecord.
type Rejection struct {
	SourceID string `json:"source_id"`
	Seq      int    `json:"seq"`
	Reason   string `json:"reason"`
}

// QualityEvent notes a secondary field that was defaulted during
// normalization. It is informational, not an error.
type QualityEvent struct {
	SourceID string `json:"source_id"`
	Seq      int    `json:"seq"`
	Field    string `json:"field"`
	Note     string `json:"note"`
}

// DedupKey is the equivalence key used to match the same flight across sources.
type DedupKey struct {
	Airline       string `json:"airline"`
	FlightCode    string `json:"flight_code"`
	DepartureTime int    `json:"departure_time"`
	ArrivalTime   int    `json:"arrival_time"`
}

// KeyOf returns the equivalence key of a record.
func KeyOf(f FlightRecord) DedupKey {
	return DedupKey{
		Airline:       f.Airline,
		FlightCode:    f.FlightCode,
		DepartureTime: f.DepartureTime,
		ArrivalTime:   f.ArrivalTime,
	}
}

// DedupEvent records one merge of equivalent records.
type DedupEvent struct {
	Key         DedupKey `json:"key"`
	SourceIDs   []string `json:"source_ids"`
	MergedCount int      `json:"merged_count"`
	MinPrice    int64    `json:"min_price"`
	// Conflicts lists secondary fields whose values disagreed within the class.
	Conflicts []string `json:"conflicts,omitempty"`
}

// Violation is a record excluded from fusion because it breaks the
// canonical record invariants.
type Violation struct {
	SourceID string `json:"source_id"`
	FlightID string `json:"flight_id"`
	Reason   string `json:"reason"`
}
