package types

import (
	"encoding/json"
	"slices"
	"strconv"
)

// Scalar is a statistic that may be undefined, for example the mean of an
// empty dataset. Undefined scalars encode as JSON null.
type Scalar struct {
	Value   float64
	Defined bool
}

// Some returns a defined scalar.
func Some(v float64) Scalar {
	return Scalar{Value: v, Defined: true}
}

// MarshalJSON implements json.Marshaler.
func (s Scalar) MarshalJSON() ([]byte, error) {
	if !s.Defined {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatFloat(s.Value, 'f', -1, 64)), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Scalar) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*s = Scalar{}
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*s = Some(v)
	return nil
}

// RecordRef points at a record in the fused dataset of the same bundle.
type RecordRef struct {
	Index    int    `json:"index"`
	FlightID string `json:"flight_id,omitempty"`
}

// NoRecord is the undefined reference.
var NoRecord = RecordRef{Index: -1}

// Defined reports whether the reference points at a record.
func (r RecordRef) Defined() bool {
	return r.Index >= 0
}

// GroupStats summarises prices for one airline or one source.
type GroupStats struct {
	Key       string    `json:"key"`
	Count     int       `json:"count"`
	MinPrice  int64     `json:"min_price"`
	MaxPrice  int64     `json:"max_price"`
	MeanPrice float64   `json:"mean_price"`
	StdDev    float64   `json:"std_dev"`
	Cheapest  RecordRef `json:"cheapest"`
}

// StopBucket counts flights with a given number of stops.
type StopBucket struct {
	Stops int `json:"stops"`
	Count int `json:"count"`
}

// DepartureBand counts flights departing in one part of the day.
type DepartureBand struct {
	Band     string `json:"band"`
	Count    int    `json:"count"`
	MinPrice int64  `json:"min_price"`
}

// MetricsSnapshot holds statistics over a fused dataset. References point
// into the dataset the snapshot was computed from.
type MetricsSnapshot struct {
	Count int `json:"count"`

	MinPrice    Scalar `json:"min_price"`
	MaxPrice    Scalar `json:"max_price"`
	MeanPrice   Scalar `json:"mean_price"`
	MedianPrice Scalar `json:"median_price"`
	StdDevPrice Scalar `json:"std_dev_price"`

	MinDuration  Scalar `json:"min_duration"`
	MaxDuration  Scalar `json:"max_duration"`
	MeanDuration Scalar `json:"mean_duration"`

	Cheapest       RecordRef `json:"cheapest"`
	Fastest        RecordRef `json:"fastest"`
	BestValue      RecordRef `json:"best_value"`
	BestValueScore Scalar    `json:"best_value_score"`
	// Scores holds the best-value score of every record, by index.
	Scores []float64 `json:"scores"`

	PerAirline       []GroupStats    `json:"per_airline"`
	PerSource        []GroupStats    `json:"per_source"`
	StopDistribution []StopBucket    `json:"stop_distribution"`
	DepartureBands   []DepartureBand `json:"departure_bands"`
}

// Clone returns a deep copy of the snapshot.
func (m MetricsSnapshot) Clone() MetricsSnapshot {
	out := m
	out.Scores = slices.Clone(m.Scores)
	out.PerAirline = slices.Clone(m.PerAirline)
	out.PerSource = slices.Clone(m.PerSource)
	out.StopDistribution = slices.Clone(m.StopDistribution)
	out.DepartureBands = slices.Clone(m.DepartureBands)
	return out
}
