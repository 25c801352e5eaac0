package types

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ClockUnknown marks a departure or arrival time that could not be parsed.
const ClockUnknown = -1

// UnknownAirline is the airline of a listing that did not name one.
const UnknownAirline = "Unknown"

// RawListing is an untrusted, adapter-specific payload for one listing.
type RawListing map[string]any

// Text returns the value stored under key as trimmed text. Numbers are
// formatted without exponent; lists are joined with newlines.
func (r RawListing) Text(key string) (string, bool) {
	v, ok := r[key]
	if !ok || v == nil {
		return "", false
	}
	var s string
	switch val := v.(type) {
	case string:
		s = val
	case json.Number:
		s = val.String()
	case float64:
		s = strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		s = strconv.Itoa(val)
	case int64:
		s = strconv.FormatInt(val, 10)
	case []string:
		s = strings.Join(val, "\n")
	case []any:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			parts = append(parts, fmt.Sprint(item))
		}
		s = strings.Join(parts, "\n")
	default:
		s = fmt.Sprint(val)
	}
	s = strings.TrimSpace(s)
	return s, s != ""
}

// List returns the value stored under key as a list of non-empty strings.
// A single string is split on newlines and semicolons.
func (r RawListing) List(key string) []string {
	v, ok := r[key]
	if !ok || v == nil {
		return nil
	}
	var items []string
	switch val := v.(type) {
	case []string:
		items = val
	case []any:
		for _, item := range val {
			if item != nil {
				items = append(items, fmt.Sprint(item))
			}
		}
	default:
		text, _ := r.Text(key)
		items = strings.FieldsFunc(text, func(c rune) bool { return c == '\n' || c == ';' })
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// TaggedListing is a raw listing together with the source that emitted it
// and its position in that source's emission order.
type TaggedListing struct {
	SourceID string
	Seq      int
	Raw      RawListing
}

// SourcePrice is the price one source quoted for a flight.
type SourcePrice struct {
	SourceID string `json:"source_id"`
	Price    int64  `json:"price"`
}

// FlightRecord is the canonical, typed representation of one listing.
// Price and DurationMinutes are always present and non-negative.
type FlightRecord struct {
	SourceID        string        `json:"source_id"`
	FlightID        string        `json:"flight_id"`
	Airline         string        `json:"airline"`
	FlightCode      string        `json:"flight_code"`
	DepartureTime   int           `json:"departure_time"`
	ArrivalTime     int           `json:"arrival_time"`
	DurationMinutes int           `json:"duration_minutes"`
	Stops           int           `json:"stops"`
	StopDetail      string        `json:"stop_detail,omitempty"`
	Price           int64         `json:"price"`
	CabinClass      string        `json:"cabin_class"`
	Offers          []string      `json:"offers,omitempty"`
	MergedFrom      []string      `json:"merged_from"`
	SourcePrices    []SourcePrice `json:"source_prices"`
}

// TimesKnown reports whether both departure and arrival were parsed.
func (f FlightRecord) TimesKnown() bool {
	return f.DepartureTime != ClockUnknown && f.ArrivalTime != ClockUnknown
}

// Identified reports whether the record carries enough identity to be
// matched against records from other sources: a known airline, a flight
// code, and both times.
func (f FlightRecord) Identified() bool {
	return f.Airline != "" && f.Airline != UnknownAirline && f.FlightCode != "" && f.TimesKnown()
}

// Clone returns a deep copy of the record.
func (f FlightRecord) Clone() FlightRecord {
	out := f
	out.Offers = cloneStrings(f.Offers)
	out.MergedFrom = cloneStrings(f.MergedFrom)
	if f.SourcePrices != nil {
		out.SourcePrices = append([]SourcePrice(nil), f.SourcePrices...)
	}
	return out
}

// FormatClock renders minutes since midnight as HH:MM, or "--:--" when unknown.
func FormatClock(minutes int) string {
	if minutes < 0 {
		return "--:--"
	}
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string(nil), in...)
}
