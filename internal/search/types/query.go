package types

import (
	"fmt"
	"strings"
)

// Query describes a one-way fare search. It is created once per run and
// never modified afterwards.
type Query struct {
	Origin      string `json:"origin"`
	Destination string `json:"destination"`
	JourneyDate string `json:"journey_date"`
	CabinClass  string `json:"cabin_class,omitempty"`
}

// Key returns the canonical cache key for the query.
func (q Query) Key() string {
	return fmt.Sprintf("%s:%s:%s:%s",
		strings.ToUpper(strings.TrimSpace(q.Origin)),
		strings.ToUpper(strings.TrimSpace(q.Destination)),
		strings.TrimSpace(q.JourneyDate),
		strings.ToLower(strings.TrimSpace(q.CabinClass)),
	)
}

// String formats the query for logs.
func (q Query) String() string {
	if q.CabinClass == "" {
		return fmt.Sprintf("%s-%s %s", q.Origin, q.Destination, q.JourneyDate)
	}
	return fmt.Sprintf("%s-%s %s (%s)", q.Origin, q.Destination, q.JourneyDate, q.CabinClass)
}
