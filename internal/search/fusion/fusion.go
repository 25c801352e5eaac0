// Package fusion merges normalized flight records from several sources into
// one record per distinct flight.
package fusion

import (
	"cmp"
	"maps"
	"slices"

	"github.com/alex-user-go/fares/internal/search/types"
)

// Outcome is the result of one fusion pass.
type Outcome struct {
	Records    []types.FlightRecord
	Events     []types.DedupEvent
	Violations []types.Violation
}

// Engine merges equivalent records. Equivalence is exact on
// (airline, flight code, departure, arrival) and only applies to records
// where all four are known.
type Engine struct {
	rank map[string]int
}

// New creates an Engine. priority lists source ids from most to least
// trusted; unlisted sources rank after all listed ones.
func New(priority []string) *Engine {
	rank := make(map[string]int, len(priority))
	for i, id := range priority {
		if _, ok := rank[id]; !ok {
			rank[id] = i
		}
	}
	return &Engine{rank: rank}
}

func (e *Engine) rankOf(sourceID string) int {
	if r, ok := e.rank[sourceID]; ok {
		return r
	}
	return len(e.rank)
}

type member struct {
	rec   types.FlightRecord
	index int
}

type class struct {
	key     types.DedupKey
	first   int
	members []member
}

// Fuse merges records and sorts the result by price, then duration, then
// input order. The input is not modified.
func (e *Engine) Fuse(records []types.FlightRecord) Outcome {
	var out Outcome

	classes := make(map[types.DedupKey]*class)
	var order []*class
	for i, rec := range records {
		if reason := violation(rec); reason != "" {
			out.Violations = append(out.Violations, types.Violation{SourceID: rec.SourceID, FlightID: rec.FlightID, Reason: reason})
			continue
		}
		key := types.KeyOf(rec)
		if !rec.Identified() {
			// Partial identity never merges; the record is its own class.
			order = append(order, &class{key: key, first: i, members: []member{{rec: rec, index: i}}})
			continue
		}
		c, ok := classes[key]
		if !ok {
			c = &class{key: key, first: i}
			classes[key] = c
			order = append(order, c)
		}
		c.members = append(c.members, member{rec: rec, index: i})
	}

	type fused struct {
		rec   types.FlightRecord
		first int
	}
	merged := make([]fused, 0, len(order))
	for _, c := range order {
		if len(c.members) == 1 {
			merged = append(merged, fused{rec: c.members[0].rec.Clone(), first: c.first})
			continue
		}
		rec, ev := e.merge(c)
		merged = append(merged, fused{rec: rec, first: c.first})
		out.Events = append(out.Events, ev)
	}

	slices.SortStableFunc(merged, func(a, b fused) int {
		return cmp.Or(
			cmp.Compare(a.rec.Price, b.rec.Price),
			cmp.Compare(a.rec.DurationMinutes, b.rec.DurationMinutes),
			cmp.Compare(a.first, b.first),
		)
	})

	out.Records = make([]types.FlightRecord, len(merged))
	for i, f := range merged {
		out.Records[i] = f.rec
	}
	return out
}

// merge collapses a class of two or more identified records.
// Representative fields come from the highest-priority member.
func (e *Engine) merge(c *class) (types.FlightRecord, types.DedupEvent) {
	candidates := slices.Clone(c.members)
	slices.SortStableFunc(candidates, func(a, b member) int {
		return cmp.Or(
			cmp.Compare(e.rankOf(a.rec.SourceID), e.rankOf(b.rec.SourceID)),
			cmp.Compare(a.index, b.index),
		)
	})

	out := candidates[0].rec.Clone()
	out.Offers = nil
	seenOffer := make(map[string]bool)
	prices := make(map[string]int64)
	for _, m := range c.members {
		out.Price = min(out.Price, m.rec.Price)
		for _, o := range m.rec.Offers {
			if !seenOffer[o] {
				seenOffer[o] = true
				out.Offers = append(out.Offers, o)
			}
		}
		for _, sp := range sourcePrices(m.rec) {
			if p, ok := prices[sp.SourceID]; !ok || sp.Price < p {
				prices[sp.SourceID] = sp.Price
			}
		}
	}

	out.MergedFrom = slices.Sorted(maps.Keys(prices))
	out.SourcePrices = make([]types.SourcePrice, 0, len(out.MergedFrom))
	for _, id := range out.MergedFrom {
		out.SourcePrices = append(out.SourcePrices, types.SourcePrice{SourceID: id, Price: prices[id]})
	}

	ev := types.DedupEvent{
		Key:         c.key,
		SourceIDs:   slices.Clone(out.MergedFrom),
		MergedCount: len(c.members),
		MinPrice:    out.Price,
		Conflicts:   conflicts(c.members),
	}
	return out, ev
}

// sourcePrices returns the per-source prices a record carries, falling back
// to its own source and price.
func sourcePrices(rec types.FlightRecord) []types.SourcePrice {
	if len(rec.SourcePrices) > 0 {
		return rec.SourcePrices
	}
	return []types.SourcePrice{{SourceID: rec.SourceID, Price: rec.Price}}
}

func conflicts(members []member) []string {
	var out []string
	differs := func(get func(types.FlightRecord) int) bool {
		for _, m := range members[1:] {
			if get(m.rec) != get(members[0].rec) {
				return true
			}
		}
		return false
	}
	if differs(func(r types.FlightRecord) int { return r.DurationMinutes }) {
		out = append(out, "duration")
	}
	if differs(func(r types.FlightRecord) int { return r.Stops }) {
		out = append(out, "stops")
	}
	return out
}

func violation(rec types.FlightRecord) string {
	switch {
	case rec.SourceID == "":
		return "empty source id"
	case rec.Price < 0:
		return "negative price"
	case rec.DurationMinutes < 0:
		return "negative duration"
	case rec.Stops < 0:
		return "negative stops"
	}
	return ""
}
