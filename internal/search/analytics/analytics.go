// Package analytics computes comparative statistics over a fused flight
// dataset. Compute is pure; a snapshot is always recomputed from scratch.
package analytics

import (
	"cmp"
	"math"
	"slices"

	"github.com/alex-user-go/fares/internal/search/types"
)

// Best-value weights. They sum to 100.
const (
	PriceWeight    = 40.0
	DurationWeight = 30.0
	StopsWeight    = 30.0
)

// Departure bands, in reporting order.
const (
	BandEarlyMorning = "early_morning"
	BandMorning      = "morning"
	BandAfternoon    = "afternoon"
	BandEvening      = "evening"
	BandUnknown      = "unknown"
)

var bandOrder = []string{BandEarlyMorning, BandMorning, BandAfternoon, BandEvening, BandUnknown}

// Compute derives a MetricsSnapshot from records. References in the
// snapshot are indexes into records.
func Compute(records []types.FlightRecord) types.MetricsSnapshot {
	snap := types.MetricsSnapshot{
		Count:            len(records),
		Cheapest:         types.NoRecord,
		Fastest:          types.NoRecord,
		BestValue:        types.NoRecord,
		Scores:           []float64{},
		PerAirline:       []types.GroupStats{},
		PerSource:        []types.GroupStats{},
		StopDistribution: []types.StopBucket{},
		DepartureBands:   []types.DepartureBand{},
	}
	if len(records) == 0 {
		return snap
	}

	var price, duration welford
	prices := make([]int64, len(records))
	minDur, maxDur := records[0].DurationMinutes, records[0].DurationMinutes
	var maxPrice int64
	maxStops := 0
	cheapest, fastest := 0, 0

	for i, r := range records {
		price.add(float64(r.Price))
		duration.add(float64(r.DurationMinutes))
		prices[i] = r.Price

		maxPrice = max(maxPrice, r.Price)
		minDur = min(minDur, r.DurationMinutes)
		maxDur = max(maxDur, r.DurationMinutes)
		maxStops = max(maxStops, r.Stops)

		if r.Price < records[cheapest].Price {
			cheapest = i
		}
		f := records[fastest]
		if r.DurationMinutes < f.DurationMinutes || (r.DurationMinutes == f.DurationMinutes && r.Price < f.Price) {
			fastest = i
		}
	}

	slices.Sort(prices)
	snap.MinPrice = types.Some(float64(prices[0]))
	snap.MaxPrice = types.Some(float64(prices[len(prices)-1]))
	snap.MeanPrice = types.Some(price.mean)
	snap.MedianPrice = types.Some(median(prices))
	snap.StdDevPrice = types.Some(price.stddev())

	snap.MinDuration = types.Some(float64(minDur))
	snap.MaxDuration = types.Some(float64(maxDur))
	snap.MeanDuration = types.Some(duration.mean)

	snap.Cheapest = ref(records, cheapest)
	snap.Fastest = ref(records, fastest)

	snap.Scores = make([]float64, len(records))
	best := 0
	for i, r := range records {
		snap.Scores[i] = Score(r, maxPrice, maxDur, maxStops)
		if snap.Scores[i] > snap.Scores[best] {
			best = i
		}
	}
	snap.BestValue = ref(records, best)
	snap.BestValueScore = types.Some(snap.Scores[best])

	snap.PerAirline = groupStats(records, byAirline)
	snap.PerSource = groupStats(records, bySource)
	snap.StopDistribution = stopDistribution(records)
	snap.DepartureBands = departureBands(records)
	return snap
}

// Score is the weighted best-value score of r against the dataset maxima.
// Each term is relative to its maximum, so scaling every price (or every
// duration) leaves scores unchanged. A term whose maximum is zero counts in
// full.
func Score(r types.FlightRecord, maxPrice int64, maxDuration, maxStops int) float64 {
	return term(PriceWeight, float64(r.Price), float64(maxPrice)) +
		term(DurationWeight, float64(r.DurationMinutes), float64(maxDuration)) +
		term(StopsWeight, float64(r.Stops), float64(maxStops))
}

func term(weight, v, maxV float64) float64 {
	if maxV == 0 {
		return weight
	}
	return weight * (1 - v/maxV)
}

func ref(records []types.FlightRecord, i int) types.RecordRef {
	return types.RecordRef{Index: i, FlightID: records[i].FlightID}
}

func median(sorted []int64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return float64(sorted[n/2])
	}
	return (float64(sorted[n/2-1]) + float64(sorted[n/2])) / 2
}

// welford accumulates a running mean and variance.
type welford struct {
	n    int
	mean float64
	m2   float64
}

func (w *welford) add(x float64) {
	w.n++
	d := x - w.mean
	w.mean += d / float64(w.n)
	w.m2 += d * (x - w.mean)
}

// stddev is the population standard deviation.
func (w *welford) stddev() float64 {
	if w.n < 2 {
		return 0
	}
	return math.Sqrt(w.m2 / float64(w.n))
}

type keyedPrice struct {
	key   string
	price int64
}

func byAirline(r types.FlightRecord) []keyedPrice {
	return []keyedPrice{{key: r.Airline, price: r.Price}}
}

// bySource yields one entry per source that listed r, at that source's
// price, so a merged flight counts once for each of its sources.
func bySource(r types.FlightRecord) []keyedPrice {
	if len(r.SourcePrices) == 0 {
		return []keyedPrice{{key: r.SourceID, price: r.Price}}
	}
	out := make([]keyedPrice, len(r.SourcePrices))
	for i, sp := range r.SourcePrices {
		out[i] = keyedPrice{key: sp.SourceID, price: sp.Price}
	}
	return out
}

type group struct {
	stats    types.GroupStats
	acc      welford
	cheapest int
}

// groupStats buckets records by the keys keysOf returns, in first-seen
// order.
func groupStats(records []types.FlightRecord, keysOf func(types.FlightRecord) []keyedPrice) []types.GroupStats {
	index := make(map[string]*group)
	var order []*group

	for i, r := range records {
		for _, kp := range keysOf(r) {
			g, ok := index[kp.key]
			if !ok {
				g = &group{stats: types.GroupStats{Key: kp.key, MinPrice: kp.price, MaxPrice: kp.price}, cheapest: i}
				index[kp.key] = g
				order = append(order, g)
			}
			g.acc.add(float64(kp.price))
			g.stats.Count++
			if kp.price < g.stats.MinPrice {
				g.stats.MinPrice = kp.price
				g.cheapest = i
			}
			g.stats.MaxPrice = max(g.stats.MaxPrice, kp.price)
		}
	}

	out := make([]types.GroupStats, 0, len(order))
	for _, g := range order {
		g.stats.MeanPrice = g.acc.mean
		g.stats.StdDev = g.acc.stddev()
		g.stats.Cheapest = ref(records, g.cheapest)
		out = append(out, g.stats)
	}
	return out
}

func stopDistribution(records []types.FlightRecord) []types.StopBucket {
	counts := make(map[int]int)
	for _, r := range records {
		counts[r.Stops]++
	}
	out := make([]types.StopBucket, 0, len(counts))
	for stops, n := range counts {
		out = append(out, types.StopBucket{Stops: stops, Count: n})
	}
	slices.SortFunc(out, func(a, b types.StopBucket) int { return cmp.Compare(a.Stops, b.Stops) })
	return out
}

// Band returns the part of day a departure time falls in.
func Band(minutes int) string {
	switch {
	case minutes < 0:
		return BandUnknown
	case minutes < 6*60:
		return BandEarlyMorning
	case minutes < 12*60:
		return BandMorning
	case minutes < 18*60:
		return BandAfternoon
	default:
		return BandEvening
	}
}

func departureBands(records []types.FlightRecord) []types.DepartureBand {
	bands := make(map[string]*types.DepartureBand)
	for _, r := range records {
		name := Band(r.DepartureTime)
		b, ok := bands[name]
		if !ok {
			b = &types.DepartureBand{Band: name, MinPrice: r.Price}
			bands[name] = b
		}
		b.Count++
		b.MinPrice = min(b.MinPrice, r.Price)
	}

	out := make([]types.DepartureBand, 0, len(bands))
	for _, name := range bandOrder {
		if b, ok := bands[name]; ok {
			out = append(out, *b)
		}
	}
	return out
}
