package main

import (
	"hash/fnv"
	"math/rand"
	"sort"
	"strconv"
	"strings"
)

type carrier struct {
	name string
	code string
}

var carriers = []carrier{
	{name: "IndiGo", code: "6E"},
	{name: "Air India", code: "AI"},
	{name: "Vistara", code: "UK"},
	{name: "SpiceJet", code: "SG"},
	{name: "Akasa Air", code: "QP"},
	{name: "Air India Express", code: "IX"},
}

var hubs = []string{"BOM", "HYD", "MAA", "CCU", "AMD", "GOI"}

// flight is one scheduled service on a route. Every mock source quotes
// from the same catalog so the collector sees overlapping flights.
type flight struct {
	carrier  carrier
	number   int
	depart   int // minutes since midnight
	duration int
	stops    int
	via      []string
	base     int64
}

func (f flight) arrive() int {
	return (f.depart + f.duration) % (24 * 60)
}

func (f flight) key() string {
	return f.carrier.code + strconv.Itoa(f.number)
}

func seed(parts ...string) int64 {
	h := fnv.New64a()
	for _, p := range parts {
		_, _ = h.Write([]byte(p))
		_, _ = h.Write([]byte{0})
	}
	return int64(h.Sum64() >> 1)
}

// catalog returns the deterministic schedule for a route and date.
func catalog(from, to, date string) []flight {
	from, to = strings.ToUpper(from), strings.ToUpper(to)
	rng := rand.New(rand.NewSource(seed(from, to, date)))

	n := 10 + rng.Intn(8)
	flights := make([]flight, 0, n)
	for range n {
		c := carriers[rng.Intn(len(carriers))]
		f := flight{
			carrier: c,
			number:  100 + rng.Intn(9800),
			depart:  (5*60 + rng.Intn(18*60)) / 5 * 5,
			stops:   stopsFor(rng),
		}
		f.duration = 90 + rng.Intn(60) + f.stops*(75+rng.Intn(90))
		f.duration = f.duration / 5 * 5
		for range f.stops {
			f.via = append(f.via, pickHub(rng, from, to))
		}
		f.base = max(int64(3500+rng.Intn(9000)-f.stops*600+rng.Intn(3)*1500), 2500)
		flights = append(flights, f)
	}

	sort.Slice(flights, func(i, j int) bool { return flights[i].depart < flights[j].depart })
	return flights
}

func stopsFor(rng *rand.Rand) int {
	switch r := rng.Float64(); {
	case r < 0.6:
		return 0
	case r < 0.9:
		return 1
	default:
		return 2
	}
}

func pickHub(rng *rand.Rand, from, to string) string {
	for {
		h := hubs[rng.Intn(len(hubs))]
		if h != from && h != to {
			return h
		}
	}
}

var cabinMultiplier = map[string]float64{
	"economy":         1,
	"premium economy": 1.8,
	"business":        3.6,
	"first":           6.5,
}

// quote prices a flight for one source. Each source lists a stable subset
// of the catalog and adds its own markup of up to three percent either way.
func quote(sourceID string, f flight, cabin string) (int64, bool) {
	rng := rand.New(rand.NewSource(seed(sourceID, f.key())))
	if rng.Intn(5) == 0 {
		return 0, false
	}
	mult, ok := cabinMultiplier[cabin]
	if !ok {
		mult = 1
	}
	markup := 1 + (rng.Float64()-0.5)*0.06
	return int64(float64(f.base) * mult * markup), true
}
