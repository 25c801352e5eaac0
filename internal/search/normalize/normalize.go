// Package normalize turns untrusted raw listings into canonical flight
// records. It is pure and deterministic: identical input always yields
// identical output.
package normalize

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/alex-user-go/fares/internal/search/types"
)

// Keys read from a raw listing.
const (
	KeyID         = "id"
	KeyAirline    = "airline"
	KeyFlightCode = "flight_code"
	KeyDeparture  = "departure"
	KeyArrival    = "arrival"
	KeyDuration   = "duration"
	KeyStops      = "stops"
	KeyPrice      = "price"
	KeyCabin      = "cabin"
	KeyOffers     = "offers"
)

const (
	UnknownAirline = types.UnknownAirline
	DefaultCabin   = "economy"
)

// ErrRejected is the sentinel behind every Rejection.
var ErrRejected = errors.New("listing rejected")

// flightNamespace seeds deterministic flight ids for listings without one.
var flightNamespace = uuid.MustParse("6f1c1f5e-2b9a-4f43-9d0e-6c1a7d3b8e21")

// Rejection is returned when a raw listing cannot become a FlightRecord.
type Rejection struct {
	SourceID string
	Reason   string
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrRejected, r.SourceID, r.Reason)
}

func (r *Rejection) Unwrap() error {
	return ErrRejected
}

// Options tunes normalization. Zero price bounds disable the sanity check.
type Options struct {
	MinPrice     int64
	MaxPrice     int64
	DefaultCabin string
}

// Normalizer maps raw listings to FlightRecords.
type Normalizer struct {
	opts   Options
	logger *slog.Logger
}

// New creates a Normalizer.
func New(opts Options, logger *slog.Logger) *Normalizer {
	if opts.DefaultCabin == "" {
		opts.DefaultCabin = DefaultCabin
	}
	opts.DefaultCabin = strings.ToLower(opts.DefaultCabin)
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Normalizer{opts: opts, logger: logger}
}

// ForQuery returns a Normalizer that defaults missing cabins to the cabin
// the query asked for.
func (n *Normalizer) ForQuery(q types.Query) *Normalizer {
	if q.CabinClass == "" {
		return n
	}
	opts := n.opts
	opts.DefaultCabin = strings.ToLower(q.CabinClass)
	return &Normalizer{opts: opts, logger: n.logger}
}

// Normalize converts one raw listing. The returned error, if any, is a
// *Rejection. Quality events report secondary fields that were defaulted;
// their Seq is left for the caller to fill in.
func (n *Normalizer) Normalize(raw types.RawListing, sourceID string) (types.FlightRecord, []types.QualityEvent, error) {
	price, duration, err := n.primary(raw, sourceID)
	if err != nil {
		return types.FlightRecord{}, nil, err
	}

	var events []types.QualityEvent
	note := func(field, format string, args ...any) {
		events = append(events, types.QualityEvent{SourceID: sourceID, Field: field, Note: fmt.Sprintf(format, args...)})
	}

	rec := types.FlightRecord{
		SourceID:        sourceID,
		DurationMinutes: duration,
		Price:           price,
		MergedFrom:      []string{sourceID},
		SourcePrices:    []types.SourcePrice{{SourceID: sourceID, Price: price}},
	}

	if airline, ok := raw.Text(KeyAirline); ok {
		rec.Airline = CanonicalAirline(airline)
	} else {
		rec.Airline = UnknownAirline
		note(KeyAirline, "missing, defaulted to %s", UnknownAirline)
	}

	if code, ok := raw.Text(KeyFlightCode); ok {
		rec.FlightCode = CanonicalFlightCode(code)
	} else {
		note(KeyFlightCode, "missing")
	}

	rec.DepartureTime = clockField(raw, KeyDeparture, note)
	rec.ArrivalTime = clockField(raw, KeyArrival, note)

	stops, _ := raw.Text(KeyStops)
	rec.StopDetail = stops
	if v, ok := ParseStops(stops); ok {
		rec.Stops = v
	} else if stops == "" {
		note(KeyStops, "missing, assumed non-stop")
	} else {
		note(KeyStops, "unparsable %q, assumed non-stop", stops)
	}

	if cabin, ok := raw.Text(KeyCabin); ok {
		rec.CabinClass = strings.ToLower(cabin)
	} else {
		rec.CabinClass = n.opts.DefaultCabin
		note(KeyCabin, "missing, defaulted to %s", n.opts.DefaultCabin)
	}

	rec.Offers = raw.List(KeyOffers)
	if len(rec.Offers) == 0 {
		rec.Offers = nil
		note(KeyOffers, "none listed")
	}

	if id, ok := raw.Text(KeyID); ok {
		rec.FlightID = id
	} else {
		rec.FlightID = syntheticID(rec)
	}

	return rec, events, nil
}

// primary parses the fields a record cannot exist without.
func (n *Normalizer) primary(raw types.RawListing, sourceID string) (int64, int, error) {
	reject := func(format string, args ...any) error {
		rej := &Rejection{SourceID: sourceID, Reason: fmt.Sprintf(format, args...)}
		return errors.WithDetailf(rej, "listing keys: %s", strings.Join(slices.Sorted(maps.Keys(raw)), ","))
	}

	priceText, hasPrice := raw.Text(KeyPrice)
	durationText, hasDuration := raw.Text(KeyDuration)
	switch {
	case !hasPrice && !hasDuration:
		return 0, 0, reject("missing price and duration")
	case !hasPrice:
		return 0, 0, reject("missing price")
	case !hasDuration:
		return 0, 0, reject("missing duration")
	}

	price, ok := ParsePrice(priceText)
	if !ok {
		return 0, 0, reject("unparsable price %q", priceText)
	}
	if price <= 0 {
		return 0, 0, reject("non-positive price %d", price)
	}
	if n.opts.MinPrice > 0 && price < n.opts.MinPrice {
		return 0, 0, reject("price %d below minimum %d", price, n.opts.MinPrice)
	}
	if n.opts.MaxPrice > 0 && price > n.opts.MaxPrice {
		return 0, 0, reject("price %d above maximum %d", price, n.opts.MaxPrice)
	}

	duration, ok := ParseDuration(durationText)
	if !ok {
		return 0, 0, reject("unparsable duration %q", durationText)
	}
	return price, duration, nil
}

func clockField(raw types.RawListing, key string, note func(field, format string, args ...any)) int {
	text, ok := raw.Text(key)
	if !ok {
		note(key, "missing")
		return types.ClockUnknown
	}
	minutes, ok := ParseClock(text)
	if !ok {
		note(key, "unparsable time %q", text)
		return types.ClockUnknown
	}
	return minutes
}

func syntheticID(rec types.FlightRecord) string {
	name := strings.Join([]string{
		rec.SourceID,
		rec.Airline,
		rec.FlightCode,
		types.FormatClock(rec.DepartureTime),
		types.FormatClock(rec.ArrivalTime),
	}, "|")
	return uuid.NewSHA1(flightNamespace, []byte(name)).String()
}

// Result is the output of NormalizeAll.
type Result struct {
	Records       []types.FlightRecord
	Rejections    []types.Rejection
	QualityEvents []types.QualityEvent
}

// NormalizeAll normalizes listings in order. Rejections and quality events
// are logged and returned; they never stop the batch.
func (n *Normalizer) NormalizeAll(listings []types.TaggedListing) Result {
	var res Result
	for _, l := range listings {
		rec, events, err := n.Normalize(l.Raw, l.SourceID)
		if err != nil {
			reason := err.Error()
			var rej *Rejection
			if errors.As(err, &rej) {
				reason = rej.Reason
			}
			res.Rejections = append(res.Rejections, types.Rejection{SourceID: l.SourceID, Seq: l.Seq, Reason: reason})
			n.logger.Info("listing rejected",
				"source", l.SourceID,
				"seq", l.Seq,
				"reason", reason,
			)
			continue
		}

		for _, ev := range events {
			ev.Seq = l.Seq
			res.QualityEvents = append(res.QualityEvents, ev)
			n.logger.Debug("listing field defaulted",
				"source", ev.SourceID,
				"seq", ev.Seq,
				"field", ev.Field,
				"note", ev.Note,
			)
		}
		res.Records = append(res.Records, rec)
	}
	return res
}
