package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alex-user-go/fares/internal/search/normalize"
	"github.com/alex-user-go/fares/internal/search/types"
)

var indigo = flight{
	carrier:  carrier{name: "IndiGo", code: "6E"},
	number:   6622,
	depart:   18 * 60,
	duration: 175,
	stops:    1,
	via:      []string{"BOM"},
	base:     16058,
}

func TestFormats_NormalizeToSameFlight(t *testing.T) {
	formats := map[string]listingFormat{
		"makemytrip": makemytripFormat,
		"goibibo":    goibiboFormat,
		"cleartrip":  cleartripFormat,
	}
	n := normalize.New(normalize.Options{DefaultCabin: "economy"}, nil)

	for id, format := range formats {
		t.Run(id, func(t *testing.T) {
			raw := types.RawListing(format(indigo, 16058, "economy"))
			rec, _, err := n.Normalize(roundTrip(t, raw), id)
			require.NoError(t, err)

			assert.Equal(t, "IndiGo", rec.Airline)
			assert.Equal(t, "6E 6622", rec.FlightCode)
			assert.Equal(t, 18*60, rec.DepartureTime)
			assert.Equal(t, 20*60+55, rec.ArrivalTime)
			assert.Equal(t, 175, rec.DurationMinutes)
			assert.Equal(t, 1, rec.Stops)
			assert.Equal(t, int64(16058), rec.Price)
		})
	}
}

// roundTrip mirrors what the HTTP adapter sees on the wire.
func roundTrip(t *testing.T, raw types.RawListing) types.RawListing {
	t.Helper()
	b, err := json.Marshal(raw)
	require.NoError(t, err)
	var out types.RawListing
	require.NoError(t, json.Unmarshal(b, &out))
	return out
}

func TestHelpers(t *testing.T) {
	tests := []struct {
		got, want string
	}{
		{groupThousands(16058), "16,058"},
		{groupThousands(999), "999"},
		{groupThousands(1234567), "1,234,567"},
		{clock12(0), "12:00 AM"},
		{clock12(12 * 60), "12:00 PM"},
		{clock12(18*60 + 5), "6:05 PM"},
		{clock24(6*60 + 5), "06:05"},
		{stopsVia(indigo), "1 stop via BOM"},
		{titleCase("premium economy"), "Premium Economy"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.got)
	}
}

func TestCatalog_Deterministic(t *testing.T) {
	a := catalog("DEL", "BLR", "2025-12-17")
	b := catalog("del", "blr", "2025-12-17")
	require.NotEmpty(t, a)
	assert.Equal(t, a, b)

	for i := 1; i < len(a); i++ {
		assert.LessOrEqual(t, a[i-1].depart, a[i].depart)
	}
	for _, f := range a {
		assert.Len(t, f.via, f.stops)
		assert.GreaterOrEqual(t, f.base, int64(2500))
		assert.Positive(t, f.duration)
	}
}

func TestMockSource_Pages(t *testing.T) {
	s, ok := newMockSource("cleartrip", slog.New(slog.DiscardHandler))
	require.True(t, ok)
	s.minLatency, s.maxLatency, s.failureRate = 0, 0, 0

	srv := httptest.NewServer(s)
	defer srv.Close()

	total := 0
	for page := 1; ; page++ {
		resp, err := http.Get(srv.URL + "/search?from=DEL&to=BLR&date=2025-12-17&page=" + strconv.Itoa(page))
		require.NoError(t, err)
		var body struct {
			Listings []map[string]any `json:"listings"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		if len(body.Listings) == 0 {
			break
		}
		assert.LessOrEqual(t, len(body.Listings), s.pageSize)
		total += len(body.Listings)
		require.Less(t, page, 10)
	}

	want := 0
	for _, f := range catalog("DEL", "BLR", "2025-12-17") {
		if _, ok := quote("cleartrip", f, "economy"); ok {
			want++
		}
	}
	assert.Equal(t, want, total)
}

func TestMockSource_Errors(t *testing.T) {
	s, _ := newMockSource("goibibo", slog.New(slog.DiscardHandler))
	s.minLatency, s.maxLatency = 0, 0

	s.failureRate = 0
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/search?from=DEL", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/search?from=DEL&to=BLR&date=2025-12-17&page=0", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	s.failureRate = 1
	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/search?from=DEL&to=BLR&date=2025-12-17", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	_, ok := newMockSource("skyscanner", slog.New(slog.DiscardHandler))
	assert.False(t, ok)
}

func TestMockSource_HonoursCancel(t *testing.T) {
	s, _ := newMockSource("cleartrip", slog.New(slog.DiscardHandler))
	s.minLatency, s.maxLatency = time.Second, time.Second

	req := httptest.NewRequest(http.MethodGet, "/search?from=DEL&to=BLR&date=2025-12-17", nil)
	ctx, cancel := context.WithTimeout(req.Context(), 20*time.Millisecond)
	defer cancel()

	rec := httptest.NewRecorder()
	start := time.Now()
	s.ServeHTTP(rec, req.WithContext(ctx))
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
