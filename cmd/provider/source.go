package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

var errSourceUnavailable = errors.New("source unavailable")

// mockSource serves one fare site's view of the shared catalog.
type mockSource struct {
	id          string
	format      listingFormat
	envelope    bool // wrap pages as {"listings": [...]}
	pageSize    int
	minLatency  time.Duration
	maxLatency  time.Duration
	failureRate float64
	logger      *slog.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

func newMockSource(id string, logger *slog.Logger) (*mockSource, bool) {
	s := &mockSource{
		id:     id,
		logger: logger.With("source", id),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	switch id {
	case "makemytrip":
		s.format = makemytripFormat
		s.pageSize = 6
		s.minLatency, s.maxLatency = 50*time.Millisecond, 200*time.Millisecond
		s.failureRate = 0.05
	case "goibibo":
		s.format = goibiboFormat
		s.pageSize = 8
		s.minLatency, s.maxLatency = 100*time.Millisecond, 600*time.Millisecond
		s.failureRate = 0.1
	case "cleartrip":
		s.format = cleartripFormat
		s.envelope = true
		s.pageSize = 5
		s.minLatency, s.maxLatency = 200*time.Millisecond, 1500*time.Millisecond
		s.failureRate = 0.15
	default:
		return nil, false
	}
	return s, true
}

func (s *mockSource) latency() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	spread := s.maxLatency - s.minLatency
	if spread <= 0 {
		return s.minLatency
	}
	return s.minLatency + time.Duration(s.rng.Int63n(int64(spread)))
}

func (s *mockSource) fail() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64() < s.failureRate
}

// search simulates one page lookup with random latency and failures.
func (s *mockSource) search(ctx context.Context, from, to, date, cabin string, page int) ([]map[string]any, error) {
	select {
	case <-time.After(s.latency()):
	case <-ctx.Done():
		return nil, context.Cause(ctx)
	}

	if s.fail() {
		return nil, errSourceUnavailable
	}

	var listings []map[string]any
	for _, f := range catalog(from, to, date) {
		if price, ok := quote(s.id, f, cabin); ok {
			listings = append(listings, s.format(f, price, cabin))
		}
	}

	start := (page - 1) * s.pageSize
	if start >= len(listings) {
		return []map[string]any{}, nil
	}
	return listings[start:min(start+s.pageSize, len(listings))], nil
}

// ServeHTTP handles GET /search?from=&to=&date=&cabin=&page=.
func (s *mockSource) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from := strings.TrimSpace(q.Get("from"))
	to := strings.TrimSpace(q.Get("to"))
	date := strings.TrimSpace(q.Get("date"))
	if from == "" || to == "" || date == "" {
		http.Error(w, "missing required parameters", http.StatusBadRequest)
		return
	}

	cabin := strings.ToLower(strings.TrimSpace(q.Get("cabin")))
	if cabin == "" {
		cabin = "economy"
	}

	page := 1
	if raw := q.Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "invalid page", http.StatusBadRequest)
			return
		}
		page = n
	}

	listings, err := s.search(r.Context(), from, to, date, cabin, page)
	if err != nil {
		s.logger.Warn("search failed", "page", page, "error", err)
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	var body any = listings
	if s.envelope {
		body = map[string]any{"listings": listings, "page": page}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}
