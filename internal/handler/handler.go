// Package handler exposes the fare pipeline over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/alex-user-go/fares/internal/middleware"
	"github.com/alex-user-go/fares/internal/obs"
	"github.com/alex-user-go/fares/internal/search"
	"github.com/alex-user-go/fares/internal/search/cache"
	"github.com/alex-user-go/fares/internal/search/ratelimit"
	"github.com/alex-user-go/fares/internal/search/types"
)

// Searcher runs one fare query.
type Searcher interface {
	Run(ctx context.Context, q types.Query) (*types.ResultBundle, error)
}

// Handler handles HTTP requests.
type Handler struct {
	searcher    Searcher
	cache       *cache.Cache
	rateLimiter *ratelimit.Limiter
	metrics     *obs.Metrics
	logger      *slog.Logger
}

// New creates a new Handler.
func New(
	searcher Searcher,
	searchCache *cache.Cache,
	rateLimiter *ratelimit.Limiter,
	metrics *obs.Metrics,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		searcher:    searcher,
		cache:       searchCache,
		rateLimiter: rateLimiter,
		metrics:     metrics,
		logger:      logger,
	}
}

// SearchResponse is the /search response body.
type SearchResponse struct {
	Stats  SearchStats         `json:"stats"`
	Result *types.ResultBundle `json:"result"`
}

// SearchStats summarises how the response was produced.
type SearchStats struct {
	SourcesTotal     int    `json:"sources_total"`
	SourcesSucceeded int    `json:"sources_succeeded"`
	SourcesFailed    int    `json:"sources_failed"`
	Cache            string `json:"cache"`
	DurationMs       int64  `json:"duration_ms"`
}

// SearchHandler handles /search requests.
func (h *Handler) SearchHandler(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	h.metrics.IncRequests()
	logger := middleware.Logger(r.Context(), h.logger)

	ip := ExtractIP(r)
	if !h.rateLimiter.Allow(ip) {
		logger.Warn("rate limit exceeded", "ip", ip)
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	q, err := ParseSearchParams(r)
	if err != nil {
		logger.Debug("invalid request parameters", "error", err, "ip", ip)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// The shared fetch must outlive the request that started it; the
	// pipeline's own deadlines bound it.
	fetchCtx := context.WithoutCancel(r.Context())
	bundle, cacheHit, err := h.cache.GetOrFetch(r.Context(), h.cache.Key(q), func() (*types.ResultBundle, error) {
		return h.searcher.Run(fetchCtx, q)
	})
	if err != nil {
		logger.Error("search failed", "error", err, "query", q.String(), "ip", ip)
		if errors.Is(err, search.ErrAllSourcesFailed) {
			writeError(w, http.StatusBadGateway, "all sources failed")
			return
		}
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}

	cacheStatus := "miss"
	if cacheHit {
		cacheStatus = "hit"
		h.metrics.IncCacheHits()
	}

	runs := bundle.Runs()
	stats := SearchStats{
		SourcesTotal: len(runs),
		Cache:        cacheStatus,
		DurationMs:   time.Since(startTime).Milliseconds(),
	}
	for _, run := range runs {
		if run.Usable() {
			stats.SourcesSucceeded++
		} else {
			stats.SourcesFailed++
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(SearchResponse{Stats: stats, Result: bundle}); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}

var airportRe = regexp.MustCompile(`^[A-Za-z]{3}$`)

var cabins = map[string]string{
	"economy":         "economy",
	"premium":         "premium economy",
	"premium economy": "premium economy",
	"premium_economy": "premium economy",
	"business":        "business",
	"first":           "first",
}

// ParseSearchParams parses and validates search parameters from the request.
func ParseSearchParams(r *http.Request) (types.Query, error) {
	query := r.URL.Query()
	return NewQuery(query.Get("from"), query.Get("to"), query.Get("date"), query.Get("cabin"))
}

// NewQuery validates raw search input and returns the canonical query.
func NewQuery(from, to, date, cabin string) (types.Query, error) {
	from = strings.TrimSpace(from)
	if from == "" {
		return types.Query{}, errors.New("from is required")
	}
	if !airportRe.MatchString(from) {
		return types.Query{}, errors.New("from must be a 3-letter airport code")
	}

	to = strings.TrimSpace(to)
	if to == "" {
		return types.Query{}, errors.New("to is required")
	}
	if !airportRe.MatchString(to) {
		return types.Query{}, errors.New("to must be a 3-letter airport code")
	}
	if strings.EqualFold(from, to) {
		return types.Query{}, errors.New("from and to must differ")
	}

	date = strings.TrimSpace(date)
	if date == "" {
		return types.Query{}, errors.New("date is required")
	}
	if _, err := time.Parse(time.DateOnly, date); err != nil {
		return types.Query{}, errors.New("date must be in YYYY-MM-DD format")
	}

	raw := strings.ToLower(strings.TrimSpace(cabin))
	cabin = ""
	if raw != "" {
		c, ok := cabins[raw]
		if !ok {
			return types.Query{}, errors.New("cabin must be one of economy, premium economy, business, first")
		}
		cabin = c
	}

	return types.Query{
		Origin:      strings.ToUpper(from),
		Destination: strings.ToUpper(to),
		JourneyDate: date,
		CabinClass:  cabin,
	}, nil
}

// ExtractIP extracts the client IP from the request.
// Checks X-Forwarded-For, X-Real-IP, then falls back to RemoteAddr.
func ExtractIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
