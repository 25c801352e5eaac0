package handler_test

import (
	"context"
	"encoding/json"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/alex-user-go/fares/internal/handler"
	"github.com/alex-user-go/fares/internal/obs"
	"github.com/alex-user-go/fares/internal/search"
	"github.com/alex-user-go/fares/internal/search/cache"
	"github.com/alex-user-go/fares/internal/search/ratelimit"
	"github.com/alex-user-go/fares/internal/search/types"
	"github.com/alex-user-go/fares/internal/sources"
)

// searchResponse mirrors handler.SearchResponse for decoding.
type searchResponse struct {
	Stats  handler.SearchStats `json:"stats"`
	Result struct {
		Outcome string               `json:"outcome"`
		Query   types.Query          `json:"query"`
		Flights []types.FlightRecord `json:"flights"`
	} `json:"result"`
}

func listingAdapter(id string) sources.Adapter {
	return sources.NewFuncAdapter(id, func(ctx context.Context, q types.Query) iter.Seq2[types.RawListing, error] {
		return func(yield func(types.RawListing, error) bool) {
			yield(types.RawListing{
				"airline": "IndiGo", "flight_code": "6E 6622",
				"departure": "18:00", "arrival": "20:55",
				"duration": "2h 55m", "price": "₹ 16,058",
			}, nil)
		}
	})
}

func failingAdapter(id string) sources.Adapter {
	return sources.NewFuncAdapter(id, func(ctx context.Context, q types.Query) iter.Seq2[types.RawListing, error] {
		return func(yield func(types.RawListing, error) bool) {
			yield(nil, errors.New("source error"))
		}
	})
}

type fixture struct {
	handler *handler.Handler
	limiter *ratelimit.Limiter
	metrics *obs.Metrics
}

func newFixture(t *testing.T, adapters []sources.Adapter, opts ...search.Option) fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := obs.NewMetrics(logger)
	searchCache := cache.New(30 * time.Second)
	t.Cleanup(searchCache.Close)
	limiter := ratelimit.New(10, time.Minute)
	t.Cleanup(limiter.Close)

	opts = append(opts, search.WithMetrics(metrics), search.WithLogger(logger))
	pipeline, err := search.New(adapters, opts...)
	if err != nil {
		t.Fatalf("search.New: %v", err)
	}

	return fixture{
		handler: handler.New(pipeline, searchCache, limiter, metrics, logger),
		limiter: limiter,
		metrics: metrics,
	}
}

func TestHandler_SearchHandler(t *testing.T) {
	tests := []struct {
		name           string
		queryParams    string
		setupRateLimit func(*ratelimit.Limiter, string)
		wantStatus     int
		wantError      string
	}{
		{
			name:           "successful search",
			queryParams:    "from=DEL&to=BLR&date=2025-12-17",
			setupRateLimit: func(l *ratelimit.Limiter, ip string) {},
			wantStatus:     http.StatusOK,
		},
		{
			name:           "missing from",
			queryParams:    "to=BLR&date=2025-12-17",
			setupRateLimit: func(l *ratelimit.Limiter, ip string) {},
			wantStatus:     http.StatusBadRequest,
			wantError:      "from is required",
		},
		{
			name:           "invalid date format",
			queryParams:    "from=DEL&to=BLR&date=17/12/2025",
			setupRateLimit: func(l *ratelimit.Limiter, ip string) {},
			wantStatus:     http.StatusBadRequest,
			wantError:      "date must be in YYYY-MM-DD format",
		},
		{
			name:        "rate limit exceeded",
			queryParams: "from=DEL&to=BLR&date=2025-12-17",
			setupRateLimit: func(l *ratelimit.Limiter, ip string) {
				for range 10 {
					l.Allow(ip)
				}
			},
			wantStatus: http.StatusTooManyRequests,
			wantError:  "rate limit exceeded",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, []sources.Adapter{listingAdapter("mock")})

			ip := "192.168.1.1"
			tt.setupRateLimit(f.limiter, ip)

			req := httptest.NewRequest(http.MethodGet, "/search?"+tt.queryParams, nil)
			req.RemoteAddr = ip + ":12345"
			w := httptest.NewRecorder()

			f.handler.SearchHandler(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}

			if tt.wantError != "" {
				var errResp map[string]string
				if err := json.NewDecoder(w.Body).Decode(&errResp); err != nil {
					t.Fatalf("failed to decode error response: %v", err)
				}
				if errResp["error"] != tt.wantError {
					t.Errorf("error = %q, want %q", errResp["error"], tt.wantError)
				}
			}

			if tt.wantStatus == http.StatusOK {
				var resp searchResponse
				if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
					t.Fatalf("failed to decode result: %v", err)
				}
				if resp.Stats.SourcesTotal != 1 || resp.Stats.SourcesSucceeded != 1 {
					t.Errorf("stats = %+v, want 1 of 1 sources succeeded", resp.Stats)
				}
				if resp.Stats.Cache != "miss" {
					t.Errorf("cache = %q, want miss", resp.Stats.Cache)
				}
				if resp.Result.Outcome != "complete" {
					t.Errorf("outcome = %q, want complete", resp.Result.Outcome)
				}
				if len(resp.Result.Flights) != 1 || resp.Result.Flights[0].Price != 16058 {
					t.Errorf("flights = %+v, want one flight at 16058", resp.Result.Flights)
				}
				if resp.Result.Query.Origin != "DEL" {
					t.Errorf("query origin = %q, want DEL", resp.Result.Query.Origin)
				}
			}
		})
	}
}

func TestHandler_SearchHandler_CacheHit(t *testing.T) {
	f := newFixture(t, []sources.Adapter{listingAdapter("mock")})

	for i, want := range []string{"miss", "hit"} {
		req := httptest.NewRequest(http.MethodGet, "/search?from=del&to=blr&date=2025-12-17", nil)
		w := httptest.NewRecorder()
		f.handler.SearchHandler(w, req)

		var resp searchResponse
		if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
			t.Fatalf("request %d: failed to decode result: %v", i, err)
		}
		if resp.Stats.Cache != want {
			t.Errorf("request %d: cache = %q, want %q", i, resp.Stats.Cache, want)
		}
	}

	snap := f.metrics.Snapshot()
	if snap.Requests != 2 || snap.CacheHits != 1 || snap.Runs != 1 {
		t.Errorf("metrics = %+v, want 2 requests, 1 cache hit, 1 run", snap)
	}
}

func TestHandler_SearchHandler_AllSourcesFail(t *testing.T) {
	tests := []struct {
		name        string
		require     bool
		wantStatus  int
		wantError   string
		wantOutcome string
	}{
		{
			name:        "results optional",
			require:     false,
			wantStatus:  http.StatusOK,
			wantOutcome: "empty",
		},
		{
			name:       "results required",
			require:    true,
			wantStatus: http.StatusBadGateway,
			wantError:  "all sources failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, []sources.Adapter{failingAdapter("failing")}, search.WithRequireResults(tt.require))

			req := httptest.NewRequest(http.MethodGet, "/search?from=DEL&to=BLR&date=2025-12-17", nil)
			req.RemoteAddr = "192.168.1.1:12345"
			w := httptest.NewRecorder()

			f.handler.SearchHandler(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.wantError != "" {
				var errResp map[string]string
				if err := json.NewDecoder(w.Body).Decode(&errResp); err != nil {
					t.Fatalf("failed to decode error response: %v", err)
				}
				if errResp["error"] != tt.wantError {
					t.Errorf("error = %q, want %q", errResp["error"], tt.wantError)
				}
				return
			}

			var resp searchResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("failed to decode result: %v", err)
			}
			if resp.Result.Outcome != tt.wantOutcome {
				t.Errorf("outcome = %q, want %q", resp.Result.Outcome, tt.wantOutcome)
			}
			if resp.Stats.SourcesFailed != 1 {
				t.Errorf("sources_failed = %d, want 1", resp.Stats.SourcesFailed)
			}
		})
	}
}

func TestExtractIP(t *testing.T) {
	tests := []struct {
		name       string
		headers    map[string]string
		remoteAddr string
		wantIP     string
	}{
		{
			name:       "X-Forwarded-For single IP",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.195"},
			remoteAddr: "192.168.1.1:12345",
			wantIP:     "203.0.113.195",
		},
		{
			name:       "X-Forwarded-For multiple IPs",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.195, 70.41.3.18, 150.172.238.178"},
			remoteAddr: "192.168.1.1:12345",
			wantIP:     "203.0.113.195",
		},
		{
			name:       "X-Real-IP",
			headers:    map[string]string{"X-Real-IP": "203.0.113.50"},
			remoteAddr: "192.168.1.1:12345",
			wantIP:     "203.0.113.50",
		},
		{
			name:       "X-Forwarded-For takes precedence",
			headers:    map[string]string{"X-Forwarded-For": "1.1.1.1", "X-Real-IP": "2.2.2.2"},
			remoteAddr: "192.168.1.1:12345",
			wantIP:     "1.1.1.1",
		},
		{
			name:       "fallback to RemoteAddr",
			headers:    map[string]string{},
			remoteAddr: "192.168.1.1:12345",
			wantIP:     "192.168.1.1",
		},
		{
			name:       "RemoteAddr without port",
			headers:    map[string]string{},
			remoteAddr: "192.168.1.1",
			wantIP:     "192.168.1.1",
		},
		{
			name:       "IPv6 RemoteAddr",
			headers:    map[string]string{},
			remoteAddr: "[::1]:12345",
			wantIP:     "::1",
		},
		{
			name:       "X-Forwarded-For with whitespace",
			headers:    map[string]string{"X-Forwarded-For": "  203.0.113.195  "},
			remoteAddr: "192.168.1.1:12345",
			wantIP:     "203.0.113.195",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}

			got := handler.ExtractIP(req)
			if got != tt.wantIP {
				t.Errorf("ExtractIP() = %q, want %q", got, tt.wantIP)
			}
		})
	}
}

func TestParseSearchParams(t *testing.T) {
	tests := []struct {
		name      string
		query     string
		want      types.Query
		wantError string
	}{
		{
			name:  "valid params",
			query: "from=DEL&to=BLR&date=2025-12-17",
			want:  types.Query{Origin: "DEL", Destination: "BLR", JourneyDate: "2025-12-17"},
		},
		{
			name:  "lower case airports and cabin alias",
			query: "from=del&to=bom&date=2025-12-17&cabin=Premium_Economy",
			want:  types.Query{Origin: "DEL", Destination: "BOM", JourneyDate: "2025-12-17", CabinClass: "premium economy"},
		},
		{
			name:      "whitespace from",
			query:     "from=%20%20%20&to=BLR&date=2025-12-17",
			wantError: "from is required",
		},
		{
			name:      "long airport code",
			query:     "from=DELHI&to=BLR&date=2025-12-17",
			wantError: "from must be a 3-letter airport code",
		},
		{
			name:      "missing to",
			query:     "from=DEL&date=2025-12-17",
			wantError: "to is required",
		},
		{
			name:      "numeric to",
			query:     "from=DEL&to=123&date=2025-12-17",
			wantError: "to must be a 3-letter airport code",
		},
		{
			name:      "same airports",
			query:     "from=DEL&to=del&date=2025-12-17",
			wantError: "from and to must differ",
		},
		{
			name:      "missing date",
			query:     "from=DEL&to=BLR",
			wantError: "date is required",
		},
		{
			name:      "impossible date",
			query:     "from=DEL&to=BLR&date=2025-02-30",
			wantError: "date must be in YYYY-MM-DD format",
		},
		{
			name:      "unknown cabin",
			query:     "from=DEL&to=BLR&date=2025-12-17&cabin=cargo",
			wantError: "cabin must be one of economy, premium economy, business, first",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/search?"+tt.query, nil)
			got, err := handler.ParseSearchParams(req)

			if tt.wantError != "" {
				if err == nil {
					t.Errorf("expected error %q, got nil", tt.wantError)
				} else if err.Error() != tt.wantError {
					t.Errorf("error = %q, want %q", err.Error(), tt.wantError)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseSearchParams() = %+v, want %+v", got, tt.want)
			}
		})
	}
}
