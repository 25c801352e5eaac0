package cache

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alex-user-go/fares/internal/search/types"
)

// bundle builds a bundle with n flights; the run id identifies it in tests.
func bundle(id string, n int) *types.ResultBundle {
	records := make([]types.FlightRecord, n)
	for i := range records {
		records[i] = types.FlightRecord{SourceID: "s", FlightID: strconv.Itoa(i), Price: int64(1000 + i), DurationMinutes: 60}
	}
	return types.NewResultBundle(types.BundleParts{
		RunID:   id,
		Records: records,
		Runs:    []types.SourceRunResult{{SourceID: "s", Status: types.StatusSuccess, RecordCount: n}},
	})
}

func store(c *Cache, key string, b *types.ResultBundle, expires time.Time) {
	c.mu.Lock()
	c.put(key, b, expires)
	c.mu.Unlock()
}

func TestCache_Key(t *testing.T) {
	tests := []struct {
		name  string
		query types.Query
		want  string
	}{
		{
			name:  "basic key",
			query: types.Query{Origin: "DEL", Destination: "BLR", JourneyDate: "2025-12-17", CabinClass: "economy"},
			want:  "DEL:BLR:2025-12-17:economy",
		},
		{
			name:  "case and whitespace folded",
			query: types.Query{Origin: " del", Destination: "blr ", JourneyDate: "2025-12-17", CabinClass: "Business"},
			want:  "DEL:BLR:2025-12-17:business",
		},
		{
			name:  "no cabin",
			query: types.Query{Origin: "BOM", Destination: "GOI", JourneyDate: "2026-01-02"},
			want:  "BOM:GOI:2026-01-02:",
		},
	}

	cache := New(time.Minute)
	defer cache.Close()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cache.Key(tt.query); got != tt.want {
				t.Errorf("Key() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCache_GetOrFetch(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(c *Cache)
		key       string
		fetchFunc func() (*types.ResultBundle, error)
		wantRunID string
		wantHit   bool
		wantErr   bool
		wantCount int
	}{
		{
			name:  "cache miss - successful fetch",
			setup: func(c *Cache) {},
			key:   "test-key",
			fetchFunc: func() (*types.ResultBundle, error) {
				return bundle("fresh", 2), nil
			},
			wantRunID: "fresh",
			wantCount: 1,
		},
		{
			name: "cache hit - returns cached value",
			setup: func(c *Cache) {
				store(c, "cached-key", bundle("cached", 1), time.Now().Add(time.Minute))
			},
			key: "cached-key",
			fetchFunc: func() (*types.ResultBundle, error) {
				t.Error("fetch should not be called for cached entry")
				return nil, nil
			},
			wantRunID: "cached",
			wantHit:   true,
			wantCount: 1,
		},
		{
			name:  "fetch error - not cached",
			setup: func(c *Cache) {},
			key:   "error-key",
			fetchFunc: func() (*types.ResultBundle, error) {
				return nil, errors.New("fetch failed")
			},
			wantErr: true,
		},
		{
			name:  "empty bundle - returned but not cached",
			setup: func(c *Cache) {},
			key:   "empty-key",
			fetchFunc: func() (*types.ResultBundle, error) {
				return bundle("empty", 0), nil
			},
			wantRunID: "empty",
		},
		{
			name: "expired entry - refetches",
			setup: func(c *Cache) {
				store(c, "expired-key", bundle("stale", 1), time.Now().Add(-time.Minute))
			},
			key: "expired-key",
			fetchFunc: func() (*types.ResultBundle, error) {
				return bundle("refreshed", 1), nil
			},
			wantRunID: "refreshed",
			wantCount: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cache := New(time.Minute)
			defer cache.Close()

			tt.setup(cache)

			got, hit, err := cache.GetOrFetch(context.Background(), tt.key, tt.fetchFunc)

			if (err != nil) != tt.wantErr {
				t.Errorf("GetOrFetch() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if hit != tt.wantHit {
				t.Errorf("GetOrFetch() hit = %v, want %v", hit, tt.wantHit)
			}
			if tt.wantRunID == "" {
				if got != nil {
					t.Errorf("GetOrFetch() = %v, want nil", got.RunID())
				}
			} else if got == nil || got.RunID() != tt.wantRunID {
				t.Errorf("GetOrFetch() returned wrong bundle, want run %q", tt.wantRunID)
			}
			if n := cache.Len(); n != tt.wantCount {
				t.Errorf("cache has %d entries, want %d", n, tt.wantCount)
			}
		})
	}
}

func TestCache_GetOrFetch_ContextCancellation(t *testing.T) {
	cache := New(time.Minute)
	defer cache.Close()

	ctx, cancel := context.WithCancel(context.Background())

	fetchStarted := make(chan struct{})
	fetchDone := make(chan struct{})

	go func() {
		_, _, _ = cache.GetOrFetch(context.Background(), "slow-key", func() (*types.ResultBundle, error) {
			close(fetchStarted)
			<-fetchDone
			return bundle("slow", 1), nil
		})
	}()

	<-fetchStarted
	cancel()

	_, _, err := cache.GetOrFetch(ctx, "slow-key", func() (*types.ResultBundle, error) {
		t.Error("fetch should not be called - should wait for inflight")
		return nil, nil
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}

	close(fetchDone)
}

func TestCache_GetOrFetch_Singleflight(t *testing.T) {
	cache := New(time.Minute)
	defer cache.Close()

	var fetchCount atomic.Int32
	fetchStarted := make(chan struct{})
	fetchContinue := make(chan struct{})

	var wg sync.WaitGroup
	const numGoroutines = 10

	for range numGoroutines {
		wg.Go(func() {
			got, _, err := cache.GetOrFetch(context.Background(), "shared-key", func() (*types.ResultBundle, error) {
				if fetchCount.Add(1) == 1 {
					close(fetchStarted)
					<-fetchContinue
				}
				return bundle("shared", 3), nil
			})
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if got == nil || got.RunID() != "shared" {
				t.Errorf("unexpected bundle: %v", got)
			}
		})
	}

	<-fetchStarted
	close(fetchContinue)
	wg.Wait()

	if count := fetchCount.Load(); count != 1 {
		t.Errorf("fetch called %d times, expected 1 (singleflight)", count)
	}
}

func TestCache_Invalidate(t *testing.T) {
	tests := []struct {
		name       string
		setupKeys  []string
		invalidate string
		wantKeys   []string
	}{
		{
			name:       "invalidate existing key",
			setupKeys:  []string{"a", "b", "c"},
			invalidate: "b",
			wantKeys:   []string{"a", "c"},
		},
		{
			name:       "invalidate non-existing key",
			setupKeys:  []string{"a", "b"},
			invalidate: "x",
			wantKeys:   []string{"a", "b"},
		},
		{
			name:       "invalidate from empty cache",
			setupKeys:  []string{},
			invalidate: "a",
			wantKeys:   []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cache := New(time.Minute)
			defer cache.Close()

			for _, key := range tt.setupKeys {
				store(cache, key, bundle(key, 1), time.Now().Add(time.Minute))
			}

			cache.Invalidate(tt.invalidate)

			cache.mu.RLock()
			defer cache.mu.RUnlock()

			if len(cache.entries) != len(tt.wantKeys) {
				t.Errorf("cache has %d entries, want %d", len(cache.entries), len(tt.wantKeys))
			}
			for _, key := range tt.wantKeys {
				if _, ok := cache.entries[key]; !ok {
					t.Errorf("expected key %q to exist", key)
				}
			}
		})
	}
}

func TestCache_Clear(t *testing.T) {
	cache := New(time.Minute)
	defer cache.Close()

	for _, key := range []string{"a", "b", "c"} {
		store(cache, key, bundle(key, 1), time.Now().Add(time.Minute))
	}

	cache.Clear()

	if n := cache.Len(); n != 0 {
		t.Errorf("cache has %d entries after Clear(), want 0", n)
	}
}

func TestCache_ErrorNotCached(t *testing.T) {
	cache := New(time.Minute)
	defer cache.Close()

	fetchErr := errors.New("temporary error")
	callCount := 0

	_, hit, err := cache.GetOrFetch(context.Background(), "error-key", func() (*types.ResultBundle, error) {
		callCount++
		return nil, fetchErr
	})
	if err != fetchErr {
		t.Errorf("expected fetchErr, got %v", err)
	}
	if hit {
		t.Error("expected cache miss on error, got hit")
	}

	got, hit, err := cache.GetOrFetch(context.Background(), "error-key", func() (*types.ResultBundle, error) {
		callCount++
		return bundle("ok", 1), nil
	})
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if got == nil || got.RunID() != "ok" {
		t.Errorf("unexpected bundle: %v", got)
	}
	if hit {
		t.Error("expected cache miss, got hit")
	}

	if callCount != 2 {
		t.Errorf("fetch called %d times, expected 2", callCount)
	}
}

func TestCache_Sweep(t *testing.T) {
	cache := New(time.Minute)
	defer cache.Close()

	now := time.Now()
	store(cache, "live", bundle("live", 1), now.Add(time.Second))
	store(cache, "stale", bundle("stale", 1), now.Add(-time.Second))
	store(cache, "edge", bundle("edge", 1), now)

	if n := cache.sweep(now); n != 2 {
		t.Errorf("sweep removed %d entries, want 2", n)
	}
	if n := cache.Len(); n != 1 {
		t.Errorf("cache has %d entries after sweep, want 1", n)
	}

	got, hit, err := cache.GetOrFetch(context.Background(), "live", func() (*types.ResultBundle, error) {
		t.Error("fetch should not be called for a live entry")
		return nil, nil
	})
	if err != nil || !hit || got.RunID() != "live" {
		t.Errorf("GetOrFetch(live) = %v, %v, %v", got, hit, err)
	}
}

func TestCache_CloseTwice(t *testing.T) {
	cache := New(time.Minute)
	cache.Close()
	cache.Close()
}
