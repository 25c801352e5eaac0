package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"iter"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/time/rate"

	"github.com/alex-user-go/fares/internal/search/types"
)

// HTTPOptions configures an HTTPAdapter.
type HTTPOptions struct {
	Timeout           time.Duration // per request
	RequestsPerSecond float64       // <= 0 means unlimited
	MaxPages          int           // <= 0 means a single page
}

// HTTPAdapter pages through a JSON search endpoint:
//
//	GET {base}/search?from=DEL&to=BLR&date=2025-12-17&cabin=economy&page=N
//
// Each page is either a JSON array of listing objects or an object with a
// "listings" array. An empty page ends the run.
type HTTPAdapter struct {
	id         string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	maxPages   int
}

// NewHTTPAdapter creates a new HTTPAdapter.
func NewHTTPAdapter(id, baseURL string, opts HTTPOptions) *HTTPAdapter {
	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	maxPages := opts.MaxPages
	if maxPages <= 0 {
		maxPages = 1
	}
	return &HTTPAdapter{
		id:      id,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: opts.Timeout,
		},
		limiter:  rate.NewLimiter(limit, 1),
		maxPages: maxPages,
	}
}

// ID returns the source id.
func (a *HTTPAdapter) ID() string {
	return a.id
}

// Run fetches pages until an empty page, MaxPages, or an error.
func (a *HTTPAdapter) Run(ctx context.Context, q types.Query) iter.Seq2[types.RawListing, error] {
	return func(yield func(types.RawListing, error) bool) {
		emitted := 0
		for page := 1; page <= a.maxPages; page++ {
			if err := a.limiter.Wait(ctx); err != nil {
				yield(nil, a.pageError(err, page, emitted))
				return
			}

			listings, err := a.fetchPage(ctx, q, page)
			if err != nil {
				yield(nil, a.pageError(err, page, emitted))
				return
			}
			if len(listings) == 0 {
				return
			}

			for _, l := range listings {
				if !yield(l, nil) {
					return
				}
				emitted++
			}
		}
	}
}

// pageError wraps a page failure. Once listings were emitted, a failing
// later page does not invalidate them.
func (a *HTTPAdapter) pageError(err error, page, emitted int) error {
	err = errors.Wrapf(err, "%s page %d", a.id, page)
	if emitted > 0 && ctxErr(err) == nil {
		return Recoverable(err)
	}
	return err
}

func ctxErr(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}

func (a *HTTPAdapter) fetchPage(ctx context.Context, q types.Query, page int) ([]types.RawListing, error) {
	u, err := url.Parse(a.baseURL + "/search")
	if err != nil {
		return nil, errors.Wrap(err, "invalid base URL")
	}

	params := u.Query()
	params.Set("from", q.Origin)
	params.Set("to", q.Destination)
	params.Set("date", q.JourneyDate)
	if q.CabinClass != "" {
		params.Set("cabin", q.CabinClass)
	}
	params.Set("page", strconv.Itoa(page))
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "request failed")
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, errors.Newf("source returned status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	return decodeListings(resp.Body)
}

func decodeListings(r io.Reader) ([]types.RawListing, error) {
	var raw json.RawMessage
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, errors.Wrap(err, "parse response")
	}
	raw = bytes.TrimSpace(raw)

	if len(raw) > 0 && raw[0] == '{' {
		var envelope struct {
			Listings json.RawMessage `json:"listings"`
		}
		if err := json.Unmarshal(raw, &envelope); err != nil {
			return nil, errors.Wrap(err, "parse response envelope")
		}
		raw = envelope.Listings
		if len(raw) == 0 {
			return nil, nil
		}
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var listings []types.RawListing
	if err := dec.Decode(&listings); err != nil {
		return nil, errors.Wrap(err, "parse listings")
	}
	return listings, nil
}
