package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/cockroachdb/errors"

	"github.com/alex-user-go/fares/internal/config"
	"github.com/alex-user-go/fares/internal/search/types"
)

const (
	defaultScrollPause  = 500 * time.Millisecond
	defaultMaxScrolls   = 20
	defaultStableRounds = 2
)

// ErrScrollUnstable is reported when the result list kept growing until the
// scroll budget ran out. The cards seen so far are still returned.
var ErrScrollUnstable = errors.New("scroll did not stabilize")

// BrowserAdapter renders a results page in headless Chrome, scrolls until
// the number of result cards settles, and reads one listing per card using
// the configured field selectors.
type BrowserAdapter struct {
	id     string
	cfg    config.BrowserConfig
	logger *slog.Logger
}

// NewBrowserAdapter creates a new BrowserAdapter.
func NewBrowserAdapter(id string, cfg config.BrowserConfig, logger *slog.Logger) *BrowserAdapter {
	if cfg.UserAgent == "" {
		cfg.UserAgent = config.DefaultUserAgent
	}
	if cfg.ScrollPause <= 0 {
		cfg.ScrollPause = defaultScrollPause
	}
	if cfg.MaxScrolls <= 0 {
		cfg.MaxScrolls = defaultMaxScrolls
	}
	if cfg.StableRounds <= 0 {
		cfg.StableRounds = defaultStableRounds
	}
	return &BrowserAdapter{id: id, cfg: cfg, logger: logger}
}

// ID returns the source id.
func (a *BrowserAdapter) ID() string {
	return a.id
}

// Run scrapes the whole page before yielding; a browser session is not
// worth keeping open while the consumer is slow.
func (a *BrowserAdapter) Run(ctx context.Context, q types.Query) iter.Seq2[types.RawListing, error] {
	return func(yield func(types.RawListing, error) bool) {
		listings, err := a.scrape(ctx, q)
		for _, l := range listings {
			if !yield(l, nil) {
				return
			}
		}
		if err != nil {
			yield(nil, err)
		}
	}
}

func (a *BrowserAdapter) newAllocator(parent context.Context) (context.Context, context.CancelFunc) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", a.cfg.Headless),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.UserAgent(a.cfg.UserAgent),
		chromedp.WindowSize(1440, 900),
	)
	return chromedp.NewExecAllocator(parent, opts...)
}

func (a *BrowserAdapter) scrape(ctx context.Context, q types.Query) ([]types.RawListing, error) {
	allocCtx, cancelAlloc := a.newAllocator(ctx)
	defer cancelAlloc()
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)
	defer cancelTab()

	// The first Run starts the browser; derived timeouts must not cover it
	// or they would tear the browser down with them.
	if err := chromedp.Run(tabCtx); err != nil {
		return nil, errors.Wrapf(err, "%s: start browser", a.id)
	}

	target := ExpandURL(a.cfg.URLTemplate, q)
	loadCtx, cancelLoad := withOptionalTimeout(tabCtx, a.cfg.LoadTimeout)
	err := chromedp.Run(loadCtx,
		chromedp.Navigate(target),
		chromedp.WaitVisible(a.cfg.CardSelector, chromedp.ByQuery),
	)
	cancelLoad()
	if err != nil {
		return nil, errors.Wrapf(err, "%s: load %s", a.id, target)
	}

	stable, scrollErr := a.scrollUntilStable(tabCtx)

	var cards []map[string]string
	extractErr := chromedp.Run(tabCtx, chromedp.Evaluate(extractScript(a.cfg.CardSelector, a.cfg.Fields), &cards))

	listings := make([]types.RawListing, 0, len(cards))
	for _, card := range cards {
		raw := make(types.RawListing, len(card))
		for k, v := range card {
			raw[k] = v
		}
		listings = append(listings, raw)
	}

	a.logger.Debug("browser source scraped",
		"source", a.id,
		"url", target,
		"cards", len(listings),
		"stable", stable,
		"scroll_error", scrollErr,
	)

	return scrapeOutcome(a.id, a.cfg.MaxScrolls, listings, stable, scrollErr, extractErr)
}

// scrapeOutcome decides what a scrape hands back once scrolling and
// extraction have both been attempted. Cards read after a failed scroll are
// kept and the scroll error is marked recoverable.
func scrapeOutcome(id string, maxScrolls int, listings []types.RawListing, stable bool, scrollErr, extractErr error) ([]types.RawListing, error) {
	switch {
	case extractErr != nil && scrollErr != nil:
		return nil, errors.Wrapf(scrollErr, "%s: scroll", id)
	case extractErr != nil:
		return nil, errors.Wrapf(extractErr, "%s: extract cards", id)
	case scrollErr != nil:
		return listings, Recoverable(errors.Wrapf(scrollErr, "%s: scroll", id))
	case !stable:
		return listings, Recoverable(errors.Wrapf(ErrScrollUnstable, "%s after %d scrolls", id, maxScrolls))
	}
	return listings, nil
}

// scrollUntilStable scrolls to the bottom until the card count is unchanged
// for StableRounds consecutive checks. It reports false when MaxScrolls ran
// out first.
func (a *BrowserAdapter) scrollUntilStable(ctx context.Context) (bool, error) {
	countJS := fmt.Sprintf(`document.querySelectorAll(%s).length`, jsString(a.cfg.CardSelector))
	last, unchanged := -1, 0

	for range a.cfg.MaxScrolls {
		var count int
		if err := chromedp.Run(ctx, chromedp.Evaluate(countJS, &count)); err != nil {
			return false, err
		}
		if count == last {
			unchanged++
			if unchanged >= a.cfg.StableRounds {
				return true, nil
			}
		} else {
			last, unchanged = count, 0
		}

		var scrolled bool
		if err := chromedp.Run(ctx,
			chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight); true`, &scrolled),
			chromedp.Sleep(a.cfg.ScrollPause),
		); err != nil {
			return false, err
		}
	}
	return false, nil
}

// ExpandURL fills {from}, {to}, {date} and {cabin} in a URL template.
func ExpandURL(template string, q types.Query) string {
	return strings.NewReplacer(
		"{from}", url.PathEscape(q.Origin),
		"{to}", url.PathEscape(q.Destination),
		"{date}", url.PathEscape(q.JourneyDate),
		"{cabin}", url.PathEscape(q.CabinClass),
	).Replace(template)
}

// extractScript builds the JS that maps every card to an object of field
// name to trimmed inner text. Empty fields are left out.
func extractScript(cardSelector string, fields map[string]string) string {
	encoded, _ := json.Marshal(fields)
	return fmt.Sprintf(`(() => {
	const fields = %s;
	return Array.from(document.querySelectorAll(%s)).map(card => {
		const out = {};
		for (const [name, sel] of Object.entries(fields)) {
			const el = card.querySelector(sel);
			const text = el ? el.innerText.trim() : "";
			if (text !== "") out[name] = text;
		}
		return out;
	});
})()`, encoded, jsString(cardSelector))
}

func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func withOptionalTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
