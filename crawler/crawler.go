// Package crawler drives one shop adapter across successive result pages
// until a stopping rule fires.
package crawler

import (
	"context"
	"log/slog"
	"time"

	"github.com/bdpricegear/pricegear/metrics"
	"github.com/bdpricegear/pricegear/models"
	"github.com/bdpricegear/pricegear/retry"
	"github.com/bdpricegear/pricegear/shops"
)

// State is the terminal state of one crawl session.
type State string

const (
	// StateExhausted means a stopping rule fired: consecutive empty pages
	// or the page cap.
	StateExhausted State = "exhausted"
	// StateAborted means the session deadline elapsed or the context was
	// cancelled. Pages emitted before the abort are kept.
	StateAborted State = "aborted"
)

// Config bounds one crawl session.
type Config struct {
	// PageCap is the highest page number fetched.
	PageCap int
	// EmptyPageLimit stops the crawl after this many consecutive pages
	// with zero items. Failed pages count as empty.
	EmptyPageLimit int
	// PageDelay is the politeness pause between pages. A shop config may
	// override it.
	PageDelay time.Duration
}

// DefaultConfig mirrors the production crawl bounds.
func DefaultConfig() Config {
	return Config{
		PageCap:        50,
		EmptyPageLimit: 2,
		PageDelay:      300 * time.Millisecond,
	}
}

// Result summarizes one finished crawl session.
type Result struct {
	State       State
	Pages       int
	FailedPages int
	Items       int
	// LastErr is the most recent page failure, kept for reporting; a
	// non-nil LastErr does not mean the crawl produced nothing.
	LastErr error
}

// Crawler runs the paginated crawl state machine for one adapter.
type Crawler struct {
	adapter shops.Adapter
	policy  retry.Policy
	cfg     Config
	delay   time.Duration
	metrics *metrics.Metrics
}

// New builds a crawler around adapter. delayOverride > 0 replaces the
// configured politeness delay (per-shop tuning).
func New(adapter shops.Adapter, policy retry.Policy, cfg Config, delayOverride time.Duration, m *metrics.Metrics) *Crawler {
	delay := cfg.PageDelay
	if delayOverride > 0 {
		delay = delayOverride
	}
	return &Crawler{
		adapter: adapter,
		policy:  policy,
		cfg:     cfg,
		delay:   delay,
		metrics: m,
	}
}

// Crawl fetches pages 1..PageCap, invoking emit for every page that yields
// items. Crawls are not restartable: there is no persisted cursor. A page
// that still fails after retries increments the empty-page counter rather
// than aborting the crawl.
func (c *Crawler) Crawl(ctx context.Context, query string, emit func(items []models.RawItem)) Result {
	res := Result{State: StateExhausted}
	emptyStreak := 0

	for page := 1; page <= c.cfg.PageCap; page++ {
		if ctx.Err() != nil {
			res.State = StateAborted
			return res
		}

		items, err := c.fetchPage(ctx, query, page)
		res.Pages++
		switch {
		case err != nil:
			if ctx.Err() != nil {
				res.State = StateAborted
				return res
			}
			res.FailedPages++
			res.LastErr = err
			emptyStreak++
			c.metrics.IncPage(c.adapter.Name(), "failed")
			c.metrics.IncError(c.adapter.Name(), shops.TypeLabel(err))
			slog.Error("page failed",
				slog.String("shop", c.adapter.Name()),
				slog.String("query", query),
				slog.Int("page", page),
				slog.Any("error", err),
			)
		case len(items) == 0:
			emptyStreak++
			c.metrics.IncPage(c.adapter.Name(), "empty")
		default:
			emptyStreak = 0
			res.Items += len(items)
			c.metrics.IncPage(c.adapter.Name(), "ok")
			c.metrics.AddItems(c.adapter.Name(), len(items))
			emit(items)
		}

		if emptyStreak >= c.cfg.EmptyPageLimit {
			slog.Debug("no more products",
				slog.String("shop", c.adapter.Name()),
				slog.String("query", query),
				slog.Int("page", page),
			)
			return res
		}

		if page < c.cfg.PageCap {
			if !c.pause(ctx) {
				res.State = StateAborted
				return res
			}
		}
	}
	return res
}

// fetchPage calls the adapter with bounded retries. Non-retryable
// failures (challenge pages, unparseable bodies) fail the page at once.
func (c *Crawler) fetchPage(ctx context.Context, query string, page int) ([]models.RawItem, error) {
	var items []models.RawItem
	first := true
	err := c.policy.Do(ctx, func() error {
		if !first {
			c.metrics.IncRetry()
		}
		first = false

		start := time.Now()
		fetched, _, err := c.adapter.FetchPage(ctx, query, page)
		c.metrics.ObserveFetch(time.Since(start))
		if err != nil {
			if !shops.Retryable(err) {
				return retry.Permanent(err)
			}
			return err
		}
		items = fetched
		return nil
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (c *Crawler) pause(ctx context.Context) bool {
	if c.delay <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(c.delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
