package crawler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bdpricegear/pricegear/metrics"
	"github.com/bdpricegear/pricegear/models"
	"github.com/bdpricegear/pricegear/retry"
	"github.com/bdpricegear/pricegear/shops"
)

// scriptedAdapter serves a fixed item count per page; pages beyond the
// script are empty. A nil script entry of -1 fails the page.
type scriptedAdapter struct {
	script []int
	calls  int
}

func (a *scriptedAdapter) Name() string { return "scripted" }
func (a *scriptedAdapter) Logo() string { return "" }

func (a *scriptedAdapter) FetchPage(_ context.Context, _ string, page int) ([]models.RawItem, bool, error) {
	a.calls++
	if page > len(a.script) {
		return nil, false, nil
	}
	n := a.script[page-1]
	if n < 0 {
		return nil, false, errors.New("synthetic failure")
	}
	items := make([]models.RawItem, n)
	for i := range items {
		items[i] = models.RawItem{Name: "item", PriceText: "100", LinkURL: "https://x.test/p", InStockHint: true}
	}
	return items, len(items) > 0, nil
}

func testConfig() Config {
	return Config{PageCap: 50, EmptyPageLimit: 2, PageDelay: 0}
}

func fastPolicy() retry.Policy {
	return retry.Policy{MaxRetries: 3, Backoff: time.Millisecond, BackoffMax: time.Millisecond}
}

func TestCrawlStopsAfterConsecutiveEmptyPages(t *testing.T) {
	adapter := &scriptedAdapter{script: []int{20, 20}}
	c := New(adapter, fastPolicy(), testConfig(), 0, metrics.New())

	var emitted int
	res := c.Crawl(context.Background(), "gpu", func(items []models.RawItem) {
		emitted += len(items)
	})

	if res.State != StateExhausted {
		t.Fatalf("state = %s, want %s", res.State, StateExhausted)
	}
	// Two full pages, then two empties trip the stop rule at page 4.
	if res.Pages != 4 {
		t.Fatalf("pages = %d, want 4", res.Pages)
	}
	if res.Items != 40 || emitted != 40 {
		t.Fatalf("items = %d (emitted %d), want 40", res.Items, emitted)
	}
}

func TestCrawlEmptyShopStopsAtLimit(t *testing.T) {
	adapter := &scriptedAdapter{}
	c := New(adapter, fastPolicy(), testConfig(), 0, metrics.New())

	res := c.Crawl(context.Background(), "gpu", func([]models.RawItem) {
		t.Fatalf("nothing should be emitted")
	})

	if res.Pages != 2 {
		t.Fatalf("pages = %d, want 2", res.Pages)
	}
	if res.State != StateExhausted {
		t.Fatalf("state = %s, want %s", res.State, StateExhausted)
	}
}

func TestCrawlHonorsPageCap(t *testing.T) {
	script := make([]int, 100)
	for i := range script {
		script[i] = 5
	}
	adapter := &scriptedAdapter{script: script}
	cfg := testConfig()
	cfg.PageCap = 10
	c := New(adapter, fastPolicy(), cfg, 0, metrics.New())

	res := c.Crawl(context.Background(), "gpu", func([]models.RawItem) {})

	if res.Pages != 10 {
		t.Fatalf("pages = %d, want 10", res.Pages)
	}
	if res.Items != 50 {
		t.Fatalf("items = %d, want 50", res.Items)
	}
}

func TestCrawlFailedPageCountsAsEmpty(t *testing.T) {
	cfg := testConfig()
	policy := retry.Policy{MaxRetries: 0, Backoff: time.Millisecond}
	adapter := &scriptedAdapter{script: []int{10, -1, -1}}
	c := New(adapter, policy, cfg, 0, metrics.New())

	res := c.Crawl(context.Background(), "gpu", func([]models.RawItem) {})

	if res.State != StateExhausted {
		t.Fatalf("state = %s, want %s", res.State, StateExhausted)
	}
	if res.Pages != 3 {
		t.Fatalf("pages = %d, want 3", res.Pages)
	}
	if res.FailedPages != 2 {
		t.Fatalf("failed pages = %d, want 2", res.FailedPages)
	}
	if res.LastErr == nil {
		t.Fatalf("last error should be recorded")
	}
	if res.Items != 10 {
		t.Fatalf("items = %d, want 10 (pages before failures are kept)", res.Items)
	}
}

func TestCrawlFailureStreakResetByResults(t *testing.T) {
	policy := retry.Policy{MaxRetries: 0, Backoff: time.Millisecond}
	adapter := &scriptedAdapter{script: []int{10, -1, 10}}
	c := New(adapter, policy, testConfig(), 0, metrics.New())

	res := c.Crawl(context.Background(), "gpu", func([]models.RawItem) {})

	// Page 2 fails, page 3 succeeds, then pages 4 and 5 are empty.
	if res.Pages != 5 {
		t.Fatalf("pages = %d, want 5", res.Pages)
	}
	if res.Items != 20 {
		t.Fatalf("items = %d, want 20", res.Items)
	}
}

type blockedAdapter struct {
	calls int
}

func (a *blockedAdapter) Name() string { return "blocked" }
func (a *blockedAdapter) Logo() string { return "" }

func (a *blockedAdapter) FetchPage(context.Context, string, int) ([]models.RawItem, bool, error) {
	a.calls++
	return nil, false, shops.ErrBlocked{Shop: "blocked"}
}

func TestCrawlDoesNotRetryBlockedPages(t *testing.T) {
	adapter := &blockedAdapter{}
	c := New(adapter, fastPolicy(), testConfig(), 0, metrics.New())

	res := c.Crawl(context.Background(), "gpu", func([]models.RawItem) {})

	if res.State != StateExhausted {
		t.Fatalf("state = %s, want %s", res.State, StateExhausted)
	}
	// Two pages, one attempt each; the retry budget never kicks in.
	if adapter.calls != 2 {
		t.Fatalf("fetch calls = %d, want 2", adapter.calls)
	}
	var blocked shops.ErrBlocked
	if !errors.As(res.LastErr, &blocked) {
		t.Fatalf("last error = %v, want ErrBlocked", res.LastErr)
	}
}

func TestCrawlRetriesTransientFailures(t *testing.T) {
	adapter := &flakyAdapter{failures: 2}
	c := New(adapter, fastPolicy(), testConfig(), 0, metrics.New())

	res := c.Crawl(context.Background(), "gpu", func([]models.RawItem) {})

	if res.FailedPages != 0 {
		t.Fatalf("failed pages = %d, want 0 (retries should recover)", res.FailedPages)
	}
	if res.Items != 1 {
		t.Fatalf("items = %d, want 1", res.Items)
	}
	// Page 1 takes three attempts, then pages 2 and 3 come back empty.
	if adapter.calls != 5 {
		t.Fatalf("fetch calls = %d, want 5", adapter.calls)
	}
}

// flakyAdapter fails its first N calls, then serves one item on page 1.
type flakyAdapter struct {
	failures int
	calls    int
}

func (a *flakyAdapter) Name() string { return "flaky" }
func (a *flakyAdapter) Logo() string { return "" }

func (a *flakyAdapter) FetchPage(_ context.Context, _ string, page int) ([]models.RawItem, bool, error) {
	a.calls++
	if a.calls <= a.failures {
		return nil, false, errors.New("transient")
	}
	if page == 1 {
		return []models.RawItem{{Name: "item", PriceText: "100", LinkURL: "https://x.test/p", InStockHint: true}}, true, nil
	}
	return nil, false, nil
}

func TestCrawlAbortsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	adapter := &scriptedAdapter{script: []int{20}}
	c := New(adapter, fastPolicy(), testConfig(), 0, metrics.New())

	res := c.Crawl(ctx, "gpu", func([]models.RawItem) {
		t.Fatalf("nothing should be emitted after cancellation")
	})

	if res.State != StateAborted {
		t.Fatalf("state = %s, want %s", res.State, StateAborted)
	}
	if res.Pages != 0 {
		t.Fatalf("pages = %d, want 0", res.Pages)
	}
}
