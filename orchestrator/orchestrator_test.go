package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bdpricegear/pricegear/crawler"
	"github.com/bdpricegear/pricegear/metrics"
	"github.com/bdpricegear/pricegear/models"
	"github.com/bdpricegear/pricegear/retry"
	"github.com/bdpricegear/pricegear/shops"
)

// fakeShop serves a fixed number of single-item pages, then goes empty.
type fakeShop struct {
	name    string
	pages   int
	failAll bool

	sessions int
	closes   int
}

func (f *fakeShop) Name() string { return f.name }
func (f *fakeShop) Logo() string { return "https://" + f.name + ".test/logo.png" }

func (f *fakeShop) FetchPage(_ context.Context, _ string, page int) ([]models.RawItem, bool, error) {
	if f.failAll {
		return nil, false, shops.ErrBlocked{Shop: f.name}
	}
	if page > f.pages {
		return nil, false, nil
	}
	return []models.RawItem{{
		Name:        f.name + " product",
		PriceText:   "1,000",
		LinkURL:     "https://" + f.name + ".test/p" + string(rune('0'+page)),
		InStockHint: true,
	}}, true, nil
}

func (f *fakeShop) StartSession(context.Context) (shops.Session, error) {
	f.sessions++
	return sessionFunc(func() { f.closes++ }), nil
}

type sessionFunc func()

func (s sessionFunc) Close() { s() }

func testOrchestrator(adapters ...shops.Adapter) *Orchestrator {
	cfg := crawler.Config{PageCap: 50, EmptyPageLimit: 2, PageDelay: 0}
	policy := retry.Policy{MaxRetries: 0, Backoff: time.Millisecond}
	return New(adapters, cfg, policy, time.Minute, metrics.New())
}

func TestCrawlStreamsBatchesFromAllShops(t *testing.T) {
	a := &fakeShop{name: "alpha", pages: 3}
	b := &fakeShop{name: "beta", pages: 1}
	o := testOrchestrator(a, b)

	batches, reports := o.Crawl(context.Background(), "gpu")

	perShop := map[string]int{}
	for batch := range batches {
		if batch.Category != "gpu" {
			t.Fatalf("batch category = %q, want gpu", batch.Category)
		}
		if batch.ScrapedAt.IsZero() {
			t.Fatalf("batch missing scrape timestamp")
		}
		for _, item := range batch.Items {
			if item.NormalizedURL == "" {
				t.Fatalf("batch item not normalized: %+v", item)
			}
			if !item.Price.Valid {
				t.Fatalf("price should be parsed, got %+v", item.Price)
			}
		}
		perShop[batch.Shop] += len(batch.Items)
	}

	if perShop["alpha"] != 3 || perShop["beta"] != 1 {
		t.Fatalf("items per shop = %v, want alpha:3 beta:1", perShop)
	}

	var got []ShopReport
	for r := range reports {
		got = append(got, r)
	}
	if len(got) != 2 {
		t.Fatalf("reports = %d, want 2", len(got))
	}
	for _, r := range got {
		if r.State != crawler.StateExhausted {
			t.Fatalf("shop %s state = %s, want %s", r.Shop, r.State, crawler.StateExhausted)
		}
	}
}

func TestCrawlIsolatesFailingShop(t *testing.T) {
	good := &fakeShop{name: "good", pages: 2}
	bad := &fakeShop{name: "bad", failAll: true}
	o := testOrchestrator(good, bad)

	batches, reports := o.Crawl(context.Background(), "ssd")

	total := 0
	for batch := range batches {
		if batch.Shop == "bad" {
			t.Fatalf("failing shop should not emit batches")
		}
		total += len(batch.Items)
	}
	if total != 2 {
		t.Fatalf("items = %d, want 2 from the healthy shop", total)
	}

	byShop := map[string]ShopReport{}
	for r := range reports {
		byShop[r.Shop] = r
	}
	if byShop["bad"].Err == nil {
		t.Fatalf("failing shop should report its error")
	}
	var blocked shops.ErrBlocked
	if !errors.As(byShop["bad"].Err, &blocked) {
		t.Fatalf("error = %v, want ErrBlocked", byShop["bad"].Err)
	}
	if byShop["good"].Items != 2 {
		t.Fatalf("good shop items = %d, want 2", byShop["good"].Items)
	}
}

func TestCrawlOpensAndClosesSessions(t *testing.T) {
	a := &fakeShop{name: "alpha", pages: 1}
	o := testOrchestrator(a)

	batches, reports := o.Crawl(context.Background(), "ram")
	for range batches {
	}
	for range reports {
	}

	if a.sessions != 1 {
		t.Fatalf("sessions = %d, want 1", a.sessions)
	}
	if a.closes != 1 {
		t.Fatalf("session closes = %d, want 1", a.closes)
	}
}

func TestCrawlCancelledContextAborts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a := &fakeShop{name: "alpha", pages: 5}
	o := testOrchestrator(a)

	batches, reports := o.Crawl(ctx, "gpu")
	for range batches {
	}
	var got []ShopReport
	for r := range reports {
		got = append(got, r)
	}
	if len(got) != 1 {
		t.Fatalf("reports = %d, want 1", len(got))
	}
	if got[0].State != crawler.StateAborted {
		t.Fatalf("state = %s, want %s", got[0].State, crawler.StateAborted)
	}
}
