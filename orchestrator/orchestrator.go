// Package orchestrator runs all shop crawls for a category concurrently
// and streams normalized batches to a single consumer as they complete.
package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"github.com/bdpricegear/pricegear/crawler"
	"github.com/bdpricegear/pricegear/metrics"
	"github.com/bdpricegear/pricegear/models"
	"github.com/bdpricegear/pricegear/normalize"
	"github.com/bdpricegear/pricegear/retry"
	"github.com/bdpricegear/pricegear/shops"
	"golang.org/x/sync/errgroup"
)

// ShopReport records how one shop's crawl ended. A failed shop is reported
// with zero items; it never fails the run.
type ShopReport struct {
	Shop        string
	State       crawler.State
	Pages       int
	FailedPages int
	Items       int
	Err         error
}

// Orchestrator owns the per-category fan-out. Parallelism is bounded by
// the shop count (seven); no additional queueing is needed at that scale.
type Orchestrator struct {
	adapters    []shops.Adapter
	crawlCfg    crawler.Config
	netRetry    retry.Policy
	shopTimeout time.Duration
	metrics     *metrics.Metrics
}

// New builds an orchestrator over the given adapters. shopTimeout is the
// per-shop session ceiling, independent of per-page politeness delays.
func New(adapters []shops.Adapter, crawlCfg crawler.Config, netRetry retry.Policy, shopTimeout time.Duration, m *metrics.Metrics) *Orchestrator {
	return &Orchestrator{
		adapters:    adapters,
		crawlCfg:    crawlCfg,
		netRetry:    netRetry,
		shopTimeout: shopTimeout,
		metrics:     m,
	}
}

// Crawl launches one crawler per shop and returns a channel of normalized
// batches plus a channel of per-shop reports. Batches arrive in completion
// order; slow shops never block fast ones from reaching the consumer.
// Both channels close once every shop has finished.
func (o *Orchestrator) Crawl(ctx context.Context, category string) (<-chan models.Batch, <-chan ShopReport) {
	batches := make(chan models.Batch, 2*len(o.adapters))
	reports := make(chan ShopReport, len(o.adapters))

	var g errgroup.Group
	for _, adapter := range o.adapters {
		adapter := adapter
		g.Go(func() error {
			reports <- o.crawlShop(ctx, adapter, category, batches)
			return nil
		})
	}
	go func() {
		g.Wait()
		close(batches)
		close(reports)
	}()

	return batches, reports
}

func (o *Orchestrator) crawlShop(ctx context.Context, adapter shops.Adapter, category string, batches chan<- models.Batch) ShopReport {
	shopCtx, cancel := context.WithTimeout(ctx, o.shopTimeout)
	defer cancel()

	// Dynamic shops own one browser context for the whole session; the
	// deferred Close covers every exit path, timeout included.
	if starter, ok := adapter.(shops.SessionStarter); ok {
		session, err := starter.StartSession(shopCtx)
		if err != nil {
			slog.Error("session start failed",
				slog.String("shop", adapter.Name()),
				slog.Any("error", err),
			)
			return ShopReport{Shop: adapter.Name(), State: crawler.StateAborted, Err: err}
		}
		defer session.Close()
	}

	var delayOverride time.Duration
	if d, ok := adapter.(interface{ PageDelay() time.Duration }); ok {
		delayOverride = d.PageDelay()
	}

	c := crawler.New(adapter, o.netRetry, o.crawlCfg, delayOverride, o.metrics)
	res := c.Crawl(shopCtx, category, func(items []models.RawItem) {
		normalized := make([]models.NormalizedItem, 0, len(items))
		for _, raw := range items {
			normalized = append(normalized, normalize.Item(raw))
		}
		select {
		case batches <- models.Batch{
			Shop:      adapter.Name(),
			Category:  category,
			Items:     normalized,
			ScrapedAt: time.Now(),
		}:
		case <-ctx.Done():
		}
	})

	slog.Info("shop crawl finished",
		slog.String("shop", adapter.Name()),
		slog.String("category", category),
		slog.String("state", string(res.State)),
		slog.Int("pages", res.Pages),
		slog.Int("items", res.Items),
	)

	return ShopReport{
		Shop:        adapter.Name(),
		State:       res.State,
		Pages:       res.Pages,
		FailedPages: res.FailedPages,
		Items:       res.Items,
		Err:         res.LastErr,
	}
}
