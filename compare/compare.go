// Package compare answers interactive "compare this product across shops"
// queries: a short-TTL cache in front of a single-page fan-out over the
// same shop adapters the crawler uses. This path never touches the
// persisted catalog.
package compare

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/bdpricegear/pricegear/metrics"
	"github.com/bdpricegear/pricegear/models"
	"github.com/bdpricegear/pricegear/normalize"
	"github.com/bdpricegear/pricegear/shops"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// ErrNoResults is returned only when literally zero shops produced
// products within the timeout budget.
var ErrNoResults = errors.New("compare: no shops returned results")

// ErrEmptyQuery rejects queries that normalize to nothing.
var ErrEmptyQuery = errors.New("compare: empty query")

// Comparer fans a query out to every adapter, one page each, best effort.
type Comparer struct {
	adapters       []shops.Adapter
	cache          *expirable.LRU[string, []models.ShopResult]
	perShopTimeout time.Duration
	metrics        *metrics.Metrics
}

// New builds a comparer with a TTL-bounded LRU result cache.
func New(adapters []shops.Adapter, cacheSize int, ttl, perShopTimeout time.Duration, m *metrics.Metrics) *Comparer {
	if cacheSize <= 0 {
		cacheSize = 256
	}
	return &Comparer{
		adapters:       adapters,
		cache:          expirable.NewLRU[string, []models.ShopResult](cacheSize, nil, ttl),
		perShopTimeout: perShopTimeout,
		metrics:        m,
	}
}

// Compare returns one ShopResult per shop that produced products. Cache
// keys are case-normalized and whitespace-collapsed, so "RTX 4070" and
// " rtx  4070 " share an entry. A shop that times out or errors simply
// contributes nothing; the request only fails when every shop came back
// empty.
func (c *Comparer) Compare(ctx context.Context, query string) ([]models.ShopResult, error) {
	key := normalize.Query(query)
	if key == "" {
		return nil, ErrEmptyQuery
	}

	if cached, ok := c.cache.Get(key); ok {
		c.metrics.IncCache("hit")
		slog.Debug("compare cache hit", slog.String("query", key))
		return cached, nil
	}
	c.metrics.IncCache("miss")

	slots := make([][]models.NormalizedItem, len(c.adapters))
	var wg sync.WaitGroup
	for i, adapter := range c.adapters {
		wg.Add(1)
		go func(i int, adapter shops.Adapter) {
			defer wg.Done()
			slots[i] = c.fetchShop(ctx, adapter, key)
		}(i, adapter)
	}
	wg.Wait()

	results := make([]models.ShopResult, 0, len(c.adapters))
	for i, adapter := range c.adapters {
		if len(slots[i]) == 0 {
			continue
		}
		results = append(results, models.ShopResult{
			ShopName: adapter.Name(),
			Logo:     adapter.Logo(),
			Products: slots[i],
		})
	}
	if len(results) == 0 {
		return nil, ErrNoResults
	}

	c.cache.Add(key, results)
	return results, nil
}

// fetchShop grabs a single result page under the shop's own timeout.
// Failures degrade to an empty slot; one slow or blocked shop must not
// sink the whole request.
func (c *Comparer) fetchShop(ctx context.Context, adapter shops.Adapter, query string) []models.NormalizedItem {
	shopCtx, cancel := context.WithTimeout(ctx, c.perShopTimeout)
	defer cancel()

	raw, _, err := adapter.FetchPage(shopCtx, query, 1)
	if err != nil {
		c.metrics.IncError(adapter.Name(), shops.TypeLabel(err))
		slog.Warn("compare fetch failed",
			slog.String("shop", adapter.Name()),
			slog.String("query", query),
			slog.Any("error", err),
		)
		return nil
	}

	items := make([]models.NormalizedItem, 0, len(raw))
	for _, r := range raw {
		item := normalize.Item(r)
		if item.NormalizedURL == "" {
			continue
		}
		items = append(items, item)
	}
	return items
}
