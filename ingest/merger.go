// Package ingest turns normalized scrape batches into idempotent catalog
// upserts plus change-triggered price history rows.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bdpricegear/pricegear/catalog"
	"github.com/bdpricegear/pricegear/metrics"
	"github.com/bdpricegear/pricegear/models"
	"github.com/bdpricegear/pricegear/retry"
	"github.com/google/uuid"
)

// Result carries the counts a caller sees even when some shops or batches
// failed; ingestion is never all-or-nothing.
type Result struct {
	Created        int
	Updated        int
	SkippedItems   int
	SkippedBatches int
}

// Merger resolves item identity within a shop and persists batches. One
// transaction covers one chunk of at most BatchSize items: small enough to
// bound the blast radius of a mid-batch failure, large enough to avoid a
// transaction per item.
type Merger struct {
	store     catalog.Store
	policy    retry.Policy
	batchSize int
	metrics   *metrics.Metrics
}

// NewMerger builds a merger writing through store. policy governs retries
// of transient persistence failures at chunk granularity.
func NewMerger(store catalog.Store, policy retry.Policy, batchSize int, m *metrics.Metrics) *Merger {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Merger{store: store, policy: policy, batchSize: batchSize, metrics: m}
}

// Run consumes batches until the channel closes, merging each into the
// catalog. A chunk that keeps failing is skipped and logged; it never
// aborts the remaining chunks or shops.
func (m *Merger) Run(ctx context.Context, batches <-chan models.Batch) (Result, error) {
	var res Result
	for batch := range batches {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		m.mergeBatch(ctx, batch, &res)
	}
	return res, nil
}

func (m *Merger) mergeBatch(ctx context.Context, batch models.Batch, res *Result) {
	items, skipped := dedupe(batch.Items)
	res.SkippedItems += skipped

	for start := 0; start < len(items); start += m.batchSize {
		end := start + m.batchSize
		if end > len(items) {
			end = len(items)
		}
		chunk := items[start:end]

		var created, updated int
		err := m.policy.Do(ctx, func() error {
			var chunkErr error
			created, updated, chunkErr = m.mergeChunk(ctx, batch, chunk)
			if chunkErr != nil && !catalog.IsTransient(chunkErr) {
				return retry.Permanent(chunkErr)
			}
			return chunkErr
		})
		if err != nil {
			res.SkippedBatches++
			m.metrics.IncSkippedBatch()
			slog.Error("batch skipped",
				slog.String("shop", batch.Shop),
				slog.String("category", batch.Category),
				slog.Int("items", len(chunk)),
				slog.Any("error", err),
			)
			continue
		}
		res.Created += created
		res.Updated += updated
		m.metrics.AddCreated(created)
		m.metrics.AddUpdated(updated)
	}
}

// mergeChunk applies one chunk inside a single transaction.
func (m *Merger) mergeChunk(ctx context.Context, batch models.Batch, items []models.NormalizedItem) (created, updated int, err error) {
	tx, err := m.store.Begin(ctx)
	if err != nil {
		return 0, 0, err
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				slog.Error("rollback failed", slog.Any("error", rbErr))
			}
		}
	}()

	observations := 0
	for _, item := range items {
		wasCreated, wroteObs, mergeErr := m.mergeItem(ctx, tx, batch, item)
		if mergeErr != nil {
			return 0, 0, mergeErr
		}
		if wasCreated {
			created++
		} else {
			updated++
		}
		if wroteObs {
			observations++
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return 0, 0, fmt.Errorf("commit: %w", err)
	}
	m.metrics.AddObservations(observations)
	return created, updated, nil
}

// mergeItem upserts one item by its (shop, normalizedURL) identity and
// records a price observation only when price or stock status actually
// changed since the latest one.
func (m *Merger) mergeItem(ctx context.Context, tx catalog.Tx, batch models.Batch, item models.NormalizedItem) (created, wroteObs bool, err error) {
	entry, err := tx.EntryByURL(ctx, batch.Shop, item.NormalizedURL)
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		fresh := &models.CatalogEntry{
			ID:            uuid.New(),
			ShopID:        batch.Shop,
			Category:      batch.Category,
			Name:          item.Name,
			NormalizedURL: item.NormalizedURL,
			ImageURL:      item.ImageURL,
			CurrentPrice:  item.Price,
			StockStatus:   item.StockStatus,
			IsAvailable:   models.Available(item.Price, item.StockStatus),
			LastScraped:   batch.ScrapedAt,
			CreatedAt:     batch.ScrapedAt,
			UpdatedAt:     batch.ScrapedAt,
		}
		if err := tx.InsertEntry(ctx, fresh); err != nil {
			return false, false, err
		}
		// Baseline observation only when the first sighting carried a
		// real price.
		if item.Price.Valid {
			obs := &models.PriceObservation{
				EntryID:     fresh.ID,
				Price:       item.Price,
				StockStatus: item.StockStatus,
				RecordedAt:  batch.ScrapedAt,
			}
			if err := tx.InsertObservation(ctx, obs); err != nil {
				return false, false, err
			}
			wroteObs = true
		}
		return true, wroteObs, nil

	case err != nil:
		return false, false, err
	}

	entry.Name = item.Name
	entry.Category = batch.Category
	entry.ImageURL = item.ImageURL
	entry.CurrentPrice = item.Price
	entry.StockStatus = item.StockStatus
	entry.IsAvailable = models.Available(item.Price, item.StockStatus)
	entry.LastScraped = batch.ScrapedAt
	entry.UpdatedAt = batch.ScrapedAt
	if err := tx.UpdateEntry(ctx, entry); err != nil {
		return false, false, err
	}

	latest, err := tx.LatestObservation(ctx, entry.ID)
	if err != nil && !errors.Is(err, catalog.ErrNotFound) {
		return false, false, err
	}
	// An entry with no history gets its first observation only once a real
	// price shows up, same as the create path.
	if latest == nil && !item.Price.Valid {
		return false, false, nil
	}
	if latest.Changed(item.Price, item.StockStatus) {
		obs := &models.PriceObservation{
			EntryID:     entry.ID,
			Price:       item.Price,
			StockStatus: item.StockStatus,
			RecordedAt:  batch.ScrapedAt,
		}
		if err := tx.InsertObservation(ctx, obs); err != nil {
			return false, false, err
		}
		wroteObs = true
	}
	return false, wroteObs, nil
}

// dedupe drops items without a usable identity key and collapses items
// sharing a normalized URL, keeping the later one. Two near-duplicate
// pagination results in the same batch would otherwise trip the unique
// constraint.
func dedupe(items []models.NormalizedItem) ([]models.NormalizedItem, int) {
	skipped := 0
	index := make(map[string]int, len(items))
	out := make([]models.NormalizedItem, 0, len(items))
	for _, item := range items {
		if item.NormalizedURL == "" {
			skipped++
			continue
		}
		if i, ok := index[item.NormalizedURL]; ok {
			out[i] = item
			skipped++
			continue
		}
		index[item.NormalizedURL] = len(out)
		out = append(out, item)
	}
	return out, skipped
}
