// Package catalog persists the product catalog and its append-only price
// history. Two implementations exist: Postgres for production and an
// in-memory store for tests and local runs without a database.
package catalog

import (
	"context"
	"errors"

	"github.com/bdpricegear/pricegear/models"
	"github.com/google/uuid"
)

// ErrNotFound is returned when no entry or observation matches a lookup.
var ErrNotFound = errors.New("catalog: not found")

// Store opens per-batch transactions against the catalog.
type Store interface {
	Begin(ctx context.Context) (Tx, error)
	Close()
}

// Tx is one batch transaction. Rollback after Commit is a no-op.
type Tx interface {
	// EntryByURL looks up the entry keyed by (shopID, normalizedURL), the
	// catalog's only strong identity.
	EntryByURL(ctx context.Context, shopID, normalizedURL string) (*models.CatalogEntry, error)
	InsertEntry(ctx context.Context, entry *models.CatalogEntry) error
	UpdateEntry(ctx context.Context, entry *models.CatalogEntry) error
	// LatestObservation returns the most recent price history row for an
	// entry, used for change detection.
	LatestObservation(ctx context.Context, entryID uuid.UUID) (*models.PriceObservation, error)
	InsertObservation(ctx context.Context, obs *models.PriceObservation) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}
