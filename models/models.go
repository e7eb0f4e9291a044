// Package models defines the data shapes shared across the scraping and
// ingestion pipeline.
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// StockStatus classifies product availability. The string values match the
// catalog schema.
type StockStatus string

const (
	StockInStock    StockStatus = "in_stock"
	StockOutOfStock StockStatus = "out_of_stock"
)

// Sentinel values substituted for missing listing-card fields. A malformed
// card degrades field by field; it never aborts a page.
const (
	NameNotFound = "Name not found"
)

// RawItem is one listing card as extracted by a shop adapter. It is
// ephemeral and carries no identity of its own.
type RawItem struct {
	Name        string
	PriceText   string
	ImageURL    string
	LinkURL     string
	InStockHint bool
}

// NormalizedItem is the cleaned form of a RawItem. NormalizedURL is the
// shop-scoped identity key candidate. Price.Valid == false means the price
// could not be parsed and the item is treated as out of stock; a price is
// never assumed zero-but-valid.
type NormalizedItem struct {
	Name          string              `json:"name"`
	NormalizedURL string              `json:"link"`
	Price         decimal.NullDecimal `json:"price"`
	StockStatus   StockStatus         `json:"stock_status"`
	ImageURL      string              `json:"img"`
}

// CatalogEntry is the persisted record for one (shop, product) pair.
// (ShopID, NormalizedURL) is unique; it is the system's only strong
// identity guarantee.
type CatalogEntry struct {
	ID            uuid.UUID
	ShopID        string
	Category      string
	Name          string
	NormalizedURL string
	ImageURL      string
	CurrentPrice  decimal.NullDecimal
	StockStatus   StockStatus
	IsAvailable   bool
	LastScraped   time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Available reports whether an entry with the given price and stock status
// should be listed as purchasable.
func Available(price decimal.NullDecimal, status StockStatus) bool {
	if status == StockOutOfStock {
		return false
	}
	return price.Valid && price.Decimal.IsPositive()
}

// PriceObservation is one append-only price/stock snapshot. A row exists
// only for actual change events, not for every scrape.
type PriceObservation struct {
	EntryID     uuid.UUID
	Price       decimal.NullDecimal
	StockStatus StockStatus
	RecordedAt  time.Time
}

// Changed reports whether a fresh reading differs from this observation.
func (o *PriceObservation) Changed(price decimal.NullDecimal, status StockStatus) bool {
	if o == nil {
		return true
	}
	if o.StockStatus != status {
		return true
	}
	if o.Price.Valid != price.Valid {
		return true
	}
	if !o.Price.Valid {
		return false
	}
	return !o.Price.Decimal.Equal(price.Decimal)
}

// Batch is one page worth of normalized items tagged with its origin.
type Batch struct {
	Shop      string
	Category  string
	Items     []NormalizedItem
	ScrapedAt time.Time
}

// ShopResult is one shop's slice of an on-demand comparison response.
type ShopResult struct {
	ShopName string           `json:"shop_name"`
	Logo     string           `json:"logo"`
	Products []NormalizedItem `json:"products"`
}
