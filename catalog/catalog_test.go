package catalog

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/bdpricegear/pricegear/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

func testEntry(shop, url string) *models.CatalogEntry {
	return &models.CatalogEntry{
		ID:            uuid.New(),
		ShopID:        shop,
		Category:      "gpu",
		Name:          "RTX 4070",
		NormalizedURL: url,
		CurrentPrice:  decimal.NullDecimal{Decimal: decimal.NewFromInt(92500), Valid: true},
		StockStatus:   models.StockInStock,
		IsAvailable:   true,
		LastScraped:   time.Now(),
	}
}

func TestMemoryCommitMakesWritesVisible(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	tx, err := store.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	entry := testEntry("StarTech", "https://startech.test/rtx-4070")
	if err := tx.InsertEntry(ctx, entry); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := tx.InsertObservation(ctx, &models.PriceObservation{
		EntryID:     entry.ID,
		Price:       entry.CurrentPrice,
		StockStatus: entry.StockStatus,
		RecordedAt:  time.Now(),
	}); err != nil {
		t.Fatalf("insert observation: %v", err)
	}

	// Staged writes are visible inside the open transaction.
	got, err := tx.EntryByURL(ctx, "StarTech", entry.NormalizedURL)
	if err != nil {
		t.Fatalf("entry by url in-tx: %v", err)
	}
	if got.ID != entry.ID {
		t.Fatalf("in-tx read returned wrong entry")
	}
	latest, err := tx.LatestObservation(ctx, entry.ID)
	if err != nil {
		t.Fatalf("latest observation in-tx: %v", err)
	}
	if !latest.Price.Decimal.Equal(entry.CurrentPrice.Decimal) {
		t.Fatalf("in-tx observation price = %s", latest.Price.Decimal)
	}

	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}

	if len(store.Entries()) != 1 {
		t.Fatalf("entries = %d, want 1", len(store.Entries()))
	}
	if store.ObservationCount(entry.ID) != 1 {
		t.Fatalf("observations = %d, want 1", store.ObservationCount(entry.ID))
	}
}

func TestMemoryRollbackDiscardsWrites(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	tx, err := store.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := tx.InsertEntry(ctx, testEntry("StarTech", "https://startech.test/x")); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := tx.Rollback(ctx); err != nil {
		t.Fatalf("rollback: %v", err)
	}

	if len(store.Entries()) != 0 {
		t.Fatalf("rollback leaked %d entries", len(store.Entries()))
	}
}

func TestMemoryMissingRowsReturnNotFound(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	tx, err := store.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.EntryByURL(ctx, "StarTech", "https://startech.test/nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("entry error = %v, want ErrNotFound", err)
	}
	if _, err := tx.LatestObservation(ctx, uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("observation error = %v, want ErrNotFound", err)
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "serialization failure", err: &pgconn.PgError{Code: "40001"}, want: true},
		{name: "deadlock", err: &pgconn.PgError{Code: "40P01"}, want: true},
		{name: "connection exception", err: &pgconn.PgError{Code: "08006"}, want: true},
		{name: "unique violation", err: &pgconn.PgError{Code: "23505"}, want: false},
		{name: "net error", err: &net.OpError{Op: "write", Err: errors.New("broken pipe")}, want: true},
		{name: "plain error", err: errors.New("boom"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Fatalf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
