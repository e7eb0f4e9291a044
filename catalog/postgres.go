package catalog

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/bdpricegear/pricegear/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PG is the Postgres-backed catalog store.
type PG struct {
	pool *pgxpool.Pool
}

// NewPG opens a connection pool against dsn.
func NewPG(ctx context.Context, dsn string, maxConns int) (*PG, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = int32(maxConns)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	return &PG{pool: pool}, nil
}

// Close releases the pool.
func (s *PG) Close() {
	s.pool.Close()
}

// EnsureSchema creates the catalog tables and the unique identity index if
// they do not exist yet.
func (s *PG) EnsureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS catalog_entries (
	id             UUID PRIMARY KEY,
	shop_id        TEXT NOT NULL,
	category       TEXT NOT NULL DEFAULT '',
	name           TEXT NOT NULL,
	normalized_url TEXT NOT NULL,
	image_url      TEXT NOT NULL DEFAULT '',
	current_price  NUMERIC(12,2),
	stock_status   TEXT NOT NULL DEFAULT 'in_stock',
	is_available   BOOLEAN NOT NULL DEFAULT TRUE,
	last_scraped   TIMESTAMPTZ NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL,
	updated_at     TIMESTAMPTZ NOT NULL,
	UNIQUE (shop_id, normalized_url)
);

CREATE TABLE IF NOT EXISTS price_observations (
	id           BIGSERIAL PRIMARY KEY,
	entry_id     UUID NOT NULL REFERENCES catalog_entries(id) ON DELETE CASCADE,
	price        NUMERIC(12,2),
	stock_status TEXT NOT NULL,
	recorded_at  TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_price_observations_entry_recorded
	ON price_observations (entry_id, recorded_at DESC);
`
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Begin implements Store.
func (s *PG) Begin(ctx context.Context) (Tx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	return &pgTx{tx: tx}, nil
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) EntryByURL(ctx context.Context, shopID, normalizedURL string) (*models.CatalogEntry, error) {
	const q = `
SELECT id, shop_id, category, name, normalized_url, image_url, current_price,
       stock_status, is_available, last_scraped, created_at, updated_at
FROM catalog_entries
WHERE shop_id = $1 AND normalized_url = $2`

	var e models.CatalogEntry
	err := t.tx.QueryRow(ctx, q, shopID, normalizedURL).Scan(
		&e.ID, &e.ShopID, &e.Category, &e.Name, &e.NormalizedURL, &e.ImageURL,
		&e.CurrentPrice, &e.StockStatus, &e.IsAvailable, &e.LastScraped,
		&e.CreatedAt, &e.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("entry by url: %w", err)
	}
	return &e, nil
}

func (t *pgTx) InsertEntry(ctx context.Context, entry *models.CatalogEntry) error {
	const q = `
INSERT INTO catalog_entries
	(id, shop_id, category, name, normalized_url, image_url, current_price,
	 stock_status, is_available, last_scraped, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`

	_, err := t.tx.Exec(ctx, q,
		entry.ID, entry.ShopID, entry.Category, entry.Name, entry.NormalizedURL,
		entry.ImageURL, entry.CurrentPrice, entry.StockStatus, entry.IsAvailable,
		entry.LastScraped, entry.CreatedAt, entry.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert entry: %w", err)
	}
	return nil
}

func (t *pgTx) UpdateEntry(ctx context.Context, entry *models.CatalogEntry) error {
	const q = `
UPDATE catalog_entries
SET category = $2, name = $3, image_url = $4, current_price = $5,
    stock_status = $6, is_available = $7, last_scraped = $8, updated_at = $9
WHERE id = $1`

	_, err := t.tx.Exec(ctx, q,
		entry.ID, entry.Category, entry.Name, entry.ImageURL, entry.CurrentPrice,
		entry.StockStatus, entry.IsAvailable, entry.LastScraped, entry.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update entry: %w", err)
	}
	return nil
}

func (t *pgTx) LatestObservation(ctx context.Context, entryID uuid.UUID) (*models.PriceObservation, error) {
	const q = `
SELECT entry_id, price, stock_status, recorded_at
FROM price_observations
WHERE entry_id = $1
ORDER BY recorded_at DESC, id DESC
LIMIT 1`

	var o models.PriceObservation
	err := t.tx.QueryRow(ctx, q, entryID).Scan(&o.EntryID, &o.Price, &o.StockStatus, &o.RecordedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("latest observation: %w", err)
	}
	return &o, nil
}

func (t *pgTx) InsertObservation(ctx context.Context, obs *models.PriceObservation) error {
	const q = `
INSERT INTO price_observations (entry_id, price, stock_status, recorded_at)
VALUES ($1,$2,$3,$4)`

	_, err := t.tx.Exec(ctx, q, obs.EntryID, obs.Price, obs.StockStatus, obs.RecordedAt)
	if err != nil {
		return fmt.Errorf("insert observation: %w", err)
	}
	return nil
}

func (t *pgTx) Commit(ctx context.Context) error {
	return t.tx.Commit(ctx)
}

func (t *pgTx) Rollback(ctx context.Context) error {
	err := t.tx.Rollback(ctx)
	if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return err
	}
	return nil
}

// IsTransient reports whether a persistence error is likely to clear on a
// retry (connection churn, serialization conflicts) as opposed to a fatal
// one (constraint violations, malformed data).
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// Class 08: connection exceptions. 40001/40P01: serialization
		// failure and deadlock, both safe to retry.
		return strings.HasPrefix(pgErr.Code, "08") ||
			pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	if pgconn.SafeToRetry(err) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
