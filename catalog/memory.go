package catalog

import (
	"context"
	"sync"

	"github.com/bdpricegear/pricegear/models"
	"github.com/google/uuid"
)

// Memory is an in-process catalog store. It backs tests and database-less
// local runs; transactions are serialized under one lock, which is fine at
// this scale.
type Memory struct {
	mu           sync.Mutex
	entries      map[memKey]*models.CatalogEntry
	observations map[uuid.UUID][]models.PriceObservation
}

type memKey struct {
	shopID        string
	normalizedURL string
}

// NewMemory builds an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		entries:      make(map[memKey]*models.CatalogEntry),
		observations: make(map[uuid.UUID][]models.PriceObservation),
	}
}

// Close implements Store.
func (s *Memory) Close() {}

// Begin implements Store. The transaction holds the store lock until
// Commit or Rollback; writes are staged and applied atomically on Commit.
func (s *Memory) Begin(ctx context.Context) (Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	return &memTx{store: s}, nil
}

// Entries returns a snapshot of all catalog entries, for tests.
func (s *Memory) Entries() []models.CatalogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.CatalogEntry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, *e)
	}
	return out
}

// ObservationCount returns the number of history rows for an entry.
func (s *Memory) ObservationCount(entryID uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.observations[entryID])
}

type memTx struct {
	store *Memory
	done  bool

	stagedEntries      []models.CatalogEntry
	stagedObservations []models.PriceObservation
}

func (t *memTx) EntryByURL(_ context.Context, shopID, normalizedURL string) (*models.CatalogEntry, error) {
	key := memKey{shopID: shopID, normalizedURL: normalizedURL}
	// Staged writes are visible inside the transaction.
	for i := len(t.stagedEntries) - 1; i >= 0; i-- {
		e := t.stagedEntries[i]
		if e.ShopID == shopID && e.NormalizedURL == normalizedURL {
			copied := e
			return &copied, nil
		}
	}
	if e, ok := t.store.entries[key]; ok {
		copied := *e
		return &copied, nil
	}
	return nil, ErrNotFound
}

func (t *memTx) InsertEntry(_ context.Context, entry *models.CatalogEntry) error {
	t.stagedEntries = append(t.stagedEntries, *entry)
	return nil
}

func (t *memTx) UpdateEntry(_ context.Context, entry *models.CatalogEntry) error {
	t.stagedEntries = append(t.stagedEntries, *entry)
	return nil
}

func (t *memTx) LatestObservation(_ context.Context, entryID uuid.UUID) (*models.PriceObservation, error) {
	for i := len(t.stagedObservations) - 1; i >= 0; i-- {
		if t.stagedObservations[i].EntryID == entryID {
			copied := t.stagedObservations[i]
			return &copied, nil
		}
	}
	obs := t.store.observations[entryID]
	if len(obs) == 0 {
		return nil, ErrNotFound
	}
	copied := obs[len(obs)-1]
	return &copied, nil
}

func (t *memTx) InsertObservation(_ context.Context, obs *models.PriceObservation) error {
	t.stagedObservations = append(t.stagedObservations, *obs)
	return nil
}

func (t *memTx) Commit(context.Context) error {
	if t.done {
		return nil
	}
	for i := range t.stagedEntries {
		e := t.stagedEntries[i]
		t.store.entries[memKey{shopID: e.ShopID, normalizedURL: e.NormalizedURL}] = &e
	}
	for _, o := range t.stagedObservations {
		t.store.observations[o.EntryID] = append(t.store.observations[o.EntryID], o)
	}
	t.done = true
	t.store.mu.Unlock()
	return nil
}

func (t *memTx) Rollback(context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	t.store.mu.Unlock()
	return nil
}
