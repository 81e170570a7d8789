package ordering

import (
	"fmt"

	dbm "github.com/cometbft/cometbft-db"
	"github.com/yacbft/irohad-go/pkg/crypto"
)

// ReplayCache is the transaction-presence cache consulted before admitting
// a batch (§4.5): a transaction hash that has already been committed or
// rejected must never be admitted again.
type ReplayCache struct {
	db dbm.DB
}

// NewReplayCache wraps a cometbft-db handle. The ordering service's replay
// cache is a small embedded key/value problem — no value is ever stored,
// only presence — which is exactly what the teacher's stack already
// carries a driver for via `cometbft-db`, so no second KV library is
// introduced.
func NewReplayCache(db dbm.DB) *ReplayCache {
	return &ReplayCache{db: db}
}

// NewMemReplayCache opens an in-memory replay cache, used by tests and by
// single-process deployments that do not need the cache to survive a
// restart.
func NewMemReplayCache() *ReplayCache {
	return &ReplayCache{db: dbm.NewMemDB()}
}

// Seen reports whether txHash has already been marked (committed or
// rejected).
func (c *ReplayCache) Seen(txHash crypto.Hash) (bool, error) {
	ok, err := c.db.Has(txHash.Bytes())
	if err != nil {
		return false, fmt.Errorf("ordering: replay cache has: %w", err)
	}
	return ok, nil
}

// Mark records txHash as seen, idempotently.
func (c *ReplayCache) Mark(txHash crypto.Hash) error {
	if err := c.db.Set(txHash.Bytes(), []byte{1}); err != nil {
		return fmt.Errorf("ordering: replay cache set: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (c *ReplayCache) Close() error {
	return c.db.Close()
}
