package model

import (
	"time"

	"github.com/google/uuid"
)

// Proposal is an ordered, size-bounded candidate set of transactions for a
// round (§3 Proposal).
type Proposal struct {
	// ID correlates this proposal across the ordering gate's feed, the
	// simulator, and logs; it is process-local and excluded from the
	// proposal hash (codec.go's proposalWire does not carry it).
	ID           uuid.UUID
	Height       uint64
	CreatedTime  time.Time
	Transactions []*Transaction
}

// WithinLimit reports whether the proposal respects transaction_limit.
func (p *Proposal) WithinLimit(transactionLimit int) bool {
	return len(p.Transactions) <= transactionLimit
}
