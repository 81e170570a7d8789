package model

import (
	"bytes"

	"github.com/google/uuid"
	"github.com/yacbft/irohad-go/pkg/crypto"
)

// BatchMeta carries the optional metadata distinguishing atomic/ordered
// batches; kept minimal since the stateful semantics it would drive
// (ATOMIC vs ORDERED execution modes) are outside the core's scope.
type BatchMeta struct {
	Type string
}

// TransactionBatch is an ordered, atomically validated/ordered group of
// transactions (§3 Transaction Batch).
type TransactionBatch struct {
	// ID correlates this batch across propagate_batch routing and the
	// ordering gate's logs; it is process-local and excluded from the
	// batch's gossip encoding (codec.go's batchWire does not carry it).
	ID           uuid.UUID
	Transactions []*Transaction
	BatchMeta    *BatchMeta
}

// ReducedHash is the SHA3-256 hash over the concatenation of member
// transactions' payload hashes (§3, glossary "Reduced hash").
func (b *TransactionBatch) ReducedHash() (crypto.Hash, error) {
	var buf bytes.Buffer
	for _, tx := range b.Transactions {
		h, err := tx.PayloadHash()
		if err != nil {
			return crypto.Hash{}, err
		}
		buf.Write(h[:])
	}
	return crypto.Sum256(buf.Bytes()), nil
}

// Equal reports whether two batches have identical member payload hashes
// in the same order (§3 Transaction Batch).
func (b *TransactionBatch) Equal(other *TransactionBatch) (bool, error) {
	if len(b.Transactions) != len(other.Transactions) {
		return false, nil
	}
	for i := range b.Transactions {
		lh, err := b.Transactions[i].PayloadHash()
		if err != nil {
			return false, err
		}
		rh, err := other.Transactions[i].PayloadHash()
		if err != nil {
			return false, err
		}
		if lh != rh {
			return false, nil
		}
	}
	return true, nil
}

// IsComplete reports whether every constituent transaction is fully
// signed, i.e. |signatures| >= quorum (the DefaultCompleter policy of
// irohad's MstState; per-account signatory-set and exact quorum matching
// is additionally checked by the stateful validator at block-formation
// time, matching the C++ original's two-layer completeness check).
func (b *TransactionBatch) IsComplete() bool {
	for _, tx := range b.Transactions {
		if uint32(len(tx.Signatures)) < tx.Quorum {
			return false
		}
	}
	return true
}

// CreatedTime returns the created_time of the batch's first transaction,
// used as the batch's ordering key for expiry (mirrors MstState::Less,
// which orders by transactions().at(0)->createdTime()).
func (b *TransactionBatch) CreatedTime() (int64, bool) {
	if len(b.Transactions) == 0 {
		return 0, false
	}
	return b.Transactions[0].CreatedTime.UnixMilli(), true
}
