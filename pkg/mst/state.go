// Package mst implements C3 (MST State) and C4 (MST Processor): the
// per-batch signature accumulator that lets a cluster gossip partial
// transaction signatures to quorum before admitting a batch to ordering.
package mst

import (
	"container/heap"
	"time"

	"github.com/yacbft/irohad-go/pkg/crypto"
	"github.com/yacbft/irohad-go/pkg/model"
)

// DefaultBatchTTL is the MST bucket expiry window. The source left this
// unspecified (spec §9 open question 3); 5 minutes is used as the safe
// default until a deployment configures it explicitly.
const DefaultBatchTTL = 5 * time.Minute

// bucket holds one reduced-hash-keyed entry: the representative batch
// (whose Transactions carry the accumulated signature sets) plus the
// latest created_time seen, used for expiry ordering.
type bucket struct {
	batch          *model.TransactionBatch
	maxCreatedTime time.Time
}

// heapEntry is a (reducedHash, createdTime) pair ordered by createdTime
// for the expiry min-heap; stale entries (superseded by a later insert of
// the same bucket) are skipped lazily on pop.
type heapEntry struct {
	reducedHash crypto.Hash
	createdTime time.Time
}

type expiryHeap []heapEntry

func (h expiryHeap) Len() int            { return len(h) }
func (h expiryHeap) Less(i, j int) bool  { return h[i].createdTime.Before(h[j].createdTime) }
func (h expiryHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *expiryHeap) Push(x interface{}) { *h = append(*h, x.(heapEntry)) }
func (h *expiryHeap) Pop() interface{} {
	old := *h
	n := len(old)
	entry := old[n-1]
	*h = old[:n-1]
	return entry
}

// State is a mutable set of in-flight MST batches, bucketed by reduced
// hash, with signatures accumulated across peers (§4.3).
//
// State is not safe for concurrent use: per §5, all mutations happen on
// the MST processor's single owning task.
type State struct {
	buckets map[crypto.Hash]*bucket
	expiry  expiryHeap
}

// New creates an empty MST state.
func New() *State {
	return &State{buckets: make(map[crypto.Hash]*bucket)}
}

// IsEmpty reports whether the state holds no batches.
func (s *State) IsEmpty() bool { return len(s.buckets) == 0 }

// Batches returns the representative batch for every bucket, in no
// particular order.
func (s *State) Batches() []*model.TransactionBatch {
	out := make([]*model.TransactionBatch, 0, len(s.buckets))
	for _, b := range s.buckets {
		out = append(out, b.batch)
	}
	return out
}

// Insert adds batch's signatures into the bucket sharing its reduced
// hash (creating one if absent), and returns the subset of batches that
// became complete as a result (§4.3 insert).
func (s *State) Insert(batch *model.TransactionBatch) ([]*model.TransactionBatch, error) {
	reducedHash, err := batch.ReducedHash()
	if err != nil {
		return nil, err
	}

	existing, ok := s.buckets[reducedHash]
	if !ok {
		clone := cloneBatch(batch)
		created, hasCreated := clone.CreatedTime()
		maxTime := batch.Transactions[0].CreatedTime
		if hasCreated {
			maxTime = time.UnixMilli(created).UTC()
		}
		s.buckets[reducedHash] = &bucket{batch: clone, maxCreatedTime: maxTime}
		heap.Push(&s.expiry, heapEntry{reducedHash: reducedHash, createdTime: maxTime})
		if clone.IsComplete() {
			return []*model.TransactionBatch{clone}, nil
		}
		return nil, nil
	}

	wasComplete := existing.batch.IsComplete()
	mergeSignaturesInto(existing.batch, batch)
	if !wasComplete && existing.batch.IsComplete() {
		return []*model.TransactionBatch{existing.batch}, nil
	}
	return nil, nil
}

// Merge performs a pointwise union of s and other, returning the batches
// newly completed by the merge and the diff (other \ s) for reciprocal
// gossip (§4.3 merge).
func (s *State) Merge(other *State) (completed []*model.TransactionBatch, diff *State, err error) {
	diff = other.Difference(s)
	for reducedHash, otherBucket := range other.buckets {
		mine, ok := s.buckets[reducedHash]
		if !ok {
			clone := cloneBatch(otherBucket.batch)
			s.buckets[reducedHash] = &bucket{batch: clone, maxCreatedTime: otherBucket.maxCreatedTime}
			heap.Push(&s.expiry, heapEntry{reducedHash: reducedHash, createdTime: otherBucket.maxCreatedTime})
			if clone.IsComplete() {
				completed = append(completed, clone)
			}
			continue
		}

		wasComplete := mine.batch.IsComplete()
		mergeSignaturesInto(mine.batch, otherBucket.batch)
		if !wasComplete && mine.batch.IsComplete() {
			completed = append(completed, mine.batch)
		}
	}
	return completed, diff, nil
}

// Difference returns the buckets present in s whose signature sets
// contain signatures absent from other, i.e. what s has that other needs
// (§4.3 difference).
func (s *State) Difference(other *State) *State {
	out := New()
	for reducedHash, mine := range s.buckets {
		theirs, ok := other.buckets[reducedHash]
		if !ok {
			out.buckets[reducedHash] = &bucket{batch: cloneBatch(mine.batch), maxCreatedTime: mine.maxCreatedTime}
			continue
		}
		diffBatch := cloneBatch(mine.batch)
		anyNew := false
		for i, tx := range diffBatch.Transactions {
			theirTx := theirs.batch.Transactions[i]
			var missing []crypto.Signature
			for _, sig := range tx.Signatures {
				if !theirTx.HasSignatory(sig.PublicKey) {
					missing = append(missing, sig)
				}
			}
			tx.Signatures = missing
			if len(missing) > 0 {
				anyNew = true
			}
		}
		if anyNew {
			out.buckets[reducedHash] = &bucket{batch: diffBatch, maxCreatedTime: mine.maxCreatedTime}
		}
	}
	return out
}

// EraseExpired removes every bucket whose max_created_time + ttl < now,
// returning the removed batches (§4.3 erase_expired).
func (s *State) EraseExpired(now time.Time, ttl time.Duration) []*model.TransactionBatch {
	var removed []*model.TransactionBatch
	for s.expiry.Len() > 0 {
		top := s.expiry[0]
		b, ok := s.buckets[top.reducedHash]
		if !ok || !b.maxCreatedTime.Equal(top.createdTime) {
			// stale heap entry superseded by a later insert; drop it.
			heap.Pop(&s.expiry)
			continue
		}
		if b.maxCreatedTime.Add(ttl).Before(now) {
			heap.Pop(&s.expiry)
			delete(s.buckets, top.reducedHash)
			removed = append(removed, b.batch)
			continue
		}
		break
	}
	return removed
}

func cloneBatch(b *model.TransactionBatch) *model.TransactionBatch {
	clone := &model.TransactionBatch{BatchMeta: b.BatchMeta}
	clone.Transactions = make([]*model.Transaction, len(b.Transactions))
	for i, tx := range b.Transactions {
		clone.Transactions[i] = tx.Clone()
	}
	return clone
}

// mergeSignaturesInto folds rhs's per-transaction signatures into dst
// (assumed to share rhs's reduced hash, i.e. same transactions in the
// same order), returning the number of signatures newly added across all
// constituent transactions. Invariant: signatures are unique by
// (tx_index, public_key) — Transaction.AddSignature already enforces
// per-transaction uniqueness.
func mergeSignaturesInto(dst, rhs *model.TransactionBatch) int {
	added := 0
	for i, tx := range dst.Transactions {
		if i >= len(rhs.Transactions) {
			break
		}
		added += tx.MergeSignatures(rhs.Transactions[i].Signatures)
	}
	return added
}
