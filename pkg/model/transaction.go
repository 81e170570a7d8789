package model

import (
	"time"

	"github.com/yacbft/irohad-go/pkg/crypto"
)

// Transaction is a creator's signed sequence of commands (§3 Transaction).
type Transaction struct {
	CreatorAccountID string
	CreatedTime      time.Time
	Quorum           uint32
	Commands         []Command
	Signatures       []crypto.Signature
}

// PayloadHash is the SHA3-256 hash of the canonical serialization of the
// transaction with signatures excluded (§3, §4.2, §8 property 1).
func (tx *Transaction) PayloadHash() (crypto.Hash, error) {
	b, err := EncodeTransactionPayload(tx)
	if err != nil {
		return crypto.Hash{}, err
	}
	return crypto.Sum256(b), nil
}

// AddSignature inserts sig into the transaction's signature set, rejecting
// duplicates by public key (§3 Signature invariant, §8 property 2).
// Returns true if the signature was newly added.
func (tx *Transaction) AddSignature(sig crypto.Signature) bool {
	for _, existing := range tx.Signatures {
		if existing.PublicKey == sig.PublicKey {
			return false
		}
	}
	tx.Signatures = append(tx.Signatures, sig)
	return true
}

// HasSignatory reports whether pub has already signed this transaction.
func (tx *Transaction) HasSignatory(pub crypto.PublicKey) bool {
	for _, sig := range tx.Signatures {
		if sig.PublicKey == pub {
			return true
		}
	}
	return false
}

// MergeSignatures folds other's signatures into tx, skipping public keys
// already present. Returns the number of signatures actually added.
func (tx *Transaction) MergeSignatures(other []crypto.Signature) int {
	added := 0
	for _, sig := range other {
		if tx.AddSignature(sig) {
			added++
		}
	}
	return added
}

// Clone returns a deep-enough copy of tx suitable for mutation by MST
// merge/insert without aliasing the original's signature slice.
func (tx *Transaction) Clone() *Transaction {
	clone := &Transaction{
		CreatorAccountID: tx.CreatorAccountID,
		CreatedTime:      tx.CreatedTime,
		Quorum:           tx.Quorum,
		Commands:         tx.Commands,
	}
	clone.Signatures = make([]crypto.Signature, len(tx.Signatures))
	copy(clone.Signatures, tx.Signatures)
	return clone
}
