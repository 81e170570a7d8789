package model

import (
	"time"

	"github.com/yacbft/irohad-go/pkg/crypto"
)

// Block is the committed unit of the chain (§3 Block).
type Block struct {
	Height       uint64
	PrevHash     crypto.Hash
	CreatedTime  time.Time
	Transactions []*Transaction
	Signatures   []crypto.Signature
}

// PayloadHash is the SHA3-256 hash of the canonical serialization of the
// block with signatures excluded.
func (b *Block) PayloadHash() (crypto.Hash, error) {
	bytes, err := EncodeBlockPayload(b)
	if err != nil {
		return crypto.Hash{}, err
	}
	return crypto.Sum256(bytes), nil
}

// AddSignature appends sig to the block's signature set, deduplicating by
// public key like Transaction.AddSignature.
func (b *Block) AddSignature(sig crypto.Signature) bool {
	for _, existing := range b.Signatures {
		if existing.PublicKey == sig.PublicKey {
			return false
		}
	}
	b.Signatures = append(b.Signatures, sig)
	return true
}

// HasSupermajority reports whether the block carries at least a
// supermajority of signatures from validatorSet, the validator set as of
// height-1 (§3 Block invariants).
func (b *Block) HasSupermajority(validatorSet ValidatorSet) bool {
	threshold := Supermajority(validatorSet.Size())
	count := 0
	for _, sig := range b.Signatures {
		if validatorSet.IndexOf(sig.PublicKey) >= 0 {
			count++
		}
	}
	return count >= threshold
}
