package model

import "github.com/yacbft/irohad-go/pkg/crypto"

// Peer identifies one cluster member by its network address and its
// consensus/signatory identity.
type Peer struct {
	NetworkAddress string
	PublicKey      crypto.PublicKey
}

// ValidatorSet is the ordered sequence of peers read from world state at
// the height of the most recently committed block (§1: no dynamic
// reconfiguration within a round).
type ValidatorSet []Peer

// Size returns the cluster size n used in supermajority computations.
func (vs ValidatorSet) Size() int { return len(vs) }

// Supermajority returns the BFT supermajority threshold 2*f+1 for a
// cluster of size n, where f = (n-1)/3.
func Supermajority(n int) int {
	f := (n - 1) / 3
	return 2*f + 1
}

// Sorted returns a copy of vs ordered by ascending public key, the
// documented tie-break standing in for unimplemented trust-score ordering
// (open question #2).
func (vs ValidatorSet) Sorted() ValidatorSet {
	out := make(ValidatorSet, len(vs))
	copy(out, vs)
	for i := 1; i < len(out); i++ {
		key := out[i]
		j := i - 1
		for j >= 0 && key.PublicKey.Less(out[j].PublicKey) {
			out[j+1] = out[j]
			j--
		}
		out[j+1] = key
	}
	return out
}

// IndexOf returns the position of pub in vs, or -1 if absent.
func (vs ValidatorSet) IndexOf(pub crypto.PublicKey) int {
	for i, p := range vs {
		if p.PublicKey == pub {
			return i
		}
	}
	return -1
}
