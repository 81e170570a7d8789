package model

import "fmt"

// FirstRejectOrdinal is the reject_round value a newly committed
// block_round starts at (§3 Round).
const FirstRejectOrdinal = uint64(1)

// Round identifies one consensus attempt as (block_round, reject_round),
// ordered lexicographically with block_round first.
type Round struct {
	BlockRound  uint64
	RejectRound uint64
}

// NewRound constructs the initial round for a given block height.
func NewRound(blockRound uint64) Round {
	return Round{BlockRound: blockRound, RejectRound: FirstRejectOrdinal}
}

func (r Round) String() string {
	return fmt.Sprintf("(%d,%d)", r.BlockRound, r.RejectRound)
}

// Less reports whether r sorts strictly before other lexicographically.
func (r Round) Less(other Round) bool {
	if r.BlockRound != other.BlockRound {
		return r.BlockRound < other.BlockRound
	}
	return r.RejectRound < other.RejectRound
}

// Equal reports whether r and other identify the same round.
func (r Round) Equal(other Round) bool {
	return r.BlockRound == other.BlockRound && r.RejectRound == other.RejectRound
}

// NextOnCommit returns the round that follows a commit outcome: the next
// height, reject ordinal reset.
func (r Round) NextOnCommit() Round {
	return Round{BlockRound: r.BlockRound + 1, RejectRound: FirstRejectOrdinal}
}

// NextOnRejectOrNothing returns the round that follows a reject or empty
// outcome: same height, reject ordinal incremented.
func (r Round) NextOnRejectOrNothing() Round {
	return Round{BlockRound: r.BlockRound, RejectRound: r.RejectRound + 1}
}
