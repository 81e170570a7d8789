package ordering

import "github.com/yacbft/irohad-go/pkg/model"

// ProposerOrder elects the peer responsible for admitting batches in a
// given round, rotating round-robin over the validator set sorted by
// public key (open question #2's tie-break, reused here for proposer
// rotation per SPEC_FULL.md's supplemented ordering-peer-rotation
// feature).
type ProposerOrder struct {
	validators model.ValidatorSet
}

// NewProposerOrder captures a snapshot of the validator set. Later changes
// to the set are not reflected; cmd/irohad takes this snapshot once at
// startup.
func NewProposerOrder(validators model.ValidatorSet) ProposerOrder {
	return ProposerOrder{validators: validators.Sorted()}
}

// ElectedPeer returns the peer elected to admit batches for round. The
// zero value of Peer is returned if the validator set is empty.
func (o ProposerOrder) ElectedPeer(round model.Round) model.Peer {
	if len(o.validators) == 0 {
		return model.Peer{}
	}
	idx := int(round.BlockRound) % len(o.validators)
	if idx < 0 {
		idx += len(o.validators)
	}
	return o.validators[idx]
}
