package model

import "github.com/yacbft/irohad-go/pkg/crypto"

// YacHash is the object YAC peers vote on: a round paired with the
// proposal and block hashes the voter observed, plus the voter's
// signature over the candidate block (§3 YacHash).
type YacHash struct {
	Round          Round
	ProposalHash   crypto.Hash
	BlockHash      crypto.Hash
	BlockSignature crypto.Signature
}

// Equal compares two YacHash values ignoring BlockSignature, as specified.
func (h YacHash) Equal(other YacHash) bool {
	return h.Round.Equal(other.Round) &&
		h.ProposalHash == other.ProposalHash &&
		h.BlockHash == other.BlockHash
}

// IsNone reports whether h represents "agreement on no proposal", i.e. an
// all-zero proposal hash (§4.11 AgreementOnNone).
func (h YacHash) IsNone() bool {
	return h.ProposalHash.IsZero()
}

// Payload returns the canonical bytes a Vote's signature is computed over.
func (h YacHash) Payload() ([]byte, error) {
	return EncodeYacHashPayload(h)
}

// Vote is one peer's signed YacHash (§3 Vote).
type Vote struct {
	YacHash   YacHash
	Signature crypto.Signature
}

// Verify checks the vote's signature against its YacHash payload.
func (v Vote) Verify() (bool, error) {
	payload, err := v.YacHash.Payload()
	if err != nil {
		return false, err
	}
	return crypto.Verify(v.Signature, payload), nil
}
