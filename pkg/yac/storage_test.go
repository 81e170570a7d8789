package yac

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/yacbft/irohad-go/pkg/crypto"
	"github.com/yacbft/irohad-go/pkg/model"
)

func signedVote(t *testing.T, round model.Round, proposalHash, blockHash crypto.Hash) model.Vote {
	t.Helper()
	kp, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	hash := model.YacHash{Round: round, ProposalHash: proposalHash, BlockHash: blockHash}
	payload, err := hash.Payload()
	require.NoError(t, err)
	sig, err := crypto.Sign(payload, kp)
	require.NoError(t, err)
	return model.Vote{YacHash: hash, Signature: sig}
}

func Test_Storage_StoreReturnsCommitOnUnanimousSupermajority(t *testing.T) {
	s := NewStorage(3)
	round := model.NewRound(1)
	proposalHash := crypto.Sum256([]byte("proposal"))
	blockHash := crypto.Sum256([]byte("block"))

	votes := []model.Vote{
		signedVote(t, round, proposalHash, blockHash),
		signedVote(t, round, proposalHash, blockHash),
		signedVote(t, round, proposalHash, blockHash),
	}

	answer, err := s.Store(votes, 4)
	require.NoError(t, err)
	require.NotNil(t, answer)
	require.Equal(t, AnswerCommit, answer.Kind)
	require.Len(t, answer.Votes, 3)
}

func Test_Storage_StoreReturnsRejectOnSplitBlockHash(t *testing.T) {
	s := NewStorage(3)
	round := model.NewRound(1)
	proposalHash := crypto.Sum256([]byte("proposal"))

	votes := []model.Vote{
		signedVote(t, round, proposalHash, crypto.Sum256([]byte("block-a"))),
		signedVote(t, round, proposalHash, crypto.Sum256([]byte("block-b"))),
		signedVote(t, round, proposalHash, crypto.Sum256([]byte("block-a"))),
	}

	answer, err := s.Store(votes, 4)
	require.NoError(t, err)
	require.NotNil(t, answer)
	require.Equal(t, AnswerReject, answer.Kind)
}

func Test_Storage_StoreBelowThresholdReturnsNil(t *testing.T) {
	s := NewStorage(3)
	round := model.NewRound(1)
	proposalHash := crypto.Sum256([]byte("proposal"))
	blockHash := crypto.Sum256([]byte("block"))

	answer, err := s.Store([]model.Vote{signedVote(t, round, proposalHash, blockHash)}, 4)
	require.NoError(t, err)
	require.Nil(t, answer)
}

func Test_Storage_StoreDropsInvalidSignature(t *testing.T) {
	s := NewStorage(3)
	round := model.NewRound(1)
	proposalHash := crypto.Sum256([]byte("proposal"))
	blockHash := crypto.Sum256([]byte("block"))

	vote := signedVote(t, round, proposalHash, blockHash)
	vote.YacHash.BlockHash = crypto.Sum256([]byte("tampered"))

	answer, err := s.Store([]model.Vote{vote}, 4)
	require.NoError(t, err)
	require.Nil(t, answer)
}

func Test_Storage_CommitSupersedesOlderReject(t *testing.T) {
	s := NewStorage(3)
	proposalHash := crypto.Sum256([]byte("proposal"))

	rejectRound := model.NewRound(1)
	_, err := s.Store([]model.Vote{
		signedVote(t, rejectRound, proposalHash, crypto.Sum256([]byte("a"))),
		signedVote(t, rejectRound, proposalHash, crypto.Sum256([]byte("b"))),
		signedVote(t, rejectRound, proposalHash, crypto.Sum256([]byte("a"))),
	}, 4)
	require.NoError(t, err)
	require.True(t, s.hasRejected)

	commitRound := model.NewRound(2)
	blockHash := crypto.Sum256([]byte("block"))
	_, err = s.Store([]model.Vote{
		signedVote(t, commitRound, proposalHash, blockHash),
		signedVote(t, commitRound, proposalHash, blockHash),
		signedVote(t, commitRound, proposalHash, blockHash),
	}, 4)
	require.NoError(t, err)
	require.False(t, s.hasRejected)
}
