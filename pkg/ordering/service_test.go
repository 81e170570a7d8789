package ordering

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/yacbft/irohad-go/pkg/model"
)

func tx(creator string) *model.Transaction {
	return &model.Transaction{
		CreatorAccountID: creator,
		CreatedTime:      time.UnixMilli(1).UTC(),
		Quorum:           1,
		Commands: []model.Command{&model.TransferAsset{
			SrcAccountID: creator, DestAccountID: "bob@test", AssetID: "coin#test", Amount: "1",
		}},
	}
}

func Test_Service_OnBatchesThenBuildsProposal(t *testing.T) {
	svc := New(Config{TransactionLimit: 10}, NewMemReplayCache())

	round := model.NewRound(1)
	next := round.NextOnCommit()
	batch := &model.TransactionBatch{Transactions: []*model.Transaction{tx("alice@test")}}

	require.NoError(t, svc.OnBatches(next, []*model.TransactionBatch{batch}))

	got := svc.OnCollaborationOutcome(round, OutcomeCommit, time.UnixMilli(2).UTC())
	require.Equal(t, next, got)

	proposal := svc.OnRequestProposal(next)
	require.NotNil(t, proposal)
	require.Len(t, proposal.Transactions, 1)
	require.Equal(t, next.BlockRound, proposal.Height)
}

func Test_Service_OnBatchesDropsReplayedTransaction(t *testing.T) {
	replay := NewMemReplayCache()
	svc := New(Config{TransactionLimit: 10}, replay)

	txn := tx("alice@test")
	hash, err := txn.PayloadHash()
	require.NoError(t, err)
	require.NoError(t, replay.Mark(hash))

	round := model.NewRound(1)
	batch := &model.TransactionBatch{Transactions: []*model.Transaction{txn}}
	require.NoError(t, svc.OnBatches(round, []*model.TransactionBatch{batch}))

	proposal := svc.OnCollaborationOutcome(model.Round{BlockRound: 0}, OutcomeCommit, time.UnixMilli(2).UTC())
	require.Equal(t, round, proposal)
	got := svc.OnRequestProposal(round)
	require.NotNil(t, got)
	require.Empty(t, got.Transactions)
}

func Test_Service_TransactionLimitDefersOverflowBatch(t *testing.T) {
	svc := New(Config{TransactionLimit: 1}, NewMemReplayCache())

	round := model.NewRound(5)
	batchA := &model.TransactionBatch{Transactions: []*model.Transaction{tx("alice@test")}}
	batchB := &model.TransactionBatch{Transactions: []*model.Transaction{tx("carol@test")}}
	require.NoError(t, svc.OnBatches(round, []*model.TransactionBatch{batchA, batchB}))

	got := svc.OnCollaborationOutcome(model.Round{BlockRound: 4}, OutcomeCommit, time.UnixMilli(2).UTC())
	require.Equal(t, round, got)

	proposal := svc.OnRequestProposal(round)
	require.NotNil(t, proposal)
	require.Len(t, proposal.Transactions, 1)

	deferredRound := round.NextOnRejectOrNothing()
	deferredProposal := svc.OnCollaborationOutcome(round, OutcomeReject, time.UnixMilli(3).UTC())
	require.Equal(t, deferredRound, deferredProposal)
	got2 := svc.OnRequestProposal(deferredRound)
	require.NotNil(t, got2)
	require.Len(t, got2.Transactions, 1)
}

func Test_Service_PreparedRingEvictsOldestBeyondLimit(t *testing.T) {
	svc := New(Config{TransactionLimit: 10, ProposalLimit: 2}, NewMemReplayCache())

	r1 := svc.OnCollaborationOutcome(model.Round{BlockRound: 0}, OutcomeCommit, time.UnixMilli(1).UTC())
	r2 := svc.OnCollaborationOutcome(r1, OutcomeCommit, time.UnixMilli(2).UTC())
	r3 := svc.OnCollaborationOutcome(r2, OutcomeCommit, time.UnixMilli(3).UTC())

	require.Nil(t, svc.OnRequestProposal(r1))
	require.NotNil(t, svc.OnRequestProposal(r2))
	require.NotNil(t, svc.OnRequestProposal(r3))
}
