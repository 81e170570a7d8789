package mst

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/yacbft/irohad-go/pkg/crypto"
	"github.com/yacbft/irohad-go/pkg/model"
)

func makeBatch(t *testing.T, quorum uint32) (*model.TransactionBatch, []crypto.Keypair) {
	t.Helper()
	kp1, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	kp2, err := crypto.GenerateKeypair()
	require.NoError(t, err)

	tx := &model.Transaction{
		CreatorAccountID: "a@d",
		CreatedTime:      time.UnixMilli(42).UTC(),
		Quorum:           quorum,
		Commands: []model.Command{
			&model.TransferAsset{SrcAccountID: "a@d", DestAccountID: "b@d", AssetID: "coin#d", Amount: "1"},
		},
	}
	return &model.TransactionBatch{Transactions: []*model.Transaction{tx}}, []crypto.Keypair{kp1, kp2}
}

func signBatchCopy(t *testing.T, batch *model.TransactionBatch, kp crypto.Keypair) *model.TransactionBatch {
	t.Helper()
	clone := &model.TransactionBatch{Transactions: []*model.Transaction{batch.Transactions[0].Clone()}}
	payload, err := clone.Transactions[0].PayloadHash()
	require.NoError(t, err)
	sig, err := crypto.Sign(payload.Bytes(), kp)
	require.NoError(t, err)
	clone.Transactions[0].AddSignature(sig)
	return clone
}

func Test_Insert_CompletesAtQuorum(t *testing.T) {
	batch, keys := makeBatch(t, 2)
	state := New()

	partial1 := signBatchCopy(t, batch, keys[0])
	completed, err := state.Insert(partial1)
	require.NoError(t, err)
	require.Empty(t, completed)

	partial2 := signBatchCopy(t, batch, keys[1])
	completed, err = state.Insert(partial2)
	require.NoError(t, err)
	require.Len(t, completed, 1)
	require.Len(t, completed[0].Transactions[0].Signatures, 2)
}

func Test_Merge_UnionsAndReturnsCompletedAndDiff(t *testing.T) {
	batch, keys := makeBatch(t, 2)
	stateA := New()
	stateB := New()

	_, err := stateA.Insert(signBatchCopy(t, batch, keys[0]))
	require.NoError(t, err)
	_, err = stateB.Insert(signBatchCopy(t, batch, keys[1]))
	require.NoError(t, err)

	completed, diff, err := stateA.Merge(stateB)
	require.NoError(t, err)
	require.Len(t, completed, 1)
	require.False(t, diff.IsEmpty())
}

func Test_Difference_ReturnsSignaturesAbsentInOther(t *testing.T) {
	batch, keys := makeBatch(t, 2)
	stateA := New()
	stateB := New()

	both := signBatchCopy(t, batch, keys[0])
	_, err := stateA.Insert(both)
	require.NoError(t, err)
	_, err = stateB.Insert(both)
	require.NoError(t, err)

	diff := stateA.Difference(stateB)
	require.True(t, diff.IsEmpty())

	_, err = stateA.Insert(signBatchCopy(t, batch, keys[1]))
	require.NoError(t, err)
	diff = stateA.Difference(stateB)
	require.False(t, diff.IsEmpty())
}

func Test_EraseExpired_RemovesPastTTL(t *testing.T) {
	batch, keys := makeBatch(t, 2)
	state := New()
	_, err := state.Insert(signBatchCopy(t, batch, keys[0]))
	require.NoError(t, err)

	now := time.UnixMilli(42).Add(10 * time.Minute)
	removed := state.EraseExpired(now, 5*time.Minute)
	require.Len(t, removed, 1)
	require.True(t, state.IsEmpty())
}

// Test_CompletionIdempotence verifies §8 property 5: merging q distinct
// one-signature states for a quorum-q batch yields exactly one
// completion event, not one per merge.
func Test_CompletionIdempotence(t *testing.T) {
	batch, keys := makeBatch(t, 2)
	central := New()

	_, _, err := central.Merge(func() *State {
		s := New()
		_, err := s.Insert(signBatchCopy(t, batch, keys[0]))
		require.NoError(t, err)
		return s
	}())
	require.NoError(t, err)

	completed, _, err := central.Merge(func() *State {
		s := New()
		_, err := s.Insert(signBatchCopy(t, batch, keys[1]))
		require.NoError(t, err)
		return s
	}())
	require.NoError(t, err)
	require.Len(t, completed, 1)

	// A third merge with the same fully-signed state must not re-report
	// completion, since the bucket was already complete beforehand.
	completed, _, err = central.Merge(func() *State {
		s := New()
		_, err := s.Insert(signBatchCopy(t, batch, keys[1]))
		require.NoError(t, err)
		return s
	}())
	require.NoError(t, err)
	require.Empty(t, completed)
}
