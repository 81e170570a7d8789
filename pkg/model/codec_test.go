package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/yacbft/irohad-go/pkg/crypto"
)

func sampleTx(t *testing.T, amount string) *Transaction {
	t.Helper()
	return &Transaction{
		CreatorAccountID: "admin@test",
		CreatedTime:      time.UnixMilli(1000).UTC(),
		Quorum:           1,
		Commands: []Command{
			&CreateAsset{AssetName: "coin", DomainID: "test", Precision: 2},
			&AddAssetQuantity{AccountID: "admin@test", AssetID: "coin#test", Amount: amount},
		},
	}
}

func Test_PayloadHash_IgnoresSignatures(t *testing.T) {
	tx := sampleTx(t, "100")
	h1, err := tx.PayloadHash()
	require.NoError(t, err)

	kp, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	payload, err := EncodeTransactionPayload(tx)
	require.NoError(t, err)
	sig, err := crypto.Sign(crypto.Sum256(payload).Bytes(), kp)
	require.NoError(t, err)
	require.True(t, tx.AddSignature(sig))

	h2, err := tx.PayloadHash()
	require.NoError(t, err)
	require.Equal(t, h1, h2, "signatures must never affect payload hash")
}

func Test_Transaction_RoundTrip(t *testing.T) {
	tx := sampleTx(t, "100")
	kp, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	payload, err := EncodeTransactionPayload(tx)
	require.NoError(t, err)
	sig, err := crypto.Sign(payload, kp)
	require.NoError(t, err)
	tx.AddSignature(sig)

	encoded, err := EncodeTransaction(tx)
	require.NoError(t, err)
	decoded, err := DecodeTransaction(encoded)
	require.NoError(t, err)

	require.Equal(t, tx.CreatorAccountID, decoded.CreatorAccountID)
	require.Equal(t, tx.Quorum, decoded.Quorum)
	require.Len(t, decoded.Commands, 2)
	require.Equal(t, "CreateAsset", decoded.Commands[0].CommandName())
	require.Equal(t, "AddAssetQuantity", decoded.Commands[1].CommandName())
	require.Len(t, decoded.Signatures, 1)
	require.Equal(t, sig.PublicKey, decoded.Signatures[0].PublicKey)

	origHash, err := tx.PayloadHash()
	require.NoError(t, err)
	decodedHash, err := decoded.PayloadHash()
	require.NoError(t, err)
	require.Equal(t, origHash, decodedHash)
}

func Test_Transaction_AddSignature_DedupsByPublicKey(t *testing.T) {
	tx := sampleTx(t, "5")
	kp, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	sig, err := crypto.Sign([]byte("payload"), kp)
	require.NoError(t, err)

	require.True(t, tx.AddSignature(sig))
	require.False(t, tx.AddSignature(sig))
	require.Len(t, tx.Signatures, 1)
}

func Test_Batch_EqualityByPayloadHashSequence(t *testing.T) {
	txA := sampleTx(t, "100")
	txB := sampleTx(t, "100")
	batchA := &TransactionBatch{Transactions: []*Transaction{txA}}
	batchB := &TransactionBatch{Transactions: []*Transaction{txB}}
	eq, err := batchA.Equal(batchB)
	require.NoError(t, err)
	require.True(t, eq)

	txC := sampleTx(t, "999")
	batchC := &TransactionBatch{Transactions: []*Transaction{txC}}
	eq, err = batchA.Equal(batchC)
	require.NoError(t, err)
	require.False(t, eq)
}

func Test_FrameMessage_RejectsSizeMismatch(t *testing.T) {
	framed := FrameMessage([]byte("hello"))
	_, err := UnframeMessage(framed)
	require.NoError(t, err)

	tampered := append([]byte{}, framed...)
	tampered = append(tampered, 'X')
	_, err = UnframeMessage(tampered)
	require.ErrorIs(t, err, ErrMalformed)
}

func Test_Round_LexicographicOrder(t *testing.T) {
	r1 := Round{BlockRound: 5, RejectRound: 3}
	r2 := Round{BlockRound: 5, RejectRound: 4}
	r3 := Round{BlockRound: 6, RejectRound: 1}
	require.True(t, r1.Less(r2))
	require.True(t, r2.Less(r3))
	require.False(t, r3.Less(r1))
}

func Test_Block_HasSupermajority(t *testing.T) {
	var validators ValidatorSet
	var keys []crypto.Keypair
	for i := 0; i < 4; i++ {
		kp, err := crypto.GenerateKeypair()
		require.NoError(t, err)
		keys = append(keys, kp)
		validators = append(validators, Peer{NetworkAddress: "p", PublicKey: kp.Public})
	}
	block := &Block{Height: 2}
	payload, err := block.PayloadHash()
	require.NoError(t, err)
	for i := 0; i < 3; i++ { // 3 of 4 is supermajority (2*1+1=3)
		sig, err := crypto.Sign(payload.Bytes(), keys[i])
		require.NoError(t, err)
		block.AddSignature(sig)
	}
	require.True(t, block.HasSupermajority(validators))

	block2 := &Block{Height: 2}
	sig, err := crypto.Sign(payload.Bytes(), keys[0])
	require.NoError(t, err)
	block2.AddSignature(sig)
	require.False(t, block2.HasSupermajority(validators))
}
