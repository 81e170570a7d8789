package validation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/yacbft/irohad-go/pkg/crypto"
	"github.com/yacbft/irohad-go/pkg/model"
	"github.com/yacbft/irohad-go/pkg/wsv"
)

// fakeWSV is an in-memory stand-in for *wsv.TemporaryWSV, letting these
// tests exercise the validation algorithm without a Postgres connection.
type fakeWSV struct {
	signatories map[string][]crypto.PublicKey
	quorum      map[string]uint32
	rolePerms   map[string]map[string]bool
	grantable   map[[3]string]bool
	balances    map[[2]string]string
	executed    []string
	failNext    map[string]*model.CommandError
}

func newFakeWSV() *fakeWSV {
	return &fakeWSV{
		signatories: map[string][]crypto.PublicKey{},
		quorum:      map[string]uint32{},
		rolePerms:   map[string]map[string]bool{},
		grantable:   map[[3]string]bool{},
		balances:    map[[2]string]string{},
		failNext:    map[string]*model.CommandError{},
	}
}

func (f *fakeWSV) GetSignatories(ctx context.Context, accountID string) ([]crypto.PublicKey, error) {
	return f.signatories[accountID], nil
}

func (f *fakeWSV) GetQuorum(ctx context.Context, accountID string) (uint32, error) {
	return f.quorum[accountID], nil
}

func (f *fakeWSV) GetAccountPermissions(ctx context.Context, accountID string) (map[string]bool, error) {
	return f.rolePerms[accountID], nil
}

func (f *fakeWSV) HasGrantablePermission(ctx context.Context, granteeAccountID, grantorAccountID, permission string) (bool, error) {
	return f.grantable[[3]string{granteeAccountID, grantorAccountID, permission}], nil
}

// fakeSavepoint is a no-op Savepoint: there is nothing transactional to
// roll back since Execute mutates an in-memory slice directly, which is
// sufficient for these tests (they assert on Validate's return value, not
// on actual rollback of prior writes).
type fakeSavepoint struct{}

func (fakeSavepoint) Release(ctx context.Context) error  { return nil }
func (fakeSavepoint) Rollback(ctx context.Context) error { return nil }

func (f *fakeWSV) Savepoint(ctx context.Context, name string) (Savepoint, error) {
	return fakeSavepoint{}, nil
}

func (f *fakeWSV) Execute(ctx context.Context, index int, cmd model.Command) *model.CommandError {
	if cerr, ok := f.failNext[cmd.CommandName()]; ok {
		delete(f.failNext, cmd.CommandName())
		cerr.Index = index
		return cerr
	}
	f.executed = append(f.executed, cmd.CommandName())
	return nil
}

func signedTx(t *testing.T, kp crypto.Keypair, creator string, quorum uint32, cmds ...model.Command) *model.Transaction {
	t.Helper()
	tx := &model.Transaction{
		CreatorAccountID: creator,
		CreatedTime:      time.UnixMilli(1000).UTC(),
		Quorum:           quorum,
		Commands:         cmds,
	}
	payload, err := tx.PayloadHash()
	require.NoError(t, err)
	sig, err := crypto.Sign(payload.Bytes(), kp)
	require.NoError(t, err)
	tx.AddSignature(sig)
	return tx
}

func Test_Validate_AcceptsFullySignedPermittedTransaction(t *testing.T) {
	kp, err := crypto.GenerateKeypair()
	require.NoError(t, err)

	f := newFakeWSV()
	f.signatories["alice@test"] = []crypto.PublicKey{kp.Public}
	f.quorum["alice@test"] = 1
	f.rolePerms["alice@test"] = map[string]bool{PermTransferAsset: true}

	tx := signedTx(t, kp, "alice@test", 1, &model.TransferAsset{
		SrcAccountID: "alice@test", DestAccountID: "bob@test", AssetID: "coin#test", Amount: "1",
	})

	v := New(nil)
	result, err := v.Validate(context.Background(), f, []*model.Transaction{tx})
	require.NoError(t, err)
	require.Len(t, result.Transactions, 1)
	require.Empty(t, result.Rejected)
	require.Equal(t, []string{"TransferAsset"}, f.executed)
}

func Test_Validate_RejectsBelowQuorum(t *testing.T) {
	kp, err := crypto.GenerateKeypair()
	require.NoError(t, err)

	f := newFakeWSV()
	f.signatories["alice@test"] = []crypto.PublicKey{kp.Public}
	f.quorum["alice@test"] = 2 // requires 2 signatures, tx carries 1

	tx := signedTx(t, kp, "alice@test", 2, &model.TransferAsset{
		SrcAccountID: "alice@test", DestAccountID: "bob@test", AssetID: "coin#test", Amount: "1",
	})

	v := New(nil)
	result, err := v.Validate(context.Background(), f, []*model.Transaction{tx})
	require.NoError(t, err)
	require.Empty(t, result.Transactions)
	require.Len(t, result.Rejected, 1)
	require.Equal(t, CodeQuorumNotMet, result.Rejected[0].Code)
}

func Test_Validate_RejectsCommandWithoutPermission(t *testing.T) {
	kp, err := crypto.GenerateKeypair()
	require.NoError(t, err)

	f := newFakeWSV()
	f.signatories["alice@test"] = []crypto.PublicKey{kp.Public}
	f.quorum["alice@test"] = 1
	// no role permissions granted, and the command moves funds out of an
	// account other than the creator's own

	tx := signedTx(t, kp, "alice@test", 1, &model.TransferAsset{
		SrcAccountID: "carol@test", DestAccountID: "bob@test", AssetID: "coin#test", Amount: "1",
	})

	v := New(nil)
	result, err := v.Validate(context.Background(), f, []*model.Transaction{tx})
	require.NoError(t, err)
	require.Empty(t, result.Transactions)
	require.Len(t, result.Rejected, 1)
	require.Equal(t, CodePermissionDenied, result.Rejected[0].Code)
	require.Equal(t, "TransferAsset", result.Rejected[0].CommandName)
}

func Test_Validate_ProposalContinuesAfterOneTransactionRejects(t *testing.T) {
	kpA, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	kpB, err := crypto.GenerateKeypair()
	require.NoError(t, err)

	f := newFakeWSV()
	f.signatories["alice@test"] = []crypto.PublicKey{kpA.Public}
	f.quorum["alice@test"] = 1
	f.rolePerms["alice@test"] = map[string]bool{PermTransferAsset: true}
	f.signatories["carol@test"] = []crypto.PublicKey{kpB.Public}
	f.quorum["carol@test"] = 1
	// carol has no transfer permission

	txA := signedTx(t, kpA, "alice@test", 1, &model.TransferAsset{
		SrcAccountID: "alice@test", DestAccountID: "bob@test", AssetID: "coin#test", Amount: "1",
	})
	txB := signedTx(t, kpB, "carol@test", 1, &model.TransferAsset{
		SrcAccountID: "dave@test", DestAccountID: "bob@test", AssetID: "coin#test", Amount: "1",
	})

	v := New(nil)
	result, err := v.Validate(context.Background(), f, []*model.Transaction{txA, txB})
	require.NoError(t, err)
	require.Len(t, result.Transactions, 1)
	require.Len(t, result.Rejected, 1)
}

func Test_Validate_ExecutionFailureRejectsTransaction(t *testing.T) {
	kp, err := crypto.GenerateKeypair()
	require.NoError(t, err)

	f := newFakeWSV()
	f.signatories["alice@test"] = []crypto.PublicKey{kp.Public}
	f.quorum["alice@test"] = 1
	f.rolePerms["alice@test"] = map[string]bool{PermTransferAsset: true}
	f.failNext["TransferAsset"] = &model.CommandError{CommandName: "TransferAsset", Code: wsv.CodeInsufficient}

	tx := signedTx(t, kp, "alice@test", 1, &model.TransferAsset{
		SrcAccountID: "alice@test", DestAccountID: "bob@test", AssetID: "coin#test", Amount: "1",
	})

	v := New(nil)
	result, err := v.Validate(context.Background(), f, []*model.Transaction{tx})
	require.NoError(t, err)
	require.Empty(t, result.Transactions)
	require.Len(t, result.Rejected, 1)
	require.Equal(t, wsv.CodeInsufficient, result.Rejected[0].Code)
}
