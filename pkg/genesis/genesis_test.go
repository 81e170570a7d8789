package genesis

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/yacbft/irohad-go/pkg/crypto"
	"github.com/yacbft/irohad-go/pkg/model"
)

var errApply = errors.New("apply failed")

type fakeWorld struct {
	applied []*model.Block
	err     error
}

func (w *fakeWorld) ApplyBlock(_ context.Context, block *model.Block) error {
	if w.err != nil {
		return w.err
	}
	w.applied = append(w.applied, block)
	return nil
}

type fakeBlockStore struct {
	byHeight map[uint64]*model.Block
	err      error
}

func newFakeBlockStore() *fakeBlockStore {
	return &fakeBlockStore{byHeight: make(map[uint64]*model.Block)}
}

func (s *fakeBlockStore) Insert(height uint64, block *model.Block) error {
	if s.err != nil {
		return s.err
	}
	s.byHeight[height] = block
	return nil
}

func signedGenesisBlock(t *testing.T, kp crypto.Keypair, cmds ...model.Command) *model.Block {
	t.Helper()
	block := &model.Block{
		Height:      1,
		CreatedTime: time.Now().UTC(),
		Transactions: []*model.Transaction{{
			CreatorAccountID: "bootstrap@bootstrap",
			CreatedTime:      time.Now().UTC(),
			Quorum:           1,
			Commands:         cmds,
		}},
	}
	hash, err := block.PayloadHash()
	require.NoError(t, err)
	sig, err := crypto.Sign(hash.Bytes(), kp)
	require.NoError(t, err)
	block.AddSignature(sig)
	return block
}

func writeGenesisFile(t *testing.T, block *model.Block) string {
	t.Helper()
	data, err := model.EncodeBlock(block)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "genesis.block")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func Test_Verify_AcceptsHeightOneWithZeroPrevHashAndValidSignature(t *testing.T) {
	kp, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	block := signedGenesisBlock(t, kp, &model.CreateDomain{DomainID: "irohad", DefaultRole: "user"})
	require.NoError(t, Verify(block))
}

func Test_Verify_RejectsWrongHeight(t *testing.T) {
	kp, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	block := signedGenesisBlock(t, kp)
	block.Height = 2
	require.Error(t, Verify(block))
}

func Test_Verify_RejectsNonZeroPrevHash(t *testing.T) {
	kp, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	block := signedGenesisBlock(t, kp)
	block.PrevHash = crypto.Sum256([]byte("not zero"))
	require.Error(t, Verify(block))
}

func Test_Verify_RejectsMissingSignature(t *testing.T) {
	block := &model.Block{Height: 1, CreatedTime: time.Now().UTC()}
	require.Error(t, Verify(block))
}

func Test_Verify_RejectsSignatureThatDoesNotVerify(t *testing.T) {
	kp, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	block := signedGenesisBlock(t, kp)
	block.Signatures[0].Bytes[0] ^= 0xFF
	require.Error(t, Verify(block))
}

func Test_Bootstrap_LoadsVerifiesAppliesAndCommitsTheGenesisFile(t *testing.T) {
	kp, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	block := signedGenesisBlock(t, kp, &model.CreateDomain{DomainID: "irohad", DefaultRole: "user"})
	path := writeGenesisFile(t, block)

	world := &fakeWorld{}
	blocks := newFakeBlockStore()

	applied, err := Bootstrap(context.Background(), path, world, blocks)
	require.NoError(t, err)
	require.Equal(t, uint64(1), applied.Height)
	require.Len(t, world.applied, 1)
	require.Contains(t, blocks.byHeight, uint64(1))
}

func Test_Bootstrap_PropagatesApplyFailure(t *testing.T) {
	kp, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	block := signedGenesisBlock(t, kp)
	path := writeGenesisFile(t, block)

	world := &fakeWorld{err: errApply}
	blocks := newFakeBlockStore()

	_, err = Bootstrap(context.Background(), path, world, blocks)
	require.ErrorIs(t, err, errApply)
	require.Empty(t, blocks.byHeight)
}

func Test_Bootstrap_RejectsAMalformedGenesisFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "genesis.block")
	require.NoError(t, os.WriteFile(path, []byte("not a block"), 0o600))

	world := &fakeWorld{}
	blocks := newFakeBlockStore()
	_, err := Bootstrap(context.Background(), path, world, blocks)
	require.Error(t, err)
}
