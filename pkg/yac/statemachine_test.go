package yac

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/yacbft/irohad-go/pkg/crypto"
	"github.com/yacbft/irohad-go/pkg/model"
)

type fakeSender struct {
	mu      sync.Mutex
	votes   []model.Vote
	answers []*Answer
}

func (f *fakeSender) SendVote(ctx context.Context, to model.Peer, vote model.Vote) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.votes = append(f.votes, vote)
	return nil
}

func (f *fakeSender) SendAnswer(ctx context.Context, to model.Peer, answer *Answer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers = append(f.answers, answer)
	return nil
}

func peerWithKeypair(t *testing.T) (model.Peer, crypto.Keypair) {
	t.Helper()
	kp, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	return model.Peer{NetworkAddress: kp.Public.String(), PublicKey: kp.Public}, kp
}

func Test_StateMachine_ResolvesAndPropagatesOnLocalSupermajority(t *testing.T) {
	storage := NewStorage(3)
	sender := &fakeSender{}
	sm := New(storage, sender, time.Hour, nil)

	round := model.NewRound(1)
	proposalHash := crypto.Sum256([]byte("proposal"))
	blockHash := crypto.Sum256([]byte("block"))
	hash := model.YacHash{Round: round, ProposalHash: proposalHash, BlockHash: blockHash}

	selfPeer, selfKp := peerWithKeypair(t)
	peerB, _ := peerWithKeypair(t)
	peerC, _ := peerWithKeypair(t)
	peerD, _ := peerWithKeypair(t)
	peers := model.ValidatorSet{selfPeer, peerB, peerC, peerD}

	ch := make(chan *Answer, 1)
	sub := sm.OnOutcomes(ch)
	defer sub.Unsubscribe()

	require.NoError(t, sm.Start(context.Background(), round, peers, hash, selfKp))

	otherVotes := []model.Vote{}
	for _, p := range []model.Peer{peerB, peerC} {
		kp, err := crypto.GenerateKeypair()
		require.NoError(t, err)
		_ = p
		payload, err := hash.Payload()
		require.NoError(t, err)
		sig, err := crypto.Sign(payload, kp)
		require.NoError(t, err)
		otherVotes = append(otherVotes, model.Vote{YacHash: hash, Signature: sig})
	}

	require.NoError(t, sm.OnVotes(context.Background(), model.Peer{}, otherVotes, peers.Size()))

	select {
	case answer := <-ch:
		require.Equal(t, AnswerCommit, answer.Kind)
	case <-time.After(time.Second):
		t.Fatal("expected outcome to be emitted")
	}

	sender.mu.Lock()
	defer sender.mu.Unlock()
	require.NotEmpty(t, sender.answers)
}

func Test_StateMachine_RepairsLateVoteAfterResolution(t *testing.T) {
	storage := NewStorage(3)
	sender := &fakeSender{}
	sm := New(storage, sender, time.Hour, nil)

	round := model.NewRound(1)
	proposalHash := crypto.Sum256([]byte("proposal"))
	blockHash := crypto.Sum256([]byte("block"))
	hash := model.YacHash{Round: round, ProposalHash: proposalHash, BlockHash: blockHash}

	selfPeer, selfKp := peerWithKeypair(t)
	peers := model.ValidatorSet{selfPeer}

	require.NoError(t, sm.Start(context.Background(), round, peers, hash, selfKp))

	lateKp, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	payload, err := hash.Payload()
	require.NoError(t, err)
	sig, err := crypto.Sign(payload, lateKp)
	require.NoError(t, err)
	lateVote := model.Vote{YacHash: hash, Signature: sig}

	latePeer := model.Peer{NetworkAddress: "late:1", PublicKey: lateKp.Public}
	require.NoError(t, sm.OnVotes(context.Background(), latePeer, []model.Vote{lateVote}, 1))

	sender.mu.Lock()
	defer sender.mu.Unlock()
	require.NotEmpty(t, sender.answers)
}
