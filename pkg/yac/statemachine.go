package yac

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/event"
	"github.com/yacbft/irohad-go/pkg/crypto"
	"github.com/yacbft/irohad-go/pkg/model"
	"github.com/yacbft/irohad-go/pkg/streams"
)

// VoteSender is the network half of the ring-gossip state machine: it
// delivers a single vote, or a propagated commit/reject answer, to one
// peer (§4.10).
type VoteSender interface {
	SendVote(ctx context.Context, to model.Peer, vote model.Vote) error
	SendAnswer(ctx context.Context, to model.Peer, answer *Answer) error
}

// DefaultVoteDelay is used when a StateMachine is constructed with a
// zero delay; real deployments set this from the vote_delay config key
// (§6).
const DefaultVoteDelay = 2 * time.Second

// StateMachine runs the per-round pipelined vote-gossip ring of §4.10:
// it sends this node's vote to one peer at a time, advancing on a timer
// until vote storage resolves the round.
type StateMachine struct {
	mu sync.Mutex

	storage   *Storage
	sender    VoteSender
	voteDelay time.Duration
	logger    *log.Logger

	round     model.Round
	peers     model.ValidatorSet
	ringIdx   int
	ownVote   model.Vote
	hasVote   bool
	resolved  bool
	answer    *Answer
	timer     *time.Timer

	outcomes streams.Feed[*Answer]
}

// New constructs a StateMachine. A zero voteDelay defaults to
// DefaultVoteDelay.
func New(storage *Storage, sender VoteSender, voteDelay time.Duration, logger *log.Logger) *StateMachine {
	if voteDelay <= 0 {
		voteDelay = DefaultVoteDelay
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[yac] ", log.LstdFlags)
	}
	return &StateMachine{storage: storage, sender: sender, voteDelay: voteDelay, logger: logger}
}

// OnOutcomes subscribes ch to every round this node resolves (commit or
// reject), for the consensus gate to translate into a gate outcome.
func (m *StateMachine) OnOutcomes(ch chan<- *Answer) event.Subscription {
	return m.outcomes.Subscribe(ch)
}

// Start begins voting for round: it signs hash with keypair, seeds the
// local vote into storage, and starts the gossip ring over peers
// (§4.10). clusterSize is peers' size at the time of the round.
func (m *StateMachine) Start(ctx context.Context, round model.Round, peers model.ValidatorSet, hash model.YacHash, keypair crypto.Keypair) error {
	payload, err := hash.Payload()
	if err != nil {
		return err
	}
	sig, err := crypto.Sign(payload, keypair)
	if err != nil {
		return err
	}
	vote := model.Vote{YacHash: hash, Signature: sig}

	m.mu.Lock()
	if m.timer != nil {
		m.timer.Stop()
	}
	m.round = round
	m.peers = peers.Sorted()
	m.ringIdx = 0
	m.ownVote = vote
	m.hasVote = true
	m.resolved = false
	m.answer = nil
	clusterSize := peers.Size()
	m.mu.Unlock()

	if err := m.OnVotes(ctx, model.Peer{}, []model.Vote{vote}, clusterSize); err != nil {
		return err
	}
	m.scheduleStep(ctx, clusterSize)
	return nil
}

func (m *StateMachine) scheduleStep(ctx context.Context, clusterSize int) {
	m.mu.Lock()
	if m.resolved || len(m.peers) == 0 {
		m.mu.Unlock()
		return
	}
	peer := m.peers[m.ringIdx]
	vote := m.ownVote
	m.mu.Unlock()

	if err := m.sender.SendVote(ctx, peer, vote); err != nil {
		m.logger.Printf("vote send to %s failed (ring does not advance early): %v", peer.NetworkAddress, err)
	}

	m.timer = time.AfterFunc(m.voteDelay, func() {
		m.mu.Lock()
		if m.resolved {
			m.mu.Unlock()
			return
		}
		m.ringIdx = (m.ringIdx + 1) % len(m.peers)
		m.mu.Unlock()
		m.scheduleStep(ctx, clusterSize)
	})
}

// OnVotes hands an inbound vote set to storage. If the round this node
// is tracking resolves, it propagates the answer to the whole cluster,
// cancels the ring timer, and emits the outcome; a single late vote that
// merely ratifies an already-propagated outcome is answered directly to
// its sender (repair for late peers) instead of re-running storage.
func (m *StateMachine) OnVotes(ctx context.Context, from model.Peer, votes []model.Vote, clusterSize int) error {
	m.mu.Lock()
	round := m.round
	resolved := m.resolved
	answer := m.answer
	m.mu.Unlock()

	if resolved && len(votes) == 1 && votes[0].YacHash.Round.Equal(round) {
		return m.sender.SendAnswer(ctx, from, answer)
	}

	newAnswer, err := m.storage.Store(votes, clusterSize)
	if err != nil {
		return err
	}
	if newAnswer == nil || !newAnswer.Round.Equal(round) {
		return nil
	}

	m.mu.Lock()
	if m.resolved {
		m.mu.Unlock()
		return nil
	}
	m.resolved = true
	m.answer = newAnswer
	if m.timer != nil {
		m.timer.Stop()
	}
	peers := m.peers
	m.mu.Unlock()

	proposalHash := newAnswer.Votes[0].YacHash.ProposalHash
	m.storage.MarkProcessing(round, proposalHash, SentNotProcessed)

	for _, peer := range peers {
		if err := m.sender.SendAnswer(ctx, peer, newAnswer); err != nil {
			m.logger.Printf("answer propagation to %s failed: %v", peer.NetworkAddress, err)
		}
	}
	m.storage.MarkProcessing(round, proposalHash, SentProcessed)

	m.outcomes.Send(newAnswer)
	return nil
}
