package yac

import (
	"context"
	"log"
	"sync"

	"github.com/ethereum/go-ethereum/event"
	"github.com/yacbft/irohad-go/pkg/crypto"
	"github.com/yacbft/irohad-go/pkg/model"
	"github.com/yacbft/irohad-go/pkg/streams"
)

// GateOutcomeKind is the translated consensus outcome of §4.11.
type GateOutcomeKind int

const (
	PairValid GateOutcomeKind = iota
	VoteOther
	AgreementOnNone
	ProposalReject
	BlockReject
)

// GateOutcome is what the Consensus Gate emits once the state machine
// resolves a round.
type GateOutcome struct {
	Kind             GateOutcomeKind
	Round            model.Round
	Block            *model.Block
	BlockHash        crypto.Hash
	CommitSignatures []crypto.Signature
}

// ResultCache is the consensus result cache of §4.11: it lets a peer who
// voted for a block serve it to the block loader even before the block
// is formally committed.
type ResultCache interface {
	Put(hash crypto.Hash, block *model.Block)
	Get(hash crypto.Hash) (*model.Block, bool)
}

// MemResultCache is an in-process ResultCache, the default wiring for a
// single-node deployment and for tests.
type MemResultCache struct {
	mu     sync.Mutex
	blocks map[crypto.Hash]*model.Block
}

func NewMemResultCache() *MemResultCache {
	return &MemResultCache{blocks: make(map[crypto.Hash]*model.Block)}
}

func (c *MemResultCache) Put(hash crypto.Hash, block *model.Block) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.blocks[hash] = block
}

func (c *MemResultCache) Get(hash crypto.Hash) (*model.Block, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.blocks[hash]
	return b, ok
}

// Gate wraps a StateMachine, tracking the block this node voted for in
// the current round and translating vote-storage outcomes into one of
// §4.11's five gate outcomes.
type Gate struct {
	sm     *StateMachine
	cache  ResultCache
	logger *log.Logger

	mu           sync.Mutex
	currentHash  model.YacHash
	currentBlock *model.Block

	outcomes streams.Feed[*GateOutcome]
}

// NewGate constructs a Gate over sm, caching results in cache.
func NewGate(sm *StateMachine, cache ResultCache, logger *log.Logger) *Gate {
	if cache == nil {
		cache = NewMemResultCache()
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[yac-gate] ", log.LstdFlags)
	}
	return &Gate{sm: sm, cache: cache, logger: logger}
}

// Vote casts this node's vote for block as the candidate for round,
// caching the block by its payload hash (the consensus result cache
// insertion of §4.11) and starting the gossip ring.
func (g *Gate) Vote(ctx context.Context, round model.Round, peers model.ValidatorSet, proposalHash crypto.Hash, block *model.Block, keypair crypto.Keypair) error {
	blockHash, err := block.PayloadHash()
	if err != nil {
		return err
	}
	hash := model.YacHash{Round: round, ProposalHash: proposalHash, BlockHash: blockHash}

	g.mu.Lock()
	g.currentHash = hash
	g.currentBlock = block
	g.mu.Unlock()

	g.cache.Put(blockHash, block)

	return g.sm.Start(ctx, round, peers, hash, keypair)
}

// OnOutcomes subscribes ch to every gate outcome this node produces.
func (g *Gate) OnOutcomes(ch chan<- *GateOutcome) event.Subscription {
	return g.outcomes.Subscribe(ch)
}

// Run drains the underlying state machine's resolved answers and
// translates each into a gate outcome until ctx is cancelled. Callers
// run this in its own goroutine.
func (g *Gate) Run(ctx context.Context) {
	ch := make(chan *Answer, 16)
	sub := g.sm.OnOutcomes(ch)
	defer sub.Unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case answer := <-ch:
			g.handleAnswer(answer)
		}
	}
}

func (g *Gate) handleAnswer(answer *Answer) {
	g.mu.Lock()
	currentHash := g.currentHash
	currentBlock := g.currentBlock
	g.mu.Unlock()

	var outcome *GateOutcome
	switch answer.Kind {
	case AnswerCommit:
		outcome = g.translateCommit(answer, currentHash, currentBlock)
	case AnswerReject:
		outcome = g.translateReject(answer, currentBlock)
	}
	if outcome != nil {
		outcome.Round = answer.Round
		g.outcomes.Send(outcome)
	}
}

func (g *Gate) translateCommit(answer *Answer, currentHash model.YacHash, currentBlock *model.Block) *GateOutcome {
	if len(answer.Votes) == 0 {
		return &GateOutcome{Kind: AgreementOnNone}
	}
	committedHash := answer.Votes[0].YacHash
	if committedHash.IsNone() {
		return &GateOutcome{Kind: AgreementOnNone}
	}

	sigs := make([]crypto.Signature, 0, len(answer.Votes))
	for _, v := range answer.Votes {
		sigs = append(sigs, v.YacHash.BlockSignature)
	}

	if committedHash.Equal(currentHash) {
		if currentBlock != nil {
			for _, sig := range sigs {
				currentBlock.AddSignature(sig)
			}
		}
		return &GateOutcome{Kind: PairValid, Block: currentBlock, BlockHash: committedHash.BlockHash, CommitSignatures: sigs}
	}

	return &GateOutcome{Kind: VoteOther, Block: currentBlock, BlockHash: committedHash.BlockHash, CommitSignatures: sigs}
}

func (g *Gate) translateReject(answer *Answer, currentBlock *model.Block) *GateOutcome {
	var first crypto.Hash
	proposalsDiffer := false
	for i, v := range answer.Votes {
		if i == 0 {
			first = v.YacHash.ProposalHash
			continue
		}
		if v.YacHash.ProposalHash != first {
			proposalsDiffer = true
		}
	}
	if proposalsDiffer {
		return &GateOutcome{Kind: ProposalReject}
	}
	return &GateOutcome{Kind: BlockReject, Block: currentBlock}
}
