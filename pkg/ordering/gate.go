package ordering

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/event"
	"github.com/google/uuid"
	"github.com/yacbft/irohad-go/pkg/model"
	"github.com/yacbft/irohad-go/pkg/streams"
)

// BatchRouter forwards batches to the peer elected to admit them for a
// round, when that peer is not this node (§4.5 propagate_batch).
type BatchRouter interface {
	RouteBatches(ctx context.Context, peer model.Peer, round model.Round, batches []*model.TransactionBatch) error
}

// Gate is the Ordering Gate (C6): it holds the current round under a
// mutex, advances it on every collaboration outcome, requests (or
// synthesizes) the proposal for the new round, and routes outgoing
// batches to whichever peer is elected proposer for the round a batch is
// submitted in.
type Gate struct {
	mu           sync.RWMutex
	currentRound model.Round

	service *Service
	order   ProposerOrder
	router  BatchRouter
	self    model.Peer
	logger  *log.Logger

	proposals streams.Feed[*model.Proposal]
}

// NewGate constructs a Gate starting at round. order reflects the
// validator set snapshot for that round; self identifies this peer so
// PropagateBatch can short-circuit local admission instead of routing
// to itself.
func NewGate(round model.Round, service *Service, order ProposerOrder, router BatchRouter, self model.Peer, logger *log.Logger) *Gate {
	if logger == nil {
		logger = log.New(log.Writer(), "[ordering] ", log.LstdFlags)
	}
	return &Gate{
		currentRound: round,
		service:      service,
		order:        order,
		router:       router,
		self:         self,
		logger:       logger,
	}
}

// CurrentRound returns the round the gate currently believes is active.
func (g *Gate) CurrentRound() model.Round {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.currentRound
}

// SetProposerOrder replaces the validator-set snapshot used for proposer
// rotation. Until it is called the gate keeps the order it was
// constructed with; cmd/irohad builds that order once at startup and does
// not call SetProposerOrder.
func (g *Gate) SetProposerOrder(order ProposerOrder) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.order = order
}

// OnCollaborationOutcome is the gate's half of §4.5: on every
// block-commit or empty-round event it updates the round per the same
// rule the service uses, requests the proposal for the new round, and —
// if none is returned — synthesizes an empty one, then emits it into the
// simulator pipeline.
func (g *Gate) OnCollaborationOutcome(completed model.Round, outcome Outcome, createdTime time.Time) *model.Proposal {
	next := g.service.OnCollaborationOutcome(completed, outcome, createdTime)

	g.mu.Lock()
	g.currentRound = next
	g.mu.Unlock()

	return g.requestProposal(next, createdTime)
}

// Start emits the proposal for the gate's current round without
// advancing it, driving the very first round of a freshly started node
// (every later round is driven by OnCollaborationOutcome instead).
func (g *Gate) Start(createdTime time.Time) *model.Proposal {
	g.mu.RLock()
	round := g.currentRound
	g.mu.RUnlock()
	return g.requestProposal(round, createdTime)
}

func (g *Gate) requestProposal(round model.Round, createdTime time.Time) *model.Proposal {
	proposal := g.service.OnRequestProposal(round)
	if proposal == nil {
		proposal = &model.Proposal{ID: uuid.New(), Height: round.BlockRound, CreatedTime: createdTime}
		g.logger.Printf("no proposal prepared for round %s, synthesizing empty proposal", round)
	}
	g.proposals.Send(proposal)
	return proposal
}

// OnProposals subscribes ch to every proposal the gate emits.
func (g *Gate) OnProposals(ch chan<- *model.Proposal) event.Subscription {
	return g.proposals.Subscribe(ch)
}

// PropagateBatch routes batch to the peer elected proposer for the
// gate's current round, admitting it locally without a network hop when
// that peer is this node.
func (g *Gate) PropagateBatch(ctx context.Context, batch *model.TransactionBatch) error {
	if batch.ID == uuid.Nil {
		batch.ID = uuid.New()
	}

	g.mu.RLock()
	round := g.currentRound
	order := g.order
	g.mu.RUnlock()

	peer := order.ElectedPeer(round)
	if peer.PublicKey == g.self.PublicKey {
		return g.service.OnBatches(round, []*model.TransactionBatch{batch})
	}
	if g.router == nil {
		return fmt.Errorf("ordering: no router configured to forward batch to %s", peer.NetworkAddress)
	}
	return g.router.RouteBatches(ctx, peer, round, []*model.TransactionBatch{batch})
}

// OnBatches is the inbound half of propagate_batch: the routed peer's
// transport layer calls this when it receives a forwarded batch.
func (g *Gate) OnBatches(round model.Round, batches []*model.TransactionBatch) error {
	return g.service.OnBatches(round, batches)
}
