package mst

import (
	"context"
	"log"
	"time"

	"github.com/yacbft/irohad-go/pkg/model"
	"github.com/yacbft/irohad-go/pkg/streams"
)

// Transport is the MstNetwork boundary of §6: SendState(peer, state).
// Send failures are logged and ignored (§4.4 failure model) — there is no
// retry at this layer, the batch simply survives until completed,
// expired, or replaced by a fresher peer state.
type Transport interface {
	SendState(ctx context.Context, peer model.Peer, state *State) error
}

// Processor drives C4: it owns the MST State exclusively (§5: "owned by
// the MST processor task; all mutations happen on that task's
// scheduler"), gossips it out on a fixed period, and merges inbound peer
// states as they are submitted through SubmitPeerState.
type Processor struct {
	state    *State
	strategy PropagationStrategy
	transport Transport
	ttl      time.Duration
	period   time.Duration
	logger   *log.Logger

	submitBatch chan *model.TransactionBatch
	peerState   chan peerStateMsg

	OnPreparedBatches streams.Feed[[]*model.TransactionBatch]
	OnExpiredBatches  streams.Feed[[]*model.TransactionBatch]
	OnStateUpdate     streams.Feed[*State]
}

type peerStateMsg struct {
	from  model.Peer
	state *State
}

// NewProcessor builds an MST processor. period defaults to 5s (§5
// timeouts) when zero, and ttl to DefaultBatchTTL when zero.
func NewProcessor(strategy PropagationStrategy, transport Transport, period, ttl time.Duration, logger *log.Logger) *Processor {
	if period <= 0 {
		period = 5 * time.Second
	}
	if ttl <= 0 {
		ttl = DefaultBatchTTL
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[mst] ", log.LstdFlags)
	}
	return &Processor{
		state:       New(),
		strategy:    strategy,
		transport:   transport,
		ttl:         ttl,
		period:      period,
		logger:      logger,
		submitBatch: make(chan *model.TransactionBatch, 64),
		peerState:   make(chan peerStateMsg, 64),
	}
}

// SubmitBatch enqueues a locally-originated or client-submitted batch for
// insertion into the MST state on the processor's own goroutine.
func (p *Processor) SubmitBatch(batch *model.TransactionBatch) {
	p.submitBatch <- batch
}

// ReceivePeerState enqueues an inbound peer MST state for merging,
// serialized through a channel as required by §5.
func (p *Processor) ReceivePeerState(from model.Peer, state *State) {
	p.peerState <- peerStateMsg{from: from, state: state}
}

// Run executes the processor's event loop until ctx is cancelled. It must
// be invoked on exactly one goroutine — the single owning task for the
// MST state.
func (p *Processor) Run(ctx context.Context) {
	ticker := time.NewTicker(p.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case batch := <-p.submitBatch:
			p.handleInsert(batch)
		case msg := <-p.peerState:
			p.handleMerge(msg)
		case <-ticker.C:
			p.handleTick(ctx)
		}
	}
}

func (p *Processor) handleInsert(batch *model.TransactionBatch) {
	completed, err := p.state.Insert(batch)
	if err != nil {
		p.logger.Printf("insert batch: %v", err)
		return
	}
	if len(completed) > 0 {
		p.OnPreparedBatches.Send(completed)
	}
	p.OnStateUpdate.Send(p.state)
}

func (p *Processor) handleMerge(msg peerStateMsg) {
	completed, _, err := p.state.Merge(msg.state)
	if err != nil {
		p.logger.Printf("merge peer state from %s: %v", msg.from.NetworkAddress, err)
		return
	}
	if len(completed) > 0 {
		p.OnPreparedBatches.Send(completed)
	}
	p.OnStateUpdate.Send(p.state)
}

// handleTick performs one gossip propagation and an expiry sweep, as
// specified: "Expiry is checked on every propagation tick" (§4.4).
func (p *Processor) handleTick(ctx context.Context) {
	expired := p.state.EraseExpired(time.Now(), p.ttl)
	if len(expired) > 0 {
		p.OnExpiredBatches.Send(expired)
	}

	peer, ok := p.strategy.Next()
	if !ok {
		return
	}
	if err := p.transport.SendState(ctx, peer, p.state); err != nil {
		p.logger.Printf("gossip to %s failed, not retried: %v", peer.NetworkAddress, err)
	}
}
