// Package synchronizer implements C14: it turns each consensus gate
// outcome into a storage mutation (or none) and an emitted
// SynchronizationEvent, per §4.13.
package synchronizer

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/ethereum/go-ethereum/event"
	"github.com/yacbft/irohad-go/pkg/crypto"
	"github.com/yacbft/irohad-go/pkg/metrics"
	"github.com/yacbft/irohad-go/pkg/model"
	"github.com/yacbft/irohad-go/pkg/streams"
	"github.com/yacbft/irohad-go/pkg/yac"
)

// SyncEventKind classifies a SynchronizationEvent.
type SyncEventKind int

const (
	EventCommit SyncEventKind = iota
	EventReject
	EventNothing
)

// SynchronizationEvent is emitted once per processed gate outcome.
type SynchronizationEvent struct {
	Blocks []*model.Block
	Kind   SyncEventKind
	Round  model.Round
}

// WorldState applies a committed block's transactions, the same
// mutation path a Simulator's TemporaryWSV uses except that it is
// always committed (wsv.Store.ApplyBlock).
type WorldState interface {
	ApplyBlock(ctx context.Context, block *model.Block) error
}

// BlockStore is the subset of pkg/storage.Store the synchronizer needs:
// appending a newly committed block and finding where the local chain
// currently ends.
type BlockStore interface {
	Insert(height uint64, block *model.Block) error
	Fetch(height uint64) (*model.Block, bool, error)
	TopHeight() (uint64, bool, error)
}

// BlockLoader is the subset of pkg/loader.Loader used to download a
// chain terminating at a known hash.
type BlockLoader interface {
	RetrieveBlocks(ctx context.Context, peer model.Peer, fromHeight uint64, until *crypto.Hash) ([]*model.Block, error)
}

// ValidatorSetSource supplies the validator set a ChainValidator checks
// per-block supermajority against.
type ValidatorSetSource interface {
	GetValidatorSet(ctx context.Context) (model.ValidatorSet, error)
}

// ChainValidator validates a downloaded chain before it is applied:
// prev-hash linkage and per-block peer supermajority against the
// validator set, grounded on
// original_source/irohad/validation/impl/chain_validator_impl.cpp's
// validateBlock/checkSupermajority pair.
type ChainValidator struct {
	validators ValidatorSetSource
}

func NewChainValidator(validators ValidatorSetSource) *ChainValidator {
	return &ChainValidator{validators: validators}
}

// ValidateChain checks that blocks form an unbroken prev-hash chain
// starting from prevHash and that every block in it carries a
// supermajority of signatures from the current validator set. The
// validator set used is the one in force now rather than a
// per-height-reconstructed historical set: this node has no mechanism
// to replay world state to an arbitrary past height outside of
// reapplying the chain it is trying to validate, so §4.13's "validator
// set before that block" is approximated by the validator set read at
// validation time, which is exact for the common case of a validator
// set that does not change mid-sync.
func (c *ChainValidator) ValidateChain(ctx context.Context, prevHash crypto.Hash, blocks []*model.Block) error {
	validatorSet, err := c.validators.GetValidatorSet(ctx)
	if err != nil {
		return fmt.Errorf("chain validator: load validator set: %w", err)
	}

	expectedPrev := prevHash
	for _, block := range blocks {
		if block.PrevHash != expectedPrev {
			return fmt.Errorf("chain validator: block %d: prev hash does not chain from %x", block.Height, expectedPrev)
		}
		if !block.HasSupermajority(validatorSet) {
			return fmt.Errorf("chain validator: block %d: insufficient peer signatures", block.Height)
		}
		hash, err := block.PayloadHash()
		if err != nil {
			return fmt.Errorf("chain validator: hash block %d: %w", block.Height, err)
		}
		expectedPrev = hash
	}
	return nil
}

// Synchronizer is C14: it reacts to yac.GateOutcome values, applying
// and committing blocks to world state and the block store, or
// emitting a no-mutation event, per §4.13.
type Synchronizer struct {
	world     WorldState
	blocks    BlockStore
	loader    BlockLoader
	validator *ChainValidator
	logger    *log.Logger
	metrics   *metrics.Registry

	events streams.Feed[*SynchronizationEvent]
}

// SetMetrics attaches a metrics registry; nil (the default) records
// nothing.
func (s *Synchronizer) SetMetrics(m *metrics.Registry) {
	s.metrics = m
}

func New(world WorldState, blocks BlockStore, loader BlockLoader, validator *ChainValidator, logger *log.Logger) *Synchronizer {
	if logger == nil {
		logger = log.New(log.Writer(), "[synchronizer] ", log.LstdFlags)
	}
	return &Synchronizer{world: world, blocks: blocks, loader: loader, validator: validator, logger: logger}
}

// OnEvents subscribes ch to every synchronization event this node
// produces.
func (s *Synchronizer) OnEvents(ch chan<- *SynchronizationEvent) event.Subscription {
	return s.events.Subscribe(ch)
}

// HandleOutcome processes one gate outcome for round. signatories is the
// ordered list of peers who signed the committed hash (only consulted
// for VoteOther); it is rotated through until a signatory supplies a
// valid chain.
func (s *Synchronizer) HandleOutcome(ctx context.Context, outcome *yac.GateOutcome, round model.Round, signatories []model.Peer) {
	switch outcome.Kind {
	case yac.PairValid:
		s.applyAndCommit(ctx, []*model.Block{outcome.Block}, round)
	case yac.VoteOther:
		s.syncFromSignatories(ctx, outcome, round, signatories)
	case yac.AgreementOnNone:
		s.events.Send(&SynchronizationEvent{Kind: EventNothing, Round: round})
	case yac.ProposalReject, yac.BlockReject:
		s.events.Send(&SynchronizationEvent{Kind: EventReject, Round: round})
	}
}

// applyAndCommit opens a mutable world-state transaction, applies every
// block, inserts it into the block store, and emits a Commit event.
// ApplyFailed/CommitFailed are fatal per §7: the ledger must not
// advance past a partially applied block, so this panics rather than
// returning an error the caller might paper over.
func (s *Synchronizer) applyAndCommit(ctx context.Context, blocks []*model.Block, round model.Round) {
	for _, block := range blocks {
		if err := s.world.ApplyBlock(ctx, block); err != nil {
			panic(fmt.Errorf("synchronizer: apply block %d failed, ledger cannot advance: %w", block.Height, err))
		}
		if err := s.blocks.Insert(block.Height, block); err != nil {
			panic(fmt.Errorf("synchronizer: commit block %d to block store failed, ledger cannot advance: %w", block.Height, err))
		}
		if s.metrics != nil {
			s.metrics.SyncBlocksApplied.Inc()
		}
	}
	s.events.Send(&SynchronizationEvent{Blocks: blocks, Kind: EventCommit, Round: round})
}

// syncFromSignatories rotates through signatories asking the block
// loader for a chain terminating at outcome.BlockHash, applying the
// first one that validates. A download or validation failure advances
// to the next signatory; if every signatory is exhausted this round is
// abandoned silently, to be retried on the next outcome (§4.13: "the
// loop terminates only on success; there is no global give-up").
func (s *Synchronizer) syncFromSignatories(ctx context.Context, outcome *yac.GateOutcome, round model.Round, signatories []model.Peer) {
	top, ok, err := s.blocks.TopHeight()
	if err != nil {
		s.logger.Printf("round %s: read top height: %v", round, err)
		return
	}
	fromHeight := uint64(1)
	if ok {
		fromHeight = top + 1
	}

	for _, peer := range signatories {
		blocks, err := s.loader.RetrieveBlocks(ctx, peer, fromHeight, &outcome.BlockHash)
		if err != nil {
			s.logger.Printf("round %s: retrieve blocks from %s: %v", round, peer.NetworkAddress, err)
			s.recordSignatoryMiss()
			continue
		}
		if len(blocks) == 0 {
			s.recordSignatoryMiss()
			continue
		}
		if terminal, hashErr := blocks[len(blocks)-1].PayloadHash(); hashErr != nil || terminal != outcome.BlockHash {
			s.recordSignatoryMiss()
			continue
		}

		prevHash, prevErr := s.expectedPrevHash(blocks[0].Height)
		if prevErr != nil {
			s.logger.Printf("round %s: determine expected prev hash: %v", round, prevErr)
			return
		}
		if err := s.validator.ValidateChain(ctx, prevHash, blocks); err != nil {
			s.logger.Printf("round %s: chain from %s rejected: %v", round, peer.NetworkAddress, err)
			s.recordSignatoryMiss()
			continue
		}

		s.applyAndCommit(ctx, blocks, round)
		return
	}

	s.logger.Printf("round %s: no signatory supplied a valid chain, waiting for next outcome", round)
}

func (s *Synchronizer) recordSignatoryMiss() {
	if s.metrics != nil {
		s.metrics.SyncSignatoryMiss.Inc()
	}
}

// expectedPrevHash returns the payload hash of the block this node
// already has at height-1, the linkage anchor a downloaded chain
// starting at height must chain from.
func (s *Synchronizer) expectedPrevHash(height uint64) (crypto.Hash, error) {
	if height <= 1 {
		return crypto.Hash{}, nil
	}
	top, ok, err := s.blocks.TopHeight()
	if err != nil {
		return crypto.Hash{}, err
	}
	if !ok || top != height-1 {
		return crypto.Hash{}, errors.New("synchronizer: local chain is not positioned immediately before the downloaded chain")
	}

	prevBlock, found, err := s.blocks.Fetch(top)
	if err != nil {
		return crypto.Hash{}, err
	}
	if !found {
		return crypto.Hash{}, fmt.Errorf("synchronizer: block store missing block at height %d", top)
	}
	return prevBlock.PayloadHash()
}
