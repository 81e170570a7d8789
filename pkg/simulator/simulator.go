// Package simulator implements C9: given a proposal, build and sign a
// candidate block against a rolled-back temporary world state (§4.8).
package simulator

import (
	"context"
	"fmt"
	"log"

	"github.com/ethereum/go-ethereum/event"
	"github.com/yacbft/irohad-go/pkg/crypto"
	"github.com/yacbft/irohad-go/pkg/model"
	"github.com/yacbft/irohad-go/pkg/streams"
	"github.com/yacbft/irohad-go/pkg/validation"
	"github.com/yacbft/irohad-go/pkg/wsv"
)

// TopBlock is read before simulating a proposal to confirm it targets the
// next height (§4.8 step 1).
type TopBlock struct {
	Height uint64
	Hash   crypto.Hash
}

// BlockSource reports the most recently committed block, grounded in the
// same role storage.Store plays for the synchronizer.
type BlockSource interface {
	Top(ctx context.Context) (TopBlock, error)
}

// Transaction is the temporary-WSV surface the simulator needs: the
// validator's read/execute/savepoint methods plus Close, narrowed so
// tests can fake a transaction without a real Postgres connection.
type Transaction interface {
	validation.TemporaryWSV
	Close() error
}

// TxOpener opens a temporary, rolled-back-by-default transaction over
// world state.
type TxOpener interface {
	BeginTransaction(ctx context.Context) (Transaction, error)
}

// StoreOpener adapts *wsv.Store to TxOpener.
type StoreOpener struct {
	Store *wsv.Store
}

func (o StoreOpener) BeginTransaction(ctx context.Context) (Transaction, error) {
	tw, err := o.Store.BeginTransaction(ctx)
	if err != nil {
		return nil, err
	}
	return validation.Wrap(tw), nil
}

// Simulator turns proposals into signed candidate blocks (§4.8).
type Simulator struct {
	blocks    BlockSource
	store     TxOpener
	validator *validation.Validator
	keypair   crypto.Keypair
	logger    *log.Logger

	candidates streams.Feed[*model.Block]
}

// New constructs a Simulator. keypair signs every candidate block this
// node produces.
func New(blocks BlockSource, store TxOpener, validator *validation.Validator, keypair crypto.Keypair, logger *log.Logger) *Simulator {
	if logger == nil {
		logger = log.New(log.Writer(), "[simulator] ", log.LstdFlags)
	}
	return &Simulator{
		blocks:    blocks,
		store:     store,
		validator: validator,
		keypair:   keypair,
		logger:    logger,
	}
}

// OnCandidateBlocks subscribes ch to every candidate block this node
// produces, for the consensus-input stream of §4.8 step 4.
func (s *Simulator) OnCandidateBlocks(ch chan<- *model.Block) event.Subscription {
	return s.candidates.Subscribe(ch)
}

// Simulate runs §4.8's four steps against proposal. It returns
// (nil, nil) when the proposal is skipped because its height does not
// match top+1 — this is not an error, just a stale or out-of-order
// proposal the gate should not have produced.
func (s *Simulator) Simulate(ctx context.Context, proposal *model.Proposal) (*model.Block, error) {
	top, err := s.blocks.Top(ctx)
	if err != nil {
		return nil, fmt.Errorf("simulator: read top block: %w", err)
	}
	if proposal.Height != top.Height+1 {
		s.logger.Printf("skipping proposal at height %d, top is %d", proposal.Height, top.Height)
		return nil, nil
	}

	temp, err := s.store.BeginTransaction(ctx)
	if err != nil {
		return nil, fmt.Errorf("simulator: begin temporary wsv: %w", err)
	}
	defer temp.Close()

	verified, err := s.validator.Validate(ctx, temp, proposal.Transactions)
	if err != nil {
		return nil, fmt.Errorf("simulator: validate proposal: %w", err)
	}
	for _, rejected := range verified.Rejected {
		s.logger.Printf("transaction %s rejected: command %s code %d index %d",
			rejected.TransactionHash, rejected.CommandName, rejected.Code, rejected.Index)
	}

	block := &model.Block{
		Height:       proposal.Height,
		PrevHash:     top.Hash,
		CreatedTime:  proposal.CreatedTime,
		Transactions: verified.Transactions,
	}
	payload, err := block.PayloadHash()
	if err != nil {
		return nil, fmt.Errorf("simulator: hash candidate block: %w", err)
	}
	sig, err := crypto.Sign(payload.Bytes(), s.keypair)
	if err != nil {
		return nil, fmt.Errorf("simulator: sign candidate block: %w", err)
	}
	block.AddSignature(sig)

	s.candidates.Send(block)
	return block, nil
	// temp is rolled back by the deferred Close; nothing from this
	// transaction is ever committed (§4.8 step 4, §3 Temporary WSV
	// lifetime).
}
