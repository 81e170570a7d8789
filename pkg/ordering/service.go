// Package ordering implements the on-demand Ordering Service (C5) and
// Ordering Gate (C6) of §4.5: peers request a proposal for a round rather
// than the service pushing one.
package ordering

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/yacbft/irohad-go/pkg/metrics"
	"github.com/yacbft/irohad-go/pkg/model"
)

// Outcome is the result of a completed collaboration round, driving the
// next-round computation of §4.5.
type Outcome int

const (
	OutcomeCommit Outcome = iota
	OutcomeReject
	OutcomeNothing
)

// NextRound computes the round that follows a completed round's outcome
// (§4.5: "on_collaboration_outcome(completed_round)").
func NextRound(completed model.Round, outcome Outcome) model.Round {
	if outcome == OutcomeCommit {
		return completed.NextOnCommit()
	}
	return completed.NextOnRejectOrNothing()
}

// Service holds per-round FIFO batch queues, a capacity-bounded ring of
// prepared proposals, and the replay cache consulted before admitting a
// batch (§4.5 state).
type Service struct {
	mu sync.Mutex

	transactionLimit int
	proposalLimit    int

	pending  map[model.Round][]*model.TransactionBatch
	prepared map[model.Round]*model.Proposal
	order    []model.Round // insertion order of prepared, oldest first

	replay  *ReplayCache
	metrics *metrics.Registry
}

// SetMetrics attaches a metrics registry; nil (the default) records
// nothing.
func (s *Service) SetMetrics(m *metrics.Registry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = m
}

// Config fixes the two size bounds named in §4.5/§6: transaction_limit
// (max transactions packed per proposal) and proposal_limit (ring buffer
// capacity, default 3).
type Config struct {
	TransactionLimit int
	ProposalLimit    int
}

// DefaultProposalLimit is §4.5's stated default ring capacity.
const DefaultProposalLimit = 3

// New constructs a Service. A zero ProposalLimit defaults to
// DefaultProposalLimit.
func New(cfg Config, replay *ReplayCache) *Service {
	if cfg.ProposalLimit <= 0 {
		cfg.ProposalLimit = DefaultProposalLimit
	}
	return &Service{
		transactionLimit: cfg.TransactionLimit,
		proposalLimit:    cfg.ProposalLimit,
		pending:          make(map[model.Round][]*model.TransactionBatch),
		prepared:         make(map[model.Round]*model.Proposal),
		replay:           replay,
	}
}

// OnBatches admits batches submitted for round, dropping any batch with a
// transaction already present in the ledger per the replay cache (§4.5
// on_batches).
func (s *Service) OnBatches(round model.Round, batches []*model.TransactionBatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, batch := range batches {
		admit, err := s.admitBatch(batch)
		if err != nil {
			return err
		}
		if admit {
			s.pending[round] = append(s.pending[round], batch)
			if s.metrics != nil {
				s.metrics.BatchesAdmitted.Inc()
			}
		}
	}
	return nil
}

func (s *Service) admitBatch(batch *model.TransactionBatch) (bool, error) {
	for _, tx := range batch.Transactions {
		hash, err := tx.PayloadHash()
		if err != nil {
			return false, fmt.Errorf("ordering: hash batch transaction: %w", err)
		}
		seen, err := s.replay.Seen(hash)
		if err != nil {
			return false, err
		}
		if seen {
			return false, nil
		}
	}
	return true, nil
}

// OnCollaborationOutcome computes the round that follows completed given
// outcome, packs up to transaction_limit transactions across whole
// batches from that round's pending queue into a stored proposal, defers
// any batch that would overflow the limit to the round after, and evicts
// proposals older than proposal_limit rounds from the prepared ring
// (§4.5 on_collaboration_outcome). It returns the computed next round.
func (s *Service) OnCollaborationOutcome(completed model.Round, outcome Outcome, createdTime time.Time) model.Round {
	next := NextRound(completed, outcome)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.buildProposalLocked(next, createdTime)
	return next
}

func (s *Service) buildProposalLocked(round model.Round, createdTime time.Time) {
	queue := s.pending[round]
	delete(s.pending, round)

	var txs []*model.Transaction
	var overflow []*model.TransactionBatch
	count := 0
	for _, batch := range queue {
		if count+len(batch.Transactions) > s.transactionLimit && s.transactionLimit > 0 {
			overflow = append(overflow, batch)
			continue
		}
		txs = append(txs, batch.Transactions...)
		count += len(batch.Transactions)
	}
	if len(overflow) > 0 {
		deferredRound := round.NextOnRejectOrNothing()
		s.pending[deferredRound] = append(overflow, s.pending[deferredRound]...)
	}

	s.prepared[round] = &model.Proposal{
		ID:           uuid.New(),
		Height:       round.BlockRound,
		CreatedTime:  createdTime,
		Transactions: txs,
	}
	s.order = append(s.order, round)
	for len(s.order) > s.proposalLimit {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.prepared, oldest)
	}
	if s.metrics != nil {
		s.metrics.ProposalsPrepared.Inc()
	}
}

// OnRequestProposal returns the proposal stored for round, or nil if
// absent (§4.5 on_request_proposal).
func (s *Service) OnRequestProposal(round model.Round) *model.Proposal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prepared[round]
}
