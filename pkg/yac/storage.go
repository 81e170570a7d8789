// Package yac implements Yet Another Consensus: vote storage (C10), the
// ring-gossip state machine (C11), and the consensus gate (C12) of
// §4.9-§4.11.
package yac

import (
	"sync"

	"github.com/yacbft/irohad-go/pkg/crypto"
	"github.com/yacbft/irohad-go/pkg/metrics"
	"github.com/yacbft/irohad-go/pkg/model"
)

// ProcessingState tracks whether this node has already propagated an
// outcome for a round (§4.9).
type ProcessingState int

const (
	NotSentNotProcessed ProcessingState = iota
	SentNotProcessed
	SentProcessed
)

// AnswerKind distinguishes a commit outcome from a reject outcome.
type AnswerKind int

const (
	AnswerCommit AnswerKind = iota
	AnswerReject
)

// Answer is what Storage.Store returns once a proposal bucket reaches
// supermajority (§4.9).
type Answer struct {
	Kind  AnswerKind
	Round model.Round
	Votes []model.Vote
}

// bucket holds the votes received for one (round, proposal_hash) pair,
// deduplicated by public key.
type bucket struct {
	votes map[crypto.PublicKey]model.Vote
	state ProcessingState
}

// Storage is the per-round vote bucket of §4.9, keyed by round and then
// by proposal_hash.
type Storage struct {
	mu sync.Mutex

	buckets map[model.Round]map[crypto.Hash]*bucket

	proposalLimit    uint64
	highestCommitted model.Round
	hasCommitted     bool
	highestRejected  model.Round
	hasRejected      bool

	metrics *metrics.Registry
}

// SetMetrics attaches a metrics registry; nil (the default) records
// nothing.
func (s *Storage) SetMetrics(m *metrics.Registry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = m
}

// DefaultProposalLimit mirrors the ordering service's ring-buffer width;
// §4.9's cleanup strategy uses the same "proposal_limit" config key
// (§6) as the window behind the highest committed/rejected round.
const DefaultProposalLimit = 3

// NewStorage constructs an empty vote storage. A zero proposalLimit
// defaults to DefaultProposalLimit.
func NewStorage(proposalLimit uint64) *Storage {
	if proposalLimit == 0 {
		proposalLimit = DefaultProposalLimit
	}
	return &Storage{
		buckets:       make(map[model.Round]map[crypto.Hash]*bucket),
		proposalLimit: proposalLimit,
	}
}

// Store verifies, deduplicates, and inserts votes into their
// (round, proposal_hash) buckets, then reports whether any touched
// bucket has reached supermajority for clusterSize (§4.9 store).
// Votes with invalid signatures are silently dropped, not rejected as a
// batch — the algorithm names per-vote crypto verification, not an
// all-or-nothing admission of the input slice.
func (s *Storage) Store(votes []model.Vote, clusterSize int) (*Answer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	threshold := model.Supermajority(clusterSize)

	var answer *Answer
	for _, vote := range votes {
		ok, err := vote.Verify()
		if err != nil {
			return nil, err
		}
		if !ok {
			if s.metrics != nil {
				s.metrics.VotesDropped.Inc()
			}
			continue
		}
		if s.isCleanedUpLocked(vote.YacHash.Round) {
			if s.metrics != nil {
				s.metrics.VotesDropped.Inc()
			}
			continue
		}

		b := s.bucketLocked(vote.YacHash.Round, vote.YacHash.ProposalHash)
		b.votes[vote.Signature.PublicKey] = vote
		if s.metrics != nil {
			s.metrics.VotesReceived.Inc()
		}

		if len(b.votes) < threshold {
			continue
		}
		if answer == nil {
			answer = s.resolveLocked(vote.YacHash.Round, b)
			if s.metrics != nil {
				if answer.Kind == AnswerCommit {
					s.metrics.RoundsCommitted.Inc()
				} else {
					s.metrics.RoundsRejected.Inc()
				}
			}
		}
	}
	return answer, nil
}

func (s *Storage) bucketLocked(round model.Round, proposalHash crypto.Hash) *bucket {
	byHash, ok := s.buckets[round]
	if !ok {
		byHash = make(map[crypto.Hash]*bucket)
		s.buckets[round] = byHash
	}
	b, ok := byHash[proposalHash]
	if !ok {
		b = &bucket{votes: make(map[crypto.PublicKey]model.Vote)}
		byHash[proposalHash] = b
	}
	return b
}

// resolveLocked determines Commit vs Reject for a bucket that has just
// reached threshold: commit if every vote in the bucket agrees on
// block_hash, reject otherwise (§4.9).
func (s *Storage) resolveLocked(round model.Round, b *bucket) *Answer {
	var first crypto.Hash
	unanimous := true
	i := 0
	votes := make([]model.Vote, 0, len(b.votes))
	for _, v := range b.votes {
		votes = append(votes, v)
		if i == 0 {
			first = v.YacHash.BlockHash
		} else if v.YacHash.BlockHash != first {
			unanimous = false
		}
		i++
	}

	kind := AnswerReject
	if unanimous {
		kind = AnswerCommit
		s.highestCommitted = round
		s.hasCommitted = true
		if s.hasRejected && !round.Less(s.highestRejected) {
			s.hasRejected = false
		}
	} else {
		s.highestRejected = round
		s.hasRejected = true
	}
	return &Answer{Kind: kind, Round: round, Votes: votes}
}

// MarkProcessing updates the processing state of a round's proposal
// bucket, used by the state machine to record SentNotProcessed /
// SentProcessed transitions (§4.10).
func (s *Storage) MarkProcessing(round model.Round, proposalHash crypto.Hash, state ProcessingState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bucketLocked(round, proposalHash).state = state
}

// ProcessingStateOf reports the processing state of a round's proposal
// bucket.
func (s *Storage) ProcessingStateOf(round model.Round, proposalHash crypto.Hash) ProcessingState {
	s.mu.Lock()
	defer s.mu.Unlock()
	byHash, ok := s.buckets[round]
	if !ok {
		return NotSentNotProcessed
	}
	b, ok := byHash[proposalHash]
	if !ok {
		return NotSentNotProcessed
	}
	return b.state
}

// isCleanedUpLocked reports whether round falls behind the
// proposal_limit cleanup window behind the highest committed or
// rejected round (§4.9 cleanup strategy).
func (s *Storage) isCleanedUpLocked(round model.Round) bool {
	if s.hasCommitted && behindWindow(round, s.highestCommitted, s.proposalLimit) {
		return true
	}
	if s.hasRejected && behindWindow(round, s.highestRejected, s.proposalLimit) {
		return true
	}
	return false
}

func behindWindow(round, reference model.Round, window uint64) bool {
	if round.BlockRound >= reference.BlockRound {
		return false
	}
	return reference.BlockRound-round.BlockRound > window
}

// Erase drops all state for round, reclaiming memory once a round is
// known superseded.
func (s *Storage) Erase(round model.Round) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.buckets, round)
}
