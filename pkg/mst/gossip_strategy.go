package mst

import (
	"math/rand"
	"sync"

	"github.com/yacbft/irohad-go/pkg/model"
)

// PropagationStrategy selects the next peer an MST gossip tick should
// target (§4.4, grounded on irohad's gossip_propagation_strategy.hpp).
type PropagationStrategy interface {
	// Next returns the next peer to gossip to, and false if peers is empty.
	Next() (model.Peer, bool)
	// SetPeers replaces the candidate peer set (e.g. on validator set
	// change at a new height).
	SetPeers(peers []model.Peer)
}

// RoundRobinStrategy cycles over a random permutation of the peer set,
// reshuffling once the permutation is exhausted — the default strategy
// named in §4.4.
type RoundRobinStrategy struct {
	mu    sync.Mutex
	peers []model.Peer
	order []int
	pos   int
	rng   *rand.Rand
}

// NewRoundRobinStrategy builds a RoundRobinStrategy over peers.
func NewRoundRobinStrategy(peers []model.Peer, seed int64) *RoundRobinStrategy {
	s := &RoundRobinStrategy{rng: rand.New(rand.NewSource(seed))}
	s.SetPeers(peers)
	return s
}

// SetPeers replaces the peer set and reshuffles the traversal order.
func (s *RoundRobinStrategy) SetPeers(peers []model.Peer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.peers = append([]model.Peer(nil), peers...)
	s.reshuffleLocked()
}

func (s *RoundRobinStrategy) reshuffleLocked() {
	s.order = s.rng.Perm(len(s.peers))
	s.pos = 0
}

// Next returns the next peer in the current permutation, refreshing it
// (a new random permutation) whenever the previous one is exhausted.
func (s *RoundRobinStrategy) Next() (model.Peer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.peers) == 0 {
		return model.Peer{}, false
	}
	if s.pos >= len(s.order) {
		s.reshuffleLocked()
	}
	idx := s.order[s.pos]
	s.pos++
	return s.peers[idx], true
}
