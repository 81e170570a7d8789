package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/yacbft/irohad-go/pkg/crypto"
	"github.com/yacbft/irohad-go/pkg/model"
)

// FakeYacNetwork is an in-process YacNetwork for tests and single-process
// demos: SendState calls straight into the handler registered for the
// target peer instead of going over a socket.
type FakeYacNetwork struct {
	mu       sync.RWMutex
	handlers map[crypto.PublicKey]func(ctx context.Context, from model.Peer, votes []model.Vote) error
}

func NewFakeYacNetwork() *FakeYacNetwork {
	return &FakeYacNetwork{handlers: make(map[crypto.PublicKey]func(context.Context, model.Peer, []model.Vote) error)}
}

// Register installs the handler a peer uses to receive votes.
func (n *FakeYacNetwork) Register(peer model.Peer, handler func(ctx context.Context, from model.Peer, votes []model.Vote) error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.handlers[peer.PublicKey] = handler
}

// SendState implements YacNetwork by dispatching directly to the
// registered handler for peer.
func (n *FakeYacNetwork) SendState(ctx context.Context, peer model.Peer, votes []model.Vote) error {
	n.mu.RLock()
	handler, ok := n.handlers[peer.PublicKey]
	n.mu.RUnlock()
	if !ok {
		return fmt.Errorf("transport: no peer registered for %s", peer.NetworkAddress)
	}
	return handler(ctx, peer, votes)
}
