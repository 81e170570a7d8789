// Package loader implements C13, the block loader: retrieval of a single
// block by hash (checking the consensus result cache before asking a
// peer) and streaming retrieval of a contiguous range of blocks from a
// peer, per §4.12.
package loader

import (
	"context"
	"errors"
	"fmt"

	"github.com/yacbft/irohad-go/pkg/crypto"
	"github.com/yacbft/irohad-go/pkg/model"
)

// ErrHashMismatch is returned when a peer's response does not match the
// requested hash; §7 classifies this as a loader error handled by
// rotating to the next signatory, never surfaced upward.
var ErrHashMismatch = errors.New("loader: block hash mismatch")

// ResultCache is the subset of yac.ResultCache the loader consults
// before making a network round trip.
type ResultCache interface {
	Get(hash crypto.Hash) (*model.Block, bool)
}

// BlockClient is the peer-facing block-loader RPC client (§6 BlockLoader:
// RetrieveBlock / RetrieveBlocks).
type BlockClient interface {
	RetrieveBlock(ctx context.Context, peer model.Peer, hash crypto.Hash) (*model.Block, error)
	RetrieveBlocks(ctx context.Context, peer model.Peer, fromHeight uint64) (BlockStream, error)
}

// BlockStream yields blocks from a peer in ascending height order. Next
// returns (nil, false, nil) once the peer reports no more blocks.
type BlockStream interface {
	Next(ctx context.Context) (*model.Block, bool, error)
	Close() error
}

// Loader is the block loader of §4.12.
type Loader struct {
	cache  ResultCache
	client BlockClient
}

func New(cache ResultCache, client BlockClient) *Loader {
	return &Loader{cache: cache, client: client}
}

// RetrieveBlock looks up hash in the consensus result cache first; on a
// miss it asks peer's block-loader service, then verifies the returned
// block's payload hash matches hash. A mismatch yields ErrHashMismatch,
// not the mismatched block.
func (l *Loader) RetrieveBlock(ctx context.Context, peer model.Peer, hash crypto.Hash) (*model.Block, error) {
	if cached, ok := l.cache.Get(hash); ok {
		return cached, nil
	}

	block, err := l.client.RetrieveBlock(ctx, peer, hash)
	if err != nil {
		return nil, fmt.Errorf("loader: retrieve block from peer: %w", err)
	}
	if block == nil {
		return nil, nil
	}

	got, err := block.PayloadHash()
	if err != nil {
		return nil, fmt.Errorf("loader: hash retrieved block: %w", err)
	}
	if got != hash {
		return nil, ErrHashMismatch
	}
	return block, nil
}

// RetrieveBlocks streams blocks[fromHeight:] from peer until the peer
// reports no more blocks, an error occurs, or until is reached (if
// until is non-nil, the stream stops after yielding the block whose
// payload hash equals *until).
func (l *Loader) RetrieveBlocks(ctx context.Context, peer model.Peer, fromHeight uint64, until *crypto.Hash) ([]*model.Block, error) {
	stream, err := l.client.RetrieveBlocks(ctx, peer, fromHeight)
	if err != nil {
		return nil, fmt.Errorf("loader: open block stream: %w", err)
	}
	defer stream.Close()

	var blocks []*model.Block
	for {
		block, ok, err := stream.Next(ctx)
		if err != nil {
			return blocks, fmt.Errorf("loader: stream block: %w", err)
		}
		if !ok {
			return blocks, nil
		}
		blocks = append(blocks, block)

		if until != nil {
			hash, err := block.PayloadHash()
			if err != nil {
				return blocks, fmt.Errorf("loader: hash streamed block: %w", err)
			}
			if hash == *until {
				return blocks, nil
			}
		}
	}
}
