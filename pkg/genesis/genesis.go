// Package genesis implements the genesis block bootstrap of §6: parsing
// the genesis block file, verifying its bootstrap signature, and applying
// its commands through the same executor that drives every later block,
// before the node otherwise starts.
package genesis

import (
	"context"
	"fmt"
	"os"

	"github.com/yacbft/irohad-go/pkg/crypto"
	"github.com/yacbft/irohad-go/pkg/model"
)

// WorldState is the command executor the genesis block runs through; it is
// satisfied by *wsv.Store.
type WorldState interface {
	ApplyBlock(ctx context.Context, block *model.Block) error
}

// BlockStore records the genesis block at height 1 alongside every later
// block; it is satisfied by *storage.Store.
type BlockStore interface {
	Insert(height uint64, block *model.Block) error
}

// Load reads and decodes the genesis block file at path. It does not
// verify or apply the block.
func Load(path string) (*model.Block, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("genesis: read block file: %w", err)
	}
	block, err := model.DecodeBlock(data)
	if err != nil {
		return nil, fmt.Errorf("genesis: decode block file: %w", err)
	}
	return block, nil
}

// Verify checks the genesis block invariants of §6 ("Genesis block"): it
// must sit at height 1 with an all-zero prev_hash, and carry at least one
// signature that verifies against its own payload hash. A fresh node has
// no validator set to check a signature's identity against yet — that set
// is exactly what this block is about to install — so any single valid
// signature counts as the required bootstrap signature.
func Verify(block *model.Block) error {
	if block.Height != 1 {
		return fmt.Errorf("genesis: block height must be 1, got %d", block.Height)
	}
	if !block.PrevHash.IsZero() {
		return fmt.Errorf("genesis: prev_hash must be zero, got %s", block.PrevHash)
	}
	if len(block.Signatures) == 0 {
		return fmt.Errorf("genesis: block carries no bootstrap signature")
	}

	payloadHash, err := block.PayloadHash()
	if err != nil {
		return fmt.Errorf("genesis: hash block payload: %w", err)
	}

	for _, sig := range block.Signatures {
		if crypto.Verify(sig, payloadHash.Bytes()) {
			return nil
		}
	}
	return fmt.Errorf("genesis: no signature verifies against the block payload")
}

// Bootstrap loads, verifies, applies, and commits the genesis block found
// at path. It does not check whether the ledger already holds committed
// state: cmd/irohad calls it only when the block store is empty, and
// callers that support --overwrite_ledger clear storage themselves before
// calling Bootstrap.
func Bootstrap(ctx context.Context, path string, world WorldState, blocks BlockStore) (*model.Block, error) {
	block, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := Verify(block); err != nil {
		return nil, err
	}
	if err := world.ApplyBlock(ctx, block); err != nil {
		return nil, fmt.Errorf("genesis: apply block: %w", err)
	}
	if err := blocks.Insert(block.Height, block); err != nil {
		return nil, fmt.Errorf("genesis: commit block to block store: %w", err)
	}
	return block, nil
}
