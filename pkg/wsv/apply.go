package wsv

import (
	"context"
	"fmt"

	"github.com/yacbft/irohad-go/pkg/model"
)

// ErrApplyFailed wraps a command execution failure while applying a
// committed block — per §7 this is fatal, never retried in place.
type ErrApplyFailed struct {
	Height  uint64
	TxIndex int
	Cmd     *model.CommandError
}

func (e *ErrApplyFailed) Error() string {
	return fmt.Sprintf("wsv: apply block %d: transaction %d command %s failed with code %d",
		e.Height, e.TxIndex, e.Cmd.CommandName, e.Cmd.Code)
}

// ApplyBlock opens a mutable transaction, executes every command of
// every transaction in block, populates the secondary-index tables in
// the same transaction, and commits (§4.13 PairValid/VoteOther,
// §4.14 "indexing is performed in the same transaction as block
// application"). Unlike a Simulator's TemporaryWSV, this transaction is
// committed on success, never rolled back.
//
// A block applied here has already passed stateful validation (it is
// the verified proposal's surviving transactions); ApplyBlock does not
// re-run permission or quorum checks, only command execution.
func (s *Store) ApplyBlock(ctx context.Context, block *model.Block) error {
	temp, err := s.BeginTransaction(ctx)
	if err != nil {
		return fmt.Errorf("wsv: begin block-apply transaction: %w", err)
	}
	defer temp.Close()

	for txIndex, tx := range block.Transactions {
		for cmdIndex, cmd := range tx.Commands {
			if cmdErr := temp.Execute(ctx, cmdIndex, cmd); cmdErr != nil {
				return &ErrApplyFailed{Height: block.Height, TxIndex: txIndex, Cmd: cmdErr}
			}
		}
		if err := indexTransaction(ctx, temp.tx, block.Height, txIndex, tx); err != nil {
			return fmt.Errorf("wsv: index transaction %d at height %d: %w", txIndex, block.Height, err)
		}
	}

	if err := temp.Commit(); err != nil {
		return fmt.Errorf("wsv: commit block %d: %w", block.Height, err)
	}
	return nil
}

// indexTransaction populates the three secondary-index tables of §6's
// persisted state layout for one transaction within a block.
func indexTransaction(ctx context.Context, q queryer, height uint64, txIndex int, tx *model.Transaction) error {
	hash, err := tx.PayloadHash()
	if err != nil {
		return fmt.Errorf("hash transaction: %w", err)
	}
	if _, err := q.ExecContext(ctx,
		`INSERT INTO height_by_hash (tx_hash, height) VALUES ($1, $2)
		 ON CONFLICT (tx_hash) DO NOTHING`,
		hash[:], height); err != nil {
		return fmt.Errorf("insert height_by_hash: %w", err)
	}

	if _, err := q.ExecContext(ctx,
		`INSERT INTO index_by_creator_height (account_id, height) VALUES ($1, $2)
		 ON CONFLICT (account_id, height) DO NOTHING`,
		tx.CreatorAccountID, height); err != nil {
		return fmt.Errorf("insert index_by_creator_height: %w", err)
	}

	for _, assetID := range assetIDsTouchedBy(tx) {
		if _, err := q.ExecContext(ctx,
			`INSERT INTO index_by_id_height_asset (account_id, height, asset_id, tx_index) VALUES ($1, $2, $3, $4)
			 ON CONFLICT (account_id, height, asset_id, tx_index) DO NOTHING`,
			tx.CreatorAccountID, height, assetID, txIndex); err != nil {
			return fmt.Errorf("insert index_by_id_height_asset: %w", err)
		}
	}
	return nil
}

// assetIDsTouchedBy returns the distinct asset IDs an asset-transfer
// command in tx references, for the (account_id, height, asset_id) ->
// tx_index lookup table (§4.14).
func assetIDsTouchedBy(tx *model.Transaction) []string {
	seen := make(map[string]bool)
	var ids []string
	add := func(assetID string) {
		if assetID == "" || seen[assetID] {
			return
		}
		seen[assetID] = true
		ids = append(ids, assetID)
	}
	for _, cmd := range tx.Commands {
		switch c := cmd.(type) {
		case *model.TransferAsset:
			add(c.AssetID)
		case *model.AddAssetQuantity:
			add(c.AssetID)
		case *model.SubtractAssetQuantity:
			add(c.AssetID)
		}
	}
	return ids
}
