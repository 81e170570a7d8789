package wsv

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/yacbft/irohad-go/pkg/crypto"
	"github.com/yacbft/irohad-go/pkg/model"
)

// Command error codes (§7 "Command" group).
const (
	CodeNotFound       = 1
	CodeAlreadyExists  = 2
	CodeInsufficient   = 3
	CodeInvalidArgument = 4
	CodeInternal       = 5
)

// TemporaryWSV is a top-level transaction over world state that will be
// rolled back on Close unless explicitly Committed — it exists for the
// duration of one proposal's stateful validation and is single-threaded
// (§3, §5, §4.6).
type TemporaryWSV struct {
	tx         *sql.Tx
	savepoints []string
	done       bool
}

// BeginTransaction opens a TemporaryWSV (§4.6).
func (s *Store) BeginTransaction(ctx context.Context) (*TemporaryWSV, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("wsv: begin transaction: %w", err)
	}
	return &TemporaryWSV{tx: tx}, nil
}

// Commit releases the underlying transaction, making its effects
// permanent. Only Store.ApplyBlock calls this (for the synchronizer and
// the genesis bootstrap), never for a Simulator's candidate-block temp
// WSV (§3: "destroyed on any outcome").
func (w *TemporaryWSV) Commit() error {
	w.done = true
	return w.tx.Commit()
}

// Close rolls back the transaction if it has not already been committed.
// Safe to call multiple times and after Commit.
func (w *TemporaryWSV) Close() error {
	if w.done {
		return nil
	}
	w.done = true
	return w.tx.Rollback()
}

// Savepoint is a nested, roll-back-on-drop checkpoint inside a
// TemporaryWSV. Nested savepoints form a stack: releasing an inner
// savepoint must precede releasing its outer (§5).
type Savepoint struct {
	wsv    *TemporaryWSV
	name   string
	closed bool
}

// Savepoint opens a new nested savepoint named name.
func (w *TemporaryWSV) Savepoint(ctx context.Context, name string) (*Savepoint, error) {
	if _, err := w.tx.ExecContext(ctx, "SAVEPOINT "+quoteIdent(name)); err != nil {
		return nil, fmt.Errorf("wsv: create savepoint %s: %w", name, err)
	}
	w.savepoints = append(w.savepoints, name)
	return &Savepoint{wsv: w, name: name}, nil
}

// Release commits the savepoint's effects into the enclosing transaction.
// It must be the innermost open savepoint.
func (sp *Savepoint) Release(ctx context.Context) error {
	if sp.closed {
		return nil
	}
	if err := sp.requireInnermost(); err != nil {
		return err
	}
	if _, err := sp.wsv.tx.ExecContext(ctx, "RELEASE SAVEPOINT "+quoteIdent(sp.name)); err != nil {
		return fmt.Errorf("wsv: release savepoint %s: %w", sp.name, err)
	}
	sp.pop()
	return nil
}

// Rollback discards the savepoint's effects, leaving the enclosing
// transaction as it was before the savepoint was opened.
func (sp *Savepoint) Rollback(ctx context.Context) error {
	if sp.closed {
		return nil
	}
	if err := sp.requireInnermost(); err != nil {
		return err
	}
	if _, err := sp.wsv.tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+quoteIdent(sp.name)); err != nil {
		return fmt.Errorf("wsv: rollback savepoint %s: %w", sp.name, err)
	}
	sp.pop()
	return nil
}

func (sp *Savepoint) requireInnermost() error {
	n := len(sp.wsv.savepoints)
	if n == 0 || sp.wsv.savepoints[n-1] != sp.name {
		return fmt.Errorf("wsv: savepoint %s is not the innermost open savepoint", sp.name)
	}
	return nil
}

func (sp *Savepoint) pop() {
	sp.closed = true
	sp.wsv.savepoints = sp.wsv.savepoints[:len(sp.wsv.savepoints)-1]
}

func quoteIdent(name string) string {
	// Savepoint names are generated internally (tx_<hex hash prefix>), never from
	// untrusted input, but quoting defensively costs nothing.
	return `"` + name + `"`
}

// Query surface mirroring Store's, scoped to this transaction so reads
// observe the transaction's own uncommitted writes.

func (w *TemporaryWSV) GetSignatories(ctx context.Context, accountID string) ([]crypto.PublicKey, error) {
	return getSignatories(ctx, w.tx, accountID)
}

func (w *TemporaryWSV) GetQuorum(ctx context.Context, accountID string) (uint32, error) {
	return getQuorum(ctx, w.tx, accountID)
}

func (w *TemporaryWSV) GetAccountPermissions(ctx context.Context, accountID string) (map[string]bool, error) {
	return getAccountPermissions(ctx, w.tx, accountID)
}

func (w *TemporaryWSV) HasGrantablePermission(ctx context.Context, granteeAccountID, grantorAccountID, permission string) (bool, error) {
	return hasGrantablePermission(ctx, w.tx, granteeAccountID, grantorAccountID, permission)
}

func (w *TemporaryWSV) GetAssetBalance(ctx context.Context, accountID, assetID string) (string, error) {
	return getAssetBalance(ctx, w.tx, accountID, assetID)
}

func (w *TemporaryWSV) GetValidatorSet(ctx context.Context) (model.ValidatorSet, error) {
	return getValidatorSet(ctx, w.tx)
}
