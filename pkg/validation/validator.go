package validation

import (
	"context"
	"fmt"
	"log"

	"github.com/yacbft/irohad-go/pkg/crypto"
	"github.com/yacbft/irohad-go/pkg/model"
	"github.com/yacbft/irohad-go/pkg/wsv"
)

// Savepoint is the subset of *wsv.Savepoint the validator drives, narrowed
// to an interface so tests can fake a per-transaction savepoint without a
// real Postgres transaction underneath.
type Savepoint interface {
	Release(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// TemporaryWSV is the subset of *wsv.TemporaryWSV the validator drives,
// narrowed to an interface so tests can substitute a fake backend instead
// of a real Postgres connection.
type TemporaryWSV interface {
	GetSignatories(ctx context.Context, accountID string) ([]crypto.PublicKey, error)
	GetQuorum(ctx context.Context, accountID string) (uint32, error)
	GetAccountPermissions(ctx context.Context, accountID string) (map[string]bool, error)
	HasGrantablePermission(ctx context.Context, granteeAccountID, grantorAccountID, permission string) (bool, error)
	Savepoint(ctx context.Context, name string) (Savepoint, error)
	Execute(ctx context.Context, index int, cmd model.Command) *model.CommandError
}

// RejectedTransaction records why a transaction did not survive stateful
// validation: the first command index/kind/code that failed it, or a
// quorum/signature failure with index -1 (spec §4.7 output: "ordered list
// of errors (index, kind, code)").
type RejectedTransaction struct {
	TransactionHash crypto.Hash
	Index           int
	CommandName     string
	Code            int
}

// VerifiedProposal is the output of stateful validation: the subset of
// transactions that passed, in original order, plus the ordered rejection
// list (spec §4.7).
type VerifiedProposal struct {
	Transactions []*model.Transaction
	Rejected     []RejectedTransaction
}

const (
	// CodeQuorumNotMet is used for RejectedTransaction.Code when signature
	// validation (step 1) fails rather than a command execution primitive.
	CodeQuorumNotMet = -1
	// CodePermissionDenied is used when the permission predicate (step 2)
	// rejects a command before execution is attempted.
	CodePermissionDenied = -2
)

// Validator runs the stateful validation algorithm of spec §4.7 against a
// TemporaryWSV.
type Validator struct {
	logger *log.Logger
}

// New constructs a Validator. A nil logger defaults to a package-prefixed
// stderr logger, matching the teacher's constructor convention.
func New(logger *log.Logger) *Validator {
	if logger == nil {
		logger = log.New(log.Writer(), "[validation] ", log.LstdFlags)
	}
	return &Validator{logger: logger}
}

// Validate executes the three-step algorithm of §4.7 for every transaction
// in txs, in order, against temp.
func (v *Validator) Validate(ctx context.Context, temp TemporaryWSV, txs []*model.Transaction) (*VerifiedProposal, error) {
	out := &VerifiedProposal{}
	for txIndex, tx := range txs {
		hash, err := tx.PayloadHash()
		if err != nil {
			return nil, fmt.Errorf("validation: hash transaction %d: %w", txIndex, err)
		}

		if rejected, err := v.checkQuorum(ctx, temp, tx); err != nil {
			return nil, err
		} else if rejected {
			out.Rejected = append(out.Rejected, RejectedTransaction{
				TransactionHash: hash,
				Index:           -1,
				CommandName:     "",
				Code:            CodeQuorumNotMet,
			})
			continue
		}

		rejection, err := v.executeTransaction(ctx, temp, tx, hash)
		if err != nil {
			return nil, err
		}
		if rejection != nil {
			out.Rejected = append(out.Rejected, *rejection)
			continue
		}
		out.Transactions = append(out.Transactions, tx)
	}
	return out, nil
}

// checkQuorum implements step 1: count signatures whose public key is a
// registered signatory of the creator, deduping by public key so a
// signature list with repeated keys cannot inflate the count past the
// number of distinct matching signatories (the "sum-equality" guard of
// §4.7 step 1).
func (v *Validator) checkQuorum(ctx context.Context, temp TemporaryWSV, tx *model.Transaction) (rejected bool, err error) {
	signatories, err := temp.GetSignatories(ctx, tx.CreatorAccountID)
	if err != nil {
		return false, fmt.Errorf("validation: get signatories for %s: %w", tx.CreatorAccountID, err)
	}
	registered := make(map[crypto.PublicKey]bool, len(signatories))
	for _, pub := range signatories {
		registered[pub] = true
	}

	seen := make(map[crypto.PublicKey]bool, len(tx.Signatures))
	count := 0
	for _, sig := range tx.Signatures {
		if !registered[sig.PublicKey] || seen[sig.PublicKey] {
			continue
		}
		seen[sig.PublicKey] = true
		count++
	}

	quorum, err := temp.GetQuorum(ctx, tx.CreatorAccountID)
	if err != nil {
		return false, fmt.Errorf("validation: get quorum for %s: %w", tx.CreatorAccountID, err)
	}
	return uint32(count) < quorum, nil
}

// executeTransaction implements steps 2 and 3: permission-check every
// command, then execute the transaction's commands under its own
// savepoint, releasing on full success and rolling back on the first
// failure (spec §4.6 invariant, §4.7 step 3).
func (v *Validator) executeTransaction(ctx context.Context, temp TemporaryWSV, tx *model.Transaction, hash crypto.Hash) (*RejectedTransaction, error) {
	sp, err := temp.Savepoint(ctx, fmt.Sprintf("tx_%x", hash[:8]))
	if err != nil {
		return nil, fmt.Errorf("validation: open savepoint: %w", err)
	}
	ctx = wsv.WithCreator(ctx, tx.CreatorAccountID)

	for cmdIndex, cmd := range tx.Commands {
		if denied, err := v.checkPermission(ctx, temp, tx.CreatorAccountID, cmd); err != nil {
			_ = sp.Rollback(ctx)
			return nil, err
		} else if denied {
			if err := sp.Rollback(ctx); err != nil {
				return nil, fmt.Errorf("validation: rollback savepoint after permission denial: %w", err)
			}
			return &RejectedTransaction{
				TransactionHash: hash,
				Index:           cmdIndex,
				CommandName:     cmd.CommandName(),
				Code:            CodePermissionDenied,
			}, nil
		}
	}

	for cmdIndex, cmd := range tx.Commands {
		if cerr := temp.Execute(ctx, cmdIndex, cmd); cerr != nil {
			if err := sp.Rollback(ctx); err != nil {
				return nil, fmt.Errorf("validation: rollback savepoint after command failure: %w", err)
			}
			return &RejectedTransaction{
				TransactionHash: hash,
				Index:           cmdIndex,
				CommandName:     cerr.CommandName,
				Code:            cerr.Code,
			}, nil
		}
	}

	if err := sp.Release(ctx); err != nil {
		return nil, fmt.Errorf("validation: release savepoint: %w", err)
	}
	return nil, nil
}

// checkPermission implements step 2: the creator must hold the command's
// required permission either via accumulated role permissions, or as a
// grantable permission the affected account explicitly extended to them.
// Commands that target the creator's own account for the self-manageable
// kinds are exempt (see selfExempt).
func (v *Validator) checkPermission(ctx context.Context, temp TemporaryWSV, creatorAccountID string, cmd model.Command) (denied bool, err error) {
	perm, affectedAccountID := requiredPermission(cmd, creatorAccountID)
	if perm == "" {
		return false, nil
	}
	if selfExempt(cmd, creatorAccountID, affectedAccountID) {
		return false, nil
	}

	rolePerms, err := temp.GetAccountPermissions(ctx, creatorAccountID)
	if err != nil {
		return false, fmt.Errorf("validation: get role permissions for %s: %w", creatorAccountID, err)
	}
	if rolePerms[perm] {
		return false, nil
	}

	if affectedAccountID == "" || affectedAccountID == creatorAccountID {
		return true, nil
	}
	granted, err := temp.HasGrantablePermission(ctx, creatorAccountID, affectedAccountID, perm)
	if err != nil {
		return false, fmt.Errorf("validation: get grantable permission: %w", err)
	}
	return !granted, nil
}
