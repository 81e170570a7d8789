package wsv

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/lib/pq"
	"github.com/yacbft/irohad-go/pkg/model"
)

type creatorKey struct{}

// WithCreator attaches the transaction-creator account ID to ctx so
// grant/revoke execution primitives can resolve the grantor without
// threading it through every Execute call (§4.7's "account granting the
// permission" is always the transaction creator, never the command's own
// AccountID field).
func WithCreator(ctx context.Context, creatorAccountID string) context.Context {
	return context.WithValue(ctx, creatorKey{}, creatorAccountID)
}

func creatorFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(creatorKey{}).(string)
	return v, ok
}

// Execute applies a single command's effects to the transaction, returning
// a typed CommandError on any domain failure (unknown account, asset,
// insufficient balance, duplicate registration, ...). Infrastructure
// faults (a failed query, an unknown command kind) are also returned as a
// CommandError, with Code set to CodeInternal.
func (w *TemporaryWSV) Execute(ctx context.Context, index int, cmd model.Command) *model.CommandError {
	var err error
	switch c := cmd.(type) {
	case *model.AddAssetQuantity:
		err = w.execAddAssetQuantity(ctx, c)
	case *model.SubtractAssetQuantity:
		err = w.execSubtractAssetQuantity(ctx, c)
	case *model.TransferAsset:
		err = w.execTransferAsset(ctx, c)
	case *model.CreateAccount:
		err = w.execCreateAccount(ctx, c)
	case *model.CreateAsset:
		err = w.execCreateAsset(ctx, c)
	case *model.CreateDomain:
		err = w.execCreateDomain(ctx, c)
	case *model.CreateRole:
		err = w.execCreateRole(ctx, c)
	case *model.AppendRole:
		err = w.execAppendRole(ctx, c)
	case *model.DetachRole:
		err = w.execDetachRole(ctx, c)
	case *model.GrantPermission:
		err = w.execGrantPermission(ctx, c)
	case *model.RevokePermission:
		err = w.execRevokePermission(ctx, c)
	case *model.AddSignatory:
		err = w.execAddSignatory(ctx, c)
	case *model.RemoveSignatory:
		err = w.execRemoveSignatory(ctx, c)
	case *model.SetAccountQuorum:
		err = w.execSetAccountQuorum(ctx, c)
	case *model.SetAccountDetail:
		err = w.execSetAccountDetail(ctx, c)
	case *model.AddPeer:
		err = w.execAddPeer(ctx, c)
	default:
		err = fmt.Errorf("wsv: unexecutable command kind %T", cmd)
	}
	if err == nil {
		return nil
	}
	var cerr *model.CommandError
	if errors.As(err, &cerr) {
		cerr.Index = index
		return cerr
	}
	return &model.CommandError{CommandName: cmd.CommandName(), Code: CodeInternal, Index: index}
}

func cmdErr(name string, code int) error {
	return &model.CommandError{CommandName: name, Code: code}
}

func (w *TemporaryWSV) accountExists(ctx context.Context, accountID string) (bool, error) {
	var exists bool
	err := w.tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM account WHERE account_id = $1)`, accountID).Scan(&exists)
	return exists, err
}

func (w *TemporaryWSV) execAddAssetQuantity(ctx context.Context, c *model.AddAssetQuantity) error {
	amount, ok := new(big.Rat).SetString(c.Amount)
	if !ok {
		return cmdErr(c.CommandName(), CodeInvalidArgument)
	}
	if amount.Sign() <= 0 {
		return cmdErr(c.CommandName(), CodeInvalidArgument)
	}
	if ok, err := w.accountExists(ctx, c.AccountID); err != nil {
		return err
	} else if !ok {
		return cmdErr(c.CommandName(), CodeNotFound)
	}
	_, err := w.tx.ExecContext(ctx, `
		INSERT INTO account_has_asset_balance (account_id, asset_id, amount)
		VALUES ($1, $2, $3)
		ON CONFLICT (account_id, asset_id) DO UPDATE SET amount = account_has_asset_balance.amount + EXCLUDED.amount
	`, c.AccountID, c.AssetID, c.Amount)
	if err != nil {
		return fmt.Errorf("wsv: add asset quantity: %w", err)
	}
	return nil
}

func (w *TemporaryWSV) execSubtractAssetQuantity(ctx context.Context, c *model.SubtractAssetQuantity) error {
	amount, ok := new(big.Rat).SetString(c.Amount)
	if !ok || amount.Sign() <= 0 {
		return cmdErr(c.CommandName(), CodeInvalidArgument)
	}
	balance, err := getAssetBalance(ctx, w.tx, c.AccountID, c.AssetID)
	if err != nil {
		return err
	}
	have, _ := new(big.Rat).SetString(balance)
	if have.Cmp(amount) < 0 {
		return cmdErr(c.CommandName(), CodeInsufficient)
	}
	_, err = w.tx.ExecContext(ctx, `
		UPDATE account_has_asset_balance SET amount = amount - $3
		WHERE account_id = $1 AND asset_id = $2
	`, c.AccountID, c.AssetID, c.Amount)
	if err != nil {
		return fmt.Errorf("wsv: subtract asset quantity: %w", err)
	}
	return nil
}

func (w *TemporaryWSV) execTransferAsset(ctx context.Context, c *model.TransferAsset) error {
	amount, ok := new(big.Rat).SetString(c.Amount)
	if !ok || amount.Sign() <= 0 {
		return cmdErr(c.CommandName(), CodeInvalidArgument)
	}
	balance, err := getAssetBalance(ctx, w.tx, c.SrcAccountID, c.AssetID)
	if err != nil {
		return err
	}
	have, _ := new(big.Rat).SetString(balance)
	if have.Cmp(amount) < 0 {
		return cmdErr(c.CommandName(), CodeInsufficient)
	}
	if ok, err := w.accountExists(ctx, c.DestAccountID); err != nil {
		return err
	} else if !ok {
		return cmdErr(c.CommandName(), CodeNotFound)
	}
	if _, err := w.tx.ExecContext(ctx, `
		UPDATE account_has_asset_balance SET amount = amount - $3
		WHERE account_id = $1 AND asset_id = $2
	`, c.SrcAccountID, c.AssetID, c.Amount); err != nil {
		return fmt.Errorf("wsv: transfer asset debit: %w", err)
	}
	if _, err := w.tx.ExecContext(ctx, `
		INSERT INTO account_has_asset_balance (account_id, asset_id, amount)
		VALUES ($1, $2, $3)
		ON CONFLICT (account_id, asset_id) DO UPDATE SET amount = account_has_asset_balance.amount + EXCLUDED.amount
	`, c.DestAccountID, c.AssetID, c.Amount); err != nil {
		return fmt.Errorf("wsv: transfer asset credit: %w", err)
	}
	return nil
}

func (w *TemporaryWSV) execCreateAccount(ctx context.Context, c *model.CreateAccount) error {
	accountID := c.AccountName + "@" + c.DomainID
	var defaultRole string
	err := w.tx.QueryRowContext(ctx, `SELECT default_role FROM domain WHERE domain_id = $1`, c.DomainID).Scan(&defaultRole)
	if errors.Is(err, sql.ErrNoRows) {
		return cmdErr(c.CommandName(), CodeNotFound)
	}
	if err != nil {
		return fmt.Errorf("wsv: create account lookup domain: %w", err)
	}

	if _, err := w.tx.ExecContext(ctx, `INSERT INTO account (account_id, domain_id, quorum) VALUES ($1, $2, 1)`, accountID, c.DomainID); err != nil {
		if isUniqueViolation(err) {
			return cmdErr(c.CommandName(), CodeAlreadyExists)
		}
		return fmt.Errorf("wsv: create account: %w", err)
	}
	if _, err := w.tx.ExecContext(ctx, `INSERT INTO account_has_roles (account_id, role_id) VALUES ($1, $2)`, accountID, defaultRole); err != nil {
		return fmt.Errorf("wsv: create account append default role: %w", err)
	}
	if _, err := w.tx.ExecContext(ctx, `INSERT INTO signatory (public_key) VALUES ($1) ON CONFLICT DO NOTHING`, c.PublicKey[:]); err != nil {
		return fmt.Errorf("wsv: create account register signatory: %w", err)
	}
	if _, err := w.tx.ExecContext(ctx, `INSERT INTO account_has_signatory (account_id, public_key) VALUES ($1, $2)`, accountID, c.PublicKey[:]); err != nil {
		return fmt.Errorf("wsv: create account attach signatory: %w", err)
	}
	return nil
}

func (w *TemporaryWSV) execCreateAsset(ctx context.Context, c *model.CreateAsset) error {
	assetID := c.AssetName + "#" + c.DomainID
	if _, err := w.tx.ExecContext(ctx, `INSERT INTO asset (asset_id, domain_id, precision) VALUES ($1, $2, $3)`, assetID, c.DomainID, c.Precision); err != nil {
		if isUniqueViolation(err) {
			return cmdErr(c.CommandName(), CodeAlreadyExists)
		}
		if isForeignKeyViolation(err) {
			return cmdErr(c.CommandName(), CodeNotFound)
		}
		return fmt.Errorf("wsv: create asset: %w", err)
	}
	return nil
}

func (w *TemporaryWSV) execCreateDomain(ctx context.Context, c *model.CreateDomain) error {
	var roleExists bool
	if err := w.tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM role WHERE role_id = $1)`, c.DefaultRole).Scan(&roleExists); err != nil {
		return fmt.Errorf("wsv: create domain lookup role: %w", err)
	}
	if !roleExists {
		return cmdErr(c.CommandName(), CodeNotFound)
	}
	if _, err := w.tx.ExecContext(ctx, `INSERT INTO domain (domain_id, default_role) VALUES ($1, $2)`, c.DomainID, c.DefaultRole); err != nil {
		if isUniqueViolation(err) {
			return cmdErr(c.CommandName(), CodeAlreadyExists)
		}
		return fmt.Errorf("wsv: create domain: %w", err)
	}
	return nil
}

func (w *TemporaryWSV) execCreateRole(ctx context.Context, c *model.CreateRole) error {
	if _, err := w.tx.ExecContext(ctx, `INSERT INTO role (role_id) VALUES ($1)`, c.RoleName); err != nil {
		if isUniqueViolation(err) {
			return cmdErr(c.CommandName(), CodeAlreadyExists)
		}
		return fmt.Errorf("wsv: create role: %w", err)
	}
	for _, perm := range c.Permissions {
		if _, err := w.tx.ExecContext(ctx, `INSERT INTO role_has_permissions (role_id, permission) VALUES ($1, $2)`, c.RoleName, perm); err != nil {
			return fmt.Errorf("wsv: create role grant permission: %w", err)
		}
	}
	return nil
}

func (w *TemporaryWSV) execAppendRole(ctx context.Context, c *model.AppendRole) error {
	var roleExists bool
	if err := w.tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM role WHERE role_id = $1)`, c.RoleName).Scan(&roleExists); err != nil {
		return fmt.Errorf("wsv: append role lookup: %w", err)
	}
	if !roleExists {
		return cmdErr(c.CommandName(), CodeNotFound)
	}
	if _, err := w.tx.ExecContext(ctx, `INSERT INTO account_has_roles (account_id, role_id) VALUES ($1, $2)`, c.AccountID, c.RoleName); err != nil {
		if isUniqueViolation(err) {
			return cmdErr(c.CommandName(), CodeAlreadyExists)
		}
		if isForeignKeyViolation(err) {
			return cmdErr(c.CommandName(), CodeNotFound)
		}
		return fmt.Errorf("wsv: append role: %w", err)
	}
	return nil
}

func (w *TemporaryWSV) execDetachRole(ctx context.Context, c *model.DetachRole) error {
	res, err := w.tx.ExecContext(ctx, `DELETE FROM account_has_roles WHERE account_id = $1 AND role_id = $2`, c.AccountID, c.RoleName)
	if err != nil {
		return fmt.Errorf("wsv: detach role: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return cmdErr(c.CommandName(), CodeNotFound)
	}
	return nil
}

func (w *TemporaryWSV) execGrantPermission(ctx context.Context, c *model.GrantPermission) error {
	// AccountID here is the grantee; the grantor is resolved by the caller
	// (the validator) from the transaction's CreatorAccountID and passed
	// through context via WithCreator, since Command itself carries no
	// notion of "who issued this".
	grantor, ok := creatorFromContext(ctx)
	if !ok {
		return fmt.Errorf("wsv: grant permission: no creator account in context")
	}
	if ok, err := w.accountExists(ctx, c.AccountID); err != nil {
		return err
	} else if !ok {
		return cmdErr(c.CommandName(), CodeNotFound)
	}
	if _, err := w.tx.ExecContext(ctx, `
		INSERT INTO account_has_grantable_permissions (permittee_account_id, account_id, permission)
		VALUES ($1, $2, $3) ON CONFLICT DO NOTHING
	`, c.AccountID, grantor, c.Permission); err != nil {
		return fmt.Errorf("wsv: grant permission: %w", err)
	}
	return nil
}

func (w *TemporaryWSV) execRevokePermission(ctx context.Context, c *model.RevokePermission) error {
	grantor, ok := creatorFromContext(ctx)
	if !ok {
		return fmt.Errorf("wsv: revoke permission: no creator account in context")
	}
	res, err := w.tx.ExecContext(ctx, `
		DELETE FROM account_has_grantable_permissions
		WHERE permittee_account_id = $1 AND account_id = $2 AND permission = $3
	`, c.AccountID, grantor, c.Permission)
	if err != nil {
		return fmt.Errorf("wsv: revoke permission: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return cmdErr(c.CommandName(), CodeNotFound)
	}
	return nil
}

func (w *TemporaryWSV) execAddSignatory(ctx context.Context, c *model.AddSignatory) error {
	if _, err := w.tx.ExecContext(ctx, `INSERT INTO signatory (public_key) VALUES ($1) ON CONFLICT DO NOTHING`, c.PublicKey[:]); err != nil {
		return fmt.Errorf("wsv: add signatory: %w", err)
	}
	if _, err := w.tx.ExecContext(ctx, `
		INSERT INTO account_has_signatory (account_id, public_key) VALUES ($1, $2)
	`, c.AccountID, c.PublicKey[:]); err != nil {
		if isUniqueViolation(err) {
			return cmdErr(c.CommandName(), CodeAlreadyExists)
		}
		if isForeignKeyViolation(err) {
			return cmdErr(c.CommandName(), CodeNotFound)
		}
		return fmt.Errorf("wsv: add signatory: %w", err)
	}
	return nil
}

func (w *TemporaryWSV) execRemoveSignatory(ctx context.Context, c *model.RemoveSignatory) error {
	quorum, err := getQuorum(ctx, w.tx, c.AccountID)
	if err != nil {
		return err
	}
	signatories, err := getSignatories(ctx, w.tx, c.AccountID)
	if err != nil {
		return err
	}
	if uint32(len(signatories))-1 < quorum {
		return cmdErr(c.CommandName(), CodeInvalidArgument)
	}
	res, err := w.tx.ExecContext(ctx, `DELETE FROM account_has_signatory WHERE account_id = $1 AND public_key = $2`, c.AccountID, c.PublicKey[:])
	if err != nil {
		return fmt.Errorf("wsv: remove signatory: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return cmdErr(c.CommandName(), CodeNotFound)
	}
	return nil
}

func (w *TemporaryWSV) execSetAccountQuorum(ctx context.Context, c *model.SetAccountQuorum) error {
	signatories, err := getSignatories(ctx, w.tx, c.AccountID)
	if err != nil {
		return err
	}
	if c.Quorum == 0 || uint32(len(signatories)) < c.Quorum {
		return cmdErr(c.CommandName(), CodeInvalidArgument)
	}
	res, err := w.tx.ExecContext(ctx, `UPDATE account SET quorum = $2 WHERE account_id = $1`, c.AccountID, c.Quorum)
	if err != nil {
		return fmt.Errorf("wsv: set account quorum: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return cmdErr(c.CommandName(), CodeNotFound)
	}
	return nil
}

func (w *TemporaryWSV) execSetAccountDetail(ctx context.Context, c *model.SetAccountDetail) error {
	detail, err := getAccountDetail(ctx, w.tx, c.AccountID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return cmdErr(c.CommandName(), CodeNotFound)
		}
		return err
	}
	detail[c.Key] = c.Value
	raw, err := json.Marshal(detail)
	if err != nil {
		return fmt.Errorf("wsv: encode account detail: %w", err)
	}
	if _, err := w.tx.ExecContext(ctx, `UPDATE account SET data = $2 WHERE account_id = $1`, c.AccountID, raw); err != nil {
		return fmt.Errorf("wsv: set account detail: %w", err)
	}
	return nil
}

func (w *TemporaryWSV) execAddPeer(ctx context.Context, c *model.AddPeer) error {
	if _, err := w.tx.ExecContext(ctx, `INSERT INTO peer (public_key, network_address) VALUES ($1, $2)`, c.PublicKey[:], c.NetworkAddress); err != nil {
		if isUniqueViolation(err) {
			return cmdErr(c.CommandName(), CodeAlreadyExists)
		}
		return fmt.Errorf("wsv: add peer: %w", err)
	}
	return nil
}

// isUniqueViolation and isForeignKeyViolation inspect a lib/pq error code
// (SQLSTATE 23505 / 23503). Kept here rather than importing lib/pq's
// pq.Error type directly in every branch above for readability.
func isUniqueViolation(err error) bool {
	return pqErrorCode(err) == "23505"
}

func isForeignKeyViolation(err error) bool {
	return pqErrorCode(err) == "23503"
}

func pqErrorCode(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}
