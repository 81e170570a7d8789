package wsv

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/yacbft/irohad-go/pkg/crypto"
	"github.com/yacbft/irohad-go/pkg/model"
)

// ErrNotFound is returned by queries that target a missing account, role,
// asset, or domain.
var ErrNotFound = errors.New("wsv: not found")

// GetSignatories returns the registered signatory public keys of account,
// used by the stateful validator's signature-quorum check (§4.7).
func getSignatories(ctx context.Context, q queryer, accountID string) ([]crypto.PublicKey, error) {
	rows, err := q.QueryContext(ctx, `SELECT public_key FROM account_has_signatory WHERE account_id = $1`, accountID)
	if err != nil {
		return nil, fmt.Errorf("wsv: query signatories: %w", err)
	}
	defer rows.Close()

	var out []crypto.PublicKey
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("wsv: scan signatory: %w", err)
		}
		pub, err := crypto.PublicKeyFromBytes(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, pub)
	}
	return out, rows.Err()
}

// GetQuorum returns the account's currently registered signature quorum.
func getQuorum(ctx context.Context, q queryer, accountID string) (uint32, error) {
	var quorum int
	err := q.QueryRowContext(ctx, `SELECT quorum FROM account WHERE account_id = $1`, accountID).Scan(&quorum)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: account %s", ErrNotFound, accountID)
	}
	if err != nil {
		return 0, fmt.Errorf("wsv: query quorum: %w", err)
	}
	return uint32(quorum), nil
}

// GetAccountRoles returns the roles appended to account.
func getAccountRoles(ctx context.Context, q queryer, accountID string) ([]string, error) {
	rows, err := q.QueryContext(ctx, `SELECT role_id FROM account_has_roles WHERE account_id = $1`, accountID)
	if err != nil {
		return nil, fmt.Errorf("wsv: query account roles: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, fmt.Errorf("wsv: scan role: %w", err)
		}
		out = append(out, role)
	}
	return out, rows.Err()
}

// GetRolePermissions returns the permission set of a single role.
func getRolePermissions(ctx context.Context, q queryer, roleID string) (map[string]bool, error) {
	rows, err := q.QueryContext(ctx, `SELECT permission FROM role_has_permissions WHERE role_id = $1`, roleID)
	if err != nil {
		return nil, fmt.Errorf("wsv: query role permissions: %w", err)
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var perm string
		if err := rows.Scan(&perm); err != nil {
			return nil, fmt.Errorf("wsv: scan permission: %w", err)
		}
		out[perm] = true
	}
	return out, rows.Err()
}

// GetAccountPermissions returns the union of permissions granted by every
// role appended to account, the creator's "accumulated role permissions"
// of §4.7 step 2.
func getAccountPermissions(ctx context.Context, q queryer, accountID string) (map[string]bool, error) {
	roles, err := getAccountRoles(ctx, q, accountID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool)
	for _, role := range roles {
		perms, err := getRolePermissions(ctx, q, role)
		if err != nil {
			return nil, err
		}
		for perm := range perms {
			out[perm] = true
		}
	}
	return out, nil
}

// HasGrantablePermission reports whether grantorAccountID explicitly
// granted permission to granteeAccountID (§4.7 step 2's "grantable
// permission explicitly granted by the affected account").
func hasGrantablePermission(ctx context.Context, q queryer, granteeAccountID, grantorAccountID, permission string) (bool, error) {
	var exists bool
	err := q.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM account_has_grantable_permissions
			WHERE permittee_account_id = $1 AND account_id = $2 AND permission = $3
		)`, granteeAccountID, grantorAccountID, permission).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("wsv: query grantable permission: %w", err)
	}
	return exists, nil
}

// GetAssetBalance returns an account's balance of an asset as a decimal
// string, "0" if the account has never held the asset.
func getAssetBalance(ctx context.Context, q queryer, accountID, assetID string) (string, error) {
	var amount string
	err := q.QueryRowContext(ctx, `SELECT amount::text FROM account_has_asset_balance WHERE account_id = $1 AND asset_id = $2`, accountID, assetID).Scan(&amount)
	if errors.Is(err, sql.ErrNoRows) {
		return "0", nil
	}
	if err != nil {
		return "", fmt.Errorf("wsv: query asset balance: %w", err)
	}
	return amount, nil
}

// GetValidatorSet returns the ordered peer list read from world state,
// the validator set "as of the height of the most recently committed
// block" (§3 Peer).
func getValidatorSet(ctx context.Context, q queryer) (model.ValidatorSet, error) {
	rows, err := q.QueryContext(ctx, `SELECT public_key, network_address FROM peer ORDER BY ordinal`)
	if err != nil {
		return nil, fmt.Errorf("wsv: query validator set: %w", err)
	}
	defer rows.Close()

	var out model.ValidatorSet
	for rows.Next() {
		var raw []byte
		var addr string
		if err := rows.Scan(&raw, &addr); err != nil {
			return nil, fmt.Errorf("wsv: scan peer: %w", err)
		}
		pub, err := crypto.PublicKeyFromBytes(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, model.Peer{NetworkAddress: addr, PublicKey: pub})
	}
	return out, rows.Err()
}

// getAccountDetail returns an account's free-form detail JSON blob as a
// map, for SetAccountDetail reads.
func getAccountDetail(ctx context.Context, q queryer, accountID string) (map[string]string, error) {
	var raw []byte
	err := q.QueryRowContext(ctx, `SELECT data FROM account WHERE account_id = $1`, accountID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: account %s", ErrNotFound, accountID)
	}
	if err != nil {
		return nil, fmt.Errorf("wsv: query account detail: %w", err)
	}
	out := make(map[string]string)
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, fmt.Errorf("wsv: decode account detail: %w", err)
		}
	}
	return out, nil
}
