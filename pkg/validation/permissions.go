// Package validation implements the stateful validator (§4.7): per-proposal
// signature-quorum and command-permission checking, executing each valid
// transaction against a temporary WSV under its own savepoint.
package validation

import "github.com/yacbft/irohad-go/pkg/model"

// Permission name constants, one per command kind requiring a permission
// check beyond "command targets the creator's own account" (spec §4.7 step
// 2 names the mechanism — "permission predicate" per kind — but leaves kind
// naming to the implementation; these follow the command names themselves
// so a predicate failure is traceable straight back to its command).
const (
	PermAddAssetQuantity      = "can_add_asset_quantity"
	PermSubtractAssetQuantity = "can_subtract_asset_quantity"
	PermTransferAsset         = "can_transfer"
	PermReceiveAsset          = "can_receive"
	PermCreateAccount         = "can_create_account"
	PermCreateAsset           = "can_create_asset"
	PermCreateDomain          = "can_create_domain"
	PermCreateRole            = "can_create_role"
	PermAppendRole            = "can_append_role"
	PermDetachRole            = "can_detach_role"
	PermGrantPermission       = "can_grant"
	PermRevokePermission      = "can_revoke"
	PermAddSignatory          = "can_add_signatory"
	PermRemoveSignatory       = "can_remove_signatory"
	PermSetQuorum             = "can_set_quorum"
	PermSetAccountDetail      = "can_set_detail"
	PermAddPeer               = "can_add_peer"
)

// requiredPermission returns the permission a transaction creator must
// hold to execute cmd — either on their own accumulated role permissions,
// or as a grantable permission the affected account explicitly extended to
// them (spec §4.7 step 2).
//
// affectedAccountID is the account whose state the command would mutate
// ("" when the command is domain/role/asset/peer-scoped rather than
// account-scoped, in which case only the role-permission branch applies).
func requiredPermission(cmd model.Command, creatorAccountID string) (perm string, affectedAccountID string) {
	switch c := cmd.(type) {
	case *model.AddAssetQuantity:
		return PermAddAssetQuantity, c.AccountID
	case *model.SubtractAssetQuantity:
		return PermSubtractAssetQuantity, c.AccountID
	case *model.TransferAsset:
		return PermTransferAsset, c.SrcAccountID
	case *model.CreateAccount:
		return PermCreateAccount, ""
	case *model.CreateAsset:
		return PermCreateAsset, ""
	case *model.CreateDomain:
		return PermCreateDomain, ""
	case *model.CreateRole:
		return PermCreateRole, ""
	case *model.AppendRole:
		return PermAppendRole, c.AccountID
	case *model.DetachRole:
		return PermDetachRole, c.AccountID
	case *model.GrantPermission:
		return PermGrantPermission, c.AccountID
	case *model.RevokePermission:
		return PermRevokePermission, c.AccountID
	case *model.AddSignatory:
		return PermAddSignatory, c.AccountID
	case *model.RemoveSignatory:
		return PermRemoveSignatory, c.AccountID
	case *model.SetAccountQuorum:
		return PermSetQuorum, c.AccountID
	case *model.SetAccountDetail:
		return PermSetAccountDetail, c.AccountID
	case *model.AddPeer:
		return PermAddPeer, ""
	default:
		return "", ""
	}
}

// selfExempt reports whether a command targeting the creator's own
// account never needs a permission check (e.g. TransferAsset from one's
// own account, AddSignatory on one's own account) — the common "any
// account may manage itself" carve-out most permission-based ledgers
// grant, grounded in spec §4.7's framing of permission checks as
// protecting "the affected account" from others, not from its own owner.
func selfExempt(cmd model.Command, creatorAccountID, affectedAccountID string) bool {
	if affectedAccountID == "" || affectedAccountID != creatorAccountID {
		return false
	}
	switch cmd.(type) {
	case *model.TransferAsset, *model.AddSignatory, *model.RemoveSignatory,
		*model.SetAccountDetail, *model.AddAssetQuantity, *model.SubtractAssetQuantity:
		return true
	default:
		return false
	}
}
