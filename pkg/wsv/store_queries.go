package wsv

import (
	"context"

	"github.com/yacbft/irohad-go/pkg/crypto"
	"github.com/yacbft/irohad-go/pkg/model"
)

// The exported methods below run queries against permanent state (outside
// any temporary transaction). TemporaryWSV exposes the identical surface
// against its in-flight transaction so the stateful validator can use
// either uniformly.

func (s *Store) GetSignatories(ctx context.Context, accountID string) ([]crypto.PublicKey, error) {
	return getSignatories(ctx, s.db, accountID)
}

func (s *Store) GetQuorum(ctx context.Context, accountID string) (uint32, error) {
	return getQuorum(ctx, s.db, accountID)
}

func (s *Store) GetAccountPermissions(ctx context.Context, accountID string) (map[string]bool, error) {
	return getAccountPermissions(ctx, s.db, accountID)
}

func (s *Store) HasGrantablePermission(ctx context.Context, granteeAccountID, grantorAccountID, permission string) (bool, error) {
	return hasGrantablePermission(ctx, s.db, granteeAccountID, grantorAccountID, permission)
}

func (s *Store) GetAssetBalance(ctx context.Context, accountID, assetID string) (string, error) {
	return getAssetBalance(ctx, s.db, accountID, assetID)
}

func (s *Store) GetValidatorSet(ctx context.Context) (model.ValidatorSet, error) {
	return getValidatorSet(ctx, s.db)
}

func (s *Store) GetAccountDetail(ctx context.Context, accountID string) (map[string]string, error) {
	return getAccountDetail(ctx, s.db, accountID)
}
