package validation

import (
	"context"

	"github.com/yacbft/irohad-go/pkg/crypto"
	"github.com/yacbft/irohad-go/pkg/model"
	"github.com/yacbft/irohad-go/pkg/wsv"
)

// Live adapts *wsv.TemporaryWSV's concrete *wsv.Savepoint return type to
// the validation.Savepoint interface, so callers can hand a real
// transaction to Validate while tests hand a fake TemporaryWSV. It also
// exposes Close so callers needing to release the underlying transaction
// (the simulator) can do so without importing pkg/wsv directly.
type Live struct {
	tw *wsv.TemporaryWSV
}

// Wrap adapts a live *wsv.TemporaryWSV for use with Validate.
func Wrap(tw *wsv.TemporaryWSV) *Live {
	return &Live{tw: tw}
}

func (l *Live) GetSignatories(ctx context.Context, accountID string) ([]crypto.PublicKey, error) {
	return l.tw.GetSignatories(ctx, accountID)
}

func (l *Live) GetQuorum(ctx context.Context, accountID string) (uint32, error) {
	return l.tw.GetQuorum(ctx, accountID)
}

func (l *Live) GetAccountPermissions(ctx context.Context, accountID string) (map[string]bool, error) {
	return l.tw.GetAccountPermissions(ctx, accountID)
}

func (l *Live) HasGrantablePermission(ctx context.Context, granteeAccountID, grantorAccountID, permission string) (bool, error) {
	return l.tw.HasGrantablePermission(ctx, granteeAccountID, grantorAccountID, permission)
}

func (l *Live) Savepoint(ctx context.Context, name string) (Savepoint, error) {
	return l.tw.Savepoint(ctx, name)
}

func (l *Live) Execute(ctx context.Context, index int, cmd model.Command) *model.CommandError {
	return l.tw.Execute(ctx, index, cmd)
}

// Close rolls back the underlying transaction if it was not committed.
func (l *Live) Close() error {
	return l.tw.Close()
}
