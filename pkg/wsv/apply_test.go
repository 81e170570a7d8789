package wsv

import (
	"context"
	"testing"
	"time"

	"github.com/yacbft/irohad-go/pkg/model"
)

func Test_ApplyBlock_CommitsAndIndexesTransaction(t *testing.T) {
	s := newTestStore(t)
	seedDomainAndRole(t, s)
	ctx := context.Background()

	var pub [32]byte
	pub[0] = 0xEF
	tw, err := s.BeginTransaction(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if cerr := tw.Execute(ctx, 0, &model.CreateAccount{AccountName: "carol", DomainID: "test", PublicKey: pub}); cerr != nil {
		t.Fatalf("seed account: %+v", cerr)
	}
	if err := tw.Commit(); err != nil {
		t.Fatalf("commit seed account: %v", err)
	}
	defer s.db.ExecContext(ctx, `DELETE FROM account WHERE account_id = 'carol@test'`)

	tx := &model.Transaction{
		CreatorAccountID: "carol@test",
		CreatedTime:      time.UnixMilli(1).UTC(),
		Quorum:           1,
		Commands: []model.Command{&model.AddAssetQuantity{
			AccountID: "carol@test", AssetID: "coin#test", Amount: "5",
		}},
	}
	block := &model.Block{Height: 42, CreatedTime: time.UnixMilli(2).UTC(), Transactions: []*model.Transaction{tx}}

	if err := s.ApplyBlock(ctx, block); err != nil {
		t.Fatalf("apply block: %v", err)
	}
	defer func() {
		s.db.ExecContext(ctx, `DELETE FROM height_by_hash WHERE height = 42`)
		s.db.ExecContext(ctx, `DELETE FROM index_by_creator_height WHERE height = 42`)
		s.db.ExecContext(ctx, `DELETE FROM index_by_id_height_asset WHERE height = 42`)
	}()

	balance, err := s.GetAssetBalance(ctx, "carol@test", "coin#test")
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}
	if balance != "5" {
		t.Errorf("expected balance 5, got %s", balance)
	}

	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM index_by_creator_height WHERE account_id = 'carol@test' AND height = 42`).Scan(&count); err != nil {
		t.Fatalf("query index_by_creator_height: %v", err)
	}
	if count != 1 {
		t.Errorf("expected one index_by_creator_height row, got %d", count)
	}

	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM index_by_id_height_asset WHERE account_id = 'carol@test' AND height = 42 AND asset_id = 'coin#test'`).Scan(&count); err != nil {
		t.Fatalf("query index_by_id_height_asset: %v", err)
	}
	if count != 1 {
		t.Errorf("expected one index_by_id_height_asset row, got %d", count)
	}
}

func Test_ApplyBlock_FailureRollsBackEntireBlock(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tx := &model.Transaction{
		CreatorAccountID: "nobody@test",
		CreatedTime:      time.UnixMilli(1).UTC(),
		Quorum:           1,
		Commands: []model.Command{&model.AddAssetQuantity{
			AccountID: "nobody@test", AssetID: "coin#test", Amount: "5",
		}},
	}
	block := &model.Block{Height: 43, CreatedTime: time.UnixMilli(2).UTC(), Transactions: []*model.Transaction{tx}}

	if err := s.ApplyBlock(ctx, block); err == nil {
		t.Fatal("expected apply to fail for a nonexistent account")
	}

	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM height_by_hash WHERE height = 43`).Scan(&count); err != nil {
		t.Fatalf("query height_by_hash: %v", err)
	}
	if count != 0 {
		t.Errorf("expected no index rows after a failed apply, got %d", count)
	}
}
