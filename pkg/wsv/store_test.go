package wsv

import (
	"context"
	"database/sql"
	"os"
	"testing"

	_ "github.com/lib/pq"
	"github.com/yacbft/irohad-go/pkg/model"
)

// Tests in this file exercise the real Postgres wire protocol and are
// skipped unless IROHAD_TEST_DATABASE_URL is set, mirroring how the rest
// of the corpus gates integration tests on an environment-provided DSN
// rather than mocking database/sql.
var testDB *sql.DB

func TestMain(m *testing.M) {
	dsn := os.Getenv("IROHAD_TEST_DATABASE_URL")
	if dsn == "" {
		os.Exit(0)
	}
	var err error
	testDB, err = sql.Open("postgres", dsn)
	if err != nil {
		panic("wsv: connect test database: " + err.Error())
	}
	code := m.Run()
	testDB.Close()
	os.Exit(code)
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	if testDB == nil {
		t.Skip("IROHAD_TEST_DATABASE_URL not set")
	}
	s := &Store{db: testDB}
	if err := s.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	return s
}

func seedDomainAndRole(t *testing.T, s *Store) {
	t.Helper()
	ctx := context.Background()
	if _, err := s.db.ExecContext(ctx, `INSERT INTO role (role_id) VALUES ('user') ON CONFLICT DO NOTHING`); err != nil {
		t.Fatalf("seed role: %v", err)
	}
	if _, err := s.db.ExecContext(ctx, `INSERT INTO domain (domain_id, default_role) VALUES ('test', 'user') ON CONFLICT DO NOTHING`); err != nil {
		t.Fatalf("seed domain: %v", err)
	}
	if _, err := s.db.ExecContext(ctx, `INSERT INTO asset (asset_id, domain_id, precision) VALUES ('coin#test', 'test', 2) ON CONFLICT DO NOTHING`); err != nil {
		t.Fatalf("seed asset: %v", err)
	}
}

func Test_TemporaryWSV_CommitPersistsAccount(t *testing.T) {
	s := newTestStore(t)
	seedDomainAndRole(t, s)
	ctx := context.Background()

	tw, err := s.BeginTransaction(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	var pub [32]byte
	pub[0] = 0xAB
	cmd := &model.CreateAccount{AccountName: "alice", DomainID: "test", PublicKey: pub}
	if cerr := tw.Execute(ctx, 0, cmd); cerr != nil {
		t.Fatalf("create account: %+v", cerr)
	}
	if err := tw.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	defer s.db.ExecContext(ctx, `DELETE FROM account WHERE account_id = 'alice@test'`)

	quorum, err := s.GetQuorum(ctx, "alice@test")
	if err != nil {
		t.Fatalf("get quorum: %v", err)
	}
	if quorum != 1 {
		t.Errorf("expected quorum 1, got %d", quorum)
	}
}

func Test_TemporaryWSV_RollbackDiscardsWrites(t *testing.T) {
	s := newTestStore(t)
	seedDomainAndRole(t, s)
	ctx := context.Background()

	tw, err := s.BeginTransaction(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	var pub [32]byte
	pub[0] = 0xCD
	cmd := &model.CreateAccount{AccountName: "bob", DomainID: "test", PublicKey: pub}
	if cerr := tw.Execute(ctx, 0, cmd); cerr != nil {
		t.Fatalf("create account: %+v", cerr)
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if _, err := s.GetQuorum(ctx, "bob@test"); err == nil {
		t.Error("expected account to not exist after rollback")
	}
}

func Test_Savepoint_NestedReleaseOrderEnforced(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tw, err := s.BeginTransaction(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer tw.Close()

	outer, err := tw.Savepoint(ctx, "outer")
	if err != nil {
		t.Fatalf("open outer: %v", err)
	}
	inner, err := tw.Savepoint(ctx, "inner")
	if err != nil {
		t.Fatalf("open inner: %v", err)
	}

	if err := outer.Release(ctx); err == nil {
		t.Error("expected releasing outer before inner to fail")
	}
	if err := inner.Release(ctx); err != nil {
		t.Fatalf("release inner: %v", err)
	}
	if err := outer.Release(ctx); err != nil {
		t.Fatalf("release outer: %v", err)
	}
}
