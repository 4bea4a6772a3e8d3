package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/tutu-network/econ/internal/domain"
	"github.com/tutu-network/econ/internal/infra/storetest"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestStoreConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) domain.Store { return newTestDB(t) })
}

func TestMigrations_TablesExist(t *testing.T) {
	db := newTestDB(t)

	for _, table := range []string{"accounts", "transactions", "clans", "clan_members", "requests"} {
		var count int
		err := db.db.QueryRow(
			`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, table,
		).Scan(&count)
		if err != nil {
			t.Fatalf("checking table %s: %v", table, err)
		}
		if count != 1 {
			t.Errorf("table %s not found in database", table)
		}
	}
}

func TestOpen_Reopen(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	err = db.Atomic(context.Background(), func(tx domain.Tx) error {
		return tx.PutAccount(domain.NewAccount("alice", domain.Balances{Wallet: 42}, now))
	})
	if err != nil {
		t.Fatalf("Atomic() error: %v", err)
	}
	db.Close()

	db, err = Open(dir)
	if err != nil {
		t.Fatalf("reopen error: %v", err)
	}
	defer db.Close()
	accts, err := db.Accounts(context.Background())
	if err != nil {
		t.Fatalf("Accounts() error: %v", err)
	}
	if len(accts) != 1 || accts[0].Wallet != 42 {
		t.Errorf("accounts = %+v, want alice with 42", accts)
	}
}

func TestOpen_EmptyDir(t *testing.T) {
	if _, err := Open(""); err == nil {
		t.Error("Open(\"\") should fail")
	}
}

func TestCheckConstraint_NegativeWallet(t *testing.T) {
	db := newTestDB(t)
	err := db.Atomic(context.Background(), func(tx domain.Tx) error {
		return tx.PutAccount(domain.NewAccount("neg", domain.Balances{Wallet: -1}, time.Now()))
	})
	if !domain.IsRetryable(err) {
		t.Errorf("negative wallet err = %v, want storage error from CHECK", err)
	}
}

func TestTimeRoundTrip(t *testing.T) {
	ts := time.Date(2026, 3, 1, 23, 59, 59, 123456789, time.FixedZone("WIB", 7*3600))
	got := parseTime(formatTime(ts))
	if !got.Equal(ts) {
		t.Errorf("round trip = %v, want %v", got, ts)
	}
	if timePtr(nullTime(nil)) != nil {
		t.Error("nil time should stay nil")
	}
}
