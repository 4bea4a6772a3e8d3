// Package storetest is a behavioural suite every domain.Store backend must pass.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tutu-network/econ/internal/domain"
)

// Factory opens a fresh, empty store. The suite closes it.
type Factory func(t *testing.T) domain.Store

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// Run executes the full suite against stores built by open.
func Run(t *testing.T, open Factory) {
	t.Run("AccountLifecycle", func(t *testing.T) { testAccountLifecycle(t, open(t)) })
	t.Run("VersionConflict", func(t *testing.T) { testVersionConflict(t, open(t)) })
	t.Run("RollbackOnError", func(t *testing.T) { testRollback(t, open(t)) })
	t.Run("Records", func(t *testing.T) { testRecords(t, open(t)) })
	t.Run("Clans", func(t *testing.T) { testClans(t, open(t)) })
	t.Run("Requests", func(t *testing.T) { testRequests(t, open(t)) })
	t.Run("ConcurrentIncrements", func(t *testing.T) { testConcurrent(t, open(t)) })
}

func atomic(t *testing.T, s domain.Store, fn func(tx domain.Tx) error) error {
	t.Helper()
	return s.Atomic(context.Background(), fn)
}

func testAccountLifecycle(t *testing.T, s domain.Store) {
	t.Cleanup(func() { s.Close() })

	err := atomic(t, s, func(tx domain.Tx) error {
		_, err := tx.Account("alice")
		require.ErrorIs(t, err, domain.ErrAccountNotFound)
		return tx.PutAccount(domain.NewAccount("alice", domain.Balances{Wallet: 1000}, epoch))
	})
	require.NoError(t, err)

	last := epoch.Add(time.Minute)
	err = atomic(t, s, func(tx domain.Tx) error {
		a, err := tx.Account("alice")
		require.NoError(t, err)
		require.Equal(t, int64(1), a.Version)
		require.Equal(t, int64(1000), a.Wallet)
		require.Nil(t, a.LastWorkAt)

		a.Wallet, a.Bank = 400, 600
		a.LastWorkAt = &last
		a.Streak, a.LongestStreak = 2, 3
		a.LastDailyKey = "2026-03-01"
		a.ClanID = "clan-1"
		return tx.PutAccount(a)
	})
	require.NoError(t, err)

	accts, err := s.Accounts(context.Background())
	require.NoError(t, err)
	require.Len(t, accts, 1)
	a := accts[0]
	require.Equal(t, int64(2), a.Version)
	require.Equal(t, int64(400), a.Wallet)
	require.Equal(t, int64(600), a.Bank)
	require.NotNil(t, a.LastWorkAt)
	require.True(t, a.LastWorkAt.Equal(last))
	require.Equal(t, 3, a.LongestStreak)
	require.Equal(t, "2026-03-01", a.LastDailyKey)
	require.Equal(t, "clan-1", a.ClanID)
	require.True(t, a.CreatedAt.Equal(epoch))
}

func testVersionConflict(t *testing.T, s domain.Store) {
	t.Cleanup(func() { s.Close() })

	require.NoError(t, atomic(t, s, func(tx domain.Tx) error {
		return tx.PutAccount(domain.NewAccount("bob", domain.Balances{Wallet: 10}, epoch))
	}))

	// A second insert of the same user is a conflict, not an overwrite.
	err := atomic(t, s, func(tx domain.Tx) error {
		return tx.PutAccount(domain.NewAccount("bob", domain.Balances{Wallet: 99}, epoch))
	})
	require.ErrorIs(t, err, domain.ErrConflict)

	// Stale version.
	err = atomic(t, s, func(tx domain.Tx) error {
		a, err := tx.Account("bob")
		require.NoError(t, err)
		a.Version = 7
		return tx.PutAccount(a)
	})
	require.ErrorIs(t, err, domain.ErrConflict)

	accts, err := s.Accounts(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(10), accts[0].Wallet)
}

func testRollback(t *testing.T, s domain.Store) {
	t.Cleanup(func() { s.Close() })
	boom := errors.New("boom")

	err := atomic(t, s, func(tx domain.Tx) error {
		require.NoError(t, tx.PutAccount(domain.NewAccount("carol", domain.Balances{Wallet: 5}, epoch)))
		require.NoError(t, tx.AppendRecord(record("r-1", "carol", 5)))
		require.NoError(t, tx.PutRequest(domain.RequestRecord{ID: "req-1", Result: []byte(`{}`), CreatedAt: epoch}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	accts, err := s.Accounts(context.Background())
	require.NoError(t, err)
	require.Empty(t, accts)

	recs, err := s.Records(context.Background(), "carol", 0)
	require.NoError(t, err)
	require.Empty(t, recs)

	require.NoError(t, atomic(t, s, func(tx domain.Tx) error {
		_, found, err := tx.Request("req-1")
		require.NoError(t, err)
		require.False(t, found)
		return nil
	}))
}

func record(id, user string, amount int64) domain.TransactionRecord {
	return domain.TransactionRecord{
		ID:           id,
		UserID:       user,
		Kind:         domain.TxCredit,
		Entry:        domain.EntryCredit,
		Amount:       amount,
		BalanceAfter: amount,
		Timestamp:    epoch,
	}
}

func testRecords(t *testing.T, s domain.Store) {
	t.Cleanup(func() { s.Close() })

	require.NoError(t, atomic(t, s, func(tx domain.Tx) error {
		for i, id := range []string{"r-1", "r-2", "r-3"} {
			r := record(id, "dave", int64(i+1))
			if id == "r-2" {
				r.Metadata = map[string]string{"job": "Chef"}
				r.CounterpartyID = "erin"
			}
			if err := tx.AppendRecord(r); err != nil {
				return err
			}
		}
		return tx.AppendRecord(record("r-x", "erin", 1))
	}))

	recs, err := s.Records(context.Background(), "dave", 0)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	require.Equal(t, "r-3", recs[0].ID, "newest first")
	require.Equal(t, "r-1", recs[2].ID)
	require.Equal(t, "Chef", recs[1].Metadata["job"])
	require.Equal(t, "erin", recs[1].CounterpartyID)
	require.Equal(t, domain.TxCredit, recs[1].Kind)
	require.True(t, recs[1].Timestamp.Equal(epoch))

	recs, err = s.Records(context.Background(), "dave", 2)
	require.NoError(t, err)
	require.Len(t, recs, 2)
}

func testClans(t *testing.T, s domain.Store) {
	t.Cleanup(func() { s.Close() })

	clan := domain.Clan{ID: "c-1", Name: "Wolves", LeaderID: "alice", Members: []string{"alice", "bob"}, Level: 1, CreatedAt: epoch}
	require.NoError(t, atomic(t, s, func(tx domain.Tx) error { return tx.PutClan(clan) }))

	err := atomic(t, s, func(tx domain.Tx) error {
		return tx.PutClan(domain.Clan{ID: "c-2", Name: "  wolves ", LeaderID: "carol", Members: []string{"carol"}, Level: 1, CreatedAt: epoch})
	})
	require.ErrorIs(t, err, domain.ErrDuplicateName)

	require.NoError(t, atomic(t, s, func(tx domain.Tx) error {
		c, err := tx.ClanByName("WOLVES")
		require.NoError(t, err)
		require.Equal(t, "c-1", c.ID)
		require.Equal(t, []string{"alice", "bob"}, c.Members)
		require.Equal(t, int64(1), c.Version)

		c.Members = append(c.Members, "aaron")
		c.Bank = 250
		return tx.PutClan(c)
	}))

	require.NoError(t, atomic(t, s, func(tx domain.Tx) error {
		c, err := tx.ClanByID("c-1")
		require.NoError(t, err)
		require.Equal(t, []string{"alice", "bob", "aaron"}, c.Members, "join order kept")
		require.Equal(t, int64(250), c.Bank)

		stale := c
		stale.Version = 1
		require.ErrorIs(t, tx.PutClan(stale), domain.ErrConflict)
		return nil
	}))

	require.NoError(t, atomic(t, s, func(tx domain.Tx) error { return tx.DeleteClan("c-1") }))
	require.NoError(t, atomic(t, s, func(tx domain.Tx) error {
		_, err := tx.ClanByID("c-1")
		require.ErrorIs(t, err, domain.ErrClanNotFound)
		_, err = tx.ClanByName("wolves")
		require.ErrorIs(t, err, domain.ErrClanNotFound)
		require.ErrorIs(t, tx.DeleteClan("c-1"), domain.ErrClanNotFound)
		// The name is free again.
		return tx.PutClan(domain.Clan{ID: "c-3", Name: "Wolves", LeaderID: "carol", Members: []string{"carol"}, Level: 1, CreatedAt: epoch})
	}))
}

func testRequests(t *testing.T, s domain.Store) {
	t.Cleanup(func() { s.Close() })

	require.NoError(t, atomic(t, s, func(tx domain.Tx) error {
		return tx.PutRequest(domain.RequestRecord{ID: "req-9", Fingerprint: "alice|work|", Result: []byte(`{"ok":true}`), CreatedAt: epoch})
	}))
	require.NoError(t, atomic(t, s, func(tx domain.Tx) error {
		r, found, err := tx.Request("req-9")
		require.NoError(t, err)
		require.True(t, found)
		require.JSONEq(t, `{"ok":true}`, string(r.Result))
		require.Equal(t, "alice|work|", r.Fingerprint)

		_, found, err = tx.Request("req-unknown")
		require.NoError(t, err)
		require.False(t, found)
		return nil
	}))
}

// testConcurrent retries on conflict the way the ledger does; every increment
// must land exactly once.
func testConcurrent(t *testing.T, s domain.Store) {
	t.Cleanup(func() { s.Close() })
	require.NoError(t, atomic(t, s, func(tx domain.Tx) error {
		return tx.PutAccount(domain.NewAccount("pool", domain.Balances{}, epoch))
	}))

	const workers, each = 4, 10
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < each; i++ {
				for {
					err := s.Atomic(context.Background(), func(tx domain.Tx) error {
						a, err := tx.Account("pool")
						if err != nil {
							return err
						}
						a.Wallet++
						return tx.PutAccount(a)
					})
					if errors.Is(err, domain.ErrConflict) {
						continue
					}
					if err != nil {
						t.Errorf("increment: %v", err)
					}
					break
				}
			}
		}()
	}
	wg.Wait()

	accts, err := s.Accounts(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(workers*each), accts[0].Wallet)
}
