package filestore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tutu-network/econ/internal/domain"
	"github.com/tutu-network/econ/internal/infra/storetest"
)

func TestMemoryConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) domain.Store { return NewMemory() })
}

func TestFileConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) domain.Store {
		s, err := Open(filepath.Join(t.TempDir(), "econ.json"))
		require.NoError(t, err)
		return s
	})
}

func TestOpen_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "econ.json")
	s, err := Open(path)
	require.NoError(t, err)

	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.Atomic(context.Background(), func(tx domain.Tx) error {
		if err := tx.PutAccount(domain.NewAccount("alice", domain.Balances{Wallet: 7, Bank: 3}, now)); err != nil {
			return err
		}
		return tx.PutClan(domain.Clan{ID: "c-1", Name: "Owls", LeaderID: "alice", Members: []string{"alice"}, Level: 1, CreatedAt: now})
	}))

	_, err = os.Stat(path + ".tmp")
	require.True(t, errors.Is(err, os.ErrNotExist), "temp file is renamed away")

	s2, err := Open(path)
	require.NoError(t, err)
	accts, err := s2.Accounts(context.Background())
	require.NoError(t, err)
	require.Len(t, accts, 1)
	require.Equal(t, int64(10), accts[0].Total())

	require.NoError(t, s2.Atomic(context.Background(), func(tx domain.Tx) error {
		c, err := tx.ClanByName("owls")
		require.NoError(t, err)
		require.Equal(t, "alice", c.LeaderID)
		return nil
	}))
}

func TestOpen_CorruptSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "econ.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))
	_, err := Open(path)
	require.Error(t, err)
}

func TestAtomic_CanceledContext(t *testing.T) {
	s := NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.Atomic(ctx, func(tx domain.Tx) error { return nil })
	require.ErrorIs(t, err, domain.ErrStorageUnavailable)
}

func TestAccounts_ReturnsCopies(t *testing.T) {
	s := NewMemory()
	ts := time.Now()
	require.NoError(t, s.Atomic(context.Background(), func(tx domain.Tx) error {
		a := domain.NewAccount("alice", domain.Balances{}, ts)
		a.LastWorkAt = &ts
		return tx.PutAccount(a)
	}))
	accts, _ := s.Accounts(context.Background())
	*accts[0].LastWorkAt = ts.Add(time.Hour)

	again, _ := s.Accounts(context.Background())
	require.True(t, again[0].LastWorkAt.Equal(ts))
}
