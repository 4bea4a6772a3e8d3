package leaderboard

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/tutu-network/econ/internal/app/ledger"
	"github.com/tutu-network/econ/internal/domain"
	"github.com/tutu-network/econ/internal/infra/filestore"
)

func acct(id string, wallet, bank int64) domain.Account {
	return domain.Account{UserID: id, Balances: domain.Balances{Wallet: wallet, Bank: bank}}
}

func TestTopN_MatchesFullSort(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	var all []domain.Account
	for i := 0; i < 500; i++ {
		all = append(all, acct(fmt.Sprintf("u%03d", i), rng.Int64N(10_000), rng.Int64N(50)*100))
	}

	for _, limit := range []int{1, 7, 100, 600} {
		h := newTopN(limit)
		for _, a := range all {
			h.Offer(a)
		}
		got := h.Sorted()

		want := append([]domain.Account(nil), all...)
		sort.Slice(want, func(i, j int) bool { return below(want[j], want[i]) })
		want = want[:min(limit, len(want))]

		require.Len(t, got, len(want), "limit %d", limit)
		for i := range want {
			require.Equal(t, want[i].UserID, got[i].UserID, "limit %d pos %d", limit, i)
		}
	}
}

func TestTopN_TieBreak(t *testing.T) {
	h := newTopN(2)
	h.Offer(acct("c", 100, 0))
	h.Offer(acct("a", 50, 50))
	h.Offer(acct("b", 0, 100))
	got := h.Sorted()
	require.Equal(t, "a", got[0].UserID)
	require.Equal(t, "b", got[1].UserID)
}

func newTestBoard(t *testing.T) (*Board, *ledger.Engine) {
	t.Helper()
	e := ledger.New(filestore.NewMemory(), domain.DefaultRules(), zaptest.NewLogger(t))
	return New(e, domain.LeaderboardConfig{TopN: 2, MaxTopN: 3}), e
}

func TestBoard(t *testing.T) {
	b, e := newTestBoard(t)
	ctx := context.Background()

	_, err := e.Credit(ctx, ledger.Request{}, "rich", 200_000, "")
	require.NoError(t, err)
	_, err = e.Deposit(ctx, ledger.Request{}, "rich", 150_000)
	require.NoError(t, err)
	_, err = e.Credit(ctx, ledger.Request{}, "mid", 5_000, "")
	require.NoError(t, err)
	_, err = e.Debit(ctx, ledger.Request{}, "poor", 1_000, "")
	require.NoError(t, err)
	_, err = e.GetOrCreate(ctx, "new")
	require.NoError(t, err)

	top, err := b.Top(ctx, 0)
	require.NoError(t, err)
	require.Len(t, top, 2, "default size")
	require.Equal(t, "rich", top[0].UserID)
	require.Equal(t, int64(201_000), top[0].Total)
	require.Equal(t, int64(150_000), top[0].Bank)
	require.Equal(t, "Noble", top[0].Rank)
	require.Equal(t, 2, top[1].Position)
	require.Equal(t, "Worker", top[1].Rank)

	top, err = b.Top(ctx, 50)
	require.NoError(t, err)
	require.Len(t, top, 3, "clamped to max")

	pos, err := b.Position(ctx, "poor")
	require.NoError(t, err)
	require.Equal(t, 4, pos.Position)
	require.Equal(t, "Beggar", pos.Rank)

	_, err = b.Position(ctx, "ghost")
	require.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestLimit(t *testing.T) {
	b := New(nil, domain.LeaderboardConfig{TopN: 10, MaxTopN: 100})
	tests := []struct{ in, want int }{{0, 10}, {-3, 10}, {1, 1}, {55, 55}, {1000, 100}}
	for _, tt := range tests {
		if got := b.Limit(tt.in); got != tt.want {
			t.Errorf("Limit(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
