package actions

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/tutu-network/econ/internal/app/ledger"
	"github.com/tutu-network/econ/internal/domain"
	"github.com/tutu-network/econ/internal/infra/filestore"
)

// fixedRand always succeeds (or fails) and always picks the top of a range.
type fixedRand struct {
	roll float64
	low  bool
}

func (f fixedRand) Int64N(n int64) int64 {
	if f.low {
		return 0
	}
	return n - 1
}
func (f fixedRand) Float64() float64 { return f.roll }

var (
	succeed = fixedRand{roll: 0}
	fail    = fixedRand{roll: 0.99}
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newTestResolver(t *testing.T, rules domain.Rules, rnd Rand) (*Resolver, *ledger.Engine) {
	t.Helper()
	e := ledger.New(filestore.NewMemory(), rules, zaptest.NewLogger(t))
	return New(e, rnd), e
}

func at(ts time.Time) ledger.Request { return ledger.Request{Now: ts} }

func balance(t *testing.T, e *ledger.Engine, id string) domain.Account {
	t.Helper()
	a, err := e.GetOrCreate(context.Background(), id)
	require.NoError(t, err)
	return a
}

// open creates accounts with the starting balances.
func open(t *testing.T, e *ledger.Engine, ids ...string) {
	t.Helper()
	for _, id := range ids {
		balance(t, e, id)
	}
}

// ─── Work ───────────────────────────────────────────────────────────────────

func TestWork_CooldownScenario(t *testing.T) {
	rules := domain.DefaultRules()
	rules.Jobs = []domain.Job{{Name: "Miner", MinPayout: 200, MaxPayout: 800}}
	rules.WorkCooldown = 60 * time.Minute
	r, e := newTestResolver(t, rules, nil)
	ctx := context.Background()

	res, err := r.Work(ctx, at(t0), "u")
	require.NoError(t, err)
	require.Equal(t, "Miner", res.Job)
	require.GreaterOrEqual(t, res.Payout, int64(200))
	require.LessOrEqual(t, res.Payout, int64(800))
	require.Equal(t, 1000+res.Payout, res.Wallet)
	require.Equal(t, int64(1), res.WorkCount)
	require.True(t, res.ReadyAt.Equal(t0.Add(time.Hour)))

	_, err = r.Work(ctx, at(t0.Add(time.Second)), "u")
	require.ErrorIs(t, err, domain.ErrCooldownActive)
	var cd *domain.CooldownError
	require.True(t, errors.As(err, &cd))
	require.Equal(t, "work", cd.Action)
	require.InDelta(t, float64(60*time.Minute), float64(cd.Remaining), float64(time.Second))

	require.Equal(t, 1000+res.Payout, balance(t, e, "u").Wallet, "rejected work pays nothing")

	_, err = r.Work(ctx, at(t0.Add(time.Hour)), "u")
	require.NoError(t, err)
	require.Equal(t, int64(2), balance(t, e, "u").WorkCount)
}

func TestWork_PayoutBounds(t *testing.T) {
	rules := domain.DefaultRules()
	rules.Jobs = []domain.Job{{Name: "A", MinPayout: 10, MaxPayout: 20}, {Name: "B", MinPayout: 100, MaxPayout: 300}}

	tests := []struct {
		name string
		rnd  fixedRand
		job  string
		pay  int64
	}{
		{"top", fixedRand{}, "B", 300},
		{"bottom", fixedRand{low: true}, "A", 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, e := newTestResolver(t, rules, tt.rnd)
			res, err := r.Work(context.Background(), at(t0), "u")
			require.NoError(t, err)
			require.Equal(t, tt.job, res.Job)
			require.Equal(t, tt.pay, res.Payout)

			recs, err := e.Records(context.Background(), "u", 0)
			require.NoError(t, err)
			require.Len(t, recs, 1)
			require.Equal(t, domain.TxWork, recs[0].Kind)
			require.Equal(t, tt.job, recs[0].Metadata["job"])
		})
	}
}

// ─── Daily ──────────────────────────────────────────────────────────────────

func TestDaily_Streak(t *testing.T) {
	r, e := newTestResolver(t, domain.DefaultRules(), fixedRand{low: true})
	ctx := context.Background()
	day := func(d int) time.Time { return time.Date(2026, 3, d, 20, 0, 0, 0, time.UTC) }

	steps := []struct {
		when    time.Time
		streak  int
		longest int
	}{
		{day(1), 1, 1},
		{day(2), 2, 2},
		{day(3), 3, 3},
		{day(5), 1, 3}, // skipped the 4th
		{day(6), 2, 3},
	}
	for i, st := range steps {
		res, err := r.Daily(ctx, at(st.when), "u")
		require.NoError(t, err, "step %d", i)
		require.Equal(t, st.streak, res.Streak, "step %d", i)
		require.Equal(t, st.longest, res.LongestStreak, "step %d", i)
		require.Equal(t, int64(500), res.Payout)
	}

	a := balance(t, e, "u")
	require.Equal(t, int64(5), a.DailyCount)
	require.Equal(t, "2026-03-06", a.LastDailyKey)
	require.Equal(t, int64(1000+5*500), a.Wallet)
}

func TestDaily_CalendarGate(t *testing.T) {
	rules := domain.DefaultRules()
	rules.Location = time.FixedZone("WIB", 7*3600)
	r, _ := newTestResolver(t, rules, nil)
	ctx := context.Background()

	// 23:30 and 00:30 local are different calendar days one hour apart.
	first := time.Date(2026, 3, 1, 16, 30, 0, 0, time.UTC)
	_, err := r.Daily(ctx, at(first), "u")
	require.NoError(t, err)

	res, err := r.Daily(ctx, at(first.Add(time.Hour)), "u")
	require.NoError(t, err)
	require.Equal(t, 2, res.Streak)

	// 22:30 local on the same day: gated until local midnight.
	_, err = r.Daily(ctx, at(first.Add(23*time.Hour)), "u")
	var cd *domain.CooldownError
	require.True(t, errors.As(err, &cd))
	require.Equal(t, "daily", cd.Action)
	require.Equal(t, 90*time.Minute, cd.Remaining)
}

// ─── Rob ────────────────────────────────────────────────────────────────────

func TestRob_ForcedSuccess(t *testing.T) {
	rules := domain.DefaultRules()
	for _, rnd := range []fixedRand{succeed, {roll: 0, low: true}} {
		r, e := newTestResolver(t, rules, rnd)
		open(t, e, "victim")
		res, err := r.Rob(context.Background(), at(t0), "robber", "victim")
		require.NoError(t, err)
		require.True(t, res.Success)
		require.GreaterOrEqual(t, res.Stolen, rules.RobMinSteal)
		require.LessOrEqual(t, res.Stolen, int64(300))

		require.Equal(t, 1000-res.Stolen, balance(t, e, "victim").Wallet)
		robber := balance(t, e, "robber")
		require.Equal(t, 1000+res.Stolen, robber.Wallet)
		require.Equal(t, int64(1), robber.RobCount)
		require.True(t, robber.LastRobAt.Equal(t0))
	}
}

func TestRob_FailedPenaltyClamped(t *testing.T) {
	rules := domain.DefaultRules()
	rules.RobFailPenalty = 5000
	r, e := newTestResolver(t, rules, fail)
	open(t, e, "victim")

	res, err := r.Rob(context.Background(), at(t0), "robber", "victim")
	require.NoError(t, err)
	require.False(t, res.Success)
	require.Equal(t, int64(1000), res.Penalty)
	require.Equal(t, int64(0), res.RobberWallet)
	require.Equal(t, int64(2000), res.VictimWallet)

	robber := balance(t, e, "robber")
	require.True(t, robber.Valid())
	require.Equal(t, int64(0), robber.RobCount, "only successful robs count")
	require.NotNil(t, robber.LastRobAt)

	recs, _ := e.Records(context.Background(), "victim", 0)
	require.Equal(t, domain.TxRobCompensation, recs[0].Kind)
	require.Equal(t, "robber", recs[0].CounterpartyID)
}

func TestRob_FailedDefaultPenalty(t *testing.T) {
	r, e := newTestResolver(t, domain.DefaultRules(), fail)
	open(t, e, "victim")
	_, err := r.Rob(context.Background(), at(t0), "robber", "victim")
	require.NoError(t, err)
	require.Equal(t, int64(700), balance(t, e, "robber").Wallet)
	require.Equal(t, int64(1300), balance(t, e, "victim").Wallet)
}

func TestRob_Preconditions(t *testing.T) {
	ctx := context.Background()

	t.Run("self", func(t *testing.T) {
		r, _ := newTestResolver(t, domain.DefaultRules(), succeed)
		_, err := r.Rob(ctx, at(t0), "u", "u")
		require.ErrorIs(t, err, domain.ErrSelfTarget)
	})

	t.Run("cooldown on robber only", func(t *testing.T) {
		r, e := newTestResolver(t, domain.DefaultRules(), fail)
		open(t, e, "v1")
		_, err := r.Rob(ctx, at(t0), "robber", "v1")
		require.NoError(t, err)

		_, err = r.Rob(ctx, at(t0.Add(time.Minute)), "robber", "v2")
		var cd *domain.CooldownError
		require.True(t, errors.As(err, &cd))
		require.Equal(t, 29*time.Minute, cd.Remaining)

		// The victim of the first attempt can still rob.
		_, err = r.Rob(ctx, at(t0.Add(time.Minute)), "v1", "robber")
		require.NoError(t, err)
	})

	t.Run("cooldown checked before target balance", func(t *testing.T) {
		r, e := newTestResolver(t, domain.DefaultRules(), fail)
		open(t, e, "v1")
		_, err := r.Rob(ctx, at(t0), "robber", "v1")
		require.NoError(t, err)
		_, err = e.Debit(ctx, at(t0), "poor", 1000, "")
		require.NoError(t, err)

		_, err = r.Rob(ctx, at(t0.Add(time.Minute)), "robber", "poor")
		require.ErrorIs(t, err, domain.ErrCooldownActive)
	})

	t.Run("target too poor before robber too poor", func(t *testing.T) {
		r, e := newTestResolver(t, domain.DefaultRules(), succeed)
		_, err := e.Debit(ctx, at(t0), "poor", 600, "")
		require.NoError(t, err)
		_, err = e.Debit(ctx, at(t0), "broke", 1000, "")
		require.NoError(t, err)
		open(t, e, "rich")

		_, err = r.Rob(ctx, at(t0), "broke", "poor")
		require.ErrorIs(t, err, domain.ErrTargetTooPoor)

		_, err = r.Rob(ctx, at(t0), "broke", "rich")
		require.ErrorIs(t, err, domain.ErrRobberTooPoor)

		a := balance(t, e, "broke")
		require.Nil(t, a.LastRobAt, "rejected attempts do not start the cooldown")
	})

	t.Run("unknown victim", func(t *testing.T) {
		r, e := newTestResolver(t, domain.DefaultRules(), succeed)
		_, err := r.Rob(ctx, at(t0), "robber", "ghost")
		require.ErrorIs(t, err, domain.ErrAccountNotFound)

		accts, err := e.Accounts(ctx)
		require.NoError(t, err)
		require.Empty(t, accts, "a rejected rob opens no accounts")

		// Once the victim exists the same robber may try, no cooldown was spent.
		open(t, e, "ghost")
		res, err := r.Rob(ctx, at(t0), "robber", "ghost")
		require.NoError(t, err)
		require.True(t, res.Success)
	})
}

func TestRob_Replay(t *testing.T) {
	r, e := newTestResolver(t, domain.DefaultRules(), succeed)
	open(t, e, "victim")
	req := ledger.Request{ID: "wa-msg-77", Now: t0}

	first, err := r.Rob(context.Background(), req, "robber", "victim")
	require.NoError(t, err)
	second, err := r.Rob(context.Background(), req, "robber", "victim")
	require.NoError(t, err, "a redelivered request replays instead of hitting the cooldown")
	require.Equal(t, first.Stolen, second.Stolen)
	require.True(t, first.ReadyAt.Equal(second.ReadyAt))
	require.Equal(t, int64(700), balance(t, e, "victim").Wallet)
}

// ─── Concurrency ────────────────────────────────────────────────────────────

// Ten robbers hit one victim at once. Serialized, each success takes 30% of
// what is left until the wallet drops under the minimum target balance, so
// the outcome is the same in any order.
func TestRob_ConcurrentSameVictim(t *testing.T) {
	r, e := newTestResolver(t, domain.DefaultRules(), succeed)
	ctx := context.Background()
	_, err := e.Credit(ctx, at(t0), "victim", 10_000, "")
	require.NoError(t, err)

	const robbers = 10
	results := make([]RobResult, robbers)
	errs := make([]error, robbers)
	var wg sync.WaitGroup
	for i := 0; i < robbers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = r.Rob(ctx, at(t0), fmt.Sprintf("robber-%d", i), "victim")
		}(i)
	}
	wg.Wait()

	var wins, stolen int64
	for i, err := range errs {
		if err != nil {
			require.ErrorIs(t, err, domain.ErrTargetTooPoor)
			continue
		}
		require.True(t, results[i].Success)
		wins++
		stolen += results[i].Stolen
	}
	require.Equal(t, int64(9), wins)
	require.Equal(t, int64(10_555), stolen)
	require.Equal(t, int64(445), balance(t, e, "victim").Wallet)

	accts, err := e.Accounts(ctx)
	require.NoError(t, err)
	var total int64
	for _, a := range accts {
		require.True(t, a.Valid(), "%s has a negative balance", a.UserID)
		total += a.Total()
	}
	require.Equal(t, int64(11_000+robbers*1000), total, "robbing moves money, never creates it")
}

func TestWork_RacesTransfer(t *testing.T) {
	r, e := newTestResolver(t, domain.DefaultRules(), succeed)
	ctx := context.Background()
	users := []string{"u0", "u1", "u2", "u3", "u4", "u5"}
	open(t, e, users...)
	open(t, e, "sink")

	payouts := make([]int64, len(users))
	var wg sync.WaitGroup
	for i, u := range users {
		wg.Add(2)
		go func(i int, u string) {
			defer wg.Done()
			res, err := r.Work(ctx, at(t0), u)
			assert.NoError(t, err)
			payouts[i] = res.Payout
		}(i, u)
		go func(u string) {
			defer wg.Done()
			_, err := e.Transfer(ctx, at(t0), u, "sink", 400)
			assert.NoError(t, err)
		}(u)
	}
	wg.Wait()

	for i, u := range users {
		a := balance(t, e, u)
		require.Positive(t, payouts[i])
		require.Equal(t, 1000+payouts[i]-400, a.Wallet, u)
		require.Equal(t, int64(1), a.WorkCount, u)
	}
	require.Equal(t, int64(1000+400*int64(len(users))), balance(t, e, "sink").Wallet)
}
