// Package actions resolves the earning and adversarial commands.
//
// Each action is a Gated → Evaluate → Settle flow run as one ledger unit of
// work: the gate reads cooldown state from the account itself, evaluation
// draws from the injected Rand, and settlement moves money through the
// session and updates the activity fields.
package actions

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/tutu-network/econ/internal/app/ledger"
	"github.com/tutu-network/econ/internal/domain"
)

// Rand is the randomness the resolvers draw from. Implementations must be
// safe for concurrent use.
type Rand interface {
	// Int64N returns a uniform value in [0, n). n > 0.
	Int64N(n int64) int64
	// Float64 returns a uniform value in [0, 1).
	Float64() float64
}

type globalRand struct{}

func (globalRand) Int64N(n int64) int64 { return rand.Int64N(n) }
func (globalRand) Float64() float64     { return rand.Float64() }

// Resolver runs work, daily and rob against a ledger engine.
type Resolver struct {
	engine *ledger.Engine
	rand   Rand
}

// New creates a resolver. A nil rnd uses the process-wide generator.
func New(engine *ledger.Engine, rnd Rand) *Resolver {
	if rnd == nil {
		rnd = globalRand{}
	}
	return &Resolver{engine: engine, rand: rnd}
}

// between draws a uniform integer in [lo, hi].
func between(r Rand, lo, hi int64) int64 {
	if hi <= lo {
		return lo
	}
	return lo + r.Int64N(hi-lo+1)
}

// ─── Work ───────────────────────────────────────────────────────────────────

// WorkResult is the settled outcome of a work command.
type WorkResult struct {
	Job       string    `json:"job"`
	Payout    int64     `json:"payout"`
	Wallet    int64     `json:"wallet"`
	WorkCount int64     `json:"work_count"`
	ReadyAt   time.Time `json:"ready_at"`
}

// Work pays a random job from the table, at most once per work cooldown.
func (r *Resolver) Work(ctx context.Context, req ledger.Request, userID string) (WorkResult, error) {
	return ledger.Run(ctx, r.engine, req, ledger.Accounts(userID), func(s *ledger.Session) (WorkResult, error) {
		rules, now := s.Rules(), s.Now()

		a, err := s.Account(userID)
		if err != nil {
			return WorkResult{}, err
		}
		if left := domain.Remaining(a.LastWorkAt, rules.WorkCooldown, now); left > 0 {
			return WorkResult{}, &domain.CooldownError{Action: "work", Remaining: left}
		}

		job := rules.Jobs[r.rand.Int64N(int64(len(rules.Jobs)))]
		payout := between(r.rand, job.MinPayout, job.MaxPayout)

		if _, err := s.Credit(userID, payout, ledger.Memo{
			Kind:     domain.TxWork,
			Metadata: map[string]string{"job": job.Name},
		}); err != nil {
			return WorkResult{}, err
		}
		a, err = s.Activity(userID, func(act *domain.Activity) {
			act.LastWorkAt = &now
			act.WorkCount++
		})
		if err != nil {
			return WorkResult{}, err
		}
		return WorkResult{
			Job:       job.Name,
			Payout:    payout,
			Wallet:    a.Wallet,
			WorkCount: a.WorkCount,
			ReadyAt:   now.Add(rules.WorkCooldown),
		}, nil
	})
}

// ─── Daily ──────────────────────────────────────────────────────────────────

// DailyResult is the settled outcome of a daily claim.
type DailyResult struct {
	Payout        int64     `json:"payout"`
	Wallet        int64     `json:"wallet"`
	Streak        int       `json:"streak"`
	LongestStreak int       `json:"longest_streak"`
	DailyCount    int64     `json:"daily_count"`
	ReadyAt       time.Time `json:"ready_at"`
}

// Daily pays once per local calendar day and maintains the streak.
func (r *Resolver) Daily(ctx context.Context, req ledger.Request, userID string) (DailyResult, error) {
	return ledger.Run(ctx, r.engine, req, ledger.Accounts(userID), func(s *ledger.Session) (DailyResult, error) {
		rules, now := s.Rules(), s.Now()
		loc := rules.Location

		a, err := s.Account(userID)
		if err != nil {
			return DailyResult{}, err
		}
		if !domain.DailyReady(a.LastDailyKey, now, loc) {
			return DailyResult{}, &domain.CooldownError{Action: "daily", Remaining: domain.UntilNextDay(now, loc)}
		}

		payout := between(r.rand, rules.DailyMin, rules.DailyMax)
		streak := domain.NextStreak(a.LastDailyKey, a.Streak, now, loc)

		if _, err := s.Credit(userID, payout, ledger.Memo{
			Kind:     domain.TxDaily,
			Metadata: map[string]string{"streak": itoa(int64(streak))},
		}); err != nil {
			return DailyResult{}, err
		}
		a, err = s.Activity(userID, func(act *domain.Activity) {
			act.LastDailyKey = domain.DateKey(now, loc)
			act.Streak = streak
			act.LongestStreak = max(act.LongestStreak, streak)
			act.DailyCount++
		})
		if err != nil {
			return DailyResult{}, err
		}
		return DailyResult{
			Payout:        payout,
			Wallet:        a.Wallet,
			Streak:        a.Streak,
			LongestStreak: a.LongestStreak,
			DailyCount:    a.DailyCount,
			ReadyAt:       now.Add(domain.UntilNextDay(now, loc)),
		}, nil
	})
}
