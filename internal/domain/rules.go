package domain

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ─── Economy Rules ──────────────────────────────────────────────────────────
// Rules is the fully typed, validated form of the economy configuration.
// One instance parameterizes every action; backends never see it.

// Job is one entry of the work table.
type Job struct {
	Name      string `json:"name" toml:"name" yaml:"name"`
	MinPayout int64  `json:"min_payout" toml:"min_payout" yaml:"min_payout"`
	MaxPayout int64  `json:"max_payout" toml:"max_payout" yaml:"max_payout"`
}

// Rules holds every tunable of the economy.
type Rules struct {
	StartingWallet int64
	StartingBank   int64

	WorkCooldown time.Duration
	RobCooldown  time.Duration
	Location     *time.Location // calendar for the daily reset

	Jobs []Job

	DailyMin int64
	DailyMax int64

	RobSuccessRate      float64
	RobMinTargetBalance int64
	RobMinRobberBalance int64
	RobMinSteal         int64
	RobMaxStealPercent  float64
	RobFailPenalty      int64

	ClanCreateCost  int64
	ClanUpgradeCost int64
	ClanMaxMembers  int // 0 = unlimited

	CurrencySymbol string
}

// DefaultJobs is the stock work table.
func DefaultJobs() []Job {
	return []Job{
		{Name: "Programmer", MinPayout: 400, MaxPayout: 1200},
		{Name: "Chef", MinPayout: 300, MaxPayout: 900},
		{Name: "Courier", MinPayout: 200, MaxPayout: 700},
		{Name: "Tutor", MinPayout: 300, MaxPayout: 800},
		{Name: "Streamer", MinPayout: 100, MaxPayout: 1500},
	}
}

// DefaultRules returns the stock economy.
func DefaultRules() Rules {
	return Rules{
		StartingWallet:      1000,
		StartingBank:        0,
		WorkCooldown:        60 * time.Minute,
		RobCooldown:         30 * time.Minute,
		Location:            time.UTC,
		Jobs:                DefaultJobs(),
		DailyMin:            500,
		DailyMax:            1500,
		RobSuccessRate:      0.4,
		RobMinTargetBalance: 500,
		RobMinRobberBalance: 300,
		RobMinSteal:         50,
		RobMaxStealPercent:  0.3,
		RobFailPenalty:      300,
		ClanCreateCost:      5000,
		ClanUpgradeCost:     10000,
		ClanMaxMembers:      30,
		CurrencySymbol:      "💰",
	}
}

// StartingBalances returns the balances a lazily created account gets.
func (r Rules) StartingBalances() Balances {
	return Balances{Wallet: r.StartingWallet, Bank: r.StartingBank}
}

// MaxSteal returns floor(victimWallet × RobMaxStealPercent).
func (r Rules) MaxSteal(victimWallet int64) int64 {
	return int64(math.Floor(float64(victimWallet) * r.RobMaxStealPercent))
}

// Validate checks internal consistency. It runs once at startup.
func (r Rules) Validate() error {
	var errs []error
	if r.StartingWallet < 0 || r.StartingBank < 0 {
		errs = append(errs, errors.New("starting balances must be >= 0"))
	}
	if r.WorkCooldown < 0 || r.RobCooldown < 0 {
		errs = append(errs, errors.New("cooldowns must be >= 0"))
	}
	if r.Location == nil {
		errs = append(errs, errors.New("timezone is required"))
	}
	if len(r.Jobs) == 0 {
		errs = append(errs, errors.New("job table is empty"))
	}
	for _, j := range r.Jobs {
		if j.MinPayout < 1 || j.MaxPayout < j.MinPayout {
			errs = append(errs, fmt.Errorf("job %q: need 1 <= min_payout <= max_payout", j.Name))
		}
	}
	if r.DailyMin < 1 || r.DailyMax < r.DailyMin {
		errs = append(errs, errors.New("daily: need 1 <= min <= max"))
	}
	if r.RobSuccessRate < 0 || r.RobSuccessRate > 1 {
		errs = append(errs, errors.New("rob success rate must be within [0,1]"))
	}
	if r.RobMaxStealPercent <= 0 || r.RobMaxStealPercent > 1 {
		errs = append(errs, errors.New("rob max steal percent must be within (0,1]"))
	}
	if r.RobMinSteal < 1 {
		errs = append(errs, errors.New("rob min steal must be >= 1"))
	}
	if r.MaxSteal(r.RobMinTargetBalance) < r.RobMinSteal {
		errs = append(errs, fmt.Errorf("rob min target balance %d cannot yield min steal %d at %.2f",
			r.RobMinTargetBalance, r.RobMinSteal, r.RobMaxStealPercent))
	}
	if r.RobMinRobberBalance < 0 || r.RobFailPenalty < 0 {
		errs = append(errs, errors.New("rob robber minimum and penalty must be >= 0"))
	}
	if r.ClanCreateCost < 0 || r.ClanUpgradeCost < 0 || r.ClanMaxMembers < 0 {
		errs = append(errs, errors.New("clan costs and member cap must be >= 0"))
	}
	return errors.Join(errs...)
}
