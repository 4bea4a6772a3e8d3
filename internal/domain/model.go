// Package domain contains pure business types with ZERO infrastructure imports.
// This is the innermost ring of clean architecture and depends on nothing.
package domain

import (
	"strings"
	"time"
)

// ─── Account ────────────────────────────────────────────────────────────────

// Balances are the two money fields of an account. Only the ledger writes them.
type Balances struct {
	Wallet int64 `json:"wallet"`
	Bank   int64 `json:"bank"`
}

// Total returns wallet plus bank, the net worth used for ranking.
func (b Balances) Total() int64 { return b.Wallet + b.Bank }

// Activity holds the non-monetary state action resolvers may touch:
// cooldown timestamps, counters and the daily streak.
type Activity struct {
	WorkCount     int64      `json:"work_count"`
	RobCount      int64      `json:"rob_count"`
	DailyCount    int64      `json:"daily_count"`
	LastWorkAt    *time.Time `json:"last_work_at,omitempty"`
	LastRobAt     *time.Time `json:"last_rob_at,omitempty"`
	LastDailyKey  string     `json:"last_daily_key,omitempty"` // local YYYY-MM-DD
	Streak        int        `json:"streak"`
	LongestStreak int        `json:"longest_streak"`
}

// Account is the per-user economic state.
type Account struct {
	UserID string `json:"user_id"`
	Balances
	TotalEarned int64 `json:"total_earned"`
	TotalSpent  int64 `json:"total_spent"`
	Activity
	ClanID    string    `json:"clan_id,omitempty"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewAccount builds a fresh account with the configured starting balances.
func NewAccount(userID string, start Balances, now time.Time) Account {
	return Account{
		UserID:    userID,
		Balances:  start,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Rank returns the derived rank tier for the account's net worth.
func (a Account) Rank() Rank { return RankFor(a.Total()) }

// Valid reports whether the balance invariants hold.
func (a Account) Valid() bool {
	return a.Wallet >= 0 && a.Bank >= 0 && a.TotalEarned >= 0 && a.TotalSpent >= 0
}

// Clone returns a deep copy (timestamps are pointers).
func (a Account) Clone() Account {
	c := a
	if a.LastWorkAt != nil {
		t := *a.LastWorkAt
		c.LastWorkAt = &t
	}
	if a.LastRobAt != nil {
		t := *a.LastRobAt
		c.LastRobAt = &t
	}
	return c
}

// ─── Clan ───────────────────────────────────────────────────────────────────

// Clan is a named group with one leader and a shared bank.
type Clan struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	LeaderID  string    `json:"leader_id"`
	Members   []string  `json:"members"`
	Bank      int64     `json:"bank"`
	Level     int       `json:"level"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
}

// ClanKey normalizes a clan name for uniqueness checks.
func ClanKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// HasMember reports whether userID is in the clan.
func (c Clan) HasMember(userID string) bool {
	for _, m := range c.Members {
		if m == userID {
			return true
		}
	}
	return false
}

// WithoutMember returns the member list minus userID.
func (c Clan) WithoutMember(userID string) []string {
	out := make([]string, 0, len(c.Members))
	for _, m := range c.Members {
		if m != userID {
			out = append(out, m)
		}
	}
	return out
}

// Clone returns a deep copy.
func (c Clan) Clone() Clan {
	out := c
	out.Members = append([]string(nil), c.Members...)
	return out
}
