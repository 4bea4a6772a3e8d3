package domain

// ─── Rank & Leaderboard Types ───────────────────────────────────────────────
// Rank is derived from net worth on every read and never stored.

// Rank is a named net-worth tier.
type Rank struct {
	Name string `json:"name"`
	Min  int64  `json:"min"`
}

// RankTiers is ordered from poorest to richest.
var RankTiers = []Rank{
	{Name: "Beggar", Min: 0},
	{Name: "Peasant", Min: 1_000},
	{Name: "Worker", Min: 5_000},
	{Name: "Merchant", Min: 25_000},
	{Name: "Noble", Min: 100_000},
	{Name: "Baron", Min: 500_000},
	{Name: "Tycoon", Min: 1_000_000},
}

// RankFor returns the highest tier whose minimum total reaches.
func RankFor(total int64) Rank {
	r := RankTiers[0]
	for _, t := range RankTiers {
		if total >= t.Min {
			r = t
		}
	}
	return r
}

// LeaderboardEntry represents a user's position on the net-worth board.
type LeaderboardEntry struct {
	Position int    `json:"position"`
	UserID   string `json:"user_id"`
	Wallet   int64  `json:"wallet"`
	Bank     int64  `json:"bank"`
	Total    int64  `json:"total"`
	Rank     string `json:"rank"`
	ClanID   string `json:"clan_id,omitempty"`
}

// LeaderboardConfig controls leaderboard behavior.
type LeaderboardConfig struct {
	TopN    int `json:"top_n"`
	MaxTopN int `json:"max_top_n"`
}

// DefaultLeaderboardConfig returns the default board size.
func DefaultLeaderboardConfig() LeaderboardConfig {
	return LeaderboardConfig{
		TopN:    10,
		MaxTopN: 100,
	}
}
