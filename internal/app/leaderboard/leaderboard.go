// Package leaderboard ranks accounts by net worth (wallet + bank).
package leaderboard

import (
	"context"

	"github.com/tutu-network/econ/internal/app/ledger"
	"github.com/tutu-network/econ/internal/domain"
)

// Board answers ranking queries over the ledger's accounts.
type Board struct {
	engine *ledger.Engine
	cfg    domain.LeaderboardConfig
}

// New creates a board.
func New(engine *ledger.Engine, cfg domain.LeaderboardConfig) *Board {
	return &Board{engine: engine, cfg: cfg}
}

// Limit clamps a requested size to [1, MaxTopN]; n <= 0 means the default.
func (b *Board) Limit(n int) int {
	if n <= 0 {
		n = b.cfg.TopN
	}
	return min(max(n, 1), b.cfg.MaxTopN)
}

// Top returns the n richest accounts, richest first.
func (b *Board) Top(ctx context.Context, n int) ([]domain.LeaderboardEntry, error) {
	accts, err := b.engine.Accounts(ctx)
	if err != nil {
		return nil, err
	}
	h := newTopN(b.Limit(n))
	for _, a := range accts {
		h.Offer(a)
	}
	sorted := h.Sorted()
	out := make([]domain.LeaderboardEntry, len(sorted))
	for i, a := range sorted {
		out[i] = entry(i+1, a)
	}
	return out, nil
}

// Position returns userID's place on the full board. Unknown users get
// ErrAccountNotFound.
func (b *Board) Position(ctx context.Context, userID string) (domain.LeaderboardEntry, error) {
	accts, err := b.engine.Accounts(ctx)
	if err != nil {
		return domain.LeaderboardEntry{}, err
	}
	var (
		me    domain.Account
		found bool
	)
	for _, a := range accts {
		if a.UserID == userID {
			me, found = a, true
			break
		}
	}
	if !found {
		return domain.LeaderboardEntry{}, domain.ErrAccountNotFound
	}
	pos := 1
	for _, a := range accts {
		if below(me, a) {
			pos++
		}
	}
	return entry(pos, me), nil
}

func entry(pos int, a domain.Account) domain.LeaderboardEntry {
	return domain.LeaderboardEntry{
		Position: pos,
		UserID:   a.UserID,
		Wallet:   a.Wallet,
		Bank:     a.Bank,
		Total:    a.Total(),
		Rank:     a.Rank().Name,
		ClanID:   a.ClanID,
	}
}
