package actions

import (
	"context"
	"strconv"
	"time"

	"github.com/tutu-network/econ/internal/app/ledger"
	"github.com/tutu-network/econ/internal/domain"
)

// RobResult is the settled outcome of a rob attempt.
type RobResult struct {
	Success      bool      `json:"success"`
	Stolen       int64     `json:"stolen,omitempty"`
	Penalty      int64     `json:"penalty,omitempty"`
	RobberWallet int64     `json:"robber_wallet"`
	VictimWallet int64     `json:"victim_wallet"`
	RobCount     int64     `json:"rob_count"`
	ReadyAt      time.Time `json:"ready_at"`
}

// Rob tries to steal from victimID's wallet. Preconditions are checked in
// order: self target, the robber's cooldown, that the victim has an account,
// the victim's minimum wallet, then the robber's bail. Victims are never
// opened lazily, so a made-up id cannot mint a fresh wallet to steal from. A failed attempt pays the victim a penalty capped
// at the robber's wallet.
func (r *Resolver) Rob(ctx context.Context, req ledger.Request, robberID, victimID string) (RobResult, error) {
	if robberID == victimID {
		return RobResult{}, domain.ErrSelfTarget
	}
	return ledger.Run(ctx, r.engine, req, ledger.Accounts(robberID, victimID), func(s *ledger.Session) (RobResult, error) {
		rules, now := s.Rules(), s.Now()

		robber, err := s.Account(robberID)
		if err != nil {
			return RobResult{}, err
		}
		if left := domain.Remaining(robber.LastRobAt, rules.RobCooldown, now); left > 0 {
			return RobResult{}, &domain.CooldownError{Action: "rob", Remaining: left}
		}
		victim, err := s.Existing(victimID)
		if err != nil {
			return RobResult{}, err
		}
		if victim.Wallet < rules.RobMinTargetBalance {
			return RobResult{}, domain.ErrTargetTooPoor
		}
		if robber.Wallet < rules.RobMinRobberBalance {
			return RobResult{}, domain.ErrRobberTooPoor
		}

		var res RobResult
		if r.rand.Float64() < rules.RobSuccessRate {
			res.Success = true
			res.Stolen = between(r.rand, rules.RobMinSteal, rules.MaxSteal(victim.Wallet))
			if victim, err = s.Debit(victimID, res.Stolen, ledger.Memo{Kind: domain.TxRobLoss, Counterparty: robberID}); err != nil {
				return RobResult{}, err
			}
			if _, err = s.Credit(robberID, res.Stolen, ledger.Memo{Kind: domain.TxRobGain, Counterparty: victimID}); err != nil {
				return RobResult{}, err
			}
		} else if res.Penalty = min(rules.RobFailPenalty, robber.Wallet); res.Penalty > 0 {
			meta := map[string]string{"configured_penalty": itoa(rules.RobFailPenalty)}
			if _, err = s.Debit(robberID, res.Penalty, ledger.Memo{Kind: domain.TxRobPenalty, Counterparty: victimID, Metadata: meta}); err != nil {
				return RobResult{}, err
			}
			if victim, err = s.Credit(victimID, res.Penalty, ledger.Memo{Kind: domain.TxRobCompensation, Counterparty: robberID}); err != nil {
				return RobResult{}, err
			}
		}

		robber, err = s.Activity(robberID, func(act *domain.Activity) {
			act.LastRobAt = &now
			if res.Success {
				act.RobCount++
			}
		})
		if err != nil {
			return RobResult{}, err
		}

		res.RobberWallet = robber.Wallet
		res.VictimWallet = victim.Wallet
		res.RobCount = robber.RobCount
		res.ReadyAt = now.Add(rules.RobCooldown)
		return res, nil
	})
}

func itoa(n int64) string { return strconv.FormatInt(n, 10) }
