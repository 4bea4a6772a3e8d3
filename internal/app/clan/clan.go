// Package clan implements the clan aggregate on top of the ledger.
//
// A clan's membership is stored twice: the clan's member list and each
// account's ClanID. Every operation updates both inside one ledger unit of
// work, so no account is ever left pointing at a missing clan.
package clan

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/tutu-network/econ/internal/app/ledger"
	"github.com/tutu-network/econ/internal/domain"
)

// MaxNameLength bounds clan names, in runes.
const MaxNameLength = 32

// SlotsPerLevel is how many member slots each upgrade adds.
const SlotsPerLevel = 5

// disbandAttempts bounds how often Disband re-reads a membership that keeps
// changing under it.
const disbandAttempts = 5

// Result is the settled outcome of a clan operation.
type Result struct {
	Clan    domain.Clan `json:"clan"`
	Wallet  int64       `json:"wallet"`
	Cost    int64       `json:"cost,omitempty"`
	Payout  int64       `json:"payout,omitempty"`
	Members int         `json:"members"`
}

// Service runs clan operations.
type Service struct {
	engine *ledger.Engine
}

// New creates a clan service.
func New(engine *ledger.Engine) *Service {
	return &Service{engine: engine}
}

// Capacity returns the member cap at level; 0 means unlimited.
func Capacity(rules domain.Rules, level int) int {
	if rules.ClanMaxMembers == 0 {
		return 0
	}
	return rules.ClanMaxMembers + SlotsPerLevel*max(level-1, 0)
}

// UpgradeCost returns what the next level costs from the clan bank.
func UpgradeCost(rules domain.Rules, level int) int64 {
	return int64(level) * rules.ClanUpgradeCost
}

func normalizeName(name string) (string, error) {
	name = strings.Join(strings.Fields(name), " ")
	if name == "" || utf8.RuneCountInString(name) > MaxNameLength {
		return "", domain.ErrInvalidName
	}
	return name, nil
}

// ─── Membership ─────────────────────────────────────────────────────────────

// Create founds a clan led by leaderID and debits the creation cost.
func (svc *Service) Create(ctx context.Context, req ledger.Request, leaderID, name string) (Result, error) {
	name, err := normalizeName(name)
	if err != nil {
		return Result{}, err
	}
	return ledger.Run(ctx, svc.engine, req, ledger.Accounts(leaderID), func(s *ledger.Session) (Result, error) {
		rules := s.Rules()
		if _, err := s.Tx().ClanByName(name); err == nil {
			return Result{}, domain.ErrDuplicateName
		} else if !errors.Is(err, domain.ErrClanNotFound) {
			return Result{}, err
		}

		leader, err := s.Account(leaderID)
		if err != nil {
			return Result{}, err
		}
		if leader.ClanID != "" {
			return Result{}, domain.ErrAlreadyInClan
		}

		c := domain.Clan{
			ID:        uuid.NewString(),
			Name:      name,
			LeaderID:  leaderID,
			Members:   []string{leaderID},
			Level:     1,
			CreatedAt: s.Now(),
		}
		if rules.ClanCreateCost > 0 {
			if _, err := s.Debit(leaderID, rules.ClanCreateCost, ledger.Memo{
				Kind:     domain.TxClanCreate,
				Metadata: map[string]string{"clan_id": c.ID, "clan": name},
			}); err != nil {
				return Result{}, err
			}
		}
		if err := s.Tx().PutClan(c); err != nil {
			return Result{}, err
		}
		if leader, err = s.SetClan(leaderID, c.ID); err != nil {
			return Result{}, err
		}
		return Result{Clan: c, Wallet: leader.Wallet, Cost: rules.ClanCreateCost, Members: 1}, nil
	})
}

// Join adds userID to the clan called name.
func (svc *Service) Join(ctx context.Context, req ledger.Request, userID, name string) (Result, error) {
	return ledger.Run(ctx, svc.engine, req, ledger.Accounts(userID), func(s *ledger.Session) (Result, error) {
		a, err := s.Account(userID)
		if err != nil {
			return Result{}, err
		}
		if a.ClanID != "" {
			return Result{}, domain.ErrAlreadyInClan
		}
		c, err := s.Tx().ClanByName(name)
		if err != nil {
			return Result{}, err
		}
		if limit := Capacity(s.Rules(), c.Level); limit > 0 && len(c.Members) >= limit {
			return Result{}, domain.ErrClanFull
		}
		c.Members = append(c.Members, userID)
		if err := s.Tx().PutClan(c); err != nil {
			return Result{}, err
		}
		if a, err = s.SetClan(userID, c.ID); err != nil {
			return Result{}, err
		}
		return Result{Clan: c, Wallet: a.Wallet, Members: len(c.Members)}, nil
	})
}

// Leave removes a non-leader member from their clan.
func (svc *Service) Leave(ctx context.Context, req ledger.Request, userID string) (Result, error) {
	return ledger.Run(ctx, svc.engine, req, ledger.Accounts(userID), func(s *ledger.Session) (Result, error) {
		a, c, err := memberClan(s, userID)
		if err != nil {
			return Result{}, err
		}
		if c.LeaderID == userID {
			return Result{}, domain.ErrLeaderCannotLeave
		}
		c.Members = c.WithoutMember(userID)
		if err := s.Tx().PutClan(c); err != nil {
			return Result{}, err
		}
		if a, err = s.SetClan(userID, ""); err != nil {
			return Result{}, err
		}
		return Result{Clan: c, Wallet: a.Wallet, Members: len(c.Members)}, nil
	})
}

// Disband deletes the leader's clan, clears every member's ClanID and pays
// the clan bank out to the leader.
func (svc *Service) Disband(ctx context.Context, req ledger.Request, leaderID string) (Result, error) {
	// The member list decides which accounts to lock. It is read without
	// locks first and verified again once the locks are held.
	for attempt := 0; ; attempt++ {
		members, err := ledger.View(ctx, svc.engine, func(tx domain.Tx) ([]string, error) {
			a, err := tx.Account(leaderID)
			if err != nil || a.ClanID == "" {
				return nil, err
			}
			c, err := tx.ClanByID(a.ClanID)
			if err != nil {
				return nil, err
			}
			return c.Members, nil
		})
		if domain.IsRetryable(err) {
			return Result{}, err
		}

		scope := ledger.Accounts(append([]string{leaderID}, members...)...)
		res, err := ledger.Run(ctx, svc.engine, req, scope, func(s *ledger.Session) (Result, error) {
			return disband(s, leaderID, scope)
		})
		if errors.Is(err, ledger.ErrStaleScope) && attempt < disbandAttempts {
			continue
		}
		if errors.Is(err, ledger.ErrStaleScope) {
			return Result{}, domain.Unavailable("disband", err)
		}
		return res, err
	}
}

func disband(s *ledger.Session, leaderID string, scope ledger.Scope) (Result, error) {
	leader, c, err := memberClan(s, leaderID)
	if err != nil {
		return Result{}, err
	}
	if c.LeaderID != leaderID {
		return Result{}, domain.ErrNotClanLeader
	}
	for _, m := range c.Members {
		if !slices.Contains(scope.Accounts, m) {
			return Result{}, ledger.ErrStaleScope
		}
	}

	for _, m := range c.Members {
		if _, err := s.SetClan(m, ""); err != nil {
			return Result{}, err
		}
	}
	if err := s.Tx().DeleteClan(c.ID); err != nil {
		return Result{}, err
	}
	if c.Bank > 0 {
		if leader, err = s.Credit(leaderID, c.Bank, ledger.Memo{
			Kind:     domain.TxClanPayout,
			Metadata: map[string]string{"clan_id": c.ID, "clan": c.Name},
		}); err != nil {
			return Result{}, err
		}
	} else if leader, err = s.Account(leaderID); err != nil {
		return Result{}, err
	}
	return Result{Clan: c, Wallet: leader.Wallet, Payout: c.Bank, Members: len(c.Members)}, nil
}

// memberClan loads userID and the clan they belong to.
func memberClan(s *ledger.Session, userID string) (domain.Account, domain.Clan, error) {
	a, err := s.Account(userID)
	if err != nil {
		return a, domain.Clan{}, err
	}
	if a.ClanID == "" {
		return a, domain.Clan{}, domain.ErrNotInClan
	}
	c, err := s.Tx().ClanByID(a.ClanID)
	if errors.Is(err, domain.ErrClanNotFound) {
		return a, domain.Clan{}, fmt.Errorf("%w: account %s points at missing clan %s", domain.ErrInvariant, userID, a.ClanID)
	}
	return a, c, err
}

// ─── Clan Bank ──────────────────────────────────────────────────────────────

// Deposit moves amount from userID's wallet into their clan's bank.
func (svc *Service) Deposit(ctx context.Context, req ledger.Request, userID string, amount int64) (Result, error) {
	if amount <= 0 {
		return Result{}, domain.ErrInvalidAmount
	}
	return ledger.Run(ctx, svc.engine, req, ledger.Accounts(userID), func(s *ledger.Session) (Result, error) {
		_, c, err := memberClan(s, userID)
		if err != nil {
			return Result{}, err
		}
		return deposit(s, userID, c, amount)
	})
}

// DepositAll moves userID's whole wallet into their clan's bank. The wallet
// is read under the same lock that debits it.
func (svc *Service) DepositAll(ctx context.Context, req ledger.Request, userID string) (Result, error) {
	return ledger.Run(ctx, svc.engine, req, ledger.Accounts(userID), func(s *ledger.Session) (Result, error) {
		a, c, err := memberClan(s, userID)
		if err != nil {
			return Result{}, err
		}
		if a.Wallet <= 0 {
			return Result{}, domain.ErrInvalidAmount
		}
		return deposit(s, userID, c, a.Wallet)
	})
}

func deposit(s *ledger.Session, userID string, c domain.Clan, amount int64) (Result, error) {
	a, err := s.Debit(userID, amount, ledger.Memo{
		Kind:         domain.TxClanDeposit,
		Counterparty: c.ID,
		Metadata:     map[string]string{"clan": c.Name},
	})
	if err != nil {
		return Result{}, err
	}
	c.Bank += amount
	if err := s.Tx().PutClan(c); err != nil {
		return Result{}, err
	}
	return Result{Clan: c, Wallet: a.Wallet, Cost: amount, Members: len(c.Members)}, nil
}

// Upgrade raises the leader's clan one level, paid from the clan bank.
func (svc *Service) Upgrade(ctx context.Context, req ledger.Request, leaderID string) (Result, error) {
	return ledger.Run(ctx, svc.engine, req, ledger.Accounts(leaderID), func(s *ledger.Session) (Result, error) {
		a, c, err := memberClan(s, leaderID)
		if err != nil {
			return Result{}, err
		}
		if c.LeaderID != leaderID {
			return Result{}, domain.ErrNotClanLeader
		}
		cost := UpgradeCost(s.Rules(), c.Level)
		if c.Bank < cost {
			return Result{}, domain.ErrInsufficientFunds
		}
		c.Bank -= cost
		c.Level++
		if err := s.Tx().PutClan(c); err != nil {
			return Result{}, err
		}
		return Result{Clan: c, Wallet: a.Wallet, Cost: cost, Members: len(c.Members)}, nil
	})
}

// ─── Queries ────────────────────────────────────────────────────────────────

// Info is a read-only view of a clan.
type Info struct {
	Clan        domain.Clan `json:"clan"`
	Capacity    int         `json:"capacity"`
	UpgradeCost int64       `json:"upgrade_cost"`
}

// Info looks a clan up by name.
func (svc *Service) Info(ctx context.Context, name string) (Info, error) {
	rules := svc.engine.Rules()
	return ledger.View(ctx, svc.engine, func(tx domain.Tx) (Info, error) {
		c, err := tx.ClanByName(name)
		if err != nil {
			return Info{}, err
		}
		return Info{Clan: c, Capacity: Capacity(rules, c.Level), UpgradeCost: UpgradeCost(rules, c.Level)}, nil
	})
}

// Of returns the clan userID belongs to.
func (svc *Service) Of(ctx context.Context, userID string) (Info, error) {
	rules := svc.engine.Rules()
	return ledger.View(ctx, svc.engine, func(tx domain.Tx) (Info, error) {
		a, err := tx.Account(userID)
		if errors.Is(err, domain.ErrAccountNotFound) {
			return Info{}, domain.ErrNotInClan
		}
		if err != nil {
			return Info{}, err
		}
		if a.ClanID == "" {
			return Info{}, domain.ErrNotInClan
		}
		c, err := tx.ClanByID(a.ClanID)
		if err != nil {
			return Info{}, err
		}
		return Info{Clan: c, Capacity: Capacity(rules, c.Level), UpgradeCost: UpgradeCost(rules, c.Level)}, nil
	})
}
