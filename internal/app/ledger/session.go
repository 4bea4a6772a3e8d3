package ledger

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/tutu-network/econ/internal/domain"
)

// Memo describes why a balance moved.
type Memo struct {
	Kind         domain.TransactionKind
	Counterparty string
	Metadata     map[string]string
}

// Session is the mutable view handed to a unit of work. Balances change only
// through its ledger methods; everything else an action needs is exposed as
// the activity hook or the raw clan accessors.
type Session struct {
	engine  *Engine
	tx      domain.Tx
	req     Request
	scope   map[string]bool
	loaded  map[string]*domain.Account
	dirty   map[string]bool
	records []domain.TransactionRecord
}

func newSession(e *Engine, tx domain.Tx, req Request, scope Scope) *Session {
	s := &Session{
		engine: e,
		tx:     tx,
		req:    req,
		scope:  make(map[string]bool, len(scope.Accounts)),
		loaded: make(map[string]*domain.Account),
		dirty:  make(map[string]bool),
	}
	for _, id := range scope.Accounts {
		s.scope[id] = true
	}
	return s
}

// Now is the logical time of the request.
func (s *Session) Now() time.Time { return s.req.Now }

// RequestID returns the idempotency key, possibly empty.
func (s *Session) RequestID() string { return s.req.ID }

// Rules returns the economy rules.
func (s *Session) Rules() domain.Rules { return s.engine.rules }

// Tx exposes the store transaction for clan reads and writes.
func (s *Session) Tx() domain.Tx { return s.tx }

// load returns the working copy of an account. With create set, a missing
// account is opened lazily with the starting balances; otherwise it is
// reported as ErrAccountNotFound.
func (s *Session) load(userID string, create bool) (*domain.Account, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: empty user id", domain.ErrInvariant)
	}
	if !s.scope[userID] {
		return nil, fmt.Errorf("%w: account %s touched outside its lock scope", domain.ErrInvariant, userID)
	}
	if a, ok := s.loaded[userID]; ok {
		return a, nil
	}
	a, err := s.tx.Account(userID)
	switch {
	case errors.Is(err, domain.ErrAccountNotFound) && !create:
		return nil, err
	case errors.Is(err, domain.ErrAccountNotFound):
		a = domain.NewAccount(userID, s.engine.rules.StartingBalances(), s.req.Now)
		s.dirty[userID] = true
	case err != nil:
		return nil, err
	}
	if !a.Valid() {
		return nil, fmt.Errorf("%w: stored account %s has negative balance", domain.ErrInvariant, userID)
	}
	s.loaded[userID] = &a
	return &a, nil
}

// Account returns a copy of the account, creating it if absent.
func (s *Session) Account(userID string) (domain.Account, error) {
	a, err := s.load(userID, true)
	if err != nil {
		return domain.Account{}, err
	}
	return a.Clone(), nil
}

// Existing returns a copy of an account that must already exist.
func (s *Session) Existing(userID string) (domain.Account, error) {
	a, err := s.load(userID, false)
	if err != nil {
		return domain.Account{}, err
	}
	return a.Clone(), nil
}

// ─── Balance Operations ─────────────────────────────────────────────────────

// Credit adds amount to the wallet and to total earned.
func (s *Session) Credit(userID string, amount int64, memo Memo) (domain.Account, error) {
	if amount <= 0 {
		return domain.Account{}, domain.ErrInvalidAmount
	}
	a, err := s.load(userID, true)
	if err != nil {
		return domain.Account{}, err
	}
	a.Wallet += amount
	a.TotalEarned += amount
	s.touch(a)
	s.record(a, domain.EntryCredit, amount, memo, a.Wallet)
	return a.Clone(), nil
}

// Debit removes amount from the wallet. It fails without effect when the
// wallet cannot cover it.
func (s *Session) Debit(userID string, amount int64, memo Memo) (domain.Account, error) {
	if amount <= 0 {
		return domain.Account{}, domain.ErrInvalidAmount
	}
	a, err := s.load(userID, true)
	if err != nil {
		return domain.Account{}, err
	}
	if a.Wallet < amount {
		return domain.Account{}, domain.ErrInsufficientFunds
	}
	a.Wallet -= amount
	a.TotalSpent += amount
	s.touch(a)
	s.record(a, domain.EntryDebit, amount, memo, a.Wallet)
	return a.Clone(), nil
}

// Deposit moves amount from wallet to bank.
func (s *Session) Deposit(userID string, amount int64) (domain.Account, error) {
	return s.move(userID, amount, domain.TxDeposit)
}

// Withdraw moves amount from bank to wallet.
func (s *Session) Withdraw(userID string, amount int64) (domain.Account, error) {
	return s.move(userID, amount, domain.TxWithdraw)
}

func (s *Session) move(userID string, amount int64, kind domain.TransactionKind) (domain.Account, error) {
	if amount <= 0 {
		return domain.Account{}, domain.ErrInvalidAmount
	}
	a, err := s.load(userID, true)
	if err != nil {
		return domain.Account{}, err
	}
	entry := domain.EntryDebit
	if kind == domain.TxDeposit {
		if a.Wallet < amount {
			return domain.Account{}, domain.ErrInsufficientFunds
		}
		a.Wallet -= amount
		a.Bank += amount
	} else {
		if a.Bank < amount {
			return domain.Account{}, domain.ErrInsufficientFunds
		}
		a.Bank -= amount
		a.Wallet += amount
		entry = domain.EntryCredit
	}
	s.touch(a)
	s.record(a, entry, amount, Memo{Kind: kind, Metadata: map[string]string{
		"bank": fmt.Sprint(a.Bank),
	}}, a.Wallet)
	return a.Clone(), nil
}

// ─── Non-Monetary State ─────────────────────────────────────────────────────

// Activity lets an action update cooldowns, counters and streaks.
func (s *Session) Activity(userID string, fn func(*domain.Activity)) (domain.Account, error) {
	a, err := s.load(userID, true)
	if err != nil {
		return domain.Account{}, err
	}
	act := a.Clone().Activity
	fn(&act)
	a.Activity = act
	s.touch(a)
	return a.Clone(), nil
}

// SetClan points an account at a clan, or clears it with "".
func (s *Session) SetClan(userID, clanID string) (domain.Account, error) {
	a, err := s.load(userID, true)
	if err != nil {
		return domain.Account{}, err
	}
	a.ClanID = clanID
	s.touch(a)
	return a.Clone(), nil
}

// ─── Persistence ────────────────────────────────────────────────────────────

func (s *Session) touch(a *domain.Account) {
	a.UpdatedAt = s.req.Now
	s.dirty[a.UserID] = true
}

func (s *Session) record(a *domain.Account, entry domain.EntryType, amount int64, memo Memo, after int64) {
	s.records = append(s.records, domain.TransactionRecord{
		ID:             uuid.NewString(),
		UserID:         a.UserID,
		Kind:           memo.Kind,
		Entry:          entry,
		Amount:         amount,
		CounterpartyID: memo.Counterparty,
		RequestID:      s.req.ID,
		BalanceAfter:   after,
		Timestamp:      s.req.Now,
		Metadata:       maps.Clone(memo.Metadata),
	})
}

// flush validates every touched account, then writes accounts and records.
func (s *Session) flush() error {
	ids := slices.Sorted(maps.Keys(s.dirty))
	for _, id := range ids {
		if a := s.loaded[id]; !a.Valid() {
			return fmt.Errorf("%w: account %s wallet=%d bank=%d", domain.ErrInvariant, id, a.Wallet, a.Bank)
		}
	}
	for _, id := range ids {
		if err := s.tx.PutAccount(*s.loaded[id]); err != nil {
			return err
		}
	}
	for _, r := range s.records {
		if err := s.tx.AppendRecord(r); err != nil {
			return err
		}
	}
	return nil
}
