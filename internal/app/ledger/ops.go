package ledger

import (
	"context"

	"github.com/tutu-network/econ/internal/domain"
)

// ─── Account Store Contract ─────────────────────────────────────────────────

// GetOrCreate returns the account, creating it with the starting balances.
func (e *Engine) GetOrCreate(ctx context.Context, userID string) (domain.Account, error) {
	return Run(ctx, e, Request{}, Accounts(userID), func(s *Session) (domain.Account, error) {
		return s.Account(userID)
	})
}

// Update applies patch to the account's activity fields and returns the
// post-image. Balances are not reachable from a patch.
func (e *Engine) Update(ctx context.Context, userID string, patch func(*domain.Activity)) (domain.Account, error) {
	return Run(ctx, e, Request{}, Accounts(userID), func(s *Session) (domain.Account, error) {
		return s.Activity(userID, patch)
	})
}

// ─── Balance Operations ─────────────────────────────────────────────────────

func reasonMemo(kind domain.TransactionKind, reason string) Memo {
	m := Memo{Kind: kind}
	if reason != "" {
		m.Metadata = map[string]string{"reason": reason}
	}
	return m
}

// Credit adds a positive amount to the wallet.
func (e *Engine) Credit(ctx context.Context, req Request, userID string, amount int64, reason string) (domain.Account, error) {
	if amount <= 0 {
		return domain.Account{}, domain.ErrInvalidAmount
	}
	return Run(ctx, e, req, Accounts(userID), func(s *Session) (domain.Account, error) {
		return s.Credit(userID, amount, reasonMemo(domain.TxCredit, reason))
	})
}

// Debit removes a positive amount from the wallet, or fails with
// ErrInsufficientFunds.
func (e *Engine) Debit(ctx context.Context, req Request, userID string, amount int64, reason string) (domain.Account, error) {
	if amount <= 0 {
		return domain.Account{}, domain.ErrInvalidAmount
	}
	return Run(ctx, e, req, Accounts(userID), func(s *Session) (domain.Account, error) {
		return s.Debit(userID, amount, reasonMemo(domain.TxDebit, reason))
	})
}

// TransferResult holds both post-images of a transfer.
type TransferResult struct {
	From   domain.Account `json:"from"`
	To     domain.Account `json:"to"`
	Amount int64          `json:"amount"`
}

// Transfer moves amount from one wallet to another. Both legs commit
// together or not at all.
func (e *Engine) Transfer(ctx context.Context, req Request, fromID, toID string, amount int64) (TransferResult, error) {
	if fromID == toID {
		return TransferResult{}, domain.ErrSelfTarget
	}
	if amount <= 0 {
		return TransferResult{}, domain.ErrInvalidAmount
	}
	return Run(ctx, e, req, Accounts(fromID, toID), func(s *Session) (TransferResult, error) {
		from, err := s.Debit(fromID, amount, Memo{Kind: domain.TxTransferOut, Counterparty: toID})
		if err != nil {
			return TransferResult{}, err
		}
		to, err := s.Credit(toID, amount, Memo{Kind: domain.TxTransferIn, Counterparty: fromID})
		if err != nil {
			return TransferResult{}, err
		}
		return TransferResult{From: from, To: to, Amount: amount}, nil
	})
}

// Deposit moves amount from wallet to bank.
func (e *Engine) Deposit(ctx context.Context, req Request, userID string, amount int64) (domain.Account, error) {
	if amount <= 0 {
		return domain.Account{}, domain.ErrInvalidAmount
	}
	return Run(ctx, e, req, Accounts(userID), func(s *Session) (domain.Account, error) {
		return s.Deposit(userID, amount)
	})
}

// Withdraw moves amount from bank to wallet.
func (e *Engine) Withdraw(ctx context.Context, req Request, userID string, amount int64) (domain.Account, error) {
	if amount <= 0 {
		return domain.Account{}, domain.ErrInvalidAmount
	}
	return Run(ctx, e, req, Accounts(userID), func(s *Session) (domain.Account, error) {
		return s.Withdraw(userID, amount)
	})
}

// DepositAll moves the whole wallet to the bank. An empty wallet is
// ErrInvalidAmount, matching a zero deposit.
func (e *Engine) DepositAll(ctx context.Context, req Request, userID string) (domain.Account, error) {
	return Run(ctx, e, req, Accounts(userID), func(s *Session) (domain.Account, error) {
		a, err := s.Account(userID)
		if err != nil {
			return domain.Account{}, err
		}
		return s.Deposit(userID, a.Wallet)
	})
}

// WithdrawAll moves the whole bank to the wallet.
func (e *Engine) WithdrawAll(ctx context.Context, req Request, userID string) (domain.Account, error) {
	return Run(ctx, e, req, Accounts(userID), func(s *Session) (domain.Account, error) {
		a, err := s.Account(userID)
		if err != nil {
			return domain.Account{}, err
		}
		return s.Withdraw(userID, a.Bank)
	})
}
