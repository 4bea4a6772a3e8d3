package domain

import "time"

// ─── Transaction Types ──────────────────────────────────────────────────────
// Every balance change appends one TransactionRecord. The log is write-only
// from the engine's point of view; reporting reads it.

// EntryType represents the accounting side of a ledger entry.
type EntryType string

const (
	EntryDebit  EntryType = "DEBIT"
	EntryCredit EntryType = "CREDIT"
)

// TransactionKind represents the business reason for a balance change.
type TransactionKind string

const (
	TxCredit          TransactionKind = "credit"
	TxDebit           TransactionKind = "debit"
	TxWork            TransactionKind = "work"
	TxDaily           TransactionKind = "daily"
	TxRobGain         TransactionKind = "rob_gain"
	TxRobLoss         TransactionKind = "rob_loss"
	TxRobPenalty      TransactionKind = "rob_penalty"
	TxRobCompensation TransactionKind = "rob_compensation"
	TxTransferIn      TransactionKind = "transfer_in"
	TxTransferOut     TransactionKind = "transfer_out"
	TxDeposit         TransactionKind = "deposit"
	TxWithdraw        TransactionKind = "withdraw"
	TxClanCreate      TransactionKind = "clan_create"
	TxClanDeposit     TransactionKind = "clan_deposit"
	TxClanPayout      TransactionKind = "clan_payout"
)

// TransactionRecord is a single append-only row in the audit log.
type TransactionRecord struct {
	ID             string            `json:"id"`
	UserID         string            `json:"user_id"`
	Kind           TransactionKind   `json:"kind"`
	Entry          EntryType         `json:"entry"`
	Amount         int64             `json:"amount"`
	CounterpartyID string            `json:"counterparty_id,omitempty"`
	RequestID      string            `json:"request_id,omitempty"`
	BalanceAfter   int64             `json:"balance_after"`
	Timestamp      time.Time         `json:"timestamp"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// RequestRecord remembers the settled result of one logical request so a
// redelivered command replays instead of mutating twice. Fingerprint names
// the command that settled it; a replay only matches the same fingerprint.
type RequestRecord struct {
	ID          string    `json:"id"`
	Fingerprint string    `json:"fingerprint,omitempty"`
	Result      []byte    `json:"result"`
	CreatedAt   time.Time `json:"created_at"`
}
