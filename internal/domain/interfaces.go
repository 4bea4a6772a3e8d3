package domain

import "context"

// ─── Persistence Interfaces ─────────────────────────────────────────────────
// These interfaces define boundaries between layers.
// Infrastructure implements them; the ledger depends on them.

// Store is the persistence adapter behind the ledger. Backends differ only here.
type Store interface {
	// Atomic runs fn inside one storage transaction. If fn returns an error
	// nothing is committed. Driver failures surface as ErrStorageUnavailable.
	Atomic(ctx context.Context, fn func(tx Tx) error) error

	// Accounts returns a snapshot of every account (for ranking).
	Accounts(ctx context.Context) ([]Account, error)

	// Records returns the newest records for a user, newest first.
	Records(ctx context.Context, userID string, limit int) ([]TransactionRecord, error)

	Close() error
}

// Tx is the view of the store inside one Atomic call.
type Tx interface {
	// Account loads an account; ErrAccountNotFound if absent.
	Account(userID string) (Account, error)

	// PutAccount inserts (Version == 0) or updates an account. Updates must
	// match the stored Version or fail with ErrConflict. The stored version
	// becomes acct.Version+1.
	PutAccount(acct Account) error

	AppendRecord(rec TransactionRecord) error

	// ClanByID / ClanByName return ErrClanNotFound if absent.
	ClanByID(id string) (Clan, error)
	ClanByName(name string) (Clan, error)

	// PutClan inserts or version-checked updates a clan. Name uniqueness is
	// case-insensitive; a clash fails with ErrDuplicateName.
	PutClan(clan Clan) error
	DeleteClan(id string) error

	// Request returns a settled request; found is false if never seen.
	Request(id string) (rec RequestRecord, found bool, err error)
	PutRequest(rec RequestRecord) error
}
