package postgres

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/tutu-network/econ/internal/domain"
)

// tx implements domain.Tx over one pgx.Tx. Reads take row locks.
type tx struct {
	ctx context.Context
	tx  Executor
}

const accountColumns = `user_id, wallet, bank, total_earned, total_spent,
	work_count, rob_count, daily_count, last_work_at, last_rob_at, last_daily_key,
	streak, longest_streak, clan_id, version, created_at, updated_at`

func scanAccount(row pgx.Row) (domain.Account, error) {
	var a domain.Account
	err := row.Scan(&a.UserID, &a.Wallet, &a.Bank, &a.TotalEarned, &a.TotalSpent,
		&a.WorkCount, &a.RobCount, &a.DailyCount, &a.LastWorkAt, &a.LastRobAt, &a.LastDailyKey,
		&a.Streak, &a.LongestStreak, &a.ClanID, &a.Version, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

func scanRecord(row pgx.Row) (domain.TransactionRecord, error) {
	var (
		r           domain.TransactionRecord
		kind, entry string
		meta        []byte
	)
	if err := row.Scan(&r.ID, &r.UserID, &kind, &entry, &r.Amount, &r.CounterpartyID,
		&r.RequestID, &r.BalanceAfter, &r.Timestamp, &meta); err != nil {
		return r, err
	}
	r.Kind = domain.TransactionKind(kind)
	r.Entry = domain.EntryType(entry)
	if len(meta) > 0 && string(meta) != "null" && string(meta) != "{}" {
		if err := json.Unmarshal(meta, &r.Metadata); err != nil {
			return r, err
		}
	}
	return r, nil
}

// Account loads one account and locks its row until commit.
func (t *tx) Account(userID string) (domain.Account, error) {
	a, err := scanAccount(t.tx.QueryRow(t.ctx,
		`SELECT `+accountColumns+` FROM econ_accounts WHERE user_id = $1 FOR UPDATE`, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Account{}, domain.ErrAccountNotFound
	}
	if err != nil {
		return domain.Account{}, domain.Unavailable("get account", err)
	}
	return a, nil
}

// PutAccount inserts a new account or updates one at the expected version.
func (t *tx) PutAccount(a domain.Account) error {
	var query string
	var args []any
	if a.Version == 0 {
		query = `
			INSERT INTO econ_accounts (` + accountColumns + `)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, 1, $15, $16)
			ON CONFLICT (user_id) DO NOTHING`
		args = []any{a.UserID, a.Wallet, a.Bank, a.TotalEarned, a.TotalSpent,
			a.WorkCount, a.RobCount, a.DailyCount, a.LastWorkAt, a.LastRobAt, a.LastDailyKey,
			a.Streak, a.LongestStreak, a.ClanID, a.CreatedAt, a.UpdatedAt}
	} else {
		query = `
			UPDATE econ_accounts SET
				wallet = $1, bank = $2, total_earned = $3, total_spent = $4,
				work_count = $5, rob_count = $6, daily_count = $7,
				last_work_at = $8, last_rob_at = $9, last_daily_key = $10,
				streak = $11, longest_streak = $12, clan_id = $13,
				version = version + 1, updated_at = $14
			WHERE user_id = $15 AND version = $16`
		args = []any{a.Wallet, a.Bank, a.TotalEarned, a.TotalSpent,
			a.WorkCount, a.RobCount, a.DailyCount,
			a.LastWorkAt, a.LastRobAt, a.LastDailyKey,
			a.Streak, a.LongestStreak, a.ClanID,
			a.UpdatedAt, a.UserID, a.Version}
	}
	tag, err := t.tx.Exec(t.ctx, query, args...)
	if err != nil {
		return domain.Unavailable("put account", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrConflict
	}
	return nil
}

// AppendRecord appends one audit row.
func (t *tx) AppendRecord(r domain.TransactionRecord) error {
	meta := []byte("{}")
	if len(r.Metadata) > 0 {
		var err error
		if meta, err = json.Marshal(r.Metadata); err != nil {
			return err
		}
	}
	_, err := t.tx.Exec(t.ctx, `
		INSERT INTO econ_transactions
			(id, user_id, kind, entry, amount, counterparty_id, request_id, balance_after, created_at, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10::jsonb)`,
		r.ID, r.UserID, string(r.Kind), string(r.Entry), r.Amount, r.CounterpartyID, r.RequestID,
		r.BalanceAfter, r.Timestamp, string(meta))
	if err != nil {
		return domain.Unavailable("append record", err)
	}
	return nil
}

func (t *tx) loadClan(where string, arg any) (domain.Clan, error) {
	var c domain.Clan
	err := t.tx.QueryRow(t.ctx, `
		SELECT id, name, leader_id, bank, level, version, created_at
		FROM econ_clans WHERE `+where+` FOR UPDATE`, arg,
	).Scan(&c.ID, &c.Name, &c.LeaderID, &c.Bank, &c.Level, &c.Version, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Clan{}, domain.ErrClanNotFound
	}
	if err != nil {
		return domain.Clan{}, domain.Unavailable("get clan", err)
	}

	rows, err := t.tx.Query(t.ctx, `
		SELECT user_id FROM econ_clan_members WHERE clan_id = $1 ORDER BY position, user_id`, c.ID)
	if err != nil {
		return domain.Clan{}, domain.Unavailable("get clan members", err)
	}
	members, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return domain.Clan{}, domain.Unavailable("get clan members", err)
	}
	c.Members = members
	return c, nil
}

// ClanByID loads a clan with its members.
func (t *tx) ClanByID(id string) (domain.Clan, error) { return t.loadClan("id = $1", id) }

// ClanByName loads a clan by case-insensitive name.
func (t *tx) ClanByName(name string) (domain.Clan, error) {
	return t.loadClan("name_key = $1", domain.ClanKey(name))
}

// PutClan inserts or updates a clan and replaces its member set.
func (t *tx) PutClan(c domain.Clan) error {
	key := domain.ClanKey(c.Name)
	var other string
	err := t.tx.QueryRow(t.ctx,
		`SELECT id FROM econ_clans WHERE name_key = $1 AND id <> $2`, key, c.ID).Scan(&other)
	switch {
	case err == nil:
		return domain.ErrDuplicateName
	case !errors.Is(err, pgx.ErrNoRows):
		return domain.Unavailable("check clan name", err)
	}

	if c.Version == 0 {
		tag, err := t.tx.Exec(t.ctx, `
			INSERT INTO econ_clans (id, name, name_key, leader_id, bank, level, version, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, 1, $7)
			ON CONFLICT DO NOTHING`,
			c.ID, c.Name, key, c.LeaderID, c.Bank, c.Level, c.CreatedAt)
		if err != nil {
			return domain.Unavailable("put clan", err)
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrDuplicateName
		}
	} else {
		tag, err := t.tx.Exec(t.ctx, `
			UPDATE econ_clans SET name = $1, name_key = $2, leader_id = $3, bank = $4, level = $5,
				version = version + 1
			WHERE id = $6 AND version = $7`,
			c.Name, key, c.LeaderID, c.Bank, c.Level, c.ID, c.Version)
		if err != nil {
			return domain.Unavailable("put clan", err)
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrConflict
		}
	}

	if _, err := t.tx.Exec(t.ctx, `DELETE FROM econ_clan_members WHERE clan_id = $1`, c.ID); err != nil {
		return domain.Unavailable("reset clan members", err)
	}
	for i, m := range c.Members {
		if _, err := t.tx.Exec(t.ctx,
			`INSERT INTO econ_clan_members (user_id, clan_id, position) VALUES ($1, $2, $3)`,
			m, c.ID, i); err != nil {
			return domain.Unavailable("add clan member", err)
		}
	}
	return nil
}

// DeleteClan removes a clan; members cascade.
func (t *tx) DeleteClan(id string) error {
	tag, err := t.tx.Exec(t.ctx, `DELETE FROM econ_clans WHERE id = $1`, id)
	if err != nil {
		return domain.Unavailable("delete clan", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrClanNotFound
	}
	return nil
}

// Request returns a settled request.
func (t *tx) Request(id string) (domain.RequestRecord, bool, error) {
	var r domain.RequestRecord
	err := t.tx.QueryRow(t.ctx,
		`SELECT id, fingerprint, result, created_at FROM econ_requests WHERE id = $1`, id).
		Scan(&r.ID, &r.Fingerprint, &r.Result, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return r, false, nil
	}
	if err != nil {
		return r, false, domain.Unavailable("get request", err)
	}
	return r, true, nil
}

// PutRequest stores a settled request result.
func (t *tx) PutRequest(r domain.RequestRecord) error {
	_, err := t.tx.Exec(t.ctx,
		`INSERT INTO econ_requests (id, fingerprint, result, created_at) VALUES ($1, $2, $3, $4)`,
		r.ID, r.Fingerprint, r.Result, r.CreatedAt)
	if err != nil {
		return domain.Unavailable("put request", err)
	}
	return nil
}
