package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/tutu-network/econ/internal/domain"
)

// tx implements domain.Tx over one *sql.Tx.
type tx struct {
	ctx context.Context
	tx  *sql.Tx
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// ─── Account Operations ─────────────────────────────────────────────────────

const accountColumns = `user_id, wallet, bank, total_earned, total_spent,
	work_count, rob_count, daily_count, last_work_at, last_rob_at, last_daily_key,
	streak, longest_streak, clan_id, version, created_at, updated_at`

func scanAccount(s scanner) (domain.Account, error) {
	var a domain.Account
	var lastWork, lastRob sql.NullString
	var created, updated string
	err := s.Scan(&a.UserID, &a.Wallet, &a.Bank, &a.TotalEarned, &a.TotalSpent,
		&a.WorkCount, &a.RobCount, &a.DailyCount, &lastWork, &lastRob, &a.LastDailyKey,
		&a.Streak, &a.LongestStreak, &a.ClanID, &a.Version, &created, &updated)
	if err != nil {
		return a, err
	}
	a.LastWorkAt = timePtr(lastWork)
	a.LastRobAt = timePtr(lastRob)
	a.CreatedAt = parseTime(created)
	a.UpdatedAt = parseTime(updated)
	return a, nil
}

// Account loads one account.
func (t *tx) Account(userID string) (domain.Account, error) {
	row := t.tx.QueryRowContext(t.ctx, `SELECT `+accountColumns+` FROM accounts WHERE user_id = ?`, userID)
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Account{}, domain.ErrAccountNotFound
	}
	if err != nil {
		return domain.Account{}, domain.Unavailable("get account", err)
	}
	return a, nil
}

// PutAccount inserts a new account or updates one at the expected version.
func (t *tx) PutAccount(a domain.Account) error {
	var (
		res sql.Result
		err error
	)
	if a.Version == 0 {
		res, err = t.tx.ExecContext(t.ctx, `
			INSERT INTO accounts (`+accountColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
			ON CONFLICT(user_id) DO NOTHING
		`, a.UserID, a.Wallet, a.Bank, a.TotalEarned, a.TotalSpent,
			a.WorkCount, a.RobCount, a.DailyCount, nullTime(a.LastWorkAt), nullTime(a.LastRobAt), a.LastDailyKey,
			a.Streak, a.LongestStreak, a.ClanID, formatTime(a.CreatedAt), formatTime(a.UpdatedAt))
	} else {
		res, err = t.tx.ExecContext(t.ctx, `
			UPDATE accounts SET
				wallet = ?, bank = ?, total_earned = ?, total_spent = ?,
				work_count = ?, rob_count = ?, daily_count = ?,
				last_work_at = ?, last_rob_at = ?, last_daily_key = ?,
				streak = ?, longest_streak = ?, clan_id = ?,
				version = version + 1, updated_at = ?
			WHERE user_id = ? AND version = ?
		`, a.Wallet, a.Bank, a.TotalEarned, a.TotalSpent,
			a.WorkCount, a.RobCount, a.DailyCount,
			nullTime(a.LastWorkAt), nullTime(a.LastRobAt), a.LastDailyKey,
			a.Streak, a.LongestStreak, a.ClanID,
			formatTime(a.UpdatedAt), a.UserID, a.Version)
	}
	if err != nil {
		return domain.Unavailable("put account", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return domain.Unavailable("put account", err)
	}
	if n == 0 {
		return domain.ErrConflict
	}
	return nil
}

// ─── Transaction Log ────────────────────────────────────────────────────────

// AppendRecord appends one audit row.
func (t *tx) AppendRecord(r domain.TransactionRecord) error {
	meta, err := json.Marshal(r.Metadata)
	if err != nil {
		return err
	}
	_, err = t.tx.ExecContext(t.ctx, `
		INSERT INTO transactions (id, user_id, kind, entry, amount, counterparty_id, request_id, balance_after, created_at, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.UserID, string(r.Kind), string(r.Entry), r.Amount, r.CounterpartyID, r.RequestID,
		r.BalanceAfter, formatTime(r.Timestamp), string(meta))
	if err != nil {
		return domain.Unavailable("append record", err)
	}
	return nil
}

func scanRecord(s scanner) (domain.TransactionRecord, error) {
	var r domain.TransactionRecord
	var kind, ent, ts, meta string
	if err := s.Scan(&r.ID, &r.UserID, &kind, &ent, &r.Amount, &r.CounterpartyID, &r.RequestID,
		&r.BalanceAfter, &ts, &meta); err != nil {
		return r, err
	}
	r.Kind = domain.TransactionKind(kind)
	r.Entry = domain.EntryType(ent)
	r.Timestamp = parseTime(ts)
	if meta != "" && meta != "null" {
		if err := json.Unmarshal([]byte(meta), &r.Metadata); err != nil {
			return r, err
		}
	}
	return r, nil
}

// ─── Clan Operations ────────────────────────────────────────────────────────

func (t *tx) loadClan(where string, arg any) (domain.Clan, error) {
	var (
		c       domain.Clan
		created string
	)
	err := t.tx.QueryRowContext(t.ctx, `
		SELECT id, name, leader_id, bank, level, version, created_at FROM clans WHERE `+where, arg,
	).Scan(&c.ID, &c.Name, &c.LeaderID, &c.Bank, &c.Level, &c.Version, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Clan{}, domain.ErrClanNotFound
	}
	if err != nil {
		return domain.Clan{}, domain.Unavailable("get clan", err)
	}
	c.CreatedAt = parseTime(created)

	rows, err := t.tx.QueryContext(t.ctx, `
		SELECT user_id FROM clan_members WHERE clan_id = ? ORDER BY position, user_id
	`, c.ID)
	if err != nil {
		return domain.Clan{}, domain.Unavailable("get clan members", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return domain.Clan{}, domain.Unavailable("scan clan member", err)
		}
		c.Members = append(c.Members, id)
	}
	if err := rows.Err(); err != nil {
		return domain.Clan{}, domain.Unavailable("get clan members", err)
	}
	return c, nil
}

// ClanByID loads a clan with its members.
func (t *tx) ClanByID(id string) (domain.Clan, error) { return t.loadClan("id = ?", id) }

// ClanByName loads a clan by case-insensitive name.
func (t *tx) ClanByName(name string) (domain.Clan, error) {
	return t.loadClan("name_key = ?", domain.ClanKey(name))
}

// PutClan inserts or updates a clan and replaces its member set.
func (t *tx) PutClan(c domain.Clan) error {
	key := domain.ClanKey(c.Name)
	var other string
	err := t.tx.QueryRowContext(t.ctx, `SELECT id FROM clans WHERE name_key = ? AND id <> ?`, key, c.ID).Scan(&other)
	switch {
	case err == nil:
		return domain.ErrDuplicateName
	case !errors.Is(err, sql.ErrNoRows):
		return domain.Unavailable("check clan name", err)
	}

	var res sql.Result
	if c.Version == 0 {
		res, err = t.tx.ExecContext(t.ctx, `
			INSERT INTO clans (id, name, name_key, leader_id, bank, level, version, created_at)
			VALUES (?, ?, ?, ?, ?, ?, 1, ?)
			ON CONFLICT(id) DO NOTHING
		`, c.ID, c.Name, key, c.LeaderID, c.Bank, c.Level, formatTime(c.CreatedAt))
	} else {
		res, err = t.tx.ExecContext(t.ctx, `
			UPDATE clans SET name = ?, name_key = ?, leader_id = ?, bank = ?, level = ?, version = version + 1
			WHERE id = ? AND version = ?
		`, c.Name, key, c.LeaderID, c.Bank, c.Level, c.ID, c.Version)
	}
	if err != nil {
		return domain.Unavailable("put clan", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return domain.Unavailable("put clan", err)
	} else if n == 0 {
		return domain.ErrConflict
	}

	if _, err := t.tx.ExecContext(t.ctx, `DELETE FROM clan_members WHERE clan_id = ?`, c.ID); err != nil {
		return domain.Unavailable("reset clan members", err)
	}
	for i, m := range c.Members {
		if _, err := t.tx.ExecContext(t.ctx, `
			INSERT INTO clan_members (user_id, clan_id, position) VALUES (?, ?, ?)
		`, m, c.ID, i); err != nil {
			return domain.Unavailable("add clan member", err)
		}
	}
	return nil
}

// DeleteClan removes a clan; members cascade.
func (t *tx) DeleteClan(id string) error {
	res, err := t.tx.ExecContext(t.ctx, `DELETE FROM clans WHERE id = ?`, id)
	if err != nil {
		return domain.Unavailable("delete clan", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrClanNotFound
	}
	return nil
}

// ─── Request Records ────────────────────────────────────────────────────────

// Request returns a settled request.
func (t *tx) Request(id string) (domain.RequestRecord, bool, error) {
	var (
		r       domain.RequestRecord
		created string
	)
	err := t.tx.QueryRowContext(t.ctx, `SELECT id, fingerprint, result, created_at FROM requests WHERE id = ?`, id).
		Scan(&r.ID, &r.Fingerprint, &r.Result, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return r, false, nil
	}
	if err != nil {
		return r, false, domain.Unavailable("get request", err)
	}
	r.CreatedAt = parseTime(created)
	return r, true, nil
}

// PutRequest stores a settled request result.
func (t *tx) PutRequest(r domain.RequestRecord) error {
	_, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO requests (id, fingerprint, result, created_at) VALUES (?, ?, ?, ?)
	`, r.ID, r.Fingerprint, r.Result, formatTime(r.CreatedAt))
	if err != nil {
		return domain.Unavailable("put request", err)
	}
	return nil
}
