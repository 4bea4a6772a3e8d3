package sqlite

// ─── Schema ─────────────────────────────────────────────────────────────────

// Migrations returns the schema statements.
// Each string is a single SQL statement (SQLite executes one at a time).
func Migrations() []string {
	return []string{
		// One row per user. Balances are guarded by CHECK constraints as a
		// last line; the ledger rejects violations before writing.
		`CREATE TABLE IF NOT EXISTS accounts (
			user_id        TEXT PRIMARY KEY,
			wallet         INTEGER NOT NULL DEFAULT 0 CHECK (wallet >= 0),
			bank           INTEGER NOT NULL DEFAULT 0 CHECK (bank >= 0),
			total_earned   INTEGER NOT NULL DEFAULT 0,
			total_spent    INTEGER NOT NULL DEFAULT 0,
			work_count     INTEGER NOT NULL DEFAULT 0,
			rob_count      INTEGER NOT NULL DEFAULT 0,
			daily_count    INTEGER NOT NULL DEFAULT 0,
			last_work_at   TEXT,
			last_rob_at    TEXT,
			last_daily_key TEXT NOT NULL DEFAULT '',
			streak         INTEGER NOT NULL DEFAULT 0,
			longest_streak INTEGER NOT NULL DEFAULT 0,
			clan_id        TEXT NOT NULL DEFAULT '',
			version        INTEGER NOT NULL DEFAULT 1,
			created_at     TEXT NOT NULL,
			updated_at     TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_accounts_clan ON accounts(clan_id)`,

		// Append-only audit log.
		`CREATE TABLE IF NOT EXISTS transactions (
			seq             INTEGER PRIMARY KEY AUTOINCREMENT,
			id              TEXT NOT NULL UNIQUE,
			user_id         TEXT NOT NULL,
			kind            TEXT NOT NULL,
			entry           TEXT NOT NULL,
			amount          INTEGER NOT NULL,
			counterparty_id TEXT NOT NULL DEFAULT '',
			request_id      TEXT NOT NULL DEFAULT '',
			balance_after   INTEGER NOT NULL,
			created_at      TEXT NOT NULL,
			metadata        TEXT NOT NULL DEFAULT '{}'
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_user ON transactions(user_id, seq)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_request ON transactions(request_id)`,

		// Clans and membership. user_id as primary key enforces one clan per user.
		`CREATE TABLE IF NOT EXISTS clans (
			id         TEXT PRIMARY KEY,
			name       TEXT NOT NULL,
			name_key   TEXT NOT NULL UNIQUE,
			leader_id  TEXT NOT NULL,
			bank       INTEGER NOT NULL DEFAULT 0 CHECK (bank >= 0),
			level      INTEGER NOT NULL DEFAULT 1,
			version    INTEGER NOT NULL DEFAULT 1,
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS clan_members (
			user_id   TEXT PRIMARY KEY,
			clan_id   TEXT NOT NULL REFERENCES clans(id) ON DELETE CASCADE,
			position  INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_clan_members_clan ON clan_members(clan_id)`,

		// Settled request results for at-least-once delivery.
		`CREATE TABLE IF NOT EXISTS requests (
			id          TEXT PRIMARY KEY,
			fingerprint TEXT NOT NULL DEFAULT '',
			result      BLOB NOT NULL,
			created_at  TEXT NOT NULL
		)`,
	}
}
