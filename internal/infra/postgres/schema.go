package postgres

// Migrations returns the idempotent schema statements.
func Migrations() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS econ_accounts (
			user_id        TEXT PRIMARY KEY,
			wallet         BIGINT NOT NULL DEFAULT 0 CHECK (wallet >= 0),
			bank           BIGINT NOT NULL DEFAULT 0 CHECK (bank >= 0),
			total_earned   BIGINT NOT NULL DEFAULT 0,
			total_spent    BIGINT NOT NULL DEFAULT 0,
			work_count     BIGINT NOT NULL DEFAULT 0,
			rob_count      BIGINT NOT NULL DEFAULT 0,
			daily_count    BIGINT NOT NULL DEFAULT 0,
			last_work_at   TIMESTAMPTZ,
			last_rob_at    TIMESTAMPTZ,
			last_daily_key TEXT NOT NULL DEFAULT '',
			streak         INTEGER NOT NULL DEFAULT 0,
			longest_streak INTEGER NOT NULL DEFAULT 0,
			clan_id        TEXT NOT NULL DEFAULT '',
			version        BIGINT NOT NULL DEFAULT 1,
			created_at     TIMESTAMPTZ NOT NULL,
			updated_at     TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_econ_accounts_clan ON econ_accounts(clan_id)`,

		`CREATE TABLE IF NOT EXISTS econ_transactions (
			seq             BIGSERIAL PRIMARY KEY,
			id              TEXT NOT NULL UNIQUE,
			user_id         TEXT NOT NULL,
			kind            TEXT NOT NULL,
			entry           TEXT NOT NULL,
			amount          BIGINT NOT NULL,
			counterparty_id TEXT NOT NULL DEFAULT '',
			request_id      TEXT NOT NULL DEFAULT '',
			balance_after   BIGINT NOT NULL,
			created_at      TIMESTAMPTZ NOT NULL,
			metadata        JSONB NOT NULL DEFAULT '{}'::jsonb
		)`,
		`CREATE INDEX IF NOT EXISTS idx_econ_transactions_user ON econ_transactions(user_id, seq)`,

		`CREATE TABLE IF NOT EXISTS econ_clans (
			id         TEXT PRIMARY KEY,
			name       TEXT NOT NULL,
			name_key   TEXT NOT NULL UNIQUE,
			leader_id  TEXT NOT NULL,
			bank       BIGINT NOT NULL DEFAULT 0 CHECK (bank >= 0),
			level      INTEGER NOT NULL DEFAULT 1,
			version    BIGINT NOT NULL DEFAULT 1,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS econ_clan_members (
			user_id  TEXT PRIMARY KEY,
			clan_id  TEXT NOT NULL REFERENCES econ_clans(id) ON DELETE CASCADE,
			position INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_econ_clan_members_clan ON econ_clan_members(clan_id)`,

		`CREATE TABLE IF NOT EXISTS econ_requests (
			id          TEXT PRIMARY KEY,
			fingerprint TEXT NOT NULL DEFAULT '',
			result      BYTEA NOT NULL,
			created_at  TIMESTAMPTZ NOT NULL
		)`,
		`ALTER TABLE econ_requests ADD COLUMN IF NOT EXISTS fingerprint TEXT NOT NULL DEFAULT ''`,
	}
}
