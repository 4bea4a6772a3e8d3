package domain

import "time"

// ─── Cooldown Gate ──────────────────────────────────────────────────────────
// Work and rob use rolling windows measured from the last use.
// Daily uses local calendar-day keys: one claim per day in the configured
// timezone, whatever the time of the previous claim.

// DateKeyLayout is the persisted format of a daily claim.
const DateKeyLayout = "2006-01-02"

// IsReady reports whether an action last used at lastUsedAt may run at now.
// A nil lastUsedAt (never used) is always ready.
func IsReady(lastUsedAt *time.Time, cooldown time.Duration, now time.Time) bool {
	return Remaining(lastUsedAt, cooldown, now) == 0
}

// Remaining returns how long until the action is ready. Never negative.
func Remaining(lastUsedAt *time.Time, cooldown time.Duration, now time.Time) time.Duration {
	if lastUsedAt == nil || cooldown <= 0 {
		return 0
	}
	left := lastUsedAt.Add(cooldown).Sub(now)
	if left < 0 {
		return 0
	}
	return left
}

// DateKey renders t as a calendar-day key in loc.
func DateKey(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(DateKeyLayout)
}

// DailyReady reports whether a daily claim is allowed at now.
func DailyReady(lastKey string, now time.Time, loc *time.Location) bool {
	return lastKey != DateKey(now, loc)
}

// UntilNextDay returns the time until the next local midnight.
func UntilNextDay(now time.Time, loc *time.Location) time.Duration {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	y, m, d := local.Date()
	midnight := time.Date(y, m, d+1, 0, 0, 0, 0, loc)
	return midnight.Sub(now)
}

// NextStreak returns the streak after a claim at now: consecutive local
// days extend it, any gap (or no previous claim) restarts at 1.
func NextStreak(lastKey string, streak int, now time.Time, loc *time.Location) int {
	if lastKey == "" {
		return 1
	}
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	y, m, d := local.Date()
	yesterday := time.Date(y, m, d-1, 12, 0, 0, 0, loc).Format(DateKeyLayout)
	if lastKey == yesterday {
		return streak + 1
	}
	return 1
}
