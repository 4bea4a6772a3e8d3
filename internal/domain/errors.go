package domain

import (
	"errors"
	"fmt"
	"time"
)

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors carry no infrastructure dependency.

var (
	// Ledger errors
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidAmount     = errors.New("amount must be a positive integer")

	// Action errors
	ErrTargetTooPoor  = errors.New("target does not have enough to rob")
	ErrRobberTooPoor  = errors.New("robber cannot cover the bail")
	ErrSelfTarget     = errors.New("cannot target yourself")
	ErrCooldownActive = errors.New("cooldown active")

	// Clan errors
	ErrDuplicateName     = errors.New("clan name already taken")
	ErrAlreadyInClan     = errors.New("already in a clan")
	ErrNotClanLeader     = errors.New("only the clan leader can do that")
	ErrClanNotFound      = errors.New("clan not found")
	ErrNotInClan         = errors.New("not in a clan")
	ErrLeaderCannotLeave = errors.New("leader must disband instead of leaving")
	ErrClanFull          = errors.New("clan is full")
	ErrInvalidName       = errors.New("clan name must be 1-32 visible characters")

	// Storage errors
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrAccountNotFound    = errors.New("account not found")
	ErrConflict           = errors.New("concurrent modification")
	ErrRequestReused      = errors.New("request id already settled a different command")

	// Defects: never expected, always logged.
	ErrInvariant = errors.New("invariant violation")
)

// CooldownError carries the time left before an action may run again.
type CooldownError struct {
	Action    string
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("%s on cooldown for %s", e.Action, e.Remaining.Round(time.Second))
}

// Is lets errors.Is(err, ErrCooldownActive) match.
func (e *CooldownError) Is(target error) bool { return target == ErrCooldownActive }

// ─── Error Kinds ────────────────────────────────────────────────────────────

// ErrorKind is the stable name a dispatcher renders a message from.
type ErrorKind string

const (
	KindNone               ErrorKind = ""
	KindInsufficientFunds  ErrorKind = "insufficient_funds"
	KindInvalidAmount      ErrorKind = "invalid_amount"
	KindTargetTooPoor      ErrorKind = "target_too_poor"
	KindRobberTooPoor      ErrorKind = "robber_too_poor"
	KindSelfTarget         ErrorKind = "self_target"
	KindCooldownActive     ErrorKind = "cooldown_active"
	KindDuplicateName      ErrorKind = "duplicate_name"
	KindAlreadyInClan      ErrorKind = "already_in_clan"
	KindNotClanLeader      ErrorKind = "not_clan_leader"
	KindClanNotFound       ErrorKind = "clan_not_found"
	KindNotInClan          ErrorKind = "not_in_clan"
	KindLeaderCannotLeave  ErrorKind = "leader_cannot_leave"
	KindClanFull           ErrorKind = "clan_full"
	KindInvalidName        ErrorKind = "invalid_name"
	KindAccountNotFound    ErrorKind = "account_not_found"
	KindRequestReused      ErrorKind = "request_reused"
	KindStorageUnavailable ErrorKind = "storage_unavailable"
	KindInternal           ErrorKind = "internal"
)

var kinds = []struct {
	err  error
	kind ErrorKind
}{
	{ErrInsufficientFunds, KindInsufficientFunds},
	{ErrInvalidAmount, KindInvalidAmount},
	{ErrTargetTooPoor, KindTargetTooPoor},
	{ErrRobberTooPoor, KindRobberTooPoor},
	{ErrSelfTarget, KindSelfTarget},
	{ErrCooldownActive, KindCooldownActive},
	{ErrDuplicateName, KindDuplicateName},
	{ErrAlreadyInClan, KindAlreadyInClan},
	{ErrNotClanLeader, KindNotClanLeader},
	{ErrClanNotFound, KindClanNotFound},
	{ErrNotInClan, KindNotInClan},
	{ErrLeaderCannotLeave, KindLeaderCannotLeave},
	{ErrClanFull, KindClanFull},
	{ErrInvalidName, KindInvalidName},
	{ErrAccountNotFound, KindAccountNotFound},
	{ErrRequestReused, KindRequestReused},
	{ErrStorageUnavailable, KindStorageUnavailable},
}

// KindOf maps an error to its kind. Unknown errors are internal defects.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}

// IsExpected reports whether err belongs to the recoverable taxonomy.
func IsExpected(err error) bool {
	k := KindOf(err)
	return k != KindNone && k != KindInternal
}

// IsRetryable reports whether the caller may retry the same request.
// Only storage unavailability qualifies.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStorageUnavailable)
}

// Unavailable wraps a driver error as ErrStorageUnavailable.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %v", ErrStorageUnavailable, op, err)
}
