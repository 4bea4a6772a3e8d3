// Package dispatch turns a chat command into a call on the economy services
// and renders the outcome as a structured Result.
//
// The dispatcher never formats user-facing text. It reports what happened
// (fields) or why not (error kind) and leaves wording to the chat adapter.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tutu-network/econ/internal/app/actions"
	"github.com/tutu-network/econ/internal/app/clan"
	"github.com/tutu-network/econ/internal/app/leaderboard"
	"github.com/tutu-network/econ/internal/app/ledger"
	"github.com/tutu-network/econ/internal/domain"
	"github.com/tutu-network/econ/internal/infra/observability"
)

// Kinds the dispatcher adds on top of the domain taxonomy.
const (
	KindUnknownAction domain.ErrorKind = "unknown_action"
	KindBadArguments  domain.ErrorKind = "bad_arguments"
)

var (
	errUnknownAction = errors.New("unknown action")
	errBadArguments  = errors.New("bad arguments")
)

// Command is one inbound chat command.
type Command struct {
	RequestID string    `json:"request_id,omitempty"`
	UserID    string    `json:"user_id"`
	Action    string    `json:"action"`
	Args      []string  `json:"args,omitempty"`
	Now       time.Time `json:"now,omitempty"`
}

// Result is what the chat adapter renders.
type Result struct {
	RequestID        string           `json:"request_id"`
	Success          bool             `json:"success"`
	Action           string           `json:"action"`
	Fields           map[string]any   `json:"fields,omitempty"`
	ErrorKind        domain.ErrorKind `json:"error_kind,omitempty"`
	Error            string           `json:"error,omitempty"`
	Retryable        bool             `json:"retryable,omitempty"`
	RemainingSeconds int64            `json:"remaining_seconds,omitempty"`
}

// Dispatcher routes commands to the ledger, resolvers, clans and board.
type Dispatcher struct {
	engine  *ledger.Engine
	actions *actions.Resolver
	clans   *clan.Service
	board   *leaderboard.Board
	logger  *zap.Logger
	newID   func() string
}

// New creates a dispatcher.
func New(engine *ledger.Engine, res *actions.Resolver, clans *clan.Service, board *leaderboard.Board, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		engine:  engine,
		actions: res,
		clans:   clans,
		board:   board,
		logger:  logger,
		newID:   uuid.NewString,
	}
}

type handler func(d *Dispatcher, ctx context.Context, req ledger.Request, userID string, args []string) (map[string]any, error)

var handlers = map[string]handler{
	"balance":     (*Dispatcher).balance,
	"work":        (*Dispatcher).work,
	"daily":       (*Dispatcher).daily,
	"rob":         (*Dispatcher).rob,
	"transfer":    (*Dispatcher).transfer,
	"deposit":     (*Dispatcher).deposit,
	"withdraw":    (*Dispatcher).withdraw,
	"clan":        (*Dispatcher).clan,
	"leaderboard": (*Dispatcher).leaderboard,
}

// Actions lists the top-level actions the dispatcher understands.
func Actions() []string {
	return []string{"balance", "work", "daily", "rob", "transfer", "deposit", "withdraw", "clan", "leaderboard"}
}

// Fingerprint identifies what cmd does, independent of its request id. Two
// deliveries of the same chat message share a fingerprint; a different user,
// action or argument list does not.
func (cmd Command) Fingerprint() string {
	parts := make([]string, 0, len(cmd.Args)+2)
	parts = append(parts, strings.TrimSpace(cmd.UserID), strings.ToLower(strings.TrimSpace(cmd.Action)))
	for _, a := range cmd.Args {
		parts = append(parts, strings.TrimSpace(a))
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(strings.Join(parts, "\x00"))).String()
}

// Dispatch executes cmd. It never returns an error: every failure is
// described in the Result.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd Command) Result {
	action := strings.ToLower(strings.TrimSpace(cmd.Action))
	if cmd.RequestID == "" {
		cmd.RequestID = d.newID()
	}
	if cmd.Now.IsZero() {
		cmd.Now = d.engine.Now()
	}
	res := Result{RequestID: cmd.RequestID, Action: action}

	var (
		fields map[string]any
		err    error
	)
	h, ok := handlers[action]
	label := action
	if !ok {
		label = "unknown"
	}
	switch {
	case !ok:
		err = fmt.Errorf("%w %q (want one of %s)", errUnknownAction, cmd.Action, strings.Join(Actions(), ", "))
	case strings.TrimSpace(cmd.UserID) == "":
		err = fmt.Errorf("%w: user id is required", errBadArguments)
	default:
		req := ledger.Request{ID: cmd.RequestID, Now: cmd.Now, Fingerprint: cmd.Fingerprint()}
		fields, err = h(d, ctx, req, cmd.UserID, cmd.Args)
	}

	if err == nil {
		res.Success = true
		res.Fields = fields
		observability.ObserveAction(label, "ok")
		return res
	}

	res.ErrorKind = kindOf(err)
	res.Error = err.Error()
	res.Retryable = domain.IsRetryable(err)
	var cd *domain.CooldownError
	if errors.As(err, &cd) {
		res.RemainingSeconds = int64((cd.Remaining + time.Second - 1) / time.Second)
	}
	observability.ObserveAction(label, string(res.ErrorKind))

	if res.ErrorKind == domain.KindInternal {
		d.logger.Error("Command failed",
			zap.String("request_id", cmd.RequestID),
			zap.String("user_id", cmd.UserID),
			zap.String("action", action),
			zap.Error(err))
		res.Error = "internal error"
	} else {
		d.logger.Debug("Command rejected",
			zap.String("request_id", cmd.RequestID),
			zap.String("action", action),
			zap.String("kind", string(res.ErrorKind)))
	}
	return res
}

func kindOf(err error) domain.ErrorKind {
	switch {
	case errors.Is(err, errUnknownAction):
		return KindUnknownAction
	case errors.Is(err, errBadArguments):
		return KindBadArguments
	}
	return domain.KindOf(err)
}

// ─── Argument Parsing ───────────────────────────────────────────────────────

func arg(args []string, i int, name string) (string, error) {
	if i >= len(args) || strings.TrimSpace(args[i]) == "" {
		return "", fmt.Errorf("%w: missing %s", errBadArguments, name)
	}
	return strings.TrimSpace(args[i]), nil
}

// target strips chat mention syntax such as <@123> or <@!123>.
func target(args []string, i int) (string, error) {
	s, err := arg(args, i, "target")
	if err != nil {
		return "", err
	}
	s = strings.TrimPrefix(s, "<@")
	s = strings.TrimPrefix(s, "!")
	s = strings.TrimSuffix(s, ">")
	s = strings.TrimPrefix(s, "@")
	if s == "" {
		return "", fmt.Errorf("%w: empty target", errBadArguments)
	}
	return s, nil
}

// amount parses a positive integer amount. Thousands separators are allowed.
// "all" is reported separately so callers can resolve it under lock.
func amount(args []string, i int) (n int64, all bool, err error) {
	s, err := arg(args, i, "amount")
	if err != nil {
		return 0, false, err
	}
	if strings.EqualFold(s, "all") {
		return 0, true, nil
	}
	n, err = strconv.ParseInt(strings.NewReplacer(",", "", "_", "").Replace(s), 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("%w: %q is not a number", errBadArguments, s)
	}
	if n <= 0 {
		return 0, false, domain.ErrInvalidAmount
	}
	return n, false, nil
}

// ─── Handlers ───────────────────────────────────────────────────────────────

func accountFields(a domain.Account) map[string]any {
	return map[string]any{
		"wallet": a.Wallet,
		"bank":   a.Bank,
		"total":  a.Total(),
		"rank":   a.Rank().Name,
	}
}

func (d *Dispatcher) balance(ctx context.Context, _ ledger.Request, userID string, args []string) (map[string]any, error) {
	id := userID
	if len(args) > 0 {
		t, err := target(args, 0)
		if err != nil {
			return nil, err
		}
		id = t
	}
	a, err := d.engine.GetOrCreate(ctx, id)
	if err != nil {
		return nil, err
	}
	f := accountFields(a)
	f["user_id"] = a.UserID
	f["streak"] = a.Streak
	f["total_earned"] = a.TotalEarned
	f["total_spent"] = a.TotalSpent
	if a.ClanID != "" {
		f["clan_id"] = a.ClanID
	}
	return f, nil
}

func (d *Dispatcher) work(ctx context.Context, req ledger.Request, userID string, _ []string) (map[string]any, error) {
	r, err := d.actions.Work(ctx, req, userID)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"job":        r.Job,
		"payout":     r.Payout,
		"wallet":     r.Wallet,
		"work_count": r.WorkCount,
		"ready_at":   r.ReadyAt,
	}, nil
}

func (d *Dispatcher) daily(ctx context.Context, req ledger.Request, userID string, _ []string) (map[string]any, error) {
	r, err := d.actions.Daily(ctx, req, userID)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"payout":         r.Payout,
		"wallet":         r.Wallet,
		"streak":         r.Streak,
		"longest_streak": r.LongestStreak,
		"daily_count":    r.DailyCount,
		"ready_at":       r.ReadyAt,
	}, nil
}

func (d *Dispatcher) rob(ctx context.Context, req ledger.Request, userID string, args []string) (map[string]any, error) {
	victim, err := target(args, 0)
	if err != nil {
		return nil, err
	}
	r, err := d.actions.Rob(ctx, req, userID, victim)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"target":        victim,
		"robbed":        r.Success,
		"stolen":        r.Stolen,
		"penalty":       r.Penalty,
		"wallet":        r.RobberWallet,
		"target_wallet": r.VictimWallet,
		"rob_count":     r.RobCount,
		"ready_at":      r.ReadyAt,
	}, nil
}

func (d *Dispatcher) transfer(ctx context.Context, req ledger.Request, userID string, args []string) (map[string]any, error) {
	to, err := target(args, 0)
	if err != nil {
		return nil, err
	}
	n, all, err := amount(args, 1)
	if err != nil {
		return nil, err
	}
	if all {
		return nil, fmt.Errorf("%w: transfer needs an explicit amount", errBadArguments)
	}
	r, err := d.engine.Transfer(ctx, req, userID, to, n)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"target":        to,
		"amount":        r.Amount,
		"wallet":        r.From.Wallet,
		"target_wallet": r.To.Wallet,
	}, nil
}

func (d *Dispatcher) deposit(ctx context.Context, req ledger.Request, userID string, args []string) (map[string]any, error) {
	n, all, err := amount(args, 0)
	if err != nil {
		return nil, err
	}
	var a domain.Account
	if all {
		a, err = d.engine.DepositAll(ctx, req, userID)
	} else {
		a, err = d.engine.Deposit(ctx, req, userID, n)
	}
	if err != nil {
		return nil, err
	}
	return accountFields(a), nil
}

func (d *Dispatcher) withdraw(ctx context.Context, req ledger.Request, userID string, args []string) (map[string]any, error) {
	n, all, err := amount(args, 0)
	if err != nil {
		return nil, err
	}
	var a domain.Account
	if all {
		a, err = d.engine.WithdrawAll(ctx, req, userID)
	} else {
		a, err = d.engine.Withdraw(ctx, req, userID, n)
	}
	if err != nil {
		return nil, err
	}
	return accountFields(a), nil
}

func (d *Dispatcher) leaderboard(ctx context.Context, _ ledger.Request, _ string, args []string) (map[string]any, error) {
	n := 0
	if len(args) > 0 {
		v, err := strconv.Atoi(args[0])
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a number", errBadArguments, args[0])
		}
		n = v
	}
	entries, err := d.board.Top(ctx, n)
	if err != nil {
		return nil, err
	}
	return map[string]any{"entries": entries}, nil
}

// ─── Clan Subcommands ───────────────────────────────────────────────────────

func clanFields(r clan.Result) map[string]any {
	f := map[string]any{
		"clan_id": r.Clan.ID,
		"name":    r.Clan.Name,
		"leader":  r.Clan.LeaderID,
		"level":   r.Clan.Level,
		"bank":    r.Clan.Bank,
		"members": r.Members,
		"wallet":  r.Wallet,
	}
	if r.Cost > 0 {
		f["cost"] = r.Cost
	}
	if r.Payout > 0 {
		f["payout"] = r.Payout
	}
	return f
}

func infoFields(i clan.Info) map[string]any {
	return map[string]any{
		"clan_id":      i.Clan.ID,
		"name":         i.Clan.Name,
		"leader":       i.Clan.LeaderID,
		"level":        i.Clan.Level,
		"bank":         i.Clan.Bank,
		"members":      i.Clan.Members,
		"capacity":     i.Capacity,
		"upgrade_cost": i.UpgradeCost,
	}
}

func (d *Dispatcher) clan(ctx context.Context, req ledger.Request, userID string, args []string) (map[string]any, error) {
	sub, err := arg(args, 0, "clan subcommand")
	if err != nil {
		return nil, err
	}
	rest := args[1:]
	// Clan names may contain spaces.
	name := strings.Join(rest, " ")

	var r clan.Result
	switch strings.ToLower(sub) {
	case "create":
		r, err = d.clans.Create(ctx, req, userID, name)
	case "join":
		if strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("%w: missing clan name", errBadArguments)
		}
		r, err = d.clans.Join(ctx, req, userID, name)
	case "leave":
		r, err = d.clans.Leave(ctx, req, userID)
	case "disband":
		r, err = d.clans.Disband(ctx, req, userID)
	case "deposit":
		n, all, aerr := amount(rest, 0)
		if aerr != nil {
			return nil, aerr
		}
		if all {
			r, err = d.clans.DepositAll(ctx, req, userID)
		} else {
			r, err = d.clans.Deposit(ctx, req, userID, n)
		}
	case "upgrade":
		r, err = d.clans.Upgrade(ctx, req, userID)
	case "info":
		var i clan.Info
		if strings.TrimSpace(name) == "" {
			i, err = d.clans.Of(ctx, userID)
		} else {
			i, err = d.clans.Info(ctx, name)
		}
		if err != nil {
			return nil, err
		}
		return infoFields(i), nil
	default:
		return nil, fmt.Errorf("%w: unknown clan subcommand %q", errBadArguments, sub)
	}
	if err != nil {
		return nil, err
	}
	return clanFields(r), nil
}
