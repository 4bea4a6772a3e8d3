// Package ledger is the only writer of account balances.
//
// Every mutation runs as one unit of work: the touched accounts are locked
// in-process in sorted order, loaded inside a single store transaction,
// mutated through a Session, checked against the balance invariants, and
// persisted together with the transaction records and the settled result of
// the request. A redelivered request id replays the stored result instead of
// mutating twice.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tutu-network/econ/internal/domain"
	"github.com/tutu-network/econ/internal/infra/observability"
)

// ─── Engine ─────────────────────────────────────────────────────────────────

// Config tunes the engine's storage behaviour.
type Config struct {
	Timeout         time.Duration // per unit of work, lock wait included
	MaxRetries      int           // on version conflicts
	MinRetryBackoff time.Duration
	MaxRetryBackoff time.Duration
}

// DefaultConfig returns the stock engine settings.
func DefaultConfig() Config {
	return Config{
		Timeout:         5 * time.Second,
		MaxRetries:      5,
		MinRetryBackoff: 5 * time.Millisecond,
		MaxRetryBackoff: 200 * time.Millisecond,
	}
}

// Engine owns the store, the economy rules and the in-process lock table.
type Engine struct {
	store  domain.Store
	rules  domain.Rules
	cfg    Config
	logger *zap.Logger
	locks  *Locker
	now    func() time.Time
}

// Option customizes an Engine.
type Option func(*Engine)

// WithClock overrides the time source used when a request carries no time.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithConfig overrides the storage settings.
func WithConfig(cfg Config) Option {
	return func(e *Engine) { e.cfg = cfg }
}

// New creates an engine over store.
func New(store domain.Store, rules domain.Rules, logger *zap.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:  store,
		rules:  rules,
		cfg:    DefaultConfig(),
		logger: logger,
		locks:  NewLocker(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Rules returns the economy rules the engine was built with.
func (e *Engine) Rules() domain.Rules { return e.rules }

// Logger returns the engine's logger.
func (e *Engine) Logger() *zap.Logger { return e.logger }

// Now returns the engine clock's current time.
func (e *Engine) Now() time.Time { return e.now() }

// ─── Unit of Work ───────────────────────────────────────────────────────────

// ErrStaleScope aborts a unit of work whose lock scope no longer covers what
// it has to touch. The caller re-reads and runs again with a wider scope.
var ErrStaleScope = errors.New("lock scope is stale")

// Request identifies one logical request. An empty ID disables replay.
// Fingerprint names the command behind the ID; a stored result only replays
// for the same fingerprint, so an ID reused by another user or action is
// rejected with ErrRequestReused.
type Request struct {
	ID          string
	Now         time.Time
	Fingerprint string
}

// Scope lists the account ids a unit of work may read or write.
type Scope struct {
	Accounts []string
}

// Accounts builds a Scope over ids.
func Accounts(ids ...string) Scope { return Scope{Accounts: ids} }

// Run executes fn as one atomic, idempotent unit of work. T must survive a
// JSON round trip because replays decode the stored result.
func Run[T any](ctx context.Context, e *Engine, req Request, scope Scope, fn func(*Session) (T, error)) (T, error) {
	var zero T
	if req.Now.IsZero() {
		req.Now = e.now()
	}
	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}

	unlock, err := e.locks.Lock(ctx, scope.Accounts)
	if err != nil {
		return zero, err
	}
	defer unlock()

	for attempt := 0; ; attempt++ {
		out, records, replayed, err := runOnce(ctx, e, req, scope, fn)
		switch {
		case err == nil:
			if replayed {
				observability.ReplayedRequests.Inc()
				e.logger.Info("Request replayed", zap.String("request_id", req.ID))
				return out, nil
			}
			for _, r := range records {
				observability.ObserveFlow(string(r.Kind), r.Amount)
			}
			return out, nil

		case errors.Is(err, domain.ErrConflict) && attempt < e.cfg.MaxRetries:
			observability.Conflicts.Inc()
			if werr := e.wait(ctx, attempt); werr != nil {
				return zero, werr
			}
			continue

		case errors.Is(err, domain.ErrConflict):
			return zero, domain.Unavailable("settle", err)

		case errors.Is(err, ErrStaleScope):
			e.logger.Debug("Scope changed, caller will retry", zap.String("request_id", req.ID))
			return zero, err

		case domain.IsRetryable(err):
			e.logger.Warn("Storage unavailable",
				zap.String("request_id", req.ID),
				zap.Strings("accounts", scope.Accounts),
				zap.Error(err))
			return zero, err

		case domain.IsExpected(err):
			e.logger.Debug("Request rejected",
				zap.String("request_id", req.ID),
				zap.Strings("accounts", scope.Accounts),
				zap.Error(err))
			return zero, err

		default:
			observability.Defects.Inc()
			e.logger.Error("Ledger defect, mutation aborted",
				zap.String("request_id", req.ID),
				zap.Strings("accounts", scope.Accounts),
				zap.Error(err))
			return zero, err
		}
	}
}

func runOnce[T any](ctx context.Context, e *Engine, req Request, scope Scope, fn func(*Session) (T, error)) (out T, records []domain.TransactionRecord, replayed bool, err error) {
	start := time.Now()
	err = e.store.Atomic(ctx, func(tx domain.Tx) error {
		if req.ID != "" {
			prev, found, err := tx.Request(req.ID)
			if err != nil {
				return err
			}
			if found {
				if prev.Fingerprint != req.Fingerprint {
					return fmt.Errorf("%w: %s", domain.ErrRequestReused, req.ID)
				}
				replayed = true
				if err := json.Unmarshal(prev.Result, &out); err != nil {
					return fmt.Errorf("%w: decode settled result %s: %v", domain.ErrInvariant, req.ID, err)
				}
				return nil
			}
		}

		s := newSession(e, tx, req, scope)
		v, err := fn(s)
		if err != nil {
			return err
		}
		if err := s.flush(); err != nil {
			return err
		}
		if req.ID != "" {
			raw, err := json.Marshal(v)
			if err != nil {
				return fmt.Errorf("encode result: %w", err)
			}
			if err := tx.PutRequest(domain.RequestRecord{
				ID:          req.ID,
				Fingerprint: req.Fingerprint,
				Result:      raw,
				CreatedAt:   req.Now,
			}); err != nil {
				return err
			}
		}
		out = v
		records = s.records
		return nil
	})
	observability.ObserveStorage(start, err)
	return out, records, replayed, err
}

func (e *Engine) wait(ctx context.Context, attempt int) error {
	d := e.cfg.MinRetryBackoff << attempt
	if d <= 0 || d > e.cfg.MaxRetryBackoff {
		d = e.cfg.MaxRetryBackoff
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return domain.Unavailable("retry", ctx.Err())
	}
}

// ─── Reads ──────────────────────────────────────────────────────────────────

// View runs a read-only fn inside a store transaction. It takes no locks and
// never creates accounts; fn must not write.
func View[T any](ctx context.Context, e *Engine, fn func(tx domain.Tx) (T, error)) (T, error) {
	ctx, cancel := e.readContext(ctx)
	defer cancel()

	var out T
	start := time.Now()
	err := e.store.Atomic(ctx, func(tx domain.Tx) error {
		v, err := fn(tx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	observability.ObserveStorage(start, err)
	return out, err
}

// Accounts returns every stored account.
func (e *Engine) Accounts(ctx context.Context) ([]domain.Account, error) {
	ctx, cancel := e.readContext(ctx)
	defer cancel()
	start := time.Now()
	accts, err := e.store.Accounts(ctx)
	observability.ObserveStorage(start, err)
	return accts, err
}

// Records returns a user's newest transaction records.
func (e *Engine) Records(ctx context.Context, userID string, limit int) ([]domain.TransactionRecord, error) {
	ctx, cancel := e.readContext(ctx)
	defer cancel()
	start := time.Now()
	recs, err := e.store.Records(ctx, userID, limit)
	observability.ObserveStorage(start, err)
	return recs, err
}

func (e *Engine) readContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.cfg.Timeout > 0 {
		return context.WithTimeout(ctx, e.cfg.Timeout)
	}
	return context.WithCancel(ctx)
}
