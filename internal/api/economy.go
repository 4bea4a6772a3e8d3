package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tutu-network/econ/internal/app/clan"
	"github.com/tutu-network/econ/internal/app/dispatch"
	"github.com/tutu-network/econ/internal/app/leaderboard"
	"github.com/tutu-network/econ/internal/app/ledger"
	"github.com/tutu-network/econ/internal/domain"
)

// ─── Economy API ────────────────────────────────────────────────────────────
//
// POST /api/economy/commands                     run a chat command
// GET  /api/economy/accounts/{id}                balances, stats, rank
// GET  /api/economy/accounts/{id}/transactions   newest records (?limit=)
// GET  /api/economy/leaderboard                  top accounts (?n=)
// GET  /api/economy/clans/{name}                 clan info

const (
	defaultHistory = 20
	maxHistory     = 200
	maxCommandBody = 64 << 10
)

// EconomyAPI holds references to the economy services.
type EconomyAPI struct {
	Engine     *ledger.Engine
	Dispatcher *dispatch.Dispatcher
	Board      *leaderboard.Board
	Clans      *clan.Service
}

// statusFor maps an error kind to an HTTP status.
func statusFor(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindNone:
		return http.StatusOK
	case dispatch.KindUnknownAction, dispatch.KindBadArguments, domain.KindInvalidAmount, domain.KindInvalidName:
		return http.StatusBadRequest
	case domain.KindAccountNotFound, domain.KindClanNotFound:
		return http.StatusNotFound
	case domain.KindRequestReused:
		return http.StatusConflict
	case domain.KindCooldownActive:
		return http.StatusTooManyRequests
	case domain.KindStorageUnavailable:
		return http.StatusServiceUnavailable
	case domain.KindInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusUnprocessableEntity
	}
}

func writeDomainError(w http.ResponseWriter, err error) {
	kind := domain.KindOf(err)
	msg := err.Error()
	if kind == domain.KindInternal {
		msg = "internal error"
	}
	writeError(w, statusFor(kind), string(kind), msg)
}

// HandleCommand runs one chat command through the dispatcher. The body is a
// dispatch.Command; an Idempotency-Key header fills in a missing request id.
// POST /api/economy/commands
func (e *EconomyAPI) HandleCommand(w http.ResponseWriter, r *http.Request) {
	var cmd dispatch.Command
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxCommandBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cmd); err != nil {
		writeError(w, http.StatusBadRequest, string(dispatch.KindBadArguments), "invalid JSON body: "+err.Error())
		return
	}
	if cmd.RequestID == "" {
		cmd.RequestID = r.Header.Get("Idempotency-Key")
	}

	res := e.Dispatcher.Dispatch(r.Context(), cmd)
	writeJSON(w, statusFor(res.ErrorKind), res)
}

// HandleAccount returns one account without creating it.
// GET /api/economy/accounts/{id}
func (e *EconomyAPI) HandleAccount(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	a, err := ledger.View(r.Context(), e.Engine, func(tx domain.Tx) (domain.Account, error) {
		return tx.Account(id)
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"account": a,
		"total":   a.Total(),
		"rank":    a.Rank().Name,
	})
}

// HandleTransactions returns an account's newest records.
// GET /api/economy/accounts/{id}/transactions?limit=20
func (e *EconomyAPI) HandleTransactions(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistory
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, string(dispatch.KindBadArguments), "limit must be a positive integer")
			return
		}
		limit = min(n, maxHistory)
	}

	recs, err := e.Engine.Records(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if recs == nil {
		recs = []domain.TransactionRecord{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": recs,
		"count":        len(recs),
	})
}

// HandleLeaderboard returns the richest accounts.
// GET /api/economy/leaderboard?n=10
func (e *EconomyAPI) HandleLeaderboard(w http.ResponseWriter, r *http.Request) {
	n := 0
	if s := r.URL.Query().Get("n"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, string(dispatch.KindBadArguments), "n must be an integer")
			return
		}
		n = v
	}

	entries, err := e.Board.Top(r.Context(), n)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
		"limit":   e.Board.Limit(n),
	})
}

// HandleClan returns a clan by name.
// GET /api/economy/clans/{name}
func (e *EconomyAPI) HandleClan(w http.ResponseWriter, r *http.Request) {
	info, err := e.Clans.Info(r.Context(), chi.URLParam(r, "name"))
	if errors.Is(err, domain.ErrClanNotFound) {
		writeError(w, http.StatusNotFound, string(domain.KindClanNotFound), "clan not found")
		return
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}
