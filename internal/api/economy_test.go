package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/tutu-network/econ/internal/app/actions"
	"github.com/tutu-network/econ/internal/app/clan"
	"github.com/tutu-network/econ/internal/app/dispatch"
	"github.com/tutu-network/econ/internal/app/leaderboard"
	"github.com/tutu-network/econ/internal/app/ledger"
	"github.com/tutu-network/econ/internal/domain"
	"github.com/tutu-network/econ/internal/infra/sqlite"
)

// ─── Economy API Tests ──────────────────────────────────────────────────────

func setupServer(t *testing.T) (http.Handler, *ledger.Engine) {
	t.Helper()
	db, err := sqlite.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logger := zaptest.NewLogger(t)
	e := ledger.New(db, domain.DefaultRules(), logger)
	clans := clan.New(e)
	board := leaderboard.New(e, domain.DefaultLeaderboardConfig())
	econ := &EconomyAPI{
		Engine:     e,
		Dispatcher: dispatch.New(e, actions.New(e, nil), clans, board, logger),
		Board:      board,
		Clans:      clans,
	}
	s := NewServer(econ, logger)
	s.EnableMetrics()
	return s.Handler(), e
}

func do(t *testing.T, h http.Handler, method, path, body string, header ...string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var resp map[string]interface{}
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return w, resp
}

func TestHealth(t *testing.T) {
	h, _ := setupServer(t)
	w, resp := do(t, h, http.MethodGet, "/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if resp["status"] != "ok" {
		t.Errorf("expected status=ok, got %v", resp["status"])
	}
}

func TestMetrics(t *testing.T) {
	h, _ := setupServer(t)
	do(t, h, http.MethodPost, "/api/economy/commands", `{"user_id":"alice","action":"balance"}`)

	w, _ := do(t, h, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "econ_actions_total") {
		t.Error("expected econ_actions_total in /metrics output")
	}
}

func TestCommand_Success(t *testing.T) {
	h, _ := setupServer(t)
	w, resp := do(t, h, http.MethodPost, "/api/economy/commands",
		`{"user_id":"alice","action":"deposit","args":["400"]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if resp["success"] != true {
		t.Fatalf("expected success, got %v", resp)
	}
	fields := resp["fields"].(map[string]interface{})
	if fields["bank"] != float64(400) || fields["wallet"] != float64(600) {
		t.Errorf("unexpected balances: %v", fields)
	}
}

func TestCommand_Rejections(t *testing.T) {
	h, _ := setupServer(t)
	tests := []struct {
		name   string
		body   string
		status int
		kind   string
	}{
		{"unknown action", `{"user_id":"a","action":"fly"}`, http.StatusBadRequest, "unknown_action"},
		{"bad amount", `{"user_id":"a","action":"deposit","args":["x"]}`, http.StatusBadRequest, "bad_arguments"},
		{"insufficient", `{"user_id":"a","action":"withdraw","args":["10"]}`, http.StatusUnprocessableEntity, "insufficient_funds"},
		{"self target", `{"user_id":"a","action":"rob","args":["a"]}`, http.StatusUnprocessableEntity, "self_target"},
		{"clan missing", `{"user_id":"a","action":"clan","args":["join","ghosts"]}`, http.StatusNotFound, "clan_not_found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, resp := do(t, h, http.MethodPost, "/api/economy/commands", tt.body)
			if w.Code != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, w.Code, w.Body.String())
			}
			if resp["error_kind"] != tt.kind {
				t.Errorf("expected kind %s, got %v", tt.kind, resp["error_kind"])
			}
		})
	}
}

func TestCommand_Cooldown(t *testing.T) {
	h, _ := setupServer(t)
	body := `{"user_id":"alice","action":"work","now":"2026-01-01T10:00:00Z"}`
	if w, _ := do(t, h, http.MethodPost, "/api/economy/commands", body); w.Code != http.StatusOK {
		t.Fatalf("first work: %d %s", w.Code, w.Body.String())
	}

	body = `{"user_id":"alice","action":"work","now":"2026-01-01T10:15:00Z"}`
	w, resp := do(t, h, http.MethodPost, "/api/economy/commands", body)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	if resp["remaining_seconds"] != float64(45*60) {
		t.Errorf("expected 2700s remaining, got %v", resp["remaining_seconds"])
	}
}

func TestCommand_IdempotencyKey(t *testing.T) {
	h, e := setupServer(t)
	body := `{"user_id":"alice","action":"transfer","args":["bob","250"]}`

	for i := 0; i < 3; i++ {
		w, resp := do(t, h, http.MethodPost, "/api/economy/commands", body, "Idempotency-Key", "msg-42")
		if w.Code != http.StatusOK {
			t.Fatalf("attempt %d: %d %s", i, w.Code, w.Body.String())
		}
		if resp["request_id"] != "msg-42" {
			t.Errorf("expected request_id msg-42, got %v", resp["request_id"])
		}
	}

	bob, err := e.GetOrCreate(context.Background(), "bob")
	if err != nil {
		t.Fatalf("get bob: %v", err)
	}
	if bob.Wallet != 1250 {
		t.Errorf("expected one transfer to land, bob has %d", bob.Wallet)
	}

	// Another command under the same key is refused, not answered with the
	// transfer's stored result.
	w, resp := do(t, h, http.MethodPost, "/api/economy/commands", `{"user_id":"carol","action":"daily"}`, "Idempotency-Key", "msg-42")
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 for a reused key, got %d %s", w.Code, w.Body.String())
	}
	if resp["error_kind"] != "request_reused" {
		t.Errorf("expected request_reused, got %v", resp["error_kind"])
	}
}

func TestCommand_BadJSON(t *testing.T) {
	h, _ := setupServer(t)
	w, _ := do(t, h, http.MethodPost, "/api/economy/commands", `{"user_id":`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	w, _ = do(t, h, http.MethodPost, "/api/economy/commands", `{"user":"a","action":"work"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown field, got %d", w.Code)
	}
}

func TestAccount(t *testing.T) {
	h, e := setupServer(t)

	w, resp := do(t, h, http.MethodGet, "/api/economy/accounts/nobody", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	if kind := resp["error"].(map[string]interface{})["kind"]; kind != "account_not_found" {
		t.Errorf("expected account_not_found, got %v", kind)
	}

	if _, err := e.Credit(context.Background(), ledger.Request{}, "alice", 4500, "grant"); err != nil {
		t.Fatalf("credit: %v", err)
	}
	w, resp = do(t, h, http.MethodGet, "/api/economy/accounts/alice", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if resp["total"] != float64(5500) || resp["rank"] != "Worker" {
		t.Errorf("unexpected account view: %v", resp)
	}
}

func TestTransactions(t *testing.T) {
	h, e := setupServer(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := e.Credit(ctx, ledger.Request{Now: time.Now()}, "alice", 10, "grant"); err != nil {
			t.Fatalf("credit: %v", err)
		}
	}

	w, resp := do(t, h, http.MethodGet, "/api/economy/accounts/alice/transactions?limit=2", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if resp["count"] != float64(2) {
		t.Errorf("expected 2 records, got %v", resp["count"])
	}

	w, resp = do(t, h, http.MethodGet, "/api/economy/accounts/ghost/transactions", "")
	if w.Code != http.StatusOK || resp["count"] != float64(0) {
		t.Errorf("expected empty history, got %d %v", w.Code, resp)
	}

	w, _ = do(t, h, http.MethodGet, "/api/economy/accounts/alice/transactions?limit=-1", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestLeaderboard(t *testing.T) {
	h, e := setupServer(t)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		if _, err := e.GetOrCreate(ctx, id); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}
	if _, err := e.Credit(ctx, ledger.Request{}, "c", 1, "grant"); err != nil {
		t.Fatalf("credit: %v", err)
	}

	w, resp := do(t, h, http.MethodGet, "/api/economy/leaderboard?n=2", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	entries := resp["entries"].([]interface{})
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	first := entries[0].(map[string]interface{})
	second := entries[1].(map[string]interface{})
	if first["user_id"] != "c" || second["user_id"] != "a" {
		t.Errorf("unexpected order: %v, %v", first["user_id"], second["user_id"])
	}
}

func TestClan(t *testing.T) {
	h, e := setupServer(t)
	ctx := context.Background()
	if _, err := e.Credit(ctx, ledger.Request{}, "lead", 5000, "grant"); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if _, err := clan.New(e).Create(ctx, ledger.Request{}, "lead", "Owls"); err != nil {
		t.Fatalf("create clan: %v", err)
	}

	w, resp := do(t, h, http.MethodGet, "/api/economy/clans/owls", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if resp["capacity"] != float64(30) {
		t.Errorf("expected capacity 30, got %v", resp["capacity"])
	}

	w, _ = do(t, h, http.MethodGet, "/api/economy/clans/ghosts", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}
