package engine_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/desports/wager-engine/internal/access"
	"github.com/desports/wager-engine/internal/engine"
	"github.com/desports/wager-engine/internal/model"
	"github.com/desports/wager-engine/internal/store"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

// newTestEnv creates a test Service with in-memory store and chi router.
// "admin" is the administrator; "bridge" is the single authorized bridge.
func newTestEnv(t *testing.T) (*engine.Service, *store.MemoryStore, chi.Router) {
	t.Helper()
	ms := store.NewMemoryStore()
	guard := access.NewGuard("admin", []string{"bridge"})
	svc := engine.NewService(ms, guard, nil)

	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		svc.RegisterRoutes(r)
	})
	return svc, ms, r
}

func do(t *testing.T, router chi.Router, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// deposit credits an account through the bridge deposit endpoint.
func deposit(t *testing.T, router chi.Router, account string, amount float64) {
	t.Helper()
	w := do(t, router, "POST", "/api/v1/deposits", engine.DepositRequest{
		Caller:  "bridge",
		Account: account,
		Amount:  d(amount),
		Channel: "native",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("deposit failed: %d %s", w.Code, w.Body.String())
	}
}

func balanceOf(t *testing.T, router chi.Router, account string) decimal.Decimal {
	t.Helper()
	w := do(t, router, "GET", "/api/v1/accounts/"+account+"/balance", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("balance query failed: %d %s", w.Code, w.Body.String())
	}
	var resp struct {
		Balance decimal.Decimal `json:"balance"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	return resp.Balance
}

// --- Deposits ---

func TestDeposit_CreditsBalance(t *testing.T) {
	_, _, router := newTestEnv(t)

	deposit(t, router, "alice", 100)

	if got := balanceOf(t, router, "alice"); !got.Equal(d(100)) {
		t.Errorf("expected balance 100, got %s", got)
	}
}

func TestDeposit_UnauthorizedCaller(t *testing.T) {
	_, _, router := newTestEnv(t)

	w := do(t, router, "POST", "/api/v1/deposits", engine.DepositRequest{
		Caller:  "alice",
		Account: "alice",
		Amount:  d(100),
		Channel: "native",
	})
	if w.Code != http.StatusForbidden {
		t.Errorf("expected 403 for non-bridge caller, got %d", w.Code)
	}
	if got := balanceOf(t, router, "alice"); !got.IsZero() {
		t.Errorf("balance should be untouched, got %s", got)
	}
}

func TestDeposit_UnknownChannel(t *testing.T) {
	_, _, router := newTestEnv(t)

	w := do(t, router, "POST", "/api/v1/deposits", engine.DepositRequest{
		Caller:  "bridge",
		Account: "alice",
		Amount:  d(100),
		Channel: "sidechain",
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown channel, got %d", w.Code)
	}
}

func TestDeposit_FractionalAmountRejected(t *testing.T) {
	_, _, router := newTestEnv(t)

	w := do(t, router, "POST", "/api/v1/deposits", engine.DepositRequest{
		Caller:  "bridge",
		Account: "alice",
		Amount:  d(1.5),
		Channel: "native",
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for fractional amount, got %d", w.Code)
	}
}

// --- Pause ---

func TestPause_BlocksMutationsButNotDeposits(t *testing.T) {
	_, _, router := newTestEnv(t)

	w := do(t, router, "POST", "/api/v1/admin/pause", engine.PauseRequest{Caller: "admin", Paused: true})
	if w.Code != http.StatusOK {
		t.Fatalf("pause failed: %d %s", w.Code, w.Body.String())
	}

	// Union creation is rejected while paused.
	w = do(t, router, "POST", "/api/v1/unions", engine.CreateUnionRequest{Caller: "prov", UnionID: "match-1"})
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 while paused, got %d", w.Code)
	}

	// Deposits still flow.
	deposit(t, router, "alice", 50)
	if got := balanceOf(t, router, "alice"); !got.Equal(d(50)) {
		t.Errorf("deposit should work while paused, got balance %s", got)
	}

	// Withdrawal requests do not.
	w = do(t, router, "POST", "/api/v1/accounts/alice/withdrawals", engine.WithdrawalRequestBody{
		Amount: d(10),
	})
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 for withdrawal request while paused, got %d", w.Code)
	}

	// Unpause restores operation.
	do(t, router, "POST", "/api/v1/admin/pause", engine.PauseRequest{Caller: "admin", Paused: false})
	w = do(t, router, "POST", "/api/v1/unions", engine.CreateUnionRequest{Caller: "prov", UnionID: "match-1"})
	if w.Code != http.StatusCreated {
		t.Errorf("expected 201 after unpause, got %d: %s", w.Code, w.Body.String())
	}
}

func TestPause_NonAdminRejected(t *testing.T) {
	_, _, router := newTestEnv(t)

	w := do(t, router, "POST", "/api/v1/admin/pause", engine.PauseRequest{Caller: "mallory", Paused: true})
	if w.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", w.Code)
	}
}

// --- Withdrawals ---

func TestWithdrawal_FullFlow(t *testing.T) {
	_, _, router := newTestEnv(t)
	deposit(t, router, "alice", 1000)

	w := do(t, router, "POST", "/api/v1/accounts/alice/withdrawals", engine.WithdrawalRequestBody{
		Amount: d(100),
	})
	if w.Code != http.StatusAccepted {
		t.Fatalf("request failed: %d %s", w.Code, w.Body.String())
	}

	// Funds do not move until confirmation.
	if got := balanceOf(t, router, "alice"); !got.Equal(d(1000)) {
		t.Errorf("balance should be unchanged before confirm, got %s", got)
	}

	w = do(t, router, "POST", "/api/v1/accounts/alice/withdrawals/confirm", engine.ConfirmWithdrawalRequest{
		Caller: "admin",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("confirm failed: %d %s", w.Code, w.Body.String())
	}

	var receipt model.WithdrawalReceipt
	json.Unmarshal(w.Body.Bytes(), &receipt)

	// Default fee is 1%: 100 withdrawn, 1 retained, 99 payable.
	if !receipt.Fee.Equal(d(1)) {
		t.Errorf("expected fee 1, got %s", receipt.Fee)
	}
	if !receipt.Payable.Equal(d(99)) {
		t.Errorf("expected payable 99, got %s", receipt.Payable)
	}
	if receipt.Destination != "alice" {
		t.Errorf("expected account fallback destination, got %q", receipt.Destination)
	}
	if got := balanceOf(t, router, "alice"); !got.Equal(d(900)) {
		t.Errorf("expected balance 900, got %s", got)
	}

	// The fee accumulated as platform revenue.
	w = do(t, router, "GET", "/api/v1/admin/revenue?caller=admin", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("revenue query failed: %d %s", w.Code, w.Body.String())
	}
	var rev struct {
		Revenue decimal.Decimal `json:"revenue"`
	}
	json.Unmarshal(w.Body.Bytes(), &rev)
	if !rev.Revenue.Equal(d(1)) {
		t.Errorf("expected revenue 1, got %s", rev.Revenue)
	}

	// A confirmed request cannot be confirmed twice.
	w = do(t, router, "POST", "/api/v1/accounts/alice/withdrawals/confirm", engine.ConfirmWithdrawalRequest{
		Caller: "admin",
	})
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409 for re-confirm, got %d", w.Code)
	}
}

func TestWithdrawal_RequestExceedingBalance(t *testing.T) {
	_, _, router := newTestEnv(t)
	deposit(t, router, "alice", 50)

	w := do(t, router, "POST", "/api/v1/accounts/alice/withdrawals", engine.WithdrawalRequestBody{
		Amount: d(100),
	})
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", w.Code)
	}
}

func TestWithdrawal_ConfirmRequiresAdmin(t *testing.T) {
	_, _, router := newTestEnv(t)
	deposit(t, router, "alice", 100)
	do(t, router, "POST", "/api/v1/accounts/alice/withdrawals", engine.WithdrawalRequestBody{
		Amount: d(10),
	})

	w := do(t, router, "POST", "/api/v1/accounts/alice/withdrawals/confirm", engine.ConfirmWithdrawalRequest{
		Caller: "alice",
	})
	if w.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", w.Code)
	}
}

func TestWithdrawal_ConfirmWithoutRequest(t *testing.T) {
	_, _, router := newTestEnv(t)

	w := do(t, router, "POST", "/api/v1/accounts/nobody/withdrawals/confirm", engine.ConfirmWithdrawalRequest{
		Caller: "admin",
	})
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409 for missing request, got %d", w.Code)
	}
}

func TestWithdrawal_CustomFeeRate(t *testing.T) {
	_, _, router := newTestEnv(t)
	deposit(t, router, "alice", 1000)

	// Raise the fee to 10%.
	w := do(t, router, "POST", "/api/v1/admin/withdrawal-fee", engine.FeeRateRequest{
		Caller: "admin",
		Rate:   d(1e9),
	})
	if w.Code != http.StatusOK {
		t.Fatalf("fee change failed: %d %s", w.Code, w.Body.String())
	}

	do(t, router, "POST", "/api/v1/accounts/alice/withdrawals", engine.WithdrawalRequestBody{
		Amount: d(100),
	})
	w = do(t, router, "POST", "/api/v1/accounts/alice/withdrawals/confirm", engine.ConfirmWithdrawalRequest{
		Caller: "admin",
	})

	var receipt model.WithdrawalReceipt
	json.Unmarshal(w.Body.Bytes(), &receipt)
	if !receipt.Fee.Equal(d(10)) {
		t.Errorf("expected fee 10 at 10%%, got %s", receipt.Fee)
	}
}

func TestWithdrawal_FeeRateBounds(t *testing.T) {
	_, _, router := newTestEnv(t)

	// Above 100% rejected.
	w := do(t, router, "POST", "/api/v1/admin/withdrawal-fee", engine.FeeRateRequest{
		Caller: "admin",
		Rate:   d(2e10),
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for rate above 1.0, got %d", w.Code)
	}

	// Negative rejected.
	w = do(t, router, "POST", "/api/v1/admin/withdrawal-fee", engine.FeeRateRequest{
		Caller: "admin",
		Rate:   d(-1),
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for negative rate, got %d", w.Code)
	}

	// Non-admin rejected.
	w = do(t, router, "POST", "/api/v1/admin/withdrawal-fee", engine.FeeRateRequest{
		Caller: "alice",
		Rate:   d(1e8),
	})
	if w.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", w.Code)
	}
}

func TestWithdrawal_RoutesToAssociatedAddress(t *testing.T) {
	_, _, router := newTestEnv(t)
	deposit(t, router, "alice", 100)

	w := do(t, router, "POST", "/api/v1/accounts/alice/associations", engine.AssociateRequest{
		Primary:   "addr-primary",
		Secondary: "addr-secondary",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("associate failed: %d %s", w.Code, w.Body.String())
	}

	do(t, router, "POST", "/api/v1/accounts/alice/withdrawals", engine.WithdrawalRequestBody{
		Amount: d(10), RouteSecondary: true,
	})
	w = do(t, router, "POST", "/api/v1/accounts/alice/withdrawals/confirm", engine.ConfirmWithdrawalRequest{
		Caller: "admin",
	})

	var receipt model.WithdrawalReceipt
	json.Unmarshal(w.Body.Bytes(), &receipt)
	if receipt.Destination != "addr-secondary" {
		t.Errorf("expected secondary destination, got %q", receipt.Destination)
	}
}

func TestAssociate_InvalidAddress(t *testing.T) {
	_, _, router := newTestEnv(t)

	w := do(t, router, "POST", "/api/v1/accounts/alice/associations", engine.AssociateRequest{
		Primary:   "has space",
		Secondary: "ok-addr",
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for invalid address, got %d", w.Code)
	}
}

// --- Journal ---

func TestJournal_RecordsMovements(t *testing.T) {
	_, _, router := newTestEnv(t)
	deposit(t, router, "alice", 100)

	do(t, router, "POST", "/api/v1/accounts/alice/withdrawals", engine.WithdrawalRequestBody{
		Amount: d(100),
	})
	do(t, router, "POST", "/api/v1/accounts/alice/withdrawals/confirm", engine.ConfirmWithdrawalRequest{
		Caller: "admin",
	})

	w := do(t, router, "GET", "/api/v1/accounts/alice/journal", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("journal query failed: %d %s", w.Code, w.Body.String())
	}
	var entries []model.JournalEntry
	json.Unmarshal(w.Body.Bytes(), &entries)

	if len(entries) != 2 {
		t.Fatalf("expected 2 entries (deposit, withdrawal), got %d", len(entries))
	}

	// Signed entries reconcile with the final balance.
	sum := decimal.Zero
	for _, e := range entries {
		sum = sum.Add(e.Amount)
	}
	if got := balanceOf(t, router, "alice"); !sum.Equal(got) {
		t.Errorf("journal sum %s does not match balance %s", sum, got)
	}
}
