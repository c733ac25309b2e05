package engine_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/desports/wager-engine/internal/engine"
	"github.com/desports/wager-engine/internal/model"
)

// setupOpenUnion builds a union owned by "prov" with the given fund and two
// events at 2.0x, betting open. Returns the union ID.
func setupOpenUnion(t *testing.T, router chi.Router, fund float64) string {
	t.Helper()
	unionID := "match-1"

	w := do(t, router, "POST", "/api/v1/unions", engine.CreateUnionRequest{
		Caller: "prov", UnionID: unionID,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create union failed: %d %s", w.Code, w.Body.String())
	}

	if fund > 0 {
		deposit(t, router, "prov", fund)
		w = do(t, router, "POST", "/api/v1/unions/"+unionID+"/fund", engine.FundRequest{
			Caller: "prov", Amount: d(fund),
		})
		if w.Code != http.StatusOK {
			t.Fatalf("fund failed: %d %s", w.Code, w.Body.String())
		}
	}

	for _, label := range []string{"home", "away"} {
		w = do(t, router, "POST", "/api/v1/unions/"+unionID+"/events", engine.CreateEventRequest{
			Caller: "prov", Label: label,
		})
		if w.Code != http.StatusCreated {
			t.Fatalf("create event failed: %d %s", w.Code, w.Body.String())
		}
	}

	w = do(t, router, "PUT", "/api/v1/unions/"+unionID+"/quotas", engine.SetQuotasRequest{
		Caller: "prov", Quotas: []decimal.Decimal{d(2e10), d(2e10)},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("set quotas failed: %d %s", w.Code, w.Body.String())
	}

	w = do(t, router, "POST", "/api/v1/unions/"+unionID+"/start", engine.CallerRequest{Caller: "prov"})
	if w.Code != http.StatusOK {
		t.Fatalf("start betting failed: %d %s", w.Code, w.Body.String())
	}
	return unionID
}

func placeBet(t *testing.T, router chi.Router, account, unionID string, eventIdx int, amount, expectedQuota decimal.Decimal) *httptest.ResponseRecorder {
	t.Helper()
	return do(t, router, "POST", "/api/v1/bets", engine.BetRequest{
		Caller:        account,
		UnionID:       unionID,
		EventIndex:    eventIdx,
		Amount:        amount,
		ExpectedQuota: expectedQuota,
	})
}

func getUnion(t *testing.T, router chi.Router, unionID string) model.Union {
	t.Helper()
	w := do(t, router, "GET", "/api/v1/unions/"+unionID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get union failed: %d %s", w.Code, w.Body.String())
	}
	var u model.Union
	json.Unmarshal(w.Body.Bytes(), &u)
	return u
}

// --- Union lifecycle ---

func TestCreateUnion_Idempotent(t *testing.T) {
	_, _, router := newTestEnv(t)

	w := do(t, router, "POST", "/api/v1/unions", engine.CreateUnionRequest{
		Caller: "prov", UnionID: "match-1",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	// Re-creation by a different caller is a no-op, not a takeover.
	w = do(t, router, "POST", "/api/v1/unions", engine.CreateUnionRequest{
		Caller: "intruder", UnionID: "match-1",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for existing union, got %d: %s", w.Code, w.Body.String())
	}

	u := getUnion(t, router, "match-1")
	if u.Owner != "prov" {
		t.Errorf("owner should remain prov, got %s", u.Owner)
	}
}

func TestCreateEvent_AfterStartRejected(t *testing.T) {
	_, _, router := newTestEnv(t)
	unionID := setupOpenUnion(t, router, 100)

	w := do(t, router, "POST", "/api/v1/unions/"+unionID+"/events", engine.CreateEventRequest{
		Caller: "prov", Label: "draw",
	})
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409 after betting started, got %d", w.Code)
	}
}

func TestUnionLifecycle_NonOwnerRejected(t *testing.T) {
	_, _, router := newTestEnv(t)
	unionID := setupOpenUnion(t, router, 100)

	w := do(t, router, "POST", "/api/v1/unions/"+unionID+"/resolve", engine.ResolveRequest{
		Caller: "intruder", WinningEvent: 0,
	})
	if w.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", w.Code)
	}
}

func TestSetQuota_AllowedAfterStart(t *testing.T) {
	_, _, router := newTestEnv(t)
	unionID := setupOpenUnion(t, router, 100)

	// Live odds adjustment is legal; bettors are protected by the
	// expected-quota check.
	w := do(t, router, "PUT", "/api/v1/unions/"+unionID+"/events/0/quota", engine.SetQuotaRequest{
		Caller: "prov", Quota: d(3e10),
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	u := getUnion(t, router, unionID)
	if !u.Events[0].Quota.Equal(d(3e10)) {
		t.Errorf("quota not updated, got %s", u.Events[0].Quota)
	}
}

func TestSetQuota_AtOrBelowPrecisionRejected(t *testing.T) {
	_, _, router := newTestEnv(t)
	unionID := setupOpenUnion(t, router, 100)

	w := do(t, router, "PUT", "/api/v1/unions/"+unionID+"/events/0/quota", engine.SetQuotaRequest{
		Caller: "prov", Quota: d(1e10),
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for 1.0x quota, got %d", w.Code)
	}
}

func TestSetQuotas_CountMismatch(t *testing.T) {
	_, _, router := newTestEnv(t)
	unionID := setupOpenUnion(t, router, 100)

	w := do(t, router, "PUT", "/api/v1/unions/"+unionID+"/quotas", engine.SetQuotasRequest{
		Caller: "prov", Quotas: []decimal.Decimal{d(2e10)},
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for count mismatch, got %d", w.Code)
	}
}

// --- Bets ---

func TestBet_BeforeStartRejected(t *testing.T) {
	_, _, router := newTestEnv(t)
	do(t, router, "POST", "/api/v1/unions", engine.CreateUnionRequest{Caller: "prov", UnionID: "m"})
	do(t, router, "POST", "/api/v1/unions/m/events", engine.CreateEventRequest{Caller: "prov", Label: "home"})
	do(t, router, "PUT", "/api/v1/unions/m/events/0/quota", engine.SetQuotaRequest{Caller: "prov", Quota: d(2e10)})
	deposit(t, router, "alice", 10)

	w := placeBet(t, router, "alice", "m", 0, d(10), d(2e10))
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409 before start, got %d", w.Code)
	}
}

func TestBet_UnknownUnion(t *testing.T) {
	_, _, router := newTestEnv(t)
	deposit(t, router, "alice", 10)

	w := placeBet(t, router, "alice", "ghost", 0, d(10), d(2e10))
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestBet_QuotaMismatchRejected(t *testing.T) {
	_, _, router := newTestEnv(t)
	unionID := setupOpenUnion(t, router, 100)
	deposit(t, router, "alice", 10)

	// Owner reprices between the quote and the bet.
	do(t, router, "PUT", "/api/v1/unions/"+unionID+"/events/0/quota", engine.SetQuotaRequest{
		Caller: "prov", Quota: d(18e9),
	})

	w := placeBet(t, router, "alice", unionID, 0, d(10), d(2e10))
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409 for stale quota, got %d: %s", w.Code, w.Body.String())
	}

	// At the fresh quota the bet lands.
	w = placeBet(t, router, "alice", unionID, 0, d(10), d(18e9))
	if w.Code != http.StatusOK {
		t.Errorf("expected 200 at live quota, got %d: %s", w.Code, w.Body.String())
	}
}

func TestBet_ZeroStakeRejected(t *testing.T) {
	_, _, router := newTestEnv(t)
	unionID := setupOpenUnion(t, router, 100)

	w := placeBet(t, router, "alice", unionID, 0, decimal.Zero, d(2e10))
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestBet_InsufficientBalance(t *testing.T) {
	_, _, router := newTestEnv(t)
	unionID := setupOpenUnion(t, router, 100)
	deposit(t, router, "alice", 5)

	w := placeBet(t, router, "alice", unionID, 0, d(10), d(2e10))
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", w.Code)
	}
}

func TestBet_SolvencyCheck(t *testing.T) {
	_, _, router := newTestEnv(t)
	unionID := setupOpenUnion(t, router, 10)
	deposit(t, router, "alice", 40)

	// 20 at 2.0x projects a 40 liability; the pool is only 10+20=30.
	w := placeBet(t, router, "alice", unionID, 0, d(20), d(2e10))
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409 for uncovered bet, got %d: %s", w.Code, w.Body.String())
	}

	// 5 is covered: liability 10 against pool 15.
	w = placeBet(t, router, "alice", unionID, 0, d(5), d(2e10))
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	// 2 on the other event rides the cross-event pool: liability 4
	// against 10+5+2=17.
	w = placeBet(t, router, "alice", unionID, 1, d(2), d(2e10))
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestBet_LockBlocksAndUnlockRestores(t *testing.T) {
	_, _, router := newTestEnv(t)
	unionID := setupOpenUnion(t, router, 100)
	deposit(t, router, "alice", 20)

	do(t, router, "POST", "/api/v1/unions/"+unionID+"/lock", engine.LockRequest{
		Caller: "prov", Locked: true,
	})
	w := placeBet(t, router, "alice", unionID, 0, d(10), d(2e10))
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409 while locked, got %d", w.Code)
	}

	do(t, router, "POST", "/api/v1/unions/"+unionID+"/lock", engine.LockRequest{
		Caller: "prov", Locked: false,
	})
	w = placeBet(t, router, "alice", unionID, 0, d(10), d(2e10))
	if w.Code != http.StatusOK {
		t.Errorf("expected 200 after unlock, got %d: %s", w.Code, w.Body.String())
	}
}

func TestBet_DebitsBalanceAndAccumulatesStake(t *testing.T) {
	_, _, router := newTestEnv(t)
	unionID := setupOpenUnion(t, router, 100)
	deposit(t, router, "alice", 30)

	placeBet(t, router, "alice", unionID, 0, d(10), d(2e10))
	placeBet(t, router, "alice", unionID, 0, d(5), d(2e10))

	if got := balanceOf(t, router, "alice"); !got.Equal(d(15)) {
		t.Errorf("expected balance 15, got %s", got)
	}
	u := getUnion(t, router, unionID)
	if !u.Events[0].TotalStaked.Equal(d(15)) {
		t.Errorf("expected total staked 15, got %s", u.Events[0].TotalStaked)
	}
}

// --- Resolution and claims ---

func TestClaim_PaysQuotaExactly(t *testing.T) {
	_, _, router := newTestEnv(t)
	unionID := setupOpenUnion(t, router, 100)
	deposit(t, router, "alice", 10)

	placeBet(t, router, "alice", unionID, 0, d(10), d(2e10))

	w := do(t, router, "POST", "/api/v1/unions/"+unionID+"/resolve", engine.ResolveRequest{
		Caller: "prov", WinningEvent: 0,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("resolve failed: %d %s", w.Code, w.Body.String())
	}

	w = do(t, router, "POST", "/api/v1/claims", engine.ClaimRequest{Caller: "alice", UnionID: unionID})
	if w.Code != http.StatusOK {
		t.Fatalf("claim failed: %d %s", w.Code, w.Body.String())
	}

	var resp struct {
		Payout decimal.Decimal `json:"payout"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if !resp.Payout.Equal(d(20)) {
		t.Errorf("expected payout 20 at 2.0x, got %s", resp.Payout)
	}
	if got := balanceOf(t, router, "alice"); !got.Equal(d(20)) {
		t.Errorf("expected balance 20, got %s", got)
	}
}

func TestClaim_BeforeResolutionRejected(t *testing.T) {
	_, _, router := newTestEnv(t)
	unionID := setupOpenUnion(t, router, 100)
	deposit(t, router, "alice", 10)
	placeBet(t, router, "alice", unionID, 0, d(10), d(2e10))

	w := do(t, router, "POST", "/api/v1/claims", engine.ClaimRequest{Caller: "alice", UnionID: unionID})
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409 before resolution, got %d", w.Code)
	}
}

func TestClaim_LosingStakeRejected(t *testing.T) {
	_, _, router := newTestEnv(t)
	unionID := setupOpenUnion(t, router, 100)
	deposit(t, router, "alice", 10)
	deposit(t, router, "bob", 5)

	placeBet(t, router, "alice", unionID, 0, d(10), d(2e10))
	placeBet(t, router, "bob", unionID, 1, d(5), d(2e10))

	do(t, router, "POST", "/api/v1/unions/"+unionID+"/resolve", engine.ResolveRequest{
		Caller: "prov", WinningEvent: 1,
	})

	// Alice bet on the losing event; her stake is forfeit.
	w := do(t, router, "POST", "/api/v1/claims", engine.ClaimRequest{Caller: "alice", UnionID: unionID})
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409 for losing stake, got %d", w.Code)
	}

	// Bob's 5 at 2.0x pays 10.
	w = do(t, router, "POST", "/api/v1/claims", engine.ClaimRequest{Caller: "bob", UnionID: unionID})
	if w.Code != http.StatusOK {
		t.Fatalf("claim failed: %d %s", w.Code, w.Body.String())
	}
	if got := balanceOf(t, router, "bob"); !got.Equal(d(10)) {
		t.Errorf("expected balance 10, got %s", got)
	}
}

func TestClaim_OncePerUnion(t *testing.T) {
	_, _, router := newTestEnv(t)
	unionID := setupOpenUnion(t, router, 100)
	deposit(t, router, "alice", 10)
	placeBet(t, router, "alice", unionID, 0, d(10), d(2e10))
	do(t, router, "POST", "/api/v1/unions/"+unionID+"/resolve", engine.ResolveRequest{
		Caller: "prov", WinningEvent: 0,
	})

	w := do(t, router, "POST", "/api/v1/claims", engine.ClaimRequest{Caller: "alice", UnionID: unionID})
	if w.Code != http.StatusOK {
		t.Fatalf("first claim failed: %d %s", w.Code, w.Body.String())
	}

	w = do(t, router, "POST", "/api/v1/claims", engine.ClaimRequest{Caller: "alice", UnionID: unionID})
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409 for second claim, got %d", w.Code)
	}
	if got := balanceOf(t, router, "alice"); !got.Equal(d(20)) {
		t.Errorf("balance should not double-pay, got %s", got)
	}
}

func TestResolve_Twice(t *testing.T) {
	_, _, router := newTestEnv(t)
	unionID := setupOpenUnion(t, router, 100)

	do(t, router, "POST", "/api/v1/unions/"+unionID+"/resolve", engine.ResolveRequest{
		Caller: "prov", WinningEvent: 0,
	})
	w := do(t, router, "POST", "/api/v1/unions/"+unionID+"/resolve", engine.ResolveRequest{
		Caller: "prov", WinningEvent: 1,
	})
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409 for re-resolution, got %d", w.Code)
	}
}

func TestResolve_CreditsReputation(t *testing.T) {
	_, _, router := newTestEnv(t)
	unionID := setupOpenUnion(t, router, 100)
	deposit(t, router, "alice", 10)
	deposit(t, router, "bob", 5)

	placeBet(t, router, "alice", unionID, 0, d(10), d(2e10))
	placeBet(t, router, "bob", unionID, 1, d(5), d(2e10))

	do(t, router, "POST", "/api/v1/unions/"+unionID+"/resolve", engine.ResolveRequest{
		Caller: "prov", WinningEvent: 0,
	})

	w := do(t, router, "GET", "/api/v1/providers/prov", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("provider query failed: %d %s", w.Code, w.Body.String())
	}
	var p model.Provider
	json.Unmarshal(w.Body.Bytes(), &p)

	// Reputation accrues the winning event's stake, not the whole pool.
	if !p.Reputation.Equal(d(10)) {
		t.Errorf("expected reputation 10, got %s", p.Reputation)
	}
}

// --- Provider fees ---

func TestProviderFee_SnapshotAtCreation(t *testing.T) {
	_, _, router := newTestEnv(t)

	w := do(t, router, "POST", "/api/v1/providers/prov/fee", engine.ProviderFeeRequest{Rate: d(5e8)})
	if w.Code != http.StatusOK {
		t.Fatalf("set fee failed: %d %s", w.Code, w.Body.String())
	}

	do(t, router, "POST", "/api/v1/unions", engine.CreateUnionRequest{Caller: "prov", UnionID: "m1"})

	// Raising the rate later leaves the existing union's snapshot alone.
	do(t, router, "POST", "/api/v1/providers/prov/fee", engine.ProviderFeeRequest{Rate: d(1e9)})
	do(t, router, "POST", "/api/v1/unions", engine.CreateUnionRequest{Caller: "prov", UnionID: "m2"})

	if u := getUnion(t, router, "m1"); !u.FeeRate.Equal(d(5e8)) {
		t.Errorf("m1 fee rate should stay 5%%, got %s", u.FeeRate)
	}
	if u := getUnion(t, router, "m2"); !u.FeeRate.Equal(d(1e9)) {
		t.Errorf("m2 fee rate should be 10%%, got %s", u.FeeRate)
	}
}

func TestProviderFee_CapEnforced(t *testing.T) {
	_, _, router := newTestEnv(t)

	w := do(t, router, "POST", "/api/v1/providers/prov/fee", engine.ProviderFeeRequest{
		Rate: d(1e9 + 1),
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 above the 10%% cap, got %d", w.Code)
	}
}
