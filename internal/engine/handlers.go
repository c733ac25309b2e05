package engine

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/desports/wager-engine/internal/access"
	"github.com/desports/wager-engine/internal/liquidity"
	"github.com/desports/wager-engine/internal/quota"
	"github.com/desports/wager-engine/internal/routing"
)

// --- Request bodies ---

// DepositRequest is the JSON body for POST /api/v1/deposits. Caller must be
// an authorized bridge identity.
type DepositRequest struct {
	Caller  string          `json:"caller"`
	Account string          `json:"account"`
	Amount  decimal.Decimal `json:"amount"`
	Channel string          `json:"channel"`
}

// AssociateRequest is the JSON body for POST /api/v1/accounts/{account}/associations.
type AssociateRequest struct {
	Primary   string `json:"primary"`
	Secondary string `json:"secondary"`
}

// WithdrawalRequestBody is the JSON body for POST /api/v1/accounts/{account}/withdrawals.
type WithdrawalRequestBody struct {
	Amount         decimal.Decimal `json:"amount"`
	RouteSecondary bool            `json:"route_secondary"`
}

// ConfirmWithdrawalRequest is the JSON body for POST /api/v1/accounts/{account}/withdrawals/confirm.
type ConfirmWithdrawalRequest struct {
	Caller string `json:"caller"`
}

// FeeRateRequest is the JSON body for POST /api/v1/admin/withdrawal-fee.
type FeeRateRequest struct {
	Caller string          `json:"caller"`
	Rate   decimal.Decimal `json:"rate"`
}

// PauseRequest is the JSON body for POST /api/v1/admin/pause.
type PauseRequest struct {
	Caller string `json:"caller"`
	Paused bool   `json:"paused"`
}

// ProviderFeeRequest is the JSON body for POST /api/v1/providers/{account}/fee.
type ProviderFeeRequest struct {
	Rate decimal.Decimal `json:"rate"`
}

// CreateUnionRequest is the JSON body for POST /api/v1/unions.
type CreateUnionRequest struct {
	Caller  string `json:"caller"`
	UnionID string `json:"union_id"`
}

// FundRequest is the JSON body for POST /api/v1/unions/{unionID}/fund.
type FundRequest struct {
	Caller string          `json:"caller"`
	Amount decimal.Decimal `json:"amount"`
}

// CreateEventRequest is the JSON body for POST /api/v1/unions/{unionID}/events.
type CreateEventRequest struct {
	Caller string `json:"caller"`
	Label  string `json:"label"`
}

// CallerRequest is the JSON body for owner-only lifecycle operations that
// need no other arguments.
type CallerRequest struct {
	Caller string `json:"caller"`
}

// LockRequest is the JSON body for POST /api/v1/unions/{unionID}/lock.
type LockRequest struct {
	Caller string `json:"caller"`
	Locked bool   `json:"locked"`
}

// ResolveRequest is the JSON body for POST /api/v1/unions/{unionID}/resolve.
type ResolveRequest struct {
	Caller       string `json:"caller"`
	WinningEvent int    `json:"winning_event"`
}

// SetQuotaRequest is the JSON body for PUT /api/v1/unions/{unionID}/events/{eventIdx}/quota.
type SetQuotaRequest struct {
	Caller string          `json:"caller"`
	Quota  decimal.Decimal `json:"quota"`
}

// SetQuotasRequest is the JSON body for PUT /api/v1/unions/{unionID}/quotas.
type SetQuotasRequest struct {
	Caller string            `json:"caller"`
	Quotas []decimal.Decimal `json:"quotas"`
}

// BetRequest is the JSON body for POST /api/v1/bets. ExpectedQuota must
// equal the event's live quota or the bet is rejected.
type BetRequest struct {
	Caller        string          `json:"caller"`
	UnionID       string          `json:"union_id"`
	EventIndex    int             `json:"event_index"`
	Amount        decimal.Decimal `json:"amount"`
	ExpectedQuota decimal.Decimal `json:"expected_quota"`
}

// ClaimRequest is the JSON body for POST /api/v1/claims.
type ClaimRequest struct {
	Caller  string `json:"caller"`
	UnionID string `json:"union_id"`
}

// --- Routes ---

// RegisterRoutes mounts the engine's API on the given router.
func (s *Service) RegisterRoutes(r chi.Router) {
	if s.wsHub != nil {
		r.Get("/ws", s.wsHub.HandleWS)
	}

	r.Post("/deposits", s.HandleDeposit)

	r.Get("/accounts/{account}/balance", s.HandleBalance)
	r.Get("/accounts/{account}/journal", s.HandleJournal)
	r.Post("/accounts/{account}/associations", s.HandleAssociate)
	r.Post("/accounts/{account}/withdrawals", s.HandleRequestWithdrawal)
	r.Post("/accounts/{account}/withdrawals/confirm", s.HandleConfirmWithdrawal)

	r.Post("/admin/withdrawal-fee", s.HandleWithdrawalFee)
	r.Post("/admin/pause", s.HandlePause)
	r.Get("/admin/revenue", s.HandleRevenue)

	r.Post("/providers/{account}/fee", s.HandleProviderFee)
	r.Get("/providers/{account}", s.HandleProvider)

	r.Get("/unions", s.HandleListUnions)
	r.Post("/unions", s.HandleCreateUnion)
	r.Get("/unions/{unionID}", s.HandleGetUnion)
	r.Get("/unions/{unionID}/journal", s.HandleUnionJournal)
	r.Post("/unions/{unionID}/fund", s.HandleFund)
	r.Post("/unions/{unionID}/events", s.HandleCreateEvent)
	r.Post("/unions/{unionID}/start", s.HandleStartBetting)
	r.Post("/unions/{unionID}/lock", s.HandleLockBetting)
	r.Post("/unions/{unionID}/resolve", s.HandleResolve)
	r.Put("/unions/{unionID}/events/{eventIdx}/quota", s.HandleSetQuota)
	r.Put("/unions/{unionID}/quotas", s.HandleSetQuotas)

	r.Post("/bets", s.HandleBet)
	r.Post("/claims", s.HandleClaim)
}

// --- Handlers ---

// HandleDeposit handles POST /api/v1/deposits.
func (s *Service) HandleDeposit(w http.ResponseWriter, r *http.Request) {
	var req DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := checkAmount(req.Amount); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.Credit(r.Context(), req.Caller, req.Account, req.Amount, req.Channel); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "credited"})
}

// HandleBalance handles GET /api/v1/accounts/{account}/balance.
func (s *Service) HandleBalance(w http.ResponseWriter, r *http.Request) {
	account := chi.URLParam(r, "account")

	balance, err := s.Balance(r.Context(), account)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]decimal.Decimal{"balance": balance})
}

// HandleJournal handles GET /api/v1/accounts/{account}/journal.
func (s *Service) HandleJournal(w http.ResponseWriter, r *http.Request) {
	account := chi.URLParam(r, "account")

	entries, err := s.Journal(r.Context(), account)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// HandleAssociate handles POST /api/v1/accounts/{account}/associations.
// The path account is the caller registering its own addresses.
func (s *Service) HandleAssociate(w http.ResponseWriter, r *http.Request) {
	account := chi.URLParam(r, "account")

	var req AssociateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := s.AssociateAddresses(r.Context(), account, req.Primary, req.Secondary); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "associated"})
}

// HandleRequestWithdrawal handles POST /api/v1/accounts/{account}/withdrawals.
func (s *Service) HandleRequestWithdrawal(w http.ResponseWriter, r *http.Request) {
	account := chi.URLParam(r, "account")

	var req WithdrawalRequestBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := checkAmount(req.Amount); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.RequestWithdrawal(r.Context(), account, req.Amount, req.RouteSecondary); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "requested"})
}

// HandleConfirmWithdrawal handles POST /api/v1/accounts/{account}/withdrawals/confirm.
func (s *Service) HandleConfirmWithdrawal(w http.ResponseWriter, r *http.Request) {
	account := chi.URLParam(r, "account")

	var req ConfirmWithdrawalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	receipt, err := s.ConfirmWithdrawal(r.Context(), req.Caller, account)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

// HandleWithdrawalFee handles POST /api/v1/admin/withdrawal-fee.
func (s *Service) HandleWithdrawalFee(w http.ResponseWriter, r *http.Request) {
	var req FeeRateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := s.ChangeWithdrawalFeeRate(req.Caller, req.Rate); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// HandlePause handles POST /api/v1/admin/pause.
func (s *Service) HandlePause(w http.ResponseWriter, r *http.Request) {
	var req PauseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := s.SetPaused(req.Caller, req.Paused); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"paused": req.Paused})
}

// HandleRevenue handles GET /api/v1/admin/revenue. Caller passes identity via
// the "caller" query parameter.
func (s *Service) HandleRevenue(w http.ResponseWriter, r *http.Request) {
	caller := r.URL.Query().Get("caller")

	revenue, err := s.PlatformRevenue(r.Context(), caller)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]decimal.Decimal{"revenue": revenue})
}

// HandleProviderFee handles POST /api/v1/providers/{account}/fee. The path
// account is the caller setting its own rate.
func (s *Service) HandleProviderFee(w http.ResponseWriter, r *http.Request) {
	account := chi.URLParam(r, "account")

	var req ProviderFeeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := s.SetFee(r.Context(), account, req.Rate); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// HandleProvider handles GET /api/v1/providers/{account}.
func (s *Service) HandleProvider(w http.ResponseWriter, r *http.Request) {
	account := chi.URLParam(r, "account")

	p, err := s.Provider(r.Context(), account)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// HandleListUnions handles GET /api/v1/unions.
func (s *Service) HandleListUnions(w http.ResponseWriter, r *http.Request) {
	unions, err := s.Unions(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, unions)
}

// HandleCreateUnion handles POST /api/v1/unions. Idempotent: creating an
// existing union returns 200 with the existing union untouched; a fresh
// creation returns 201.
func (s *Service) HandleCreateUnion(w http.ResponseWriter, r *http.Request) {
	var req CreateUnionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.UnionID == "" {
		writeError(w, "union_id is required", http.StatusBadRequest)
		return
	}

	created, err := s.CreateUnion(r.Context(), req.Caller, req.UnionID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	u, err := s.Union(r.Context(), req.UnionID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, u)
}

// HandleGetUnion handles GET /api/v1/unions/{unionID}.
func (s *Service) HandleGetUnion(w http.ResponseWriter, r *http.Request) {
	unionID := chi.URLParam(r, "unionID")

	u, err := s.Union(r.Context(), unionID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// HandleUnionJournal handles GET /api/v1/unions/{unionID}/journal.
func (s *Service) HandleUnionJournal(w http.ResponseWriter, r *http.Request) {
	unionID := chi.URLParam(r, "unionID")

	entries, err := s.UnionJournal(r.Context(), unionID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// HandleFund handles POST /api/v1/unions/{unionID}/fund.
func (s *Service) HandleFund(w http.ResponseWriter, r *http.Request) {
	unionID := chi.URLParam(r, "unionID")

	var req FundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := checkAmount(req.Amount); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.FundUnion(r.Context(), req.Caller, unionID, req.Amount); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "funded"})
}

// HandleCreateEvent handles POST /api/v1/unions/{unionID}/events.
func (s *Service) HandleCreateEvent(w http.ResponseWriter, r *http.Request) {
	unionID := chi.URLParam(r, "unionID")

	var req CreateEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	idx, err := s.CreateEvent(r.Context(), req.Caller, unionID, req.Label)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int{"event_index": idx})
}

// HandleStartBetting handles POST /api/v1/unions/{unionID}/start.
func (s *Service) HandleStartBetting(w http.ResponseWriter, r *http.Request) {
	unionID := chi.URLParam(r, "unionID")

	var req CallerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := s.StartBetting(r.Context(), req.Caller, unionID); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "started"})
}

// HandleLockBetting handles POST /api/v1/unions/{unionID}/lock.
func (s *Service) HandleLockBetting(w http.ResponseWriter, r *http.Request) {
	unionID := chi.URLParam(r, "unionID")

	var req LockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := s.LockBetting(r.Context(), req.Caller, unionID, req.Locked); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"locked": req.Locked})
}

// HandleResolve handles POST /api/v1/unions/{unionID}/resolve.
func (s *Service) HandleResolve(w http.ResponseWriter, r *http.Request) {
	unionID := chi.URLParam(r, "unionID")

	var req ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := s.ResolveUnion(r.Context(), req.Caller, unionID, req.WinningEvent); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"winning_event": req.WinningEvent})
}

// HandleSetQuota handles PUT /api/v1/unions/{unionID}/events/{eventIdx}/quota.
func (s *Service) HandleSetQuota(w http.ResponseWriter, r *http.Request) {
	unionID := chi.URLParam(r, "unionID")
	eventIdx, err := parseEventIdx(chi.URLParam(r, "eventIdx"))
	if err != nil {
		writeError(w, "invalid event index", http.StatusBadRequest)
		return
	}

	var req SetQuotaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := s.SetQuota(r.Context(), req.Caller, unionID, eventIdx, req.Quota); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// HandleSetQuotas handles PUT /api/v1/unions/{unionID}/quotas.
func (s *Service) HandleSetQuotas(w http.ResponseWriter, r *http.Request) {
	unionID := chi.URLParam(r, "unionID")

	var req SetQuotasRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := s.SetQuotas(r.Context(), req.Caller, unionID, req.Quotas); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// HandleBet handles POST /api/v1/bets.
func (s *Service) HandleBet(w http.ResponseWriter, r *http.Request) {
	var req BetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := checkAmount(req.Amount); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.Bet(r.Context(), req.Caller, req.UnionID, req.EventIndex, req.Amount, req.ExpectedQuota); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}

// HandleClaim handles POST /api/v1/claims.
func (s *Service) HandleClaim(w http.ResponseWriter, r *http.Request) {
	var req ClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	payout, err := s.ClaimBet(r.Context(), req.Caller, req.UnionID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]decimal.Decimal{"payout": payout})
}

// --- Helpers ---

// checkAmount enforces the token unit model at the API boundary: amounts are
// whole non-negative token counts.
func checkAmount(amount decimal.Decimal) error {
	if amount.IsNegative() || !amount.IsInteger() {
		return ErrInvalidAmount
	}
	return nil
}

func parseEventIdx(raw string) (int, error) {
	idx := 0
	for _, c := range raw {
		if c < '0' || c > '9' {
			return 0, ErrInvalidOutcome
		}
		idx = idx*10 + int(c-'0')
		if idx > 1<<30 {
			return 0, ErrInvalidOutcome
		}
	}
	if raw == "" {
		return 0, ErrInvalidOutcome
	}
	return idx, nil
}

// writeServiceError maps engine errors onto HTTP status codes.
func writeServiceError(w http.ResponseWriter, err error) {
	writeError(w, err.Error(), errStatus(err))
}

func errStatus(err error) int {
	switch {
	case errors.Is(err, access.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, access.ErrPaused):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrUnknownUnion):
		return http.StatusNotFound
	case errors.Is(err, quota.ErrQuotaTooLow),
		errors.Is(err, quota.ErrQuotaCountMismatch),
		errors.Is(err, quota.ErrFeeTooHigh),
		errors.Is(err, quota.ErrRateNegative),
		errors.Is(err, routing.ErrUnknownChannel),
		errors.Is(err, routing.ErrInvalidAddress),
		errors.Is(err, ErrZeroStake),
		errors.Is(err, ErrInvalidOutcome),
		errors.Is(err, ErrInvalidAmount):
		return http.StatusBadRequest
	case errors.Is(err, ErrQuotaMismatch),
		errors.Is(err, ErrInsufficientFunds),
		errors.Is(err, liquidity.ErrInsufficientLiquidity),
		errors.Is(err, ErrNoClaimableBet),
		errors.Is(err, ErrNoPendingRequest),
		errors.Is(err, ErrBettingStarted),
		errors.Is(err, ErrBettingNotStarted),
		errors.Is(err, ErrBettingLocked),
		errors.Is(err, ErrAlreadyResolved),
		errors.Is(err, ErrNotResolved),
		errors.Is(err, ErrQuotaNotSet):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeJSON writes a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
