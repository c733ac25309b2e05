package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/desports/wager-engine/internal/access"
	"github.com/desports/wager-engine/internal/metrics"
	"github.com/desports/wager-engine/internal/model"
	"github.com/desports/wager-engine/internal/quota"
)

// CreateUnion registers a new wagering union owned by the caller. The call is
// idempotent: if the union already exists it reports created=false and leaves
// the existing union untouched, regardless of who calls.
func (s *Service) CreateUnion(ctx context.Context, caller, unionID string) (created bool, err error) {
	if err := s.guard.CheckPaused(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.getOrInitProvider(ctx, caller)
	if err != nil {
		return false, err
	}

	u := &model.Union{
		ID:           unionID,
		Owner:        caller,
		ProviderFund: decimal.Zero,
		FeeRate:      p.FeeRate,
		WinningEvent: -1,
		CreatedAt:    time.Now().UTC(),
	}
	created, err = s.store.CreateUnion(ctx, u)
	if err != nil {
		return false, err
	}
	if !created {
		return false, nil
	}

	metrics.OpenUnions.Inc()
	slog.Info("union created", "union_id", unionID, "owner", caller)
	s.broadcast(WSMessage{Type: "union_created", UnionID: unionID})
	return true, nil
}

// FundUnion moves tokens from the owner's balance into the union's provider
// fund, which backs payouts during the solvency check.
func (s *Service) FundUnion(ctx context.Context, caller, unionID string, amount decimal.Decimal) error {
	if err := s.guard.CheckPaused(); err != nil {
		return err
	}
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, err := s.ownedUnion(ctx, caller, unionID)
	if err != nil {
		return err
	}
	if u.Resolved {
		return ErrAlreadyResolved
	}

	balance, err := s.store.GetBalance(ctx, caller)
	if err != nil {
		return err
	}
	if balance.LessThan(amount) {
		return ErrInsufficientFunds
	}

	u.ProviderFund = u.ProviderFund.Add(amount)
	entry := newEntry(caller, unionID, model.EntryFunding, amount.Neg(), "")
	if err := s.store.ApplyFunding(ctx, u, caller, amount, entry); err != nil {
		return err
	}

	slog.Info("union funded", "union_id", unionID, "amount", amount.String())
	return nil
}

// CreateEvent appends an outcome to the union and returns its index. Events
// may only be added before betting starts; the quota starts unset and must be
// published before the event can take stakes.
func (s *Service) CreateEvent(ctx context.Context, caller, unionID, label string) (int, error) {
	if err := s.guard.CheckPaused(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, err := s.ownedUnion(ctx, caller, unionID)
	if err != nil {
		return 0, err
	}
	if u.Resolved {
		return 0, ErrAlreadyResolved
	}
	if u.BettingStarted {
		return 0, ErrBettingStarted
	}

	u.Events = append(u.Events, model.Event{
		Label:       label,
		Quota:       decimal.Zero,
		TotalStaked: decimal.Zero,
	})
	if err := s.store.UpdateUnion(ctx, u); err != nil {
		return 0, err
	}

	idx := len(u.Events) - 1
	slog.Info("event created", "union_id", unionID, "event_index", idx, "label", label)
	return idx, nil
}

// SetQuota publishes or replaces one event's payout quota. Quotas may change
// at any point before resolution, including after betting opens; bettors are
// protected by the expected-quota check at stake time.
func (s *Service) SetQuota(ctx context.Context, caller, unionID string, eventIdx int, q decimal.Decimal) error {
	if err := s.guard.CheckPaused(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, err := s.ownedUnion(ctx, caller, unionID)
	if err != nil {
		return err
	}
	if u.Resolved {
		return ErrAlreadyResolved
	}
	if eventIdx < 0 || eventIdx >= len(u.Events) {
		return ErrInvalidOutcome
	}
	if err := quota.Validate(q); err != nil {
		return err
	}

	u.Events[eventIdx].Quota = q
	if err := s.store.UpdateUnion(ctx, u); err != nil {
		return err
	}

	s.broadcast(WSMessage{
		Type:       "quota_changed",
		UnionID:    unionID,
		EventIndex: eventIdx,
		Quota:      q.String(),
	})
	return nil
}

// SetQuotas publishes quotas for every event at once. The count must match
// the event count exactly and every quota must be valid; on any failure no
// quota changes.
func (s *Service) SetQuotas(ctx context.Context, caller, unionID string, qs []decimal.Decimal) error {
	if err := s.guard.CheckPaused(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, err := s.ownedUnion(ctx, caller, unionID)
	if err != nil {
		return err
	}
	if u.Resolved {
		return ErrAlreadyResolved
	}
	if err := quota.ValidateAll(qs, len(u.Events)); err != nil {
		return err
	}

	for i, q := range qs {
		u.Events[i].Quota = q
	}
	if err := s.store.UpdateUnion(ctx, u); err != nil {
		return err
	}

	for i, q := range qs {
		s.broadcast(WSMessage{
			Type:       "quota_changed",
			UnionID:    unionID,
			EventIndex: i,
			Quota:      q.String(),
		})
	}
	return nil
}

// StartBetting opens the union for stakes. One-way; starting twice fails.
func (s *Service) StartBetting(ctx context.Context, caller, unionID string) error {
	if err := s.guard.CheckPaused(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, err := s.ownedUnion(ctx, caller, unionID)
	if err != nil {
		return err
	}
	if u.Resolved {
		return ErrAlreadyResolved
	}
	if u.BettingStarted {
		return ErrBettingStarted
	}

	u.BettingStarted = true
	if err := s.store.UpdateUnion(ctx, u); err != nil {
		return err
	}

	slog.Info("betting started", "union_id", unionID)
	s.broadcast(WSMessage{Type: "betting_started", UnionID: unionID})
	return nil
}

// LockBetting sets or clears the per-union betting pause. Unlike the global
// pause it affects only stake placement on this union; funding, quota changes
// and resolution remain available.
func (s *Service) LockBetting(ctx context.Context, caller, unionID string, locked bool) error {
	if err := s.guard.CheckPaused(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, err := s.ownedUnion(ctx, caller, unionID)
	if err != nil {
		return err
	}
	if u.Resolved {
		return ErrAlreadyResolved
	}

	u.BettingLocked = locked
	if err := s.store.UpdateUnion(ctx, u); err != nil {
		return err
	}

	slog.Info("betting lock changed", "union_id", unionID, "locked", locked)
	s.broadcast(WSMessage{Type: "betting_locked", UnionID: unionID, Locked: &locked})
	return nil
}

// ResolveUnion declares the winning event and closes the union. The owner's
// provider reputation is credited with the winning event's total stake in the
// same atomic commit. Resolution does not require betting to have started.
func (s *Service) ResolveUnion(ctx context.Context, caller, unionID string, winningEvent int) error {
	if err := s.guard.CheckPaused(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, err := s.ownedUnion(ctx, caller, unionID)
	if err != nil {
		return err
	}
	if u.Resolved {
		return ErrAlreadyResolved
	}
	if winningEvent < 0 || winningEvent >= len(u.Events) {
		return ErrInvalidOutcome
	}

	p, err := s.getOrInitProvider(ctx, caller)
	if err != nil {
		return err
	}

	u.Resolved = true
	u.WinningEvent = winningEvent
	p.Reputation = p.Reputation.Add(u.Events[winningEvent].TotalStaked)
	if err := s.store.ApplyResolution(ctx, u, p); err != nil {
		return err
	}

	metrics.OpenUnions.Dec()
	slog.Info("union resolved",
		"union_id", unionID,
		"winning_event", winningEvent,
		"winning_stake", u.Events[winningEvent].TotalStaked.String(),
	)
	s.broadcast(WSMessage{
		Type:       "union_resolved",
		UnionID:    unionID,
		EventIndex: winningEvent,
	})
	return nil
}

// Union returns one union's full state.
func (s *Service) Union(ctx context.Context, unionID string) (*model.Union, error) {
	u, err := s.store.GetUnion(ctx, unionID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrUnknownUnion
	}
	return u, nil
}

// Unions lists all unions.
func (s *Service) Unions(ctx context.Context) ([]model.Union, error) {
	return s.store.ListUnions(ctx)
}

// UnionJournal returns all balance movements tied to one union.
func (s *Service) UnionJournal(ctx context.Context, unionID string) ([]model.JournalEntry, error) {
	u, err := s.store.GetUnion(ctx, unionID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrUnknownUnion
	}
	return s.store.JournalByUnion(ctx, unionID)
}

// ownedUnion fetches a union and checks the caller owns it. Must be called
// with the engine mutex held.
func (s *Service) ownedUnion(ctx context.Context, caller, unionID string) (*model.Union, error) {
	u, err := s.store.GetUnion(ctx, unionID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrUnknownUnion
	}
	if u.Owner != caller {
		return nil, access.ErrUnauthorized
	}
	return u, nil
}
