package engine

import (
	"context"
	"errors"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/desports/wager-engine/internal/liquidity"
	"github.com/desports/wager-engine/internal/metrics"
	"github.com/desports/wager-engine/internal/model"
	"github.com/desports/wager-engine/internal/quota"
)

// Bet places a stake on one event of an open union. expectedQuota is the
// quota the bettor saw when quoting; if the live quota differs the bet is
// rejected so a provider quota change can never silently reprice a stake.
//
// A bet is accepted only if the union stays solvent: the winning-case payout
// of the event's projected stake must be covered by the provider fund plus
// every stake in the union including this one.
func (s *Service) Bet(ctx context.Context, caller, unionID string, eventIdx int, amount, expectedQuota decimal.Decimal) error {
	if err := s.guard.CheckPaused(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, err := s.store.GetUnion(ctx, unionID)
	if err != nil {
		return err
	}
	if u == nil {
		return ErrUnknownUnion
	}
	if !u.BettingStarted {
		return ErrBettingNotStarted
	}
	if u.BettingLocked {
		return ErrBettingLocked
	}
	if u.Resolved {
		return ErrAlreadyResolved
	}
	if eventIdx < 0 || eventIdx >= len(u.Events) {
		return ErrInvalidOutcome
	}
	if !amount.IsPositive() {
		return ErrZeroStake
	}

	ev := &u.Events[eventIdx]
	if ev.Quota.LessThanOrEqual(quota.Precision) {
		return ErrQuotaNotSet
	}
	if !ev.Quota.Equal(expectedQuota) {
		return ErrQuotaMismatch
	}

	balance, err := s.store.GetBalance(ctx, caller)
	if err != nil {
		return err
	}
	if balance.LessThan(amount) {
		return ErrInsufficientFunds
	}

	if err := liquidity.Check(u, eventIdx, amount); err != nil {
		if errors.Is(err, liquidity.ErrInsufficientLiquidity) {
			metrics.LiquidityRejections.Inc()
		}
		return err
	}

	ev.TotalStaked = ev.TotalStaked.Add(amount)
	entry := newEntry(caller, unionID, model.EntryStake, amount.Neg(), "")
	if err := s.store.ApplyBet(ctx, u, caller, eventIdx, amount, entry); err != nil {
		return err
	}

	metrics.BetsTotal.Inc()
	metrics.StakeVolume.Add(amount.InexactFloat64())
	slog.Info("bet accepted",
		"union_id", unionID,
		"account", caller,
		"event_index", eventIdx,
		"amount", amount.String(),
		"quota", ev.Quota.String(),
	)
	s.broadcast(WSMessage{
		Type:       "bet_placed",
		UnionID:    unionID,
		EventIndex: eventIdx,
		Amount:     amount.String(),
	})
	return nil
}

// ClaimBet pays out the caller's stake on the winning event at the quota in
// force at claim time. One claim per account per union; losing stakes and
// repeat claims are rejected alike.
func (s *Service) ClaimBet(ctx context.Context, caller, unionID string) (decimal.Decimal, error) {
	if err := s.guard.CheckPaused(); err != nil {
		return decimal.Zero, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, err := s.store.GetUnion(ctx, unionID)
	if err != nil {
		return decimal.Zero, err
	}
	if u == nil {
		return decimal.Zero, ErrUnknownUnion
	}
	if !u.Resolved {
		return decimal.Zero, ErrNotResolved
	}

	claimed, err := s.store.HasClaimed(ctx, unionID, caller)
	if err != nil {
		return decimal.Zero, err
	}
	if claimed {
		return decimal.Zero, ErrNoClaimableBet
	}

	stake, err := s.store.StakeOn(ctx, unionID, caller, u.WinningEvent)
	if err != nil {
		return decimal.Zero, err
	}
	if !stake.IsPositive() {
		return decimal.Zero, ErrNoClaimableBet
	}

	payout := quota.Payout(stake, u.Events[u.WinningEvent].Quota)
	entry := newEntry(caller, unionID, model.EntryPayout, payout, "")
	if err := s.store.ApplyClaim(ctx, unionID, caller, payout, entry); err != nil {
		return decimal.Zero, err
	}

	metrics.ClaimsTotal.Inc()
	metrics.PayoutVolume.Add(payout.InexactFloat64())
	slog.Info("claim paid",
		"union_id", unionID,
		"account", caller,
		"stake", stake.String(),
		"payout", payout.String(),
	)
	s.broadcast(WSMessage{
		Type:    "claim_paid",
		UnionID: unionID,
		Amount:  payout.String(),
	})
	return payout, nil
}
