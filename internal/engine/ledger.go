package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/desports/wager-engine/internal/metrics"
	"github.com/desports/wager-engine/internal/model"
	"github.com/desports/wager-engine/internal/quota"
	"github.com/desports/wager-engine/internal/routing"
)

// Credit is the external-deposit entry point. Only authorized bridge
// identities may call it; it remains available while the contract is paused
// so in-flight external transfers are never lost.
func (s *Service) Credit(ctx context.Context, caller, account string, amount decimal.Decimal, channel string) error {
	if err := s.guard.RequireBridge(caller); err != nil {
		return err
	}
	if err := routing.ValidateChannel(channel); err != nil {
		return err
	}
	if amount.IsNegative() {
		return ErrInvalidAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry := newEntry(account, "", model.EntryDeposit, amount, channel)
	if err := s.store.Credit(ctx, account, amount, entry); err != nil {
		return err
	}

	metrics.DepositsTotal.WithLabelValues(channel).Inc()
	slog.Info("deposit credited",
		"account", account,
		"amount", amount.String(),
		"channel", channel,
	)
	return nil
}

// Balance returns an account's custodial balance.
func (s *Service) Balance(ctx context.Context, account string) (decimal.Decimal, error) {
	return s.store.GetBalance(ctx, account)
}

// Journal returns an account's balance-movement history.
func (s *Service) Journal(ctx context.Context, account string) ([]model.JournalEntry, error) {
	return s.store.JournalByAccount(ctx, account)
}

// RequestWithdrawal records the first half of the two-phase withdrawal flow.
// Funds do not move yet; a new request overwrites any prior unconfirmed one.
func (s *Service) RequestWithdrawal(ctx context.Context, account string, amount decimal.Decimal, routeSecondary bool) error {
	if err := s.guard.CheckPaused(); err != nil {
		return err
	}
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	balance, err := s.store.GetBalance(ctx, account)
	if err != nil {
		return err
	}
	if balance.LessThan(amount) {
		return ErrInsufficientFunds
	}

	return s.store.PutWithdrawalRequest(ctx, &model.WithdrawalRequest{
		Account:        account,
		Amount:         amount,
		RouteSecondary: routeSecondary,
		RequestedAt:    time.Now().UTC(),
	})
}

// ConfirmWithdrawal is the privileged second half: it debits the full amount,
// retains the fee as platform revenue, and emits a receipt carrying the
// externally payable amount and the resolved destination. The external payout
// leg is owned by an off-ledger process consuming the receipt.
func (s *Service) ConfirmWithdrawal(ctx context.Context, caller, account string) (*model.WithdrawalReceipt, error) {
	if err := s.guard.RequireAdmin(caller); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	req, err := s.store.GetWithdrawalRequest(ctx, account)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, ErrNoPendingRequest
	}

	fee := quota.Fee(req.Amount, s.withdrawalFeeRate)
	payable := req.Amount.Sub(fee)

	assoc, err := s.store.GetAssociation(ctx, account)
	if err != nil {
		return nil, err
	}
	dest := routing.Destination(assoc, account, req.RouteSecondary)

	entries := []model.JournalEntry{
		*newEntry(account, "", model.EntryWithdrawal, req.Amount.Neg(), ""),
	}
	if fee.IsPositive() {
		entries = append(entries, *newEntry("platform", "", model.EntryFee, fee, ""))
	}
	if err := s.store.ApplyWithdrawal(ctx, account, req.Amount, fee, entries); err != nil {
		return nil, err
	}

	metrics.WithdrawalsConfirmed.Inc()
	slog.Info("withdrawal confirmed",
		"account", account,
		"amount", req.Amount.String(),
		"fee", fee.String(),
		"payable", payable.String(),
		"destination", dest,
	)

	return &model.WithdrawalReceipt{
		Account:     account,
		Destination: dest,
		Amount:      req.Amount,
		Fee:         fee,
		Payable:     payable,
		ConfirmedAt: time.Now().UTC(),
	}, nil
}

// ChangeWithdrawalFeeRate replaces the global withdrawal fee rate.
// Administrator only. The rate is a fixed-point fraction of the withdrawn
// amount, at most 1.0 (the whole amount).
func (s *Service) ChangeWithdrawalFeeRate(caller string, rate decimal.Decimal) error {
	if err := s.guard.RequireAdmin(caller); err != nil {
		return err
	}
	if rate.IsNegative() {
		return quota.ErrRateNegative
	}
	if rate.GreaterThan(quota.Precision) {
		return quota.ErrFeeTooHigh
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.withdrawalFeeRate = rate
	slog.Info("withdrawal fee rate changed", "rate", rate.String())
	return nil
}

// WithdrawalFeeRate returns the current global withdrawal fee rate.
func (s *Service) WithdrawalFeeRate() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.withdrawalFeeRate
}

// PlatformRevenue returns accumulated withdrawal fees. Administrator only.
func (s *Service) PlatformRevenue(ctx context.Context, caller string) (decimal.Decimal, error) {
	if err := s.guard.RequireAdmin(caller); err != nil {
		return decimal.Zero, err
	}
	return s.store.PlatformRevenue(ctx)
}

// AssociateAddresses records the caller's external withdrawal addresses in
// the directory consumed by ConfirmWithdrawal's destination resolution.
func (s *Service) AssociateAddresses(ctx context.Context, caller, primary, secondary string) error {
	if err := s.guard.CheckPaused(); err != nil {
		return err
	}
	if err := routing.ValidateAddress(primary); err != nil {
		return err
	}
	if err := routing.ValidateAddress(secondary); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.store.PutAssociation(ctx, &model.Association{
		Account:   caller,
		Primary:   primary,
		Secondary: secondary,
	})
}

// SetPaused toggles the global pause. Administrator only. While paused every
// state-mutating operation except bridge deposits is rejected.
func (s *Service) SetPaused(caller string, paused bool) error {
	if err := s.guard.RequireAdmin(caller); err != nil {
		return err
	}
	s.guard.SetPaused(paused)
	slog.Info("contract pause toggled", "paused", paused)
	return nil
}
