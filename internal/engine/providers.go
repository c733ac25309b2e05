package engine

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/desports/wager-engine/internal/model"
	"github.com/desports/wager-engine/internal/quota"
)

// SetFee sets the caller's provider fee rate, capped at a tenth of the stake.
// The rate is snapshotted into each union at creation time, so changing it
// never retroactively affects existing unions.
func (s *Service) SetFee(ctx context.Context, caller string, rate decimal.Decimal) error {
	if err := s.guard.CheckPaused(); err != nil {
		return err
	}
	if err := quota.ValidateFeeRate(rate); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.getOrInitProvider(ctx, caller)
	if err != nil {
		return err
	}
	p.FeeRate = rate
	if err := s.store.PutProvider(ctx, p); err != nil {
		return err
	}

	slog.Info("provider fee set", "account", caller, "rate", rate.String())
	return nil
}

// Provider returns a provider's profile. Unknown accounts get the zero-value
// profile rather than an error: every account is implicitly a provider with
// no fee and no reputation.
func (s *Service) Provider(ctx context.Context, account string) (*model.Provider, error) {
	p, err := s.store.GetProvider(ctx, account)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return &model.Provider{
			Account:    account,
			FeeRate:    decimal.Zero,
			Reputation: decimal.Zero,
		}, nil
	}
	return p, nil
}

// getOrInitProvider loads a provider profile, materializing the implicit
// zero-value profile for first-time providers. Must be called with the engine
// mutex held.
func (s *Service) getOrInitProvider(ctx context.Context, account string) (*model.Provider, error) {
	p, err := s.store.GetProvider(ctx, account)
	if err != nil {
		return nil, err
	}
	if p == nil {
		p = &model.Provider{
			Account:    account,
			FeeRate:    decimal.Zero,
			Reputation: decimal.Zero,
		}
	}
	return p, nil
}
