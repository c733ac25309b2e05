// Package liquidity implements the per-bet solvency check for a union.
//
// At most one event in a union pays out. The covering pool for any outcome is
// therefore the provider's deposited fund plus every stake accepted on every
// event — losers forfeit into the pool. A bet is accepted only if the maximum
// liability its event could create, at the quoted odds, stays within that pool
// once the new stake has joined it. This is the pari-mutuel guarantee: the
// union can always honor its quoted odds for the eventual winner, whichever
// event wins.
package liquidity

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/desports/wager-engine/internal/model"
	"github.com/desports/wager-engine/internal/quota"
)

// ErrInsufficientLiquidity is returned when a bet's projected liability
// exceeds the union's covering pool.
var ErrInsufficientLiquidity = errors.New("liquidity: union pool cannot cover projected liability")

// Check validates that accepting `amount` on events[eventIdx] keeps the union
// solvent. The caller guarantees eventIdx is in range and the event's quota
// has been set.
//
//	projectedStake     = totalStaked[eventIdx] + amount
//	projectedLiability = floor(projectedStake * quota / Precision)
//	pool               = providerFund + Σ totalStaked + amount
//
// Returns nil if projectedLiability <= pool, ErrInsufficientLiquidity
// otherwise.
func Check(u *model.Union, eventIdx int, amount decimal.Decimal) error {
	ev := u.Events[eventIdx]

	projectedStake := ev.TotalStaked.Add(amount)
	projectedLiability := quota.Payout(projectedStake, ev.Quota)

	pool := u.ProviderFund.Add(u.TotalStaked()).Add(amount)

	if projectedLiability.GreaterThan(pool) {
		return ErrInsufficientLiquidity
	}
	return nil
}
