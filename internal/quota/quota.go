// Package quota implements the fixed-point odds arithmetic for the wagering
// ledger.
//
// Quotas, provider fee rates and the withdrawal fee rate are integers scaled
// by Precision (1e10): value_actual = value_scaled / Precision. A quota of
// 20_000_000_000 is a 2.0x payout multiplier. All divisions floor, matching
// integer division in the source ledger, so payouts can never round up past
// what the covering pool holds.
//
// All values use shopspring/decimal — never float64 for money.
package quota

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// Precision is the fixed-point scale: 1e10 represents 1.0.
	Precision = decimal.New(1, 10)

	// MaxProviderFee caps a provider's fee rate at 10%.
	MaxProviderFee = decimal.New(1, 9)

	// DefaultWithdrawalFeeRate is the initial global withdrawal fee: 1%.
	DefaultWithdrawalFeeRate = decimal.New(1, 8)
)

var (
	// ErrQuotaTooLow is returned for quotas at or below 1.0x. A winning
	// bettor must always receive strictly more than staked.
	ErrQuotaTooLow = errors.New("quota: quota must exceed precision (1.0x)")

	// ErrQuotaCountMismatch is returned when a bulk quota update does not
	// cover every event exactly once.
	ErrQuotaCountMismatch = errors.New("quota: quota count does not match event count")

	// ErrFeeTooHigh is returned when a provider fee rate exceeds MaxProviderFee.
	ErrFeeTooHigh = errors.New("quota: fee rate exceeds maximum")

	// ErrRateNegative is returned for negative fee rates.
	ErrRateNegative = errors.New("quota: rate must not be negative")
)

// Validate checks that a single quota is strictly above Precision.
func Validate(q decimal.Decimal) error {
	if q.LessThanOrEqual(Precision) {
		return ErrQuotaTooLow
	}
	return nil
}

// ValidateAll checks a bulk quota update: one quota per event, every quota
// strictly above Precision. Either the whole set is acceptable or none is.
func ValidateAll(qs []decimal.Decimal, eventCount int) error {
	if len(qs) != eventCount {
		return ErrQuotaCountMismatch
	}
	for _, q := range qs {
		if err := Validate(q); err != nil {
			return err
		}
	}
	return nil
}

// ValidateFeeRate checks a provider fee rate: 0 <= rate <= MaxProviderFee.
func ValidateFeeRate(rate decimal.Decimal) error {
	if rate.IsNegative() {
		return ErrRateNegative
	}
	if rate.GreaterThan(MaxProviderFee) {
		return ErrFeeTooHigh
	}
	return nil
}

// Payout computes the fixed-point payout for a stake at the given quota:
//
//	payout = floor(stake * quota / Precision)
//
// QuoRem with scale 0 truncates toward zero; stakes and quotas are
// non-negative, so truncation is floor division.
func Payout(stake, q decimal.Decimal) decimal.Decimal {
	p, _ := stake.Mul(q).QuoRem(Precision, 0)
	return p
}

// Fee computes a fixed-point fee: floor(amount * rate / Precision).
func Fee(amount, rate decimal.Decimal) decimal.Decimal {
	f, _ := amount.Mul(rate).QuoRem(Precision, 0)
	return f
}
