// Package model defines the core domain types shared across the wagering engine.
// All token amounts, quotas and rates use shopspring/decimal — never float64 for
// money. Quotas and rates are fixed-point integers scaled by quota.Precision.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Journal entry kinds. The journal is the ledger-side event log: every balance
// movement appends exactly one immutable entry.
const (
	EntryDeposit    = "deposit"
	EntryFunding    = "funding"
	EntryStake      = "stake"
	EntryPayout     = "payout"
	EntryWithdrawal = "withdrawal"
	EntryFee        = "fee"
)

// JournalEntry is an immutable record of one balance movement.
// Once created, these are never modified or deleted.
type JournalEntry struct {
	ID        string          `json:"id" db:"id"`
	Account   string          `json:"account" db:"account"`
	UnionID   string          `json:"union_id,omitempty" db:"union_id"`
	Kind      string          `json:"kind" db:"kind"`
	Amount    decimal.Decimal `json:"amount" db:"amount"` // signed: credit > 0, debit < 0
	Channel   string          `json:"channel,omitempty" db:"channel"`
	Timestamp time.Time       `json:"timestamp" db:"timestamp"`
}

// Event is one outcome option within a union. Quota is zero until the owner
// sets it; once set it is always strictly greater than quota.Precision.
type Event struct {
	Label       string          `json:"label" db:"label"`
	Quota       decimal.Decimal `json:"quota" db:"quota"`
	TotalStaked decimal.Decimal `json:"total_staked" db:"total_staked"`
}

// Union is a betting market containing mutually exclusive events. The value
// of WinningEvent is meaningful only while Resolved is true.
type Union struct {
	ID             string          `json:"id" db:"id"`
	Owner          string          `json:"owner" db:"owner"`
	ProviderFund   decimal.Decimal `json:"provider_fund" db:"provider_fund"`
	FeeRate        decimal.Decimal `json:"fee_rate" db:"fee_rate"` // owner's rate at creation
	Events         []Event         `json:"events"`
	BettingStarted bool            `json:"betting_started" db:"betting_started"`
	BettingLocked  bool            `json:"betting_locked" db:"betting_locked"`
	Resolved       bool            `json:"resolved" db:"resolved"`
	WinningEvent   int             `json:"winning_event" db:"winning_event"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
}

// TotalStaked returns the sum of accepted stakes across all events.
func (u *Union) TotalStaked() decimal.Decimal {
	total := decimal.Zero
	for _, e := range u.Events {
		total = total.Add(e.TotalStaked)
	}
	return total
}

// Provider is the account that creates and administers unions. Created
// implicitly on first interaction; Reputation never decreases.
type Provider struct {
	Account    string          `json:"account" db:"account"`
	FeeRate    decimal.Decimal `json:"fee_rate" db:"fee_rate"`
	Reputation decimal.Decimal `json:"reputation" db:"reputation"`
}

// WithdrawalRequest is the pending first half of the two-phase withdrawal
// flow. At most one request exists per account; a new request overwrites
// any unconfirmed one.
type WithdrawalRequest struct {
	Account        string          `json:"account" db:"account"`
	Amount         decimal.Decimal `json:"amount" db:"amount"`
	RouteSecondary bool            `json:"route_secondary" db:"route_secondary"`
	RequestedAt    time.Time       `json:"requested_at" db:"requested_at"`
}

// WithdrawalReceipt is emitted when the admin confirms a pending request.
// Payable = Amount - Fee is the externally payable amount; the fee is
// retained as platform revenue.
type WithdrawalReceipt struct {
	Account     string          `json:"account"`
	Destination string          `json:"destination"`
	Amount      decimal.Decimal `json:"amount"`
	Fee         decimal.Decimal `json:"fee"`
	Payable     decimal.Decimal `json:"payable"`
	ConfirmedAt time.Time       `json:"confirmed_at"`
}

// Association maps an account to its external withdrawal addresses.
type Association struct {
	Account   string `json:"account" db:"account"`
	Primary   string `json:"primary" db:"primary_addr"`
	Secondary string `json:"secondary" db:"secondary_addr"`
}
