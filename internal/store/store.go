// Package store defines the persistence interface for the wagering ledger.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing).
package store

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/desports/wager-engine/internal/model"
)

// Store is the persistence interface. Lookups return (nil, nil) — or a zero
// decimal — when the record simply does not exist; a non-nil error always
// means storage failure, never absence.
//
// The engine serializes all mutating operations and evaluates every
// precondition before calling a mutator, so the Apply* methods assume their
// inputs are valid. Each Apply* method commits its whole mutation set
// atomically: a storage failure leaves none of it applied.
type Store interface {
	// --- Balances ---

	// GetBalance returns the account's custodial balance, zero if the
	// account has never been credited.
	GetBalance(ctx context.Context, account string) (decimal.Decimal, error)

	// Credit increases a balance and appends the journal entry.
	Credit(ctx context.Context, account string, amount decimal.Decimal, entry *model.JournalEntry) error

	// --- Withdrawals ---

	// GetWithdrawalRequest returns the account's pending request, if any.
	GetWithdrawalRequest(ctx context.Context, account string) (*model.WithdrawalRequest, error)

	// PutWithdrawalRequest records a pending request, overwriting any
	// prior unconfirmed one.
	PutWithdrawalRequest(ctx context.Context, req *model.WithdrawalRequest) error

	// ApplyWithdrawal debits the full amount, retains the fee as platform
	// revenue, clears the pending request and appends the journal entries.
	ApplyWithdrawal(ctx context.Context, account string, amount, fee decimal.Decimal, entries []model.JournalEntry) error

	// PlatformRevenue returns the accumulated withdrawal fees.
	PlatformRevenue(ctx context.Context) (decimal.Decimal, error)

	// --- Address directory ---

	PutAssociation(ctx context.Context, assoc *model.Association) error
	GetAssociation(ctx context.Context, account string) (*model.Association, error)

	// --- Providers ---

	GetProvider(ctx context.Context, account string) (*model.Provider, error)
	PutProvider(ctx context.Context, p *model.Provider) error

	// --- Unions ---

	// CreateUnion persists a new union. When the identifier already
	// exists it reports created=false and leaves the record untouched.
	CreateUnion(ctx context.Context, u *model.Union) (created bool, err error)

	GetUnion(ctx context.Context, id string) (*model.Union, error)

	// UpdateUnion persists the union's fields and its full event list.
	UpdateUnion(ctx context.Context, u *model.Union) error

	ListUnions(ctx context.Context) ([]model.Union, error)

	// --- Stakes and claims ---

	// StakeOn returns the account's cumulative stake on one event.
	StakeOn(ctx context.Context, unionID, account string, eventIdx int) (decimal.Decimal, error)

	// HasClaimed reports whether the account already claimed on the union.
	HasClaimed(ctx context.Context, unionID, account string) (bool, error)

	// ApplyBet debits the bettor, persists the post-bet union state,
	// accumulates the stake record and appends the journal entry.
	ApplyBet(ctx context.Context, u *model.Union, account string, eventIdx int, amount decimal.Decimal, entry *model.JournalEntry) error

	// ApplyClaim marks the union claimed for the account, credits the
	// payout and appends the journal entry.
	ApplyClaim(ctx context.Context, unionID, account string, payout decimal.Decimal, entry *model.JournalEntry) error

	// ApplyFunding debits the owner, persists the post-funding union
	// state and appends the journal entry.
	ApplyFunding(ctx context.Context, u *model.Union, owner string, amount decimal.Decimal, entry *model.JournalEntry) error

	// ApplyResolution persists the resolved union and the owner's
	// updated reputation together.
	ApplyResolution(ctx context.Context, u *model.Union, p *model.Provider) error

	// --- Journal ---

	JournalByAccount(ctx context.Context, account string) ([]model.JournalEntry, error)
	JournalByUnion(ctx context.Context, unionID string) ([]model.JournalEntry, error)
}
