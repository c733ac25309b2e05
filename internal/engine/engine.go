// Package engine implements the custodial wagering ledger core: balance
// accounting, the union lifecycle state machine, stake placement with the
// solvency check, and claim settlement. HTTP handlers live in the same
// package, the way the service is meant to be consumed.
//
// Every mutating operation runs as one atomic unit: all preconditions are
// evaluated before the first mutation, and the multi-entity mutations commit
// through a single Store call. One engine-level mutex serializes writers, so
// the four concerns (ledger, providers, market, wagering) observe a single
// consistent store.
package engine

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/desports/wager-engine/internal/access"
	"github.com/desports/wager-engine/internal/model"
	"github.com/desports/wager-engine/internal/quota"
	"github.com/desports/wager-engine/internal/store"
)

var (
	// ErrUnknownUnion is returned when the union identifier is not present.
	ErrUnknownUnion = errors.New("engine: union not found")

	// ErrBettingStarted rejects operations that are only legal before
	// betting opens (appending events, starting twice).
	ErrBettingStarted = errors.New("engine: betting already started")

	// ErrBettingNotStarted rejects bets before the owner opens betting.
	ErrBettingNotStarted = errors.New("engine: betting not started")

	// ErrBettingLocked rejects bets while the owner's per-union pause is set.
	ErrBettingLocked = errors.New("engine: betting locked")

	// ErrAlreadyResolved rejects mutations of a resolved union.
	ErrAlreadyResolved = errors.New("engine: union already resolved")

	// ErrNotResolved rejects claims before resolution.
	ErrNotResolved = errors.New("engine: union not resolved")

	// ErrInvalidOutcome is returned for an event index out of range.
	ErrInvalidOutcome = errors.New("engine: outcome index out of range")

	// ErrZeroStake rejects non-positive bet amounts.
	ErrZeroStake = errors.New("engine: stake must be positive")

	// ErrQuotaNotSet rejects bets on an event whose quota was never
	// published; accepting them would take stakes that can never win.
	ErrQuotaNotSet = errors.New("engine: event quota not set")

	// ErrQuotaMismatch is the optimistic-concurrency rejection: the
	// event's live quota no longer matches the odds the bettor accepted.
	ErrQuotaMismatch = errors.New("engine: quota changed since quote")

	// ErrInsufficientFunds is returned when a debit exceeds the balance.
	ErrInsufficientFunds = errors.New("engine: insufficient balance")

	// ErrNoClaimableBet covers every unpayable claim: never bet, bet on a
	// losing event, or already claimed.
	ErrNoClaimableBet = errors.New("engine: no claimable bet")

	// ErrNoPendingRequest is returned when confirming a withdrawal for an
	// account with no pending request.
	ErrNoPendingRequest = errors.New("engine: no pending withdrawal request")

	// ErrInvalidAmount rejects amounts outside the operation's domain.
	ErrInvalidAmount = errors.New("engine: amount must be positive")
)

// Service is the wagering ledger engine. One instance owns the whole deployed
// system's state; the mutex serializes all mutating operations against the
// shared store (single-writer model).
type Service struct {
	store store.Store
	guard *access.Guard
	wsHub *WSHub // optional; nil disables broadcasting

	mu                sync.Mutex
	withdrawalFeeRate decimal.Decimal // guarded by mu
}

// NewService creates the engine. Pass nil for hub if WebSocket broadcasting
// is not needed.
func NewService(st store.Store, guard *access.Guard, hub *WSHub) *Service {
	return &Service{
		store:             st,
		guard:             guard,
		wsHub:             hub,
		withdrawalFeeRate: quota.DefaultWithdrawalFeeRate,
	}
}

// Guard exposes the access guard (used by main for wiring).
func (s *Service) Guard() *access.Guard {
	return s.guard
}

// newEntry builds a journal entry for one balance movement.
func newEntry(account, unionID, kind string, amount decimal.Decimal, channel string) *model.JournalEntry {
	return &model.JournalEntry{
		ID:        uuid.New().String(),
		Account:   account,
		UnionID:   unionID,
		Kind:      kind,
		Amount:    amount,
		Channel:   channel,
		Timestamp: time.Now().UTC(),
	}
}

// broadcast pushes a message to WebSocket clients if a hub is attached.
func (s *Service) broadcast(msg WSMessage) {
	if s.wsHub != nil {
		s.wsHub.Broadcast(msg)
	}
}
