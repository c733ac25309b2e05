package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/desports/wager-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing and
// development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu           sync.RWMutex
	balances     map[string]decimal.Decimal
	requests     map[string]*model.WithdrawalRequest
	associations map[string]*model.Association
	providers    map[string]*model.Provider
	unions       map[string]*model.Union
	stakes       map[string]map[string]map[int]decimal.Decimal // union → account → event
	claimed      map[string]map[string]bool                    // union → account
	journal      []model.JournalEntry
	revenue      decimal.Decimal
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		balances:     make(map[string]decimal.Decimal),
		requests:     make(map[string]*model.WithdrawalRequest),
		associations: make(map[string]*model.Association),
		providers:    make(map[string]*model.Provider),
		unions:       make(map[string]*model.Union),
		stakes:       make(map[string]map[string]map[int]decimal.Decimal),
		claimed:      make(map[string]map[string]bool),
	}
}

// cloneUnion copies a union including its event list so callers cannot
// mutate stored state through the returned pointer.
func cloneUnion(u *model.Union) *model.Union {
	c := *u
	c.Events = make([]model.Event, len(u.Events))
	copy(c.Events, u.Events)
	return &c
}

// --- Balances ---

func (s *MemoryStore) GetBalance(_ context.Context, account string) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.balances[account], nil
}

func (s *MemoryStore) Credit(_ context.Context, account string, amount decimal.Decimal, entry *model.JournalEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.balances[account] = s.balances[account].Add(amount)
	s.journal = append(s.journal, *entry)
	return nil
}

// debitLocked removes amount from a balance. Callers hold s.mu.
func (s *MemoryStore) debitLocked(account string, amount decimal.Decimal) error {
	bal := s.balances[account]
	if bal.LessThan(amount) {
		return fmt.Errorf("store: balance of %s below debit amount", account)
	}
	s.balances[account] = bal.Sub(amount)
	return nil
}

// --- Withdrawals ---

func (s *MemoryStore) GetWithdrawalRequest(_ context.Context, account string) (*model.WithdrawalRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	req, ok := s.requests[account]
	if !ok {
		return nil, nil
	}
	c := *req
	return &c, nil
}

func (s *MemoryStore) PutWithdrawalRequest(_ context.Context, req *model.WithdrawalRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := *req
	s.requests[req.Account] = &c
	return nil
}

func (s *MemoryStore) ApplyWithdrawal(_ context.Context, account string, amount, fee decimal.Decimal, entries []model.JournalEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.debitLocked(account, amount); err != nil {
		return err
	}
	s.revenue = s.revenue.Add(fee)
	delete(s.requests, account)
	s.journal = append(s.journal, entries...)
	return nil
}

func (s *MemoryStore) PlatformRevenue(_ context.Context) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.revenue, nil
}

// --- Address directory ---

func (s *MemoryStore) PutAssociation(_ context.Context, assoc *model.Association) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := *assoc
	s.associations[assoc.Account] = &c
	return nil
}

func (s *MemoryStore) GetAssociation(_ context.Context, account string) (*model.Association, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.associations[account]
	if !ok {
		return nil, nil
	}
	c := *a
	return &c, nil
}

// --- Providers ---

func (s *MemoryStore) GetProvider(_ context.Context, account string) (*model.Provider, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.providers[account]
	if !ok {
		return nil, nil
	}
	c := *p
	return &c, nil
}

func (s *MemoryStore) PutProvider(_ context.Context, p *model.Provider) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := *p
	s.providers[p.Account] = &c
	return nil
}

// --- Unions ---

func (s *MemoryStore) CreateUnion(_ context.Context, u *model.Union) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.unions[u.ID]; exists {
		return false, nil
	}
	s.unions[u.ID] = cloneUnion(u)
	return true, nil
}

func (s *MemoryStore) GetUnion(_ context.Context, id string) (*model.Union, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.unions[id]
	if !ok {
		return nil, nil
	}
	return cloneUnion(u), nil
}

func (s *MemoryStore) UpdateUnion(_ context.Context, u *model.Union) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.unions[u.ID]; !ok {
		return fmt.Errorf("store: union %s not found", u.ID)
	}
	s.unions[u.ID] = cloneUnion(u)
	return nil
}

func (s *MemoryStore) ListUnions(_ context.Context) ([]model.Union, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	unions := make([]model.Union, 0, len(s.unions))
	for _, u := range s.unions {
		unions = append(unions, *cloneUnion(u))
	}
	return unions, nil
}

// --- Stakes and claims ---

func (s *MemoryStore) StakeOn(_ context.Context, unionID, account string, eventIdx int) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stakes[unionID][account][eventIdx], nil
}

func (s *MemoryStore) HasClaimed(_ context.Context, unionID, account string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.claimed[unionID][account], nil
}

func (s *MemoryStore) ApplyBet(_ context.Context, u *model.Union, account string, eventIdx int, amount decimal.Decimal, entry *model.JournalEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.debitLocked(account, amount); err != nil {
		return err
	}
	s.unions[u.ID] = cloneUnion(u)

	byAccount, ok := s.stakes[u.ID]
	if !ok {
		byAccount = make(map[string]map[int]decimal.Decimal)
		s.stakes[u.ID] = byAccount
	}
	byEvent, ok := byAccount[account]
	if !ok {
		byEvent = make(map[int]decimal.Decimal)
		byAccount[account] = byEvent
	}
	byEvent[eventIdx] = byEvent[eventIdx].Add(amount)

	s.journal = append(s.journal, *entry)
	return nil
}

func (s *MemoryStore) ApplyClaim(_ context.Context, unionID, account string, payout decimal.Decimal, entry *model.JournalEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	byAccount, ok := s.claimed[unionID]
	if !ok {
		byAccount = make(map[string]bool)
		s.claimed[unionID] = byAccount
	}
	byAccount[account] = true
	s.balances[account] = s.balances[account].Add(payout)
	s.journal = append(s.journal, *entry)
	return nil
}

func (s *MemoryStore) ApplyFunding(_ context.Context, u *model.Union, owner string, amount decimal.Decimal, entry *model.JournalEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.debitLocked(owner, amount); err != nil {
		return err
	}
	s.unions[u.ID] = cloneUnion(u)
	s.journal = append(s.journal, *entry)
	return nil
}

func (s *MemoryStore) ApplyResolution(_ context.Context, u *model.Union, p *model.Provider) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.unions[u.ID] = cloneUnion(u)
	c := *p
	s.providers[p.Account] = &c
	return nil
}

// --- Journal ---

func (s *MemoryStore) JournalByAccount(_ context.Context, account string) ([]model.JournalEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.JournalEntry
	for _, e := range s.journal {
		if e.Account == account {
			result = append(result, e)
		}
	}
	return result, nil
}

func (s *MemoryStore) JournalByUnion(_ context.Context, unionID string) ([]model.JournalEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.JournalEntry
	for _, e := range s.journal {
		if e.UnionID == unionID {
			result = append(result, e)
		}
	}
	return result, nil
}
