package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/desports/wager-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache for the hot reads: union state and account balances. Writes go to
// the primary store and invalidate the cache; reads check Redis first then
// fall back to the primary.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetUnion(ctx context.Context, id string) (*model.Union, error) {
	data, err := s.rdb.Get(ctx, unionKey(id)).Bytes()
	if err == nil {
		var u model.Union
		if json.Unmarshal(data, &u) == nil {
			return &u, nil
		}
	}

	u, err := s.primary.GetUnion(ctx, id)
	if err != nil || u == nil {
		return u, err
	}

	s.cacheUnion(ctx, u)
	return u, nil
}

func (s *CachedStore) GetBalance(ctx context.Context, account string) (decimal.Decimal, error) {
	data, err := s.rdb.Get(ctx, balanceKey(account)).Result()
	if err == nil {
		if bal, perr := decimal.NewFromString(data); perr == nil {
			return bal, nil
		}
	}

	bal, err := s.primary.GetBalance(ctx, account)
	if err != nil {
		return decimal.Zero, err
	}
	s.rdb.Set(ctx, balanceKey(account), bal.String(), s.ttl)
	return bal, nil
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) Credit(ctx context.Context, account string, amount decimal.Decimal, entry *model.JournalEntry) error {
	if err := s.primary.Credit(ctx, account, amount, entry); err != nil {
		return err
	}
	s.rdb.Del(ctx, balanceKey(account))
	return nil
}

func (s *CachedStore) ApplyWithdrawal(ctx context.Context, account string, amount, fee decimal.Decimal, entries []model.JournalEntry) error {
	if err := s.primary.ApplyWithdrawal(ctx, account, amount, fee, entries); err != nil {
		return err
	}
	s.rdb.Del(ctx, balanceKey(account))
	return nil
}

func (s *CachedStore) CreateUnion(ctx context.Context, u *model.Union) (bool, error) {
	created, err := s.primary.CreateUnion(ctx, u)
	if err != nil {
		return false, err
	}
	if created {
		s.cacheUnion(ctx, u)
	}
	return created, nil
}

func (s *CachedStore) UpdateUnion(ctx context.Context, u *model.Union) error {
	if err := s.primary.UpdateUnion(ctx, u); err != nil {
		return err
	}
	// Invalidate; next read re-populates.
	s.rdb.Del(ctx, unionKey(u.ID))
	return nil
}

func (s *CachedStore) ApplyBet(ctx context.Context, u *model.Union, account string, eventIdx int, amount decimal.Decimal, entry *model.JournalEntry) error {
	if err := s.primary.ApplyBet(ctx, u, account, eventIdx, amount, entry); err != nil {
		return err
	}
	s.rdb.Del(ctx, unionKey(u.ID), balanceKey(account))
	return nil
}

func (s *CachedStore) ApplyClaim(ctx context.Context, unionID, account string, payout decimal.Decimal, entry *model.JournalEntry) error {
	if err := s.primary.ApplyClaim(ctx, unionID, account, payout, entry); err != nil {
		return err
	}
	s.rdb.Del(ctx, balanceKey(account))
	return nil
}

func (s *CachedStore) ApplyFunding(ctx context.Context, u *model.Union, owner string, amount decimal.Decimal, entry *model.JournalEntry) error {
	if err := s.primary.ApplyFunding(ctx, u, owner, amount, entry); err != nil {
		return err
	}
	s.rdb.Del(ctx, unionKey(u.ID), balanceKey(owner))
	return nil
}

func (s *CachedStore) ApplyResolution(ctx context.Context, u *model.Union, p *model.Provider) error {
	if err := s.primary.ApplyResolution(ctx, u, p); err != nil {
		return err
	}
	s.rdb.Del(ctx, unionKey(u.ID))
	return nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) GetWithdrawalRequest(ctx context.Context, account string) (*model.WithdrawalRequest, error) {
	return s.primary.GetWithdrawalRequest(ctx, account)
}

func (s *CachedStore) PutWithdrawalRequest(ctx context.Context, req *model.WithdrawalRequest) error {
	return s.primary.PutWithdrawalRequest(ctx, req)
}

func (s *CachedStore) PlatformRevenue(ctx context.Context) (decimal.Decimal, error) {
	return s.primary.PlatformRevenue(ctx)
}

func (s *CachedStore) PutAssociation(ctx context.Context, assoc *model.Association) error {
	return s.primary.PutAssociation(ctx, assoc)
}

func (s *CachedStore) GetAssociation(ctx context.Context, account string) (*model.Association, error) {
	return s.primary.GetAssociation(ctx, account)
}

func (s *CachedStore) GetProvider(ctx context.Context, account string) (*model.Provider, error) {
	return s.primary.GetProvider(ctx, account)
}

func (s *CachedStore) PutProvider(ctx context.Context, p *model.Provider) error {
	return s.primary.PutProvider(ctx, p)
}

func (s *CachedStore) ListUnions(ctx context.Context) ([]model.Union, error) {
	return s.primary.ListUnions(ctx)
}

func (s *CachedStore) StakeOn(ctx context.Context, unionID, account string, eventIdx int) (decimal.Decimal, error) {
	return s.primary.StakeOn(ctx, unionID, account, eventIdx)
}

func (s *CachedStore) HasClaimed(ctx context.Context, unionID, account string) (bool, error) {
	return s.primary.HasClaimed(ctx, unionID, account)
}

func (s *CachedStore) JournalByAccount(ctx context.Context, account string) ([]model.JournalEntry, error) {
	return s.primary.JournalByAccount(ctx, account)
}

func (s *CachedStore) JournalByUnion(ctx context.Context, unionID string) ([]model.JournalEntry, error) {
	return s.primary.JournalByUnion(ctx, unionID)
}

// --- Cache helpers ---

func (s *CachedStore) cacheUnion(ctx context.Context, u *model.Union) {
	if data, err := json.Marshal(u); err == nil {
		s.rdb.Set(ctx, unionKey(u.ID), data, s.ttl)
	}
}

func unionKey(id string) string        { return fmt.Sprintf("union:%s", id) }
func balanceKey(account string) string { return fmt.Sprintf("balance:%s", account) }
