package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/desports/wager-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All token amounts are stored as NUMERIC for exact decimal precision.
// Multi-entity mutations run inside one transaction so a storage failure
// never leaves a bet, claim or withdrawal half-applied.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// --- Balances ---

func (s *PostgresStore) GetBalance(ctx context.Context, account string) (decimal.Decimal, error) {
	var amountS string
	err := s.pool.QueryRow(ctx,
		`SELECT amount::TEXT FROM balances WHERE account = $1`, account).Scan(&amountS)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("get balance %s: %w", account, err)
	}
	amount, err := decimal.NewFromString(amountS)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse balance %s: %w", account, err)
	}
	return amount, nil
}

func (s *PostgresStore) Credit(ctx context.Context, account string, amount decimal.Decimal, entry *model.JournalEntry) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := creditTx(ctx, tx, account, amount); err != nil {
		return err
	}
	if err := insertJournalTx(ctx, tx, entry); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func creditTx(ctx context.Context, tx pgx.Tx, account string, amount decimal.Decimal) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO balances (account, amount) VALUES ($1, $2::NUMERIC)
		 ON CONFLICT (account) DO UPDATE SET amount = balances.amount + EXCLUDED.amount`,
		account, amount.String())
	return err
}

func debitTx(ctx context.Context, tx pgx.Tx, account string, amount decimal.Decimal) error {
	tag, err := tx.Exec(ctx,
		`UPDATE balances SET amount = amount - $2::NUMERIC
		 WHERE account = $1 AND amount >= $2::NUMERIC`,
		account, amount.String())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("store: balance of %s below debit amount", account)
	}
	return nil
}

// --- Withdrawals ---

func (s *PostgresStore) GetWithdrawalRequest(ctx context.Context, account string) (*model.WithdrawalRequest, error) {
	var req model.WithdrawalRequest
	var amountS string
	err := s.pool.QueryRow(ctx,
		`SELECT account, amount::TEXT, route_secondary, requested_at
		 FROM withdrawal_requests WHERE account = $1`, account).
		Scan(&req.Account, &amountS, &req.RouteSecondary, &req.RequestedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get withdrawal request %s: %w", account, err)
	}
	req.Amount, _ = decimal.NewFromString(amountS)
	return &req, nil
}

func (s *PostgresStore) PutWithdrawalRequest(ctx context.Context, req *model.WithdrawalRequest) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO withdrawal_requests (account, amount, route_secondary, requested_at)
		 VALUES ($1, $2::NUMERIC, $3, $4)
		 ON CONFLICT (account) DO UPDATE
		 SET amount = EXCLUDED.amount,
		     route_secondary = EXCLUDED.route_secondary,
		     requested_at = EXCLUDED.requested_at`,
		req.Account, req.Amount.String(), req.RouteSecondary, req.RequestedAt)
	return err
}

func (s *PostgresStore) ApplyWithdrawal(ctx context.Context, account string, amount, fee decimal.Decimal, entries []model.JournalEntry) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := debitTx(ctx, tx, account, amount); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO platform (id, revenue) VALUES (1, $1::NUMERIC)
		 ON CONFLICT (id) DO UPDATE SET revenue = platform.revenue + EXCLUDED.revenue`,
		fee.String()); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx,
		`DELETE FROM withdrawal_requests WHERE account = $1`, account); err != nil {
		return err
	}
	for i := range entries {
		if err := insertJournalTx(ctx, tx, &entries[i]); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) PlatformRevenue(ctx context.Context) (decimal.Decimal, error) {
	var revenueS string
	err := s.pool.QueryRow(ctx,
		`SELECT revenue::TEXT FROM platform WHERE id = 1`).Scan(&revenueS)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	revenue, _ := decimal.NewFromString(revenueS)
	return revenue, nil
}

// --- Address directory ---

func (s *PostgresStore) PutAssociation(ctx context.Context, assoc *model.Association) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO associations (account, primary_addr, secondary_addr)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (account) DO UPDATE
		 SET primary_addr = EXCLUDED.primary_addr,
		     secondary_addr = EXCLUDED.secondary_addr`,
		assoc.Account, assoc.Primary, assoc.Secondary)
	return err
}

func (s *PostgresStore) GetAssociation(ctx context.Context, account string) (*model.Association, error) {
	var a model.Association
	err := s.pool.QueryRow(ctx,
		`SELECT account, primary_addr, secondary_addr FROM associations WHERE account = $1`,
		account).Scan(&a.Account, &a.Primary, &a.Secondary)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get association %s: %w", account, err)
	}
	return &a, nil
}

// --- Providers ---

func (s *PostgresStore) GetProvider(ctx context.Context, account string) (*model.Provider, error) {
	var p model.Provider
	var feeS, repS string
	err := s.pool.QueryRow(ctx,
		`SELECT account, fee_rate::TEXT, reputation::TEXT FROM providers WHERE account = $1`,
		account).Scan(&p.Account, &feeS, &repS)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get provider %s: %w", account, err)
	}
	p.FeeRate, _ = decimal.NewFromString(feeS)
	p.Reputation, _ = decimal.NewFromString(repS)
	return &p, nil
}

func (s *PostgresStore) PutProvider(ctx context.Context, p *model.Provider) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO providers (account, fee_rate, reputation)
		 VALUES ($1, $2::NUMERIC, $3::NUMERIC)
		 ON CONFLICT (account) DO UPDATE
		 SET fee_rate = EXCLUDED.fee_rate,
		     reputation = EXCLUDED.reputation`,
		p.Account, p.FeeRate.String(), p.Reputation.String())
	return err
}

// --- Unions ---

func (s *PostgresStore) CreateUnion(ctx context.Context, u *model.Union) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`INSERT INTO unions (id, owner, provider_fund, fee_rate,
		                     betting_started, betting_locked, resolved, winning_event, created_at)
		 VALUES ($1, $2, $3::NUMERIC, $4::NUMERIC, $5, $6, $7, $8, $9)
		 ON CONFLICT (id) DO NOTHING`,
		u.ID, u.Owner, u.ProviderFund.String(), u.FeeRate.String(),
		u.BettingStarted, u.BettingLocked, u.Resolved, u.WinningEvent, u.CreatedAt)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}
	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func (s *PostgresStore) GetUnion(ctx context.Context, id string) (*model.Union, error) {
	var u model.Union
	var fundS, feeS string
	err := s.pool.QueryRow(ctx,
		`SELECT id, owner, provider_fund::TEXT, fee_rate::TEXT,
		        betting_started, betting_locked, resolved, winning_event, created_at
		 FROM unions WHERE id = $1`, id).
		Scan(&u.ID, &u.Owner, &fundS, &feeS,
			&u.BettingStarted, &u.BettingLocked, &u.Resolved, &u.WinningEvent, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get union %s: %w", id, err)
	}
	u.ProviderFund, _ = decimal.NewFromString(fundS)
	u.FeeRate, _ = decimal.NewFromString(feeS)

	rows, err := s.pool.Query(ctx,
		`SELECT label, quota::TEXT, total_staked::TEXT
		 FROM events WHERE union_id = $1 ORDER BY idx`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var ev model.Event
		var quotaS, stakedS string
		if err := rows.Scan(&ev.Label, &quotaS, &stakedS); err != nil {
			return nil, err
		}
		ev.Quota, _ = decimal.NewFromString(quotaS)
		ev.TotalStaked, _ = decimal.NewFromString(stakedS)
		u.Events = append(u.Events, ev)
	}
	return &u, rows.Err()
}

func (s *PostgresStore) UpdateUnion(ctx context.Context, u *model.Union) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := updateUnionTx(ctx, tx, u); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func updateUnionTx(ctx context.Context, tx pgx.Tx, u *model.Union) error {
	_, err := tx.Exec(ctx,
		`UPDATE unions
		 SET provider_fund = $2::NUMERIC, fee_rate = $3::NUMERIC,
		     betting_started = $4, betting_locked = $5, resolved = $6, winning_event = $7
		 WHERE id = $1`,
		u.ID, u.ProviderFund.String(), u.FeeRate.String(),
		u.BettingStarted, u.BettingLocked, u.Resolved, u.WinningEvent)
	if err != nil {
		return err
	}
	for idx, ev := range u.Events {
		if _, err := tx.Exec(ctx,
			`INSERT INTO events (union_id, idx, label, quota, total_staked)
			 VALUES ($1, $2, $3, $4::NUMERIC, $5::NUMERIC)
			 ON CONFLICT (union_id, idx) DO UPDATE
			 SET label = EXCLUDED.label,
			     quota = EXCLUDED.quota,
			     total_staked = EXCLUDED.total_staked`,
			u.ID, idx, ev.Label, ev.Quota.String(), ev.TotalStaked.String()); err != nil {
			return err
		}
	}
	return nil
}

func (s *PostgresStore) ListUnions(ctx context.Context) ([]model.Union, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id FROM unions ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	unions := make([]model.Union, 0, len(ids))
	for _, id := range ids {
		u, err := s.GetUnion(ctx, id)
		if err != nil {
			return nil, err
		}
		if u != nil {
			unions = append(unions, *u)
		}
	}
	return unions, nil
}

// --- Stakes and claims ---

func (s *PostgresStore) StakeOn(ctx context.Context, unionID, account string, eventIdx int) (decimal.Decimal, error) {
	var amountS string
	err := s.pool.QueryRow(ctx,
		`SELECT amount::TEXT FROM stakes
		 WHERE union_id = $1 AND account = $2 AND event_idx = $3`,
		unionID, account, eventIdx).Scan(&amountS)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	amount, _ := decimal.NewFromString(amountS)
	return amount, nil
}

func (s *PostgresStore) HasClaimed(ctx context.Context, unionID, account string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM claims WHERE union_id = $1 AND account = $2)`,
		unionID, account).Scan(&exists)
	return exists, err
}

func (s *PostgresStore) ApplyBet(ctx context.Context, u *model.Union, account string, eventIdx int, amount decimal.Decimal, entry *model.JournalEntry) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := debitTx(ctx, tx, account, amount); err != nil {
		return err
	}
	if err := updateUnionTx(ctx, tx, u); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO stakes (union_id, account, event_idx, amount)
		 VALUES ($1, $2, $3, $4::NUMERIC)
		 ON CONFLICT (union_id, account, event_idx) DO UPDATE
		 SET amount = stakes.amount + EXCLUDED.amount`,
		u.ID, account, eventIdx, amount.String()); err != nil {
		return err
	}
	if err := insertJournalTx(ctx, tx, entry); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) ApplyClaim(ctx context.Context, unionID, account string, payout decimal.Decimal, entry *model.JournalEntry) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`INSERT INTO claims (union_id, account, claimed_at) VALUES ($1, $2, NOW())`,
		unionID, account); err != nil {
		return err
	}
	if err := creditTx(ctx, tx, account, payout); err != nil {
		return err
	}
	if err := insertJournalTx(ctx, tx, entry); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) ApplyFunding(ctx context.Context, u *model.Union, owner string, amount decimal.Decimal, entry *model.JournalEntry) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := debitTx(ctx, tx, owner, amount); err != nil {
		return err
	}
	if err := updateUnionTx(ctx, tx, u); err != nil {
		return err
	}
	if err := insertJournalTx(ctx, tx, entry); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) ApplyResolution(ctx context.Context, u *model.Union, p *model.Provider) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := updateUnionTx(ctx, tx, u); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO providers (account, fee_rate, reputation)
		 VALUES ($1, $2::NUMERIC, $3::NUMERIC)
		 ON CONFLICT (account) DO UPDATE
		 SET fee_rate = EXCLUDED.fee_rate,
		     reputation = EXCLUDED.reputation`,
		p.Account, p.FeeRate.String(), p.Reputation.String()); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// --- Journal ---

func insertJournalTx(ctx context.Context, tx pgx.Tx, e *model.JournalEntry) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO journal_entries (id, account, union_id, kind, amount, channel, timestamp)
		 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6, $7)`,
		e.ID, e.Account, e.UnionID, e.Kind, e.Amount.String(), e.Channel, e.Timestamp)
	return err
}

func (s *PostgresStore) JournalByAccount(ctx context.Context, account string) ([]model.JournalEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, account, union_id, kind, amount::TEXT, channel, timestamp
		 FROM journal_entries WHERE account = $1 ORDER BY timestamp`, account)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanJournalEntries(rows)
}

func (s *PostgresStore) JournalByUnion(ctx context.Context, unionID string) ([]model.JournalEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, account, union_id, kind, amount::TEXT, channel, timestamp
		 FROM journal_entries WHERE union_id = $1 ORDER BY timestamp`, unionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanJournalEntries(rows)
}

func scanJournalEntries(rows pgx.Rows) ([]model.JournalEntry, error) {
	var entries []model.JournalEntry
	for rows.Next() {
		var e model.JournalEntry
		var amountS string
		if err := rows.Scan(&e.ID, &e.Account, &e.UnionID, &e.Kind,
			&amountS, &e.Channel, &e.Timestamp); err != nil {
			return nil, err
		}
		e.Amount, _ = decimal.NewFromString(amountS)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
