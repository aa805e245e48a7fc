package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/foodbridge/internal/apperr"
	"github.com/dukerupert/foodbridge/internal/model"
)

// PointsStore keeps per-account point balances and the entry log that
// explains every change to them.
type PointsStore struct {
	db DBTX
}

func NewPointsStore(db DBTX) *PointsStore {
	return &PointsStore{db: db}
}

func (s *PointsStore) WithTx(tx *sql.Tx) *PointsStore {
	return &PointsStore{db: tx}
}

// Balance returns the account's balance. Accounts that never earned points
// get a zero Bronze balance without a row being written.
func (s *PointsStore) Balance(ctx context.Context, accountID int64) (*model.PointBalance, error) {
	b := model.PointBalance{AccountID: accountID}
	err := s.db.QueryRowContext(ctx,
		`SELECT balance, lifetime_earned, rank FROM user_points WHERE account_id = ?`, accountID,
	).Scan(&b.Balance, &b.LifetimeEarned, &b.Rank)
	if err == sql.ErrNoRows {
		b.Rank = model.RankFor(0)
		return &b, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get points balance: %w", err)
	}
	return &b, nil
}

// Credit adds amount to the balance and lifetime total, recomputes the rank
// and records an entry.
func (s *PointsStore) Credit(ctx context.Context, accountID int64, amount int, reason, reference string) (*model.PointBalance, error) {
	if amount < 0 {
		return nil, apperr.Validationf("credit amount must be >= 0, got %d", amount)
	}
	now := formatTime(time.Now())

	b := model.PointBalance{AccountID: accountID}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO user_points (account_id, balance, lifetime_earned, rank, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(account_id) DO UPDATE SET
			balance = balance + excluded.balance,
			lifetime_earned = lifetime_earned + excluded.lifetime_earned,
			updated_at = excluded.updated_at
		 RETURNING balance, lifetime_earned`,
		accountID, amount, amount, model.RankFor(amount), now,
	).Scan(&b.Balance, &b.LifetimeEarned)
	if err != nil {
		return nil, fmt.Errorf("credit points: %w", err)
	}

	b.Rank = model.RankFor(b.LifetimeEarned)
	if _, err := s.db.ExecContext(ctx,
		`UPDATE user_points SET rank = ? WHERE account_id = ?`, b.Rank, accountID,
	); err != nil {
		return nil, fmt.Errorf("update rank: %w", err)
	}

	if err := s.addEntry(ctx, accountID, amount, reason, reference, now); err != nil {
		return nil, err
	}
	return &b, nil
}

// Debit subtracts amount in a single conditional statement so the balance
// can never go negative. A shortfall returns *apperr.InsufficientBalanceError.
func (s *PointsStore) Debit(ctx context.Context, accountID int64, amount int, reason, reference string) (*model.PointBalance, error) {
	if amount < 0 {
		return nil, apperr.Validationf("debit amount must be >= 0, got %d", amount)
	}
	now := formatTime(time.Now())

	b := model.PointBalance{AccountID: accountID}
	err := s.db.QueryRowContext(ctx,
		`UPDATE user_points SET balance = balance - ?, updated_at = ?
		 WHERE account_id = ? AND balance >= ?
		 RETURNING balance, lifetime_earned, rank`,
		amount, now, accountID, amount,
	).Scan(&b.Balance, &b.LifetimeEarned, &b.Rank)
	if err == sql.ErrNoRows {
		if amount == 0 {
			// No row yet: a zero debit is trivially satisfied.
			return s.Balance(ctx, accountID)
		}
		cur, berr := s.Balance(ctx, accountID)
		if berr != nil {
			return nil, berr
		}
		return nil, &apperr.InsufficientBalanceError{Required: amount, Available: cur.Balance}
	}
	if err != nil {
		return nil, fmt.Errorf("debit points: %w", err)
	}

	if err := s.addEntry(ctx, accountID, -amount, reason, reference, now); err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *PointsStore) addEntry(ctx context.Context, accountID int64, delta int, reason, reference, at string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO point_entries (account_id, delta, reason, reference, created_at) VALUES (?, ?, ?, ?, ?)`,
		accountID, delta, reason, reference, at,
	)
	if err != nil {
		return fmt.Errorf("insert point entry: %w", err)
	}
	return nil
}

// History returns the account's point entries, newest first.
func (s *PointsStore) History(ctx context.Context, accountID int64, limit int) ([]model.PointEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, account_id, delta, reason, reference, created_at
		 FROM point_entries WHERE account_id = ? ORDER BY id DESC LIMIT ?`,
		accountID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list point entries: %w", err)
	}
	defer rows.Close()

	var entries []model.PointEntry
	for rows.Next() {
		var e model.PointEntry
		var createdAt string
		if err := rows.Scan(&e.ID, &e.AccountID, &e.Delta, &e.Reason, &e.Reference, &createdAt); err != nil {
			return nil, fmt.Errorf("scan point entry: %w", err)
		}
		if e.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
