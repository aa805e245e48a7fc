package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/foodbridge/internal/apperr"
	"github.com/dukerupert/foodbridge/internal/model"
)

type AccountStore struct {
	db DBTX
}

func NewAccountStore(db DBTX) *AccountStore {
	return &AccountStore{db: db}
}

func (s *AccountStore) WithTx(tx *sql.Tx) *AccountStore {
	return &AccountStore{db: tx}
}

func scanAccount(sc scanner) (*model.Account, error) {
	var a model.Account
	var createdAt string
	if err := sc.Scan(&a.ID, &a.Email, &a.Name, &createdAt); err != nil {
		return nil, err
	}
	t, err := parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	a.CreatedAt = t
	return &a, nil
}

const accountCols = `id, email, name, created_at`

func (s *AccountStore) Create(ctx context.Context, email, name string) (*model.Account, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts (email, name, created_at) VALUES (?, ?, ?)`,
		email, name, formatTime(time.Now()),
	)
	if isUniqueViolation(err) {
		return nil, apperr.Conflictf("email %s is already registered", email)
	}
	if err != nil {
		return nil, fmt.Errorf("insert account: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *AccountStore) GetByID(ctx context.Context, id int64) (*model.Account, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+accountCols+` FROM accounts WHERE id = ?`, id)
	a, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return a, nil
}

func (s *AccountStore) List(ctx context.Context) ([]model.Account, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+accountCols+` FROM accounts ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []model.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, *a)
	}
	return accounts, rows.Err()
}

// Exists reports whether an account with the given id is registered.
func (s *AccountStore) Exists(ctx context.Context, id int64) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM accounts WHERE id = ?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check account: %w", err)
	}
	return true, nil
}
