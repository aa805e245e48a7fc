package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/foodbridge/internal/model"
)

type NotificationStore struct {
	db DBTX
}

func NewNotificationStore(db DBTX) *NotificationStore {
	return &NotificationStore{db: db}
}

func scanNotification(sc scanner) (*model.Notification, error) {
	var n model.Notification
	var read int
	var createdAt string
	if err := sc.Scan(&n.ID, &n.AccountID, &n.Title, &n.Message, &n.Category, &read, &createdAt); err != nil {
		return nil, err
	}
	n.Read = read != 0
	t, err := parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	n.CreatedAt = t
	return &n, nil
}

const notificationCols = `id, account_id, title, message, category, is_read, created_at`

func (s *NotificationStore) Create(ctx context.Context, accountID int64, title, message, category string) (*model.Notification, error) {
	row := s.db.QueryRowContext(ctx,
		`INSERT INTO notifications (account_id, title, message, category, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 RETURNING `+notificationCols,
		accountID, title, message, category, formatTime(time.Now()),
	)
	n, err := scanNotification(row)
	if err != nil {
		return nil, fmt.Errorf("insert notification: %w", err)
	}
	return n, nil
}

// ListByAccount returns an account's notifications, newest first.
func (s *NotificationStore) ListByAccount(ctx context.Context, accountID int64, unreadOnly bool) ([]model.Notification, error) {
	q := `SELECT ` + notificationCols + ` FROM notifications WHERE account_id = ?`
	if unreadOnly {
		q += ` AND is_read = 0`
	}
	q += ` ORDER BY id DESC`

	rows, err := s.db.QueryContext(ctx, q, accountID)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var list []model.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		list = append(list, *n)
	}
	return list, rows.Err()
}

// MarkRead reports false if the notification does not exist.
func (s *NotificationStore) MarkRead(ctx context.Context, id int64) (bool, error) {
	result, err := s.db.ExecContext(ctx, `UPDATE notifications SET is_read = 1 WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("mark notification read: %w", err)
	}
	return affected(result)
}

func (s *NotificationStore) GetByID(ctx context.Context, id int64) (*model.Notification, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+notificationCols+` FROM notifications WHERE id = ?`, id)
	n, err := scanNotification(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get notification: %w", err)
	}
	return n, nil
}
