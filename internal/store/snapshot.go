package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/foodbridge/internal/model"
)

// SnapshotStore tracks database snapshots uploaded to object storage.
type SnapshotStore struct {
	db DBTX
}

func NewSnapshotStore(db DBTX) *SnapshotStore {
	return &SnapshotStore{db: db}
}

const snapshotCols = `id, object_key, status, size_bytes, error, created_at, completed_at`

func scanSnapshot(sc scanner) (*model.Snapshot, error) {
	var sn model.Snapshot
	var status, createdAt string
	var completedAt sql.NullString
	if err := sc.Scan(&sn.ID, &sn.ObjectKey, &status, &sn.SizeBytes, &sn.Error, &createdAt, &completedAt); err != nil {
		return nil, err
	}
	sn.Status = model.SnapshotStatus(status)
	var err error
	if sn.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if sn.CompletedAt, err = parseNullTime(completedAt); err != nil {
		return nil, err
	}
	return &sn, nil
}

func (s *SnapshotStore) Create(ctx context.Context, objectKey string) (*model.Snapshot, error) {
	row := s.db.QueryRowContext(ctx,
		`INSERT INTO snapshots (object_key, status, created_at) VALUES (?, ?, ?)
		 RETURNING `+snapshotCols,
		objectKey, model.SnapshotPending, formatTime(time.Now()),
	)
	sn, err := scanSnapshot(row)
	if err != nil {
		return nil, fmt.Errorf("create snapshot: %w", err)
	}
	return sn, nil
}

func (s *SnapshotStore) GetByID(ctx context.Context, id int64) (*model.Snapshot, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+snapshotCols+` FROM snapshots WHERE id = ?`, id)
	sn, err := scanSnapshot(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshot %d: %w", id, err)
	}
	return sn, nil
}

func (s *SnapshotStore) List(ctx context.Context, limit int) ([]model.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+snapshotCols+` FROM snapshots ORDER BY created_at DESC, id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []model.Snapshot
	for rows.Next() {
		sn, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		snaps = append(snaps, *sn)
	}
	return snaps, rows.Err()
}

func (s *SnapshotStore) UpdateStatus(ctx context.Context, id int64, status model.SnapshotStatus, errorMsg string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE snapshots SET status = ?, error = ? WHERE id = ?`,
		status, errorMsg, id,
	)
	if err != nil {
		return fmt.Errorf("update snapshot status: %w", err)
	}
	return nil
}

func (s *SnapshotStore) UpdateCompleted(ctx context.Context, id, sizeBytes int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE snapshots SET status = ?, size_bytes = ?, completed_at = ? WHERE id = ?`,
		model.SnapshotCompleted, sizeBytes, formatTime(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("update snapshot completed: %w", err)
	}
	return nil
}

// DeleteOlderThan deletes snapshot rows created before the given time and
// returns their object keys so the caller can remove the objects.
func (s *SnapshotStore) DeleteOlderThan(ctx context.Context, before time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`DELETE FROM snapshots WHERE created_at < ? RETURNING object_key`, formatTime(before),
	)
	if err != nil {
		return nil, fmt.Errorf("delete old snapshots: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan object key: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}
