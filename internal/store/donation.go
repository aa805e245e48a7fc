package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dukerupert/foodbridge/internal/model"
)

type DonationStore struct {
	db DBTX
}

func NewDonationStore(db DBTX) *DonationStore {
	return &DonationStore{db: db}
}

func (s *DonationStore) WithTx(tx *sql.Tx) *DonationStore {
	return &DonationStore{db: tx}
}

func scanDonation(sc scanner) (*model.Donation, error) {
	var d model.Donation
	var receiverID sql.NullInt64
	var foodItems, consumed, status, createdAt, expiresAt string
	var lat, lon sql.NullFloat64
	var acceptedAt, completedAt sql.NullString

	err := sc.Scan(&d.ID, &d.DonorID, &receiverID, &foodItems, &consumed, &lat, &lon,
		&status, &createdAt, &expiresAt, &acceptedAt, &completedAt)
	if err != nil {
		return nil, err
	}

	if receiverID.Valid {
		d.ReceiverID = &receiverID.Int64
	}
	if lat.Valid {
		d.Latitude = &lat.Float64
	}
	if lon.Valid {
		d.Longitude = &lon.Float64
	}
	d.Status = model.DonationStatus(status)
	if err := json.Unmarshal([]byte(foodItems), &d.FoodItems); err != nil {
		return nil, fmt.Errorf("decode food items: %w", err)
	}
	if err := json.Unmarshal([]byte(consumed), &d.ConsumedItems); err != nil {
		return nil, fmt.Errorf("decode consumed items: %w", err)
	}
	if d.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if d.ExpiresAt, err = parseTime(expiresAt); err != nil {
		return nil, err
	}
	if d.AcceptedAt, err = parseNullTime(acceptedAt); err != nil {
		return nil, err
	}
	if d.CompletedAt, err = parseNullTime(completedAt); err != nil {
		return nil, err
	}
	return &d, nil
}

const donationCols = `id, donor_id, receiver_id, food_items, consumed_items, latitude, longitude,
	status, created_at, expires_at, accepted_at, completed_at`

func encodeItems(items []string) (string, error) {
	if items == nil {
		items = []string{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return "", fmt.Errorf("encode items: %w", err)
	}
	return string(b), nil
}

// Create inserts a proposed donation. consumed lists the item names that
// were actually taken from the donor's inventory.
func (s *DonationStore) Create(ctx context.Context, donorID int64, items, consumed []string, lat, lon *float64, createdAt, expiresAt time.Time) (*model.Donation, error) {
	foodJSON, err := encodeItems(items)
	if err != nil {
		return nil, err
	}
	consumedJSON, err := encodeItems(consumed)
	if err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx,
		`INSERT INTO donations (donor_id, food_items, consumed_items, latitude, longitude, status, created_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 RETURNING `+donationCols,
		donorID, foodJSON, consumedJSON, lat, lon, model.DonationProposed,
		formatTime(createdAt), formatTime(expiresAt),
	)
	d, err := scanDonation(row)
	if err != nil {
		return nil, fmt.Errorf("insert donation: %w", err)
	}
	return d, nil
}

func (s *DonationStore) GetByID(ctx context.Context, id int64) (*model.Donation, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+donationCols+` FROM donations WHERE id = ?`, id)
	d, err := scanDonation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get donation: %w", err)
	}
	return d, nil
}

func (s *DonationStore) query(ctx context.Context, q string, args ...any) ([]model.Donation, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list donations: %w", err)
	}
	defer rows.Close()

	var donations []model.Donation
	for rows.Next() {
		d, err := scanDonation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan donation: %w", err)
		}
		donations = append(donations, *d)
	}
	return donations, rows.Err()
}

// List returns donations matching the filter, newest first. With ActiveOnly
// set, donations whose expiry is not after now are left out whatever their
// status.
func (s *DonationStore) List(ctx context.Context, f model.DonationFilter, now time.Time) ([]model.Donation, error) {
	var where []string
	var args []any
	if f.Status != nil {
		where = append(where, "status = ?")
		args = append(args, *f.Status)
	}
	if f.DonorID != nil {
		where = append(where, "donor_id = ?")
		args = append(args, *f.DonorID)
	}
	if f.ActiveOnly {
		where = append(where, "expires_at > ?")
		args = append(args, formatTime(now))
	}

	q := `SELECT ` + donationCols + ` FROM donations`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY created_at DESC, id DESC`
	return s.query(ctx, q, args...)
}

// ListDiscoverable returns the located, unexpired donations a requester may
// see: proposed donations from other donors, plus accepted donations the
// requester is picking up.
func (s *DonationStore) ListDiscoverable(ctx context.Context, requesterID int64, now time.Time) ([]model.Donation, error) {
	return s.query(ctx,
		`SELECT `+donationCols+` FROM donations
		 WHERE latitude IS NOT NULL AND longitude IS NOT NULL
		   AND expires_at > ?
		   AND ((status = 'proposed' AND donor_id <> ?)
		     OR (status = 'accepted' AND receiver_id = ?))
		 ORDER BY id ASC`,
		formatTime(now), requesterID, requesterID,
	)
}

func (s *DonationStore) ListByStatus(ctx context.Context, status model.DonationStatus) ([]model.Donation, error) {
	return s.query(ctx,
		`SELECT `+donationCols+` FROM donations WHERE status = ? ORDER BY id ASC`, status,
	)
}

func affected(result sql.Result) (bool, error) {
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// MarkAccepted moves a proposed, unexpired donation to accepted. It reports
// false when the donation is missing, expired or no longer proposed.
func (s *DonationStore) MarkAccepted(ctx context.Context, id, receiverID int64, now time.Time) (bool, error) {
	ts := formatTime(now)
	result, err := s.db.ExecContext(ctx,
		`UPDATE donations SET status = 'accepted', receiver_id = ?, accepted_at = ?
		 WHERE id = ? AND status = 'proposed' AND expires_at > ?`,
		receiverID, ts, id, ts,
	)
	if err != nil {
		return false, fmt.Errorf("accept donation: %w", err)
	}
	return affected(result)
}

// MarkCompleted moves an accepted donation to completed.
func (s *DonationStore) MarkCompleted(ctx context.Context, id int64, now time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE donations SET status = 'completed', completed_at = ?
		 WHERE id = ? AND status = 'accepted'`,
		formatTime(now), id,
	)
	if err != nil {
		return false, fmt.Errorf("complete donation: %w", err)
	}
	return affected(result)
}

// DeleteProposed removes a donation only while it is still proposed.
func (s *DonationStore) DeleteProposed(ctx context.Context, id int64) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM donations WHERE id = ? AND status = 'proposed'`, id,
	)
	if err != nil {
		return false, fmt.Errorf("delete donation: %w", err)
	}
	return affected(result)
}

// UpdateFields applies the item list and coordinate edits of patch to a
// proposed, unexpired donation. It returns nil when no row qualified.
func (s *DonationStore) UpdateFields(ctx context.Context, id int64, patch model.DonationPatch, now time.Time) (*model.Donation, error) {
	var foodJSON sql.NullString
	if patch.FoodItems != nil {
		enc, err := encodeItems(*patch.FoodItems)
		if err != nil {
			return nil, err
		}
		foodJSON = sql.NullString{String: enc, Valid: true}
	}

	row := s.db.QueryRowContext(ctx,
		`UPDATE donations SET
			food_items = COALESCE(?, food_items),
			latitude = COALESCE(?, latitude),
			longitude = COALESCE(?, longitude)
		 WHERE id = ? AND status = 'proposed' AND expires_at > ?
		 RETURNING `+donationCols,
		foodJSON, patch.Latitude, patch.Longitude, id, formatTime(now),
	)
	d, err := scanDonation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("update donation: %w", err)
	}
	return d, nil
}

// ListExpiredUnnotified returns proposed donations past their expiry whose
// donor has not been told yet.
func (s *DonationStore) ListExpiredUnnotified(ctx context.Context, now time.Time) ([]model.Donation, error) {
	return s.query(ctx,
		`SELECT `+donationCols+` FROM donations
		 WHERE status = 'proposed' AND expiry_notified = 0 AND expires_at <= ?
		 ORDER BY expires_at ASC, id ASC`,
		formatTime(now),
	)
}

func (s *DonationStore) MarkExpiryNotified(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE donations SET expiry_notified = 1 WHERE id = ?`, id); err != nil {
		return fmt.Errorf("mark donation notified: %w", err)
	}
	return nil
}
