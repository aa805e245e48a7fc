package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/foodbridge/internal/apperr"
	"github.com/dukerupert/foodbridge/internal/model"
)

type RewardStore struct {
	db DBTX
}

func NewRewardStore(db DBTX) *RewardStore {
	return &RewardStore{db: db}
}

func (s *RewardStore) WithTx(tx *sql.Tx) *RewardStore {
	return &RewardStore{db: tx}
}

// --- Catalog methods ---

func scanReward(sc scanner) (*model.Reward, error) {
	var r model.Reward
	var active int
	var rewardType, createdAt string

	err := sc.Scan(&r.ID, &r.Name, &r.Description, &r.PointsRequired, &rewardType, &r.Value, &active, &createdAt)
	if err != nil {
		return nil, err
	}

	r.Type = model.RewardType(rewardType)
	r.Active = active != 0
	if r.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &r, nil
}

const rewardCols = `id, name, description, points_required, reward_type, value, active, created_at`

func (s *RewardStore) Create(ctx context.Context, r model.Reward) (*model.Reward, error) {
	row := s.db.QueryRowContext(ctx,
		`INSERT INTO rewards (name, description, points_required, reward_type, value, active, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 RETURNING `+rewardCols,
		r.Name, r.Description, r.PointsRequired, r.Type, r.Value, boolToInt(r.Active), formatTime(time.Now()),
	)
	created, err := scanReward(row)
	if isUniqueViolation(err) {
		return nil, apperr.Conflictf("reward %q already exists", r.Name)
	}
	if err != nil {
		return nil, fmt.Errorf("insert reward: %w", err)
	}
	return created, nil
}

func (s *RewardStore) GetByID(ctx context.Context, id int64) (*model.Reward, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+rewardCols+` FROM rewards WHERE id = ?`, id)
	r, err := scanReward(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get reward: %w", err)
	}
	return r, nil
}

// List returns the catalog ordered by cost. activeOnly drops retired
// rewards and hideBadges drops badge-type rewards, which are granted rather
// than shown in the shop.
func (s *RewardStore) List(ctx context.Context, activeOnly, hideBadges bool) ([]model.Reward, error) {
	q := `SELECT ` + rewardCols + ` FROM rewards WHERE 1 = 1`
	if activeOnly {
		q += ` AND active = 1`
	}
	if hideBadges {
		q += ` AND reward_type <> 'badge'`
	}
	q += ` ORDER BY points_required ASC, name ASC`

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list rewards: %w", err)
	}
	defer rows.Close()

	var rewards []model.Reward
	for rows.Next() {
		r, err := scanReward(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reward: %w", err)
		}
		rewards = append(rewards, *r)
	}
	return rewards, rows.Err()
}

// Update replaces the editable catalog fields. It returns nil if the reward
// does not exist.
func (s *RewardStore) Update(ctx context.Context, r model.Reward) (*model.Reward, error) {
	row := s.db.QueryRowContext(ctx,
		`UPDATE rewards SET name = ?, description = ?, points_required = ?, reward_type = ?, value = ?, active = ?
		 WHERE id = ?
		 RETURNING `+rewardCols,
		r.Name, r.Description, r.PointsRequired, r.Type, r.Value, boolToInt(r.Active), r.ID,
	)
	updated, err := scanReward(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if isUniqueViolation(err) {
		return nil, apperr.Conflictf("reward %q already exists", r.Name)
	}
	if err != nil {
		return nil, fmt.Errorf("update reward: %w", err)
	}
	return updated, nil
}

func (s *RewardStore) Delete(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM rewards WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete reward: %w", err)
	}
	return nil
}

// --- Claim methods ---

func scanClaim(sc scanner) (*model.RewardClaim, error) {
	var c model.RewardClaim
	var used int
	var claimedAt string
	var usedAt sql.NullString

	err := sc.Scan(&c.ID, &c.AccountID, &c.RewardID, &used, &claimedAt, &usedAt)
	if err != nil {
		return nil, err
	}

	c.Used = used != 0
	if c.ClaimedAt, err = parseTime(claimedAt); err != nil {
		return nil, err
	}
	if c.UsedAt, err = parseNullTime(usedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

const claimCols = `id, account_id, reward_id, is_used, claimed_at, used_at`

// CreateClaim records that an account claimed a reward. A second claim of the
// same reward by the same account is a conflict.
func (s *RewardStore) CreateClaim(ctx context.Context, accountID, rewardID int64, at time.Time) (*model.RewardClaim, error) {
	row := s.db.QueryRowContext(ctx,
		`INSERT INTO reward_claims (account_id, reward_id, claimed_at) VALUES (?, ?, ?)
		 RETURNING `+claimCols,
		accountID, rewardID, formatTime(at),
	)
	c, err := scanClaim(row)
	if isUniqueViolation(err) {
		return nil, apperr.Conflictf("reward %d already claimed", rewardID)
	}
	if err != nil {
		return nil, fmt.Errorf("insert reward claim: %w", err)
	}
	return c, nil
}

func (s *RewardStore) ClaimExists(ctx context.Context, accountID, rewardID int64) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM reward_claims WHERE account_id = ? AND reward_id = ?`, accountID, rewardID,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check reward claim: %w", err)
	}
	return true, nil
}

func (s *RewardStore) GetClaim(ctx context.Context, id int64) (*model.RewardClaim, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+claimCols+` FROM reward_claims WHERE id = ?`, id)
	c, err := scanClaim(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get reward claim: %w", err)
	}
	return c, nil
}

// MarkClaimUsed flips an unused claim to used. It reports false when the
// claim is missing or already used.
func (s *RewardStore) MarkClaimUsed(ctx context.Context, id int64, at time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE reward_claims SET is_used = 1, used_at = ? WHERE id = ? AND is_used = 0`,
		formatTime(at), id,
	)
	if err != nil {
		return false, fmt.Errorf("use reward claim: %w", err)
	}
	return affected(result)
}

// ListClaimsByAccount returns an account's claims joined with their catalog
// entries, newest first.
func (s *RewardStore) ListClaimsByAccount(ctx context.Context, accountID int64) ([]model.ClaimedReward, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT c.id, c.account_id, c.reward_id, c.is_used, c.claimed_at, c.used_at,
		        r.name, r.description, r.reward_type, r.value
		 FROM reward_claims c
		 JOIN rewards r ON r.id = c.reward_id
		 WHERE c.account_id = ?
		 ORDER BY c.claimed_at DESC, c.id DESC`,
		accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("list reward claims: %w", err)
	}
	defer rows.Close()

	var claims []model.ClaimedReward
	for rows.Next() {
		var cr model.ClaimedReward
		var used int
		var claimedAt, rewardType string
		var usedAt sql.NullString
		if err := rows.Scan(&cr.ID, &cr.AccountID, &cr.RewardID, &used, &claimedAt, &usedAt,
			&cr.Name, &cr.Description, &rewardType, &cr.Value); err != nil {
			return nil, fmt.Errorf("scan reward claim: %w", err)
		}
		cr.Used = used != 0
		cr.Type = model.RewardType(rewardType)
		if cr.ClaimedAt, err = parseTime(claimedAt); err != nil {
			return nil, err
		}
		if cr.UsedAt, err = parseNullTime(usedAt); err != nil {
			return nil, err
		}
		claims = append(claims, cr)
	}
	return claims, rows.Err()
}
