// Package reward runs the reward shop: spending points on catalog rewards
// and redeeming what was claimed.
package reward

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukerupert/foodbridge/internal/apperr"
	"github.com/dukerupert/foodbridge/internal/model"
	"github.com/dukerupert/foodbridge/internal/store"
)

// Notifier delivers user-facing events.
type Notifier interface {
	Emit(ctx context.Context, accountID int64, title, message, category string)
}

type Service struct {
	db       *sql.DB
	accounts *store.AccountStore
	points   *store.PointsStore
	rewards  *store.RewardStore
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
}

func NewService(db *sql.DB, notifier Notifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		db:       db,
		accounts: store.NewAccountStore(db),
		points:   store.NewPointsStore(db),
		rewards:  store.NewRewardStore(db),
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

type ClaimResult struct {
	Claim   *model.RewardClaim  `json:"claim"`
	Reward  *model.Reward       `json:"reward"`
	Balance *model.PointBalance `json:"points"`
}

// Claim spends an account's points on a reward. Each reward can be claimed
// once per account.
func (s *Service) Claim(ctx context.Context, accountID, rewardID int64) (*ClaimResult, error) {
	now := s.now().UTC()
	var result ClaimResult

	err := store.RunInTx(ctx, s.db, func(tx *sql.Tx) error {
		rewards := s.rewards.WithTx(tx)

		r, err := rewards.GetByID(ctx, rewardID)
		if err != nil {
			return err
		}
		if r == nil || !r.Active {
			return apperr.NotFoundf("reward %d not found", rewardID)
		}

		ok, err := s.accounts.WithTx(tx).Exists(ctx, accountID)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.Validationf("account %d is not a known account", accountID)
		}

		claimed, err := rewards.ClaimExists(ctx, accountID, rewardID)
		if err != nil {
			return err
		}
		if claimed {
			return apperr.Conflictf("reward %q already claimed", r.Name)
		}

		bal, err := s.points.WithTx(tx).Debit(ctx, accountID, r.PointsRequired,
			model.PointReasonRewardClaim, fmt.Sprintf("reward:%d", rewardID))
		if err != nil {
			return err
		}

		claim, err := rewards.CreateClaim(ctx, accountID, rewardID, now)
		if err != nil {
			return err
		}
		result = ClaimResult{Claim: claim, Reward: r, Balance: bal}
		return nil
	})
	if err != nil {
		return nil, apperr.Infrastructure("claim reward", err)
	}

	s.logger.Info("reward claimed", "account_id", accountID, "reward_id", rewardID, "balance", result.Balance.Balance)
	if s.notifier != nil {
		s.notifier.Emit(ctx, accountID, "Reward claimed",
			fmt.Sprintf("You claimed %s for %d points.", result.Reward.Name, result.Reward.PointsRequired),
			model.NotifRewardEarned)
	}
	return &result, nil
}

// Use marks a claimed reward as redeemed. A claim can be used once.
func (s *Service) Use(ctx context.Context, claimID int64) (*model.RewardClaim, error) {
	ok, err := s.rewards.MarkClaimUsed(ctx, claimID, s.now().UTC())
	if err != nil {
		return nil, apperr.Infrastructure("use reward", err)
	}
	if !ok {
		return nil, apperr.Conflictf("reward claim %d not found or already used", claimID)
	}

	claim, err := s.rewards.GetClaim(ctx, claimID)
	if err != nil {
		return nil, apperr.Infrastructure("use reward", err)
	}
	s.logger.Info("reward used", "claim_id", claimID, "account_id", claim.AccountID)
	return claim, nil
}

func (s *Service) ListClaims(ctx context.Context, accountID int64) ([]model.ClaimedReward, error) {
	claims, err := s.rewards.ListClaimsByAccount(ctx, accountID)
	if err != nil {
		return nil, apperr.Infrastructure("list reward claims", err)
	}
	if claims == nil {
		claims = []model.ClaimedReward{}
	}
	return claims, nil
}
