package model

import (
	"fmt"
	"time"
)

type RewardType string

const (
	RewardVoucher  RewardType = "voucher"
	RewardDiscount RewardType = "discount"
	RewardFreeItem RewardType = "free_item"
	RewardBadge    RewardType = "badge"
)

func ParseRewardType(s string) (RewardType, error) {
	switch RewardType(s) {
	case RewardVoucher, RewardDiscount, RewardFreeItem, RewardBadge:
		return RewardType(s), nil
	}
	return "", fmt.Errorf("unknown reward type %q", s)
}

type Reward struct {
	ID             int64      `json:"reward_id"`
	Name           string     `json:"name"`
	Description    string     `json:"description"`
	PointsRequired int        `json:"points_required"`
	Type           RewardType `json:"reward_type"`
	Value          string     `json:"value"`
	Active         bool       `json:"is_active"`
	CreatedAt      time.Time  `json:"created_at"`
}

type RewardClaim struct {
	ID        int64      `json:"user_reward_id"`
	AccountID int64      `json:"user_id"`
	RewardID  int64      `json:"reward_id"`
	Used      bool       `json:"is_used"`
	ClaimedAt time.Time  `json:"claimed_at"`
	UsedAt    *time.Time `json:"used_at"`
}

// ClaimedReward joins a claim with its catalog entry.
type ClaimedReward struct {
	RewardClaim
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Type        RewardType `json:"reward_type"`
	Value       string     `json:"value"`
}
