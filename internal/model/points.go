package model

import "time"

const (
	RankBronze   = "Bronze"
	RankSilver   = "Silver"
	RankGold     = "Gold"
	RankPlatinum = "Platinum"
)

// RankFor returns the rank label for a lifetime points total.
func RankFor(lifetimeEarned int) string {
	switch {
	case lifetimeEarned >= 2000:
		return RankPlatinum
	case lifetimeEarned >= 500:
		return RankGold
	case lifetimeEarned >= 100:
		return RankSilver
	default:
		return RankBronze
	}
}

type PointBalance struct {
	AccountID      int64  `json:"user_id"`
	Balance        int    `json:"points"`
	LifetimeEarned int    `json:"lifetime_earned"`
	Rank           string `json:"rank"`
}

// PointEntry is one audited change to a balance.
type PointEntry struct {
	ID        int64     `json:"id"`
	AccountID int64     `json:"user_id"`
	Delta     int       `json:"delta"`
	Reason    string    `json:"reason"`
	Reference string    `json:"reference"`
	CreatedAt time.Time `json:"created_at"`
}

// Point entry reasons.
const (
	PointReasonDonationGiven    = "donation_given"
	PointReasonDonationReceived = "donation_received"
	PointReasonRewardClaim      = "reward_claim"
	PointReasonManual           = "manual"
)
