package model

import "time"

// Notification categories.
const (
	NotifProductExpiry     = "product_expiry"
	NotifDonationReceived  = "donation_received"
	NotifDonationAccepted  = "donation_accepted"
	NotifDonationCompleted = "donation_completed"
	NotifDonationExpired   = "donation_expired"
	NotifRewardEarned      = "reward_earned"
)

type Notification struct {
	ID        int64     `json:"notification_id"`
	AccountID int64     `json:"user_id"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Category  string    `json:"notification_type"`
	Read      bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}

type PushSubscription struct {
	ID         int64     `json:"id"`
	AccountID  int64     `json:"user_id"`
	Endpoint   string    `json:"endpoint"`
	P256dhKey  string    `json:"p256dh_key"`
	AuthKey    string    `json:"auth_key"`
	DeviceName string    `json:"device_name"`
	CreatedAt  time.Time `json:"created_at"`
}
