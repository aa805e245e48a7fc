package model

import (
	"fmt"
	"time"
)

// DonationStatus is the lifecycle state of a donation.
type DonationStatus string

const (
	DonationProposed  DonationStatus = "proposed"
	DonationAccepted  DonationStatus = "accepted"
	DonationCompleted DonationStatus = "completed"
)

func ParseDonationStatus(s string) (DonationStatus, error) {
	switch DonationStatus(s) {
	case DonationProposed, DonationAccepted, DonationCompleted:
		return DonationStatus(s), nil
	}
	return "", fmt.Errorf("unknown donation status %q", s)
}

type Donation struct {
	ID            int64          `json:"donation_id"`
	DonorID       int64          `json:"donor_user_id"`
	ReceiverID    *int64         `json:"receiver_user_id"`
	FoodItems     []string       `json:"type_of_food"`
	ConsumedItems []string       `json:"consumed_items"`
	Latitude      *float64       `json:"latitude"`
	Longitude     *float64       `json:"longitude"`
	Status        DonationStatus `json:"status"`
	CreatedAt     time.Time      `json:"created_at"`
	ExpiresAt     time.Time      `json:"expires_at"`
	AcceptedAt    *time.Time     `json:"accepted_at,omitempty"`
	CompletedAt   *time.Time     `json:"completed_at,omitempty"`
}

// Expired reports whether a proposed donation has passed its expiry. Only
// proposed donations expire; accepted ones wait for pickup.
func (d *Donation) Expired(now time.Time) bool {
	return d.Status == DonationProposed && !now.Before(d.ExpiresAt)
}

// HasLocation reports whether both coordinates are set.
func (d *Donation) HasLocation() bool {
	return d.Latitude != nil && d.Longitude != nil
}

// NearbyDonation is a discovery result with its distance from the query point.
type NearbyDonation struct {
	Donation
	DistanceKm float64 `json:"distance_km"`
}

// DonationPatch holds optional donation field updates. Status changes are
// routed through the lifecycle rather than written directly.
type DonationPatch struct {
	FoodItems  *[]string       `json:"type_of_food"`
	Latitude   *float64        `json:"latitude"`
	Longitude  *float64        `json:"longitude"`
	Status     *DonationStatus `json:"status"`
	ReceiverID *int64          `json:"receiver_user_id"`
}

func (p DonationPatch) Empty() bool {
	return p.FoodItems == nil && p.Latitude == nil && p.Longitude == nil && p.Status == nil && p.ReceiverID == nil
}

// HasFieldEdits reports whether the patch touches stored fields other than
// the lifecycle ones.
func (p DonationPatch) HasFieldEdits() bool {
	return p.FoodItems != nil || p.Latitude != nil || p.Longitude != nil
}

// DonationFilter narrows List results.
type DonationFilter struct {
	Status     *DonationStatus
	DonorID    *int64
	ActiveOnly bool
}
