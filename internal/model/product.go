package model

import "time"

// Product is one inventory item owned by an account.
type Product struct {
	ID         int64     `json:"product_id"`
	OwnerID    int64     `json:"user_id"`
	Name       string    `json:"product_name"`
	ExpiryDate time.Time `json:"expiry_date"`
	Count      int       `json:"count"`
	Category   string    `json:"type_product"`
	CreatedAt  time.Time `json:"created_at"`
}

// ProductPatch holds optional product field updates.
type ProductPatch struct {
	Name       *string    `json:"product_name"`
	ExpiryDate *time.Time `json:"expiry_date"`
	Count      *int       `json:"count"`
	Category   *string    `json:"type_product"`
}

func (p ProductPatch) Empty() bool {
	return p.Name == nil && p.ExpiryDate == nil && p.Count == nil && p.Category == nil
}
