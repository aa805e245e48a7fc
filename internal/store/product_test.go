package store

import (
	"context"
	"testing"
	"time"

	"github.com/dukerupert/foodbridge/internal/model"
)

func parseMust(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := parseTime(s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return ts
}

func TestProductCRUD(t *testing.T) {
	db := setupTestDB(t)
	ps := NewProductStore(db)
	ctx := context.Background()
	owner := createTestAccount(t, db, "owner@example.com")

	p, err := ps.Insert(ctx, owner, "Milk", 2, "Dairy", parseMust(t, "2030-05-01T00:00:00.000Z"))
	if err != nil {
		t.Fatalf("insert product: %v", err)
	}
	if p.Name != "Milk" || p.Count != 2 || p.Category != "Dairy" {
		t.Errorf("unexpected product %+v", p)
	}

	name := "Oat Milk"
	count := 5
	updated, err := ps.Update(ctx, p.ID, model.ProductPatch{Name: &name, Count: &count})
	if err != nil {
		t.Fatalf("update product: %v", err)
	}
	if updated.Name != "Oat Milk" || updated.Count != 5 {
		t.Errorf("updated = %+v", updated)
	}
	if updated.Category != "Dairy" {
		t.Errorf("category = %q, want untouched Dairy", updated.Category)
	}

	missing, err := ps.Update(ctx, 9999, model.ProductPatch{Name: &name})
	if err != nil {
		t.Fatalf("update missing: %v", err)
	}
	if missing != nil {
		t.Error("expected nil updating missing product")
	}

	if err := ps.Delete(ctx, p.ID); err != nil {
		t.Fatalf("delete product: %v", err)
	}
	got, err := ps.GetByID(ctx, p.ID)
	if err != nil {
		t.Fatalf("get after delete: %v", err)
	}
	if got != nil {
		t.Error("expected product to be gone")
	}
}

func TestRemoveOneByName(t *testing.T) {
	db := setupTestDB(t)
	ps := NewProductStore(db)
	ctx := context.Background()
	owner := createTestAccount(t, db, "owner@example.com")
	other := createTestAccount(t, db, "other@example.com")

	late, _ := ps.Insert(ctx, owner, "Rice", 3, "Grains", parseMust(t, "2030-06-01T00:00:00.000Z"))
	early, _ := ps.Insert(ctx, owner, "rice", 1, "Grains", parseMust(t, "2030-02-01T00:00:00.000Z"))
	ps.Insert(ctx, other, "Rice", 1, "Grains", parseMust(t, "2029-01-01T00:00:00.000Z"))

	removed, err := ps.RemoveOneByName(ctx, owner, "RICE")
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if removed == nil || removed.ID != early.ID {
		t.Fatalf("removed = %+v, want soonest-expiring id %d", removed, early.ID)
	}

	removed, err = ps.RemoveOneByName(ctx, owner, "Rice")
	if err != nil {
		t.Fatalf("remove second: %v", err)
	}
	if removed == nil || removed.ID != late.ID || removed.Count != 3 {
		t.Fatalf("removed = %+v, want whole row id %d", removed, late.ID)
	}

	removed, err = ps.RemoveOneByName(ctx, owner, "Rice")
	if err != nil {
		t.Fatalf("remove third: %v", err)
	}
	if removed != nil {
		t.Errorf("expected nil once owner has no rice, got %+v", removed)
	}

	n, _ := ps.CountByOwner(ctx, other)
	if n != 1 {
		t.Errorf("other owner's products = %d, want 1", n)
	}
}

func TestListExpiringUnwarned(t *testing.T) {
	db := setupTestDB(t)
	ps := NewProductStore(db)
	ctx := context.Background()
	owner := createTestAccount(t, db, "owner@example.com")

	soon, _ := ps.Insert(ctx, owner, "Yogurt", 1, "Dairy", parseMust(t, "2030-01-02T00:00:00.000Z"))
	ps.Insert(ctx, owner, "Flour", 1, "Pantry", parseMust(t, "2031-01-01T00:00:00.000Z"))

	cutoff := parseMust(t, "2030-01-03T00:00:00.000Z")
	list, err := ps.ListExpiringUnwarned(ctx, cutoff)
	if err != nil {
		t.Fatalf("list expiring: %v", err)
	}
	if len(list) != 1 || list[0].ID != soon.ID {
		t.Fatalf("expiring = %+v, want only yogurt", list)
	}

	if err := ps.MarkExpiryWarned(ctx, soon.ID); err != nil {
		t.Fatalf("mark warned: %v", err)
	}
	list, _ = ps.ListExpiringUnwarned(ctx, cutoff)
	if len(list) != 0 {
		t.Errorf("expected no unwarned products, got %d", len(list))
	}

	// Moving the expiry date resets the warning.
	later := parseMust(t, "2030-01-02T12:00:00.000Z")
	if _, err := ps.Update(ctx, soon.ID, model.ProductPatch{ExpiryDate: &later}); err != nil {
		t.Fatalf("update expiry: %v", err)
	}
	list, _ = ps.ListExpiringUnwarned(ctx, cutoff)
	if len(list) != 1 {
		t.Errorf("expected warning to reset after expiry change, got %d", len(list))
	}
}
