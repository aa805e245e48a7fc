package store

import (
	"context"
	"testing"
)

func TestCreateSubscription(t *testing.T) {
	db := setupTestDB(t)
	ps := NewPushStore(db)
	ctx := context.Background()
	uid := createTestAccount(t, db, "push@example.com")

	sub, err := ps.CreateSubscription(ctx, uid, "https://push.example.com/sub1", "p256dh_key1", "auth_key1", "Chrome Desktop")
	if err != nil {
		t.Fatalf("create subscription: %v", err)
	}
	if sub.ID == 0 {
		t.Error("expected non-zero ID")
	}
	if sub.DeviceName != "Chrome Desktop" {
		t.Errorf("device_name = %q, want %q", sub.DeviceName, "Chrome Desktop")
	}
}

func TestCreateSubscriptionUpsert(t *testing.T) {
	db := setupTestDB(t)
	ps := NewPushStore(db)
	ctx := context.Background()
	uid := createTestAccount(t, db, "push@example.com")

	sub1, _ := ps.CreateSubscription(ctx, uid, "https://push.example.com/sub1", "key1", "auth1", "Device A")
	sub2, err := ps.CreateSubscription(ctx, uid, "https://push.example.com/sub1", "key2", "auth2", "Device B")
	if err != nil {
		t.Fatalf("upsert subscription: %v", err)
	}
	if sub2.ID != sub1.ID {
		t.Errorf("expected same ID on upsert, got %d != %d", sub2.ID, sub1.ID)
	}
	if sub2.P256dhKey != "key2" {
		t.Errorf("p256dh = %q, want %q", sub2.P256dhKey, "key2")
	}
}

func TestDeleteSubscriptions(t *testing.T) {
	db := setupTestDB(t)
	ps := NewPushStore(db)
	ctx := context.Background()
	uid := createTestAccount(t, db, "push@example.com")

	a, _ := ps.CreateSubscription(ctx, uid, "https://push.example.com/a", "k", "a", "")
	ps.CreateSubscription(ctx, uid, "https://push.example.com/b", "k", "a", "")

	if err := ps.DeleteSubscription(ctx, a.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := ps.DeleteByEndpoint(ctx, "https://push.example.com/b"); err != nil {
		t.Fatalf("delete by endpoint: %v", err)
	}
	subs, err := ps.ListByAccount(ctx, uid)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(subs) != 0 {
		t.Errorf("subscriptions = %d, want 0", len(subs))
	}
}
