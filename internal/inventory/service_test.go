package inventory

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/foodbridge/internal/apperr"
	"github.com/dukerupert/foodbridge/internal/database"
	"github.com/dukerupert/foodbridge/internal/model"
	"github.com/dukerupert/foodbridge/internal/store"
)

func newService(t *testing.T) (*Service, int64) {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	accounts := store.NewAccountStore(db)
	acct, err := accounts.Create(context.Background(), "inv@example.com", "Inv")
	require.NoError(t, err)
	return NewService(accounts, store.NewProductStore(db), slog.Default()), acct.ID
}

func TestAddCategorizesAndDefaults(t *testing.T) {
	svc, owner := newService(t)
	ctx := context.Background()
	expiry := time.Date(2030, 3, 1, 0, 0, 0, 0, time.UTC)

	p, err := svc.Add(ctx, AddRequest{OwnerID: owner, Name: " Greek Yogurt ", ExpiryDate: expiry})
	require.NoError(t, err)
	assert.Equal(t, "Greek Yogurt", p.Name)
	assert.Equal(t, "Dairy", p.Category)
	assert.Equal(t, 1, p.Count)
	assert.Equal(t, expiry, p.ExpiryDate)

	p, err = svc.Add(ctx, AddRequest{OwnerID: owner, Name: "Yogurt", Category: "Snacks", Count: 4, ExpiryDate: expiry})
	require.NoError(t, err)
	assert.Equal(t, "Snacks", p.Category, "explicit category wins")

	list, err := svc.List(ctx, owner)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestAddValidation(t *testing.T) {
	svc, owner := newService(t)
	ctx := context.Background()
	expiry := time.Now().Add(time.Hour)

	_, err := svc.Add(ctx, AddRequest{OwnerID: owner, Name: "", ExpiryDate: expiry})
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = svc.Add(ctx, AddRequest{OwnerID: owner, Name: "Milk", Count: -1, ExpiryDate: expiry})
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = svc.Add(ctx, AddRequest{OwnerID: owner, Name: "Milk"})
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = svc.Add(ctx, AddRequest{OwnerID: 9999, Name: "Milk", ExpiryDate: expiry})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestUpdateAndDelete(t *testing.T) {
	svc, owner := newService(t)
	ctx := context.Background()
	p, err := svc.Add(ctx, AddRequest{OwnerID: owner, Name: "Rice", ExpiryDate: time.Now().Add(time.Hour)})
	require.NoError(t, err)

	count := 3
	updated, err := svc.Update(ctx, p.ID, model.ProductPatch{Count: &count})
	require.NoError(t, err)
	assert.Equal(t, 3, updated.Count)

	_, err = svc.Update(ctx, p.ID, model.ProductPatch{})
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = svc.Update(ctx, 9999, model.ProductPatch{Count: &count})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	require.NoError(t, svc.Delete(ctx, p.ID))
	assert.ErrorIs(t, svc.Delete(ctx, p.ID), apperr.ErrNotFound)
}
