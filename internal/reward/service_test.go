package reward

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/foodbridge/internal/apperr"
	"github.com/dukerupert/foodbridge/internal/database"
	"github.com/dukerupert/foodbridge/internal/model"
	"github.com/dukerupert/foodbridge/internal/store"
)

type countingNotifier struct {
	mu    sync.Mutex
	count int
}

func (n *countingNotifier) Emit(context.Context, int64, string, string, string) {
	n.mu.Lock()
	n.count++
	n.mu.Unlock()
}

type fixture struct {
	svc      *Service
	points   *store.PointsStore
	rewards  *store.RewardStore
	notifier *countingNotifier
	account  int64
	coffee   model.Reward
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	acct, err := store.NewAccountStore(db).Create(ctx, "claim@example.com", "Claimer")
	require.NoError(t, err)

	f := &fixture{
		points:   store.NewPointsStore(db),
		rewards:  store.NewRewardStore(db),
		notifier: &countingNotifier{},
		account:  acct.ID,
	}
	f.svc = NewService(db, f.notifier, nil)

	catalog, err := f.rewards.List(ctx, true, false)
	require.NoError(t, err)
	f.coffee = catalog[0]
	require.Equal(t, 100, f.coffee.PointsRequired)
	return f
}

func TestClaimDebitsPoints(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.points.Credit(ctx, f.account, 150, model.PointReasonManual, "")
	require.NoError(t, err)

	res, err := f.svc.Claim(ctx, f.account, f.coffee.ID)
	require.NoError(t, err)
	assert.Equal(t, 50, res.Balance.Balance)
	assert.Equal(t, f.coffee.ID, res.Claim.RewardID)
	assert.False(t, res.Claim.Used)
	assert.Equal(t, 1, f.notifier.count)

	_, err = f.svc.Claim(ctx, f.account, f.coffee.ID)
	assert.ErrorIs(t, err, apperr.ErrConflict)

	bal, _ := f.points.Balance(ctx, f.account)
	assert.Equal(t, 50, bal.Balance, "a rejected claim leaves points alone")
}

func TestClaimInsufficientBalance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.points.Credit(ctx, f.account, 40, model.PointReasonManual, "")
	require.NoError(t, err)

	_, err = f.svc.Claim(ctx, f.account, f.coffee.ID)
	require.Error(t, err)
	var ib *apperr.InsufficientBalanceError
	require.True(t, errors.As(err, &ib))
	assert.EqualError(t, err, "insufficient points: required 100, have 40")

	claims, err := f.svc.ListClaims(ctx, f.account)
	require.NoError(t, err)
	assert.Empty(t, claims)
	assert.Zero(t, f.notifier.count)
}

func TestClaimFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Claim(ctx, f.account, 9999)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = f.svc.Claim(ctx, 9999, f.coffee.ID)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	retired := f.coffee
	retired.Active = false
	_, err = f.rewards.Update(ctx, retired)
	require.NoError(t, err)
	_, err = f.svc.Claim(ctx, f.account, f.coffee.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestUseClaimOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.points.Credit(ctx, f.account, 100, model.PointReasonManual, "")
	require.NoError(t, err)
	res, err := f.svc.Claim(ctx, f.account, f.coffee.ID)
	require.NoError(t, err)

	used, err := f.svc.Use(ctx, res.Claim.ID)
	require.NoError(t, err)
	assert.True(t, used.Used)
	assert.NotNil(t, used.UsedAt)

	_, err = f.svc.Use(ctx, res.Claim.ID)
	assert.ErrorIs(t, err, apperr.ErrConflict)
	_, err = f.svc.Use(ctx, 9999)
	assert.ErrorIs(t, err, apperr.ErrConflict)

	claims, err := f.svc.ListClaims(ctx, f.account)
	require.NoError(t, err)
	require.Len(t, claims, 1)
	assert.Equal(t, "Free Coffee", claims[0].Name)
	assert.True(t, claims[0].Used)
}

func TestConcurrentClaimsNeverOverdraw(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.points.Credit(ctx, f.account, 100, model.PointReasonManual, "")
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Claim(ctx, f.account, f.coffee.ID)
		}(i)
	}
	wg.Wait()

	var ok int
	for _, err := range errs {
		if err == nil {
			ok++
		}
	}
	assert.Equal(t, 1, ok)
	bal, _ := f.points.Balance(ctx, f.account)
	assert.Equal(t, 0, bal.Balance)
}
