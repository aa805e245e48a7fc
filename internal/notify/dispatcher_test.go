package notify

import (
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/foodbridge/internal/database"
	"github.com/dukerupert/foodbridge/internal/model"
	"github.com/dukerupert/foodbridge/internal/push"
	"github.com/dukerupert/foodbridge/internal/store"
	"github.com/dukerupert/foodbridge/internal/websocket"
)

type fakeHub struct {
	mu   sync.Mutex
	msgs map[int64][]websocket.Message
}

func (h *fakeHub) SendTo(accountID int64, msg websocket.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.msgs == nil {
		h.msgs = make(map[int64][]websocket.Message)
	}
	h.msgs[accountID] = append(h.msgs[accountID], msg)
}

type fakeSender struct {
	mu      sync.Mutex
	sent    []string
	expired map[string]bool
}

func (f *fakeSender) Send(_ context.Context, sub *model.PushSubscription, p push.Payload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sub.Endpoint)
	if f.expired[sub.Endpoint] {
		return push.ErrExpired
	}
	return nil
}

func TestEmitStoresBroadcastsAndPushes(t *testing.T) {
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	ctx := context.Background()

	acct, err := store.NewAccountStore(db).Create(ctx, "n@example.com", "N")
	require.NoError(t, err)

	subs := store.NewPushStore(db)
	_, err = subs.CreateSubscription(ctx, acct.ID, "https://push.example.com/live", "k", "a", "phone")
	require.NoError(t, err)
	_, err = subs.CreateSubscription(ctx, acct.ID, "https://push.example.com/gone", "k", "a", "old laptop")
	require.NoError(t, err)

	hub := &fakeHub{}

	sender := &fakeSender{expired: map[string]bool{"https://push.example.com/gone": true}}
	notifications := store.NewNotificationStore(db)
	d := NewDispatcher(notifications, subs, hub, sender, slog.Default())

	d.Emit(ctx, acct.ID, "Donation accepted", "Your rice was accepted", model.NotifDonationAccepted)
	d.Wait()

	list, err := notifications.ListByAccount(ctx, acct.ID, false)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, model.NotifDonationAccepted, list[0].Category)

	require.Len(t, hub.msgs[acct.ID], 1)
	msg := hub.msgs[acct.ID][0]
	assert.Equal(t, "notification_created", msg.Type)
	assert.Equal(t, list[0].ID, msg.ID)
	assert.Equal(t, model.NotifDonationAccepted, msg.Extra["notification_type"])

	assert.ElementsMatch(t, []string{"https://push.example.com/live", "https://push.example.com/gone"}, sender.sent)
	remaining, err := subs.ListByAccount(ctx, acct.ID)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "https://push.example.com/live", remaining[0].Endpoint)
}

func TestEmitSwallowsStoreErrors(t *testing.T) {
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	d := NewDispatcher(store.NewNotificationStore(db), nil, nil, nil, slog.Default())
	// Unknown account violates the foreign key; Emit must not panic or block.
	d.Emit(context.Background(), 9999, "t", "m", model.NotifRewardEarned)
	d.Wait()
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []string
}

func (m *fakeMailer) SendNotification(_ context.Context, to, title, _, tag string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, to+"|"+title+"|"+tag)
	return nil
}

func TestEmitEmailsSelectedCategories(t *testing.T) {
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	ctx := context.Background()

	accounts := store.NewAccountStore(db)
	acct, err := accounts.Create(ctx, "mail@example.com", "M")
	require.NoError(t, err)

	mailer := &fakeMailer{}
	d := NewDispatcher(store.NewNotificationStore(db), nil, nil, nil, slog.Default()).
		WithEmail(mailer, accounts, []string{model.NotifDonationExpired})

	d.Emit(ctx, acct.ID, "Donation expired", "Nobody picked it up", model.NotifDonationExpired)
	d.Emit(ctx, acct.ID, "Reward claimed", "Enjoy", model.NotifRewardEarned)
	d.Wait()

	assert.Equal(t, []string{"mail@example.com|Donation expired|donation_expired"}, mailer.sent)
}
