// Package notify records user notifications and fans them out to live
// websocket connections and web push subscriptions.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/dukerupert/foodbridge/internal/model"
	"github.com/dukerupert/foodbridge/internal/push"
	"github.com/dukerupert/foodbridge/internal/store"
	"github.com/dukerupert/foodbridge/internal/websocket"
)

// Sender delivers one web push message.
type Sender interface {
	Send(ctx context.Context, sub *model.PushSubscription, payload push.Payload) error
}

// Mailer emails one notification.
type Mailer interface {
	SendNotification(ctx context.Context, toEmail, title, message, tag string) error
}

// AccountLookup resolves the address notification emails go to.
type AccountLookup interface {
	GetByID(ctx context.Context, id int64) (*model.Account, error)
}

// Broadcaster pushes a live event to an account's open connections.
type Broadcaster interface {
	SendTo(accountID int64, msg websocket.Message)
}

const deliveryTimeout = 30 * time.Second

// Dispatcher implements the notification sink used by the donation and
// reward services. Emit never fails its caller; delivery problems are
// logged.
type Dispatcher struct {
	notifications *store.NotificationStore
	subs          *store.PushStore
	hub           Broadcaster
	sender        Sender
	mailer        Mailer
	accounts      AccountLookup
	mailed        map[string]bool
	logger        *slog.Logger
	wg            sync.WaitGroup
}

// NewDispatcher wires the sinks. hub and sender may be nil to disable live
// updates or web push.
func NewDispatcher(notifications *store.NotificationStore, subs *store.PushStore, hub Broadcaster, sender Sender, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		notifications: notifications,
		subs:          subs,
		hub:           hub,
		sender:        sender,
		logger:        logger,
	}
}

// WithEmail also emails notifications whose category is listed. Call it
// before the first Emit.
func (d *Dispatcher) WithEmail(m Mailer, accounts AccountLookup, categories []string) *Dispatcher {
	d.mailer = m
	d.accounts = accounts
	d.mailed = make(map[string]bool, len(categories))
	for _, c := range categories {
		d.mailed[c] = true
	}
	return d
}

func (d *Dispatcher) Emit(ctx context.Context, accountID int64, title, message, category string) {
	n, err := d.notifications.Create(ctx, accountID, title, message, category)
	if err != nil {
		d.logger.Error("store notification", "account_id", accountID, "category", category, "error", err)
		return
	}

	if d.hub != nil {
		d.hub.SendTo(accountID, websocket.NewMessage("notification", "created", n.ID, map[string]any{
			"title":             title,
			"message":           message,
			"notification_type": category,
		}))
	}

	doPush := d.sender != nil && d.subs != nil
	doMail := d.mailer != nil && d.accounts != nil && d.mailed[category]
	if !doPush && !doMail {
		return
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		// The request context may end as soon as the handler returns.
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), deliveryTimeout)
		defer cancel()
		if doPush {
			d.sendPush(ctx, accountID, push.Payload{Title: title, Body: message, Category: category, Tag: category})
		}
		if doMail {
			d.sendEmail(ctx, accountID, title, message, category)
		}
	}()
}

func (d *Dispatcher) sendPush(ctx context.Context, accountID int64, payload push.Payload) {
	subs, err := d.subs.ListByAccount(ctx, accountID)
	if err != nil {
		d.logger.Error("list push subscriptions", "account_id", accountID, "error", err)
		return
	}
	for i := range subs {
		sub := &subs[i]
		err := d.sender.Send(ctx, sub, payload)
		switch {
		case err == nil:
		case errors.Is(err, push.ErrExpired):
			d.logger.Info("removing expired push subscription", "account_id", accountID, "subscription_id", sub.ID)
			if err := d.subs.DeleteByEndpoint(ctx, sub.Endpoint); err != nil {
				d.logger.Error("delete expired push subscription", "error", err)
			}
		default:
			d.logger.Warn("send push", "account_id", accountID, "subscription_id", sub.ID, "error", err)
		}
	}
}

func (d *Dispatcher) sendEmail(ctx context.Context, accountID int64, title, message, category string) {
	acct, err := d.accounts.GetByID(ctx, accountID)
	if err != nil || acct == nil || acct.Email == "" {
		d.logger.Warn("no email address for notification", "account_id", accountID, "error", err)
		return
	}
	if err := d.mailer.SendNotification(ctx, acct.Email, title, message, category); err != nil {
		d.logger.Warn("send notification email", "account_id", accountID, "category", category, "error", err)
	}
}

// Wait blocks until background deliveries finish.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
