// Package expiry periodically tells donors about proposals that expired
// unclaimed and owners about inventory close to its expiry date.
//
// Expiry itself is evaluated lazily by every read path; this loop only
// sends notices and never changes donation state.
package expiry

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/dukerupert/foodbridge/internal/model"
	"github.com/dukerupert/foodbridge/internal/store"
)

// Notifier delivers user-facing events.
type Notifier interface {
	Emit(ctx context.Context, accountID int64, title, message, category string)
}

type Scheduler struct {
	mu            sync.RWMutex
	donations     *store.DonationStore
	products      *store.ProductStore
	notifier      Notifier
	interval      time.Duration
	warningWindow time.Duration
	logger        *slog.Logger
	now           func() time.Time
	cancel        context.CancelFunc
	done          chan struct{}
}

func NewScheduler(donations *store.DonationStore, products *store.ProductStore, notifier Notifier, interval, warningWindow time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		donations:     donations,
		products:      products,
		notifier:      notifier,
		interval:      interval,
		warningWindow: warningWindow,
		logger:        logger,
		now:           time.Now,
	}
}

// Start begins the scheduler loop.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.mu.Unlock()

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.tick(ctx)
			}
		}
	}()
}

// Stop cancels the loop and waits for the current tick to finish.
func (s *Scheduler) Stop() {
	s.mu.RLock()
	cancel := s.cancel
	done := s.done
	s.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	now := s.now().UTC()
	s.notifyExpiredDonations(ctx, now)
	s.warnExpiringProducts(ctx, now)
}

func (s *Scheduler) notifyExpiredDonations(ctx context.Context, now time.Time) {
	expired, err := s.donations.ListExpiredUnnotified(ctx, now)
	if err != nil {
		s.logger.Error("list expired donations", "error", err)
		return
	}

	for _, d := range expired {
		s.notifier.Emit(ctx, d.DonorID, "Donation expired",
			fmt.Sprintf("Nobody claimed your donation of %s. Cancel it to return the items to your inventory.", strings.Join(d.FoodItems, ", ")),
			model.NotifDonationExpired)
		if err := s.donations.MarkExpiryNotified(ctx, d.ID); err != nil {
			s.logger.Error("mark donation notified", "donation_id", d.ID, "error", err)
		}
	}
	if len(expired) > 0 {
		s.logger.Info("expired donation notices sent", "count", len(expired))
	}
}

func (s *Scheduler) warnExpiringProducts(ctx context.Context, now time.Time) {
	expiring, err := s.products.ListExpiringUnwarned(ctx, now.Add(s.warningWindow))
	if err != nil {
		s.logger.Error("list expiring products", "error", err)
		return
	}

	for _, p := range expiring {
		msg := fmt.Sprintf("%s expires on %s. Consider donating it.", p.Name, p.ExpiryDate.Format("Jan 2"))
		if !p.ExpiryDate.After(now) {
			msg = fmt.Sprintf("%s has expired.", p.Name)
		}
		s.notifier.Emit(ctx, p.OwnerID, "Food expiring soon", msg, model.NotifProductExpiry)
		if err := s.products.MarkExpiryWarned(ctx, p.ID); err != nil {
			s.logger.Error("mark product warned", "product_id", p.ID, "error", err)
		}
	}
}
