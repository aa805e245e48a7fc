// Package donation implements the donation lifecycle: proposing surplus food
// from a donor's inventory, discovering nearby offers, accepting them and
// completing pickup with a token, or cancelling before anyone accepts.
//
// Every operation that touches more than one table runs in a single
// transaction and every state change is a conditional update on the
// current status, so concurrent callers racing on the same donation see
// exactly one winner.
package donation

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/dukerupert/foodbridge/internal/apperr"
	"github.com/dukerupert/foodbridge/internal/model"
	"github.com/dukerupert/foodbridge/internal/pickup"
	"github.com/dukerupert/foodbridge/internal/store"
)

// AccountDirectory answers whether an account id is registered.
type AccountDirectory interface {
	Exists(ctx context.Context, id int64) (bool, error)
}

// Inventory removes and restores a donor's food items.
type Inventory interface {
	RemoveOneByName(ctx context.Context, ownerID int64, name string) (*model.Product, error)
	Insert(ctx context.Context, ownerID int64, name string, count int, category string, expiry time.Time) (*model.Product, error)
}

// Points credits pickup rewards.
type Points interface {
	Credit(ctx context.Context, accountID int64, amount int, reason, reference string) (*model.PointBalance, error)
}

// Notifier delivers user-facing events. Delivery failures are the
// notifier's concern; Emit never fails the calling operation.
type Notifier interface {
	Emit(ctx context.Context, accountID int64, title, message, category string)
}

type Config struct {
	TTL               time.Duration
	DonorReward       int
	ReceiverReward    int
	RestoredCategory  string
	RestoredShelfLife time.Duration
}

// ledgers groups the transaction-scoped collaborators used inside one unit
// of work.
type ledgers struct {
	accounts  AccountDirectory
	inventory Inventory
	points    Points
	donations *store.DonationStore
}

type Service struct {
	db        *sql.DB
	accounts  *store.AccountStore
	products  *store.ProductStore
	points    *store.PointsStore
	donations *store.DonationStore
	tokens    *pickup.Scheme
	notifier  Notifier
	cfg       Config
	logger    *slog.Logger
	now       func() time.Time
}

func NewService(db *sql.DB, tokens *pickup.Scheme, notifier Notifier, cfg Config, logger *slog.Logger) *Service {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		db:        db,
		accounts:  store.NewAccountStore(db),
		products:  store.NewProductStore(db),
		points:    store.NewPointsStore(db),
		donations: store.NewDonationStore(db),
		tokens:    tokens,
		notifier:  notifier,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

type nopNotifier struct{}

func (nopNotifier) Emit(context.Context, int64, string, string, string) {}

// clock returns the current time at the precision timestamps are stored with.
func (s *Service) clock() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

func (s *Service) inTx(ctx context.Context, fn func(l ledgers) error) error {
	return store.RunInTx(ctx, s.db, func(tx *sql.Tx) error {
		return fn(ledgers{
			accounts:  s.accounts.WithTx(tx),
			inventory: s.products.WithTx(tx),
			points:    s.points.WithTx(tx),
			donations: s.donations.WithTx(tx),
		})
	})
}

func donationRef(id int64) string {
	return fmt.Sprintf("donation:%d", id)
}

// ProposeRequest describes a new donation. Latitude and Longitude are both
// set or both nil.
type ProposeRequest struct {
	DonorID   int64
	Items     []string
	Latitude  *float64
	Longitude *float64
}

type ProposeResult struct {
	Donation *model.Donation `json:"donation"`
	Removed  []model.Product `json:"removed_products"`
	Skipped  []string        `json:"skipped_items"`
}

func normalizeItems(items []string) ([]string, error) {
	if len(items) == 0 {
		return nil, apperr.Validationf("type_of_food must list at least one item")
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		it = strings.TrimSpace(it)
		if it == "" {
			return nil, apperr.Validationf("food item names must not be blank")
		}
		out = append(out, it)
	}
	return out, nil
}

func checkLocation(lat, lon *float64) error {
	if (lat == nil) != (lon == nil) {
		return apperr.Validationf("latitude and longitude must be given together")
	}
	if lat != nil && !validCoordinates(*lat, *lon) {
		return apperr.Validationf("coordinates out of range: %v, %v", *lat, *lon)
	}
	return nil
}

// Propose creates a donation and removes one matching inventory item per
// named food. Names with no matching item are skipped and reported in the
// result rather than failing the call.
func (s *Service) Propose(ctx context.Context, req ProposeRequest) (*ProposeResult, error) {
	items, err := normalizeItems(req.Items)
	if err != nil {
		return nil, err
	}
	if err := checkLocation(req.Latitude, req.Longitude); err != nil {
		return nil, err
	}

	now := s.clock()
	result := &ProposeResult{Removed: []model.Product{}, Skipped: []string{}}

	err = s.inTx(ctx, func(l ledgers) error {
		ok, err := l.accounts.Exists(ctx, req.DonorID)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.Validationf("donor %d is not a known account", req.DonorID)
		}

		var consumed []string
		for _, name := range items {
			p, err := l.inventory.RemoveOneByName(ctx, req.DonorID, name)
			if err != nil {
				return err
			}
			if p == nil {
				result.Skipped = append(result.Skipped, name)
				continue
			}
			result.Removed = append(result.Removed, *p)
			consumed = append(consumed, name)
		}

		d, err := l.donations.Create(ctx, req.DonorID, items, consumed, req.Latitude, req.Longitude, now, now.Add(s.cfg.TTL))
		if err != nil {
			return err
		}
		result.Donation = d
		return nil
	})
	if err != nil {
		return nil, apperr.Infrastructure("propose donation", err)
	}

	s.logger.Info("donation proposed",
		"donation_id", result.Donation.ID,
		"donor_id", req.DonorID,
		"removed", len(result.Removed),
		"skipped", len(result.Skipped),
	)
	return result, nil
}

// Discover returns the donations requesterID may see within radiusKm of the
// given point, nearest first.
func (s *Service) Discover(ctx context.Context, requesterID int64, lat, lon, radiusKm float64) ([]model.NearbyDonation, error) {
	if !validCoordinates(lat, lon) {
		return nil, apperr.Validationf("coordinates out of range: %v, %v", lat, lon)
	}
	if radiusKm <= 0 {
		return nil, apperr.Validationf("radius_km must be positive")
	}

	candidates, err := s.donations.ListDiscoverable(ctx, requesterID, s.clock())
	if err != nil {
		return nil, apperr.Infrastructure("discover donations", err)
	}

	nearby := []model.NearbyDonation{}
	for _, d := range candidates {
		dist := haversineKm(lat, lon, *d.Latitude, *d.Longitude)
		if dist <= radiusKm {
			nearby = append(nearby, model.NearbyDonation{Donation: d, DistanceKm: dist})
		}
	}
	sort.SliceStable(nearby, func(i, j int) bool {
		return nearby[i].DistanceKm < nearby[j].DistanceKm
	})
	return nearby, nil
}

type AcceptResult struct {
	Donation    *model.Donation `json:"donation"`
	PickupToken string          `json:"qr_hash"`
}

// Accept assigns a proposed, unexpired donation to a receiver and returns
// the token the receiver will present at pickup.
func (s *Service) Accept(ctx context.Context, donationID, receiverID int64) (*AcceptResult, error) {
	now := s.clock()
	var accepted *model.Donation
	err := s.inTx(ctx, func(l ledgers) error {
		var err error
		accepted, err = s.accept(ctx, l, donationID, receiverID, now)
		return err
	})
	if err != nil {
		return nil, apperr.Infrastructure("accept donation", err)
	}

	s.afterAccept(ctx, accepted)
	return &AcceptResult{Donation: accepted, PickupToken: s.tokens.Token(accepted.ID)}, nil
}

func (s *Service) accept(ctx context.Context, l ledgers, donationID, receiverID int64, now time.Time) (*model.Donation, error) {
	d, err := l.donations.GetByID(ctx, donationID)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, apperr.NotFoundf("donation %d not found", donationID)
	}
	if receiverID == d.DonorID {
		return nil, apperr.Validationf("donors cannot accept their own donation")
	}
	ok, err := l.accounts.Exists(ctx, receiverID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.Validationf("receiver %d is not a known account", receiverID)
	}

	ok, err = l.donations.MarkAccepted(ctx, donationID, receiverID, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.NotFoundf("donation %d is no longer available", donationID)
	}
	return l.donations.GetByID(ctx, donationID)
}

func (s *Service) afterAccept(ctx context.Context, d *model.Donation) {
	s.logger.Info("donation accepted", "donation_id", d.ID, "receiver_id", *d.ReceiverID)
	s.notifier.Emit(ctx, d.DonorID, "Donation accepted",
		fmt.Sprintf("Your donation of %s has been accepted and is awaiting pickup.", strings.Join(d.FoodItems, ", ")),
		model.NotifDonationAccepted)
	s.notifier.Emit(ctx, *d.ReceiverID, "Donation reserved",
		fmt.Sprintf("You accepted %s. Show your pickup code to the donor.", strings.Join(d.FoodItems, ", ")),
		model.NotifDonationReceived)
}

type VerifyResult struct {
	Donation       *model.Donation     `json:"donation"`
	DonorPoints    *model.PointBalance `json:"donor_points"`
	ReceiverPoints *model.PointBalance `json:"receiver_points"`
}

// VerifyPickup completes the accepted donation whose pickup token equals
// token and credits both parties.
func (s *Service) VerifyPickup(ctx context.Context, token string) (*VerifyResult, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, apperr.Validationf("qr_hash is required")
	}

	match, err := s.findByToken(ctx, model.DonationAccepted, token)
	if err != nil {
		return nil, apperr.Infrastructure("verify pickup", err)
	}
	if match == nil {
		done, err := s.findByToken(ctx, model.DonationCompleted, token)
		if err != nil {
			return nil, apperr.Infrastructure("verify pickup", err)
		}
		if done != nil {
			return nil, apperr.NotFoundf("donation %d is no longer awaiting pickup", done.ID)
		}
		return nil, apperr.Validationf("invalid pickup code")
	}

	now := s.clock()
	var result *VerifyResult
	err = s.inTx(ctx, func(l ledgers) error {
		var err error
		result, err = s.complete(ctx, l, match, now)
		return err
	})
	if err != nil {
		return nil, apperr.Infrastructure("verify pickup", err)
	}

	s.afterComplete(ctx, result)
	return result, nil
}

func (s *Service) findByToken(ctx context.Context, status model.DonationStatus, token string) (*model.Donation, error) {
	candidates, err := s.donations.ListByStatus(ctx, status)
	if err != nil {
		return nil, err
	}
	for i := range candidates {
		if s.tokens.Verify(candidates[i].ID, token) {
			return &candidates[i], nil
		}
	}
	return nil, nil
}

func (s *Service) complete(ctx context.Context, l ledgers, d *model.Donation, now time.Time) (*VerifyResult, error) {
	ok, err := l.donations.MarkCompleted(ctx, d.ID, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.Conflictf("donation %d is not awaiting pickup", d.ID)
	}

	donorPts, err := l.points.Credit(ctx, d.DonorID, s.cfg.DonorReward, model.PointReasonDonationGiven, donationRef(d.ID))
	if err != nil {
		return nil, err
	}
	receiverPts, err := l.points.Credit(ctx, *d.ReceiverID, s.cfg.ReceiverReward, model.PointReasonDonationReceived, donationRef(d.ID))
	if err != nil {
		return nil, err
	}

	completed, err := l.donations.GetByID(ctx, d.ID)
	if err != nil {
		return nil, err
	}
	return &VerifyResult{Donation: completed, DonorPoints: donorPts, ReceiverPoints: receiverPts}, nil
}

func (s *Service) afterComplete(ctx context.Context, r *VerifyResult) {
	d := r.Donation
	s.logger.Info("donation completed", "donation_id", d.ID, "donor_id", d.DonorID, "receiver_id", *d.ReceiverID)
	s.notifier.Emit(ctx, d.DonorID, "Donation picked up",
		fmt.Sprintf("Your donation was collected. You earned %d points.", s.cfg.DonorReward),
		model.NotifDonationCompleted)
	s.notifier.Emit(ctx, *d.ReceiverID, "Pickup confirmed",
		fmt.Sprintf("Enjoy your food! You earned %d points.", s.cfg.ReceiverReward),
		model.NotifDonationCompleted)
}

// Cancel withdraws a proposed donation and puts one item per consumed name
// back into the donor's inventory. Restored items get a placeholder
// category and a short shelf life since the originals' details are gone.
func (s *Service) Cancel(ctx context.Context, donationID int64) ([]model.Product, error) {
	now := s.clock()
	restored := []model.Product{}
	err := s.inTx(ctx, func(l ledgers) error {
		d, err := s.withdraw(ctx, l, donationID)
		if err != nil {
			return err
		}
		for _, name := range d.ConsumedItems {
			p, err := l.inventory.Insert(ctx, d.DonorID, name, 1, s.cfg.RestoredCategory, now.Add(s.cfg.RestoredShelfLife))
			if err != nil {
				return err
			}
			restored = append(restored, *p)
		}
		return nil
	})
	if err != nil {
		return nil, apperr.Infrastructure("cancel donation", err)
	}

	s.logger.Info("donation cancelled", "donation_id", donationID, "restored", len(restored))
	return restored, nil
}

// Delete removes a proposed donation without restoring inventory.
func (s *Service) Delete(ctx context.Context, donationID int64) error {
	err := s.inTx(ctx, func(l ledgers) error {
		_, err := s.withdraw(ctx, l, donationID)
		return err
	})
	if err != nil {
		return apperr.Infrastructure("delete donation", err)
	}
	s.logger.Info("donation deleted", "donation_id", donationID)
	return nil
}

func (s *Service) withdraw(ctx context.Context, l ledgers, donationID int64) (*model.Donation, error) {
	d, err := l.donations.GetByID(ctx, donationID)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, apperr.NotFoundf("donation %d not found", donationID)
	}
	if d.Status != model.DonationProposed {
		return nil, apperr.Conflictf("donation %d is %s and can no longer be withdrawn", donationID, d.Status)
	}
	ok, err := l.donations.DeleteProposed(ctx, donationID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.Conflictf("donation %d can no longer be withdrawn", donationID)
	}
	return d, nil
}

// Update applies a structured patch. Item and location edits are only
// allowed while the donation is proposed and unexpired. A status change is
// performed as the matching lifecycle transition.
func (s *Service) Update(ctx context.Context, donationID int64, patch model.DonationPatch) (*model.Donation, error) {
	if patch.Empty() {
		return nil, apperr.Validationf("no fields to update")
	}
	if patch.FoodItems != nil {
		items, err := normalizeItems(*patch.FoodItems)
		if err != nil {
			return nil, err
		}
		patch.FoodItems = &items
	}
	if patch.Latitude != nil && (*patch.Latitude < -90 || *patch.Latitude > 90) {
		return nil, apperr.Validationf("latitude out of range: %v", *patch.Latitude)
	}
	if patch.Longitude != nil && (*patch.Longitude < -180 || *patch.Longitude > 180) {
		return nil, apperr.Validationf("longitude out of range: %v", *patch.Longitude)
	}

	now := s.clock()
	var (
		updated   *model.Donation
		accepted  bool
		completed *VerifyResult
	)
	err := s.inTx(ctx, func(l ledgers) error {
		d, err := l.donations.GetByID(ctx, donationID)
		if err != nil {
			return err
		}
		if d == nil {
			return apperr.NotFoundf("donation %d not found", donationID)
		}
		updated = d

		if patch.HasFieldEdits() {
			if d.Status != model.DonationProposed || d.Expired(now) {
				return apperr.Conflictf("donation %d can only be edited while proposed and unexpired", donationID)
			}
			lat, lon := d.Latitude, d.Longitude
			if patch.Latitude != nil {
				lat = patch.Latitude
			}
			if patch.Longitude != nil {
				lon = patch.Longitude
			}
			if (lat == nil) != (lon == nil) {
				return apperr.Validationf("latitude and longitude must be set together")
			}
			updated, err = l.donations.UpdateFields(ctx, donationID, patch, now)
			if err != nil {
				return err
			}
			if updated == nil {
				return apperr.Conflictf("donation %d can only be edited while proposed and unexpired", donationID)
			}
		}

		if patch.Status == nil || *patch.Status == updated.Status {
			return nil
		}
		switch {
		case *patch.Status == model.DonationAccepted && updated.Status == model.DonationProposed:
			if patch.ReceiverID == nil {
				return apperr.Validationf("receiver_user_id is required to accept a donation")
			}
			updated, err = s.accept(ctx, l, donationID, *patch.ReceiverID, now)
			accepted = err == nil
			return err
		case *patch.Status == model.DonationCompleted && updated.Status == model.DonationAccepted:
			completed, err = s.complete(ctx, l, updated, now)
			if err != nil {
				return err
			}
			updated = completed.Donation
			return nil
		default:
			return apperr.Conflictf("cannot move donation %d from %s to %s", donationID, updated.Status, *patch.Status)
		}
	})
	if err != nil {
		return nil, apperr.Infrastructure("update donation", err)
	}

	switch {
	case accepted:
		s.afterAccept(ctx, updated)
	case completed != nil:
		s.afterComplete(ctx, completed)
	}
	return updated, nil
}

func (s *Service) Get(ctx context.Context, donationID int64) (*model.Donation, error) {
	d, err := s.donations.GetByID(ctx, donationID)
	if err != nil {
		return nil, apperr.Infrastructure("get donation", err)
	}
	if d == nil {
		return nil, apperr.NotFoundf("donation %d not found", donationID)
	}
	return d, nil
}

func (s *Service) List(ctx context.Context, filter model.DonationFilter) ([]model.Donation, error) {
	list, err := s.donations.List(ctx, filter, s.clock())
	if err != nil {
		return nil, apperr.Infrastructure("list donations", err)
	}
	if list == nil {
		list = []model.Donation{}
	}
	return list, nil
}

// Token returns the pickup token of an accepted donation.
func (s *Service) Token(ctx context.Context, donationID int64) (string, error) {
	d, err := s.Get(ctx, donationID)
	if err != nil {
		return "", err
	}
	if d.Status != model.DonationAccepted {
		return "", apperr.Conflictf("donation %d is %s; pickup codes exist only for accepted donations", donationID, d.Status)
	}
	return s.tokens.Token(d.ID), nil
}
