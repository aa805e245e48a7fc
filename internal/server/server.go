package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/dukerupert/foodbridge/internal/config"
	"github.com/dukerupert/foodbridge/internal/donation"
	"github.com/dukerupert/foodbridge/internal/email"
	"github.com/dukerupert/foodbridge/internal/expiry"
	"github.com/dukerupert/foodbridge/internal/handler"
	"github.com/dukerupert/foodbridge/internal/inventory"
	"github.com/dukerupert/foodbridge/internal/middleware"
	"github.com/dukerupert/foodbridge/internal/notify"
	"github.com/dukerupert/foodbridge/internal/pickup"
	"github.com/dukerupert/foodbridge/internal/push"
	"github.com/dukerupert/foodbridge/internal/reward"
	"github.com/dukerupert/foodbridge/internal/snapshot"
	"github.com/dukerupert/foodbridge/internal/store"
	ws "github.com/dukerupert/foodbridge/internal/websocket"
)

type Server struct {
	db              *sql.DB
	cfg             *config.Config
	hub             *ws.Hub
	accountH        *handler.AccountHandler
	productH        *handler.ProductHandler
	donationH       *handler.DonationHandler
	rewardH         *handler.RewardHandler
	pointsH         *handler.PointsHandler
	notificationH   *handler.NotificationHandler
	pushH           *handler.PushHandler
	snapshotH       *handler.SnapshotHandler
	verifyLimiter   *middleware.RateLimiter
	dispatcher      *notify.Dispatcher
	expiryScheduler *expiry.Scheduler
	snapshotMgr     *snapshot.Manager
	logger          *slog.Logger
}

// New builds the stores, services and handlers on db.
func New(db *sql.DB, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	hub := ws.NewHub(logger.With("component", "websocket"))

	tokens, err := pickup.NewScheme(cfg.Pickup.Secret, logger.With("component", "pickup"))
	if err != nil {
		return nil, err
	}

	accountStore := store.NewAccountStore(db)
	productStore := store.NewProductStore(db)
	pointsStore := store.NewPointsStore(db)
	rewardStore := store.NewRewardStore(db)
	donationStore := store.NewDonationStore(db)
	notificationStore := store.NewNotificationStore(db)
	pushStore := store.NewPushStore(db)
	snapshotStore := store.NewSnapshotStore(db)

	// Push notification sender, only when VAPID keys are configured.
	var sender notify.Sender
	if cfg.Push.Enabled() {
		sender = push.NewService(push.Config{
			VAPIDPublicKey:  cfg.Push.VAPIDPublicKey,
			VAPIDPrivateKey: cfg.Push.VAPIDPrivateKey,
			Subscriber:      cfg.Push.Subscriber,
		})
	} else {
		logger.Info("web push disabled: VAPID keys not configured")
	}
	dispatcher := notify.NewDispatcher(notificationStore, pushStore, hub, sender, logger.With("component", "notify"))
	if cfg.Email.Enabled() {
		dispatcher.WithEmail(email.NewClient(cfg.Email.PostmarkToken, cfg.Email.From), accountStore, cfg.Email.Categories)
	}

	donationSvc := donation.NewService(db, tokens, dispatcher, donation.Config{
		TTL:               cfg.Donation.TTL.Duration,
		DonorReward:       cfg.Donation.DonorReward,
		ReceiverReward:    cfg.Donation.ReceiverReward,
		RestoredCategory:  cfg.Donation.RestoredCategory,
		RestoredShelfLife: cfg.Donation.RestoredShelfLife.Duration,
	}, logger.With("component", "donation"))
	rewardSvc := reward.NewService(db, dispatcher, logger.With("component", "reward"))
	inventorySvc := inventory.NewService(accountStore, productStore, logger.With("component", "inventory"))

	expirySched := expiry.NewScheduler(donationStore, productStore, dispatcher,
		cfg.Expiry.Interval.Duration, cfg.Expiry.ProductWarningWindow.Duration,
		logger.With("component", "expiry"))

	snapshotMgr := snapshot.NewManager(snapshot.Config{
		Endpoint:      cfg.Snapshot.Endpoint,
		Bucket:        cfg.Snapshot.Bucket,
		Region:        cfg.Snapshot.Region,
		AccessKey:     cfg.Snapshot.AccessKey,
		SecretKey:     cfg.Snapshot.SecretKey,
		Passphrase:    cfg.Snapshot.Passphrase,
		Interval:      cfg.Snapshot.Interval.Duration,
		RetentionDays: cfg.Snapshot.RetentionDays,
	}, db, snapshotStore, logger.With("component", "snapshot"))

	return &Server{
		db:              db,
		cfg:             cfg,
		hub:             hub,
		accountH:        handler.NewAccountHandler(accountStore, hub, logger.With("component", "account")),
		productH:        handler.NewProductHandler(inventorySvc, hub, logger.With("component", "product")),
		donationH:       handler.NewDonationHandler(donationSvc, cfg.Donation.DefaultRadiusKm, cfg.Pickup.QRSize, hub, logger.With("component", "donation_handler")),
		rewardH:         handler.NewRewardHandler(rewardStore, rewardSvc, hub, logger.With("component", "reward_handler")),
		pointsH:         handler.NewPointsHandler(accountStore, pointsStore, hub, logger.With("component", "points")),
		notificationH:   handler.NewNotificationHandler(notificationStore, logger.With("component", "notification")),
		pushH:           handler.NewPushHandler(accountStore, pushStore, cfg.Push.VAPIDPublicKey, logger.With("component", "push_handler")),
		snapshotH:       handler.NewSnapshotHandler(snapshotMgr, snapshotStore, logger.With("component", "snapshot_handler")),
		verifyLimiter:   middleware.NewRateLimiter(cfg.Pickup.VerifyRateLimit, cfg.Pickup.VerifyRateWindow.Duration),
		dispatcher:      dispatcher,
		expiryScheduler: expirySched,
		snapshotMgr:     snapshotMgr,
		logger:          logger,
	}, nil
}

// RateLimiter returns the pickup verification limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.verifyLimiter
}

// ExpiryScheduler returns the expiry sweep loop.
func (s *Server) ExpiryScheduler() *expiry.Scheduler {
	return s.expiryScheduler
}

// SnapshotManager returns the snapshot manager.
func (s *Server) SnapshotManager() *snapshot.Manager {
	return s.snapshotMgr
}

// Dispatcher returns the notification dispatcher so shutdown can wait for
// in-flight pushes.
func (s *Server) Dispatcher() *notify.Dispatcher {
	return s.dispatcher
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(middleware.RequestLogger(s.logger.With("component", "http")))
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", s.healthHandler)
	r.Get("/ws", ws.HandleWebSocket(s.hub, s.logger.With("component", "websocket"), originHosts(s.cfg.CORS.AllowedOrigins)))

	r.Route("/api", func(r chi.Router) {
		r.Route("/accounts", func(r chi.Router) {
			r.Post("/", s.accountH.Create)
			r.Get("/", s.accountH.List)
			r.Get("/{id}", s.accountH.Get)
			r.Get("/{id}/products", s.productH.List)
			r.Post("/{id}/products", s.productH.Create)
			r.Get("/{id}/notifications", s.notificationH.List)
			r.Get("/{id}/push-subscriptions", s.pushH.ListSubscriptions)
			r.Post("/{id}/push-subscriptions", s.pushH.Subscribe)
		})

		r.Route("/products", func(r chi.Router) {
			r.Get("/{id}", s.productH.Get)
			r.Put("/{id}", s.productH.Update)
			r.Delete("/{id}", s.productH.Delete)
		})

		r.Route("/donations", func(r chi.Router) {
			r.Post("/", s.donationH.Propose)
			r.Get("/", s.donationH.List)
			r.Get("/nearby", s.donationH.Nearby)
			r.With(middleware.RateLimit(s.verifyLimiter, middleware.RealIP)).
				Post("/verify-pickup", s.donationH.VerifyPickup)
			r.Get("/{id}", s.donationH.Get)
			r.Put("/{id}", s.donationH.Update)
			r.Delete("/{id}", s.donationH.Delete)
			r.Post("/{id}/cancel", s.donationH.Cancel)
			r.Post("/{id}/accept", s.donationH.Accept)
			r.Get("/{id}/qrcode", s.donationH.QRCode)
		})

		r.Route("/rewards", func(r chi.Router) {
			r.Get("/", s.rewardH.List)
			r.Post("/", s.rewardH.Create)
			r.Put("/claims/{id}/use", s.rewardH.Use)
			r.Get("/{id}", s.rewardH.Get)
			r.Put("/{id}", s.rewardH.Update)
			r.Delete("/{id}", s.rewardH.Delete)
			r.Post("/{id}/claim", s.rewardH.Claim)
		})

		r.Route("/users/{id}", func(r chi.Router) {
			r.Get("/rewards", s.rewardH.ListClaims)
			r.Get("/points", s.pointsH.Get)
			r.Post("/points", s.pointsH.Add)
			r.Get("/points/history", s.pointsH.History)
		})

		r.Put("/notifications/{id}/read", s.notificationH.MarkRead)

		r.Get("/push/vapid-public-key", s.pushH.VAPIDKey)
		r.Delete("/push-subscriptions/{id}", s.pushH.Unsubscribe)

		r.Get("/snapshots", s.snapshotH.List)
		r.Post("/snapshots", s.snapshotH.Run)
	})

	return r
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	status, code := "ok", http.StatusOK
	if err := s.db.PingContext(r.Context()); err != nil {
		s.logger.Error("health check: database unreachable", "error", err)
		status, code = "unavailable", http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]any{
		"status":  status,
		"clients": s.hub.ClientCount(),
	})
}

// originHosts converts CORS origins to the host patterns the websocket
// upgrader matches against.
func originHosts(origins []string) []string {
	hosts := make([]string, 0, len(origins))
	for _, o := range origins {
		if o == "*" {
			return []string{"*"}
		}
		u, err := url.Parse(o)
		if err != nil || u.Host == "" {
			continue
		}
		hosts = append(hosts, u.Host)
	}
	return hosts
}
