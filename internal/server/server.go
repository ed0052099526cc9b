package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dukerupert/nudge/internal/auth"
	"github.com/dukerupert/nudge/internal/guard"
	"github.com/dukerupert/nudge/internal/handler"
	"github.com/dukerupert/nudge/internal/middleware"
	"github.com/dukerupert/nudge/internal/presence"
	"github.com/dukerupert/nudge/internal/push"
	"github.com/dukerupert/nudge/internal/reminder"
	"github.com/dukerupert/nudge/internal/schedule"
	"github.com/dukerupert/nudge/internal/store"
	ws "github.com/dukerupert/nudge/internal/websocket"
)

// Config carries everything the server wires from the environment.
type Config struct {
	JWTSecret   string
	JWTIssuer   string
	AdminIDs    []int64
	CORSOrigins []string
	IPRateLimit int

	Push            push.Config
	PushConcurrency int
	PushTimeout     time.Duration

	SweepSchedule      string
	ReminderRateLimit  int
	ReminderRateWindow time.Duration
}

type Server struct {
	db            *sql.DB
	cfg           Config
	hub           *ws.Hub
	verifier      *auth.Verifier
	admins        auth.Admins
	reminderH     *handler.ReminderHandler
	pushH         *handler.PushHandler
	notificationH *handler.NotificationHandler
	presenceH     *handler.PresenceHandler
	adminH        *handler.AdminHandler
	scheduleStore *store.ScheduleStore
	rateLimiter   *guard.RateLimiter
	dispatcher    *push.Dispatcher
	sweeper       *schedule.Sweeper
	logger        *slog.Logger
}

func New(db *sql.DB, cfg Config, logger *slog.Logger) *Server {
	reminderStore := store.NewReminderStore(db)
	scheduleStore := store.NewScheduleStore(db)
	pushStore := store.NewPushStore(db)
	notificationStore := store.NewNotificationStore(db)
	presenceStore := store.NewPresenceStore(db)
	conversationStore := store.NewConversationStore(db)

	pushLogger := logger.With("component", "push")

	tracker := presence.NewTracker(presenceStore, logger.With("component", "presence"))
	hub := ws.NewHub(tracker, logger.With("component", "websocket"))

	// Push is optional; without VAPID keys only the durable copy is written.
	var provider push.Provider
	if cfg.Push.Enabled() {
		provider = push.NewService(cfg.Push)
	} else {
		pushLogger.Warn("VAPID keys not configured, push delivery disabled")
	}
	dispatcher := push.NewDispatcher(provider, pushStore, notificationStore, push.DispatcherConfig{
		Concurrency: cfg.PushConcurrency,
		Timeout:     cfg.PushTimeout,
	}, pushLogger)
	dispatcher.SetPublisher(hub)

	scheduleLogger := logger.With("component", "schedule")
	scheduler := schedule.New(scheduleStore, reminderStore, dispatcher, scheduleLogger)
	sweeper := schedule.NewSweeper(scheduler, cfg.SweepSchedule, scheduleLogger)

	limiter := guard.NewRateLimiter()
	manager := reminder.NewManager(db, reminderStore, scheduler, dispatcher, conversationStore, limiter, reminder.Config{
		RateLimit:  cfg.ReminderRateLimit,
		RateWindow: cfg.ReminderRateWindow,
	}, logger.With("component", "reminder"))

	return &Server{
		db:            db,
		cfg:           cfg,
		hub:           hub,
		verifier:      auth.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer),
		admins:        auth.NewAdmins(cfg.AdminIDs),
		reminderH:     handler.NewReminderHandler(manager, logger.With("component", "reminder_handler")),
		pushH:         handler.NewPushHandler(pushStore, dispatcher, cfg.Push.VAPIDPublicKey, logger.With("component", "push_handler")),
		notificationH: handler.NewNotificationHandler(notificationStore, logger.With("component", "notification_handler")),
		presenceH:     handler.NewPresenceHandler(tracker, logger.With("component", "presence_handler")),
		adminH:        handler.NewAdminHandler(sweeper, logger.With("component", "admin")),
		scheduleStore: scheduleStore,
		rateLimiter:   limiter,
		dispatcher:    dispatcher,
		sweeper:       sweeper,
		logger:        logger,
	}
}

// Sweeper returns the due-notification sweeper for lifecycle management.
func (s *Server) Sweeper() *schedule.Sweeper {
	return s.sweeper
}

// Dispatcher returns the push dispatcher so shutdown can wait on it.
func (s *Server) Dispatcher() *push.Dispatcher {
	return s.dispatcher
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *guard.RateLimiter {
	return s.rateLimiter
}

// ScheduleStore returns the schedule store for cleanup tasks.
func (s *Server) ScheduleStore() *store.ScheduleStore {
	return s.scheduleStore
}

// Verifier returns the bearer token verifier.
func (s *Server) Verifier() *auth.Verifier {
	return s.verifier
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	// Public routes (no auth required)
	mux.HandleFunc("GET /health", s.healthHandler)
	mux.Handle("GET /metrics", promhttp.Handler())

	// Reminders
	mux.Handle("POST /api/reminders", s.protected(s.reminderH.Create))
	mux.Handle("PATCH /api/reminders", s.protected(s.reminderH.Respond))
	mux.Handle("GET /api/reminders", s.protected(s.reminderH.List))
	mux.Handle("GET /api/reminders/{id}", s.protected(s.reminderH.Get))
	mux.Handle("DELETE /api/reminders/{id}", s.protected(s.reminderH.Delete))

	// Device registry
	mux.Handle("POST /api/push/subscriptions", s.protected(s.deviceRateLimited(s.pushH.Subscribe)))
	mux.Handle("GET /api/push/subscriptions", s.protected(s.pushH.ListSubscriptions))
	mux.Handle("DELETE /api/push/subscriptions/{id}", s.protected(s.pushH.Unsubscribe))
	mux.Handle("GET /api/push/vapid-key", s.protected(s.pushH.GetVAPIDKey))
	mux.Handle("POST /api/push/test", s.protected(s.deviceRateLimited(s.pushH.TestNotification)))

	// In-app notifications
	mux.Handle("GET /api/notifications", s.protected(s.notificationH.List))
	mux.Handle("POST /api/notifications/{id}/read", s.protected(s.notificationH.MarkRead))
	mux.Handle("POST /api/notifications/read-all", s.protected(s.notificationH.MarkAllRead))

	// Presence
	mux.Handle("POST /api/presence/heartbeat", s.protected(s.presenceH.Heartbeat))
	mux.Handle("GET /api/presence/{user_id}", s.protected(s.presenceH.Get))
	mux.Handle("GET /ws", s.protected(ws.HandleWebSocket(s.hub, s.cfg.CORSOrigins, s.logger.With("component", "websocket"))))

	// Admin
	mux.Handle("POST /api/admin/sweep", s.protected(middleware.RequireAdmin(s.admins)(http.HandlerFunc(s.adminH.Sweep)).ServeHTTP))

	var h http.Handler = middleware.Metrics(mux)
	ipLimit := s.cfg.IPRateLimit
	if ipLimit <= 0 {
		ipLimit = 300
	}
	h = httprate.LimitByIP(ipLimit, time.Minute)(h)
	if len(s.cfg.CORSOrigins) > 0 {
		h = cors.Handler(cors.Options{
			AllowedOrigins: s.cfg.CORSOrigins,
			AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
			ExposedHeaders: []string{middleware.RequestIDHeader},
			MaxAge:         300,
		})(h)
	}
	return middleware.RequestLogger(s.logger.With("component", "http"))(h)
}

func (s *Server) protected(h http.HandlerFunc) http.Handler {
	return middleware.RequireAuth(s.verifier)(h)
}

// deviceRateLimited caps device registration and test pushes per user.
func (s *Server) deviceRateLimited(h http.HandlerFunc) http.HandlerFunc {
	keyFunc := func(r *http.Request) string {
		return "device:" + strconv.FormatInt(auth.UserID(r.Context()), 10)
	}
	return middleware.RateLimit(s.rateLimiter, keyFunc, 10, time.Minute)(h).ServeHTTP
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	w.Header().Set("Content-Type", "application/json")
	if err := s.db.PingContext(ctx); err != nil {
		s.logger.Error("health check", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"status": "unavailable"})
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
