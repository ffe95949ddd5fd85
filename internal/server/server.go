package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/dukerupert/habitual/internal/auth"
	"github.com/dukerupert/habitual/internal/backup"
	"github.com/dukerupert/habitual/internal/database"
	"github.com/dukerupert/habitual/internal/email"
	"github.com/dukerupert/habitual/internal/habit"
	"github.com/dukerupert/habitual/internal/handler"
	"github.com/dukerupert/habitual/internal/middleware"
	"github.com/dukerupert/habitual/internal/push"
	"github.com/dukerupert/habitual/internal/store"
	ws "github.com/dukerupert/habitual/internal/websocket"
	"github.com/dukerupert/habitual/web"
)

// Config carries what New needs beyond the database.
type Config struct {
	BaseURL string
	Secret  string
	Sender  email.Sender

	// Push is nil when VAPID keys are not configured.
	Push             *push.Service
	ReminderHour     int
	ReminderInterval time.Duration

	Backup backup.Config
}

type Server struct {
	db              *database.DB
	hub             *ws.Hub
	templateHandler *handler.TemplateHandler
	authH           *handler.AuthHandler
	habitH          *handler.HabitHandler
	pushH           *handler.PushHandler
	userStore       *store.UserStore
	sessionStore    *store.SessionStore
	loginCodeStore  *store.LoginCodeStore
	pushStore       *store.PushStore
	tokens          *auth.Tokens
	rateLimiter     *middleware.RateLimiter
	backupManager   *backup.Manager
	pushScheduler   *push.Scheduler
	baseURL         *url.URL
	secret          string
	logger          *slog.Logger
}

func New(db *database.DB, cfg Config, logger *slog.Logger) (*Server, error) {
	baseURL, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	tmpl, err := handler.ParseTemplates()
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	if cfg.Sender == nil {
		cfg.Sender = email.LogSender{Logger: logger.With("component", "email")}
	}

	hub := ws.NewHub(logger.With("component", "websocket"))

	userStore := store.NewUserStore(db)
	sessionStore := store.NewSessionStore(db)
	loginCodeStore := store.NewLoginCodeStore(db)
	habitStore := store.NewHabitStore(db)
	entryStore := store.NewEntryStore(db)
	pushSt := store.NewPushStore(db)

	habitSvc := habit.NewService(habitStore, entryStore, logger.With("component", "habit"))
	tokens := auth.NewTokens(cfg.Secret, baseURL.Host)

	var pushSched *push.Scheduler
	if cfg.Push != nil {
		pushSched = push.NewScheduler(cfg.Push, pushSt, entryStore, cfg.ReminderHour, cfg.ReminderInterval, logger.With("component", "push"))
	}

	return &Server{
		db:              db,
		hub:             hub,
		templateHandler: handler.NewTemplateHandler(habitSvc, hub, tmpl, logger.With("component", "template")),
		authH:           handler.NewAuthHandler(userStore, sessionStore, loginCodeStore, cfg.Sender, tokens, tmpl, baseURL.Scheme == "https", logger.With("component", "auth")),
		habitH:          handler.NewHabitHandler(habitSvc, hub, logger.With("component", "habit_api")),
		pushH:           handler.NewPushHandler(pushSt, cfg.Push, logger.With("component", "push_handler")),
		userStore:       userStore,
		sessionStore:    sessionStore,
		loginCodeStore:  loginCodeStore,
		pushStore:       pushSt,
		tokens:          tokens,
		rateLimiter:     middleware.NewRateLimiter(),
		backupManager:   backup.NewManager(cfg.Backup, db, logger.With("component", "backup")),
		pushScheduler:   pushSched,
		baseURL:         baseURL,
		secret:          cfg.Secret,
		logger:          logger,
	}, nil
}

// SessionStore returns the session store for cleanup tasks.
func (s *Server) SessionStore() *store.SessionStore {
	return s.sessionStore
}

// LoginCodeStore returns the login code store for cleanup tasks.
func (s *Server) LoginCodeStore() *store.LoginCodeStore {
	return s.loginCodeStore
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

// BackupManager returns the backup manager.
func (s *Server) BackupManager() *backup.Manager {
	return s.backupManager
}

// PushScheduler returns the reminder scheduler, or nil when push is disabled.
func (s *Server) PushScheduler() *push.Scheduler {
	return s.pushScheduler
}

// Hub returns the websocket hub.
func (s *Server) Hub() *ws.Hub {
	return s.hub
}

// Cleanup removes expired sessions and login codes and stale rate-limit windows.
func (s *Server) Cleanup(ctx context.Context) {
	if n, err := s.sessionStore.DeleteExpired(); err != nil {
		s.logger.ErrorContext(ctx, "cleanup sessions", "error", err)
	} else if n > 0 {
		s.logger.InfoContext(ctx, "cleaned up expired sessions", "count", n)
	}
	if n, err := s.loginCodeStore.DeleteExpired(); err != nil {
		s.logger.ErrorContext(ctx, "cleanup login codes", "error", err)
	} else if n > 0 {
		s.logger.InfoContext(ctx, "cleaned up expired login codes", "count", n)
	}
	s.rateLimiter.Cleanup()
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()

	outerMux.HandleFunc("GET /health", s.healthHandler)
	outerMux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(web.Static())))

	// HTML routes: login is public, the rest require a session. All of them sit
	// behind CSRF protection.
	htmlMux := http.NewServeMux()
	htmlMux.HandleFunc("GET /login", s.authH.LoginPage)
	htmlMux.HandleFunc("POST /login", s.rateLimitedHandler(s.authH.Login, 10))
	htmlMux.HandleFunc("POST /login/verify", s.rateLimitedHandler(s.authH.Verify, 20))

	protectedMux := http.NewServeMux()
	s.registerPageRoutes(protectedMux)
	htmlMux.Handle("/", middleware.RequireAuth(s.sessionStore, s.userStore)(protectedMux))

	trusted := []string{s.baseURL.Host}
	csrfMiddleware := middleware.CSRF(s.secret, s.baseURL.Scheme == "https", trusted, s.logger.With("component", "csrf"))
	outerMux.Handle("/", csrfMiddleware(htmlMux))

	// JSON API: bearer token or session cookie.
	apiMux := http.NewServeMux()
	s.registerAPIRoutes(apiMux)
	outerMux.Handle("/api/", middleware.RequireAPIAuth(s.sessionStore, s.userStore, s.tokens)(apiMux))

	return middleware.RequestLogger(s.logger.With("component", "http"))(outerMux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	w.Header().Set("Content-Type", "application/json")
	if err := s.db.SQL().PingContext(ctx); err != nil {
		s.logger.Error("health check", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"status": "unavailable"})
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) backupStatusHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.backupManager.Status())
}

func (s *Server) rateLimitedHandler(h http.HandlerFunc, limit int) http.HandlerFunc {
	keyFunc := func(r *http.Request) string {
		return r.URL.Path + "|" + middleware.RealIP(r)
	}
	rl := middleware.RateLimit(s.rateLimiter, keyFunc, limit, time.Minute)
	return func(w http.ResponseWriter, r *http.Request) {
		rl(http.HandlerFunc(h)).ServeHTTP(w, r)
	}
}

func (s *Server) registerPageRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /logout", s.authH.Logout)

	// Page routes: full layout
	mux.HandleFunc("GET /{$}", s.templateHandler.Dashboard)

	// Today panel (HTMX)
	mux.HandleFunc("GET /partials/today", s.templateHandler.TodayList)
	mux.HandleFunc("POST /partials/today/{id}", s.templateHandler.TodayToggle)

	// Heatmap panel (HTMX)
	mux.HandleFunc("GET /partials/heatmap", s.templateHandler.Heatmap)
	mux.HandleFunc("POST /partials/heatmap/toggle", s.templateHandler.HeatmapToggle)

	// Habit management (HTMX)
	mux.HandleFunc("GET /partials/habits", s.templateHandler.HabitList)
	mux.HandleFunc("POST /partials/habits", s.templateHandler.HabitCreate)
	mux.HandleFunc("GET /partials/habits/{id}/edit", s.templateHandler.HabitEditForm)
	mux.HandleFunc("PUT /partials/habits/{id}", s.templateHandler.HabitUpdate)
	mux.HandleFunc("DELETE /partials/habits/{id}", s.templateHandler.HabitDelete)

	// WebSocket
	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub, []string{s.baseURL.Host}, s.logger.With("component", "websocket")))
}

func (s *Server) registerAPIRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/token", s.authH.Token)

	mux.HandleFunc("GET /api/habits", s.habitH.List)
	mux.HandleFunc("POST /api/habits", s.habitH.Create)
	mux.HandleFunc("PUT /api/habits/{id}", s.habitH.Update)
	mux.HandleFunc("DELETE /api/habits/{id}", s.habitH.Delete)

	mux.HandleFunc("GET /api/entries", s.habitH.ListEntries)
	mux.HandleFunc("POST /api/entries/toggle", s.habitH.Toggle)
	mux.HandleFunc("GET /api/heatmap", s.habitH.Heatmap)

	mux.HandleFunc("POST /api/push/subscribe", s.pushH.Subscribe)
	mux.HandleFunc("GET /api/push/subscriptions", s.pushH.ListSubscriptions)
	mux.HandleFunc("DELETE /api/push/subscriptions/{id}", s.pushH.Unsubscribe)
	mux.HandleFunc("GET /api/push/vapid-key", s.pushH.GetVAPIDKey)

	mux.HandleFunc("GET /api/backup/status", s.backupStatusHandler)
}
