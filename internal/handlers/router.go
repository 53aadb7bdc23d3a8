package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"splitledger/internal/config"
	"splitledger/internal/db"
	"splitledger/internal/middleware"
)

type Handler struct {
	cfg     config.Config
	uow     db.UnitOfWork
	users   UserStore
	audit   AuditStore
	service LedgerService
}

func New(cfg config.Config, uow db.UnitOfWork, users UserStore, audit AuditStore, service LedgerService) *Handler {
	return &Handler{
		cfg:     cfg,
		uow:     uow,
		users:   users,
		audit:   audit,
		service: service,
	}
}

func (h *Handler) Routes() http.Handler {
	router := chi.NewRouter()
	router.Use(requestLogger)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{h.cfg.AllowedOrigins},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Idempotency-Key"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	router.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)
		r.With(middleware.Auth(h.cfg.JWTSecret)).Get("/me", h.Me)
	})

	router.Group(func(r chi.Router) {
		r.Use(middleware.Auth(h.cfg.JWTSecret))
		r.Post("/expenses", h.CreateExpense)
		r.Post("/settle-up", h.SettleUp)
		r.Get("/friends", h.ListFriends)
		r.Delete("/friends/{friendID}", h.RemoveFriend)
		r.Get("/friends/{friendID}/balance", h.GetBalance)
		r.Get("/friends/{friendID}/transactions", h.ListTransactions)
	})

	router.Group(func(r chi.Router) {
		r.Use(middleware.InternalOnly(h.cfg.InternalSecret))
		r.Get("/admin/reconcile", h.Reconcile)
		r.Get("/admin/audit", h.AuditLog)
	})

	router.Handle("/metrics", promhttp.Handler())
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return router
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}
