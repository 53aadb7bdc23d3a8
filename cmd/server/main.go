package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"splitledger/internal/cache"
	"splitledger/internal/config"
	"splitledger/internal/db"
	"splitledger/internal/handlers"
	"splitledger/internal/logging"
	"splitledger/internal/services"
	"splitledger/internal/store"
)

func main() {
	logging.Setup()
	cfg := config.Load()

	database, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect database", "err", err)
		os.Exit(1)
	}
	defer database.Close()

	uow := db.SelectUnitOfWork(cfg.TxMode, database)

	users := store.NewUserStore(database)
	pairs := store.NewPairBalanceStore(database)
	ledger := store.NewLedgerStore(database)
	intents := store.NewIntentStore(database, cfg.IdempotencyWindow)
	audit := store.NewAuditStore(database)

	balances := selectCache(cfg)
	defer balances.Close()

	service := services.NewLedgerService(uow, pairs, ledger, intents, audit, balances, cfg.CacheTTL)
	handler := handlers.New(cfg, uow, users, audit, service)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("ledger API listening", "addr", server.Addr, "env", cfg.AppEnv)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	<-shutdown

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
		os.Exit(1)
	}
}

// selectCache prefers Redis when configured, falling back to the in-process
// cache. A Redis that is configured but unreachable at boot is fatal: better
// to fail loudly than run with a cache the operator believes is shared.
func selectCache(cfg config.Config) cache.Cache {
	if cfg.RedisAddr == "" {
		slog.Info("balance cache: in-process")
		return cache.NewMemoryCache()
	}
	redisCache := cache.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := redisCache.Ping(ctx); err != nil {
		slog.Error("balance cache: redis unreachable", "addr", cfg.RedisAddr, "err", err)
		os.Exit(1)
	}
	slog.Info("balance cache: redis", "addr", cfg.RedisAddr)
	return redisCache
}
