package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"tezgahpos/internal/cache"
	"tezgahpos/internal/config"
	"tezgahpos/internal/domain"
	"tezgahpos/internal/events"
	"tezgahpos/internal/httpapi"
	"tezgahpos/internal/rates"
	"tezgahpos/internal/service"
	"tezgahpos/internal/store"
	pgstore "tezgahpos/internal/store/postgres"
	sqlitestore "tezgahpos/internal/store/sqlite"
	"tezgahpos/internal/worker"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg := config.Load()
	if err := validateSecurityConfig(cfg); err != nil {
		logger.Fatalf("invalid security configuration: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 3)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(cfg.DatabaseURL)
		if err != nil {
			logger.Fatalf("postgres unavailable (%v) and DATABASE_URL is set; refusing to start", err)
		}
		repo = pg
		closers = append(closers, pg.Close)
		logger.Info("repository: postgres")
	} else {
		lite, err := sqlitestore.New(cfg.DatabasePath)
		if err != nil {
			logger.Fatalf("open sqlite database %s: %v", cfg.DatabasePath, err)
		}
		repo = lite
		closers = append(closers, lite.Close)
		logger.WithField("path", cfg.DatabasePath).Info("repository: sqlite")
	}

	rateCache := cache.RateCache(cache.NoopRateCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisRateCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			logger.Warnf("redis unavailable (%v), using noop rate cache", err)
		} else {
			rateCache = redisCache
			closers = append(closers, redisCache.Close)
			logger.Info("rate cache: redis")
		}
	} else {
		logger.Info("rate cache: noop")
	}

	hub := events.NewHub(cfg.AllowedOrigin, logger)
	closers = append(closers, hub.Close)

	svc := service.New(repo, logger, hub)

	if err := bootstrapAdmin(ctx, svc, cfg.SeedAdminPassword); err != nil {
		logger.Fatalf("bootstrap admin account: %v", err)
	}

	pool := worker.NewPool(cfg.WorkerPoolSize, logger)
	pool.Start(context.Background())

	updater := rates.NewUpdater(
		rates.NewClient(cfg.RatesURL),
		svc,
		rateCache,
		time.Duration(cfg.RateCacheTTLMinutes)*time.Minute,
		logger,
	)
	pool.Submit(func(jobCtx context.Context) (any, error) {
		return updater.Run(jobCtx)
	}, nil)

	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, repo)
	api := httpapi.New(svc, auth, hub, pool, updater, cfg.AllowedOrigin, logger)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Infof("POS backend listening on %s", cfg.Address())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("shutdown error: %v", err)
	}

	pool.Stop()

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			logger.Warnf("close error: %v", err)
		}
	}

	logger.Info("server stopped")
}

// bootstrapAdmin creates the first admin account when the user table is
// empty. SEED_ADMIN_PASSWORD is only consulted on a fresh database.
func bootstrapAdmin(ctx context.Context, svc *service.Service, password string) error {
	adminCtx := service.WithActor(ctx, domain.Actor{Username: "system", Role: "admin"})

	users, err := svc.ListUsers(adminCtx)
	if err != nil {
		return err
	}
	if len(users) > 0 {
		return nil
	}
	if password == "" {
		return fmt.Errorf("no users exist and SEED_ADMIN_PASSWORD is not set")
	}

	_, err = svc.CreateUser(adminCtx, domain.UserCreateRequest{
		Username: "admin",
		Password: password,
		FullName: "Administrator",
		Role:     "admin",
	})
	return err
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	return nil
}
