package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	firebase "firebase.google.com/go/v4"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"presence/internal/attendance"
	"presence/internal/auth"
	"presence/internal/cloudinary"
	"presence/internal/config"
	"presence/internal/httpapi"
	"presence/internal/identity"
	"presence/internal/logging"
	"presence/internal/metrics"
	"presence/internal/platform"
	"presence/internal/queue"
	"presence/internal/statscache"
	"presence/internal/store"
	"presence/internal/vision"
)

func main() {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := run(cfg, logger); err != nil {
		logger.Fatal("http server failed", zap.Error(err))
	}
}

func run(cfg config.App, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var fb *firebase.App
	if platform.NeedsFirebase(cfg) {
		app, err := platform.OpenFirebase(ctx, cfg)
		if err != nil {
			return err
		}
		fb = app
	}

	backend, storeHealthy, err := platform.OpenStore(ctx, cfg, fb, logger)
	if err != nil {
		return err
	}
	defer func() { _ = backend.Close() }()

	rdb := store.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	defer func() { _ = rdb.Close() }()
	if !rdb.Healthy(ctx) {
		logger.Warn("redis not reachable; logout, snapshots and the redis queue are degraded", zap.String("addr", cfg.RedisAddr))
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	blacklist := auth.NewBlacklist(rdb.Client)

	att := attendance.NewService(attendance.Clients{Store: backend, Logger: logger, Metrics: m})
	ident := identity.NewService(backend, identity.TokenConfig{
		Issuer:     cfg.JWTIssuer,
		SigningKey: cfg.JWTSigningKey,
		AccessTTL:  cfg.AccessTTL,
		RefreshTTL: cfg.RefreshTTL,
	}, blacklist, logger)

	if cfg.AdminEmail != "" {
		if _, err := ident.EnsureAdmin(ctx, cfg.AdminEmail, cfg.AdminPassword); err != nil {
			return fmt.Errorf("bootstrap admin: %w", err)
		}
	}

	verifiers := auth.Chain{auth.LocalVerifier{SigningKey: cfg.JWTSigningKey, Issuer: cfg.JWTIssuer, Revoker: blacklist}}
	if cfg.FirebaseAuth {
		fbAuth, err := fb.Auth(ctx)
		if err != nil {
			return err
		}
		verifiers = append(verifiers, auth.FirebaseVerifier{Client: fbAuth, Profiles: ident.Lookup})
		logger.Info("firebase id tokens accepted")
	}

	vis := vision.New(cfg.VisionURL, cfg.VisionAPIKey, cfg.VisionSkip)
	vis.Logger = logger
	vis.Metrics = m

	visionHealthy := func(ctx context.Context) bool { return vis.Health(ctx) == nil }

	q := platform.OpenQueue(cfg, rdb, logger)
	snapshots := statscache.New(rdb.Client, cfg.StatsSnapshotTTL)

	deps := httpapi.Deps{
		Attendance:      att,
		Identity:        ident,
		Verifier:        verifiers,
		Vision:          vis,
		Queue:           q,
		Snapshots:       snapshots,
		Metrics:         m,
		Logger:          logger,
		RateLimitPerMin: cfg.RateLimitPerMin,
		CORSOrigins:     cfg.CORSOrigins,
		Checks: map[string]httpapi.HealthCheck{
			"store":  httpapi.HealthCheck(storeHealthy),
			"redis":  rdb.Healthy,
			"vision": visionHealthy,
		},
	}

	lc, err := platform.OpenLedger(cfg, logger)
	if err != nil {
		return err
	}
	if lc != nil {
		deps.Ledger = lc
	}

	if cfg.CloudinaryEnabled() {
		deps.Photos = cloudinary.New(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder)
		logger.Info("cloudinary configured", zap.String("cloud", cfg.CloudinaryCloudName))
	} else {
		logger.Info("cloudinary not configured; photo uploads disabled")
	}

	// The in-memory queue has no consumer outside this process.
	if _, ok := q.(*queue.InMemory); ok {
		r := &statscache.Refresher{Stats: att, Cache: snapshots, Log: logger.Named("refresher")}
		if lc != nil {
			r.Ledger = lc
		}
		go func() {
			if err := r.Run(ctx, q); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("in-process refresher stopped", zap.Error(err))
			}
		}()
	}

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      httpapi.NewRouter(deps),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", zap.String("addr", srv.Addr), zap.String("store", cfg.StoreBackend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server forced shutdown", zap.Error(err))
	}
	logger.Info("server exited")
	return nil
}
