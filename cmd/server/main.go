package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"callinsight-backend/internal/config"
	"callinsight-backend/internal/database"
	"callinsight-backend/internal/handlers"
	"callinsight-backend/internal/identity"
	"callinsight-backend/internal/logger"
	"callinsight-backend/internal/middleware"
	"callinsight-backend/internal/repository"
	"callinsight-backend/internal/router"
	"callinsight-backend/internal/services"
	"callinsight-backend/internal/storage"
	"callinsight-backend/internal/tracing"
)

func main() {
	// ──── Step 1: Load Environment Variables ────
	cfg := config.Load()
	log := logger.New(cfg.Env, cfg.LogLevel)
	log.Info("Starting CallInsight backend...")

	shutdownTracer, err := tracing.InitTracer(tracing.Config{
		ServiceName: "callinsight-backend",
		Environment: cfg.Env,
		Endpoint:    cfg.OTLPEndpoint,
	})
	if err != nil {
		log.WithError(err).Fatal("tracing initialization failed")
	}

	// ──── Step 2: Initialize PostgreSQL Connection Pool ────
	pool, err := database.NewPostgresPool(cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).Fatal("PostgreSQL connection failed")
	}
	defer pool.Close()
	log.Info("PostgreSQL connected")

	// ──── Step 3: Initialize Redis Client ────
	rdb, err := database.NewRedisClient(cfg.RedisURL)
	if err != nil {
		log.WithError(err).Fatal("Redis connection failed")
	}
	defer rdb.Close()
	log.Info("Redis connected")

	// ──── Step 4: Run Database Migrations ────
	if err := database.RunMigrations(pool, "migrations", log); err != nil {
		log.WithError(err).Fatal("database migration failed")
	}

	// ──── Initialize Repositories ────
	activityRepo := repository.NewActivityRepo(pool)
	profileRepo := repository.NewProfileRepo(pool)
	analysisRepo := repository.NewAnalysisRepo(pool)
	customerRepo := repository.NewCustomerRepo(pool)
	cachedProfiles := repository.NewCachedProfiles(profileRepo, rdb, cfg.CallerCacheTTL)
	keyStore := repository.NewKeyStore(rdb)

	// ──── Step 5: External Clients ────
	idp := identity.NewClient(cfg.IdentityURL, cfg.IdentityServiceKey)
	if cfg.IdentityURL == "" {
		log.Warn("IDENTITY_URL not set, admin user provisioning is disabled")
	}

	var objects *storage.GCSStore
	if cfg.GCSBucket != "" {
		objects, err = storage.NewGCSStore(context.Background(), cfg.GCSBucket, cfg.GCSPublicBaseURL)
		if err != nil {
			log.WithError(err).Warn("object storage unavailable, uploads are disabled")
			objects = nil
		} else {
			defer objects.Close()
			log.WithField("bucket", cfg.GCSBucket).Info("Object storage ready")
		}
	}

	// ──── Initialize Services ────
	authenticator := middleware.NewAuthenticator(cfg.JWTSecret, cachedProfiles)
	emailService := services.NewEmailService(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPFrom, cfg.FrontendURL, log)
	activityService := services.NewActivityService(activityRepo, keyStore, log)
	statsService := services.NewStatsService(activityRepo, profileRepo, cfg.ReportLocation)
	anomalyService := services.NewAnomalyService(activityRepo, profileRepo)
	usageService := services.NewUsageService(activityRepo, profileRepo, cfg.ReportLocation)
	analysisService := services.NewAnalysisService(analysisRepo)
	userService := services.NewUserService(idp, profileRepo, cachedProfiles, log)

	// ──── Initialize Handlers ────
	activityHandler := handlers.NewActivityHandler(activityService, statsService, anomalyService, usageService, cfg.ReportLocation, log)
	analysisHandler := handlers.NewAnalysisHandler(analysisService, log)
	customerHandler := handlers.NewCustomerHandler(customerRepo, log)
	userHandler := handlers.NewUserHandler(userService, log)
	uploadHandler := handlers.NewUploadHandler(objects, cfg.UploadMaxBytes, cfg.UploadTimeout, log)

	// ──── Step 6: Start Background Jobs ────
	scheduler := services.NewScheduler(
		activityRepo,
		anomalyService,
		profileRepo,
		emailService,
		keyStore,
		services.SchedulerConfig{
			SessionMaxAge:  cfg.SessionMaxAge,
			DigestInterval: cfg.AnomalyDigestInterval,
		},
		log,
	)
	scheduler.Start()
	log.Info("Scheduler started")

	// ──── Step 7: Start HTTP Server ────
	r := router.New(
		authenticator,
		activityHandler,
		analysisHandler,
		customerHandler,
		userHandler,
		uploadHandler,
		log,
		cfg.FrontendURL,
	)

	// Uploads stream whole recordings, so reads and writes get the upload budget on top.
	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  15*time.Second + cfg.UploadTimeout,
		WriteTimeout: 15*time.Second + cfg.UploadTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Info("Shutting down...")
		scheduler.Stop()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			log.WithError(err).Error("server shutdown failed")
		}
		if err := shutdownTracer(ctx); err != nil {
			log.WithError(err).Error("tracer shutdown failed")
		}
	}()

	log.WithField("port", cfg.Port).Infof("CallInsight backend ready on http://localhost:%s/api/v1", cfg.Port)

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.WithError(err).Fatal("server error")
	}
}
