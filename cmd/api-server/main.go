package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-care-scheduling/internal/api"
	"github.com/hackgods/clinic-care-scheduling/internal/appointment"
	"github.com/hackgods/clinic-care-scheduling/internal/audit"
	"github.com/hackgods/clinic-care-scheduling/internal/authz"
	"github.com/hackgods/clinic-care-scheduling/internal/availability"
	"github.com/hackgods/clinic-care-scheduling/internal/care"
	"github.com/hackgods/clinic-care-scheduling/internal/config"
	"github.com/hackgods/clinic-care-scheduling/internal/db"
	"github.com/hackgods/clinic-care-scheduling/internal/logging"
	"github.com/hackgods/clinic-care-scheduling/internal/metrics"
	"github.com/hackgods/clinic-care-scheduling/internal/notify"
	redisclient "github.com/hackgods/clinic-care-scheduling/internal/redis"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	logger, err := logging.New(cfg.Env)
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("api-server starting up",
		zap.String("env", cfg.Env),
		zap.String("http_port", cfg.HTTPPort),
		zap.String("timezone", cfg.Location.String()),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, cfg.PoolOptions())
	cancelPg()
	if err != nil {
		logger.Fatal("postgres connection error", zap.Error(err))
	}
	defer pgPool.Close()
	logger.Info("connected to Postgres")

	if cfg.AutoMigrate {
		if err := db.Migrate(rootCtx, pgPool); err != nil {
			logger.Fatal("migration error", zap.Error(err))
		}
		logger.Info("migrations applied")
	}

	// Connect Redis. Without it bookings still serialize on Postgres
	// advisory locks, so a missing Redis only degrades readiness.
	var (
		rdb    *redis.Client
		locker redisclient.Locker = redisclient.NopLocker{}
	)
	rdb, err = redisclient.NewRedisClient(rootCtx, cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		logger.Warn("redis unavailable, booking lock disabled", zap.Error(err))
	} else {
		defer func() {
			if err := rdb.Close(); err != nil {
				logger.Warn("error closing redis", zap.Error(err))
			}
		}()
		locker = redisclient.NewRedisLocker(rdb, cfg.LockTTL, cfg.LockWait)
		logger.Info("connected to Redis")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewSchedulingMetrics(reg)

	conn := db.NewTransactor(pgPool)
	notifier := notify.NewDispatcher(notify.NewPgSink(pgPool), logger, m)
	recorder := audit.NewRecorder(audit.NewPgLog(pgPool), logger, m)
	directory := authz.NewPgDirectory(pgPool)

	appointments := appointment.NewService(appointment.NewPgRepository(), conn, locker, cfg,
		appointment.WithLogger(logger),
		appointment.WithMetrics(m),
		appointment.WithNotifier(notifier),
	)
	windows := availability.NewService(availability.NewPgRepository(), conn, appointments, cfg,
		availability.WithLogger(logger),
		availability.WithAudit(recorder),
	)
	episodes := care.NewService(care.NewPgRepository(), conn, appointments, cfg,
		care.WithLogger(logger),
		care.WithMetrics(m),
		care.WithNotifier(notifier),
		care.WithAudit(recorder),
		care.WithCoordinators(directory),
	)

	router := api.NewRouter(api.RouterConfig{
		Availability:   windows,
		Appointments:   appointments,
		Care:           episodes,
		Authz:          authz.NewChecker(directory, authz.DefaultPolicy()),
		PgPool:         pgPool,
		Redis:          rdb,
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Logger:         logger,
		Env:            cfg.Env,
		Version:        version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-rootCtx.Done()

	logger.Info("shutting down api-server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}
