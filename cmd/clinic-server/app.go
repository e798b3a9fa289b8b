package main

import (
	"context"
	crypto_rand "crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/clinicdesk/clinic/internal/config"
	"github.com/clinicdesk/clinic/internal/domain/dashboard"
	"github.com/clinicdesk/clinic/internal/domain/identity"
	"github.com/clinicdesk/clinic/internal/domain/notification"
	"github.com/clinicdesk/clinic/internal/domain/scheduling"
	"github.com/clinicdesk/clinic/internal/domain/settings"
	"github.com/clinicdesk/clinic/internal/platform/auth"
	"github.com/clinicdesk/clinic/internal/platform/db"
	"github.com/clinicdesk/clinic/internal/platform/lock"
	"github.com/clinicdesk/clinic/internal/platform/metrics"
	"github.com/clinicdesk/clinic/internal/platform/middleware"
)

const version = "0.1.0"

// DBPool is what the server needs from the database: queries,
// transactions and a liveness ping.
type DBPool interface {
	db.Pool
	db.Pinger
}

func newLogger(env, level string) zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if env == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return logger.Level(lvl)
}

// jwtSecret returns the configured secret, or a random per-process one in
// development.
func jwtSecret(cfg *config.Config, logger zerolog.Logger) (string, error) {
	if cfg.JWTSecret != "" {
		return cfg.JWTSecret, nil
	}
	if !cfg.IsDev() {
		return "", fmt.Errorf("JWT_SECRET is required")
	}
	buf := make([]byte, 32)
	if _, err := crypto_rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate dev secret: %w", err)
	}
	logger.Warn().Msg("JWT_SECRET not set; using a random development secret")
	return hex.EncodeToString(buf), nil
}

func openRedis(url string) (*redis.Client, error) {
	if url == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	return redis.NewClient(opts), nil
}

func poolConfig(cfg *config.Config) db.PoolConfig {
	return db.PoolConfig{URL: cfg.DatabaseURL, MaxConns: cfg.DBMaxConns, MinConns: cfg.DBMinConns}
}

// newApp wires every domain onto a fresh echo instance. rdb may be nil, in
// which case booking uses the in-process no-op lock and dashboard responses
// are not cached.
func newApp(cfg *config.Config, logger zerolog.Logger, pool DBPool, rdb redis.UniversalClient) (*echo.Echo, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	mode, err := scheduling.ParseOverlapMode(cfg.OverlapMode)
	if err != nil {
		return nil, err
	}
	secret, err := jwtSecret(cfg, logger)
	if err != nil {
		return nil, err
	}
	tokens := auth.NewTokenManager(secret, cfg.JWTIssuer, cfg.JWTAccessTTL, cfg.JWTRefreshTTL)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	httpMetrics := metrics.NewHTTPMetrics(reg)
	bookingMetrics := metrics.NewBookingMetrics(reg)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.ErrorHandler(logger)

	// Global middleware
	e.Use(middleware.Recovery(logger, httpMetrics.CountPanic))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders(cfg.IsProduction()))
	e.Use(echomw.BodyLimit("1M"))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
	}))
	e.Use(httpMetrics.Middleware())
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout, "/metrics"))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok", "version": version})
	})
	checks := map[string]db.Check{}
	if rdb != nil {
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}
	e.GET("/health/ready", db.ReadinessHandler(pool, checks))
	e.GET("/metrics", metrics.Handler(reg))

	// Identity
	identitySvc := identity.NewService(
		identity.NewUserRepoPG(pool),
		identity.NewPatientRepoPG(pool),
		identity.NewDoctorRepoPG(pool),
		tokens, logger)
	directory := directoryAdapter{svc: identitySvc}

	// Notifications
	notifySvc := notification.NewService(notification.NewRepoPG(pool), notification.NewTemplateEngine(), logger)

	// Scheduling
	var locker lock.Locker = lock.Nop{}
	var cache dashboard.Cache
	if rdb != nil {
		locker = lock.NewRedis(rdb, cfg.BookingLockTTL, cfg.BookingLockTTL)
		if cfg.DashboardCacheTTL > 0 {
			cache = dashboard.NewRedisCache(rdb, cfg.DashboardCacheTTL)
		}
	}
	apptRepo := scheduling.NewAppointmentRepoPG(pool)
	validator := scheduling.NewValidator(apptRepo, mode, bookingMetrics, logger)
	schedSvc := scheduling.NewService(apptRepo, directory, directory, validator, scheduling.ServiceOptions{
		EnforceTransitions: cfg.EnforceTransitions,
		Tx:                 db.NewTransactor(pool, db.Serializable),
		Locker:             locker,
		Metrics:            bookingMetrics,
		Notifier:           notifySvc,
		Logger:             &logger,
	})
	apptDir := scheduling.NewDirectory(apptRepo, identitySvc, loc)

	// API groups
	// One limiter for both groups; it keys by user once JWTMiddleware has run.
	limit := middleware.RateLimit(middleware.DefaultRateLimitConfig())
	apiV1 := e.Group("/api/v1")
	identityHandler := identity.NewHandler(identitySvc, tokens, logger)
	identityHandler.RegisterPublicRoutes(apiV1.Group("", limit))

	protected := apiV1.Group("", auth.JWTMiddleware(tokens), limit)
	identityHandler.RegisterRoutes(protected)
	scheduling.NewHandler(schedSvc, apptDir, logger).RegisterRoutes(protected)
	notification.NewHandler(notifySvc, logger).RegisterRoutes(protected)
	dashboard.NewHandler(apptDir, cache, logger).RegisterRoutes(protected)
	settings.NewHandler(settings.NewStorePG(pool), logger).RegisterRoutes(protected)

	logger.Info().
		Str("overlap_mode", string(mode)).
		Bool("enforce_transitions", cfg.EnforceTransitions).
		Bool("redis", rdb != nil).
		Str("timezone", loc.String()).
		Msg("routes registered")
	return e, nil
}
