package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/karinehei/TherapyCare/internal/config"
	"github.com/karinehei/TherapyCare/internal/domain/account"
	"github.com/karinehei/TherapyCare/internal/domain/appointment"
	"github.com/karinehei/TherapyCare/internal/domain/auditevent"
	"github.com/karinehei/TherapyCare/internal/domain/clinic"
	"github.com/karinehei/TherapyCare/internal/domain/directory"
	"github.com/karinehei/TherapyCare/internal/domain/patient"
	"github.com/karinehei/TherapyCare/internal/domain/referral"
	"github.com/karinehei/TherapyCare/internal/platform/audit"
	"github.com/karinehei/TherapyCare/internal/platform/auth"
	"github.com/karinehei/TherapyCare/internal/platform/db"
	"github.com/karinehei/TherapyCare/internal/platform/metrics"
	"github.com/karinehei/TherapyCare/internal/platform/middleware"
)

const version = "0.1.0"

// services is the wired application graph. The seed command reuses it.
type services struct {
	audit       *audit.Logger
	accounts    *account.Service
	clinics     *clinic.Service
	directory   *directory.Service
	referrals   *referral.Service
	patients    *patient.Service
	appointment *appointment.Service
	auditEvents *auditevent.Service
}

func newServices(pool *pgxpool.Pool, logger zerolog.Logger, collector *metrics.Collector) *services {
	tx := db.NewTxManager(pool)
	store := audit.NewStorePG(pool)
	auditLog := audit.NewLogger(store, audit.NewDefaultSanitizer(), logger,
		audit.WithCounter(collector.AuditEventsTotal))

	userRepo := account.NewUserRepoPG(pool)
	clinicRepo := clinic.NewClinicRepoPG(pool)
	membershipRepo := clinic.NewMembershipRepoPG(pool)
	profileRepo := directory.NewProfileRepoPG(pool)
	slotRepo := directory.NewSlotRepoPG(pool)
	referralRepo := referral.NewRepoPG(pool)
	patientRepo := patient.NewRepoPG(pool)
	appointmentRepo := appointment.NewRepoPG(pool)

	accounts := account.NewService(userRepo, tx, auditLog)
	materializer := patient.NewMaterializer(patientRepo, auditLog,
		patient.WithCreatedCounter(collector.PatientsMaterialized))
	appointments := appointment.NewService(appointmentRepo, patientRepo, profileRepo, tx, auditLog,
		appointment.WithStatusCounter(collector.AppointmentsTotal))

	return &services{
		audit:     auditLog,
		accounts:  accounts,
		clinics:   clinic.NewService(clinicRepo, membershipRepo, accounts, tx, auditLog),
		directory: directory.NewService(profileRepo, slotRepo, clinicRepo, tx, auditLog),
		referrals: referral.NewService(referralRepo, clinicRepo, profileRepo, materializer, tx, auditLog,
			referral.WithTransitionCounter(collector.ReferralTransitions)),
		patients:    patient.NewService(patientRepo, referralRepo, appointments, accounts, tx, auditLog),
		appointment: appointments,
		auditEvents: auditevent.NewService(store, auditLog.Sanitizer()),
	}
}

func authMiddleware(cfg *config.Config) echo.MiddlewareFunc {
	if cfg.ResolvedAuthMode() == config.AuthModeDevelopment {
		return auth.DevAuthMiddleware(jwtConfig(cfg))
	}
	return auth.JWTMiddleware(jwtConfig(cfg))
}

// newServer builds the HTTP surface. pool is only touched by handlers, so
// the routing can be exercised without a database.
func newServer(cfg *config.Config, pool *pgxpool.Pool, logger zerolog.Logger, reg *prometheus.Registry) *echo.Echo {
	collector := metrics.NewCollector(cfg.MetricsNamespace, reg)
	svc := newServices(pool, logger, collector)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders(middleware.SecurityConfig{HSTS: cfg.IsProduction(), NoStorePrefix: "/api/"}))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))
	e.Use(echomw.BodyLimit("1M"))
	e.Use(collector.Middleware())
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	e.Use(authMiddleware(cfg))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok", "version": version})
	})
	e.GET("/health/db", db.HealthHandler(pool, func() *db.PoolStats {
		collector.ObservePool(pool)
		return db.GetPoolStats(pool)
	}))
	e.GET("/metrics", echo.WrapHandler(collector.Handler()))

	onLimited := func(echo.Context) { collector.RateLimited.Inc() }
	accountHandler := account.NewHandler(svc.accounts)

	apiV1 := e.Group("/api/v1")
	apiV1.Use(middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
		Skipper:           auth.AuthSkipper,
		OnLimited:         onLimited,
		IdleTTL:           10 * time.Minute,
	}))
	apiV1.Use(accountHandler.SyncUser())

	anonCreate := middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.AnonRateLimitRPS,
		BurstSize:         cfg.AnonRateLimitBurst,
		Skipper:           middleware.AnonymousOnly,
		OnLimited:         onLimited,
		IdleTTL:           10 * time.Minute,
	})

	accountHandler.RegisterRoutes(apiV1)
	clinic.NewHandler(svc.clinics).RegisterRoutes(apiV1)
	directory.NewHandler(svc.directory).RegisterRoutes(apiV1)
	referral.NewHandler(svc.referrals).RegisterRoutes(apiV1, anonCreate)
	patient.NewHandler(svc.patients).RegisterRoutes(apiV1)
	appointment.NewHandler(svc.appointment).RegisterRoutes(apiV1)
	auditevent.NewHandler(svc.auditEvents).RegisterRoutes(apiV1)

	return e
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx := context.Background()
	pool, err := openPool(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	e := newServer(cfg, pool, logger, prometheus.NewRegistry())

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	return serve(e, ":"+cfg.Port, stop, logger)
}

// serve runs e until stop fires, then drains in-flight requests.
func serve(e *echo.Echo, addr string, stop <-chan os.Signal, logger zerolog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Str("version", version).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-stop:
	}

	logger.Info().Msg("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}
