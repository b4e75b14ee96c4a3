package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/elanza/clinic/internal/config"
	"github.com/elanza/clinic/internal/domain/account"
	"github.com/elanza/clinic/internal/domain/booking"
	"github.com/elanza/clinic/internal/domain/catalog"
	"github.com/elanza/clinic/internal/domain/treatment"
	"github.com/elanza/clinic/internal/platform/apperr"
	"github.com/elanza/clinic/internal/platform/auth"
	"github.com/elanza/clinic/internal/platform/blobstore"
	"github.com/elanza/clinic/internal/platform/db"
	"github.com/elanza/clinic/internal/platform/events"
	"github.com/elanza/clinic/internal/platform/identity"
	"github.com/elanza/clinic/internal/platform/metrics"
	"github.com/elanza/clinic/internal/platform/middleware"
)

const version = "0.1.0"

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "clinic-server",
		Short:         "Clinic appointments API server",
		SilenceUsage:  true,
	}
	root.AddCommand(serveCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(retentionCmd())
	root.AddCommand(claimsCmd())
	root.AddCommand(tokenCmd())
	return root
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server and event consumers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	return logger.Level(level)
}

// newRedisClient returns nil when REDIS_URL is unset.
func newRedisClient(cfg *config.Config) (*redis.Client, error) {
	if cfg.RedisURL == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	return redis.NewClient(opts), nil
}

func newClaimsStore(client *redis.Client) identity.ClaimsStore {
	if client == nil {
		return identity.NewMemoryClaims()
	}
	return identity.NewRedisClaims(client)
}

func newEventBus(cfg *config.Config, client *redis.Client, logger zerolog.Logger, rec metrics.Recorder) events.Bus {
	if cfg.EventBus == "redis" && client != nil {
		host, _ := os.Hostname()
		if host == "" {
			host = "clinic-server"
		}
		return events.NewRedisBus(client, events.DefaultRedisBusConfig(host), logger, rec)
	}
	return events.NewMemoryBus(logger, rec)
}

func newBlobStore(cfg *config.Config) blobstore.Store {
	if cfg.BlobBackend == "http" {
		return blobstore.NewHTTPStore(cfg.BlobBaseURL, cfg.BlobBucket, cfg.BlobToken)
	}
	return blobstore.NewMemoryStore()
}

func authMiddleware(cfg *config.Config) echo.MiddlewareFunc {
	if cfg.IsDev() && cfg.AuthSigningKey == "" && cfg.AuthJWKSURL == "" {
		return auth.DevAuthMiddleware()
	}
	jwtCfg := auth.JWTConfig{
		Issuer:   cfg.AuthIssuer,
		Audience: cfg.AuthAudience,
		JWKSURL:  cfg.AuthJWKSURL,
	}
	if cfg.AuthSigningKey != "" {
		jwtCfg.SigningKey = []byte(cfg.AuthSigningKey)
	}
	return auth.JWTMiddleware(jwtCfg)
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}
	loc, _ := cfg.Location()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Database
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	rdb, err := newRedisClient(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure redis")
	}
	if rdb != nil {
		defer rdb.Close()
	}

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rec := metrics.NewCollector(reg)

	bus := newEventBus(cfg, rdb, logger, rec)
	blobs := newBlobStore(cfg)
	claims := newClaimsStore(rdb)
	tx := db.NewTxRunner(pool)

	// Repositories and services
	serviceRepo := catalog.NewRepoPG(pool)
	userRepo := account.NewUserRepoPG(pool)
	historyRepo := treatment.NewHistoryRepoPG(pool)

	catalogSvc := catalog.NewCatalog(serviceRepo, logger)
	orchestrator := booking.NewOrchestrator(booking.NewAppointmentRepoPG(pool), booking.NewScheduleRepoPG(pool),
		serviceRepo, rec, logger, loc)
	accountSvc := account.NewService(userRepo, claims, bus, logger)
	treatmentSvc := treatment.NewService(treatment.NewPackageRepoPG(pool), historyRepo, serviceRepo,
		blobs, tx, bus, logger, loc)

	// Background triggers
	syncer := account.NewClaimSyncer(userRepo, claims, rec, logger)
	retention := treatment.NewRetentionEngine(historyRepo, blobs, rec, logger, cfg.HistoryMaxEntries, cfg.HistoryMaxPhotos)
	bus.Subscribe(events.TopicUserWritten, "claim-sync", syncer.Handle)
	bus.Subscribe(events.TopicHistoryAppended, "retention", retention.Handle)

	busDone := make(chan struct{})
	go func() {
		defer close(busDone)
		if err := bus.Run(ctx); err != nil {
			logger.Error().Err(err).Msg("event bus stopped")
		}
	}()

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = apperr.HTTPErrorHandler(logger)
	e.Validator = middleware.NewValidator()

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit("1M", fmt.Sprintf("%d", blobstore.MaxFileSize+(1<<20))))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	checks := []db.Check{db.PoolCheck(pool)}
	if rdb != nil {
		checks = append(checks, db.Check{Name: "redis", Probe: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}
	e.GET("/health", db.HealthHandler(func() *db.PoolStats { return db.GetPoolStats(pool) }, checks...))
	e.GET("/version", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"version": version})
	})
	e.GET("/metrics", echo.WrapHandler(metrics.Handler(reg)))

	rateCfg := middleware.RateLimitConfig{RequestsPerSecond: cfg.RateLimitRPS, BurstSize: cfg.RateLimitBurst}
	if rateCfg.RequestsPerSecond <= 0 {
		rateCfg = middleware.DefaultRateLimitConfig()
	}
	limiter := middleware.NewRateLimiter(rateCfg)
	go func() {
		t := time.NewTicker(time.Minute)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if n := limiter.Sweep(); n > 0 {
					logger.Debug().Int("dropped", n).Msg("rate limiter sweep")
				}
			}
		}
	}()

	apiV1 := e.Group("/api/v1",
		middleware.RequestTimeout(30*time.Second, "/api/v1/admin/"),
		authMiddleware(cfg),
		limiter.Middleware(),
	)
	catalog.NewHandler(catalogSvc).RegisterRoutes(apiV1)
	booking.NewHandler(orchestrator).RegisterRoutes(apiV1)
	account.NewHandler(accountSvc).RegisterRoutes(apiV1)
	treatment.NewHandler(treatmentSvc).RegisterRoutes(apiV1)

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}
	<-busDone
	logger.Info().Msg("server stopped")
	return nil
}
