package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/dentalclinic/clinic/internal/config"
	"github.com/dentalclinic/clinic/internal/domain/reporting"
	"github.com/dentalclinic/clinic/internal/domain/scheduling"
	"github.com/dentalclinic/clinic/internal/platform/auth"
	"github.com/dentalclinic/clinic/internal/platform/db"
	"github.com/dentalclinic/clinic/internal/platform/document"
	"github.com/dentalclinic/clinic/internal/platform/i18n"
	"github.com/dentalclinic/clinic/internal/platform/metrics"
	"github.com/dentalclinic/clinic/internal/platform/middleware"
	"github.com/dentalclinic/clinic/internal/platform/summary"
	"github.com/dentalclinic/clinic/internal/platform/validation"
)

// app holds the services shared by the HTTP server and the offline commands.
type app struct {
	scheduling *scheduling.Service
	reporting  *reporting.Service
	metrics    *metrics.Metrics
	closers    []func()
}

// newApp wires the Postgres-backed services and the report collaborators.
func newApp(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, logger zerolog.Logger) (*app, error) {
	a := &app{metrics: metrics.New()}
	a.scheduling = newScheduling(cfg, pool, a.metrics, logger)

	summarizer := a.newSummarizer(ctx, cfg, logger)
	tmpl, err := document.LoadTemplate(cfg.ReportTemplate)
	if err != nil {
		a.Close()
		return nil, err
	}
	conv, err := document.NewConverter(cfg.PDFConverter, cfg.PandocPath, cfg.PandocPDFEngine)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.reporting, err = reporting.NewService(a.scheduling, reporting.Config{
		Summarizer:     summarizer,
		SummaryTimeout: cfg.SummaryTimeout,
		Template:       tmpl,
		Converter:      conv,
		Dates:          i18n.NewDateFormatter(cfg.DefaultLocale),
		TempDir:        cfg.ReportTempDir,
		Measures:       reporting.NewMeasureRunnerPG(pool),
		Metrics:        a.metrics,
	}, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func newScheduling(cfg *config.Config, pool *pgxpool.Pool, m *metrics.Metrics, logger zerolog.Logger) *scheduling.Service {
	return scheduling.NewService(
		scheduling.NewPractitionerRepoPG(pool),
		scheduling.NewAppointmentRepoPG(pool),
		db.NewTransactor(pool),
		cfg.PractitionerResolution,
		m,
		logger,
	)
}

// newSummarizer returns the chat-completion summarizer, memoized in Redis
// when REDIS_URL is set and in process memory otherwise. An unreachable Redis
// falls back to the memory cache.
func (a *app) newSummarizer(ctx context.Context, cfg *config.Config, logger zerolog.Logger) summary.Summarizer {
	s := summary.NewOpenAI(summary.OpenAIConfig{
		APIKey:       cfg.OpenAIAPIKey,
		BaseURL:      cfg.OpenAIBaseURL,
		Model:        cfg.SummaryModel,
		SystemPrompt: cfg.SummarySystemPrompt,
		MaxTokens:    cfg.SummaryMaxTokens,
	})
	if !cfg.SummaryEnabled() {
		logger.Info().Msg("OPENAI_API_KEY not set; reports use the fallback summary")
		return s
	}
	if cfg.SummaryCacheTTL <= 0 {
		return s
	}

	var cache summary.Cache = summary.NewMemoryCache()
	if cfg.RedisURL != "" {
		client, err := summary.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Warn().Err(err).Msg("redis unavailable; caching summaries in memory")
		} else {
			a.closers = append(a.closers, func() { client.Close() })
			cache = summary.NewRedisCache(client)
			logger.Info().Msg("caching summaries in redis")
		}
	}
	return summary.NewCached(s, cache, cfg.SummaryCacheTTL, logger)
}

// Close releases the app's clients in reverse order of creation.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// authMiddleware verifies bearer tokens when a secret is configured and
// otherwise admits every caller as admin.
func authMiddleware(cfg *config.Config) echo.MiddlewareFunc {
	if cfg.AuthEnabled() {
		return auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			SigningKey: []byte(cfg.AuthJWTSecret),
		})
	}
	return auth.DevAuthMiddleware()
}

// newEcho builds the router. dbHealth may be nil when no pool is available.
func newEcho(cfg *config.Config, a *app, dbHealth echo.HandlerFunc, limiter *middleware.RateLimiter, logger zerolog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = validation.New()

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.Metrics(a.metrics))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.Sanitize(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:  cfg.CORSOrigins,
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:  []string{echo.HeaderAuthorization, echo.HeaderContentType, middleware.RequestIDHeader, "Accept-Language"},
		ExposeHeaders: []string{echo.HeaderContentDisposition, middleware.RequestIDHeader},
	}))
	e.Use(middleware.BodyLimit(cfg.UploadMaxSize))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout, "/metrics"))

	// Health, metrics and the API document stay outside auth and rate limiting.
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	if dbHealth != nil {
		e.GET("/health/db", dbHealth)
	}
	if cfg.MetricsEnabled {
		e.GET("/metrics", echo.WrapHandler(a.metrics.Handler()))
	}
	apiDocs().RegisterRoutes(e)

	guard := []echo.MiddlewareFunc{middleware.RateLimit(limiter), authMiddleware(cfg), middleware.Audit(logger)}
	api := e.Group("/api/v1", guard...)
	// The original unversioned paths share the same guards, attached per
	// route so unknown root paths still answer 404.
	legacy := middleware.Guard(e, guard...)

	scheduling.NewHandler(a.scheduling).RegisterRoutes(api, legacy)
	reporting.NewHandler(a.reporting).RegisterRoutes(api, legacy)

	return e
}

func runServer() error {
	cfg, logger, err := bootstrap()
	if err != nil {
		return err
	}
	if !cfg.AuthEnabled() {
		logger.Warn().Msg("AUTH_JWT_SECRET not set; API requests are not authenticated")
	}

	// Database
	ctx := context.Background()
	pool, err := openPool(ctx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to connect to database")
		return err
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	a, err := newApp(ctx, cfg, pool, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	bg, cancel := context.WithCancel(ctx)
	defer cancel()
	limiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	go limiter.Cleanup(bg, time.Minute, 10*time.Minute)

	e := newEcho(cfg, a, db.HealthHandler(pool, logger), limiter, logger)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("converter", cfg.PDFConverter).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
