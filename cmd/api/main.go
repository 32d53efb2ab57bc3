package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/BradenHooton/vigil/internal/auth"
	"github.com/BradenHooton/vigil/internal/background"
	"github.com/BradenHooton/vigil/internal/config"
	"github.com/BradenHooton/vigil/internal/database"
	"github.com/BradenHooton/vigil/internal/detection"
	"github.com/BradenHooton/vigil/internal/handlers"
	"github.com/BradenHooton/vigil/internal/identity"
	middlewareCustom "github.com/BradenHooton/vigil/internal/middleware"
	"github.com/BradenHooton/vigil/internal/ratelimit"
	"github.com/BradenHooton/vigil/internal/repositories"
	"github.com/BradenHooton/vigil/internal/routes"
	"github.com/BradenHooton/vigil/internal/services"
	pkghttp "github.com/BradenHooton/vigil/pkg/http"
	pkglogger "github.com/BradenHooton/vigil/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.Server.LogLevel)}))
	slog.SetDefault(logger)
	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	startCtx, startCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startCancel()

	// Initialize database
	db, err := database.NewConnection(startCtx, &cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	if cfg.Database.RunMigrations {
		if err := database.Migrate(startCtx, &cfg.Database, logger); err != nil {
			logger.Error("failed to run migrations", slog.Any("error", err))
			os.Exit(1)
		}
	}

	// Initialize repositories
	visitorRepo := repositories.NewVisitorRepository(db)
	sessionRepo := repositories.NewSessionRepository(db)
	alertRepo := repositories.NewAlertRepository(db)
	digestRepo := repositories.NewDigestRepository(db)
	settingsRepo := repositories.NewAdminSettingsRepository(db)

	// Counter store: local only, or Redis with the local store behind a breaker
	localStore := ratelimit.NewMemoryStore()
	var store ratelimit.Store = localStore
	if cfg.RateLimit.Backend == "redis" {
		pingCtx, pingCancel := context.WithTimeout(startCtx, 2*time.Second)
		client, err := ratelimit.NewRedisClient(pingCtx, cfg.RateLimit.RedisURL, logger)
		pingCancel()
		if err != nil {
			logger.Error("invalid redis configuration", slog.Any("error", err))
			os.Exit(1)
		}
		defer client.Close()
		store = ratelimit.NewFallbackStore(ratelimit.NewRedisStore(client), localStore, cfg.RateLimit.RedisTimeout, logger)
	}

	limiter, err := ratelimit.NewLimiter(store, cfg.RateLimit.Enabled, logger,
		ratelimit.Policy{Name: ratelimit.PolicyLogin, Window: cfg.RateLimit.Login.Window, MaxRequests: cfg.RateLimit.Login.MaxRequests},
		ratelimit.Policy{Name: ratelimit.PolicyPasswordReset, Window: cfg.RateLimit.PasswordReset.Window, MaxRequests: cfg.RateLimit.PasswordReset.MaxRequests},
		ratelimit.Policy{Name: ratelimit.PolicyResetPassword, Window: cfg.RateLimit.ResetPassword.Window, MaxRequests: cfg.RateLimit.ResetPassword.MaxRequests},
		ratelimit.Policy{Name: ratelimit.PolicyTwoFactor, Window: cfg.RateLimit.TwoFactor.Window, MaxRequests: cfg.RateLimit.TwoFactor.MaxRequests},
		ratelimit.Policy{Name: ratelimit.PolicyLogVisit, Window: cfg.RateLimit.LogVisit.Window, MaxRequests: cfg.RateLimit.LogVisit.MaxRequests},
	)
	if err != nil {
		logger.Error("invalid rate limit policy", slog.Any("error", err))
		os.Exit(1)
	}

	lockout := ratelimit.NewLockoutTracker(ratelimit.LockoutConfig{
		MaxAttempts:     cfg.Lockout.MaxAttempts,
		AttemptWindow:   cfg.Lockout.AttemptWindow,
		LockoutDuration: cfg.Lockout.LockoutDuration,
	})

	// Initialize security primitives
	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.SessionExpiry)
	timingDelay := auth.NewTimingDelay(auth.TimingConfig{
		BaseDelayMs:    cfg.Auth.TimingDelayBaseMs,
		RandomDelayMs:  cfg.Auth.TimingDelayRandomMs,
		DelayOnSuccess: cfg.Auth.TimingDelayOnSuccess,
	})
	totpManager, err := auth.NewTOTPManager(cfg.TwoFactor.EncryptionKey, cfg.TwoFactor.Issuer)
	if err != nil {
		logger.Error("failed to initialize TOTP manager", slog.Any("error", err))
		os.Exit(1)
	}
	auditLogger := pkglogger.NewAuditLogger(logger)

	// Email: SES when enabled, otherwise log only
	var emailService services.EmailService
	if cfg.Email.Enabled {
		ses, err := services.NewAWSSESEmailService(startCtx,
			cfg.Email.AWSRegion,
			cfg.Email.FromAddress,
			cfg.Email.BaseURL,
			cfg.Email.AlertRecipient,
			logger,
		)
		if err != nil {
			logger.Error("failed to initialize email service", slog.Any("error", err))
			os.Exit(1)
		}
		emailService = ses
	} else {
		emailService = services.NewLogEmailService(logger, cfg.Server.Env)
	}

	alertEmitter := services.NewAlertEmitter(alertRepo, emailService, cfg.Tracking.AlertQueueSize, cfg.Tracking.AlertWorkers, logger)
	alertEmitter.Start()

	// Initialize services
	visitService := services.NewVisitService(
		detection.NewClassifier(),
		identity.NewHasher(cfg.Identity.IPSalt, cfg.Identity.UASalt),
		visitorRepo,
		sessionRepo,
		alertEmitter,
		cfg.Tracking.HistoryLimit,
		logger,
	)
	accountName := cfg.Auth.AdminEmail
	if accountName == "" {
		accountName = "admin"
	}
	mfaService := services.NewMFAService(settingsRepo, totpManager, cfg.TwoFactor.BackupCodeCount, accountName, auditLogger, logger)
	authService := services.NewAuthService(settingsRepo, mfaService, limiter, lockout, tokenManager, timingDelay,
		cfg.Auth.AdminPasswordHash, cfg.Server.Env, auditLogger, logger)
	resetService := services.NewPasswordResetService(settingsRepo, emailService, limiter,
		cfg.Auth.AdminEmail, cfg.Auth.AdminPasswordHash, cfg.Server.Env, cfg.Auth.ResetTokenExpiry, auditLogger, logger)
	alertService := services.NewAlertService(alertRepo)
	digestService := services.NewDigestService(digestRepo, logger)

	// Initialize handlers
	ipConfig := pkghttp.NewIPConfig(cfg.Server.TrustedProxies)
	cookieConfig := auth.CookieConfig{
		Secure:   cfg.Server.Env == "production",
		SameSite: "strict",
	}
	h := routes.Handlers{
		Auth:   handlers.NewAuthHandler(authService, resetService, ipConfig, cookieConfig, logger),
		MFA:    handlers.NewMFAHandler(mfaService, ipConfig, logger),
		Visits: handlers.NewVisitHandler(visitService, limiter, ipConfig, cfg.Tracking.InternalSecret, logger),
		Alerts: handlers.NewAlertHandler(alertService, digestService, logger),
		Health: handlers.NewHealthHandler(db),
	}

	visitTracker := middlewareCustom.NewVisitTracker(visitService, middlewareCustom.VisitTrackerConfig{
		IPConfig:         ipConfig,
		Cookies:          cookieConfig,
		SessionTTL:       cfg.Tracking.SessionCookieTTL,
		ExcludedPrefixes: []string{"/health", "/ready", "/metrics", "/auth/", "/api/", "/internal/"},
	}, logger)

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{
		Env:             cfg.Server.Env,
		NoStorePrefixes: []string{"/auth/", "/api/"},
	}))
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))
	router.Use(visitTracker.Middleware)

	routes.RegisterRoutes(router, h, tokenManager, routes.Throttling{
		Limiter:  limiter,
		IPConfig: ipConfig,
		PerIP:    middlewareCustom.RateLimitConfig{RequestsPerMinute: cfg.RateLimit.IPRequestsPerMinute},
	}, logger)

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start background jobs
	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()

	cleanupManager := background.NewCleanupManager(map[string]background.Sweeper{
		"counters":     localStore,
		"lockouts":     lockout,
		"reset_tokens": resetService,
	}, logger, cfg.Auth.CleanupInterval)
	digestScheduler := background.NewDigestScheduler(digestService, logger, cfg.Tracking.DigestInterval)

	go cleanupManager.Start(bgCtx)
	go digestScheduler.Start(bgCtx)

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	bgCancel()
	cleanupManager.Stop()
	digestScheduler.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
	}

	// Drain visit writes before the alert queue, since visits emit alerts
	visitTracker.Wait()
	alertEmitter.Stop()

	logger.Info("server stopped gracefully")
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
