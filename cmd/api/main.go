package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	_ "github.com/redmonkez12/go-shortener-api/docs" // Swagger docs
	"github.com/redmonkez12/go-shortener-api/internal/auth"
	"github.com/redmonkez12/go-shortener-api/internal/config"
	"github.com/redmonkez12/go-shortener-api/internal/database"
	"github.com/redmonkez12/go-shortener-api/internal/email"
	httpServer "github.com/redmonkez12/go-shortener-api/internal/http"
	"github.com/redmonkez12/go-shortener-api/internal/logging"
	"github.com/redmonkez12/go-shortener-api/internal/onetime"
	"github.com/redmonkez12/go-shortener-api/internal/password"
	"github.com/redmonkez12/go-shortener-api/internal/queue"
	"github.com/redmonkez12/go-shortener-api/internal/ratelimit"
	"github.com/redmonkez12/go-shortener-api/internal/shortcode"
	"github.com/redmonkez12/go-shortener-api/internal/shorturl"
	"github.com/redmonkez12/go-shortener-api/internal/token"
	"github.com/redmonkez12/go-shortener-api/internal/user"
)

// @title           Shortener API
// @version         1.0
// @description     URL shortener with user accounts, email verification and password reset.

// @contact.name   API Support
// @contact.email  support@example.com

// @license.name  MIT
// @license.url   https://opensource.org/licenses/MIT

// @host      localhost:8080
// @BasePath  /

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and the access token.

func main() {
	if err := run(); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := logging.NewLogger(cfg.Server.IsDevelopment())
	logger.Info("starting application",
		"env", cfg.Server.Env,
		"port", cfg.Server.Port,
		"token_format", cfg.Auth.TokenFormat,
	)

	ctx := context.Background()

	db, err := database.Open(ctx, cfg.Database.ConnectionString())
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	if err := database.EnsureSchema(ctx, db); err != nil {
		return fmt.Errorf("failed to prepare schema: %w", err)
	}

	redisClient, err := initRedis(ctx, cfg.Redis)
	if err != nil {
		return fmt.Errorf("failed to initialize Redis: %w", err)
	}
	defer redisClient.Close()

	// Repositories
	userRepo := user.NewRepository(db)
	urlRepo := shorturl.NewRepository(db)

	var limiterOpts []ratelimit.Option
	if !cfg.RateLimit.Enabled {
		logger.Warn("rate limiting disabled")
		limiterOpts = append(limiterOpts, ratelimit.Disabled())
	}
	rateLimiter := ratelimit.NewLimiter(redisClient, cfg.RateLimit.Prefix, limiterOpts...)

	hasher, err := password.NewHasher(
		password.Algorithm(cfg.Auth.PasswordHashAlgorithm),
		password.WithBcryptCost(cfg.Auth.BcryptCost),
	)
	if err != nil {
		return fmt.Errorf("failed to initialize password hasher: %w", err)
	}

	tokenService, err := newTokenService(cfg.Auth)
	if err != nil {
		return fmt.Errorf("failed to initialize token service: %w", err)
	}

	// Emails are rendered and sent by cmd/worker
	emailQueue := queue.NewQueue(redisClient, cfg.Email.QueueKey)
	codes := onetime.NewManager(userRepo, email.NewQueueNotifier(emailQueue), logger, onetime.Config{
		FrontendURL:     cfg.Email.FrontendURL,
		VerificationTTL: cfg.Auth.VerificationTokenDuration,
		ResetTTL:        cfg.Auth.ResetTokenDuration,
	})

	authService := auth.NewService(userRepo, hasher, tokenService, codes, logger)
	if err := authService.EnsureAdmin(ctx, cfg.Admin.Email, cfg.Admin.Password); err != nil {
		return fmt.Errorf("failed to ensure admin account: %w", err)
	}

	generator, err := shortcode.NewGenerator(cfg.ShortURL.CodeLength)
	if err != nil {
		return fmt.Errorf("failed to initialize code generator: %w", err)
	}
	urlService := shorturl.NewService(
		urlRepo,
		generator,
		shorturl.NewValidator(cfg.ShortURL.BlockedDomains),
		cfg.ShortURL.MaxAttempts,
		logger,
	)

	router := httpServer.NewRouter(cfg, httpServer.Dependencies{
		Auth:           auth.NewHandler(authService, rateLimiter, logger),
		AuthMiddleware: auth.NewMiddleware(authService),
		URLs:           shorturl.NewHandler(urlService, cfg.ShortURL.BaseURL),
		Limiter:        rateLimiter,
		HealthChecks: map[string]httpServer.HealthCheck{
			"database": db.PingContext,
			"redis":    func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		},
	}, logger)

	server := httpServer.NewServer(
		":"+cfg.Server.Port,
		router,
		cfg.Server.ReadTimeout,
		cfg.Server.WriteTimeout,
		logger,
	)

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- server.Start()
	}()

	// Wait for interrupt signal or server error
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		logger.Info("received signal", "signal", sig.String())

		// Graceful shutdown with timeout
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// newTokenService picks the access token format from config
func newTokenService(cfg config.AuthConfig) (token.Service, error) {
	switch cfg.TokenFormat {
	case "paseto":
		return token.NewPasetoService(cfg.PasetoKey, cfg.AccessTokenDuration)
	default:
		return token.NewJWTService(cfg.JWTSecret, cfg.AccessTokenDuration)
	}
}

// initRedis initializes the Redis connection and returns a Redis client
func initRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return client, nil
}
