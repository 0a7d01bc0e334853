// Command worker delivers queued emails.
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

	"github.com/redmonkez12/go-shortener-api/internal/config"
	"github.com/redmonkez12/go-shortener-api/internal/email"
	"github.com/redmonkez12/go-shortener-api/internal/logging"
	"github.com/redmonkez12/go-shortener-api/internal/queue"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Worker error: %v", err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := logging.NewLogger(cfg.Server.IsDevelopment())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer client.Close()

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	err = client.Ping(pingCtx).Err()
	cancel()
	if err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}

	var sender email.Sender
	if cfg.Email.SMTPConfigured() {
		sender = email.NewSMTPSender(cfg.Email)
	} else {
		logger.Warn("SMTP_HOST not set, emails will only be logged")
		sender = email.NewLogSender(logger)
	}

	worker := queue.NewWorker(queue.NewQueue(client, cfg.Email.QueueKey), logger, queue.DefaultPollTimeout)
	worker.Handle(email.JobType, email.NewJobHandler(
		email.NewRenderer(cfg.Auth.VerificationTokenDuration, cfg.Auth.ResetTokenDuration),
		sender,
	))

	return worker.Run(ctx)
}
