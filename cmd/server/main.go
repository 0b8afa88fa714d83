package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/bellyrush/marketplace/internal/config"
	"github.com/bellyrush/marketplace/internal/db/repository"
	"github.com/bellyrush/marketplace/internal/events"
	"github.com/bellyrush/marketplace/internal/logger"
	"github.com/bellyrush/marketplace/internal/mailer"
	"github.com/bellyrush/marketplace/internal/models"
	"github.com/bellyrush/marketplace/internal/ratelimit"
	"github.com/bellyrush/marketplace/internal/router"
	"github.com/bellyrush/marketplace/internal/service"
	"github.com/bellyrush/marketplace/internal/storage"
	"github.com/bellyrush/marketplace/internal/websockets"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zl, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zl.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize storage
	repos, err := repository.Open(ctx, cfg.Database, zl)
	if err != nil {
		zl.Fatal("failed to open database", zap.String("driver", cfg.Database.Driver), zap.Error(err))
	}
	defer repos.Close(context.Background())

	limiter := newLimiter(ctx, cfg, zl)
	mail := newMailer(cfg.Mail, zl)

	images, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		zl.Fatal("failed to open image storage", zap.Error(err))
	}

	// Initialize WebSocket hub and event publishers
	hub := websockets.NewHub(zl)
	go hub.Run(ctx)

	publishers := events.Multi{hub}
	if len(cfg.Kafka.Brokers) > 0 {
		k := events.NewKafka(cfg.Kafka.Brokers, cfg.Kafka.Topic, zl)
		defer k.Close()
		publishers = append(publishers, k)
		zl.Info("publishing order events to kafka", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}

	// Initialize services
	tokens := service.NewTokenService(cfg.JWT.Secret, cfg.JWT.TTL())
	deps := service.AccountDeps{
		Accounts: repos.Accounts,
		Hasher:   service.NewPasswordHasher(cfg.Security.PasswordCost),
		OTP:      service.NewOTPIssuer(cfg.Security.OTPTTL()),
		Tokens:   tokens,
		Mailer:   mail,
		Limiter:  limiter,
		Images:   images,
		Log:      zl,
	}
	accounts := make(map[models.Role]*service.AccountService)
	for _, role := range models.Roles() {
		accounts[role] = service.NewAccountService(role, deps)
	}

	svc := router.Services{
		Accounts: accounts,
		Tokens:   tokens,
		Menus:    service.NewMenuService(repos.Menus, repos.Accounts, images),
		Orders:   service.NewOrderService(repos.Orders, repos.Menus, repos.Accounts, publishers, zl),
		Admin:    service.NewAdminService(repos),
	}

	opts := router.Options{
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	}
	if cfg.Storage.Driver == config.StorageLocal {
		opts.UploadsDir = cfg.Storage.LocalDir
	}

	// Initialize router
	r := router.New(repos, svc, hub, opts, zl)

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      r.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in a goroutine
	go func() {
		zl.Info("server starting", zap.String("address", cfg.Server.Address), zap.String("database", cfg.Database.Driver))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Fatal("failed to start server", zap.Error(err))
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()
	zl.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zl.Error("server forced to shutdown", zap.Error(err))
	}

	// let registration mails already handed off finish
	for _, a := range accounts {
		a.Wait()
	}

	zl.Info("server exited properly")
}

// newLimiter shares OTP attempt counters through redis when configured
func newLimiter(ctx context.Context, cfg *config.Config, zl *zap.Logger) ratelimit.Limiter {
	attempts := cfg.Security.OTPAttemptsPerHour
	if cfg.Redis.Addr == "" {
		m := ratelimit.NewMemory(attempts, time.Hour)
		go m.Run(ctx, 10*time.Minute)
		return m
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		zl.Fatal("failed to connect to redis", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
	}
	zl.Info("connected to redis", zap.String("addr", cfg.Redis.Addr))
	return ratelimit.NewRedis(client, "otp", attempts, time.Hour)
}

func newMailer(cfg config.Mail, zl *zap.Logger) mailer.Mailer {
	if cfg.Provider != config.MailBrevo {
		zl.Warn("mail provider is log, verification codes are only written to the log")
		return mailer.NewLog(zl)
	}
	return mailer.NewBreaker(mailer.NewBrevo(cfg.APIKey, cfg.SenderEmail, cfg.SenderName), 5, 30*time.Second, zl)
}

