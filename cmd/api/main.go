package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"auth-api/internal/config"
	"auth-api/internal/db"
	"auth-api/internal/email"
	apihttp "auth-api/internal/http"
	"auth-api/internal/logging"
	"auth-api/internal/service"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogDev)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()

	stores, closeStores, err := db.OpenStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("open stores", zap.Error(err), zap.String("driver", cfg.StoreDriver))
	}
	defer closeStores()

	var emailSender email.Sender = email.NewLogSender(logger)
	if cfg.SMTPHost != "" {
		sender, err := email.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPFrom, cfg.SMTPFromName, cfg.SMTPUseTLS)
		if err != nil {
			logger.Warn("smtp sender init failed, otp codes will only be logged", zap.Error(err))
		} else {
			emailSender = sender
		}
	}

	exchange := service.NewMemoryExchangeStore()
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer redisClient.Close()
		ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := redisClient.Ping(ctxPing).Err(); err != nil {
			logger.Warn("redis ping failed, using in-memory exchange tokens", zap.Error(err))
		} else {
			exchange = service.NewRedisExchangeStore(redisClient)
		}
		cancel()
	}

	registry := service.NewAppRegistry(stores.Apps, cfg.AppRegistryTTL(), cfg.AppRegistryMissInterval(), logger)
	if err := registry.Reload(ctx); err != nil {
		logger.Warn("initial app registry load failed", zap.Error(err))
	}

	tokenSvc := service.NewTokenService(cfg.JWTSecret, cfg.JWTIssuer, cfg.AccessTTL(), cfg.RefreshTTL(), stores.Tokens, stores.Users)
	authSvc := service.NewAuthService(service.AuthDeps{
		Logger:      logger,
		Apps:        registry,
		Users:       stores.Users,
		Tokens:      stores.Tokens,
		TokenIssuer: tokenSvc,
		Hasher:      service.NewBcryptHasher(cfg.BcryptCost),
		Sender:      emailSender,
		Exchange:    exchange,
		OTPTTL:      cfg.OTPTTL(),
		ExchangeTTL: cfg.ExchangeTTL(),
	})

	router := apihttp.NewRouter(
		logger,
		registry,
		tokenSvc,
		apihttp.NewAuthHandler(logger, authSvc),
		apihttp.NewGoogleHandler(logger, authSvc),
	)

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("server shutdown", zap.Error(err))
		}
	}()

	logger.Info("starting server", zap.String("port", cfg.HTTPPort), zap.String("store", cfg.StoreDriver))

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server error", zap.Error(err))
	}
	logger.Info("server stopped")
}
