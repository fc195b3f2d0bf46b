// Command sweep borra OTPs vencidos y refresh tokens expirados. Pensado para cron.
package main

import (
	"context"
	"log"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"auth-api/internal/config"
	"auth-api/internal/db"
	"auth-api/internal/logging"
	"auth-api/internal/service"
)

func main() {
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

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	stores, closeStores, err := db.OpenStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("open stores", zap.Error(err))
	}
	defer closeStores()

	tokenSvc := service.NewTokenService(cfg.JWTSecret, cfg.JWTIssuer, cfg.AccessTTL(), cfg.RefreshTTL(), stores.Tokens, stores.Users)
	authSvc := service.NewAuthService(service.AuthDeps{
		Logger:      logger,
		Apps:        service.NewAppRegistry(stores.Apps, cfg.AppRegistryTTL(), cfg.AppRegistryMissInterval(), logger),
		Users:       stores.Users,
		Tokens:      stores.Tokens,
		TokenIssuer: tokenSvc,
	})

	res, err := authSvc.SweepExpired(ctx)
	if err != nil {
		logger.Fatal("sweep failed", zap.Error(err))
	}
	logger.Info("sweep done",
		zap.Int64("otp_cleared", res.OTPCleared),
		zap.Int64("tokens_deleted", res.TokensDeleted),
	)
}
