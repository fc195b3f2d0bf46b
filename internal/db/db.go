package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"auth-api/internal/config"
)

// NewPool construye y devuelve un pool de conexiones configurado.
func NewPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 1
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 30 * time.Second
	poolCfg.ConnConfig.ConnectTimeout = 5 * time.Second

	return pgxpool.NewWithConfig(ctx, poolCfg)
}

// Ping verifica conectividad con la base de datos.
func Ping(ctx context.Context, pool *pgxpool.Pool) error {
	return pool.Ping(ctx)
}

// Las restricciones de unicidad por app viven aqui: el servicio puede correr en varias
// replicas y no hay locks en proceso.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS auth_apps (
		app_id TEXT PRIMARY KEY,
		revocable BOOLEAN NOT NULL DEFAULT FALSE,
		access_token_exp_mins INTEGER NOT NULL DEFAULT 0,
		refresh_token_exp_days INTEGER NOT NULL DEFAULT 0
	);`,
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		app_id TEXT NOT NULL,
		username TEXT,
		slug TEXT,
		email TEXT,
		phone TEXT,
		password_hash TEXT,
		role TEXT NOT NULL DEFAULT 'user',
		ref_id TEXT,
		provider TEXT,
		picture TEXT,
		otp_hash TEXT,
		otp_expires_at TIMESTAMPTZ,
		tmp_field TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT users_identity_present CHECK (
			username IS NOT NULL OR email IS NOT NULL OR phone IS NOT NULL
		)
	);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS users_app_slug_unique_idx
		ON users (app_id, slug) WHERE slug IS NOT NULL;`,
	`CREATE UNIQUE INDEX IF NOT EXISTS users_app_email_unique_idx
		ON users (app_id, email) WHERE email IS NOT NULL;`,
	`CREATE UNIQUE INDEX IF NOT EXISTS users_app_phone_unique_idx
		ON users (app_id, phone) WHERE phone IS NOT NULL;`,
	`CREATE UNIQUE INDEX IF NOT EXISTS users_app_ref_provider_unique_idx
		ON users (app_id, ref_id, provider) WHERE ref_id IS NOT NULL;`,
	`CREATE INDEX IF NOT EXISTS users_app_tmp_field_idx
		ON users (app_id, tmp_field) WHERE tmp_field IS NOT NULL;`,
	`CREATE INDEX IF NOT EXISTS users_otp_expires_idx
		ON users (otp_expires_at) WHERE otp_expires_at IS NOT NULL;`,
	`CREATE TABLE IF NOT EXISTS refresh_tokens (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		app_id TEXT NOT NULL,
		token TEXT NOT NULL,
		expires_at TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS refresh_tokens_user_app_unique_idx
		ON refresh_tokens (user_id, app_id);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS refresh_tokens_token_unique_idx
		ON refresh_tokens (token);`,
}

// Migrate aplica el esquema de forma idempotente.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range migrations {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply migrations: %w", err)
		}
	}
	return nil
}
