package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"auth-api/internal/domain"
)

// RefreshTokenRepository persiste refresh tokens de apps revocables.
type RefreshTokenRepository interface {
	// Replace inserta el token reemplazando cualquier otro del mismo (UserID, AppID).
	Replace(ctx context.Context, token domain.RefreshToken) error
	FindByUserID(ctx context.Context, userID, appID string) (domain.RefreshToken, error)
	FindByToken(ctx context.Context, token, appID string) (domain.RefreshToken, error)
	// DeleteByToken borra de forma atomica; false si otra peticion ya lo consumio.
	DeleteByToken(ctx context.Context, token, appID string) (bool, error)
	DeleteByUserID(ctx context.Context, userID, appID string) error
	DeleteAllForUser(ctx context.Context, userID string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type PgRefreshTokenRepository struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

func NewPgRefreshTokenRepository(pool *pgxpool.Pool) *PgRefreshTokenRepository {
	return &PgRefreshTokenRepository{
		pool: pool,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (r *PgRefreshTokenRepository) Replace(ctx context.Context, token domain.RefreshToken) error {
	const query = `
		INSERT INTO refresh_tokens (id, user_id, app_id, token, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, app_id) DO UPDATE
		SET id = EXCLUDED.id,
			token = EXCLUDED.token,
			expires_at = EXCLUDED.expires_at,
			created_at = EXCLUDED.created_at
	`
	_, err := r.pool.Exec(ctx, query,
		token.ID,
		token.UserID,
		token.AppID,
		token.Token,
		token.ExpiresAt,
		token.CreatedAt,
	)
	return translatePgError(err)
}

func (r *PgRefreshTokenRepository) FindByUserID(ctx context.Context, userID, appID string) (domain.RefreshToken, error) {
	const query = `
		SELECT id, user_id, app_id, token, expires_at, created_at
		FROM refresh_tokens
		WHERE user_id = $1 AND app_id = $2
	`
	return r.findLive(ctx, query, userID, appID)
}

func (r *PgRefreshTokenRepository) FindByToken(ctx context.Context, token, appID string) (domain.RefreshToken, error) {
	const query = `
		SELECT id, user_id, app_id, token, expires_at, created_at
		FROM refresh_tokens
		WHERE token = $1 AND app_id = $2
	`
	return r.findLive(ctx, query, token, appID)
}

// findLive devuelve ErrNotFound para tokens vencidos y los borra en el momento.
func (r *PgRefreshTokenRepository) findLive(ctx context.Context, query string, args ...any) (domain.RefreshToken, error) {
	var t domain.RefreshToken
	err := r.pool.QueryRow(ctx, query, args...).Scan(
		&t.ID,
		&t.UserID,
		&t.AppID,
		&t.Token,
		&t.ExpiresAt,
		&t.CreatedAt,
	)
	if err != nil {
		return domain.RefreshToken{}, translatePgError(err)
	}
	if t.Expired(r.now()) {
		if _, err := r.pool.Exec(ctx, `DELETE FROM refresh_tokens WHERE id = $1`, t.ID); err != nil {
			return domain.RefreshToken{}, err
		}
		return domain.RefreshToken{}, ErrNotFound
	}
	return t, nil
}

func (r *PgRefreshTokenRepository) DeleteByToken(ctx context.Context, token, appID string) (bool, error) {
	const query = `DELETE FROM refresh_tokens WHERE token = $1 AND app_id = $2 RETURNING id`
	var id string
	err := r.pool.QueryRow(ctx, query, token, appID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *PgRefreshTokenRepository) DeleteByUserID(ctx context.Context, userID, appID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM refresh_tokens WHERE user_id = $1 AND app_id = $2`, userID, appID)
	return err
}

func (r *PgRefreshTokenRepository) DeleteAllForUser(ctx context.Context, userID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM refresh_tokens WHERE user_id = $1`, userID)
	return err
}

func (r *PgRefreshTokenRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM refresh_tokens WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
