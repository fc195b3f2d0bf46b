package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"auth-api/internal/domain"
)

// AppRepository lee los registros de apps cliente; este servicio no los modifica.
type AppRepository interface {
	List(ctx context.Context) ([]domain.AppRegistration, error)
}

type PgAppRepository struct {
	pool *pgxpool.Pool
}

func NewPgAppRepository(pool *pgxpool.Pool) *PgAppRepository {
	return &PgAppRepository{pool: pool}
}

func (r *PgAppRepository) List(ctx context.Context) ([]domain.AppRegistration, error) {
	const query = `
		SELECT app_id, revocable, access_token_exp_mins, refresh_token_exp_days
		FROM auth_apps
		ORDER BY app_id
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var apps []domain.AppRegistration
	for rows.Next() {
		var app domain.AppRegistration
		if err := rows.Scan(
			&app.AppID,
			&app.Revocable,
			&app.AccessTokenMinutesExp,
			&app.RefreshTokenDaysExp,
		); err != nil {
			return nil, err
		}
		apps = append(apps, app)
	}
	return apps, rows.Err()
}
