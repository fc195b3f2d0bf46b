package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"auth-api/internal/domain"
)

// LookupField es el conjunto cerrado de columnas por las que se resuelve una identidad.
type LookupField int

const (
	LookupSlug LookupField = iota
	LookupEmail
	LookupPhone
	LookupRefID
)

func (f LookupField) String() string {
	switch f {
	case LookupEmail:
		return "email"
	case LookupPhone:
		return "phone"
	case LookupRefID:
		return "ref_id"
	default:
		return "slug"
	}
}

// MatchesTmpField indica si la busqueda tambien considera el contacto pendiente de confirmar.
func (f LookupField) MatchesTmpField() bool {
	return f == LookupEmail || f == LookupPhone
}

// CreateUserRequest lleva todos los campos de un alta; los vacios quedan como NULL.
type CreateUserRequest struct {
	ID           string
	AppID        string
	Username     string
	Slug         string
	Email        string
	Phone        string
	PasswordHash string
	Role         domain.Role
	RefID        string
	Provider     string
	Picture      string
	TmpField     string
	OtpCodeHash  string
	OtpExpiresAt *time.Time
}

// UpdateUserRequest solo modifica los campos no nil. Un puntero a "" borra el valor.
type UpdateUserRequest struct {
	ID           string
	Username     *string
	Slug         *string
	Email        *string
	Phone        *string
	PasswordHash *string
	Role         *domain.Role
	RefID        *string
	Provider     *string
	Picture      *string
	TmpField     *string
	OtpCodeHash  *string
	OtpExpiresAt *time.Time
	// ClearPending borra otp, expiracion y tmpField, con prioridad sobre esos campos.
	ClearPending bool
}

// IsEmpty reports whether the request would not change any column.
func (r UpdateUserRequest) IsEmpty() bool {
	return r.Username == nil && r.Slug == nil && r.Email == nil && r.Phone == nil &&
		r.PasswordHash == nil && r.Role == nil && r.RefID == nil && r.Provider == nil &&
		r.Picture == nil && r.TmpField == nil && r.OtpCodeHash == nil && r.OtpExpiresAt == nil &&
		!r.ClearPending
}

// UserRepository define el contrato de persistencia para usuarios.
type UserRepository interface {
	FindByID(ctx context.Context, id string) (domain.User, error)
	FindByField(ctx context.Context, appID string, field LookupField, value, provider string) (domain.User, error)
	Create(ctx context.Context, req CreateUserRequest) (domain.User, error)
	Update(ctx context.Context, req UpdateUserRequest) (domain.User, error)
	Delete(ctx context.Context, id string) error
	ClearExpiredOTP(ctx context.Context, now time.Time) (int64, error)
}

// PgUserRepository implementa UserRepository usando pgxpool.
type PgUserRepository struct {
	pool *pgxpool.Pool
}

func NewPgUserRepository(pool *pgxpool.Pool) *PgUserRepository {
	return &PgUserRepository{pool: pool}
}

const userColumns = `id, app_id, COALESCE(username, ''), COALESCE(slug, ''), COALESCE(email, ''),
	COALESCE(phone, ''), COALESCE(password_hash, ''), role, COALESCE(ref_id, ''),
	COALESCE(provider, ''), COALESCE(picture, ''), COALESCE(otp_hash, ''), otp_expires_at,
	COALESCE(tmp_field, ''), created_at, updated_at`

func scanUser(row pgx.Row) (domain.User, error) {
	var (
		u    domain.User
		role string
	)
	err := row.Scan(
		&u.ID,
		&u.AppID,
		&u.Username,
		&u.Slug,
		&u.Email,
		&u.Phone,
		&u.PasswordHash,
		&role,
		&u.RefID,
		&u.Provider,
		&u.Picture,
		&u.OtpCodeHash,
		&u.OtpExpiresAt,
		&u.TmpField,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return domain.User{}, translatePgError(err)
	}
	u.Role = domain.Role(role)
	return u, nil
}

func (r *PgUserRepository) FindByID(ctx context.Context, id string) (domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(r.pool.QueryRow(ctx, query, id))
}

func (r *PgUserRepository) FindByField(ctx context.Context, appID string, field LookupField, value, provider string) (domain.User, error) {
	query, args := buildFindByField(appID, field, value, provider)
	return scanUser(r.pool.QueryRow(ctx, query, args...))
}

// buildFindByField arma la consulta con parametros posicionales; la columna sale del enum.
func buildFindByField(appID string, field LookupField, value, provider string) (string, []any) {
	column := field.String()
	base := `SELECT ` + userColumns + ` FROM users WHERE app_id = $1`
	switch {
	case field == LookupRefID:
		return base + ` AND ref_id = $2 AND provider = $3 LIMIT 1`, []any{appID, value, provider}
	case field.MatchesTmpField():
		// El titular real del contacto gana sobre quien lo tiene pendiente en tmp_field.
		query := base + fmt.Sprintf(` AND (%[1]s = $2 OR tmp_field = $2)
			ORDER BY (%[1]s IS NOT DISTINCT FROM $2) DESC, created_at ASC LIMIT 1`, column)
		return query, []any{appID, value}
	default:
		return base + ` AND slug = $2 LIMIT 1`, []any{appID, value}
	}
}

func (r *PgUserRepository) Create(ctx context.Context, req CreateUserRequest) (domain.User, error) {
	const query = `
		INSERT INTO users (id, app_id, username, slug, email, phone, password_hash, role,
			ref_id, provider, picture, tmp_field, otp_hash, otp_expires_at, created_at, updated_at)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''),
			NULLIF($7, ''), $8, NULLIF($9, ''), NULLIF($10, ''), NULLIF($11, ''),
			NULLIF($12, ''), NULLIF($13, ''), $14, $15, $15)
		RETURNING ` + userColumns
	role := req.Role
	if role == "" {
		role = domain.RoleUser
	}
	row := r.pool.QueryRow(ctx, query,
		req.ID,
		req.AppID,
		req.Username,
		req.Slug,
		req.Email,
		req.Phone,
		req.PasswordHash,
		string(role),
		req.RefID,
		req.Provider,
		req.Picture,
		req.TmpField,
		req.OtpCodeHash,
		req.OtpExpiresAt,
		time.Now().UTC(),
	)
	return scanUser(row)
}

func (r *PgUserRepository) Update(ctx context.Context, req UpdateUserRequest) (domain.User, error) {
	if req.IsEmpty() {
		return r.FindByID(ctx, req.ID)
	}
	query, args := buildUserUpdate(req, time.Now().UTC())
	return scanUser(r.pool.QueryRow(ctx, query, args...))
}

// buildUserUpdate genera un UPDATE parcial; solo los valores viajan como parametros.
func buildUserUpdate(req UpdateUserRequest, now time.Time) (string, []any) {
	var (
		sets []string
		args []any
	)
	setText := func(column string, value *string) {
		if value == nil {
			return
		}
		args = append(args, *value)
		sets = append(sets, fmt.Sprintf("%s = NULLIF($%d, '')", column, len(args)))
	}

	setText("username", req.Username)
	setText("slug", req.Slug)
	setText("email", req.Email)
	setText("phone", req.Phone)
	setText("password_hash", req.PasswordHash)
	if req.Role != nil {
		args = append(args, string(*req.Role))
		sets = append(sets, fmt.Sprintf("role = $%d", len(args)))
	}
	setText("ref_id", req.RefID)
	setText("provider", req.Provider)
	setText("picture", req.Picture)
	if req.ClearPending {
		sets = append(sets, "tmp_field = NULL", "otp_hash = NULL", "otp_expires_at = NULL")
	} else {
		setText("tmp_field", req.TmpField)
		setText("otp_hash", req.OtpCodeHash)
		if req.OtpExpiresAt != nil {
			args = append(args, *req.OtpExpiresAt)
			sets = append(sets, fmt.Sprintf("otp_expires_at = $%d", len(args)))
		}
	}

	args = append(args, now)
	sets = append(sets, fmt.Sprintf("updated_at = $%d", len(args)))
	args = append(args, req.ID)
	query := fmt.Sprintf("UPDATE users SET %s WHERE id = $%d RETURNING %s",
		strings.Join(sets, ", "), len(args), userColumns)
	return query, args
}

func (r *PgUserRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PgUserRepository) ClearExpiredOTP(ctx context.Context, now time.Time) (int64, error) {
	const query = `
		UPDATE users
		SET otp_hash = NULL, otp_expires_at = NULL, tmp_field = NULL, updated_at = $1
		WHERE otp_expires_at IS NOT NULL AND otp_expires_at < $1
	`
	tag, err := r.pool.Exec(ctx, query, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
