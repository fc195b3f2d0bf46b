package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"auth-api/internal/domain"
	"auth-api/internal/repository"
)

// UserAttrs son los atributos que un flujo quiere escribir. Un puntero nil significa "no
// mencionado" y nunca borra el valor guardado.
type UserAttrs struct {
	AppID        string
	Username     *string
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
	ClearPending bool
}

type UpsertResult struct {
	User         domain.User
	WasCreated   bool
	WasConfirmed bool
}

// UserUpserter crea o actualiza usuarios a partir de atributos parciales.
type UserUpserter struct {
	users repository.UserRepository
	newID func() string
}

func NewUserUpserter(users repository.UserRepository) *UserUpserter {
	return &UserUpserter{users: users, newID: uuid.NewString}
}

// Upsert crea el usuario si id esta vacio o no existe (respetando el id elegido por el
// llamador) y, si existe, actualiza solo los atributos presentes.
func (u *UserUpserter) Upsert(ctx context.Context, id string, attrs UserAttrs) (UpsertResult, error) {
	if id == "" {
		user, err := u.Create(ctx, u.newID(), attrs)
		return UpsertResult{User: user, WasCreated: err == nil}, err
	}

	existing, err := u.users.FindByID(ctx, id)
	switch {
	case err == nil:
		if existing.AppID != attrs.AppID {
			return UpsertResult{}, ErrUserNotFound
		}
		user, err := u.Update(ctx, existing, attrs)
		if err != nil {
			return UpsertResult{}, err
		}
		return UpsertResult{User: user, WasConfirmed: true}, nil
	case errors.Is(err, repository.ErrNotFound):
		user, err := u.Create(ctx, id, attrs)
		if err != nil {
			return UpsertResult{}, err
		}
		return UpsertResult{User: user, WasCreated: true}, nil
	default:
		return UpsertResult{}, fmt.Errorf("find user %s: %w", id, err)
	}
}

func (u *UserUpserter) Create(ctx context.Context, id string, attrs UserAttrs) (domain.User, error) {
	req := repository.CreateUserRequest{
		ID:           id,
		AppID:        attrs.AppID,
		Username:     deref(attrs.Username),
		Email:        deref(attrs.Email),
		Phone:        deref(attrs.Phone),
		PasswordHash: deref(attrs.PasswordHash),
		Role:         domain.RoleUser,
		RefID:        deref(attrs.RefID),
		Provider:     deref(attrs.Provider),
		Picture:      deref(attrs.Picture),
		OtpExpiresAt: attrs.OtpExpiresAt,
	}
	if attrs.Role != nil && *attrs.Role != "" {
		req.Role = *attrs.Role
	}
	if !attrs.ClearPending {
		req.TmpField = deref(attrs.TmpField)
		req.OtpCodeHash = deref(attrs.OtpCodeHash)
	} else {
		req.OtpExpiresAt = nil
	}
	req.Slug = Slugify(req.Username)
	if req.Slug == "" {
		req.Username = ""
	}
	if req.Username == "" && req.Email == "" && req.Phone == "" {
		return domain.User{}, ErrIdentityRequired
	}

	user, err := u.users.Create(ctx, req)
	if err != nil {
		return domain.User{}, translateStoreError("create user", err)
	}
	return user, nil
}

func (u *UserUpserter) Update(ctx context.Context, existing domain.User, attrs UserAttrs) (domain.User, error) {
	req := repository.UpdateUserRequest{
		ID:           existing.ID,
		Username:     attrs.Username,
		Email:        attrs.Email,
		Phone:        attrs.Phone,
		PasswordHash: attrs.PasswordHash,
		Role:         attrs.Role,
		RefID:        attrs.RefID,
		Provider:     attrs.Provider,
		Picture:      attrs.Picture,
		TmpField:     attrs.TmpField,
		OtpCodeHash:  attrs.OtpCodeHash,
		OtpExpiresAt: attrs.OtpExpiresAt,
		ClearPending: attrs.ClearPending,
	}
	if attrs.Username != nil {
		slug := Slugify(*attrs.Username)
		req.Slug = &slug
	}
	if req.IsEmpty() {
		return existing, nil
	}

	user, err := u.users.Update(ctx, req)
	if err != nil {
		return domain.User{}, translateStoreError("update user", err)
	}
	return user, nil
}

func translateStoreError(op string, err error) error {
	switch {
	case errors.Is(err, repository.ErrAlreadyExists):
		return ErrUserAlreadyRegistered
	case errors.Is(err, repository.ErrInvalidRecord):
		return ErrIdentityRequired
	case errors.Is(err, repository.ErrNotFound):
		return ErrUserNotFound
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func ptr[T any](v T) *T {
	return &v
}
