package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"auth-api/internal/domain"
	"auth-api/internal/repository"
)

// IdentityResolver traduce una clave del cliente (email, telefono, refId o username) a
// como mucho un usuario de la app.
type IdentityResolver struct {
	users repository.UserRepository
}

func NewIdentityResolver(users repository.UserRepository) *IdentityResolver {
	return &IdentityResolver{users: users}
}

// ClassifyKey decide por la forma de la clave en que campo buscar y con que valor.
func ClassifyKey(key, provider string) (repository.LookupField, string) {
	key = strings.TrimSpace(key)
	switch {
	case strings.Contains(key, "@") && strings.Contains(key, "."):
		return repository.LookupEmail, normalizeEmail(key)
	case strings.HasPrefix(key, "+"):
		return repository.LookupPhone, key
	case provider != "" && provider != domain.ProviderEmail:
		return repository.LookupRefID, key
	default:
		return repository.LookupSlug, Slugify(key)
	}
}

// Resolve devuelve found=false cuando no hay coincidencia; solo los fallos del store son error.
func (r *IdentityResolver) Resolve(ctx context.Context, key, appID, provider string) (domain.User, bool, error) {
	field, value := ClassifyKey(key, provider)
	if value == "" || appID == "" {
		return domain.User{}, false, nil
	}
	user, err := r.users.FindByField(ctx, appID, field, value, provider)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, fmt.Errorf("resolve user by %s: %w", field, err)
	}
	return user, true, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func looksLikeEmail(email string) bool {
	at := strings.Index(email, "@")
	return at > 0 && at < len(email)-1 && strings.Contains(email[at:], ".")
}
