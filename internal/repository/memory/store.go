// Package memory implementa los repositorios en proceso, con las mismas reglas de unicidad
// que los indices de Postgres.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"auth-api/internal/domain"
	"auth-api/internal/repository"
)

var (
	_ repository.UserRepository         = (*Store)(nil)
	_ repository.RefreshTokenRepository = (*Store)(nil)
	_ repository.AppRepository          = (*Store)(nil)
)

type Store struct {
	mu     sync.Mutex
	users  map[string]domain.User
	tokens map[string]domain.RefreshToken
	apps   map[string]domain.AppRegistration
	now    func() time.Time
}

func NewStore(apps ...domain.AppRegistration) *Store {
	s := &Store{
		users:  make(map[string]domain.User),
		tokens: make(map[string]domain.RefreshToken),
		apps:   make(map[string]domain.AppRegistration),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, app := range apps {
		s.apps[app.AppID] = app
	}
	return s
}

// Stores expone el mismo Store detras de las tres interfaces.
func (s *Store) Stores() repository.Stores {
	return repository.Stores{Users: s, Tokens: s, Apps: s}
}

// SetClock permite a los tests controlar la hora usada para expiraciones.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// PutApp registra o reemplaza una app.
func (s *Store) PutApp(app domain.AppRegistration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apps[app.AppID] = app
}

func (s *Store) List(_ context.Context) ([]domain.AppRegistration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	apps := make([]domain.AppRegistration, 0, len(s.apps))
	for _, app := range s.apps {
		apps = append(apps, app)
	}
	sort.Slice(apps, func(i, j int) bool { return apps[i].AppID < apps[j].AppID })
	return apps, nil
}

func (s *Store) FindByID(_ context.Context, id string) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return domain.User{}, repository.ErrNotFound
	}
	return user, nil
}

func (s *Store) FindByField(_ context.Context, appID string, field repository.LookupField, value, provider string) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if value == "" {
		return domain.User{}, repository.ErrNotFound
	}

	var pending *domain.User
	for _, u := range s.users {
		if u.AppID != appID {
			continue
		}
		switch field {
		case repository.LookupSlug:
			if u.Slug == value {
				return u, nil
			}
		case repository.LookupRefID:
			if u.RefID == value && u.Provider == provider {
				return u, nil
			}
		case repository.LookupEmail, repository.LookupPhone:
			current := u.Email
			if field == repository.LookupPhone {
				current = u.Phone
			}
			if current == value {
				return u, nil
			}
			if u.TmpField == value && (pending == nil || u.CreatedAt.Before(pending.CreatedAt)) {
				candidate := u
				pending = &candidate
			}
		}
	}
	if pending != nil {
		return *pending, nil
	}
	return domain.User{}, repository.ErrNotFound
}

func (s *Store) Create(_ context.Context, req repository.CreateUserRequest) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[req.ID]; exists {
		return domain.User{}, repository.ErrAlreadyExists
	}
	role := req.Role
	if role == "" {
		role = domain.RoleUser
	}
	now := s.now()
	user := domain.User{
		ID:           req.ID,
		AppID:        req.AppID,
		Username:     req.Username,
		Slug:         req.Slug,
		Email:        req.Email,
		Phone:        req.Phone,
		PasswordHash: req.PasswordHash,
		Role:         role,
		RefID:        req.RefID,
		Provider:     req.Provider,
		Picture:      req.Picture,
		TmpField:     req.TmpField,
		OtpCodeHash:  req.OtpCodeHash,
		OtpExpiresAt: req.OtpExpiresAt,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if user.Username == "" && user.Email == "" && user.Phone == "" {
		return domain.User{}, repository.ErrInvalidRecord
	}
	if s.conflicts(user) {
		return domain.User{}, repository.ErrAlreadyExists
	}
	s.users[user.ID] = user
	return user, nil
}

func (s *Store) Update(_ context.Context, req repository.UpdateUserRequest) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[req.ID]
	if !ok {
		return domain.User{}, repository.ErrNotFound
	}
	if req.IsEmpty() {
		return user, nil
	}

	apply := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	apply(&user.Username, req.Username)
	apply(&user.Slug, req.Slug)
	apply(&user.Email, req.Email)
	apply(&user.Phone, req.Phone)
	apply(&user.PasswordHash, req.PasswordHash)
	apply(&user.RefID, req.RefID)
	apply(&user.Provider, req.Provider)
	apply(&user.Picture, req.Picture)
	if req.Role != nil {
		user.Role = *req.Role
	}
	if req.ClearPending {
		user.TmpField = ""
		user.OtpCodeHash = ""
		user.OtpExpiresAt = nil
	} else {
		apply(&user.TmpField, req.TmpField)
		apply(&user.OtpCodeHash, req.OtpCodeHash)
		if req.OtpExpiresAt != nil {
			exp := *req.OtpExpiresAt
			user.OtpExpiresAt = &exp
		}
	}
	if user.Username == "" && user.Email == "" && user.Phone == "" {
		return domain.User{}, repository.ErrInvalidRecord
	}
	if s.conflicts(user) {
		return domain.User{}, repository.ErrAlreadyExists
	}
	user.UpdatedAt = s.now()
	s.users[user.ID] = user
	return user, nil
}

// conflicts replica los indices unicos parciales de la tabla users.
func (s *Store) conflicts(candidate domain.User) bool {
	for id, u := range s.users {
		if id == candidate.ID || u.AppID != candidate.AppID {
			continue
		}
		if candidate.Slug != "" && u.Slug == candidate.Slug {
			return true
		}
		if candidate.Email != "" && u.Email == candidate.Email {
			return true
		}
		if candidate.Phone != "" && u.Phone == candidate.Phone {
			return true
		}
		if candidate.RefID != "" && u.RefID == candidate.RefID && u.Provider == candidate.Provider {
			return true
		}
	}
	return false
}

func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.users, id)
	for key, t := range s.tokens {
		if t.UserID == id {
			delete(s.tokens, key)
		}
	}
	return nil
}

func (s *Store) ClearExpiredOTP(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, u := range s.users {
		if u.OtpExpiresAt == nil || !u.OtpExpiresAt.Before(now) {
			continue
		}
		u.OtpCodeHash = ""
		u.OtpExpiresAt = nil
		u.TmpField = ""
		u.UpdatedAt = now
		s.users[id] = u
		n++
	}
	return n, nil
}

func (s *Store) Replace(_ context.Context, token domain.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tokens {
		sameOwner := t.UserID == token.UserID && t.AppID == token.AppID
		if !sameOwner && t.Token == token.Token {
			return repository.ErrAlreadyExists
		}
	}
	for key, t := range s.tokens {
		if t.UserID == token.UserID && t.AppID == token.AppID {
			delete(s.tokens, key)
		}
	}
	s.tokens[token.ID] = token
	return nil
}

func (s *Store) FindByUserID(_ context.Context, userID, appID string) (domain.RefreshToken, error) {
	return s.findLive(func(t domain.RefreshToken) bool {
		return t.UserID == userID && t.AppID == appID
	})
}

func (s *Store) FindByToken(_ context.Context, token, appID string) (domain.RefreshToken, error) {
	return s.findLive(func(t domain.RefreshToken) bool {
		return t.Token == token && t.AppID == appID
	})
}

func (s *Store) findLive(match func(domain.RefreshToken) bool) (domain.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, t := range s.tokens {
		if !match(t) {
			continue
		}
		if t.Expired(s.now()) {
			delete(s.tokens, key)
			return domain.RefreshToken{}, repository.ErrNotFound
		}
		return t, nil
	}
	return domain.RefreshToken{}, repository.ErrNotFound
}

func (s *Store) DeleteByToken(_ context.Context, token, appID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, t := range s.tokens {
		if t.Token == token && t.AppID == appID {
			delete(s.tokens, key)
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) DeleteByUserID(_ context.Context, userID, appID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, t := range s.tokens {
		if t.UserID == userID && t.AppID == appID {
			delete(s.tokens, key)
		}
	}
	return nil
}

func (s *Store) DeleteAllForUser(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, t := range s.tokens {
		if t.UserID == userID {
			delete(s.tokens, key)
		}
	}
	return nil
}

func (s *Store) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for key, t := range s.tokens {
		if t.Expired(now) {
			delete(s.tokens, key)
			n++
		}
	}
	return n, nil
}

// TokenCount devuelve cuantos refresh tokens hay guardados.
func (s *Store) TokenCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tokens)
}
