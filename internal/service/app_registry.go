package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"auth-api/internal/domain"
	"auth-api/internal/repository"
)

// AppRegistry mantiene en memoria las politicas de las apps registradas. Se recarga al
// vencer el TTL, tras Invalidate, o ante un appId desconocido (como mucho una vez por
// missInterval).
type AppRegistry struct {
	repo         repository.AppRepository
	logger       *zap.Logger
	ttl          time.Duration
	missInterval time.Duration
	now          func() time.Time

	mu         sync.RWMutex
	apps       map[string]domain.AppRegistration
	loadedAt   time.Time
	lastMiss   time.Time
	invalid    bool
	reloadLock sync.Mutex
}

func NewAppRegistry(repo repository.AppRepository, ttl, missInterval time.Duration, logger *zap.Logger) *AppRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AppRegistry{
		repo:         repo,
		logger:       logger,
		ttl:          ttl,
		missInterval: missInterval,
		now:          func() time.Time { return time.Now().UTC() },
		apps:         make(map[string]domain.AppRegistration),
		invalid:      true,
	}
}

// Reload reemplaza el mapa completo con el contenido del store.
func (r *AppRegistry) Reload(ctx context.Context) error {
	r.reloadLock.Lock()
	defer r.reloadLock.Unlock()
	return r.load(ctx)
}

// reloadIfStale recarga solo si nadie lo hizo mientras se esperaba el lock, asi una
// rafaga de Lookups tras vencer el TTL produce una unica lectura del store.
func (r *AppRegistry) reloadIfStale(ctx context.Context) error {
	r.reloadLock.Lock()
	defer r.reloadLock.Unlock()
	if !r.stale() {
		return nil
	}
	return r.load(ctx)
}

func (r *AppRegistry) load(ctx context.Context) error {
	list, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("load app registrations: %w", err)
	}
	apps := make(map[string]domain.AppRegistration, len(list))
	for _, app := range list {
		apps[app.AppID] = app
	}

	r.mu.Lock()
	r.apps = apps
	r.loadedAt = r.now()
	r.invalid = false
	r.mu.Unlock()

	r.logger.Debug("app registry reloaded", zap.Int("apps", len(apps)))
	return nil
}

// Invalidate fuerza la recarga en el proximo Lookup.
func (r *AppRegistry) Invalidate() {
	r.mu.Lock()
	r.invalid = true
	r.mu.Unlock()
}

// Lookup devuelve la politica de appID o ErrAppNotAuthorized.
func (r *AppRegistry) Lookup(ctx context.Context, appID string) (domain.AppRegistration, error) {
	appID = strings.TrimSpace(appID)
	if appID == "" {
		return domain.AppRegistration{}, ErrMissingOrigin
	}

	if r.stale() {
		if err := r.reloadIfStale(ctx); err != nil {
			if !r.loaded() {
				return domain.AppRegistration{}, err
			}
			r.logger.Warn("app registry reload failed, serving cached policies", zap.Error(err))
		}
	}

	if app, ok := r.get(appID); ok {
		return app, nil
	}

	if r.claimMissReload() {
		if err := r.Reload(ctx); err != nil {
			r.logger.Warn("app registry reload on miss failed", zap.String("app_id", appID), zap.Error(err))
		} else if app, ok := r.get(appID); ok {
			return app, nil
		}
	}
	return domain.AppRegistration{}, ErrAppNotAuthorized
}

// IsAllowedOrigin se usa desde CORS; cualquier error cuenta como no permitido.
func (r *AppRegistry) IsAllowedOrigin(ctx context.Context, origin string) bool {
	_, err := r.Lookup(ctx, origin)
	if err != nil && !errors.Is(err, ErrAppNotAuthorized) && !errors.Is(err, ErrMissingOrigin) {
		r.logger.Warn("origin check failed", zap.String("origin", origin), zap.Error(err))
	}
	return err == nil
}

func (r *AppRegistry) get(appID string) (domain.AppRegistration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	app, ok := r.apps[appID]
	return app, ok
}

func (r *AppRegistry) loaded() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return !r.loadedAt.IsZero()
}

func (r *AppRegistry) stale() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.invalid || r.loadedAt.IsZero() {
		return true
	}
	return r.ttl > 0 && r.now().Sub(r.loadedAt) >= r.ttl
}

func (r *AppRegistry) claimMissReload() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	if !r.lastMiss.IsZero() && now.Sub(r.lastMiss) < r.missInterval {
		return false
	}
	r.lastMiss = now
	return true
}
