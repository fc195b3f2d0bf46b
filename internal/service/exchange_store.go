package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/ksuid"
)

// ExchangeClaims es lo que un token de intercambio de un solo uso representa.
type ExchangeClaims struct {
	UserID   string `json:"userId"`
	AppID    string `json:"appId"`
	Provider string `json:"provider"`
	Created  bool   `json:"created"`
}

// ExchangeStore guarda tokens opacos de vida corta. Take los consume: un segundo Take del
// mismo token devuelve ErrInvalidExchangeToken.
type ExchangeStore interface {
	Put(ctx context.Context, token string, claims ExchangeClaims, ttl time.Duration) error
	Take(ctx context.Context, token string) (ExchangeClaims, error)
}

func newExchangeToken() string {
	return ksuid.New().String()
}

type memoryExchangeEntry struct {
	claims    ExchangeClaims
	expiresAt time.Time
}

type memoryExchangeStore struct {
	mu    sync.Mutex
	items map[string]memoryExchangeEntry
	now   func() time.Time
}

func NewMemoryExchangeStore() ExchangeStore {
	return &memoryExchangeStore{
		items: make(map[string]memoryExchangeEntry),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (s *memoryExchangeStore) Put(_ context.Context, token string, claims ExchangeClaims, ttl time.Duration) error {
	if strings.TrimSpace(token) == "" {
		return errors.New("empty exchange token")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for key, entry := range s.items {
		if !now.Before(entry.expiresAt) {
			delete(s.items, key)
		}
	}
	s.items[token] = memoryExchangeEntry{claims: claims, expiresAt: now.Add(ttl)}
	return nil
}

func (s *memoryExchangeStore) Take(_ context.Context, token string) (ExchangeClaims, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.items[token]
	if !ok {
		return ExchangeClaims{}, ErrInvalidExchangeToken
	}
	delete(s.items, token)
	if !s.now().Before(entry.expiresAt) {
		return ExchangeClaims{}, ErrInvalidExchangeToken
	}
	return entry.claims, nil
}

// GET y DEL en un solo paso para que dos canjes concurrentes no reciban el mismo valor.
const redisTakeScript = `
local v = redis.call("GET", KEYS[1])
if v then
  redis.call("DEL", KEYS[1])
end
return v
`

type redisExchangeClient interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

type redisExchangeStore struct {
	client redisExchangeClient
	prefix string
}

func NewRedisExchangeStore(client *redis.Client) ExchangeStore {
	if client == nil {
		return nil
	}
	return &redisExchangeStore{
		client: client,
		prefix: "auth:exchange:",
	}
}

func (s *redisExchangeStore) Put(ctx context.Context, token string, claims ExchangeClaims, ttl time.Duration) error {
	if strings.TrimSpace(token) == "" {
		return errors.New("empty exchange token")
	}
	payload, err := json.Marshal(claims)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	if err := s.client.Set(ctx, s.prefix+token, payload, ttl).Err(); err != nil {
		return fmt.Errorf("store exchange token: %w", err)
	}
	return nil
}

func (s *redisExchangeStore) Take(ctx context.Context, token string) (ExchangeClaims, error) {
	if strings.TrimSpace(token) == "" {
		return ExchangeClaims{}, ErrInvalidExchangeToken
	}
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	raw, err := s.client.Eval(ctx, redisTakeScript, []string{s.prefix + token}).Text()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ExchangeClaims{}, ErrInvalidExchangeToken
		}
		return ExchangeClaims{}, fmt.Errorf("take exchange token: %w", err)
	}
	var claims ExchangeClaims
	if err := json.Unmarshal([]byte(raw), &claims); err != nil {
		return ExchangeClaims{}, ErrInvalidExchangeToken
	}
	return claims, nil
}
