package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"taskhub.org/internal/obs"
)

// MemoryUserStore keeps users in memory. Used in dev mode and tests; the
// production credential store is Postgres.
type MemoryUserStore struct {
	mu         sync.RWMutex
	byID       map[uuid.UUID]*User
	byUsername map[string]uuid.UUID
}

func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{
		byID:       make(map[uuid.UUID]*User),
		byUsername: make(map[string]uuid.UUID),
	}
}

func (s *MemoryUserStore) FindByID(ctx context.Context, id uuid.UUID) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byID[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *MemoryUserStore) FindByUsername(ctx context.Context, username string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byUsername[strings.ToLower(username)]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *s.byID[id]
	return &cp, nil
}

func (s *MemoryUserStore) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byUsername[strings.ToLower(username)]
	return ok, nil
}

func (s *MemoryUserStore) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	email = strings.ToLower(email)
	for _, u := range s.byID {
		if strings.ToLower(u.Email) == email {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryUserStore) Save(ctx context.Context, user *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.byID[user.ID]; ok {
		delete(s.byUsername, strings.ToLower(prev.Username))
	}
	cp := *user
	cp.Roles = NormalizeRoles(cp.Roles)
	s.byID[cp.ID] = &cp
	s.byUsername[strings.ToLower(cp.Username)] = cp.ID
	return nil
}

// MemoryTokenStore is an in-process RefreshTokenStore with TTL eviction run by
// a janitor goroutine, mirroring the Redis store's behavior for dev and tests.
type MemoryTokenStore struct {
	mu       sync.Mutex
	lifetime time.Duration
	now      func() time.Time
	tokens   map[string]*RefreshToken
	byOwner  map[uuid.UUID]map[string]struct{}
}

// MemoryTokenStoreOption configures MemoryTokenStore.
type MemoryTokenStoreOption func(*MemoryTokenStore)

// WithMemoryClock overrides the time source.
func WithMemoryClock(fn func() time.Time) MemoryTokenStoreOption {
	return func(s *MemoryTokenStore) {
		if fn != nil {
			s.now = fn
		}
	}
}

func NewMemoryTokenStore(lifetime time.Duration, opts ...MemoryTokenStoreOption) *MemoryTokenStore {
	s := &MemoryTokenStore{
		lifetime: lifetime,
		now:      time.Now,
		tokens:   make(map[string]*RefreshToken),
		byOwner:  make(map[uuid.UUID]map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryTokenStore) Create(ctx context.Context, ownerID uuid.UUID) (*RefreshToken, error) {
	opaque, err := newOpaqueToken()
	if err != nil {
		return nil, err
	}
	rec := &RefreshToken{
		Token:     opaque,
		OwnerID:   ownerID,
		ExpiresAt: s.now().Add(s.lifetime),
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[rec.Token] = rec
	if s.byOwner[ownerID] == nil {
		s.byOwner[ownerID] = make(map[string]struct{})
	}
	s.byOwner[ownerID][rec.Token] = struct{}{}
	cp := *rec
	return &cp, nil
}

func (s *MemoryTokenStore) FindByToken(ctx context.Context, token string) (*RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.tokens[token]
	if !ok {
		return nil, ErrRefreshTokenNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *MemoryTokenStore) Liveness(ctx context.Context, token *RefreshToken) (*RefreshToken, error) {
	if token == nil {
		return nil, ErrRefreshTokenNotFound
	}
	if token.ExpiresAt.Before(s.now()) {
		s.mu.Lock()
		s.drop(token.Token, token.OwnerID)
		s.mu.Unlock()
		return nil, ErrRefreshTokenExpired
	}
	return token, nil
}

func (s *MemoryTokenStore) DeleteByOwner(ctx context.Context, ownerID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for token := range s.byOwner[ownerID] {
		delete(s.tokens, token)
	}
	delete(s.byOwner, ownerID)
	return nil
}

// StartJanitor evicts expired tokens on the given interval until the returned
// stop function is called. Eviction is best-effort observability hygiene;
// Liveness remains the authoritative expiry check.
func (s *MemoryTokenStore) StartJanitor(interval time.Duration) func() {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				s.evictExpired()
			}
		}
	}()
	return func() { close(done) }
}

func (s *MemoryTokenStore) evictExpired() {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for token, rec := range s.tokens {
		if rec.ExpiresAt.Before(now) {
			s.drop(token, rec.OwnerID)
			obs.LogEvent(map[string]any{
				"ts":       now.UTC().Format(time.RFC3339Nano),
				"level":    "info",
				"msg":      "refresh token evicted",
				"owner_id": rec.OwnerID.String(),
			})
		}
	}
}

// drop removes a token from both indexes. Caller holds the lock.
func (s *MemoryTokenStore) drop(token string, ownerID uuid.UUID) {
	delete(s.tokens, token)
	if owned, ok := s.byOwner[ownerID]; ok {
		delete(owned, token)
		if len(owned) == 0 {
			delete(s.byOwner, ownerID)
		}
	}
}

// newOpaqueToken returns 32 bytes of crypto randomness, URL-safe encoded. No
// uniqueness retry loop: collision probability is negligible at this entropy.
func newOpaqueToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
