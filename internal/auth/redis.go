package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"taskhub.org/internal/obs"
)

const (
	refreshKeyPrefix = "refresh:token:"
	ownerKeyPrefix   = "refresh:owner:"
)

// RedisTokenStore backs RefreshTokenStore with Redis. Every entry is written
// with the store's native TTL so Redis evicts stale tokens on its own; the
// per-owner index set makes logout's delete-by-owner a single round-trip scan.
type RedisTokenStore struct {
	rdb      *redis.Client
	lifetime time.Duration
	now      func() time.Time
}

// RedisTokenStoreOption configures RedisTokenStore.
type RedisTokenStoreOption func(*RedisTokenStore)

// WithRedisClock overrides the time source.
func WithRedisClock(fn func() time.Time) RedisTokenStoreOption {
	return func(s *RedisTokenStore) {
		if fn != nil {
			s.now = fn
		}
	}
}

func NewRedisTokenStore(rdb *redis.Client, lifetime time.Duration, opts ...RedisTokenStoreOption) *RedisTokenStore {
	s := &RedisTokenStore{
		rdb:      rdb,
		lifetime: lifetime,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type refreshRecord struct {
	OwnerID   uuid.UUID `json:"owner_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s *RedisTokenStore) Create(ctx context.Context, ownerID uuid.UUID) (*RefreshToken, error) {
	opaque, err := newOpaqueToken()
	if err != nil {
		return nil, err
	}
	rec := &RefreshToken{
		Token:     opaque,
		OwnerID:   ownerID,
		ExpiresAt: s.now().Add(s.lifetime),
	}
	payload, err := json.Marshal(refreshRecord{OwnerID: rec.OwnerID, ExpiresAt: rec.ExpiresAt})
	if err != nil {
		return nil, err
	}

	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, refreshKeyPrefix+rec.Token, payload, s.lifetime)
	ownerKey := ownerKeyPrefix + ownerID.String()
	pipe.SAdd(ctx, ownerKey, rec.Token)
	// The owner index must outlive the newest member.
	pipe.Expire(ctx, ownerKey, s.lifetime)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("redis create refresh token: %w", err)
	}
	return rec, nil
}

func (s *RedisTokenStore) FindByToken(ctx context.Context, token string) (*RefreshToken, error) {
	raw, err := s.rdb.Get(ctx, refreshKeyPrefix+token).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrRefreshTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis find refresh token: %w", err)
	}
	var rec refreshRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("redis decode refresh token: %w", err)
	}
	return &RefreshToken{Token: token, OwnerID: rec.OwnerID, ExpiresAt: rec.ExpiresAt}, nil
}

func (s *RedisTokenStore) Liveness(ctx context.Context, token *RefreshToken) (*RefreshToken, error) {
	if token == nil {
		return nil, ErrRefreshTokenNotFound
	}
	if token.ExpiresAt.Before(s.now()) {
		pipe := s.rdb.TxPipeline()
		pipe.Del(ctx, refreshKeyPrefix+token.Token)
		pipe.SRem(ctx, ownerKeyPrefix+token.OwnerID.String(), token.Token)
		if _, err := pipe.Exec(ctx); err != nil {
			return nil, fmt.Errorf("redis delete stale refresh token: %w", err)
		}
		return nil, ErrRefreshTokenExpired
	}
	return token, nil
}

func (s *RedisTokenStore) DeleteByOwner(ctx context.Context, ownerID uuid.UUID) error {
	ownerKey := ownerKeyPrefix + ownerID.String()
	tokens, err := s.rdb.SMembers(ctx, ownerKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("redis list owner tokens: %w", err)
	}
	keys := make([]string, 0, len(tokens)+1)
	for _, t := range tokens {
		keys = append(keys, refreshKeyPrefix+t)
	}
	keys = append(keys, ownerKey)
	if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis delete owner tokens: %w", err)
	}
	return nil
}

// WatchExpiries consumes Redis keyspace "expired" events and logs refresh
// token evictions until ctx ends. Requires notify-keyspace-events to include
// Ex on the server. Eviction timing is best-effort; nothing here is load
// bearing, Liveness stays the authoritative expiry check.
func (s *RedisTokenStore) WatchExpiries(ctx context.Context) {
	sub := s.rdb.PSubscribe(ctx, "__keyevent@*__:expired")
	defer sub.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.Channel():
			if !ok {
				return
			}
			if !strings.HasPrefix(msg.Payload, refreshKeyPrefix) {
				continue
			}
			obs.LogEvent(map[string]any{
				"ts":    time.Now().UTC().Format(time.RFC3339Nano),
				"level": "info",
				"msg":   "refresh token evicted",
			})
		}
	}
}
