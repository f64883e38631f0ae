package auth

import (
	"context"

	"github.com/google/uuid"
)

// UserStore is the credential store consumed by the session service and the
// federated adapter. Implementations must return ErrUserNotFound for misses.
type UserStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*User, error)
	FindByUsername(ctx context.Context, username string) (*User, error)
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	Save(ctx context.Context, user *User) error
}

// RefreshTokenStore manages refresh token lifecycle in an expiring store.
// The store's native TTL eviction is asynchronous; Liveness is the
// authoritative expiry check at use-time.
type RefreshTokenStore interface {
	// Create mints a cryptographically random opaque token owned by ownerID,
	// persists it with the configured lifetime and returns it.
	Create(ctx context.Context, ownerID uuid.UUID) (*RefreshToken, error)

	// FindByToken is a point lookup; ErrRefreshTokenNotFound on miss.
	FindByToken(ctx context.Context, token string) (*RefreshToken, error)

	// Liveness returns the token unchanged when still valid. An expired token
	// is deleted and ErrRefreshTokenExpired returned, guarding against the
	// store's background eviction lagging behind the logical expiry.
	Liveness(ctx context.Context, token *RefreshToken) (*RefreshToken, error)

	// DeleteByOwner removes every refresh token held by a principal.
	DeleteByOwner(ctx context.Context, ownerID uuid.UUID) error
}
