package auth

import (
	"time"

	"github.com/google/uuid"
)

// User is a credential store record. The id is immutable once assigned and is
// shared between locally-registered users and shadow records created for
// federated identities.
type User struct {
	ID           uuid.UUID
	Username     string
	Email        string
	PasswordHash string
	Roles        []Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// RefreshToken is a persisted, opaque, longer-lived credential exchanged for
// fresh access tokens. One owner may hold several at once (multi-device).
type RefreshToken struct {
	Token     string
	OwnerID   uuid.UUID
	ExpiresAt time.Time
}

// TokenPair is the result of a successful login or refresh.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// Session couples the resolved principal with its freshly issued tokens.
type Session struct {
	Principal Principal
	Tokens    TokenPair
}
