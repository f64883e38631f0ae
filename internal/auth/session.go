package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"taskhub.org/internal/obs"
)

// SessionService orchestrates login, refresh and logout over the codec, the
// refresh token store and the credential store. It holds no mutable state of
// its own; concurrent calls are independent. Two refresh calls presenting the
// same token may both succeed (availability over strict exactly-once), and a
// logout racing a concurrent refresh may leave one token behind; both windows
// are accepted.
type SessionService struct {
	users  UserStore
	tokens RefreshTokenStore
	codec  *Codec
	now    func() time.Time
}

// SessionOption configures SessionService.
type SessionOption func(*SessionService)

// WithSessionClock overrides the time source.
func WithSessionClock(fn func() time.Time) SessionOption {
	return func(s *SessionService) {
		if fn != nil {
			s.now = fn
		}
	}
}

func NewSessionService(users UserStore, tokens RefreshTokenStore, codec *Codec, opts ...SessionOption) (*SessionService, error) {
	if users == nil || tokens == nil || codec == nil {
		return nil, errors.New("auth: user store, token store and codec are required")
	}
	s := &SessionService{
		users:  users,
		tokens: tokens,
		codec:  codec,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Authenticate checks credentials and opens a new session: an access token
// bound to the username plus a fresh refresh token bound to the principal id.
// Unknown username and wrong password are indistinguishable to the caller.
func (s *SessionService) Authenticate(ctx context.Context, username, password string) (*Session, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		obs.Login("denied")
		return nil, ErrBadCredentials
	}
	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			obs.Login("denied")
			return nil, ErrBadCredentials
		}
		return nil, err
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		obs.Login("denied")
		return nil, ErrBadCredentials
	}

	pair, err := s.mintPair(ctx, user)
	if err != nil {
		return nil, err
	}
	obs.Login("ok")
	return &Session{Principal: NewLocalPrincipal(user), Tokens: pair}, nil
}

// Refresh exchanges a refresh token for a new access token plus a brand-new
// refresh token. The presented token is left to its TTL rather than revoked,
// so a retried refresh under network uncertainty still succeeds; it dies on
// expiry or logout.
func (s *SessionService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	rec, err := s.tokens.FindByToken(ctx, strings.TrimSpace(refreshToken))
	if err != nil {
		obs.Refresh(refreshFailureLabel(err))
		return nil, err
	}
	rec, err = s.tokens.Liveness(ctx, rec)
	if err != nil {
		obs.Refresh(refreshFailureLabel(err))
		return nil, err
	}
	owner, err := s.users.FindByID(ctx, rec.OwnerID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			obs.Refresh("owner_missing")
			return nil, fmt.Errorf("%w: owner %s", ErrOwnerNotFound, rec.OwnerID)
		}
		return nil, err
	}
	pair, err := s.mintPair(ctx, owner)
	if err != nil {
		return nil, err
	}
	obs.Refresh("ok")
	return &pair, nil
}

// Logout deletes every refresh token held by the principal. Access tokens
// already issued remain valid until their own expiry; stateless tokens cannot
// be revoked early.
func (s *SessionService) Logout(ctx context.Context, principal Principal) error {
	if principal == nil {
		return ErrAccessDenied
	}
	return s.tokens.DeleteByOwner(ctx, principal.ID())
}

// Register creates a local user with a freshly hashed password. Duplicate
// username or email fails with ErrAlreadyExists.
func (s *SessionService) Register(ctx context.Context, username, email, password string, roles []Role) (*User, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(strings.ToLower(email))
	if username == "" || email == "" || password == "" {
		return nil, errors.New("auth: username, email and password are required")
	}
	if taken, err := s.users.ExistsByUsername(ctx, username); err != nil {
		return nil, err
	} else if taken {
		return nil, fmt.Errorf("%w: username %s", ErrAlreadyExists, username)
	}
	if taken, err := s.users.ExistsByEmail(ctx, email); err != nil {
		return nil, err
	} else if taken {
		return nil, fmt.Errorf("%w: email %s", ErrAlreadyExists, email)
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	user := &User{
		ID:           uuid.New(),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Roles:        NormalizeRoles(roles),
	}
	if err := s.users.Save(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// ResolveAccessToken verifies a bearer token and loads the owning principal.
// Used once per request at the boundary; the result is threaded through the
// context from there.
func (s *SessionService) ResolveAccessToken(ctx context.Context, token string) (Principal, error) {
	subject, err := s.codec.Verify(token)
	if err != nil {
		return nil, err
	}
	user, err := s.users.FindByUsername(ctx, subject)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	return NewLocalPrincipal(user), nil
}

// refreshFailureLabel classifies a refresh failure for the metric. A store
// I/O failure is not an expiry and must not be counted as one.
func refreshFailureLabel(err error) string {
	switch {
	case errors.Is(err, ErrRefreshTokenNotFound):
		return "not_found"
	case errors.Is(err, ErrRefreshTokenExpired):
		return "expired"
	default:
		return "error"
	}
}

func (s *SessionService) mintPair(ctx context.Context, user *User) (TokenPair, error) {
	access, accessExp, err := s.codec.Issue(user.Username)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := s.tokens.Create(ctx, user.ID)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh.Token,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refresh.ExpiresAt,
	}, nil
}
