package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// IdentityClaims are already-verified claims from the external identity
// provider. Verification of the federated protocol itself happens upstream;
// this subsystem only maps the claims onto a principal.
type IdentityClaims struct {
	Subject           string `json:"sub"`
	PreferredUsername string `json:"preferred_username"`
	Email             string `json:"email"`
	RealmAccess       struct {
		Roles []string `json:"roles"`
	} `json:"realm_access"`
}

// FederatedService maps external identity claims into principals and keeps a
// local shadow record in sync so ownership joins against persisted resources
// resolve uniformly regardless of which path authenticated the caller.
type FederatedService struct {
	users UserStore
}

func NewFederatedService(users UserStore) (*FederatedService, error) {
	if users == nil {
		return nil, errors.New("auth: user store is required")
	}
	return &FederatedService{users: users}, nil
}

// ResolvePrincipal builds a federated principal from claims and creates or
// updates the shadow user record. The principal id derives deterministically
// from the subject claim.
func (s *FederatedService) ResolvePrincipal(ctx context.Context, claims IdentityClaims) (Principal, error) {
	id, err := uuid.Parse(strings.TrimSpace(claims.Subject))
	if err != nil {
		return nil, fmt.Errorf("%w: bad subject claim", ErrInvalidToken)
	}
	username := strings.TrimSpace(claims.PreferredUsername)
	if username == "" {
		return nil, fmt.Errorf("%w: missing preferred_username claim", ErrInvalidToken)
	}
	roles := MapRealmRoles(claims.RealmAccess.Roles)

	if err := s.syncShadowRecord(ctx, id, username, claims.Email, roles); err != nil {
		return nil, err
	}

	return federatedPrincipal{
		id:       id,
		username: username,
		email:    strings.TrimSpace(claims.Email),
		roles:    roles,
	}, nil
}

// syncShadowRecord creates the shadow user on first sight of a federated
// identity and refreshes username/email/roles on subsequent ones. The shadow
// record carries no password hash; it cannot be used for local login.
func (s *FederatedService) syncShadowRecord(ctx context.Context, id uuid.UUID, username, email string, roles []Role) error {
	existing, err := s.users.FindByID(ctx, id)
	switch {
	case errors.Is(err, ErrUserNotFound):
		return s.users.Save(ctx, &User{
			ID:       id,
			Username: username,
			Email:    strings.TrimSpace(email),
			Roles:    roles,
		})
	case err != nil:
		return err
	default:
		existing.Username = username
		existing.Email = strings.TrimSpace(email)
		existing.Roles = roles
		return s.users.Save(ctx, existing)
	}
}

// MapRealmRoles folds external realm role names into the fixed role set:
// ADMIN and MANAGER map onto themselves, anything else becomes USER. An empty
// claim list still yields USER; an authenticated principal never has an empty
// role set.
func MapRealmRoles(realmRoles []string) []Role {
	roles := make([]Role, 0, len(realmRoles))
	for _, raw := range realmRoles {
		roles = append(roles, ParseRole(raw))
	}
	return NormalizeRoles(roles)
}
