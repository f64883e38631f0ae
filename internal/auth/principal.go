package auth

import (
	"github.com/google/uuid"
)

// Principal is the authenticated identity making a request. Two variants
// implement it: one backed by a credential store record, one backed by claims
// from a federated identity provider. Ids are stable across both paths.
type Principal interface {
	ID() uuid.UUID
	Username() string
	Email() string
	Roles() []Role

	IsAdmin() bool
	IsUser() bool
	IsManager() bool
}

type localPrincipal struct {
	user *User
}

// NewLocalPrincipal wraps a credential store record.
func NewLocalPrincipal(user *User) Principal {
	return localPrincipal{user: user}
}

func (p localPrincipal) ID() uuid.UUID    { return p.user.ID }
func (p localPrincipal) Username() string { return p.user.Username }
func (p localPrincipal) Email() string    { return p.user.Email }
func (p localPrincipal) Roles() []Role    { return NormalizeRoles(p.user.Roles) }
func (p localPrincipal) IsAdmin() bool    { return hasRole(p.Roles(), RoleAdmin) }
func (p localPrincipal) IsUser() bool     { return hasRole(p.Roles(), RoleUser) }
func (p localPrincipal) IsManager() bool  { return hasRole(p.Roles(), RoleManager) }

type federatedPrincipal struct {
	id       uuid.UUID
	username string
	email    string
	roles    []Role
}

func (p federatedPrincipal) ID() uuid.UUID    { return p.id }
func (p federatedPrincipal) Username() string { return p.username }
func (p federatedPrincipal) Email() string    { return p.email }
func (p federatedPrincipal) Roles() []Role    { return p.roles }
func (p federatedPrincipal) IsAdmin() bool    { return hasRole(p.roles, RoleAdmin) }
func (p federatedPrincipal) IsUser() bool     { return hasRole(p.roles, RoleUser) }
func (p federatedPrincipal) IsManager() bool  { return hasRole(p.roles, RoleManager) }
