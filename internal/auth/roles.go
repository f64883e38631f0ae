package auth

import "strings"

// Role is one of the fixed authority levels a principal can hold.
type Role string

const (
	RoleUser    Role = "USER"
	RoleAdmin   Role = "ADMIN"
	RoleManager Role = "MANAGER"
)

// ParseRole maps a raw role name onto the known set. Unknown names degrade to
// RoleUser rather than failing, matching how federated realm roles are folded.
func ParseRole(raw string) Role {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case string(RoleAdmin):
		return RoleAdmin
	case string(RoleManager):
		return RoleManager
	default:
		return RoleUser
	}
}

// NormalizeRoles deduplicates a role list and guarantees it is never empty: a
// valid authenticated principal always carries at least RoleUser.
func NormalizeRoles(roles []Role) []Role {
	seen := make(map[Role]struct{}, len(roles))
	out := make([]Role, 0, len(roles))
	for _, r := range roles {
		switch r {
		case RoleUser, RoleAdmin, RoleManager:
		default:
			r = RoleUser
		}
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	if len(out) == 0 {
		out = append(out, RoleUser)
	}
	return out
}

func hasRole(roles []Role, want Role) bool {
	for _, r := range roles {
		if r == want {
			return true
		}
	}
	return false
}

// RoleNames renders a role list as plain strings for responses and logs.
func RoleNames(roles []Role) []string {
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		out = append(out, string(r))
	}
	return out
}
