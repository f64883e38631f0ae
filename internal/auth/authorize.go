package auth

import "github.com/google/uuid"

// IsOwner reports whether the principal owns the resource.
func IsOwner(principal Principal, resourceOwnerID uuid.UUID) bool {
	return principal != nil && principal.ID() == resourceOwnerID
}

// CanAccess is the object-level authorization rule applied before every
// mutating or single-resource read operation: ADMIN and MANAGER may touch any
// resource, everyone else only their own.
func CanAccess(principal Principal, resourceOwnerID uuid.UUID) bool {
	if principal == nil {
		return false
	}
	if principal.IsAdmin() || principal.IsManager() {
		return true
	}
	return IsOwner(principal, resourceOwnerID)
}

// CanListAll is the collection-level half of the dual rule: listings are
// restricted to the caller's own resources unless the principal is ADMIN or
// MANAGER. Callers must pre-filter with this; the object-level check alone
// does not protect listing endpoints.
func CanListAll(principal Principal) bool {
	return principal != nil && (principal.IsAdmin() || principal.IsManager())
}
