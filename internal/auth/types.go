package auth

import "errors"

// Role represents an authorisation tier carried in the access token.
type Role string

const (
	// RoleViewer can read blind state, the journal and astronomy data.
	RoleViewer Role = "viewer"

	// RoleOperator can additionally move blinds: send events, set and clear
	// overrides, switch the sun mode.
	RoleOperator Role = "operator"

	// RoleAdmin can also maintain the service, e.g. prune the journal.
	RoleAdmin Role = "admin"
)

// ValidRoles is the set of roles a token may carry.
var ValidRoles = []Role{RoleViewer, RoleOperator, RoleAdmin}

// IsValidRole returns true if r is a known role.
func IsValidRole(r Role) bool {
	for _, v := range ValidRoles {
		if r == v {
			return true
		}
	}
	return false
}

// Sentinel errors for auth operations.
var (
	ErrTokenInvalid = errors.New("invalid token")
	ErrInvalidRole  = errors.New("invalid role")
	ErrForbidden    = errors.New("insufficient permissions")
)
