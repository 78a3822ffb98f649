package auth

// Permission represents a named capability in the system.
type Permission string

// Permission constants.
const (
	PermBlindRead    Permission = "blind:read"
	PermBlindOperate Permission = "blind:operate"
	PermJournalRead  Permission = "journal:read"
	PermSystemAdmin  Permission = "system:admin"
)

// rolePermissions maps each role to its granted permissions.
// This is the single source of truth for the authorisation model.
var rolePermissions = map[Role][]Permission{
	RoleViewer: {
		PermBlindRead,
		PermJournalRead,
	},
	RoleOperator: {
		PermBlindRead,
		PermBlindOperate,
		PermJournalRead,
	},
	RoleAdmin: {
		PermBlindRead,
		PermBlindOperate,
		PermJournalRead,
		PermSystemAdmin,
	},
}

// HasPermission returns true if the given role has the specified permission.
func HasPermission(role Role, perm Permission) bool {
	perms, ok := rolePermissions[role]
	if !ok {
		return false
	}
	for _, p := range perms {
		if p == perm {
			return true
		}
	}
	return false
}

// PermissionsForRole returns all permissions granted to a role.
// Returns nil for unknown roles.
func PermissionsForRole(role Role) []Permission {
	perms := rolePermissions[role]
	if perms == nil {
		return nil
	}
	result := make([]Permission, len(perms))
	copy(result, perms)
	return result
}
