package model

// Role is a portal role. Roles are not mutually exclusive; a user carries a set.
type Role string

const (
	// RoleProvider can submit and manage courses for its organization
	RoleProvider Role = "Provider"
	// RoleReviewer evaluates submitted courses
	RoleReviewer Role = "Reviewer"
	// RoleAdminReadOnly can inspect administrative data but not mutate it
	RoleAdminReadOnly Role = "AdminReadOnly"
	// RoleAdminFull has every administrative capability
	RoleAdminFull Role = "AdminFull"
)

// AllRoles returns the predefined roles.
func AllRoles() []Role {
	return []Role{RoleProvider, RoleReviewer, RoleAdminReadOnly, RoleAdminFull}
}

// ParseRole safely parses a string into a Role.
func ParseRole(s string) (Role, bool) {
	r := Role(s)
	return r, r.IsValid()
}

// IsValid checks if the role is one of the predefined roles
func (r Role) IsValid() bool {
	switch r {
	case RoleProvider, RoleReviewer, RoleAdminReadOnly, RoleAdminFull:
		return true
	default:
		return false
	}
}

// IsAdmin reports whether the role carries administrative scope.
func (r Role) IsAdmin() bool {
	return r == RoleAdminFull || r == RoleAdminReadOnly
}

// RoleSet is the set of roles attached to a user or credential.
type RoleSet []Role

// Has checks membership of a single role.
func (rs RoleSet) Has(role Role) bool {
	for _, r := range rs {
		if r == role {
			return true
		}
	}
	return false
}

// HasAny checks membership of at least one of the given roles.
func (rs RoleSet) HasAny(roles ...Role) bool {
	for _, r := range roles {
		if rs.Has(r) {
			return true
		}
	}
	return false
}

// HasAdmin reports whether any role in the set is administrative.
func (rs RoleSet) HasAdmin() bool {
	return rs.HasAny(RoleAdminFull, RoleAdminReadOnly)
}

// Strings converts the set for serialization.
func (rs RoleSet) Strings() []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = string(r)
	}
	return out
}

// Valid reports whether every role in the set parses.
func (rs RoleSet) Valid() bool {
	for _, r := range rs {
		if !r.IsValid() {
			return false
		}
	}
	return true
}
