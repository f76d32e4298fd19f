package domain

import "strings"

type Role string

const (
	RoleAdmin      Role = "admin"
	RoleManager    Role = "manager"
	RoleContractor Role = "contractor"
	RoleCustomer   Role = "customer"
	RoleCenter     Role = "center"
	RoleCrew       Role = "crew"
	RoleWarehouse  Role = "warehouse"
)

var roles = []Role{RoleAdmin, RoleManager, RoleContractor, RoleCustomer, RoleCenter, RoleCrew, RoleWarehouse}

// Roles returns the closed role set in a stable order.
func Roles() []Role {
	out := make([]Role, len(roles))
	copy(out, roles)
	return out
}

func (r Role) Valid() bool {
	for _, known := range roles {
		if r == known {
			return true
		}
	}
	return false
}

// ParseRole accepts a role name regardless of case or surrounding space.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", false
	}
	return r, true
}

// Identity is the already-authenticated caller: one role per request.
type Identity struct {
	ActorID string `json:"actor_id"`
	Role    Role   `json:"role"`
}

// SameID compares two actor ids the way acknowledgments and ownership do.
func SameID(a, b string) bool {
	a = strings.TrimSpace(a)
	b = strings.TrimSpace(b)
	return a != "" && strings.EqualFold(a, b)
}
