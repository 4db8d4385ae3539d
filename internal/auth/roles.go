package auth

import "strings"

// Role identifies the principal's position in the platform hierarchy.
type Role string

const (
	RolePatient   Role = "patient"
	RolePeer      Role = "peer"
	RoleCounselor Role = "counselor"
	RoleAdmin     Role = "admin"
)

// roleRank orders roles so that a higher rank is a superset of privileges of
// every lower rank for role-gated operations. Permission-string checks are
// set based, not rank based; see permissions.go.
var roleRank = map[Role]int{
	RolePatient:   1,
	RolePeer:      2,
	RoleCounselor: 3,
	RoleAdmin:     4,
}

// ParseRole normalizes a role string. Unknown values return false.
func ParseRole(s string) (Role, bool) {
	role := Role(strings.TrimSpace(strings.ToLower(s)))
	if _, ok := roleRank[role]; !ok {
		return "", false
	}
	return role, true
}

// Rank returns the hierarchy rank of the role, zero for unknown roles.
func (r Role) Rank() int { return roleRank[r] }

// Valid reports whether the role is a member of the closed hierarchy.
func (r Role) Valid() bool { return roleRank[r] != 0 }

// Roles lists every role in ascending rank order.
func Roles() []Role {
	return []Role{RolePatient, RolePeer, RoleCounselor, RoleAdmin}
}

// HasRole reports whether the principal's rank is at or above the rank of any
// one of the required roles. The required list is OR'd: a counselor passes a
// gate that requires peer.
func (p Principal) HasRole(required ...Role) bool {
	rank := p.Role.Rank()
	if rank == 0 {
		return false
	}
	for _, req := range required {
		if reqRank := req.Rank(); reqRank != 0 && rank >= reqRank {
			return true
		}
	}
	return false
}
