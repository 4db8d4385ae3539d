package auth

import (
	"fmt"
	"strings"
)

// Permissions are "resource:action" capability strings, optionally wildcarded
// as "resource:*" or the bare "*". The per-role sets below are static and
// immutable at runtime; they are curated independently of the role hierarchy
// (promoting a role's rank does not grant it another role's permissions).

// Resource names form a closed enum validated against the role table at
// startup so a typo fails process boot instead of a request.
const (
	ResourceSession    = "session"
	ResourceMessage    = "message"
	ResourceAssessment = "assessment"
	ResourceMood       = "mood"
	ResourceProfile    = "profile"
	ResourceReport     = "report"
	ResourceCrisis     = "crisis"
)

const (
	ActionCreate = "create"
	ActionRead   = "read"
	ActionUpdate = "update"
	ActionDelete = "delete"
	ActionList   = "list"
)

var knownResources = map[string]struct{}{
	ResourceSession:    {},
	ResourceMessage:    {},
	ResourceAssessment: {},
	ResourceMood:       {},
	ResourceProfile:    {},
	ResourceReport:     {},
	ResourceCrisis:     {},
}

var knownActions = map[string]struct{}{
	ActionCreate: {},
	ActionRead:   {},
	ActionUpdate: {},
	ActionDelete: {},
	ActionList:   {},
}

// Perm builds a "resource:action" permission string.
func Perm(resource, action string) string {
	return resource + ":" + action
}

// rolePermissions is the static permission table. Admin owns wildcarded
// entries only.
var rolePermissions = map[Role][]string{
	RolePatient: {
		Perm(ResourceSession, ActionCreate),
		Perm(ResourceSession, ActionRead),
		Perm(ResourceMessage, ActionCreate),
		Perm(ResourceMessage, ActionRead),
		Perm(ResourceMood, ActionCreate),
		Perm(ResourceMood, ActionRead),
		Perm(ResourceAssessment, ActionCreate),
		Perm(ResourceAssessment, ActionRead),
		Perm(ResourceProfile, ActionRead),
		Perm(ResourceProfile, ActionUpdate),
	},
	RolePeer: {
		Perm(ResourceSession, ActionCreate),
		Perm(ResourceSession, ActionRead),
		Perm(ResourceSession, ActionList),
		Perm(ResourceMessage, ActionCreate),
		Perm(ResourceMessage, ActionRead),
		Perm(ResourceMood, ActionRead),
		Perm(ResourceProfile, ActionRead),
		Perm(ResourceProfile, ActionUpdate),
		Perm(ResourceReport, ActionCreate),
	},
	RoleCounselor: {
		Perm(ResourceSession, ActionCreate),
		Perm(ResourceSession, ActionRead),
		Perm(ResourceSession, ActionUpdate),
		Perm(ResourceSession, ActionList),
		Perm(ResourceMessage, ActionCreate),
		Perm(ResourceMessage, ActionRead),
		Perm(ResourceAssessment, ActionRead),
		Perm(ResourceAssessment, ActionList),
		Perm(ResourceMood, ActionRead),
		Perm(ResourceProfile, ActionRead),
		Perm(ResourceReport, ActionCreate),
		Perm(ResourceReport, ActionRead),
		Perm(ResourceReport, ActionList),
		Perm(ResourceCrisis, ActionRead),
		Perm(ResourceCrisis, ActionList),
	},
	RoleAdmin: {
		ResourceSession + ":*",
		ResourceMessage + ":*",
		ResourceAssessment + ":*",
		ResourceMood + ":*",
		ResourceProfile + ":*",
		ResourceReport + ":*",
		ResourceCrisis + ":*",
	},
}

// roleGrants is the lookup form of rolePermissions, built once.
var roleGrants = func() map[Role]map[string]struct{} {
	grants := make(map[Role]map[string]struct{}, len(rolePermissions))
	for role, perms := range rolePermissions {
		set := make(map[string]struct{}, len(perms))
		for _, p := range perms {
			set[p] = struct{}{}
		}
		grants[role] = set
	}
	return grants
}()

// HasPermission reports whether the principal's role set contains the exact
// permission, the "resource:*" wildcard, or the bare "*". This is strict set
// membership: a peer does not gain a counselor-only permission even though
// the peer rank is below counselor in the hierarchy.
func (p Principal) HasPermission(permission string) bool {
	grants, ok := roleGrants[p.Role]
	if !ok {
		return false
	}
	if _, ok := grants[permission]; ok {
		return true
	}
	resource, _, ok := splitPermission(permission)
	if !ok {
		return false
	}
	if _, ok := grants[resource+":*"]; ok {
		return true
	}
	_, ok = grants["*"]
	return ok
}

// PermissionsForRole returns a copy of the role's static permission set.
func PermissionsForRole(role Role) []string {
	perms := rolePermissions[role]
	out := make([]string, len(perms))
	copy(out, perms)
	return out
}

func splitPermission(permission string) (resource, action string, ok bool) {
	idx := strings.IndexByte(permission, ':')
	if idx <= 0 || idx == len(permission)-1 {
		return "", "", false
	}
	return permission[:idx], permission[idx+1:], true
}

// ValidatePermissions checks every entry of the static role table against the
// closed resource and action enums. Called once at process start; a failure
// here means the table was edited with a typo.
func ValidatePermissions() error {
	for _, role := range Roles() {
		perms, ok := rolePermissions[role]
		if !ok {
			return fmt.Errorf("auth: role %q has no permission set", role)
		}
		for _, p := range perms {
			if p == "*" {
				continue
			}
			resource, action, ok := splitPermission(p)
			if !ok {
				return fmt.Errorf("auth: role %q: malformed permission %q", role, p)
			}
			if _, ok := knownResources[resource]; !ok {
				return fmt.Errorf("auth: role %q: unknown resource in %q", role, p)
			}
			if action == "*" {
				continue
			}
			if _, ok := knownActions[action]; !ok {
				return fmt.Errorf("auth: role %q: unknown action in %q", role, p)
			}
		}
	}
	for role, perms := range rolePermissions {
		if role != RoleAdmin {
			continue
		}
		for _, p := range perms {
			if !strings.HasSuffix(p, ":*") && p != "*" {
				return fmt.Errorf("auth: admin permission %q must be wildcarded", p)
			}
		}
	}
	return nil
}
