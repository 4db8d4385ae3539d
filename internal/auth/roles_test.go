package auth

import "testing"

func TestRoleHierarchyIsStrictlyOrdered(t *testing.T) {
	roles := Roles()
	for i := 1; i < len(roles); i++ {
		if roles[i-1].Rank() >= roles[i].Rank() {
			t.Fatalf("rank(%s)=%d not below rank(%s)=%d",
				roles[i-1], roles[i-1].Rank(), roles[i], roles[i].Rank())
		}
	}
}

func TestHasRoleIsRankBased(t *testing.T) {
	for _, holder := range Roles() {
		for _, required := range Roles() {
			got := Principal{Role: holder}.HasRole(required)
			want := holder.Rank() >= required.Rank()
			if got != want {
				t.Errorf("HasRole(%s required=%s) = %v, want %v", holder, required, got, want)
			}
		}
	}
}

func TestHasRoleRequiredListIsOr(t *testing.T) {
	p := Principal{Role: RolePeer}
	if !p.HasRole(RoleCounselor, RolePatient) {
		t.Fatal("peer should pass when any required role is at or below its rank")
	}
	if p.HasRole(RoleCounselor, RoleAdmin) {
		t.Fatal("peer should fail when every required role outranks it")
	}
}

func TestHasRoleUnknownRole(t *testing.T) {
	if (Principal{Role: "superuser"}).HasRole(RolePatient) {
		t.Fatal("unknown role must never pass a role gate")
	}
	if (Principal{Role: RoleAdmin}).HasRole("superuser") {
		t.Fatal("unknown required role must not match")
	}
}

func TestParseRole(t *testing.T) {
	if role, ok := ParseRole("  Counselor "); !ok || role != RoleCounselor {
		t.Fatalf("ParseRole normalized = %q ok=%v", role, ok)
	}
	if _, ok := ParseRole("root"); ok {
		t.Fatal("ParseRole accepted an unknown role")
	}
}

func TestHasPermissionIsSetBasedNotRankBased(t *testing.T) {
	// Counselor holds report:read; peer ranks below but also lacks it.
	counselor := Principal{Role: RoleCounselor}
	peer := Principal{Role: RolePeer}
	if !counselor.HasPermission(Perm(ResourceReport, ActionRead)) {
		t.Fatal("counselor should hold report:read")
	}
	if peer.HasPermission(Perm(ResourceReport, ActionRead)) {
		t.Fatal("peer must not inherit counselor permissions")
	}

	// Admin outranks counselor but holds only wildcards, which still match.
	admin := Principal{Role: RoleAdmin}
	if !admin.HasPermission(Perm(ResourceReport, ActionRead)) {
		t.Fatal("admin wildcard should cover report:read")
	}
}

func TestHasPermissionWildcards(t *testing.T) {
	admin := Principal{Role: RoleAdmin}
	for _, perm := range []string{
		Perm(ResourceSession, ActionDelete),
		Perm(ResourceCrisis, ActionList),
		Perm(ResourceMood, ActionUpdate),
	} {
		if !admin.HasPermission(perm) {
			t.Errorf("admin should hold %s via wildcard", perm)
		}
	}
	if admin.HasPermission("malformed") {
		t.Fatal("permission without a colon must not match a wildcard")
	}
	if admin.HasPermission("billing:read") {
		t.Fatal("wildcards cover only their own resource, not arbitrary ones")
	}
}

func TestHasPermissionUnknownRole(t *testing.T) {
	if (Principal{Role: "ghost"}).HasPermission(Perm(ResourceSession, ActionRead)) {
		t.Fatal("unknown role has no permission set")
	}
}

func TestValidatePermissions(t *testing.T) {
	if err := ValidatePermissions(); err != nil {
		t.Fatalf("static permission table invalid: %v", err)
	}
}

func TestPermissionsForRoleReturnsCopy(t *testing.T) {
	perms := PermissionsForRole(RolePatient)
	if len(perms) == 0 {
		t.Fatal("patient permission set is empty")
	}
	perms[0] = "tampered"
	if PermissionsForRole(RolePatient)[0] == "tampered" {
		t.Fatal("PermissionsForRole exposed the underlying table")
	}
}
