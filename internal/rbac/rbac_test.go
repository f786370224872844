package rbac

import "testing"

func TestCan(t *testing.T) {
	cases := []struct {
		name   string
		role   Role
		action Action
		allow  bool
	}{
		{name: "member read", role: RoleMember, action: ActionRead, allow: true},
		{name: "member write", role: RoleMember, action: ActionWrite, allow: true},
		{name: "member approve", role: RoleMember, action: ActionApprove, allow: false},
		{name: "manager approve", role: RoleManager, action: ActionApprove, allow: true},
		{name: "manager admin", role: RoleManager, action: ActionAdmin, allow: false},
		{name: "admin admin", role: RoleAdmin, action: ActionAdmin, allow: true},
		{name: "unknown role", role: Role("guest"), action: ActionRead, allow: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Can(tc.role, tc.action); got != tc.allow {
				t.Fatalf("Can(%q, %q) = %v, want %v", tc.role, tc.action, got, tc.allow)
			}
		})
	}
}

func TestCanEdit(t *testing.T) {
	if !CanEdit(RoleMember, "u1", "u1") {
		t.Fatal("members edit their own objectives")
	}
	if CanEdit(RoleMember, "u1", "u2") {
		t.Fatal("members cannot edit other objectives")
	}
	if !CanEdit(RoleManager, "u1", "u2") {
		t.Fatal("managers edit any objective")
	}
}

func TestNormalize(t *testing.T) {
	if Normalize("admin") != RoleAdmin || Normalize("owner") != RoleMember || Normalize("") != RoleMember {
		t.Fatal("unexpected normalization")
	}
}
