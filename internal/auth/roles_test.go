package auth

import "testing"

func TestPermsForRole(t *testing.T) {
	customer := PermsForRole("customer")
	if _, ok := customer[PermJobBook]; !ok {
		t.Fatalf("customer should hold %s", PermJobBook)
	}
	if _, ok := customer[PermJobLocation]; ok {
		t.Fatalf("customer should not hold %s", PermJobLocation)
	}

	technician := PermsForRole("technician")
	if _, ok := technician[PermJobLocation]; !ok {
		t.Fatalf("technician should hold %s", PermJobLocation)
	}
	if _, ok := technician[PermJobBook]; ok {
		t.Fatalf("technician should not book jobs")
	}
	// Cancellation rides on job:transition for both parties.
	if _, ok := technician[PermJobTransition]; !ok {
		t.Fatalf("technician should hold %s", PermJobTransition)
	}
	if _, ok := customer[PermJobTransition]; !ok {
		t.Fatalf("customer should hold %s", PermJobTransition)
	}

	admin := PermsForRole("admin")
	if _, ok := admin[PermAdminAll]; !ok {
		t.Fatalf("admin should hold %s", PermAdminAll)
	}

	if perms := PermsForRole("dispatcher"); len(perms) != 0 {
		t.Fatalf("unknown role should hold no permissions, got %v", perms)
	}
}
