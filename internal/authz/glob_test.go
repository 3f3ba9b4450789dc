package authz

import "testing"

func TestMatchPath(t *testing.T) {
	cases := []struct {
		pattern, path string
		want          bool
	}{
		{"/api/vms/**", "/api/vms/vm-1/start", true},
		{"/api/vms/**", "/api/vms", true}, // ** matches zero segments once the literal prefix is satisfied
		{"/api/vms/**", "/api/v", false},  // literal prefix segment itself must still match
		{"/api/vms/*", "/api/vms/vm-1", true},
		{"/api/vms/*", "/api/vms/vm-1/start", false},
		{"/api/vms/*", "/api/vms", false}, // pattern longer than path
		{"**", "/anything/at/all", true},
		{"/api/vms", "/api/vms", true},
		{"/api/vms", "/api/vm", false},
	}
	for _, c := range cases {
		got := matchPath(c.pattern, c.path)
		if got != c.want {
			t.Errorf("matchPath(%q, %q) = %v, want %v", c.pattern, c.path, got, c.want)
		}
	}
}

func TestMatchPathRejectsShorterThanPattern(t *testing.T) {
	if matchPath("/api/vms/*/snapshots", "/api/vms/vm-1") {
		t.Fatal("pattern longer than path must not match")
	}
}

func TestHasPrivilege(t *testing.T) {
	if !hasPrivilege([]string{"VmRead", "VmPowerMgmt"}, "VmRead") {
		t.Fatal("expected direct privilege match")
	}
	if !hasPrivilege([]string{"*"}, "anything") {
		t.Fatal("expected wildcard privilege to match anything")
	}
	if hasPrivilege([]string{"VmRead"}, "VmPowerMgmt") {
		t.Fatal("expected no match for unrelated privilege")
	}
}
