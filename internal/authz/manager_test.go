package authz

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/horcrux-project/horcrux/internal/config"
	"github.com/horcrux-project/horcrux/internal/store"
)

func newTestManager(t *testing.T) Manager {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "authz.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return NewManager(s, config.Config{AuthRateLimitPerMin: 3})
}

func TestSeedDefaultRolesAndPermits(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	for _, r := range DefaultRoles() {
		if err := m.CreateRole(ctx, r); err != nil {
			t.Fatalf("seed role %s: %v", r.Name, err)
		}
	}

	ok, err := m.Permits(ctx, []string{"role-operator"}, "/api/vms/vm-1/start", "VmPowerMgmt")
	if err != nil || !ok {
		t.Fatalf("expected operator to permit VM power mgmt, got ok=%v err=%v", ok, err)
	}

	ok, err = m.Permits(ctx, []string{"role-operator"}, "/api/users", "VmPowerMgmt")
	if err != nil || ok {
		t.Fatalf("expected operator to be denied on /api/users, got ok=%v err=%v", ok, err)
	}

	ok, err = m.Permits(ctx, []string{"role-viewer"}, "/api/vms/vm-1", "VmPowerMgmt")
	if err != nil || ok {
		t.Fatalf("expected viewer to be denied VmPowerMgmt, got ok=%v err=%v", ok, err)
	}

	ok, err = m.Permits(ctx, []string{"role-admin"}, "/api/anything/at/all", "anything")
	if err != nil || !ok {
		t.Fatalf("expected admin to permit everything, got ok=%v err=%v", ok, err)
	}
}

func TestPermitsDefaultDenyUnknownRole(t *testing.T) {
	m := newTestManager(t)
	ok, err := m.Permits(context.Background(), []string{"role-does-not-exist"}, "/api/vms", "VmRead")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected default deny for unknown role binding")
	}
}

func TestPermitsDefaultDenyEmptyRoles(t *testing.T) {
	m := newTestManager(t)
	ok, err := m.Permits(context.Background(), nil, "/api/vms", "VmRead")
	if err != nil || ok {
		t.Fatalf("expected default deny for no role bindings, got ok=%v err=%v", ok, err)
	}
}

func TestCreateRoleDuplicateNameRejected(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	r := Role{ID: "role-1", Name: "dup", Rules: []Rule{{PathGlob: "**", Privileges: []string{"read"}}}}
	if err := m.CreateRole(ctx, r); err != nil {
		t.Fatalf("create role: %v", err)
	}
	err := m.CreateRole(ctx, Role{ID: "role-2", Name: "dup"})
	if err != ErrRoleExists {
		t.Fatalf("expected ErrRoleExists, got %v", err)
	}
}

func TestUpdateAndDeleteRole(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	r := Role{ID: "role-1", Name: "temp", Rules: []Rule{{PathGlob: "/x/*", Privileges: []string{"read"}}}}
	if err := m.CreateRole(ctx, r); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := m.UpdateRole(ctx, r.ID, func(role *Role) error {
		role.Rules = append(role.Rules, Rule{PathGlob: "/y/*", Privileges: []string{"write"}})
		return nil
	}); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := m.GetRole(ctx, r.ID)
	if err != nil || len(got.Rules) != 2 {
		t.Fatalf("expected 2 rules after update, got %+v err=%v", got, err)
	}
	if err := m.DeleteRole(ctx, r.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := m.GetRole(ctx, r.ID); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestListRoles(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	for _, r := range DefaultRoles() {
		if err := m.CreateRole(ctx, r); err != nil {
			t.Fatalf("create %s: %v", r.Name, err)
		}
	}
	roles, err := m.ListRoles(ctx)
	if err != nil || len(roles) != len(DefaultRoles()) {
		t.Fatalf("expected %d roles, got %d err=%v", len(DefaultRoles()), len(roles), err)
	}
}

func TestRateLimitAllowsUpToLimitThenBlocks(t *testing.T) {
	m := newTestManager(t) // limit 3/min
	key := "user-1"
	for i := 0; i < 3; i++ {
		if !m.Allow(key) {
			t.Fatalf("expected request %d to be allowed", i)
		}
	}
	if m.Allow(key) {
		t.Fatal("expected 4th request within the window to be blocked")
	}
}

func TestRateLimitResetsAfterWindow(t *testing.T) {
	now := time.Now()
	l := newLimiter(1, time.Minute, func() time.Time { return now })
	if !l.Allow("k") {
		t.Fatal("expected first request allowed")
	}
	if l.Allow("k") {
		t.Fatal("expected second request within window blocked")
	}
	now = now.Add(time.Minute + time.Second)
	if !l.Allow("k") {
		t.Fatal("expected request allowed after window rollover")
	}
}

func TestRateLimitForgetClearsState(t *testing.T) {
	l := newLimiter(1, time.Minute, time.Now)
	l.Allow("k")
	l.Forget("k")
	if !l.Allow("k") {
		t.Fatal("expected Forget to reset the window")
	}
}
