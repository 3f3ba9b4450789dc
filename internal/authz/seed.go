package authz

// DefaultRoles returns the built-in role set horcruxd seeds an empty store
// with on first start: an unrestricted admin role, an operator role scoped
// to VM power management (the exact shape the example in §5 names), and a
// read-only viewer role.
func DefaultRoles() []Role {
	return []Role{
		{
			ID:   "role-admin",
			Name: "admin",
			Rules: []Rule{
				{PathGlob: "**", Privileges: []string{"*"}},
			},
		},
		{
			ID:   "role-operator",
			Name: "operator",
			Rules: []Rule{
				{PathGlob: "/api/vms/**", Privileges: []string{"VmPowerMgmt", "VmRead"}},
				{PathGlob: "/api/containers/**", Privileges: []string{"VmPowerMgmt", "VmRead"}},
				{PathGlob: "/console-ws", Privileges: []string{"VmRead"}},
				{PathGlob: "/api/ws", Privileges: []string{"VmRead"}},
			},
		},
		{
			ID:   "role-viewer",
			Name: "viewer",
			Rules: []Rule{
				{PathGlob: "/api/**", Privileges: []string{"VmRead"}},
				{PathGlob: "/console-ws", Privileges: []string{"VmRead"}},
				{PathGlob: "/api/ws", Privileges: []string{"VmRead"}},
			},
		},
	}
}
