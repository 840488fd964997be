package harness

import "sort"

// FixtureRole names one file of a fixture bundle.
type FixtureRole string

const (
	// RoleSource is the source-language description fed to a generator (.lan, .san).
	RoleSource FixtureRole = "source"
	// RoleInput is the raw program input fed to the analyzer on stdin.
	RoleInput FixtureRole = "input"
	// RoleExpected is the golden output or the expected final register value.
	RoleExpected FixtureRole = "expected"
)

// TestCase is one discovered fixture bundle. It is immutable once discovered.
type TestCase struct {
	Name  string
	Files map[FixtureRole]string
}

// Path returns the resolved path for role, if the bundle carries it.
func (tc TestCase) Path(role FixtureRole) (string, bool) {
	p, ok := tc.Files[role]
	return p, ok && p != ""
}

// Roles lists the roles present in the bundle in a stable order.
func (tc TestCase) Roles() []FixtureRole {
	roles := make([]FixtureRole, 0, len(tc.Files))
	for role := range tc.Files {
		roles = append(roles, role)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })
	return roles
}
