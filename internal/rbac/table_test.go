package rbac

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultTableCoversEveryRole(t *testing.T) {
	table, err := DefaultTable()
	require.NoError(t, err)

	for _, role := range Roles() {
		_, ok := table.Snapshot()[string(role)]
		require.True(t, ok, "role %s missing", role)
	}
}

func TestAllowsMatchesMembership(t *testing.T) {
	table, err := DefaultTable()
	require.NoError(t, err)

	all := map[string]struct{}{}
	for _, perms := range table.Snapshot() {
		for _, p := range perms {
			all[p] = struct{}{}
		}
	}
	for _, role := range Roles() {
		granted := map[string]struct{}{}
		for _, p := range table.Permissions(role) {
			granted[p] = struct{}{}
		}
		for p := range all {
			_, want := granted[p]
			require.Equal(t, want, table.Allows(role, p), "role=%s perm=%s", role, p)
		}
	}
}

func TestDefaultTableSpotChecks(t *testing.T) {
	table, err := DefaultTable()
	require.NoError(t, err)

	require.True(t, table.Allows(RoleAdmin, "settings_full"))
	require.False(t, table.Allows(RoleAdmin, "orders_customer"))
	require.True(t, table.Allows(RoleCustomer, "products_view"))
	require.False(t, table.Allows(RoleCustomer, "products_full"))
	require.False(t, table.Allows(Role("guest"), "products_view"))
	require.False(t, table.Allows(RoleAdmin, ""))
}

func TestNewTableRejectsMissingRole(t *testing.T) {
	_, err := NewTable(map[Role][]string{
		RoleAdmin: {"a"},
		RoleStaff: {"b"},
	})
	require.Error(t, err)
}

func TestNewTableAllowsEmptyRole(t *testing.T) {
	table, err := NewTable(map[Role][]string{
		RoleAdmin:    {"a", "a", " b "},
		RoleStaff:    {},
		RoleCustomer: nil,
		RoleSupplier: {"c"},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, table.Permissions(RoleAdmin))
	require.Empty(t, table.Permissions(RoleStaff))
	require.False(t, table.Allows(RoleStaff, "a"))
}

func TestParseTableRejectsUnknownRole(t *testing.T) {
	_, err := ParseTable([]byte("roles:\n  admin: []\n  staff: []\n  customer: []\n  supplier: []\n  guest: [x]\n"))
	require.Error(t, err)
}

func TestLoadTableFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roles.yaml")
	content := "roles:\n  admin: [settings_full]\n  staff: []\n  customer: [products_view]\n  supplier: []\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	table, err := LoadTable(path)
	require.NoError(t, err)
	require.True(t, table.Allows(RoleAdmin, "settings_full"))
	require.False(t, table.Allows(RoleAdmin, "products_full"))
}

func TestPermissionsReturnsCopy(t *testing.T) {
	table, err := DefaultTable()
	require.NoError(t, err)
	perms := table.Permissions(RoleCustomer)
	perms[0] = "tampered"
	require.NotContains(t, table.Permissions(RoleCustomer), "tampered")
}

func TestRoleLabel(t *testing.T) {
	require.Equal(t, "Supplier", RoleSupplier.Label())
	_, err := ParseRole("owner")
	require.Error(t, err)
}
