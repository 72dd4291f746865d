package rbac

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func smallRegistry(t *testing.T) *Registry {
	t.Helper()
	catalog, err := NewCatalog(CatalogConfig{
		Permissions: []PermissionDef{
			{Name: "users.view", Description: "View users"},
			{Name: "users.create", Description: "Create users"},
			{Name: "users.update", Description: "Update users"},
			{Name: "users.delete", Description: "Delete users"},
		},
		Categories: []CategoryDef{
			{Name: "Users", Permissions: []Permission{"users.view", "users.create", "users.update", "users.delete"}},
		},
	})
	require.NoError(t, err)
	reg, err := NewRegistry(catalog, map[Role][]Permission{
		RoleSuperAdmin:     catalog.Permissions(),
		RoleMunicipalAdmin: {"users.view", "users.update"},
		RoleAdmin:          {"users.delete", "users.view", "users.create"},
		RoleModerator:      {"users.view", "users.update"},
		RoleViewer:         {"users.view"},
	})
	require.NoError(t, err)
	return reg
}

func TestDiffViewerToAdmin(t *testing.T) {
	d := NewDiffer(smallRegistry(t))
	diff := d.Diff(RoleViewer, RoleAdmin)
	require.Equal(t, []Permission{"users.create", "users.delete"}, diff.Added)
	require.Empty(t, diff.Removed)
}

func TestDiffIsOrderedByCatalog(t *testing.T) {
	d := NewDiffer(smallRegistry(t))
	diff := d.Diff(RoleAdmin, RoleModerator)
	require.Equal(t, []Permission{"users.update"}, diff.Added)
	require.Equal(t, []Permission{"users.create", "users.delete"}, diff.Removed)
}

func TestDiffSameRoleIsEmpty(t *testing.T) {
	d := NewDiffer(MustDefault())
	for _, role := range Roles() {
		diff := d.Diff(role, role)
		if len(diff.Added) != 0 || len(diff.Removed) != 0 {
			t.Fatalf("diff(%s, %s) = %+v, want empty", role, role, diff)
		}
	}
}

func TestDiffMatchesSymmetricDifference(t *testing.T) {
	reg := MustDefault()
	d := NewDiffer(reg)
	for _, a := range Roles() {
		for _, b := range Roles() {
			diff := d.Diff(a, b)
			setA, setB := reg.PermissionsForRole(a), reg.PermissionsForRole(b)

			added := NewPermissionSet(diff.Added...)
			removed := NewPermissionSet(diff.Removed...)
			for p := range added {
				if removed.Has(p) {
					t.Fatalf("diff(%s, %s): %s both added and removed", a, b, p)
				}
			}

			want := make(PermissionSet)
			for p := range setA {
				if !setB.Has(p) {
					want[p] = struct{}{}
				}
			}
			for p := range setB {
				if !setA.Has(p) {
					want[p] = struct{}{}
				}
			}
			union := NewPermissionSet(append(append([]Permission{}, diff.Added...), diff.Removed...)...)
			require.Equal(t, want, union, "diff(%s, %s)", a, b)
			require.Len(t, union, len(diff.Added)+len(diff.Removed))
		}
	}
}
