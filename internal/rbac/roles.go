package rbac

import "fmt"

// RoleInfo summarises a role for listings.
type RoleInfo struct {
	Role        Role         `json:"role"`
	Permissions []Permission `json:"permissions"`
}

// Registry maps each role to the permissions it grants. The mapping is static
// configuration validated against the catalog at startup.
type Registry struct {
	catalog *Catalog
	grants  map[Role]PermissionSet
}

// NewRegistry validates grants against catalog. Every enumerated role must be
// configured and may only reference catalog permissions.
func NewRegistry(catalog *Catalog, grants map[Role][]Permission) (*Registry, error) {
	if catalog == nil {
		return nil, fmt.Errorf("%w: catalog required", ErrInvalidCatalog)
	}
	reg := &Registry{catalog: catalog, grants: make(map[Role]PermissionSet, len(grants))}
	for role, perms := range grants {
		if !role.Valid() {
			return nil, fmt.Errorf("%w: %w %q", ErrInvalidCatalog, ErrUnknownRole, role)
		}
		set := make(PermissionSet, len(perms))
		for _, p := range perms {
			if !catalog.Has(p) {
				return nil, fmt.Errorf("%w: role %q grants %w %q", ErrInvalidCatalog, role, ErrUnknownPermission, p)
			}
			set[p] = struct{}{}
		}
		reg.grants[role] = set
	}
	for _, role := range allRoles {
		if _, ok := reg.grants[role]; !ok {
			return nil, fmt.Errorf("%w: role %q has no permission mapping", ErrInvalidCatalog, role)
		}
	}
	return reg, nil
}

// Catalog returns the catalog the registry was validated against.
func (r *Registry) Catalog() *Catalog {
	return r.catalog
}

// PermissionsForRole returns a copy of the permissions granted to role. Values
// outside the enumeration grant nothing.
func (r *Registry) PermissionsForRole(role Role) PermissionSet {
	granted := r.grants[role]
	out := make(PermissionSet, len(granted))
	for p := range granted {
		out[p] = struct{}{}
	}
	return out
}

// Describe returns the role with its permissions in catalog order.
func (r *Registry) Describe(role Role) RoleInfo {
	return RoleInfo{Role: role, Permissions: r.catalog.Sorted(r.grants[role])}
}

// List describes every role of the enumeration.
func (r *Registry) List() []RoleInfo {
	out := make([]RoleInfo, 0, len(allRoles))
	for _, role := range allRoles {
		out = append(out, r.Describe(role))
	}
	return out
}

// SubjectFor builds a subject carrying the full permission set of role.
func (r *Registry) SubjectFor(id string, role Role) Subject {
	return Subject{ID: id, Role: role, Permissions: r.PermissionsForRole(role)}
}
