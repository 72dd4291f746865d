package rbac

import (
	"fmt"
	"sort"
	"strings"
)

// Permission is an atomic access right of the form <resource>.<action>.
type Permission string

// Resource returns the part before the last dot.
func (p Permission) Resource() string {
	idx := strings.LastIndexByte(string(p), '.')
	if idx < 0 {
		return ""
	}
	return string(p[:idx])
}

// Action returns the part after the last dot.
func (p Permission) Action() string {
	idx := strings.LastIndexByte(string(p), '.')
	if idx < 0 {
		return ""
	}
	return string(p[idx+1:])
}

// PermissionFor builds the permission identifier for an action on a resource.
func PermissionFor(resource, action string) Permission {
	return Permission(normalize(resource) + "." + normalize(action))
}

// Category groups permissions for display. Categories partition the catalog.
type Category string

// Role is one of a closed set of roles.
type Role string

// Known roles, highest privilege first.
const (
	RoleSuperAdmin     Role = "super_admin"
	RoleMunicipalAdmin Role = "municipal_admin"
	RoleAdmin          Role = "admin"
	RoleModerator      Role = "moderator"
	RoleViewer         Role = "viewer"
)

var allRoles = []Role{RoleSuperAdmin, RoleMunicipalAdmin, RoleAdmin, RoleModerator, RoleViewer}

// Roles returns the closed role enumeration.
func Roles() []Role {
	out := make([]Role, len(allRoles))
	copy(out, allRoles)
	return out
}

// Valid reports whether r belongs to the enumeration.
func (r Role) Valid() bool {
	for _, known := range allRoles {
		if r == known {
			return true
		}
	}
	return false
}

// ParseRole converts raw input into a Role.
func ParseRole(raw string) (Role, error) {
	role := Role(normalize(raw))
	if !role.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, raw)
	}
	return role, nil
}

// PermissionSet is a set of permissions. Values handed out by the registry are copies.
type PermissionSet map[Permission]struct{}

// NewPermissionSet builds a set from the given permissions.
func NewPermissionSet(perms ...Permission) PermissionSet {
	set := make(PermissionSet, len(perms))
	for _, p := range perms {
		set[p] = struct{}{}
	}
	return set
}

// ParsePermissionSet normalizes raw permission names into a set, skipping blanks.
func ParsePermissionSet(raw []string) PermissionSet {
	set := make(PermissionSet, len(raw))
	for _, p := range raw {
		p = normalize(p)
		if p == "" {
			continue
		}
		set[Permission(p)] = struct{}{}
	}
	return set
}

// Has reports membership. A nil set contains nothing.
func (s PermissionSet) Has(p Permission) bool {
	_, ok := s[p]
	return ok
}

// Slice returns the members sorted by name.
func (s PermissionSet) Slice() []Permission {
	out := make([]Permission, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Subject is the acting principal as resolved by the identity collaborator.
type Subject struct {
	ID          string
	Name        string
	Email       string
	Role        Role
	Permissions PermissionSet
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
