package rbac

// MatchMode selects how a permission list is matched.
type MatchMode int

const (
	// MatchAny grants when at least one listed permission is held.
	MatchAny MatchMode = iota
	// MatchAll grants when every listed permission is held.
	MatchAll
)

// Predicate is the closed set of access checks understood by the Evaluator.
type Predicate interface {
	isPredicate()
}

// HasPermission requires a single permission.
type HasPermission struct {
	Permission Permission
}

// HasPermissions requires any or all of a permission list.
type HasPermissions struct {
	Permissions []Permission
	Mode        MatchMode
}

// HasRole requires the subject to hold exactly this role.
type HasRole struct {
	Role Role
}

// HasAnyRole requires the subject's role to be one of Roles.
type HasAnyRole struct {
	Roles []Role
}

// CanPerform is shorthand for the permission <Resource>.<Action>.
type CanPerform struct {
	Action   string
	Resource string
}

func (HasPermission) isPredicate()  {}
func (HasPermissions) isPredicate() {}
func (HasRole) isPredicate()        {}
func (HasAnyRole) isPredicate()     {}
func (CanPerform) isPredicate()     {}

// Query is a predicate plus an optional inversion. A nil Predicate means no
// check was requested.
type Query struct {
	Predicate Predicate
	Invert    bool
}

// Not returns the query with its inversion flag flipped.
func (q Query) Not() Query {
	q.Invert = !q.Invert
	return q
}

// Empty reports whether no predicate is set.
func (q Query) Empty() bool {
	return q.Predicate == nil
}

// RequirePermission builds a single permission query.
func RequirePermission(p Permission) Query {
	return Query{Predicate: HasPermission{Permission: p}}
}

// RequireAnyPermission builds an ANY-mode permission list query.
func RequireAnyPermission(perms ...Permission) Query {
	return Query{Predicate: HasPermissions{Permissions: perms, Mode: MatchAny}}
}

// RequireAllPermissions builds an ALL-mode permission list query.
func RequireAllPermissions(perms ...Permission) Query {
	return Query{Predicate: HasPermissions{Permissions: perms, Mode: MatchAll}}
}

// RequireRole builds a single role query.
func RequireRole(role Role) Query {
	return Query{Predicate: HasRole{Role: role}}
}

// RequireAnyRole builds a role list query.
func RequireAnyRole(roles ...Role) Query {
	return Query{Predicate: HasAnyRole{Roles: roles}}
}

// RequireAction builds an action on resource query.
func RequireAction(action, resource string) Query {
	return Query{Predicate: CanPerform{Action: action, Resource: resource}}
}

// AccessRequest is the JSON form of a query. Callers are expected to set at
// most one branch; when several are set the first in this order wins:
// permission, permissions, role, roles, action+resource.
type AccessRequest struct {
	Permission  string   `json:"permission,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
	RequireAll  bool     `json:"requireAll,omitempty"`
	Role        string   `json:"role,omitempty"`
	Roles       []string `json:"roles,omitempty"`
	Action      string   `json:"action,omitempty"`
	Resource    string   `json:"resource,omitempty"`
	Invert      bool     `json:"invert,omitempty"`
}

// Query converts the request into a Query.
func (r AccessRequest) Query() Query {
	q := Query{Invert: r.Invert}
	switch {
	case normalize(r.Permission) != "":
		q.Predicate = HasPermission{Permission: Permission(normalize(r.Permission))}
	case len(r.Permissions) > 0:
		perms := make([]Permission, 0, len(r.Permissions))
		for _, p := range r.Permissions {
			perms = append(perms, Permission(normalize(p)))
		}
		mode := MatchAny
		if r.RequireAll {
			mode = MatchAll
		}
		q.Predicate = HasPermissions{Permissions: perms, Mode: mode}
	case normalize(r.Role) != "":
		q.Predicate = HasRole{Role: Role(normalize(r.Role))}
	case len(r.Roles) > 0:
		roles := make([]Role, 0, len(r.Roles))
		for _, role := range r.Roles {
			roles = append(roles, Role(normalize(role)))
		}
		q.Predicate = HasAnyRole{Roles: roles}
	case normalize(r.Action) != "" || normalize(r.Resource) != "":
		q.Predicate = CanPerform{Action: r.Action, Resource: r.Resource}
	}
	return q
}
