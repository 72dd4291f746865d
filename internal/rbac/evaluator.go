package rbac

// Evaluator decides whether a subject satisfies a Query. It holds no mutable
// state and is safe for concurrent use.
type Evaluator struct {
	catalog *Catalog
}

// NewEvaluator builds an Evaluator. The catalog is used only to resolve
// action+resource shorthands.
func NewEvaluator(catalog *Catalog) *Evaluator {
	return &Evaluator{catalog: catalog}
}

// Allowed evaluates q against subject. It never fails: malformed predicates
// deny, and a query without a predicate allows.
func (e *Evaluator) Allowed(subject Subject, q Query) bool {
	allowed := e.evaluate(subject, q.Predicate)
	if q.Invert {
		return !allowed
	}
	return allowed
}

func (e *Evaluator) evaluate(subject Subject, pred Predicate) bool {
	switch p := pred.(type) {
	case nil:
		return true
	case HasPermission:
		return p.Permission != "" && subject.Permissions.Has(p.Permission)
	case HasPermissions:
		return matchPermissions(subject.Permissions, p)
	case HasRole:
		return p.Role.Valid() && subject.Role == p.Role
	case HasAnyRole:
		for _, role := range p.Roles {
			if role.Valid() && subject.Role == role {
				return true
			}
		}
		return false
	case CanPerform:
		if e == nil || normalize(p.Action) == "" || normalize(p.Resource) == "" {
			return false
		}
		perm := PermissionFor(p.Resource, p.Action)
		if !e.catalog.Has(perm) {
			return false
		}
		return subject.Permissions.Has(perm)
	default:
		return false
	}
}

func matchPermissions(granted PermissionSet, p HasPermissions) bool {
	if len(p.Permissions) == 0 {
		return false
	}
	switch p.Mode {
	case MatchAll:
		for _, perm := range p.Permissions {
			if !granted.Has(perm) {
				return false
			}
		}
		return true
	case MatchAny:
		for _, perm := range p.Permissions {
			if granted.Has(perm) {
				return true
			}
		}
		return false
	default:
		return false
	}
}
