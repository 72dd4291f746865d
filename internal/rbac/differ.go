package rbac

// RoleDiff lists what changes when a subject moves from one role to another.
type RoleDiff struct {
	From    Role         `json:"from"`
	To      Role         `json:"to"`
	Added   []Permission `json:"added"`
	Removed []Permission `json:"removed"`
}

// Differ compares the permission sets of two roles.
type Differ struct {
	registry *Registry
}

// NewDiffer builds a Differ over registry.
func NewDiffer(registry *Registry) *Differ {
	return &Differ{registry: registry}
}

// Diff returns the permissions gained (in to but not from) and lost (in from
// but not to), both in catalog declaration order.
func (d *Differ) Diff(from, to Role) RoleDiff {
	a := d.registry.PermissionsForRole(from)
	b := d.registry.PermissionsForRole(to)
	diff := RoleDiff{From: from, To: to, Added: []Permission{}, Removed: []Permission{}}
	for _, p := range d.registry.Catalog().Permissions() {
		inA, inB := a.Has(p), b.Has(p)
		switch {
		case inB && !inA:
			diff.Added = append(diff.Added, p)
		case inA && !inB:
			diff.Removed = append(diff.Removed, p)
		}
	}
	return diff
}
