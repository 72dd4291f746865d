package rbac

import (
	"fmt"
	"strings"
)

// PermissionDef declares one permission of the catalog.
type PermissionDef struct {
	Name        Permission
	Description string
}

// CategoryDef lists the permissions belonging to a category.
type CategoryDef struct {
	Name        Category
	Permissions []Permission
}

// CatalogConfig is the static input to NewCatalog.
type CatalogConfig struct {
	Permissions []PermissionDef
	Categories  []CategoryDef
}

// PermissionInfo describes a registered permission.
type PermissionInfo struct {
	Name        Permission `json:"name"`
	Category    Category   `json:"category"`
	Description string     `json:"description"`
}

// Catalog is the immutable registry of permissions and their categories.
// It is built once at startup and safe for concurrent use.
type Catalog struct {
	order      []Permission
	index      map[Permission]int
	info       map[Permission]PermissionInfo
	categories []Category
	members    map[Category][]Permission
}

// NewCatalog validates cfg and builds a Catalog. Every permission must be well
// formed, unique, and listed under exactly one category; categories may only
// list declared permissions.
func NewCatalog(cfg CatalogConfig) (*Catalog, error) {
	c := &Catalog{
		index:   make(map[Permission]int, len(cfg.Permissions)),
		info:    make(map[Permission]PermissionInfo, len(cfg.Permissions)),
		members: make(map[Category][]Permission, len(cfg.Categories)),
	}
	for _, def := range cfg.Permissions {
		if err := validatePermissionName(def.Name); err != nil {
			return nil, err
		}
		if _, dup := c.index[def.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate permission %q", ErrInvalidCatalog, def.Name)
		}
		c.index[def.Name] = len(c.order)
		c.order = append(c.order, def.Name)
		c.info[def.Name] = PermissionInfo{Name: def.Name, Description: strings.TrimSpace(def.Description)}
	}

	owner := make(map[Permission]Category, len(c.order))
	for _, cat := range cfg.Categories {
		name := Category(strings.TrimSpace(string(cat.Name)))
		if name == "" {
			return nil, fmt.Errorf("%w: empty category name", ErrInvalidCatalog)
		}
		if _, dup := c.members[name]; dup {
			return nil, fmt.Errorf("%w: duplicate category %q", ErrInvalidCatalog, name)
		}
		c.categories = append(c.categories, name)
		c.members[name] = nil
		for _, perm := range cat.Permissions {
			info, ok := c.info[perm]
			if !ok {
				return nil, fmt.Errorf("%w: category %q lists %w %q", ErrInvalidCatalog, name, ErrUnknownPermission, perm)
			}
			if prev, taken := owner[perm]; taken {
				return nil, fmt.Errorf("%w: permission %q in both %q and %q", ErrInvalidCatalog, perm, prev, name)
			}
			owner[perm] = name
			info.Category = name
			c.info[perm] = info
		}
	}
	for _, perm := range c.order {
		cat, ok := owner[perm]
		if !ok {
			return nil, fmt.Errorf("%w: permission %q has no category", ErrInvalidCatalog, perm)
		}
		c.members[cat] = append(c.members[cat], perm)
	}
	return c, nil
}

func validatePermissionName(p Permission) error {
	raw := string(p)
	if raw != strings.ToLower(strings.TrimSpace(raw)) || strings.ContainsAny(raw, " \t") {
		return fmt.Errorf("%w: permission %q must be lower case without spaces", ErrInvalidCatalog, raw)
	}
	if p.Resource() == "" || p.Action() == "" {
		return fmt.Errorf("%w: permission %q must look like <resource>.<action>", ErrInvalidCatalog, raw)
	}
	return nil
}

// Permissions returns every permission in declaration order.
func (c *Catalog) Permissions() []Permission {
	out := make([]Permission, len(c.order))
	copy(out, c.order)
	return out
}

// Categories returns category names in declaration order.
func (c *Catalog) Categories() []Category {
	out := make([]Category, len(c.categories))
	copy(out, c.categories)
	return out
}

// PermissionsInCategory returns the permissions of a category in declaration order.
func (c *Catalog) PermissionsInCategory(category Category) ([]Permission, error) {
	perms, ok := c.members[category]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCategory, category)
	}
	out := make([]Permission, len(perms))
	copy(out, perms)
	return out, nil
}

// Describe returns the human readable description of a permission.
func (c *Catalog) Describe(p Permission) (string, error) {
	info, ok := c.info[p]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownPermission, p)
	}
	return info.Description, nil
}

// Lookup returns the full definition of a permission.
func (c *Catalog) Lookup(p Permission) (PermissionInfo, bool) {
	info, ok := c.info[p]
	return info, ok
}

// Has reports whether p is registered.
func (c *Catalog) Has(p Permission) bool {
	if c == nil {
		return false
	}
	_, ok := c.index[p]
	return ok
}

// Sorted returns the members of set that exist in the catalog, in declaration order.
func (c *Catalog) Sorted(set PermissionSet) []Permission {
	out := make([]Permission, 0, len(set))
	for _, p := range c.order {
		if set.Has(p) {
			out = append(out, p)
		}
	}
	return out
}
