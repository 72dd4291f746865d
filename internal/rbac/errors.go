package rbac

import "errors"

var (
	// ErrUnknownPermission indicates a permission that is not registered in the catalog.
	ErrUnknownPermission = errors.New("rbac: unknown permission")
	// ErrUnknownCategory indicates a category that is not registered in the catalog.
	ErrUnknownCategory = errors.New("rbac: unknown category")
	// ErrUnknownRole indicates a value outside the closed role enumeration.
	ErrUnknownRole = errors.New("rbac: unknown role")
	// ErrInvalidCatalog is returned when catalog or role configuration fails validation.
	ErrInvalidCatalog = errors.New("rbac: invalid catalog")
)
