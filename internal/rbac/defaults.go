package rbac

// Platform permissions.
const (
	PermUsersView   Permission = "users.view"
	PermUsersCreate Permission = "users.create"
	PermUsersUpdate Permission = "users.update"
	PermUsersDelete Permission = "users.delete"

	PermOrganisationsView    Permission = "organisations.view"
	PermOrganisationsCreate  Permission = "organisations.create"
	PermOrganisationsUpdate  Permission = "organisations.update"
	PermOrganisationsApprove Permission = "organisations.approve"
	PermOrganisationsSuspend Permission = "organisations.suspend"

	PermEventsView    Permission = "events.view"
	PermEventsCreate  Permission = "events.create"
	PermEventsUpdate  Permission = "events.update"
	PermEventsApprove Permission = "events.approve"
	PermEventsDelete  Permission = "events.delete"

	PermReportsView   Permission = "reports.view"
	PermReportsExport Permission = "reports.export"

	PermActivityView   Permission = "activity.view"
	PermActivityExport Permission = "activity.export"

	PermRolesView   Permission = "roles.view"
	PermRolesAssign Permission = "roles.assign"

	PermSettingsView   Permission = "settings.view"
	PermSettingsUpdate Permission = "settings.update"
)

// Permission categories.
const (
	CategoryUsers         Category = "User Management"
	CategoryOrganisations Category = "Organisation Management"
	CategoryEvents        Category = "Event Management"
	CategoryReports       Category = "Reports"
	CategoryActivity      Category = "Activity Log"
	CategoryRoles         Category = "Roles & Permissions"
	CategorySettings      Category = "Settings"
)

// DefaultCatalogConfig returns the permission catalog shipped with the suite.
func DefaultCatalogConfig() CatalogConfig {
	return CatalogConfig{
		Permissions: []PermissionDef{
			{PermUsersView, "View user accounts"},
			{PermUsersCreate, "Create user accounts"},
			{PermUsersUpdate, "Edit user accounts"},
			{PermUsersDelete, "Delete user accounts"},
			{PermOrganisationsView, "View organisations"},
			{PermOrganisationsCreate, "Register organisations"},
			{PermOrganisationsUpdate, "Edit organisation details"},
			{PermOrganisationsApprove, "Approve organisation registrations"},
			{PermOrganisationsSuspend, "Suspend organisations"},
			{PermEventsView, "View events"},
			{PermEventsCreate, "Create events"},
			{PermEventsUpdate, "Edit events"},
			{PermEventsApprove, "Approve events for publication"},
			{PermEventsDelete, "Delete events"},
			{PermReportsView, "View reports"},
			{PermReportsExport, "Export reports"},
			{PermActivityView, "View the activity log"},
			{PermActivityExport, "Export the activity log"},
			{PermRolesView, "View roles and permissions"},
			{PermRolesAssign, "Assign roles to users"},
			{PermSettingsView, "View system settings"},
			{PermSettingsUpdate, "Change system settings"},
		},
		Categories: []CategoryDef{
			{CategoryUsers, []Permission{PermUsersView, PermUsersCreate, PermUsersUpdate, PermUsersDelete}},
			{CategoryOrganisations, []Permission{PermOrganisationsView, PermOrganisationsCreate, PermOrganisationsUpdate, PermOrganisationsApprove, PermOrganisationsSuspend}},
			{CategoryEvents, []Permission{PermEventsView, PermEventsCreate, PermEventsUpdate, PermEventsApprove, PermEventsDelete}},
			{CategoryReports, []Permission{PermReportsView, PermReportsExport}},
			{CategoryActivity, []Permission{PermActivityView, PermActivityExport}},
			{CategoryRoles, []Permission{PermRolesView, PermRolesAssign}},
			{CategorySettings, []Permission{PermSettingsView, PermSettingsUpdate}},
		},
	}
}

func viewerScopes() []Permission {
	return []Permission{
		PermUsersView,
		PermOrganisationsView,
		PermEventsView,
		PermReportsView,
	}
}

func moderatorScopes() []Permission {
	return append(viewerScopes(),
		PermOrganisationsApprove,
		PermEventsUpdate,
		PermEventsApprove,
		PermActivityView,
	)
}

func adminScopes() []Permission {
	return append(moderatorScopes(),
		PermUsersCreate,
		PermUsersUpdate,
		PermUsersDelete,
		PermOrganisationsCreate,
		PermOrganisationsUpdate,
		PermOrganisationsSuspend,
		PermEventsCreate,
		PermEventsDelete,
		PermReportsExport,
		PermActivityExport,
		PermRolesView,
	)
}

func municipalAdminScopes() []Permission {
	return append(adminScopes(),
		PermRolesAssign,
		PermSettingsView,
	)
}

// DefaultRoleGrants returns the role to permission mapping shipped with the suite.
// Lists are flat; a role does not inherit anything at runtime.
func DefaultRoleGrants(catalog *Catalog) map[Role][]Permission {
	return map[Role][]Permission{
		RoleSuperAdmin:     catalog.Permissions(),
		RoleMunicipalAdmin: municipalAdminScopes(),
		RoleAdmin:          adminScopes(),
		RoleModerator:      moderatorScopes(),
		RoleViewer:         viewerScopes(),
	}
}

// Default builds the shipped catalog and registry.
func Default() (*Registry, error) {
	catalog, err := NewCatalog(DefaultCatalogConfig())
	if err != nil {
		return nil, err
	}
	return NewRegistry(catalog, DefaultRoleGrants(catalog))
}

// MustDefault is Default for process startup; it panics on misconfiguration.
func MustDefault() *Registry {
	reg, err := Default()
	if err != nil {
		panic(err)
	}
	return reg
}
