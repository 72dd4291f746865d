package rbac

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/edgararthur/pinkytrust-sub003/internal/platform/httpx"
)

// Handler exposes the catalog, role registry, role diff and access checks.
type Handler struct {
	logger   *slog.Logger
	registry *Registry
	differ   *Differ
	guard    Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, registry *Registry, guard Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, registry: registry, differ: NewDiffer(registry), guard: guard}
}

// MountRoutes registers catalog and access routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(RequirePermission(PermRolesView)))
		r.Get("/permissions", h.listPermissions)
		r.Get("/roles", h.listRoles)
		r.Get("/roles/diff", h.diffRoles)
		r.Get("/roles/{role}", h.showRole)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireSubject)
		r.Post("/access/check", h.checkAccess)
	})
}

type categoryView struct {
	Name        Category         `json:"name"`
	Permissions []PermissionInfo `json:"permissions"`
}

func (h *Handler) listPermissions(w http.ResponseWriter, r *http.Request) {
	catalog := h.registry.Catalog()
	categories := catalog.Categories()
	out := make([]categoryView, 0, len(categories))
	for _, cat := range categories {
		perms, err := catalog.PermissionsInCategory(cat)
		if err != nil {
			h.logger.Error("list permissions", slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}
		view := categoryView{Name: cat, Permissions: make([]PermissionInfo, 0, len(perms))}
		for _, p := range perms {
			info, _ := catalog.Lookup(p)
			view.Permissions = append(view.Permissions, info)
		}
		out = append(out, view)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"categories": out})
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": h.registry.List()})
}

func (h *Handler) showRole(w http.ResponseWriter, r *http.Request) {
	role, err := ParseRole(chi.URLParam(r, "role"))
	if err != nil {
		httpx.RespondError(w, err, roleErrorMapping(http.StatusNotFound, "Not Found"))
		return
	}
	httpx.JSON(w, http.StatusOK, h.registry.Describe(role))
}

func (h *Handler) diffRoles(w http.ResponseWriter, r *http.Request) {
	from, err := ParseRole(r.URL.Query().Get("from"))
	if err != nil {
		httpx.RespondError(w, err, roleErrorMapping(http.StatusBadRequest, "Invalid Role"))
		return
	}
	to, err := ParseRole(r.URL.Query().Get("to"))
	if err != nil {
		httpx.RespondError(w, err, roleErrorMapping(http.StatusBadRequest, "Invalid Role"))
		return
	}
	httpx.JSON(w, http.StatusOK, h.differ.Diff(from, to))
}

type accessResponse struct {
	Allowed bool `json:"allowed"`
}

func (h *Handler) checkAccess(w http.ResponseWriter, r *http.Request) {
	subject, _ := SubjectFromContext(r.Context())
	var req AccessRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	q := req.Query()
	if q.Empty() {
		h.logger.Warn("access check without predicate", slog.String("subject", subject.ID), slog.String("path", r.URL.Path))
	}
	httpx.JSON(w, http.StatusOK, accessResponse{Allowed: h.guard.Check(subject, q)})
}

func roleErrorMapping(status int, title string) httpx.ErrorMapping {
	return httpx.ErrorMapping{Target: ErrUnknownRole, Status: status, Title: title}
}
