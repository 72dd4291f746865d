package rbac

import (
	"log/slog"
	"net/http"

	"github.com/edgararthur/pinkytrust-sub003/internal/platform/httpx"
)

// DecisionObserver records access decisions, typically as metrics.
type DecisionObserver interface {
	ObserveDecision(allowed bool)
}

// Middleware wires access checks into HTTP handlers.
type Middleware struct {
	Evaluator *Evaluator
	Logger    *slog.Logger
	Observer  DecisionObserver
}

// RequireSubject rejects anonymous requests with 401.
func (m Middleware) RequireSubject(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := SubjectFromContext(r.Context()); !ok {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Require admits the request when the current subject satisfies q. Anonymous
// requests get 401, denied subjects 403.
func (m Middleware) Require(q Query) func(http.Handler) http.Handler {
	if q.Empty() && m.Logger != nil {
		m.Logger.Warn("rbac guard without predicate allows every subject")
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			subject, ok := SubjectFromContext(r.Context())
			if !ok {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
				return
			}
			if !m.Check(subject, q) {
				httpx.Problem(w, http.StatusForbidden, "Forbidden", "")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAny ensures the current subject has at least one of perms.
func (m Middleware) RequireAny(perms ...Permission) func(http.Handler) http.Handler {
	return m.Require(RequireAnyPermission(perms...))
}

// RequireAll ensures the current subject has every one of perms.
func (m Middleware) RequireAll(perms ...Permission) func(http.Handler) http.Handler {
	return m.Require(RequireAllPermissions(perms...))
}

// RequireRole ensures the current subject holds one of roles.
func (m Middleware) RequireRole(roles ...Role) func(http.Handler) http.Handler {
	return m.Require(RequireAnyRole(roles...))
}

// Check evaluates q for subject and records the decision.
func (m Middleware) Check(subject Subject, q Query) bool {
	allowed := m.Evaluator.Allowed(subject, q)
	if m.Observer != nil {
		m.Observer.ObserveDecision(allowed)
	}
	if !allowed && m.Logger != nil {
		m.Logger.Debug("rbac denied", slog.String("subject", subject.ID), slog.String("role", string(subject.Role)))
	}
	return allowed
}
