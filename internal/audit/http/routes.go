package audithttp

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/edgararthur/pinkytrust-sub003/internal/platform/httpx"
	"github.com/edgararthur/pinkytrust-sub003/internal/rbac"
)

const rateLimit = 10
const rateWindow = time.Minute

// MountRoutes registers the activity log API and the rate limited CSV export.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	limiter := httprate.Limit(rateLimit, rateWindow,
		httprate.WithKeyFuncs(rateLimitKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.Problem(w, http.StatusTooManyRequests, "Too Many Requests", "export rate limit reached")
		}),
	)
	r.Route("/activity", func(r chi.Router) {
		r.With(h.guard.RequireSubject).Post("/", h.handleAppend)
		r.Group(func(gr chi.Router) {
			gr.Use(h.guard.Require(rbac.RequirePermission(rbac.PermActivityView)))
			gr.Get("/", h.handleList)
			gr.Get("/stats", h.handleStats)
			gr.Get("/{id}", h.handleShow)
		})
		r.Group(func(gr chi.Router) {
			gr.Use(h.guard.Require(rbac.RequirePermission(rbac.PermActivityExport)))
			gr.Use(limiter)
			gr.Get("/export.csv", h.handleExport)
		})
	})
}

func rateLimitKey(r *http.Request) (string, error) {
	if subject, ok := rbac.SubjectFromContext(r.Context()); ok && subject.ID != "" {
		return "user:" + subject.ID, nil
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}
