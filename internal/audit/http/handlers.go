package audithttp

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/edgararthur/pinkytrust-sub003/internal/audit"
	"github.com/edgararthur/pinkytrust-sub003/internal/platform/httpx"
	"github.com/edgararthur/pinkytrust-sub003/internal/rbac"
)

// ActivityStore defines the activity log operations used by the handlers.
type ActivityStore interface {
	Append(ctx context.Context, in audit.NewEntry) (audit.Entry, error)
	Validate(in audit.NewEntry) error
	Query(ctx context.Context, filters audit.Filters, page, limit int) (audit.Page, error)
	Stats(ctx context.Context, filters audit.StatsFilters) (audit.Stats, error)
	ByID(ctx context.Context, id string) (audit.Entry, error)
	Export(ctx context.Context, filters audit.Filters) ([]audit.Entry, error)
}

// Enqueuer hands entries to a background worker instead of appending inline.
type Enqueuer interface {
	EnqueueRecord(ctx context.Context, in audit.NewEntry) error
}

// Handler serves the activity log API.
type Handler struct {
	logger   *slog.Logger
	store    ActivityStore
	guard    rbac.Middleware
	enqueuer Enqueuer
	now      func() time.Time
}

// NewHandler builds the activity log handler. A nil enqueuer appends inline.
func NewHandler(logger *slog.Logger, store ActivityStore, guard rbac.Middleware, enqueuer Enqueuer) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:   logger,
		store:    store,
		guard:    guard,
		enqueuer: enqueuer,
		now:      time.Now,
	}
}

var errorMappings = []httpx.ErrorMapping{
	{Target: audit.ErrValidation, Status: http.StatusBadRequest, Title: "Invalid Entry"},
	{Target: audit.ErrInvalidFilter, Status: http.StatusBadRequest, Title: "Invalid Filter"},
	{Target: audit.ErrNotFound, Status: http.StatusNotFound, Title: "Not Found"},
	{Target: audit.ErrStoreUnavailable, Status: http.StatusServiceUnavailable, Title: "Activity Log Unavailable"},
}

func (h *Handler) handleAppend(w http.ResponseWriter, r *http.Request) {
	subject, _ := rbac.SubjectFromContext(r.Context())
	var in audit.NewEntry
	if err := httpx.DecodeJSON(w, r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	in = withRequestContext(in, subject, r)

	if h.enqueuer != nil {
		if err := h.store.Validate(in); err != nil {
			h.respondError(w, "validate activity", err)
			return
		}
		if err := h.enqueuer.EnqueueRecord(r.Context(), in); err != nil {
			h.respondError(w, "enqueue activity", err)
			return
		}
		httpx.JSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
		return
	}

	entry, err := h.store.Append(r.Context(), in)
	if err != nil {
		h.respondError(w, "append activity", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	filters, page, limit, err := audit.ParseFilters(r.URL.Query())
	if err != nil {
		h.respondError(w, "parse activity filters", err)
		return
	}
	result, err := h.store.Query(r.Context(), filters, page, limit)
	if err != nil {
		h.respondError(w, "query activity", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	filters, err := audit.ParseStatsFilters(r.URL.Query())
	if err != nil {
		h.respondError(w, "parse stats filters", err)
		return
	}
	stats, err := h.store.Stats(r.Context(), filters)
	if err != nil {
		h.respondError(w, "activity stats", err)
		return
	}
	httpx.JSON(w, http.StatusOK, stats)
}

func (h *Handler) handleShow(w http.ResponseWriter, r *http.Request) {
	entry, err := h.store.ByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, "load activity", err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	filters, _, _, err := audit.ParseFilters(r.URL.Query())
	if err != nil {
		h.respondError(w, "parse export filters", err)
		return
	}
	entries, err := h.store.Export(r.Context(), filters)
	if err != nil {
		h.respondError(w, "export activity", err)
		return
	}
	filename := "activity-log-" + h.now().UTC().Format("20060102") + ".csv"
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename=\""+filename+"\"")
	if err := audit.WriteCSV(w, entries); err != nil {
		h.logger.Warn("write csv", slog.Any("error", err))
	}
}

func (h *Handler) respondError(w http.ResponseWriter, message string, err error) {
	status := http.StatusInternalServerError
	for _, m := range errorMappings {
		if errors.Is(err, m.Target) {
			status = m.Status
			break
		}
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error(message, slog.Any("error", err))
	}
	httpx.RespondError(w, err, errorMappings...)
}

const maxUserAgent = 512

// withRequestContext attributes the entry to the authenticated subject and the
// calling client. Caller supplied actor, client and id fields are discarded.
func withRequestContext(in audit.NewEntry, subject rbac.Subject, r *http.Request) audit.NewEntry {
	in.ID = ""
	in.UserID = subject.ID
	in.UserName = subject.Name
	in.UserEmail = subject.Email
	in.IPAddress = clientIP(r)
	in.UserAgent = r.UserAgent()
	if len(in.UserAgent) > maxUserAgent {
		in.UserAgent = in.UserAgent[:maxUserAgent]
	}
	return in
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if net.ParseIP(host) == nil {
		return ""
	}
	return host
}
