package audithttp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/edgararthur/pinkytrust-sub003/internal/audit"
	"github.com/edgararthur/pinkytrust-sub003/internal/rbac"
)

type staticResolver struct {
	subject rbac.Subject
}

func (s staticResolver) Resolve(context.Context, *http.Request) (rbac.Subject, bool, error) {
	return s.subject, true, nil
}

type stubEnqueuer struct {
	entries []audit.NewEntry
	err     error
}

func (s *stubEnqueuer) EnqueueRecord(_ context.Context, in audit.NewEntry) error {
	if s.err != nil {
		return s.err
	}
	s.entries = append(s.entries, in)
	return nil
}

type unavailableStore struct {
	*audit.Store
}

func (unavailableStore) Query(context.Context, audit.Filters, int, int) (audit.Page, error) {
	return audit.Page{}, audit.ErrStoreUnavailable
}

func newTestRouter(t *testing.T, store ActivityStore, subject *rbac.Subject, enqueuer Enqueuer) http.Handler {
	t.Helper()
	reg := rbac.MustDefault()
	guard := rbac.Middleware{Evaluator: rbac.NewEvaluator(reg.Catalog())}
	h := NewHandler(nil, store, guard, enqueuer)
	h.now = func() time.Time { return time.Date(2024, 5, 20, 0, 0, 0, 0, time.UTC) }
	r := chi.NewRouter()
	if subject != nil {
		r.Use(rbac.Authenticate(staticResolver{subject: *subject}, nil))
	}
	r.Route("/api", h.MountRoutes)
	return r
}

func subjectWithRole(role rbac.Role) *rbac.Subject {
	s := rbac.MustDefault().SubjectFor("u-"+string(role), role)
	s.Name = "Ama Mensah"
	s.Email = "ama@example.com"
	return &s
}

func newStore() *audit.Store {
	return audit.NewStore(audit.NewMemoryRepository())
}

func do(router http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	req.Header.Set("User-Agent", "pinkytrust-test")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

const approveBody = `{"action":"approve","resource":"organisation","resource_id":"org-1","resource_name":"Pink Ribbon","details":{"note":"ok"}}`

func TestAppendFillsActorAndClient(t *testing.T) {
	store := newStore()
	router := newTestRouter(t, store, subjectWithRole(rbac.RoleModerator), nil)

	rr := do(router, http.MethodPost, "/api/activity", approveBody)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var entry audit.Entry
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&entry))
	require.Equal(t, "u-moderator", entry.UserID)
	require.Equal(t, "Ama Mensah", entry.UserName)
	require.Equal(t, "ama@example.com", entry.UserEmail)
	require.Equal(t, "192.0.2.1", entry.IPAddress)
	require.Equal(t, "pinkytrust-test", entry.UserAgent)
	require.Equal(t, audit.StatusSuccess, entry.Status)
	require.Equal(t, "ok", entry.Details["note"])
}

func TestAppendIgnoresCallerSuppliedActor(t *testing.T) {
	store := newStore()
	router := newTestRouter(t, store, subjectWithRole(rbac.RoleViewer), nil)

	body := `{"id":"6f1c2e9a-0b7d-4e55-9c1a-2d3e4f5a6b7c","action":"approve","resource":"organisation","resource_id":"org-1",` +
		`"user_id":"u-super_admin","user_name":"Root","user_email":"root@example.com","ip_address":"203.0.113.9","user_agent":"forged"}`
	rr := do(router, http.MethodPost, "/api/activity", body)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var entry audit.Entry
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&entry))
	require.Equal(t, "u-viewer", entry.UserID)
	require.Equal(t, "Ama Mensah", entry.UserName)
	require.Equal(t, "ama@example.com", entry.UserEmail)
	require.Equal(t, "192.0.2.1", entry.IPAddress)
	require.Equal(t, "pinkytrust-test", entry.UserAgent)
	require.NotEqual(t, "6f1c2e9a-0b7d-4e55-9c1a-2d3e4f5a6b7c", entry.ID)

	page, err := store.Query(context.Background(), audit.Filters{UserID: "u-super_admin"}, 1, 10)
	require.NoError(t, err)
	require.Zero(t, page.Pagination.Total)
}

func TestAppendRequiresSubject(t *testing.T) {
	router := newTestRouter(t, newStore(), nil, nil)
	rr := do(router, http.MethodPost, "/api/activity", approveBody)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestAppendValidationError(t *testing.T) {
	router := newTestRouter(t, newStore(), subjectWithRole(rbac.RoleViewer), nil)
	rr := do(router, http.MethodPost, "/api/activity", `{"resource":"event","resource_id":"e-1"}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Contains(t, rr.Header().Get("Content-Type"), "application/problem+json")

	rr = do(router, http.MethodPost, "/api/activity", `{"action":`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAppendEnqueuesWhenAsync(t *testing.T) {
	store := newStore()
	enqueuer := &stubEnqueuer{}
	router := newTestRouter(t, store, subjectWithRole(rbac.RoleAdmin), enqueuer)

	rr := do(router, http.MethodPost, "/api/activity", approveBody)
	require.Equal(t, http.StatusAccepted, rr.Code)
	require.Len(t, enqueuer.entries, 1)
	require.Equal(t, "u-admin", enqueuer.entries[0].UserID)

	rr = do(router, http.MethodPost, "/api/activity", `{"action":"approve"}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Len(t, enqueuer.entries, 1)

	page, err := store.Query(context.Background(), audit.Filters{}, 1, 10)
	require.NoError(t, err)
	require.Zero(t, page.Pagination.Total)

	enqueuer.err = errors.New("redis down")
	rr = do(router, http.MethodPost, "/api/activity", approveBody)
	require.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestListGuardedByActivityView(t *testing.T) {
	store := newStore()
	viewer := newTestRouter(t, store, subjectWithRole(rbac.RoleViewer), nil)
	rr := do(viewer, http.MethodGet, "/api/activity", "")
	require.Equal(t, http.StatusForbidden, rr.Code)

	moderator := newTestRouter(t, store, subjectWithRole(rbac.RoleModerator), nil)
	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusCreated, do(moderator, http.MethodPost, "/api/activity", approveBody).Code)
	}
	rr = do(moderator, http.MethodGet, "/api/activity?limit=2&page=2", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var page audit.Page
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&page))
	require.Len(t, page.Data, 1)
	require.Equal(t, 3, page.Pagination.Total)
	require.Equal(t, 2, page.Pagination.TotalPages)
	require.Equal(t, 2, page.Pagination.Page)
	require.Equal(t, 2, page.Pagination.Limit)
}

func TestListRejectsInvalidFilters(t *testing.T) {
	router := newTestRouter(t, newStore(), subjectWithRole(rbac.RoleModerator), nil)
	for _, q := range []string{"limit=0", "page=-1", "start_date=bogus", "status=pending", "sort_by=ip"} {
		rr := do(router, http.MethodGet, "/api/activity?"+q, "")
		require.Equal(t, http.StatusBadRequest, rr.Code, q)
	}
}

func TestListStoreUnavailable(t *testing.T) {
	router := newTestRouter(t, unavailableStore{Store: newStore()}, subjectWithRole(rbac.RoleModerator), nil)
	rr := do(router, http.MethodGet, "/api/activity", "")
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestShowAndStats(t *testing.T) {
	store := newStore()
	router := newTestRouter(t, store, subjectWithRole(rbac.RoleModerator), nil)
	rr := do(router, http.MethodPost, "/api/activity", approveBody)
	require.Equal(t, http.StatusCreated, rr.Code)
	var created audit.Entry
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&created))

	rr = do(router, http.MethodGet, "/api/activity/"+created.ID, "")
	require.Equal(t, http.StatusOK, rr.Code)
	var shown audit.Entry
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&shown))
	require.Equal(t, created.ID, shown.ID)

	rr = do(router, http.MethodGet, "/api/activity/2f1f8a3e-1111-4c2b-9a55-000000000000", "")
	require.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(router, http.MethodGet, "/api/activity/stats", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var stats audit.Stats
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&stats))
	require.Equal(t, 1, stats.Total)
	require.Equal(t, 1, stats.ByAction["approve"])
	require.Len(t, stats.Timeline, audit.TimelineDays)

	rr = do(router, http.MethodGet, "/api/activity/stats?end_date=31-12-2024", "")
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestExportCSV(t *testing.T) {
	store := newStore()
	router := newTestRouter(t, store, subjectWithRole(rbac.RoleAdmin), nil)
	require.Equal(t, http.StatusCreated, do(router, http.MethodPost, "/api/activity", approveBody).Code)

	rr := do(router, http.MethodGet, "/api/activity/export.csv", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Header().Get("Content-Type"), "text/csv")
	require.Contains(t, rr.Header().Get("Content-Disposition"), "activity-log-20240520.csv")
	lines := strings.Split(strings.TrimSpace(rr.Body.String()), "\n")
	require.Len(t, lines, 2)
	require.True(t, strings.HasPrefix(lines[0], "id,sequence,created_at"))

	moderator := newTestRouter(t, store, subjectWithRole(rbac.RoleModerator), nil)
	rr = do(moderator, http.MethodGet, "/api/activity/export.csv", "")
	require.Equal(t, http.StatusForbidden, rr.Code)
}

func TestExportRateLimited(t *testing.T) {
	router := newTestRouter(t, newStore(), subjectWithRole(rbac.RoleAdmin), nil)
	for i := 0; i < rateLimit; i++ {
		require.Equal(t, http.StatusOK, do(router, http.MethodGet, "/api/activity/export.csv", "").Code)
	}
	rr := do(router, http.MethodGet, "/api/activity/export.csv", "")
	require.Equal(t, http.StatusTooManyRequests, rr.Code)
}
