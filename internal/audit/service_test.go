package audit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{t: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type outcomeCounter struct {
	mu     sync.Mutex
	counts map[string]int
}

func (o *outcomeCounter) ObserveAppend(outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.counts == nil {
		o.counts = make(map[string]int)
	}
	o.counts[outcome]++
}

var day0 = time.Date(2024, 5, 20, 9, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T, opts ...Option) (*Store, *fakeClock) {
	t.Helper()
	clock := newFakeClock(day0)
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	return NewStore(NewMemoryRepository(), opts...), clock
}

func sampleEntry(action string) NewEntry {
	return NewEntry{
		Action:       action,
		Resource:     "organisation",
		ResourceID:   "org-1",
		ResourceName: "Pink Ribbon Accra",
		UserID:       "u-1",
		UserName:     "Ama Mensah",
		UserEmail:    "ama@example.com",
		IPAddress:    "10.0.0.1",
		Details:      map[string]any{"reason": "complete", "tags": []any{"a"}},
	}
}

func mustAppend(t *testing.T, s *Store, in NewEntry) Entry {
	t.Helper()
	entry, err := s.Append(context.Background(), in)
	require.NoError(t, err)
	return entry
}

func TestAppendAssignsIdentityAndRoundTrips(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	entry := mustAppend(t, store, sampleEntry("approve"))
	require.NotEmpty(t, entry.ID)
	require.Equal(t, int64(1), entry.Sequence)
	require.Equal(t, StatusSuccess, entry.Status)
	require.True(t, entry.CreatedAt.Equal(day0))

	got, err := store.ByID(ctx, entry.ID)
	require.NoError(t, err)
	require.Equal(t, entry, got)

	got.Details["reason"] = "mutated"
	again, err := store.ByID(ctx, entry.ID)
	require.NoError(t, err)
	require.Equal(t, "complete", again.Details["reason"])
}

func TestAppendDoesNotRetainCallerDetails(t *testing.T) {
	store, _ := newTestStore(t)
	in := sampleEntry("approve")
	entry := mustAppend(t, store, in)
	in.Details["reason"] = "changed"
	in.Details["tags"].([]any)[0] = "changed"

	got, err := store.ByID(context.Background(), entry.ID)
	require.NoError(t, err)
	require.Equal(t, "complete", got.Details["reason"])
	require.Equal(t, "a", got.Details["tags"].([]any)[0])
}

func TestAppendValidation(t *testing.T) {
	observer := &outcomeCounter{}
	store, _ := newTestStore(t, WithObserver(observer))
	cases := map[string]func(*NewEntry){
		"missing action":      func(e *NewEntry) { e.Action = "  " },
		"missing resource":    func(e *NewEntry) { e.Resource = "" },
		"missing resource id": func(e *NewEntry) { e.ResourceID = "" },
		"missing user":        func(e *NewEntry) { e.UserID = "" },
		"id not a uuid":       func(e *NewEntry) { e.ID = "entry-1" },
		"bad status":          func(e *NewEntry) { e.Status = "maybe" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			in := sampleEntry("create")
			mutate(&in)
			_, err := store.Append(context.Background(), in)
			require.ErrorIs(t, err, ErrValidation)
			require.ErrorIs(t, store.Validate(in), ErrValidation)
		})
	}
	require.Equal(t, len(cases), observer.counts[OutcomeRejected])
	require.Zero(t, observer.counts[OutcomeStored])

	in := sampleEntry("create")
	in.Status = " Warning "
	entry := mustAppend(t, store, in)
	require.Equal(t, StatusWarning, entry.Status)
	require.Equal(t, 1, observer.counts[OutcomeStored])
}

func TestAppendAcceptsFreeFormContactFields(t *testing.T) {
	store, _ := newTestStore(t)
	in := sampleEntry("create")
	in.UserEmail = "front desk, ext 12"
	in.IPAddress = "unknown"
	entry := mustAppend(t, store, in)
	require.Equal(t, "front desk, ext 12", entry.UserEmail)
	require.Equal(t, "unknown", entry.IPAddress)
}

func TestAppendWithIDIsIdempotent(t *testing.T) {
	observer := &outcomeCounter{}
	store, clock := newTestStore(t, WithObserver(observer))
	in := sampleEntry("approve")
	in.ID = "6F1C2E9A-0B7D-4E55-9C1A-2D3E4F5A6B7C"

	first := mustAppend(t, store, in)
	require.Equal(t, "6f1c2e9a-0b7d-4e55-9c1a-2d3e4f5a6b7c", first.ID)

	clock.Advance(time.Minute)
	again := mustAppend(t, store, in)
	require.Equal(t, first, again)

	page, err := store.Query(context.Background(), Filters{}, 1, 10)
	require.NoError(t, err)
	require.Equal(t, 1, page.Pagination.Total)
	require.Equal(t, 1, observer.counts[OutcomeStored])
}

func TestAppendTimestampsNeverDecrease(t *testing.T) {
	store, clock := newTestStore(t)
	first := mustAppend(t, store, sampleEntry("a"))
	clock.Advance(-time.Hour)
	second := mustAppend(t, store, sampleEntry("b"))
	clock.Advance(2 * time.Hour)
	third := mustAppend(t, store, sampleEntry("c"))

	require.False(t, second.CreatedAt.Before(first.CreatedAt))
	require.True(t, third.CreatedAt.After(second.CreatedAt))
	require.Less(t, first.Sequence, second.Sequence)
	require.Less(t, second.Sequence, third.Sequence)
}

func TestAppendConcurrentSequencesAreUnique(t *testing.T) {
	store, _ := newTestStore(t)
	const n = 50
	var wg sync.WaitGroup
	seqs := make(chan int64, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			entry, err := store.Append(context.Background(), sampleEntry(fmt.Sprintf("act-%d", i)))
			if err == nil {
				seqs <- entry.Sequence
			}
		}(i)
	}
	wg.Wait()
	close(seqs)
	seen := make(map[int64]bool)
	for seq := range seqs {
		require.False(t, seen[seq])
		seen[seq] = true
	}
	require.Len(t, seen, n)
}

func TestQueryPaginationLaw(t *testing.T) {
	store, clock := newTestStore(t)
	for i := 0; i < 23; i++ {
		mustAppend(t, store, sampleEntry(fmt.Sprintf("act-%02d", i)))
		clock.Advance(time.Minute)
	}
	ctx := context.Background()
	for _, limit := range []int{1, 5, 7, 23, 50} {
		first, err := store.Query(ctx, Filters{}, 1, limit)
		require.NoError(t, err)
		require.Equal(t, 23, first.Pagination.Total)
		require.Equal(t, (23+limit-1)/limit, first.Pagination.TotalPages)

		seen := make(map[string]bool)
		for page := 1; page <= first.Pagination.TotalPages; page++ {
			res, err := store.Query(ctx, Filters{}, page, limit)
			require.NoError(t, err)
			require.Equal(t, page, res.Pagination.Page)
			require.Equal(t, limit, res.Pagination.Limit)
			for _, e := range res.Data {
				require.False(t, seen[e.ID], "entry %s repeated", e.ID)
				seen[e.ID] = true
			}
		}
		require.Len(t, seen, 23)
	}

	beyond, err := store.Query(ctx, Filters{}, 10, 5)
	require.NoError(t, err)
	require.Empty(t, beyond.Data)
	require.NotNil(t, beyond.Data)
	require.Equal(t, 23, beyond.Pagination.Total)
}

func TestQueryRejectsBadPaging(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	for _, tc := range []struct{ page, limit int }{{1, 0}, {1, -3}, {0, 10}, {-1, 10}} {
		_, err := store.Query(ctx, Filters{}, tc.page, tc.limit)
		require.ErrorIs(t, err, ErrInvalidFilter, "page=%d limit=%d", tc.page, tc.limit)
	}
}

func TestQueryRejectsPageBeyondOffsetRange(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	mustAppend(t, store, sampleEntry("create"))

	require.NotPanics(t, func() {
		_, err := store.Query(ctx, Filters{}, 1<<62, 3)
		require.ErrorIs(t, err, ErrInvalidFilter)
	})
	_, err := store.Query(ctx, Filters{}, math.MaxInt, 1)
	require.NoError(t, err, "offset MaxInt-1 still fits")

	page, err := store.Query(ctx, Filters{}, 2, math.MaxInt)
	require.NoError(t, err)
	require.Empty(t, page.Data)
	require.Equal(t, 1, page.Pagination.Total)
}

func TestQueryRejectsBadFilters(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	bad := []Filters{
		{Status: "unknown"},
		{SortBy: "password"},
		{SortDir: "sideways"},
		{StartDate: day0, EndDate: day0.Add(-time.Hour)},
	}
	for _, f := range bad {
		_, err := store.Query(ctx, f, 1, 10)
		require.ErrorIs(t, err, ErrInvalidFilter, "%+v", f)
	}
}

func TestQueryFiltersAndSorts(t *testing.T) {
	store, clock := newTestStore(t)
	ctx := context.Background()

	a := sampleEntry("create")
	a.UserName = "Kofi Boateng"
	a.UserEmail = "kofi@example.com"
	a.ResourceName = "Screening Drive"
	a.Resource = "event"
	first := mustAppend(t, store, a)

	clock.Advance(time.Hour)
	b := sampleEntry("approve")
	b.Status = StatusFailed
	b.UserID = "u-2"
	second := mustAppend(t, store, b)

	clock.Advance(time.Hour)
	c := sampleEntry("delete")
	c.UserName = "Efua"
	c.UserEmail = "EFUA@PINK.ORG"
	c.ResourceName = "Walk"
	third := mustAppend(t, store, c)

	ids := func(p Page) []string {
		out := make([]string, 0, len(p.Data))
		for _, e := range p.Data {
			out = append(out, e.ID)
		}
		return out
	}

	page, err := store.Query(ctx, Filters{}, 1, 10)
	require.NoError(t, err)
	require.Equal(t, []string{third.ID, second.ID, first.ID}, ids(page))

	page, err = store.Query(ctx, Filters{Search: "pink.org"}, 1, 10)
	require.NoError(t, err)
	require.Equal(t, []string{third.ID}, ids(page))

	page, err = store.Query(ctx, Filters{Search: "RIBBON"}, 1, 10)
	require.NoError(t, err)
	require.Equal(t, []string{second.ID}, ids(page))

	page, err = store.Query(ctx, Filters{Search: "kofi"}, 1, 10)
	require.NoError(t, err)
	require.Equal(t, []string{first.ID}, ids(page))

	page, err = store.Query(ctx, Filters{Status: StatusFailed}, 1, 10)
	require.NoError(t, err)
	require.Equal(t, []string{second.ID}, ids(page))

	page, err = store.Query(ctx, Filters{Resource: "event", Action: "create"}, 1, 10)
	require.NoError(t, err)
	require.Equal(t, []string{first.ID}, ids(page))

	page, err = store.Query(ctx, Filters{UserID: "u-2"}, 1, 10)
	require.NoError(t, err)
	require.Equal(t, []string{second.ID}, ids(page))

	page, err = store.Query(ctx, Filters{StartDate: second.CreatedAt, EndDate: second.CreatedAt}, 1, 10)
	require.NoError(t, err)
	require.Equal(t, []string{second.ID}, ids(page))

	page, err = store.Query(ctx, Filters{SortBy: SortAction, SortDir: SortAsc}, 1, 10)
	require.NoError(t, err)
	require.Equal(t, []string{second.ID, first.ID, third.ID}, ids(page))

	page, err = store.Query(ctx, Filters{SortDir: SortAsc}, 1, 10)
	require.NoError(t, err)
	require.Equal(t, []string{first.ID, second.ID, third.ID}, ids(page))
}

func TestQueryTiesBreakOnSequence(t *testing.T) {
	store, _ := newTestStore(t)
	first := mustAppend(t, store, sampleEntry("a"))
	second := mustAppend(t, store, sampleEntry("a"))
	require.True(t, first.CreatedAt.Equal(second.CreatedAt))

	page, err := store.Query(context.Background(), Filters{}, 1, 10)
	require.NoError(t, err)
	require.Equal(t, second.ID, page.Data[0].ID)
	require.Equal(t, first.ID, page.Data[1].ID)
}

func TestByIDNotFound(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	_, err := store.ByID(ctx, "2f1f8a3e-1111-4c2b-9a55-000000000000")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = store.ByID(ctx, "not-a-uuid")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestStatsTimelineIsZeroFilled(t *testing.T) {
	store, _ := newTestStore(t)
	stats, err := store.Stats(context.Background(), StatsFilters{})
	require.NoError(t, err)
	require.Zero(t, stats.Total)
	require.Len(t, stats.Timeline, TimelineDays)
	require.Equal(t, "2024-04-21", stats.Timeline[0].Date)
	require.Equal(t, "2024-05-20", stats.Timeline[TimelineDays-1].Date)
	for i, p := range stats.Timeline {
		require.Zero(t, p.Count)
		if i > 0 {
			require.Less(t, stats.Timeline[i-1].Date, p.Date)
		}
	}
	require.NotNil(t, stats.ByResource)
	require.NotNil(t, stats.ByAction)
}

func TestStatsCountsAndWindow(t *testing.T) {
	store, clock := newTestStore(t)
	ctx := context.Background()

	clock.Set(day0.AddDate(0, 0, -40))
	mustAppend(t, store, sampleEntry("create"))

	clock.Set(day0.AddDate(0, 0, -2))
	failed := sampleEntry("approve")
	failed.Status = StatusFailed
	mustAppend(t, store, failed)

	clock.Set(day0)
	warn := sampleEntry("approve")
	warn.Status = StatusWarning
	warn.Resource = "event"
	warn.UserID = "u-9"
	mustAppend(t, store, warn)
	mustAppend(t, store, sampleEntry("create"))

	stats, err := store.Stats(ctx, StatsFilters{})
	require.NoError(t, err)
	require.Equal(t, 4, stats.Total)
	require.Equal(t, 2, stats.Success)
	require.Equal(t, 1, stats.Failed)
	require.Equal(t, 1, stats.Warning)
	require.Equal(t, map[string]int{"organisation": 3, "event": 1}, stats.ByResource)
	require.Equal(t, map[string]int{"create": 2, "approve": 2}, stats.ByAction)
	require.Len(t, stats.Timeline, TimelineDays)
	require.Equal(t, TimelinePoint{Date: "2024-05-18", Count: 1}, stats.Timeline[TimelineDays-3])
	require.Equal(t, TimelinePoint{Date: "2024-05-20", Count: 2}, stats.Timeline[TimelineDays-1])

	sum := 0
	for _, p := range stats.Timeline {
		sum += p.Count
	}
	require.Equal(t, 3, sum, "entry older than the window is excluded from the timeline")

	byUser, err := store.Stats(ctx, StatsFilters{UserID: "u-9"})
	require.NoError(t, err)
	require.Equal(t, 1, byUser.Total)
	require.Equal(t, 1, byUser.Warning)

	ended, err := store.Stats(ctx, StatsFilters{EndDate: day0.AddDate(0, 0, -2).Add(12 * time.Hour)})
	require.NoError(t, err)
	require.Equal(t, 2, ended.Total)
	require.Equal(t, "2024-05-18", ended.Timeline[TimelineDays-1].Date)
	require.Equal(t, 1, ended.Timeline[TimelineDays-1].Count)

	_, err = store.Stats(ctx, StatsFilters{StartDate: day0, EndDate: day0.AddDate(0, 0, -1)})
	require.ErrorIs(t, err, ErrInvalidFilter)
}

func TestExportReturnsAllMatches(t *testing.T) {
	store, clock := newTestStore(t)
	for i := 0; i < 30; i++ {
		mustAppend(t, store, sampleEntry("create"))
		clock.Advance(time.Second)
	}
	mustAppend(t, store, sampleEntry("delete"))

	rows, err := store.Export(context.Background(), Filters{Action: "create"})
	require.NoError(t, err)
	require.Len(t, rows, 30)
	require.True(t, rows[0].CreatedAt.After(rows[29].CreatedAt))
}

type failingRepository struct {
	*MemoryRepository
	err error
}

func (f failingRepository) Insert(context.Context, Entry) (Entry, error) { return Entry{}, f.err }

func (f failingRepository) Find(context.Context, Filters, int, int) ([]Entry, int, error) {
	return nil, 0, f.err
}

func TestStoreWrapsRepositoryFailures(t *testing.T) {
	unavailable := fmt.Errorf("%w: connection refused", ErrStoreUnavailable)
	observer := &outcomeCounter{}
	store := NewStore(failingRepository{MemoryRepository: NewMemoryRepository(), err: unavailable}, WithObserver(observer))
	ctx := context.Background()

	_, err := store.Append(ctx, sampleEntry("create"))
	require.ErrorIs(t, err, ErrStoreUnavailable)
	require.Equal(t, 1, observer.counts[OutcomeFailed])

	_, err = store.Query(ctx, Filters{}, 1, 10)
	require.ErrorIs(t, err, ErrStoreUnavailable)
	require.False(t, errors.Is(err, ErrInvalidFilter))
}
