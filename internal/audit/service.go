package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/edgararthur/pinkytrust-sub003/internal/shared"
)

// TimelineDays is the length of the stats timeline.
const TimelineDays = 30

// statsTimeout bounds a coalesced stats computation, which outlives the
// caller that started it.
const statsTimeout = 30 * time.Second

// Repository persists entries. Implementations assign Sequence on Insert and
// wrap transport failures in ErrStoreUnavailable.
type Repository interface {
	Insert(ctx context.Context, entry Entry) (Entry, error)
	Get(ctx context.Context, id string) (Entry, error)
	// Find returns one page of matching entries and the total match count.
	Find(ctx context.Context, filters Filters, offset, limit int) ([]Entry, int, error)
	// FindAll returns every matching entry in filter order.
	FindAll(ctx context.Context, filters Filters) ([]Entry, error)
	// Aggregate counts all matching entries by status, resource and action,
	// and the matching entries inside window by UTC day.
	Aggregate(ctx context.Context, filters Filters, window Window) (Aggregates, error)
}

// StatsCache memoises Stats results until the next append.
type StatsCache interface {
	Fetch(ctx context.Context, parts []string, loader func(context.Context) (Stats, error)) (Stats, error)
	Bump(ctx context.Context) error
}

// AppendObserver records append outcomes, typically as metrics.
type AppendObserver interface {
	ObserveAppend(outcome string)
}

// Append outcomes reported to AppendObserver.
const (
	OutcomeStored   = "stored"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithCache enables stats caching.
func WithCache(cache StatsCache) Option {
	return func(s *Store) { s.cache = cache }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithObserver sets the append observer.
func WithObserver(observer AppendObserver) Option {
	return func(s *Store) { s.observer = observer }
}

// Store is the append-only activity log.
type Store struct {
	repo     Repository
	cache    StatsCache
	observer AppendObserver
	logger   *slog.Logger
	validate *validator.Validate
	now      func() time.Time
	group    singleflight.Group

	mu   sync.Mutex
	last time.Time
}

// NewStore builds a Store over repo.
func NewStore(repo Repository, opts ...Option) *Store {
	s := &Store{
		repo:     repo,
		logger:   slog.Default(),
		validate: validator.New(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Append validates in, assigns id, timestamp and sequence, and persists it.
// Timestamps never decrease within one Store. When in carries an id that is
// already stored, the stored entry is returned so redelivered appends are
// written once.
func (s *Store) Append(ctx context.Context, in NewEntry) (Entry, error) {
	in, err := s.check(in)
	if err != nil {
		s.observe(OutcomeRejected)
		return Entry{}, err
	}
	id := in.ID
	if id == "" {
		id = uuid.NewString()
	}
	entry := Entry{
		ID:           id,
		Action:       in.Action,
		Resource:     in.Resource,
		ResourceID:   in.ResourceID,
		ResourceName: in.ResourceName,
		UserID:       in.UserID,
		UserName:     in.UserName,
		UserEmail:    in.UserEmail,
		IPAddress:    in.IPAddress,
		UserAgent:    in.UserAgent,
		Status:       in.Status,
		Details:      cloneMap(in.Details),
	}

	// The lock spans Insert so the repository sequence and the clamped
	// timestamp agree on insertion order.
	s.mu.Lock()
	entry.CreatedAt = s.tick()
	stored, err := s.repo.Insert(ctx, entry)
	s.mu.Unlock()
	if errors.Is(err, ErrDuplicate) && in.ID != "" {
		existing, getErr := s.repo.Get(ctx, in.ID)
		if getErr == nil {
			s.logger.Debug("audit append already stored", slog.String("id", in.ID))
			return existing.Clone(), nil
		}
		err = getErr
	}
	if err != nil {
		s.observe(OutcomeFailed)
		return Entry{}, fmt.Errorf("audit: append: %w", err)
	}
	s.observe(OutcomeStored)

	if s.cache != nil {
		if err := s.cache.Bump(ctx); err != nil {
			s.logger.Warn("audit stats cache bump", slog.Any("error", err))
		}
	}
	return stored.Clone(), nil
}

// Validate reports whether in would be accepted by Append.
func (s *Store) Validate(in NewEntry) error {
	_, err := s.check(in)
	return err
}

func (s *Store) check(in NewEntry) (NewEntry, error) {
	in = trimNewEntry(in)
	if err := s.validate.Struct(in); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			return NewEntry{}, fmt.Errorf("%w: %s failed %s", ErrValidation, fieldErrs[0].Field(), fieldErrs[0].Tag())
		}
		return NewEntry{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if in.ID != "" {
		parsed, err := uuid.Parse(in.ID)
		if err != nil {
			return NewEntry{}, fmt.Errorf("%w: id is not a uuid", ErrValidation)
		}
		in.ID = parsed.String()
	}
	if in.Status == "" {
		in.Status = StatusSuccess
	}
	return in, nil
}

// tick returns the next store timestamp. Callers hold s.mu.
func (s *Store) tick() time.Time {
	now := s.now().UTC().Truncate(time.Microsecond)
	if now.Before(s.last) {
		now = s.last
	}
	s.last = now
	return now
}

// Query returns one page of entries matching filters.
func (s *Store) Query(ctx context.Context, filters Filters, page, limit int) (Page, error) {
	if page <= 0 {
		return Page{}, fmt.Errorf("%w: page must be positive", ErrInvalidFilter)
	}
	if limit <= 0 {
		return Page{}, fmt.Errorf("%w: limit must be positive", ErrInvalidFilter)
	}
	if page-1 > math.MaxInt/limit {
		return Page{}, fmt.Errorf("%w: page %d is out of range", ErrInvalidFilter, page)
	}
	filters, err := filters.normalized()
	if err != nil {
		return Page{}, err
	}
	paging := Pagination{Page: page, Limit: limit}
	rows, total, err := s.repo.Find(ctx, filters, paging.Offset(), limit)
	if err != nil {
		return Page{}, fmt.Errorf("audit: query: %w", err)
	}
	data := make([]Entry, 0, len(rows))
	for _, row := range rows {
		data = append(data, row.Clone())
	}
	return Page{Data: data, Pagination: shared.NewPagination(page, limit, total)}, nil
}

// Export returns every entry matching filters without paging.
func (s *Store) Export(ctx context.Context, filters Filters) ([]Entry, error) {
	filters, err := filters.normalized()
	if err != nil {
		return nil, err
	}
	rows, err := s.repo.FindAll(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("audit: export: %w", err)
	}
	out := make([]Entry, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.Clone())
	}
	return out, nil
}

// ByID returns the entry with id.
func (s *Store) ByID(ctx context.Context, id string) (Entry, error) {
	parsed, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return Entry{}, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	entry, err := s.repo.Get(ctx, parsed.String())
	if err != nil {
		return Entry{}, fmt.Errorf("audit: get: %w", err)
	}
	return entry.Clone(), nil
}

// Stats aggregates entries matching filters. The timeline covers the
// TimelineDays UTC days ending on the EndDate's day, or today when EndDate is
// unset.
func (s *Store) Stats(ctx context.Context, filters StatsFilters) (Stats, error) {
	filters, err := filters.normalized()
	if err != nil {
		return Stats{}, err
	}
	window := s.window(filters.EndDate)
	if s.cache == nil {
		return s.computeStats(ctx, filters, window)
	}

	parts := statsKeyParts(filters, window)
	key := strings.Join(parts, ":")
	loader := func(ctx context.Context) (Stats, error) {
		return s.computeStats(ctx, filters, window)
	}
	// Callers that join the flight must not inherit the first caller's
	// cancellation, so the shared work runs detached with its own deadline.
	ch := s.group.DoChan(key, func() (interface{}, error) {
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), statsTimeout)
		defer cancel()
		stats, err := s.cache.Fetch(flightCtx, parts, loader)
		if err == nil || flightCtx.Err() != nil || errors.Is(err, ErrStoreUnavailable) || errors.Is(err, ErrInvalidFilter) {
			return stats, err
		}
		s.logger.Warn("audit stats cache", slog.Any("error", err))
		return loader(flightCtx)
	})
	select {
	case <-ctx.Done():
		return Stats{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Stats{}, res.Err
		}
		return cloneStats(res.Val.(Stats)), nil
	}
}

func (s *Store) window(end time.Time) Window {
	if end.IsZero() {
		end = s.now()
	}
	end = end.UTC()
	last := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, time.UTC)
	return Window{
		From: last.AddDate(0, 0, -(TimelineDays - 1)),
		To:   last.AddDate(0, 0, 1),
	}
}

func (s *Store) computeStats(ctx context.Context, filters StatsFilters, window Window) (Stats, error) {
	agg, err := s.repo.Aggregate(ctx, filters.Filters(), window)
	if err != nil {
		return Stats{}, fmt.Errorf("audit: stats: %w", err)
	}
	stats := Stats{
		Success:    agg.ByStatus[StatusSuccess],
		Failed:     agg.ByStatus[StatusFailed],
		Warning:    agg.ByStatus[StatusWarning],
		ByResource: copyCounts(agg.ByResource),
		ByAction:   copyCounts(agg.ByAction),
		Timeline:   make([]TimelinePoint, 0, TimelineDays),
	}
	for _, n := range agg.ByStatus {
		stats.Total += n
	}
	for day := window.From; day.Before(window.To); day = day.AddDate(0, 0, 1) {
		date := day.Format(dateLayout)
		stats.Timeline = append(stats.Timeline, TimelinePoint{Date: date, Count: agg.ByDay[date]})
	}
	return stats, nil
}

func (s *Store) observe(outcome string) {
	if s.observer != nil {
		s.observer.ObserveAppend(outcome)
	}
}

func statsKeyParts(f StatsFilters, w Window) []string {
	return []string{
		"audit", "stats",
		w.From.Format(dateLayout),
		formatBound(f.StartDate),
		formatBound(f.EndDate),
		f.UserID,
	}
}

func formatBound(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func copyCounts(in map[string]int) map[string]int {
	out := make(map[string]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func cloneStats(s Stats) Stats {
	s.ByResource = copyCounts(s.ByResource)
	s.ByAction = copyCounts(s.ByAction)
	s.Timeline = append([]TimelinePoint(nil), s.Timeline...)
	return s
}

func trimNewEntry(in NewEntry) NewEntry {
	in.Action = strings.TrimSpace(in.Action)
	in.Resource = strings.TrimSpace(in.Resource)
	in.ResourceID = strings.TrimSpace(in.ResourceID)
	in.ResourceName = strings.TrimSpace(in.ResourceName)
	in.UserID = strings.TrimSpace(in.UserID)
	in.UserName = strings.TrimSpace(in.UserName)
	in.UserEmail = strings.TrimSpace(in.UserEmail)
	in.IPAddress = strings.TrimSpace(in.IPAddress)
	in.UserAgent = strings.TrimSpace(in.UserAgent)
	in.Status = Status(strings.ToLower(strings.TrimSpace(string(in.Status))))
	return in
}
