package audit

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/text/cases"
)

// MemoryRepository keeps entries in process. It is used by tests and the
// "memory" backend.
type MemoryRepository struct {
	mu      sync.RWMutex
	entries []Entry
	byID    map[string]int
	seq     int64
}

// NewMemoryRepository returns an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byID: make(map[string]int)}
}

// Insert stores entry and assigns the next sequence.
func (m *MemoryRepository) Insert(ctx context.Context, entry Entry) (Entry, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.byID[entry.ID]; exists {
		return Entry{}, fmt.Errorf("%w: id %s", ErrDuplicate, entry.ID)
	}
	m.seq++
	entry = entry.Clone()
	entry.Sequence = m.seq
	m.byID[entry.ID] = len(m.entries)
	m.entries = append(m.entries, entry)
	return entry.Clone(), nil
}

// Get returns the entry with id.
func (m *MemoryRepository) Get(ctx context.Context, id string) (Entry, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	idx, ok := m.byID[id]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return m.entries[idx].Clone(), nil
}

// Find returns a sorted page of matching entries and the match count.
func (m *MemoryRepository) Find(ctx context.Context, filters Filters, offset, limit int) ([]Entry, int, error) {
	matched, err := m.FindAll(ctx, filters)
	if err != nil {
		return nil, 0, err
	}
	total := len(matched)
	if offset >= total {
		return []Entry{}, total, nil
	}
	end := total
	if limit < total-offset {
		end = offset + limit
	}
	return matched[offset:end], total, nil
}

// FindAll returns every matching entry, sorted.
func (m *MemoryRepository) FindAll(ctx context.Context, filters Filters) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	match := newMatcher(filters)
	m.mu.RLock()
	out := make([]Entry, 0, len(m.entries))
	for _, e := range m.entries {
		if match(e) {
			out = append(out, e.Clone())
		}
	}
	m.mu.RUnlock()
	sortEntries(out, filters.SortBy, filters.SortDir)
	return out, nil
}

// Aggregate counts matching entries.
func (m *MemoryRepository) Aggregate(ctx context.Context, filters Filters, window Window) (Aggregates, error) {
	if err := ctx.Err(); err != nil {
		return Aggregates{}, err
	}
	agg := Aggregates{
		ByStatus:   make(map[Status]int),
		ByResource: make(map[string]int),
		ByAction:   make(map[string]int),
		ByDay:      make(map[string]int),
	}
	match := newMatcher(filters)
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, e := range m.entries {
		if !match(e) {
			continue
		}
		agg.ByStatus[e.Status]++
		agg.ByResource[e.Resource]++
		agg.ByAction[e.Action]++
		if !e.CreatedAt.Before(window.From) && e.CreatedAt.Before(window.To) {
			agg.ByDay[e.CreatedAt.UTC().Format(dateLayout)]++
		}
	}
	return agg, nil
}

// newMatcher compiles filters into a predicate. A Caser is not safe for
// concurrent use, so each matcher owns one.
func newMatcher(f Filters) func(Entry) bool {
	fold := cases.Fold()
	needle := fold.String(f.Search)
	return func(e Entry) bool {
		if f.Action != "" && e.Action != f.Action {
			return false
		}
		if f.Resource != "" && e.Resource != f.Resource {
			return false
		}
		if f.Status != "" && e.Status != f.Status {
			return false
		}
		if f.UserID != "" && e.UserID != f.UserID {
			return false
		}
		if !f.StartDate.IsZero() && e.CreatedAt.Before(f.StartDate) {
			return false
		}
		if !f.EndDate.IsZero() && e.CreatedAt.After(f.EndDate) {
			return false
		}
		if needle == "" {
			return true
		}
		return strings.Contains(fold.String(e.ResourceName), needle) ||
			strings.Contains(fold.String(e.UserName), needle) ||
			strings.Contains(fold.String(e.UserEmail), needle)
	}
}

func sortEntries(entries []Entry, field string, dir SortDirection) {
	sort.SliceStable(entries, func(i, j int) bool {
		c := compareEntries(entries[i], entries[j], field)
		if dir == SortAsc {
			return c < 0
		}
		return c > 0
	})
}

// compareEntries orders by field, breaking ties on sequence.
func compareEntries(a, b Entry, field string) int {
	var c int
	switch field {
	case SortAction:
		c = strings.Compare(a.Action, b.Action)
	case SortResource:
		c = strings.Compare(a.Resource, b.Resource)
	case SortStatus:
		c = strings.Compare(string(a.Status), string(b.Status))
	case SortUserName:
		c = strings.Compare(a.UserName, b.UserName)
	default:
		c = a.CreatedAt.Compare(b.CreatedAt)
	}
	if c != 0 {
		return c
	}
	switch {
	case a.Sequence < b.Sequence:
		return -1
	case a.Sequence > b.Sequence:
		return 1
	}
	return 0
}
