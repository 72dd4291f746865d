package audit

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// Default paging values used when a query string omits them.
const (
	DefaultPage  = 1
	DefaultLimit = 20
	MaxLimit     = 100
)

var sortFields = map[string]struct{}{
	SortCreatedAt: {},
	SortAction:    {},
	SortResource:  {},
	SortStatus:    {},
	SortUserName:  {},
}

// normalized validates f and fills the default sort.
func (f Filters) normalized() (Filters, error) {
	f.Search = strings.TrimSpace(f.Search)
	f.Action = strings.TrimSpace(f.Action)
	f.Resource = strings.TrimSpace(f.Resource)
	f.UserID = strings.TrimSpace(f.UserID)
	if f.Status != "" && !f.Status.Valid() {
		return Filters{}, fmt.Errorf("%w: status %q", ErrInvalidFilter, f.Status)
	}
	if !f.StartDate.IsZero() && !f.EndDate.IsZero() && f.StartDate.After(f.EndDate) {
		return Filters{}, fmt.Errorf("%w: start_date after end_date", ErrInvalidFilter)
	}
	if f.SortBy == "" {
		f.SortBy = SortCreatedAt
	}
	if _, ok := sortFields[f.SortBy]; !ok {
		return Filters{}, fmt.Errorf("%w: sort_by %q", ErrInvalidFilter, f.SortBy)
	}
	switch f.SortDir {
	case "":
		f.SortDir = SortDesc
	case SortAsc, SortDesc:
	default:
		return Filters{}, fmt.Errorf("%w: sort_order %q", ErrInvalidFilter, f.SortDir)
	}
	return f, nil
}

func (f StatsFilters) normalized() (StatsFilters, error) {
	f.UserID = strings.TrimSpace(f.UserID)
	if !f.StartDate.IsZero() && !f.EndDate.IsZero() && f.StartDate.After(f.EndDate) {
		return StatsFilters{}, fmt.Errorf("%w: start_date after end_date", ErrInvalidFilter)
	}
	return f, nil
}

// Filters reduces stats filters to the equivalent query filters.
func (f StatsFilters) Filters() Filters {
	return Filters{UserID: f.UserID, StartDate: f.StartDate, EndDate: f.EndDate}
}

// ParseFilters reads query filters and paging from a query string. Missing
// page and limit default to DefaultPage and DefaultLimit; limit is capped at
// MaxLimit.
func ParseFilters(values url.Values) (Filters, int, int, error) {
	start, err := parseDate(values, "start_date", false)
	if err != nil {
		return Filters{}, 0, 0, err
	}
	end, err := parseDate(values, "end_date", true)
	if err != nil {
		return Filters{}, 0, 0, err
	}
	page, err := parsePositive(values, "page", DefaultPage)
	if err != nil {
		return Filters{}, 0, 0, err
	}
	limit, err := parsePositive(values, "limit", DefaultLimit)
	if err != nil {
		return Filters{}, 0, 0, err
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	f := Filters{
		Search:    values.Get("search"),
		Action:    values.Get("action"),
		Resource:  values.Get("resource"),
		Status:    Status(strings.ToLower(strings.TrimSpace(values.Get("status")))),
		UserID:    values.Get("user_id"),
		StartDate: start,
		EndDate:   end,
		SortBy:    strings.ToLower(strings.TrimSpace(values.Get("sort_by"))),
		SortDir:   SortDirection(strings.ToLower(strings.TrimSpace(values.Get("sort_order")))),
	}
	f, err = f.normalized()
	if err != nil {
		return Filters{}, 0, 0, err
	}
	return f, page, limit, nil
}

// ParseStatsFilters reads stats filters from a query string.
func ParseStatsFilters(values url.Values) (StatsFilters, error) {
	start, err := parseDate(values, "start_date", false)
	if err != nil {
		return StatsFilters{}, err
	}
	end, err := parseDate(values, "end_date", true)
	if err != nil {
		return StatsFilters{}, err
	}
	return StatsFilters{StartDate: start, EndDate: end, UserID: values.Get("user_id")}.normalized()
}

// parseDate accepts RFC 3339 timestamps or YYYY-MM-DD dates. A bare date used
// as an upper bound covers the whole day.
func parseDate(values url.Values, key string, endOfDay bool) (time.Time, error) {
	raw := strings.TrimSpace(values.Get(key))
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s %q", ErrInvalidFilter, key, raw)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}

func parsePositive(values url.Values, key string, fallback int) (int, error) {
	raw := strings.TrimSpace(values.Get(key))
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: %s %q", ErrInvalidFilter, key, raw)
	}
	return n, nil
}
