package audit

import (
	"time"

	"github.com/edgararthur/pinkytrust-sub003/internal/shared"
)

// Status is the outcome of an audited action.
type Status string

// Known statuses.
const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusWarning Status = "warning"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusSuccess, StatusFailed, StatusWarning:
		return true
	}
	return false
}

// Entry is one immutable record of an action.
type Entry struct {
	ID           string         `json:"id"`
	Sequence     int64          `json:"sequence"`
	Action       string         `json:"action"`
	Resource     string         `json:"resource"`
	ResourceID   string         `json:"resource_id"`
	ResourceName string         `json:"resource_name"`
	UserID       string         `json:"user_id"`
	UserName     string         `json:"user_name"`
	UserEmail    string         `json:"user_email"`
	IPAddress    string         `json:"ip_address,omitempty"`
	UserAgent    string         `json:"user_agent,omitempty"`
	Status       Status         `json:"status"`
	Details      map[string]any `json:"details,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// Clone returns a deep copy so stored entries cannot be mutated by callers.
func (e Entry) Clone() Entry {
	e.Details = cloneMap(e.Details)
	return e
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return cloneMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return val
	}
}

// NewEntry is the caller supplied part of an entry; sequence and timestamp
// are assigned by the store. ID is optional and lets a producer that may
// redeliver, such as the job queue, fix the id up front.
type NewEntry struct {
	ID           string         `json:"id,omitempty"`
	Action       string         `json:"action" validate:"required,max=64"`
	Resource     string         `json:"resource" validate:"required,max=64"`
	ResourceID   string         `json:"resource_id" validate:"required,max=128"`
	ResourceName string         `json:"resource_name" validate:"max=255"`
	UserID       string         `json:"user_id" validate:"required,max=128"`
	UserName     string         `json:"user_name" validate:"max=255"`
	UserEmail    string         `json:"user_email" validate:"max=255"`
	IPAddress    string         `json:"ip_address,omitempty" validate:"max=64"`
	UserAgent    string         `json:"user_agent,omitempty" validate:"max=512"`
	Status       Status         `json:"status" validate:"omitempty,oneof=success failed warning"`
	Details      map[string]any `json:"details,omitempty"`
}

// SortDirection orders query results.
type SortDirection string

// Sort directions.
const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// Sortable fields.
const (
	SortCreatedAt = "created_at"
	SortAction    = "action"
	SortResource  = "resource"
	SortStatus    = "status"
	SortUserName  = "user_name"
)

// Filters narrows a query. Zero values mean "no filter". StartDate and EndDate
// are inclusive instants.
type Filters struct {
	Search    string
	Action    string
	Resource  string
	Status    Status
	UserID    string
	StartDate time.Time
	EndDate   time.Time
	SortBy    string
	SortDir   SortDirection
}

// StatsFilters narrows statistics.
type StatsFilters struct {
	StartDate time.Time
	EndDate   time.Time
	UserID    string
}

// Pagination describes a page of results.
type Pagination = shared.Pagination

// Page is a paginated query result.
type Page struct {
	Data       []Entry    `json:"data"`
	Pagination Pagination `json:"pagination"`
}

// TimelinePoint is the number of entries on one UTC day.
type TimelinePoint struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// Stats aggregates entries for dashboards.
type Stats struct {
	Total      int             `json:"total"`
	Success    int             `json:"success"`
	Failed     int             `json:"failed"`
	Warning    int             `json:"warning"`
	ByResource map[string]int  `json:"byResource"`
	ByAction   map[string]int  `json:"byAction"`
	Timeline   []TimelinePoint `json:"timeline"`
}

// Window is the half-open [From, To) span of the stats timeline.
type Window struct {
	From time.Time
	To   time.Time
}

// Aggregates are the raw counts a repository computes for Stats.
type Aggregates struct {
	ByStatus   map[Status]int
	ByResource map[string]int
	ByAction   map[string]int
	ByDay      map[string]int
}
