package jobs

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/edgararthur/pinkytrust-sub003/internal/audit"
)

const (
	// QueueDefault is the fallback queue used for maintenance tasks.
	QueueDefault = "default"
	// QueueActivity carries deferred activity log appends.
	QueueActivity = "activity"

	// TaskActivityRecord appends one activity log entry.
	TaskActivityRecord = "activity:record"
	// TaskActivityStatsWarmup recomputes the default dashboard statistics.
	TaskActivityStatsWarmup = "activity:stats-warmup"
)

// RecordPayload describes a deferred activity log append.
type RecordPayload struct {
	Entry      audit.NewEntry `json:"entry"`
	EnqueuedAt time.Time      `json:"enqueued_at"`
}

// NewRecordTask constructs an activity:record task. The entry id is fixed
// here so a redelivered task is stored once.
func NewRecordTask(payload RecordPayload) (*asynq.Task, error) {
	if payload.Entry.ID == "" {
		payload.Entry.ID = uuid.NewString()
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskActivityRecord, data, asynq.Queue(QueueActivity), asynq.MaxRetry(5)), nil
}

// StatsWarmupPayload scopes a statistics warmup to an optional actor.
type StatsWarmupPayload struct {
	UserID string `json:"user_id,omitempty"`
}

// NewStatsWarmupTask constructs an activity:stats-warmup task.
func NewStatsWarmupTask(payload StatsWarmupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskActivityStatsWarmup, data, asynq.Queue(QueueDefault)), nil
}
