package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/edgararthur/pinkytrust-sub003/internal/audit"
)

// ActivityStore is the subset of the activity log used by background tasks.
type ActivityStore interface {
	Append(ctx context.Context, in audit.NewEntry) (audit.Entry, error)
	Stats(ctx context.Context, filters audit.StatsFilters) (audit.Stats, error)
}

// JobObserver receives one notification per processed task.
type JobObserver interface {
	ObserveJob(task string, err error)
}

// ActivityJobs handles the activity log task types.
type ActivityJobs struct {
	Store    ActivityStore
	Logger   *slog.Logger
	Observer JobObserver
	clock    func() time.Time
}

// NewActivityJobs wires dependencies for the activity handlers.
func NewActivityJobs(store ActivityStore, logger *slog.Logger, observer JobObserver) *ActivityJobs {
	return &ActivityJobs{
		Store:    store,
		Logger:   logger,
		Observer: observer,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handlers lists the task handlers to register on the worker.
func (j *ActivityJobs) Handlers() []TaskHandler {
	return []TaskHandler{
		{Type: TaskActivityRecord, Handler: j.HandleRecord},
		{Type: TaskActivityStatsWarmup, Handler: j.HandleStatsWarmup},
	}
}

// HandleRecord appends a deferred activity log entry. Payloads that can never
// succeed are not retried.
func (j *ActivityJobs) HandleRecord(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Store == nil {
		return errors.New("activity record: handler not configured")
	}
	defer func() { j.observe(TaskActivityRecord, resultErr) }()

	var payload RecordPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		j.logger().Warn("discard malformed activity payload", slog.Any("error", err))
		return fmt.Errorf("activity record: decode payload: %w", asynq.SkipRetry)
	}

	entry, err := j.Store.Append(ctx, payload.Entry)
	if err != nil {
		if errors.Is(err, audit.ErrValidation) {
			j.logger().Warn("discard invalid activity entry",
				slog.String("action", payload.Entry.Action),
				slog.String("resource", payload.Entry.Resource),
				slog.Any("error", err))
			return fmt.Errorf("%w: %w", asynq.SkipRetry, err)
		}
		return fmt.Errorf("activity record: %w", err)
	}

	logger := j.logger().With(slog.String("id", entry.ID), slog.Int64("sequence", entry.Sequence))
	if !payload.EnqueuedAt.IsZero() {
		logger = logger.With(slog.Duration("lag", j.now().Sub(payload.EnqueuedAt)))
	}
	logger.Debug("activity entry recorded")
	return nil
}

// HandleStatsWarmup recomputes the default statistics so dashboards hit a
// warm cache.
func (j *ActivityJobs) HandleStatsWarmup(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Store == nil {
		return errors.New("activity stats warmup: handler not configured")
	}
	defer func() { j.observe(TaskActivityStatsWarmup, resultErr) }()

	var payload StatsWarmupPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("activity stats warmup: decode payload: %w", asynq.SkipRetry)
		}
	}
	start := j.now()
	stats, err := j.Store.Stats(ctx, audit.StatsFilters{UserID: payload.UserID})
	if err != nil {
		return fmt.Errorf("activity stats warmup: %w", err)
	}
	j.logger().Info("activity stats warmed",
		slog.Int("total", stats.Total),
		slog.Duration("duration", j.now().Sub(start)))
	return nil
}

func (j *ActivityJobs) observe(task string, err error) {
	if j.Observer != nil {
		j.Observer.ObserveJob(task, err)
	}
}

func (j *ActivityJobs) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

func (j *ActivityJobs) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
