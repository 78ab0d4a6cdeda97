package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-crm/odyssey-crm/jobs"
)

// JobsCLI wraps manual management helpers for Asynq jobs.
type JobsCLI struct {
	client    *asynq.Client
	inspector *asynq.Inspector
}

// NewJobsCLI initialises the CLI helpers using the provided Redis options.
func NewJobsCLI(opt asynq.RedisConnOpt) *JobsCLI {
	return &JobsCLI{client: asynq.NewClient(opt), inspector: asynq.NewInspector(opt)}
}

// Close releases underlying resources.
func (c *JobsCLI) Close() error {
	var err error
	if c.inspector != nil {
		if closeErr := c.inspector.Close(); closeErr != nil {
			err = closeErr
		}
	}
	if c.client != nil {
		if closeErr := c.client.Close(); closeErr != nil {
			err = closeErr
		}
	}
	return err
}

// Trigger enqueues a supported job by name. companyID only applies to the
// refresh job; zero refreshes every company.
func (c *JobsCLI) Trigger(ctx context.Context, name string, companyID int64) (*asynq.TaskInfo, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("jobs cli: client not configured")
	}
	task, err := taskFor(name, companyID)
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task, asynq.MaxRetry(3))
}

func taskFor(name string, companyID int64) (*asynq.Task, error) {
	switch name {
	case jobs.TaskPermissionsRefresh:
		if companyID < 0 {
			return nil, fmt.Errorf("jobs cli: company must not be negative")
		}
		return jobs.NewPermissionsRefreshTask(companyID)
	case jobs.TaskCatalogWarmup:
		return jobs.NewCatalogWarmupTask(), nil
	default:
		return nil, fmt.Errorf("jobs cli: unsupported job %s", name)
	}
}

// QueueStats summarises one queue.
type QueueStats struct {
	Queue     string `json:"queue"`
	Pending   int    `json:"pending"`
	Active    int    `json:"active"`
	Scheduled int    `json:"scheduled"`
	Retry     int    `json:"retry"`
	Archived  int    `json:"archived"`
	Paused    bool   `json:"paused"`
}

// CronEntry describes a periodic task registered by a running worker.
type CronEntry struct {
	Spec     string    `json:"spec"`
	Task     string    `json:"task"`
	Next     time.Time `json:"next"`
	Previous time.Time `json:"previous,omitempty"`
}

// Inspection is the report printed by jobs inspect.
type Inspection struct {
	Queues []QueueStats `json:"queues"`
	Cron   []CronEntry  `json:"cron"`
}

// Inspect reports every permission queue and the registered cron entries.
// Queues that have never received a task read as empty.
func (c *JobsCLI) Inspect(ctx context.Context) (Inspection, error) {
	if c == nil || c.inspector == nil {
		return Inspection{}, errors.New("jobs cli: inspector not configured")
	}
	var report Inspection
	for _, name := range jobs.QueueNames() {
		stats := QueueStats{Queue: name}
		info, err := c.inspector.GetQueueInfo(name)
		switch {
		case errors.Is(err, asynq.ErrQueueNotFound):
		case err != nil:
			return Inspection{}, fmt.Errorf("jobs cli: queue %s: %w", name, err)
		default:
			stats.Pending, stats.Active, stats.Scheduled = info.Pending, info.Active, info.Scheduled
			stats.Retry, stats.Archived, stats.Paused = info.Retry, info.Archived, info.Paused
		}
		report.Queues = append(report.Queues, stats)
	}

	entries, err := c.inspector.SchedulerEntries()
	if err != nil {
		return Inspection{}, fmt.Errorf("jobs cli: scheduler entries: %w", err)
	}
	for _, e := range entries {
		report.Cron = append(report.Cron, CronEntry{Spec: e.Spec, Task: e.Task.Type(), Next: e.Next, Previous: e.Prev})
	}
	return report, nil
}
