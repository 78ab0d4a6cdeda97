package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/hibiken/asynq"
)

// refreshDedupWindow collapses bursts of refresh requests for one company.
const refreshDedupWindow = 30 * time.Second

// Client enqueues permission refreshes from the API process.
type Client struct {
	client *asynq.Client
}

// NewClient constructs an Asynq client.
func NewClient(redisOpts asynq.RedisConnOpt) (*Client, error) {
	if redisOpts == nil {
		return nil, errors.New("jobs: redis options required")
	}
	return &Client{client: asynq.NewClient(redisOpts)}, nil
}

// EnqueuePermissionsRefresh schedules a cache refresh for companyID. A refresh
// already pending for the company absorbs the request.
func (c *Client) EnqueuePermissionsRefresh(ctx context.Context, companyID int64) error {
	task, err := NewPermissionsRefreshTask(companyID)
	if err != nil {
		return err
	}
	_, err = c.client.EnqueueContext(ctx, task, asynq.MaxRetry(5), asynq.Unique(refreshDedupWindow), asynq.Timeout(2*time.Minute))
	if errors.Is(err, asynq.ErrDuplicateTask) {
		return nil
	}
	return err
}

// Close releases client resources.
func (c *Client) Close() error {
	return c.client.Close()
}
