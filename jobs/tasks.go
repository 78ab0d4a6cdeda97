package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueuePermissions carries per-company refreshes triggered by edits.
	QueuePermissions = "permissions"
	// QueueMaintenance carries periodic sweeps.
	QueueMaintenance = "maintenance"
	// TaskPermissionsRefresh drops and rebuilds the permission caches of a company.
	TaskPermissionsRefresh = "permissions:refresh"
	// TaskCatalogWarmup rebuilds expired catalog cache entries for every company.
	TaskCatalogWarmup = "permissions:catalog_warmup"
)

// PermissionsRefreshPayload scopes a refresh. A zero CompanyID refreshes
// every company.
type PermissionsRefreshPayload struct {
	CompanyID int64 `json:"company_id"`
}

// NewPermissionsRefreshTask constructs an Asynq task.
func NewPermissionsRefreshTask(companyID int64) (*asynq.Task, error) {
	data, err := json.Marshal(PermissionsRefreshPayload{CompanyID: companyID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPermissionsRefresh, data, asynq.Queue(QueuePermissions)), nil
}

// NewCatalogWarmupTask constructs the periodic warmup task.
func NewCatalogWarmupTask() *asynq.Task {
	return asynq.NewTask(TaskCatalogWarmup, nil, asynq.Queue(QueueMaintenance))
}

// Queues maps each queue to its processing weight. Refreshes triggered by
// edits outrank the periodic warmup.
var Queues = map[string]int{
	QueuePermissions: 6,
	QueueMaintenance: 1,
}

// QueueNames returns the queue names in a stable order.
func QueueNames() []string {
	return []string{QueuePermissions, QueueMaintenance}
}
