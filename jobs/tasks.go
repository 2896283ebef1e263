package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"

	"github.com/clinicdesk/clinicdesk/internal/sales"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueCritical carries ledger reconciliation work.
	QueueCritical = "critical"

	// TaskStockReconcile records a stock ledger discrepancy for an operator.
	TaskStockReconcile = "stock:reconcile"
	// TaskStockLowScan reports entries at or below their reorder level.
	TaskStockLowScan = "stock:low_scan"
)

// LowStockScanPayload carries scan parameters.
type LowStockScanPayload struct {
	Limit        int       `json:"limit"`
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewStockReconcileTask wraps a discrepancy into a task. Reconciliation tasks are
// retried for a day before being archived.
func NewStockReconcileTask(d sales.Discrepancy) (*asynq.Task, error) {
	body, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskStockReconcile, body,
		asynq.Queue(QueueCritical),
		asynq.MaxRetry(25),
		asynq.Retention(7*24*time.Hour),
	), nil
}

// NewLowStockScanTask constructs the periodic scan task.
func NewLowStockScanTask(limit int, at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(LowStockScanPayload{Limit: limit, ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskStockLowScan, body, asynq.Queue(QueueDefault)), nil
}
