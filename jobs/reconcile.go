package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	jobmetrics "github.com/clinicdesk/clinicdesk/internal/jobs"
	"github.com/clinicdesk/clinicdesk/internal/sales"
)

// ReconciliationStore persists discrepancies for operator follow-up.
type ReconciliationStore interface {
	Record(ctx context.Context, d sales.Discrepancy) error
}

// PostgresReconciliationStore writes to stock_reconciliations.
type PostgresReconciliationStore struct {
	Pool *pgxpool.Pool
}

// Record inserts one open discrepancy.
func (s PostgresReconciliationStore) Record(ctx context.Context, d sales.Discrepancy) error {
	if s.Pool == nil {
		return errors.New("reconcile: pool not configured")
	}
	_, err := s.Pool.Exec(ctx, `INSERT INTO stock_reconciliations
	(operation, sale_id, entry_id, amount, direction, reason, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		d.Operation, d.SaleID, d.EntryID, d.Amount, string(d.Direction), d.Reason, d.OccurredAt)
	if err != nil {
		return fmt.Errorf("reconcile: insert: %w", err)
	}
	return nil
}

// ReconcileJob records ledger discrepancies queued by the sales service.
type ReconcileJob struct {
	Store   ReconciliationStore
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewReconcileJob initialises the reconcile handler.
func NewReconcileJob(store ReconciliationStore, logger *slog.Logger, metrics *jobmetrics.Metrics) *ReconcileJob {
	return &ReconcileJob{Store: store, Logger: logger, Metrics: metrics}
}

// Handle stores the discrepancy. A malformed payload is not retried.
func (j *ReconcileJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Store == nil {
		return errors.New("reconcile: handler not configured")
	}
	var d sales.Discrepancy
	if err := json.Unmarshal(t.Payload(), &d); err != nil {
		return fmt.Errorf("reconcile: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	if d.EntryID == "" || d.Amount <= 0 {
		return fmt.Errorf("reconcile: incomplete discrepancy: %w", asynq.SkipRetry)
	}

	tracker := j.Metrics.Track(TaskStockReconcile)
	defer func() { err = tracker.End(err) }()

	if err := j.Store.Record(ctx, d); err != nil {
		j.logger().Error("record stock discrepancy", slog.String("entry_id", d.EntryID), slog.Any("error", err))
		return err
	}
	j.Metrics.AddReconciliation(d.Operation, string(d.Direction))
	j.logger().Warn("stock discrepancy recorded",
		slog.String("operation", d.Operation),
		slog.String("sale_id", d.SaleID),
		slog.String("entry_id", d.EntryID),
		slog.Int("amount", d.Amount),
		slog.String("direction", string(d.Direction)),
		slog.String("reason", d.Reason),
	)
	return nil
}

func (j *ReconcileJob) logger() *slog.Logger {
	if j.Logger == nil {
		return slog.Default()
	}
	return j.Logger
}
