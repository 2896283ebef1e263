package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/clinicdesk/clinicdesk/internal/inventory"
	jobmetrics "github.com/clinicdesk/clinicdesk/internal/jobs"
)

const defaultLowStockLimit = 500

// LowStockSource lists entries at or below their reorder level.
type LowStockSource interface {
	LowStock(ctx context.Context, limit int) ([]inventory.Entry, error)
}

// LowStockScanJob logs every entry that needs reordering.
type LowStockScanJob struct {
	Stock   LowStockSource
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewLowStockScanJob initialises the scan handler.
func NewLowStockScanJob(stock LowStockSource, logger *slog.Logger, metrics *jobmetrics.Metrics) *LowStockScanJob {
	return &LowStockScanJob{Stock: stock, Logger: logger, Metrics: metrics}
}

// Handle runs one scan.
func (j *LowStockScanJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Stock == nil {
		return errors.New("low stock scan: handler not configured")
	}
	var payload LowStockScanPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	if payload.Limit <= 0 {
		payload.Limit = defaultLowStockLimit
	}

	start := time.Now()
	tracker := j.Metrics.Track(TaskStockLowScan)
	defer func() { err = tracker.End(err) }()

	logger := j.Logger
	if logger == nil {
		logger = slog.Default()
	}
	entries, err := j.Stock.LowStock(ctx, payload.Limit)
	if err != nil {
		logger.Error("low stock scan failed", slog.Any("error", err))
		return err
	}
	for _, e := range entries {
		logger.Warn("stock below reorder level",
			slog.String("entry_id", e.ID),
			slog.String("name", e.DisplayName),
			slog.Int("available", e.AvailableQuantity),
			slog.Int("reorder_level", e.ReorderLevel),
		)
	}
	j.Metrics.SetLowStock(len(entries))
	logger.Info("completed low stock scan", slog.Int("entries", len(entries)), slog.Duration("duration", time.Since(start)))
	return nil
}
