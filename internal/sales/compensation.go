package sales

import (
	"context"
	"log/slog"
	"time"
)

// Direction names the ledger correction a reconciliation must apply.
type Direction string

const (
	DirectionIncrement Direction = "increment"
	DirectionDecrement Direction = "decrement"
)

// Discrepancy describes ledger drift that could not be corrected inline.
type Discrepancy struct {
	Operation  string    `json:"operation"`
	SaleID     string    `json:"saleId,omitempty"`
	EntryID    string    `json:"entryId"`
	Amount     int       `json:"amount"`
	Direction  Direction `json:"direction"`
	Reason     string    `json:"reason"`
	OccurredAt time.Time `json:"occurredAt"`
}

// Reconciler receives discrepancies for out-of-band repair.
type Reconciler interface {
	RequestReconciliation(ctx context.Context, d Discrepancy) error
}

type restoration struct {
	entryID string
	amount  int
}

// compensations records the decrements applied so far, newest last.
type compensations struct {
	applied []restoration
}

func (c *compensations) push(entryID string, amount int) {
	c.applied = append(c.applied, restoration{entryID: entryID, amount: amount})
}

func (c *compensations) len() int {
	return len(c.applied)
}

// unwind re-increments every recorded decrement, newest first. It runs detached
// from the caller's cancellation so a cancelled request still restores stock.
// Failed restorations are logged and handed to the reconciler; unwind never stops
// early.
func (s *Service) unwind(ctx context.Context, operation, saleID string, c *compensations) {
	if c.len() == 0 {
		return
	}
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.CompensationTimeout)
	defer cancel()

	for i := len(c.applied) - 1; i >= 0; i-- {
		r := c.applied[i]
		if _, err := s.ledger.Increment(cctx, r.entryID, r.amount); err != nil {
			s.metrics.ObserveCompensation("failed")
			s.reportDiscrepancy(cctx, err, Discrepancy{
				Operation: operation,
				SaleID:    saleID,
				EntryID:   r.entryID,
				Amount:    r.amount,
				Direction: DirectionIncrement,
				Reason:    "rollback of applied decrement failed",
			})
			continue
		}
		s.metrics.ObserveCompensation("restored")
		s.logger.Warn("stock decrement rolled back",
			slog.String("operation", operation),
			slog.String("sale_id", saleID),
			slog.String("entry_id", r.entryID),
			slog.Int("amount", r.amount),
		)
	}
	c.applied = nil
}

// reportDiscrepancy logs a ledger inconsistency and queues it for reconciliation.
// The enqueue gets its own deadline since the caller's may already have expired.
func (s *Service) reportDiscrepancy(ctx context.Context, cause error, d Discrepancy) {
	d.OccurredAt = s.now().UTC()
	s.logger.Error("CRITICAL stock ledger inconsistency",
		slog.String("operation", d.Operation),
		slog.String("sale_id", d.SaleID),
		slog.String("entry_id", d.EntryID),
		slog.Int("amount", d.Amount),
		slog.String("direction", string(d.Direction)),
		slog.String("reason", d.Reason),
		slog.Any("error", cause),
	)
	if s.reconciler == nil {
		return
	}
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.CompensationTimeout)
	defer cancel()
	if err := s.reconciler.RequestReconciliation(rctx, d); err != nil {
		s.logger.Error("enqueue stock reconciliation failed",
			slog.String("sale_id", d.SaleID),
			slog.String("entry_id", d.EntryID),
			slog.Int("amount", d.Amount),
			slog.Any("error", err),
		)
	}
}
