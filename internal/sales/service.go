package sales

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/clinicdesk/clinicdesk/internal/inventory"
	"github.com/clinicdesk/clinicdesk/internal/shared"
)

const idempotencyModule = "sales"

// Store persists sale documents.
type Store interface {
	NextSaleID(ctx context.Context) (string, error)
	Create(ctx context.Context, sale Sale) (Sale, error)
	FindByID(ctx context.Context, id string) (Sale, error)
	// Update loads the sale under a write lock, lets apply mutate it and saves the result.
	Update(ctx context.Context, id string, apply func(*Sale) error) (Sale, error)
	DeleteByID(ctx context.Context, id string) (bool, error)
	List(ctx context.Context, filter ListFilter) ([]Sale, int, error)
}

// ErrSaleNotFound is returned by Store implementations for unknown ids.
var ErrSaleNotFound = errors.New("sales: sale not found")

// IdempotencyStore reserves request keys.
type IdempotencyStore interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key, module string) error
}

// Recorder receives operation outcomes for metrics.
type Recorder interface {
	ObserveOperation(op, outcome string)
	ObserveCompensation(result string)
}

type noopRecorder struct{}

func (noopRecorder) ObserveOperation(string, string) {}
func (noopRecorder) ObserveCompensation(string)      {}

// ServiceConfig groups tunables.
type ServiceConfig struct {
	CompensationTimeout time.Duration
	ResolveConcurrency  int
}

// Dependencies wires the collaborators of Service. Ledger and Store are required.
type Dependencies struct {
	Ledger      inventory.Ledger
	Store       Store
	Idempotency IdempotencyStore
	Reconciler  Reconciler
	Metrics     Recorder
	Logger      *slog.Logger
}

// Service orchestrates stock and sale records so that each operation either
// fully applies or leaves the ledger as it found it.
type Service struct {
	ledger     inventory.Ledger
	store      Store
	idem       IdempotencyStore
	reconciler Reconciler
	metrics    Recorder
	logger     *slog.Logger
	validate   *validator.Validate
	cfg        ServiceConfig
	now        func() time.Time
}

// NewService constructs Service.
func NewService(deps Dependencies, cfg ServiceConfig) *Service {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Metrics == nil {
		deps.Metrics = noopRecorder{}
	}
	if cfg.CompensationTimeout <= 0 {
		cfg.CompensationTimeout = 10 * time.Second
	}
	if cfg.ResolveConcurrency <= 0 {
		cfg.ResolveConcurrency = 8
	}
	return &Service{
		ledger:     deps.Ledger,
		store:      deps.Store,
		idem:       deps.Idempotency,
		reconciler: deps.Reconciler,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
		validate:   validator.New(),
		cfg:        cfg,
		now:        time.Now,
	}
}

// CreateSale decrements stock for every item and records the sale. Either every
// decrement and the record are applied, or none of them are.
func (s *Service) CreateSale(ctx context.Context, input CreateSaleInput) (sale Sale, err error) {
	defer func() { s.observe("create", err) }()

	if err := s.validateCreate(&input); err != nil {
		return Sale{}, err
	}
	committed := false
	if input.IdempotencyKey != "" && s.idem != nil {
		if err := s.idem.CheckAndInsert(ctx, input.IdempotencyKey, idempotencyModule); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				return Sale{}, invalidInput("duplicate request %q", input.IdempotencyKey)
			}
			return Sale{}, newError(KindPersistenceFailure, "", err, "reserve idempotency key")
		}
		defer func() {
			if !committed {
				if delErr := s.idem.Delete(context.WithoutCancel(ctx), input.IdempotencyKey, idempotencyModule); delErr != nil {
					s.logger.Warn("release idempotency key", slog.String("key", input.IdempotencyKey), slog.Any("error", delErr))
				}
			}
		}()
	}

	order, requested := aggregateRequests(input.Items)
	entries, err := s.resolveEntries(ctx, order)
	if err != nil {
		return Sale{}, err
	}
	for _, id := range order {
		if entry := entries[id]; entry.AvailableQuantity < requested[id] {
			return Sale{}, insufficient(entry, requested[id])
		}
	}
	items := priceItems(input.Items, entries, nil)

	comp := &compensations{}
	defer func() {
		if !committed {
			s.unwind(ctx, "create", "", comp)
		}
	}()

	for _, item := range items {
		if err := s.decrement(ctx, item.DrugID, item.Quantity); err != nil {
			return Sale{}, err
		}
		comp.push(item.DrugID, item.Quantity)
	}

	saleID, err := s.store.NextSaleID(ctx)
	if err != nil {
		return Sale{}, newError(KindPersistenceFailure, "", err, "allocate sale id")
	}
	now := s.now().UTC()
	sale = Sale{
		SaleID:        saleID,
		Source:        input.Source,
		DrugOrderID:   input.DrugOrderID,
		PatientName:   input.PatientName,
		PatientPhone:  input.PatientPhone,
		Items:         items,
		Discount:      decimalOrZero(input.Discount),
		Tax:           decimalOrZero(input.Tax),
		PaymentMethod: input.PaymentMethod,
		PaymentStatus: input.PaymentStatus,
		RecordedBy:    input.RecordedBy,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	applyTotals(&sale)

	created, err := s.store.Create(ctx, sale)
	if err != nil {
		return Sale{}, newError(KindPersistenceFailure, "", err, "persist sale")
	}
	committed = true

	s.logger.Info("sale created",
		slog.String("sale_id", created.SaleID),
		slog.Int("items", len(created.Items)),
		slog.String("total", created.Total.StringFixed(2)),
		slog.String("recorded_by", created.RecordedBy),
	)
	return created, nil
}

// EditSale replaces the items of an existing sale and moves stock by the
// per-entry difference. Increases are applied with the guard, before the record
// is saved, and rolled back on failure. Decreases are applied after the record is
// saved and never fail the edit.
func (s *Service) EditSale(ctx context.Context, saleID string, input EditSaleInput) (sale Sale, err error) {
	defer func() { s.observe("edit", err) }()

	if err := s.validateEdit(&input); err != nil {
		return Sale{}, err
	}
	existing, err := s.findSale(ctx, saleID)
	if err != nil {
		return Sale{}, err
	}

	if input.Items == nil {
		updated, err := s.store.Update(ctx, saleID, func(sale *Sale) error {
			applyMeta(sale, input, s.now().UTC())
			applyTotals(sale)
			return nil
		})
		if err != nil {
			return Sale{}, storeError(err, saleID, "update sale")
		}
		return updated, nil
	}

	order, _ := aggregateRequests(input.Items)
	entries, err := s.resolveEntries(ctx, order)
	if err != nil {
		return Sale{}, err
	}
	deltas := editDeltas(existing.Items, input.Items)
	for _, d := range deltas {
		if d.delta <= 0 {
			continue
		}
		if entry := entries[d.entryID]; entry.AvailableQuantity < d.delta {
			return Sale{}, insufficient(entry, d.delta)
		}
	}
	items := priceItems(input.Items, entries, capturedLines(existing.Items))

	comp := &compensations{}
	committed := false
	defer func() {
		if !committed {
			s.unwind(ctx, "edit", saleID, comp)
		}
	}()

	for _, d := range deltas {
		if d.delta <= 0 {
			continue
		}
		if err := s.decrement(ctx, d.entryID, d.delta); err != nil {
			return Sale{}, err
		}
		comp.push(d.entryID, d.delta)
	}

	// Concurrent edits of one sale are last-write-wins: apply overwrites the
	// items with this call's view regardless of what the locked row holds.
	// A void racing this edit restocks the items it read before the edit
	// committed, so the ledger can drift by the edit's deltas.
	updated, err := s.store.Update(ctx, saleID, func(sale *Sale) error {
		sale.Items = items
		applyMeta(sale, input, s.now().UTC())
		applyTotals(sale)
		return nil
	})
	if err != nil {
		return Sale{}, storeError(err, saleID, "update sale")
	}
	committed = true

	s.returnStock(ctx, "edit", saleID, deltas)

	s.logger.Info("sale edited",
		slog.String("sale_id", saleID),
		slog.Int("items", len(updated.Items)),
		slog.String("total", updated.Total.StringFixed(2)),
		slog.String("edited_by", input.RecordedBy),
	)
	return updated, nil
}

// VoidSale restocks every line of a sale and deletes the record. The sale is
// read without a lock, so an edit committing before the delete leaves the
// ledger restocked with the pre-edit quantities.
func (s *Service) VoidSale(ctx context.Context, saleID string) (err error) {
	defer func() { s.observe("void", err) }()

	existing, err := s.findSale(ctx, saleID)
	if err != nil {
		return err
	}

	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.CompensationTimeout)
	defer cancel()
	restocked := make([]SaleItem, 0, len(existing.Items))
	for _, item := range existing.Items {
		if _, incErr := s.ledger.Increment(rctx, item.DrugID, item.Quantity); incErr != nil {
			s.reportDiscrepancy(rctx, incErr, Discrepancy{
				Operation: "void",
				SaleID:    saleID,
				EntryID:   item.DrugID,
				Amount:    item.Quantity,
				Direction: DirectionIncrement,
				Reason:    "restock of voided sale failed",
			})
			continue
		}
		restocked = append(restocked, item)
	}

	deleted, delErr := s.store.DeleteByID(rctx, saleID)
	if delErr != nil || !deleted {
		// The restock cannot be taken back; reverse it out of band.
		reason := "sale record not deleted after restock"
		if !deleted && delErr == nil {
			reason = "sale deleted concurrently after restock"
		}
		for _, item := range restocked {
			s.reportDiscrepancy(rctx, delErr, Discrepancy{
				Operation: "void",
				SaleID:    saleID,
				EntryID:   item.DrugID,
				Amount:    item.Quantity,
				Direction: DirectionDecrement,
				Reason:    reason,
			})
		}
		if delErr != nil {
			return newError(KindPersistenceFailure, "", delErr, "delete sale %s", saleID)
		}
		return newError(KindNotFound, "", nil, "sale %s not found", saleID)
	}

	s.logger.Info("sale voided", slog.String("sale_id", saleID), slog.Int("items", len(existing.Items)))
	return nil
}

// GetSale returns a single sale.
func (s *Service) GetSale(ctx context.Context, saleID string) (Sale, error) {
	return s.findSale(ctx, saleID)
}

// ListSales returns sales newest first and the total matching filter.
func (s *Service) ListSales(ctx context.Context, filter ListFilter) ([]Sale, int, error) {
	filter.Page, filter.PerPage = shared.NormalizePage(filter.Page, filter.PerPage)
	if !filter.From.IsZero() && !filter.To.IsZero() && filter.To.Before(filter.From) {
		return nil, 0, invalidInput("to must not be before from")
	}
	sales, total, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, 0, newError(KindPersistenceFailure, "", err, "list sales")
	}
	return sales, total, nil
}

func (s *Service) findSale(ctx context.Context, saleID string) (Sale, error) {
	if strings.TrimSpace(saleID) == "" {
		return Sale{}, invalidInput("sale id required")
	}
	sale, err := s.store.FindByID(ctx, saleID)
	if err != nil {
		return Sale{}, storeError(err, saleID, "load sale")
	}
	return sale, nil
}

// resolveEntries fetches every entry concurrently. A missing entry aborts the
// operation before any ledger mutation.
func (s *Service) resolveEntries(ctx context.Context, ids []string) (map[string]inventory.Entry, error) {
	entries := make(map[string]inventory.Entry, len(ids))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.ResolveConcurrency)
	for _, id := range ids {
		g.Go(func() error {
			entry, err := s.ledger.Get(gctx, id)
			if err != nil {
				if errors.Is(err, inventory.ErrEntryNotFound) {
					return newError(KindItemNotFound, id, err, "stock entry %s not found", id)
				}
				return newError(KindPersistenceFailure, id, err, "resolve stock entry %s", id)
			}
			mu.Lock()
			entries[id] = entry
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return entries, nil
}

// decrement applies one guarded decrement. A guard failure here means another
// writer took the stock after the pre-check.
func (s *Service) decrement(ctx context.Context, entryID string, amount int) error {
	_, err := s.ledger.ConditionalDecrement(ctx, entryID, amount)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, inventory.ErrInsufficientStock):
		return newError(KindStockRace, entryID, err, "stock for %s changed during the sale, retry", entryID)
	case errors.Is(err, inventory.ErrEntryNotFound):
		return newError(KindItemNotFound, entryID, err, "stock entry %s not found", entryID)
	default:
		return newError(KindPersistenceFailure, entryID, err, "decrement stock for %s", entryID)
	}
}

// returnStock applies the negative deltas of a committed edit.
func (s *Service) returnStock(ctx context.Context, operation, saleID string, deltas []quantityDelta) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.CompensationTimeout)
	defer cancel()
	for _, d := range deltas {
		if d.delta >= 0 {
			continue
		}
		if _, err := s.ledger.Increment(rctx, d.entryID, -d.delta); err != nil {
			s.reportDiscrepancy(rctx, err, Discrepancy{
				Operation: operation,
				SaleID:    saleID,
				EntryID:   d.entryID,
				Amount:    -d.delta,
				Direction: DirectionIncrement,
				Reason:    "return of removed quantity failed",
			})
		}
	}
}

func (s *Service) validateCreate(input *CreateSaleInput) error {
	if err := s.validate.Struct(input); err != nil {
		return newError(KindInvalidInput, "", err, "invalid sale")
	}
	if err := validateItems(input.Items); err != nil {
		return err
	}
	if input.Source == "" {
		input.Source = SourceOverTheCounter
	}
	if input.Source == SourceDrugOrder && strings.TrimSpace(input.DrugOrderID) == "" {
		return invalidInput("drugOrderId required for drug order sales")
	}
	if input.PaymentMethod == "" {
		input.PaymentMethod = PaymentCash
	}
	if input.PaymentStatus == "" {
		input.PaymentStatus = PaymentPending
	}
	if err := validateAmount("discount", input.Discount); err != nil {
		return err
	}
	if err := validateAmount("tax", input.Tax); err != nil {
		return err
	}
	input.Discount, input.Tax = roundAmount(input.Discount), roundAmount(input.Tax)
	return nil
}

func (s *Service) validateEdit(input *EditSaleInput) error {
	if input.Items != nil && len(input.Items) == 0 {
		return invalidInput("items must not be empty")
	}
	if err := s.validate.Struct(input); err != nil {
		return newError(KindInvalidInput, "", err, "invalid sale edit")
	}
	if err := validateItems(input.Items); err != nil {
		return err
	}
	if err := validateAmount("discount", input.Discount); err != nil {
		return err
	}
	if err := validateAmount("tax", input.Tax); err != nil {
		return err
	}
	input.Discount, input.Tax = roundAmount(input.Discount), roundAmount(input.Tax)
	return nil
}

func validateItems(items []ItemRequest) error {
	for i, item := range items {
		if strings.TrimSpace(item.EntryID) == "" {
			return invalidInput("items[%d]: drugId required", i)
		}
		if item.Quantity <= 0 || item.Quantity > MaxLineQuantity {
			return invalidInput("items[%d]: quantity must be between 1 and %d", i, MaxLineQuantity)
		}
		if item.UnitPrice != nil && item.UnitPrice.IsNegative() {
			return invalidInput("items[%d]: unitPrice must be >= 0", i)
		}
	}
	order, totals := aggregateRequests(items)
	for _, id := range order {
		if totals[id] > MaxLineQuantity {
			return invalidInput("total quantity for %s exceeds %d", id, MaxLineQuantity)
		}
	}
	return nil
}

func validateAmount(field string, v *decimal.Decimal) error {
	if v != nil && v.IsNegative() {
		return invalidInput("%s must be >= 0", field)
	}
	return nil
}

func (s *Service) observe(op string, err error) {
	outcome := "success"
	if err != nil {
		outcome = string(KindOf(err))
		if outcome == "" {
			outcome = "error"
		}
	}
	s.metrics.ObserveOperation(op, outcome)
}

// roundAmount keeps discount and tax at the cent precision the sale is stored with.
func roundAmount(v *decimal.Decimal) *decimal.Decimal {
	if v == nil {
		return nil
	}
	r := v.Round(2)
	return &r
}

func decimalOrZero(v *decimal.Decimal) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return *v
}

func insufficient(entry inventory.Entry, requested int) error {
	return newError(KindInsufficientStock, entry.ID, nil,
		"insufficient stock for %s: requested %d, available %d", entry.DisplayName, requested, entry.AvailableQuantity)
}

func storeError(err error, saleID, action string) error {
	if errors.Is(err, ErrSaleNotFound) {
		return newError(KindNotFound, "", err, "sale %s not found", saleID)
	}
	var se *Error
	if errors.As(err, &se) {
		return se
	}
	return newError(KindPersistenceFailure, "", err, "%s %s", action, saleID)
}

func applyMeta(sale *Sale, input EditSaleInput, now time.Time) {
	if input.PatientName != nil {
		sale.PatientName = strings.TrimSpace(*input.PatientName)
	}
	if input.PatientPhone != nil {
		sale.PatientPhone = strings.TrimSpace(*input.PatientPhone)
	}
	if input.Discount != nil {
		sale.Discount = *input.Discount
	}
	if input.Tax != nil {
		sale.Tax = *input.Tax
	}
	if input.PaymentMethod != nil {
		sale.PaymentMethod = *input.PaymentMethod
	}
	if input.PaymentStatus != nil {
		sale.PaymentStatus = *input.PaymentStatus
	}
	sale.UpdatedAt = now
}
