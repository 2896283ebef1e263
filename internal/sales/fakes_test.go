package sales

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/clinicdesk/clinicdesk/internal/inventory"
	"github.com/clinicdesk/clinicdesk/internal/shared"
)

var errInjected = errors.New("injected failure")

type memoryLedger struct {
	mu      sync.Mutex
	entries map[string]inventory.Entry

	// beforeDecrement runs outside the lock before every guarded decrement.
	beforeDecrement func(ctx context.Context, id string)
	failIncrement   map[string]error
	decrementCalls  []string
	// hangIncrement makes Increment wait for its context to end.
	hangIncrement bool
}

func newMemoryLedger() *memoryLedger {
	return &memoryLedger{entries: map[string]inventory.Entry{}, failIncrement: map[string]error{}}
}

func (l *memoryLedger) seed(id, name string, qty int, price string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[id] = inventory.Entry{ID: id, DisplayName: name, AvailableQuantity: qty, UnitSellingPrice: decimal.RequireFromString(price)}
}

func (l *memoryLedger) qty(id string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.entries[id].AvailableQuantity
}

func (l *memoryLedger) setPrice(id, price string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e := l.entries[id]
	e.UnitSellingPrice = decimal.RequireFromString(price)
	l.entries[id] = e
}

func (l *memoryLedger) drain(id string, amount int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e := l.entries[id]
	e.AvailableQuantity -= amount
	l.entries[id] = e
}

func (l *memoryLedger) Get(ctx context.Context, id string) (inventory.Entry, error) {
	if err := ctx.Err(); err != nil {
		return inventory.Entry{}, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[id]
	if !ok {
		return inventory.Entry{}, inventory.ErrEntryNotFound
	}
	return e, nil
}

func (l *memoryLedger) ConditionalDecrement(ctx context.Context, id string, amount int) (inventory.Entry, error) {
	if l.beforeDecrement != nil {
		l.beforeDecrement(ctx, id)
	}
	if err := ctx.Err(); err != nil {
		return inventory.Entry{}, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.decrementCalls = append(l.decrementCalls, id)
	e, ok := l.entries[id]
	if !ok {
		return inventory.Entry{}, inventory.ErrEntryNotFound
	}
	if e.AvailableQuantity < amount {
		return inventory.Entry{}, inventory.ErrInsufficientStock
	}
	e.AvailableQuantity -= amount
	l.entries[id] = e
	return e, nil
}

func (l *memoryLedger) Increment(ctx context.Context, id string, amount int) (inventory.Entry, error) {
	if l.hangIncrement {
		<-ctx.Done()
		return inventory.Entry{}, ctx.Err()
	}
	if err := ctx.Err(); err != nil {
		return inventory.Entry{}, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.failIncrement[id]; err != nil {
		return inventory.Entry{}, err
	}
	e, ok := l.entries[id]
	if !ok {
		return inventory.Entry{}, inventory.ErrEntryNotFound
	}
	e.AvailableQuantity += amount
	l.entries[id] = e
	return e, nil
}

type memoryStore struct {
	mu    sync.Mutex
	sales map[string]Sale
	seq   int

	createErr   error
	updateErr   error
	deleteErr   error
	createPanic bool
}

func newMemoryStore() *memoryStore {
	return &memoryStore{sales: map[string]Sale{}}
}

func (s *memoryStore) NextSaleID(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return fmt.Sprintf("SAL%06d", s.seq), nil
}

func (s *memoryStore) Create(_ context.Context, sale Sale) (Sale, error) {
	if s.createPanic {
		panic("store exploded")
	}
	if s.createErr != nil {
		return Sale{}, s.createErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sales[sale.SaleID] = cloneSale(sale)
	return cloneSale(sale), nil
}

func (s *memoryStore) FindByID(_ context.Context, id string) (Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sale, ok := s.sales[id]
	if !ok {
		return Sale{}, ErrSaleNotFound
	}
	return cloneSale(sale), nil
}

func (s *memoryStore) Update(_ context.Context, id string, apply func(*Sale) error) (Sale, error) {
	if s.updateErr != nil {
		return Sale{}, s.updateErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sale, ok := s.sales[id]
	if !ok {
		return Sale{}, ErrSaleNotFound
	}
	sale = cloneSale(sale)
	if err := apply(&sale); err != nil {
		return Sale{}, err
	}
	s.sales[id] = sale
	return cloneSale(sale), nil
}

func (s *memoryStore) DeleteByID(_ context.Context, id string) (bool, error) {
	if s.deleteErr != nil {
		return false, s.deleteErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sales[id]; !ok {
		return false, nil
	}
	delete(s.sales, id)
	return true, nil
}

func (s *memoryStore) List(_ context.Context, filter ListFilter) ([]Sale, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []Sale{}
	for _, sale := range s.sales {
		if filter.Source != "" && sale.Source != filter.Source {
			continue
		}
		if filter.PaymentStatus != "" && sale.PaymentStatus != filter.PaymentStatus {
			continue
		}
		out = append(out, cloneSale(sale))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SaleID > out[j].SaleID })
	return out, len(out), nil
}

func (s *memoryStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sales)
}

func cloneSale(sale Sale) Sale {
	sale.Items = append([]SaleItem(nil), sale.Items...)
	return sale
}

type recordingReconciler struct {
	mu            sync.Mutex
	discrepancies []Discrepancy
}

func (r *recordingReconciler) RequestReconciliation(ctx context.Context, d Discrepancy) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.discrepancies = append(r.discrepancies, d)
	return nil
}

func (r *recordingReconciler) all() []Discrepancy {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Discrepancy(nil), r.discrepancies...)
}

type countingRecorder struct {
	mu            sync.Mutex
	operations    map[string]int
	compensations map[string]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{operations: map[string]int{}, compensations: map[string]int{}}
}

func (r *countingRecorder) ObserveOperation(op, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.operations[op+"/"+outcome]++
}

func (r *countingRecorder) ObserveCompensation(result string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.compensations[result]++
}

type fixture struct {
	ledger     *memoryLedger
	store      *memoryStore
	reconciler *recordingReconciler
	metrics    *countingRecorder
	service    *Service
}

func newFixture() *fixture {
	f := &fixture{
		ledger:     newMemoryLedger(),
		store:      newMemoryStore(),
		reconciler: &recordingReconciler{},
		metrics:    newCountingRecorder(),
	}
	f.service = NewService(Dependencies{
		Ledger:     f.ledger,
		Store:      f.store,
		Reconciler: f.reconciler,
		Metrics:    f.metrics,
	}, ServiceConfig{})
	return f
}

func item(id string, qty int) ItemRequest {
	return ItemRequest{EntryID: id, Quantity: qty}
}

func pricedItem(id string, qty int, price string) ItemRequest {
	p := decimal.RequireFromString(price)
	return ItemRequest{EntryID: id, Quantity: qty, UnitPrice: &p}
}

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func ptr[T any](v T) *T {
	return &v
}

type keyedIdempotency struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (k *keyedIdempotency) CheckAndInsert(_ context.Context, key, module string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.seen[module+key] {
		return shared.ErrIdempotencyConflict
	}
	k.seen[module+key] = true
	return nil
}

func (k *keyedIdempotency) Delete(_ context.Context, key, module string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.seen, module+key)
	return nil
}
