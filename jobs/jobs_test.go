package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/clinicdesk/clinicdesk/internal/inventory"
	jobmetrics "github.com/clinicdesk/clinicdesk/internal/jobs"
	"github.com/clinicdesk/clinicdesk/internal/sales"
)

type recordedStore struct {
	records []sales.Discrepancy
	err     error
}

func (s *recordedStore) Record(_ context.Context, d sales.Discrepancy) error {
	if s.err != nil {
		return s.err
	}
	s.records = append(s.records, d)
	return nil
}

func TestReconcileJobRecordsDiscrepancy(t *testing.T) {
	store := &recordedStore{}
	job := NewReconcileJob(store, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))

	d := sales.Discrepancy{Operation: "void", SaleID: "SAL000003", EntryID: "A", Amount: 4, Direction: sales.DirectionDecrement, Reason: "sale record not deleted after restock", OccurredAt: time.Now().UTC()}
	task, err := NewStockReconcileTask(d)
	require.NoError(t, err)
	require.Equal(t, TaskStockReconcile, task.Type())

	require.NoError(t, job.Handle(context.Background(), task))
	require.Len(t, store.records, 1)
	require.Equal(t, "SAL000003", store.records[0].SaleID)
	require.Equal(t, sales.DirectionDecrement, store.records[0].Direction)
	require.True(t, d.OccurredAt.Equal(store.records[0].OccurredAt))
}

func TestReconcileJobRejectsBadPayload(t *testing.T) {
	job := NewReconcileJob(&recordedStore{}, nil, nil)

	err := job.Handle(context.Background(), asynq.NewTask(TaskStockReconcile, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)

	body, _ := json.Marshal(sales.Discrepancy{Operation: "create"})
	err = job.Handle(context.Background(), asynq.NewTask(TaskStockReconcile, body))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestReconcileJobRetriesStoreFailure(t *testing.T) {
	boom := errors.New("db down")
	job := NewReconcileJob(&recordedStore{err: boom}, nil, nil)
	task, err := NewStockReconcileTask(sales.Discrepancy{EntryID: "A", Amount: 1})
	require.NoError(t, err)

	err = job.Handle(context.Background(), task)
	require.ErrorIs(t, err, boom)
	require.NotErrorIs(t, err, asynq.SkipRetry)
}

type lowStockFake struct {
	entries []inventory.Entry
	limit   int
}

func (f *lowStockFake) LowStock(_ context.Context, limit int) ([]inventory.Entry, error) {
	f.limit = limit
	return f.entries, nil
}

func TestLowStockScanJob(t *testing.T) {
	source := &lowStockFake{entries: []inventory.Entry{{ID: "A", DisplayName: "Amoxicillin", AvailableQuantity: 2, ReorderLevel: 10}}}
	job := NewLowStockScanJob(source, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))

	task, err := NewLowStockScanTask(0, time.Now())
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, defaultLowStockLimit, source.limit)

	task, err = NewLowStockScanTask(25, time.Now())
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, 25, source.limit)
}

func TestHealthWithoutInspector(t *testing.T) {
	r := chi.NewRouter()
	NewHandler(nil, nil).MountRoutes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"queues":[{"queue":"critical","pending":0,"retry":0,"archived":0},{"queue":"default","pending":0,"retry":0,"archived":0}]}`, rec.Body.String())
}
