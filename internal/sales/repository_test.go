package sales

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/clinicdesk/clinicdesk/internal/inventory"
	"github.com/clinicdesk/clinicdesk/internal/platform/db"
)

// PostgresSuite runs the sale operations against a real database. It is skipped
// unless CLINICDESK_TEST_PG_DSN points at a disposable database.
type PostgresSuite struct {
	suite.Suite
	pool    *pgxpool.Pool
	ledger  *inventory.Repository
	store   *Repository
	service *Service
	ctx     context.Context
}

func TestPostgresSuite(t *testing.T) {
	dsn := os.Getenv("CLINICDESK_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("CLINICDESK_TEST_PG_DSN not set")
	}
	suite.Run(t, &PostgresSuite{})
}

func (s *PostgresSuite) SetupSuite() {
	s.ctx = context.Background()
	pool, err := db.New(s.ctx, os.Getenv("CLINICDESK_TEST_PG_DSN"), db.Options{MaxConns: 16})
	s.Require().NoError(err)
	_, err = db.Migrate(s.ctx, pool)
	s.Require().NoError(err)
	s.pool = pool
	s.ledger = inventory.NewRepository(pool)
	s.store = NewRepository(pool)
	s.service = NewService(Dependencies{Ledger: s.ledger, Store: s.store}, ServiceConfig{})
}

func (s *PostgresSuite) TearDownSuite() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *PostgresSuite) seed(qty int, price string) string {
	entry, err := s.ledger.Put(s.ctx, inventory.Entry{
		ID:                uuid.NewString(),
		DisplayName:       "Test drug " + price,
		AvailableQuantity: qty,
		UnitSellingPrice:  dec(price),
		ReorderLevel:      2,
	})
	s.Require().NoError(err)
	return entry.ID
}

func (s *PostgresSuite) quantity(id string) int {
	entry, err := s.ledger.Get(s.ctx, id)
	s.Require().NoError(err)
	return entry.AvailableQuantity
}

func (s *PostgresSuite) TestLifecycle() {
	t := s.T()
	a := s.seed(10, "5.00")

	sale, err := s.service.CreateSale(s.ctx, CreateSaleInput{Items: []ItemRequest{item(a, 4)}, PatientName: "Jane"})
	require.NoError(t, err)
	require.Regexp(t, `^SAL\d{6}$`, sale.SaleID)
	require.Equal(t, 6, s.quantity(a))

	loaded, err := s.store.FindByID(s.ctx, sale.SaleID)
	require.NoError(t, err)
	require.Len(t, loaded.Items, 1)
	require.True(t, dec("20").Equal(loaded.Total))
	require.WithinDuration(t, sale.CreatedAt, loaded.CreatedAt, time.Millisecond)

	_, err = s.service.CreateSale(s.ctx, CreateSaleInput{Items: []ItemRequest{item(a, 10)}})
	require.ErrorIs(t, err, ErrInsufficientStock)

	edited, err := s.service.EditSale(s.ctx, sale.SaleID, EditSaleInput{Items: []ItemRequest{item(a, 1)}})
	require.NoError(t, err)
	require.Equal(t, 9, s.quantity(a))
	require.True(t, dec("5").Equal(edited.Total))

	list, total, err := s.service.ListSales(s.ctx, ListFilter{Patient: "jan"})
	require.NoError(t, err)
	require.GreaterOrEqual(t, total, 1)
	require.NotEmpty(t, list)

	require.NoError(t, s.service.VoidSale(s.ctx, sale.SaleID))
	require.Equal(t, 10, s.quantity(a))
	_, err = s.store.FindByID(s.ctx, sale.SaleID)
	require.ErrorIs(t, err, ErrSaleNotFound)
}

func (s *PostgresSuite) TestConcurrentSalesNeverOversell() {
	t := s.T()
	a := s.seed(7, "1.00")

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.service.CreateSale(s.ctx, CreateSaleInput{Items: []ItemRequest{item(a, 1)}}); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 7, succeeded)
	require.Equal(t, 0, s.quantity(a))
}
