package sales

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicdesk/clinicdesk/internal/platform/db"
	"github.com/clinicdesk/clinicdesk/internal/shared"
)

const saleColumns = `sale_id, source, drug_order_id, patient_name, patient_phone, items,
	subtotal, discount, tax, total, payment_method, payment_status, recorded_by, created_at, updated_at`

// Repository is the PostgreSQL sale store. Items are kept as a JSONB document
// on the sale row.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// NextSaleID allocates the next human-readable sale number.
func (r *Repository) NextSaleID(ctx context.Context) (string, error) {
	var n int64
	if err := r.pool.QueryRow(ctx, `SELECT nextval('sale_number_seq')`).Scan(&n); err != nil {
		return "", fmt.Errorf("sales: next sale id: %w", err)
	}
	return fmt.Sprintf("SAL%06d", n), nil
}

// Create inserts a sale.
func (r *Repository) Create(ctx context.Context, sale Sale) (Sale, error) {
	items, err := json.Marshal(sale.Items)
	if err != nil {
		return Sale{}, fmt.Errorf("sales: encode items: %w", err)
	}
	row := r.pool.QueryRow(ctx, `INSERT INTO sales (`+saleColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
RETURNING `+saleColumns,
		sale.SaleID, sale.Source, sale.DrugOrderID, sale.PatientName, sale.PatientPhone, items,
		sale.Subtotal, sale.Discount, sale.Tax, sale.Total, sale.PaymentMethod, sale.PaymentStatus,
		sale.RecordedBy, sale.CreatedAt, sale.UpdatedAt)
	created, err := scanSale(row)
	if err != nil {
		return Sale{}, fmt.Errorf("sales: insert sale: %w", err)
	}
	return created, nil
}

// FindByID loads a sale.
func (r *Repository) FindByID(ctx context.Context, id string) (Sale, error) {
	sale, err := scanSale(r.pool.QueryRow(ctx, `SELECT `+saleColumns+` FROM sales WHERE sale_id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Sale{}, ErrSaleNotFound
		}
		return Sale{}, fmt.Errorf("sales: get sale: %w", err)
	}
	return sale, nil
}

// Update locks the row, applies the mutation and writes every column back.
func (r *Repository) Update(ctx context.Context, id string, apply func(*Sale) error) (Sale, error) {
	var updated Sale
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		current, err := scanSale(tx.QueryRow(ctx, `SELECT `+saleColumns+` FROM sales WHERE sale_id = $1 FOR UPDATE`, id))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrSaleNotFound
			}
			return fmt.Errorf("sales: lock sale: %w", err)
		}
		if err := apply(&current); err != nil {
			return err
		}
		items, err := json.Marshal(current.Items)
		if err != nil {
			return fmt.Errorf("sales: encode items: %w", err)
		}
		row := tx.QueryRow(ctx, `UPDATE sales SET
	patient_name = $2, patient_phone = $3, items = $4, subtotal = $5, discount = $6, tax = $7,
	total = $8, payment_method = $9, payment_status = $10, updated_at = $11
WHERE sale_id = $1
RETURNING `+saleColumns,
			id, current.PatientName, current.PatientPhone, items, current.Subtotal, current.Discount,
			current.Tax, current.Total, current.PaymentMethod, current.PaymentStatus, current.UpdatedAt)
		updated, err = scanSale(row)
		if err != nil {
			return fmt.Errorf("sales: update sale: %w", err)
		}
		return nil
	})
	if err != nil {
		return Sale{}, err
	}
	return updated, nil
}

// DeleteByID removes a sale and reports whether a row was deleted.
func (r *Repository) DeleteByID(ctx context.Context, id string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM sales WHERE sale_id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("sales: delete sale: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// List returns sales newest first and the total matching filter.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Sale, int, error) {
	var conditions []string
	var args []interface{}
	argPos := 1

	if filter.Source != "" {
		conditions = append(conditions, fmt.Sprintf("source = $%d", argPos))
		args = append(args, filter.Source)
		argPos++
	}
	if filter.PaymentStatus != "" {
		conditions = append(conditions, fmt.Sprintf("payment_status = $%d", argPos))
		args = append(args, filter.PaymentStatus)
		argPos++
	}
	if filter.DrugOrderID != "" {
		conditions = append(conditions, fmt.Sprintf("drug_order_id = $%d", argPos))
		args = append(args, filter.DrugOrderID)
		argPos++
	}
	if patient := strings.TrimSpace(filter.Patient); patient != "" {
		conditions = append(conditions, fmt.Sprintf("(patient_name ILIKE $%d OR patient_phone ILIKE $%d)", argPos, argPos))
		args = append(args, "%"+patient+"%")
		argPos++
	}
	if !filter.From.IsZero() {
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", argPos))
		args = append(args, filter.From)
		argPos++
	}
	if !filter.To.IsZero() {
		conditions = append(conditions, fmt.Sprintf("created_at < $%d", argPos))
		args = append(args, filter.To)
		argPos++
	}
	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM sales "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("sales: count sales: %w", err)
	}

	query := fmt.Sprintf("SELECT %s FROM sales %s ORDER BY created_at DESC, sale_id DESC LIMIT $%d OFFSET $%d",
		saleColumns, where, argPos, argPos+1)
	args = append(args, filter.PerPage, shared.Offset(filter.Page, filter.PerPage))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("sales: list sales: %w", err)
	}
	defer rows.Close()

	sales := []Sale{}
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, 0, err
		}
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return sales, total, nil
}

func scanSale(row pgx.Row) (Sale, error) {
	var (
		s     Sale
		items []byte
	)
	err := row.Scan(&s.SaleID, &s.Source, &s.DrugOrderID, &s.PatientName, &s.PatientPhone, &items,
		&s.Subtotal, &s.Discount, &s.Tax, &s.Total, &s.PaymentMethod, &s.PaymentStatus,
		&s.RecordedBy, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return Sale{}, err
	}
	if err := json.Unmarshal(items, &s.Items); err != nil {
		return Sale{}, fmt.Errorf("sales: decode items for %s: %w", s.SaleID, err)
	}
	return s, nil
}
