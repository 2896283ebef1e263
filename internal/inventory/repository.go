package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const entryColumns = `id, name, generic_name, quantity, unit_price, reorder_level, updated_at`

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Repository is the PostgreSQL stock ledger. Every quantity change is a single
// UPDATE statement so the availability check and the write cannot be split by a
// concurrent writer.
type Repository struct {
	db dbtx
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool}
}

// Get loads one entry.
func (r *Repository) Get(ctx context.Context, id string) (Entry, error) {
	row := r.db.QueryRow(ctx, `SELECT `+entryColumns+` FROM drugs WHERE id = $1`, id)
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, ErrEntryNotFound
		}
		return Entry{}, fmt.Errorf("inventory: get entry: %w", err)
	}
	return entry, nil
}

// ConditionalDecrement subtracts amount only when at least amount is available.
func (r *Repository) ConditionalDecrement(ctx context.Context, id string, amount int) (Entry, error) {
	if amount <= 0 {
		return Entry{}, ErrInvalidAmount
	}
	row := r.db.QueryRow(ctx, `UPDATE drugs
SET quantity = quantity - $2, updated_at = NOW()
WHERE id = $1 AND quantity >= $2
RETURNING `+entryColumns, id, amount)
	entry, err := scanEntry(row)
	if err == nil {
		return entry, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Entry{}, fmt.Errorf("inventory: decrement: %w", err)
	}
	// The guarded write matched nothing; tell a missing entry apart from a short one.
	if _, getErr := r.Get(ctx, id); getErr != nil {
		return Entry{}, getErr
	}
	return Entry{}, ErrInsufficientStock
}

// Increment adds amount to the entry unconditionally.
func (r *Repository) Increment(ctx context.Context, id string, amount int) (Entry, error) {
	if amount <= 0 {
		return Entry{}, ErrInvalidAmount
	}
	row := r.db.QueryRow(ctx, `UPDATE drugs
SET quantity = quantity + $2, updated_at = NOW()
WHERE id = $1
RETURNING `+entryColumns, id, amount)
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, ErrEntryNotFound
		}
		return Entry{}, fmt.Errorf("inventory: increment: %w", err)
	}
	return entry, nil
}

// Put inserts a new entry or updates descriptive fields of an existing one.
// The quantity column is only written on insert.
func (r *Repository) Put(ctx context.Context, entry Entry) (Entry, error) {
	row := r.db.QueryRow(ctx, `INSERT INTO drugs (id, name, generic_name, quantity, unit_price, reorder_level, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, NOW())
ON CONFLICT (id) DO UPDATE SET
	name = EXCLUDED.name,
	generic_name = EXCLUDED.generic_name,
	unit_price = EXCLUDED.unit_price,
	reorder_level = EXCLUDED.reorder_level,
	updated_at = NOW()
RETURNING `+entryColumns,
		entry.ID, entry.DisplayName, entry.GenericName, entry.AvailableQuantity, entry.UnitSellingPrice, entry.ReorderLevel)
	saved, err := scanEntry(row)
	if err != nil {
		return Entry{}, fmt.Errorf("inventory: put entry: %w", err)
	}
	return saved, nil
}

// List returns entries ordered by name and the total number matching filter.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Entry, int, error) {
	var conditions []string
	var args []interface{}
	argPos := 1

	if search := strings.TrimSpace(filter.Search); search != "" {
		conditions = append(conditions, fmt.Sprintf("(name ILIKE $%d OR generic_name ILIKE $%d)", argPos, argPos))
		args = append(args, "%"+search+"%")
		argPos++
	}
	if filter.LowStockOnly {
		conditions = append(conditions, "quantity <= reorder_level")
	}
	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM drugs "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("inventory: count entries: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	query := fmt.Sprintf("SELECT %s FROM drugs %s ORDER BY name ASC, id ASC LIMIT $%d OFFSET $%d", entryColumns, where, argPos, argPos+1)
	args = append(args, limit, filter.Offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("inventory: list entries: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, 0, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

func scanEntry(row pgx.Row) (Entry, error) {
	var e Entry
	err := row.Scan(&e.ID, &e.DisplayName, &e.GenericName, &e.AvailableQuantity, &e.UnitSellingPrice, &e.ReorderLevel, &e.UpdatedAt)
	return e, err
}
