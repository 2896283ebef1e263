package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Ledger is the stock-ledger contract consumed by sales.
type Ledger interface {
	Get(ctx context.Context, id string) (Entry, error)
	ConditionalDecrement(ctx context.Context, id string, amount int) (Entry, error)
	Increment(ctx context.Context, id string, amount int) (Entry, error)
}

// RepositoryPort abstracts the ledger backend used by the catalog service.
// Both Repository (postgres) and RedisLedger satisfy it.
type RepositoryPort interface {
	Ledger
	Put(ctx context.Context, entry Entry) (Entry, error)
	List(ctx context.Context, filter ListFilter) ([]Entry, int, error)
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	DefaultReorderLevel int
}

// Service coordinates drug catalog and stock operations.
type Service struct {
	repo     RepositoryPort
	logger   *slog.Logger
	validate *validator.Validate
	cfg      ServiceConfig
}

// NewService builds Service.
func NewService(repo RepositoryPort, logger *slog.Logger, cfg ServiceConfig) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DefaultReorderLevel <= 0 {
		cfg.DefaultReorderLevel = 10
	}
	return &Service{repo: repo, logger: logger, validate: validator.New(), cfg: cfg}
}

// Ledger exposes the backend as the narrow ledger contract.
func (s *Service) Ledger() Ledger {
	return s.repo
}

// CreateEntry registers a drug with its opening stock.
func (s *Service) CreateEntry(ctx context.Context, input CreateEntryInput) (Entry, error) {
	input.DisplayName = strings.TrimSpace(input.DisplayName)
	input.GenericName = strings.TrimSpace(input.GenericName)
	if err := s.validate.Struct(input); err != nil {
		return Entry{}, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}
	if input.UnitPrice.IsNegative() {
		return Entry{}, fmt.Errorf("%w: unit price must be >= 0", ErrInvalidEntry)
	}
	reorder := s.cfg.DefaultReorderLevel
	if input.ReorderLevel != nil {
		reorder = *input.ReorderLevel
	}
	entry := Entry{
		ID:                uuid.NewString(),
		DisplayName:       input.DisplayName,
		GenericName:       input.GenericName,
		AvailableQuantity: input.InitialQuantity,
		UnitSellingPrice:  input.UnitPrice.Round(2),
		ReorderLevel:      reorder,
	}
	saved, err := s.repo.Put(ctx, entry)
	if err != nil {
		return Entry{}, err
	}
	s.logger.Info("stock entry created", slog.String("entry_id", saved.ID), slog.String("name", saved.DisplayName), slog.Int("quantity", saved.AvailableQuantity))
	return saved, nil
}

// UpdateEntry changes name, price or reorder level. Existing sales keep the
// price they captured; only future sales see the new price.
func (s *Service) UpdateEntry(ctx context.Context, id string, input UpdateEntryInput) (Entry, error) {
	if err := s.validate.Struct(input); err != nil {
		return Entry{}, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}
	existing, err := s.repo.Get(ctx, id)
	if err != nil {
		return Entry{}, err
	}
	updated := existing
	if input.DisplayName != nil {
		name := strings.TrimSpace(*input.DisplayName)
		if name == "" {
			return Entry{}, fmt.Errorf("%w: display name required", ErrInvalidEntry)
		}
		updated.DisplayName = name
	}
	if input.GenericName != nil {
		updated.GenericName = strings.TrimSpace(*input.GenericName)
	}
	if input.UnitPrice != nil {
		if input.UnitPrice.IsNegative() {
			return Entry{}, fmt.Errorf("%w: unit price must be >= 0", ErrInvalidEntry)
		}
		updated.UnitSellingPrice = input.UnitPrice.Round(2)
	}
	if input.ReorderLevel != nil {
		updated.ReorderLevel = *input.ReorderLevel
	}
	return s.repo.Put(ctx, updated)
}

// Restock adds received quantity to an entry.
func (s *Service) Restock(ctx context.Context, id string, input RestockInput) (Entry, error) {
	if err := s.validate.Struct(input); err != nil {
		return Entry{}, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	entry, err := s.repo.Increment(ctx, id, input.Quantity)
	if err != nil {
		return Entry{}, err
	}
	s.logger.Info("stock restocked",
		slog.String("entry_id", id),
		slog.Int("quantity", input.Quantity),
		slog.Int("available", entry.AvailableQuantity),
		slog.String("note", input.Note),
	)
	return entry, nil
}

// Get returns a single entry.
func (s *Service) Get(ctx context.Context, id string) (Entry, error) {
	if strings.TrimSpace(id) == "" {
		return Entry{}, ErrEntryNotFound
	}
	return s.repo.Get(ctx, id)
}

// List returns catalog entries.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Entry, int, error) {
	if filter.Offset < 0 {
		return nil, 0, errors.New("inventory: offset must be >= 0")
	}
	return s.repo.List(ctx, filter)
}

// LowStock lists entries at or below their reorder level.
func (s *Service) LowStock(ctx context.Context, limit int) ([]Entry, error) {
	entries, _, err := s.repo.List(ctx, ListFilter{LowStockOnly: true, Limit: limit})
	return entries, err
}
