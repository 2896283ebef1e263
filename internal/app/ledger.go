package app

import (
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/clinicdesk/clinicdesk/internal/inventory"
)

// NewLedger returns the stock ledger backend named by STOCK_LEDGER.
func NewLedger(cfg *Config, pool *pgxpool.Pool, client *redis.Client) (inventory.RepositoryPort, error) {
	switch cfg.StockLedger {
	case LedgerRedis:
		if client == nil {
			return nil, fmt.Errorf("stock ledger %q requires a redis client", cfg.StockLedger)
		}
		return inventory.NewRedisLedger(client), nil
	case LedgerPostgres, "":
		if pool == nil {
			return nil, fmt.Errorf("stock ledger %q requires a postgres pool", LedgerPostgres)
		}
		return inventory.NewRepository(pool), nil
	default:
		return nil, fmt.Errorf("unsupported stock ledger %q", cfg.StockLedger)
	}
}
