package app

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/clinicdesk/clinicdesk/internal/inventory"
)

func TestNewLedgerRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ledger, err := NewLedger(&Config{StockLedger: LedgerRedis}, nil, client)
	require.NoError(t, err)
	require.IsType(t, &inventory.RedisLedger{}, ledger)
}

func TestNewLedgerRejectsMissingBackend(t *testing.T) {
	_, err := NewLedger(&Config{StockLedger: LedgerRedis}, nil, nil)
	require.Error(t, err)

	_, err = NewLedger(&Config{StockLedger: LedgerPostgres}, nil, nil)
	require.Error(t, err)

	_, err = NewLedger(&Config{StockLedger: "etcd"}, nil, nil)
	require.Error(t, err)
}
