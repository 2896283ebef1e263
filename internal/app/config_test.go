package app

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("IDP_JWT_SECRET", "test-secret")
	t.Setenv("STOCK_LEDGER", "redis")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, LedgerRedis, cfg.StockLedger)
	require.Equal(t, 10*time.Second, cfg.CompensationTimeout)
	require.Equal(t, 24*time.Hour, cfg.IdempotencyTTL)
	require.Equal(t, "0 * * * *", cfg.LowStockCron)
	require.False(t, cfg.IsProduction())
}

func TestLoadConfigRejectsBadValues(t *testing.T) {
	t.Setenv("IDP_JWT_SECRET", "test-secret")
	t.Setenv("STOCK_LEDGER", "spreadsheet")
	_, err := LoadConfig()
	require.ErrorContains(t, err, "unsupported stock ledger")

	cfg := Config{IDPJWTSecret: "s", StockLedger: LedgerPostgres}
	require.ErrorContains(t, cfg.Validate(), "compensation timeout")

	cfg = Config{StockLedger: LedgerPostgres, CompensationTimeout: time.Second}
	require.Error(t, cfg.Validate())
}

func TestLoggerJSONCarriesEnv(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&Config{AppEnv: "staging", LogFormat: "json"}, &buf)
	logger.Info("hello")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "hello", line["msg"])
	require.Equal(t, "staging", line["env"])
}
