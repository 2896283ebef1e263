package main

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/clinicdesk/clinicdesk/internal/inventory"
	"github.com/clinicdesk/clinicdesk/jobs"
)

func TestSeedCatalogIsRepeatable(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	svc := inventory.NewService(inventory.NewRedisLedger(client), nil, inventory.ServiceConfig{})
	ctx := context.Background()

	created, err := seedCatalog(ctx, svc, sampleCatalog)
	require.NoError(t, err)
	require.Equal(t, len(sampleCatalog), created)

	created, err = seedCatalog(ctx, svc, sampleCatalog)
	require.NoError(t, err)
	require.Zero(t, created)

	low, err := svc.LowStock(ctx, 0)
	require.NoError(t, err)
	require.Len(t, low, 1)
	require.Equal(t, "ORS Sachet", low[0].DisplayName)
}

func TestSeedCatalogRejectsBadPrice(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	svc := inventory.NewService(inventory.NewRedisLedger(client), nil, inventory.ServiceConfig{})

	_, err := seedCatalog(context.Background(), svc, []catalogSeed{{name: "Broken", price: "abc"}})
	require.Error(t, err)
}

func TestBuildTask(t *testing.T) {
	task, err := buildTask(jobs.TaskStockLowScan, 25, time.Date(2026, 1, 2, 3, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Equal(t, jobs.TaskStockLowScan, task.Type())
	require.JSONEq(t, `{"limit":25,"scheduled_for":"2026-01-02T03:00:00Z"}`, string(task.Payload()))

	_, err = buildTask(jobs.TaskStockReconcile, 0, time.Now())
	require.Error(t, err)
}

func TestJobsCLIRequiresConfiguration(t *testing.T) {
	_, err := NewJobsCLI("")
	require.Error(t, err)

	var cli *JobsCLI
	_, err = cli.InspectQueues(context.Background())
	require.Error(t, err)
	_, err = cli.ListArchived(context.Background(), 5)
	require.Error(t, err)
	_, err = cli.Trigger(context.Background(), jobs.TaskStockLowScan, 0)
	require.Error(t, err)
}
