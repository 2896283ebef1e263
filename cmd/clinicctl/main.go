package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/clinicdesk/clinicdesk/internal/app"
	"github.com/clinicdesk/clinicdesk/internal/inventory"
	"github.com/clinicdesk/clinicdesk/internal/platform/cache"
	"github.com/clinicdesk/clinicdesk/internal/platform/db"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "clinicctl",
		Short:         "Operator tooling for clinicdesk",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(jobsCmd())
	rootCmd.AddCommand(stockCmd())
	rootCmd.AddCommand(seedCmd())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "clinicctl:", err)
		stop()
		os.Exit(1)
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.LoadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: 2})
			if err != nil {
				return err
			}
			defer pool.Close()

			applied, err := db.Migrate(ctx, pool)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			if len(applied) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Schema is up to date.")
				return nil
			}
			for _, version := range applied {
				fmt.Fprintf(cmd.OutOrStdout(), "applied %s\n", version)
			}
			return nil
		},
	}
}

func jobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and trigger background jobs",
	}

	triggerCmd := &cobra.Command{
		Use:   "trigger <task>",
		Short: "Enqueue a job immediately",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			return withJobsCLI(func(cli *JobsCLI) error {
				info, err := cli.Trigger(cmd.Context(), args[0], limit)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s as %s on %s\n", info.Type, info.ID, info.Queue)
				return nil
			})
		},
	}
	triggerCmd.Flags().Int("limit", 0, "Maximum entries for stock:low_scan")
	cmd.AddCommand(triggerCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "inspect",
		Short: "Show queue depth for every queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withJobsCLI(func(cli *JobsCLI) error {
				stats, err := cli.InspectQueues(cmd.Context())
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "QUEUE\tPENDING\tACTIVE\tSCHEDULED\tRETRY\tARCHIVED")
				for _, s := range stats {
					fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\n", s.Queue, s.Pending, s.Active, s.Scheduled, s.Retry, s.Archived)
				}
				return tw.Flush()
			})
		},
	})

	archivedCmd := &cobra.Command{
		Use:   "archived",
		Short: "List reconciliation tasks that exhausted their retries",
		RunE: func(cmd *cobra.Command, args []string) error {
			size, _ := cmd.Flags().GetInt("size")
			return withJobsCLI(func(cli *JobsCLI) error {
				tasks, err := cli.ListArchived(cmd.Context(), size)
				if err != nil {
					return err
				}
				for _, t := range tasks {
					fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n", t.ID, t.LastFailedAt.Format("2006-01-02T15:04:05Z07:00"), string(t.Payload))
				}
				return nil
			})
		},
	}
	archivedCmd.Flags().Int("size", 20, "Page size")
	cmd.AddCommand(archivedCmd)

	return cmd
}

func stockCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stock",
		Short: "Read the stock ledger",
	}
	lowCmd := &cobra.Command{
		Use:   "low",
		Short: "List entries at or below their reorder level",
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			return withInventory(cmd.Context(), func(svc *inventory.Service) error {
				entries, err := svc.LowStock(cmd.Context(), limit)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tNAME\tAVAILABLE\tREORDER AT")
				for _, e := range entries {
					fmt.Fprintf(tw, "%s\t%s\t%d\t%d\n", e.ID, e.DisplayName, e.AvailableQuantity, e.ReorderLevel)
				}
				return tw.Flush()
			})
		},
	}
	lowCmd.Flags().Int("limit", 100, "Maximum entries to list")
	cmd.AddCommand(lowCmd)
	return cmd
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Load the sample drug catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withInventory(cmd.Context(), func(svc *inventory.Service) error {
				created, err := seedCatalog(cmd.Context(), svc, sampleCatalog)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "seeded %d entries\n", created)
				return nil
			})
		},
	}
}

func withJobsCLI(fn func(*JobsCLI) error) error {
	cfg, err := app.LoadConfig()
	if err != nil {
		return err
	}
	cli, err := NewJobsCLI(cfg.RedisAddr)
	if err != nil {
		return err
	}
	defer cli.Close()
	return fn(cli)
}

func withInventory(ctx context.Context, fn func(*inventory.Service) error) error {
	cfg, err := app.LoadConfig()
	if err != nil {
		return err
	}

	var pool *pgxpool.Pool
	var client *redis.Client
	switch strings.ToLower(cfg.StockLedger) {
	case app.LedgerRedis:
		client, err = cache.New(ctx, cfg.RedisAddr)
		if err != nil {
			return err
		}
		defer client.Close()
	default:
		pool, err = db.New(ctx, cfg.PGDSN, db.Options{MaxConns: 2})
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	ledger, err := app.NewLedger(cfg, pool, client)
	if err != nil {
		return err
	}
	return fn(inventory.NewService(ledger, nil, inventory.ServiceConfig{}))
}
