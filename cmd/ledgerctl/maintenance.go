package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/cimillas/autobook/internal/clock"
	"github.com/cimillas/autobook/internal/config"
	"github.com/cimillas/autobook/internal/idempotency"
)

func (c *cli) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending Postgres migrations (SQLite creates its schema on open)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			b, err := c.backend(cmd.Context())
			if err != nil {
				return err
			}
			defer b.Close()

			out := cmd.OutOrStdout()
			if b.Driver != config.DriverPostgres {
				writeLine(out, "%s store: schema is created on open", b.Driver)
				return nil
			}
			if len(b.Migrated) == 0 {
				writeLine(out, "no pending migrations")
				return nil
			}
			for _, name := range b.Migrated {
				writeLine(out, "applied %s", name)
			}
			return nil
		},
	}
}

func (c *cli) idempotencyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "idempotency",
		Short: "Maintain idempotency key bindings",
	}
	cmd.AddCommand(c.idempotencyPurgeCmd())
	return cmd
}

func (c *cli) idempotencyPurgeCmd() *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:     "purge",
		Short:   "Drop hold and capture keys recorded before now minus --older-than",
		Example: "  ledgerctl idempotency purge --older-than 720h",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if olderThan <= 0 {
				return fmt.Errorf("--older-than must be positive")
			}
			b, err := c.backend(cmd.Context())
			if err != nil {
				return err
			}
			defer b.Close()

			n, err := idempotency.NewRegistry(b, clock.NewSystem()).Purge(cmd.Context(), olderThan)
			if err != nil {
				return err
			}
			writeLine(cmd.OutOrStdout(), "purged %d keys", n)
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "retention window, e.g. 24h")
	_ = cmd.MarkFlagRequired("older-than")
	return cmd
}
