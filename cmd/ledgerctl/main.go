package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/cimillas/autobook/internal/config"
	"github.com/cimillas/autobook/internal/storage"
)

var Version = "dev"

// cli carries what every subcommand shares. open is swapped in tests.
type cli struct {
	driver      string
	databaseURL string
	sqlitePath  string

	logger *slog.Logger
	open   func(ctx context.Context, cfg config.Config, logger *slog.Logger) (*storage.Backend, error)
}

func main() {
	c := &cli{
		logger: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})),
		open:   storage.Open,
	}
	if err := newRootCmd(c).ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:           "ledgerctl",
		Short:         "Inspect the booking audit ledger and maintain its store",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&c.driver, "driver", "", "store driver (memory, postgres, sqlite); defaults to STORE_DRIVER")
	root.PersistentFlags().StringVar(&c.databaseURL, "database-url", "", "Postgres DSN; defaults to DATABASE_URL")
	root.PersistentFlags().StringVar(&c.sqlitePath, "sqlite-path", "", "SQLite file; defaults to SQLITE_PATH")

	root.AddCommand(c.auditCmd())
	root.AddCommand(c.reservationCmd())
	root.AddCommand(c.migrateCmd())
	root.AddCommand(c.idempotencyCmd())
	return root
}

// backend loads configuration, applies flag overrides and opens the store.
func (c *cli) backend(ctx context.Context) (*storage.Backend, error) {
	cfg, err := config.Load(c.logger)
	if err != nil {
		return nil, err
	}
	if c.driver != "" {
		cfg.StoreDriver = c.driver
	}
	if c.databaseURL != "" {
		cfg.DatabaseURL = c.databaseURL
	}
	if c.sqlitePath != "" {
		cfg.SQLitePath = c.sqlitePath
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return c.open(ctx, cfg, c.logger)
}

func writeLine(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format+"\n", args...)
}
