// Command vialctl runs operator tasks against the compliance database:
// migrations, bootstrap accounts, the expiration sweep and report queries.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/vial-compliance-api/internal/app"
	"github.com/noah-isme/vial-compliance-api/pkg/config"
	"github.com/noah-isme/vial-compliance-api/pkg/logger"
)

var outputFormat string

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "vialctl",
		Short:         "Operate the vial compliance service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&outputFormat, "output", "o", formatTable, "output format: table, json or yaml")
	root.AddCommand(migrateCmd(), createAdminCmd(), sweepCmd(), reportCmd(), enrollmentsCmd())
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// withApp loads configuration, builds the service container and closes it
// once fn returns.
func withApp(ctx context.Context, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logr.Sync() //nolint:errcheck

	a, err := app.New(ctx, cfg, logr)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logr.Warn("close failed", zap.Error(err))
		}
	}()
	return fn(ctx, a)
}
