// Command ledgerctl inspects the order ledger and maintains the catalog.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/hkshop/storefront/config"
	"github.com/hkshop/storefront/database"
	"github.com/hkshop/storefront/repository"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Version = "dev"

// env is what a subcommand needs once connected.
type env struct {
	ledger repository.OrderLedger
	db     *gorm.DB
	close  func()
}

type opener func(ctx context.Context) (*env, error)

func main() {
	if err := newRootCmd(connect).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(open opener) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "ledgerctl",
		Short:         "Inspect storefront orders and maintain the catalog",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(orderCmd(open))
	rootCmd.AddCommand(catalogCmd(open))
	return rootCmd
}

func connect(ctx context.Context) (*env, error) {
	dbCfg, err := config.LoadDatabaseConfig(ctx)
	if err != nil {
		return nil, err
	}
	db, err := database.ConnectPostgres(dbCfg.DSN(), zap.NewNop())
	if err != nil {
		return nil, err
	}
	return &env{
		ledger: repository.NewGormOrderLedger(db),
		db:     db,
		close:  func() { _ = database.Close(db) },
	}, nil
}
