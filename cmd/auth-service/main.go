// Command auth-service runs the account API with its outbox dispatcher and
// offers operator commands for abandoned outbox events.
//
// Usage:
//
//	auth-service serve --config ./configs/config.yaml
//	auth-service outbox abandoned --limit 20
//	auth-service outbox redeliver 7f7c2f0e-1d1b-4c55-9d0e-5b0f2f1d9a10
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/co2market/auth-service/internal/app"
	"github.com/co2market/auth-service/pkg/broker"
	"github.com/co2market/auth-service/pkg/core/config"
	"github.com/co2market/auth-service/pkg/persistence"
	"github.com/spf13/cobra"
)

var version = "dev"

type rootFlags struct {
	configFile  string
	persistence string
	broker      string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	rootCmd := &cobra.Command{
		Use:           "auth-service",
		Short:         "Marketplace account service with transactional outbox delivery",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&flags.configFile, "config", "c", "", "Config file (defaults to $CONFIG_FILE)")
	rootCmd.PersistentFlags().StringVar(&flags.persistence, "persistence", "", "Storage driver: mongo or postgres (overrides persistence.driver)")
	rootCmd.PersistentFlags().StringVar(&flags.broker, "broker", "", "Broker driver: rabbitmq, kafka or redis (overrides broker.driver)")

	rootCmd.AddCommand(newServeCmd(flags), newOutboxCmd(flags))
	return rootCmd
}

// options resolves drivers from flags, then config and environment.
func (f *rootFlags) options() (app.Options, error) {
	v, err := config.Load(f.configFile)
	if err != nil {
		return app.Options{}, err
	}
	drivers, err := app.ResolveDrivers(v)
	if err != nil {
		return app.Options{}, err
	}
	if f.persistence != "" {
		if drivers.Persistence, err = persistence.ParseDriver(f.persistence); err != nil {
			return app.Options{}, err
		}
	}
	if f.broker != "" {
		if drivers.Broker, err = broker.ParseDriver(f.broker); err != nil {
			return app.Options{}, err
		}
	}
	return app.Options{ConfigFile: f.configFile, Drivers: drivers}, nil
}

func newServeCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the outbox dispatcher",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := flags.options()
			if err != nil {
				return err
			}
			fxApp, err := app.NewServer(opts)
			if err != nil {
				return err
			}
			if err := fxApp.Err(); err != nil {
				return err
			}
			fxApp.Run()
			return nil
		},
	}
}
