package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/example/teesched/internal/coordinator"
	"github.com/example/teesched/internal/registry"
)

// coordinator runs the dispatch loop against a remote registry, so the
// browser host can be a different machine than the API host.
func newCoordinatorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "coordinator",
		Short: "Run a standalone coordinator against a remote registry",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			defer log.Sync()

			if cfg.Server.RegistryURL == "" {
				return fmt.Errorf("server.registry_url is required in coordinator mode")
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			client := registry.NewClient(cfg.Server.RegistryURL, cfg.Security.Token)
			if err := client.Health(ctx); err != nil {
				return fmt.Errorf("registry unreachable: %w", err)
			}

			c := &coordinator.Coordinator{
				Registry:       client,
				Runner:         newRunner(cfg, log),
				PollInterval:   cfg.Schedule.PollInterval,
				DispatchWindow: cfg.Schedule.DispatchWindow,
				Log:            log,
			}
			err = c.Run(ctx)
			if err == context.Canceled {
				return nil
			}
			return err
		},
	}
}
