package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/example/teesched/internal/coordinator"
	"github.com/example/teesched/internal/registry"
)

// server runs the registry API and, unless told otherwise, an embedded
// coordinator against the same store.
func newServerCmd() *cobra.Command {
	var noCoordinator bool

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Run the task registry API (and embedded coordinator)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			store, closeStore, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			if !noCoordinator {
				c := &coordinator.Coordinator{
					Registry:       store,
					Runner:         newRunner(cfg, log),
					PollInterval:   cfg.Schedule.PollInterval,
					DispatchWindow: cfg.Schedule.DispatchWindow,
					Log:            log,
				}
				go func() { _ = c.Run(ctx) }()
			}

			srv := &registry.Server{
				Store:         store,
				Log:           log,
				Zone:          cfg.Zone,
				LateTolerance: cfg.Schedule.LateTolerance,
				TokenHash:     cfg.Security.TokenHash,
			}
			app := srv.App()

			go func() {
				<-ctx.Done()
				_ = app.Shutdown()
			}()

			log.Infow("registry_listening", "addr", cfg.Server.Address())
			return app.Listen(cfg.Server.Address())
		},
	}

	cmd.Flags().BoolVar(&noCoordinator, "no-coordinator", false, "serve the API only; run coordinators separately")
	return cmd
}
