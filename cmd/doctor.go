package cmd

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/teesched/internal/inspect"
	"github.com/example/teesched/internal/registry"
)

// doctor reports host health, timezone sanity, and what the coordinator
// would do with each task right now.
func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Diagnose the deployment: host, timezone, registry, dispatch simulation",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			var lister inspect.Lister
			if cfg.Server.RegistryURL != "" {
				lister = registry.NewClient(cfg.Server.RegistryURL, cfg.Security.Token)
			} else if cfg.Database.URL != "" {
				store, closeStore, err := openStore(ctx, cfg)
				if err == nil {
					defer closeStore()
					lister = store
				}
			}

			rep := inspect.Run(ctx, lister, cfg.Zone, time.Now(), cfg.Schedule.LateTolerance)
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(rep)
		},
	}
}
