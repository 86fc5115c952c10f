package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/example/teesched/internal/config"
	"github.com/example/teesched/internal/db"
	"github.com/example/teesched/internal/logging"
	"github.com/example/teesched/internal/migrate"
	"github.com/example/teesched/internal/registry"
	"github.com/example/teesched/internal/secrets"
)

var (
	Version   = "dev"
	CommitSHA = "none"
	BuildDate = "unknown"
)

var configPath string

func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "teesched",
		Short: "Scheduled tee-time acquisition: registry, coordinator, and browser executor",
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (YAML)")

	root.AddCommand(newVersionCmd())
	root.AddCommand(newKeysCmd())
	root.AddCommand(newServerCmd())
	root.AddCommand(newCoordinatorCmd())
	root.AddCommand(newRunCmd())
	root.AddCommand(newTaskCmd())
	root.AddCommand(newDoctorCmd())

	return root
}

func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, *zap.SugaredLogger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	log, err := logging.New(cfg.Logger.Level, cfg.Logger.Encoding)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

func newSealer(cfg *config.Config) (*secrets.Sealer, error) {
	if cfg.Security.HashKey == "" || cfg.Security.BlockKey == "" {
		return nil, fmt.Errorf("security.hash_key and security.block_key are required; generate with `teesched keys`")
	}
	return secrets.NewSealerFromB64(cfg.Security.HashKey, cfg.Security.BlockKey)
}

// openStore builds the configured task store. The returned close func is a
// no-op for the in-memory store.
func openStore(ctx context.Context, cfg *config.Config) (registry.Store, func(), error) {
	sealer, err := newSealer(cfg)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Database.Memory {
		return registry.NewMemStore(sealer), func() {}, nil
	}
	if cfg.Database.URL == "" {
		return nil, nil, fmt.Errorf("database.url is required (or set database.memory)")
	}
	d, err := db.Open(ctx, cfg.Database.URL)
	if err != nil {
		return nil, nil, err
	}
	if err := d.Ping(ctx); err != nil {
		d.Close()
		return nil, nil, fmt.Errorf("db ping: %w", err)
	}
	if err := migrate.Up(ctx, d); err != nil {
		d.Close()
		return nil, nil, err
	}
	return registry.NewPGStore(d, sealer), d.Close, nil
}
