package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/example/storefront/pkg/app"
	"github.com/example/storefront/pkg/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:           "shopctl",
		Short:         "shopctl - operator tasks for the storefront",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultConfigPath(), "path to the YAML config file")

	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(createUserCmd())
	rootCmd.AddCommand(simulateWebhookCmd())
	rootCmd.AddCommand(sweepPendingCmd())
	rootCmd.AddCommand(auditCmd())
	rootCmd.AddCommand(instancesCmd())

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		cancel()
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	logger, err := config.NewLogger(cfg.App, cfg.Log)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// withApp runs fn against a fully wired application. tweak, when non-nil,
// adjusts the loaded config first.
func withApp(cmd *cobra.Command, tweak func(*config.Config), fn func(ctx context.Context, a *app.App) error) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()
	if tweak != nil {
		tweak(cfg)
	}

	ctx := cmd.Context()
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	return fn(ctx, a)
}
