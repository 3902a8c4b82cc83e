package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/example/storefront/gateway"
	"github.com/example/storefront/pkg/app"
	"github.com/example/storefront/pkg/config"
	"github.com/example/storefront/pkg/discovery"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

func main() {
	configPath := pflag.StringP("config", "c", config.DefaultConfigPath(), "path to the YAML config file")
	pflag.Parse()

	// Load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// Setup logger
	logger, err := config.NewLogger(cfg.App, cfg.Log)
	if err != nil {
		panic(fmt.Sprintf("Failed to create logger: %v", err))
	}
	defer logger.Sync()

	logger.Info("Starting storefront API",
		zap.String("env", cfg.App.Env),
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialise application", zap.Error(err))
	}
	if !application.Processor.Configured() {
		logger.Warn("Stripe secret key not set, checkout is disabled")
	}

	gw := gateway.NewGateway(cfg, logger.Named("gateway"), gateway.Services{
		Accounts: application.Accounts,
		Catalog:  application.CatalogSvc,
		Orders:   application.OrderSvc,
		Checkout: application.Checkout,
	})
	gw.SetupRoutes()

	// Register in etcd when configured
	var registry *discovery.Registry
	if len(cfg.Etcd.Endpoints) > 0 {
		registry, err = discovery.NewRegistry(&cfg.Etcd, logger.Named("discovery"))
		if err != nil {
			logger.Warn("Failed to connect to etcd, continuing without service discovery", zap.Error(err))
		} else if err := registry.Register(ctx, &discovery.Instance{
			Name: cfg.Server.Name,
			Host: cfg.Server.Host,
			Port: cfg.Server.Port,
		}); err != nil {
			logger.Warn("Failed to register service", zap.Error(err))
		} else {
			logger.Info("Service registered in etcd", zap.String("name", cfg.Server.Name))
		}
	}

	// Start gateway in goroutine
	gwErr := make(chan error, 1)
	go func() {
		if err := gw.Start(); err != nil {
			gwErr <- err
		}
	}()

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		logger.Info("Received shutdown signal")
	case err := <-gwErr:
		logger.Error("Gateway error", zap.Error(err))
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 15*time.Second)
	defer stop()

	if registry != nil {
		if err := registry.Deregister(shutdownCtx); err != nil {
			logger.Error("Failed to deregister service", zap.Error(err))
		}
		_ = registry.Close()
	}
	if err := gw.Shutdown(shutdownCtx); err != nil {
		logger.Error("Gateway shutdown failed", zap.Error(err))
	}
	application.Close(shutdownCtx)

	logger.Info("Storefront stopped")
}
