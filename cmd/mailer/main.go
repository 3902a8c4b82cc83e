package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/example/storefront/pkg/config"
	"github.com/example/storefront/pkg/notify"
	amqp "github.com/rabbitmq/amqp091-go"
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

	sender, err := notify.NewSMTPSender(&cfg.Mail)
	if err != nil {
		logger.Fatal("Failed to configure SMTP", zap.Error(err))
	}

	conn, err := amqp.Dial(cfg.RabbitMQ.URL)
	if err != nil {
		logger.Fatal("Failed to connect to RabbitMQ", zap.Error(err))
	}
	defer conn.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger.Info("Mailer consuming",
		zap.String("queue", cfg.Mail.Queue),
		zap.String("smtp_host", cfg.Mail.SMTPHost))

	if err := notify.Consume(ctx, conn, cfg.Mail.Queue, sender, logger.Named("mailer")); err != nil {
		logger.Error("Mailer stopped", zap.Error(err))
		return
	}
	logger.Info("Mailer stopped")
}
