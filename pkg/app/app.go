// Package app wires the storefront's stores, senders and services from
// configuration. The API server and the operator CLI share it.
package app

import (
	"context"
	"fmt"

	"github.com/example/storefront/pkg/auth"
	"github.com/example/storefront/pkg/config"
	"github.com/example/storefront/pkg/metrics"
	"github.com/example/storefront/pkg/notify"
	"github.com/example/storefront/pkg/payment"
	"github.com/example/storefront/pkg/repository"
	"github.com/example/storefront/pkg/service"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	MailBackendLog  = "log"
	MailBackendSMTP = "smtp"
	MailBackendAMQP = "amqp"
)

type App struct {
	Config *config.Config
	Logger *zap.Logger
	DB     *gorm.DB

	Users   *repository.UserRepository
	Catalog *repository.CatalogRepository
	Orders  *repository.OrderRepository
	// Audit is nil when mongodb.uri is empty.
	Audit *repository.AuditStore

	Processor  payment.Processor
	Dispatcher *notify.Dispatcher

	Accounts   *service.AccountService
	CatalogSvc *service.CatalogService
	OrderSvc   *service.OrderService
	Checkout   *service.CheckoutService

	closers []func(ctx context.Context)
}

// New connects and migrates MySQL, then the optional Redis, MongoDB and
// mail backends, and builds the services on top of them.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	db, err := repository.OpenMySQL(&cfg.MySQL)
	if err != nil {
		return nil, err
	}
	if err := repository.Migrate(db); err != nil {
		return nil, err
	}
	return NewWithDB(ctx, cfg, logger, db, payment.NewStripeProcessor(cfg.Stripe, nil))
}

// NewWithDB builds the application on an already migrated database.
func NewWithDB(ctx context.Context, cfg *config.Config, logger *zap.Logger, db *gorm.DB, processor payment.Processor) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a := &App{
		Config:    cfg,
		Logger:    logger,
		DB:        db,
		Users:     repository.NewUserRepository(db),
		Catalog:   repository.NewCatalogRepository(db),
		Orders:    repository.NewOrderRepository(db),
		Processor: processor,
	}

	revoker := a.revoker(ctx)

	var audit service.AuditLogger
	if cfg.MongoDB.URI != "" {
		store, err := repository.NewAuditStore(ctx, &cfg.MongoDB, cfg.Server.Name)
		if err != nil {
			logger.Warn("MongoDB unavailable, audit trail disabled", zap.Error(err))
		} else {
			a.Audit = store
			audit = store
			a.onClose(func(ctx context.Context) { _ = store.Close(ctx) })
			logger.Info("MongoDB audit trail enabled", zap.String("collection", cfg.MongoDB.Collection))
		}
	}

	sender, err := a.mailSender()
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	a.Dispatcher = notify.NewDispatcher(sender, logger.Named("notify"), metrics.Notification)
	// Registered after the mail backend so queued mail drains before its
	// connection closes.
	a.closers = append([]func(context.Context){func(context.Context) { a.Dispatcher.Stop() }}, a.closers...)

	a.Accounts = service.NewAccountService(a.Users, auth.NewManager(&cfg.JWT), revoker, logger.Named("accounts"))
	a.CatalogSvc = service.NewCatalogService(a.Catalog)
	a.OrderSvc = service.NewOrderService(a.Orders)
	a.Checkout = service.NewCheckoutService(a.Catalog, a.Orders, processor, a.Dispatcher, audit,
		cfg.App, cfg.Mail.From, logger.Named("checkout"))
	return a, nil
}

func (a *App) onClose(fn func(ctx context.Context)) {
	a.closers = append(a.closers, fn)
}

// revoker uses Redis when it answers a ping and process memory otherwise.
func (a *App) revoker(ctx context.Context) service.TokenRevoker {
	if a.Config.Redis.Addr == "" {
		return service.NewMemoryRevoker()
	}
	rdb := repository.NewRedisRepository(&a.Config.Redis)
	if err := rdb.Ping(ctx); err != nil {
		a.Logger.Warn("Redis connection failed, revoked tokens kept in memory", zap.Error(err))
		_ = rdb.Close()
		return service.NewMemoryRevoker()
	}
	a.onClose(func(context.Context) { _ = rdb.Close() })
	a.Logger.Info("Redis connected successfully")
	return rdb
}

func (a *App) mailSender() (notify.Sender, error) {
	mc := &a.Config.Mail
	switch mc.Backend {
	case "", MailBackendLog:
		return notify.NewLogSender(a.Logger.Named("mail")), nil
	case MailBackendSMTP:
		return notify.NewSMTPSender(mc)
	case MailBackendAMQP:
		conn, err := amqp.Dial(a.Config.RabbitMQ.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
		}
		a.onClose(func(context.Context) { _ = conn.Close() })
		return notify.NewAMQPSender(conn, mc.Queue), nil
	default:
		return nil, fmt.Errorf("unknown mail backend %q", mc.Backend)
	}
}

// Close stops the dispatcher and releases every connection New opened.
func (a *App) Close(ctx context.Context) {
	for _, fn := range a.closers {
		fn(ctx)
	}
	a.closers = nil
	if sqlDB, err := a.DB.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
