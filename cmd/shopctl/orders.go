package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/example/storefront/pkg/app"
	"github.com/example/storefront/pkg/config"
	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/payment"
	"github.com/example/storefront/pkg/service"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

// simulatedKey stands in for a missing Stripe key. Replayed events are
// parsed locally and never reach the Stripe API.
const simulatedKey = "sk_test_simulated"

type simulateOptions struct {
	create   bool
	email    string
	quantity int
}

func simulateWebhookCmd() *cobra.Command {
	var opts simulateOptions
	cmd := &cobra.Command{
		Use:   "simulate-webhook [order-id]",
		Short: "Replay a checkout.session.completed event through the webhook handler",
		Long: `Builds an unsigned checkout.session.completed event for the order and feeds
it to the same handler the HTTP webhook uses. With --create a pending order
is first created from the first product that has stock.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if opts.create {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(1)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			var orderID uint
			if len(args) == 1 {
				id, err := strconv.ParseUint(args[0], 10, 64)
				if err != nil {
					return fmt.Errorf("invalid order id %q", args[0])
				}
				orderID = uint(id)
			}
			return withApp(cmd, unsignedWebhooks, func(ctx context.Context, a *app.App) error {
				return runSimulateWebhook(ctx, a, cmd.OutOrStdout(), orderID, opts)
			})
		},
	}
	cmd.Flags().BoolVar(&opts.create, "create", false, "create a pending order first")
	cmd.Flags().StringVar(&opts.email, "email", "test@example.com", "owner of the created order")
	cmd.Flags().IntVar(&opts.quantity, "quantity", 1, "quantity of the created order")
	return cmd
}

func unsignedWebhooks(cfg *config.Config) {
	cfg.Stripe.WebhookSecret = ""
	if cfg.Stripe.SecretKey == "" {
		cfg.Stripe.SecretKey = simulatedKey
	}
}

func runSimulateWebhook(ctx context.Context, a *app.App, out io.Writer, orderID uint, opts simulateOptions) error {
	if opts.create {
		o, err := createPendingOrder(ctx, a, opts)
		if err != nil {
			return err
		}
		orderID = o.ID
		fmt.Fprintf(out, "Created pending order %d (%s)\n", o.ID, o.TotalAmount.StringFixed(2))
	}

	o, err := a.Orders.GetByID(ctx, orderID)
	if err != nil {
		return err
	}
	sessionID := "cs_simulated_" + uuid.NewString()
	if o.StripeSessionID != nil {
		sessionID = *o.StripeSessionID
	}

	payload, err := payment.CompletedEventPayload(o.ID, sessionID, "pi_simulated_"+uuid.NewString())
	if err != nil {
		return err
	}
	if err := a.Checkout.HandleWebhook(ctx, payload, ""); err != nil {
		return err
	}

	o, err = a.Orders.GetByID(ctx, orderID)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Order %d is %s\n", o.ID, o.Status)
	return nil
}

func createPendingOrder(ctx context.Context, a *app.App, opts simulateOptions) (*models.Order, error) {
	if opts.quantity < 1 {
		return nil, fmt.Errorf("quantity must be at least 1")
	}
	user, _, err := a.Accounts.EnsureUser(ctx, service.RegisterInput{Email: opts.email, Password: uuid.NewString()})
	if err != nil {
		return nil, err
	}
	p, err := a.Catalog.FirstInStockProduct(ctx)
	if err != nil {
		return nil, err
	}

	o := &models.Order{
		UserID:      user.ID,
		Status:      models.OrderStatusPending,
		TotalAmount: p.Price.Mul(decimal.NewFromInt(int64(opts.quantity))),
		Items:       []models.OrderItem{{ProductID: p.ID, Quantity: opts.quantity, Price: p.Price}},
	}
	if err := a.Orders.Create(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

func sweepPendingCmd() *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "sweep-pending",
		Short: "Cancel orders left pending longer than --older-than",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, nil, func(ctx context.Context, a *app.App) error {
				n, err := a.Checkout.SweepPending(ctx, olderThan)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cancelled %d pending orders\n", n)
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", service.DefaultPendingTTL, "minimum age of a pending order")
	return cmd
}

func auditCmd() *cobra.Command {
	var limit int64
	cmd := &cobra.Command{
		Use:   "audit [order-id]",
		Short: "Print the audit trail of an order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid order id %q", args[0])
			}
			return withApp(cmd, nil, func(ctx context.Context, a *app.App) error {
				if a.Audit == nil {
					return fmt.Errorf("audit trail is not configured (mongodb.uri)")
				}
				entries, err := a.Audit.ForOrder(ctx, uint(id), limit)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(entries)
			})
		},
	}
	cmd.Flags().Int64VarP(&limit, "limit", "n", 50, "maximum entries")
	return cmd
}
