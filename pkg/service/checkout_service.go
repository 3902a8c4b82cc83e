package service

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/example/storefront/pkg/apperr"
	"github.com/example/storefront/pkg/config"
	"github.com/example/storefront/pkg/metrics"
	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/notify"
	"github.com/example/storefront/pkg/payment"
	"github.com/example/storefront/pkg/repository"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	AuditOrderCreated    = "order_created"
	AuditOrderPaid       = "order_paid"
	AuditWebhookReceived = "webhook_received"
	AuditOrderCancelled  = "orders_cancelled"
)

const (
	// CheckoutSessionTTL is how long a hosted checkout page accepts payment.
	CheckoutSessionTTL = 12 * time.Hour
	// DefaultPendingTTL is the default age after which SweepPending cancels
	// an order. It must exceed CheckoutSessionTTL so a swept order can no
	// longer be paid.
	DefaultPendingTTL = 24 * time.Hour
)

// sessionPlaceholder is substituted by the processor with the real session
// id when it redirects the customer back.
const sessionPlaceholder = "{CHECKOUT_SESSION_ID}"

// AuditLogger records order lifecycle events. Failures never block the
// operation that produced the event.
type AuditLogger interface {
	Record(ctx context.Context, action string, orderID uint, data map[string]interface{}) error
}

type nopAudit struct{}

func (nopAudit) Record(context.Context, string, uint, map[string]interface{}) error { return nil }

// CheckoutItem is one requested line. Price is the price the client saw, if
// it sent one.
type CheckoutItem struct {
	ProductID uint
	Quantity  int
	Price     *decimal.Decimal
}

// RedirectURLs override the default success and cancel pages.
type RedirectURLs struct {
	Success string
	Cancel  string
}

type CheckoutResult struct {
	OrderID   uint
	SessionID string
	URL       string
}

type ConfirmResult struct {
	OrderID       uint               `json:"order_id"`
	Status        models.OrderStatus `json:"status"`
	PaymentStatus string             `json:"payment_status"`
}

type CheckoutService struct {
	catalog   *repository.CatalogRepository
	orders    *repository.OrderRepository
	processor payment.Processor
	notifier  notify.Sender
	audit     AuditLogger
	app       config.AppConfig
	mailFrom  string
	logger    *zap.Logger
	now       func() time.Time
}

func NewCheckoutService(
	catalog *repository.CatalogRepository,
	orders *repository.OrderRepository,
	processor payment.Processor,
	notifier notify.Sender,
	audit AuditLogger,
	app config.AppConfig,
	mailFrom string,
	logger *zap.Logger,
) *CheckoutService {
	if audit == nil {
		audit = nopAudit{}
	}
	return &CheckoutService{
		catalog:   catalog,
		orders:    orders,
		processor: processor,
		notifier:  notifier,
		audit:     audit,
		app:       app,
		mailFrom:  mailFrom,
		logger:    logger,
		now:       time.Now,
	}
}

func (s *CheckoutService) record(ctx context.Context, action string, orderID uint, data map[string]interface{}) {
	if err := s.audit.Record(ctx, action, orderID, data); err != nil {
		s.logger.Warn("Failed to record audit entry",
			zap.String("action", action),
			zap.Uint("order_id", orderID),
			zap.Error(err))
	}
}

// mergeItems validates the request lines and folds repeated products into
// one line, keeping first-seen order.
func mergeItems(items []CheckoutItem) ([]CheckoutItem, error) {
	if len(items) == 0 {
		return nil, apperr.Validation("no items provided")
	}

	merged := make([]CheckoutItem, 0, len(items))
	index := make(map[uint]int, len(items))
	for _, it := range items {
		if it.ProductID == 0 {
			return nil, apperr.Validation("product id is required")
		}
		if it.Quantity < 1 {
			return nil, apperr.Validation("quantity must be at least 1")
		}
		if i, ok := index[it.ProductID]; ok {
			if it.Quantity > math.MaxInt-merged[i].Quantity {
				return nil, apperr.Validation("quantity for product %d is too large", it.ProductID)
			}
			merged[i].Quantity += it.Quantity
			if merged[i].Price == nil {
				merged[i].Price = it.Price
			} else if it.Price != nil && !it.Price.Equal(*merged[i].Price) {
				return nil, apperr.Validation("conflicting prices for product %d", it.ProductID)
			}
			continue
		}
		index[it.ProductID] = len(merged)
		merged = append(merged, it)
	}
	return merged, nil
}

func (s *CheckoutService) redirectURLs(orderID uint, override RedirectURLs) (string, string) {
	query := fmt.Sprintf("?order_id=%d&session_id=%s", orderID, sessionPlaceholder)
	frontend := strings.TrimRight(s.app.FrontendURL, "/")

	success := frontend + "/success" + query
	if o := strings.TrimRight(strings.TrimSpace(override.Success), "/"); o != "" {
		success = o + query
	}
	cancel := frontend + "/cart"
	if o := strings.TrimSpace(override.Cancel); o != "" {
		cancel = o
	}
	return success, cancel
}

// CreateCheckoutSession prices the cart from the catalog, stores a pending
// order and opens a hosted checkout session for it. If the processor call
// fails the order stays pending.
func (s *CheckoutService) CreateCheckoutSession(ctx context.Context, user *models.User, items []CheckoutItem, redirect RedirectURLs) (*CheckoutResult, error) {
	if !s.processor.Configured() {
		return nil, payment.ErrNotConfigured
	}

	if !validRedirect(redirect.Success) || !validRedirect(redirect.Cancel) {
		return nil, apperr.Validation("redirect urls must be absolute http(s) urls")
	}

	lines, err := mergeItems(items)
	if err != nil {
		return nil, err
	}

	ids := make([]uint, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.ProductID)
	}
	products, err := s.catalog.GetProductsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	order := &models.Order{
		UserID: user.ID,
		Status: models.OrderStatusPending,
	}
	lineItems := make([]payment.LineItem, 0, len(lines))
	total := decimal.Zero
	for _, l := range lines {
		p, ok := products[l.ProductID]
		if !ok || !p.IsActive {
			return nil, apperr.Validation("product %d not found", l.ProductID)
		}
		if l.Price != nil && !l.Price.Equal(p.Price) {
			return nil, apperr.Validation("price for %s has changed, please refresh your cart", p.Name)
		}
		if l.Quantity > p.Stock {
			return nil, apperr.InsufficientStock(p.Name)
		}

		total = total.Add(p.Price.Mul(decimal.NewFromInt(int64(l.Quantity))))
		order.Items = append(order.Items, models.OrderItem{
			ProductID: p.ID,
			Quantity:  l.Quantity,
			Price:     p.Price,
		})
		lineItems = append(lineItems, payment.LineItem{
			Name:        p.Name,
			Description: p.Description,
			UnitAmount:  p.Price.Shift(2).Round(0).IntPart(),
			Quantity:    int64(l.Quantity),
		})
	}
	order.TotalAmount = total

	if err := s.orders.Create(ctx, order); err != nil {
		return nil, err
	}
	metrics.OrdersCreated.Inc()
	s.logger.Info("Created pending order",
		zap.Uint("order_id", order.ID),
		zap.String("user", user.Email),
		zap.String("total", total.StringFixed(2)))
	s.record(ctx, AuditOrderCreated, order.ID, map[string]interface{}{
		"user_id": user.ID,
		"total":   total.StringFixed(2),
		"items":   len(order.Items),
	})

	success, cancel := s.redirectURLs(order.ID, redirect)
	session, err := s.processor.CreateCheckoutSession(ctx, &payment.CheckoutRequest{
		Currency:      s.app.Currency,
		LineItems:     lineItems,
		SuccessURL:    success,
		CancelURL:     cancel,
		CustomerEmail: user.Email,
		ExpiresAt:     s.now().Add(CheckoutSessionTTL),
		Metadata:      map[string]string{payment.MetadataOrderID: strconv.FormatUint(uint64(order.ID), 10)},
	})
	if err != nil {
		s.logger.Warn("Checkout session creation failed, order left pending",
			zap.Uint("order_id", order.ID),
			zap.Error(err))
		return nil, err
	}

	if err := s.orders.SetSessionID(ctx, order.ID, session.ID); err != nil {
		return nil, fmt.Errorf("failed to store checkout session for order %d: %w", order.ID, err)
	}
	s.logger.Info("Created checkout session",
		zap.Uint("order_id", order.ID),
		zap.String("session_id", session.ID))

	return &CheckoutResult{OrderID: order.ID, SessionID: session.ID, URL: session.URL}, nil
}

// Fulfill marks a pending order paid, decrements stock and sends the
// confirmation email. Only the first caller for a given order does any of
// this; later or concurrent callers get false. Email failures are logged
// and never undo the payment.
func (s *CheckoutService) Fulfill(ctx context.Context, orderID uint, paymentIntentID string) (bool, error) {
	var intent *string
	if paymentIntentID != "" {
		intent = &paymentIntentID
	}

	paid, changes, err := s.orders.MarkPaid(ctx, orderID, intent)
	if err != nil {
		return false, err
	}
	if !paid {
		s.logFulfillSkipped(ctx, orderID)
		return false, nil
	}

	metrics.OrdersPaid.Inc()
	s.logger.Info("Order marked as paid",
		zap.Uint("order_id", orderID),
		zap.String("payment_intent", paymentIntentID))
	for _, c := range changes {
		s.logger.Info("Decremented stock",
			zap.Uint("product_id", c.ProductID),
			zap.String("product", c.Name),
			zap.Int("old", c.Old),
			zap.Int("new", c.New))
	}
	s.record(ctx, AuditOrderPaid, orderID, map[string]interface{}{
		"payment_intent": paymentIntentID,
		"stock_changes":  len(changes),
	})

	s.sendConfirmation(ctx, orderID)
	return true, nil
}

func (s *CheckoutService) logFulfillSkipped(ctx context.Context, orderID uint) {
	o, err := s.orders.GetByID(ctx, orderID)
	switch {
	case err != nil:
		s.logger.Warn("Fulfillment skipped, order unavailable", zap.Uint("order_id", orderID), zap.Error(err))
	case o.Status == models.OrderStatusPaid:
		s.logger.Info("Order already paid, nothing to do", zap.Uint("order_id", orderID))
	default:
		s.logger.Warn("Payment confirmed for order that is not pending",
			zap.Uint("order_id", orderID),
			zap.String("status", string(o.Status)))
	}
}

func (s *CheckoutService) sendConfirmation(ctx context.Context, orderID uint) {
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		s.logger.Error("Failed to load order for confirmation email", zap.Uint("order_id", orderID), zap.Error(err))
		return
	}
	msg := notify.OrderConfirmation(o, s.mailFrom)
	if err := s.notifier.Send(ctx, msg); err != nil {
		s.logger.Error("Failed to send confirmation email",
			zap.Uint("order_id", orderID),
			zap.String("to", msg.To),
			zap.Error(err))
		return
	}
	s.logger.Info("Confirmation email queued", zap.Uint("order_id", orderID), zap.String("to", msg.To))
}

// HandleWebhook processes one processor callback. Only malformed or
// unauthenticated payloads return an error; everything after that is
// acknowledged so the processor does not retry.
func (s *CheckoutService) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	if s.app.IsProduction() && !s.processor.VerifiesWebhooks() {
		s.logger.Error("Webhook secret is required in production")
		return apperr.Configuration("webhook secret is required in production")
	}

	ev, err := s.processor.ParseWebhook(payload, signature)
	if err != nil {
		s.logger.Error("Rejected webhook", zap.Int("payload_size", len(payload)), zap.Error(err))
		metrics.Webhook("unknown", "rejected")
		return err
	}
	s.logger.Info("Webhook event received", zap.String("id", ev.ID), zap.String("type", ev.Type))

	if ev.Type != payment.EventCheckoutSessionCompleted || ev.Session == nil {
		metrics.Webhook(ev.Type, "ignored")
		return nil
	}

	session := ev.Session
	raw := session.Metadata[payment.MetadataOrderID]
	orderID, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || orderID == 0 {
		s.logger.Warn("Checkout session without order id",
			zap.String("session_id", session.ID),
			zap.String("order_id", raw))
		metrics.Webhook(ev.Type, "no_order")
		return nil
	}

	if _, err := s.orders.GetByID(ctx, uint(orderID)); err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			s.logger.Warn("Order not found for webhook session",
				zap.Uint64("order_id", orderID),
				zap.String("session_id", session.ID))
		} else {
			s.logger.Error("Failed to load order for webhook", zap.Uint64("order_id", orderID), zap.Error(err))
		}
		metrics.Webhook(ev.Type, "no_order")
		return nil
	}

	s.record(ctx, AuditWebhookReceived, uint(orderID), map[string]interface{}{
		"event_id":   ev.ID,
		"session_id": session.ID,
	})

	paid, err := s.Fulfill(ctx, uint(orderID), session.PaymentIntentID)
	if err != nil {
		s.logger.Error("Fulfillment failed during webhook", zap.Uint64("order_id", orderID), zap.Error(err))
		metrics.Webhook(ev.Type, "error")
		return nil
	}
	if paid {
		metrics.Webhook(ev.Type, "fulfilled")
	} else {
		metrics.Webhook(ev.Type, "duplicate")
	}
	return nil
}

// ConfirmCheckoutSession asks the processor for the session state and
// fulfills the caller's order when the payment went through.
func (s *CheckoutService) ConfirmCheckoutSession(ctx context.Context, user *models.User, sessionID string) (*ConfirmResult, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, apperr.Validation("session_id is required")
	}
	if !s.processor.Configured() {
		return nil, payment.ErrNotConfigured
	}

	session, err := s.processor.GetCheckoutSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	order, err := s.orderForSession(ctx, user, sessionID, session)
	if err != nil {
		return nil, err
	}

	if session.Paid() {
		if _, err := s.Fulfill(ctx, order.ID, session.PaymentIntentID); err != nil {
			return nil, err
		}
		if order, err = s.orders.GetForUser(ctx, order.ID, user.ID); err != nil {
			return nil, err
		}
	} else {
		s.logger.Info("Checkout session not paid yet",
			zap.String("session_id", sessionID),
			zap.Uint("order_id", order.ID),
			zap.String("payment_status", session.PaymentStatus))
	}

	return &ConfirmResult{
		OrderID:       order.ID,
		Status:        order.Status,
		PaymentStatus: session.PaymentStatus,
	}, nil
}

func (s *CheckoutService) orderForSession(ctx context.Context, user *models.User, sessionID string, session *payment.Session) (*models.Order, error) {
	raw := session.Metadata[payment.MetadataOrderID]
	if raw == "" {
		o, err := s.orders.GetBySessionForUser(ctx, sessionID, user.ID)
		if apperr.Is(err, apperr.KindNotFound) {
			return nil, apperr.NotFound("order not found for this session")
		}
		return o, err
	}

	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return nil, apperr.NotFound("order not found")
	}
	return s.orders.GetForUser(ctx, uint(id), user.ID)
}

// SweepPending cancels orders left pending for longer than olderThan.
func (s *CheckoutService) SweepPending(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, apperr.Validation("older-than must be positive")
	}
	cutoff := s.now().Add(-olderThan)
	n, err := s.orders.CancelStalePending(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	metrics.OrdersCancelled.Add(float64(n))
	s.logger.Info("Cancelled stale pending orders",
		zap.Int64("count", n),
		zap.Time("cutoff", cutoff))
	if n > 0 {
		s.record(ctx, AuditOrderCancelled, 0, map[string]interface{}{
			"count":  n,
			"cutoff": cutoff,
		})
	}
	return n, nil
}

// validRedirect reports whether raw is an absolute http(s) URL.
func validRedirect(raw string) bool {
	if raw == "" {
		return true
	}
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
