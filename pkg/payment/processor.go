// Package payment is the storefront's view of the external payment
// processor: hosted checkout sessions and their webhook events.
package payment

import (
	"context"
	"time"
)

const (
	EventCheckoutSessionCompleted = "checkout.session.completed"

	PaymentStatusPaid = "paid"

	// MetadataOrderID is the session metadata key carrying our order id.
	MetadataOrderID = "order_id"
)

// LineItem is one priced row on the hosted checkout page. UnitAmount is in
// the currency's minor unit.
type LineItem struct {
	Name        string
	Description string
	UnitAmount  int64
	Quantity    int64
}

type CheckoutRequest struct {
	Currency      string
	LineItems     []LineItem
	SuccessURL    string
	CancelURL     string
	CustomerEmail string
	// ExpiresAt closes the session early; zero keeps the processor default.
	ExpiresAt time.Time
	Metadata  map[string]string
}

type Session struct {
	ID              string
	URL             string
	PaymentStatus   string
	PaymentIntentID string
	Metadata        map[string]string
}

func (s *Session) Paid() bool {
	return s.PaymentStatus == PaymentStatusPaid
}

// Event is an inbound webhook notification. Session is set for checkout
// session events.
type Event struct {
	ID      string
	Type    string
	Session *Session
}

type Processor interface {
	CreateCheckoutSession(ctx context.Context, req *CheckoutRequest) (*Session, error)
	GetCheckoutSession(ctx context.Context, sessionID string) (*Session, error)
	// ParseWebhook authenticates payload against signature when a webhook
	// secret is configured and decodes it.
	ParseWebhook(payload []byte, signature string) (*Event, error)
	// Configured reports whether the processor has credentials.
	Configured() bool
	// VerifiesWebhooks reports whether ParseWebhook checks signatures.
	VerifiesWebhooks() bool
}
