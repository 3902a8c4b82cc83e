package payment

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/example/storefront/pkg/apperr"
	"github.com/example/storefront/pkg/config"
	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

// ErrNotConfigured is returned by every call when no secret key is set.
var ErrNotConfigured = apperr.Configuration("payment processor is not configured (missing stripe secret key)")

// StripeProcessor talks to Stripe through its own API client.
type StripeProcessor struct {
	api           *client.API
	webhookSecret string
}

// NewStripeProcessor builds a processor from cfg. backends may be nil to use
// the default Stripe endpoints.
func NewStripeProcessor(cfg config.StripeConfig, backends *stripe.Backends) *StripeProcessor {
	p := &StripeProcessor{webhookSecret: cfg.WebhookSecret}
	if cfg.SecretKey != "" {
		p.api = client.New(cfg.SecretKey, backends)
	}
	return p
}

func (p *StripeProcessor) Configured() bool {
	return p.api != nil
}

func (p *StripeProcessor) VerifiesWebhooks() bool {
	return p.webhookSecret != ""
}

func (p *StripeProcessor) CreateCheckoutSession(ctx context.Context, req *CheckoutRequest) (*Session, error) {
	if p.api == nil {
		return nil, ErrNotConfigured
	}

	params := &stripe.CheckoutSessionParams{
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:         stripe.String(req.SuccessURL),
		CancelURL:          stripe.String(req.CancelURL),
	}
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}
	if !req.ExpiresAt.IsZero() {
		params.ExpiresAt = stripe.Int64(req.ExpiresAt.Unix())
	}
	for _, item := range req.LineItems {
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency: stripe.String(req.Currency),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name:        stripe.String(item.Name),
					Description: optionalString(item.Description),
				},
				UnitAmount: stripe.Int64(item.UnitAmount),
			},
			Quantity: stripe.Int64(item.Quantity),
		})
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	params.Context = ctx

	s, err := p.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, apperr.Processor(err)
	}
	return fromStripeSession(s), nil
}

func (p *StripeProcessor) GetCheckoutSession(ctx context.Context, sessionID string) (*Session, error) {
	if p.api == nil {
		return nil, ErrNotConfigured
	}

	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	s, err := p.api.CheckoutSessions.Get(sessionID, params)
	if err != nil {
		return nil, apperr.Processor(err)
	}
	return fromStripeSession(s), nil
}

func (p *StripeProcessor) ParseWebhook(payload []byte, signature string) (*Event, error) {
	if p.api == nil {
		return nil, ErrNotConfigured
	}

	var (
		ev  stripe.Event
		err error
	)
	if p.webhookSecret != "" {
		ev, err = webhook.ConstructEventWithOptions(payload, signature, p.webhookSecret,
			webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
		if err != nil {
			return nil, apperr.Wrap(apperr.KindValidation, err, "invalid webhook signature")
		}
	} else if err = json.Unmarshal(payload, &ev); err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, err, "invalid webhook payload")
	}

	return fromStripeEvent(&ev)
}

func fromStripeEvent(ev *stripe.Event) (*Event, error) {
	out := &Event{ID: ev.ID, Type: string(ev.Type)}
	if out.Type != EventCheckoutSessionCompleted {
		return out, nil
	}
	if ev.Data == nil || len(ev.Data.Raw) == 0 {
		return nil, apperr.Validation("invalid webhook payload: missing data object")
	}

	var s stripe.CheckoutSession
	if err := json.Unmarshal(ev.Data.Raw, &s); err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, err, "invalid webhook payload")
	}
	out.Session = fromStripeSession(&s)
	return out, nil
}

func fromStripeSession(s *stripe.CheckoutSession) *Session {
	out := &Session{
		ID:            s.ID,
		URL:           s.URL,
		PaymentStatus: string(s.PaymentStatus),
		Metadata:      s.Metadata,
	}
	if s.PaymentIntent != nil {
		out.PaymentIntentID = s.PaymentIntent.ID
	}
	if out.Metadata == nil {
		out.Metadata = map[string]string{}
	}
	return out
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return stripe.String(s)
}

// CompletedEventPayload renders an unsigned checkout.session.completed event
// for orderID in Stripe's wire format. Used to replay fulfillment locally.
func CompletedEventPayload(orderID uint, sessionID, paymentIntentID string) ([]byte, error) {
	return json.Marshal(map[string]interface{}{
		"id":     "evt_simulated_" + uuid.NewString(),
		"object": "event",
		"type":   EventCheckoutSessionCompleted,
		"data": map[string]interface{}{
			"object": map[string]interface{}{
				"id":             sessionID,
				"object":         "checkout.session",
				"payment_status": PaymentStatusPaid,
				"payment_intent": paymentIntentID,
				"metadata":       map[string]string{MetadataOrderID: strconv.FormatUint(uint64(orderID), 10)},
			},
		},
	})
}
