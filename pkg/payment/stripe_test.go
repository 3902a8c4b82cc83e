package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/example/storefront/pkg/apperr"
	"github.com/example/storefront/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76"
)

const completedEvent = `{
  "id": "evt_1",
  "object": "event",
  "type": "checkout.session.completed",
  "data": {"object": {
    "id": "cs_test_1",
    "object": "checkout.session",
    "payment_status": "paid",
    "payment_intent": "pi_1",
    "metadata": {"order_id": "7"}
  }}
}`

func sign(payload []byte, secret string, at time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", at.Unix(), payload)
	return fmt.Sprintf("t=%d,v1=%s", at.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func TestParseWebhookVerified(t *testing.T) {
	p := NewStripeProcessor(config.StripeConfig{SecretKey: "sk_test_x", WebhookSecret: "whsec_test"}, nil)
	require.True(t, p.VerifiesWebhooks())

	payload := []byte(completedEvent)
	ev, err := p.ParseWebhook(payload, sign(payload, "whsec_test", time.Now()))
	require.NoError(t, err)
	assert.Equal(t, EventCheckoutSessionCompleted, ev.Type)
	require.NotNil(t, ev.Session)
	assert.Equal(t, "cs_test_1", ev.Session.ID)
	assert.Equal(t, "pi_1", ev.Session.PaymentIntentID)
	assert.Equal(t, "7", ev.Session.Metadata[MetadataOrderID])
	assert.True(t, ev.Session.Paid())
}

func TestParseWebhookRejectsBadSignature(t *testing.T) {
	p := NewStripeProcessor(config.StripeConfig{SecretKey: "sk_test_x", WebhookSecret: "whsec_test"}, nil)
	payload := []byte(completedEvent)

	_, err := p.ParseWebhook(payload, sign(payload, "whsec_other", time.Now()))
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = p.ParseWebhook(payload, "")
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestParseWebhookUnverified(t *testing.T) {
	p := NewStripeProcessor(config.StripeConfig{SecretKey: "sk_test_x"}, nil)
	require.False(t, p.VerifiesWebhooks())

	ev, err := p.ParseWebhook([]byte(completedEvent), "")
	require.NoError(t, err)
	require.NotNil(t, ev.Session)
	assert.Equal(t, "7", ev.Session.Metadata[MetadataOrderID])

	ev, err = p.ParseWebhook([]byte(`{"id":"evt_2","type":"charge.refunded","data":{"object":{}}}`), "")
	require.NoError(t, err)
	assert.Equal(t, "charge.refunded", ev.Type)
	assert.Nil(t, ev.Session)

	_, err = p.ParseWebhook([]byte(`{not json`), "")
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestMissingSecretKey(t *testing.T) {
	p := NewStripeProcessor(config.StripeConfig{}, nil)
	assert.False(t, p.Configured())

	_, err := p.CreateCheckoutSession(context.Background(), &CheckoutRequest{})
	assert.True(t, apperr.Is(err, apperr.KindConfiguration))

	_, err = p.GetCheckoutSession(context.Background(), "cs_1")
	assert.True(t, apperr.Is(err, apperr.KindConfiguration))

	_, err = p.ParseWebhook([]byte(completedEvent), "")
	assert.True(t, apperr.Is(err, apperr.KindConfiguration))
}

func testBackends(url string) *stripe.Backends {
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL:               stripe.String(url),
		MaxNetworkRetries: stripe.Int64(0),
	})
	return &stripe.Backends{API: backend, Connect: backend, Uploads: backend}
}

func TestCreateCheckoutSession(t *testing.T) {
	var form map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/checkout/sessions", r.URL.Path)
		require.NoError(t, r.ParseForm())
		form = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"cs_test_9","object":"checkout.session","url":"https://pay.example/cs_test_9","payment_status":"unpaid","metadata":{"order_id":"9"}}`))
	}))
	defer srv.Close()

	p := NewStripeProcessor(config.StripeConfig{SecretKey: "sk_test_x"}, testBackends(srv.URL))
	s, err := p.CreateCheckoutSession(context.Background(), &CheckoutRequest{
		Currency:      "eur",
		SuccessURL:    "http://shop/success",
		CancelURL:     "http://shop/cart",
		CustomerEmail: "a@example.com",
		ExpiresAt:     time.Unix(1772395200, 0),
		Metadata:      map[string]string{MetadataOrderID: "9"},
		LineItems:     []LineItem{{Name: "Baklawa", UnitAmount: 1890, Quantity: 2}},
	})
	require.NoError(t, err)
	assert.Equal(t, "cs_test_9", s.ID)
	assert.Equal(t, "https://pay.example/cs_test_9", s.URL)
	assert.False(t, s.Paid())

	assert.Equal(t, []string{"payment"}, form["mode"])
	assert.Equal(t, []string{"eur"}, form["line_items[0][price_data][currency]"])
	assert.Equal(t, []string{"1890"}, form["line_items[0][price_data][unit_amount]"])
	assert.Equal(t, []string{"2"}, form["line_items[0][quantity]"])
	assert.Equal(t, []string{"9"}, form["metadata[order_id]"])
	assert.Equal(t, []string{"1772395200"}, form["expires_at"])
}

func TestGetCheckoutSessionProcessorError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","message":"No such checkout.session: cs_missing"}}`))
	}))
	defer srv.Close()

	p := NewStripeProcessor(config.StripeConfig{SecretKey: "sk_test_x"}, testBackends(srv.URL))
	_, err := p.GetCheckoutSession(context.Background(), "cs_missing")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindProcessor))
	assert.Contains(t, apperr.Message(err), "cs_missing")
}

func TestCompletedEventPayload(t *testing.T) {
	payload, err := CompletedEventPayload(42, "cs_sim", "pi_sim")
	require.NoError(t, err)

	p := NewStripeProcessor(config.StripeConfig{SecretKey: "sk_test_x"}, nil)
	ev, err := p.ParseWebhook(payload, "")
	require.NoError(t, err)
	assert.Equal(t, EventCheckoutSessionCompleted, ev.Type)
	require.NotNil(t, ev.Session)
	assert.Equal(t, "cs_sim", ev.Session.ID)
	assert.Equal(t, "pi_sim", ev.Session.PaymentIntentID)
	assert.Equal(t, "42", ev.Session.Metadata[MetadataOrderID])
	assert.True(t, ev.Session.Paid())
}
