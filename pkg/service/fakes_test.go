package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/example/storefront/pkg/apperr"
	"github.com/example/storefront/pkg/notify"
	"github.com/example/storefront/pkg/payment"
)

type fakeProcessor struct {
	mu         sync.Mutex
	configured bool
	verifies   bool
	createErr  error
	requests   []*payment.CheckoutRequest
	sessions   map[string]*payment.Session
}

func newFakeProcessor() *fakeProcessor {
	return &fakeProcessor{configured: true, sessions: map[string]*payment.Session{}}
}

func (f *fakeProcessor) Configured() bool       { return f.configured }
func (f *fakeProcessor) VerifiesWebhooks() bool { return f.verifies }

func (f *fakeProcessor) CreateCheckoutSession(_ context.Context, req *payment.CheckoutRequest) (*payment.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.createErr != nil {
		return nil, f.createErr
	}
	id := fmt.Sprintf("cs_test_%d", len(f.requests))
	meta := make(map[string]string, len(req.Metadata))
	for k, v := range req.Metadata {
		meta[k] = v
	}
	s := &payment.Session{
		ID:            id,
		URL:           "https://checkout.example/" + id,
		PaymentStatus: "unpaid",
		Metadata:      meta,
	}
	f.sessions[id] = s
	return s, nil
}

func (f *fakeProcessor) GetCheckoutSession(_ context.Context, id string) (*payment.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return nil, apperr.Processor(errors.New("No such checkout.session: " + id))
	}
	out := *s
	return &out, nil
}

// markPaid flips a stored session to paid the way the hosted page would.
func (f *fakeProcessor) markPaid(id, intent string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[id].PaymentStatus = payment.PaymentStatusPaid
	f.sessions[id].PaymentIntentID = intent
}

func (f *fakeProcessor) lastRequest() *payment.CheckoutRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

// ParseWebhook accepts a JSON encoded payment.Event; a signature of "bad"
// fails verification.
func (f *fakeProcessor) ParseWebhook(payload []byte, signature string) (*payment.Event, error) {
	if signature == "bad" {
		return nil, apperr.Validation("invalid webhook signature")
	}
	var ev payment.Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, err, "invalid webhook payload")
	}
	return &ev, nil
}

func completedPayload(orderID, sessionID, intent string) []byte {
	meta := map[string]string{}
	if orderID != "" {
		meta[payment.MetadataOrderID] = orderID
	}
	b, _ := json.Marshal(&payment.Event{
		ID:   "evt_" + sessionID,
		Type: payment.EventCheckoutSessionCompleted,
		Session: &payment.Session{
			ID:              sessionID,
			PaymentStatus:   payment.PaymentStatusPaid,
			PaymentIntentID: intent,
			Metadata:        meta,
		},
	})
	return b
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []*notify.Message
	err  error
}

func (r *recordingNotifier) Send(_ context.Context, msg *notify.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, msg)
	return r.err
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

type recordingAudit struct {
	mu      sync.Mutex
	actions []string
}

func (r *recordingAudit) Record(_ context.Context, action string, _ uint, _ map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions = append(r.actions, action)
	return nil
}
