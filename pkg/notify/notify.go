// Package notify delivers transactional emails to customers.
package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/example/storefront/pkg/models"
	"go.uber.org/zap"
)

type Message struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Sender delivers one message. Callers treat failures as non-fatal.
type Sender interface {
	Send(ctx context.Context, msg *Message) error
}

// OrderConfirmation builds the email sent once an order is paid. o must have
// User and Items.Product loaded.
func OrderConfirmation(o *models.Order, from string) *Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Merci pour votre commande #%d.\n\n", o.ID)
	for _, item := range o.Items {
		name := fmt.Sprintf("produit #%d", item.ProductID)
		if item.Product != nil {
			name = item.Product.Name
		}
		fmt.Fprintf(&b, "- %d x %s : %s €\n", item.Quantity, name, item.Price.StringFixed(2))
	}
	fmt.Fprintf(&b, "\nMontant: %s €\n\nNous préparons votre livraison.", o.TotalAmount.StringFixed(2))

	to := ""
	if o.User != nil {
		to = o.User.Email
	}
	return &Message{
		From:    from,
		To:      to,
		Subject: fmt.Sprintf("Commande #%d confirmée", o.ID),
		Body:    b.String(),
	}
}

// LogSender writes messages to the log instead of delivering them.
type LogSender struct {
	logger *zap.Logger
}

func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(_ context.Context, msg *Message) error {
	s.logger.Info("Email",
		zap.String("from", msg.From),
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.String("body", msg.Body))
	return nil
}
