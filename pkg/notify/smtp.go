package notify

import (
	"context"
	"fmt"

	"github.com/example/storefront/pkg/config"
	"github.com/wneessen/go-mail"
)

// SMTPSender delivers messages through an SMTP relay.
type SMTPSender struct {
	cfg *config.MailConfig
}

func NewSMTPSender(cfg *config.MailConfig) (*SMTPSender, error) {
	if cfg.SMTPHost == "" {
		return nil, fmt.Errorf("mail.smtp_host is required for the smtp backend")
	}
	return &SMTPSender{cfg: cfg}, nil
}

func (s *SMTPSender) client() (*mail.Client, error) {
	opts := []mail.Option{mail.WithPort(s.cfg.SMTPPort)}
	if s.cfg.SMTPUsername != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.cfg.SMTPUsername),
			mail.WithPassword(s.cfg.SMTPPassword),
		)
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSOpportunistic))
	}
	return mail.NewClient(s.cfg.SMTPHost, opts...)
}

func (s *SMTPSender) Send(ctx context.Context, msg *Message) error {
	m := mail.NewMsg()
	if err := m.From(msg.From); err != nil {
		return fmt.Errorf("invalid sender %q: %w", msg.From, err)
	}
	if err := m.To(msg.To); err != nil {
		return fmt.Errorf("invalid recipient %q: %w", msg.To, err)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextPlain, msg.Body)

	c, err := s.client()
	if err != nil {
		return fmt.Errorf("failed to create smtp client: %w", err)
	}
	if err := c.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("failed to send email to %s: %w", msg.To, err)
	}
	return nil
}
