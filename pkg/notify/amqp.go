package notify

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// AMQPSender queues messages for the mailer worker.
type AMQPSender struct {
	conn  *amqp.Connection
	queue string
}

func NewAMQPSender(conn *amqp.Connection, queue string) *AMQPSender {
	return &AMQPSender{conn: conn, queue: queue}
}

func declare(ch *amqp.Channel, queue string) error {
	_, err := ch.QueueDeclare(queue, true, false, false, false, nil)
	return err
}

func (s *AMQPSender) Send(ctx context.Context, msg *Message) error {
	ch, err := s.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	if err := declare(ch, s.queue); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", s.queue, err)
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return ch.PublishWithContext(ctx, "", s.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
}

// Consume delivers queued messages through sender until ctx is done or the
// delivery channel closes. Deliveries are acked manually: malformed bodies
// are dropped, and a failed send is requeued once before being dropped.
func Consume(ctx context.Context, conn *amqp.Connection, queue string, sender Sender, logger *zap.Logger) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	if err := declare(ch, queue); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", queue, err)
	}
	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("failed to set qos: %w", err)
	}

	deliveries, err := ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to consume %s: %w", queue, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel for %s closed", queue)
			}
			handleDelivery(ctx, d, sender, logger)
		}
	}
}

type acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

func handleDelivery(ctx context.Context, d amqp.Delivery, sender Sender, logger *zap.Logger) {
	deliver(ctx, d.Body, d.Redelivered, &d, sender, logger)
}

func deliver(ctx context.Context, body []byte, redelivered bool, ack acknowledger, sender Sender, logger *zap.Logger) {
	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		logger.Error("Dropping malformed mail message", zap.Error(err))
		_ = ack.Nack(false, false)
		return
	}

	if err := sender.Send(ctx, &msg); err != nil {
		logger.Error("Failed to deliver mail",
			zap.String("to", msg.To),
			zap.Bool("redelivered", redelivered),
			zap.Error(err))
		_ = ack.Nack(false, !redelivered)
		return
	}

	logger.Info("Mail delivered", zap.String("to", msg.To), zap.String("subject", msg.Subject))
	_ = ack.Ack(false)
}
