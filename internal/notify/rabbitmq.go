package notify

import (
	"context"
	"fmt"
	"sync"

	"github.com/streadway/amqp"
	"go.uber.org/zap"

	"github.com/rongwang/ledger-share/internal/models"
)

// Channel is the part of *amqp.Channel the relay uses
type Channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Close() error
}

// Handler processes one received invitation
type Handler func(ctx context.Context, invitation models.Invitation) error

// RabbitMQRelay publishes invitations to the invitee's queue and consumes
// the local user's queue.
type RabbitMQRelay struct {
	conn    *amqp.Connection
	channel Channel
	logger  *zap.Logger

	// amqp channels are not safe for concurrent publishing
	mu sync.Mutex
}

// DialRabbitMQ connects to the broker at url
func DialRabbitMQ(url string, logger *zap.Logger) (*RabbitMQRelay, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}

	relay := NewRabbitMQRelay(ch, logger)
	relay.conn = conn
	logger.Info("connected to RabbitMQ")

	return relay, nil
}

// NewRabbitMQRelay creates a relay on an open channel
func NewRabbitMQRelay(ch Channel, logger *zap.Logger) *RabbitMQRelay {
	return &RabbitMQRelay{channel: ch, logger: logger}
}

func (r *RabbitMQRelay) declare(email string) (string, error) {
	q, err := r.channel.QueueDeclare(
		QueueName(email),
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return "", fmt.Errorf("failed to declare queue for %s: %w", email, err)
	}
	return q.Name, nil
}

// Deliver publishes the invitation to the invitee's queue
func (r *RabbitMQRelay) Deliver(ctx context.Context, invitation *models.Invitation) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	body, err := NewEnvelope(invitation).Marshal()
	if err != nil {
		return fmt.Errorf("failed to encode invitation: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	queue, err := r.declare(invitation.InvitedEmail)
	if err != nil {
		return err
	}

	err = r.channel.Publish(
		"",    // default exchange
		queue, // routing key
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			MessageId:    invitation.InvitationID,
			DeliveryMode: amqp.Persistent,
			Body:         body,
		})
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", queue, err)
	}

	r.logger.Info("invitation relayed",
		zap.String("invitation", invitation.InvitationID),
		zap.String("peer", invitation.InvitedEmail))

	return nil
}

// Consume hands invitations addressed to email to handle until ctx is
// cancelled or the broker closes the delivery channel. Messages are acked
// once handled; malformed or rejected messages are dropped.
func (r *RabbitMQRelay) Consume(ctx context.Context, email string, handle Handler) error {
	r.mu.Lock()
	queue, err := r.declare(email)
	if err != nil {
		r.mu.Unlock()
		return err
	}
	deliveries, err := r.channel.Consume(
		queue,
		"",    // consumer
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	r.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to consume %s: %w", queue, err)
	}

	r.logger.Info("waiting for invitations", zap.String("queue", queue))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return nil
			}
			r.handleDelivery(ctx, d, handle)
		}
	}
}

func (r *RabbitMQRelay) handleDelivery(ctx context.Context, d amqp.Delivery, handle Handler) {
	envelope, err := ParseEnvelope(d.Body)
	if err != nil {
		r.logger.Warn("dropping malformed invitation", zap.Error(err))
		d.Reject(false)
		return
	}

	if err := handle(ctx, envelope.Invitation()); err != nil {
		r.logger.Warn("dropping invitation",
			zap.String("invitation", envelope.InvitationID), zap.Error(err))
		d.Reject(false)
		return
	}

	d.Ack(false)
}

// Close closes the channel and, for dialled relays, the connection
func (r *RabbitMQRelay) Close() error {
	var lastErr error
	if err := r.channel.Close(); err != nil {
		lastErr = err
	}
	if r.conn != nil {
		if err := r.conn.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}
