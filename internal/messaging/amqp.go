package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/c010r/backyardbarpass/internal/models"
)

// TicketsIssuedQueue is consumed by the QR rendering / e-mail delivery worker
const TicketsIssuedQueue = "tickets.issued"

type AMQPConfig struct {
	Enabled bool
	URL     string
	Queue   string
}

// AMQPPublisher hands issued tickets to the rendering collaborator over RabbitMQ
type AMQPPublisher struct {
	url   string
	queue string

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewAMQPPublisher(cfg AMQPConfig) (*AMQPPublisher, error) {
	queue := cfg.Queue
	if queue == "" {
		queue = TicketsIssuedQueue
	}

	p := &AMQPPublisher{url: cfg.URL, queue: queue}
	if err := p.connect(); err != nil {
		return nil, err
	}

	slog.Info("Connected to RabbitMQ", "queue", queue)
	return p, nil
}

// connect must be called with mu held or before the publisher is shared
func (p *AMQPPublisher) connect() error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return fmt.Errorf("rabbitmq: dial failed: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("rabbitmq: channel open failed: %w", err)
	}

	// durable so messages survive broker restarts
	if _, err := ch.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("rabbitmq: queue declare failed: %w", err)
	}

	p.conn = conn
	p.ch = ch
	return nil
}

func (p *AMQPPublisher) Deliver(ctx context.Context, msg models.TicketsIssuedMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("rabbitmq: marshal message failed: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn == nil || p.conn.IsClosed() {
		if err := p.connect(); err != nil {
			return err
		}
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.ReservationID,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}

	if err := p.ch.PublishWithContext(ctx, "", p.queue, false, false, pub); err != nil {
		return fmt.Errorf("rabbitmq: publish failed: %w", err)
	}
	return nil
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// NopDelivery logs and drops issued-ticket messages; used when RabbitMQ is disabled
type NopDelivery struct{}

func (NopDelivery) Deliver(_ context.Context, msg models.TicketsIssuedMessage) error {
	slog.Debug("RabbitMQ disabled, dropping tickets issued message",
		"reservation_id", msg.ReservationID, "tickets", len(msg.Tickets))
	return nil
}
