package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"github.com/talx-hub/gopher-loyalty/internal/model"
)

const DefaultExchange = "loyalty_events"

const dialTimeout = 10 * time.Second

type amqpChannel interface {
	PublishWithContext(ctx context.Context,
		exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp091.Table) error
	Close() error
}

type AMQPPublisher struct {
	conn     *amqp091.Connection
	channel  amqpChannel
	open     func() (amqpChannel, error)
	log      *slog.Logger
	exchange string
	mu       sync.Mutex
}

func NewAMQPPublisher(rawURL, exchange string, log *slog.Logger) (*AMQPPublisher, error) {
	cleanURL, err := sanitizeAMQPURL(rawURL)
	if err != nil {
		return nil, err
	}

	conn, err := amqp091.DialConfig(cleanURL, amqp091.Config{Dial: amqp091.DefaultDial(dialTimeout)})
	if err != nil {
		return nil, fmt.Errorf("failed to dial broker: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if exchange == "" {
		exchange = DefaultExchange
	}
	if err = declareExchange(ch, exchange); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return &AMQPPublisher{
		conn:    conn,
		channel: ch,
		open: func() (amqpChannel, error) {
			return conn.Channel()
		},
		log:      log,
		exchange: exchange,
	}, nil
}

func RoutingKey(t Type) string {
	return "loyalty." + string(t)
}

func (p *AMQPPublisher) Publish(ctx context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	msg := amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		Timestamp:    ev.OccurredAt,
		Type:         string(ev.Type),
		Body:         body,
	}
	err = p.channel.PublishWithContext(ctx, p.exchange, RoutingKey(ev.Type), false, false, msg)
	if err == nil {
		return nil
	}

	p.log.LogAttrs(ctx,
		slog.LevelWarn,
		"publish failed, reopening channel",
		slog.Any(model.KeyLoggerError, err),
	)
	if closeErr := p.channel.Close(); closeErr != nil && !errors.Is(closeErr, amqp091.ErrClosed) {
		p.log.LogAttrs(ctx,
			slog.LevelDebug,
			"failed to close broken channel",
			slog.Any(model.KeyLoggerError, closeErr),
		)
	}
	ch, chErr := p.open()
	if chErr != nil {
		return fmt.Errorf("failed to reopen channel: %w", errors.Join(err, chErr))
	}
	p.channel = ch
	if err = declareExchange(ch, p.exchange); err != nil {
		return err
	}
	if err = p.channel.PublishWithContext(ctx, p.exchange, RoutingKey(ev.Type), false, false, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

func (p *AMQPPublisher) Close() {
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
}

func declareExchange(ch amqpChannel, exchange string) error {
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}
	return nil
}

func sanitizeAMQPURL(raw string) (string, error) {
	clean := strings.Trim(strings.TrimSpace(raw), "\"'")
	u, err := url.Parse(clean)
	if err != nil {
		return "", fmt.Errorf("invalid broker url: %w", err)
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("broker url scheme must be amqp or amqps")
	}
	return clean, nil
}
