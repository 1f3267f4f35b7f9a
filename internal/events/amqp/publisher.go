package amqp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/streadway/amqp"
	"go.uber.org/zap"

	"github.com/wysRocket/dao-copilot-sub005/internal/events"
	"github.com/wysRocket/dao-copilot-sub005/pkg/logger"
)

const dialTimeout = 5 * time.Second

type Options struct {
	URL      string
	Exchange string
	// RoutingKey prefixes the event kind, e.g. "qdetect" gives
	// "qdetect.analysis.completed".
	RoutingKey string
}

// Publisher sends events to a durable topic exchange. It redials once the
// connection drops; the forwarder's retry covers the gap.
type Publisher struct {
	opts Options
	log  *zap.Logger

	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
	closed  bool
}

func NewPublisher(opts Options) (*Publisher, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("amqp url not configured")
	}
	if opts.Exchange == "" {
		opts.Exchange = "qdetect.events"
	}
	p := &Publisher{opts: opts, log: logger.Named("amqp")}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.connectLocked(); err != nil {
		return nil, err
	}

	p.log.Info("AMQP publisher initialized", zap.String("exchange", opts.Exchange))
	return p, nil
}

func (p *Publisher) connectLocked() error {
	conn, err := amqp.DialConfig(p.opts.URL, amqp.Config{
		Heartbeat: 10 * time.Second,
		Dial:      amqp.DefaultDial(dialTimeout),
	})
	if err != nil {
		return fmt.Errorf("failed to connect to AMQP server: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open AMQP channel: %w", err)
	}

	if err := ch.ExchangeDeclare(
		p.opts.Exchange,
		"topic",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("failed to declare exchange %s: %w", p.opts.Exchange, err)
	}

	p.conn = conn
	p.channel = ch
	return nil
}

func (p *Publisher) Name() string { return "amqp" }

func (p *Publisher) Publish(ctx context.Context, e events.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg, err := Message(e)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return fmt.Errorf("amqp publisher closed")
	}
	if p.conn == nil || p.conn.IsClosed() {
		if err := p.connectLocked(); err != nil {
			return err
		}
		p.log.Info("AMQP connection re-established")
	}

	if err := p.channel.Publish(p.opts.Exchange, RoutingKey(p.opts.RoutingKey, e.Kind), false, false, msg); err != nil {
		p.conn.Close()
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true
	if p.conn == nil || p.conn.IsClosed() {
		return nil
	}
	if p.channel != nil {
		p.channel.Close()
	}
	return p.conn.Close()
}

// RoutingKey maps "analysis:completed" to "<prefix>.analysis.completed".
func RoutingKey(prefix string, kind events.Kind) string {
	key := strings.ReplaceAll(string(kind), ":", ".")
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

func Message(e events.Event) (amqp.Publishing, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("failed to marshal event: %w", err)
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    e.ID,
		Timestamp:    e.Time,
		Type:         string(e.Kind),
		Body:         body,
	}, nil
}
