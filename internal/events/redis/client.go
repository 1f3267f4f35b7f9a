package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/wysRocket/dao-copilot-sub005/internal/events"
	"github.com/wysRocket/dao-copilot-sub005/pkg/logger"
)

type Options struct {
	Host        string
	Port        int
	Password    string
	DB          int
	Channel     string
	SnapshotKey string
	SnapshotTTL time.Duration
}

// Publisher pushes engine events to a redis channel for the answering
// pipeline and keeps the latest metrics snapshot under a plain key.
type Publisher struct {
	client      *redis.Client
	channel     string
	snapshotKey string
	snapshotTTL time.Duration
}

func NewPublisher(ctx context.Context, opts Options) (*Publisher, error) {
	addr := fmt.Sprintf("%s:%d", opts.Host, opts.Port)
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis publisher initialized",
		zap.String("addr", addr),
		zap.String("channel", opts.Channel),
	)

	return newPublisher(client, opts), nil
}

func newPublisher(client *redis.Client, opts Options) *Publisher {
	if opts.Channel == "" {
		opts.Channel = "qdetect:analysis"
	}
	return &Publisher{
		client:      client,
		channel:     opts.Channel,
		snapshotKey: opts.SnapshotKey,
		snapshotTTL: opts.SnapshotTTL,
	}
}

func (p *Publisher) Name() string { return "redis" }

func (p *Publisher) Publish(ctx context.Context, e events.Event) error {
	data, err := Encode(e)
	if err != nil {
		return err
	}
	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	logger.Debug("Event published", zap.String("event_id", e.ID), zap.String("kind", string(e.Kind)))
	return nil
}

// StoreSnapshot overwrites the snapshot key with v as JSON.
func (p *Publisher) StoreSnapshot(ctx context.Context, v any) error {
	if p.snapshotKey == "" {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	if err := p.client.Set(ctx, p.snapshotKey, data, p.snapshotTTL).Err(); err != nil {
		return fmt.Errorf("failed to store snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot decodes the stored snapshot into v. It reports false when
// the key does not exist.
func (p *Publisher) LoadSnapshot(ctx context.Context, v any) (bool, error) {
	data, err := p.client.Get(ctx, p.snapshotKey).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load snapshot: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return true, nil
}

func (p *Publisher) Close() error {
	return p.client.Close()
}

// Encode is the wire form of an event on the channel.
func Encode(e events.Event) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}
	return data, nil
}
