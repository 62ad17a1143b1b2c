package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const streamField = "event"

// RedisStream publishes events to a Redis stream with XADD.
type RedisStream struct {
	client redis.UniversalClient
	stream string
	maxLen int64
}

func NewRedisStream(client redis.UniversalClient, stream string) *RedisStream {
	return &RedisStream{client: client, stream: stream, maxLen: 100000}
}

func (s *RedisStream) Publish(ctx context.Context, events ...Event) error {
	var errs []error
	for _, event := range events {
		payload, err := json.Marshal(event)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		err = s.client.XAdd(ctx, &redis.XAddArgs{
			Stream: s.stream,
			MaxLen: s.maxLen,
			Approx: true,
			Values: map[string]any{streamField: payload},
		}).Err()
		if err != nil {
			errs = append(errs, fmt.Errorf("xadd %s: %w", event.Type, err))
		}
	}
	return errors.Join(errs...)
}

type ConsumerConfig struct {
	Stream   string
	Group    string
	Consumer string
	Batch    int64
	Block    time.Duration
}

// Consumer reads a stream through a consumer group and acknowledges each
// entry after its handler ran, whether or not the handler failed.
type Consumer struct {
	client  redis.UniversalClient
	handler Handler
	config  ConsumerConfig
	logger  *zap.Logger
}

func NewConsumer(client redis.UniversalClient, handler Handler, config ConsumerConfig, logger *zap.Logger) *Consumer {
	if config.Batch <= 0 {
		config.Batch = 32
	}
	if config.Block <= 0 {
		config.Block = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Consumer{client: client, handler: handler, config: config, logger: logger}
}

func (c *Consumer) Run(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.config.Stream, c.config.Group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group: %w", err)
	}

	c.logger.Info("event consumer started",
		zap.String("stream", c.config.Stream),
		zap.String("group", c.config.Group),
		zap.String("consumer", c.config.Consumer),
	)

	for {
		if ctx.Err() != nil {
			c.logger.Info("event consumer stopped")
			return nil
		}

		streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    c.config.Group,
			Consumer: c.config.Consumer,
			Streams:  []string{c.config.Stream, ">"},
			Count:    c.config.Batch,
			Block:    c.config.Block,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				c.logger.Info("event consumer stopped")
				return nil
			}
			c.logger.Warn("read stream failed", zap.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
			continue
		}

		for _, stream := range streams {
			for _, message := range stream.Messages {
				c.process(ctx, message)
			}
		}
	}
}

func (c *Consumer) process(ctx context.Context, message redis.XMessage) {
	defer func() {
		if err := c.client.XAck(ctx, c.config.Stream, c.config.Group, message.ID).Err(); err != nil {
			c.logger.Warn("ack failed", zap.String("message_id", message.ID), zap.Error(err))
		}
	}()

	event, err := decodeMessage(message)
	if err != nil {
		c.logger.Warn("dropping malformed event", zap.String("message_id", message.ID), zap.Error(err))
		return
	}
	if err := dispatch(ctx, c.handler, event); err != nil {
		c.logger.Warn("event handler failed",
			zap.String("event_type", event.Type),
			zap.String("event_id", event.ID),
			zap.Error(err),
		)
	}
}

func decodeMessage(message redis.XMessage) (Event, error) {
	var raw []byte
	switch v := message.Values[streamField].(type) {
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return Event{}, fmt.Errorf("missing %q field", streamField)
	}

	var event Event
	if err := json.Unmarshal(raw, &event); err != nil {
		return Event{}, err
	}
	return event, nil
}
