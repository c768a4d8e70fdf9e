package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/graphbank/backoffice/internal/logging"
)

// Handler consumes one decoded event. Returning an error leaves the message
// unacknowledged so the consumer group redelivers it.
type Handler func(ctx context.Context, event Event) error

// SubscriberConfig binds a consumer-group reader to one stream.
type SubscriberConfig struct {
	Group    string
	Consumer string
	Stream   string
	Handler  Handler

	// BatchSize and Block default to 64 messages / 5s when zero.
	BatchSize int64
	Block     time.Duration
}

// Subscriber reads a Redis stream through a consumer group and dispatches
// each event to the configured handler.
type Subscriber struct {
	client *goredis.Client
	cfg    SubscriberConfig
	log    *logging.Logger
}

func NewSubscriber(client *goredis.Client, cfg SubscriberConfig, log *logging.Logger) *Subscriber {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 64
	}
	if cfg.Block <= 0 {
		cfg.Block = 5 * time.Second
	}
	return &Subscriber{client: client, cfg: cfg, log: log}
}

// Start creates the consumer group if it does not exist yet and reads until
// ctx is cancelled.
func (s *Subscriber) Start(ctx context.Context) error {
	err := s.client.XGroupCreateMkStream(ctx, s.cfg.Stream, s.cfg.Group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group %s on %s: %w", s.cfg.Group, s.cfg.Stream, err)
	}

	s.log.WithService().WithField("stream", s.cfg.Stream).WithField("group", s.cfg.Group).
		Info("event subscriber started")

	for {
		select {
		case <-ctx.Done():
			s.log.WithService().WithField("stream", s.cfg.Stream).Info("event subscriber stopping")
			return ctx.Err()
		default:
		}
		if err := s.consumeBatch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.log.WithService().WithField("stream", s.cfg.Stream).Warnf("failed to read events: %v", err)
			time.Sleep(time.Second)
		}
	}
}

func (s *Subscriber) consumeBatch(ctx context.Context) error {
	streams, err := s.client.XReadGroup(ctx, &goredis.XReadGroupArgs{
		Group:    s.cfg.Group,
		Consumer: s.cfg.Consumer,
		Streams:  []string{s.cfg.Stream, ">"},
		Count:    s.cfg.BatchSize,
		Block:    s.cfg.Block,
	}).Result()
	if err == goredis.Nil {
		return nil
	}
	if err != nil {
		return err
	}

	for _, stream := range streams {
		for _, message := range stream.Messages {
			if err := s.dispatch(ctx, message); err != nil {
				// Not acked: the group redelivers it.
				s.log.WithService().WithField("message_id", message.ID).
					Warnf("failed to handle event: %v", err)
				continue
			}
			if err := s.client.XAck(ctx, s.cfg.Stream, s.cfg.Group, message.ID).Err(); err != nil {
				s.log.WithService().WithField("message_id", message.ID).
					Warnf("failed to ack event: %v", err)
			}
		}
	}
	return nil
}

func (s *Subscriber) dispatch(ctx context.Context, message goredis.XMessage) error {
	raw, ok := message.Values[payloadField].(string)
	if !ok {
		return fmt.Errorf("message %s carries no %s field", message.ID, payloadField)
	}
	var event Event
	if err := json.Unmarshal([]byte(raw), &event); err != nil {
		return fmt.Errorf("failed to decode event: %w", err)
	}
	return s.cfg.Handler(ctx, event)
}
