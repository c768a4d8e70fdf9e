package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// payloadField is the stream entry field carrying the JSON-encoded event.
const payloadField = "payload"

// Publisher appends domain events to a Redis stream. Each service consumes
// them through Subscriber with its own consumer group, so a slow consumer
// never blocks the writer.
type Publisher struct {
	client *goredis.Client
}

func NewPublisher(client *goredis.Client) *Publisher {
	return &Publisher{client: client}
}

func (p *Publisher) Publish(ctx context.Context, stream, eventType string, data any) error {
	encoded, err := json.Marshal(Event{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	})
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", eventType, err)
	}
	err = p.client.XAdd(ctx, &goredis.XAddArgs{
		Stream: stream,
		Values: map[string]any{payloadField: encoded},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to append %s event to %s: %w", eventType, stream, err)
	}
	return nil
}
