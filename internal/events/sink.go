package events

import (
	"context"
	"encoding/json"
	"fmt"

	backend "github.com/redis/go-redis/v9"
)

// Sink is an outbound transport for events.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, channel string, evt Event) error
}

type sinkItem struct {
	channel string
	evt     Event
}

type sinkWorker struct {
	sink  Sink
	queue chan sinkItem
}

// RedisSink publishes events as JSON on Redis pub/sub channels named
// prefix+channel.
type RedisSink struct {
	client backend.UniversalClient
	prefix string
}

// NewRedisSink creates a sink on client.
func NewRedisSink(client backend.UniversalClient, prefix string) *RedisSink {
	return &RedisSink{client: client, prefix: prefix}
}

func (s *RedisSink) Name() string { return "redis" }

// Deliver publishes evt on the Redis channel for channel.
func (s *RedisSink) Deliver(ctx context.Context, channel string, evt Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := s.client.Publish(ctx, s.prefix+channel, payload).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", channel, err)
	}
	return nil
}
