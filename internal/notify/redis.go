package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

var errSubscriptionClosed = errors.New("redis subscription closed")

// RedisSource reads change notifications from a Redis pub/sub channel and
// publishes local changes to the same channel for peer instances.
type RedisSource struct {
	client    *redis.Client
	channel   string
	reconnect time.Duration
	log       logrus.FieldLogger
}

func NewRedisSource(client *redis.Client, channel string, reconnect time.Duration, log logrus.FieldLogger) *RedisSource {
	return &RedisSource{client: client, channel: channel, reconnect: reconnectDelay(reconnect), log: log}
}

func (s *RedisSource) Run(ctx context.Context, h Handler) error {
	return runWithReconnect(ctx, s.log, "redis", s.reconnect, func(ctx context.Context) error {
		sub := s.client.Subscribe(ctx, s.channel)
		defer sub.Close()

		if _, err := sub.Receive(ctx); err != nil {
			return fmt.Errorf("subscribe %s: %w", s.channel, err)
		}
		s.log.WithField("channel", s.channel).Info("subscribed to change notifications")

		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case msg, ok := <-ch:
				if !ok {
					return errSubscriptionClosed
				}
				dispatch(ctx, s.log, h, []byte(msg.Payload))
			}
		}
	})
}

func (s *RedisSource) Publish(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := s.client.Publish(ctx, s.channel, data).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", ev.Type, err)
	}
	return nil
}
