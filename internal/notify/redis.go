package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const redisChannel = "counterex:events"

// RedisBroker fans events out across service instances through Redis pub/sub.
type RedisBroker struct {
	client *redis.Client
}

func NewRedisBroker(client *redis.Client) *RedisBroker {
	return &RedisBroker{client: client}
}

func (b *RedisBroker) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := b.client.Publish(ctx, redisChannel, payload).Err(); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

type redisSub struct {
	pubsub *redis.PubSub
	ch     chan Event
	cancel context.CancelFunc
}

func (s *redisSub) Events() <-chan Event { return s.ch }

func (s *redisSub) Close() error {
	s.cancel()
	return s.pubsub.Close()
}

func (b *RedisBroker) Subscribe(ctx context.Context) (Subscription, error) {
	pubsub := b.client.Subscribe(ctx, redisChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribe events: %w", err)
	}

	subCtx, cancel := context.WithCancel(context.Background())
	s := &redisSub{pubsub: pubsub, ch: make(chan Event, subscriberBuffer), cancel: cancel}

	go func() {
		defer close(s.ch)
		msgs := pubsub.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var ev Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					zap.L().Warn("dropping malformed event", zap.Error(err))
					continue
				}
				select {
				case s.ch <- ev:
				default:
				}
			}
		}
	}()

	return s, nil
}

func (b *RedisBroker) Close() error {
	return nil
}
