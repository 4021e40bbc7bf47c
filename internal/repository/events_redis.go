package repository

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"FinDS/internal/domain/repository"
)

// RedisEventRelay shares job events between replicas over a Redis pub/sub
// channel. Delivery is at most once; subscribers that need the final state
// must also read the job store.
type RedisEventRelay struct {
	client  *redis.Client
	channel string
}

func NewRedisEventRelay(client *redis.Client, channel string) *RedisEventRelay {
	return &RedisEventRelay{client: client, channel: channel}
}

var _ repository.EventRelay = (*RedisEventRelay)(nil)

func (r *RedisEventRelay) Publish(ctx context.Context, payload []byte) error {
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", r.channel, err)
	}
	return nil
}

// Subscribe delivers messages until ctx is done. go-redis reconnects the
// subscription on its own after network errors.
func (r *RedisEventRelay) Subscribe(ctx context.Context, deliver func([]byte)) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			deliver([]byte(msg.Payload))
		}
	}
}
