package metasync

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const defaultRedisChannel = "metasync:records"

// RedisBroker fans records out across a cluster over redis Pub/Sub. Every
// server subscribes to the same channel; origin suppression in the syncer
// keeps a server from applying its own records.
type RedisBroker struct {
	client  redis.UniversalClient
	channel string

	mu     sync.Mutex
	closed bool
	subs   map[string]*redisSub
}

type redisSub struct {
	pubsub *redis.PubSub
	done   chan struct{}
}

// NewRedisBroker creates a broker on the given redis client. An empty channel
// uses the default.
func NewRedisBroker(client redis.UniversalClient, channel string) *RedisBroker {
	if client == nil {
		panic("metasync: redis client cannot be nil")
	}
	if channel == "" {
		channel = defaultRedisChannel
	}
	return &RedisBroker{
		client:  client,
		channel: channel,
		subs:    make(map[string]*redisSub),
	}
}

// Publish marshals rec and publishes it to the shared channel.
func (r *RedisBroker) Publish(ctx context.Context, rec *Record) error {
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return ErrBrokerClosed
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		log.Error().Err(err).Str("channel", r.channel).Msg("failed to publish metadata record")
		return err
	}
	return nil
}

// Subscribe starts a listener goroutine feeding h from the shared channel.
func (r *RedisBroker) Subscribe(ctx context.Context, h Handler) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return "", ErrBrokerClosed
	}

	pubsub := r.client.Subscribe(ctx, r.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return "", err
	}

	sub := &redisSub{pubsub: pubsub, done: make(chan struct{})}
	id := uuid.NewString()
	r.subs[id] = sub

	go r.listen(id, sub, h)
	log.Debug().Str("subscription_id", id).Str("channel", r.channel).Msg("redis metadata subscription created")
	return id, nil
}

func (r *RedisBroker) listen(id string, sub *redisSub, h Handler) {
	defer close(sub.done)
	ch := sub.pubsub.Channel()
	for msg := range ch {
		var rec Record
		if err := json.Unmarshal([]byte(msg.Payload), &rec); err != nil {
			log.Error().Err(err).Str("subscription_id", id).Msg("discarding malformed metadata record")
			continue
		}
		h(&rec)
	}
}

// Unsubscribe stops the listener for id and waits for it to drain.
func (r *RedisBroker) Unsubscribe(_ context.Context, id string) error {
	r.mu.Lock()
	sub, ok := r.subs[id]
	delete(r.subs, id)
	r.mu.Unlock()
	if !ok {
		return nil
	}

	err := sub.pubsub.Close()
	<-sub.done
	if err != nil && !errors.Is(err, redis.ErrClosed) {
		return err
	}
	return nil
}

// Close stops every listener. The redis client itself is left to its owner.
func (r *RedisBroker) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	subs := r.subs
	r.subs = make(map[string]*redisSub)
	r.mu.Unlock()

	for _, sub := range subs {
		_ = sub.pubsub.Close()
		<-sub.done
	}
	log.Info().Str("channel", r.channel).Msg("redis metadata broker closed")
	return nil
}

var _ Broker = (*RedisBroker)(nil)
