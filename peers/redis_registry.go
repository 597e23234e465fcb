package peers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

type redisRegistry struct {
	opts   *Options
	client redis.UniversalClient

	mu      sync.Mutex
	stopChs map[string]chan struct{}
}

// NewRedisRegistry creates a redis-backed server registry. Connectivity is
// verified with a ping.
func NewRedisRegistry(opts ...Option) (Registry, error) {
	options := newOptions(opts...)
	if options.Client == nil {
		return nil, errors.New("peers: redis client is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := options.Client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("peers: redis ping failed: %w", err)
	}

	log.Info().Str("prefix", options.KeyPrefix).Dur("ttl", options.TTL).Dur("heartbeat", options.HeartbeatInterval).Msg("peer registry initialized")
	return &redisRegistry{
		opts:    options,
		client:  options.Client,
		stopChs: make(map[string]chan struct{}),
	}, nil
}

func (r *redisRegistry) serverKey(srv *Server) string {
	return fmt.Sprintf("%s:%s:%s", r.opts.KeyPrefix, srv.Name, srv.ID)
}

func (r *redisRegistry) networkPattern(network string) string {
	return fmt.Sprintf("%s:%s:*", r.opts.KeyPrefix, network)
}

// Register writes the server entry with a TTL and starts the heartbeat.
func (r *redisRegistry) Register(ctx context.Context, srv *Server) (func(context.Context) error, error) {
	if srv.Name == "" || srv.Address == "" {
		return nil, errors.New("peers: server name and address are required")
	}
	if srv.ID == "" {
		srv.ID = uuid.NewString()
	}
	if srv.Metadata == nil {
		srv.Metadata = make(map[string]string)
	}

	key := r.serverKey(srv)
	payload, err := json.Marshal(srv)
	if err != nil {
		return nil, fmt.Errorf("peers: marshal server: %w", err)
	}
	if err := r.client.Set(ctx, key, payload, r.opts.TTL).Err(); err != nil {
		log.Error().Err(err).Str("key", key).Msg("failed to register server")
		return nil, fmt.Errorf("peers: register server: %w", err)
	}
	log.Info().Stringer("server", srv).Dur("ttl", r.opts.TTL).Msg("server registered")

	r.mu.Lock()
	if old, exists := r.stopChs[key]; exists {
		log.Warn().Str("key", key).Msg("replacing existing heartbeat")
		close(old)
	}
	stopCh := make(chan struct{})
	r.stopChs[key] = stopCh
	r.mu.Unlock()

	go r.keepAlive(srv, stopCh)

	return func(ctx context.Context) error {
		return r.Deregister(ctx, srv)
	}, nil
}

// keepAlive renews the entry's TTL, re-registering it if it expired.
func (r *redisRegistry) keepAlive(srv *Server, stopCh <-chan struct{}) {
	key := r.serverKey(srv)
	ticker := time.NewTicker(r.opts.HeartbeatInterval)
	defer ticker.Stop()

	ctx := context.Background()
	for {
		select {
		case <-stopCh:
			log.Debug().Stringer("server", srv).Msg("heartbeat stopped")
			return
		case <-ticker.C:
			renewed, err := r.client.Expire(ctx, key, r.opts.TTL).Result()
			if err != nil {
				log.Error().Err(err).Stringer("server", srv).Msg("heartbeat failed to renew ttl")
				continue
			}
			if !renewed {
				log.Warn().Stringer("server", srv).Msg("server entry expired, re-registering")
				payload, err := json.Marshal(srv)
				if err != nil {
					continue
				}
				if err := r.client.Set(ctx, key, payload, r.opts.TTL).Err(); err != nil {
					log.Error().Err(err).Stringer("server", srv).Msg("failed to re-register server")
				}
			}
		}
	}
}

// Deregister stops the heartbeat and removes the entry.
func (r *redisRegistry) Deregister(ctx context.Context, srv *Server) error {
	key := r.serverKey(srv)

	r.mu.Lock()
	if stopCh, exists := r.stopChs[key]; exists {
		close(stopCh)
		delete(r.stopChs, key)
	}
	r.mu.Unlock()

	if err := r.client.Del(ctx, key).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("peers: deregister server: %w", err)
	}
	log.Info().Stringer("server", srv).Msg("server deregistered")
	return nil
}

// Discover scans for live entries and fetches them in one MGET.
func (r *redisRegistry) Discover(ctx context.Context, network string) ([]*Server, error) {
	var keys []string
	iter := r.client.Scan(ctx, 0, r.networkPattern(network), 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("peers: scan network %s: %w", network, err)
	}
	if len(keys) == 0 {
		return []*Server{}, nil
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("peers: fetch servers: %w", err)
	}

	servers := make([]*Server, 0, len(values))
	for i, val := range values {
		// Entries can expire between SCAN and MGET.
		if val == nil {
			continue
		}
		str, ok := val.(string)
		if !ok {
			log.Warn().Str("key", keys[i]).Msg("unexpected value type in peer registry")
			continue
		}
		var srv Server
		if err := json.Unmarshal([]byte(str), &srv); err != nil {
			log.Warn().Err(err).Str("key", keys[i]).Msg("skipping unparsable server entry")
			continue
		}
		servers = append(servers, &srv)
	}
	return servers, nil
}

// Watch polls Discover and emits the list whenever its fingerprint changes.
func (r *redisRegistry) Watch(ctx context.Context, network string) (<-chan []*Server, error) {
	ch := make(chan []*Server, 1)

	go func() {
		defer close(ch)
		ticker := time.NewTicker(r.opts.WatchInterval)
		defer ticker.Stop()

		initial, err := r.Discover(ctx, network)
		if err != nil {
			log.Error().Err(err).Str("network", network).Msg("watcher initial discovery failed")
			initial = []*Server{}
		}
		last := fingerprint(initial)
		select {
		case ch <- initial:
		case <-ctx.Done():
			return
		}

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				current, err := r.Discover(ctx, network)
				if err != nil {
					log.Warn().Err(err).Str("network", network).Msg("watcher discovery failed")
					continue
				}
				fp := fingerprint(current)
				if fp == last {
					continue
				}
				select {
				case ch <- current:
				default:
					log.Warn().Str("network", network).Msg("watcher channel full, dropping update")
				}
				last = fp
			}
		}
	}()

	log.Info().Str("network", network).Dur("interval", r.opts.WatchInterval).Msg("peer watcher started")
	return ch, nil
}

// Close stops every heartbeat started by this registry.
func (r *redisRegistry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, ch := range r.stopChs {
		close(ch)
		delete(r.stopChs, key)
	}
	return nil
}
