package peers

import (
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Options holds registry configuration.
type Options struct {
	// Client is the redis client (required).
	Client redis.UniversalClient
	// KeyPrefix namespaces registry keys in redis.
	KeyPrefix string
	// TTL is how long a server entry survives without a heartbeat.
	TTL time.Duration
	// HeartbeatInterval is how often the TTL is renewed.
	HeartbeatInterval time.Duration
	// WatchInterval is how often watchers poll for changes.
	WatchInterval time.Duration
}

// Option configures the registry.
type Option func(*Options)

const (
	DefaultKeyPrefix        = "peers:srv"
	DefaultTTL              = 30 * time.Second
	DefaultWatchInterval    = 15 * time.Second
	defaultHeartbeatDivisor = 3
)

func newOptions(opts ...Option) *Options {
	o := &Options{
		KeyPrefix:     DefaultKeyPrefix,
		TTL:           DefaultTTL,
		WatchInterval: DefaultWatchInterval,
	}
	o.HeartbeatInterval = o.TTL / defaultHeartbeatDivisor

	for _, opt := range opts {
		opt(o)
	}

	// A heartbeat slower than the TTL would let live servers expire.
	if o.HeartbeatInterval <= 0 || o.HeartbeatInterval >= o.TTL {
		adjusted := o.TTL / defaultHeartbeatDivisor
		if adjusted <= 0 {
			adjusted = time.Second
		}
		log.Warn().Dur("configured", o.HeartbeatInterval).Dur("ttl", o.TTL).Dur("adjusted", adjusted).Msg("heartbeat interval adjusted to fit ttl")
		o.HeartbeatInterval = adjusted
	}

	return o
}

// WithRedisClient sets the redis client.
func WithRedisClient(client redis.UniversalClient) Option {
	return func(o *Options) { o.Client = client }
}

// WithKeyPrefix sets the redis key prefix.
func WithKeyPrefix(prefix string) Option {
	return func(o *Options) { o.KeyPrefix = prefix }
}

// WithTTL sets the server entry TTL.
func WithTTL(ttl time.Duration) Option {
	return func(o *Options) {
		if ttl > 0 {
			o.TTL = ttl
		}
	}
}

// WithHeartbeatInterval sets the heartbeat interval.
func WithHeartbeatInterval(interval time.Duration) Option {
	return func(o *Options) {
		if interval > 0 {
			o.HeartbeatInterval = interval
		}
	}
}

// WithWatchInterval sets the watcher poll interval.
func WithWatchInterval(interval time.Duration) Option {
	return func(o *Options) {
		if interval > 0 {
			o.WatchInterval = interval
		}
	}
}
