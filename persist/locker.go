package persist

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	defaultLockTTL        = 30 * time.Second
	defaultLockRetryDelay = 250 * time.Millisecond
	defaultLockMaxRetries = 20
)

var (
	ErrLockNotAcquired = errors.New("persist: flush lock not acquired")
	ErrUnlockFailed    = errors.New("persist: failed to release flush lock")
	ErrLockWaitTimeout = errors.New("persist: waiting for flush lock timed out")
	ErrLockMaxRetries  = errors.New("persist: flush lock retries exhausted")
)

// unlockScript deletes the lock key only when it still carries our value, so
// an expired lock re-acquired by another server is never released by us.
const unlockScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`

// Locker is a redis lock around snapshot writes, so that only one server in a
// cluster flushes a shared store at a time.
type Locker struct {
	client     redis.UniversalClient
	key        string
	value      string
	ttl        time.Duration
	retryDelay time.Duration
	maxRetries int
}

// LockerOption configures a Locker.
type LockerOption func(*Locker)

// WithLockTTL sets the lock expiry.
func WithLockTTL(ttl time.Duration) LockerOption {
	return func(l *Locker) {
		if ttl > 0 {
			l.ttl = ttl
		}
	}
}

// WithLockRetryDelay sets the delay between acquisition attempts in Lock.
func WithLockRetryDelay(d time.Duration) LockerOption {
	return func(l *Locker) {
		if d > 0 {
			l.retryDelay = d
		}
	}
}

// WithLockMaxRetries caps the acquisition attempts in Lock. Zero retries
// forever, until the context gives up.
func WithLockMaxRetries(n int) LockerOption {
	return func(l *Locker) {
		if n >= 0 {
			l.maxRetries = n
		}
	}
}

// NewLocker creates a lock on the given key.
func NewLocker(client redis.UniversalClient, key string, opts ...LockerOption) *Locker {
	l := &Locker{
		client:     client,
		key:        key,
		ttl:        defaultLockTTL,
		retryDelay: defaultLockRetryDelay,
		maxRetries: defaultLockMaxRetries,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Key returns the lock's redis key.
func (l *Locker) Key() string { return l.key }

func (l *Locker) tryAcquire(ctx context.Context) (string, error) {
	value := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, value, l.ttl).Result()
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", ErrLockWaitTimeout
		}
		log.Error().Err(err).Str("key", l.key).Msg("flush lock setnx failed")
		return "", err
	}
	if !ok {
		return "", ErrLockNotAcquired
	}
	return value, nil
}

// TryLock attempts to acquire the lock without waiting.
func (l *Locker) TryLock(ctx context.Context) error {
	value, err := l.tryAcquire(ctx)
	if err != nil {
		return err
	}
	l.value = value
	log.Debug().Str("key", l.key).Msg("flush lock acquired")
	return nil
}

// Lock acquires the lock, retrying until the context ends or the retry cap is
// hit.
func (l *Locker) Lock(ctx context.Context) error {
	value, err := l.tryAcquire(ctx)
	if err == nil {
		l.value = value
		return nil
	}
	if !errors.Is(err, ErrLockNotAcquired) {
		return err
	}

	retries := 0
	ticker := time.NewTicker(l.retryDelay)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ErrLockWaitTimeout
		case <-ticker.C:
			retries++
			value, err := l.tryAcquire(ctx)
			if err == nil {
				l.value = value
				log.Debug().Str("key", l.key).Int("retries", retries).Msg("flush lock acquired after waiting")
				return nil
			}
			if !errors.Is(err, ErrLockNotAcquired) {
				return err
			}
			if l.maxRetries > 0 && retries >= l.maxRetries {
				return ErrLockMaxRetries
			}
		}
	}
}

// Unlock releases the lock if this instance still holds it.
func (l *Locker) Unlock(ctx context.Context) error {
	if l.value == "" {
		return ErrUnlockFailed
	}
	held := l.value
	l.value = ""

	res, err := l.client.Eval(ctx, unlockScript, []string{l.key}, held).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			log.Warn().Str("key", l.key).Msg("flush lock already gone during unlock")
			return nil
		}
		return err
	}
	if val, ok := res.(int64); ok && val == 1 {
		return nil
	}
	log.Warn().Str("key", l.key).Msg("flush lock no longer held by this instance")
	return ErrUnlockFailed
}
