package persist

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/chatlink/ext/extensible"
)

const redisKeyPrefix = "persist:meta:"

// RedisStore keeps the snapshot in redis, one hash per host object. The hash
// key encodes the kind and target; fields are item keys, values the raw
// persisted payloads.
type RedisStore struct {
	client redis.UniversalClient

	mu     sync.Mutex
	closed bool
}

// NewRedisStore creates a redis-backed snapshot store.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	if client == nil {
		panic("persist: redis client cannot be nil")
	}
	return &RedisStore{client: client}
}

func redisKey(kind extensible.Kind, target string) string {
	return fmt.Sprintf("%s%d:%s", redisKeyPrefix, int(kind), target)
}

// Save replaces the stored snapshot: stale hashes are deleted, current ones
// rewritten in a pipeline.
func (s *RedisStore) Save(ctx context.Context, recs []Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}

	stale, err := s.scanKeys(ctx)
	if err != nil {
		return err
	}

	byTarget := make(map[string][]Record)
	for _, rec := range recs {
		k := redisKey(rec.Kind, rec.Target)
		byTarget[k] = append(byTarget[k], rec)
	}

	pipe := s.client.TxPipeline()
	for _, key := range stale {
		pipe.Del(ctx, key)
	}
	for key, group := range byTarget {
		fields := make(map[string]any, len(group))
		for _, rec := range group {
			fields[rec.Key] = rec.Payload
		}
		pipe.HSet(ctx, key, fields)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		log.Error().Err(err).Msg("failed to write snapshot to redis")
		return fmt.Errorf("persist: redis save: %w", err)
	}

	log.Debug().Int("targets", len(byTarget)).Int("records", len(recs)).Msg("snapshot written to redis")
	return nil
}

// Load reads every stored hash back into records.
func (s *RedisStore) Load(ctx context.Context) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	keys, err := s.scanKeys(ctx)
	if err != nil {
		return nil, err
	}

	var recs []Record
	for _, key := range keys {
		kind, target, ok := parseRedisKey(key)
		if !ok {
			log.Warn().Str("key", key).Msg("skipping unparsable snapshot key")
			continue
		}
		fields, err := s.client.HGetAll(ctx, key).Result()
		if err != nil {
			return nil, fmt.Errorf("persist: redis load %s: %w", key, err)
		}
		for field, payload := range fields {
			recs = append(recs, Record{
				Kind:    kind,
				Target:  target,
				Key:     field,
				Payload: []byte(payload),
			})
		}
	}
	return recs, nil
}

// Close marks the store closed. The redis client is left to its owner.
func (s *RedisStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *RedisStore) scanKeys(ctx context.Context) ([]string, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, redisKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("persist: redis scan: %w", err)
	}
	return keys, nil
}

func parseRedisKey(key string) (extensible.Kind, string, bool) {
	rest, ok := strings.CutPrefix(key, redisKeyPrefix)
	if !ok {
		return 0, "", false
	}
	kindStr, target, ok := strings.Cut(rest, ":")
	if !ok {
		return 0, "", false
	}
	var kind int
	if _, err := fmt.Sscanf(kindStr, "%d", &kind); err != nil {
		return 0, "", false
	}
	return extensible.Kind(kind), target, true
}

var _ Store = (*RedisStore)(nil)
