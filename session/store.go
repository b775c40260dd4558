package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned when no entry exists for a digest.
var ErrNotFound = errors.New("session cache entry not found")

// ErrRedisUnavailable wraps transport failures talking to Redis.
var ErrRedisUnavailable = errors.New("redis unavailable")

const minTTL = time.Second

// Store caches session payloads in Redis.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

// NewStore returns a Store that namespaces its keys under prefix.
func NewStore(client redis.UniversalClient, prefix string) *Store {
	return &Store{redis: client, prefix: prefix}
}

func (s *Store) key(digest string) string {
	return s.prefix + ":s:" + digest
}

// Put stores payload for ttl. TTLs below one second are rounded up so an
// entry never outlives its caller's intent by being stored without expiry.
func (s *Store) Put(ctx context.Context, digest string, payload []byte, ttl time.Duration) error {
	if ttl < minTTL {
		ttl = minTTL
	}
	if err := s.redis.Set(ctx, s.key(digest), payload, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Get returns the payload stored for digest.
func (s *Store) Get(ctx context.Context, digest string) ([]byte, error) {
	payload, err := s.redis.Get(ctx, s.key(digest)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return payload, nil
}

// TTL returns the remaining lifetime of an entry.
func (s *Store) TTL(ctx context.Context, digest string) (time.Duration, error) {
	ttl, err := s.redis.PTTL(ctx, s.key(digest)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if ttl < 0 {
		return 0, ErrNotFound
	}
	return ttl, nil
}

// Delete removes entries. Missing entries are not an error.
func (s *Store) Delete(ctx context.Context, digests ...string) error {
	if len(digests) == 0 {
		return nil
	}
	keys := make([]string, len(digests))
	for i, d := range digests {
		keys[i] = s.key(d)
	}
	if err := s.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
