// Package store wraps the shared Redis instance behind the small set of
// primitives the presence fabric needs: plain reads and writes, atomic
// set-with-TTL capturing the previous value, owner-guarded scripted mutation,
// pipelined batch reads, and pub/sub.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Store is the typed adapter. One client serves regular commands; every
// Subscribe gets its own go-redis PubSub, which holds a dedicated connection
// (subscriber connections cannot issue commands).
type Store struct {
	rdb redis.UniversalClient
	log *zap.Logger
}

// Open connects using a redis:// URL.
func Open(url string, log *zap.Logger) (*Store, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse store url: %w", err)
	}
	return New(redis.NewClient(opts), log), nil
}

// New wraps an existing client. Tests hand in a client pointed at miniredis.
func New(rdb redis.UniversalClient, log *zap.Logger) *Store {
	return &Store{rdb: rdb, log: log.Named("store")}
}

func (s *Store) Close() error {
	return s.rdb.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// SetWithTTLGetPrev atomically sets key to value with the given TTL and
// returns the previous value, if any. This is the claim primitive: the
// previous value tells the caller whether the key existed and who owned it.
func (s *Store) SetWithTTLGetPrev(ctx context.Context, key, value string, ttl time.Duration) (string, bool, error) {
	prev, err := s.rdb.SetArgs(ctx, key, value, redis.SetArgs{TTL: ttl, Get: true}).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("set %s: %w", key, err)
	}
	return prev, true, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	if err := s.rdb.Set(ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// Get returns the value and whether the key exists.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %s: %w", key, err)
	}
	return v, true, nil
}

func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("exists %s: %w", key, err)
	}
	return n == 1, nil
}

func (s *Store) Del(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("del %s: %w", key, err)
	}
	return nil
}

// SAdd adds members to a set key.
func (s *Store) SAdd(ctx context.Context, key string, members ...string) error {
	args := make([]any, len(members))
	for i, m := range members {
		args[i] = m
	}
	if err := s.rdb.SAdd(ctx, key, args...).Err(); err != nil {
		return fmt.Errorf("sadd %s: %w", key, err)
	}
	return nil
}

// SIsMember reports set membership.
func (s *Store) SIsMember(ctx context.Context, key, member string) (bool, error) {
	ok, err := s.rdb.SIsMember(ctx, key, member).Result()
	if err != nil {
		return false, fmt.Errorf("sismember %s: %w", key, err)
	}
	return ok, nil
}

// SMembers returns the members of a set key.
func (s *Store) SMembers(ctx context.Context, key string) ([]string, error) {
	members, err := s.rdb.SMembers(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("smembers %s: %w", key, err)
	}
	return members, nil
}

// Pipeline returns a pipeliner for composed multi-key operations; the caller
// owns Exec.
func (s *Store) Pipeline() redis.Pipeliner {
	return s.rdb.Pipeline()
}

func (s *Store) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := s.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", channel, err)
	}
	return nil
}

// Subscribe opens a dedicated subscriber connection for the given channels.
func (s *Store) Subscribe(ctx context.Context, channels ...string) *redis.PubSub {
	return s.rdb.Subscribe(ctx, channels...)
}
